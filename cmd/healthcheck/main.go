// main.go
//
// MED-Database committee and member registry service
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of meddb.
// meddb is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// meddb is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with meddb.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/localnerve/meddb/internal/config"
	"github.com/localnerve/meddb/internal/database"
	"github.com/localnerve/meddb/internal/directory"
	"github.com/localnerve/meddb/internal/services"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Probe output goes to stdout as JSON; keep the logger quiet.
	zlog := zap.NewNop()

	appDB, err := database.Connect(cfg, zlog)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	directories := services.DirectoryEndpoints(cfg)

	if cfg.SchoolEnabled() {
		schoolDB, err := database.ConnectSchool(cfg, zlog)
		if err != nil {
			log.Fatalf("Failed to connect to school directory database: %v", err)
		}
		defer database.Close(schoolDB)
		directories["school"] = directory.NewSchool(schoolDB, cfg.SchoolTable)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	result := services.HealthCheck(ctx, cfg, appDB, directories, zlog)
	cancel()
	database.Close(appDB)

	output, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal health check result: %v", err)
	}

	fmt.Println(string(output))

	// Exit with appropriate code; a degraded directory does not fail the probe
	if result.Status == "unhealthy" {
		os.Exit(1)
	}
	os.Exit(0)
}
