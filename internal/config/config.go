// config.go
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

package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Tree orphan policies.
const (
	TreeOrphansDrop = "drop"
	TreeOrphansRoot = "root"
)

// DefaultPriorityRoles orders committee members when PRIORITY_ROLES is unset.
var DefaultPriorityRoles = []string{"Formand", "Næstformand", "Sekretær", "Udvalgsadministrator"}

// tableName accepts "table" or "schema.table" built from letters, digits and underscores.
var tableName = regexp.MustCompile(`^[A-Za-z0-9_]+(\.[A-Za-z0-9_]+)?$`)

// DBConfig describes one database connection.
type DBConfig struct {
	Type            string // mysql, mariadb, postgres, sqlite, sqlite-pure, sqlserver
	Host            string
	Port            string
	Database        string
	User            string
	Password        string
	ConnectionLimit int
}

// Config holds all application configuration
type Config struct {
	// Server configuration
	Port string

	// Application database
	DB DBConfig

	// School directory database (read only). Empty Database disables school lookups.
	SchoolDB    DBConfig
	SchoolTable string

	// Delta (primary directory) API
	DeltaURL          string
	DeltaAuthURL      string
	DeltaRealm        string
	DeltaClientID     string
	DeltaClientSecret string

	// Microsoft Graph API
	GraphURL          string
	GraphAuthURL      string
	GraphTenantID     string
	GraphClientID     string
	GraphClientSecret string
	GraphScope        string

	DirectoryTimeout time.Duration

	// Authorizer configuration
	AuthzURL      string
	AuthzClientID string

	// Batch jobs
	ReconcileSchedule         string
	ReconcileOnStart          bool
	ReconcileCopyOrganization bool
	MaintenanceSchedule       string

	// Presentation
	PriorityRoles  []string
	TopCommitteeID uint
	TreeOrphans    string

	// Logging
	LogLevel       string
	LogDevelopment bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port: getEnv("PORT", "3000"),
		DB: DBConfig{
			Type:            getEnv("DB_TYPE", "postgres"),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			Database:        getEnv("DB_DATABASE", ""),
			User:            getEnv("DB_USER", ""),
			Password:        getEnv("DB_PASSWORD", ""),
			ConnectionLimit: getEnvAsInt("DB_CONNECTION_LIMIT", 5),
		},
		SchoolDB: DBConfig{
			Type:            getEnv("SCHOOL_DB_TYPE", "postgres"),
			Host:            getEnv("SCHOOL_DB_HOST", "localhost"),
			Port:            getEnv("SCHOOL_DB_PORT", "5432"),
			Database:        getEnv("SCHOOL_DB_DATABASE", ""),
			User:            getEnv("SCHOOL_DB_USER", ""),
			Password:        getEnv("SCHOOL_DB_PASSWORD", ""),
			ConnectionLimit: getEnvAsInt("SCHOOL_DB_CONNECTION_LIMIT", 2),
		},
		SchoolTable:               getEnv("SCHOOL_DB_TABLE", "skolead.person"),
		DeltaURL:                  strings.TrimRight(getEnv("DELTA_URL", ""), "/"),
		DeltaAuthURL:              strings.TrimRight(getEnv("DELTA_AUTH_URL", ""), "/"),
		DeltaRealm:                getEnv("DELTA_REALM", ""),
		DeltaClientID:             getEnv("DELTA_CLIENT_ID", ""),
		DeltaClientSecret:         getEnv("DELTA_CLIENT_SECRET", ""),
		GraphURL:                  strings.TrimRight(getEnv("GRAPH_URL", "https://graph.microsoft.com/v1.0"), "/"),
		GraphAuthURL:              strings.TrimRight(getEnv("GRAPH_AUTH_URL", "https://login.microsoftonline.com"), "/"),
		GraphTenantID:             getEnv("GRAPH_TENANT_ID", ""),
		GraphClientID:             getEnv("GRAPH_CLIENT_ID", ""),
		GraphClientSecret:         getEnv("GRAPH_CLIENT_SECRET", ""),
		GraphScope:                getEnv("GRAPH_SCOPE", "https://graph.microsoft.com/.default"),
		DirectoryTimeout:          time.Duration(getEnvAsInt("DIRECTORY_TIMEOUT_SECONDS", 30)) * time.Second,
		AuthzURL:                  getEnv("AUTHZ_URL", ""),
		AuthzClientID:             getEnv("AUTHZ_CLIENT_ID", ""),
		ReconcileSchedule:         getEnv("RECONCILE_SCHEDULE", "0 8 * * *"),
		ReconcileOnStart:          getEnvAsBool("RECONCILE_ON_START", true),
		ReconcileCopyOrganization: getEnvAsBool("RECONCILE_COPY_ORGANIZATION", true),
		MaintenanceSchedule:       getEnv("MAINTENANCE_SCHEDULE", "30 7 * * *"),
		PriorityRoles:             getEnvAsList("PRIORITY_ROLES", DefaultPriorityRoles),
		TopCommitteeID:            uint(getEnvAsInt("TOP_COMMITTEE_ID", 1)),
		TreeOrphans:               getEnv("TREE_ORPHANS", TreeOrphansDrop),
		LogLevel:                  getEnv("LOG_LEVEL", "info"),
		LogDevelopment:            getEnvAsBool("LOG_DEVELOPMENT", false),
	}

	// Validate required fields
	if cfg.DB.Database == "" {
		return nil, fmt.Errorf("DB_DATABASE is required")
	}
	if cfg.DB.Type != "sqlite" && cfg.DB.Type != "sqlite-pure" && cfg.DB.User == "" {
		return nil, fmt.Errorf("DB_USER is required")
	}
	if cfg.DeltaURL == "" {
		return nil, fmt.Errorf("DELTA_URL is required")
	}
	if cfg.DeltaClientID == "" || cfg.DeltaClientSecret == "" {
		return nil, fmt.Errorf("DELTA_CLIENT_ID and DELTA_CLIENT_SECRET are required")
	}
	if cfg.AuthzURL == "" {
		return nil, fmt.Errorf("AUTHZ_URL is required")
	}
	if cfg.AuthzClientID == "" {
		return nil, fmt.Errorf("AUTHZ_CLIENT_ID is required")
	}
	if !tableName.MatchString(cfg.SchoolTable) {
		return nil, fmt.Errorf("SCHOOL_DB_TABLE %q must be table or schema.table", cfg.SchoolTable)
	}
	if cfg.TreeOrphans != TreeOrphansDrop && cfg.TreeOrphans != TreeOrphansRoot {
		return nil, fmt.Errorf("TREE_ORPHANS must be %q or %q", TreeOrphansDrop, TreeOrphansRoot)
	}

	return cfg, nil
}

// SchoolEnabled reports whether the school directory database is configured.
func (c *Config) SchoolEnabled() bool {
	return c.SchoolDB.Database != ""
}

// GraphEnabled reports whether Microsoft Graph credentials are configured.
func (c *Config) GraphEnabled() bool {
	return c.GraphTenantID != "" && c.GraphClientID != "" && c.GraphClientSecret != ""
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(strings.TrimSpace(valueStr))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
