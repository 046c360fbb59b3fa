// connection.go
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

package database

import (
	"fmt"

	puresqlite "github.com/glebarez/sqlite"
	"github.com/localnerve/meddb/internal/config"
	"github.com/localnerve/meddb/internal/models"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Dialector returns the gorm dialector for the configured database type
func Dialector(db config.DBConfig) (gorm.Dialector, error) {
	switch db.Type {
	case "mysql", "mariadb":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			db.User,
			db.Password,
			db.Host,
			db.Port,
			db.Database,
		)
		return mysql.Open(dsn), nil

	case "postgres", "postgresql":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			db.Host,
			db.User,
			db.Password,
			db.Database,
			db.Port,
		)
		return postgres.Open(dsn), nil

	case "sqlite":
		// For SQLite, Database is the file path
		return sqlite.Open(db.Database), nil

	case "sqlite-pure":
		// cgo-free SQLite for scratch deployments
		return puresqlite.Open(db.Database), nil

	case "sqlserver", "mssql":
		dsn := fmt.Sprintf("sqlserver://%s:%s@%s:%s?database=%s",
			db.User,
			db.Password,
			db.Host,
			db.Port,
			db.Database,
		)
		return sqlserver.Open(dsn), nil
	}

	return nil, fmt.Errorf("unsupported database type: %s", db.Type)
}

// Connect establishes the application database connection based on DB_TYPE
func Connect(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	db, err := open(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("connected to database", zap.String("type", cfg.DB.Type), zap.String("database", cfg.DB.Database))
	return db, nil
}

// ConnectSchool establishes the read-only school directory connection
func ConnectSchool(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	db, err := open(cfg.SchoolDB)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to school directory database: %w", err)
	}
	log.Info("connected to school directory database",
		zap.String("type", cfg.SchoolDB.Type), zap.String("database", cfg.SchoolDB.Database))
	return db, nil
}

func open(dbc config.DBConfig) (*gorm.DB, error) {
	dialector, err := Dialector(dbc)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	// Get underlying SQL DB for connection pool configuration
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}

	limit := dbc.ConnectionLimit
	if limit < 1 {
		limit = 1
	}
	sqlDB.SetMaxOpenConns(limit)
	sqlDB.SetMaxIdleConns((limit + 1) / 2)

	return db, nil
}

// AutoMigrate runs automatic migrations for all models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.CommitteeType{},
		&models.Committee{},
		&models.Union{},
		&models.Role{},
		&models.Person{},
		&models.CommitteeMembership{},
		&models.ReconciliationRun{},
	)
}

// Close closes the database connection
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
