package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/localnerve/meddb/internal/config"
	"github.com/localnerve/meddb/internal/database"
	"gorm.io/gorm"
)

// Prints the tables gorm creates for the meddb models on an in-memory SQLite database.
func main() {
	var dbType string
	flag.StringVar(&dbType, "type", "sqlite", "sqlite or sqlite-pure")
	flag.Parse()

	dialector, err := database.Dialector(config.DBConfig{Type: dbType, Database: ":memory:"})
	if err != nil {
		log.Fatal(err)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		log.Fatal(err)
	}

	if err := database.AutoMigrate(db); err != nil {
		log.Fatal(err)
	}
	if err := database.Seed(db); err != nil {
		log.Fatal(err)
	}

	var tables []string
	db.Raw("SELECT name FROM sqlite_master WHERE type='table' ORDER BY name").Scan(&tables)

	for _, table := range tables {
		fmt.Printf("\n=== Table: %s ===\n", table)
		var schema string
		db.Raw("SELECT sql FROM sqlite_master WHERE name = ?", table).Scan(&schema)
		fmt.Println(schema)
	}

	var seeded []string
	db.Raw("SELECT name FROM committee_type ORDER BY id").Scan(&seeded)
	fmt.Printf("\nSeeded committee types: %v\n", seeded)
}
