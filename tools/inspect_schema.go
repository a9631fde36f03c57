package main

import (
	"fmt"
	"log"

	"github.com/glebarez/sqlite"
	"github.com/matlab-research/ontserve/internal/models"
	"gorm.io/gorm"
)

func main() {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		log.Fatal(err)
	}

	// Auto-migrate to see what GORM creates
	err = db.AutoMigrate(
		&models.OntologyDomain{},
		&models.OntologyDocument{},
		&models.DocumentVersion{},
		&models.Concept{},
		&models.ConceptVersion{},
		&models.ConceptRelationship{},
		&models.ApprovalWorkflow{},
		&models.Triple{},
		&models.AuditLogEntry{},
	)
	if err != nil {
		log.Fatal(err)
	}

	// Get the schema
	var tables []string
	db.Raw("SELECT name FROM sqlite_master WHERE type='table'").Scan(&tables)

	for _, table := range tables {
		fmt.Printf("\n=== Table: %s ===\n", table)
		var schema string
		db.Raw(fmt.Sprintf("SELECT sql FROM sqlite_master WHERE name='%s'", table)).Scan(&schema)
		fmt.Println(schema)
	}
}
