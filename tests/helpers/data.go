// data.go
//
// Ontology version and concept approval data service
// Copyright (c) 2026 MatLab Research
//
// This file is part of ontserve.
// ontserve is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// ontserve is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with ontserve.
// If not, see <https://www.gnu.org/licenses/>.

package helpers

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/matlab-research/ontserve/internal/config"
	"github.com/matlab-research/ontserve/internal/database"
	"github.com/matlab-research/ontserve/internal/models"
	"github.com/matlab-research/ontserve/internal/types"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDim is the embedding dimension used across unit tests. Small enough
// to write vectors by hand, still exercises the dimension checks.
const TestDim = 4

// TestConfig returns a config suitable for in-memory unit tests.
func TestConfig() *config.Config {
	return &config.Config{
		DBType:               "sqlite-pure",
		DBAppDatabase:        ":memory:",
		AutoApproveThreshold: 0.9,
		MinReviewThreshold:   0.4,
		DuplicateThreshold:   0.85,
		EmbeddingDim:         TestDim,
		TxRetryCount:         3,
		TxRetryBackoffMs:     1,
		TxTimeoutMs:          5000,
		DefaultDomain:        "engineering-ethics",
	}
}

// SetupTestDB creates an in-memory SQLite database with the full schema.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	// A single connection keeps every session on the same in-memory database.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return db
}

// CreateTestDomain creates one ontology domain row.
func CreateTestDomain(t *testing.T, db *gorm.DB, name string) *models.OntologyDomain {
	t.Helper()
	domain := models.OntologyDomain{Name: name, DisplayName: name}
	if err := db.Create(&domain).Error; err != nil {
		t.Fatalf("Failed to create domain %s: %v", name, err)
	}
	return &domain
}

// CreateTestConcept creates a concept in the given status with a label
// embedding.
func CreateTestConcept(t *testing.T, db *gorm.DB, domainID uint64, label string, status models.ConceptStatus, embedding types.Vector) *models.Concept {
	t.Helper()
	concept := models.Concept{
		UUID:           uuid.New().String(),
		DomainID:       domainID,
		URI:            "onto://test/" + label,
		Label:          label,
		PrimaryType:    models.TypePrinciple,
		Status:         status,
		LabelEmbedding: embedding,
		Version:        1,
		CreatedBy:      "tester",
		UpdatedBy:      "tester",
	}
	if err := db.Create(&concept).Error; err != nil {
		t.Fatalf("Failed to create concept %s: %v", label, err)
	}
	return &concept
}

// UnitVector returns a TestDim vector with a single 1 at the given axis.
func UnitVector(axis int) types.Vector {
	v := make(types.Vector, TestDim)
	v[axis%TestDim] = 1
	return v
}
