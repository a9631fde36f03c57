// connection.go
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

package database

import (
	"fmt"
	"log"

	pure "github.com/glebarez/sqlite"
	"github.com/matlab-research/ontserve/internal/config"
	"github.com/matlab-research/ontserve/internal/models"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect establishes the writer connection based on the configured DB_TYPE
func Connect(cfg *config.Config) (*gorm.DB, error) {
	db, err := open(cfg, cfg.DBAppUser, cfg.DBAppPassword)
	if err != nil {
		return nil, err
	}

	if err := setPool(db, cfg.DBAppConnectionLimit); err != nil {
		return nil, err
	}

	log.Printf("Connected to %s database: %s", cfg.DBType, cfg.DBAppDatabase)
	return db, nil
}

// ConnectReadOnly establishes the read pool with the reader credentials.
// Unsynchronized queries (listings, similarity scans, audit reads) go
// through this pool; all transactional writes use the Connect pool.
func ConnectReadOnly(cfg *config.Config) (*gorm.DB, error) {
	db, err := open(cfg, cfg.DBUser, cfg.DBPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to connect read-only pool: %w", err)
	}

	if err := setPool(db, cfg.DBConnectionLimit); err != nil {
		return nil, err
	}

	log.Printf("Connected to %s read-only pool: %s", cfg.DBType, cfg.DBAppDatabase)
	return db, nil
}

func open(cfg *config.Config, user, password string) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch cfg.DBType {
	case "mysql", "mariadb":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			user,
			password,
			cfg.DBHost,
			cfg.DBPort,
			cfg.DBAppDatabase,
		)
		dialector = mysql.Open(dsn)

	case "postgres", "postgresql":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			cfg.DBHost,
			user,
			password,
			cfg.DBAppDatabase,
			cfg.DBPort,
		)
		dialector = postgres.Open(dsn)

	case "sqlite":
		// For SQLite, DBAppDatabase is the file path. No separate credentials.
		dialector = sqlite.Open(cfg.DBAppDatabase)

	case "sqlite-pure":
		// cgo-free sqlite driver, for environments without a C toolchain
		dialector = pure.Open(cfg.DBAppDatabase)

	case "sqlserver", "mssql":
		dsn := fmt.Sprintf("sqlserver://%s:%s@%s:%s?database=%s",
			user,
			password,
			cfg.DBHost,
			cfg.DBPort,
			cfg.DBAppDatabase,
		)
		dialector = sqlserver.Open(dsn)

	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.DBType)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

func setPool(db *gorm.DB, limit int) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(limit)
	sqlDB.SetMaxIdleConns(limit / 2)
	return nil
}

// AutoMigrate runs automatic migrations for all models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
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
}

// Close closes the database connection
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
