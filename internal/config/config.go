package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Port string

	// Database configuration
	DBType               string // mysql, postgres, sqlite, sqlserver, etc.
	DBHost               string
	DBPort               string
	DBAppDatabase        string
	DBAppUser            string
	DBAppPassword        string
	DBAppConnectionLimit int
	DBUser               string
	DBPassword           string
	DBConnectionLimit    int

	// Authorizer configuration
	AuthzURL      string
	AuthzClientID string

	// Workflow routing thresholds
	AutoApproveThreshold float64
	MinReviewThreshold   float64
	DuplicateThreshold   float64

	// Embedding configuration
	EmbeddingDim int
	EmbedderURL  string

	// Collaborator ontology parser
	ParserURL string

	// Transaction commit bounds for version flips and status transitions
	TxRetryCount     int
	TxRetryBackoffMs int
	TxTimeoutMs      int

	// Default domain and startup seeding
	DefaultDomain string
	SeedOntology  bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:                 getEnv("PORT", "3000"),
		DBType:               getEnv("DB_TYPE", "mysql"),
		DBHost:               getEnv("DB_HOST", "localhost"),
		DBPort:               getEnv("DB_PORT", "3306"),
		DBAppDatabase:        getEnv("DB_APP_DATABASE", ""),
		DBAppUser:            getEnv("DB_APP_USER", ""),
		DBAppPassword:        getEnv("DB_APP_PASSWORD", ""),
		DBAppConnectionLimit: getEnvAsInt("DB_APP_CONNECTION_LIMIT", 5),
		DBUser:               getEnv("DB_USER", ""),
		DBPassword:           getEnv("DB_PASSWORD", ""),
		DBConnectionLimit:    getEnvAsInt("DB_CONNECTION_LIMIT", 5),
		AuthzURL:             getEnv("AUTHZ_URL", ""),
		AuthzClientID:        getEnv("AUTHZ_CLIENT_ID", ""),
		AutoApproveThreshold: getEnvAsFloat("AUTO_APPROVE_THRESHOLD", 0.9),
		MinReviewThreshold:   getEnvAsFloat("MIN_REVIEW_THRESHOLD", 0.4),
		DuplicateThreshold:   getEnvAsFloat("DUPLICATE_THRESHOLD", 0.85),
		EmbeddingDim:         getEnvAsInt("EMBEDDING_DIM", 384),
		EmbedderURL:          getEnv("EMBEDDER_URL", ""),
		ParserURL:            getEnv("PARSER_URL", ""),
		TxRetryCount:         getEnvAsInt("TX_RETRY_COUNT", 3),
		TxRetryBackoffMs:     getEnvAsInt("TX_RETRY_BACKOFF_MS", 50),
		TxTimeoutMs:          getEnvAsInt("TX_TIMEOUT_MS", 5000),
		DefaultDomain:        getEnv("DEFAULT_DOMAIN", "engineering-ethics"),
		SeedOntology:         getEnvAsBool("SEED_ONTOLOGY", false),
	}

	// Validate required fields
	if cfg.DBAppDatabase == "" {
		return nil, fmt.Errorf("DB_APP_DATABASE is required")
	}
	if cfg.DBAppUser == "" && !isSqlite(cfg.DBType) {
		return nil, fmt.Errorf("DB_APP_USER is required")
	}
	if cfg.DBUser == "" && !isSqlite(cfg.DBType) {
		return nil, fmt.Errorf("DB_USER is required")
	}
	if cfg.AuthzURL == "" {
		return nil, fmt.Errorf("AUTHZ_URL is required")
	}
	if cfg.AuthzClientID == "" {
		return nil, fmt.Errorf("AUTHZ_CLIENT_ID is required")
	}
	if cfg.AutoApproveThreshold < 0 || cfg.AutoApproveThreshold > 1 {
		return nil, fmt.Errorf("AUTO_APPROVE_THRESHOLD must be in [0,1]")
	}
	if cfg.MinReviewThreshold < 0 || cfg.MinReviewThreshold > cfg.AutoApproveThreshold {
		return nil, fmt.Errorf("MIN_REVIEW_THRESHOLD must be in [0, AUTO_APPROVE_THRESHOLD]")
	}
	if cfg.DuplicateThreshold < 0 || cfg.DuplicateThreshold > 1 {
		return nil, fmt.Errorf("DUPLICATE_THRESHOLD must be in [0,1]")
	}
	if cfg.EmbeddingDim <= 0 {
		return nil, fmt.Errorf("EMBEDDING_DIM must be positive")
	}

	return cfg, nil
}

func isSqlite(dbType string) bool {
	return dbType == "sqlite" || dbType == "sqlite-pure"
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
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
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float or returns a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
