package integration_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/matlab-research/ontserve/internal/config"
	"github.com/matlab-research/ontserve/internal/database"
	"github.com/matlab-research/ontserve/internal/models"
	"github.com/matlab-research/ontserve/internal/services"
	"github.com/matlab-research/ontserve/internal/types"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
)

func testConfig(dbType, host, port string) *config.Config {
	return &config.Config{
		DBType:               dbType,
		DBHost:               host,
		DBPort:               port,
		DBAppDatabase:        "testdb",
		DBAppUser:            "testuser",
		DBAppPassword:        "testpass",
		DBAppConnectionLimit: 5,
		AutoApproveThreshold: 0.9,
		MinReviewThreshold:   0.4,
		DuplicateThreshold:   0.85,
		EmbeddingDim:         4,
		TxRetryCount:         3,
		TxRetryBackoffMs:     10,
		TxTimeoutMs:          5000,
		DefaultDomain:        "engineering-ethics",
	}
}

// TestWithMariaDB tests the service with a real MariaDB container
func TestWithMariaDB(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// Start MariaDB container
	mariadbContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        os.Getenv("DB_IMAGE"),
			ExposedPorts: []string{"3306/tcp"},
			Env: map[string]string{
				"MYSQL_ROOT_PASSWORD": "rootpass",
				"MYSQL_DATABASE":      "testdb",
				"MYSQL_USER":          "testuser",
				"MYSQL_PASSWORD":      "testpass",
			},
			WaitingFor: wait.ForLog("ready for connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start MariaDB container: %v", err)
	}
	defer func() {
		if err := mariadbContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate MariaDB container: %v", err)
		}
	}()

	host, err := mariadbContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := mariadbContainer.MappedPort(ctx, "3306")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := testConfig("mysql", host, port.Port())

	// Wait for database to be ready
	time.Sleep(5 * time.Second)

	db, err := database.Connect(cfg)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	runServiceSuite(t, db, cfg)
}

// TestWithPostgreSQL tests the service with a real PostgreSQL container
func TestWithPostgreSQL(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// Start PostgreSQL container
	postgresContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        os.Getenv("POSTGRES_IMAGE"),
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_PASSWORD": "testpass",
				"POSTGRES_USER":     "testuser",
				"POSTGRES_DB":       "testdb",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer func() {
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}()

	host, err := postgresContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := postgresContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := testConfig("postgres", host, port.Port())

	// Wait for database to be ready
	time.Sleep(2 * time.Second)

	db, err := database.Connect(cfg)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	runServiceSuite(t, db, cfg)
}

func runServiceSuite(t *testing.T, db *gorm.DB, cfg *config.Config) {
	t.Run("DocumentVersionLifecycle", func(t *testing.T) {
		testDocumentVersionLifecycle(t, db, cfg)
	})

	t.Run("ConceptApprovalFlow", func(t *testing.T) {
		testConceptApprovalFlow(t, db, cfg)
	})

	t.Run("ConcurrentDecisions", func(t *testing.T) {
		testConcurrentDecisions(t, db, cfg)
	})

	t.Run("ConcurrentVersionSaves", func(t *testing.T) {
		testConcurrentVersionSaves(t, db, cfg)
	})
}

// testDocumentVersionLifecycle drives save, no-op and retrieval against a real database
func testDocumentVersionLifecycle(t *testing.T, db *gorm.DB, cfg *config.Config) {
	ctx := context.Background()
	ref := services.DocumentRef{Domain: "engineering-ethics", Name: "lifecycle"}

	first, err := services.SaveVersion(ctx, db, cfg, nil, ref, services.SaveVersionInput{
		Content: "eeo:Engineer a eeo:Role .",
		Author:  "alice",
	})
	if err != nil {
		t.Fatalf("Failed to save first version: %v", err)
	}
	if first.VersionNumber != 1 || !first.Created {
		t.Errorf("Expected created version 1, got %+v", first)
	}

	second, err := services.SaveVersion(ctx, db, cfg, nil, ref, services.SaveVersionInput{
		Content: "eeo:Engineer a eeo:Role .\neeo:Safety a eeo:Principle .",
		Author:  "bob",
	})
	if err != nil {
		t.Fatalf("Failed to save second version: %v", err)
	}
	if second.VersionNumber != 2 {
		t.Errorf("Expected version 2, got %d", second.VersionNumber)
	}

	// Identical content resolves to the current version without a new row.
	noop, err := services.SaveVersion(ctx, db, cfg, nil, ref, services.SaveVersionInput{
		Content: "eeo:Engineer a eeo:Role .\neeo:Safety a eeo:Principle .",
		Author:  "carol",
	})
	if err != nil {
		t.Fatalf("Failed on identical save: %v", err)
	}
	if noop.Created || noop.VersionNumber != 2 {
		t.Errorf("Expected no-op at version 2, got %+v", noop)
	}

	current, err := services.GetVersion(ctx, db, ref, "current")
	if err != nil {
		t.Fatalf("Failed to get current version: %v", err)
	}
	if current.VersionNumber != 2 || !current.IsCurrent {
		t.Errorf("Expected current version 2, got %d (current=%v)", current.VersionNumber, current.IsCurrent)
	}

	versions, err := services.ListVersions(ctx, db, ref)
	if err != nil {
		t.Fatalf("Failed to list versions: %v", err)
	}
	if len(versions) != 2 {
		t.Errorf("Expected 2 versions, got %d", len(versions))
	}
}

// testConceptApprovalFlow submits, reviews and approves a concept end to end
func testConceptApprovalFlow(t *testing.T, db *gorm.DB, cfg *config.Config) {
	ctx := context.Background()
	confidence := 0.6

	result, err := services.SubmitCandidate(ctx, db, cfg, nil, services.SubmitConceptInput{
		Domain:          "engineering-ethics",
		Label:           "Informed Consent",
		PrimaryType:     "Principle",
		ConfidenceScore: &confidence,
		LabelEmbedding:  types.Vector{0, 1, 0, 0},
		SubmittedBy:     "extractor",
	})
	if err != nil {
		t.Fatalf("Failed to submit concept: %v", err)
	}
	if result.Concept.Status != models.StatusCandidate {
		t.Fatalf("Expected candidate status, got %s", result.Concept.Status)
	}

	id := result.Concept.UUID
	if _, err := services.AssignWorkflow(ctx, db, cfg, id, "reviewer1", 2, "lead"); err != nil {
		t.Fatalf("Failed to assign workflow: %v", err)
	}

	approved, err := services.Transition(ctx, db, cfg, id, models.StatusApproved, "reviewer1", "well grounded")
	if err != nil {
		t.Fatalf("Failed to approve: %v", err)
	}
	if approved.Version != 3 {
		t.Errorf("Expected version 3 after assign and approve, got %d", approved.Version)
	}

	// Approval materializes the derived facts as live triples.
	triples, err := services.QueryTriplesByConcept(ctx, db, approved.ConceptID, false)
	if err != nil {
		t.Fatalf("Failed to query triples: %v", err)
	}
	if len(triples) == 0 {
		t.Error("Expected materialized triples after approval")
	}

	history, err := services.ConceptHistory(ctx, db, id)
	if err != nil {
		t.Fatalf("Failed to read history: %v", err)
	}
	if len(history) != 3 {
		t.Errorf("Expected 3 snapshots, got %d", len(history))
	}
}

// testConcurrentDecisions races an approve against a reject; exactly one wins
func testConcurrentDecisions(t *testing.T, db *gorm.DB, cfg *config.Config) {
	ctx := context.Background()
	confidence := 0.7

	result, err := services.SubmitCandidate(ctx, db, cfg, nil, services.SubmitConceptInput{
		Domain:          "engineering-ethics",
		Label:           "Contested Concept",
		PrimaryType:     "Obligation",
		ConfidenceScore: &confidence,
		LabelEmbedding:  types.Vector{0, 0, 1, 0},
		SubmittedBy:     "extractor",
	})
	if err != nil {
		t.Fatalf("Failed to submit concept: %v", err)
	}
	id := result.Concept.UUID

	var wg sync.WaitGroup
	errs := make([]error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = services.Transition(ctx, db, cfg, id, models.StatusApproved, "reviewer1", "looks good")
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = services.Transition(ctx, db, cfg, id, models.StatusRejected, "reviewer2", "out of scope")
	}()
	wg.Wait()

	winners := 0
	for i, e := range errs {
		if e == nil {
			winners++
			continue
		}
		if !errors.Is(e, types.ErrConflict) && !errors.Is(e, types.ErrInvalidTransition) {
			t.Errorf("Reviewer %d got unexpected error: %v", i+1, e)
		}
	}
	if winners != 1 {
		t.Fatalf("Expected exactly one winning decision, got %d", winners)
	}

	final, err := services.GetConcept(ctx, db, id)
	if err != nil {
		t.Fatalf("Failed to reload concept: %v", err)
	}
	if final.Status != models.StatusApproved && final.Status != models.StatusRejected {
		t.Errorf("Expected a decided status, got %s", final.Status)
	}
}

// testConcurrentVersionSaves races two different saves; both land with distinct numbers
func testConcurrentVersionSaves(t *testing.T, db *gorm.DB, cfg *config.Config) {
	ctx := context.Background()
	ref := services.DocumentRef{Domain: "engineering-ethics", Name: "contested"}

	if _, err := services.SaveVersion(ctx, db, cfg, nil, ref, services.SaveVersionInput{
		Content: "base",
		Author:  "alice",
	}); err != nil {
		t.Fatalf("Failed to save base version: %v", err)
	}

	var wg sync.WaitGroup
	results := make([]*services.SaveVersionResult, 2)
	errs := make([]error, 2)

	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = services.SaveVersion(ctx, db, cfg, nil, ref, services.SaveVersionInput{
				Content: "base plus edit " + string(rune('a'+i)),
				Author:  "editor",
			})
		}(i)
	}
	wg.Wait()

	for i := 0; i < 2; i++ {
		if errs[i] != nil {
			t.Fatalf("Save %d failed: %v", i, errs[i])
		}
	}
	if results[0].VersionNumber == results[1].VersionNumber {
		t.Errorf("Expected distinct version numbers, both got %d", results[0].VersionNumber)
	}

	versions, err := services.ListVersions(ctx, db, ref)
	if err != nil {
		t.Fatalf("Failed to list versions: %v", err)
	}
	if len(versions) != 3 {
		t.Errorf("Expected 3 versions after concurrent saves, got %d", len(versions))
	}
}

// TestHealthCheck tests the health check functionality
func TestHealthCheck(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// Start MariaDB container
	mariadbContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        os.Getenv("DB_IMAGE"),
			ExposedPorts: []string{"3306/tcp"},
			Env: map[string]string{
				"MYSQL_ROOT_PASSWORD": "rootpass",
				"MYSQL_DATABASE":      "testdb",
				"MYSQL_USER":          "testuser",
				"MYSQL_PASSWORD":      "testpass",
			},
			WaitingFor: wait.ForLog("ready for connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start MariaDB container: %v", err)
	}
	defer func() {
		if err := mariadbContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate MariaDB container: %v", err)
		}
	}()

	host, err := mariadbContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := mariadbContainer.MappedPort(ctx, "3306")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := testConfig("mysql", host, port.Port())
	cfg.AuthzURL = "http://localhost:9999" // Non-existent service

	time.Sleep(5 * time.Second)

	db, err := database.Connect(cfg)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	result := services.HealthCheck(cfg, db)

	if result.Database != "ok" {
		t.Errorf("Expected database to be ok, got: %s", result.Database)
	}

	if result.Authorizer != "unreachable" {
		t.Errorf("Expected authorizer to be unreachable, got: %s", result.Authorizer)
	}

	if result.Status != "unhealthy" {
		t.Errorf("Expected status to be unhealthy, got: %s", result.Status)
	}
}
