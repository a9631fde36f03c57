package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	swagger "github.com/gofiber/swagger"
	"github.com/matlab-research/ontserve/data"
	"github.com/matlab-research/ontserve/internal/config"
	"github.com/matlab-research/ontserve/internal/database"
	"github.com/matlab-research/ontserve/internal/handlers"
	"github.com/matlab-research/ontserve/internal/middleware"
	"github.com/matlab-research/ontserve/internal/services"
	"github.com/matlab-research/ontserve/internal/types"
	"gorm.io/gorm"

	_ "github.com/matlab-research/ontserve/docs/api" // Swagger docs
)

// @title OntServe API
// @version 1.0.0
// @description Ontology version and concept approval data service
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url https://github.com/matlab-research/ontserve

// @license.name AGPL-3.0
// @license.url https://www.gnu.org/licenses/agpl-3.0.html

// @host localhost:3000
// @BasePath /api
// @schemes http https

// @securityDefinitions.apikey CookieAuth
// @in cookie
// @name cookie_session

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Connect to database (writer pool)
	appDB, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to app database: %v", err)
	}
	defer database.Close(appDB)

	// Connect to database (reader pool)
	readDB, err := database.ConnectReadOnly(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to read database: %v", err)
	}
	defer database.Close(readDB)

	// Run auto-migrations
	if err := database.AutoMigrate(appDB); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// External collaborators
	var parser services.OntologyParser
	if p := services.NewHTTPParser(cfg.ParserURL); p != nil {
		parser = p
	}
	var embedder services.Embedder
	if e := services.NewHTTPEmbedder(cfg.EmbedderURL, cfg.EmbeddingDim); e != nil {
		embedder = e
	}

	// Seed the default domain with the embedded base ontology
	if cfg.SeedOntology {
		if err := seedBaseOntology(appDB, cfg, parser); err != nil {
			log.Fatalf("Failed to seed base ontology: %v", err)
		}
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler:          customErrorHandler,
		DisableStartupMessage: false,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(compress.New())

	// Prometheus metrics
	prometheus := fiberprometheus.New("ontserve")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)

	// Swagger documentation
	app.Get("/swagger/*", swagger.HandlerDefault)

	// Health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		result := services.HealthCheck(cfg, appDB)
		status := fiber.StatusOK
		if result.Status != "healthy" {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(result)
	})

	// API routes under /api
	api := app.Group("/api")
	api.Use(middleware.VersionMiddleware())

	// Create handlers
	docHandler := &handlers.DocumentHandler{DB: appDB, ReadDB: readDB, Cfg: cfg, Parser: parser}
	conceptHandler := &handlers.ConceptHandler{DB: appDB, ReadDB: readDB, Cfg: cfg, Embedder: embedder}
	auditHandler := &handlers.AuditHandler{ReadDB: readDB}

	// Document and version routes (public reads, user writes)
	ontology := api.Group("/ontology")
	ontology.Get("/documents", docHandler.ListDocuments)
	ontology.Get("/:domain/:document/versions", docHandler.ListVersions)
	ontology.Get("/:domain/:document/versions/:selector", docHandler.GetVersion)
	ontology.Post("/:domain/:document/versions", middleware.AuthUser(), docHandler.SaveVersion)

	// Concept routes
	concepts := api.Group("/concepts")
	concepts.Get("/stats", conceptHandler.GetConceptStats)
	concepts.Get("/", conceptHandler.ListConcepts)
	concepts.Get("/:uuid", conceptHandler.GetConcept)
	concepts.Get("/:uuid/history", conceptHandler.GetConceptHistory)
	concepts.Get("/:uuid/similar", conceptHandler.GetSimilarConcepts)
	concepts.Get("/:uuid/triples", conceptHandler.GetConceptTriples)
	concepts.Post("/", middleware.AuthUser(), conceptHandler.SubmitConcept)
	concepts.Post("/:uuid/transition", middleware.AuthUser(), conceptHandler.TransitionConcept)
	concepts.Post("/:uuid/assign", middleware.AuthUser(), conceptHandler.AssignConcept)
	concepts.Post("/:uuid/reopen", middleware.AuthAdmin(), conceptHandler.ReopenConcept)

	// Workflow queue
	api.Get("/workflows/pending", middleware.AuthUser(), conceptHandler.ListPendingWorkflows)

	// Triple routes
	api.Get("/triples", conceptHandler.QueryTriples)
	api.Post("/triples/:id/supersede", middleware.AuthAdmin(), conceptHandler.SupersedeTriple)

	// Audit routes (admin only)
	api.Get("/audit", middleware.AuthAdmin(), auditHandler.QueryAudit)

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"status":    fiber.StatusNotFound,
			"message":   "[404] Resource Not Found",
			"ok":        false,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"url":       c.OriginalURL(),
		})
	})

	// Authorizer initializes on first authenticated request
	log.Printf("Authorizer will be initialized on first authenticated request")

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		log.Println("Gracefully shutting down...")
		_ = app.Shutdown()
	}()

	// Start server
	port := cfg.Port
	log.Printf("Starting server on port %s", port)
	if err := app.Listen(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	log.Println("Server stopped")
}

// seedBaseOntology saves the embedded base ontology as the first version of
// the default domain's core document. Re-running against an unchanged
// document is a no-op via the content hash.
func seedBaseOntology(db *gorm.DB, cfg *config.Config, parser services.OntologyParser) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := services.SaveVersion(ctx, db, cfg, parser,
		services.DocumentRef{Domain: cfg.DefaultDomain, Name: "core"},
		services.SaveVersionInput{
			Content:       data.BaseOntology,
			Author:        "system",
			ChangeSummary: "seed base ontology",
		})
	if err != nil {
		return err
	}
	if result.Created {
		log.Printf("Seeded %s/core at version %d", cfg.DefaultDomain, result.VersionNumber)
	}
	return nil
}

// customErrorHandler handles errors globally
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := err.Error()
	errorType := "unknown"

	// Check if it's a Fiber error
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	// Check for auth errors
	if e, ok := err.(*types.CustomError); ok {
		code = e.Code
		message = e.Message
		errorType = e.Type
	}

	// Check for version errors
	versionError := false
	if code == fiber.StatusConflict || (message != "" && len(message) >= 9 && message[:9] == "E_VERSION") {
		versionError = true
		errorType = "version"
		code = fiber.StatusConflict
	}

	return c.Status(code).JSON(fiber.Map{
		"status":       code,
		"message":      message,
		"ok":           false,
		"versionError": versionError,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
		"url":          c.OriginalURL(),
		"type":         errorType,
	})
}
