package unit_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/matlab-research/ontserve/internal/config"
	"github.com/matlab-research/ontserve/internal/handlers"
	"github.com/matlab-research/ontserve/tests/helpers"
	"gorm.io/gorm"
)

func setupTestApp(t *testing.T) (*fiber.App, *gorm.DB, *config.Config) {
	db := helpers.SetupTestDB(t)
	cfg := helpers.TestConfig()

	app := fiber.New()
	docHandler := &handlers.DocumentHandler{DB: db, ReadDB: db, Cfg: cfg}
	conceptHandler := &handlers.ConceptHandler{DB: db, ReadDB: db, Cfg: cfg}
	auditHandler := &handlers.AuditHandler{ReadDB: db}

	api := app.Group("/api")
	ontology := api.Group("/ontology")
	ontology.Get("/documents", docHandler.ListDocuments)
	ontology.Get("/:domain/:document/versions", docHandler.ListVersions)
	ontology.Get("/:domain/:document/versions/:selector", docHandler.GetVersion)
	ontology.Post("/:domain/:document/versions", docHandler.SaveVersion)

	concepts := api.Group("/concepts")
	concepts.Get("/:uuid", conceptHandler.GetConcept)
	concepts.Post("/", conceptHandler.SubmitConcept)
	concepts.Post("/:uuid/transition", conceptHandler.TransitionConcept)

	api.Get("/audit", auditHandler.QueryAudit)

	return app, db, cfg
}

func postJSON(t *testing.T, app *fiber.App, path string, payload interface{}) *map[string]interface{} {
	t.Helper()
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest("POST", path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response (status %d): %v", resp.StatusCode, err)
	}
	result["__status"] = float64(resp.StatusCode)
	return &result
}

func TestSaveVersionEndpoint(t *testing.T) {
	app, _, _ := setupTestApp(t)

	result := postJSON(t, app, "/api/ontology/engineering-ethics/core/versions", map[string]interface{}{
		"content": "eeo:A a eeo:Role .",
		"author":  "alice",
	})
	if (*result)["__status"] != float64(200) {
		t.Fatalf("Expected 200, got %v: %v", (*result)["__status"], result)
	}
	if (*result)["versionNumber"] != float64(1) || (*result)["created"] != true {
		t.Errorf("Expected created version 1, got %v", result)
	}

	// Identical content is a handler-visible no-op.
	result = postJSON(t, app, "/api/ontology/engineering-ethics/core/versions", map[string]interface{}{
		"content": "eeo:A a eeo:Role .",
		"author":  "alice",
	})
	if (*result)["created"] != false {
		t.Errorf("Expected no-op on identical content, got %v", result)
	}

	// Fetch it back.
	req := httptest.NewRequest("GET", "/api/ontology/engineering-ethics/core/versions/current", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("Expected 200 for current version, got %d", resp.StatusCode)
	}

	// Missing content is rejected before any service call.
	result = postJSON(t, app, "/api/ontology/engineering-ethics/core/versions", map[string]interface{}{"author": "alice"})
	if (*result)["__status"] != float64(400) {
		t.Errorf("Expected 400 for missing content, got %v", (*result)["__status"])
	}
}

func TestGetVersionNotFoundEndpoint(t *testing.T) {
	app, _, _ := setupTestApp(t)

	req := httptest.NewRequest("GET", "/api/ontology/nope/core/versions/current", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	if resp.StatusCode != 404 {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestSubmitConceptEndpoint(t *testing.T) {
	app, _, _ := setupTestApp(t)

	result := postJSON(t, app, "/api/concepts/", map[string]interface{}{
		"domain":          "engineering-ethics",
		"label":           "Public Safety",
		"primaryType":     "Principle",
		"confidenceScore": 0.95,
	})
	if (*result)["__status"] != float64(201) {
		t.Fatalf("Expected 201, got %v: %v", (*result)["__status"], result)
	}
	if (*result)["routedTo"] != "approved" {
		t.Errorf("Expected auto-approval routing, got %v", (*result)["routedTo"])
	}

	// A single triple object decodes the same as a one-element array.
	result = postJSON(t, app, "/api/concepts/", map[string]interface{}{
		"domain":          "engineering-ethics",
		"label":           "Hold Paramount Safety",
		"primaryType":     "Obligation",
		"confidenceScore": 0.95,
		"triples": map[string]interface{}{
			"subject":   "onto://engineering-ethics/hold-paramount-safety",
			"predicate": "eeo:bindsRole",
			"object":    "onto://engineering-ethics/engineer",
		},
	})
	if (*result)["__status"] != float64(201) {
		t.Fatalf("Expected 201 for single-object triples, got %v: %v", (*result)["__status"], result)
	}

	// Unknown primary type maps to 400.
	result = postJSON(t, app, "/api/concepts/", map[string]interface{}{
		"domain":      "engineering-ethics",
		"label":       "Widget",
		"primaryType": "Widget",
	})
	if (*result)["__status"] != float64(400) {
		t.Errorf("Expected 400 for invalid type, got %v", (*result)["__status"])
	}
}

func TestTransitionEndpoint(t *testing.T) {
	app, _, _ := setupTestApp(t)

	result := postJSON(t, app, "/api/concepts/", map[string]interface{}{
		"domain":          "engineering-ethics",
		"label":           "Reviewable",
		"primaryType":     "Obligation",
		"confidenceScore": 0.6,
	})
	concept := (*result)["concept"].(map[string]interface{})
	id := concept["UUID"].(string)

	result = postJSON(t, app, fmt.Sprintf("/api/concepts/%s/transition", id), map[string]interface{}{
		"status": "approved",
		"reason": "reviewed",
	})
	if (*result)["__status"] != float64(200) {
		t.Fatalf("Expected 200, got %v: %v", (*result)["__status"], result)
	}

	// Illegal edge maps to 422.
	result = postJSON(t, app, fmt.Sprintf("/api/concepts/%s/transition", id), map[string]interface{}{
		"status": "rejected",
		"reason": "second thoughts",
	})
	if (*result)["__status"] != float64(422) {
		t.Errorf("Expected 422 for illegal transition, got %v", (*result)["__status"])
	}

	// Unknown concept maps to 404.
	result = postJSON(t, app, "/api/concepts/does-not-exist/transition", map[string]interface{}{
		"status": "approved",
	})
	if (*result)["__status"] != float64(404) {
		t.Errorf("Expected 404 for unknown concept, got %v", (*result)["__status"])
	}
}

func TestAuditEndpoint(t *testing.T) {
	app, _, _ := setupTestApp(t)

	postJSON(t, app, "/api/ontology/engineering-ethics/core/versions", map[string]interface{}{
		"content": "eeo:A a eeo:Role .",
		"author":  "alice",
	})

	req := httptest.NewRequest("GET", "/api/audit?entity=document_versions", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	entries := result["entries"].([]interface{})
	if len(entries) != 1 {
		t.Errorf("Expected 1 audit entry, got %d", len(entries))
	}

	// Malformed time bounds are rejected.
	req = httptest.NewRequest("GET", "/api/audit?since=yesterday", nil)
	resp, _ = app.Test(req)
	if resp.StatusCode != 400 {
		t.Errorf("Expected 400 for malformed since, got %d", resp.StatusCode)
	}
}
