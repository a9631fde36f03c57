package unit_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/matlab-research/ontserve/internal/models"
	"github.com/matlab-research/ontserve/internal/services"
	"github.com/matlab-research/ontserve/internal/types"
	"github.com/matlab-research/ontserve/tests/helpers"
)

func TestCosine(t *testing.T) {
	a := types.Vector{1, 0, 0, 0}
	b := types.Vector{0, 1, 0, 0}

	sim, err := services.Cosine(a, a)
	if err != nil {
		t.Fatalf("Cosine failed: %v", err)
	}
	if math.Abs(sim-1) > 1e-9 {
		t.Errorf("Expected self-similarity 1, got %f", sim)
	}

	sim, _ = services.Cosine(a, b)
	if math.Abs(sim) > 1e-9 {
		t.Errorf("Expected orthogonal similarity 0, got %f", sim)
	}

	if _, err := services.Cosine(a, types.Vector{1, 0}); !errors.Is(err, types.ErrDimensionMismatch) {
		t.Errorf("Expected ErrDimensionMismatch, got %v", err)
	}

	sim, err = services.Cosine(a, types.Vector{0, 0, 0, 0})
	if err != nil || sim != 0 {
		t.Errorf("Expected zero-norm similarity 0 without error, got %f, %v", sim, err)
	}
}

func TestFindNearestRanking(t *testing.T) {
	db := helpers.SetupTestDB(t)
	ctx := context.Background()
	domain := helpers.CreateTestDomain(t, db, "engineering-ethics")

	helpers.CreateTestConcept(t, db, domain.DomainID, "exact", models.StatusApproved, types.Vector{1, 0, 0, 0})
	helpers.CreateTestConcept(t, db, domain.DomainID, "close", models.StatusApproved, types.Vector{1, 1, 0, 0})
	helpers.CreateTestConcept(t, db, domain.DomainID, "far", models.StatusApproved, types.Vector{0, 0, 1, 0})

	neighbors, err := services.FindNearest(ctx, db, types.Vector{1, 0, 0, 0}, domain.DomainID, 10, services.NearestOptions{})
	if err != nil {
		t.Fatalf("FindNearest failed: %v", err)
	}
	if len(neighbors) != 3 {
		t.Fatalf("Expected 3 neighbors, got %d", len(neighbors))
	}

	wantOrder := []string{"exact", "close", "far"}
	for i, n := range neighbors {
		if n.Concept.Label != wantOrder[i] {
			t.Errorf("Position %d: expected %s, got %s", i, wantOrder[i], n.Concept.Label)
		}
	}
	if neighbors[0].Similarity < neighbors[1].Similarity || neighbors[1].Similarity < neighbors[2].Similarity {
		t.Error("Expected descending similarity order")
	}

	// Repeating the query over unchanged data yields the same ranking.
	again, err := services.FindNearest(ctx, db, types.Vector{1, 0, 0, 0}, domain.DomainID, 10, services.NearestOptions{})
	if err != nil {
		t.Fatalf("Repeat FindNearest failed: %v", err)
	}
	for i := range again {
		if again[i].Concept.ConceptID != neighbors[i].Concept.ConceptID {
			t.Fatalf("Ranking not deterministic at position %d", i)
		}
	}
}

func TestFindNearestTieBreaksByAge(t *testing.T) {
	db := helpers.SetupTestDB(t)
	ctx := context.Background()
	domain := helpers.CreateTestDomain(t, db, "engineering-ethics")

	first := helpers.CreateTestConcept(t, db, domain.DomainID, "older", models.StatusApproved, types.Vector{1, 0, 0, 0})
	helpers.CreateTestConcept(t, db, domain.DomainID, "newer", models.StatusApproved, types.Vector{1, 0, 0, 0})

	neighbors, err := services.FindNearest(ctx, db, types.Vector{1, 0, 0, 0}, domain.DomainID, 2, services.NearestOptions{})
	if err != nil {
		t.Fatalf("FindNearest failed: %v", err)
	}
	if len(neighbors) != 2 {
		t.Fatalf("Expected 2 neighbors, got %d", len(neighbors))
	}
	if neighbors[0].Concept.ConceptID != first.ConceptID {
		t.Error("Expected the older concept to win the exact tie")
	}
}

func TestFindNearestScoping(t *testing.T) {
	db := helpers.SetupTestDB(t)
	ctx := context.Background()
	engineering := helpers.CreateTestDomain(t, db, "engineering-ethics")
	medical := helpers.CreateTestDomain(t, db, "medical-ethics")

	helpers.CreateTestConcept(t, db, engineering.DomainID, "local", models.StatusApproved, types.Vector{1, 0, 0, 0})
	helpers.CreateTestConcept(t, db, medical.DomainID, "foreign", models.StatusApproved, types.Vector{1, 0, 0, 0})
	helpers.CreateTestConcept(t, db, engineering.DomainID, "pending", models.StatusCandidate, types.Vector{1, 0, 0, 0})

	neighbors, err := services.FindNearest(ctx, db, types.Vector{1, 0, 0, 0}, engineering.DomainID, 10, services.NearestOptions{
		Statuses: []models.ConceptStatus{models.StatusApproved},
	})
	if err != nil {
		t.Fatalf("FindNearest failed: %v", err)
	}
	if len(neighbors) != 1 || neighbors[0].Concept.Label != "local" {
		t.Errorf("Expected only the local approved concept, got %d results", len(neighbors))
	}

	// Opting into all domains widens the scan.
	neighbors, err = services.FindNearest(ctx, db, types.Vector{1, 0, 0, 0}, engineering.DomainID, 10, services.NearestOptions{
		Statuses:          []models.ConceptStatus{models.StatusApproved},
		IncludeAllDomains: true,
	})
	if err != nil {
		t.Fatalf("FindNearest failed: %v", err)
	}
	if len(neighbors) != 2 {
		t.Errorf("Expected 2 cross-domain results, got %d", len(neighbors))
	}
}

func TestFindNearestSkipsUnusableVectors(t *testing.T) {
	db := helpers.SetupTestDB(t)
	ctx := context.Background()
	domain := helpers.CreateTestDomain(t, db, "engineering-ethics")

	helpers.CreateTestConcept(t, db, domain.DomainID, "good", models.StatusApproved, types.Vector{1, 0, 0, 0})
	helpers.CreateTestConcept(t, db, domain.DomainID, "stale", models.StatusApproved, types.Vector{1, 0}) // pre-model-change dimension
	helpers.CreateTestConcept(t, db, domain.DomainID, "missing", models.StatusApproved, nil)

	neighbors, err := services.FindNearest(ctx, db, types.Vector{1, 0, 0, 0}, domain.DomainID, 10, services.NearestOptions{})
	if err != nil {
		t.Fatalf("FindNearest failed: %v", err)
	}
	if len(neighbors) != 1 || neighbors[0].Concept.Label != "good" {
		t.Errorf("Expected only the matching-dimension concept, got %d results", len(neighbors))
	}

	if _, err := services.FindNearest(ctx, db, nil, domain.DomainID, 10, services.NearestOptions{}); !errors.Is(err, types.ErrDimensionMismatch) {
		t.Errorf("Expected ErrDimensionMismatch for empty query, got %v", err)
	}
}

func TestFindSimilarViaConcept(t *testing.T) {
	db := helpers.SetupTestDB(t)
	ctx := context.Background()
	domain := helpers.CreateTestDomain(t, db, "engineering-ethics")

	anchor := helpers.CreateTestConcept(t, db, domain.DomainID, "anchor", models.StatusApproved, types.Vector{1, 0, 0, 0})
	helpers.CreateTestConcept(t, db, domain.DomainID, "peer", models.StatusApproved, types.Vector{1, 0.5, 0, 0})
	unembedded := helpers.CreateTestConcept(t, db, domain.DomainID, "blank", models.StatusApproved, nil)

	neighbors, err := services.FindSimilar(ctx, db, anchor.UUID, 10, false)
	if err != nil {
		t.Fatalf("FindSimilar failed: %v", err)
	}
	// The anchor itself is excluded.
	for _, n := range neighbors {
		if n.Concept.ConceptID == anchor.ConceptID {
			t.Error("FindSimilar must exclude the anchor concept")
		}
	}
	if len(neighbors) != 1 || neighbors[0].Concept.Label != "peer" {
		t.Errorf("Expected the single embedded peer, got %d results", len(neighbors))
	}

	neighbors, err = services.FindSimilar(ctx, db, unembedded.UUID, 10, false)
	if err != nil {
		t.Fatalf("FindSimilar on unembedded concept failed: %v", err)
	}
	if len(neighbors) != 0 {
		t.Errorf("Expected no neighbors for a concept without embeddings, got %d", len(neighbors))
	}
}
