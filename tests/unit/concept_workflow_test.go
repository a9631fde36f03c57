package unit_test

import (
	"context"
	"errors"
	"testing"

	"github.com/matlab-research/ontserve/internal/models"
	"github.com/matlab-research/ontserve/internal/services"
	"github.com/matlab-research/ontserve/internal/types"
	"github.com/matlab-research/ontserve/tests/helpers"
)

func submitInput(label string, confidence float64) services.SubmitConceptInput {
	return services.SubmitConceptInput{
		Domain:          "engineering-ethics",
		Label:           label,
		PrimaryType:     "Principle",
		ConfidenceScore: &confidence,
		SubmittedBy:     "extractor",
	}
}

func TestSubmitHighConfidenceAutoApproves(t *testing.T) {
	db := helpers.SetupTestDB(t)
	cfg := helpers.TestConfig()
	ctx := context.Background()

	result, err := services.SubmitCandidate(ctx, db, cfg, nil, submitInput("Public Safety", 0.95))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if result.Duplicate {
		t.Fatal("Unexpected duplicate flag")
	}
	if result.RoutedTo != models.StatusApproved {
		t.Fatalf("Expected auto-approval, routed to %s", result.RoutedTo)
	}

	concept, err := services.GetConcept(ctx, db, result.Concept.UUID)
	if err != nil {
		t.Fatalf("GetConcept failed: %v", err)
	}
	if concept.Status != models.StatusApproved {
		t.Errorf("Expected approved, got %s", concept.Status)
	}
	if concept.ApprovedBy == nil || *concept.ApprovedBy != "system" {
		t.Error("Expected system approval attribution")
	}

	// Approval materializes at least the classification facts.
	triples, err := services.QueryTriplesByConcept(ctx, db, concept.ConceptID, false)
	if err != nil {
		t.Fatalf("QueryTriplesByConcept failed: %v", err)
	}
	if len(triples) != 2 {
		t.Fatalf("Expected 2 derived triples, got %d", len(triples))
	}

	// The workflow closed with the decision.
	var wf models.ApprovalWorkflow
	if err := db.Where("concept_id = ?", concept.ConceptID).First(&wf).Error; err != nil {
		t.Fatalf("Workflow lookup failed: %v", err)
	}
	if !wf.Closed() || wf.Decision != "approved" {
		t.Errorf("Expected closed approved workflow, got decision %q", wf.Decision)
	}
}

func TestSubmitLowConfidenceAutoRejects(t *testing.T) {
	db := helpers.SetupTestDB(t)
	cfg := helpers.TestConfig()
	ctx := context.Background()

	result, err := services.SubmitCandidate(ctx, db, cfg, nil, submitInput("Dubious Duty", 0.2))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if result.RoutedTo != models.StatusRejected {
		t.Fatalf("Expected auto-rejection, routed to %s", result.RoutedTo)
	}

	// Rejection must not materialize triples.
	triples, _ := services.QueryTriplesByConcept(ctx, db, result.Concept.ConceptID, false)
	if len(triples) != 0 {
		t.Errorf("Expected no triples for rejected concept, got %d", len(triples))
	}
}

func TestSubmitMidConfidenceAwaitsReview(t *testing.T) {
	db := helpers.SetupTestDB(t)
	cfg := helpers.TestConfig()
	ctx := context.Background()

	result, err := services.SubmitCandidate(ctx, db, cfg, nil, submitInput("Gray Area", 0.6))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if result.RoutedTo != models.StatusCandidate {
		t.Errorf("Expected candidate awaiting review, routed to %s", result.RoutedTo)
	}
}

func TestSubmitValidation(t *testing.T) {
	db := helpers.SetupTestDB(t)
	cfg := helpers.TestConfig()
	ctx := context.Background()

	input := submitInput("Bad Type", 0.6)
	input.PrimaryType = "Widget"
	if _, err := services.SubmitCandidate(ctx, db, cfg, nil, input); !errors.Is(err, types.ErrInvalidType) {
		t.Errorf("Expected ErrInvalidType, got %v", err)
	}

	input = submitInput("Bad Confidence", 1.5)
	if _, err := services.SubmitCandidate(ctx, db, cfg, nil, input); !errors.Is(err, types.ErrInvalidConfidence) {
		t.Errorf("Expected ErrInvalidConfidence, got %v", err)
	}

	input = submitInput("Bad Embedding", 0.6)
	input.LabelEmbedding = types.Vector{1, 0} // wrong dimension
	if _, err := services.SubmitCandidate(ctx, db, cfg, nil, input); !errors.Is(err, types.ErrDimensionMismatch) {
		t.Errorf("Expected ErrDimensionMismatch, got %v", err)
	}
}

func TestDuplicateDetectionAndOverride(t *testing.T) {
	db := helpers.SetupTestDB(t)
	cfg := helpers.TestConfig()
	ctx := context.Background()

	domain := helpers.CreateTestDomain(t, db, "engineering-ethics")
	helpers.CreateTestConcept(t, db, domain.DomainID, "Public Safety", models.StatusApproved, helpers.UnitVector(0))

	input := submitInput("Safety of the Public", 0.6)
	input.LabelEmbedding = helpers.UnitVector(0)

	result, err := services.SubmitCandidate(ctx, db, cfg, nil, input)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !result.Duplicate {
		t.Fatal("Expected duplicate detection")
	}
	if result.Concept != nil {
		t.Error("Duplicate submissions must not store a concept")
	}
	if len(result.Nearest) == 0 || result.Nearest[0].Similarity < cfg.DuplicateThreshold {
		t.Error("Expected the nearest approved concept above the duplicate threshold")
	}

	input.Override = true
	result, err = services.SubmitCandidate(ctx, db, cfg, nil, input)
	if err != nil {
		t.Fatalf("Override submit failed: %v", err)
	}
	if result.Duplicate || result.Concept == nil {
		t.Error("Override should bypass the duplicate check")
	}
}

func TestTransitionStateMachine(t *testing.T) {
	db := helpers.SetupTestDB(t)
	cfg := helpers.TestConfig()
	ctx := context.Background()

	result, err := services.SubmitCandidate(ctx, db, cfg, nil, submitInput("Reviewable", 0.6))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	id := result.Concept.UUID

	// Rejection without a reason is refused.
	if _, err := services.Transition(ctx, db, cfg, id, models.StatusRejected, "reviewer", ""); !errors.Is(err, types.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition for empty rejection reason, got %v", err)
	}

	concept, err := services.Transition(ctx, db, cfg, id, models.StatusApproved, "reviewer", "looks right")
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if concept.Status != models.StatusApproved {
		t.Errorf("Expected approved, got %s", concept.Status)
	}

	// An approved concept cannot be rejected afterwards. The losing
	// reviewer of a race sees this as soon as the winner commits.
	if _, err := services.Transition(ctx, db, cfg, id, models.StatusRejected, "other-reviewer", "disagree"); !errors.Is(err, types.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition after approval, got %v", err)
	}

	// Deprecation is the only edge out of approved.
	if _, err := services.Transition(ctx, db, cfg, id, models.StatusDeprecated, "admin", "superseded"); err != nil {
		t.Fatalf("Deprecate failed: %v", err)
	}

	// Terminal.
	if _, err := services.Transition(ctx, db, cfg, id, models.StatusApproved, "admin", ""); !errors.Is(err, types.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition from deprecated, got %v", err)
	}

	if _, err := services.Transition(ctx, db, cfg, "no-such-uuid", models.StatusApproved, "x", ""); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestReopenRejectedConcept(t *testing.T) {
	db := helpers.SetupTestDB(t)
	cfg := helpers.TestConfig()
	ctx := context.Background()

	result, err := services.SubmitCandidate(ctx, db, cfg, nil, submitInput("Contested", 0.6))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	id := result.Concept.UUID

	if _, err := services.Transition(ctx, db, cfg, id, models.StatusRejected, "reviewer", "too vague"); err != nil {
		t.Fatalf("Reject failed: %v", err)
	}

	// Reopen demands a justification.
	if _, err := services.Reopen(ctx, db, cfg, id, "admin", " "); !errors.Is(err, types.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition for blank justification, got %v", err)
	}

	concept, err := services.Reopen(ctx, db, cfg, id, "admin", "new evidence from revised code of ethics")
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	if concept.Status != models.StatusUnderReview {
		t.Errorf("Expected under_review after reopen, got %s", concept.Status)
	}

	// The reopened concept can complete review normally.
	if _, err := services.Transition(ctx, db, cfg, id, models.StatusApproved, "reviewer", "accepted on reopen"); err != nil {
		t.Fatalf("Approve after reopen failed: %v", err)
	}

	// A candidate that was never decided cannot be reopened.
	other, _ := services.SubmitCandidate(ctx, db, cfg, nil, submitInput("Undecided", 0.6))
	if _, err := services.Reopen(ctx, db, cfg, other.Concept.UUID, "admin", "why"); !errors.Is(err, types.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition reopening a candidate, got %v", err)
	}
}

func TestConceptHistoryAndAuditTrail(t *testing.T) {
	db := helpers.SetupTestDB(t)
	cfg := helpers.TestConfig()
	ctx := context.Background()

	result, err := services.SubmitCandidate(ctx, db, cfg, nil, submitInput("Tracked", 0.6))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	id := result.Concept.UUID

	if _, err := services.Transition(ctx, db, cfg, id, models.StatusUnderReview, "reviewer", "taking a look"); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if _, err := services.Transition(ctx, db, cfg, id, models.StatusApproved, "reviewer", "solid"); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}

	history, err := services.ConceptHistory(ctx, db, id)
	if err != nil {
		t.Fatalf("ConceptHistory failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("Expected 3 snapshots, got %d", len(history))
	}
	wantStatuses := []models.ConceptStatus{models.StatusCandidate, models.StatusUnderReview, models.StatusApproved}
	for i, snap := range history {
		if snap.Status != wantStatuses[i] {
			t.Errorf("Snapshot %d: expected %s, got %s", i, wantStatuses[i], snap.Status)
		}
		if snap.VersionNumber != uint64(i+1) {
			t.Errorf("Snapshot %d: expected version %d, got %d", i, i+1, snap.VersionNumber)
		}
	}

	entries, err := services.QueryAudit(ctx, db, services.AuditFilter{EntityName: "concepts", RecordID: id}, 10, 0)
	if err != nil {
		t.Fatalf("QueryAudit failed: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("Expected 3 audit entries (create plus 2 transitions), got %d", len(entries))
	}
	if entries[0].Action != models.AuditActionCreate {
		t.Errorf("Expected first audit action create, got %s", entries[0].Action)
	}
}

func TestAssignWorkflow(t *testing.T) {
	db := helpers.SetupTestDB(t)
	cfg := helpers.TestConfig()
	ctx := context.Background()

	result, err := services.SubmitCandidate(ctx, db, cfg, nil, submitInput("Assignable", 0.6))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	wf, err := services.AssignWorkflow(ctx, db, cfg, result.Concept.UUID, "reviewer@example.com", models.PriorityHighest, "lead")
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if wf.AssignedTo != "reviewer@example.com" || wf.Priority != models.PriorityHighest {
		t.Errorf("Unexpected assignment: %+v", wf)
	}
	if wf.CurrentState != models.WorkflowStateUnderReview {
		t.Errorf("Expected under_review workflow state, got %s", wf.CurrentState)
	}

	concept, _ := services.GetConcept(ctx, db, result.Concept.UUID)
	if concept.Status != models.StatusUnderReview {
		t.Errorf("Expected concept under_review, got %s", concept.Status)
	}

	pending, err := services.PendingWorkflows(ctx, db, "reviewer@example.com", 10)
	if err != nil {
		t.Fatalf("PendingWorkflows failed: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("Expected 1 pending workflow, got %d", len(pending))
	}
}
