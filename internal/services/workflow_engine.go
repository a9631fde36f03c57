package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/matlab-research/ontserve/internal/config"
	"github.com/matlab-research/ontserve/internal/models"
	"github.com/matlab-research/ontserve/internal/types"
	"gorm.io/gorm"
)

// systemActor attributes automated routing decisions.
const systemActor = "system"

// RouteCandidate applies the confidence thresholds to a freshly submitted
// candidate. High confidence auto-approves, low confidence auto-rejects,
// everything between waits for a reviewer. A candidate without a confidence
// score is never routed automatically. Returns the status the concept ended
// in.
func RouteCandidate(ctx context.Context, db *gorm.DB, cfg *config.Config, concept *models.Concept) (models.ConceptStatus, error) {
	if concept.ConfidenceScore == nil {
		return concept.Status, nil
	}

	score := *concept.ConfidenceScore
	switch {
	case score >= cfg.AutoApproveThreshold:
		updated, err := Transition(ctx, db, cfg, concept.UUID, models.StatusApproved,
			systemActor, fmt.Sprintf("auto-approved: confidence %.2f", score))
		if err != nil {
			return concept.Status, err
		}
		*concept = *updated
		return updated.Status, nil
	case score < cfg.MinReviewThreshold:
		updated, err := Transition(ctx, db, cfg, concept.UUID, models.StatusRejected,
			systemActor, fmt.Sprintf("auto-rejected: confidence %.2f below review floor", score))
		if err != nil {
			return concept.Status, err
		}
		*concept = *updated
		return updated.Status, nil
	}
	return concept.Status, nil
}

// AssignWorkflow hands a pending candidate to a reviewer, moving the
// concept to under_review when it is still a candidate.
func AssignWorkflow(ctx context.Context, db *gorm.DB, cfg *config.Config, conceptUUID, assignee string, priority int, actor string) (*models.ApprovalWorkflow, error) {
	if assignee == "" {
		return nil, fmt.Errorf("assignee is required")
	}
	if priority < models.PriorityHighest || priority > models.PriorityLowest {
		priority = models.PriorityDefault
	}

	concept, err := GetConcept(ctx, db, conceptUUID)
	if err != nil {
		return nil, err
	}

	if concept.Status == models.StatusCandidate {
		updated, err := Transition(ctx, db, cfg, conceptUUID, models.StatusUnderReview,
			actor, fmt.Sprintf("assigned to %s", assignee))
		if err != nil {
			return nil, err
		}
		concept = updated
	} else if concept.Status != models.StatusUnderReview {
		return nil, fmt.Errorf("%w: cannot assign a %s concept", types.ErrInvalidTransition, concept.Status)
	}

	var workflow models.ApprovalWorkflow
	err = runInTx(ctx, db, cfg, func(tx *gorm.DB) error {
		wf, err := openWorkflowFor(tx, concept.ConceptID)
		if err != nil {
			return err
		}
		res := tx.Model(&models.ApprovalWorkflow{}).
			Where("workflow_id = ?", wf.WorkflowID).
			Updates(map[string]interface{}{
				"previous_state": wf.CurrentState,
				"current_state":  models.WorkflowStateUnderReview,
				"assigned_to":    assignee,
				"priority":       priority,
			})
		if res.Error != nil {
			return res.Error
		}
		wf.PreviousState = wf.CurrentState
		wf.CurrentState = models.WorkflowStateUnderReview
		wf.AssignedTo = assignee
		wf.Priority = priority
		workflow = *wf
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &workflow, nil
}

// Reopen moves a rejected or deprecated concept back to under_review. This
// is an administrative escape hatch outside the normal state machine; it
// demands a justification and leaves the full trail in snapshots, the
// workflow row and the audit log.
func Reopen(ctx context.Context, db *gorm.DB, cfg *config.Config, conceptUUID, actor, reason string) (*models.Concept, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("%w: reopening requires a justification", types.ErrInvalidTransition)
	}

	var updated models.Concept
	err := runInTx(ctx, db, cfg, func(tx *gorm.DB) error {
		var concept models.Concept
		err := lockForUpdate(tx).Where("uuid = ?", conceptUUID).First(&concept).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: concept %s", types.ErrNotFound, conceptUUID)
			}
			return err
		}

		if concept.Status != models.StatusRejected && concept.Status != models.StatusDeprecated {
			return fmt.Errorf("%w: cannot reopen a %s concept", types.ErrInvalidTransition, concept.Status)
		}

		before := concept
		now := time.Now().UTC()
		res := tx.Model(&models.Concept{}).
			Where("concept_id = ? AND version = ?", concept.ConceptID, concept.Version).
			Updates(map[string]interface{}{
				"status":     models.StatusUnderReview,
				"version":    concept.Version + 1,
				"updated_by": actor,
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return types.ErrConflict
		}

		concept.Status = models.StatusUnderReview
		concept.Version++
		concept.UpdatedBy = actor
		concept.UpdatedAt = now

		if err := snapshotConcept(tx, &concept, []string{"status"}, reason, actor); err != nil {
			return err
		}

		// The closed workflow reopens in place: its decision clears and the
		// state history shows the reversal.
		var wf models.ApprovalWorkflow
		err = tx.Where("concept_id = ?", concept.ConceptID).
			Order("workflow_id DESC").First(&wf).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err == nil {
			res := tx.Model(&models.ApprovalWorkflow{}).
				Where("workflow_id = ?", wf.WorkflowID).
				Updates(map[string]interface{}{
					"previous_state":  wf.CurrentState,
					"current_state":   models.WorkflowStateReopened,
					"decision":        "",
					"decision_reason": reason,
					"decided_by":      "",
					"decided_at":      nil,
				})
			if res.Error != nil {
				return res.Error
			}
		} else if err := openWorkflow(tx, concept.ConceptID); err != nil {
			return err
		}

		if err := recordAudit(tx, "concepts", concept.UUID,
			models.AuditActionUpdate, &before, &concept, actor); err != nil {
			return err
		}

		updated = concept
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// PendingWorkflows lists open workflows, highest priority first, optionally
// filtered by assignee.
func PendingWorkflows(ctx context.Context, db *gorm.DB, assignee string, limit int) ([]models.ApprovalWorkflow, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	q := db.WithContext(ctx).
		Where("decision = ? OR decision IS NULL", "")
	if assignee != "" {
		q = q.Where("assigned_to = ?", assignee)
	}

	var workflows []models.ApprovalWorkflow
	err := q.Order("priority ASC, created_at ASC").
		Limit(limit).Find(&workflows).Error
	if err != nil {
		return nil, err
	}
	return workflows, nil
}

// openWorkflow creates the submitted workflow row for a new candidate.
func openWorkflow(tx *gorm.DB, conceptID uint64) error {
	workflow := models.ApprovalWorkflow{
		ConceptID:    conceptID,
		WorkflowType: "standard",
		CurrentState: models.WorkflowStateSubmitted,
		Priority:     models.PriorityDefault,
	}
	return tx.Create(&workflow).Error
}

// openWorkflowFor returns the newest open workflow of a concept.
func openWorkflowFor(tx *gorm.DB, conceptID uint64) (*models.ApprovalWorkflow, error) {
	var wf models.ApprovalWorkflow
	err := tx.Where("concept_id = ? AND (decision = ? OR decision IS NULL)", conceptID, "").
		Order("workflow_id DESC").First(&wf).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: no open workflow for concept %d", types.ErrNotFound, conceptID)
		}
		return nil, err
	}
	return &wf, nil
}

// recordWorkflowDecision closes the concept's open workflow with the given
// decision. Transitions on a concept without an open workflow still
// succeed: the concept rows are the source of truth, workflows are the
// review ledger.
func recordWorkflowDecision(tx *gorm.DB, conceptID uint64, decision, reason, actor string) error {
	wf, err := openWorkflowFor(tx, conceptID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			log.Printf("workflow engine: no open workflow for concept %d, decision %s unrecorded", conceptID, decision)
			return nil
		}
		return err
	}

	now := time.Now().UTC()
	res := tx.Model(&models.ApprovalWorkflow{}).
		Where("workflow_id = ?", wf.WorkflowID).
		Updates(map[string]interface{}{
			"previous_state":  wf.CurrentState,
			"current_state":   decision,
			"decision":        decision,
			"decision_reason": reason,
			"decided_by":      actor,
			"decided_at":      now,
		})
	return res.Error
}
