package models

import (
	"time"
)

// Workflow states. A workflow opens in submitted when its concept enters
// candidate status and closes when a decision is recorded.
const (
	WorkflowStateSubmitted   = "submitted"
	WorkflowStateUnderReview = "under_review"
	WorkflowStateApproved    = "approved"
	WorkflowStateRejected    = "rejected"
	WorkflowStateDeprecated  = "deprecated"
	WorkflowStateReopened    = "reopened"
)

// Workflow priorities, 1 = highest.
const (
	PriorityHighest = 1
	PriorityDefault = 3
	PriorityLowest  = 5
)

// ApprovalWorkflow tracks the review lifecycle of one concept. A concept can
// accumulate more than one workflow over time (reopen creates state history
// on the same row; superseding revisions open fresh rows).
type ApprovalWorkflow struct {
	WorkflowID    uint64 `gorm:"primaryKey;autoIncrement"`
	ConceptID     uint64 `gorm:"not null;index"`
	WorkflowType  string `gorm:"size:50;not null;default:standard"`
	CurrentState  string `gorm:"size:50;not null"`
	PreviousState string `gorm:"size:50"`
	AssignedTo    string `gorm:"size:255;index"`
	Priority      int    `gorm:"not null;default:3"`
	Decision      string `gorm:"size:50"`
	DecisionReason string `gorm:"type:text"`
	DecidedBy     string `gorm:"size:255"`
	DecidedAt     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Closed reports whether a decision has been recorded.
func (w *ApprovalWorkflow) Closed() bool {
	return w.Decision != ""
}

// TableName overrides the table name for ApprovalWorkflow
func (ApprovalWorkflow) TableName() string {
	return "approval_workflows"
}
