package models

import (
	"time"

	"github.com/matlab-research/ontserve/internal/types"
)

// ConceptStatus is the closed lifecycle enumeration for concepts. It is a
// validated string type, never an open column: every write goes through
// ParseConceptStatus or CanTransition.
type ConceptStatus string

const (
	StatusCandidate   ConceptStatus = "candidate"
	StatusUnderReview ConceptStatus = "under_review"
	StatusApproved    ConceptStatus = "approved"
	StatusRejected    ConceptStatus = "rejected"
	StatusDeprecated  ConceptStatus = "deprecated"
)

// conceptTransitions is the legal state machine. Reopening a rejected or
// deprecated concept to under_review is an administrative exception handled
// separately (see workflow engine Reopen) and is deliberately absent here.
var conceptTransitions = map[ConceptStatus][]ConceptStatus{
	StatusCandidate:   {StatusUnderReview, StatusApproved, StatusRejected},
	StatusUnderReview: {StatusApproved, StatusRejected},
	StatusApproved:    {StatusDeprecated},
	StatusRejected:    {},
	StatusDeprecated:  {},
}

// ParseConceptStatus validates a status string at the boundary.
func ParseConceptStatus(s string) (ConceptStatus, bool) {
	switch cs := ConceptStatus(s); cs {
	case StatusCandidate, StatusUnderReview, StatusApproved, StatusRejected, StatusDeprecated:
		return cs, true
	}
	return "", false
}

// CanTransition reports whether from -> to is a legal state machine edge.
func (from ConceptStatus) CanTransition(to ConceptStatus) bool {
	for _, next := range conceptTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status admits no further normal-flow edges.
func (s ConceptStatus) Terminal() bool {
	return len(conceptTransitions[s]) == 0
}

// PrimaryType is the fixed top-level classification of a concept.
type PrimaryType string

const (
	TypeRole       PrimaryType = "Role"
	TypePrinciple  PrimaryType = "Principle"
	TypeObligation PrimaryType = "Obligation"
	TypeState      PrimaryType = "State"
	TypeResource   PrimaryType = "Resource"
	TypeAction     PrimaryType = "Action"
	TypeEvent      PrimaryType = "Event"
	TypeCapability PrimaryType = "Capability"
	TypeConstraint PrimaryType = "Constraint"
)

// PrimaryTypes lists the closed enumeration, in display order.
var PrimaryTypes = []PrimaryType{
	TypeRole, TypePrinciple, TypeObligation, TypeState, TypeResource,
	TypeAction, TypeEvent, TypeCapability, TypeConstraint,
}

// ParsePrimaryType validates a primary type string at the boundary.
func ParsePrimaryType(s string) (PrimaryType, bool) {
	for _, pt := range PrimaryTypes {
		if PrimaryType(s) == pt {
			return pt, true
		}
	}
	return "", false
}

// Concept is a unit of domain knowledge, either imported or extracted.
// ConceptVersion rows snapshot every mutation; Version is bumped on each
// one and doubles as the optimistic guard for concurrent transitions.
type Concept struct {
	ConceptID        uint64        `gorm:"primaryKey;autoIncrement"`
	UUID             string        `gorm:"type:char(36);uniqueIndex;not null"`
	DomainID         uint64        `gorm:"not null;index:idx_concept_domain_status"`
	URI              string        `gorm:"size:500;not null"`
	Label            string        `gorm:"size:255;not null"`
	SemanticLabel    string        `gorm:"size:255"`
	PrimaryType      PrimaryType   `gorm:"size:50;not null;index"`
	Description      string        `gorm:"type:text"`
	Status           ConceptStatus `gorm:"size:50;not null;index:idx_concept_domain_status"`
	ConfidenceScore  *float64
	ExtractionMethod string `gorm:"size:100"`
	// Opaque extractor output. Stored and forwarded, never parsed.
	SourceText   string `gorm:"type:text"`
	LLMReasoning string `gorm:"type:text"`

	LabelEmbedding       types.Vector `gorm:"column:label_embedding"`
	DescriptionEmbedding types.Vector `gorm:"column:description_embedding"`

	// Extractor-supplied defining facts, held until approval materializes
	// them into triples.
	DefiningFacts JSON `gorm:"type:json"`

	Version    uint64  `gorm:"not null;default:1"`
	ParentID   *uint64 `gorm:"index"`
	ApprovedBy *string `gorm:"size:255"`
	ApprovedAt *time.Time
	CreatedBy  string `gorm:"size:255"`
	UpdatedBy  string `gorm:"size:255"`
	CreatedAt  time.Time `gorm:"index"`
	UpdatedAt  time.Time
}

// ConceptVersion is an immutable snapshot of a concept taken on every
// mutating change. It is never updated or deleted.
type ConceptVersion struct {
	ConceptVersionID uint64        `gorm:"primaryKey;autoIncrement"`
	ConceptID        uint64        `gorm:"not null;index:idx_concept_version,unique"`
	VersionNumber    uint64        `gorm:"not null;index:idx_concept_version,unique"`
	URI              string        `gorm:"size:500"`
	Label            string        `gorm:"size:255"`
	SemanticLabel    string        `gorm:"size:255"`
	PrimaryType      PrimaryType   `gorm:"size:50"`
	Description      string        `gorm:"type:text"`
	Status           ConceptStatus `gorm:"size:50;not null"`
	ConfidenceScore  *float64
	ChangedFields    JSON   `gorm:"type:json"`
	ChangeReason     string `gorm:"type:text"`
	ChangedBy        string `gorm:"size:255;not null"`
	CreatedAt        time.Time
}

// ConceptRelationship is a directed edge between two concepts. The
// (subject, predicate, object) key is unique by construction.
type ConceptRelationship struct {
	RelationshipID  uint64        `gorm:"primaryKey;autoIncrement"`
	SubjectID       uint64        `gorm:"not null;index:idx_relationship_spo,unique"`
	Predicate       string        `gorm:"size:255;not null;index:idx_relationship_spo,unique"`
	ObjectID        uint64        `gorm:"not null;index:idx_relationship_spo,unique"`
	Status          ConceptStatus `gorm:"size:50;not null;default:candidate"`
	ConfidenceScore *float64
	CreatedBy       string `gorm:"size:255"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TableName overrides the table name for Concept
func (Concept) TableName() string {
	return "concepts"
}

// TableName overrides the table name for ConceptVersion
func (ConceptVersion) TableName() string {
	return "concept_versions"
}

// TableName overrides the table name for ConceptRelationship
func (ConceptRelationship) TableName() string {
	return "concept_relationships"
}
