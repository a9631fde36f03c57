package models

import (
	"time"
)

// Temporal qualifier kinds and relations (BFO-style temporal regions).
// Pass-through metadata: stored on materialization, never interpreted.
const (
	TemporalKindInstant  = "instant"
	TemporalKindInterval = "interval"

	TemporalRelationPrecedes = "precedes"
	TemporalRelationDuring   = "during"
	TemporalRelationFollows  = "follows"
)

// Triple is a normalized RDF fact materialized for an approved concept.
// The (concept_id, subject, predicate, object) key is unique; corrections
// insert a new row and set SupersededBy on the old one, rows are never
// mutated in place. Temporal relations between triples reference the other
// triple by id rather than embedding it, so chains and cycles stay
// representable without ownership cycles.
type Triple struct {
	TripleID   uint64 `gorm:"primaryKey;autoIncrement"`
	ConceptID  uint64 `gorm:"not null;index:idx_triple_key,unique"`
	Subject    string `gorm:"size:500;not null;index:idx_triple_key,unique;index:idx_triple_subject"`
	Predicate  string `gorm:"size:500;not null;index:idx_triple_key,unique"`
	Object     string `gorm:"size:1000;not null;index:idx_triple_key,unique"`
	IsLiteral  bool   `gorm:"not null;default:false"`

	TemporalKind         string `gorm:"size:20"`
	TemporalStart        *time.Time
	TemporalEnd          *time.Time
	TemporalRelation     string  `gorm:"size:20"`
	TemporalRelationToID *uint64 `gorm:"index"`

	ConfidenceScore *float64
	SupersededBy    *uint64 `gorm:"index"`
	CreatedBy       string  `gorm:"size:255"`
	CreatedAt       time.Time
}

// Superseded reports whether a correction has replaced this fact.
func (t *Triple) Superseded() bool {
	return t.SupersededBy != nil
}

// TableName overrides the table name for Triple
func (Triple) TableName() string {
	return "triples"
}
