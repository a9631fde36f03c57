package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/matlab-research/ontserve/internal/config"
	"github.com/matlab-research/ontserve/internal/models"
	"github.com/matlab-research/ontserve/internal/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/hints"
)

// TripleInput is one fact submitted for materialization.
type TripleInput struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
	IsLiteral bool   `json:"isLiteral,omitempty"`

	TemporalKind         string     `json:"temporalKind,omitempty"`
	TemporalStart        *time.Time `json:"temporalStart,omitempty"`
	TemporalEnd          *time.Time `json:"temporalEnd,omitempty"`
	TemporalRelation     string     `json:"temporalRelation,omitempty"`
	TemporalRelationToID *uint64    `json:"temporalRelationTo,omitempty"`

	ConfidenceScore *float64 `json:"confidenceScore,omitempty"`
}

// MaterializeTriples inserts the defining facts of an approved concept.
// Runs inside the approval transaction. A fact that already exists for the
// concept is skipped via the unique key, not raised: re-approval after a
// reopen replays the same facts.
func MaterializeTriples(tx *gorm.DB, conceptID uint64, actor string, inputs []TripleInput) (int, error) {
	created := 0
	for _, in := range inputs {
		if in.Subject == "" || in.Predicate == "" || in.Object == "" {
			log.Printf("triple store: skipping incomplete fact for concept %d", conceptID)
			continue
		}
		triple := models.Triple{
			ConceptID:            conceptID,
			Subject:              in.Subject,
			Predicate:            in.Predicate,
			Object:               in.Object,
			IsLiteral:            in.IsLiteral,
			TemporalKind:         in.TemporalKind,
			TemporalStart:        in.TemporalStart,
			TemporalEnd:          in.TemporalEnd,
			TemporalRelation:     in.TemporalRelation,
			TemporalRelationToID: in.TemporalRelationToID,
			ConfidenceScore:      in.ConfidenceScore,
			CreatedBy:            actor,
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&triple)
		if res.Error != nil {
			return created, fmt.Errorf("triple store: %w", res.Error)
		}
		created += int(res.RowsAffected)
	}
	return created, nil
}

// QueryTriplesBySubject returns the live facts with the given subject URI,
// across concepts. Superseded rows are excluded unless includeSuperseded.
func QueryTriplesBySubject(ctx context.Context, db *gorm.DB, subject string, includeSuperseded bool) ([]models.Triple, error) {
	q := db.WithContext(ctx).
		Clauses(hints.CommentBefore("select", "triples_by_subject")).
		Where("subject = ?", subject)
	if !includeSuperseded {
		q = q.Where("superseded_by IS NULL")
	}

	var triples []models.Triple
	if err := q.Order("triple_id ASC").Find(&triples).Error; err != nil {
		return nil, err
	}
	return triples, nil
}

// QueryTriplesByConcept returns the facts materialized for one concept.
func QueryTriplesByConcept(ctx context.Context, db *gorm.DB, conceptID uint64, includeSuperseded bool) ([]models.Triple, error) {
	q := db.WithContext(ctx).Where("concept_id = ?", conceptID)
	if !includeSuperseded {
		q = q.Where("superseded_by IS NULL")
	}

	var triples []models.Triple
	if err := q.Order("triple_id ASC").Find(&triples).Error; err != nil {
		return nil, err
	}
	return triples, nil
}

// SupersedeTriple replaces one fact with a corrected one. The old row keeps
// its content and gains a superseded_by pointer; the correction is a fresh
// row. Superseding an already superseded row is a conflict.
func SupersedeTriple(ctx context.Context, db *gorm.DB, cfg *config.Config, tripleID uint64, replacement TripleInput, actor string) (*models.Triple, error) {
	if replacement.Subject == "" || replacement.Predicate == "" || replacement.Object == "" {
		return nil, fmt.Errorf("replacement fact requires subject, predicate and object")
	}

	var created *models.Triple
	err := runInTx(ctx, db, cfg, func(tx *gorm.DB) error {
		next, err := supersedeTripleTx(tx, tripleID, replacement, actor)
		if err != nil {
			return err
		}
		created = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// supersedeTripleTx performs the supersede inside an open transaction.
func supersedeTripleTx(tx *gorm.DB, tripleID uint64, replacement TripleInput, actor string) (*models.Triple, error) {
	var old models.Triple
	if err := lockForUpdate(tx).First(&old, tripleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: triple %d", types.ErrNotFound, tripleID)
		}
		return nil, err
	}
	if old.Superseded() {
		return nil, fmt.Errorf("%w: triple %d already superseded", types.ErrConflict, tripleID)
	}

	next := models.Triple{
		ConceptID:            old.ConceptID,
		Subject:              replacement.Subject,
		Predicate:            replacement.Predicate,
		Object:               replacement.Object,
		IsLiteral:            replacement.IsLiteral,
		TemporalKind:         replacement.TemporalKind,
		TemporalStart:        replacement.TemporalStart,
		TemporalEnd:          replacement.TemporalEnd,
		TemporalRelation:     replacement.TemporalRelation,
		TemporalRelationToID: replacement.TemporalRelationToID,
		ConfidenceScore:      replacement.ConfidenceScore,
		CreatedBy:            actor,
	}
	if err := tx.Create(&next).Error; err != nil {
		return nil, fmt.Errorf("triple store: %w", err)
	}

	res := tx.Model(&models.Triple{}).
		Where("triple_id = ? AND superseded_by IS NULL", tripleID).
		Update("superseded_by", next.TripleID)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, types.ErrConflict
	}

	if err := recordAudit(tx, "triples", fmt.Sprintf("%d", tripleID),
		models.AuditActionUpdate, &old, &next, actor); err != nil {
		return nil, err
	}
	return &next, nil
}
