package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matlab-research/ontserve/internal/config"
	"github.com/matlab-research/ontserve/internal/models"
	"github.com/matlab-research/ontserve/internal/types"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/hints"
)

// SubmitConceptInput carries one extracted candidate concept.
type SubmitConceptInput struct {
	Domain           string   `json:"domain"`
	URI              string   `json:"uri"`
	Label            string   `json:"label"`
	SemanticLabel    string   `json:"semanticLabel,omitempty"`
	PrimaryType      string   `json:"primaryType"`
	Description      string   `json:"description,omitempty"`
	ConfidenceScore  *float64 `json:"confidenceScore,omitempty"`
	ExtractionMethod string   `json:"extractionMethod,omitempty"`
	SourceText       string   `json:"sourceText,omitempty"`
	LLMReasoning     string   `json:"llmReasoning,omitempty"`

	LabelEmbedding       types.Vector `json:"labelEmbedding,omitempty"`
	DescriptionEmbedding types.Vector `json:"descriptionEmbedding,omitempty"`

	// Facts to materialize as triples when the concept is approved.
	// Extraction clients send these as either a single object or an array.
	Triples types.FlexList[TripleInput] `json:"triples,omitempty"`

	// Override bypasses the duplicate check.
	Override bool `json:"override,omitempty"`

	SubmittedBy string `json:"-"`
}

// SubmitResult reports what happened to a submitted candidate.
type SubmitResult struct {
	Concept   *models.Concept      `json:"concept,omitempty"`
	Duplicate bool                 `json:"duplicate"`
	Nearest   []Neighbor           `json:"nearest,omitempty"`
	RoutedTo  models.ConceptStatus `json:"routedTo,omitempty"`
}

// SubmitCandidate validates and stores one extracted concept, then routes
// it through the workflow engine. A candidate whose label embedding matches
// an approved concept at or above the duplicate threshold is flagged and
// not stored, unless the submitter overrides.
func SubmitCandidate(ctx context.Context, db *gorm.DB, cfg *config.Config, embedder Embedder, input SubmitConceptInput) (*SubmitResult, error) {
	if input.Label == "" {
		return nil, fmt.Errorf("label is required")
	}
	if input.Domain == "" {
		input.Domain = cfg.DefaultDomain
	}

	primaryType, ok := models.ParsePrimaryType(input.PrimaryType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrInvalidType, input.PrimaryType)
	}
	if input.ConfidenceScore != nil && (*input.ConfidenceScore < 0 || *input.ConfidenceScore > 1) {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidConfidence, *input.ConfidenceScore)
	}
	if input.LabelEmbedding.Dim() > 0 && input.LabelEmbedding.Dim() != cfg.EmbeddingDim {
		return nil, fmt.Errorf("%w: label embedding has %d dimensions, expected %d",
			types.ErrDimensionMismatch, input.LabelEmbedding.Dim(), cfg.EmbeddingDim)
	}
	if input.DescriptionEmbedding.Dim() > 0 && input.DescriptionEmbedding.Dim() != cfg.EmbeddingDim {
		return nil, fmt.Errorf("%w: description embedding has %d dimensions, expected %d",
			types.ErrDimensionMismatch, input.DescriptionEmbedding.Dim(), cfg.EmbeddingDim)
	}

	// Embedding calls go out before any transaction opens.
	if input.LabelEmbedding.Dim() == 0 && embedder != nil {
		emb, err := embedder.Embed(ctx, input.Label)
		if err != nil {
			return nil, err
		}
		input.LabelEmbedding = emb
	}
	if input.DescriptionEmbedding.Dim() == 0 && input.Description != "" && embedder != nil {
		emb, err := embedder.Embed(ctx, input.Description)
		if err != nil {
			return nil, err
		}
		input.DescriptionEmbedding = emb
	}

	domain, err := getOrCreateDomain(db.WithContext(ctx), input.Domain)
	if err != nil {
		return nil, err
	}

	if input.LabelEmbedding.Dim() > 0 && !input.Override {
		nearest, err := FindNearest(ctx, db, input.LabelEmbedding, domain.DomainID, 5, NearestOptions{
			Statuses: []models.ConceptStatus{models.StatusApproved},
		})
		if err != nil {
			return nil, err
		}
		if len(nearest) > 0 && nearest[0].Similarity >= cfg.DuplicateThreshold {
			return &SubmitResult{Duplicate: true, Nearest: nearest}, nil
		}
	}

	if input.URI == "" {
		input.URI = fmt.Sprintf("onto://%s/%s", input.Domain, slugify(input.Label))
	}

	var facts models.JSON
	if len(input.Triples) > 0 {
		b, err := json.Marshal(input.Triples)
		if err != nil {
			return nil, fmt.Errorf("encode defining facts: %w", err)
		}
		facts = models.JSON{JSON: datatypes.JSON(b)}
	}

	concept := models.Concept{
		UUID:                 uuid.New().String(),
		DomainID:             domain.DomainID,
		URI:                  input.URI,
		Label:                input.Label,
		SemanticLabel:        input.SemanticLabel,
		PrimaryType:          primaryType,
		Description:          input.Description,
		Status:               models.StatusCandidate,
		ConfidenceScore:      input.ConfidenceScore,
		ExtractionMethod:     input.ExtractionMethod,
		SourceText:           input.SourceText,
		LLMReasoning:         input.LLMReasoning,
		LabelEmbedding:       input.LabelEmbedding,
		DescriptionEmbedding: input.DescriptionEmbedding,
		DefiningFacts:        facts,
		Version:              1,
		CreatedBy:            input.SubmittedBy,
		UpdatedBy:            input.SubmittedBy,
	}

	err = runInTx(ctx, db, cfg, func(tx *gorm.DB) error {
		if err := tx.Create(&concept).Error; err != nil {
			return err
		}
		if err := snapshotConcept(tx, &concept, nil, "submitted", input.SubmittedBy); err != nil {
			return err
		}
		if err := openWorkflow(tx, concept.ConceptID); err != nil {
			return err
		}
		return recordAudit(tx, "concepts", concept.UUID,
			models.AuditActionCreate, nil, &concept, input.SubmittedBy)
	})
	if err != nil {
		return nil, err
	}

	routed, err := RouteCandidate(ctx, db, cfg, &concept)
	if err != nil {
		return nil, err
	}

	return &SubmitResult{Concept: &concept, RoutedTo: routed}, nil
}

// Transition moves a concept to a new status under the state machine,
// snapshotting the prior state and recording the decision on its workflow.
// The caller-observed version number serializes concurrent transitions:
// the first committer wins, the loser sees a conflict.
func Transition(ctx context.Context, db *gorm.DB, cfg *config.Config, conceptUUID string, to models.ConceptStatus, actor, reason string) (*models.Concept, error) {
	if to == models.StatusRejected && strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("%w: rejection requires a non-empty reason", types.ErrInvalidTransition)
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

		if !concept.Status.CanTransition(to) {
			return fmt.Errorf("%w: %s -> %s", types.ErrInvalidTransition, concept.Status, to)
		}

		before := concept
		now := time.Now().UTC()
		updates := map[string]interface{}{
			"status":     to,
			"version":    concept.Version + 1,
			"updated_by": actor,
			"updated_at": now,
		}
		if to == models.StatusApproved {
			updates["approved_by"] = actor
			updates["approved_at"] = now
		}

		res := tx.Model(&models.Concept{}).
			Where("concept_id = ? AND version = ?", concept.ConceptID, concept.Version).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return types.ErrConflict
		}

		concept.Status = to
		concept.Version++
		concept.UpdatedBy = actor
		concept.UpdatedAt = now
		if to == models.StatusApproved {
			concept.ApprovedBy = &actor
			concept.ApprovedAt = &now
		}

		if to == models.StatusApproved {
			facts := definingFacts(&concept)
			if _, err := MaterializeTriples(tx, concept.ConceptID, actor, facts); err != nil {
				return err
			}
		}

		if err := snapshotConcept(tx, &concept, []string{"status"}, reason, actor); err != nil {
			return err
		}
		if err := recordWorkflowDecision(tx, concept.ConceptID, string(to), reason, actor); err != nil {
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

// definingFacts decodes the stored facts of a concept, falling back to a
// minimal type and label pair so every approved concept materializes at
// least its classification.
func definingFacts(c *models.Concept) []TripleInput {
	if len(c.DefiningFacts.JSON) > 0 {
		var facts []TripleInput
		if err := json.Unmarshal(c.DefiningFacts.JSON, &facts); err == nil && len(facts) > 0 {
			return facts
		}
	}
	return []TripleInput{
		{Subject: c.URI, Predicate: "rdf:type", Object: string(c.PrimaryType)},
		{Subject: c.URI, Predicate: "rdfs:label", Object: c.Label, IsLiteral: true},
	}
}

// ConceptPage is one page of a status listing.
type ConceptPage struct {
	Concepts   []models.Concept `json:"concepts"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

// ListByStatus returns concepts in a domain filtered by status, newest
// first, with opaque cursor pagination. Empty status means any.
func ListByStatus(ctx context.Context, db *gorm.DB, domainName string, status models.ConceptStatus, limit int, cursor string) (*ConceptPage, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	q := db.WithContext(ctx).
		Clauses(hints.CommentBefore("select", "concepts_by_status")).
		Model(&models.Concept{})

	if domainName != "" {
		var domain models.OntologyDomain
		err := db.WithContext(ctx).Where("name = ?", domainName).First(&domain).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("%w: domain %s", types.ErrNotFound, domainName)
			}
			return nil, err
		}
		q = q.Where("domain_id = ?", domain.DomainID)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}

	if cursor != "" {
		createdAt, id, err := decodeCursor(cursor)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor")
		}
		q = q.Where("(created_at < ?) OR (created_at = ? AND concept_id < ?)", createdAt, createdAt, id)
	}

	var concepts []models.Concept
	if err := q.Order("created_at DESC, concept_id DESC").Limit(limit + 1).Find(&concepts).Error; err != nil {
		return nil, err
	}

	page := &ConceptPage{}
	if len(concepts) > limit {
		concepts = concepts[:limit]
		last := concepts[len(concepts)-1]
		page.NextCursor = encodeCursor(last.CreatedAt, last.ConceptID)
	}
	page.Concepts = concepts
	return page, nil
}

// GetConcept resolves a concept by its public UUID.
func GetConcept(ctx context.Context, db *gorm.DB, conceptUUID string) (*models.Concept, error) {
	var concept models.Concept
	err := db.WithContext(ctx).Where("uuid = ?", conceptUUID).First(&concept).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: concept %s", types.ErrNotFound, conceptUUID)
		}
		return nil, err
	}
	return &concept, nil
}

// ConceptHistory returns the snapshots of a concept, oldest first.
func ConceptHistory(ctx context.Context, db *gorm.DB, conceptUUID string) ([]models.ConceptVersion, error) {
	concept, err := GetConcept(ctx, db, conceptUUID)
	if err != nil {
		return nil, err
	}

	var versions []models.ConceptVersion
	err = db.WithContext(ctx).
		Where("concept_id = ?", concept.ConceptID).
		Order("version_number ASC").
		Find(&versions).Error
	if err != nil {
		return nil, err
	}
	return versions, nil
}

// FindSimilar returns the approved concepts nearest to the given one. A
// concept without a stored embedding has no neighbors.
func FindSimilar(ctx context.Context, db *gorm.DB, conceptUUID string, topK int, allDomains bool) ([]Neighbor, error) {
	concept, err := GetConcept(ctx, db, conceptUUID)
	if err != nil {
		return nil, err
	}
	if concept.LabelEmbedding.Dim() == 0 {
		return []Neighbor{}, nil
	}

	return FindNearest(ctx, db, concept.LabelEmbedding, concept.DomainID, topK, NearestOptions{
		Statuses:          []models.ConceptStatus{models.StatusApproved},
		IncludeAllDomains: allDomains,
		ExcludeConceptID:  concept.ConceptID,
	})
}

// ConceptStats counts the concepts of a domain by status.
func ConceptStats(ctx context.Context, db *gorm.DB, domainName string) (map[string]int64, error) {
	q := db.WithContext(ctx).Model(&models.Concept{})
	if domainName != "" {
		var domain models.OntologyDomain
		err := db.WithContext(ctx).Where("name = ?", domainName).First(&domain).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("%w: domain %s", types.ErrNotFound, domainName)
			}
			return nil, err
		}
		q = q.Where("domain_id = ?", domain.DomainID)
	}

	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	if err := q.Select("status, COUNT(*) as count").Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}

	stats := make(map[string]int64, len(rows))
	for _, r := range rows {
		stats[r.Status] = r.Count
	}
	return stats, nil
}

// snapshotConcept writes one immutable ConceptVersion row for the concept's
// current state.
func snapshotConcept(tx *gorm.DB, c *models.Concept, changedFields []string, reason, actor string) error {
	var fields models.JSON
	if len(changedFields) > 0 {
		b, err := json.Marshal(changedFields)
		if err != nil {
			return err
		}
		fields = models.JSON{JSON: datatypes.JSON(b)}
	}

	snapshot := models.ConceptVersion{
		ConceptID:       c.ConceptID,
		VersionNumber:   c.Version,
		URI:             c.URI,
		Label:           c.Label,
		SemanticLabel:   c.SemanticLabel,
		PrimaryType:     c.PrimaryType,
		Description:     c.Description,
		Status:          c.Status,
		ConfidenceScore: c.ConfidenceScore,
		ChangedFields:   fields,
		ChangeReason:    reason,
		ChangedBy:       actor,
	}
	return tx.Create(&snapshot).Error
}

func encodeCursor(createdAt time.Time, id uint64) string {
	raw := fmt.Sprintf("%d|%d", createdAt.UTC().UnixNano(), id)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(cursor string) (time.Time, uint64, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, 0, err
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, 0, fmt.Errorf("malformed cursor")
	}
	nanos, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}, 0, err
	}
	id, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return time.Time{}, 0, err
	}
	return time.Unix(0, nanos).UTC(), id, nil
}

func slugify(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
		case r == ' ' || r == '-' || r == '_':
			out = append(out, '-')
		}
	}
	return strings.Trim(string(out), "-")
}
