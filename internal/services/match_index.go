package services

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/matlab-research/ontserve/internal/models"
	"github.com/matlab-research/ontserve/internal/types"
	"gorm.io/gorm"
	"gorm.io/hints"
)

// matchBatchSize bounds how many concept rows one scan pass loads.
const matchBatchSize = 500

// Cosine returns the cosine similarity of two vectors. Both inputs must
// share a dimension; a zero-norm input yields 0 rather than NaN.
func Cosine(a, b types.Vector) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", types.ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// Neighbor pairs a concept with its similarity to the query vector.
type Neighbor struct {
	Concept    models.Concept `json:"concept"`
	Similarity float64        `json:"similarity"`
}

// NearestOptions narrows a similarity scan.
type NearestOptions struct {
	// Statuses restricts matches; empty means any status.
	Statuses []models.ConceptStatus
	// IncludeAllDomains widens the scan past the given domain.
	IncludeAllDomains bool
	// ExcludeConceptID drops one concept from the results, normally the
	// one being compared against its peers.
	ExcludeConceptID uint64
}

// FindNearest scans label embeddings in id-ordered batches and returns the
// topK most similar concepts. Results order by similarity descending, with
// older creation and lower id breaking exact ties, so repeated queries over
// unchanged data return identical rankings. Stored vectors with a different
// dimension than the query are skipped, not errors: they predate a model
// change and will be re-embedded out of band.
func FindNearest(ctx context.Context, db *gorm.DB, query types.Vector, domainID uint64, topK int, opts NearestOptions) ([]Neighbor, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", types.ErrDimensionMismatch)
	}
	if topK <= 0 {
		topK = 10
	}

	neighbors := make([]Neighbor, 0, topK)
	lastID := uint64(0)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		q := db.WithContext(ctx).
			Clauses(hints.CommentBefore("select", "match_scan")).
			Where("concept_id > ?", lastID)
		if !opts.IncludeAllDomains {
			q = q.Where("domain_id = ?", domainID)
		}
		if len(opts.Statuses) > 0 {
			q = q.Where("status IN ?", opts.Statuses)
		}
		if opts.ExcludeConceptID != 0 {
			q = q.Where("concept_id <> ?", opts.ExcludeConceptID)
		}

		var batch []models.Concept
		if err := q.Order("concept_id ASC").Limit(matchBatchSize).Find(&batch).Error; err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		lastID = batch[len(batch)-1].ConceptID

		for _, c := range batch {
			if c.LabelEmbedding.Dim() != len(query) {
				continue
			}
			sim, err := Cosine(query, c.LabelEmbedding)
			if err != nil {
				continue
			}
			neighbors = append(neighbors, Neighbor{Concept: c, Similarity: sim})
		}
	}

	sort.SliceStable(neighbors, func(i, j int) bool {
		if neighbors[i].Similarity != neighbors[j].Similarity {
			return neighbors[i].Similarity > neighbors[j].Similarity
		}
		if !neighbors[i].Concept.CreatedAt.Equal(neighbors[j].Concept.CreatedAt) {
			return neighbors[i].Concept.CreatedAt.Before(neighbors[j].Concept.CreatedAt)
		}
		return neighbors[i].Concept.ConceptID < neighbors[j].Concept.ConceptID
	})

	if len(neighbors) > topK {
		neighbors = neighbors[:topK]
	}
	return neighbors, nil
}
