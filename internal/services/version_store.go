// version_store.go
//
// Ontology version and concept approval data service
// Copyright (c) 2026 MatLab Research
//
// This file is part of ontserve.
// ontserve is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// ontserve is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with ontserve.
// If not, see <https://www.gnu.org/licenses/>.

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/matlab-research/ontserve/internal/config"
	"github.com/matlab-research/ontserve/internal/models"
	"github.com/matlab-research/ontserve/internal/types"
	"github.com/matlab-research/ontserve/internal/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/hints"
)

// DocumentRef addresses one ontology document within a domain.
type DocumentRef struct {
	Domain string `json:"domain"`
	Name   string `json:"name"`
}

// SaveVersionInput carries the content and provenance of one save.
type SaveVersionInput struct {
	Content       string `json:"content"`
	Author        string `json:"author"`
	ChangeSummary string `json:"changeSummary,omitempty"`
	BaseURI       string `json:"baseUri,omitempty"`
	Description   string `json:"description,omitempty"`

	// BaseVersion is the version the editor saved from. Zero skips the
	// check. Clients send it as a number or a string.
	BaseVersion types.FlexUint64 `json:"baseVersion,omitempty"`
}

// SaveVersionResult reports the outcome of a save.
type SaveVersionResult struct {
	DocumentID    uint64 `json:"documentId"`
	VersionNumber uint64 `json:"versionNumber"`
	ContentHash   string `json:"contentHash"`
	TripleCount   int    `json:"tripleCount"`
	Created       bool   `json:"created"`
}

// VersionSummary is one row of a version listing, content omitted.
type VersionSummary struct {
	VersionNumber uint64 `json:"versionNumber"`
	ContentHash   string `json:"contentHash"`
	ChangeSummary string `json:"changeSummary,omitempty"`
	Author        string `json:"author"`
	IsCurrent     bool   `json:"isCurrent"`
	TripleCount   int    `json:"tripleCount"`
	CreatedAt     string `json:"createdAt"`
}

// SaveVersion appends a new version of a document, creating the domain and
// document rows on first save. Saving content whose hash equals the current
// version's is a no-op that returns the existing version. The parse runs
// before the transaction opens so a slow collaborator never holds row locks.
func SaveVersion(ctx context.Context, db *gorm.DB, cfg *config.Config, parser OntologyParser, ref DocumentRef, input SaveVersionInput) (*SaveVersionResult, error) {
	if ref.Domain == "" || ref.Name == "" {
		return nil, fmt.Errorf("domain and document name are required")
	}
	if input.Content == "" {
		return nil, fmt.Errorf("content is required")
	}

	tripleCount := 0
	if parser != nil {
		parsed, err := parser.Parse(ctx, input.Content)
		if err != nil {
			return nil, err
		}
		tripleCount = len(parsed.Triples)
	}

	hash := utils.ContentHash(input.Content)

	var result SaveVersionResult
	err := runInTx(ctx, db, cfg, func(tx *gorm.DB) error {
		domain, err := getOrCreateDomain(tx, ref.Domain)
		if err != nil {
			return err
		}

		var doc models.OntologyDocument
		err = tx.Where(models.OntologyDocument{DomainID: domain.DomainID, Name: ref.Name}).
			Attrs(models.OntologyDocument{BaseURI: input.BaseURI, Description: input.Description}).
			FirstOrCreate(&doc).Error
		if err != nil {
			return err
		}

		// Re-read under lock so the version check and flip see a stable row.
		if err := lockForUpdate(tx).First(&doc, doc.DocumentID).Error; err != nil {
			return err
		}

		if input.BaseVersion > 0 && input.BaseVersion.Uint64() != doc.CurrentVersion {
			return fmt.Errorf("%w: document moved to version %d since version %d was read",
				types.ErrConflict, doc.CurrentVersion, input.BaseVersion.Uint64())
		}

		if doc.CurrentVersion > 0 {
			var current models.DocumentVersion
			err := tx.Where("document_id = ? AND is_current = ?", doc.DocumentID, true).
				First(&current).Error
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			if err == nil && current.ContentHash == hash {
				result = SaveVersionResult{
					DocumentID:    doc.DocumentID,
					VersionNumber: current.VersionNumber,
					ContentHash:   current.ContentHash,
					TripleCount:   current.TripleCount,
					Created:       false,
				}
				return nil
			}
		}

		if err := tx.Model(&models.DocumentVersion{}).
			Where("document_id = ? AND is_current = ?", doc.DocumentID, true).
			Update("is_current", false).Error; err != nil {
			return err
		}

		next := doc.CurrentVersion + 1
		meta, _ := json.Marshal(map[string]interface{}{"tripleCount": tripleCount})
		version := models.DocumentVersion{
			DocumentID:    doc.DocumentID,
			VersionNumber: next,
			Content:       input.Content,
			ContentHash:   hash,
			ChangeSummary: input.ChangeSummary,
			Author:        input.Author,
			IsCurrent:     true,
			TripleCount:   tripleCount,
			Metadata:      models.JSON{JSON: datatypes.JSON(meta)},
		}
		if err := tx.Create(&version).Error; err != nil {
			return err
		}

		// Rows-affected guard: a concurrent save that committed first moved
		// current_version, so this UPDATE matches nothing and we report a
		// conflict instead of silently double-writing.
		res := tx.Model(&models.OntologyDocument{}).
			Where("document_id = ? AND current_version = ?", doc.DocumentID, doc.CurrentVersion).
			Updates(map[string]interface{}{
				"current_version": next,
				"base_uri":        firstNonEmpty(input.BaseURI, doc.BaseURI),
				"description":     firstNonEmpty(input.Description, doc.Description),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return types.ErrConflict
		}

		if err := recordAudit(tx, "document_versions", strconv.FormatUint(doc.DocumentID, 10),
			models.AuditActionCreate, nil, &version, input.Author); err != nil {
			return err
		}

		result = SaveVersionResult{
			DocumentID:    doc.DocumentID,
			VersionNumber: next,
			ContentHash:   hash,
			TripleCount:   tripleCount,
			Created:       true,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// GetVersion returns one version of a document. The selector is either the
// literal "current" or a positive version number.
func GetVersion(ctx context.Context, db *gorm.DB, ref DocumentRef, selector string) (*models.DocumentVersion, error) {
	doc, err := GetDocument(ctx, db, ref)
	if err != nil {
		return nil, err
	}

	q := db.WithContext(ctx).Where("document_id = ?", doc.DocumentID)
	if selector == "" || selector == "current" {
		q = q.Where("is_current = ?", true)
	} else {
		n, err := strconv.ParseUint(selector, 10, 64)
		if err != nil || n == 0 {
			return nil, fmt.Errorf("%w: version %q", types.ErrNotFound, selector)
		}
		q = q.Where("version_number = ?", n)
	}

	var version models.DocumentVersion
	if err := q.First(&version).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s/%s version %s", types.ErrNotFound, ref.Domain, ref.Name, selector)
		}
		return nil, err
	}
	return &version, nil
}

// ListVersions returns version summaries for a document, oldest first.
func ListVersions(ctx context.Context, db *gorm.DB, ref DocumentRef) ([]VersionSummary, error) {
	doc, err := GetDocument(ctx, db, ref)
	if err != nil {
		return nil, err
	}

	var versions []models.DocumentVersion
	err = db.WithContext(ctx).
		Clauses(hints.CommentBefore("select", "version_history")).
		Select("version_id", "version_number", "content_hash", "change_summary",
			"author", "is_current", "triple_count", "created_at").
		Where("document_id = ?", doc.DocumentID).
		Order("version_number ASC").
		Find(&versions).Error
	if err != nil {
		return nil, err
	}

	summaries := make([]VersionSummary, 0, len(versions))
	for _, v := range versions {
		summaries = append(summaries, VersionSummary{
			VersionNumber: v.VersionNumber,
			ContentHash:   v.ContentHash,
			ChangeSummary: v.ChangeSummary,
			Author:        v.Author,
			IsCurrent:     v.IsCurrent,
			TripleCount:   v.TripleCount,
			CreatedAt:     v.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	return summaries, nil
}

// GetDocument resolves a domain/name pair to its document row.
func GetDocument(ctx context.Context, db *gorm.DB, ref DocumentRef) (*models.OntologyDocument, error) {
	var domain models.OntologyDomain
	err := db.WithContext(ctx).Where("name = ?", ref.Domain).First(&domain).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: domain %s", types.ErrNotFound, ref.Domain)
		}
		return nil, err
	}

	var doc models.OntologyDocument
	err = db.WithContext(ctx).
		Where("domain_id = ? AND name = ?", domain.DomainID, ref.Name).
		First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: document %s/%s", types.ErrNotFound, ref.Domain, ref.Name)
		}
		return nil, err
	}
	return &doc, nil
}

// ListDocuments returns the documents of a domain, or all documents when
// domain is empty.
func ListDocuments(ctx context.Context, db *gorm.DB, domainName string) ([]models.OntologyDocument, error) {
	q := db.WithContext(ctx).Model(&models.OntologyDocument{})
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

	var docs []models.OntologyDocument
	if err := q.Order("name ASC").Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

// getOrCreateDomain resolves a domain name, creating the row on first use.
func getOrCreateDomain(tx *gorm.DB, name string) (*models.OntologyDomain, error) {
	var domain models.OntologyDomain
	err := tx.Where(models.OntologyDomain{Name: name}).
		Attrs(models.OntologyDomain{DisplayName: name}).
		FirstOrCreate(&domain).Error
	if err != nil {
		return nil, err
	}
	return &domain, nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
