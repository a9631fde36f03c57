package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/matlab-research/ontserve/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/hints"
)

// recordAudit appends one audit entry inside the caller's transaction.
// The log is part of the transaction boundary of the mutation it
// describes: if the insert fails, the mutation fails with it.
func recordAudit(tx *gorm.DB, entityName, recordID, action string, oldValues, newValues interface{}, actor string) error {
	entry := models.AuditLogEntry{
		EntityName: entityName,
		RecordID:   recordID,
		Action:     action,
		Actor:      actor,
	}

	if oldValues != nil {
		b, err := json.Marshal(oldValues)
		if err != nil {
			return fmt.Errorf("audit: marshal old values: %w", err)
		}
		entry.OldValues = models.JSON{JSON: datatypes.JSON(b)}
	}
	if newValues != nil {
		b, err := json.Marshal(newValues)
		if err != nil {
			return fmt.Errorf("audit: marshal new values: %w", err)
		}
		entry.NewValues = models.JSON{JSON: datatypes.JSON(b)}
	}

	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	return nil
}

// AuditFilter narrows an audit query. Zero values match everything.
type AuditFilter struct {
	EntityName string
	RecordID   string
	Action     string
	Actor      string
	Since      *time.Time
	Until      *time.Time
}

// QueryAudit returns audit entries matching the filter, ordered by
// timestamp ascending (entry id breaks same-timestamp ties). Read-only.
func QueryAudit(ctx context.Context, db *gorm.DB, filter AuditFilter, limit, offset int) ([]models.AuditLogEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	q := db.WithContext(ctx).
		Clauses(hints.CommentBefore("select", "audit_scan")).
		Model(&models.AuditLogEntry{})

	if filter.EntityName != "" {
		q = q.Where("entity_name = ?", filter.EntityName)
	}
	if filter.RecordID != "" {
		q = q.Where("record_id = ?", filter.RecordID)
	}
	if filter.Action != "" {
		q = q.Where("action = ?", filter.Action)
	}
	if filter.Actor != "" {
		q = q.Where("actor = ?", filter.Actor)
	}
	if filter.Since != nil {
		q = q.Where("created_at >= ?", *filter.Since)
	}
	if filter.Until != nil {
		q = q.Where("created_at <= ?", *filter.Until)
	}

	var entries []models.AuditLogEntry
	if err := q.Order("created_at ASC, entry_id ASC").
		Limit(limit).Offset(offset).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
