package models

import (
	"time"
)

// Audit actions.
const (
	AuditActionCreate = "create"
	AuditActionUpdate = "update"
	AuditActionDelete = "delete"
)

// AuditLogEntry is an append-only record of one mutation. Entries are
// written inside the transaction of the mutation they describe, so an
// unavailable audit store fails the mutation rather than dropping the
// record. Never updated or deleted.
type AuditLogEntry struct {
	EntryID    uint64 `gorm:"primaryKey;autoIncrement"`
	EntityName string `gorm:"size:100;not null;index:idx_audit_entity"`
	RecordID   string `gorm:"size:100;not null;index:idx_audit_entity"`
	Action     string `gorm:"size:20;not null"`
	OldValues  JSON   `gorm:"type:json"`
	NewValues  JSON   `gorm:"type:json"`
	Actor      string `gorm:"size:255;not null"`
	CreatedAt  time.Time `gorm:"index"`
}

// TableName overrides the table name for AuditLogEntry
func (AuditLogEntry) TableName() string {
	return "audit_log"
}
