package models

import (
	"time"
)

// OntologyDomain groups documents and concepts for one professional domain.
type OntologyDomain struct {
	DomainID    uint64 `gorm:"primaryKey;autoIncrement"`
	Name        string `gorm:"uniqueIndex;size:255;not null"`
	DisplayName string `gorm:"size:255"`
	Description string `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OntologyDocument is the ground-truth Turtle document for an ontology.
// CurrentVersion mirrors the version number of the row in document_versions
// that carries is_current = true; it doubles as the optimistic guard for
// concurrent saves.
type OntologyDocument struct {
	DocumentID     uint64 `gorm:"primaryKey;autoIncrement"`
	DomainID       uint64 `gorm:"not null;index:idx_domain_document,unique"`
	Name           string `gorm:"size:255;not null;index:idx_domain_document,unique"`
	BaseURI        string `gorm:"size:500"`
	Description    string `gorm:"type:text"`
	CurrentVersion uint64 `gorm:"not null;default:0"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Versions       []DocumentVersion `gorm:"foreignKey:DocumentID"`
}

// DocumentVersion is one immutable revision of a document's content.
// Exactly one row per document has IsCurrent set; version numbers are a
// gapless sequence starting at 1 and are never reused.
type DocumentVersion struct {
	VersionID     uint64 `gorm:"primaryKey;autoIncrement"`
	DocumentID    uint64 `gorm:"not null;index:idx_document_version,unique"`
	VersionNumber uint64 `gorm:"not null;index:idx_document_version,unique"`
	Content       string `gorm:"type:text;not null"`
	ContentHash   string `gorm:"size:64;not null;index"`
	ChangeSummary string `gorm:"type:text"`
	Author        string `gorm:"size:255"`
	IsCurrent     bool   `gorm:"not null;default:false;index"`
	TripleCount   int
	Metadata      JSON `gorm:"type:json"`
	CreatedAt     time.Time
}

// TableName overrides the table name for OntologyDomain
func (OntologyDomain) TableName() string {
	return "ontology_domains"
}

// TableName overrides the table name for OntologyDocument
func (OntologyDocument) TableName() string {
	return "ontology_documents"
}

// TableName overrides the table name for DocumentVersion
func (DocumentVersion) TableName() string {
	return "document_versions"
}
