package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Status-Werte für eine Sektions-Version.
const (
	StatusDraft       = "draft"
	StatusUnderReview = "under_review"
	StatusApproved    = "approved"
	StatusRejected    = "rejected"
)

// SectionVersion repräsentiert eine unveränderliche Version einer Antrags-Sektion.
// Pro (Antrag, Sektion) ist höchstens eine Version die aktuelle.
type SectionVersion struct {
	ID        string    `json:"id" gorm:"primaryKey;type:uuid"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ApplicationID string `json:"application_id" gorm:"index;not null;uniqueIndex:idx_section_version,priority:1"`
	SectionName   string `json:"section_name" gorm:"not null;uniqueIndex:idx_section_version,priority:2"`
	VersionNumber int    `json:"version_number" gorm:"not null;uniqueIndex:idx_section_version,priority:3"`

	Content          string `json:"content" gorm:"type:text"`
	IsCurrentVersion bool   `json:"is_current_version" gorm:"index"`
	Status           string `json:"status" gorm:"default:draft"`

	PromptUsed string `json:"prompt_used,omitempty" gorm:"type:text"`
	CreatedBy  string `json:"created_by,omitempty"`

	ReviewedBy  string     `json:"reviewed_by,omitempty"`
	ReviewNotes string     `json:"review_notes,omitempty" gorm:"type:text"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`

	// Strukturierte Metadaten der Generierung, siehe SectionMetadata.
	GenerationMetadata datatypes.JSON `json:"generation_metadata,omitempty" gorm:"type:jsonb"`
}

// SectionMetadata ist die typisierte Form von SectionVersion.GenerationMetadata.
type SectionMetadata struct {
	Source            string   `json:"source,omitempty"`
	Model             string   `json:"model,omitempty"`
	PMIDs             []string `json:"pmids,omitempty"`
	CitationsResolved int      `json:"citations_resolved,omitempty"`
	CitationsTotal    int      `json:"citations_total,omitempty"`
}

// BeforeCreate vergibt eine UUID, falls noch keine gesetzt ist.
func (v *SectionVersion) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return nil
}

// Metadata dekodiert GenerationMetadata. Leere oder defekte Daten ergeben eine leere Struktur.
func (v *SectionVersion) Metadata() SectionMetadata {
	var m SectionMetadata
	if len(v.GenerationMetadata) > 0 {
		_ = json.Unmarshal(v.GenerationMetadata, &m)
	}
	return m
}

// SetMetadata kodiert die Metadaten ins JSON-Feld.
func (v *SectionVersion) SetMetadata(m SectionMetadata) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	v.GenerationMetadata = datatypes.JSON(raw)
	return nil
}
