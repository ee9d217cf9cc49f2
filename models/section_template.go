package models

import "time"

// SectionTemplate beschreibt eine bekannte Antrags-Sektion (z.B. NIH R01
// "Specific Aims") mit Anzeigename und Reihenfolge.
type SectionTemplate struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	SectionKey  string `json:"section_key" gorm:"uniqueIndex;not null"`
	DisplayName string `json:"display_name" gorm:"not null"`
	Description string `json:"description,omitempty" gorm:"type:text"`
	SortOrder   int    `json:"sort_order"`
	WordLimit   int    `json:"word_limit,omitempty"`
	Required    bool   `json:"required"`
}
