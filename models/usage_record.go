package models

import "time"

// UsageRecord protokolliert einen Auflösungs-Lauf gegen externe APIs.
// Die Tages-Quote wird über diese Tabelle geprüft.
type UsageRecord struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`

	ApplicationID string `json:"application_id" gorm:"index;not null"`
	SectionName   string `json:"section_name"`
	Operation     string `json:"operation"`

	ReferencesTotal    int `json:"references_total"`
	ReferencesResolved int `json:"references_resolved"`
}
