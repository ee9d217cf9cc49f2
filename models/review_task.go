package models

import "time"

// Status-Werte für Review-Aufgaben.
const (
	TaskOpen = "open"
	TaskDone = "done"
)

// ReviewTask ist eine offene Prüf-Aufgabe, die beim Statuswechsel einer
// Sektion auf "under_review" angelegt wird. Pro (Antrag, Sektion) existiert
// höchstens eine offene Aufgabe.
type ReviewTask struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ApplicationID string `json:"application_id" gorm:"index;not null"`
	SectionName   string `json:"section_name" gorm:"not null"`
	Title         string `json:"title" gorm:"not null"`
	Status        string `json:"status" gorm:"default:open;index"`

	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
