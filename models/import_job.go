package models

import "time"

// Status-Werte für Batch-Importe.
const (
	ImportRunning   = "running"
	ImportCompleted = "completed"
	ImportFailed    = "failed"
)

// ImportJob verfolgt einen Batch-Import von Zitationen. Teilerfolge sind
// erlaubt, fehlgeschlagene Einträge werden gezählt und protokolliert.
type ImportJob struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ApplicationID string `json:"application_id" gorm:"index;not null"`
	Status        string `json:"status" gorm:"default:running"`

	Total     int    `json:"total"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Errors    string `json:"errors,omitempty" gorm:"type:text"`

	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
