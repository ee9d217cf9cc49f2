package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Quelle eines Zitations-Datensatzes.
const (
	CitationSourceDOI    = "doi"
	CitationSourcePMID   = "pmid"
	CitationSourceManual = "manual"
)

// Author ist ein einzelner Autor innerhalb von Citation.Authors.
type Author struct {
	FirstName  string `json:"firstName"`
	MiddleName string `json:"middleName,omitempty"`
	LastName   string `json:"lastName"`
	Suffix     string `json:"suffix,omitempty"`
}

// Citation ist ein kuratierter Zitations-Datensatz einer Antrags-Bibliothek.
// Die vier formatierten Strings werden beim Anlegen und bei jeder Änderung neu erzeugt.
type Citation struct {
	ID        string    `json:"id" gorm:"primaryKey;type:uuid"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ApplicationID string `json:"application_id" gorm:"index;not null"`

	Title   string         `json:"title" gorm:"not null"`
	Authors datatypes.JSON `json:"authors" gorm:"type:jsonb"`

	Journal   string `json:"journal,omitempty"`
	Publisher string `json:"publisher,omitempty"`
	Year      int    `json:"year,omitempty"`
	Volume    string `json:"volume,omitempty"`
	Issue     string `json:"issue,omitempty"`
	Pages     string `json:"pages,omitempty"`

	DOI  string `json:"doi,omitempty" gorm:"column:doi;index"`
	PMID string `json:"pmid,omitempty" gorm:"column:pmid;index"`
	URL  string `json:"url,omitempty"`

	Abstract     string `json:"abstract,omitempty" gorm:"type:text"`
	CitationType string `json:"citation_type" gorm:"default:journal_article"`
	Source       string `json:"source" gorm:"default:manual"`

	FormattedNIH     string `json:"formatted_nih,omitempty" gorm:"column:formatted_nih;type:text"`
	FormattedAPA     string `json:"formatted_apa,omitempty" gorm:"column:formatted_apa;type:text"`
	FormattedMLA     string `json:"formatted_mla,omitempty" gorm:"column:formatted_mla;type:text"`
	FormattedChicago string `json:"formatted_chicago,omitempty" gorm:"type:text"`

	UsageCount int        `json:"usage_count"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// BeforeCreate vergibt eine UUID, falls noch keine gesetzt ist.
func (c *Citation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// AuthorList dekodiert das Autoren-JSON. Defekte Daten ergeben eine leere Liste.
func (c *Citation) AuthorList() []Author {
	var authors []Author
	if len(c.Authors) > 0 {
		_ = json.Unmarshal(c.Authors, &authors)
	}
	return authors
}

// SetAuthors kodiert die Autorenliste ins JSON-Feld.
func (c *Citation) SetAuthors(authors []Author) error {
	raw, err := json.Marshal(authors)
	if err != nil {
		return err
	}
	c.Authors = datatypes.JSON(raw)
	return nil
}
