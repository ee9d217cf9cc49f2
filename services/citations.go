package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"grant-scribe/models"
	"grant-scribe/providers"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	doiPrefixRegex = regexp.MustCompile(`(?i)(?:https?://)?(?:dx\.)?doi\.org/|doi:\s*`)
	pmidDigitRegex = regexp.MustCompile(`\d{7,8}`)
)

// CitationService verwaltet die kuratierte Zitations-Bibliothek eines
// Antrags.
type CitationService struct {
	DB        *gorm.DB
	Logger    *zap.Logger
	PubMed    providers.MetadataProvider
	Crossref  providers.MetadataProvider
	Formatter *CitationFormatter
}

// NewCitationService erstellt einen neuen CitationService.
func NewCitationService(db *gorm.DB, logger *zap.Logger, pubmed, crossref providers.MetadataProvider, formatter *CitationFormatter) *CitationService {
	return &CitationService{DB: db, Logger: logger, PubMed: pubmed, Crossref: crossref, Formatter: formatter}
}

// CreateCitationInput sind die Eingaben für einen neuen Datensatz. Genau
// eines von DOI, PMID oder Manual muss gesetzt sein.
type CreateCitationInput struct {
	ApplicationID string
	DOI           string
	PMID          string
	Manual        *models.Citation
}

// Create legt einen Zitations-Datensatz an. Bei DOI wird Crossref befragt,
// bei PMID PubMed; bei manueller Eingabe werden die Felder übernommen. Alle
// vier formatierten Strings werden beim Anlegen erzeugt.
func (s *CitationService) Create(ctx context.Context, input CreateCitationInput) (*models.Citation, error) {
	if input.ApplicationID == "" {
		return nil, &ValidationError{Msg: "application_id is required"}
	}

	var citation *models.Citation
	switch {
	case input.DOI != "":
		doi := NormalizeDOI(input.DOI)
		article, err := s.Crossref.FetchByID(ctx, doi)
		if err != nil {
			return nil, &ExternalServiceError{Service: "crossref", Err: err}
		}
		if article == nil {
			return nil, &NotFoundError{Resource: "doi", ID: doi}
		}
		citation = articleToCitation(article)
		citation.Source = models.CitationSourceDOI

	case input.PMID != "":
		pmid := NormalizePMID(input.PMID)
		article, err := s.PubMed.FetchByID(ctx, pmid)
		if err != nil {
			return nil, &ExternalServiceError{Service: "pubmed", Err: err}
		}
		if article == nil {
			return nil, &NotFoundError{Resource: "pmid", ID: pmid}
		}
		citation = articleToCitation(article)
		citation.Source = models.CitationSourcePMID

	case input.Manual != nil:
		if input.Manual.Title == "" {
			return nil, &ValidationError{Msg: "title is required for manual citations"}
		}
		citation = input.Manual
		citation.Source = models.CitationSourceManual
		if citation.CitationType == "" {
			citation.CitationType = "journal_article"
		}

	default:
		return nil, &ValidationError{Msg: "one of doi, pmid or manual data is required"}
	}

	citation.ApplicationID = input.ApplicationID
	s.Formatter.FormatAll(citation)

	if err := s.DB.Create(citation).Error; err != nil {
		return nil, err
	}
	return citation, nil
}

// Get gibt einen Datensatz anhand seiner ID zurück.
func (s *CitationService) Get(id string) (*models.Citation, error) {
	var citation models.Citation
	err := s.DB.Where("id = ?", id).First(&citation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Resource: "citation", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return &citation, nil
}

// List gibt alle Datensätze eines Antrags zurück, neueste zuerst.
func (s *CitationService) List(applicationID string) ([]models.Citation, error) {
	var citations []models.Citation
	err := s.DB.
		Where("application_id = ?", applicationID).
		Order("created_at DESC").
		Find(&citations).Error
	return citations, err
}

// Search sucht Datensätze eines Antrags per Teilstring über Titel, Journal
// und Autoren.
func (s *CitationService) Search(applicationID, query string) ([]models.Citation, error) {
	pattern := "%" + query + "%"
	var citations []models.Citation
	err := s.DB.
		Where("application_id = ?", applicationID).
		Where("LOWER(title) LIKE LOWER(?) OR LOWER(journal) LIKE LOWER(?) OR LOWER(CAST(authors AS TEXT)) LIKE LOWER(?)",
			pattern, pattern, pattern).
		Order("created_at DESC").
		Find(&citations).Error
	return citations, err
}

// Update überschreibt die bibliographischen Felder eines Datensatzes und
// erzeugt alle formatierten Strings neu.
func (s *CitationService) Update(id string, update *models.Citation) (*models.Citation, error) {
	citation, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	citation.Title = update.Title
	citation.Authors = update.Authors
	citation.Journal = update.Journal
	citation.Publisher = update.Publisher
	citation.Year = update.Year
	citation.Volume = update.Volume
	citation.Issue = update.Issue
	citation.Pages = update.Pages
	citation.DOI = update.DOI
	citation.PMID = update.PMID
	citation.URL = update.URL
	citation.Abstract = update.Abstract
	if update.CitationType != "" {
		citation.CitationType = update.CitationType
	}

	s.Formatter.FormatAll(citation)

	if err := s.DB.Save(citation).Error; err != nil {
		return nil, err
	}
	return citation, nil
}

// Delete entfernt einen Datensatz endgültig.
func (s *CitationService) Delete(id string) error {
	result := s.DB.Where("id = ?", id).Delete(&models.Citation{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return &NotFoundError{Resource: "citation", ID: id}
	}
	return nil
}

// TrackUsage zählt eine Verwendung des Datensatzes und setzt den Zeitstempel.
func (s *CitationService) TrackUsage(id string) error {
	now := time.Now()
	result := s.DB.Model(&models.Citation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"usage_count":  gorm.Expr("usage_count + 1"),
			"last_used_at": &now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return &NotFoundError{Resource: "citation", ID: id}
	}
	return nil
}

// BatchImportEntry ist ein einzelner Eintrag eines Batch-Imports.
type BatchImportEntry struct {
	DOI  string `json:"doi,omitempty"`
	PMID string `json:"pmid,omitempty"`
}

// BatchImport legt mehrere Datensätze an. Fehlgeschlagene Einträge brechen
// den Import nicht ab, sondern werden im Job protokolliert.
func (s *CitationService) BatchImport(ctx context.Context, applicationID string, entries []BatchImportEntry) (*models.ImportJob, error) {
	job := &models.ImportJob{
		ApplicationID: applicationID,
		Status:        models.ImportRunning,
		Total:         len(entries),
	}
	if err := s.DB.Create(job).Error; err != nil {
		return nil, err
	}

	var importErrors []string
	for i, entry := range entries {
		_, err := s.Create(ctx, CreateCitationInput{
			ApplicationID: applicationID,
			DOI:           entry.DOI,
			PMID:          entry.PMID,
		})
		if err != nil {
			job.Failed++
			importErrors = append(importErrors, fmt.Sprintf("entry %d: %v", i+1, err))
			s.Logger.Warn("Batch-Import-Eintrag fehlgeschlagen",
				zap.String("application_id", applicationID),
				zap.Int("entry", i+1),
				zap.Error(err))
			continue
		}
		job.Succeeded++
	}

	now := time.Now()
	job.Status = models.ImportCompleted
	if job.Succeeded == 0 && job.Total > 0 {
		job.Status = models.ImportFailed
	}
	job.Errors = strings.Join(importErrors, "\n")
	job.FinishedAt = &now

	if err := s.DB.Save(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

// GenerateBibliography rendert die gesamte Bibliothek eines Antrags als
// nummerierte Liste im gewünschten Stil.
func (s *CitationService) GenerateBibliography(ctx context.Context, applicationID, style string) (string, error) {
	citations, err := s.List(applicationID)
	if err != nil {
		return "", err
	}

	lines := make([]string, 0, len(citations))
	for i, c := range citations {
		var formatted string
		switch strings.ToLower(style) {
		case "", "nih":
			formatted = c.FormattedNIH
		case "apa":
			formatted = c.FormattedAPA
		case "mla":
			formatted = c.FormattedMLA
		case "chicago":
			formatted = c.FormattedChicago
		default:
			formatted = s.Formatter.FormatWithAI(ctx, &c, style)
		}
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, formatted))
	}
	return strings.Join(lines, "\n\n"), nil
}

// NormalizeDOI entfernt URL-Präfixe und "doi:"-Vorspann aus einer DOI.
func NormalizeDOI(input string) string {
	return strings.TrimSpace(doiPrefixRegex.ReplaceAllString(input, ""))
}

// NormalizePMID extrahiert die 7- bis 8-stellige PMID aus Eingaben wie
// "PMID: 12345678" oder einer PubMed-URL.
func NormalizePMID(input string) string {
	if m := pmidDigitRegex.FindString(input); m != "" {
		return m
	}
	return strings.TrimSpace(input)
}

// articleToCitation wandelt ein Provider-Ergebnis in einen Datensatz um.
func articleToCitation(article *models.Article) *models.Citation {
	citation := &models.Citation{
		Title:        article.Title,
		Journal:      article.Journal,
		Publisher:    article.Publisher,
		Volume:       article.Volume,
		Issue:        article.Issue,
		Pages:        article.Pages,
		DOI:          article.DOI,
		PMID:         article.PMID,
		URL:          article.SourceURL,
		Abstract:     article.Abstract,
		CitationType: article.CitationType,
	}
	if year, err := strconv.Atoi(article.Year); err == nil {
		citation.Year = year
	}
	_ = citation.SetAuthors(article.AuthorDetails)
	return citation
}
