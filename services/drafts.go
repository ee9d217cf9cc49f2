package services

import (
	"context"
	"errors"
	"time"

	"grant-scribe/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DraftService orchestriert das Speichern eines Sektions-Entwurfs: Template-
// Prüfung, Abtrennen und Auflösen des Referenzblocks, Anlegen der neuen
// Version und Einpflegen der Referenzen in die Bibliographie.
type DraftService struct {
	DB       *gorm.DB
	Logger   *zap.Logger
	Sections *SectionService
	Resolver *ReferenceResolver
	Merger   *ReferenceMerger

	// DailyQuota begrenzt die Auflösungs-Läufe pro Antrag und Tag.
	// 0 bedeutet unbegrenzt.
	DailyQuota int
}

// NewDraftService erstellt einen neuen DraftService.
func NewDraftService(db *gorm.DB, logger *zap.Logger, sections *SectionService, resolver *ReferenceResolver, merger *ReferenceMerger, dailyQuota int) *DraftService {
	return &DraftService{
		DB:         db,
		Logger:     logger,
		Sections:   sections,
		Resolver:   resolver,
		Merger:     merger,
		DailyQuota: dailyQuota,
	}
}

// SaveDraftInput sind die Eingaben für das Speichern eines Entwurfs.
type SaveDraftInput struct {
	ApplicationID string
	SectionKey    string
	Content       string
	CreatedBy     string

	// PreResolved überspringt die Auflösung und übernimmt die bereits
	// aufgelösten Referenzen (z.B. aus einer Vorschau).
	PreResolved []ResolvedReference
}

// DraftResult beschreibt das Ergebnis eines Speichervorgangs.
type DraftResult struct {
	Section             *models.SectionVersion `json:"section"`
	ReferencesAdded     int                    `json:"references_added"`
	ReferencesVerified  int                    `json:"references_verified"`
	ReferencesTotal     int                    `json:"references_total"`
	BibliographyVersion *models.SectionVersion `json:"bibliography_version,omitempty"`
}

// SaveDraft speichert einen Entwurf. Ein Referenzblock im Inhalt wird
// abgetrennt, aufgelöst und in die Bibliographie eingepflegt; die Sektion
// selbst wird immer als genau eine neue Version angelegt.
func (s *DraftService) SaveDraft(ctx context.Context, input SaveDraftInput) (*DraftResult, error) {
	template, err := s.lookupTemplate(input.SectionKey)
	if err != nil {
		return nil, err
	}

	block, remainder, found := ExtractReferenceBlock(input.Content)

	var refs []ResolvedReference
	switch {
	case len(input.PreResolved) > 0:
		refs = input.PreResolved
	case found:
		requests := ParseReferenceBlock(block)
		if len(requests) > 0 {
			if err := s.checkQuota(input.ApplicationID); err != nil {
				return nil, err
			}
			refs = s.Resolver.ResolveMany(ctx, requests)
			s.recordUsage(input.ApplicationID, template.DisplayName, "save", refs)
		}
	}

	version, err := s.Sections.CreateVersion(CreateVersionInput{
		ApplicationID: input.ApplicationID,
		SectionName:   template.DisplayName,
		Content:       remainder,
		CreatedBy:     input.CreatedBy,
		Metadata: models.SectionMetadata{
			Source:            "draft_save",
			CitationsResolved: countVerified(refs),
			CitationsTotal:    len(refs),
		},
	})
	if err != nil {
		return nil, err
	}

	result := &DraftResult{
		Section:            version,
		ReferencesVerified: countVerified(refs),
		ReferencesTotal:    len(refs),
	}

	if len(refs) > 0 {
		merge, err := s.Merger.Merge(input.ApplicationID, input.CreatedBy, refs)
		if err != nil {
			return nil, err
		}
		result.ReferencesAdded = merge.Added
		result.BibliographyVersion = merge.Version
	}

	return result, nil
}

// ResolveForPreview löst die Referenzen eines Inhalts auf, ohne etwas zu
// speichern. Die Tages-Quote wird geprüft, aber kein Usage-Record
// geschrieben; die Vorschau hat keinerlei Schreibzugriffe.
func (s *DraftService) ResolveForPreview(ctx context.Context, applicationID, content string) (string, []ResolvedReference, error) {
	block, remainder, found := ExtractReferenceBlock(content)
	if !found {
		return content, nil, nil
	}

	requests := ParseReferenceBlock(block)
	if len(requests) == 0 {
		return remainder, nil, nil
	}
	if err := s.checkQuota(applicationID); err != nil {
		return "", nil, err
	}

	refs := s.Resolver.ResolveMany(ctx, requests)
	return remainder, refs, nil
}

// lookupTemplate holt das Sektions-Template zu einem Key.
func (s *DraftService) lookupTemplate(sectionKey string) (*models.SectionTemplate, error) {
	if sectionKey == "" {
		return nil, &ValidationError{Msg: "section_key is required"}
	}
	var template models.SectionTemplate
	err := s.DB.Where("section_key = ?", sectionKey).First(&template).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &ValidationError{Msg: "unknown section key: " + sectionKey}
	}
	if err != nil {
		return nil, err
	}
	return &template, nil
}

// checkQuota prüft die Tages-Quote für Auflösungs-Läufe eines Antrags.
func (s *DraftService) checkQuota(applicationID string) error {
	if s.DailyQuota <= 0 {
		return nil
	}
	now := time.Now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var count int64
	err := s.DB.Model(&models.UsageRecord{}).
		Where("application_id = ? AND created_at >= ?", applicationID, startOfDay).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count >= int64(s.DailyQuota) {
		s.Logger.Warn("Tages-Quote für Referenz-Auflösung erschöpft",
			zap.String("application_id", applicationID),
			zap.Int64("used", count),
			zap.Int("quota", s.DailyQuota))
		return ErrRateLimitExceeded
	}
	return nil
}

// recordUsage protokolliert einen Auflösungs-Lauf.
func (s *DraftService) recordUsage(applicationID, sectionName, operation string, refs []ResolvedReference) {
	record := &models.UsageRecord{
		ApplicationID:      applicationID,
		SectionName:        sectionName,
		Operation:          operation,
		ReferencesTotal:    len(refs),
		ReferencesResolved: countVerified(refs),
	}
	if err := s.DB.Create(record).Error; err != nil {
		s.Logger.Warn("Konnte Usage-Record nicht speichern", zap.Error(err))
	}
}

func countVerified(refs []ResolvedReference) int {
	verified := 0
	for _, ref := range refs {
		if ref.Verified {
			verified++
		}
	}
	return verified
}
