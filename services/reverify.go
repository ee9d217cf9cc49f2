package services

import (
	"context"
	"strings"

	"grant-scribe/models"

	"go.uber.org/zap"
)

// ReverifyService versucht nächtlich, unverifizierte Referenzen in den
// Bibliographien erneut aufzulösen. Erfolgreiche Auflösungen ersetzen die
// Platzhalter-Zeile; wird die PMID inzwischen schon geführt, entfällt die
// Zeile.
type ReverifyService struct {
	Sections *SectionService
	Resolver *ReferenceResolver
	Logger   *zap.Logger

	SectionName string
}

// NewReverifyService erstellt einen neuen ReverifyService.
func NewReverifyService(sections *SectionService, resolver *ReferenceResolver, logger *zap.Logger, sectionName string) *ReverifyService {
	if sectionName == "" {
		sectionName = "References"
	}
	return &ReverifyService{Sections: sections, Resolver: resolver, Logger: logger, SectionName: sectionName}
}

// Run verarbeitet alle Bibliographien mit unverifizierten Referenzen.
func (s *ReverifyService) Run(ctx context.Context) error {
	var sections []models.SectionVersion
	err := s.Sections.DB.
		Where("section_name = ? AND is_current_version = ? AND content LIKE ?",
			s.SectionName, true, "%"+unverifiedMarker+"%").
		Find(&sections).Error
	if err != nil {
		return err
	}

	s.Logger.Info("Starte Neu-Verifikation", zap.Int("sections", len(sections)))

	for i := range sections {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.reverifySection(ctx, &sections[i]); err != nil {
			s.Logger.Warn("Neu-Verifikation einer Sektion fehlgeschlagen",
				zap.String("application_id", sections[i].ApplicationID),
				zap.Error(err))
		}
	}
	return nil
}

// reverifySection löst die unverifizierten Zeilen einer Bibliographie erneut
// auf und legt bei Änderungen eine neue Version an.
func (s *ReverifyService) reverifySection(ctx context.Context, section *models.SectionVersion) error {
	lines := splitNumberedLines(section.Content)
	meta := section.Metadata()

	seenPmids := map[string]bool{}
	for _, pmid := range meta.PMIDs {
		seenPmids[pmid] = true
	}

	var kept []string
	pmids := append([]string(nil), meta.PMIDs...)
	changed := false

	for _, line := range lines {
		if !strings.HasPrefix(line, unverifiedMarker) {
			kept = append(kept, line)
			continue
		}

		original := stripUnverified(line)
		req := classifyRequest(0, original)
		resolved := s.Resolver.ResolveOne(ctx, req)
		if !resolved.Verified {
			kept = append(kept, line)
			continue
		}

		changed = true
		if seenPmids[resolved.PMID] {
			// Schon als verifizierte Referenz vorhanden, Zeile entfällt.
			continue
		}
		kept = append(kept, resolved.Formatted)
		seenPmids[resolved.PMID] = true
		pmids = append(pmids, resolved.PMID)
	}

	if !changed {
		return nil
	}

	meta.Source = "citation_reverification"
	meta.PMIDs = pmids

	_, err := s.Sections.CreateVersion(CreateVersionInput{
		ApplicationID: section.ApplicationID,
		SectionName:   section.SectionName,
		Content:       renumberLines(kept),
		PromptUsed:    "Auto-updated by nightly citation re-verification",
		CreatedBy:     section.CreatedBy,
		Metadata:      meta,
	})
	if err != nil {
		return err
	}

	s.Logger.Info("Bibliographie neu verifiziert",
		zap.String("application_id", section.ApplicationID),
		zap.Int("lines", len(kept)))
	return nil
}

// stripUnverified entfernt Marker und Hinweistext einer unverifizierten
// Zeile und gibt die ursprüngliche Referenz zurück.
func stripUnverified(line string) string {
	out := strings.TrimPrefix(line, unverifiedMarker)
	out = strings.TrimSuffix(out, unverifiedSuffix)
	return strings.TrimSpace(out)
}
