package services

import (
	"fmt"
	"regexp"
	"strings"

	"grant-scribe/models"

	"go.uber.org/zap"
)

var lineNumberRegex = regexp.MustCompile(`^\[\d+\]\s*`)

// mergePrompt wird als PromptUsed der automatisch erzeugten
// Bibliographie-Versionen gespeichert.
const mergePrompt = "Auto-populated from PubMed citation resolution"

// ReferenceMerger führt aufgelöste Referenzen in die Bibliographie-Sektion
// eines Antrags ein. Dedupliziert wird ausschließlich über die PMID-Menge in
// den Metadaten der aktuellen Version, nie über den Text.
type ReferenceMerger struct {
	Sections *SectionService
	Logger   *zap.Logger

	// SectionName ist der Name der Bibliographie-Sektion, z.B. "References".
	SectionName string
}

// NewReferenceMerger erstellt einen neuen Merger.
func NewReferenceMerger(sections *SectionService, logger *zap.Logger, sectionName string) *ReferenceMerger {
	if sectionName == "" {
		sectionName = "References"
	}
	return &ReferenceMerger{Sections: sections, Logger: logger, SectionName: sectionName}
}

// MergeResult beschreibt das Ergebnis eines Merge-Laufs.
type MergeResult struct {
	Created bool
	Version *models.SectionVersion
	Added   int
	Total   int
}

// Merge hängt neue Referenzen an die Bibliographie an und nummeriert die
// gesamte Liste neu durch. Bereits bekannte PMIDs werden übersprungen,
// unverifizierte Referenzen werden immer angehängt. Ergibt sich keine neue
// Zeile, wird keine Version angelegt.
func (m *ReferenceMerger) Merge(applicationID, createdBy string, refs []ResolvedReference) (*MergeResult, error) {
	if len(refs) == 0 {
		return &MergeResult{}, nil
	}

	current, err := m.Sections.GetCurrent(applicationID, m.SectionName)
	if err != nil && !IsNotFound(err) {
		return nil, err
	}

	seenPmids := map[string]bool{}
	var existingLines []string
	var allPmids []string
	if current != nil {
		for _, pmid := range current.Metadata().PMIDs {
			seenPmids[pmid] = true
			allPmids = append(allPmids, pmid)
		}
		existingLines = splitNumberedLines(current.Content)
	}

	var newLines []string
	for _, ref := range refs {
		if ref.Verified {
			if seenPmids[ref.PMID] {
				continue
			}
			newLines = append(newLines, ref.Formatted)
			seenPmids[ref.PMID] = true
			allPmids = append(allPmids, ref.PMID)
			continue
		}
		newLines = append(newLines, ref.Formatted)
	}

	if len(newLines) == 0 {
		return &MergeResult{}, nil
	}

	allLines := append(existingLines, newLines...)

	version, err := m.Sections.CreateVersion(CreateVersionInput{
		ApplicationID: applicationID,
		SectionName:   m.SectionName,
		Content:       renumberLines(allLines),
		PromptUsed:    mergePrompt,
		CreatedBy:     createdBy,
		Metadata: models.SectionMetadata{
			Source: "citation_resolution",
			PMIDs:  allPmids,
		},
	})
	if err != nil {
		return nil, err
	}

	m.Logger.Info("Bibliographie aktualisiert",
		zap.String("application_id", applicationID),
		zap.Int("added", len(newLines)),
		zap.Int("total", len(allLines)))

	return &MergeResult{Created: true, Version: version, Added: len(newLines), Total: len(allLines)}, nil
}

// splitNumberedLines zerlegt einen Bibliographie-Inhalt in einzelne
// Referenzzeilen ohne Klammer-Nummern.
func splitNumberedLines(content string) []string {
	var lines []string
	for _, block := range strings.Split(content, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		lines = append(lines, strings.TrimSpace(lineNumberRegex.ReplaceAllString(block, "")))
	}
	return lines
}

// renumberLines nummeriert Referenzzeilen fortlaufend ab [1] und verbindet
// sie mit Leerzeilen.
func renumberLines(lines []string) string {
	numbered := make([]string, len(lines))
	for i, line := range lines {
		numbered[i] = fmt.Sprintf("[%d] %s", i+1, line)
	}
	return strings.Join(numbered, "\n\n")
}
