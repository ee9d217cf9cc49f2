package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Uploader lädt ein Export-Dokument in einen Objektspeicher und gibt den
// Link zurück.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte) (string, error)
}

// SnapshotService exportiert den aktuellen Stand eines Antrags als ein
// zusammenhängendes Markdown-Dokument.
type SnapshotService struct {
	Sections *SectionService
	Logger   *zap.Logger

	// Uploader darf nil sein, dann steht nur Render zur Verfügung.
	Uploader Uploader
}

// NewSnapshotService erstellt einen neuen SnapshotService.
func NewSnapshotService(sections *SectionService, logger *zap.Logger, uploader Uploader) *SnapshotService {
	return &SnapshotService{Sections: sections, Logger: logger, Uploader: uploader}
}

// Render baut das Markdown-Dokument aus den aktuellen Versionen aller
// Sektionen eines Antrags.
func (s *SnapshotService) Render(applicationID string) (string, error) {
	sections, err := s.Sections.ListCurrent(applicationID)
	if err != nil {
		return "", err
	}
	if len(sections) == 0 {
		return "", &NotFoundError{Resource: "application", ID: applicationID}
	}

	var b strings.Builder
	for i, section := range sections {
		if i > 0 {
			b.WriteString("\n\n---\n\n")
		}
		fmt.Fprintf(&b, "# %s\n\n%s", section.SectionName, section.Content)
	}
	b.WriteString("\n")
	return b.String(), nil
}

// Export rendert das Dokument und lädt es als Snapshot in den
// Objektspeicher.
func (s *SnapshotService) Export(ctx context.Context, applicationID string) (string, error) {
	if s.Uploader == nil {
		return "", &ValidationError{Msg: "snapshot export is not configured"}
	}

	doc, err := s.Render(applicationID)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("applications/%s/snapshot-%s.md",
		applicationID, time.Now().UTC().Format("2006-01-02T15-04-05Z"))
	link, err := s.Uploader.Upload(ctx, key, []byte(doc))
	if err != nil {
		return "", &ExternalServiceError{Service: "s3", Err: err}
	}

	s.Logger.Info("Antrags-Snapshot exportiert",
		zap.String("application_id", applicationID),
		zap.String("key", key))
	return link, nil
}
