package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	key  string
	data []byte
}

func (u *fakeUploader) Upload(ctx context.Context, key string, data []byte) (string, error) {
	u.key = key
	u.data = data
	return "https://bucket.example/" + key, nil
}

func TestRenderConcatenatesCurrentSections(t *testing.T) {
	sections := newTestSectionService(t)
	svc := NewSnapshotService(sections, newTestLogger(), nil)

	_, err := sections.CreateVersion(CreateVersionInput{
		ApplicationID: "app-1", SectionName: "Approach", Content: "Methodik.",
	})
	require.NoError(t, err)
	_, err = sections.CreateVersion(CreateVersionInput{
		ApplicationID: "app-1", SectionName: "Specific Aims", Content: "Veraltet.",
	})
	require.NoError(t, err)
	_, err = sections.CreateVersion(CreateVersionInput{
		ApplicationID: "app-1", SectionName: "Specific Aims", Content: "Ziele.",
	})
	require.NoError(t, err)

	doc, err := svc.Render("app-1")
	require.NoError(t, err)

	assert.Contains(t, doc, "# Approach\n\nMethodik.")
	assert.Contains(t, doc, "# Specific Aims\n\nZiele.")
	assert.Contains(t, doc, "\n\n---\n\n")
	// Nur aktuelle Versionen landen im Export
	assert.NotContains(t, doc, "Veraltet.")
}

func TestRenderUnknownApplication(t *testing.T) {
	sections := newTestSectionService(t)
	svc := NewSnapshotService(sections, newTestLogger(), nil)

	_, err := svc.Render("app-x")
	assert.True(t, IsNotFound(err))
}

func TestExportUploadsSnapshot(t *testing.T) {
	sections := newTestSectionService(t)
	uploader := &fakeUploader{}
	svc := NewSnapshotService(sections, newTestLogger(), uploader)

	_, err := sections.CreateVersion(CreateVersionInput{
		ApplicationID: "app-1", SectionName: "Approach", Content: "Methodik.",
	})
	require.NoError(t, err)

	link, err := svc.Export(context.Background(), "app-1")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(uploader.key, "applications/app-1/snapshot-"))
	assert.True(t, strings.HasSuffix(uploader.key, ".md"))
	assert.Contains(t, string(uploader.data), "# Approach")
	assert.Contains(t, link, uploader.key)
}

func TestExportWithoutUploader(t *testing.T) {
	sections := newTestSectionService(t)
	svc := NewSnapshotService(sections, newTestLogger(), nil)

	_, err := svc.Export(context.Background(), "app-1")
	assert.True(t, IsValidation(err))
}
