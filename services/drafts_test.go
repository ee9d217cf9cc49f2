package services

import (
	"context"
	"testing"
	"time"

	"grant-scribe/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDraftService(t *testing.T, provider *fakeProvider, quota int) (*DraftService, *SectionService, *gorm.DB) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&[]models.SectionTemplate{
		{SectionKey: "specific_aims", DisplayName: "Specific Aims", SortOrder: 1},
		{SectionKey: "references", DisplayName: "References", SortOrder: 2},
	}).Error)

	sections := NewSectionService(db, newTestLogger())
	resolver := NewReferenceResolver(provider, newTestLogger(), time.Millisecond, 100*time.Millisecond)
	merger := NewReferenceMerger(sections, newTestLogger(), "References")
	drafts := NewDraftService(db, newTestLogger(), sections, resolver, merger, quota)
	return drafts, sections, db
}

func TestSaveDraftResolvesAndMerges(t *testing.T) {
	provider := &fakeProvider{byID: map[string]*models.Article{"12345678": testArticle()}}
	drafts, sections, _ := newTestDraftService(t, provider, 0)

	result, err := drafts.SaveDraft(context.Background(), SaveDraftInput{
		ApplicationID: "app-1",
		SectionKey:    "specific_aims",
		Content:       sampleContent,
		CreatedBy:     "user-1",
	})
	require.NoError(t, err)

	// Sektion ohne Referenzblock gespeichert
	assert.Equal(t, "Die Studienlage ist eindeutig [1][2].", result.Section.Content)
	assert.Equal(t, "Specific Aims", result.Section.SectionName)
	assert.Equal(t, 1, result.Section.VersionNumber)

	// Eine verifizierte, zwei unverifizierte Referenzen
	assert.Equal(t, 1, result.ReferencesVerified)
	assert.Equal(t, 3, result.ReferencesTotal)
	assert.Equal(t, 3, result.ReferencesAdded)

	bibliography, err := sections.GetCurrent("app-1", "References")
	require.NoError(t, err)
	assert.Contains(t, bibliography.Content, "PMID: 12345678.")
	assert.Contains(t, bibliography.Content, "[UNVERIFIED]")
	assert.Equal(t, []string{"12345678"}, bibliography.Metadata().PMIDs)
}

func TestSaveDraftWithoutReferenceBlock(t *testing.T) {
	provider := &fakeProvider{}
	drafts, sections, db := newTestDraftService(t, provider, 0)

	result, err := drafts.SaveDraft(context.Background(), SaveDraftInput{
		ApplicationID: "app-1",
		SectionKey:    "specific_aims",
		Content:       "Nur Fließtext.",
	})
	require.NoError(t, err)
	assert.Equal(t, "Nur Fließtext.", result.Section.Content)
	assert.Zero(t, result.ReferencesTotal)

	// Keine Bibliographie, kein Usage-Record, kein Provider-Aufruf
	_, err = sections.GetCurrent("app-1", "References")
	assert.True(t, IsNotFound(err))
	var usage int64
	db.Model(&models.UsageRecord{}).Count(&usage)
	assert.Zero(t, usage)
	assert.Empty(t, provider.fetched)
	assert.Empty(t, provider.searched)
}

func TestSaveDraftAlwaysCreatesExactlyOneVersion(t *testing.T) {
	provider := &fakeProvider{byID: map[string]*models.Article{"12345678": testArticle()}}
	drafts, sections, _ := newTestDraftService(t, provider, 0)

	for i := 0; i < 2; i++ {
		_, err := drafts.SaveDraft(context.Background(), SaveDraftInput{
			ApplicationID: "app-1",
			SectionKey:    "specific_aims",
			Content:       sampleContent,
		})
		require.NoError(t, err)
	}

	history, err := sections.GetHistory("app-1", "Specific Aims")
	require.NoError(t, err)
	assert.Len(t, history, 2)
	assert.Equal(t, 2, history[0].VersionNumber)
}

func TestSaveDraftUnknownSectionKey(t *testing.T) {
	drafts, _, _ := newTestDraftService(t, &fakeProvider{}, 0)

	_, err := drafts.SaveDraft(context.Background(), SaveDraftInput{
		ApplicationID: "app-1",
		SectionKey:    "does_not_exist",
		Content:       "x",
	})
	assert.True(t, IsValidation(err))
}

func TestSaveDraftQuotaExceeded(t *testing.T) {
	provider := &fakeProvider{byID: map[string]*models.Article{"12345678": testArticle()}}
	drafts, _, db := newTestDraftService(t, provider, 1)

	require.NoError(t, db.Create(&models.UsageRecord{ApplicationID: "app-1", Operation: "save"}).Error)

	_, err := drafts.SaveDraft(context.Background(), SaveDraftInput{
		ApplicationID: "app-1",
		SectionKey:    "specific_aims",
		Content:       sampleContent,
	})
	assert.ErrorIs(t, err, ErrRateLimitExceeded)

	// Ohne Referenzblock greift die Quote nicht
	_, err = drafts.SaveDraft(context.Background(), SaveDraftInput{
		ApplicationID: "app-1",
		SectionKey:    "specific_aims",
		Content:       "Nur Fließtext.",
	})
	assert.NoError(t, err)
}

func TestSaveDraftPreResolvedSkipsResolver(t *testing.T) {
	provider := &fakeProvider{}
	drafts, sections, _ := newTestDraftService(t, provider, 0)

	_, err := drafts.SaveDraft(context.Background(), SaveDraftInput{
		ApplicationID: "app-1",
		SectionKey:    "specific_aims",
		Content:       "Text ohne Block.",
		PreResolved: []ResolvedReference{
			verifiedRef("555", "Known paper. PMID: 555."),
		},
	})
	require.NoError(t, err)

	assert.Empty(t, provider.fetched)
	assert.Empty(t, provider.searched)

	bibliography, err := sections.GetCurrent("app-1", "References")
	require.NoError(t, err)
	assert.Equal(t, []string{"555"}, bibliography.Metadata().PMIDs)
}

func TestSaveDraftRecordsUsage(t *testing.T) {
	provider := &fakeProvider{byID: map[string]*models.Article{"12345678": testArticle()}}
	drafts, _, db := newTestDraftService(t, provider, 0)

	_, err := drafts.SaveDraft(context.Background(), SaveDraftInput{
		ApplicationID: "app-1",
		SectionKey:    "specific_aims",
		Content:       sampleContent,
	})
	require.NoError(t, err)

	var records []models.UsageRecord
	require.NoError(t, db.Find(&records).Error)
	require.Len(t, records, 1)
	assert.Equal(t, "save", records[0].Operation)
	assert.Equal(t, 3, records[0].ReferencesTotal)
	assert.Equal(t, 1, records[0].ReferencesResolved)
}

func TestResolveForPreviewDoesNotPersist(t *testing.T) {
	provider := &fakeProvider{byID: map[string]*models.Article{"12345678": testArticle()}}
	drafts, sections, db := newTestDraftService(t, provider, 0)

	cleanContent, refs, err := drafts.ResolveForPreview(context.Background(), "app-1", sampleContent)
	require.NoError(t, err)
	assert.Equal(t, "Die Studienlage ist eindeutig [1][2].", cleanContent)
	require.Len(t, refs, 3)
	assert.True(t, refs[0].Verified)

	// Keine Sektion, keine Bibliographie, kein Usage-Record
	_, err = sections.GetCurrent("app-1", "Specific Aims")
	assert.True(t, IsNotFound(err))
	_, err = sections.GetCurrent("app-1", "References")
	assert.True(t, IsNotFound(err))
	var usage int64
	db.Model(&models.UsageRecord{}).Count(&usage)
	assert.Zero(t, usage)
}

func TestSaveDraftQuotaIgnoresPreviousDays(t *testing.T) {
	provider := &fakeProvider{byID: map[string]*models.Article{"12345678": testArticle()}}
	drafts, _, db := newTestDraftService(t, provider, 1)

	// Ein Lauf von gestern zählt nicht gegen die heutige Quote
	require.NoError(t, db.Create(&models.UsageRecord{
		CreatedAt:     time.Now().Add(-25 * time.Hour),
		ApplicationID: "app-1",
		Operation:     "save",
	}).Error)

	_, err := drafts.SaveDraft(context.Background(), SaveDraftInput{
		ApplicationID: "app-1",
		SectionKey:    "specific_aims",
		Content:       sampleContent,
	})
	assert.NoError(t, err)
}
