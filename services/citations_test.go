package services

import (
	"context"
	"testing"

	"grant-scribe/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCitationService(t *testing.T, pubmed, crossref *fakeProvider) *CitationService {
	db := newTestDB(t)
	formatter := NewCitationFormatter(newTestLogger(), nil, "")
	return NewCitationService(db, newTestLogger(), pubmed, crossref, formatter)
}

func manualCitation(t *testing.T) *models.Citation {
	t.Helper()
	c := &models.Citation{
		Title:   "Manual entry",
		Journal: "J Test",
		Year:    2019,
	}
	require.NoError(t, c.SetAuthors([]models.Author{{FirstName: "Ada", LastName: "Lovelace"}}))
	return c
}

func TestCreateManualCitation(t *testing.T) {
	svc := newTestCitationService(t, &fakeProvider{}, &fakeProvider{})

	citation, err := svc.Create(context.Background(), CreateCitationInput{
		ApplicationID: "app-1",
		Manual:        manualCitation(t),
	})
	require.NoError(t, err)

	assert.Equal(t, models.CitationSourceManual, citation.Source)
	assert.NotEmpty(t, citation.ID)
	assert.NotEmpty(t, citation.FormattedNIH)
	assert.NotEmpty(t, citation.FormattedAPA)
	assert.NotEmpty(t, citation.FormattedMLA)
	assert.NotEmpty(t, citation.FormattedChicago)
}

func TestCreateManualCitationRequiresTitle(t *testing.T) {
	svc := newTestCitationService(t, &fakeProvider{}, &fakeProvider{})
	_, err := svc.Create(context.Background(), CreateCitationInput{
		ApplicationID: "app-1",
		Manual:        &models.Citation{},
	})
	assert.True(t, IsValidation(err))
}

func TestCreateCitationByPMID(t *testing.T) {
	article := testArticle()
	article.AuthorDetails = []models.Author{{FirstName: "A", LastName: "Smith"}}
	pubmed := &fakeProvider{byID: map[string]*models.Article{"12345678": article}}
	svc := newTestCitationService(t, pubmed, &fakeProvider{})

	citation, err := svc.Create(context.Background(), CreateCitationInput{
		ApplicationID: "app-1",
		PMID:          "PMID: 12345678",
	})
	require.NoError(t, err)

	assert.Equal(t, models.CitationSourcePMID, citation.Source)
	assert.Equal(t, "12345678", citation.PMID)
	assert.Equal(t, "Gene editing in practice", citation.Title)
	assert.Equal(t, 2021, citation.Year)
	// Die PMID wurde aus dem Präfix normalisiert
	assert.Equal(t, []string{"12345678"}, pubmed.fetched)
}

func TestCreateCitationByDOI(t *testing.T) {
	article := testArticle()
	crossref := &fakeProvider{byID: map[string]*models.Article{"10.1000/xyz": article}}
	svc := newTestCitationService(t, &fakeProvider{}, crossref)

	citation, err := svc.Create(context.Background(), CreateCitationInput{
		ApplicationID: "app-1",
		DOI:           "https://doi.org/10.1000/xyz",
	})
	require.NoError(t, err)

	assert.Equal(t, models.CitationSourceDOI, citation.Source)
	assert.Equal(t, "10.1000/xyz", citation.DOI)
	assert.Equal(t, []string{"10.1000/xyz"}, crossref.fetched)
}

func TestCreateCitationUnknownPMID(t *testing.T) {
	svc := newTestCitationService(t, &fakeProvider{}, &fakeProvider{})
	_, err := svc.Create(context.Background(), CreateCitationInput{
		ApplicationID: "app-1",
		PMID:          "99999999",
	})
	assert.True(t, IsNotFound(err))
}

func TestCreateCitationRequiresInput(t *testing.T) {
	svc := newTestCitationService(t, &fakeProvider{}, &fakeProvider{})
	_, err := svc.Create(context.Background(), CreateCitationInput{ApplicationID: "app-1"})
	assert.True(t, IsValidation(err))
}

func TestUpdateRegeneratesFormats(t *testing.T) {
	svc := newTestCitationService(t, &fakeProvider{}, &fakeProvider{})

	citation, err := svc.Create(context.Background(), CreateCitationInput{
		ApplicationID: "app-1",
		Manual:        manualCitation(t),
	})
	require.NoError(t, err)
	before := citation.FormattedNIH

	update := *citation
	update.Title = "Renamed entry"
	updated, err := svc.Update(citation.ID, &update)
	require.NoError(t, err)

	assert.NotEqual(t, before, updated.FormattedNIH)
	assert.Contains(t, updated.FormattedNIH, "Renamed entry")
	assert.Contains(t, updated.FormattedAPA, "Renamed entry")
}

func TestDeleteCitation(t *testing.T) {
	svc := newTestCitationService(t, &fakeProvider{}, &fakeProvider{})

	citation, err := svc.Create(context.Background(), CreateCitationInput{
		ApplicationID: "app-1",
		Manual:        manualCitation(t),
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(citation.ID))
	_, err = svc.Get(citation.ID)
	assert.True(t, IsNotFound(err))

	assert.True(t, IsNotFound(svc.Delete(citation.ID)))
}

func TestTrackUsage(t *testing.T) {
	svc := newTestCitationService(t, &fakeProvider{}, &fakeProvider{})

	citation, err := svc.Create(context.Background(), CreateCitationInput{
		ApplicationID: "app-1",
		Manual:        manualCitation(t),
	})
	require.NoError(t, err)

	require.NoError(t, svc.TrackUsage(citation.ID))
	require.NoError(t, svc.TrackUsage(citation.ID))

	tracked, err := svc.Get(citation.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, tracked.UsageCount)
	assert.NotNil(t, tracked.LastUsedAt)
}

func TestBatchImportPartialSuccess(t *testing.T) {
	article := testArticle()
	pubmed := &fakeProvider{byID: map[string]*models.Article{"12345678": article}}
	svc := newTestCitationService(t, pubmed, &fakeProvider{})

	job, err := svc.BatchImport(context.Background(), "app-1", []BatchImportEntry{
		{PMID: "12345678"},
		{PMID: "99999999"},
	})
	require.NoError(t, err)

	assert.Equal(t, models.ImportCompleted, job.Status)
	assert.Equal(t, 2, job.Total)
	assert.Equal(t, 1, job.Succeeded)
	assert.Equal(t, 1, job.Failed)
	assert.Contains(t, job.Errors, "entry 2")
	assert.NotNil(t, job.FinishedAt)

	citations, err := svc.List("app-1")
	require.NoError(t, err)
	assert.Len(t, citations, 1)
}

func TestBatchImportAllFailed(t *testing.T) {
	svc := newTestCitationService(t, &fakeProvider{}, &fakeProvider{})

	job, err := svc.BatchImport(context.Background(), "app-1", []BatchImportEntry{
		{PMID: "99999999"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ImportFailed, job.Status)
}

func TestGenerateBibliography(t *testing.T) {
	svc := newTestCitationService(t, &fakeProvider{}, &fakeProvider{})

	first := manualCitation(t)
	second := manualCitation(t)
	second.Title = "Second entry"
	for _, c := range []*models.Citation{first, second} {
		_, err := svc.Create(context.Background(), CreateCitationInput{ApplicationID: "app-1", Manual: c})
		require.NoError(t, err)
	}

	bibliography, err := svc.GenerateBibliography(context.Background(), "app-1", "nih")
	require.NoError(t, err)
	assert.Contains(t, bibliography, "1. ")
	assert.Contains(t, bibliography, "2. ")
	assert.Contains(t, bibliography, "Manual entry")
	assert.Contains(t, bibliography, "Second entry")
}

func TestSearch(t *testing.T) {
	svc := newTestCitationService(t, &fakeProvider{}, &fakeProvider{})

	_, err := svc.Create(context.Background(), CreateCitationInput{ApplicationID: "app-1", Manual: manualCitation(t)})
	require.NoError(t, err)

	// Titel, Journal und Autoren werden durchsucht
	for _, query := range []string{"MANUAL", "j test", "Lovelace"} {
		results, err := svc.Search("app-1", query)
		require.NoError(t, err)
		assert.Len(t, results, 1, "query %q", query)
	}

	results, err := svc.Search("app-1", "nonexistent")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestNormalizeDOI(t *testing.T) {
	assert.Equal(t, "10.1234/example", NormalizeDOI("10.1234/example"))
	assert.Equal(t, "10.1234/example", NormalizeDOI("https://doi.org/10.1234/example"))
	assert.Equal(t, "10.1234/example", NormalizeDOI("doi: 10.1234/example"))
}

func TestNormalizePMID(t *testing.T) {
	assert.Equal(t, "12345678", NormalizePMID("12345678"))
	assert.Equal(t, "12345678", NormalizePMID("PMID: 12345678"))
	assert.Equal(t, "12345678", NormalizePMID("https://pubmed.ncbi.nlm.nih.gov/12345678/"))
}
