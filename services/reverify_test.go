package services

import (
	"context"
	"testing"
	"time"

	"grant-scribe/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReverifyService(t *testing.T, provider *fakeProvider) (*ReverifyService, *ReferenceMerger, *SectionService) {
	sections := newTestSectionService(t)
	resolver := NewReferenceResolver(provider, newTestLogger(), time.Millisecond, 100*time.Millisecond)
	merger := NewReferenceMerger(sections, newTestLogger(), "References")
	return NewReverifyService(sections, resolver, newTestLogger(), "References"), merger, sections
}

func unverifiedFor(raw string) ResolvedReference {
	return unverifiedReference(ReferenceRequest{Position: 1, RawText: raw})
}

func TestReverifyResolvesUnverifiedLines(t *testing.T) {
	provider := &fakeProvider{byQuery: map[string]*models.Article{
		"Smith et al., Nature 2021": testArticle(),
	}}
	svc, merger, sections := newTestReverifyService(t, provider)

	_, err := merger.Merge("app-1", "user-1", []ResolvedReference{
		verifiedRef("999", "Known paper. PMID: 999."),
		unverifiedFor("Smith et al., Nature 2021"),
	})
	require.NoError(t, err)

	require.NoError(t, svc.Run(context.Background()))

	current, err := sections.GetCurrent("app-1", "References")
	require.NoError(t, err)
	assert.NotContains(t, current.Content, unverifiedMarker)
	assert.Contains(t, current.Content, "PMID: 12345678.")
	assert.Equal(t, []string{"999", "12345678"}, current.Metadata().PMIDs)
	assert.Equal(t, "citation_reverification", current.Metadata().Source)
	assert.Equal(t, 2, current.VersionNumber)
}

func TestReverifyKeepsStillUnresolvableLines(t *testing.T) {
	provider := &fakeProvider{}
	svc, merger, sections := newTestReverifyService(t, provider)

	_, err := merger.Merge("app-1", "user-1", []ResolvedReference{
		unverifiedFor("Unfindbare Referenz"),
	})
	require.NoError(t, err)

	require.NoError(t, svc.Run(context.Background()))

	// Keine Änderung, keine neue Version
	current, err := sections.GetCurrent("app-1", "References")
	require.NoError(t, err)
	assert.Contains(t, current.Content, unverifiedMarker)
	assert.Equal(t, 1, current.VersionNumber)
}

func TestReverifyDropsLineWhenPMIDAlreadyPresent(t *testing.T) {
	// Die Auflösung liefert eine PMID, die bereits verifiziert geführt wird
	article := testArticle()
	provider := &fakeProvider{byQuery: map[string]*models.Article{
		"Gene editing in practice": article,
	}}
	svc, merger, sections := newTestReverifyService(t, provider)

	_, err := merger.Merge("app-1", "user-1", []ResolvedReference{
		verifiedRef("12345678", "Gene editing in practice. Nat Med. 2021. PMID: 12345678."),
		unverifiedFor("Gene editing in practice"),
	})
	require.NoError(t, err)

	require.NoError(t, svc.Run(context.Background()))

	current, err := sections.GetCurrent("app-1", "References")
	require.NoError(t, err)
	assert.NotContains(t, current.Content, unverifiedMarker)
	assert.Equal(t, []string{"12345678"}, current.Metadata().PMIDs)

	lines := splitNumberedLines(current.Content)
	assert.Len(t, lines, 1)
}

func TestReverifyIgnoresCleanSections(t *testing.T) {
	provider := &fakeProvider{}
	svc, merger, sections := newTestReverifyService(t, provider)

	_, err := merger.Merge("app-1", "user-1", []ResolvedReference{
		verifiedRef("111", "Clean paper. PMID: 111."),
	})
	require.NoError(t, err)

	require.NoError(t, svc.Run(context.Background()))

	current, err := sections.GetCurrent("app-1", "References")
	require.NoError(t, err)
	assert.Equal(t, 1, current.VersionNumber)
	assert.Empty(t, provider.searched)
}

func TestStripUnverified(t *testing.T) {
	line := unverifiedMarker + " Smith 2021" + unverifiedSuffix
	assert.Equal(t, "Smith 2021", stripUnverified(line))
}
