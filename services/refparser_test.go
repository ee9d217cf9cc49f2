package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleContent = `Die Studienlage ist eindeutig [1][2].

---REFERENCES---
[1] PMID: 12345678
[2] SEARCH: CRISPR base editing efficiency
[3] Smith et al., Nature 2021
---END REFERENCES---`

func TestExtractReferenceBlock(t *testing.T) {
	block, remainder, found := ExtractReferenceBlock(sampleContent)
	require.True(t, found)
	assert.Contains(t, block, "[1] PMID: 12345678")
	assert.Contains(t, block, "[3] Smith et al., Nature 2021")
	assert.Equal(t, "Die Studienlage ist eindeutig [1][2].", remainder)
	assert.NotContains(t, remainder, "---REFERENCES---")
}

func TestExtractReferenceBlockWithoutBlock(t *testing.T) {
	content := "Nur Fließtext, keine Referenzen."
	block, remainder, found := ExtractReferenceBlock(content)
	assert.False(t, found)
	assert.Empty(t, block)
	assert.Equal(t, content, remainder)
}

func TestParseReferenceBlock(t *testing.T) {
	block, _, found := ExtractReferenceBlock(sampleContent)
	require.True(t, found)

	requests := ParseReferenceBlock(block)
	require.Len(t, requests, 3)

	assert.Equal(t, 1, requests[0].Position)
	assert.Equal(t, ModeDirectID, requests[0].Mode)
	assert.Equal(t, "12345678", requests[0].Query)

	assert.Equal(t, 2, requests[1].Position)
	assert.Equal(t, ModeKeyword, requests[1].Mode)
	assert.Equal(t, "CRISPR base editing efficiency", requests[1].Query)

	// Freitext ohne Präfix wird als Suche behandelt
	assert.Equal(t, 3, requests[2].Position)
	assert.Equal(t, ModeKeyword, requests[2].Mode)
	assert.Equal(t, "Smith et al., Nature 2021", requests[2].Query)
}

func TestParseReferenceBlockCaseInsensitivePrefixes(t *testing.T) {
	requests := ParseReferenceBlock("[1] pmid: 11112222\n[2] search: gut microbiome")
	require.Len(t, requests, 2)
	assert.Equal(t, ModeDirectID, requests[0].Mode)
	assert.Equal(t, "11112222", requests[0].Query)
	assert.Equal(t, ModeKeyword, requests[1].Mode)
	assert.Equal(t, "gut microbiome", requests[1].Query)
}

func TestParseReferenceBlockIgnoresMalformedLines(t *testing.T) {
	block := "kein Klammer-Präfix\n\n[0] PMID: 123\n[2] PMID: 87654321"
	requests := ParseReferenceBlock(block)
	require.Len(t, requests, 1)
	assert.Equal(t, 2, requests[0].Position)
}
