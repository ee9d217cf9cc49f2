package providers

import (
	"context"

	"grant-scribe/models"
)

// MetadataProvider ist das Interface, das jeder Metadaten-Provider
// (z.B. PubMed, Crossref) implementieren muss.
type MetadataProvider interface {
	// FetchByID holt die Metadaten für einen bekannten Identifikator
	// (PMID bei PubMed, DOI bei Crossref). Gibt (nil, nil) zurück, wenn
	// kein Datensatz existiert.
	FetchByID(ctx context.Context, id string) (*models.Article, error)

	// SearchTop sucht den relevantesten Treffer für eine Freitext-Anfrage.
	// Gibt (nil, nil) zurück, wenn nichts gefunden wurde.
	SearchTop(ctx context.Context, query string) (*models.Article, error)

	// Name gibt den eindeutigen Namen des Providers zurück (z.B. "pubmed").
	Name() string
}
