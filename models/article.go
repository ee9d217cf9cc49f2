package models

// Article ist das normalisierte Ergebnis einer Metadaten-Abfrage (PubMed oder
// Crossref). Es wird nicht persistiert, sondern nur zwischen Providern und
// Services gereicht.
type Article struct {
	PMID    string
	DOI     string
	Title   string
	Journal string
	Year    string
	Volume  string
	Issue   string
	Pages   string

	// Autoren im Format "Nachname Initialen" (z.B. "Smith AB").
	Authors []string

	// Strukturierte Autoren, soweit der Provider sie liefert.
	AuthorDetails []Author

	Publisher    string
	Abstract     string
	CitationType string
	SourceURL    string
}
