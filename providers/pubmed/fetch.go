package pubmed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"grant-scribe/config"
	"grant-scribe/models"

	"go.uber.org/zap"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// Fetcher kapselt die Logik zur Interaktion mit den PubMed E-Utilities.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
}

// NewFetcher erstellt eine neue Instanz des PubMed-Fetchers.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{Config: cfg, Logger: logger}
}

// Name gibt den Namen des Providers zurück.
func (f *Fetcher) Name() string {
	return "pubmed"
}

// SearchTop führt eine ESearch-Abfrage durch und holt die Details für den
// relevantesten Treffer. Gibt (nil, nil) zurück, wenn nichts gefunden wurde.
func (f *Fetcher) SearchTop(ctx context.Context, query string) (*models.Article, error) {
	log := f.Logger.With(zap.String("query", query))

	searchURL := f.buildEsearchURL(query)
	log.Debug("Rufe ESearch-URL auf", zap.String("url", searchURL))

	var esearchResp ESearchResponse
	if err := f.getJSON(ctx, searchURL, &esearchResp); err != nil {
		return nil, fmt.Errorf("esearch: %w", err)
	}

	ids := esearchResp.ESearchResult.IdList
	if len(ids) == 0 {
		log.Debug("Keine PubMed-Treffer für Anfrage")
		return nil, nil
	}
	return f.FetchByID(ctx, ids[0])
}

// FetchByID holt die Metadaten für eine bekannte PMID via ESummary.
// Gibt (nil, nil) zurück, wenn die PMID unbekannt ist.
func (f *Fetcher) FetchByID(ctx context.Context, pmid string) (*models.Article, error) {
	log := f.Logger.With(zap.String("pmid", pmid))

	summaryURL := f.buildEsummaryURL(pmid)
	log.Debug("Rufe ESummary-URL auf", zap.String("url", summaryURL))

	var summaryResp ESummaryResponse
	if err := f.getJSON(ctx, summaryURL, &summaryResp); err != nil {
		return nil, fmt.Errorf("esummary: %w", err)
	}

	raw, ok := summaryResp.Result[pmid]
	if !ok {
		log.Debug("Kein ESummary-Dokument für PMID")
		return nil, nil
	}

	var doc DocSummary
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("esummary-dokument für PMID %s: %w", pmid, err)
	}
	if doc.Title == "" && len(doc.Authors) == 0 {
		// ESummary liefert für unbekannte IDs leere Platzhalter-Dokumente.
		return nil, nil
	}

	return mapSummaryToArticle(pmid, &doc), nil
}

// getJSON führt einen GET-Request aus und dekodiert die JSON-Antwort.
func (f *Fetcher) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", f.Config.PubMedTool)

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// buildEsearchURL baut die URL für eine ESearch-Anfrage (Top-Treffer nach Relevanz).
func (f *Fetcher) buildEsearchURL(term string) string {
	base := fmt.Sprintf("%s/esearch.fcgi?db=pubmed&term=%s&retmode=json&retmax=1&sort=relevance",
		f.Config.PubMedBaseURL, url.QueryEscape(term))
	if f.Config.PubMedAPIKey != "" {
		base += "&api_key=" + f.Config.PubMedAPIKey
	}
	return base
}

// buildEsummaryURL baut die URL für eine ESummary-Anfrage.
func (f *Fetcher) buildEsummaryURL(pmid string) string {
	base := fmt.Sprintf("%s/esummary.fcgi?db=pubmed&id=%s&retmode=json",
		f.Config.PubMedBaseURL, url.QueryEscape(pmid))
	if f.Config.PubMedAPIKey != "" {
		base += "&api_key=" + f.Config.PubMedAPIKey
	}
	return base
}

// mapSummaryToArticle wandelt ein ESummary-Dokument in unser Article-Modell um.
func mapSummaryToArticle(pmid string, doc *DocSummary) *models.Article {
	a := &models.Article{
		PMID:         pmid,
		Title:        strings.TrimSuffix(strings.TrimSpace(doc.Title), "."),
		Journal:      doc.Source,
		Volume:       doc.Volume,
		Issue:        doc.Issue,
		Pages:        doc.Pages,
		CitationType: "journal_article",
		SourceURL:    fmt.Sprintf("https://pubmed.ncbi.nlm.nih.gov/%s/", pmid),
	}
	if a.Journal == "" {
		a.Journal = doc.FullJournalName
	}

	// pubdate hat die Form "2021 Mar 15", das Jahr ist der erste Token.
	if fields := strings.Fields(doc.PubDate); len(fields) > 0 {
		a.Year = fields[0]
	}

	for _, author := range doc.Authors {
		name := strings.TrimSpace(author.Name)
		if name == "" {
			continue
		}
		a.Authors = append(a.Authors, name)
		a.AuthorDetails = append(a.AuthorDetails, parseAuthorName(name))
	}

	for _, id := range doc.ArticleIDs {
		if id.IDType == "doi" {
			a.DOI = id.Value
			break
		}
	}
	if a.DOI == "" && strings.HasPrefix(doc.ELocationID, "doi: ") {
		a.DOI = strings.TrimPrefix(doc.ELocationID, "doi: ")
	}

	return a
}

// parseAuthorName zerlegt einen ESummary-Autorennamen ("Smith AB") in
// Nachname und Initialen.
func parseAuthorName(name string) models.Author {
	parts := strings.Fields(name)
	author := models.Author{LastName: parts[0]}
	if len(parts) > 1 {
		initials := parts[1]
		_, size := utf8.DecodeRuneInString(initials)
		author.FirstName = initials[:size]
		if len(initials) > size {
			author.MiddleName = initials[size:]
		}
	}
	if len(parts) > 2 {
		author.Suffix = strings.Join(parts[2:], " ")
	}
	return author
}
