package crossref

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"grant-scribe/config"
	"grant-scribe/models"

	"go.uber.org/zap"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// Fetcher implementiert das MetadataProvider-Interface für Crossref.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
}

// NewFetcher erstellt einen neuen Crossref-Fetcher.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{Config: cfg, Logger: logger}
}

// Name gibt den Namen des Providers zurück.
func (f *Fetcher) Name() string {
	return "crossref"
}

// FetchByID holt die Metadaten für eine bekannte DOI.
// Gibt (nil, nil) zurück, wenn die DOI unbekannt ist.
func (f *Fetcher) FetchByID(ctx context.Context, doi string) (*models.Article, error) {
	log := f.Logger.With(zap.String("doi", doi))

	workURL := fmt.Sprintf("%s/works/%s", f.Config.CrossrefBaseURL, url.PathEscape(doi))
	log.Debug("Rufe Crossref API auf", zap.String("url", workURL))

	var workResp WorkResponse
	found, err := f.getJSON(ctx, workURL, &workResp)
	if err != nil {
		return nil, fmt.Errorf("crossref works: %w", err)
	}
	if !found {
		log.Debug("Kein Crossref-Datensatz für DOI")
		return nil, nil
	}
	return mapWorkToArticle(&workResp.Message), nil
}

// SearchTop sucht den relevantesten Crossref-Treffer für eine Freitext-Anfrage.
func (f *Fetcher) SearchTop(ctx context.Context, query string) (*models.Article, error) {
	log := f.Logger.With(zap.String("query", query))

	searchURL := fmt.Sprintf("%s/works?query=%s&rows=1", f.Config.CrossrefBaseURL, url.QueryEscape(query))
	log.Debug("Rufe Crossref API auf", zap.String("url", searchURL))

	var searchResp SearchResponse
	found, err := f.getJSON(ctx, searchURL, &searchResp)
	if err != nil {
		return nil, fmt.Errorf("crossref search: %w", err)
	}
	if !found || len(searchResp.Message.Items) == 0 {
		log.Debug("Keine Crossref-Treffer für Anfrage")
		return nil, nil
	}
	return mapWorkToArticle(&searchResp.Message.Items[0]), nil
}

// getJSON führt einen GET-Request aus. Der zweite Rückgabewert ist false bei 404.
func (f *Fetcher) getJSON(ctx context.Context, rawURL string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return false, err
	}
	// Crossref erwartet einen identifizierbaren User-Agent ("polite pool").
	ua := "grant-scribe/1.0"
	if f.Config.ContactEmail != "" {
		ua += fmt.Sprintf(" (mailto:%s)", f.Config.ContactEmail)
	}
	req.Header.Set("User-Agent", ua)

	resp, err := httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("status %d", resp.StatusCode)
	}
	return true, json.NewDecoder(resp.Body).Decode(out)
}

// mapWorkToArticle konvertiert einen Crossref-Work in unser Article-Modell.
func mapWorkToArticle(work *Work) *models.Article {
	a := &models.Article{
		DOI:          work.DOI,
		Publisher:    work.Publisher,
		Volume:       work.Volume,
		Issue:        work.Issue,
		Pages:        work.Page,
		Abstract:     work.Abstract,
		CitationType: mapCrossrefType(work.Type),
		SourceURL:    work.URL,
	}
	if len(work.Title) > 0 {
		a.Title = strings.TrimSuffix(strings.TrimSpace(work.Title[0]), ".")
	}
	if a.Title == "" {
		a.Title = "Untitled"
	}
	if len(work.ContainerTitle) > 0 {
		a.Journal = work.ContainerTitle[0]
	} else {
		a.Journal = work.Publisher
	}
	if a.SourceURL == "" && work.DOI != "" {
		a.SourceURL = "https://doi.org/" + work.DOI
	}

	if len(work.Published.DateParts) > 0 && len(work.Published.DateParts[0]) > 0 {
		a.Year = strconv.Itoa(work.Published.DateParts[0][0])
	}

	for _, author := range work.Author {
		detail := models.Author{FirstName: author.Given, LastName: author.Family}
		a.AuthorDetails = append(a.AuthorDetails, detail)
		a.Authors = append(a.Authors, formatShortName(detail))
	}

	return a
}

// formatShortName bildet die Kurzform "Nachname Initialen" aus einem Autor.
func formatShortName(author models.Author) string {
	initials := ""
	for _, part := range strings.Fields(author.FirstName) {
		r, _ := utf8.DecodeRuneInString(part)
		initials += string(r)
	}
	if initials == "" {
		return author.LastName
	}
	return author.LastName + " " + initials
}

// mapCrossrefType bildet Crossref-Typen auf unsere Zitations-Typen ab.
func mapCrossrefType(t string) string {
	switch t {
	case "journal-article":
		return "journal_article"
	case "book":
		return "book"
	case "book-chapter":
		return "book_chapter"
	case "proceedings-article":
		return "conference"
	case "posted-content":
		return "preprint"
	case "dissertation":
		return "thesis"
	default:
		return "other"
	}
}
