package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"grant-scribe/models"
	"grant-scribe/providers"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// unverifiedMarker kennzeichnet Referenzzeilen, die nicht aufgelöst werden
// konnten.
const unverifiedMarker = "[UNVERIFIED]"

// unverifiedSuffix wird an nicht auflösbare Referenzen angehängt.
const unverifiedSuffix = " — could not find a matching paper on PubMed. Please verify manually."

// ResolvedReference ist das Ergebnis der Auflösung einer einzelnen
// Referenzzeile.
type ResolvedReference struct {
	Position  int    `json:"position"`
	Original  string `json:"original"`
	PMID      string `json:"pmid,omitempty"`
	Formatted string `json:"formatted"`
	SourceURL string `json:"source_url,omitempty"`
	Verified  bool   `json:"verified"`
}

// ReferenceResolver löst Referenz-Anfragen gegen einen Metadaten-Provider
// auf. Aufrufe werden gedrosselt, damit die NCBI-Grenze von 3 Anfragen pro
// Sekunde eingehalten wird.
type ReferenceResolver struct {
	Provider providers.MetadataProvider
	Logger   *zap.Logger

	limiter *rate.Limiter
	timeout time.Duration
}

// NewReferenceResolver erstellt einen Resolver mit der gegebenen Pause
// zwischen Aufrufen und dem Timeout pro Aufruf.
func NewReferenceResolver(provider providers.MetadataProvider, logger *zap.Logger, delay, timeout time.Duration) *ReferenceResolver {
	if delay <= 0 {
		delay = 400 * time.Millisecond
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &ReferenceResolver{
		Provider: provider,
		Logger:   logger,
		limiter:  rate.NewLimiter(rate.Every(delay), 1),
		timeout:  timeout,
	}
}

// ResolveOne löst eine einzelne Anfrage auf. Fehler und leere Treffer führen
// nie zu einem Fehler, sondern zu einer unverifizierten Referenz.
func (r *ReferenceResolver) ResolveOne(ctx context.Context, req ReferenceRequest) ResolvedReference {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var article *models.Article
	var err error
	switch req.Mode {
	case ModeDirectID:
		article, err = r.Provider.FetchByID(callCtx, req.Query)
	default:
		article, err = r.Provider.SearchTop(callCtx, req.Query)
	}

	if err != nil {
		r.Logger.Warn("Referenz-Auflösung fehlgeschlagen",
			zap.Int("position", req.Position),
			zap.String("mode", req.Mode),
			zap.Error(err))
	}
	if err != nil || article == nil {
		return unverifiedReference(req)
	}

	return ResolvedReference{
		Position:  req.Position,
		Original:  req.RawText,
		PMID:      article.PMID,
		Formatted: FormatNLM(article),
		SourceURL: article.SourceURL,
		Verified:  true,
	}
}

// ResolveMany löst Anfragen sequenziell und gedrosselt auf. Wird der Kontext
// abgebrochen, werden die bis dahin aufgelösten Referenzen zurückgegeben und
// die restlichen als unverifiziert markiert.
func (r *ReferenceResolver) ResolveMany(ctx context.Context, reqs []ReferenceRequest) []ResolvedReference {
	resolved := make([]ResolvedReference, 0, len(reqs))
	for i, req := range reqs {
		if err := r.limiter.Wait(ctx); err != nil {
			r.Logger.Warn("Auflösung abgebrochen", zap.Int("remaining", len(reqs)-i), zap.Error(err))
			for _, rest := range reqs[i:] {
				resolved = append(resolved, unverifiedReference(rest))
			}
			return resolved
		}
		resolved = append(resolved, r.ResolveOne(ctx, req))
	}
	return resolved
}

// unverifiedReference baut die Platzhalter-Referenz für eine nicht
// auflösbare Anfrage.
func unverifiedReference(req ReferenceRequest) ResolvedReference {
	return ResolvedReference{
		Position:  req.Position,
		Original:  req.RawText,
		Formatted: unverifiedMarker + " " + req.RawText + unverifiedSuffix,
		Verified:  false,
	}
}

// FormatNLM rendert einen Artikel im NLM/Vancouver-Format:
//
//	Author AA, Author BB, et al. Title. J Abbrev. Year;Vol(Issue):Pages. doi: X. PMID: N.
func FormatNLM(article *models.Article) string {
	authors := article.Authors
	truncated := false
	if len(authors) > 6 {
		authors = authors[:6]
		truncated = true
	}

	out := ""
	if len(authors) > 0 {
		out = joinAuthors(authors, truncated)
		if !strings.HasSuffix(out, ".") {
			out += "."
		}
		out += " "
	}
	out += fmt.Sprintf("%s. %s. %s", article.Title, article.Journal, article.Year)
	if article.Volume != "" {
		out += ";" + article.Volume
	}
	if article.Issue != "" {
		out += "(" + article.Issue + ")"
	}
	if article.Pages != "" {
		out += ":" + article.Pages
	}
	out += "."
	if article.DOI != "" {
		out += " doi: " + article.DOI + "."
	}
	if article.PMID != "" {
		out += " PMID: " + article.PMID + "."
	}
	return out
}

func joinAuthors(authors []string, truncated bool) string {
	joined := ""
	for i, a := range authors {
		if i > 0 {
			joined += ", "
		}
		joined += a
	}
	if truncated {
		joined += ", et al."
	}
	return joined
}
