package services

import (
	"context"
	"fmt"
	"strings"

	"grant-scribe/models"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// CitationFormatter rendert Zitations-Datensätze in den gängigen Stilen.
// Für exotische Stile steht ein AI-Fallback bereit, der bei Fehlern auf das
// NIH-Format degradiert.
type CitationFormatter struct {
	Logger *zap.Logger
	AI     *openai.Client
	Model  string
}

// NewCitationFormatter erstellt einen Formatter. Der AI-Client darf nil
// sein, dann degradiert FormatWithAI sofort auf NIH.
func NewCitationFormatter(logger *zap.Logger, ai *openai.Client, model string) *CitationFormatter {
	return &CitationFormatter{Logger: logger, AI: ai, Model: model}
}

// FormatAll füllt alle vier formatierten Felder eines Datensatzes.
func (f *CitationFormatter) FormatAll(c *models.Citation) {
	c.FormattedNIH = FormatNIH(c)
	c.FormattedAPA = FormatAPA(c)
	c.FormattedMLA = FormatMLA(c)
	c.FormattedChicago = FormatChicago(c)
}

// FormatWithAI formatiert einen Datensatz in einem beliebigen Stil über das
// Sprachmodell. Jeder Fehler degradiert auf das NIH-Format.
func (f *CitationFormatter) FormatWithAI(ctx context.Context, c *models.Citation, style string) string {
	if f.AI == nil {
		return FormatNIH(c)
	}

	f.Logger.Debug("Formatiere Zitation per AI", zap.String("style", style))

	resp, err := f.AI.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       f.Model,
		MaxTokens:   500,
		Temperature: 0.1,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: buildFormatPrompt(c, style)},
		},
	})
	if err != nil || len(resp.Choices) == 0 {
		f.Logger.Warn("AI-Formatierung fehlgeschlagen, nutze NIH-Format",
			zap.String("style", style), zap.Error(err))
		return FormatNIH(c)
	}

	formatted := strings.TrimSpace(resp.Choices[0].Message.Content)
	if formatted == "" {
		return FormatNIH(c)
	}
	return formatted
}

// buildFormatPrompt baut die Anweisung für das Sprachmodell.
func buildFormatPrompt(c *models.Citation, style string) string {
	style = strings.ToUpper(style)
	var b strings.Builder
	fmt.Fprintf(&b, "Format the following citation in %s style. Return ONLY the formatted citation, no explanations.\n\n", style)
	b.WriteString("Citation data:\n")
	fmt.Fprintf(&b, "- Title: %s\n", c.Title)
	fmt.Fprintf(&b, "- Authors: %s\n", string(c.Authors))
	fmt.Fprintf(&b, "- Journal: %s\n", orNA(c.Journal))
	fmt.Fprintf(&b, "- Publisher: %s\n", orNA(c.Publisher))
	if c.Year > 0 {
		fmt.Fprintf(&b, "- Year: %d\n", c.Year)
	} else {
		b.WriteString("- Year: N/A\n")
	}
	fmt.Fprintf(&b, "- Volume: %s\n", orNA(c.Volume))
	fmt.Fprintf(&b, "- Issue: %s\n", orNA(c.Issue))
	fmt.Fprintf(&b, "- Pages: %s\n", orNA(c.Pages))
	fmt.Fprintf(&b, "- DOI: %s\n", orNA(c.DOI))
	fmt.Fprintf(&b, "- PMID: %s\n", orNA(c.PMID))
	fmt.Fprintf(&b, "- Type: %s\n\n", c.CitationType)
	fmt.Fprintf(&b, "Format this citation exactly according to %s guidelines. Be precise with punctuation, capitalization, and ordering.", style)
	return b.String()
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// FormatNIH rendert einen Datensatz im NIH-Stil (nummerierte Referenzliste).
func FormatNIH(c *models.Citation) string {
	authors := formatAuthorsNIH(c.AuthorList())
	if !strings.HasSuffix(authors, ".") {
		authors += "."
	}
	year := yearOrND(c.Year)
	title := strings.TrimSuffix(c.Title, ".")

	out := fmt.Sprintf("%s %s. ", authors, title)
	switch {
	case c.Journal != "":
		out += c.Journal + ". " + year
		if c.Volume != "" {
			out += ";" + c.Volume
		}
		if c.Issue != "" {
			out += "(" + c.Issue + ")"
		}
		if c.Pages != "" {
			out += ":" + c.Pages
		}
		out += "."
	case c.Publisher != "":
		out += c.Publisher + "; " + year + "."
	default:
		out += year + "."
	}

	if c.DOI != "" {
		out += " doi:" + c.DOI
	} else if c.PMID != "" {
		out += " PMID: " + c.PMID
	}
	return out
}

// FormatAPA rendert einen Datensatz im APA-Stil (7. Auflage).
func FormatAPA(c *models.Citation) string {
	authors := formatAuthorsAPA(c.AuthorList())
	year := yearOrND(c.Year)

	out := fmt.Sprintf("%s (%s). %s", authors, year, c.Title)
	switch {
	case c.Journal != "":
		out += ". " + c.Journal
		if c.Volume != "" {
			out += ", " + c.Volume
		}
		if c.Issue != "" {
			out += "(" + c.Issue + ")"
		}
		if c.Pages != "" {
			out += ", " + c.Pages
		}
		out += "."
	case c.Publisher != "":
		out += ". " + c.Publisher + "."
	default:
		out += "."
	}

	if c.DOI != "" {
		out += " https://doi.org/" + c.DOI
	} else if c.URL != "" {
		out += " " + c.URL
	}
	return out
}

// FormatMLA rendert einen Datensatz im MLA-Stil (9. Auflage).
func FormatMLA(c *models.Citation) string {
	authors := formatAuthorsMLA(c.AuthorList())
	if !strings.HasSuffix(authors, ".") {
		authors += "."
	}

	out := fmt.Sprintf("%s %q", authors, c.Title)
	switch {
	case c.Journal != "":
		out += ". " + c.Journal
		if c.Volume != "" {
			out += ", vol. " + c.Volume
		}
		if c.Issue != "" {
			out += ", no. " + c.Issue
		}
		if c.Year > 0 {
			out += fmt.Sprintf(", %d", c.Year)
		}
		if c.Pages != "" {
			out += ", pp. " + c.Pages
		}
		out += "."
	case c.Publisher != "" && c.Year > 0:
		out += fmt.Sprintf(". %s, %d.", c.Publisher, c.Year)
	}

	if c.DOI != "" {
		out += " doi:" + c.DOI + "."
	}
	return out
}

// FormatChicago rendert einen Datensatz im Chicago-Stil (Author-Date).
func FormatChicago(c *models.Citation) string {
	authors := formatAuthorsChicago(c.AuthorList())
	year := yearOrND(c.Year)

	out := fmt.Sprintf("%s. %s. %q.", authors, year, c.Title)
	switch {
	case c.Journal != "":
		out += " " + c.Journal
		if c.Volume != "" {
			out += " " + c.Volume
		}
		if c.Issue != "" {
			out += " (" + c.Issue + ")"
		}
		if c.Pages != "" {
			out += ": " + c.Pages
		}
		out += "."
	case c.Publisher != "":
		out += " " + c.Publisher + "."
	}

	if c.DOI != "" {
		out += " https://doi.org/" + c.DOI + "."
	}
	return out
}

func yearOrND(year int) string {
	if year > 0 {
		return fmt.Sprintf("%d", year)
	}
	return "n.d."
}

// formatAuthorsNIH: "Smith AB, Jones CD". Mehr als 6 Autoren werden auf die
// ersten 3 plus "et al." gekürzt.
func formatAuthorsNIH(authors []models.Author) string {
	if len(authors) == 0 {
		return "Unknown"
	}
	formatted := make([]string, len(authors))
	for i, a := range authors {
		formatted[i] = strings.TrimSpace(a.LastName + " " + initial(a.FirstName) + initial(a.MiddleName))
	}
	if len(formatted) > 6 {
		return strings.Join(formatted[:3], ", ") + ", et al."
	}
	return strings.Join(formatted, ", ")
}

// formatAuthorsAPA: "Smith, A. B., Jones, C. D., & Williams, E. F.".
// Mehr als 6 Autoren werden auf die ersten 6 plus "et al." gekürzt.
func formatAuthorsAPA(authors []models.Author) string {
	if len(authors) == 0 {
		return "Unknown"
	}
	formatted := make([]string, len(authors))
	for i, a := range authors {
		initials := initial(a.FirstName) + "."
		if a.MiddleName != "" {
			initials += " " + initial(a.MiddleName) + "."
		}
		formatted[i] = a.LastName + ", " + initials
	}
	if len(formatted) > 6 {
		return strings.Join(formatted[:6], ", ") + ", et al."
	}
	if len(formatted) == 1 {
		return formatted[0]
	}
	if len(formatted) == 2 {
		return formatted[0] + ", & " + formatted[1]
	}
	return strings.Join(formatted[:len(formatted)-1], ", ") + ", & " + formatted[len(formatted)-1]
}

// formatAuthorsMLA: "Smith, Adam B., et al." ab zwei Autoren.
func formatAuthorsMLA(authors []models.Author) string {
	if len(authors) == 0 {
		return "Unknown"
	}
	first := authors[0]
	out := first.LastName + ", " + first.FirstName
	if first.MiddleName != "" {
		out += " " + first.MiddleName
	}
	if len(authors) > 1 {
		out += ", et al."
	}
	return out
}

// formatAuthorsChicago: "Smith, Adam, and Carol Jones".
func formatAuthorsChicago(authors []models.Author) string {
	if len(authors) == 0 {
		return "Unknown"
	}
	formatted := make([]string, len(authors))
	for i, a := range authors {
		formatted[i] = a.LastName + ", " + a.FirstName
	}
	if len(formatted) == 1 {
		return formatted[0]
	}
	if len(formatted) == 2 {
		return formatted[0] + ", and " + formatted[1]
	}
	return strings.Join(formatted[:len(formatted)-1], ", ") + ", and " + formatted[len(formatted)-1]
}

// initial gibt den ersten Buchstaben eines Namens zurück.
func initial(name string) string {
	for _, r := range name {
		return string(r)
	}
	return ""
}
