package services

import (
	"regexp"
	"strconv"
	"strings"
)

// Marker, die den Referenzblock am Ende eines generierten Sektionstexts
// begrenzen.
const (
	refBlockStart = "---REFERENCES---"
	refBlockEnd   = "---END REFERENCES---"
)

// Auflösungs-Modus einer einzelnen Referenzzeile.
const (
	ModeDirectID = "pmid"
	ModeKeyword  = "search"
)

var (
	refBlockRegex = regexp.MustCompile(`(?s)\n*---REFERENCES---\n(.*?)---END REFERENCES---`)
	refLineRegex  = regexp.MustCompile(`^\[(\d+)\]\s*(.+)$`)
	pmidRegex     = regexp.MustCompile(`(?i)^PMID:\s*(\d+)`)
	searchRegex   = regexp.MustCompile(`(?i)^SEARCH:\s*(.+)`)
)

// ReferenceRequest ist eine einzelne, klassifizierte Referenzzeile aus einem
// Referenzblock.
type ReferenceRequest struct {
	// Position ist die Nummer aus der eckigen Klammer, z.B. 3 für "[3] ...".
	Position int
	// RawText ist die Zeile ohne die Klammer-Nummer.
	RawText string
	// Mode ist ModeDirectID oder ModeKeyword.
	Mode string
	// Query ist die PMID bzw. die Suchanfrage.
	Query string
}

// ExtractReferenceBlock trennt den Referenzblock vom Fließtext. Der zweite
// Rückgabewert ist der Text ohne Block, der dritte meldet, ob ein Block
// gefunden wurde.
func ExtractReferenceBlock(content string) (block string, remainder string, found bool) {
	match := refBlockRegex.FindStringSubmatchIndex(content)
	if match == nil {
		return "", content, false
	}
	block = content[match[2]:match[3]]
	remainder = strings.TrimRight(content[:match[0]], "\n") + content[match[1]:]
	return block, remainder, true
}

// ParseReferenceBlock zerlegt den Inhalt eines Referenzblocks in
// klassifizierte Anfragen. Zeilen ohne Klammer-Nummer werden ignoriert.
func ParseReferenceBlock(block string) []ReferenceRequest {
	var requests []ReferenceRequest
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := refLineRegex.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		position, err := strconv.Atoi(m[1])
		if err != nil || position <= 0 {
			continue
		}
		requests = append(requests, classifyRequest(position, strings.TrimSpace(m[2])))
	}
	return requests
}

// classifyRequest bestimmt den Auflösungs-Modus einer Referenzzeile.
// "PMID: <n>" wird direkt aufgelöst, "SEARCH: <q>" und alles andere per
// Stichwortsuche.
func classifyRequest(position int, rawText string) ReferenceRequest {
	req := ReferenceRequest{Position: position, RawText: rawText}

	if m := pmidRegex.FindStringSubmatch(rawText); m != nil {
		req.Mode = ModeDirectID
		req.Query = m[1]
		return req
	}
	if m := searchRegex.FindStringSubmatch(rawText); m != nil {
		req.Mode = ModeKeyword
		req.Query = strings.TrimSpace(m[1])
		return req
	}

	req.Mode = ModeKeyword
	req.Query = rawText
	return req
}
