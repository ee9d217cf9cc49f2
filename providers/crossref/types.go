// Package crossref enthält die Logik für die Interaktion mit der Crossref REST API.
package crossref

// WorkResponse repräsentiert die JSON-Antwort von /works/<doi>.
type WorkResponse struct {
	Status  string `json:"status"`
	Message Work   `json:"message"`
}

// SearchResponse repräsentiert die JSON-Antwort von /works?query=...
type SearchResponse struct {
	Status  string `json:"status"`
	Message struct {
		Items []Work `json:"items"`
	} `json:"message"`
}

// Work repräsentiert einen einzelnen Crossref-Datensatz.
type Work struct {
	DOI            string   `json:"DOI"`
	Type           string   `json:"type"`
	Title          []string `json:"title"`
	ContainerTitle []string `json:"container-title"`
	Publisher      string   `json:"publisher"`
	Volume         string   `json:"volume"`
	Issue          string   `json:"issue"`
	Page           string   `json:"page"`
	URL            string   `json:"URL"`
	Abstract       string   `json:"abstract"`

	Author []struct {
		Given  string `json:"given"`
		Family string `json:"family"`
	} `json:"author"`

	Published struct {
		DateParts [][]int `json:"date-parts"`
	} `json:"published"`
}
