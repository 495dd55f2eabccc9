package chi

// SearchParams are the query parameters of GET /search.
type SearchParams struct {
	Query string `json:"query"`
	K     *int   `json:"k,omitempty"`
}

// SearchResultItem is one image in a search response.
type SearchResultItem struct {
	Path    string `json:"path"`
	Caption string `json:"caption"`
}

// SearchResponse is the body of a successful GET /search.
type SearchResponse struct {
	Results []SearchResultItem `json:"results"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
	Database   string `json:"database,omitempty"`
	Documents  *int   `json:"documents,omitempty"`
	Collection string `json:"collection,omitempty"`
	Embedding  string `json:"embedding,omitempty"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}
