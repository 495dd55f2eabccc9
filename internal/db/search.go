package db

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName string
	// VectorField is the attribute name of the vector field (alias if set). Defaults to "vector".
	VectorField  string
	Vector       []float32
	K            int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
// Score is the raw __vector_score reported by the engine (a distance: lower is closer).
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
