package request

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/clipsearch/internal/domain"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed search query length.
	MaxQueryLength = 1024
	DefaultK       = 5
	MinK           = 1
	MaxK           = 20
	// OverFetchFactor multiplies k to leave room for duplicate images.
	OverFetchFactor = 3
	// MaxFetch caps the candidate page requested from the store.
	MaxFetch = 100
)

// Request is a validated search query.
type Request struct {
	query string
	k     int
}

// New validates search parameters. Callers substitute DefaultK when k was not supplied.
func New(query string, k int) (Request, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Request{}, fmt.Errorf("%w: query is required", domain.ErrInvalidQuery)
	}
	if len(query) > MaxQueryLength {
		return Request{}, fmt.Errorf("%w: query too long (max %d chars)", domain.ErrInvalidQuery, MaxQueryLength)
	}
	if k < MinK || k > MaxK {
		return Request{}, fmt.Errorf("%w: k must be between %d and %d", domain.ErrInvalidQuery, MinK, MaxK)
	}
	return Request{query: query, k: k}, nil
}

// Query returns the search query text.
func (r *Request) Query() string { return r.query }

// K returns the number of distinct images to return.
func (r *Request) K() int { return r.k }

// FetchSize returns how many raw candidates to request: min(k*3, 100).
func (r *Request) FetchSize() int {
	return min(r.k*OverFetchFactor, MaxFetch)
}
