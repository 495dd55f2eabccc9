package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/oapi-codegen/runtime"
	"go.uber.org/zap"

	"github.com/kailas-cloud/clipsearch/internal/domain"
	"github.com/kailas-cloud/clipsearch/internal/domain/search/request"
	"github.com/kailas-cloud/clipsearch/internal/domain/search/result"
	healthuc "github.com/kailas-cloud/clipsearch/internal/usecase/health"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Searcher answers text queries.
type Searcher interface {
	Search(ctx context.Context, collection string, req *request.Request) ([]result.Result, error)
}

// HealthChecker reports store and collection status.
type HealthChecker interface {
	Check(ctx context.Context, collection string) healthuc.Report
}

// Server serves the search API over one collection.
type Server struct {
	search        Searcher
	health        HealthChecker
	collection    string
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(search Searcher, health HealthChecker, collection string, logger *zap.Logger) *Server {
	s := &Server{
		search:     search,
		health:     health,
		collection: collection,
		logger:     logger,
	}
	s.errorHandlers = []errorHandler{
		validationHandler,
		sentinelHandler(domain.ErrCollectionNotFound, http.StatusServiceUnavailable),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway),
	}
	return s
}

// Search handles GET /search?query=...&k=....
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var params SearchParams
	q := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, true, "query", q, &params.Query); err != nil {
		writeError(w, http.StatusBadRequest, "invalid query parameter: query is required")
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "k", q, &params.K); err != nil {
		writeError(w, http.StatusBadRequest, "invalid query parameter: k must be an integer")
		return
	}

	k := request.DefaultK
	if params.K != nil {
		k = *params.K
	}
	req, err := request.New(params.Query, k)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	results, err := s.search.Search(r.Context(), s.collection, &req)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]SearchResultItem, len(results))
	for i := range results {
		items[i] = SearchResultItem{Path: results[i].Path(), Caption: results[i].Caption()}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: items})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context(), s.collection)

	if report.Status != healthuc.Healthy {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:  string(report.Status),
			Message: report.Message,
		})
		return
	}

	docs := report.Documents
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:     string(report.Status),
		Database:   report.Database,
		Documents:  &docs,
		Collection: report.Collection,
		Embedding:  string(report.Embedding),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrCollectionNotFound,
		domain.ErrRateLimited,
		domain.ErrEmbeddingProviderError,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, msg)
		return true
	}
}

// validationHandler exposes the full message, which only describes the request.
func validationHandler(w http.ResponseWriter, err error, _ string) bool {
	if !errors.Is(err, domain.ErrInvalidQuery) {
		return false
	}
	writeError(w, http.StatusBadRequest, err.Error())
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			s.logger.Warn("domain error", zap.Error(err))
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
