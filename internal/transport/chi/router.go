package chi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kailas-cloud/clipsearch/internal/metrics"
)

// RouterOptions configures the HTTP surface around a Server.
type RouterOptions struct {
	// StaticDir is served under /data/. Empty disables static files.
	StaticDir      string
	AllowedOrigins []string
	APIKeys        []string
}

// NewRouter mounts the API, metrics and static routes with the standard middleware chain.
func NewRouter(s *Server, opts RouterOptions) http.Handler {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(JSONRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(WideEventMiddleware(s.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(BearerAuthMiddleware(opts.APIKeys))
	r.Use(metrics.Middleware())

	r.Get("/health", s.HealthCheck)
	r.Get("/search", s.Search)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	if opts.StaticDir != "" {
		fs := http.StripPrefix("/data/", http.FileServer(filesOnly{fs: http.Dir(opts.StaticDir)}))
		r.Method(http.MethodGet, "/data/*", fs)
		r.Method(http.MethodHead, "/data/*", fs)
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}
