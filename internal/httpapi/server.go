// Package httpapi exposes the evaluation queue, finding extraction and
// citation normalization over HTTP.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/evidence-cli/internal/citation"
	"github.com/sells-group/evidence-cli/internal/config"
	"github.com/sells-group/evidence-cli/internal/metrics"
	"github.com/sells-group/evidence-cli/internal/model"
)

const maxTextBytes = 10 << 20

// Queue is the subset of the evaluation queue the API uses.
type Queue interface {
	Enqueue(docs []model.Document) string
	Status(id string) (model.StatusSnapshot, bool)
	Result(id string) (*model.BatchResult, error)
	Depth() int
}

// Server holds the API dependencies.
type Server struct {
	queue      Queue
	normalizer *citation.Normalizer
	metrics    *metrics.Metrics
	docs       config.DocumentConfig
	origins    []string
}

// New creates a Server. m may be nil.
func New(q Queue, n *citation.Normalizer, m *metrics.Metrics, docs config.DocumentConfig, srv config.ServerConfig) *Server {
	return &Server{
		queue:      q,
		normalizer: n,
		metrics:    m,
		docs:       docs,
		origins:    srv.CORSOrigins,
	}
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/evaluations", s.handleEnqueue)
		r.Get("/evaluations/{id}", s.handleStatus)
		r.Get("/evaluations/{id}/results", s.handleResult)
		r.Post("/findings", s.handleFindings)
		r.Post("/citations/normalize", s.handleNormalize)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"queue_depth": s.queue.Depth(),
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("http: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
