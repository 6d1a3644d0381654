// Package api implements a thin net/http surface with no business logic
// beyond validation and delegation to the queue store, content store, and
// worker pool. The CORS middleware and structured-logging middleware
// shapes are carried over; billing and Search Console surfaces are out of
// scope (see DESIGN.md).
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/reeflabs/reef/internal/content"
	"github.com/reeflabs/reef/internal/pool"
	"github.com/reeflabs/reef/internal/queue"
)

// Server is the Control API surface over a shared queue store, content
// store, and worker pool.
type Server struct {
	queue   queue.Store
	content content.Store
	pool    *pool.Pool
	logger  *zap.Logger
}

// NewServer builds a Server. logger may be nil, in which case request
// logging is skipped.
func NewServer(q queue.Store, c content.Store, p *pool.Pool, logger *zap.Logger) *Server {
	return &Server{queue: q, content: c, pool: p, logger: logger}
}

// Router returns the HTTP handler for every Control API endpoint.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/metrics", promhttp.Handler().ServeHTTP)

	mux.HandleFunc("/enqueue", s.handleEnqueue)
	mux.HandleFunc("/queue/stats", s.handleQueueStats)
	mux.HandleFunc("/queue/pending", s.handleQueuePending)
	mux.HandleFunc("/queue/clear", s.handleQueueClear)
	mux.HandleFunc("/queue/history", s.handleQueueHistory)

	mux.HandleFunc("/workers/start", s.handleWorkersStart)
	mux.HandleFunc("/workers/stop", s.handleWorkersStop)
	mux.HandleFunc("/workers/add", s.handleWorkersAdd)
	mux.HandleFunc("/workers/stats", s.handleWorkersStats)

	mux.HandleFunc("/content", s.handleContentList)
	mux.HandleFunc("/content/html", s.handleContentHTML)

	return s.corsMiddleware(s.loggingMiddleware(mux))
}

// envelope is the response shape every endpoint returns.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Success: status < 400, Data: data}); err != nil {
		s.logError("failed to encode JSON response", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Success: false, Error: message})
}

func (s *Server) logError(msg string, err error) {
	if s.logger != nil {
		s.logger.Error(msg, zap.Error(err))
	}
}

func (s *Server) logInfo(msg string, fields ...zap.Field) {
	if s.logger != nil {
		s.logger.Info(msg, fields...)
	}
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", requestID)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.logInfo("http request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapped.statusCode),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
