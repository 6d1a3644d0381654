package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/reeflabs/reef/internal/urlpolicy"
)

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

type enqueueRequest struct {
	URL      string `json:"url"`
	Priority int    `json:"priority,omitempty"` // accepted but ignored; ordering is always FIFO
}

// handleEnqueue implements POST /enqueue.
func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req enqueueRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if !urlpolicy.Accept(req.URL) {
		s.respondError(w, http.StatusBadRequest, "invalid or disallowed url")
		return
	}

	accepted, err := s.queue.Enqueue(r.Context(), req.URL)
	if err != nil {
		s.logError("enqueue failed", err)
		s.respondError(w, http.StatusInternalServerError, "enqueue failed")
		return
	}
	if !accepted {
		s.respondJSON(w, http.StatusOK, map[string]interface{}{
			"success": false,
			"message": "url already visited within 24h or already pending",
		})
		return
	}

	s.queue.MetricsIncr(r.Context(), "total_urls", 1)
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"message": "url enqueued"})
}

// handleQueueStats implements GET /queue/stats.
func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	queued, err := s.queue.ApproxLength(ctx)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to read queue length")
		return
	}
	all, err := s.queue.MetricsGetAll(ctx)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to read metrics")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"total_urls":      parseInt64(all["total_urls"]),
		"queued_urls":     queued,
		"processing_urls": 0,
		"completed_urls":  parseInt64(all["completed_urls"]),
		"failed_urls":     parseInt64(all["failed_urls"]),
	})
}

// handleQueuePending implements GET /queue/pending?limit=N (peek, not consume).
func (s *Server) handleQueuePending(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	urls, err := s.queue.Peek(r.Context(), limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to read pending urls")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"urls": urls})
}

// handleQueueClear implements POST /queue/clear.
func (s *Server) handleQueueClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.queue.Clear(r.Context()); err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to clear queue")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"message": "queue cleared"})
}

// handleQueueHistory implements GET /queue/history.
func (s *Server) handleQueueHistory(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	points, err := s.queue.HistoryRange(r.Context(), now.Add(-24*time.Hour), now)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	s.respondJSON(w, http.StatusOK, points)
}

type startWorkersRequest struct {
	NumWorkers int `json:"num_workers,omitempty"`
}

// handleWorkersStart implements POST /workers/start.
func (s *Server) handleWorkersStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req startWorkersRequest
	_ = decodeJSON(r, &req) // a missing/empty body, or num_workers <= 0, starts 2 workers (NUM_WORKERS is not consulted)
	n := req.NumWorkers
	if n <= 0 {
		n = 2
	}
	s.pool.Start(n)
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"message": "workers started"})
}

// handleWorkersStop implements POST /workers/stop.
func (s *Server) handleWorkersStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.pool.Stop()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"message": "workers stopped"})
}

// handleWorkersAdd implements POST /workers/add.
func (s *Server) handleWorkersAdd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := s.pool.AddWorker()
	if id == "" {
		s.respondError(w, http.StatusConflict, "pool is not running")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"message": "worker added", "worker_id": id})
}

// handleWorkersStats implements GET /workers/stats.
func (s *Server) handleWorkersStats(w http.ResponseWriter, r *http.Request) {
	stats := s.pool.Stats(r.Context())
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"total_workers": len(stats),
		"running":       s.pool.Running(),
		"workers":       stats,
	})
}

// handleHealth implements GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	queued, qerr := s.queue.ApproxLength(ctx)

	status := "ok"
	if qerr != nil {
		status = "degraded"
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":       status,
		"queue_length": queued,
		"workers_up":   s.pool.Running(),
	})
}

const contentPreviewLen = 500

// handleContentList implements GET /content.
func (s *Server) handleContentList(w http.ResponseWriter, r *http.Request) {
	limit := 20
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	pages, err := s.content.ListPages(r.Context(), offset, limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to list pages")
		return
	}

	out := make([]map[string]interface{}, 0, len(pages))
	for _, p := range pages {
		preview := p.Text
		if len(preview) > contentPreviewLen {
			preview = preview[:contentPreviewLen]
		}
		out = append(out, map[string]interface{}{
			"url":            p.URL,
			"title":          p.Title,
			"content":        preview,
			"created_at":     p.CreatedAt,
			"content_length": len(p.Text),
		})
	}
	s.respondJSON(w, http.StatusOK, out)
}

// handleContentHTML implements GET /content/html?url=U.
func (s *Server) handleContentHTML(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		s.respondError(w, http.StatusBadRequest, "missing url query parameter")
		return
	}

	page, ok, err := s.content.GetPage(r.Context(), url)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to load page")
		return
	}
	if !ok {
		s.respondError(w, http.StatusNotFound, "page not found")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"html_content": page.HTML})
}

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
