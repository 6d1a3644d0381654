package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reeflabs/reef/internal/content"
	"github.com/reeflabs/reef/internal/fetcher"
	"github.com/reeflabs/reef/internal/htmlproc"
	"github.com/reeflabs/reef/internal/pool"
	"github.com/reeflabs/reef/internal/queue"
	"github.com/reeflabs/reef/internal/worker"
)

func testServer() *Server {
	q := queue.NewMemoryStore()
	c := content.NewMemoryStore()
	f := fetcher.New(5*time.Second, "reef-test", fetcher.Options{})
	proc := htmlproc.NewProcessor(0, 0)
	p := pool.New(worker.DefaultConfig(), q, c, f, proc, time.Second)
	return NewServer(q, c, p, nil)
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), "body=%s", rec.Body.String())
	return env
}

func TestHandleEnqueueAcceptsValidURL(t *testing.T) {
	s := testServer()
	router := s.Router()

	body := strings.NewReader(`{"url":"https://example.com/a"}`)
	req := httptest.NewRequest(http.MethodPost, "/enqueue", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)
}

func TestHandleEnqueueRejectsMalformedURL(t *testing.T) {
	s := testServer()
	router := s.Router()

	body := strings.NewReader(`{"url":"ftp://example.com/a"}`)
	req := httptest.NewRequest(http.MethodPost, "/enqueue", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleEnqueueDedupRejectsSecondCall(t *testing.T) {
	s := testServer()
	router := s.Router()

	for i := 0; i < 2; i++ {
		body := strings.NewReader(`{"url":"https://example.com/a"}`)
		req := httptest.NewRequest(http.MethodPost, "/enqueue", body)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		env := decodeEnvelope(t, rec)
		data, _ := env.Data.(map[string]interface{})
		success, _ := data["success"].(bool)
		if i == 0 {
			assert.True(t, env.Success, "first enqueue should be accepted")
		}
		if i == 1 {
			assert.False(t, success, "second enqueue of the same URL should report success=false")
		}
	}
}

func TestHandleQueueStatsReflectsApproxLength(t *testing.T) {
	s := testServer()
	router := s.Router()

	s.queue.Enqueue(httptest.NewRequest(http.MethodGet, "/", nil).Context(), "https://example.com/a")

	req := httptest.NewRequest(http.MethodGet, "/queue/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	env := decodeEnvelope(t, rec)
	data := env.Data.(map[string]interface{})
	assert.EqualValues(t, 1, data["queued_urls"])
}

func TestHandleQueueClear(t *testing.T) {
	s := testServer()
	router := s.Router()

	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()
	s.queue.Enqueue(ctx, "https://example.com/a")

	req := httptest.NewRequest(http.MethodPost, "/queue/clear", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	n, _ := s.queue.ApproxLength(ctx)
	assert.EqualValues(t, 0, n, "expected queue cleared")
}

func TestHandleWorkersStartStopIsIdempotent(t *testing.T) {
	s := testServer()
	router := s.Router()

	for _, path := range []string{"/workers/start", "/workers/start"} {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/workers/stop", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleContentHTMLNotFound(t *testing.T) {
	s := testServer()
	router := s.Router()

	req := httptest.NewRequest(http.MethodGet, "/content/html?url=https://example.com/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleHealthReportsOK(t *testing.T) {
	s := testServer()
	router := s.Router()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	data := env.Data.(map[string]interface{})
	assert.Equal(t, "ok", data["status"])
}
