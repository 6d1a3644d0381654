package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchReturnsHTMLBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body>hi</body></html>"))
	}))
	defer srv.Close()

	f := New(5*time.Second, "reef-test/1.0", Options{})
	res, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 200, res.Status)
	assert.False(t, res.Skipped)
	assert.Contains(t, string(res.Body), "hi")
}

func TestFetchSkipsNonHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	f := New(5*time.Second, "reef-test/1.0", Options{})
	res, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.True(t, res.Skipped, "expected non-HTML response to be marked skipped, not an error")
}

func TestFetchTruncatesBodyAtCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		buf := make([]byte, DefaultMaxBodyBytes+10_000)
		for i := range buf {
			buf[i] = 'a'
		}
		w.Write(buf)
	}))
	defer srv.Close()

	f := New(10*time.Second, "reef-test/1.0", Options{})
	res, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, res.Body, DefaultMaxBodyBytes)
}

func TestFetchRejectsOversizedDeclaredLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("Content-Length", "2000000")
		w.WriteHeader(200)
	}))
	defer srv.Close()

	f := New(5*time.Second, "reef-test/1.0", Options{})
	_, err := f.Fetch(context.Background(), srv.URL)
	assert.Error(t, err, "expected error for oversized declared content-length")
}

func TestFetchWithRetryRetriesOn503ThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	f := New(5*time.Second, "reef-test/1.0", Options{})
	res, err := f.FetchWithRetry(context.Background(), srv.URL, 3)
	require.NoError(t, err)
	assert.Equal(t, 200, res.Status)
	assert.EqualValues(t, 3, atomic.LoadInt32(&attempts))
}

func TestFetchWithRetryGivesUpAfterBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGatewayTimeout)
	}))
	defer srv.Close()

	f := New(5*time.Second, "reef-test/1.0", Options{})
	res, err := f.FetchWithRetry(context.Background(), srv.URL, 2)
	assert.Error(t, err, "expected error after exhausting retry budget")
	assert.Equal(t, http.StatusGatewayTimeout, res.Status)
}
