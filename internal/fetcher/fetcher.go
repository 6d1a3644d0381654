// Package fetcher performs the HTTP GET step of the crawl pipeline, with
// size caps, timeouts, a retry policy, and a content-type gate.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Kind classifies a fetch error for the worker's error taxonomy.
type Kind int

const (
	KindNone Kind = iota
	KindTimeout
	KindConnect
	KindHTTP
	KindOther
)

// MaxDeclaredContentLength rejects a response outright if Content-Length
// declares more than this many bytes.
const MaxDeclaredContentLength = 1_000_000

// DefaultMaxBodyBytes is the truncation point used when Options.MaxBodyBytes
// is left unset.
const DefaultMaxBodyBytes = 500_000

var retryableStatus = map[int]bool{429: true, 500: true, 502: true, 503: true, 504: true}

// Error wraps a fetch failure with its Kind for taxonomy-based handling.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Result is a successful (or content-type-skipped) fetch outcome.
type Result struct {
	Status      int
	ContentType string
	Body        []byte
	Elapsed     time.Duration
	// Skipped is true when the content-type gate rejected a non-HTML
	// response; this is not treated as a failure.
	Skipped bool
}

// Fetcher performs GETs with a bounded connection pool (shared by every
// goroutine that uses the same Fetcher) and a
// lazily-created per-host rate limiter for the minimal per-request delay
// the Non-goals permit (not a cross-host policy).
type Fetcher struct {
	client    *http.Client
	userAgent string
	delay     time.Duration
	maxBody   int64

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter
}

// Options carries the Fetcher knobs beyond timeout and user agent that
// callers may want to source from configuration instead of hardcoding.
type Options struct {
	// PerHostDelay is the minimum spacing between requests to the same
	// host; 0 disables the limiter.
	PerHostDelay time.Duration
	// MaxBodyBytes is the truncation point when streaming a response
	// body; <= 0 falls back to DefaultMaxBodyBytes.
	MaxBodyBytes int64
	// HTTPProxy and HTTPSProxy, when set, are used for plain-HTTP and
	// HTTPS requests respectively, overriding the transport's default of
	// no proxy.
	HTTPProxy  string
	HTTPSProxy string
}

// New builds a Fetcher with the given total timeout, user agent, and
// options.
func New(timeout time.Duration, userAgent string, opts Options) *Fetcher {
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	transport := &http.Transport{
		MaxConnsPerHost:     10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		Proxy:               proxyFunc(opts.HTTPProxy, opts.HTTPSProxy),
	}
	return &Fetcher{
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return nil
			},
		},
		userAgent: userAgent,
		delay:     opts.PerHostDelay,
		maxBody:   maxBody,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// proxyFunc returns a Transport.Proxy func honoring distinct HTTP and HTTPS
// proxy URLs, or nil (no proxy) when neither is set.
func proxyFunc(httpProxy, httpsProxy string) func(*http.Request) (*url.URL, error) {
	if httpProxy == "" && httpsProxy == "" {
		return nil
	}
	return func(req *http.Request) (*url.URL, error) {
		raw := httpProxy
		if req.URL.Scheme == "https" && httpsProxy != "" {
			raw = httpsProxy
		}
		if raw == "" {
			return nil, nil
		}
		return url.Parse(raw)
	}
}

// Fetch performs a single GET, applying the content-length pre-check and
// streaming the body with a cap so the truncation point is never exceeded
// in memory.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) (Result, error) {
	if err := f.waitHost(ctx, targetURL); err != nil {
		return Result{}, &Error{Kind: KindOther, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return Result{}, &Error{Kind: KindOther, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.1")

	start := time.Now()
	resp, err := f.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return Result{Elapsed: elapsed}, classifyErr(err)
	}
	defer resp.Body.Close()

	if resp.ContentLength > MaxDeclaredContentLength {
		return Result{Status: resp.StatusCode, Elapsed: elapsed}, &Error{
			Kind: KindOther,
			Err:  fmt.Errorf("declared content-length %d exceeds cap", resp.ContentLength),
		}
	}

	contentType := resp.Header.Get("Content-Type")
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// A non-2xx body is discarded; drain a bounded amount so the
		// connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, f.maxBody))
		return Result{Status: resp.StatusCode, ContentType: contentType, Elapsed: elapsed},
			&Error{Kind: KindHTTP, Err: fmt.Errorf("http %d", resp.StatusCode)}
	}

	if !isHTML(contentType) {
		// Drain a bounded amount so the connection can be reused, then skip.
		io.Copy(io.Discard, io.LimitReader(resp.Body, f.maxBody))
		return Result{Status: resp.StatusCode, ContentType: contentType, Elapsed: elapsed, Skipped: true}, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody))
	if err != nil {
		return Result{Status: resp.StatusCode, Elapsed: elapsed}, &Error{Kind: KindOther, Err: err}
	}

	return Result{Status: resp.StatusCode, ContentType: contentType, Body: body, Elapsed: elapsed}, nil
}

// FetchWithRetry retries on retryable statuses and transient network errors
// with exponential backoff, up to maxRetries additional attempts.
func (f *Fetcher) FetchWithRetry(ctx context.Context, targetURL string, maxRetries int) (Result, error) {
	var lastRes Result
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return lastRes, ctx.Err()
			case <-timer.C:
			}
		}

		res, err := f.Fetch(ctx, targetURL)
		lastRes, lastErr = res, err

		if err == nil || !isRetryable(res, err) {
			return res, err
		}
	}

	return lastRes, lastErr
}

func isRetryable(res Result, err error) bool {
	if err == nil {
		return false
	}
	if retryableStatus[res.Status] {
		return true
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind == KindTimeout || fe.Kind == KindConnect
	}
	return false
}

func isHTML(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.HasPrefix(ct, "text/html") || strings.HasPrefix(ct, "application/xhtml+")
}

func classifyErr(err error) *Error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Err: err}
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such host"),
		strings.Contains(msg, "network is unreachable"), strings.Contains(msg, "connection reset"):
		return &Error{Kind: KindConnect, Err: err}
	default:
		return &Error{Kind: KindOther, Err: err}
	}
}

func (f *Fetcher) waitHost(ctx context.Context, targetURL string) error {
	if f.delay <= 0 {
		return nil
	}
	host := hostOf(targetURL)
	lim := f.limiterFor(host)
	return lim.Wait(ctx)
}

func (f *Fetcher) limiterFor(host string) *rate.Limiter {
	f.limitersMu.Lock()
	defer f.limitersMu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		every := rate.Every(f.delay)
		lim = rate.NewLimiter(every, 1)
		f.limiters[host] = lim
	}
	return lim
}

func hostOf(rawURL string) string {
	const schemeSep = "://"
	idx := strings.Index(rawURL, schemeSep)
	if idx < 0 {
		return rawURL
	}
	rest := rawURL[idx+len(schemeSep):]
	if slash := strings.IndexByte(rest, '/'); slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}
