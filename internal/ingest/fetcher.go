package ingest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/roach88/sibr/internal/config"
	"github.com/roach88/sibr/internal/metrics"
)

// Fetcher retrieves one raw document from an external endpoint along with
// the time it was observed.
type Fetcher interface {
	Fetch(ctx context.Context, endpoint string) (time.Time, []byte, error)
}

// maxBodySize caps a single response. Stream snapshots run to a few MB.
const maxBodySize = 64 << 20

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// Temporary reports whether the request may succeed if repeated.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// HTTPFetcher fetches documents over HTTP.
//
// Requests are paced by a shared token bucket, retried with backoff inside
// one call, and guarded by a circuit breaker per upstream host so that a
// dead host fails fast instead of tying up every worker's tick.
//
// Thread-safety: HTTPFetcher is safe for concurrent use.
type HTTPFetcher struct {
	client    *http.Client
	base      *url.URL
	userAgent string
	limiter   *rate.Limiter
	attempts  uint
	delay     time.Duration
	cfg       config.FetchConfig
	now       func() time.Time

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[[]byte]
}

// NewHTTPFetcher builds a fetcher from cfg.
func NewHTTPFetcher(cfg config.FetchConfig) (*HTTPFetcher, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 1
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}

	return &HTTPFetcher{
		client:    &http.Client{Timeout: cfg.RequestTimeout},
		base:      base,
		userAgent: cfg.UserAgent,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		attempts:  cfg.Attempts,
		delay:     cfg.RetryDelay,
		cfg:       cfg,
		now:       time.Now,
		breakers:  map[string]*gobreaker.CircuitBreaker[[]byte]{},
	}, nil
}

// Fetch implements Fetcher. The returned timestamp is taken when the
// response body has been read.
func (f *HTTPFetcher) Fetch(ctx context.Context, endpoint string) (time.Time, []byte, error) {
	u, err := f.resolve(endpoint)
	if err != nil {
		return time.Time{}, nil, err
	}
	cb := f.breaker(u.Host)

	body, err := retry.DoWithData(
		func() ([]byte, error) {
			return cb.Execute(func() ([]byte, error) {
				return f.get(ctx, u)
			})
		},
		retry.Context(ctx),
		retry.Attempts(f.attempts),
		retry.Delay(f.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
	)

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.FetchRequests.WithLabelValues(u.Host, "breaker_open").Inc()
		return time.Time{}, nil, fmt.Errorf("fetch %s: %w", u, err)
	case err != nil:
		metrics.FetchRequests.WithLabelValues(u.Host, "error").Inc()
		return time.Time{}, nil, fmt.Errorf("fetch %s: %w", u, err)
	}

	metrics.FetchRequests.WithLabelValues(u.Host, "ok").Inc()
	return f.now().UTC(), body, nil
}

func (f *HTTPFetcher) resolve(endpoint string) (*url.URL, error) {
	ref, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint %q: %w", endpoint, err)
	}
	return f.base.ResolveReference(ref), nil
}

func (f *HTTPFetcher) breaker(host string) *gobreaker.CircuitBreaker[[]byte] {
	f.mu.Lock()
	defer f.mu.Unlock()

	if cb, ok := f.breakers[host]; ok {
		return cb
	}

	threshold := f.cfg.BreakerFailures
	if threshold == 0 {
		threshold = 5
	}
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,
		Timeout:     f.cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// A 4xx says nothing about upstream health.
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return !se.Temporary()
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change",
				"host", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	f.breakers[host] = cb
	return cb
}

func (f *HTTPFetcher) get(ctx context.Context, u *url.URL) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/event-stream")
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: u.String(), Code: resp.StatusCode}
	}

	body := io.LimitReader(resp.Body, maxBodySize)
	if mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mt == "text/event-stream" {
		return firstEvent(body)
	}
	return io.ReadAll(body)
}

// firstEvent reads a server-sent event stream up to the end of the first
// event that carries data, and returns that data. Multi-line data fields
// are joined with newlines.
func firstEvent(r io.Reader) ([]byte, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxBodySize)

	var data bytes.Buffer
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			if data.Len() > 0 {
				return data.Bytes(), nil
			}
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		if field != "data" {
			continue
		}
		if data.Len() > 0 {
			data.WriteByte('\n')
		}
		data.WriteString(strings.TrimPrefix(value, " "))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read event stream: %w", err)
	}
	if data.Len() > 0 {
		return data.Bytes(), nil
	}
	return nil, errors.New("event stream ended without data")
}

// retryable reports whether a failed attempt is worth repeating.
func retryable(err error) bool {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}
