// Package fetcher performs provider HTTP requests with bounded retries,
// exponential backoff and Retry-After aware rate-limit handling.
package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"SupplySentinel/internal/observability"
)

// DefaultMaxRetries is the attempt budget when none is configured.
const DefaultMaxRetries = 3

const maxBodyInError = 512

// Request describes one logical request. It is rebuilt for every attempt so
// bodies can be replayed.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is a fully read 2xx response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Fetcher issues requests against a single provider.
type Fetcher struct {
	Provider   string
	Client     *http.Client
	MaxRetries int
	UserAgent  string
	Throttle   *Throttle
	Metrics    *observability.Metrics

	// Backoff returns the wait before retrying after the given zero-based attempt.
	Backoff func(attempt int) time.Duration
	// Sleep blocks for d or until ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

// NewFetcher creates a fetcher with the default 2^attempt second backoff.
func NewFetcher(provider string, client *http.Client, maxRetries int) *Fetcher {
	if client == nil {
		client = NewHTTPClient(30*time.Second, "")
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Fetcher{
		Provider:   provider,
		Client:     client,
		MaxRetries: maxRetries,
		UserAgent:  "supply-sentinel/1.0",
		Backoff:    ExponentialBackoff,
		Sleep:      SleepContext,
		Now:        time.Now,
	}
}

// NewHTTPClient creates a client with optional proxy support.
func NewHTTPClient(timeout time.Duration, proxyURL string) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// ExponentialBackoff waits 2^attempt seconds.
func ExponentialBackoff(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * time.Second
}

// SleepContext waits for d unless ctx is cancelled first.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do performs req, retrying failed attempts up to MaxRetries attempts.
// A 429 consumes an attempt and waits for Retry-After when present. Other
// 4xx responses are terminal for their attempt but still retried. A request
// that cannot be built ends the loop at once. The last error is returned
// when the budget is exhausted.
func (f *Fetcher) Do(ctx context.Context, req Request) (*Response, error) {
	attempts := f.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := f.Throttle.Wait(ctx); err != nil {
			return nil, err
		}

		resp, wait, err := f.attempt(ctx, req, attempt)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !retryable(err) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
		}
		if attempt == attempts-1 {
			break
		}

		log.Printf("[WARN] %s request failed (attempt %d/%d): %v, retrying in %v",
			f.Provider, attempt+1, attempts, err, wait)
		if err := f.Sleep(ctx, wait); err != nil {
			return nil, fmt.Errorf("%w (last error: %v)", err, lastErr)
		}
	}
	return nil, lastErr
}

// retryable reports whether another attempt may succeed. Terminal errors
// without a status never reached the provider.
func retryable(err error) bool {
	var te *TerminalFetchError
	if errors.As(err, &te) {
		return te.StatusCode != 0
	}
	return true
}

func (f *Fetcher) attempt(ctx context.Context, req Request, attempt int) (*Response, time.Duration, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, 0, &TerminalFetchError{Provider: f.Provider, URL: req.URL, Err: err}
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if f.UserAgent != "" && httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", f.UserAgent)
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	start := f.Now()
	resp, err := f.Client.Do(httpReq)
	elapsed := f.Now().Sub(start).Seconds()
	if err != nil {
		f.Metrics.ObserveFetch(f.Provider, "transport_error", elapsed)
		return nil, f.Backoff(attempt), &TransientFetchError{Provider: f.Provider, URL: req.URL, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		f.Metrics.ObserveFetch(f.Provider, "read_error", elapsed)
		return nil, f.Backoff(attempt), &TransientFetchError{Provider: f.Provider, URL: req.URL, StatusCode: resp.StatusCode, Err: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		f.Metrics.ObserveFetch(f.Provider, "ok", elapsed)
		return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: payload}, 0, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		f.Metrics.ObserveFetch(f.Provider, "rate_limited", elapsed)
		wait, ok := parseRetryAfter(resp.Header.Get("Retry-After"), f.Now())
		if !ok {
			wait = f.Backoff(attempt)
		}
		return nil, wait, &TransientFetchError{Provider: f.Provider, URL: req.URL, StatusCode: resp.StatusCode, Err: ErrRateLimited}

	case resp.StatusCode >= 500:
		f.Metrics.ObserveFetch(f.Provider, "server_error", elapsed)
		return nil, f.Backoff(attempt), &TransientFetchError{
			Provider:   f.Provider,
			URL:        req.URL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(payload)),
		}

	default:
		f.Metrics.ObserveFetch(f.Provider, "client_error", elapsed)
		return nil, f.Backoff(attempt), &TerminalFetchError{
			Provider:   f.Provider,
			URL:        req.URL,
			StatusCode: resp.StatusCode,
			Body:       truncate(payload),
			Err:        fmt.Errorf("HTTP %d", resp.StatusCode),
		}
	}
}

// GetJSON fetches url and decodes the body into out.
func (f *Fetcher) GetJSON(ctx context.Context, url string, header http.Header, out any) error {
	resp, err := f.Do(ctx, Request{Method: http.MethodGet, URL: url, Header: header})
	if err != nil {
		return err
	}
	return f.decode(url, resp.Body, out)
}

// PostJSON posts in as JSON and decodes the body into out. A nil in sends no body.
func (f *Fetcher) PostJSON(ctx context.Context, url string, header http.Header, in, out any) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = b
	}
	resp, err := f.Do(ctx, Request{Method: http.MethodPost, URL: url, Header: header, Body: body})
	if err != nil {
		return err
	}
	return f.decode(url, resp.Body, out)
}

func (f *Fetcher) decode(url string, body []byte, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &TerminalFetchError{
			Provider: f.Provider,
			URL:      url,
			Body:     truncate(body),
			Err:      fmt.Errorf("%w: %v", ErrMalformedPayload, err),
		}
	}
	return nil
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

func truncate(b []byte) string {
	if len(b) > maxBodyInError {
		return string(b[:maxBodyInError]) + "..."
	}
	return string(b)
}
