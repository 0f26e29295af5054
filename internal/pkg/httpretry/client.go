// Package httpretry provides an HTTP client with automatic retry logic,
// exponential backoff, and jitter for resilient calls to the LinkedIn
// automation provider and the spreadsheet API.
package httpretry

import (
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// HTTPDoer is the interface for executing HTTP requests.
// Both *http.Client and *RetryClient satisfy this interface.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RetryClient wraps an HTTPDoer with bounded retries. Retryable failures
// are 429/5xx responses and transient network errors; client errors are
// returned immediately so callers can classify them as permanent.
type RetryClient struct {
	client     HTTPDoer
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewRetryClient creates a RetryClient around client. A nil client gets a
// default http.Client with a 30s timeout; maxRetries <= 0 defaults to 3.
func NewRetryClient(client HTTPDoer, maxRetries int) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &RetryClient{
		client:     client,
		maxRetries: maxRetries,
		baseDelay:  time.Second,
		maxDelay:   30 * time.Second,
	}
}

// Do executes the request, retrying retryable failures up to maxRetries
// times. The final attempt's response is returned as-is so the caller can
// inspect status and body. Context cancellation stops retrying immediately.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= rc.maxRetries; attempt++ {
		if err := req.Context().Err(); err != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, err
		}

		resp, err := rc.client.Do(req)
		if err != nil {
			if req.Context().Err() != nil {
				return nil, err
			}
			lastErr = err
		} else if !retryableStatus(resp.StatusCode) || attempt == rc.maxRetries {
			return resp, nil
		} else {
			// Drain for connection reuse before the retry.
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("httpretry: retryable status %d from %s", resp.StatusCode, req.URL.Host)

			if wait := retryAfter(resp); wait > 0 {
				if !rc.sleep(req, wait, attempt) {
					return nil, lastErr
				}
				continue
			}
		}

		if attempt == rc.maxRetries {
			break
		}
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("httpretry: reset request body: %w", err)
			}
			req.Body = body
		}
		if !rc.sleep(req, rc.backoff(attempt+1), attempt) {
			return nil, lastErr
		}
	}

	return nil, lastErr
}

// sleep waits for the given delay or until the request context is done.
// Returns false when the context expired.
func (rc *RetryClient) sleep(req *http.Request, delay time.Duration, attempt int) bool {
	log.Printf("httpretry: retry %d/%d for %s %s%s in %s",
		attempt+1, rc.maxRetries, req.Method, req.URL.Host, req.URL.Path, delay)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-req.Context().Done():
		return false
	}
}

// backoff returns the delay before the given retry attempt: exponential
// with full jitter, floored at 100ms to avoid busy-looping.
func (rc *RetryClient) backoff(attempt int) time.Duration {
	exp := float64(rc.baseDelay) * math.Pow(2, float64(attempt-1))
	if exp > float64(rc.maxDelay) {
		exp = float64(rc.maxDelay)
	}
	jittered := time.Duration(rand.Float64() * exp)
	if jittered < 100*time.Millisecond {
		jittered = 100 * time.Millisecond
	}
	return jittered
}

// retryAfter honours an explicit Retry-After header on 429 responses.
// Automation providers use it to signal account pacing; ignoring it risks
// account suspension.
func retryAfter(resp *http.Response) time.Duration {
	if resp.StatusCode != http.StatusTooManyRequests {
		return 0
	}
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	if secs > 60 {
		secs = 60
	}
	return time.Duration(secs) * time.Second
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
