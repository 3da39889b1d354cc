package channel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"time"
)

const maxRetries = 2

// SharedHTTPClient returns an HTTP client with connection pooling, shared by
// all provider-facing handlers of one factory.
func SharedHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// retryableError indicates a transient provider failure.
type retryableError struct {
	statusCode int
	body       string
}

func (e *retryableError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.statusCode, e.body)
}

// doWithRetry executes a provider request with bounded exponential backoff
// for transient errors (network failures, 5xx, 429). 4xx rejections are never
// retried, and the surrounding send timeout still bounds the whole exchange.
func doWithRetry(ctx context.Context, client *http.Client, buildReq func() (*http.Request, error), logger *slog.Logger) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff with jitter to prevent thundering herd.
			base := time.Duration(attempt*attempt) * time.Second
			jitter := time.Duration(rand.Int64N(int64(base/2 + 1)))
			backoff := base + jitter
			logger.Warn("retrying provider request", "attempt", attempt+1, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := buildReq()
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if attempt < maxRetries {
				logger.Warn("provider request failed, will retry", "error", err)
				continue
			}
			return nil, fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
		}

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = &retryableError{statusCode: resp.StatusCode, body: string(body)}
			if attempt < maxRetries {
				logger.Warn("provider error, will retry",
					"status", resp.StatusCode, "body", string(body))
				continue
			}
			return nil, fmt.Errorf("provider error after %d retries: %w", maxRetries, lastErr)
		}

		return resp, nil
	}

	return nil, lastErr
}
