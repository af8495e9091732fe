package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	commonerrors "meetingsync/internal/common/errors"
	"meetingsync/internal/common/logger"
	"meetingsync/internal/common/metrics"
	"meetingsync/internal/models"
)

// baseClient carries the plumbing every provider client shares: the token
// source, the per-provider rate limiter, and the bounded retry loop. One
// instance exists per provider per process.
type baseClient struct {
	system     models.CRMSystem
	baseURL    string
	httpClient *http.Client
	tokens     *tokenSource
	limiter    *rate.Limiter
	retry      RetryPolicy
	log        logger.Logger
}

func newBaseClient(system models.CRMSystem, baseURL string, tokens *tokenSource, limiter *rate.Limiter, retry RetryPolicy, timeout time.Duration, log logger.Logger) *baseClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &baseClient{
		system:     system,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
		limiter:    limiter,
		retry:      retry,
		log:        log,
	}
}

// doRequest runs one provider API call end to end: ensure a valid token,
// wait for a rate-limit slot, then issue the request. A 429 honors the
// server's Retry-After before retrying; transient failures retry up to the
// policy bound with doubling backoff. Authentication failures surface
// immediately and are never retried.
func (c *baseClient) doRequest(ctx context.Context, method, path string, body interface{}) (map[string]interface{}, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, commonerrors.NewSerializationError("request body", err)
		}
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			delay := c.retry.Backoff(attempt)
			if retryAfter, ok := retryAfterFrom(lastErr); ok {
				delay = retryAfter
			}
			if err := sleepContext(ctx, delay); err != nil {
				return nil, commonerrors.NewCRMAPIError(string(c.system), err)
			}
			c.log.WithFields(map[string]interface{}{
				"provider": string(c.system),
				"attempt":  attempt,
				"path":     path,
			}).Warn("Retrying CRM request")
		}

		result, retryable, err := c.attempt(ctx, method, path, payload)
		if err == nil {
			return result, nil
		}
		if !retryable || attempt >= c.retry.MaxRetries {
			return nil, err
		}
		lastErr = err
	}
}

// attempt issues a single HTTP call. The second return reports whether the
// failure is worth another try.
func (c *baseClient) attempt(ctx context.Context, method, path string, payload []byte) (map[string]interface{}, bool, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, false, err
	}

	if err := waitForSlot(ctx, c.limiter, c.system); err != nil {
		return nil, false, commonerrors.NewCRMAPIError(string(c.system), fmt.Errorf("rate limit wait interrupted: %w", err))
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, false, commonerrors.NewCRMAPIError(string(c.system), fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, commonerrors.NewCRMAPIError(string(c.system), fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, commonerrors.NewCRMAPIError(string(c.system), fmt.Errorf("failed to read response: %w", err))
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return decodeBody(body), false, nil

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.tokens.Invalidate()
		return nil, false, commonerrors.NewAuthenticationError(string(c.system),
			fmt.Errorf("provider rejected credentials with status %d: %s", resp.StatusCode, string(body)))

	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		metrics.RateLimitWaits.WithLabelValues(string(c.system)).Inc()
		return nil, true, commonerrors.NewRateLimitedError(string(c.system), retryAfter)

	case isTransientHTTPStatus(resp.StatusCode):
		return nil, true, commonerrors.NewCRMAPIError(string(c.system),
			fmt.Errorf("transient provider error %d: %s", resp.StatusCode, string(body)))

	default:
		return nil, false, commonerrors.NewCRMAPIError(string(c.system),
			fmt.Errorf("provider error %d: %s", resp.StatusCode, string(body)))
	}
}

func decodeBody(body []byte) map[string]interface{} {
	if len(body) == 0 {
		return map[string]interface{}{}
	}
	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		return map[string]interface{}{"raw": string(body)}
	}
	return result
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 5 * time.Second
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 5 * time.Second
}

// retryAfterFrom extracts the server-directed delay from a rate-limited
// error. The retry loop uses it in place of the backoff schedule so the
// wait is served exactly once.
func retryAfterFrom(err error) (time.Duration, bool) {
	var stdErr *commonerrors.StandardError
	if !errors.As(err, &stdErr) || stdErr.Code != commonerrors.ErrCodeRateLimited {
		return 0, false
	}
	seconds, ok := stdErr.Metadata["retryAfterSeconds"].(float64)
	if !ok {
		return 0, false
	}
	return time.Duration(seconds * float64(time.Second)), true
}

func isTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
