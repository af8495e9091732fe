// internal/crm/client_test.go
package crm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetingsync/internal/common/config"
	commonerrors "meetingsync/internal/common/errors"
	"meetingsync/internal/common/logger"
	"meetingsync/internal/models"
)

// crmTestEnv wires a provider client against in-process token and API
// servers so the full request path runs without touching the network.
type crmTestEnv struct {
	provider   Provider
	tokenCalls *int64
	apiCalls   *int64
}

// newCRMTestEnv builds a Salesforce client whose API responses are driven by
// the status sequence; once the sequence is exhausted every call succeeds.
func newCRMTestEnv(t *testing.T, tokenStatus int, apiStatuses ...int) *crmTestEnv {
	t.Helper()

	var tokenCalls, apiCalls int64

	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&tokenCalls, 1)
		if tokenStatus != http.StatusOK {
			w.WriteHeader(tokenStatus)
			return
		}
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.FormValue("grant_type"))
		json.NewEncoder(w).Encode(tokenResponse{AccessToken: "test-token", TokenType: "Bearer", ExpiresIn: 3600})
	}))
	t.Cleanup(tokenServer.Close)

	apiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := atomic.AddInt64(&apiCalls, 1)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		if int(call) <= len(apiStatuses) {
			status := apiStatuses[call-1]
			if status == http.StatusTooManyRequests {
				w.Header().Set("Retry-After", "1")
			}
			if status != http.StatusOK {
				w.WriteHeader(status)
				return
			}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"id": "record-1", "success": true})
	}))
	t.Cleanup(apiServer.Close)

	provider, err := NewProvider(models.CRMSalesforce, config.ProviderConfig{
		TokenURL:          tokenServer.URL,
		BaseURL:           apiServer.URL,
		ClientID:          "client-id",
		ClientSecret:      "client-secret",
		RequestsPerMinute: 600,
		MaxRetries:        3,
		Timeout:           5000,
	}, logger.NewTestLogger(t))
	require.NoError(t, err)

	return &crmTestEnv{provider: provider, tokenCalls: &tokenCalls, apiCalls: &apiCalls}
}

func TestDoRequest_TokenCachedAcrossRequests(t *testing.T) {
	env := newCRMTestEnv(t, http.StatusOK)
	ctx := context.Background()

	_, err := env.provider.UpdateRecord(ctx, "Lead", "lead-1", map[string]interface{}{"Subject": "First"})
	require.NoError(t, err)
	_, err = env.provider.UpdateRecord(ctx, "Lead", "lead-1", map[string]interface{}{"Subject": "Second"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), atomic.LoadInt64(env.tokenCalls), "second request reuses the cached token")
	assert.Equal(t, int64(2), atomic.LoadInt64(env.apiCalls))
}

func TestDoRequest_TokenEndpointRejectionNotRetried(t *testing.T) {
	env := newCRMTestEnv(t, http.StatusUnauthorized)

	_, err := env.provider.UpdateRecord(context.Background(), "Lead", "lead-1", map[string]interface{}{"Subject": "x"})

	assert.True(t, commonerrors.IsCode(err, commonerrors.ErrCodeAuthentication))
	assert.Equal(t, int64(1), atomic.LoadInt64(env.tokenCalls), "bad credentials are not retried")
	assert.Equal(t, int64(0), atomic.LoadInt64(env.apiCalls), "no API call is made without a token")
}

func TestDoRequest_RetriesTransientFailures(t *testing.T) {
	env := newCRMTestEnv(t, http.StatusOK, http.StatusServiceUnavailable, http.StatusBadGateway)

	result, err := env.provider.UpdateRecord(context.Background(), "Lead", "lead-1", map[string]interface{}{"Subject": "x"})

	require.NoError(t, err)
	assert.Equal(t, "record-1", result["id"])
	assert.Equal(t, int64(3), atomic.LoadInt64(env.apiCalls), "two transient failures then success")
}

func TestDoRequest_GivesUpAfterMaxRetries(t *testing.T) {
	env := newCRMTestEnv(t, http.StatusOK,
		http.StatusServiceUnavailable, http.StatusServiceUnavailable,
		http.StatusServiceUnavailable, http.StatusServiceUnavailable)

	_, err := env.provider.UpdateRecord(context.Background(), "Lead", "lead-1", map[string]interface{}{"Subject": "x"})

	assert.True(t, commonerrors.IsCode(err, commonerrors.ErrCodeCRMAPI))
	assert.Equal(t, int64(4), atomic.LoadInt64(env.apiCalls), "initial attempt plus three retries")
}

func TestDoRequest_AuthFailureFromAPINotRetried(t *testing.T) {
	env := newCRMTestEnv(t, http.StatusOK, http.StatusUnauthorized)

	_, err := env.provider.UpdateRecord(context.Background(), "Lead", "lead-1", map[string]interface{}{"Subject": "x"})
	assert.True(t, commonerrors.IsCode(err, commonerrors.ErrCodeAuthentication))
	assert.Equal(t, int64(1), atomic.LoadInt64(env.apiCalls), "rejected credentials are not retried")

	// The 401 invalidated the cached token, so the next request
	// re-authenticates before calling the API again.
	_, err = env.provider.UpdateRecord(context.Background(), "Lead", "lead-1", map[string]interface{}{"Subject": "x"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), atomic.LoadInt64(env.tokenCalls))
}

func TestDoRequest_HonorsRetryAfter(t *testing.T) {
	env := newCRMTestEnv(t, http.StatusOK, http.StatusTooManyRequests)

	start := time.Now()
	result, err := env.provider.UpdateRecord(context.Background(), "Lead", "lead-1", map[string]interface{}{"Subject": "x"})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "record-1", result["id"])
	assert.Equal(t, int64(2), atomic.LoadInt64(env.apiCalls))
	assert.GreaterOrEqual(t, elapsed, time.Second, "waits out the server's Retry-After")
	assert.Less(t, elapsed, 1500*time.Millisecond, "does not stack backoff on top of Retry-After")
}

func TestRetryAfterFrom(t *testing.T) {
	delay, ok := retryAfterFrom(commonerrors.NewRateLimitedError("salesforce", 3*time.Second))
	require.True(t, ok)
	assert.Equal(t, 3*time.Second, delay)

	_, ok = retryAfterFrom(commonerrors.NewCRMAPIError("salesforce", errors.New("boom")))
	assert.False(t, ok)

	_, ok = retryAfterFrom(nil)
	assert.False(t, ok)
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   time.Duration
	}{
		{name: "missing header uses default", header: "", want: 5 * time.Second},
		{name: "seconds value", header: "3", want: 3 * time.Second},
		{name: "garbage uses default", header: "soon", want: 5 * time.Second},
		{name: "http date in the past uses default", header: "Mon, 02 Jan 2006 15:04:05 GMT", want: 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseRetryAfter(tt.header))
		})
	}
}

func TestRetryPolicyBackoff(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 5, InitialDelay: 500 * time.Millisecond, MaxDelay: 2 * time.Second}

	assert.Equal(t, 500*time.Millisecond, policy.Backoff(1))
	assert.Equal(t, time.Second, policy.Backoff(2))
	assert.Equal(t, 2*time.Second, policy.Backoff(3))
	assert.Equal(t, 2*time.Second, policy.Backoff(10), "delay is capped")
}

func TestWaitForSlot_ContextCancelled(t *testing.T) {
	limiter := newProviderLimiter(1)
	// Drain the burst so the next wait must queue behind the refill.
	for limiter.Allow() {
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := waitForSlot(ctx, limiter, models.CRMSalesforce)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTokenSource_EmptyAccessTokenRejected(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(tokenResponse{TokenType: "Bearer", ExpiresIn: 3600})
	}))
	defer tokenServer.Close()

	tokens := newTokenSource("salesforce", tokenServer.URL, "id", "secret", "", nil)
	_, err := tokens.Token(context.Background())

	assert.True(t, commonerrors.IsCode(err, commonerrors.ErrCodeAuthentication))
}
