package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	commonerrors "meetingsync/internal/common/errors"
)

// tokenResponse holds the provider token endpoint response.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// tokenSource performs the OAuth2 client-credentials flow against one
// provider and caches the token in memory until shortly before expiry.
// Tokens are never written to storage. Access is mutex-guarded because one
// source is shared by every concurrent job for its provider.
type tokenSource struct {
	tokenURL     string
	clientID     string
	clientSecret string
	scope        string
	provider     string
	httpClient   *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func newTokenSource(provider, tokenURL, clientID, clientSecret, scope string, httpClient *http.Client) *tokenSource {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &tokenSource{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		scope:        scope,
		provider:     provider,
		httpClient:   httpClient,
	}
}

// Token returns a valid bearer token, fetching a new one only on cache miss
// or expiry. Failures are AuthenticationError and are never retried; calling
// a token endpoint again with the same bad credentials cannot succeed.
func (t *tokenSource) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.accessToken != "" && t.tokenExpiry.After(time.Now()) {
		return t.accessToken, nil
	}

	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	data.Set("client_id", t.clientID)
	data.Set("client_secret", t.clientSecret)
	if t.scope != "" {
		data.Set("scope", t.scope)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", t.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", commonerrors.NewAuthenticationError(t.provider, fmt.Errorf("failed to create token request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", commonerrors.NewAuthenticationError(t.provider, fmt.Errorf("failed to execute token request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", commonerrors.NewAuthenticationError(t.provider,
			fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, string(body)))
	}

	var tokenResp tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", commonerrors.NewAuthenticationError(t.provider, fmt.Errorf("failed to decode token response: %w", err))
	}
	if tokenResp.AccessToken == "" {
		return "", commonerrors.NewAuthenticationError(t.provider, fmt.Errorf("token endpoint returned an empty access token"))
	}

	t.accessToken = tokenResp.AccessToken
	// Renew a minute early so in-flight requests never carry a token that
	// expires mid-call.
	expiresIn := time.Duration(tokenResp.ExpiresIn) * time.Second
	if expiresIn > 2*time.Minute {
		expiresIn -= time.Minute
	}
	t.tokenExpiry = time.Now().Add(expiresIn)

	return t.accessToken, nil
}

// Invalidate drops the cached token so the next call re-authenticates.
func (t *tokenSource) Invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.accessToken = ""
	t.tokenExpiry = time.Time{}
}
