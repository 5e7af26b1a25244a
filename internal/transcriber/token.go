package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Token is an ephemeral credential for a realtime session. It lives only in
// process memory and is refetched once expired.
type Token struct {
	Value  string
	Expiry time.Time
}

// Expired reports whether the token can no longer authenticate a connection.
// A small margin avoids presenting a token that dies mid-handshake.
func (t Token) Expired() bool {
	if t.Value == "" {
		return true
	}
	if t.Expiry.IsZero() {
		return false
	}
	return time.Now().After(t.Expiry.Add(-5 * time.Second))
}

// TokenSource produces credentials for realtime sessions.
type TokenSource interface {
	Token(ctx context.Context) (Token, error)
}

// StaticTokenSource hands out a long-lived API key. It never expires.
type StaticTokenSource struct {
	Key string
}

func (s StaticTokenSource) Token(ctx context.Context) (Token, error) {
	if s.Key == "" {
		return Token{}, fmt.Errorf("empty API key")
	}
	return Token{Value: s.Key}, nil
}

// HTTPTokenSource mints short-lived session tokens from a token endpoint.
type HTTPTokenSource struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHTTPTokenSource(endpoint, apiKey string) *HTTPTokenSource {
	return &HTTPTokenSource{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type tokenResponse struct {
	Value     string `json:"value"`
	ExpiresAt int64  `json:"expires_at"` // unix seconds, 0 means no expiry
}

func (s *HTTPTokenSource) Token(ctx context.Context) (Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader([]byte("{}")))
	if err != nil {
		return Token{}, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("fetch token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Token{}, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return Token{}, fmt.Errorf("decode token response: %w", err)
	}
	if tr.Value == "" {
		return Token{}, fmt.Errorf("token endpoint returned empty value")
	}

	token := Token{Value: tr.Value}
	if tr.ExpiresAt > 0 {
		token.Expiry = time.Unix(tr.ExpiresAt, 0)
	}
	return token, nil
}
