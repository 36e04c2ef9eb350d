package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

// PowerPlatformScope is the admin API audience shared by the environments,
// apps and flows endpoints.
const PowerPlatformScope = "https://api.bap.microsoft.com/.default"

// RefreshExchange trades a refresh token for a delegated access token.
type RefreshExchange struct {
	TenantID string
	ClientID string
	// TokenURL overrides the Entra ID token endpoint.
	TokenURL   string
	HTTPClient *http.Client
}

// TokenSource returns a caching source that redeems refreshToken for scopes
// whenever the cached access token has expired. Rotated refresh tokens are
// picked up automatically.
func (e RefreshExchange) TokenSource(ctx context.Context, refreshToken string, scopes ...string) oauth2.TokenSource {
	tokenURL := e.TokenURL
	if tokenURL == "" {
		tokenURL = microsoft.AzureADEndpoint(e.TenantID).TokenURL
	}
	httpClient := e.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return oauth2.ReuseTokenSource(nil, &refreshSource{
		ctx:          ctx,
		httpClient:   httpClient,
		tokenURL:     tokenURL,
		clientID:     e.ClientID,
		scope:        strings.Join(scopes, " "),
		refreshToken: refreshToken,
	})
}

// AccessToken redeems refreshToken once for the given scopes.
func (e RefreshExchange) AccessToken(ctx context.Context, refreshToken string, scopes ...string) (string, error) {
	if refreshToken == "" {
		return "", ErrAccessTokenRequired
	}
	if e.TenantID == "" || e.ClientID == "" {
		return "", fmt.Errorf("%w: tenant_id and client_id are required to redeem a refresh token", ErrNotConfigured)
	}
	tok, err := e.TokenSource(ctx, refreshToken, scopes...).Token()
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// refreshSource posts the refresh grant itself because the v2 endpoint wants
// the scope repeated on every refresh, which oauth2.Config does not send.
type refreshSource struct {
	ctx        context.Context
	httpClient *http.Client
	tokenURL   string
	clientID   string
	scope      string

	mu           sync.Mutex
	refreshToken string
}

func (s *refreshSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	form := url.Values{
		"client_id":     {s.clientID},
		"grant_type":    {"refresh_token"},
		"refresh_token": {s.refreshToken},
	}
	if s.scope != "" {
		form.Set("scope", s.scope)
	}

	req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=utf-8")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token exchange request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var buf bytes.Buffer
		buf.ReadFrom(resp.Body)
		return nil, fmt.Errorf("token exchange failed with status %d: %s", resp.StatusCode, buf.String())
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("token response did not include an access token")
	}
	if tr.RefreshToken != "" {
		s.refreshToken = tr.RefreshToken
	}

	tok := &oauth2.Token{
		AccessToken:  tr.AccessToken,
		TokenType:    tr.TokenType,
		RefreshToken: s.refreshToken,
	}
	if tr.ExpiresIn > 0 {
		tok.Expiry = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return tok, nil
}
