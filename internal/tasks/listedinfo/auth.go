package listedinfo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// idTokenLifetime is how long a J-Quants id_token remains valid once
// issued; the cache's safety margin trims this down before it expires
// in the caller's hands.
const idTokenLifetime = 24 * time.Hour

// APIAuthenticator implements tokencache.Exchanger against the external
// API's /token/auth_user and /token/auth_refresh endpoints. credentials
// is "mailaddress:password", the shape EXTERNAL_API_CREDENTIALS is
// loaded in per spec §6.1.
type APIAuthenticator struct {
	httpClient  *http.Client
	baseURL     string
	credentials string
}

// NewAPIAuthenticator builds an APIAuthenticator. credentials is
// "mailaddress:password"; ExchangeCredentials fails fast if it cannot
// split on the first colon.
func NewAPIAuthenticator(httpClient *http.Client, baseURL, credentials string) *APIAuthenticator {
	return &APIAuthenticator{httpClient: httpClient, baseURL: strings.TrimRight(baseURL, "/"), credentials: credentials}
}

// ExchangeCredentials trades the configured mail/password pair for a
// refresh_token via POST /token/auth_user.
func (a *APIAuthenticator) ExchangeCredentials(ctx context.Context) (string, error) {
	mail, password, ok := strings.Cut(a.credentials, ":")
	if !ok {
		return "", fmt.Errorf("listedinfo: EXTERNAL_API_CREDENTIALS must be \"mailaddress:password\"")
	}

	reqBody, err := json.Marshal(map[string]string{"mailaddress": mail, "password": password})
	if err != nil {
		return "", fmt.Errorf("listedinfo: marshal auth_user request: %w", err)
	}

	var out struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := a.post(ctx, "/token/auth_user", reqBody, &out); err != nil {
		return "", err
	}
	if out.RefreshToken == "" {
		return "", fmt.Errorf("listedinfo: auth_user returned no refreshToken")
	}
	return out.RefreshToken, nil
}

// RefreshIDToken trades a refresh_token for a fresh id_token via
// POST /token/auth_refresh?refreshtoken=....
func (a *APIAuthenticator) RefreshIDToken(ctx context.Context, refreshToken string) (string, time.Time, error) {
	path := "/token/auth_refresh?refreshtoken=" + refreshToken

	var out struct {
		IDToken string `json:"idToken"`
	}
	if err := a.post(ctx, path, nil, &out); err != nil {
		return "", time.Time{}, err
	}
	if out.IDToken == "" {
		return "", time.Time{}, fmt.Errorf("listedinfo: auth_refresh returned no idToken")
	}
	return out.IDToken, time.Now().Add(idTokenLifetime), nil
}

func (a *APIAuthenticator) post(ctx context.Context, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("listedinfo: build auth request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("listedinfo: auth request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &authError{status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("listedinfo: auth request %s returned %d: %s", path, resp.StatusCode, string(respBody))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("listedinfo: decode auth response: %w", err)
	}
	return nil
}
