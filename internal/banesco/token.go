package banesco

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus" // Logging library
)

// DefaultTokenSafetyMargin is subtracted from the provider's declared token
// lifetime so a token is never used right at its expiry edge.
const DefaultTokenSafetyMargin = 60 * time.Second

// TokenSource exchanges client credentials for a bearer token and caches it
// until shortly before expiry. The mutex makes the refresh single-flight:
// concurrent callers needing a token block on the one in-flight exchange and
// all see its result.
type TokenSource struct {
	authURL      string
	clientID     string
	clientSecret string
	safetyMargin time.Duration
	httpClient   *http.Client

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time

	now func() time.Time // Injectable clock for tests
}

// NewTokenSource builds a token source for the given OAuth endpoint
func NewTokenSource(authURL, clientID, clientSecret string, safetyMargin, timeout time.Duration) *TokenSource {
	if safetyMargin <= 0 {
		safetyMargin = DefaultTokenSafetyMargin
	}
	return &TokenSource{
		authURL:      authURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		safetyMargin: safetyMargin,
		httpClient:   &http.Client{Timeout: timeout},
		now:          time.Now,
	}
}

// Token returns a valid access token, refreshing it if expired or absent
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Reuse the cached token while strictly before (expiry - margin)
	if s.accessToken != "" && s.now().Before(s.expiresAt) {
		return s.accessToken, nil
	}
	return s.refresh(ctx)
}

// refresh performs the client-credentials exchange; callers hold the mutex
func (s *TokenSource) refresh(ctx context.Context) (string, error) {
	logrus.WithField("auth_url", s.authURL).Info("Requesting new Banesco OAuth token")

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {s.clientID},
		"client_secret": {s.clientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &APIError{Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		logrus.WithError(err).Error("Banesco token exchange failed")
		return "", &APIError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logrus.WithField("status_code", resp.StatusCode).Error("Banesco token exchange rejected")
		return "", &APIError{StatusCode: resp.StatusCode, Message: "token exchange failed"}
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", &APIError{Message: "decoding token response: " + err.Error()}
	}
	if body.AccessToken == "" {
		return "", &APIError{Message: "token response missing access_token"}
	}
	if body.ExpiresIn <= 0 {
		body.ExpiresIn = 3600 // Provider default lifetime
	}

	s.accessToken = body.AccessToken
	s.expiresAt = s.now().Add(time.Duration(body.ExpiresIn)*time.Second - s.safetyMargin)

	logrus.WithField("expires_in", body.ExpiresIn).Info("Obtained Banesco OAuth token")
	return s.accessToken, nil
}
