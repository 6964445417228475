package banesco

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus" // Logging library
)

// Client fetches transaction details from the Banesco ledger with bearer
// authentication and bounded retry. It does not consult the internal rate
// limiter; that gating happens in the orchestration layer before a call.
type Client struct {
	baseURL    string
	tokens     *TokenSource
	httpClient *http.Client
	retry      RetryPolicy
}

// NewClient builds a provider client with the given request timeout
func NewClient(baseURL string, tokens *TokenSource, timeout time.Duration, retry RetryPolicy) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		tokens:     tokens,
		httpClient: &http.Client{Timeout: timeout},
		retry:      retry,
	}
}

// GetTransactionStatus fetches one transaction payload from the provider.
// Failure classes: ErrTransactionNotFound (404), ErrRateLimited (429),
// ErrTimeout, *APIError for everything else. Only *APIError is retried.
func (c *Client) GetTransactionStatus(ctx context.Context, transactionID string) (json.RawMessage, error) {
	var payload json.RawMessage
	err := c.retry.Do(ctx, func() error {
		p, err := c.fetch(ctx, transactionID)
		if err != nil {
			return err
		}
		payload = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// fetch performs one attempt against the provider
func (c *Client) fetch(ctx context.Context, transactionID string) (json.RawMessage, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transactions/"+transactionID, nil)
	if err != nil {
		return nil, &APIError{Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			logrus.WithFields(logrus.Fields{
				"transaction_id": transactionID,
				"error":          err.Error(),
			}).Error("Banesco API timeout")
			return nil, ErrTimeout
		}
		logrus.WithFields(logrus.Fields{
			"transaction_id": transactionID,
			"error":          err.Error(),
		}).Error("Banesco API transport error")
		return nil, &APIError{Message: err.Error()}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &APIError{Message: "reading response body: " + err.Error()}
		}
		logrus.WithField("transaction_id", transactionID).Info("Retrieved transaction from Banesco")
		return json.RawMessage(body), nil

	case resp.StatusCode == http.StatusNotFound:
		logrus.WithField("transaction_id", transactionID).Warn("Transaction not found in Banesco")
		return nil, ErrTransactionNotFound

	case resp.StatusCode == http.StatusTooManyRequests:
		logrus.WithField("transaction_id", transactionID).Warn("Rate limited by Banesco")
		return nil, ErrRateLimited

	default:
		logrus.WithFields(logrus.Fields{
			"transaction_id": transactionID,
			"status_code":    resp.StatusCode,
		}).Error("Banesco API error")
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "unexpected response"}
	}
}

// isTimeout reports whether err is a deadline or network timeout
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
