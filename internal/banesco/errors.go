package banesco

import (
	"errors"
	"fmt"
)

// Terminal failure classes. None of these is retried by the client: a 404 or
// 429 is definitive for the attempt window, and a timeout is surfaced for
// the caller to decide.
var (
	ErrTransactionNotFound = errors.New("banesco: transaction not found")
	ErrRateLimited         = errors.New("banesco: rate limit exceeded")
	ErrTimeout             = errors.New("banesco: request timed out")
)

// APIError is the catch-all provider or transport failure. It is the only
// error class the retry policy considers transient.
type APIError struct {
	StatusCode int    // HTTP status, zero for transport errors
	Message    string // Short description
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("banesco: API error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("banesco: API error: %s", e.Message)
}
