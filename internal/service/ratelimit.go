package service

import (
	"context"
	"time"

	"transaction_system/internal/domain"
)

// RateLimitStore is the persistence contract for window counters
type RateLimitStore interface {
	Increment(ctx context.Context, resourceType, resourceID, windowStart string) error
	Count(ctx context.Context, resourceType, resourceID, windowStart string) (int, error)
	Reset(ctx context.Context, resourceType, resourceID, windowStart string) error
}

// RateLimitService bounds calls per (resource kind, resource identifier) to a
// ceiling within fixed minute-aligned windows. There is no sliding window: a
// burst straddling a window boundary may briefly exceed the nominal rate by
// one window's allowance, which is accepted.
type RateLimitService struct {
	store RateLimitStore
	limit int              // Ceiling for TRANSACTION_ID windows
	now   func() time.Time // Injectable clock for tests
}

// NewRateLimitService builds a limiter with the given per-minute ceiling
func NewRateLimitService(store RateLimitStore, limit int) *RateLimitService {
	return &RateLimitService{store: store, limit: limit, now: time.Now}
}

// windowStart truncates the current instant to the start of the minute
func (s *RateLimitService) windowStart() string {
	return s.now().UTC().Truncate(time.Minute).Format(time.RFC3339)
}

// CheckLimit reports whether another call for the resource is allowed in the
// current window. Only TRANSACTION_ID resources are metered; all other kinds
// pass unconditionally.
func (s *RateLimitService) CheckLimit(ctx context.Context, resourceType, resourceID string) (bool, error) {
	if resourceType != domain.ResourceTransactionID {
		return true, nil
	}
	count, err := s.store.Count(ctx, resourceType, resourceID, s.windowStart())
	if err != nil {
		return false, err
	}
	return count < s.limit, nil
}

// Increment counts one permitted call against the current window. Call it
// only after the call was actually made, never speculatively.
func (s *RateLimitService) Increment(ctx context.Context, resourceType, resourceID string) error {
	return s.store.Increment(ctx, resourceType, resourceID, s.windowStart())
}

// Reset clears the current window's counter (administrative and test use)
func (s *RateLimitService) Reset(ctx context.Context, resourceType, resourceID string) error {
	return s.store.Reset(ctx, resourceType, resourceID, s.windowStart())
}
