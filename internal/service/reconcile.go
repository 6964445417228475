package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"transaction_system/internal/domain"
	"transaction_system/internal/repository"
	"transaction_system/internal/utils"

	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logging library
)

// MaxListLimit caps one page of listing results
const MaxListLimit = 100

// Engine error taxonomy
var (
	// ErrInvalidTransition is returned when the status graph forbids a move
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrLimitExceeded is returned when the internal limiter refuses a provider call
	ErrLimitExceeded = errors.New("provider call limit exceeded")
)

// TransactionStore is the persistence contract the engine works against
type TransactionStore interface {
	GetByID(ctx context.Context, id string) (*domain.Transaction, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*domain.Transaction, error)
	GetByReference(ctx context.Context, reference string) (*domain.Transaction, error)
	Create(ctx context.Context, t *domain.Transaction) (*domain.Transaction, error)
	Update(ctx context.Context, t *domain.Transaction) (*domain.Transaction, error)
	SoftDelete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, f repository.ListFilters, limit, offset int) ([]domain.Transaction, int64, error)
	UpdateStatus(ctx context.Context, id string, oldStatus, newStatus domain.TransactionStatus, reason *string, actorType domain.ActorType, actorID *string) (bool, error)
	ListEvents(ctx context.Context, transactionID string) ([]domain.TransactionEvent, error)
}

// BankClient fetches transaction details from the upstream provider
type BankClient interface {
	GetTransactionStatus(ctx context.Context, transactionID string) (json.RawMessage, error)
}

// UpsertInput carries the fields of one upstream transaction sighting
type UpsertInput struct {
	TransactionID      string                 // External identifier (idempotency key)
	Reference          string                 // Provider-facing reference
	Bank               domain.BankType        // Originating channel
	TransactionType    domain.TransactionType // Transaction kind
	CustomerFullName   string                 // Customer name
	CustomerPhone      string                 // Customer phone
	CustomerNationalID string                 // Customer national id
	Concept            *string                // Free-form concept text
	BanescoPayload     json.RawMessage        // Raw provider payload
	ExtraData          json.RawMessage        // Open extension map
	CreatedBy          *string                // Acting principal, if any
}

// ReconcileService orchestrates the idempotent upsert, the status lifecycle
// with its audit trail, and the rate-limited cross-check against the provider.
type ReconcileService struct {
	store    TransactionStore
	limiter  *RateLimitService
	bank     BankClient
	rdb      *redis.Client // Optional payload cache; nil disables caching
	cacheTTL time.Duration
}

// NewReconcileService wires the engine. bank and rdb may be nil when the
// provider cross-check or the cache is not configured.
func NewReconcileService(store TransactionStore, limiter *RateLimitService, bank BankClient, rdb *redis.Client, cacheTTL time.Duration) *ReconcileService {
	return &ReconcileService{
		store:    store,
		limiter:  limiter,
		bank:     bank,
		rdb:      rdb,
		cacheTTL: cacheTTL,
	}
}

// Upsert converges repeated sightings of one external transaction onto a
// single record. A known external id updates the record in place and never
// touches its status; an unknown one creates the record as IN_PROGRESS. The
// returned flag reports whether a new record was created, so the boundary can
// distinguish a first sighting from a converged repeat. The store's
// uniqueness constraint backstops the lookup-then-create race: a create-time
// conflict is corrected into the update path exactly once.
func (s *ReconcileService) Upsert(ctx context.Context, in UpsertInput) (*domain.Transaction, bool, error) {
	existing, err := s.store.GetByTransactionID(ctx, in.TransactionID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		updated, err := s.applyUpdate(ctx, existing, in)
		return updated, false, err
	}

	t := &domain.Transaction{
		ID:                 utils.NewID(),
		TransactionID:      in.TransactionID,
		Status:             domain.StatusInProgress,
		Bank:               in.Bank,
		TransactionType:    in.TransactionType,
		Reference:          in.Reference,
		CustomerFullName:   in.CustomerFullName,
		CustomerPhone:      in.CustomerPhone,
		CustomerNationalID: in.CustomerNationalID,
		Concept:            in.Concept,
		BanescoPayload:     in.BanescoPayload,
		ExtraData:          in.ExtraData,
		CreatedBy:          in.CreatedBy,
	}
	created, err := s.store.Create(ctx, t)
	if err == nil {
		logrus.WithFields(logrus.Fields{
			"id":             created.ID,
			"transaction_id": created.TransactionID,
			"bank":           created.Bank,
		}).Info("Transaction created")
		return created, true, nil
	}
	if !errors.Is(err, domain.ErrConflict) {
		return nil, false, err
	}

	// Lost a create race for this external id: correct into an update, once.
	logrus.WithField("transaction_id", in.TransactionID).Warn("Create conflict on upsert, retrying as update")
	existing, lookupErr := s.store.GetByTransactionID(ctx, in.TransactionID)
	if lookupErr != nil {
		return nil, false, lookupErr
	}
	if existing == nil {
		// The conflict was a duplicate (reference, kind), not the external id
		return nil, false, err
	}
	updated, err := s.applyUpdate(ctx, existing, in)
	return updated, false, err
}

// applyUpdate overwrites the mutable fields of an existing record
func (s *ReconcileService) applyUpdate(ctx context.Context, existing *domain.Transaction, in UpsertInput) (*domain.Transaction, error) {
	existing.Reference = in.Reference
	existing.Bank = in.Bank
	existing.TransactionType = in.TransactionType
	existing.CustomerFullName = in.CustomerFullName
	existing.CustomerPhone = in.CustomerPhone
	existing.CustomerNationalID = in.CustomerNationalID
	existing.Concept = in.Concept
	existing.BanescoPayload = in.BanescoPayload
	if in.ExtraData != nil {
		existing.ExtraData = in.ExtraData
	}
	updated, err := s.store.Update(ctx, existing)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"id":             updated.ID,
		"transaction_id": updated.TransactionID,
	}).Info("Transaction updated")
	return updated, nil
}

// GetByID fetches a live transaction by internal id; nil on miss
func (s *ReconcileService) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	return s.store.GetByID(ctx, id)
}

// GetByTransactionID fetches a live transaction by external id; nil on miss
func (s *ReconcileService) GetByTransactionID(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	return s.store.GetByTransactionID(ctx, transactionID)
}

// GetByReference fetches a live transaction by reference; nil on miss
func (s *ReconcileService) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	return s.store.GetByReference(ctx, reference)
}

// ChangeStatus moves a transaction through the status graph, recording one
// audit event per accepted transition. Returns (false, nil) when the
// transaction is absent, and ErrInvalidTransition when the graph forbids the
// move; terminal states have no outgoing edges.
func (s *ReconcileService) ChangeStatus(ctx context.Context, id string, newStatus domain.TransactionStatus, reason *string, actorType domain.ActorType, actorID *string) (bool, error) {
	t, err := s.store.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if t == nil {
		return false, nil
	}
	if !domain.CanTransition(t.Status, newStatus) {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, newStatus)
	}
	ok, err := s.store.UpdateStatus(ctx, id, t.Status, newStatus, reason, actorType, actorID)
	if err != nil {
		return false, err
	}
	if ok {
		logrus.WithFields(logrus.Fields{
			"id":         id,
			"old_status": t.Status,
			"new_status": newStatus,
			"actor_type": actorType,
		}).Info("Transaction status changed")
	}
	return ok, nil
}

// ForceStatus is the administrative override: it skips the status graph but
// still refuses to leave a terminal state, and always records an audit event.
func (s *ReconcileService) ForceStatus(ctx context.Context, id string, newStatus domain.TransactionStatus, reason *string, actorType domain.ActorType, actorID *string) (bool, error) {
	t, err := s.store.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if t == nil {
		return false, nil
	}
	if t.Status.IsTerminal() {
		return false, fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, t.Status)
	}
	ok, err := s.store.UpdateStatus(ctx, id, t.Status, newStatus, reason, actorType, actorID)
	if err != nil {
		return false, err
	}
	if ok {
		logrus.WithFields(logrus.Fields{
			"id":         id,
			"old_status": t.Status,
			"new_status": newStatus,
			"actor_type": actorType,
		}).Warn("Transaction status overridden")
	}
	return ok, nil
}

// Delete soft-deletes a transaction; its audit trail stays queryable
func (s *ReconcileService) Delete(ctx context.Context, id string) (bool, error) {
	return s.store.SoftDelete(ctx, id)
}

// List returns transactions matching the filters plus the filtered total.
// The page size is capped at MaxListLimit.
func (s *ReconcileService) List(ctx context.Context, f repository.ListFilters, limit, offset int) ([]domain.Transaction, int64, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.List(ctx, f, limit, offset)
}

// Events returns the audit trail of a transaction, oldest first
func (s *ReconcileService) Events(ctx context.Context, id string) ([]domain.TransactionEvent, error) {
	return s.store.ListEvents(ctx, id)
}

// RefreshFromBank cross-checks one transaction against the provider ledger.
// The limiter gates the call before it is made and counts every permitted
// call that actually went out, failed ones included, so an erroring provider
// is not hammered without bound. The fetched payload replaces the stored
// one, is cached in Redis, and a recognizable provider status is mapped onto
// the local lifecycle as a SYSTEM transition.
func (s *ReconcileService) RefreshFromBank(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	if s.bank == nil {
		return nil, errors.New("bank client not configured")
	}
	t, err := s.store.GetByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, domain.ErrNotFound
	}

	allowed, err := s.limiter.CheckLimit(ctx, domain.ResourceTransactionID, transactionID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrLimitExceeded
	}

	payload, err := s.bank.GetTransactionStatus(ctx, transactionID)
	// The outbound call was made whether or not it succeeded; a failing
	// provider must consume the window allowance the same as a healthy one
	if incErr := s.limiter.Increment(ctx, domain.ResourceTransactionID, transactionID); incErr != nil {
		logrus.WithError(incErr).Warn("Failed to count provider call")
	}
	if err != nil {
		return nil, err
	}

	t.BanescoPayload = payload
	updated, err := s.store.Update(ctx, t)
	if err != nil {
		return nil, err
	}

	// Cache write-through; a cache failure is never a data error
	if s.rdb != nil {
		if cacheErr := utils.SetCache(ctx, s.rdb, utils.TransactionCacheKey(transactionID), updated, s.cacheTTL); cacheErr != nil {
			logrus.WithError(cacheErr).Warn("Failed to cache provider payload")
		}
	}

	if next, ok := mapProviderStatus(payload); ok && next != updated.Status && domain.CanTransition(updated.Status, next) {
		reason := "banesco ledger sync"
		moved, statusErr := s.store.UpdateStatus(ctx, updated.ID, updated.Status, next, &reason, domain.ActorSystem, nil)
		if statusErr != nil {
			return nil, statusErr
		}
		if moved {
			logrus.WithFields(logrus.Fields{
				"id":         updated.ID,
				"old_status": updated.Status,
				"new_status": next,
			}).Info("Transaction status reconciled from Banesco")
			updated.Status = next
		}
	}
	return updated, nil
}

// mapProviderStatus translates the provider's status field, when present and
// recognizable, onto the local lifecycle
func mapProviderStatus(payload json.RawMessage) (domain.TransactionStatus, bool) {
	var body struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(payload, &body); err != nil || body.Status == "" {
		return "", false
	}
	switch strings.ToUpper(body.Status) {
	case "COMPLETED", "APPROVED", "SUCCESS", "CONFIRMED":
		return domain.StatusCompleted, true
	case "REJECTED", "FAILED", "DECLINED":
		return domain.StatusRejected, true
	case "CANCELLED", "CANCELED":
		return domain.StatusCancelled, true
	}
	return "", false
}
