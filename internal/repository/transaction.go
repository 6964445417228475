package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"transaction_system/internal/domain"
	"transaction_system/internal/utils"

	"gorm.io/gorm"
)

// ListFilters narrows a transaction listing. Nil fields are not applied.
type ListFilters struct {
	Status    *domain.TransactionStatus // Filter by lifecycle status
	Reference *string                   // Filter by exact reference
	Phone     *string                   // Filter by customer phone
	FromDate  *time.Time                // Created at or after
	ToDate    *time.Time                // Created at or before
}

// TransactionRepository is the durable home for transactions and their audit
// events, and the sole authority on uniqueness enforcement.
type TransactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository builds a repository over the given DB handle
func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// GetByID fetches a live transaction by internal id; nil on miss
func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	var t domain.Transaction
	err := r.db.WithContext(ctx).
		Where("id = ? AND deleted_at IS NULL", id).
		First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// GetByTransactionID fetches a live transaction by its external identifier.
// This is the idempotency lookup; nil on miss.
func (r *TransactionRepository) GetByTransactionID(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	var t domain.Transaction
	err := r.db.WithContext(ctx).
		Where("transaction_id = ? AND deleted_at IS NULL", transactionID).
		First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// GetByReference fetches a live transaction by reference number; nil on miss
func (r *TransactionRepository) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	var t domain.Transaction
	err := r.db.WithContext(ctx).
		Where("reference = ? AND deleted_at IS NULL", reference).
		First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// Create inserts a new transaction. A duplicate external id or duplicate
// (reference, transaction_type) pair surfaces as domain.ErrConflict.
func (r *TransactionRepository) Create(ctx context.Context, t *domain.Transaction) (*domain.Transaction, error) {
	if err := r.db.WithContext(ctx).Create(t).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, domain.ErrConflict
		}
		return nil, err
	}
	return t, nil
}

// Update overwrites the mutable fields of an existing transaction. Status is
// deliberately excluded: it only moves through UpdateStatus so every change
// carries an audit event. Returns domain.ErrNotFound if the id is absent.
func (r *TransactionRepository) Update(ctx context.Context, t *domain.Transaction) (*domain.Transaction, error) {
	res := r.db.WithContext(ctx).Model(&domain.Transaction{}).
		Where("id = ? AND deleted_at IS NULL", t.ID).
		Updates(map[string]any{
			"reference":            t.Reference,
			"bank":                 t.Bank,
			"transaction_type":     t.TransactionType,
			"customer_full_name":   t.CustomerFullName,
			"customer_phone":       t.CustomerPhone,
			"customer_national_id": t.CustomerNationalID,
			"concept":              t.Concept,
			"banesco_payload":      t.BanescoPayload,
			"extra_data":           t.ExtraData,
		})
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return nil, domain.ErrConflict
		}
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// Distinguish a no-op update from a missing row
		existing, err := r.GetByID(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, domain.ErrNotFound
		}
		return existing, nil
	}
	return r.GetByID(ctx, t.ID)
}

// SoftDelete sets the tombstone timestamp. Returns false if the transaction
// is already absent or deleted; calling it twice is safe.
func (r *TransactionRepository) SoftDelete(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Transaction{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Update("deleted_at", time.Now().UTC())
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// List returns live transactions matching the filters, newest first, plus the
// filtered total independent of pagination.
func (r *TransactionRepository) List(ctx context.Context, f ListFilters, limit, offset int) ([]domain.Transaction, int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.Transaction{}).
		Where("deleted_at IS NULL")

	if f.Status != nil {
		query = query.Where("status = ?", *f.Status)
	}
	if f.Reference != nil {
		query = query.Where("reference = ?", *f.Reference)
	}
	if f.Phone != nil {
		query = query.Where("customer_phone = ?", *f.Phone)
	}
	if f.FromDate != nil {
		query = query.Where("created_at >= ?", *f.FromDate)
	}
	if f.ToDate != nil {
		query = query.Where("created_at <= ?", *f.ToDate)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var transactions []domain.Transaction
	err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&transactions).Error
	if err != nil {
		return nil, 0, err
	}
	return transactions, total, nil
}

// UpdateStatus atomically moves a transaction to newStatus and appends one
// audit event, in a single DB transaction. The UPDATE carries the expected
// old status in its WHERE clause as an optimistic concurrency guard: a
// concurrent writer makes this return false with nothing written.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, id string, oldStatus, newStatus domain.TransactionStatus, reason *string, actorType domain.ActorType, actorID *string) (bool, error) {
	updated := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Transaction{}).
			Where("id = ? AND status = ? AND deleted_at IS NULL", id, oldStatus).
			Update("status", newStatus)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil // Missing, deleted, or stale expected status
		}
		old := oldStatus
		event := domain.TransactionEvent{
			ID:            utils.NewID(),
			TransactionID: id,
			OldStatus:     &old,
			NewStatus:     newStatus,
			Reason:        reason,
			ActorType:     actorType,
			ActorID:       actorID,
			Metadata:      json.RawMessage(`{}`),
		}
		if err := tx.Create(&event).Error; err != nil {
			return err // Roll back the status change as well
		}
		updated = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return updated, nil
}

// ListEvents returns the audit trail of a transaction, oldest first. The
// trail stays queryable after the transaction is soft-deleted.
func (r *TransactionRepository) ListEvents(ctx context.Context, transactionID string) ([]domain.TransactionEvent, error) {
	var events []domain.TransactionEvent
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("created_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
