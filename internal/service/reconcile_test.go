package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"testing"
	"time"

	"transaction_system/internal/domain"
	"transaction_system/internal/repository"
	"transaction_system/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryStore implements TransactionStore with the real store's contract:
// soft-delete filtering, uniqueness conflicts, the optimistic status guard,
// and append-only events.
type memoryStore struct {
	transactions map[string]*domain.Transaction
	events       []domain.TransactionEvent

	createCalls int
	updateCalls int
	lastLimit   int

	missNextExternalLookup bool // Simulates the lookup side of a create race
}

func newMemoryStore() *memoryStore {
	return &memoryStore{transactions: map[string]*domain.Transaction{}}
}

func (m *memoryStore) GetByID(_ context.Context, id string) (*domain.Transaction, error) {
	t, ok := m.transactions[id]
	if !ok || t.DeletedAt != nil {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (m *memoryStore) GetByTransactionID(_ context.Context, transactionID string) (*domain.Transaction, error) {
	if m.missNextExternalLookup {
		m.missNextExternalLookup = false
		return nil, nil
	}
	for _, t := range m.transactions {
		if t.TransactionID == transactionID && t.DeletedAt == nil {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memoryStore) GetByReference(_ context.Context, reference string) (*domain.Transaction, error) {
	for _, t := range m.transactions {
		if t.Reference == reference && t.DeletedAt == nil {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memoryStore) Create(_ context.Context, t *domain.Transaction) (*domain.Transaction, error) {
	m.createCalls++
	for _, existing := range m.transactions {
		if existing.DeletedAt != nil {
			continue
		}
		if existing.TransactionID == t.TransactionID {
			return nil, domain.ErrConflict
		}
		if existing.Reference == t.Reference && existing.TransactionType == t.TransactionType {
			return nil, domain.ErrConflict
		}
	}
	cp := *t
	cp.CreatedAt = time.Now().UTC()
	cp.UpdatedAt = cp.CreatedAt
	m.transactions[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memoryStore) Update(_ context.Context, t *domain.Transaction) (*domain.Transaction, error) {
	m.updateCalls++
	stored, ok := m.transactions[t.ID]
	if !ok || stored.DeletedAt != nil {
		return nil, domain.ErrNotFound
	}
	// Status is deliberately not written here; it only moves via UpdateStatus
	stored.Reference = t.Reference
	stored.Bank = t.Bank
	stored.TransactionType = t.TransactionType
	stored.CustomerFullName = t.CustomerFullName
	stored.CustomerPhone = t.CustomerPhone
	stored.CustomerNationalID = t.CustomerNationalID
	stored.Concept = t.Concept
	stored.BanescoPayload = t.BanescoPayload
	stored.ExtraData = t.ExtraData
	stored.UpdatedAt = time.Now().UTC()
	cp := *stored
	return &cp, nil
}

func (m *memoryStore) SoftDelete(_ context.Context, id string) (bool, error) {
	t, ok := m.transactions[id]
	if !ok || t.DeletedAt != nil {
		return false, nil
	}
	now := time.Now().UTC()
	t.DeletedAt = &now
	return true, nil
}

func (m *memoryStore) List(_ context.Context, f repository.ListFilters, limit, offset int) ([]domain.Transaction, int64, error) {
	m.lastLimit = limit
	var matched []domain.Transaction
	for _, t := range m.transactions {
		if t.DeletedAt != nil {
			continue
		}
		if f.Status != nil && t.Status != *f.Status {
			continue
		}
		if f.Reference != nil && t.Reference != *f.Reference {
			continue
		}
		if f.Phone != nil && t.CustomerPhone != *f.Phone {
			continue
		}
		if f.FromDate != nil && t.CreatedAt.Before(*f.FromDate) {
			continue
		}
		if f.ToDate != nil && t.CreatedAt.After(*f.ToDate) {
			continue
		}
		matched = append(matched, *t)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	total := int64(len(matched))
	if offset >= len(matched) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (m *memoryStore) UpdateStatus(_ context.Context, id string, oldStatus, newStatus domain.TransactionStatus, reason *string, actorType domain.ActorType, actorID *string) (bool, error) {
	t, ok := m.transactions[id]
	if !ok || t.DeletedAt != nil || t.Status != oldStatus {
		return false, nil
	}
	t.Status = newStatus
	old := oldStatus
	m.events = append(m.events, domain.TransactionEvent{
		ID:            utils.NewID(),
		TransactionID: id,
		OldStatus:     &old,
		NewStatus:     newStatus,
		Reason:        reason,
		ActorType:     actorType,
		ActorID:       actorID,
		CreatedAt:     time.Now().UTC(),
	})
	return true, nil
}

func (m *memoryStore) ListEvents(_ context.Context, transactionID string) ([]domain.TransactionEvent, error) {
	var out []domain.TransactionEvent
	for _, e := range m.events {
		if e.TransactionID == transactionID {
			out = append(out, e)
		}
	}
	return out, nil
}

// stubBank is a canned BankClient
type stubBank struct {
	payload json.RawMessage
	err     error
	calls   int
}

func (b *stubBank) GetTransactionStatus(context.Context, string) (json.RawMessage, error) {
	b.calls++
	if b.err != nil {
		return nil, b.err
	}
	return b.payload, nil
}

// memoryRateStore backs the limiter in engine tests
type memoryRateStore struct {
	counts map[string]int
}

func newMemoryRateStore() *memoryRateStore {
	return &memoryRateStore{counts: map[string]int{}}
}

func (m *memoryRateStore) key(rt, rid, ws string) string { return rt + "|" + rid + "|" + ws }

func (m *memoryRateStore) Increment(_ context.Context, rt, rid, ws string) error {
	m.counts[m.key(rt, rid, ws)]++
	return nil
}

func (m *memoryRateStore) Count(_ context.Context, rt, rid, ws string) (int, error) {
	return m.counts[m.key(rt, rid, ws)], nil
}

func (m *memoryRateStore) Reset(_ context.Context, rt, rid, ws string) error {
	delete(m.counts, m.key(rt, rid, ws))
	return nil
}

func baseInput() UpsertInput {
	return UpsertInput{
		TransactionID:      "TRX-1",
		Reference:          "REF-1",
		Bank:               domain.BankBanesco,
		TransactionType:    domain.TypeTransaction,
		CustomerFullName:   "Maria Perez",
		CustomerPhone:      "04141234567",
		CustomerNationalID: "V12345678",
	}
}

func newEngine(store TransactionStore, bank BankClient, limit int) *ReconcileService {
	limiter := NewRateLimitService(newMemoryRateStore(), limit)
	return NewReconcileService(store, limiter, bank, nil, time.Minute)
}

func TestUpsertCreatesInProgress(t *testing.T) {
	store := newMemoryStore()
	engine := newEngine(store, nil, 2)

	created, isNew, err := engine.Upsert(context.Background(), baseInput())
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.True(t, isNew, "a first sighting reports as created")
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "TRX-1", created.TransactionID)
	assert.Equal(t, domain.StatusInProgress, created.Status)
	assert.Equal(t, 1, store.createCalls)
	assert.Equal(t, 0, store.updateCalls)
}

func TestUpsertIsIdempotent(t *testing.T) {
	store := newMemoryStore()
	engine := newEngine(store, nil, 2)

	first, _, err := engine.Upsert(context.Background(), baseInput())
	require.NoError(t, err)

	in := baseInput()
	in.Reference = "REF-1-changed"
	second, isNew, err := engine.Upsert(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "same external id must converge on one record")
	assert.False(t, isNew, "a converged repeat reports as an update")
	assert.Equal(t, "REF-1-changed", second.Reference)
	assert.Equal(t, domain.StatusInProgress, second.Status, "upsert never touches status")
	assert.Equal(t, 1, store.createCalls, "second sighting must not create")
	assert.Equal(t, 1, store.updateCalls)
	assert.Len(t, store.transactions, 1)
}

func TestUpsertCreateRaceCorrectedToUpdate(t *testing.T) {
	store := newMemoryStore()
	engine := newEngine(store, nil, 2)

	existing, _, err := engine.Upsert(context.Background(), baseInput())
	require.NoError(t, err)

	// The racing caller saw no record, then lost the insert
	store.missNextExternalLookup = true
	in := baseInput()
	in.Reference = "REF-1-race"
	result, isNew, err := engine.Upsert(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, existing.ID, result.ID)
	assert.False(t, isNew, "the corrected race reports as an update")
	assert.Equal(t, "REF-1-race", result.Reference)
	assert.Equal(t, 2, store.createCalls, "the losing create was attempted once")
	assert.Equal(t, 1, store.updateCalls, "exactly one corrective update, no retry loop")
	assert.Len(t, store.transactions, 1)
}

func TestUpsertSurfacesReferenceConflict(t *testing.T) {
	store := newMemoryStore()
	engine := newEngine(store, nil, 2)

	_, _, err := engine.Upsert(context.Background(), baseInput())
	require.NoError(t, err)

	// Different external id, same (reference, kind): nothing to correct into
	in := baseInput()
	in.TransactionID = "TRX-2"
	_, _, err = engine.Upsert(context.Background(), in)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 0, store.updateCalls)
}

func TestChangeStatusRecordsOneEvent(t *testing.T) {
	store := newMemoryStore()
	engine := newEngine(store, nil, 2)

	created, _, err := engine.Upsert(context.Background(), baseInput())
	require.NoError(t, err)

	reason := "settled upstream"
	ok, err := engine.ChangeStatus(context.Background(), created.ID, domain.StatusCompleted, &reason, domain.ActorUser, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	events, err := engine.Events(context.Background(), created.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.NotNil(t, events[0].OldStatus)
	assert.Equal(t, domain.StatusInProgress, *events[0].OldStatus)
	assert.Equal(t, domain.StatusCompleted, events[0].NewStatus)
	assert.Equal(t, domain.ActorUser, events[0].ActorType)
}

func TestChangeStatusRejectsTerminalExit(t *testing.T) {
	store := newMemoryStore()
	engine := newEngine(store, nil, 2)

	created, _, err := engine.Upsert(context.Background(), baseInput())
	require.NoError(t, err)

	ok, err := engine.ChangeStatus(context.Background(), created.ID, domain.StatusCompleted, nil, domain.ActorUser, nil)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = engine.ChangeStatus(context.Background(), created.ID, domain.StatusRejected, nil, domain.ActorUser, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.False(t, ok)

	events, _ := engine.Events(context.Background(), created.ID)
	assert.Len(t, events, 1, "a rejected transition must not produce an event")
}

func TestChangeStatusRejectsInvalidEdge(t *testing.T) {
	store := newMemoryStore()
	engine := newEngine(store, nil, 2)

	created, _, err := engine.Upsert(context.Background(), baseInput())
	require.NoError(t, err)

	// IN_PROGRESS -> REVIEWED is not an edge in the graph
	ok, err := engine.ChangeStatus(context.Background(), created.ID, domain.StatusReviewed, nil, domain.ActorUser, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.False(t, ok)
}

func TestChangeStatusMissingTransaction(t *testing.T) {
	engine := newEngine(newMemoryStore(), nil, 2)

	ok, err := engine.ChangeStatus(context.Background(), "no-such-id", domain.StatusCompleted, nil, domain.ActorUser, nil)
	assert.NoError(t, err, "absence is a routine outcome, not a fault")
	assert.False(t, ok)
}

func TestForceStatusBypassesGraphButNotTerminals(t *testing.T) {
	store := newMemoryStore()
	engine := newEngine(store, nil, 2)

	created, _, err := engine.Upsert(context.Background(), baseInput())
	require.NoError(t, err)

	// Not a graph edge, but the override allows it and still records an event
	reason := "manual correction"
	ok, err := engine.ForceStatus(context.Background(), created.ID, domain.StatusReviewed, &reason, domain.ActorUser, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	events, _ := engine.Events(context.Background(), created.ID)
	require.Len(t, events, 1)
	assert.Equal(t, domain.StatusReviewed, events[0].NewStatus)

	// Even the override cannot leave a terminal state
	ok, err = engine.ChangeStatus(context.Background(), created.ID, domain.StatusCompleted, nil, domain.ActorUser, nil)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = engine.ForceStatus(context.Background(), created.ID, domain.StatusInProgress, &reason, domain.ActorUser, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.False(t, ok)
}

func TestDeleteExcludesFromReadsButKeepsEvents(t *testing.T) {
	store := newMemoryStore()
	engine := newEngine(store, nil, 2)

	created, _, err := engine.Upsert(context.Background(), baseInput())
	require.NoError(t, err)
	_, err = engine.ChangeStatus(context.Background(), created.ID, domain.StatusCompleted, nil, domain.ActorUser, nil)
	require.NoError(t, err)

	ok, err := engine.Delete(context.Background(), created.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := engine.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	items, total, err := engine.List(context.Background(), repository.ListFilters{}, 50, 0)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Zero(t, total)

	events, err := engine.Events(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1, "the audit trail outlives the record")

	// Deleting again is a no-op
	ok, err = engine.Delete(context.Background(), created.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListCapsLimit(t *testing.T) {
	store := newMemoryStore()
	engine := newEngine(store, nil, 2)

	_, _, err := engine.List(context.Background(), repository.ListFilters{}, 1000, 0)
	require.NoError(t, err)
	assert.Equal(t, MaxListLimit, store.lastLimit)

	_, _, err = engine.List(context.Background(), repository.ListFilters{}, 0, -5)
	require.NoError(t, err)
	assert.Equal(t, 50, store.lastLimit, "non-positive limit falls back to the default")
}

func TestRefreshFromBankUpdatesPayloadAndStatus(t *testing.T) {
	store := newMemoryStore()
	bank := &stubBank{payload: json.RawMessage(`{"status":"APPROVED","amount":"150.00"}`)}
	engine := newEngine(store, bank, 2)

	created, _, err := engine.Upsert(context.Background(), baseInput())
	require.NoError(t, err)

	refreshed, err := engine.RefreshFromBank(context.Background(), "TRX-1")
	require.NoError(t, err)
	assert.Equal(t, 1, bank.calls)
	assert.JSONEq(t, `{"status":"APPROVED","amount":"150.00"}`, string(refreshed.BanescoPayload))
	assert.Equal(t, domain.StatusCompleted, refreshed.Status, "provider approval settles the transaction")

	events, _ := engine.Events(context.Background(), created.ID)
	require.Len(t, events, 1)
	assert.Equal(t, domain.ActorSystem, events[0].ActorType)
}

func TestRefreshFromBankHonorsRateLimit(t *testing.T) {
	store := newMemoryStore()
	bank := &stubBank{payload: json.RawMessage(`{"status":"PENDING"}`)}
	engine := newEngine(store, bank, 2)

	_, _, err := engine.Upsert(context.Background(), baseInput())
	require.NoError(t, err)

	_, err = engine.RefreshFromBank(context.Background(), "TRX-1")
	require.NoError(t, err)
	_, err = engine.RefreshFromBank(context.Background(), "TRX-1")
	require.NoError(t, err)

	_, err = engine.RefreshFromBank(context.Background(), "TRX-1")
	assert.ErrorIs(t, err, ErrLimitExceeded)
	assert.Equal(t, 2, bank.calls, "the third call must be gated before reaching the provider")
}

func TestRefreshFromBankCountsFailedCalls(t *testing.T) {
	store := newMemoryStore()
	bank := &stubBank{err: errors.New("provider unavailable")}
	engine := newEngine(store, bank, 2)

	_, _, err := engine.Upsert(context.Background(), baseInput())
	require.NoError(t, err)

	// Failed calls still went out over the wire and must consume the window
	// allowance like successful ones
	for i := 0; i < 2; i++ {
		_, err = engine.RefreshFromBank(context.Background(), "TRX-1")
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrLimitExceeded)
	}

	_, err = engine.RefreshFromBank(context.Background(), "TRX-1")
	assert.ErrorIs(t, err, ErrLimitExceeded)
	assert.Equal(t, 2, bank.calls, "an erroring provider must not be hammered without bound")
}

func TestRefreshFromBankMissingTransaction(t *testing.T) {
	engine := newEngine(newMemoryStore(), &stubBank{}, 2)

	_, err := engine.RefreshFromBank(context.Background(), "TRX-unknown")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
