package domain

import (
	"encoding/json"
	"time"
)

// TransactionStatus is the lifecycle state of a transaction
type TransactionStatus string

// Transaction statuses
const (
	StatusInProgress      TransactionStatus = "IN_PROGRESS"      // Initial status on first sighting
	StatusWaitingApproval TransactionStatus = "WAITING_APPROVAL" // Waiting for an approver
	StatusApproved        TransactionStatus = "APPROVED"         // Approved, not yet settled
	StatusCompleted       TransactionStatus = "COMPLETED"        // Terminal: settled
	StatusRejected        TransactionStatus = "REJECTED"         // Terminal: refused
	StatusCancelled       TransactionStatus = "CANCELLED"        // Terminal: withdrawn
	StatusToReview        TransactionStatus = "TO_REVIEW"        // Flagged for manual review
	StatusReviewed        TransactionStatus = "REVIEWED"         // Review finished, pending outcome
)

// IsTerminal reports whether no further transitions are allowed from s
func (s TransactionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusRejected || s == StatusCancelled
}

// IsValidStatus reports whether s is one of the known statuses
func IsValidStatus(s TransactionStatus) bool {
	switch s {
	case StatusInProgress, StatusWaitingApproval, StatusApproved, StatusCompleted,
		StatusRejected, StatusCancelled, StatusToReview, StatusReviewed:
		return true
	}
	return false
}

// ValidStatusTransitions lists the allowed outgoing edges per status.
// Terminal statuses have no entry: nothing leaves them.
var ValidStatusTransitions = map[TransactionStatus][]TransactionStatus{
	StatusInProgress:      {StatusWaitingApproval, StatusApproved, StatusCompleted, StatusRejected, StatusCancelled, StatusToReview},
	StatusWaitingApproval: {StatusApproved, StatusRejected, StatusCancelled, StatusToReview},
	StatusApproved:        {StatusCompleted, StatusCancelled, StatusToReview},
	StatusToReview:        {StatusReviewed, StatusRejected, StatusCancelled},
	StatusReviewed:        {StatusApproved, StatusCompleted, StatusRejected, StatusCancelled},
}

// CanTransition reports whether the status graph allows moving from one status to another
func CanTransition(from, to TransactionStatus) bool {
	allowed, exists := ValidStatusTransitions[from]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// BankType is the channel a transaction arrived through
type BankType string

// Bank types
const (
	BankBanesco        BankType = "BANESCO"         // Banesco direct
	BankMobileTransfer BankType = "MOBILE_TRANSFER" // Pago movil channel
)

// IsValidBank reports whether b is one of the known banks
func IsValidBank(b BankType) bool {
	return b == BankBanesco || b == BankMobileTransfer
}

// TransactionType is the kind of financial movement
type TransactionType string

// Transaction types
const (
	TypeTransaction TransactionType = "TRANSACTION" // Primary transaction
	TypeCommission  TransactionType = "COMMISSION"  // Commission charge
	TypeOther       TransactionType = "OTHER"       // Anything else
)

// IsValidTransactionType reports whether t is one of the known kinds
func IsValidTransactionType(t TransactionType) bool {
	return t == TypeTransaction || t == TypeCommission || t == TypeOther
}

// Transaction Model
type Transaction struct {
	ID                 string            `gorm:"type:char(36);primaryKey" json:"id"`                                                       // Internal identifier
	TransactionID      string            `gorm:"type:varchar(100);uniqueIndex;not null" json:"transaction_id"`                            // External transaction identifier (idempotency key)
	Status             TransactionStatus `gorm:"type:varchar(20);not null;default:IN_PROGRESS" json:"status"`                             // Lifecycle status
	Bank               BankType          `gorm:"type:varchar(20);not null" json:"bank"`                                                   // Originating channel
	TransactionType    TransactionType   `gorm:"type:varchar(20);not null;uniqueIndex:unique_reference_per_type" json:"transaction_type"` // Transaction kind
	Reference          string            `gorm:"type:varchar(20);not null;uniqueIndex:unique_reference_per_type" json:"reference"`        // Provider-facing reference, unique per kind
	CustomerFullName   string            `gorm:"type:varchar(255);not null" json:"customer_full_name"`                                    // Customer name
	CustomerPhone      string            `gorm:"type:varchar(11);not null" json:"customer_phone"`                                         // Customer phone
	CustomerNationalID string            `gorm:"type:varchar(10);not null" json:"customer_national_id"`                                   // Customer national id
	Concept            *string           `gorm:"type:text" json:"concept,omitempty"`                                                      // Free-form concept text
	BanescoPayload     json.RawMessage   `gorm:"type:json" json:"banesco_payload,omitempty"`                                              // Raw payload captured from the provider
	ExtraData          json.RawMessage   `gorm:"type:json" json:"extra_data,omitempty"`                                                   // Open extension map
	CreatedBy          *string           `gorm:"type:char(36);index" json:"created_by,omitempty"`                                         // Acting principal, if any
	CreatedAt          time.Time         `gorm:"autoCreateTime;index" json:"created_at"`                                                  // Creation timestamp
	UpdatedAt          time.Time         `gorm:"autoUpdateTime" json:"updated_at"`                                                        // Last update timestamp
	DeletedAt          *time.Time        `gorm:"index" json:"deleted_at,omitempty"`                                                       // Tombstone; nil = alive
}

// TableName sets the table name for GORM
func (Transaction) TableName() string {
	return "transactions"
}

// IsDeleted reports whether the transaction carries a tombstone
func (t *Transaction) IsDeleted() bool {
	return t.DeletedAt != nil
}

// IsCompleted reports whether the transaction settled
func (t *Transaction) IsCompleted() bool {
	return t.Status == StatusCompleted
}

// IsInProgress reports whether the transaction is still in its initial state
func (t *Transaction) IsInProgress() bool {
	return t.Status == StatusInProgress
}
