package domain

import (
	"encoding/json"
	"time"
)

// ActorType identifies who drove a status transition
type ActorType string

// Actor types
const (
	ActorUser     ActorType = "USER"     // A human principal
	ActorSystem   ActorType = "SYSTEM"   // This service itself
	ActorExternal ActorType = "EXTERNAL" // The upstream provider
)

// TransactionEvent is the immutable audit record of one status transition.
// Events are append-only: never updated, never deleted, one per transition.
type TransactionEvent struct {
	ID            string             `gorm:"type:char(36);primaryKey" json:"id"`                          // Event identifier
	TransactionID string             `gorm:"type:char(36);index;not null" json:"transaction_id"`          // Owning transaction (internal id)
	OldStatus     *TransactionStatus `gorm:"type:varchar(20)" json:"old_status,omitempty"`                // Prior status; nil for the initial transition
	NewStatus     TransactionStatus  `gorm:"type:varchar(20);not null" json:"new_status"`                 // Resulting status
	Reason        *string            `gorm:"type:text" json:"reason,omitempty"`                           // Free-text reason
	ActorType     ActorType          `gorm:"type:varchar(20);not null;default:USER" json:"actor_type"`    // Who drove the transition
	ActorID       *string            `gorm:"type:char(36)" json:"actor_id,omitempty"`                     // Acting principal, if any
	Metadata      json.RawMessage    `gorm:"type:json" json:"metadata,omitempty"`                         // Open metadata map
	CreatedAt     time.Time          `gorm:"autoCreateTime;index" json:"created_at"`                      // Event timestamp
}

// TableName sets the table name for GORM
func (TransactionEvent) TableName() string {
	return "transaction_events"
}
