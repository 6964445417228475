package domain

import "time"

// ResourceTransactionID is the only resource kind with an enforced ceiling;
// every other kind passes the limiter unconditionally.
const ResourceTransactionID = "TRANSACTION_ID"

// RateLimitWindow counts requests against a downstream resource within one
// minute-aligned bucket. At most one row exists per
// (resource_type, resource_identifier, window_start).
type RateLimitWindow struct {
	ID                 string    `gorm:"type:char(36);primaryKey" json:"id"`                                                       // Window identifier
	ResourceType       string    `gorm:"type:varchar(50);not null;uniqueIndex:unique_resource_window" json:"resource_type"`        // Resource kind tag
	ResourceIdentifier string    `gorm:"type:varchar(255);not null;uniqueIndex:unique_resource_window" json:"resource_identifier"` // Resource identifier
	WindowStart        string    `gorm:"type:varchar(40);not null;uniqueIndex:unique_resource_window" json:"window_start"`         // Minute-aligned window start, RFC 3339
	RequestCount       int       `gorm:"not null;default:1" json:"request_count"`                                                  // Requests counted in the window
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`                                                         // Creation timestamp
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`                                                         // Last increment timestamp
}

// TableName sets the table name for GORM
func (RateLimitWindow) TableName() string {
	return "rate_limits"
}
