package domain

import "time"

// Permission names
const (
	PermissionTransactionCreate = "transaction:create"
	PermissionTransactionRead   = "transaction:read"
	PermissionTransactionUpdate = "transaction:update"
	PermissionTransactionDelete = "transaction:delete"
	PermissionAdminAccess       = "admin:access"
)

// AllPermissions lists every permission seeded at migration time
var AllPermissions = []string{
	PermissionTransactionCreate,
	PermissionTransactionRead,
	PermissionTransactionUpdate,
	PermissionTransactionDelete,
	PermissionAdminAccess,
}

// User Model
type User struct {
	ID           string       `gorm:"type:char(36);primaryKey" json:"id"`              // Internal identifier
	Email        string       `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"` // Unique login email
	PasswordHash string       `gorm:"type:varchar(255);not null" json:"-"`             // Bcrypt hash, never serialized
	FullName     string       `gorm:"type:varchar(255);not null" json:"full_name"`     // Display name
	IsActive     bool         `gorm:"not null;default:true" json:"is_active"`          // Inactive users cannot log in
	Permissions  []Permission `gorm:"many2many:user_permissions" json:"permissions"`   // Granted permissions
	CreatedAt    time.Time    `gorm:"autoCreateTime" json:"created_at"`                // Creation timestamp
	UpdatedAt    time.Time    `gorm:"autoUpdateTime" json:"updated_at"`                // Last update timestamp
	DeletedAt    *time.Time   `gorm:"index" json:"deleted_at,omitempty"`               // Tombstone; nil = alive
}

// TableName sets the table name for GORM
func (User) TableName() string {
	return "users"
}

// HasPermission reports whether the user holds the named permission
func (u *User) HasPermission(name string) bool {
	for _, p := range u.Permissions {
		if p.Name == name {
			return true
		}
	}
	return false
}

// PermissionNames returns the names of all granted permissions
func (u *User) PermissionNames() []string {
	names := make([]string, 0, len(u.Permissions))
	for _, p := range u.Permissions {
		names = append(names, p.Name)
	}
	return names
}

// IsDeleted reports whether the user carries a tombstone
func (u *User) IsDeleted() bool {
	return u.DeletedAt != nil
}

// Permission Model
type Permission struct {
	ID          string    `gorm:"type:char(36);primaryKey" json:"id"`                 // Internal identifier
	Name        string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"` // Permission name, e.g. transaction:create
	Description *string   `gorm:"type:varchar(255)" json:"description,omitempty"`     // Human-readable description
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`                   // Creation timestamp
}

// TableName sets the table name for GORM
func (Permission) TableName() string {
	return "permissions"
}
