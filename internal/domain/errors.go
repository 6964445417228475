package domain

import "errors"

// Storage error taxonomy. Repositories translate driver errors into these
// sentinels so callers never match on gorm or MySQL error shapes.
var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
)
