package repository

import (
	"context"
	"errors"

	"transaction_system/internal/domain"

	"gorm.io/gorm"
)

// UserRepository persists principals and their permission grants
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository builds a repository over the given DB handle
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByEmail fetches a live user with permissions preloaded; nil on miss
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).
		Preload("Permissions").
		Where("email = ? AND deleted_at IS NULL", email).
		First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// GetByID fetches a live user with permissions preloaded; nil on miss
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).
		Preload("Permissions").
		Where("id = ? AND deleted_at IS NULL", id).
		First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// Create inserts a new user; duplicate email surfaces as domain.ErrConflict
func (r *UserRepository) Create(ctx context.Context, u *domain.User) (*domain.User, error) {
	if err := r.db.WithContext(ctx).Create(u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, domain.ErrConflict
		}
		return nil, err
	}
	return u, nil
}
