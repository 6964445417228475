package service

import (
	"context"
	"errors"
	"time"

	"transaction_system/internal/domain"
	"transaction_system/internal/utils"

	"github.com/sirupsen/logrus" // Logging library
	"golang.org/x/crypto/bcrypt" // Password hashing
)

// ErrInvalidCredentials is returned for a bad email/password pair. It is
// deliberately the same for both cases so login does not leak which one.
var ErrInvalidCredentials = errors.New("invalid credentials")

// UserStore is the persistence contract for principals
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) (*domain.User, error)
}

// AuthService handles password hashing and JWT issuance
type AuthService struct {
	store     UserStore
	jwtSecret string
	tokenTTL  time.Duration
}

// NewAuthService builds an auth service with the given token lifetime
func NewAuthService(store UserStore, jwtSecret string, tokenTTL time.Duration) *AuthService {
	if tokenTTL <= 0 {
		tokenTTL = 30 * time.Minute
	}
	return &AuthService{store: store, jwtSecret: jwtSecret, tokenTTL: tokenTTL}
}

// Register creates a new user with a bcrypt-hashed password. A duplicate
// email surfaces as domain.ErrConflict.
func (s *AuthService) Register(ctx context.Context, email, password, fullName string) (*domain.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := &domain.User{
		ID:           utils.NewID(),
		Email:        email,
		PasswordHash: string(hash),
		FullName:     fullName,
		IsActive:     true,
	}
	created, err := s.store.Create(ctx, user)
	if err != nil {
		return nil, err
	}
	logrus.WithField("user_id", created.ID).Info("User registered")
	return created, nil
}

// Login verifies the credentials and returns a signed JWT
func (s *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if user == nil || !user.IsActive {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return utils.GenerateJWT(user, s.jwtSecret, s.tokenTTL)
}
