// Package users declares the repository contract for user accounts and its
// PostgreSQL implementation.
package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/privylock/internal/server/models"
)

// Lookup fields accepted by Exists.
const (
	FieldUsername = "username"
	FieldEmail    = "email"
	FieldMobile   = "mobile_number"
)

type Repository interface {
	// Create inserts u and fills CreatedAt. Unique violations are reported
	// as common.ErrorAlreadyExists.
	Create(ctx context.Context, u *models.User) (*models.User, error)

	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByGoogleID(ctx context.Context, googleID string) (*models.User, error)
	GetByVerificationSelector(ctx context.Context, selector string) (*models.User, error)

	// Exists reports whether a user with the given unique field value exists.
	Exists(ctx context.Context, field, value string) (bool, error)

	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	SetVerificationToken(ctx context.Context, id, selector, hash string) error
	MarkEmailVerified(ctx context.Context, id string) error
	LinkGoogleID(ctx context.Context, id, googleID string) error

	// AdjustStorage adds delta to storage_used (never below zero) and returns
	// the new value.
	AdjustStorage(ctx context.Context, id string, delta int64) (int64, error)

	// ListWithStorage returns users with a non-zero storage counter.
	ListWithStorage(ctx context.Context) ([]*models.User, error)
}
