// Package refreshtokens stores the opaque refresh tokens handed out at login.
// A token is single use: redeeming it deletes the row.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/privylock/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, userID, token string, expiresAt time.Time) error

	// Consume deletes the token and returns the deleted row, so that two
	// concurrent redemptions cannot both succeed. Unknown tokens yield
	// common.ErrorNotFound.
	Consume(ctx context.Context, token string) (*models.RefreshToken, error)

	// DeleteExpired purges tokens that expired before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
