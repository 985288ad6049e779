// Package notify delivers notifications over external channels. A
// Transport reports success only when the channel accepted the message;
// callers persist the sent flag after a nil error and retry otherwise.
package notify

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/privylock/internal/server/models"
)

var ErrNotConfigured = errors.New("transport not configured")

// Transport sends one notification to one user.
type Transport interface {
	Name() string
	Send(ctx context.Context, n *models.Notification, u *models.User) error
}
