// Package devices stores the client installations registered per user.
package devices

import (
	"context"
	"time"

	"github.com/dmitrijs2005/privylock/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, d *models.Device) (*models.Device, error)
	// GetByDeviceID finds a device by the client-supplied identifier.
	GetByDeviceID(ctx context.Context, userID, deviceID string) (*models.Device, error)
	GetByID(ctx context.Context, userID, id string) (*models.Device, error)
	// ListByUser returns devices ordered by last activity, newest first.
	ListByUser(ctx context.Context, userID string) ([]*models.Device, error)
	CountByUser(ctx context.Context, userID string) (int64, error)
	Touch(ctx context.Context, id string, at time.Time) error
	// Delete removes a device owned by userID, or returns common.ErrorNotFound.
	Delete(ctx context.Context, userID, id string) error
}
