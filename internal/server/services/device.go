package services

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/privylock/internal/common"
	"github.com/dmitrijs2005/privylock/internal/server/models"
	"github.com/dmitrijs2005/privylock/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// DeviceService lists and removes the caller's devices. Removing a device
// does not revoke tokens already issued to it.
type DeviceService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewDeviceService(db *sql.DB, m repomanager.RepositoryManager) *DeviceService {
	return &DeviceService{db: db, repomanager: m}
}

func (s *DeviceService) List(ctx context.Context, userID string) ([]*models.Device, error) {
	return s.repomanager.Devices(s.db).ListByUser(ctx, userID)
}

func (s *DeviceService) Delete(ctx context.Context, userID, id string) error {
	if !validID(id) {
		return common.ErrorNotFound
	}
	return s.repomanager.Devices(s.db).Delete(ctx, userID, id)
}

// validID reports whether id is a UUID. Malformed ids would make
// PostgreSQL reject the query, so they are treated as missing rows.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
