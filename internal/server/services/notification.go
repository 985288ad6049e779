package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/privylock/internal/common"
	"github.com/dmitrijs2005/privylock/internal/logging"
	"github.com/dmitrijs2005/privylock/internal/server/models"
	"github.com/dmitrijs2005/privylock/internal/server/repositories/repomanager"
)

// PreferenceInput is a partial preference update; nil fields are kept.
type PreferenceInput struct {
	InAppEnabled             *bool
	EmailEnabled             *bool
	EmailExpiryAlerts        *bool
	EmailStorageAlerts       *bool
	EmailSecurityAlerts      *bool
	PushEnabled              *bool
	PushExpiryAlerts         *bool
	PushStorageAlerts        *bool
	PushSecurityAlerts       *bool
	Alert30Days              *bool
	Alert15Days              *bool
	Alert7Days               *bool
	Alert1Day                *bool
	AlertOnExpiry            *bool
	StorageWarningThreshold  *int
	StorageCriticalThreshold *int
}

func (in *PreferenceInput) apply(p *models.NotificationPreference) {
	flags := []struct {
		dst *bool
		src *bool
	}{
		{&p.InAppEnabled, in.InAppEnabled},
		{&p.EmailEnabled, in.EmailEnabled},
		{&p.EmailExpiryAlerts, in.EmailExpiryAlerts},
		{&p.EmailStorageAlerts, in.EmailStorageAlerts},
		{&p.EmailSecurityAlerts, in.EmailSecurityAlerts},
		{&p.PushEnabled, in.PushEnabled},
		{&p.PushExpiryAlerts, in.PushExpiryAlerts},
		{&p.PushStorageAlerts, in.PushStorageAlerts},
		{&p.PushSecurityAlerts, in.PushSecurityAlerts},
		{&p.Alert30Days, in.Alert30Days},
		{&p.Alert15Days, in.Alert15Days},
		{&p.Alert7Days, in.Alert7Days},
		{&p.Alert1Day, in.Alert1Day},
		{&p.AlertOnExpiry, in.AlertOnExpiry},
	}
	for _, f := range flags {
		if f.src != nil {
			*f.dst = *f.src
		}
	}
	if in.StorageWarningThreshold != nil {
		p.StorageWarningThreshold = *in.StorageWarningThreshold
	}
	if in.StorageCriticalThreshold != nil {
		p.StorageCriticalThreshold = *in.StorageCriticalThreshold
	}
}

// NotificationService is the caller-facing side of notifications: listing,
// read state, bulk actions and preferences.
type NotificationService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
	now         func() time.Time
}

func NewNotificationService(db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger) *NotificationService {
	return &NotificationService{db: db, repomanager: m, logger: logger, now: time.Now}
}

func (s *NotificationService) List(ctx context.Context, userID string, q models.NotificationQuery) ([]*models.Notification, error) {
	return s.repomanager.Notifications(s.db).List(ctx, userID, q, s.now())
}

// Get returns an unexpired notification of the caller.
func (s *NotificationService) Get(ctx context.Context, userID, id string) (*models.Notification, error) {
	if !validID(id) {
		return nil, common.ErrorNotFound
	}
	n, err := s.repomanager.Notifications(s.db).GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if n.IsExpired(s.now()) {
		return nil, common.ErrorNotFound
	}
	return n, nil
}

// SetRead marks the notification read or unread and returns it.
func (s *NotificationService) SetRead(ctx context.Context, userID, id string, read bool) (*models.Notification, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	repo := s.repomanager.Notifications(s.db)
	if err := repo.SetRead(ctx, userID, id, read, s.now()); err != nil {
		return nil, err
	}
	return repo.GetByID(ctx, userID, id)
}

func (s *NotificationService) Delete(ctx context.Context, userID, id string) error {
	if !validID(id) {
		return common.ErrorNotFound
	}
	return s.repomanager.Notifications(s.db).Delete(ctx, userID, id)
}

// MarkRead marks the listed notifications read. Every id must belong to
// the caller; otherwise nothing changes and a validation error names the
// offending ids.
func (s *NotificationService) MarkRead(ctx context.Context, userID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, common.NewValidationError("notification_ids", "This list may not be empty.")
	}

	seen := make(map[string]bool, len(ids))
	unique := make([]string, 0, len(ids))
	var invalid []string
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if validID(id) {
			unique = append(unique, id)
		} else {
			invalid = append(invalid, id)
		}
	}

	repo := s.repomanager.Notifications(s.db)
	owned, err := repo.OwnedIDs(ctx, userID, unique)
	if err != nil {
		return 0, err
	}
	ownedSet := make(map[string]bool, len(owned))
	for _, id := range owned {
		ownedSet[strings.ToLower(id)] = true
	}
	for _, id := range unique {
		if !ownedSet[strings.ToLower(id)] {
			invalid = append(invalid, id)
		}
	}
	if len(invalid) > 0 {
		sort.Strings(invalid)
		return 0, common.NewValidationError("notification_ids",
			fmt.Sprintf("Invalid notification IDs: %s", strings.Join(invalid, ", ")))
	}

	return repo.MarkRead(ctx, userID, unique, s.now())
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.repomanager.Notifications(s.db).MarkAllRead(ctx, userID, s.now())
}

func (s *NotificationService) DeleteAllRead(ctx context.Context, userID string) (int64, error) {
	return s.repomanager.Notifications(s.db).DeleteAllRead(ctx, userID)
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return s.repomanager.Notifications(s.db).UnreadCount(ctx, userID, s.now())
}

// Preferences returns the caller's preferences, creating defaults first.
func (s *NotificationService) Preferences(ctx context.Context, userID string) (*models.NotificationPreference, error) {
	return loadPreferences(ctx, s.repomanager.Preferences(s.db), userID)
}

// UpdatePreferences applies a partial update after validating thresholds.
func (s *NotificationService) UpdatePreferences(ctx context.Context, userID string, in PreferenceInput) (*models.NotificationPreference, error) {
	repo := s.repomanager.Preferences(s.db)
	p, err := loadPreferences(ctx, repo, userID)
	if err != nil {
		return nil, err
	}
	in.apply(p)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return repo.Update(ctx, p)
}
