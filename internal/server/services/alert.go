package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/privylock/internal/common"
	"github.com/dmitrijs2005/privylock/internal/logging"
	"github.com/dmitrijs2005/privylock/internal/server/metrics"
	"github.com/dmitrijs2005/privylock/internal/server/models"
	"github.com/dmitrijs2005/privylock/internal/server/repositories/preferences"
	"github.com/dmitrijs2005/privylock/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// Storage alert dedup windows.
const (
	storageCriticalWindow = 24 * time.Hour
	storageWarningWindow  = 7 * 24 * time.Hour
)

// AlertService creates notifications in reaction to domain events. Callers
// invoke it explicitly after the triggering write has been committed.
type AlertService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	resolver    ExpiryDateResolver
	logger      logging.Logger
	now         func() time.Time
}

func NewAlertService(db *sql.DB, m repomanager.RepositoryManager, resolver ExpiryDateResolver, logger logging.Logger) *AlertService {
	return &AlertService{
		db:          db,
		repomanager: m,
		resolver:    resolver,
		logger:      logger,
		now:         time.Now,
	}
}

// loadPreferences returns the user's preferences, creating the default row
// on first access.
func loadPreferences(ctx context.Context, repo preferences.Repository, userID string) (*models.NotificationPreference, error) {
	p, err := repo.Get(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}
	return repo.Create(ctx, models.DefaultPreferences(userID))
}

func (s *AlertService) create(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	n.ID = uuid.NewString()
	created, err := s.repomanager.Notifications(s.db).Create(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("create %s notification: %w", n.Type, err)
	}
	metrics.NotificationsCreated.WithLabelValues(string(n.Type)).Inc()
	s.logger.Info(ctx, "notification created",
		"notification_id", created.ID, "user_id", created.UserID, "type", created.Type)
	return created, nil
}

// CheckDocumentExpiry evaluates one document against the alert offsets and
// creates at most one notification. It reports whether one was created.
func (s *AlertService) CheckDocumentExpiry(ctx context.Context, d *models.Document) (bool, error) {
	if !d.HasExpiry || d.EncryptedExpiryDate == "" {
		return false, nil
	}

	prefs, err := loadPreferences(ctx, s.repomanager.Preferences(s.db), d.UserID)
	if err != nil {
		return false, fmt.Errorf("load preferences: %w", err)
	}
	if !prefs.InAppEnabled {
		return false, nil
	}

	date, err := s.resolver.Resolve(ctx, d)
	if err != nil {
		return false, err
	}

	now := s.now()
	days := daysUntil(date, now)
	repo := s.repomanager.Notifications(s.db)

	var t models.NotificationType
	switch {
	case days < 0:
		exists, err := repo.ExistsUnreadForDocument(ctx, d.ID, models.NotificationDocumentExpired)
		if err != nil || exists {
			return false, err
		}
		t = models.NotificationDocumentExpired
	case prefs.ExpiryOffsetEnabled(days):
		exists, err := repo.ExistsForDocumentSince(ctx, d.ID, models.NotificationDocumentExpiry, startOfDay(now))
		if err != nil || exists {
			return false, err
		}
		t = models.NotificationDocumentExpiry
	default:
		return false, nil
	}

	if _, err := s.create(ctx, expiryNotification(d, t, days)); err != nil {
		return false, err
	}
	return true, nil
}

func expiryNotification(d *models.Document, t models.NotificationType, days int) *models.Notification {
	var title, body string
	switch {
	case days > 0:
		title = "Document Expiring Soon"
		body = fmt.Sprintf("Your document will expire in %d days.", days)
	case days == 0:
		title = "Document Expires Today"
		body = "Your document expires today. Please renew if needed."
	default:
		title = "Document Expired"
		body = fmt.Sprintf("Your document expired %d days ago.", -days)
	}

	priority := models.PriorityLow
	switch {
	case days <= 1:
		priority = models.PriorityHigh
	case days <= 7:
		priority = models.PriorityMedium
	}

	docID := d.ID
	return &models.Notification{
		UserID:         d.UserID,
		Type:           t,
		Priority:       priority,
		EncryptedTitle: []byte(title),
		EncryptedBody:  []byte(body),
		DocumentID:     &docID,
		ActionURL:      "/documents/" + d.ID,
	}
}

// CheckStorage raises a STORAGE_CRITICAL or STORAGE_WARNING notification
// when usage crosses the user's thresholds, once per window.
func (s *AlertService) CheckStorage(ctx context.Context, u *models.User) (bool, error) {
	prefs, err := loadPreferences(ctx, s.repomanager.Preferences(s.db), u.ID)
	if err != nil {
		return false, fmt.Errorf("load preferences: %w", err)
	}
	if !prefs.InAppEnabled {
		return false, nil
	}

	pct := u.StoragePercent()

	var (
		t        models.NotificationType
		window   time.Duration
		priority models.Priority
	)
	switch {
	case pct >= float64(prefs.StorageCriticalThreshold):
		t, window, priority = models.NotificationStorageCritical, storageCriticalWindow, models.PriorityHigh
	case pct >= float64(prefs.StorageWarningThreshold):
		t, window, priority = models.NotificationStorageWarning, storageWarningWindow, models.PriorityMedium
	default:
		return false, nil
	}

	exists, err := s.repomanager.Notifications(s.db).ExistsUnreadSince(ctx, u.ID, t, s.now().Add(-window))
	if err != nil || exists {
		return false, err
	}

	_, err = s.create(ctx, &models.Notification{
		UserID:         u.ID,
		Type:           t,
		Priority:       priority,
		EncryptedTitle: []byte("Storage Warning"),
		EncryptedBody: []byte(fmt.Sprintf(
			"Your storage is %d%% full. Consider deleting old documents or upgrading your plan.", int(pct))),
		ActionURL: "/settings/storage",
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateSecurityAlert records a login from a device the account has not
// used before. Nothing is created when every security channel is off.
func (s *AlertService) CreateSecurityAlert(ctx context.Context, userID string, d *models.Device) (bool, error) {
	prefs, err := loadPreferences(ctx, s.repomanager.Preferences(s.db), userID)
	if err != nil {
		return false, fmt.Errorf("load preferences: %w", err)
	}
	if !prefs.InAppEnabled || (!prefs.PushSecurityAlerts && !prefs.EmailSecurityAlerts) {
		return false, nil
	}

	deviceID := d.ID
	_, err = s.create(ctx, &models.Notification{
		UserID:         userID,
		Type:           models.NotificationNewDeviceLogin,
		Priority:       models.PriorityHigh,
		EncryptedTitle: []byte("Security Alert"),
		EncryptedBody:  []byte(fmt.Sprintf("New device login: %s\n\nDevice: %s", d.DeviceName, d.DeviceName)),
		DeviceID:       &deviceID,
		ActionURL:      "/settings/devices",
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// InvalidateExpiryAlerts drops unread expiry notifications of a document
// whose expiry changed, so the next scan starts fresh.
func (s *AlertService) InvalidateExpiryAlerts(ctx context.Context, documentID string) (int64, error) {
	n, err := s.repomanager.Notifications(s.db).DeleteUnreadExpiryAlerts(ctx, documentID)
	if err != nil {
		return 0, fmt.Errorf("invalidate expiry alerts: %w", err)
	}
	if n > 0 {
		s.logger.Info(ctx, "expiry alerts invalidated", "document_id", documentID, "count", n)
	}
	return n, nil
}
