// Package notifications persists in-app alerts and their delivery flags.
package notifications

import (
	"context"
	"time"

	"github.com/dmitrijs2005/privylock/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, n *models.Notification) (*models.Notification, error)
	GetByID(ctx context.Context, userID, id string) (*models.Notification, error)
	// List returns the user's unexpired notifications matching q, newest first.
	List(ctx context.Context, userID string, q models.NotificationQuery, now time.Time) ([]*models.Notification, error)
	// SetRead flips the read state; read_at is kept when already read.
	SetRead(ctx context.Context, userID, id string, read bool, at time.Time) error
	Delete(ctx context.Context, userID, id string) error

	// OwnedIDs returns the subset of ids that name notifications of userID.
	OwnedIDs(ctx context.Context, userID string, ids []string) ([]string, error)
	// MarkRead marks the unread notifications among ids and returns how many changed.
	MarkRead(ctx context.Context, userID string, ids []string, at time.Time) (int64, error)
	MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error)
	DeleteAllRead(ctx context.Context, userID string) (int64, error)
	UnreadCount(ctx context.Context, userID string, now time.Time) (int64, error)

	// ExistsForDocumentSince reports any notification of type t for the
	// document created at or after since, read or not.
	ExistsForDocumentSince(ctx context.Context, documentID string, t models.NotificationType, since time.Time) (bool, error)
	// ExistsUnreadForDocument reports an unread notification of type t for the document.
	ExistsUnreadForDocument(ctx context.Context, documentID string, t models.NotificationType) (bool, error)
	// ExistsUnreadSince reports an unread notification of type t for the
	// user created at or after since.
	ExistsUnreadSince(ctx context.Context, userID string, t models.NotificationType, since time.Time) (bool, error)
	// DeleteUnreadExpiryAlerts removes unread expiry notifications of a document.
	DeleteUnreadExpiryAlerts(ctx context.Context, documentID string) (int64, error)

	// ListPendingEmail returns unexpired notifications created since `since`
	// whose e-mail has not been sent, oldest first.
	ListPendingEmail(ctx context.Context, since, now time.Time, limit int) ([]*models.Notification, error)
	ListPendingPush(ctx context.Context, since, now time.Time, limit int) ([]*models.Notification, error)
	MarkEmailSent(ctx context.Context, id string, at time.Time) error
	MarkPushSent(ctx context.Context, id string, at time.Time) error

	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	// DeleteReadBefore removes read notifications with read_at before cutoff.
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
