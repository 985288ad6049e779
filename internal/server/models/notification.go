package models

import "time"

type NotificationType string

const (
	NotificationDocumentExpiry  NotificationType = "DOCUMENT_EXPIRY"
	NotificationDocumentExpired NotificationType = "DOCUMENT_EXPIRED"
	NotificationStorageWarning  NotificationType = "STORAGE_WARNING"
	NotificationStorageCritical NotificationType = "STORAGE_CRITICAL"
	NotificationSecurityAlert   NotificationType = "SECURITY_ALERT"
	NotificationNewDeviceLogin  NotificationType = "NEW_DEVICE_LOGIN"
	NotificationSystem          NotificationType = "SYSTEM"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationDocumentExpiry, NotificationDocumentExpired,
		NotificationStorageWarning, NotificationStorageCritical,
		NotificationSecurityAlert, NotificationNewDeviceLogin, NotificationSystem:
		return true
	}
	return false
}

// IsExpiryAlert covers both expiry types.
func (t NotificationType) IsExpiryAlert() bool {
	return t == NotificationDocumentExpiry || t == NotificationDocumentExpired
}

func (t NotificationType) IsStorageAlert() bool {
	return t == NotificationStorageWarning || t == NotificationStorageCritical
}

func (t NotificationType) IsSecurityAlert() bool {
	return t == NotificationSecurityAlert || t == NotificationNewDeviceLogin
}

type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Notification is an in-app alert. Title and body are opaque bytes.
// ReadAt is set iff IsRead.
type Notification struct {
	ID             string
	UserID         string
	Type           NotificationType
	Priority       Priority
	EncryptedTitle []byte
	EncryptedBody  []byte
	DocumentID     *string
	DeviceID       *string
	IsRead         bool
	ReadAt         *time.Time
	EmailSent      bool
	EmailSentAt    *time.Time
	PushSent       bool
	PushSentAt     *time.Time
	ActionURL      string
	ExpiresAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time

	// Joined for display; nil when the reference is unset.
	DocumentTitle *string
	DeviceName    *string
}

func (n *Notification) IsExpired(now time.Time) bool {
	return n.ExpiresAt != nil && n.ExpiresAt.Before(now)
}
