package models

import (
	"time"

	"github.com/dmitrijs2005/privylock/internal/common"
)

const (
	DefaultStorageWarningThreshold  = 80
	DefaultStorageCriticalThreshold = 95
	minStorageThreshold             = 50
	maxStorageThreshold             = 100
)

// NotificationPreference holds per-user channel and alert switches.
type NotificationPreference struct {
	UserID string

	InAppEnabled bool

	EmailEnabled        bool
	EmailExpiryAlerts   bool
	EmailStorageAlerts  bool
	EmailSecurityAlerts bool

	PushEnabled        bool
	PushExpiryAlerts   bool
	PushStorageAlerts  bool
	PushSecurityAlerts bool

	Alert30Days   bool
	Alert15Days   bool
	Alert7Days    bool
	Alert1Day     bool
	AlertOnExpiry bool

	StorageWarningThreshold  int
	StorageCriticalThreshold int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DefaultPreferences enables everything with 80/95 storage thresholds.
func DefaultPreferences(userID string) *NotificationPreference {
	return &NotificationPreference{
		UserID:                   userID,
		InAppEnabled:             true,
		EmailEnabled:             true,
		EmailExpiryAlerts:        true,
		EmailStorageAlerts:       true,
		EmailSecurityAlerts:      true,
		PushEnabled:              true,
		PushExpiryAlerts:         true,
		PushStorageAlerts:        true,
		PushSecurityAlerts:       true,
		Alert30Days:              true,
		Alert15Days:              true,
		Alert7Days:               true,
		Alert1Day:                true,
		AlertOnExpiry:            true,
		StorageWarningThreshold:  DefaultStorageWarningThreshold,
		StorageCriticalThreshold: DefaultStorageCriticalThreshold,
	}
}

// Validate enforces both thresholds in [50,100] and critical > warning.
func (p *NotificationPreference) Validate() error {
	v := &common.ValidationError{}
	if p.StorageWarningThreshold < minStorageThreshold || p.StorageWarningThreshold > maxStorageThreshold {
		v.Add("storage_warning_threshold", "Ensure this value is between 50 and 100.")
	}
	if p.StorageCriticalThreshold < minStorageThreshold || p.StorageCriticalThreshold > maxStorageThreshold {
		v.Add("storage_critical_threshold", "Ensure this value is between 50 and 100.")
	}
	if v.Empty() && p.StorageCriticalThreshold <= p.StorageWarningThreshold {
		v.Add("storage_critical_threshold", "Critical threshold must be higher than warning threshold")
	}
	return v.OrNil()
}

// ExpiryOffsetEnabled reports whether an alert should fire daysLeft days
// before expiry. Only 30, 15, 7, 1 and 0 are alert offsets.
func (p *NotificationPreference) ExpiryOffsetEnabled(daysLeft int) bool {
	switch daysLeft {
	case 30:
		return p.Alert30Days
	case 15:
		return p.Alert15Days
	case 7:
		return p.Alert7Days
	case 1:
		return p.Alert1Day
	case 0:
		return p.AlertOnExpiry
	}
	return false
}

// EmailAllowed reports whether a notification of type t may be e-mailed.
func (p *NotificationPreference) EmailAllowed(t NotificationType) bool {
	if !p.EmailEnabled {
		return false
	}
	switch {
	case t.IsExpiryAlert():
		return p.EmailExpiryAlerts
	case t.IsStorageAlert():
		return p.EmailStorageAlerts
	case t.IsSecurityAlert():
		return p.EmailSecurityAlerts
	}
	return true
}

// PushAllowed reports whether a notification of type t may be pushed.
func (p *NotificationPreference) PushAllowed(t NotificationType) bool {
	if !p.PushEnabled {
		return false
	}
	switch {
	case t.IsExpiryAlert():
		return p.PushExpiryAlerts
	case t.IsStorageAlert():
		return p.PushStorageAlerts
	case t.IsSecurityAlert():
		return p.PushSecurityAlerts
	}
	return true
}
