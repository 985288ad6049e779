// Package models defines server-side data models persisted in the database.
package models

import "time"

// SubscriptionTier selects the storage quota of an account.
type SubscriptionTier string

const (
	TierFree     SubscriptionTier = "FREE"
	TierPremium  SubscriptionTier = "PREMIUM"
	TierFamily   SubscriptionTier = "FAMILY"
	TierLifetime SubscriptionTier = "LIFETIME"
)

var tierLimits = map[SubscriptionTier]int64{
	TierFree:     1073741824,
	TierPremium:  26843545600,
	TierFamily:   107374182400,
	TierLifetime: 10737418240,
}

// StorageLimit returns the quota in bytes. Unknown tiers get the FREE quota.
func (t SubscriptionTier) StorageLimit() int64 {
	if l, ok := tierLimits[t]; ok {
		return l
	}
	return tierLimits[TierFree]
}

// AuthProvider records how an account was created.
type AuthProvider string

const (
	AuthProviderLocal  AuthProvider = "local"
	AuthProviderGoogle AuthProvider = "google"
)

// User is an account. PasswordHash is the hash computed by the client; the
// server only compares it.
type User struct {
	ID               string
	Username         string
	Email            string
	MobileNumber     string
	PasswordHash     string
	RecoveryKeyHash  string
	GoogleID         *string
	AuthProvider     AuthProvider
	EmailVerified    bool
	SubscriptionTier SubscriptionTier
	StorageUsed      int64
	CreatedAt        time.Time
	LastLoginAt      *time.Time

	// Selector and bcrypt hash of the pending e-mail verification token.
	VerificationSelector *string
	VerificationHash     *string
}

func (u *User) StorageLimit() int64 {
	return u.SubscriptionTier.StorageLimit()
}

// AvailableStorage may be negative when a tier was downgraded.
func (u *User) AvailableStorage() int64 {
	return u.StorageLimit() - u.StorageUsed
}

// StoragePercent returns usage as a percentage of the quota, capped at 100.
func (u *User) StoragePercent() float64 {
	limit := u.StorageLimit()
	if limit <= 0 {
		return 0
	}
	pct := float64(u.StorageUsed) / float64(limit) * 100
	if pct > 100 {
		return 100
	}
	return pct
}
