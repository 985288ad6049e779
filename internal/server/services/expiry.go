package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/privylock/internal/server/models"
)

const expiryDateLayout = "2006-01-02"

// ExpiryDateResolver turns a document's stored expiry field into a date.
// The server cannot decrypt client ciphertext, so deployments plug in
// whatever collaborator can.
type ExpiryDateResolver interface {
	Resolve(ctx context.Context, d *models.Document) (time.Time, error)
}

// Base64DateResolver reads expiry fields that hold base64 of a plain
// YYYY-MM-DD date, the format clients use for expiry tracking.
type Base64DateResolver struct{}

func (Base64DateResolver) Resolve(_ context.Context, d *models.Document) (time.Time, error) {
	raw := strings.TrimSpace(d.EncryptedExpiryDate)
	if raw == "" {
		return time.Time{}, fmt.Errorf("document %s has no expiry date", d.ID)
	}

	text := raw
	if b, err := base64.StdEncoding.DecodeString(raw); err == nil {
		text = strings.TrimSpace(string(b))
	}

	t, err := time.Parse(expiryDateLayout, text)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse expiry date of %s: %w", d.ID, err)
	}
	return t, nil
}

// startOfDay truncates t to midnight UTC.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysUntil counts calendar days from now to date; negative when past.
func daysUntil(date, now time.Time) int {
	return int(startOfDay(date).Sub(startOfDay(now)).Hours() / 24)
}
