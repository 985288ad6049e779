package models

import "time"

// RefreshToken is an opaque, server-stored token exchanged for a new
// access/refresh pair.
type RefreshToken struct {
	UserID  string
	Token   string
	Expires time.Time
}
