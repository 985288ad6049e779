package models

import "time"

type DeviceType string

const (
	DeviceWeb     DeviceType = "web"
	DeviceAndroid DeviceType = "android"
	DeviceIOS     DeviceType = "ios"
)

func (t DeviceType) Valid() bool {
	switch t {
	case DeviceWeb, DeviceAndroid, DeviceIOS:
		return true
	}
	return false
}

// Device is a client installation. DeviceID is chosen by the client and is
// unique per user.
type Device struct {
	ID         string
	UserID     string
	DeviceID   string
	DeviceName string
	DeviceType DeviceType
	IsTrusted  bool
	LastActive time.Time
	CreatedAt  time.Time
}
