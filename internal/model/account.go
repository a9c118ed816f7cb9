package model

import (
	"time"

	"github.com/google/uuid"
)

// PrimaryDeviceID is the device ID of an account's primary device.
const PrimaryDeviceID uint8 = 1

// Device is a registered device belonging to an account. It carries one
// push token per transport; a token field and PushTimestamp are always
// updated together so that token invalidation can tell whether a token was
// re-registered after a failed send was dispatched.
type Device struct {
	ID        uint8     `db:"device_id" json:"id"`
	AccountID uuid.UUID `db:"account_id" json:"-"`
	GcmID     string    `db:"gcm_id" json:"-"`
	ApnID     string    `db:"apn_id" json:"-"`
	VoipApnID string    `db:"voip_apn_id" json:"-"`

	// PushTimestamp is the epoch-millisecond time of the last token
	// registration on this device.
	PushTimestamp int64 `db:"push_timestamp" json:"-"`

	// LastSeen is the epoch-millisecond time the device last fetched
	// queued messages.
	LastSeen int64 `db:"last_seen" json:"last_seen"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// HasPushToken reports whether the device is registered on any transport.
func (d *Device) HasPushToken() bool {
	return d.GcmID != "" || d.ApnID != "" || d.VoipApnID != ""
}

// Account is a registered account and its devices.
type Account struct {
	// Identifier is the stable account identifier (ACI).
	Identifier uuid.UUID `db:"identifier" json:"identifier"`
	Number     string    `db:"number" json:"-"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`

	Devices []Device `db:"-" json:"-"`
}

// Device returns the device with the given ID, if present.
func (a *Account) Device(deviceID uint8) (*Device, bool) {
	for i := range a.Devices {
		if a.Devices[i].ID == deviceID {
			return &a.Devices[i], true
		}
	}
	return nil, false
}

// PrimaryDevice returns the account's primary device, if present.
func (a *Account) PrimaryDevice() (*Device, bool) {
	return a.Device(PrimaryDeviceID)
}
