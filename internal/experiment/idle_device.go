package experiment

import (
	"context"
	"encoding/json"
	"time"

	"pushgateway/internal/model"
)

// NewMessageSender is the slice of the push dispatcher the idle-device
// experiment needs, extracted so tests can substitute a fake.
type NewMessageSender interface {
	SendNewMessageNotification(ctx context.Context, account *model.Account, deviceID uint8, urgent bool) error
}

// DefaultIdleThreshold is how long a device must have gone without fetching
// messages before the idle-device experiment considers it idle.
const DefaultIdleThreshold = 30 * 24 * time.Hour

// IdleDeviceReminderExperiment nudges devices that have push tokens but have
// not fetched messages recently: the experiment group gets a non-urgent
// new-message notification, the control group gets nothing.
type IdleDeviceReminderExperiment struct {
	sender        NewMessageSender
	idleThreshold time.Duration
}

func NewIdleDeviceReminderExperiment(sender NewMessageSender, idleThreshold time.Duration) *IdleDeviceReminderExperiment {
	if idleThreshold <= 0 {
		idleThreshold = DefaultIdleThreshold
	}
	return &IdleDeviceReminderExperiment{
		sender:        sender,
		idleThreshold: idleThreshold,
	}
}

func (e *IdleDeviceReminderExperiment) Name() string {
	return "idle-device-reminder"
}

func (e *IdleDeviceReminderExperiment) IsDeviceEligible(ctx context.Context, account *model.Account, device *model.Device) (bool, error) {
	if !device.HasPushToken() {
		return false, nil
	}
	lastSeen := time.UnixMilli(device.LastSeen)
	return time.Since(lastSeen) >= e.idleThreshold, nil
}

type idleDeviceState struct {
	HasApnToken     bool  `json:"hasApnToken"`
	HasVoipApnToken bool  `json:"hasVoipApnToken"`
	HasGcmToken     bool  `json:"hasGcmToken"`
	LastSeen        int64 `json:"lastSeen"`
}

func (e *IdleDeviceReminderExperiment) State(ctx context.Context, account *model.Account, device *model.Device) (json.RawMessage, error) {
	return json.Marshal(idleDeviceState{
		HasApnToken:     device.ApnID != "",
		HasVoipApnToken: device.VoipApnID != "",
		HasGcmToken:     device.GcmID != "",
		LastSeen:        device.LastSeen,
	})
}

func (e *IdleDeviceReminderExperiment) ApplyExperimentTreatment(ctx context.Context, account *model.Account, device *model.Device) error {
	return e.sender.SendNewMessageNotification(ctx, account, device.ID, false)
}

func (e *IdleDeviceReminderExperiment) ApplyControlTreatment(ctx context.Context, account *model.Account, device *model.Device) error {
	return nil
}
