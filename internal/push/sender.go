package push

import (
	"context"

	"pushgateway/internal/model"
)

// TransportSender delivers a single push notification over one transport.
// Definitive verdicts (accepted, unregistered) are encoded in the result; an
// error return means the transport call itself failed and the outcome is
// unknown.
type TransportSender interface {
	SendNotification(ctx context.Context, notification *model.PushNotification) (*model.SendPushNotificationResult, error)
}

// ScheduledNotificationService schedules and cancels deferred wake-ups for a
// device. All operations are idempotent from the caller's perspective.
type ScheduledNotificationService interface {
	ScheduleBackgroundNotification(ctx context.Context, account *model.Account, device *model.Device) error
	ScheduleRecurringVoipNotification(ctx context.Context, account *model.Account, device *model.Device) error
	CancelScheduledNotifications(ctx context.Context, account *model.Account, device *model.Device) error
}
