package push

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"pushgateway/internal/model"
	"pushgateway/internal/repository"
)

// ErrNotPushRegistered is returned by the high-level send helpers when the
// target device has no usable token for any transport.
var ErrNotPushRegistered = errors.New("device is not registered for push notifications")

// Dispatcher routes push notifications to the right transport, interprets
// the transport's verdict, and drives token invalidation and deferred
// scheduling. It never mutates token state directly; all mutations go
// through the account repository's conditional update path.
type Dispatcher struct {
	accounts  repository.AccountRepository
	apnSender TransportSender
	fcmSender TransportSender
	scheduler ScheduledNotificationService
}

func NewDispatcher(
	accounts repository.AccountRepository,
	apnSender TransportSender,
	fcmSender TransportSender,
	scheduler ScheduledNotificationService,
) *Dispatcher {
	return &Dispatcher{
		accounts:  accounts,
		apnSender: apnSender,
		fcmSender: fcmSender,
		scheduler: scheduler,
	}
}

// SendNotification sends one notification and handles the outcome:
//   - accepted, non-urgent APN (not VOIP): schedule a background wake-up;
//   - accepted, APN_VOIP: schedule a recurring VOIP wake-up;
//   - unregistered: run token invalidation, no scheduling action;
//   - transient failure: no state change, error returned to the caller.
func (d *Dispatcher) SendNotification(ctx context.Context, notification *model.PushNotification) error {
	sender, err := d.senderFor(notification.TokenType)
	if err != nil {
		return err
	}

	result, err := sender.SendNotification(ctx, notification)
	if err != nil {
		return fmt.Errorf("send %s notification: %w", notification.TokenType, err)
	}

	if result.Accepted {
		if notification.Account != nil && notification.Device != nil {
			switch {
			case notification.TokenType == model.TokenTypeAPNVoip:
				// VOIP delivery is inherently re-armed, regardless of urgency.
				if err := d.scheduler.ScheduleRecurringVoipNotification(ctx, notification.Account, notification.Device); err != nil {
					return fmt.Errorf("schedule recurring voip notification: %w", err)
				}
			case notification.TokenType == model.TokenTypeAPN && !notification.Urgent:
				if err := d.scheduler.ScheduleBackgroundNotification(ctx, notification.Account, notification.Device); err != nil {
					return fmt.Errorf("schedule background notification: %w", err)
				}
			}
		}
		return nil
	}

	if result.Unregistered {
		if err := d.clearUnregisteredToken(ctx, notification, result.UnregisteredAt); err != nil {
			log.Printf("[Dispatcher] Failed to clear unregistered %s token: %v", notification.TokenType, err)
		}
		return nil
	}

	return fmt.Errorf("%s transport rejected notification: %s", notification.TokenType, result.ErrorCode)
}

func (d *Dispatcher) senderFor(tokenType model.TokenType) (TransportSender, error) {
	switch tokenType {
	case model.TokenTypeAPN, model.TokenTypeAPNVoip:
		return d.apnSender, nil
	case model.TokenTypeFCM:
		return d.fcmSender, nil
	default:
		return nil, fmt.Errorf("unknown token type: %s", tokenType)
	}
}

// clearUnregisteredToken runs the race-safe token invalidation protocol. The
// account and device on the notification may be stale relative to concurrent
// registrations, so the account is re-resolved and the clear only happens if
// the token on record is still the one that failed and was not re-registered
// after the transport last saw it valid.
func (d *Dispatcher) clearUnregisteredToken(ctx context.Context, notification *model.PushNotification, unregisteredAt *time.Time) error {
	if notification.Account == nil || notification.Device == nil {
		// Registration challenges target a bare token; there is nothing to clear.
		return nil
	}

	account, err := d.accounts.GetByAccountIdentifier(ctx, notification.Account.Identifier)
	if errors.Is(err, repository.ErrAccountNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	device, ok := account.Device(notification.Device.ID)
	if !ok {
		return nil
	}

	var tokenMatches bool
	switch notification.TokenType {
	case model.TokenTypeFCM:
		tokenMatches = device.GcmID == notification.DeviceToken
	case model.TokenTypeAPN:
		tokenMatches = device.ApnID == notification.DeviceToken
	case model.TokenTypeAPNVoip:
		tokenMatches = device.VoipApnID == notification.DeviceToken
	}
	if !tokenMatches {
		return nil
	}

	if unregisteredAt != nil && device.PushTimestamp > unregisteredAt.UnixMilli() {
		// The device re-registered after the failing send was issued; the
		// token on record supersedes the verdict.
		return nil
	}

	_, err = d.accounts.UpdateDevice(ctx, account, device.ID, func(device *model.Device) {
		switch notification.TokenType {
		case model.TokenTypeFCM:
			device.GcmID = ""
		case model.TokenTypeAPN:
			device.ApnID = ""
		case model.TokenTypeAPNVoip:
			device.VoipApnID = ""
		}
	})
	return err
}

// HandleMessagesRetrieved is called when a device successfully fetches its
// queued messages; any deferred wake-up for it is now moot.
func (d *Dispatcher) HandleMessagesRetrieved(ctx context.Context, account *model.Account, device *model.Device) error {
	return d.scheduler.CancelScheduledNotifications(ctx, account, device)
}

// SendNewMessageNotification wakes the given device to fetch new messages.
func (d *Dispatcher) SendNewMessageNotification(ctx context.Context, account *model.Account, deviceID uint8, urgent bool) error {
	device, ok := account.Device(deviceID)
	if !ok {
		return ErrNotPushRegistered
	}

	token, tokenType, err := preferredToken(device)
	if err != nil {
		return err
	}

	return d.SendNotification(ctx, &model.PushNotification{
		DeviceToken: token,
		TokenType:   tokenType,
		Type:        model.NotificationTypeNewMessage,
		Account:     account,
		Device:      device,
		Urgent:      urgent,
	})
}

// SendRegistrationChallengeNotification delivers a registration challenge to
// a bare token that has no account association yet.
func (d *Dispatcher) SendRegistrationChallengeNotification(ctx context.Context, deviceToken string, tokenType model.TokenType, challengeToken string) error {
	return d.SendNotification(ctx, &model.PushNotification{
		DeviceToken: deviceToken,
		TokenType:   tokenType,
		Type:        model.NotificationTypeChallenge,
		Data:        challengeToken,
		Urgent:      true,
	})
}

// SendRateLimitChallengeNotification delivers a rate-limit challenge to the
// account's primary device.
func (d *Dispatcher) SendRateLimitChallengeNotification(ctx context.Context, account *model.Account, challengeToken string) error {
	device, ok := account.PrimaryDevice()
	if !ok {
		return ErrNotPushRegistered
	}

	token, tokenType, err := preferredToken(device)
	if err != nil {
		return err
	}

	return d.SendNotification(ctx, &model.PushNotification{
		DeviceToken: token,
		TokenType:   tokenType,
		Type:        model.NotificationTypeRateLimitChallenge,
		Data:        challengeToken,
		Account:     account,
		Device:      device,
		Urgent:      true,
	})
}

// SendAttemptLoginNotification alerts the account's primary device to a
// login attempt.
func (d *Dispatcher) SendAttemptLoginNotification(ctx context.Context, account *model.Account, loginContext string) error {
	device, ok := account.PrimaryDevice()
	if !ok {
		return ErrNotPushRegistered
	}

	token, tokenType, err := preferredToken(device)
	if err != nil {
		return err
	}

	return d.SendNotification(ctx, &model.PushNotification{
		DeviceToken: token,
		TokenType:   tokenType,
		Type:        model.NotificationTypeAttemptLogin,
		Data:        loginContext,
		Account:     account,
		Device:      device,
		Urgent:      true,
	})
}

// preferredToken picks the device's token, preferring APN over VOIP over FCM.
func preferredToken(device *model.Device) (string, model.TokenType, error) {
	switch {
	case device.ApnID != "":
		return device.ApnID, model.TokenTypeAPN, nil
	case device.VoipApnID != "":
		return device.VoipApnID, model.TokenTypeAPNVoip, nil
	case device.GcmID != "":
		return device.GcmID, model.TokenTypeFCM, nil
	default:
		return "", "", ErrNotPushRegistered
	}
}
