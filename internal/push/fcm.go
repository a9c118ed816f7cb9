package push

import (
	"context"
	"fmt"
	"log"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"pushgateway/internal/model"
)

// messagingClient is the slice of the Firebase messaging client the sender
// uses, extracted so tests can substitute a fake.
type messagingClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMSender delivers push notifications through Firebase Cloud Messaging.
type FCMSender struct {
	client messagingClient
}

// NewFCMSender creates an FCM sender from service-account credentials.
// The private key in .env has literal "\n" strings, so we replace them with
// actual newlines before handing the PEM to the SDK.
func NewFCMSender(ctx context.Context, projectID, clientEmail, privateKey string) (*FCMSender, error) {
	privateKey = strings.ReplaceAll(privateKey, "\\n", "\n")

	credsJSON := fmt.Sprintf(`{
		"type": "service_account",
		"project_id": %q,
		"private_key": %q,
		"client_email": %q,
		"token_uri": "https://oauth2.googleapis.com/token"
	}`, projectID, privateKey, clientEmail)

	opt := option.WithCredentialsJSON([]byte(credsJSON))
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("get messaging client: %w", err)
	}

	log.Printf("[FCM] Initialized for project: %s", projectID)
	return &FCMSender{client: client}, nil
}

// SendNotification sends one data message to the notification's token.
// A token FCM reports as unregistered is surfaced in the result rather than
// as an error; FCM supplies no last-valid timestamp for it.
func (s *FCMSender) SendNotification(ctx context.Context, notification *model.PushNotification) (*model.SendPushNotificationResult, error) {
	priority := "normal"
	if notification.Urgent {
		priority = "high"
	}

	message := &messaging.Message{
		Token: notification.DeviceToken,
		Data:  fcmDataPayload(notification),
		Android: &messaging.AndroidConfig{
			Priority: priority,
		},
	}

	_, err := s.client.Send(ctx, message)
	if err != nil {
		if messaging.IsUnregistered(err) {
			return &model.SendPushNotificationResult{Unregistered: true}, nil
		}
		if messaging.IsUnavailable(err) || messaging.IsInternal(err) || messaging.IsQuotaExceeded(err) {
			return &model.SendPushNotificationResult{ErrorCode: err.Error()}, nil
		}
		return nil, fmt.Errorf("send fcm notification: %w", err)
	}

	return &model.SendPushNotificationResult{Accepted: true}, nil
}

func fcmDataPayload(notification *model.PushNotification) map[string]string {
	switch notification.Type {
	case model.NotificationTypeChallenge:
		return map[string]string{"challenge": notification.Data}
	case model.NotificationTypeRateLimitChallenge:
		return map[string]string{"rateLimitChallenge": notification.Data}
	case model.NotificationTypeAttemptLogin:
		return map[string]string{"attemptLoginContext": notification.Data}
	default:
		return map[string]string{"notification": ""}
	}
}
