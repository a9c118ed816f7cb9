package model

import "time"

// TokenType identifies the transport-specific push channel a device token
// belongs to.
type TokenType string

const (
	TokenTypeAPN     TokenType = "apn"
	TokenTypeAPNVoip TokenType = "apn-voip"
	TokenTypeFCM     TokenType = "fcm"
)

// NotificationType identifies the kind of push notification being sent.
type NotificationType string

const (
	// NotificationTypeNewMessage wakes the device to fetch queued messages.
	NotificationTypeNewMessage NotificationType = "notification"

	// NotificationTypeChallenge delivers a registration challenge to a bare
	// token before any account association exists.
	NotificationTypeChallenge NotificationType = "challenge"

	// NotificationTypeRateLimitChallenge delivers a rate-limit challenge.
	NotificationTypeRateLimitChallenge NotificationType = "rateLimitChallenge"

	// NotificationTypeAttemptLogin alerts the user to a login attempt.
	NotificationTypeAttemptLogin NotificationType = "attemptLoginNotificationHighPriority"
)

// PushNotification is a single notification addressed to one device token.
// Challenge notifications carry no account or device.
type PushNotification struct {
	DeviceToken string
	TokenType   TokenType
	Type        NotificationType
	Data        string
	Account     *Account
	Device      *Device
	Urgent      bool
}

// SendPushNotificationResult is the transport's verdict for one send.
// Accepted and Unregistered are mutually exclusive; when both are false the
// failure was transient. UnregisteredAt, when set, is the transport's
// last-known-valid registration time for the token and guards against
// clobbering a token the device re-registered after the send was issued.
type SendPushNotificationResult struct {
	Accepted       bool
	ErrorCode      string
	Unregistered   bool
	UnregisteredAt *time.Time
}
