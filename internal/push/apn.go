package push

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"pushgateway/internal/model"
)

// APNs rejects provider tokens older than an hour; refresh well before that.
const apnTokenLifetime = 50 * time.Minute

// APNSender delivers push notifications to Apple's APNs HTTP/2 API,
// authenticated with an ES256 provider token.
type APNSender struct {
	httpClient *http.Client
	baseURL    string
	teamID     string
	keyID      string
	signingKey *ecdsa.PrivateKey
	bundleID   string

	mu          sync.Mutex
	cachedToken string
	tokenMinted time.Time
}

// NewAPNSender creates an APN sender. signingKey is the PEM-encoded .p8 key
// downloaded from the Apple developer portal; literal "\n" sequences are
// accepted the same way the FCM key is.
func NewAPNSender(baseURL, teamID, keyID, signingKey, bundleID string) (*APNSender, error) {
	key, err := jwt.ParseECPrivateKeyFromPEM([]byte(strings.ReplaceAll(signingKey, "\\n", "\n")))
	if err != nil {
		return nil, fmt.Errorf("parse apn signing key: %w", err)
	}

	return &APNSender{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		teamID:     teamID,
		keyID:      keyID,
		signingKey: key,
		bundleID:   bundleID,
	}, nil
}

type apnErrorResponse struct {
	Reason    string `json:"reason"`
	Timestamp int64  `json:"timestamp"` // epoch millis of the token's last-valid instant
}

// SendNotification posts one notification to APNs. A 410 response, or a
// BadDeviceToken/Unregistered/ExpiredToken reason, marks the token as
// permanently unregistered; the response's timestamp rides along so callers
// can detect a token that was re-registered after this send was issued.
func (s *APNSender) SendNotification(ctx context.Context, notification *model.PushNotification) (*model.SendPushNotificationResult, error) {
	payload, err := apnPayload(notification)
	if err != nil {
		return nil, err
	}

	token, err := s.providerToken()
	if err != nil {
		return nil, err
	}

	url := s.baseURL + "/3/device/" + notification.DeviceToken
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create apn request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "bearer "+token)
	req.Header.Set("apns-topic", s.topic(notification.TokenType))
	req.Header.Set("apns-push-type", apnPushType(notification))
	req.Header.Set("apns-priority", apnPriority(notification))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send apn notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return &model.SendPushNotificationResult{Accepted: true}, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read apn response: %w", err)
	}

	var apnErr apnErrorResponse
	if err := json.Unmarshal(body, &apnErr); err != nil {
		return nil, fmt.Errorf("parse apn response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode == http.StatusGone || isUnregisteredReason(apnErr.Reason) {
		result := &model.SendPushNotificationResult{
			ErrorCode:    apnErr.Reason,
			Unregistered: true,
		}
		if apnErr.Timestamp > 0 {
			ts := time.UnixMilli(apnErr.Timestamp)
			result.UnregisteredAt = &ts
		}
		return result, nil
	}

	return &model.SendPushNotificationResult{ErrorCode: apnErr.Reason}, nil
}

func isUnregisteredReason(reason string) bool {
	switch reason {
	case "Unregistered", "BadDeviceToken", "ExpiredToken":
		return true
	}
	return false
}

func (s *APNSender) topic(tokenType model.TokenType) string {
	if tokenType == model.TokenTypeAPNVoip {
		return s.bundleID + ".voip"
	}
	return s.bundleID
}

func apnPushType(notification *model.PushNotification) string {
	switch {
	case notification.TokenType == model.TokenTypeAPNVoip:
		return "voip"
	case notification.Type == model.NotificationTypeNewMessage && !notification.Urgent:
		return "background"
	default:
		return "alert"
	}
}

func apnPriority(notification *model.PushNotification) string {
	if notification.Urgent || notification.TokenType == model.TokenTypeAPNVoip {
		return "10"
	}
	return "5"
}

func apnPayload(notification *model.PushNotification) ([]byte, error) {
	var body map[string]any

	switch notification.Type {
	case model.NotificationTypeChallenge:
		body = map[string]any{
			"aps":       map[string]any{"sound": "default", "alert": map[string]any{"loc-key": "APN_Message"}},
			"challenge": notification.Data,
		}
	case model.NotificationTypeRateLimitChallenge:
		body = map[string]any{
			"aps":                map[string]any{"sound": "default", "alert": map[string]any{"loc-key": "APN_Message"}},
			"rateLimitChallenge": notification.Data,
		}
	case model.NotificationTypeAttemptLogin:
		body = map[string]any{
			"aps":                 map[string]any{"sound": "default", "alert": map[string]any{"loc-key": "APN_attempt_login_notification"}},
			"attemptLoginContext": notification.Data,
		}
	default:
		if notification.Urgent || notification.TokenType == model.TokenTypeAPNVoip {
			body = map[string]any{
				"aps": map[string]any{"mutable-content": 1, "alert": map[string]any{"loc-key": "APN_Message"}},
			}
		} else {
			body = map[string]any{
				"aps": map[string]any{"content-available": 1},
			}
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal apn payload: %w", err)
	}
	return payload, nil
}

// providerToken returns the cached ES256 provider token, minting a fresh one
// when the cached token is near Apple's one-hour limit.
func (s *APNSender) providerToken() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if s.cachedToken != "" && now.Sub(s.tokenMinted) < apnTokenLifetime {
		return s.cachedToken, nil
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": s.teamID,
		"iat": now.Unix(),
	})
	token.Header["kid"] = s.keyID

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign apn provider token: %w", err)
	}

	s.cachedToken = signed
	s.tokenMinted = now
	return signed, nil
}
