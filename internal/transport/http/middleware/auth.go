package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"pushgateway/internal/httputil"
	"pushgateway/internal/model"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// AccountIDKey is the context key for the authenticated account identifier
	AccountIDKey contextKey = "account_id"
	// DeviceIDKey is the context key for the authenticated device ID
	DeviceIDKey contextKey = "device_id"
)

// AuthMiddleware creates a middleware that validates JWT bearer tokens
// issued to devices. The subject claim carries the account identifier and
// the "did" claim the device ID.
func AuthMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var tokenString string

			authHeader := r.Header.Get("Authorization")
			if authHeader != "" {
				// Expected format: "Bearer <token>"
				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
					tokenString = parts[1]
				}
			}

			if tokenString == "" {
				httputil.WriteUnauthorized(w, "Missing authentication token")
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(jwtSecret), nil
			})
			if err != nil || !token.Valid {
				httputil.WriteUnauthorized(w, "Invalid authentication token")
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				httputil.WriteUnauthorized(w, "Invalid authentication token")
				return
			}

			subject, err := claims.GetSubject()
			if err != nil {
				httputil.WriteUnauthorized(w, "Invalid authentication token")
				return
			}
			accountID, err := uuid.Parse(subject)
			if err != nil {
				httputil.WriteUnauthorized(w, "Invalid authentication token")
				return
			}

			deviceID := model.PrimaryDeviceID
			if raw, ok := claims["did"].(float64); ok {
				deviceID = uint8(raw)
			}

			ctx := context.WithValue(r.Context(), AccountIDKey, accountID)
			ctx = context.WithValue(ctx, DeviceIDKey, deviceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccountIDFromContext returns the authenticated account identifier.
func AccountIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(AccountIDKey).(uuid.UUID)
	return id, ok
}

// DeviceIDFromContext returns the authenticated device ID.
func DeviceIDFromContext(ctx context.Context) (uint8, bool) {
	id, ok := ctx.Value(DeviceIDKey).(uint8)
	return id, ok
}
