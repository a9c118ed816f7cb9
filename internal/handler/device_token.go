package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"pushgateway/internal/httputil"
	"pushgateway/internal/model"
	"pushgateway/internal/push"
	"pushgateway/internal/repository"
	authmw "pushgateway/internal/transport/http/middleware"
)

// DeviceTokenHandler manages the registration side of the token lifecycle.
// Registration always writes the token field and the push timestamp
// together; the dispatcher's invalidation guard depends on that pairing.
type DeviceTokenHandler struct {
	accounts   repository.AccountRepository
	dispatcher *push.Dispatcher
}

func NewDeviceTokenHandler(accounts repository.AccountRepository, dispatcher *push.Dispatcher) *DeviceTokenHandler {
	return &DeviceTokenHandler{
		accounts:   accounts,
		dispatcher: dispatcher,
	}
}

// SetApnTokensRequest is the request body for registering APN tokens.
type SetApnTokensRequest struct {
	ApnRegistrationID     string `json:"apnRegistrationId"`
	VoipApnRegistrationID string `json:"voipRegistrationId"`
}

// SetGcmTokenRequest is the request body for registering an FCM token.
type SetGcmTokenRequest struct {
	GcmRegistrationID string `json:"gcmRegistrationId"`
}

// SetApnTokens handles PUT /v1/accounts/apn.
func (h *DeviceTokenHandler) SetApnTokens(w http.ResponseWriter, r *http.Request) {
	var req SetApnTokensRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Malformed request body")
		return
	}
	if req.ApnRegistrationID == "" {
		httputil.WriteBadRequest(w, "apnRegistrationId is required")
		return
	}

	h.updateAuthenticatedDevice(w, r, func(device *model.Device) {
		device.ApnID = req.ApnRegistrationID
		device.VoipApnID = req.VoipApnRegistrationID
		device.PushTimestamp = time.Now().UnixMilli()
	})
}

// DeleteApnTokens handles DELETE /v1/accounts/apn.
func (h *DeviceTokenHandler) DeleteApnTokens(w http.ResponseWriter, r *http.Request) {
	h.updateAuthenticatedDevice(w, r, func(device *model.Device) {
		device.ApnID = ""
		device.VoipApnID = ""
	})
}

// SetGcmToken handles PUT /v1/accounts/gcm.
func (h *DeviceTokenHandler) SetGcmToken(w http.ResponseWriter, r *http.Request) {
	var req SetGcmTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Malformed request body")
		return
	}
	if req.GcmRegistrationID == "" {
		httputil.WriteBadRequest(w, "gcmRegistrationId is required")
		return
	}

	h.updateAuthenticatedDevice(w, r, func(device *model.Device) {
		device.GcmID = req.GcmRegistrationID
		device.PushTimestamp = time.Now().UnixMilli()
	})
}

// DeleteGcmToken handles DELETE /v1/accounts/gcm.
func (h *DeviceTokenHandler) DeleteGcmToken(w http.ResponseWriter, r *http.Request) {
	h.updateAuthenticatedDevice(w, r, func(device *model.Device) {
		device.GcmID = ""
	})
}

// MessagesRetrieved handles PUT /v1/messages/retrieved, called by the
// message-fetch path once a device has drained its queue. Any pending
// deferred wake-up for the device is cancelled and its last-seen time
// advances.
func (h *DeviceTokenHandler) MessagesRetrieved(w http.ResponseWriter, r *http.Request) {
	account, device, ok := h.authenticatedDevice(w, r)
	if !ok {
		return
	}

	if err := h.dispatcher.HandleMessagesRetrieved(r.Context(), account, device); err != nil {
		httputil.WriteInternalError(w, "Failed to cancel scheduled notifications")
		return
	}

	_, err := h.accounts.UpdateDevice(r.Context(), account, device.ID, func(device *model.Device) {
		device.LastSeen = time.Now().UnixMilli()
	})
	if err != nil {
		httputil.WriteInternalError(w, "Failed to update device")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *DeviceTokenHandler) updateAuthenticatedDevice(w http.ResponseWriter, r *http.Request, mutate func(*model.Device)) {
	account, device, ok := h.authenticatedDevice(w, r)
	if !ok {
		return
	}

	if _, err := h.accounts.UpdateDevice(r.Context(), account, device.ID, mutate); err != nil {
		httputil.WriteInternalError(w, "Failed to update device")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *DeviceTokenHandler) authenticatedDevice(w http.ResponseWriter, r *http.Request) (*model.Account, *model.Device, bool) {
	accountID, ok := authmw.AccountIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Missing authentication")
		return nil, nil, false
	}
	deviceID, ok := authmw.DeviceIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Missing authentication")
		return nil, nil, false
	}

	account, err := h.accounts.GetByAccountIdentifier(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			httputil.WriteNotFound(w, "Account not found")
		} else {
			httputil.WriteInternalError(w, "Failed to load account")
		}
		return nil, nil, false
	}

	device, ok := account.Device(deviceID)
	if !ok {
		httputil.WriteNotFound(w, "Device not found")
		return nil, nil, false
	}

	return account, device, true
}
