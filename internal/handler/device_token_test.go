package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"pushgateway/internal/handler"
	"pushgateway/internal/model"
	"pushgateway/internal/push"
	"pushgateway/internal/repository"
	authmw "pushgateway/internal/transport/http/middleware"
)

// =============================================================================
// Mock Implementations
// =============================================================================

type mockAccountRepository struct {
	account     *model.Account
	updateCalls int
}

func (m *mockAccountRepository) GetByAccountIdentifier(ctx context.Context, identifier uuid.UUID) (*model.Account, error) {
	if m.account == nil || m.account.Identifier != identifier {
		return nil, repository.ErrAccountNotFound
	}
	return m.account, nil
}

func (m *mockAccountRepository) UpdateDevice(ctx context.Context, account *model.Account, deviceID uint8, mutate func(*model.Device)) (*model.Account, error) {
	m.updateCalls++
	device, ok := m.account.Device(deviceID)
	if !ok {
		return nil, repository.ErrDeviceNotFound
	}
	mutate(device)
	return m.account, nil
}

func (m *mockAccountRepository) StreamAll(ctx context.Context, batchSize int) (<-chan *model.Account, <-chan error) {
	accounts := make(chan *model.Account)
	errs := make(chan error, 1)
	close(accounts)
	close(errs)
	return accounts, errs
}

type noopSender struct{}

func (noopSender) SendNotification(ctx context.Context, n *model.PushNotification) (*model.SendPushNotificationResult, error) {
	return &model.SendPushNotificationResult{Accepted: true}, nil
}

type recordingScheduler struct {
	cancelCalls int
}

func (s *recordingScheduler) ScheduleBackgroundNotification(ctx context.Context, account *model.Account, device *model.Device) error {
	return nil
}

func (s *recordingScheduler) ScheduleRecurringVoipNotification(ctx context.Context, account *model.Account, device *model.Device) error {
	return nil
}

func (s *recordingScheduler) CancelScheduledNotifications(ctx context.Context, account *model.Account, device *model.Device) error {
	s.cancelCalls++
	return nil
}

// =============================================================================
// Test Helpers
// =============================================================================

type deviceTokenFixture struct {
	accounts  *mockAccountRepository
	scheduler *recordingScheduler
	handler   *handler.DeviceTokenHandler
	account   *model.Account
}

func newDeviceTokenFixture(device model.Device) *deviceTokenFixture {
	identifier := uuid.New()
	device.ID = model.PrimaryDeviceID
	device.AccountID = identifier
	account := &model.Account{Identifier: identifier, Devices: []model.Device{device}}

	accounts := &mockAccountRepository{account: account}
	scheduler := &recordingScheduler{}
	dispatcher := push.NewDispatcher(accounts, noopSender{}, noopSender{}, scheduler)

	return &deviceTokenFixture{
		accounts:  accounts,
		scheduler: scheduler,
		handler:   handler.NewDeviceTokenHandler(accounts, dispatcher),
		account:   account,
	}
}

func (f *deviceTokenFixture) request(method, body string) *http.Request {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, "/", reader)

	ctx := context.WithValue(req.Context(), authmw.AccountIDKey, f.account.Identifier)
	ctx = context.WithValue(ctx, authmw.DeviceIDKey, model.PrimaryDeviceID)
	return req.WithContext(ctx)
}

// =============================================================================
// Token registration
// =============================================================================

func TestSetApnTokens(t *testing.T) {
	f := newDeviceTokenFixture(model.Device{})

	w := httptest.NewRecorder()
	f.handler.SetApnTokens(w, f.request(http.MethodPut,
		`{"apnRegistrationId":"apns-token","voipRegistrationId":"voip-token"}`))

	if w.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want %d", w.Code, http.StatusNoContent)
	}
	device, _ := f.account.PrimaryDevice()
	if device.ApnID != "apns-token" || device.VoipApnID != "voip-token" {
		t.Errorf("tokens not stored: %+v", device)
	}
	if device.PushTimestamp == 0 {
		t.Error("push timestamp must be written with the token")
	}
}

func TestSetApnTokensRequiresStandardToken(t *testing.T) {
	f := newDeviceTokenFixture(model.Device{})

	w := httptest.NewRecorder()
	f.handler.SetApnTokens(w, f.request(http.MethodPut, `{"voipRegistrationId":"voip-token"}`))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", w.Code, http.StatusBadRequest)
	}
	if f.accounts.updateCalls != 0 {
		t.Errorf("update calls: got %d, want 0", f.accounts.updateCalls)
	}
}

func TestDeleteApnTokens(t *testing.T) {
	f := newDeviceTokenFixture(model.Device{ApnID: "apns-token", VoipApnID: "voip-token", PushTimestamp: 123})

	w := httptest.NewRecorder()
	f.handler.DeleteApnTokens(w, f.request(http.MethodDelete, ""))

	if w.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want %d", w.Code, http.StatusNoContent)
	}
	device, _ := f.account.PrimaryDevice()
	if device.ApnID != "" || device.VoipApnID != "" {
		t.Errorf("tokens not cleared: %+v", device)
	}
}

func TestSetGcmToken(t *testing.T) {
	f := newDeviceTokenFixture(model.Device{})

	w := httptest.NewRecorder()
	f.handler.SetGcmToken(w, f.request(http.MethodPut, `{"gcmRegistrationId":"gcm-token"}`))

	if w.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want %d", w.Code, http.StatusNoContent)
	}
	device, _ := f.account.PrimaryDevice()
	if device.GcmID != "gcm-token" {
		t.Errorf("token not stored: %+v", device)
	}
	if device.PushTimestamp == 0 {
		t.Error("push timestamp must be written with the token")
	}
}

func TestSetGcmTokenMalformedBody(t *testing.T) {
	f := newDeviceTokenFixture(model.Device{})

	w := httptest.NewRecorder()
	f.handler.SetGcmToken(w, f.request(http.MethodPut, `not json`))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestDeviceTokenUnauthenticated(t *testing.T) {
	f := newDeviceTokenFixture(model.Device{})

	// No auth context on the request at all.
	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"gcmRegistrationId":"gcm-token"}`))
	w := httptest.NewRecorder()
	f.handler.SetGcmToken(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestMessagesRetrieved(t *testing.T) {
	f := newDeviceTokenFixture(model.Device{ApnID: "apns-token"})

	w := httptest.NewRecorder()
	f.handler.MessagesRetrieved(w, f.request(http.MethodPut, ""))

	if w.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want %d", w.Code, http.StatusNoContent)
	}
	if f.scheduler.cancelCalls != 1 {
		t.Errorf("cancel calls: got %d, want 1", f.scheduler.cancelCalls)
	}
	device, _ := f.account.PrimaryDevice()
	if device.LastSeen == 0 {
		t.Error("last-seen must advance on retrieval")
	}
}
