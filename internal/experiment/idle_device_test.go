package experiment_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"pushgateway/internal/experiment"
	"pushgateway/internal/model"
)

type newMessageCall struct {
	accountID uuid.UUID
	deviceID  uint8
	urgent    bool
}

type mockNewMessageSender struct {
	calls []newMessageCall
}

func (m *mockNewMessageSender) SendNewMessageNotification(ctx context.Context, account *model.Account, deviceID uint8, urgent bool) error {
	m.calls = append(m.calls, newMessageCall{accountID: account.Identifier, deviceID: deviceID, urgent: urgent})
	return nil
}

func idleTestFixture() (*mockNewMessageSender, *experiment.IdleDeviceReminderExperiment) {
	sender := &mockNewMessageSender{}
	return sender, experiment.NewIdleDeviceReminderExperiment(sender, 30*24*time.Hour)
}

func TestIdleDeviceEligibility(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name   string
		device model.Device
		want   bool
	}{
		{
			name:   "idle with token",
			device: model.Device{ApnID: "token", LastSeen: now.Add(-45 * 24 * time.Hour).UnixMilli()},
			want:   true,
		},
		{
			name:   "recently seen",
			device: model.Device{ApnID: "token", LastSeen: now.Add(-time.Hour).UnixMilli()},
			want:   false,
		},
		{
			name:   "idle without token",
			device: model.Device{LastSeen: now.Add(-45 * 24 * time.Hour).UnixMilli()},
			want:   false,
		},
		{
			name:   "idle with gcm token",
			device: model.Device{GcmID: "token", LastSeen: now.Add(-45 * 24 * time.Hour).UnixMilli()},
			want:   true,
		},
	}

	_, exp := idleTestFixture()
	account := &model.Account{Identifier: uuid.New()}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := exp.IsDeviceEligible(context.Background(), account, &tc.device)
			if err != nil {
				t.Fatalf("IsDeviceEligible failed: %v", err)
			}
			if got != tc.want {
				t.Errorf("eligible: got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIdleDeviceState(t *testing.T) {
	_, exp := idleTestFixture()
	account := &model.Account{Identifier: uuid.New()}
	device := &model.Device{ApnID: "apns-token", GcmID: "gcm-token", LastSeen: 1700000000000}

	raw, err := exp.State(context.Background(), account, device)
	if err != nil {
		t.Fatalf("State failed: %v", err)
	}

	var state struct {
		HasApnToken     bool  `json:"hasApnToken"`
		HasVoipApnToken bool  `json:"hasVoipApnToken"`
		HasGcmToken     bool  `json:"hasGcmToken"`
		LastSeen        int64 `json:"lastSeen"`
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}

	if !state.HasApnToken || state.HasVoipApnToken || !state.HasGcmToken {
		t.Errorf("unexpected token flags: %+v", state)
	}
	if state.LastSeen != 1700000000000 {
		t.Errorf("lastSeen: got %d", state.LastSeen)
	}
}

func TestIdleDeviceTreatments(t *testing.T) {
	sender, exp := idleTestFixture()
	account := &model.Account{Identifier: uuid.New()}
	device := &model.Device{ID: 2, ApnID: "token"}

	if err := exp.ApplyControlTreatment(context.Background(), account, device); err != nil {
		t.Fatalf("ApplyControlTreatment failed: %v", err)
	}
	if len(sender.calls) != 0 {
		t.Fatalf("control treatment sent %d notifications, want 0", len(sender.calls))
	}

	if err := exp.ApplyExperimentTreatment(context.Background(), account, device); err != nil {
		t.Fatalf("ApplyExperimentTreatment failed: %v", err)
	}
	if len(sender.calls) != 1 {
		t.Fatalf("experiment treatment sent %d notifications, want 1", len(sender.calls))
	}
	call := sender.calls[0]
	if call.accountID != account.Identifier || call.deviceID != 2 || call.urgent {
		t.Errorf("unexpected notification: %+v", call)
	}
}
