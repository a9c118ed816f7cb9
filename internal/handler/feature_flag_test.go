package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"pushgateway/internal/handler"
	"pushgateway/internal/model"
)

type mockFlagRepository struct {
	setCalls    []setCall
	deleteCalls []string
}

type setCall struct {
	name   string
	active bool
}

func (m *mockFlagRepository) Set(ctx context.Context, name string, active bool) error {
	m.setCalls = append(m.setCalls, setCall{name: name, active: active})
	return nil
}

func (m *mockFlagRepository) Delete(ctx context.Context, name string) error {
	m.deleteCalls = append(m.deleteCalls, name)
	return nil
}

func (m *mockFlagRepository) GetAll(ctx context.Context) ([]model.FeatureFlag, error) {
	return nil, nil
}

func flagRouter(flags *mockFlagRepository, tokens ...string) chi.Router {
	h := handler.NewFeatureFlagHandler(flags, tokens)
	r := chi.NewRouter()
	r.Put("/v1/featureflag/{flag}", h.Set)
	r.Delete("/v1/featureflag/{flag}", h.Delete)
	return r
}

func putFlag(router chi.Router, token, flag, active string) *httptest.ResponseRecorder {
	form := url.Values{"active": {active}}
	req := httptest.NewRequest(http.MethodPut, "/v1/featureflag/"+flag, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if token != "" {
		req.Header.Set("Token", token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestFeatureFlagSet(t *testing.T) {
	flags := &mockFlagRepository{}
	router := flagRouter(flags, "first-token", "second-token")

	w := putFlag(router, "second-token", "test-flag", "true")

	if w.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want %d", w.Code, http.StatusNoContent)
	}
	if len(flags.setCalls) != 1 {
		t.Fatalf("set calls: got %d, want 1", len(flags.setCalls))
	}
	if call := flags.setCalls[0]; call.name != "test-flag" || !call.active {
		t.Errorf("unexpected set call: %+v", call)
	}
}

func TestFeatureFlagSetInactive(t *testing.T) {
	flags := &mockFlagRepository{}
	router := flagRouter(flags, "token")

	w := putFlag(router, "token", "test-flag", "false")

	if w.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want %d", w.Code, http.StatusNoContent)
	}
	if call := flags.setCalls[0]; call.active {
		t.Errorf("expected inactive flag, got %+v", call)
	}
}

func TestFeatureFlagSetUnauthorized(t *testing.T) {
	cases := []struct {
		name  string
		token string
	}{
		{"missing token", ""},
		{"wrong token", "wrong-token"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			flags := &mockFlagRepository{}
			router := flagRouter(flags, "valid-token")

			w := putFlag(router, tc.token, "test-flag", "true")

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status: got %d, want %d", w.Code, http.StatusUnauthorized)
			}
			if len(flags.setCalls) != 0 {
				t.Errorf("set calls: got %d, want 0", len(flags.setCalls))
			}
		})
	}
}

func TestFeatureFlagDelete(t *testing.T) {
	flags := &mockFlagRepository{}
	router := flagRouter(flags, "token")

	req := httptest.NewRequest(http.MethodDelete, "/v1/featureflag/test-flag", nil)
	req.Header.Set("Token", "token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want %d", w.Code, http.StatusNoContent)
	}
	if len(flags.deleteCalls) != 1 || flags.deleteCalls[0] != "test-flag" {
		t.Errorf("unexpected delete calls: %v", flags.deleteCalls)
	}
}

func TestFeatureFlagDeleteUnauthorized(t *testing.T) {
	flags := &mockFlagRepository{}
	router := flagRouter(flags, "token")

	req := httptest.NewRequest(http.MethodDelete, "/v1/featureflag/test-flag", nil)
	req.Header.Set("Token", "wrong-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if len(flags.deleteCalls) != 0 {
		t.Errorf("delete calls: got %d, want 0", len(flags.deleteCalls))
	}
}
