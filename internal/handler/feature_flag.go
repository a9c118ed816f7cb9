package handler

import (
	"crypto/subtle"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pushgateway/internal/httputil"
	"pushgateway/internal/repository"
)

// FeatureFlagHandler exposes the operator endpoints for toggling feature
// flags. Requests authenticate with a Token header checked against a
// configured allow-list.
type FeatureFlagHandler struct {
	flags            repository.FeatureFlagRepository
	authorizedTokens [][]byte
}

func NewFeatureFlagHandler(flags repository.FeatureFlagRepository, authorizedTokens []string) *FeatureFlagHandler {
	tokens := make([][]byte, len(authorizedTokens))
	for i, token := range authorizedTokens {
		tokens[i] = []byte(token)
	}
	return &FeatureFlagHandler{
		flags:            flags,
		authorizedTokens: tokens,
	}
}

// Set handles PUT /v1/featureflag/{flag} with form field "active".
func (h *FeatureFlagHandler) Set(w http.ResponseWriter, r *http.Request) {
	if !h.isAuthorized(r.Header.Get("Token")) {
		httputil.WriteUnauthorized(w, "Invalid token")
		return
	}

	if err := r.ParseForm(); err != nil {
		httputil.WriteBadRequest(w, "Malformed form body")
		return
	}

	active := r.PostFormValue("active") == "true"

	if err := h.flags.Set(r.Context(), chi.URLParam(r, "flag"), active); err != nil {
		httputil.WriteInternalError(w, "Failed to set feature flag")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /v1/featureflag/{flag}.
func (h *FeatureFlagHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.isAuthorized(r.Header.Get("Token")) {
		httputil.WriteUnauthorized(w, "Invalid token")
		return
	}

	if err := h.flags.Delete(r.Context(), chi.URLParam(r, "flag")); err != nil {
		httputil.WriteInternalError(w, "Failed to delete feature flag")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// isAuthorized checks the presented token against every configured token in
// constant time, without breaking out of the loop on a match.
func (h *FeatureFlagHandler) isAuthorized(token string) bool {
	if token == "" {
		return false
	}

	presented := []byte(token)
	authorized := false
	for _, candidate := range h.authorizedTokens {
		if subtle.ConstantTimeCompare(candidate, presented) == 1 {
			authorized = true
		}
	}
	return authorized
}
