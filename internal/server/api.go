package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"dairyops/internal/identity"
	"dairyops/internal/shared"
	"dairyops/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxBodyBytes = 2 << 20

type API struct {
	Store    store.Store
	Identity identity.Provider
	// WebhookSecret is the payment provider's shared secret. Empty means
	// the webhook route is misconfigured and answers 500.
	WebhookSecret string
	Log           *zap.Logger
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
}

// decode reads a JSON object body into v, rejecting unknown fields.
// An empty body leaves v untouched so that field validation reports
// what is missing.
func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := readBody(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad body")
		return false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, shared.ErrNotNumeric) {
			writeErr(w, http.StatusBadRequest, "numeric field expected")
			return false
		}
		writeErr(w, http.StatusBadRequest, "bad json")
		return false
	}
	return true
}

// storeFailed maps a store error to a response.
func (a *API) storeFailed(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeErr(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrConflict):
		writeErr(w, http.StatusConflict, "conflict")
	default:
		a.Log.Error("store error", zap.String("op", op), zap.String("path", r.URL.Path), zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "server error")
	}
}

// validUUID accepts only the canonical 8-4-4-4-12 form.
func validUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// Health reports liveness.
func (a *API) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
