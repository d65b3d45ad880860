package server

import (
	"errors"
	"net/http"
	"strings"

	"dairyops/internal/identity"
	"dairyops/internal/store"

	"go.uber.org/zap"
)

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// requireCaller resolves the bearer token to a user. On failure it has
// already written the response.
func (a *API) requireCaller(w http.ResponseWriter, r *http.Request) (*identity.User, bool) {
	token := bearerToken(r)
	if token == "" {
		writeErr(w, http.StatusUnauthorized, "missing bearer token")
		return nil, false
	}
	u, err := a.Identity.User(r.Context(), token)
	if err != nil {
		if errors.Is(err, identity.ErrUnauthorized) {
			writeErr(w, http.StatusUnauthorized, "invalid token")
			return nil, false
		}
		a.Log.Error("identity lookup failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "server error")
		return nil, false
	}
	return u, true
}

// requireAdmin maps the caller to an admin row. No row is 403; a lookup
// failure is 500.
func (a *API) requireAdmin(w http.ResponseWriter, r *http.Request, caller *identity.User) (*store.Admin, bool) {
	admin, err := a.Store.AdminByAuthUID(r.Context(), caller.ID)
	if err != nil {
		a.Log.Error("admin lookup failed", zap.String("caller", caller.ID), zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "server error")
		return nil, false
	}
	if admin == nil {
		writeErr(w, http.StatusForbidden, "user not mapped to admin")
		return nil, false
	}
	return admin, true
}
