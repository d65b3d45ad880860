package server

import (
	"errors"
	"net/http"
	"strings"

	"dairyops/internal/identity"
	"dairyops/internal/shared"
	"dairyops/internal/store"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// CreateClient inserts a client. A phone that already exists is not an
// error: the existing row comes back with 200 instead of 201.
func (a *API) CreateClient(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.requireCaller(w, r)
	if !ok {
		return
	}
	var req shared.CreateClientRequest
	if !a.decode(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Name == "" || req.Phone == "" {
		writeErr(w, http.StatusBadRequest, "missing name or phone")
		return
	}
	if _, ok := a.requireAdmin(w, r, caller); !ok {
		return
	}

	in := store.NewClient{
		Name:            req.Name,
		Phone:           req.Phone,
		Address:         req.Address,
		PreferredWindow: req.PreferredWindow,
	}
	if in.Address != nil && strings.TrimSpace(*in.Address) == "" {
		in.Address = nil
	}
	if in.PreferredWindow == "" {
		in.PreferredWindow = store.DefaultPreferredWindow
	}

	c, err := a.Store.CreateClient(r.Context(), in)
	if err == nil {
		writeJSON(w, http.StatusCreated, map[string]any{"data": []store.Client{*c}})
		return
	}
	if !errors.Is(err, store.ErrConflict) {
		a.storeFailed(w, r, err, "create client")
		return
	}

	existing, err := a.Store.ClientByPhone(r.Context(), in.Phone)
	if err != nil {
		a.storeFailed(w, r, err, "client by phone")
		return
	}
	if existing == nil {
		writeErr(w, http.StatusConflict, "conflict")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": []store.Client{*existing}})
}

func (a *API) ListClients(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.requireCaller(w, r)
	if !ok {
		return
	}
	if _, ok := a.requireAdmin(w, r, caller); !ok {
		return
	}
	q := r.URL.Query()
	list, err := a.Store.ListClients(r.Context(), store.ClientFilter{
		Phone: strings.TrimSpace(q.Get("phone")),
		Name:  strings.TrimSpace(q.Get("name")),
	})
	if err != nil {
		a.storeFailed(w, r, err, "list clients")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": list})
}

func (a *API) UpdateClient(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.requireCaller(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if !validUUID(id) {
		writeErr(w, http.StatusBadRequest, "invalid client id")
		return
	}
	var req shared.UpdateClientRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.Empty() {
		writeErr(w, http.StatusBadRequest, "no valid fields to update")
		return
	}
	if (req.Name != nil && strings.TrimSpace(*req.Name) == "") || (req.Phone != nil && strings.TrimSpace(*req.Phone) == "") {
		writeErr(w, http.StatusBadRequest, "name and phone must not be empty")
		return
	}
	if _, ok := a.requireAdmin(w, r, caller); !ok {
		return
	}

	c, err := a.Store.UpdateClient(r.Context(), id, store.ClientPatch{
		Name:            req.Name,
		Phone:           req.Phone,
		Address:         req.Address,
		PreferredWindow: req.PreferredWindow,
	})
	if err != nil {
		a.storeFailed(w, r, err, "update client")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": []store.Client{*c}})
}

func (a *API) DeleteClient(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.requireCaller(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if !validUUID(id) {
		writeErr(w, http.StatusBadRequest, "invalid client id")
		return
	}
	if _, ok := a.requireAdmin(w, r, caller); !ok {
		return
	}
	if err := a.Store.DeleteClient(r.Context(), id); err != nil {
		a.storeFailed(w, r, err, "delete client")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// LinkClient lets an admin bind an identity-provider user to a client row.
func (a *API) LinkClient(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.requireCaller(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if !validUUID(id) {
		writeErr(w, http.StatusBadRequest, "invalid client id")
		return
	}
	var req shared.LinkClientRequest
	if !a.decode(w, r, &req) {
		return
	}
	if !validUUID(req.AuthUserID) {
		writeErr(w, http.StatusBadRequest, "invalid auth_user_id")
		return
	}
	if _, ok := a.requireAdmin(w, r, caller); !ok {
		return
	}

	if _, err := a.Identity.UserByID(r.Context(), req.AuthUserID); err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			writeErr(w, http.StatusNotFound, "auth user not found")
			return
		}
		a.Log.Error("identity user lookup failed", zap.String("auth_user_id", req.AuthUserID), zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "server error")
		return
	}

	existing, err := a.Store.ClientByAuthUser(r.Context(), req.AuthUserID)
	if err != nil {
		a.storeFailed(w, r, err, "client by auth user")
		return
	}
	if existing != nil {
		if existing.ID == id {
			writeJSON(w, http.StatusOK, map[string]any{"data": []store.Client{*existing}})
			return
		}
		writeErr(w, http.StatusConflict, "auth_user_id already linked to another client")
		return
	}

	c, err := a.Store.LinkClient(r.Context(), id, req.AuthUserID)
	if err != nil {
		a.storeFailed(w, r, err, "link client")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": []store.Client{*c}})
}

// LinkSelf binds the caller to a client row found by phone or id. A
// matching phone is the only proof of ownership required.
func (a *API) LinkSelf(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.requireCaller(w, r)
	if !ok {
		return
	}
	var req shared.LinkSelfRequest
	if !a.decode(w, r, &req) {
		return
	}
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Phone == "" && req.ClientID == "" {
		writeErr(w, http.StatusBadRequest, "provide phone or client_id")
		return
	}
	if req.ClientID != "" && !validUUID(req.ClientID) {
		writeErr(w, http.StatusBadRequest, "invalid client_id")
		return
	}

	var (
		c   *store.Client
		err error
	)
	if req.ClientID != "" {
		c, err = a.Store.GetClient(r.Context(), req.ClientID)
	} else {
		c, err = a.Store.ClientByPhone(r.Context(), req.Phone)
	}
	if err != nil {
		a.storeFailed(w, r, err, "find client")
		return
	}
	if c == nil {
		writeErr(w, http.StatusNotFound, "client row not found")
		return
	}
	if c.AuthUserID != nil {
		if *c.AuthUserID == caller.ID {
			writeJSON(w, http.StatusOK, map[string]any{"data": []store.Client{*c}})
			return
		}
		writeErr(w, http.StatusConflict, "client already linked")
		return
	}

	linked, err := a.Store.LinkClient(r.Context(), c.ID, caller.ID)
	if err != nil {
		a.storeFailed(w, r, err, "link self")
		return
	}
	a.Log.Info("client self-linked", zap.String("client_id", c.ID), zap.String("caller", caller.ID))
	writeJSON(w, http.StatusOK, map[string]any{"data": []store.Client{*linked}})
}

// Me returns the caller's client row and its orders.
func (a *API) Me(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.requireCaller(w, r)
	if !ok {
		return
	}
	c, err := a.Store.ClientByAuthUser(r.Context(), caller.ID)
	if err != nil {
		a.storeFailed(w, r, err, "client by auth user")
		return
	}
	if c == nil {
		writeErr(w, http.StatusNotFound, "client not found")
		return
	}
	orders, err := a.Store.ListOrders(r.Context(), store.OrderFilter{ClientID: c.ID})
	if err != nil {
		a.storeFailed(w, r, err, "list orders")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"client": c, "orders": orders})
}
