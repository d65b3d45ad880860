package server

import (
	"net/http"
	"strings"

	"dairyops/internal/shared"
	"dairyops/internal/store"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const alreadyConfirmedMsg = "order already confirmed or not permitted"

func (a *API) CreateOrder(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.requireCaller(w, r)
	if !ok {
		return
	}
	var req shared.CreateOrderRequest
	if !a.decode(w, r, &req) {
		return
	}
	req.ScheduledDate = strings.TrimSpace(req.ScheduledDate)
	if req.ClientID == "" || req.ScheduledDate == "" || req.QuantityLiters == nil {
		writeErr(w, http.StatusBadRequest, "missing required fields: client_id, scheduled_date, quantity_liters")
		return
	}
	if !validUUID(req.ClientID) {
		writeErr(w, http.StatusBadRequest, "client_id must be a valid UUID")
		return
	}
	if req.QuantityLiters.Float64() <= 0 {
		writeErr(w, http.StatusBadRequest, "quantity_liters must be positive")
		return
	}
	admin, ok := a.requireAdmin(w, r, caller)
	if !ok {
		return
	}

	c, err := a.Store.GetClient(r.Context(), req.ClientID)
	if err != nil {
		a.storeFailed(w, r, err, "get client")
		return
	}
	if c == nil {
		writeErr(w, http.StatusNotFound, "client not found")
		return
	}

	o, err := a.Store.CreateOrder(r.Context(), store.NewOrder{
		ClientID:        c.ID,
		CreatedBy:       admin.ID,
		ScheduledDate:   req.ScheduledDate,
		ScheduledWindow: req.ScheduledWindow,
		QuantityLiters:  req.QuantityLiters.Float64(),
	})
	if err != nil {
		a.storeFailed(w, r, err, "create order")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"data": []store.Order{*o}})
}

func (a *API) ListOrders(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireCaller(w, r); !ok {
		return
	}
	q := r.URL.Query()
	f := store.OrderFilter{
		ClientID:      q.Get("client_id"),
		Status:        q.Get("status"),
		ScheduledDate: q.Get("scheduled_date"),
	}
	if f.ClientID != "" && !validUUID(f.ClientID) {
		writeErr(w, http.StatusBadRequest, "client_id must be a valid UUID")
		return
	}
	list, err := a.Store.ListOrders(r.Context(), f)
	if err != nil {
		a.storeFailed(w, r, err, "list orders")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": list})
}

func (a *API) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.requireCaller(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if !validUUID(id) {
		writeErr(w, http.StatusBadRequest, "invalid order id")
		return
	}
	var req shared.UpdateOrderRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.Empty() {
		writeErr(w, http.StatusBadRequest, "no valid fields to update")
		return
	}
	if req.Status != nil && !store.ValidOrderStatus(*req.Status) {
		writeErr(w, http.StatusBadRequest, "unknown status")
		return
	}
	if req.QuantityLiters != nil && req.QuantityLiters.Float64() <= 0 {
		writeErr(w, http.StatusBadRequest, "quantity_liters must be positive")
		return
	}
	if _, ok := a.requireAdmin(w, r, caller); !ok {
		return
	}

	patch := store.OrderPatch{
		ScheduledDate:   req.ScheduledDate,
		ScheduledWindow: req.ScheduledWindow,
		Status:          req.Status,
	}
	if req.QuantityLiters != nil {
		q := req.QuantityLiters.Float64()
		patch.QuantityLiters = &q
	}
	o, err := a.Store.UpdateOrder(r.Context(), id, patch)
	if err != nil {
		a.storeFailed(w, r, err, "update order")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": []store.Order{*o}})
}

func (a *API) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.requireCaller(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if !validUUID(id) {
		writeErr(w, http.StatusBadRequest, "invalid order id")
		return
	}
	if _, ok := a.requireAdmin(w, r, caller); !ok {
		return
	}
	if err := a.Store.DeleteOrder(r.Context(), id); err != nil {
		a.storeFailed(w, r, err, "delete order")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// ConfirmOrder is called by the client who owns the order. The transition
// itself happens in one conditional store operation; when it changes
// nothing the current row is reported with 200, so retries are safe.
func (a *API) ConfirmOrder(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.requireCaller(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if !validUUID(id) {
		writeErr(w, http.StatusBadRequest, "invalid order id")
		return
	}

	o, err := a.Store.ConfirmOrder(r.Context(), id, caller.ID)
	if err != nil {
		a.storeFailed(w, r, err, "confirm order")
		return
	}
	if o != nil {
		a.Log.Info("order confirmed", zap.String("order_id", id), zap.String("caller", caller.ID))
		writeJSON(w, http.StatusOK, map[string]any{"data": o})
		return
	}

	current, err := a.Store.GetOrder(r.Context(), id)
	if err != nil {
		a.storeFailed(w, r, err, "get order")
		return
	}
	if current == nil {
		writeErr(w, http.StatusNotFound, "order not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": alreadyConfirmedMsg, "data": current})
}
