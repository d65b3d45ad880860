package server

import (
	"net/http"
	"strings"

	"dairyops/internal/shared"
	"dairyops/internal/store"
)

// CreatePayment records a manual payment against an order.
func (a *API) CreatePayment(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.requireCaller(w, r)
	if !ok {
		return
	}
	var req shared.CreatePaymentRequest
	if !a.decode(w, r, &req) {
		return
	}
	req.Method = strings.TrimSpace(req.Method)
	if req.OrderID == "" || req.Amount == nil || req.Method == "" {
		writeErr(w, http.StatusBadRequest, "missing order_id, amount or method")
		return
	}
	if !validUUID(req.OrderID) {
		writeErr(w, http.StatusBadRequest, "order_id must be a valid UUID")
		return
	}
	if req.Amount.Float64() <= 0 {
		writeErr(w, http.StatusBadRequest, "amount must be positive")
		return
	}
	if _, ok := a.requireAdmin(w, r, caller); !ok {
		return
	}

	o, err := a.Store.GetOrder(r.Context(), req.OrderID)
	if err != nil {
		a.storeFailed(w, r, err, "get order")
		return
	}
	if o == nil {
		writeErr(w, http.StatusNotFound, "order not found")
		return
	}

	p, err := a.Store.CreatePayment(r.Context(), store.NewPayment{
		OrderID: o.ID,
		Amount:  req.Amount.Float64(),
		Method:  req.Method,
		TxnRef:  req.TxnRef,
	})
	if err != nil {
		a.storeFailed(w, r, err, "create payment")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"data": []store.Payment{*p}})
}

func (a *API) ListPayments(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireCaller(w, r); !ok {
		return
	}
	orderID := r.URL.Query().Get("order_id")
	if orderID != "" && !validUUID(orderID) {
		writeErr(w, http.StatusBadRequest, "order_id must be a valid UUID")
		return
	}
	list, err := a.Store.ListPayments(r.Context(), store.PaymentFilter{OrderID: orderID})
	if err != nil {
		a.storeFailed(w, r, err, "list payments")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": list})
}
