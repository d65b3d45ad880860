package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"dairyops/internal/shared"

	"go.uber.org/zap"
)

// PaymentWebhook authenticates a payment-provider callback. The HMAC is
// computed over the body bytes exactly as received.
func (a *API) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	if a.WebhookSecret == "" {
		a.Log.Error("webhook secret is not configured")
		writeErr(w, http.StatusInternalServerError, "server misconfiguration")
		return
	}

	body, err := readBody(r)
	if err != nil {
		writeErr(w, http.StatusForbidden, "invalid signature")
		return
	}

	sig := strings.TrimSpace(r.Header.Get(shared.SignatureHeader))
	if !shared.VerifyWebhookSignature(body, sig, a.WebhookSecret) {
		a.Log.Warn("webhook signature mismatch",
			zap.Bool("header_present", sig != ""),
			zap.Int("header_len", len(sig)),
			zap.Int("body_len", len(body)),
		)
		writeErr(w, http.StatusForbidden, "invalid signature")
		return
	}

	// The event is authentic; anything we cannot act on is acknowledged so
	// the provider stops retrying.
	var ev shared.WebhookPaymentEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		a.Log.Warn("webhook payload not understood", zap.Error(err))
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}
	if ev.TxnRef == "" {
		a.Log.Info("webhook accepted without txn_ref")
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}
	if !ev.Settles() {
		a.Log.Info("webhook status does not settle", zap.String("txn_ref", ev.TxnRef), zap.String("status", ev.Status))
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	var amount *float64
	if ev.Amount != nil {
		f := ev.Amount.Float64()
		amount = &f
	}
	p, err := a.Store.MarkPaymentPaid(r.Context(), ev.TxnRef, amount)
	if err != nil {
		a.storeFailed(w, r, err, "mark payment paid")
		return
	}
	if p == nil {
		a.Log.Warn("webhook matched no pending payment",
			zap.String("txn_ref", ev.TxnRef),
			zap.Bool("amount_checked", amount != nil),
		)
	} else {
		a.Log.Info("payment settled", zap.String("payment_id", p.ID), zap.String("txn_ref", ev.TxnRef))
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
