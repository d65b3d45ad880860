package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"dairyops/internal/shared"
	"dairyops/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const webhookBody = `{"txn_ref":"abc-1","amount":1000}`

func postWebhook(h http.Handler, body, sig string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/webhook/payment", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sig != "" {
		req.Header.Set("x-webhook-signature", sig)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestWebhookSignature(t *testing.T) {
	e := newTestEnv(t)
	good := shared.SignWebhook([]byte(webhookBody), "test-secret")

	rr := postWebhook(e.h, webhookBody, good)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.JSONEq(t, `{"ok":true}`, rr.Body.String())

	rr = postWebhook(e.h, webhookBody, shared.SignaturePrefix+good)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = postWebhook(e.h, webhookBody, strings.ToUpper(good))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = postWebhook(e.h, webhookBody, "bad")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.JSONEq(t, `{"error":"invalid signature"}`, rr.Body.String())

	rr = postWebhook(e.h, webhookBody, "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestWebhookSignsRawBytes(t *testing.T) {
	e := newTestEnv(t)
	// same JSON value, different bytes
	spaced := `{ "txn_ref": "abc-1", "amount": 1000 }`
	sig := shared.SignWebhook([]byte(webhookBody), "test-secret")

	rr := postWebhook(e.h, spaced, sig)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = postWebhook(e.h, spaced, shared.SignWebhook([]byte(spaced), "test-secret"))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestWebhookWithoutSecretIs500(t *testing.T) {
	e := newTestEnv(t)
	e.api.WebhookSecret = ""
	h := e.api.Routes()

	rr := postWebhook(h, webhookBody, shared.SignWebhook([]byte(webhookBody), ""))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"server misconfiguration"}`, rr.Body.String())
}

func TestWebhookSettlesPayment(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	c := e.seedClient(t, "Achieng", "+254700000100")
	o := e.seedOrder(t, c.ID)
	ref := "abc-1"
	p, err := e.mem.CreatePayment(ctx, store.NewPayment{OrderID: o.ID, Amount: 1000, Method: "mpesa", TxnRef: &ref})
	require.NoError(t, err)
	require.Equal(t, store.PaymentPending, p.Status)

	rr := postWebhook(e.h, webhookBody, shared.SignWebhook([]byte(webhookBody), "test-secret"))
	require.Equal(t, http.StatusOK, rr.Code)

	list, err := e.mem.ListPayments(ctx, store.PaymentFilter{OrderID: o.ID})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, store.PaymentPaid, list[0].Status)
	assert.NotNil(t, list[0].PaidAt)

	// replay is acknowledged and changes nothing
	rr = postWebhook(e.h, webhookBody, shared.SignWebhook([]byte(webhookBody), "test-secret"))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestWebhookAcknowledgesUnknownPayload(t *testing.T) {
	e := newTestEnv(t)
	for _, body := range []string{`{"event":"ping"}`, `not json`, `{"txn_ref":"nobody"}`} {
		rr := postWebhook(e.h, body, shared.SignWebhook([]byte(body), "test-secret"))
		assert.Equal(t, http.StatusOK, rr.Code, body)
	}
}

func (e *testEnv) seedPayment(t *testing.T, ref string, amount float64) *store.Order {
	t.Helper()
	c := e.seedClient(t, "Achieng", "+254700000100")
	o := e.seedOrder(t, c.ID)
	_, err := e.mem.CreatePayment(context.Background(), store.NewPayment{OrderID: o.ID, Amount: amount, Method: "mpesa", TxnRef: &ref})
	require.NoError(t, err)
	return o
}

func (e *testEnv) paymentStatus(t *testing.T, orderID string) string {
	t.Helper()
	list, err := e.mem.ListPayments(context.Background(), store.PaymentFilter{OrderID: orderID})
	require.NoError(t, err)
	require.Len(t, list, 1)
	return list[0].Status
}

func TestWebhookIgnoresFailedStatus(t *testing.T) {
	e := newTestEnv(t)
	o := e.seedPayment(t, "abc-9", 1000)

	for _, body := range []string{
		`{"txn_ref":"abc-9","amount":1000,"status":"failed"}`,
		`{"txn_ref":"abc-9","amount":1000,"status":"cancelled"}`,
		`{"txn_ref":"abc-9","amount":1000,"status":"pending"}`,
	} {
		rr := postWebhook(e.h, body, shared.SignWebhook([]byte(body), "test-secret"))
		require.Equal(t, http.StatusOK, rr.Code, body)
		assert.JSONEq(t, `{"ok":true}`, rr.Body.String())
		assert.Equal(t, store.PaymentPending, e.paymentStatus(t, o.ID), body)
	}

	body := `{"txn_ref":"abc-9","amount":1000,"status":"SUCCESS"}`
	rr := postWebhook(e.h, body, shared.SignWebhook([]byte(body), "test-secret"))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, store.PaymentPaid, e.paymentStatus(t, o.ID))
}

func TestWebhookSettlesStringAmount(t *testing.T) {
	e := newTestEnv(t)
	o := e.seedPayment(t, "abc-3", 1000)

	body := `{"txn_ref":"abc-3","amount":"1000","status":"success"}`
	rr := postWebhook(e.h, body, shared.SignWebhook([]byte(body), "test-secret"))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, store.PaymentPaid, e.paymentStatus(t, o.ID))
}

func TestWebhookAmountMismatchLeavesPending(t *testing.T) {
	e := newTestEnv(t)
	o := e.seedPayment(t, "abc-4", 1000)

	for _, body := range []string{
		`{"txn_ref":"abc-4","amount":1,"status":"success"}`,
		`{"txn_ref":"abc-4","amount":"ten","status":"success"}`,
	} {
		rr := postWebhook(e.h, body, shared.SignWebhook([]byte(body), "test-secret"))
		require.Equal(t, http.StatusOK, rr.Code, body)
		assert.Equal(t, store.PaymentPending, e.paymentStatus(t, o.ID), body)
	}

	// no amount: the reference alone settles
	body := `{"txn_ref":"abc-4"}`
	rr := postWebhook(e.h, body, shared.SignWebhook([]byte(body), "test-secret"))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, store.PaymentPaid, e.paymentStatus(t, o.ID))
}
