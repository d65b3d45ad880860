package server

import (
	"context"
	"net/http"
	"testing"

	"dairyops/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndListPayments(t *testing.T) {
	e := newTestEnv(t)
	c := e.seedClient(t, "Jeptoo", "+254790000001")
	o := e.seedOrder(t, c.ID)

	rr := e.do(t, http.MethodPost, "/api/payments", adminToken, `{"order_id":"`+o.ID+`","amount":"150.5","method":"mpesa","txn_ref":"QX12"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	row := firstRow(t, rr)
	assert.Equal(t, 150.5, row["amount"])
	assert.Equal(t, store.PaymentPending, row["status"])
	assert.Equal(t, "QX12", row["txn_ref"])
	assert.Nil(t, row["paid_at"])

	cases := map[string]struct {
		body string
		want int
	}{
		"missing method":  {`{"order_id":"` + o.ID + `","amount":10}`, http.StatusBadRequest},
		"zero amount":     {`{"order_id":"` + o.ID + `","amount":0,"method":"cash"}`, http.StatusBadRequest},
		"text amount":     {`{"order_id":"` + o.ID + `","amount":"ten","method":"cash"}`, http.StatusBadRequest},
		"bad order id":    {`{"order_id":"x","amount":10,"method":"cash"}`, http.StatusBadRequest},
		"unknown order":   {`{"order_id":"` + missingID + `","amount":10,"method":"cash"}`, http.StatusNotFound},
		"negative amount": {`{"order_id":"` + o.ID + `","amount":-1,"method":"cash"}`, http.StatusBadRequest},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rr := e.do(t, http.MethodPost, "/api/payments", adminToken, tc.body)
			assert.Equal(t, tc.want, rr.Code, rr.Body.String())
		})
	}

	rr = e.do(t, http.MethodPost, "/api/payments", clientToken, `{"order_id":"`+o.ID+`","amount":10,"method":"cash"}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = e.do(t, http.MethodGet, "/api/payments?order_id="+o.ID, clientToken, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody(t, rr)["data"], 1)

	rr = e.do(t, http.MethodGet, "/api/payments?order_id=nope", adminToken, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// payments pin their order
	rr = e.do(t, http.MethodDelete, "/api/orders/"+o.ID, adminToken, "")
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestMilkingEvents(t *testing.T) {
	e := newTestEnv(t)
	cow, err := e.mem.CreateCow(context.Background(), "KE-042")
	require.NoError(t, err)

	rr := e.do(t, http.MethodPost, "/api/milking_events", adminToken, `{"cow_tag":"KE-042","milk_liters":11.5,"milking_time":"2024-05-01T05:30:00Z"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	row := firstRow(t, rr)
	assert.Equal(t, cow.ID, row["cow_id"])
	assert.Equal(t, 11.5, row["milk_liters"])
	assert.NotEmpty(t, row["recorded_by"])

	rr = e.do(t, http.MethodPost, "/api/milking_events", adminToken, `{"cow_id":"`+cow.ID+`","milk_liters":"0","milking_time":"2024-05-01T17:30:00Z"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	cases := map[string]struct {
		body string
		want int
	}{
		"no cow":         {`{"milk_liters":3,"milking_time":"t"}`, http.StatusBadRequest},
		"no liters":      {`{"cow_tag":"KE-042","milking_time":"t"}`, http.StatusBadRequest},
		"no time":        {`{"cow_tag":"KE-042","milk_liters":3}`, http.StatusBadRequest},
		"bad cow id":     {`{"cow_id":"42","milk_liters":3,"milking_time":"t"}`, http.StatusBadRequest},
		"negative":       {`{"cow_tag":"KE-042","milk_liters":-1,"milking_time":"t"}`, http.StatusBadRequest},
		"text liters":    {`{"cow_tag":"KE-042","milk_liters":"a lot","milking_time":"t"}`, http.StatusBadRequest},
		"unknown tag":    {`{"cow_tag":"KE-999","milk_liters":3,"milking_time":"t"}`, http.StatusNotFound},
		"unknown cow id": {`{"cow_id":"` + missingID + `","milk_liters":3,"milking_time":"t"}`, http.StatusNotFound},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rr := e.do(t, http.MethodPost, "/api/milking_events", adminToken, tc.body)
			assert.Equal(t, tc.want, rr.Code, rr.Body.String())
		})
	}

	rr = e.do(t, http.MethodPost, "/api/milking_events", clientToken, `{"cow_tag":"KE-042","milk_liters":3,"milking_time":"t"}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = e.do(t, http.MethodGet, "/api/milking_events?cow_id="+cow.ID, adminToken, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody(t, rr)["data"], 2)

	rr = e.do(t, http.MethodGet, "/api/milking_events", clientToken, "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
}
