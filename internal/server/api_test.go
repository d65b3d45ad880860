package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dairyops/internal/identity"
	"dairyops/internal/store"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	adminUID    = "6f1c2d3e-0000-4000-8000-000000000001"
	clientUID   = "6f1c2d3e-0000-4000-8000-000000000002"
	strangerUID = "6f1c2d3e-0000-4000-8000-000000000003"
	missingID   = "00000000-0000-4000-8000-00000000dead"

	adminToken    = "tok-admin"
	clientToken   = "tok-client"
	strangerToken = "tok-stranger"
	brokenToken   = "tok-provider-down"
)

type fakeIdentity struct {
	byToken map[string]identity.User
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{byToken: map[string]identity.User{
		adminToken:    {ID: adminUID, Email: "admin@farm.test"},
		clientToken:   {ID: clientUID, Phone: "+254700000001"},
		strangerToken: {ID: strangerUID},
	}}
}

func (f *fakeIdentity) User(_ context.Context, token string) (*identity.User, error) {
	if token == brokenToken {
		return nil, errors.New("provider down")
	}
	u, ok := f.byToken[token]
	if !ok {
		return nil, identity.ErrUnauthorized
	}
	return &u, nil
}

func (f *fakeIdentity) UserByID(_ context.Context, id string) (*identity.User, error) {
	for _, u := range f.byToken {
		if u.ID == id {
			return &u, nil
		}
	}
	return nil, identity.ErrNotFound
}

type testEnv struct {
	api *API
	mem *store.Memory
	h   http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clk := fakeclock.NewFakeClock(time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC))
	mem := store.NewMemory(clk)
	_, err := mem.CreateAdmin(context.Background(), adminUID)
	require.NoError(t, err)
	api := &API{
		Store:         mem,
		Identity:      newFakeIdentity(),
		WebhookSecret: "test-secret",
		Log:           zaptest.NewLogger(t),
	}
	return &testEnv{api: api, mem: mem, h: api.Routes()}
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

// firstRow returns data[0] of a {"data":[...]} response.
func firstRow(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	body := decodeBody(t, rr)
	rows, ok := body["data"].([]any)
	require.True(t, ok, rr.Body.String())
	require.NotEmpty(t, rows)
	return rows[0].(map[string]any)
}

func (e *testEnv) seedClient(t *testing.T, name, phone string) *store.Client {
	t.Helper()
	c, err := e.mem.CreateClient(context.Background(), store.NewClient{Name: name, Phone: phone, PreferredWindow: store.DefaultPreferredWindow})
	require.NoError(t, err)
	return c
}

func (e *testEnv) seedOrder(t *testing.T, clientID string) *store.Order {
	t.Helper()
	admin, err := e.mem.AdminByAuthUID(context.Background(), adminUID)
	require.NoError(t, err)
	o, err := e.mem.CreateOrder(context.Background(), store.NewOrder{
		ClientID:       clientID,
		CreatedBy:      admin.ID,
		ScheduledDate:  "2024-05-02",
		QuantityLiters: 3,
	})
	require.NoError(t, err)
	return o
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decodeBody(t, rr)["status"])
}

func TestUnknownRouteIsJSON404(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(t, http.MethodGet, "/api/cows", adminToken, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
}

func TestMilkingWithoutAuthorizationIs401(t *testing.T) {
	e := newTestEnv(t)
	for _, body := range []string{"", "{", `{"cow_tag":"A1","milk_liters":4,"milking_time":"2024-05-01T05:00:00Z"}`, `[1,2]`} {
		rr := e.do(t, http.MethodPost, "/api/milking_events", "", body)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, "body %q", body)
	}
}

func TestBearerParsing(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.Header.Set("Authorization", "Basic "+adminToken)
	rr := httptest.NewRecorder()
	e.h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.Header.Set("Authorization", "bearer "+adminToken)
	rr = httptest.NewRecorder()
	e.h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestErrorPrecedence(t *testing.T) {
	e := newTestEnv(t)
	c := e.seedClient(t, "Wanjiru", "+254700000009")

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		body   string
		want   int
	}{
		{"invalid token beats bad body", http.MethodPost, "/api/orders", "nope", "{", http.StatusUnauthorized},
		{"provider failure", http.MethodGet, "/api/orders", brokenToken, "", http.StatusInternalServerError},
		{"bad body beats role", http.MethodPost, "/api/orders", strangerToken, "{", http.StatusBadRequest},
		{"missing fields beat role", http.MethodPost, "/api/orders", strangerToken, `{"client_id":"` + c.ID + `"}`, http.StatusBadRequest},
		{"bad id beats role", http.MethodDelete, "/api/orders/not-a-uuid", strangerToken, "", http.StatusBadRequest},
		{"non-admin", http.MethodPost, "/api/orders", strangerToken, `{"client_id":"` + c.ID + `","scheduled_date":"2024-05-02","quantity_liters":2}`, http.StatusForbidden},
		{"unknown client", http.MethodPost, "/api/orders", adminToken, `{"client_id":"` + missingID + `","scheduled_date":"2024-05-02","quantity_liters":2}`, http.StatusNotFound},
		{"unknown field", http.MethodPost, "/api/clients", adminToken, `{"name":"x","phone":"1","shoe_size":9}`, http.StatusBadRequest},
		{"non-numeric quantity", http.MethodPost, "/api/orders", adminToken, `{"client_id":"` + c.ID + `","scheduled_date":"2024-05-02","quantity_liters":"lots"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := e.do(t, tc.method, tc.path, tc.token, tc.body)
			assert.Equal(t, tc.want, rr.Code, rr.Body.String())
			assert.NotEmpty(t, decodeBody(t, rr)["error"])
		})
	}
}

type failingStore struct {
	*store.Memory
}

func (failingStore) ListOrders(context.Context, store.OrderFilter) ([]store.Order, error) {
	return nil, errors.New("db down")
}

func (failingStore) ListClients(context.Context, store.ClientFilter) ([]store.Client, error) {
	return nil, errors.New("db down")
}

type adminLookupFails struct {
	*store.Memory
}

func (adminLookupFails) AdminByAuthUID(context.Context, string) (*store.Admin, error) {
	return nil, errors.New("db down")
}

func TestStoreFailuresAre500(t *testing.T) {
	e := newTestEnv(t)
	e.api.Store = failingStore{e.mem}
	h := e.api.Routes()

	for _, path := range []string{"/api/orders", "/api/clients"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+adminToken)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusInternalServerError, rr.Code, path)
		assert.Equal(t, "server error", decodeBody(t, rr)["error"])
	}

	e.api.Store = adminLookupFails{e.mem}
	h = e.api.Routes()
	req := httptest.NewRequest(http.MethodGet, "/api/clients", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
