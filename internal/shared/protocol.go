package shared

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

type CreateClientRequest struct {
	Name            string  `json:"name"`
	Phone           string  `json:"phone"`
	Address         *string `json:"address,omitempty"`
	PreferredWindow string  `json:"preferred_window,omitempty"`
}

// UpdateClientRequest carries only the fields present in the body.
type UpdateClientRequest struct {
	Name            *string `json:"name,omitempty"`
	Phone           *string `json:"phone,omitempty"`
	Address         *string `json:"address,omitempty"`
	PreferredWindow *string `json:"preferred_window,omitempty"`
}

func (r UpdateClientRequest) Empty() bool {
	return r.Name == nil && r.Phone == nil && r.Address == nil && r.PreferredWindow == nil
}

type LinkClientRequest struct {
	AuthUserID string `json:"auth_user_id"`
}

type LinkSelfRequest struct {
	Phone    string `json:"phone,omitempty"`
	ClientID string `json:"client_id,omitempty"`
}

type CreateMilkingEventRequest struct {
	CowID       string  `json:"cow_id,omitempty"`
	CowTag      string  `json:"cow_tag,omitempty"`
	MilkLiters  *Number `json:"milk_liters"`
	MilkingTime string  `json:"milking_time"`
}

type CreateOrderRequest struct {
	ClientID        string  `json:"client_id"`
	ScheduledDate   string  `json:"scheduled_date"`
	ScheduledWindow *string `json:"scheduled_window,omitempty"`
	QuantityLiters  *Number `json:"quantity_liters"`
}

type UpdateOrderRequest struct {
	ScheduledDate   *string `json:"scheduled_date,omitempty"`
	ScheduledWindow *string `json:"scheduled_window,omitempty"`
	QuantityLiters  *Number `json:"quantity_liters,omitempty"`
	Status          *string `json:"status,omitempty"`
}

func (r UpdateOrderRequest) Empty() bool {
	return r.ScheduledDate == nil && r.ScheduledWindow == nil && r.QuantityLiters == nil && r.Status == nil
}

type CreatePaymentRequest struct {
	OrderID string  `json:"order_id"`
	Amount  *Number `json:"amount"`
	Method  string  `json:"method"`
	TxnRef  *string `json:"txn_ref,omitempty"`
}

// WebhookPaymentEvent is the subset of the provider payload we act on.
type WebhookPaymentEvent struct {
	TxnRef string  `json:"txn_ref"`
	Amount *Number `json:"amount,omitempty"`
	Status string  `json:"status,omitempty"`
}

// Settles reports whether the event marks a payment as paid. A missing
// status counts as success.
func (e WebhookPaymentEvent) Settles() bool {
	switch strings.ToLower(strings.TrimSpace(e.Status)) {
	case "", "success", "succeeded", "paid", "completed":
		return true
	}
	return false
}

var ErrNotNumeric = errors.New("not a number")

// Number accepts either a JSON number or a string holding one.
type Number float64

func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return ErrNotNumeric
	}
	var raw json.Number
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return ErrNotNumeric
		}
		raw = json.Number(strings.TrimSpace(s))
	} else {
		raw = json.Number(b)
	}
	f, err := strconv.ParseFloat(raw.String(), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return ErrNotNumeric
	}
	*n = Number(f)
	return nil
}

func (n Number) Float64() float64 { return float64(n) }

// NumberOf returns a pointer to f as a Number.
func NumberOf(f float64) *Number {
	n := Number(f)
	return &n
}
