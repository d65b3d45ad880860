// Package store persists the dairy records behind the HTTP API.
//
// Lookups return (nil, nil) when the row does not exist. Mutations that
// target a specific row return ErrNotFound instead, and ErrConflict when a
// uniqueness or reference constraint rejects the write.
package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

const (
	OrderPending   = "pending"
	OrderConfirmed = "confirmed"
	OrderDelivered = "delivered"
	OrderCancelled = "cancelled"

	PaymentPending = "pending"
	PaymentPaid    = "paid"

	DefaultPreferredWindow = "morning"

	// TimeLayout is fixed-width so stored timestamps sort lexically in time
	// order.
	TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// ValidOrderStatus reports whether s is a status an order may hold.
func ValidOrderStatus(s string) bool {
	switch s {
	case OrderPending, OrderConfirmed, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

type Admin struct {
	ID        string `json:"id"`
	AuthUID   string `json:"auth_uid"`
	CreatedAt string `json:"created_at"`
}

type Client struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Phone           string  `json:"phone"`
	Address         *string `json:"address"`
	PreferredWindow string  `json:"preferred_window"`
	AuthUserID      *string `json:"auth_user_id"`
	CreatedAt       string  `json:"created_at"`
}

type Cow struct {
	ID        string `json:"id"`
	Tag       string `json:"tag"`
	CreatedAt string `json:"created_at"`
}

type MilkingEvent struct {
	ID          string  `json:"id"`
	CowID       string  `json:"cow_id"`
	MilkLiters  float64 `json:"milk_liters"`
	MilkingTime string  `json:"milking_time"`
	RecordedBy  string  `json:"recorded_by"`
	CreatedAt   string  `json:"created_at"`
}

type Order struct {
	ID              string  `json:"id"`
	ClientID        string  `json:"client_id"`
	CreatedBy       string  `json:"created_by"`
	ScheduledDate   string  `json:"scheduled_date"`
	ScheduledWindow *string `json:"scheduled_window"`
	QuantityLiters  float64 `json:"quantity_liters"`
	Status          string  `json:"status"`
	CreatedAt       string  `json:"created_at"`
}

type Payment struct {
	ID        string  `json:"id"`
	OrderID   string  `json:"order_id"`
	Amount    float64 `json:"amount"`
	Method    string  `json:"method"`
	TxnRef    *string `json:"txn_ref"`
	Status    string  `json:"status"`
	PaidAt    *string `json:"paid_at"`
	CreatedAt string  `json:"created_at"`
}

type NewClient struct {
	Name            string
	Phone           string
	Address         *string
	PreferredWindow string
}

// ClientPatch holds the fields to change; nil means leave as is.
type ClientPatch struct {
	Name            *string
	Phone           *string
	Address         *string
	PreferredWindow *string
}

type ClientFilter struct {
	Phone string
	Name  string // case-insensitive substring
}

type NewMilkingEvent struct {
	CowID       string
	MilkLiters  float64
	MilkingTime string
	RecordedBy  string
}

type MilkingFilter struct {
	CowID string
}

type NewOrder struct {
	ClientID        string
	CreatedBy       string
	ScheduledDate   string
	ScheduledWindow *string
	QuantityLiters  float64
}

type OrderPatch struct {
	ScheduledDate   *string
	ScheduledWindow *string
	QuantityLiters  *float64
	Status          *string
}

type OrderFilter struct {
	ClientID      string
	Status        string
	ScheduledDate string
}

type NewPayment struct {
	OrderID string
	Amount  float64
	Method  string
	TxnRef  *string
}

type PaymentFilter struct {
	OrderID string
}

type Store interface {
	CreateAdmin(ctx context.Context, authUID string) (*Admin, error)
	AdminByAuthUID(ctx context.Context, authUID string) (*Admin, error)

	CreateClient(ctx context.Context, in NewClient) (*Client, error)
	GetClient(ctx context.Context, id string) (*Client, error)
	ClientByPhone(ctx context.Context, phone string) (*Client, error)
	ClientByAuthUser(ctx context.Context, authUserID string) (*Client, error)
	ListClients(ctx context.Context, f ClientFilter) ([]Client, error)
	UpdateClient(ctx context.Context, id string, p ClientPatch) (*Client, error)
	DeleteClient(ctx context.Context, id string) error
	// LinkClient binds authUserID to the client row. It fails with
	// ErrConflict if another row already carries that identity or the row
	// is bound to a different one.
	LinkClient(ctx context.Context, id, authUserID string) (*Client, error)

	CreateCow(ctx context.Context, tag string) (*Cow, error)
	GetCow(ctx context.Context, id string) (*Cow, error)
	CowByTag(ctx context.Context, tag string) (*Cow, error)

	CreateMilkingEvent(ctx context.Context, in NewMilkingEvent) (*MilkingEvent, error)
	ListMilkingEvents(ctx context.Context, f MilkingFilter) ([]MilkingEvent, error)

	CreateOrder(ctx context.Context, in NewOrder) (*Order, error)
	GetOrder(ctx context.Context, id string) (*Order, error)
	ListOrders(ctx context.Context, f OrderFilter) ([]Order, error)
	UpdateOrder(ctx context.Context, id string, p OrderPatch) (*Order, error)
	DeleteOrder(ctx context.Context, id string) error
	// ConfirmOrder moves a pending order owned by the client linked to
	// callerID to confirmed, atomically. It returns (nil, nil) when nothing
	// changed: the order is not pending, does not exist, or is not the
	// caller's. The result does not say which.
	ConfirmOrder(ctx context.Context, id, callerID string) (*Order, error)

	CreatePayment(ctx context.Context, in NewPayment) (*Payment, error)
	ListPayments(ctx context.Context, f PaymentFilter) ([]Payment, error)
	// MarkPaymentPaid settles pending payments carrying txnRef. A non-nil
	// amount must also equal the stored amount. It returns (nil, nil) if
	// none matched.
	MarkPaymentPaid(ctx context.Context, txnRef string, amount *float64) (*Payment, error)
}
