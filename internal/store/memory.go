package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"code.cloudfoundry.org/clock"
	"github.com/google/uuid"
)

// Memory is a process-local Store. It enforces the same uniqueness and
// reference rules as the SQL schema.
type Memory struct {
	mu    sync.Mutex
	clock clock.Clock

	Admins   map[string]*Admin
	Clients  map[string]*Client
	Cows     map[string]*Cow
	Milkings map[string]*MilkingEvent
	Orders   map[string]*Order
	Payments map[string]*Payment
}

func NewMemory(clk clock.Clock) *Memory {
	if clk == nil {
		clk = clock.NewClock()
	}
	return &Memory{
		clock:    clk,
		Admins:   map[string]*Admin{},
		Clients:  map[string]*Client{},
		Cows:     map[string]*Cow{},
		Milkings: map[string]*MilkingEvent{},
		Orders:   map[string]*Order{},
		Payments: map[string]*Payment{},
	}
}

func (m *Memory) now() string {
	return m.clock.Now().UTC().Format(TimeLayout)
}

func (m *Memory) CreateAdmin(_ context.Context, authUID string) (*Admin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.Admins {
		if a.AuthUID == authUID {
			return nil, ErrConflict
		}
	}
	a := &Admin{ID: uuid.NewString(), AuthUID: authUID, CreatedAt: m.now()}
	m.Admins[a.ID] = a
	cp := *a
	return &cp, nil
}

func (m *Memory) AdminByAuthUID(_ context.Context, authUID string) (*Admin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.Admins {
		if a.AuthUID == authUID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Memory) CreateClient(_ context.Context, in NewClient) (*Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.clientWhere(func(c *Client) bool { return c.Phone == in.Phone }) != nil {
		return nil, ErrConflict
	}
	c := &Client{
		ID:              uuid.NewString(),
		Name:            in.Name,
		Phone:           in.Phone,
		Address:         in.Address,
		PreferredWindow: in.PreferredWindow,
		CreatedAt:       m.now(),
	}
	m.Clients[c.ID] = c
	cp := *c
	return &cp, nil
}

// clientWhere must be called with mu held.
func (m *Memory) clientWhere(match func(*Client) bool) *Client {
	for _, c := range m.Clients {
		if match(c) {
			return c
		}
	}
	return nil
}

func (m *Memory) findClient(match func(*Client) bool) *Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.clientWhere(match); c != nil {
		cp := *c
		return &cp
	}
	return nil
}

func (m *Memory) GetClient(_ context.Context, id string) (*Client, error) {
	return m.findClient(func(c *Client) bool { return c.ID == id }), nil
}

func (m *Memory) ClientByPhone(_ context.Context, phone string) (*Client, error) {
	return m.findClient(func(c *Client) bool { return c.Phone == phone }), nil
}

func (m *Memory) ClientByAuthUser(_ context.Context, authUserID string) (*Client, error) {
	return m.findClient(func(c *Client) bool { return c.AuthUserID != nil && *c.AuthUserID == authUserID }), nil
}

func (m *Memory) ListClients(_ context.Context, f ClientFilter) ([]Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Client{}
	name := strings.ToLower(f.Name)
	for _, c := range m.Clients {
		if f.Phone != "" && c.Phone != f.Phone {
			continue
		}
		if name != "" && !strings.Contains(strings.ToLower(c.Name), name) {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

func (m *Memory) UpdateClient(_ context.Context, id string, p ClientPatch) (*Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.Clients[id]
	if !ok {
		return nil, ErrNotFound
	}
	if p.Phone != nil && m.clientWhere(func(o *Client) bool { return o.ID != id && o.Phone == *p.Phone }) != nil {
		return nil, ErrConflict
	}
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Phone != nil {
		c.Phone = *p.Phone
	}
	if p.Address != nil {
		c.Address = p.Address
	}
	if p.PreferredWindow != nil {
		c.PreferredWindow = *p.PreferredWindow
	}
	cp := *c
	return &cp, nil
}

func (m *Memory) DeleteClient(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Clients[id]; !ok {
		return ErrNotFound
	}
	for _, o := range m.Orders {
		if o.ClientID == id {
			return ErrConflict
		}
	}
	delete(m.Clients, id)
	return nil
}

func (m *Memory) LinkClient(_ context.Context, id, authUserID string) (*Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.Clients[id]
	if !ok {
		return nil, ErrNotFound
	}
	if c.AuthUserID != nil && *c.AuthUserID != authUserID {
		return nil, ErrConflict
	}
	if m.clientWhere(func(o *Client) bool {
		return o.ID != id && o.AuthUserID != nil && *o.AuthUserID == authUserID
	}) != nil {
		return nil, ErrConflict
	}
	uid := authUserID
	c.AuthUserID = &uid
	cp := *c
	return &cp, nil
}

func (m *Memory) CreateCow(_ context.Context, tag string) (*Cow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.Cows {
		if c.Tag == tag {
			return nil, ErrConflict
		}
	}
	c := &Cow{ID: uuid.NewString(), Tag: tag, CreatedAt: m.now()}
	m.Cows[c.ID] = c
	cp := *c
	return &cp, nil
}

func (m *Memory) GetCow(_ context.Context, id string) (*Cow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.Cows[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (m *Memory) CowByTag(_ context.Context, tag string) (*Cow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.Cows {
		if c.Tag == tag {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Memory) CreateMilkingEvent(_ context.Context, in NewMilkingEvent) (*MilkingEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Cows[in.CowID]; !ok {
		return nil, ErrConflict
	}
	e := &MilkingEvent{
		ID:          uuid.NewString(),
		CowID:       in.CowID,
		MilkLiters:  in.MilkLiters,
		MilkingTime: in.MilkingTime,
		RecordedBy:  in.RecordedBy,
		CreatedAt:   m.now(),
	}
	m.Milkings[e.ID] = e
	cp := *e
	return &cp, nil
}

func (m *Memory) ListMilkingEvents(_ context.Context, f MilkingFilter) ([]MilkingEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []MilkingEvent{}
	for _, e := range m.Milkings {
		if f.CowID != "" && e.CowID != f.CowID {
			continue
		}
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MilkingTime < out[j].MilkingTime })
	return out, nil
}

func (m *Memory) CreateOrder(_ context.Context, in NewOrder) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Clients[in.ClientID]; !ok {
		return nil, ErrConflict
	}
	o := &Order{
		ID:              uuid.NewString(),
		ClientID:        in.ClientID,
		CreatedBy:       in.CreatedBy,
		ScheduledDate:   in.ScheduledDate,
		ScheduledWindow: in.ScheduledWindow,
		QuantityLiters:  in.QuantityLiters,
		Status:          OrderPending,
		CreatedAt:       m.now(),
	}
	m.Orders[o.ID] = o
	cp := *o
	return &cp, nil
}

func (m *Memory) GetOrder(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.Orders[id]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, nil
}

func (m *Memory) ListOrders(_ context.Context, f OrderFilter) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Order{}
	for _, o := range m.Orders {
		if f.ClientID != "" && o.ClientID != f.ClientID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.ScheduledDate != "" && o.ScheduledDate != f.ScheduledDate {
			continue
		}
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

func (m *Memory) UpdateOrder(_ context.Context, id string, p OrderPatch) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.Orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	if p.ScheduledDate != nil {
		o.ScheduledDate = *p.ScheduledDate
	}
	if p.ScheduledWindow != nil {
		o.ScheduledWindow = p.ScheduledWindow
	}
	if p.QuantityLiters != nil {
		o.QuantityLiters = *p.QuantityLiters
	}
	if p.Status != nil {
		o.Status = *p.Status
	}
	cp := *o
	return &cp, nil
}

func (m *Memory) DeleteOrder(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Orders[id]; !ok {
		return ErrNotFound
	}
	for _, p := range m.Payments {
		if p.OrderID == id {
			return ErrConflict
		}
	}
	delete(m.Orders, id)
	return nil
}

func (m *Memory) ConfirmOrder(_ context.Context, id, callerID string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.Orders[id]
	if !ok || o.Status != OrderPending {
		return nil, nil
	}
	c, ok := m.Clients[o.ClientID]
	if !ok || c.AuthUserID == nil || *c.AuthUserID != callerID {
		return nil, nil
	}
	o.Status = OrderConfirmed
	cp := *o
	return &cp, nil
}

func (m *Memory) CreatePayment(_ context.Context, in NewPayment) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Orders[in.OrderID]; !ok {
		return nil, ErrConflict
	}
	p := &Payment{
		ID:        uuid.NewString(),
		OrderID:   in.OrderID,
		Amount:    in.Amount,
		Method:    in.Method,
		TxnRef:    in.TxnRef,
		Status:    PaymentPending,
		CreatedAt: m.now(),
	}
	m.Payments[p.ID] = p
	cp := *p
	return &cp, nil
}

func (m *Memory) ListPayments(_ context.Context, f PaymentFilter) ([]Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Payment{}
	for _, p := range m.Payments {
		if f.OrderID != "" && p.OrderID != f.OrderID {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

func (m *Memory) MarkPaymentPaid(_ context.Context, txnRef string, amount *float64) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var first *Payment
	now := m.now()
	for _, p := range m.Payments {
		if p.TxnRef == nil || *p.TxnRef != txnRef || p.Status != PaymentPending {
			continue
		}
		if amount != nil && p.Amount != *amount {
			continue
		}
		p.Status = PaymentPaid
		paidAt := now
		p.PaidAt = &paidAt
		if first == nil {
			cp := *p
			first = &cp
		}
	}
	return first, nil
}
