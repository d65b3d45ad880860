package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strconv"
	"strings"

	"code.cloudfoundry.org/clock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	adminCols   = `id, auth_uid, created_at`
	clientCols  = `id, name, phone, address, preferred_window, auth_user_id, created_at`
	cowCols     = `id, tag, created_at`
	milkingCols = `id, cow_id, milk_liters, milking_time, recorded_by, created_at`
	orderCols   = `id, client_id, created_by, scheduled_date, scheduled_window, quantity_liters, status, created_at`
	paymentCols = `id, order_id, amount, method, txn_ref, status, paid_at, created_at`
)

// SQLStore implements Store on database/sql. Queries are written with "?"
// placeholders and rebound to "$n" for PostgreSQL.
type SQLStore struct {
	DB     *sql.DB
	driver string
	clock  clock.Clock
}

func NewSQLStore(db *sql.DB, driver string, clk clock.Clock) *SQLStore {
	if clk == nil {
		clk = clock.NewClock()
	}
	return &SQLStore{DB: db, driver: driver, clock: clk}
}

func (s *SQLStore) now() string {
	return s.clock.Now().UTC().Format(TimeLayout)
}

func (s *SQLStore) rebind(q string) string {
	return rebind(s.driver, q)
}

// rebind rewrites "?" placeholders to "$n" for postgres.
func rebind(driver, q string) string {
	if driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return s.DB.ExecContext(ctx, s.rebind(q), args...)
}

func (s *SQLStore) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return s.DB.QueryContext(ctx, s.rebind(q), args...)
}

func (s *SQLStore) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return s.DB.QueryRowContext(ctx, s.rebind(q), args...)
}

// classify maps driver constraint violations to ErrConflict.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "23503":
			return ErrConflict
		}
		return err
	}
	var liteErr *sqlite.Error
	if stderrors.As(err, &liteErr) && liteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		return ErrConflict
	}
	return err
}

func wrap(err error, op string) error {
	if err == nil {
		return nil
	}
	if c := classify(err); c == ErrConflict {
		return c
	}
	return errors.Wrap(err, op)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAdmin(r scanner) (*Admin, error) {
	var a Admin
	if err := r.Scan(&a.ID, &a.AuthUID, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func scanClient(r scanner) (*Client, error) {
	var c Client
	if err := r.Scan(&c.ID, &c.Name, &c.Phone, &c.Address, &c.PreferredWindow, &c.AuthUserID, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanCow(r scanner) (*Cow, error) {
	var c Cow
	if err := r.Scan(&c.ID, &c.Tag, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanMilking(r scanner) (*MilkingEvent, error) {
	var e MilkingEvent
	if err := r.Scan(&e.ID, &e.CowID, &e.MilkLiters, &e.MilkingTime, &e.RecordedBy, &e.CreatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func scanOrder(r scanner) (*Order, error) {
	var o Order
	if err := r.Scan(&o.ID, &o.ClientID, &o.CreatedBy, &o.ScheduledDate, &o.ScheduledWindow, &o.QuantityLiters, &o.Status, &o.CreatedAt); err != nil {
		return nil, err
	}
	return &o, nil
}

func scanPayment(r scanner) (*Payment, error) {
	var p Payment
	if err := r.Scan(&p.ID, &p.OrderID, &p.Amount, &p.Method, &p.TxnRef, &p.Status, &p.PaidAt, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// one runs a single-row query. A missing row yields (nil, nil).
func one[T any](row *sql.Row, scan func(scanner) (*T, error), op string) (*T, error) {
	v, err := scan(row)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrap(err, op)
	}
	return v, nil
}

func many[T any](rows *sql.Rows, scan func(scanner) (*T, error), op string) ([]T, error) {
	defer rows.Close()
	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, wrap(err, op)
		}
		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(err, op)
	}
	return out, nil
}

// where joins conditions built with "?" placeholders.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, arg any) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, arg)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// set accumulates "col = ?" assignments for a partial update.
type set struct {
	cols []string
	args []any
}

func (s *set) add(col string, arg any) {
	s.cols = append(s.cols, col+" = ?")
	s.args = append(s.args, arg)
}

func likeEscape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func (s *SQLStore) CreateAdmin(ctx context.Context, authUID string) (*Admin, error) {
	a := &Admin{ID: uuid.NewString(), AuthUID: authUID, CreatedAt: s.now()}
	if _, err := s.exec(ctx,
		`INSERT INTO admins (`+adminCols+`) VALUES (?, ?, ?)`,
		a.ID, a.AuthUID, a.CreatedAt,
	); err != nil {
		return nil, wrap(err, "insert admin")
	}
	return a, nil
}

func (s *SQLStore) AdminByAuthUID(ctx context.Context, authUID string) (*Admin, error) {
	row := s.queryRow(ctx, `SELECT `+adminCols+` FROM admins WHERE auth_uid = ? LIMIT 1`, authUID)
	return one(row, scanAdmin, "select admin")
}

func (s *SQLStore) CreateClient(ctx context.Context, in NewClient) (*Client, error) {
	c := &Client{
		ID:              uuid.NewString(),
		Name:            in.Name,
		Phone:           in.Phone,
		Address:         in.Address,
		PreferredWindow: in.PreferredWindow,
		CreatedAt:       s.now(),
	}
	if _, err := s.exec(ctx,
		`INSERT INTO clients (`+clientCols+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Phone, c.Address, c.PreferredWindow, c.AuthUserID, c.CreatedAt,
	); err != nil {
		return nil, wrap(err, "insert client")
	}
	return c, nil
}

func (s *SQLStore) GetClient(ctx context.Context, id string) (*Client, error) {
	row := s.queryRow(ctx, `SELECT `+clientCols+` FROM clients WHERE id = ?`, id)
	return one(row, scanClient, "select client")
}

func (s *SQLStore) ClientByPhone(ctx context.Context, phone string) (*Client, error) {
	row := s.queryRow(ctx, `SELECT `+clientCols+` FROM clients WHERE phone = ? LIMIT 1`, phone)
	return one(row, scanClient, "select client by phone")
}

func (s *SQLStore) ClientByAuthUser(ctx context.Context, authUserID string) (*Client, error) {
	row := s.queryRow(ctx, `SELECT `+clientCols+` FROM clients WHERE auth_user_id = ? LIMIT 1`, authUserID)
	return one(row, scanClient, "select client by auth user")
}

func (s *SQLStore) ListClients(ctx context.Context, f ClientFilter) ([]Client, error) {
	var w where
	if f.Phone != "" {
		w.add("phone = ?", f.Phone)
	}
	if f.Name != "" {
		w.add(`LOWER(name) LIKE ? ESCAPE '\'`, "%"+strings.ToLower(likeEscape(f.Name))+"%")
	}
	rows, err := s.query(ctx, `SELECT `+clientCols+` FROM clients`+w.String()+` ORDER BY created_at`, w.args...)
	if err != nil {
		return nil, wrap(err, "list clients")
	}
	return many(rows, scanClient, "list clients")
}

func (s *SQLStore) UpdateClient(ctx context.Context, id string, p ClientPatch) (*Client, error) {
	var st set
	if p.Name != nil {
		st.add("name", *p.Name)
	}
	if p.Phone != nil {
		st.add("phone", *p.Phone)
	}
	if p.Address != nil {
		st.add("address", *p.Address)
	}
	if p.PreferredWindow != nil {
		st.add("preferred_window", *p.PreferredWindow)
	}
	if len(st.cols) == 0 {
		return s.mustClient(ctx, id)
	}
	row := s.queryRow(ctx,
		`UPDATE clients SET `+strings.Join(st.cols, ", ")+` WHERE id = ? RETURNING `+clientCols,
		append(st.args, id)...,
	)
	c, err := one(row, scanClient, "update client")
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrNotFound
	}
	return c, nil
}

func (s *SQLStore) mustClient(ctx context.Context, id string) (*Client, error) {
	c, err := s.GetClient(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrNotFound
	}
	return c, nil
}

func (s *SQLStore) DeleteClient(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "clients", id)
}

func (s *SQLStore) deleteByID(ctx context.Context, table, id string) error {
	res, err := s.exec(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return wrap(err, "delete from "+table)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) LinkClient(ctx context.Context, id, authUserID string) (*Client, error) {
	row := s.queryRow(ctx,
		`UPDATE clients SET auth_user_id = ?
		 WHERE id = ? AND (auth_user_id IS NULL OR auth_user_id = ?)
		 RETURNING `+clientCols,
		authUserID, id, authUserID,
	)
	c, err := one(row, scanClient, "link client")
	if err != nil {
		return nil, err
	}
	if c != nil {
		return c, nil
	}
	// nothing updated: either no such row or it is bound to someone else
	existing, err := s.GetClient(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrNotFound
	}
	return nil, ErrConflict
}

func (s *SQLStore) CreateCow(ctx context.Context, tag string) (*Cow, error) {
	c := &Cow{ID: uuid.NewString(), Tag: tag, CreatedAt: s.now()}
	if _, err := s.exec(ctx,
		`INSERT INTO cows (`+cowCols+`) VALUES (?, ?, ?)`,
		c.ID, c.Tag, c.CreatedAt,
	); err != nil {
		return nil, wrap(err, "insert cow")
	}
	return c, nil
}

func (s *SQLStore) GetCow(ctx context.Context, id string) (*Cow, error) {
	row := s.queryRow(ctx, `SELECT `+cowCols+` FROM cows WHERE id = ?`, id)
	return one(row, scanCow, "select cow")
}

func (s *SQLStore) CowByTag(ctx context.Context, tag string) (*Cow, error) {
	row := s.queryRow(ctx, `SELECT `+cowCols+` FROM cows WHERE tag = ? LIMIT 1`, tag)
	return one(row, scanCow, "select cow by tag")
}

func (s *SQLStore) CreateMilkingEvent(ctx context.Context, in NewMilkingEvent) (*MilkingEvent, error) {
	e := &MilkingEvent{
		ID:          uuid.NewString(),
		CowID:       in.CowID,
		MilkLiters:  in.MilkLiters,
		MilkingTime: in.MilkingTime,
		RecordedBy:  in.RecordedBy,
		CreatedAt:   s.now(),
	}
	if _, err := s.exec(ctx,
		`INSERT INTO milking_events (`+milkingCols+`) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.CowID, e.MilkLiters, e.MilkingTime, e.RecordedBy, e.CreatedAt,
	); err != nil {
		return nil, wrap(err, "insert milking event")
	}
	return e, nil
}

func (s *SQLStore) ListMilkingEvents(ctx context.Context, f MilkingFilter) ([]MilkingEvent, error) {
	var w where
	if f.CowID != "" {
		w.add("cow_id = ?", f.CowID)
	}
	rows, err := s.query(ctx, `SELECT `+milkingCols+` FROM milking_events`+w.String()+` ORDER BY milking_time`, w.args...)
	if err != nil {
		return nil, wrap(err, "list milking events")
	}
	return many(rows, scanMilking, "list milking events")
}

func (s *SQLStore) CreateOrder(ctx context.Context, in NewOrder) (*Order, error) {
	o := &Order{
		ID:              uuid.NewString(),
		ClientID:        in.ClientID,
		CreatedBy:       in.CreatedBy,
		ScheduledDate:   in.ScheduledDate,
		ScheduledWindow: in.ScheduledWindow,
		QuantityLiters:  in.QuantityLiters,
		Status:          OrderPending,
		CreatedAt:       s.now(),
	}
	if _, err := s.exec(ctx,
		`INSERT INTO orders (`+orderCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.ClientID, o.CreatedBy, o.ScheduledDate, o.ScheduledWindow, o.QuantityLiters, o.Status, o.CreatedAt,
	); err != nil {
		return nil, wrap(err, "insert order")
	}
	return o, nil
}

func (s *SQLStore) GetOrder(ctx context.Context, id string) (*Order, error) {
	row := s.queryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id = ?`, id)
	return one(row, scanOrder, "select order")
}

func (s *SQLStore) ListOrders(ctx context.Context, f OrderFilter) ([]Order, error) {
	var w where
	if f.ClientID != "" {
		w.add("client_id = ?", f.ClientID)
	}
	if f.Status != "" {
		w.add("status = ?", f.Status)
	}
	if f.ScheduledDate != "" {
		w.add("scheduled_date = ?", f.ScheduledDate)
	}
	rows, err := s.query(ctx, `SELECT `+orderCols+` FROM orders`+w.String()+` ORDER BY created_at`, w.args...)
	if err != nil {
		return nil, wrap(err, "list orders")
	}
	return many(rows, scanOrder, "list orders")
}

func (s *SQLStore) UpdateOrder(ctx context.Context, id string, p OrderPatch) (*Order, error) {
	var st set
	if p.ScheduledDate != nil {
		st.add("scheduled_date", *p.ScheduledDate)
	}
	if p.ScheduledWindow != nil {
		st.add("scheduled_window", *p.ScheduledWindow)
	}
	if p.QuantityLiters != nil {
		st.add("quantity_liters", *p.QuantityLiters)
	}
	if p.Status != nil {
		st.add("status", *p.Status)
	}
	if len(st.cols) == 0 {
		o, err := s.GetOrder(ctx, id)
		if err == nil && o == nil {
			err = ErrNotFound
		}
		return o, err
	}
	row := s.queryRow(ctx,
		`UPDATE orders SET `+strings.Join(st.cols, ", ")+` WHERE id = ? RETURNING `+orderCols,
		append(st.args, id)...,
	)
	o, err := one(row, scanOrder, "update order")
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrNotFound
	}
	return o, nil
}

func (s *SQLStore) DeleteOrder(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "orders", id)
}

func (s *SQLStore) ConfirmOrder(ctx context.Context, id, callerID string) (*Order, error) {
	row := s.queryRow(ctx,
		`UPDATE orders SET status = ?
		 WHERE id = ? AND status = ?
		   AND client_id IN (SELECT id FROM clients WHERE auth_user_id = ?)
		 RETURNING `+orderCols,
		OrderConfirmed, id, OrderPending, callerID,
	)
	return one(row, scanOrder, "confirm order")
}

func (s *SQLStore) CreatePayment(ctx context.Context, in NewPayment) (*Payment, error) {
	p := &Payment{
		ID:        uuid.NewString(),
		OrderID:   in.OrderID,
		Amount:    in.Amount,
		Method:    in.Method,
		TxnRef:    in.TxnRef,
		Status:    PaymentPending,
		CreatedAt: s.now(),
	}
	if _, err := s.exec(ctx,
		`INSERT INTO payments (`+paymentCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OrderID, p.Amount, p.Method, p.TxnRef, p.Status, p.PaidAt, p.CreatedAt,
	); err != nil {
		return nil, wrap(err, "insert payment")
	}
	return p, nil
}

func (s *SQLStore) ListPayments(ctx context.Context, f PaymentFilter) ([]Payment, error) {
	var w where
	if f.OrderID != "" {
		w.add("order_id = ?", f.OrderID)
	}
	rows, err := s.query(ctx, `SELECT `+paymentCols+` FROM payments`+w.String()+` ORDER BY created_at`, w.args...)
	if err != nil {
		return nil, wrap(err, "list payments")
	}
	return many(rows, scanPayment, "list payments")
}

func (s *SQLStore) MarkPaymentPaid(ctx context.Context, txnRef string, amount *float64) (*Payment, error) {
	q := `UPDATE payments SET status = ?, paid_at = ? WHERE txn_ref = ? AND status = ?`
	args := []any{PaymentPaid, s.now(), txnRef, PaymentPending}
	if amount != nil {
		q += ` AND amount = ?`
		args = append(args, *amount)
	}
	rows, err := s.query(ctx, q+` RETURNING `+paymentCols, args...)
	if err != nil {
		return nil, wrap(err, "mark payment paid")
	}
	paid, err := many(rows, scanPayment, "mark payment paid")
	if err != nil || len(paid) == 0 {
		return nil, err
	}
	return &paid[0], nil
}
