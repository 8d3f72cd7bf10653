package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	_ "github.com/mattn/go-sqlite3"    // registers "sqlite3"

	"github.com/churnboard/churnboard/internal/domain/customer"
	"github.com/churnboard/churnboard/pkg/logger"
)

// Supported database/sql driver names.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite3"
)

// customerColumns lists every stored column after id, matching scanTargets.
var customerColumns = []string{
	"name", "probability", "churn",
	"senior_citizen", "married", "dependents", "number_of_dependents",
	"referred_a_friend", "number_of_referrals", "tenure_months",
	"phone_service", "multiple_lines", "internet_service", "internet_type",
	"online_security", "online_backup", "device_protection", "premium_tech_support",
	"streaming_tv", "streaming_movies", "streaming_music", "unlimited_data",
	"contract_type", "payment_method", "paperless_billing",
	"avg_monthly_long_distance_charges", "avg_monthly_gb_download", "monthly_charge",
	"total_charges", "total_refunds", "total_extra_data_charges",
	"total_long_distance_charges", "total_revenue", "cltv",
	"satisfaction_score", "dataset_id",
}

func scanTargets(c *customer.Customer) []any {
	return []any{
		&c.Name, &c.Probability, &c.Churn,
		&c.SeniorCitizen, &c.Married, &c.Dependents, &c.NumberOfDependents,
		&c.ReferredAFriend, &c.NumberOfReferrals, &c.TenureMonths,
		&c.PhoneService, &c.MultipleLines, &c.InternetService, &c.InternetType,
		&c.OnlineSecurity, &c.OnlineBackup, &c.DeviceProtection, &c.PremiumTechSupport,
		&c.StreamingTV, &c.StreamingMovies, &c.StreamingMusic, &c.UnlimitedData,
		&c.ContractType, &c.PaymentMethod, &c.PaperlessBilling,
		&c.AvgMonthlyLongDistanceCharges, &c.AvgMonthlyGBDownload, &c.MonthlyCharge,
		&c.TotalCharges, &c.TotalRefunds, &c.TotalExtraDataCharges,
		&c.TotalLongDistanceCharges, &c.TotalRevenue, &c.CLTV,
		&c.SatisfactionScore, &c.DatasetID,
	}
}

func values(c customer.Customer) []any {
	targets := scanTargets(&c)
	out := make([]any, len(targets))
	for i, t := range targets {
		switch p := t.(type) {
		case *string:
			out[i] = *p
		case *int:
			out[i] = *p
		case *float64:
			out[i] = *p
		}
	}
	return out
}

// SQLStore is a Store on database/sql for PostgreSQL (pgx) and SQLite.
type SQLStore struct {
	db     *sql.DB
	driver string
	log    logger.Logger
	now    func() time.Time

	selectCustomer string
	listCustomers  string
	topRisk        string
	upsert         string
}

var _ Store = (*SQLStore)(nil)

// Open connects to dsn with driver and, unless disabled, applies migrations.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*SQLStore, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if o.migrate {
		if err := Migrate(db, driver); err != nil {
			_ = db.Close()
			return nil, err
		}
		o.log.Info(ctx, "database migrated", logger.String("driver", driver))
	}
	return newSQLStore(db, driver, o), nil
}

func newSQLStore(db *sql.DB, driver string, o *options) *SQLStore {
	s := &SQLStore{db: db, driver: driver, log: o.log, now: o.now}

	cols := "id, " + strings.Join(customerColumns, ", ")
	withCount := cols + ", (SELECT COUNT(*) FROM statuses s WHERE s.customer_id = c.id) AS intervention_count"
	s.selectCustomer = s.rebind("SELECT " + withCount + " FROM customers c WHERE c.id = ?")
	s.listCustomers = s.rebind("SELECT " + withCount + " FROM customers c WHERE c.id > ? ORDER BY c.id LIMIT ?")
	s.topRisk = s.rebind("SELECT " + withCount + " FROM customers c ORDER BY c.probability DESC, c.id ASC LIMIT ?")

	sets := make([]string, len(customerColumns))
	for i, col := range customerColumns {
		sets[i] = col + " = excluded." + col
	}
	s.upsert = s.rebind("INSERT INTO customers (" + cols + ") VALUES (" +
		strings.TrimSuffix(strings.Repeat("?, ", len(customerColumns)+1), ", ") +
		") ON CONFLICT (id) DO UPDATE SET " + strings.Join(sets, ", "))
	return s
}

// rebind rewrites ? placeholders as $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// DB exposes the underlying handle.
func (s *SQLStore) DB() *sql.DB { return s.db }

// Close implements Store.
func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) fail(ctx context.Context, op string, err error) error {
	recordError(op)
	s.log.Error(ctx, "store operation failed", logger.String("operation", op), logger.Error(err))
	return fmt.Errorf("%s: %w", op, err)
}

func scanCustomer(row interface{ Scan(...any) error }) (customer.Customer, error) {
	var c customer.Customer
	dest := append([]any{&c.ID}, scanTargets(&c)...)
	dest = append(dest, &c.InterventionCount)
	err := row.Scan(dest...)
	return c, err
}

func (s *SQLStore) queryCustomers(ctx context.Context, op, query string, args ...any) ([]customer.Customer, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.fail(ctx, op, err)
	}
	defer func() { _ = rows.Close() }()

	var out []customer.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, s.fail(ctx, op, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail(ctx, op, err)
	}
	if out == nil {
		out = []customer.Customer{}
	}
	return out, nil
}

// ListCustomers implements Store.
func (s *SQLStore) ListCustomers(ctx context.Context, afterID int64, limit int) ([]customer.Customer, error) {
	defer observe("list_customers", time.Now())
	if limit < 1 {
		return nil, ErrInvalidLimit
	}
	return s.queryCustomers(ctx, "list_customers", s.listCustomers, afterID, limit)
}

// Customer implements Store.
func (s *SQLStore) Customer(ctx context.Context, id int64) (customer.Customer, error) {
	defer observe("customer", time.Now())
	c, err := scanCustomer(s.db.QueryRowContext(ctx, s.selectCustomer, id))
	if errors.Is(err, sql.ErrNoRows) {
		return customer.Customer{}, ErrNotFound
	}
	if err != nil {
		return customer.Customer{}, s.fail(ctx, "customer", err)
	}
	return c, nil
}

// Summary implements Store.
func (s *SQLStore) Summary(ctx context.Context, threshold float64) (customer.Summary, error) {
	defer observe("summary", time.Now())
	sum := customer.Summary{SatisfactionCounts: make(map[string]int)}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM customers").Scan(&sum.TotalCount); err != nil {
		return customer.Summary{}, s.fail(ctx, "summary", err)
	}
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT COUNT(*) FROM customers WHERE probability > ?"), threshold).
		Scan(&sum.HighProbCount)
	if err != nil {
		return customer.Summary{}, s.fail(ctx, "summary", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT satisfaction_score, COUNT(*) FROM customers GROUP BY satisfaction_score")
	if err != nil {
		return customer.Summary{}, s.fail(ctx, "summary", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var score, count int
		if err := rows.Scan(&score, &count); err != nil {
			return customer.Summary{}, s.fail(ctx, "summary", err)
		}
		sum.SatisfactionCounts[strconv.Itoa(score)] = count
	}
	if err := rows.Err(); err != nil {
		return customer.Summary{}, s.fail(ctx, "summary", err)
	}
	return sum, nil
}

// TopRisk implements Store.
func (s *SQLStore) TopRisk(ctx context.Context, n int) ([]customer.Customer, error) {
	defer observe("top_risk", time.Now())
	if n < 1 {
		return nil, ErrInvalidLimit
	}
	return s.queryCustomers(ctx, "top_risk", s.topRisk, n)
}

// UpsertCustomer implements Store.
func (s *SQLStore) UpsertCustomer(ctx context.Context, c customer.Customer) error {
	defer observe("upsert_customer", time.Now())
	if err := c.Validate(); err != nil {
		recordError("upsert_customer")
		return err
	}
	c.Normalize()
	args := append([]any{c.ID}, values(c)...)
	if _, err := s.db.ExecContext(ctx, s.upsert, args...); err != nil {
		return s.fail(ctx, "upsert_customer", err)
	}
	return nil
}

func (s *SQLStore) exists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT 1 FROM customers WHERE id = ?"), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// AddStatus implements Store.
func (s *SQLStore) AddStatus(ctx context.Context, customerID int64, description string) (customer.Status, error) {
	defer observe("add_status", time.Now())
	ok, err := s.exists(ctx, customerID)
	if err != nil {
		return customer.Status{}, s.fail(ctx, "add_status", err)
	}
	if !ok {
		recordError("add_status")
		return customer.Status{}, ErrNotFound
	}

	st := customer.Status{CustomerID: customerID, CreatedAt: s.now().UTC(), Description: description}
	err = s.db.QueryRowContext(ctx,
		s.rebind("INSERT INTO statuses (customer_id, created_at, description) VALUES (?, ?, ?) RETURNING id"),
		customerID, st.CreatedAt, description,
	).Scan(&st.ID)
	if err != nil {
		return customer.Status{}, s.fail(ctx, "add_status", err)
	}
	return st, nil
}

// Statuses implements Store.
func (s *SQLStore) Statuses(ctx context.Context, customerID int64) ([]customer.Status, error) {
	defer observe("statuses", time.Now())
	ok, err := s.exists(ctx, customerID)
	if err != nil {
		return nil, s.fail(ctx, "statuses", err)
	}
	if !ok {
		return nil, ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx,
		s.rebind("SELECT id, customer_id, created_at, description FROM statuses WHERE customer_id = ? ORDER BY created_at DESC, id DESC"),
		customerID)
	if err != nil {
		return nil, s.fail(ctx, "statuses", err)
	}
	defer func() { _ = rows.Close() }()

	out := []customer.Status{}
	for rows.Next() {
		var st customer.Status
		if err := rows.Scan(&st.ID, &st.CustomerID, &st.CreatedAt, &st.Description); err != nil {
			return nil, s.fail(ctx, "statuses", err)
		}
		st.CreatedAt = st.CreatedAt.UTC()
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail(ctx, "statuses", err)
	}
	return out, nil
}

// Count implements Store.
func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM customers").Scan(&n); err != nil {
		return 0, s.fail(ctx, "count", err)
	}
	return n, nil
}
