// Package repository stores customers and their intervention history.
package repository

import (
	"context"

	"github.com/churnboard/churnboard/internal/domain/customer"
)

// Store provides read/write access to customers and statuses.
type Store interface {
	// ListCustomers returns up to limit customers with id > afterID in id
	// order, each with its InterventionCount filled in.
	ListCustomers(ctx context.Context, afterID int64, limit int) ([]customer.Customer, error)

	// Customer returns one customer or ErrNotFound.
	Customer(ctx context.Context, id int64) (customer.Customer, error)

	// Summary aggregates the table; HighProbCount counts probability > threshold.
	Summary(ctx context.Context, threshold float64) (customer.Summary, error)

	// TopRisk returns the n customers most likely to churn, highest
	// probability first, ties broken by id ascending.
	TopRisk(ctx context.Context, n int) ([]customer.Customer, error)

	// UpsertCustomer inserts or replaces a customer by id.
	UpsertCustomer(ctx context.Context, c customer.Customer) error

	// AddStatus records an intervention. Returns ErrNotFound for an unknown customer.
	AddStatus(ctx context.Context, customerID int64, description string) (customer.Status, error)

	// Statuses lists a customer's interventions, newest first.
	Statuses(ctx context.Context, customerID int64) ([]customer.Status, error)

	// Count returns the number of customers.
	Count(ctx context.Context) (int, error)

	Close() error
}

// DriverMemory selects the in-process store.
const DriverMemory = "memory"

// New opens the store named by driver: memory, sqlite3 or pgx.
func New(ctx context.Context, driver, dsn string, opts ...Option) (Store, error) {
	if driver == DriverMemory {
		return NewMemoryStore(opts...), nil
	}
	s, err := Open(ctx, driver, dsn, opts...)
	if err != nil {
		return nil, err
	}
	return s, nil
}
