// Package gateway defines the record store boundary every handler talks to.
//
// The store is opaque: callers name a table, a set of filters, an ordering and
// a limit, and receive rows decoded into their own structs. Backends live in
// sub-packages (supabase, gormstore, diskstore).
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Op is a filter comparison operator.
type Op string

const (
	OpEq     Op = "eq"
	OpNeq    Op = "neq"
	OpGt     Op = "gt"
	OpGte    Op = "gte"
	OpLt     Op = "lt"
	OpLte    Op = "lte"
	OpIsNull Op = "is"
)

// Filter restricts a query to rows where Column Op Value holds.
type Filter struct {
	Column string
	Op     Op
	Value  any
}

// Order sorts results by Column.
type Order struct {
	Column string
	Desc   bool
}

// Query is an immutable description of filters, ordering and limit.
// The zero value matches every row. Limit <= 0 means unlimited.
type Query struct {
	Filters []Filter
	Orders  []Order
	Limit   int
}

// Where starts a query with a single equality filter.
func Where(column string, value any) Query {
	return Query{}.Eq(column, value)
}

func (q Query) with(f Filter) Query {
	filters := make([]Filter, 0, len(q.Filters)+1)
	filters = append(filters, q.Filters...)
	q.Filters = append(filters, f)
	return q
}

func (q Query) Eq(column string, value any) Query  { return q.with(Filter{column, OpEq, value}) }
func (q Query) Neq(column string, value any) Query { return q.with(Filter{column, OpNeq, value}) }
func (q Query) Gt(column string, value any) Query  { return q.with(Filter{column, OpGt, value}) }
func (q Query) Gte(column string, value any) Query { return q.with(Filter{column, OpGte, value}) }
func (q Query) Lt(column string, value any) Query  { return q.with(Filter{column, OpLt, value}) }
func (q Query) Lte(column string, value any) Query { return q.with(Filter{column, OpLte, value}) }
func (q Query) IsNull(column string) Query         { return q.with(Filter{column, OpIsNull, nil}) }

// OrderBy appends a sort key.
func (q Query) OrderBy(column string, desc bool) Query {
	orders := make([]Order, 0, len(q.Orders)+1)
	orders = append(orders, q.Orders...)
	q.Orders = append(orders, Order{Column: column, Desc: desc})
	return q
}

// WithLimit caps the number of returned rows.
func (q Query) WithLimit(n int) Query {
	q.Limit = n
	return q
}

// Gateway is the record store.
//
// Select decodes matching rows into dest (pointer to slice). Insert writes row
// (pointer to struct) and refreshes it with the stored representation. Update
// applies fields to every matching row in one call and decodes the updated rows
// into dest. Delete removes matching rows and decodes the removed rows into dest.
type Gateway interface {
	Select(ctx context.Context, table string, q Query, dest any) error
	Insert(ctx context.Context, table string, row any) error
	Update(ctx context.Context, table string, q Query, fields map[string]any, dest any) error
	Delete(ctx context.Context, table string, q Query, dest any) error
	Ping(ctx context.Context) error
}

// Account is an identity known to the identity provider.
type Account struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

var (
	// ErrInvalidCredentials is returned by SignIn for an unknown email or wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountExists is returned by SignUp when the email is taken.
	ErrAccountExists = errors.New("account already exists")
)

// Identity registers and authenticates accounts.
type Identity interface {
	SignUp(ctx context.Context, email, password string) (Account, error)
	SignIn(ctx context.Context, email, password string) (Account, error)
}

// ObjectStorage stores uploaded files.
type ObjectStorage interface {
	// Upload stores data under path and returns its public URL.
	Upload(ctx context.Context, path string, data []byte, contentType string) (string, error)
	Remove(ctx context.Context, path string) error
	PublicURL(path string) string
	Ping(ctx context.Context) error
}

// StoreError reports a failed gateway call.
type StoreError struct {
	Op     string
	Table  string
	Status int // HTTP-like status; 0 when the transport failed
	Err    error
}

func (e *StoreError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("gateway %s %s: status %d: %v", e.Op, e.Table, e.Status, e.Err)
	}
	return fmt.Sprintf("gateway %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsConflict reports whether err is a unique-constraint violation.
func IsConflict(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Status == http.StatusConflict
}
