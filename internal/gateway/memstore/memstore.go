// Package memstore is an in-process Gateway used for local development
// (gateway.backend = memory) and for handler tests.
//
// Rows are kept in their JSON representation, so filters, ordering and
// decoding behave like the REST backend: dates compare as YYYY-MM-DD strings
// and every value round-trips through encoding/json.
package memstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"devplan/internal/gateway"
	"devplan/internal/pkg/metrics"
)

type row = map[string]any

// Store is a goroutine-safe in-memory record store.
type Store struct {
	mu       sync.RWMutex
	tables   map[string][]row
	unique   map[string][][]string
	accounts map[string]account
}

var _ gateway.Gateway = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithUnique declares a unique constraint over columns of table.
func WithUnique(table string, columns ...string) Option {
	return func(s *Store) {
		s.unique[table] = append(s.unique[table], columns)
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		tables:   map[string][]row{},
		unique:   map[string][][]string{},
		accounts: map[string]account{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select decodes matching rows into dest.
func (s *Store) Select(_ context.Context, table string, q gateway.Query, dest any) error {
	filters, err := normalizeFilters(q.Filters)
	if err != nil {
		return storeErr("select", table, http.StatusBadRequest, err)
	}

	s.mu.RLock()
	var out []row
	for _, r := range s.tables[table] {
		if matchAll(r, filters) {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()

	if len(q.Orders) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, o := range q.Orders {
				c := compareValues(out[i][o.Column], out[j][o.Column])
				if c == 0 {
					continue
				}
				if o.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return decodeRows("select", table, out, dest)
}

// Insert stores row and refreshes it with the stored representation.
func (s *Store) Insert(_ context.Context, table string, v any) error {
	r, err := toRow(v)
	if err != nil {
		return storeErr("insert", table, http.StatusBadRequest, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := r["id"]; ok && id != nil {
		for _, existing := range s.tables[table] {
			if compareValues(existing["id"], id) == 0 {
				return storeErr("insert", table, http.StatusConflict, errors.New("duplicate primary key"))
			}
		}
	}
	if err := s.checkUnique(table, r, -1); err != nil {
		return storeErr("insert", table, http.StatusConflict, err)
	}
	s.tables[table] = append(s.tables[table], r)

	data, err := json.Marshal(r)
	if err != nil {
		return storeErr("insert", table, 0, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return storeErr("insert", table, 0, fmt.Errorf("decode row: %w", err))
	}
	return nil
}

// Update applies fields to every matching row. Either all rows change or none.
func (s *Store) Update(_ context.Context, table string, q gateway.Query, fields map[string]any, dest any) error {
	filters, err := normalizeFilters(q.Filters)
	if err != nil {
		return storeErr("update", table, http.StatusBadRequest, err)
	}
	patch, err := toRow(fields)
	if err != nil {
		return storeErr("update", table, http.StatusBadRequest, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.tables[table]
	updated := make(map[int]row)
	for i, r := range rows {
		if !matchAll(r, filters) {
			continue
		}
		next := make(row, len(r)+len(patch))
		for k, v := range r {
			next[k] = v
		}
		for k, v := range patch {
			next[k] = v
		}
		updated[i] = next
	}
	for i, r := range updated {
		if err := s.checkUniqueAgainst(table, r, rows, updated, i); err != nil {
			return storeErr("update", table, http.StatusConflict, err)
		}
	}

	out := make([]row, 0, len(updated))
	for i := range rows {
		if r, ok := updated[i]; ok {
			rows[i] = r
			out = append(out, r)
		}
	}
	return decodeRows("update", table, out, dest)
}

// Delete removes matching rows and decodes them into dest.
func (s *Store) Delete(_ context.Context, table string, q gateway.Query, dest any) error {
	filters, err := normalizeFilters(q.Filters)
	if err != nil {
		return storeErr("delete", table, http.StatusBadRequest, err)
	}

	s.mu.Lock()
	kept := s.tables[table][:0:0]
	var removed []row
	for _, r := range s.tables[table] {
		if matchAll(r, filters) {
			removed = append(removed, r)
			continue
		}
		kept = append(kept, r)
	}
	s.tables[table] = kept
	s.mu.Unlock()

	return decodeRows("delete", table, removed, dest)
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) checkUnique(table string, r row, skip int) error {
	return s.checkUniqueAgainst(table, r, s.tables[table], nil, skip)
}

// checkUniqueAgainst compares r with every other row, using pending versions
// from updated where present.
func (s *Store) checkUniqueAgainst(table string, r row, rows []row, updated map[int]row, self int) error {
	for _, cols := range s.unique[table] {
		for i, other := range rows {
			if i == self {
				continue
			}
			if pending, ok := updated[i]; ok {
				other = pending
			}
			if sameKey(r, other, cols) {
				return fmt.Errorf("duplicate key (%s)", strings.Join(cols, ", "))
			}
		}
	}
	return nil
}

func sameKey(a, b row, cols []string) bool {
	for _, c := range cols {
		if a[c] == nil || b[c] == nil || compareValues(a[c], b[c]) != 0 {
			return false
		}
	}
	return true
}

func matchAll(r row, filters []gateway.Filter) bool {
	for _, f := range filters {
		if !match(r[f.Column], f) {
			return false
		}
	}
	return true
}

// match follows SQL semantics: comparisons against NULL are false.
func match(v any, f gateway.Filter) bool {
	if f.Op == gateway.OpIsNull {
		return v == nil
	}
	if v == nil || f.Value == nil {
		return false
	}
	c := compareValues(v, f.Value)
	switch f.Op {
	case gateway.OpEq:
		return c == 0
	case gateway.OpNeq:
		return c != 0
	case gateway.OpGt:
		return c > 0
	case gateway.OpGte:
		return c >= 0
	case gateway.OpLt:
		return c < 0
	case gateway.OpLte:
		return c <= 0
	}
	return false
}

// compareValues orders JSON values. nil sorts last.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	switch x := a.(type) {
	case float64:
		if y, ok := b.(float64); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			}
			return 1
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func normalizeFilters(filters []gateway.Filter) ([]gateway.Filter, error) {
	out := make([]gateway.Filter, len(filters))
	for i, f := range filters {
		v, err := normalize(f.Value)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", f.Column, err)
		}
		out[i] = gateway.Filter{Column: f.Column, Op: f.Op, Value: v}
	}
	return out, nil
}

func normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func toRow(v any) (row, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	var r row
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("row must be an object: %w", err)
	}
	return r, nil
}

func decodeRows(op, table string, rows []row, dest any) error {
	if dest == nil {
		return nil
	}
	if rows == nil {
		rows = []row{}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return storeErr(op, table, 0, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return storeErr(op, table, 0, fmt.Errorf("decode rows: %w", err))
	}
	return nil
}

func storeErr(op, table string, status int, err error) error {
	metrics.GatewayErrorsTotal.WithLabelValues(op, table).Inc()
	return &gateway.StoreError{Op: op, Table: table, Status: status, Err: err}
}
