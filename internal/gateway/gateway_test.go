package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestQueryBuildersDoNotAlias(t *testing.T) {
	base := Where("user_id", "u1")
	a := base.Eq("status", "pending")
	b := base.Eq("status", "completed").OrderBy("start_date", true).WithLimit(5)

	if len(base.Filters) != 1 {
		t.Fatalf("base mutated: %+v", base.Filters)
	}
	if a.Filters[1].Value != "pending" || b.Filters[1].Value != "completed" {
		t.Fatalf("filters aliased: a=%+v b=%+v", a.Filters, b.Filters)
	}
	if len(a.Orders) != 0 || a.Limit != 0 {
		t.Fatalf("unexpected order/limit on a: %+v", a)
	}
	if b.Limit != 5 || !b.Orders[0].Desc {
		t.Fatalf("unexpected b: %+v", b)
	}
}

func TestIsConflict(t *testing.T) {
	err := fmt.Errorf("create plan: %w", &StoreError{Op: "insert", Table: "monthly_plans", Status: http.StatusConflict, Err: errors.New("duplicate")})
	if !IsConflict(err) {
		t.Fatalf("expected conflict")
	}
	if IsConflict(&StoreError{Op: "insert", Status: http.StatusBadRequest, Err: errors.New("bad")}) {
		t.Fatalf("400 is not a conflict")
	}
	if IsConflict(errors.New("plain")) {
		t.Fatalf("plain error is not a conflict")
	}
}

func TestStoreErrorMessage(t *testing.T) {
	err := &StoreError{Op: "select", Table: "daily_tasks", Status: 500, Err: errors.New("boom")}
	if got := err.Error(); got != "gateway select daily_tasks: status 500: boom" {
		t.Fatalf("unexpected message %q", got)
	}
	transport := &StoreError{Op: "select", Table: "daily_tasks", Err: errors.New("dial")}
	if got := transport.Error(); got != "gateway select daily_tasks: dial" {
		t.Fatalf("unexpected message %q", got)
	}
}
