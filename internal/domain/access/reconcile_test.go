package access_test

import (
	"context"
	"errors"
	"testing"

	"hrmaccess/internal/domain/access"
	"hrmaccess/internal/domain/core"
)

func TestReconcileBackfillsNewEmployees(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	first, err := access.Reconcile(ctx, e.deps, e.tenant)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if first.Inserted != 3 {
		t.Fatalf("expected 3 inserted, got %d", first.Inserted)
	}

	hire := e.store.AddEmployee(core.Employee{TenantID: e.tenant, FirstName: "New", LastName: "Hire"})
	second, err := access.Reconcile(ctx, e.deps, e.tenant)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if second.Inserted != 1 {
		t.Fatalf("expected 1 inserted, got %d", second.Inserted)
	}
	r, err := e.deps.Assignments.Resolve(ctx, e.tenant, hire.ID)
	if err != nil || r == nil {
		t.Fatalf("expected new hire assigned, got %v %v", r, err)
	}
}

func TestReconcileReportsDirectoryFailure(t *testing.T) {
	e := newEnv(t)
	boom := errors.New("directory offline")
	e.store.FailOn("ListEmployees", boom)
	if _, err := access.Reconcile(context.Background(), e.deps, e.tenant); !errors.Is(err, boom) {
		t.Fatalf("expected directory error, got %v", err)
	}
}
