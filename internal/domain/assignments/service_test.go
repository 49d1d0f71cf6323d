package assignments_test

import (
	"context"
	"errors"
	"testing"

	"hrmaccess/internal/domain/assignments"
	"hrmaccess/internal/domain/auth"
	"hrmaccess/internal/domain/core"
	"hrmaccess/internal/domain/roles"
	"hrmaccess/internal/platform/memstore"
)

type fixture struct {
	store    *memstore.Store
	tenant   string
	svc      *assignments.Service
	roles    []roles.Role
	admin    core.Employee
	ada      core.Employee
	grace    core.Employee
	employee roles.Role
	manager  roles.Role
	adminR   roles.Role
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	tenant := store.AddTenant()
	roleSvc := roles.NewService(store, nil)
	if _, err := roleSvc.SeedDefaultRolesIfEmpty(ctx, tenant); err != nil {
		t.Fatalf("seed: %v", err)
	}
	list, err := roleSvc.List(ctx, tenant)
	if err != nil {
		t.Fatalf("list roles: %v", err)
	}
	f := &fixture{
		store:  store,
		tenant: tenant,
		svc:    assignments.NewService(store, roleSvc, store),
		roles:  list,
		admin:  store.AddEmployee(core.Employee{TenantID: tenant, FirstName: "Root", LastName: "Admin", IsAdmin: true}),
		ada:    store.AddEmployee(core.Employee{TenantID: tenant, FirstName: "Ada", LastName: "Lovelace"}),
		grace:  store.AddEmployee(core.Employee{TenantID: tenant, FirstName: "Grace", LastName: "Hopper"}),
	}
	f.employee, _ = roles.FindByName(list, auth.RoleEmployee)
	f.manager, _ = roles.FindByName(list, auth.RoleManager)
	f.adminR, _ = roles.FindAdmin(list)
	return f
}

func (f *fixture) backfill(t *testing.T) {
	t.Helper()
	employees, _ := f.store.ListEmployees(context.Background(), f.tenant)
	if _, err := f.svc.BackfillMissing(context.Background(), f.tenant, employees, f.roles); err != nil {
		t.Fatalf("backfill: %v", err)
	}
}

func (f *fixture) resolve(t *testing.T, employeeID string) *roles.Role {
	t.Helper()
	r, err := f.svc.Resolve(context.Background(), f.tenant, employeeID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	return r
}

func TestBackfillMakesMapTotal(t *testing.T) {
	f := newFixture(t)
	employees, _ := f.store.ListEmployees(context.Background(), f.tenant)

	inserted, err := f.svc.BackfillMissing(context.Background(), f.tenant, employees, f.roles)
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if inserted != 3 {
		t.Fatalf("expected 3 rows inserted, got %d", inserted)
	}
	for _, emp := range employees {
		if f.resolve(t, emp.ID) == nil {
			t.Fatalf("employee %s unresolved after backfill", emp.ID)
		}
	}
	if r := f.resolve(t, f.admin.ID); r.ID != f.adminR.ID {
		t.Fatalf("admin employee resolved to %s", r.Name)
	}
	if r := f.resolve(t, f.ada.ID); r.ID != f.employee.ID {
		t.Fatalf("regular employee resolved to %s", r.Name)
	}

	again, err := f.svc.BackfillMissing(context.Background(), f.tenant, employees, f.roles)
	if err != nil {
		t.Fatalf("second backfill: %v", err)
	}
	if again != 0 {
		t.Fatalf("expected no rows on second backfill, got %d", again)
	}
}

func TestBackfillRequiresDefaultRoles(t *testing.T) {
	f := newFixture(t)
	employees, _ := f.store.ListEmployees(context.Background(), f.tenant)
	withoutEmployeeRole := []roles.Role{f.adminR, f.manager}

	_, err := f.svc.BackfillMissing(context.Background(), f.tenant, employees, withoutEmployeeRole)
	if !errors.Is(err, assignments.ErrDefaultRoleMissing) {
		t.Fatalf("expected ErrDefaultRoleMissing, got %v", err)
	}
}

func TestResolveNilForUnassignedAndDangling(t *testing.T) {
	f := newFixture(t)
	if r := f.resolve(t, f.ada.ID); r != nil {
		t.Fatalf("expected nil for unassigned employee, got %s", r.Name)
	}
	f.backfill(t)
	f.store.DeleteRole(f.tenant, f.employee.ID)
	if r := f.resolve(t, f.ada.ID); r != nil {
		t.Fatalf("expected nil for dangling assignment, got %s", r.Name)
	}
}

func TestValidateReassign(t *testing.T) {
	tests := []struct {
		name   string
		emp    core.Employee
		target roles.Role
		want   error
	}{
		{name: "admin employee", emp: core.Employee{IsAdmin: true}, target: roles.Role{Name: auth.RoleManager}, want: assignments.ErrAdminEmployee},
		{name: "admin target", emp: core.Employee{}, target: roles.Role{Name: auth.RoleAdmin, IsAdmin: true}, want: assignments.ErrAdminRoleTarget},
		{name: "allowed", emp: core.Employee{}, target: roles.Role{Name: auth.RoleManager}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			err := assignments.ValidateReassign(tc.emp, tc.target)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestReassignToAdminRoleNeverChangesMap(t *testing.T) {
	f := newFixture(t)
	f.backfill(t)
	ctx := context.Background()

	for _, emp := range []core.Employee{f.admin, f.ada, f.grace} {
		before, _ := f.svc.Map(ctx, f.tenant)
		_, err := f.svc.Reassign(ctx, f.tenant, "u1", emp.ID, f.adminR.ID, "")
		if err == nil {
			t.Fatalf("expected rejection for %s", emp.FullName())
		}
		after, _ := f.svc.Map(ctx, f.tenant)
		if before[emp.ID] != after[emp.ID] {
			t.Fatalf("assignment for %s changed", emp.FullName())
		}
	}
	recent, _ := f.store.ListRecent(ctx, f.tenant, 10)
	if len(recent) != 0 {
		t.Fatalf("expected no audit entries, got %d", len(recent))
	}
}

func TestReassignAdminEmployeeRejected(t *testing.T) {
	f := newFixture(t)
	f.backfill(t)
	item, err := f.svc.Reassign(context.Background(), f.tenant, "u1", f.admin.ID, f.manager.ID, "")
	if !errors.Is(err, assignments.ErrAdminEmployee) {
		t.Fatalf("expected ErrAdminEmployee, got %v", err)
	}
	if item.Status != assignments.ItemStatusRejected {
		t.Fatalf("expected rejected status, got %s", item.Status)
	}
}

func TestCommitWritesOneAuditEntryPerChange(t *testing.T) {
	f := newFixture(t)
	f.backfill(t)
	ctx := context.Background()

	result, err := f.svc.Commit(ctx, f.tenant, "u1", []assignments.Change{
		{EmployeeID: f.ada.ID, OldRoleID: f.employee.ID, NewRoleID: f.manager.ID, Reason: "promotion"},
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if result.Committed != 1 || result.Items[0].Status != assignments.ItemStatusCommitted || result.Items[0].AuditID == "" {
		t.Fatalf("unexpected result %+v", result)
	}
	if r := f.resolve(t, f.ada.ID); r.ID != f.manager.ID {
		t.Fatalf("expected Manager, got %s", r.Name)
	}

	recent, _ := f.store.ListRecent(ctx, f.tenant, 10)
	if len(recent) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(recent))
	}
	entry := recent[0]
	if entry.EmployeeID != f.ada.ID || entry.NewRoleID != f.manager.ID || entry.ChangedBy != "u1" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.OldRoleID == nil || *entry.OldRoleID != f.employee.ID {
		t.Fatalf("expected old role %s, got %v", f.employee.ID, entry.OldRoleID)
	}
}

func TestCommitConflictRollsBackWholeBatch(t *testing.T) {
	f := newFixture(t)
	f.backfill(t)
	ctx := context.Background()

	// Another session moves Grace first.
	if _, err := f.svc.Reassign(ctx, f.tenant, "u2", f.grace.ID, f.manager.ID, ""); err != nil {
		t.Fatalf("concurrent reassign: %v", err)
	}
	hr, _ := roles.FindByName(f.roles, auth.RoleHRStaff)

	result, err := f.svc.Commit(ctx, f.tenant, "u1", []assignments.Change{
		{EmployeeID: f.ada.ID, OldRoleID: f.employee.ID, NewRoleID: f.manager.ID},
		{EmployeeID: f.grace.ID, OldRoleID: f.employee.ID, NewRoleID: hr.ID},
	})
	if !errors.Is(err, assignments.ErrAssignmentConflict) {
		t.Fatalf("expected ErrAssignmentConflict, got %v", err)
	}
	var changeErr *assignments.ChangeError
	if !errors.As(err, &changeErr) || changeErr.Index != 1 {
		t.Fatalf("expected conflict on item 1, got %v", err)
	}
	if result.Committed != 0 {
		t.Fatalf("expected nothing committed, got %d", result.Committed)
	}
	if result.Items[0].Status != assignments.ItemStatusNotApplied || result.Items[1].Status != assignments.ItemStatusConflict {
		t.Fatalf("unexpected statuses %+v", result.Items)
	}
	if r := f.resolve(t, f.ada.ID); r.ID != f.employee.ID {
		t.Fatalf("first item must be rolled back, Ada holds %s", r.Name)
	}
	byAda, _ := f.store.ListByEmployee(ctx, f.tenant, f.ada.ID)
	if len(byAda) != 0 {
		t.Fatalf("expected no audit entry for rolled back item, got %d", len(byAda))
	}
}

func TestCommitRejectsBadBatches(t *testing.T) {
	f := newFixture(t)
	f.backfill(t)
	tests := []struct {
		name    string
		changes []assignments.Change
		want    error
	}{
		{
			name: "duplicate employee",
			changes: []assignments.Change{
				{EmployeeID: f.ada.ID, OldRoleID: f.employee.ID, NewRoleID: f.manager.ID},
				{EmployeeID: f.ada.ID, OldRoleID: f.employee.ID, NewRoleID: f.manager.ID},
			},
			want: assignments.ErrDuplicateEmployee,
		},
		{
			name:    "unchanged",
			changes: []assignments.Change{{EmployeeID: f.ada.ID, OldRoleID: f.employee.ID, NewRoleID: f.employee.ID}},
			want:    assignments.ErrUnchanged,
		},
		{
			name:    "unknown role",
			changes: []assignments.Change{{EmployeeID: f.ada.ID, OldRoleID: f.employee.ID, NewRoleID: "missing"}},
			want:    roles.ErrNotFound,
		},
		{
			name:    "unknown employee",
			changes: []assignments.Change{{EmployeeID: "missing", NewRoleID: f.manager.ID}},
			want:    core.ErrEmployeeNotFound,
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			result, err := f.svc.Commit(context.Background(), f.tenant, "u1", tc.changes)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if result.Committed != 0 {
				t.Fatalf("expected nothing committed")
			}
		})
	}
}

func TestCommitEmptyBatch(t *testing.T) {
	f := newFixture(t)
	result, err := f.svc.Commit(context.Background(), f.tenant, "u1", nil)
	if err != nil || len(result.Items) != 0 {
		t.Fatalf("expected empty result, got %+v %v", result, err)
	}
}

func TestCommitPropagatesBackendError(t *testing.T) {
	f := newFixture(t)
	f.backfill(t)
	boom := errors.New("connection reset")
	f.store.FailOn("ApplyChanges", boom)

	result, err := f.svc.Commit(context.Background(), f.tenant, "u1", []assignments.Change{
		{EmployeeID: f.ada.ID, OldRoleID: f.employee.ID, NewRoleID: f.manager.ID},
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if result.Items[0].Status != assignments.ItemStatusNotApplied {
		t.Fatalf("expected not applied, got %s", result.Items[0].Status)
	}
}

func TestResolveIn(t *testing.T) {
	list := []roles.Role{{ID: "r1", Name: auth.RoleEmployee}}
	assigned := map[string]string{"e1": "r1", "e2": "gone"}
	if r := assignments.ResolveIn(assigned, list, "e1"); r == nil || r.ID != "r1" {
		t.Fatalf("expected r1, got %v", r)
	}
	if r := assignments.ResolveIn(assigned, list, "e2"); r != nil {
		t.Fatalf("expected nil for dangling, got %v", r)
	}
	if r := assignments.ResolveIn(assigned, list, "e3"); r != nil {
		t.Fatalf("expected nil for unassigned, got %v", r)
	}
}
