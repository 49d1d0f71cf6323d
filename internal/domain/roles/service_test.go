package roles_test

import (
	"context"
	"errors"
	"testing"

	"hrmaccess/internal/domain/auth"
	"hrmaccess/internal/domain/roles"
	"hrmaccess/internal/platform/memstore"
)

type recordingCache struct {
	invalidated []string
	err         error
}

func (c *recordingCache) InvalidateRole(_ context.Context, _ string, roleID string) error {
	c.invalidated = append(c.invalidated, roleID)
	return c.err
}

func seeded(t *testing.T) (*roles.Service, *recordingCache, string, []roles.Role) {
	t.Helper()
	store := memstore.New()
	tenant := store.AddTenant()
	cache := &recordingCache{}
	svc := roles.NewService(store, cache)
	if _, err := svc.SeedDefaultRolesIfEmpty(context.Background(), tenant); err != nil {
		t.Fatalf("seed: %v", err)
	}
	list, err := svc.List(context.Background(), tenant)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	return svc, cache, tenant, list
}

func mustFind(t *testing.T, list []roles.Role, name string) roles.Role {
	t.Helper()
	r, ok := roles.FindByName(list, name)
	if !ok {
		t.Fatalf("role %s not found", name)
	}
	return r
}

func TestSeedDefaultRolesIsIdempotent(t *testing.T) {
	store := memstore.New()
	tenant := store.AddTenant()
	svc := roles.NewService(store, nil)
	ctx := context.Background()

	created, err := svc.SeedDefaultRolesIfEmpty(ctx, tenant)
	if err != nil {
		t.Fatalf("first seed: %v", err)
	}
	if created != 4 {
		t.Fatalf("expected 4 roles created, got %d", created)
	}
	for i := 0; i < 2; i++ {
		created, err = svc.SeedDefaultRolesIfEmpty(ctx, tenant)
		if err != nil {
			t.Fatalf("repeat seed: %v", err)
		}
		if created != 0 {
			t.Fatalf("expected no roles created on repeat, got %d", created)
		}
	}
	list, _ := svc.List(ctx, tenant)
	if len(list) != 4 {
		t.Fatalf("expected 4 roles, got %d", len(list))
	}
}

func TestAdminRoleIsReadOnly(t *testing.T) {
	svc, cache, tenant, list := seeded(t)
	admin := mustFind(t, list, auth.RoleAdmin)
	ctx := context.Background()

	for _, p := range auth.AllPermissions() {
		if _, err := svc.TogglePermission(ctx, tenant, admin.ID, p, 0); !errors.Is(err, roles.ErrAdminRoleReadOnly) {
			t.Fatalf("toggle %s: expected ErrAdminRoleReadOnly, got %v", p, err)
		}
	}
	if _, err := svc.ClearAll(ctx, tenant, admin.ID, 0); !errors.Is(err, roles.ErrAdminRoleReadOnly) {
		t.Fatalf("clear all: expected ErrAdminRoleReadOnly, got %v", err)
	}
	if _, err := svc.SetGroupPermissions(ctx, tenant, admin.ID, auth.GroupLeaves, false, 0); !errors.Is(err, roles.ErrAdminRoleReadOnly) {
		t.Fatalf("group: expected ErrAdminRoleReadOnly, got %v", err)
	}

	after, err := svc.Get(ctx, tenant, admin.ID)
	if err != nil {
		t.Fatalf("get admin: %v", err)
	}
	if len(after.Permissions) != len(auth.AllPermissions()) {
		t.Fatalf("admin permissions changed: %v", after.Permissions)
	}
	if len(cache.invalidated) != 0 {
		t.Fatalf("expected no cache invalidation, got %v", cache.invalidated)
	}
}

func TestTogglePermission(t *testing.T) {
	svc, cache, tenant, list := seeded(t)
	employee := mustFind(t, list, auth.RoleEmployee)
	ctx := context.Background()

	on, err := svc.TogglePermission(ctx, tenant, employee.ID, auth.PermReportsView, 0)
	if err != nil {
		t.Fatalf("toggle on: %v", err)
	}
	if !on.Has(auth.PermReportsView) {
		t.Fatalf("expected permission granted")
	}
	if on.Version != employee.Version+1 {
		t.Fatalf("expected version bump, got %d", on.Version)
	}

	off, err := svc.TogglePermission(ctx, tenant, employee.ID, auth.PermReportsView, on.Version)
	if err != nil {
		t.Fatalf("toggle off: %v", err)
	}
	if off.Has(auth.PermReportsView) {
		t.Fatalf("expected permission revoked")
	}
	if len(cache.invalidated) != 2 || cache.invalidated[0] != employee.ID {
		t.Fatalf("expected two invalidations for %s, got %v", employee.ID, cache.invalidated)
	}
}

func TestToggleRejectsUnknownPermission(t *testing.T) {
	svc, _, tenant, list := seeded(t)
	employee := mustFind(t, list, auth.RoleEmployee)
	_, err := svc.TogglePermission(context.Background(), tenant, employee.ID, auth.Permission("payroll.run"), 0)
	if !errors.Is(err, roles.ErrUnknownPermission) {
		t.Fatalf("expected ErrUnknownPermission, got %v", err)
	}
}

func TestStaleVersionIsRejected(t *testing.T) {
	svc, _, tenant, list := seeded(t)
	manager := mustFind(t, list, auth.RoleManager)
	ctx := context.Background()

	if _, err := svc.GrantAll(ctx, tenant, manager.ID, manager.Version); err != nil {
		t.Fatalf("grant all: %v", err)
	}
	if _, err := svc.ClearAll(ctx, tenant, manager.ID, manager.Version); !errors.Is(err, roles.ErrStaleRole) {
		t.Fatalf("expected ErrStaleRole, got %v", err)
	}
	current, _ := svc.Get(ctx, tenant, manager.ID)
	if len(current.Permissions) != len(auth.AllPermissions()) {
		t.Fatalf("stale write must not apply, got %d permissions", len(current.Permissions))
	}
}

func TestSetGroupPermissions(t *testing.T) {
	for _, group := range auth.Groups() {
		group := group
		t.Run(string(group.Group), func(t *testing.T) {
			svc, _, tenant, list := seeded(t)
			role := mustFind(t, list, auth.RoleManager)
			ctx := context.Background()

			enabled, err := svc.SetGroupPermissions(ctx, tenant, role.ID, group.Group, true, 0)
			if err != nil {
				t.Fatalf("enable: %v", err)
			}
			for _, p := range group.Permissions {
				if !enabled.Has(p) {
					t.Fatalf("expected %s after enabling %s", p, group.Group)
				}
			}

			disabled, err := svc.SetGroupPermissions(ctx, tenant, role.ID, group.Group, false, 0)
			if err != nil {
				t.Fatalf("disable: %v", err)
			}
			for _, p := range group.Permissions {
				if disabled.Has(p) {
					t.Fatalf("unexpected %s after disabling %s", p, group.Group)
				}
			}
		})
	}
}

func TestSetGroupPermissionsUnknownGroup(t *testing.T) {
	svc, _, tenant, list := seeded(t)
	role := mustFind(t, list, auth.RoleManager)
	_, err := svc.SetGroupPermissions(context.Background(), tenant, role.ID, auth.PermissionGroup("Payroll"), true, 0)
	if !errors.Is(err, roles.ErrUnknownGroup) {
		t.Fatalf("expected ErrUnknownGroup, got %v", err)
	}
}

func TestGrantAllAndClearAll(t *testing.T) {
	svc, _, tenant, list := seeded(t)
	role := mustFind(t, list, auth.RoleHRStaff)
	ctx := context.Background()

	granted, err := svc.GrantAll(ctx, tenant, role.ID, 0)
	if err != nil {
		t.Fatalf("grant all: %v", err)
	}
	if len(granted.Permissions) != len(auth.AllPermissions()) {
		t.Fatalf("expected full catalog, got %d", len(granted.Permissions))
	}
	cleared, err := svc.ClearAll(ctx, tenant, role.ID, 0)
	if err != nil {
		t.Fatalf("clear all: %v", err)
	}
	if len(cleared.Permissions) != 0 {
		t.Fatalf("expected empty set, got %v", cleared.Permissions)
	}
}

func TestCacheFailureDoesNotFailWrite(t *testing.T) {
	svc, cache, tenant, list := seeded(t)
	cache.err = errors.New("redis down")
	role := mustFind(t, list, auth.RoleEmployee)
	if _, err := svc.GrantAll(context.Background(), tenant, role.ID, 0); err != nil {
		t.Fatalf("expected write to succeed, got %v", err)
	}
}

func TestGetUnknownRole(t *testing.T) {
	svc, _, tenant, _ := seeded(t)
	if _, err := svc.Get(context.Background(), tenant, "missing"); !errors.Is(err, roles.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
