package access

import (
	"context"
	"errors"
	"log/slog"

	"hrmaccess/internal/domain/assignments"
	"hrmaccess/internal/domain/auth"
	"hrmaccess/internal/domain/core"
	"hrmaccess/internal/domain/roles"
)

// PermissionCache holds role permission sets. A reader takes the role's
// generation before loading it and writes back with SetIfCurrent, which
// refuses the write when a role update invalidated the entry in between.
type PermissionCache interface {
	Get(ctx context.Context, tenantID, roleID string) ([]auth.Permission, bool, error)
	Generation(ctx context.Context, tenantID, roleID string) (int64, error)
	SetIfCurrent(ctx context.Context, tenantID, roleID string, generation int64, perms []auth.Permission) (bool, error)
}

type AssignmentReader interface {
	GetAssignment(ctx context.Context, tenantID, employeeID string) (assignments.Assignment, error)
}

type RoleReader interface {
	GetRole(ctx context.Context, tenantID, roleID string) (roles.Role, error)
}

type EmployeeReader interface {
	GetEmployee(ctx context.Context, tenantID, employeeID string) (core.Employee, error)
}

// Authorizer answers permission checks from the assignment map. Role
// permission sets are read through the cache.
type Authorizer struct {
	assignments AssignmentReader
	roles       RoleReader
	employees   EmployeeReader
	cache       PermissionCache
}

func NewAuthorizer(assigned AssignmentReader, roleReader RoleReader, employees EmployeeReader, cache PermissionCache) *Authorizer {
	return &Authorizer{assignments: assigned, roles: roleReader, employees: employees, cache: cache}
}

// EffectivePermissions returns the employee's permission set. Admin employees
// hold the full catalog; unassigned employees and dangling assignments hold
// nothing.
func (a *Authorizer) EffectivePermissions(ctx context.Context, tenantID, employeeID string) ([]auth.Permission, error) {
	emp, err := a.employees.GetEmployee(ctx, tenantID, employeeID)
	if err != nil {
		return nil, err
	}
	if emp.IsAdmin {
		return auth.AllPermissions(), nil
	}

	assigned, err := a.assignments.GetAssignment(ctx, tenantID, employeeID)
	if errors.Is(err, assignments.ErrNotFound) {
		return []auth.Permission{}, nil
	}
	if err != nil {
		return nil, err
	}

	cacheable := a.cache != nil
	var generation int64
	if cacheable {
		perms, ok, err := a.cache.Get(ctx, tenantID, assigned.RoleID)
		if err != nil {
			slog.Warn("permission cache read failed", "tenantId", tenantID, "roleId", assigned.RoleID, "err", err)
		} else if ok {
			return perms, nil
		}
		if generation, err = a.cache.Generation(ctx, tenantID, assigned.RoleID); err != nil {
			slog.Warn("permission cache generation read failed", "tenantId", tenantID, "roleId", assigned.RoleID, "err", err)
			cacheable = false
		}
	}

	role, err := a.roles.GetRole(ctx, tenantID, assigned.RoleID)
	if errors.Is(err, roles.ErrNotFound) {
		return []auth.Permission{}, nil
	}
	if err != nil {
		return nil, err
	}
	if cacheable {
		if _, err := a.cache.SetIfCurrent(ctx, tenantID, role.ID, generation, role.Permissions); err != nil {
			slog.Warn("permission cache write failed", "tenantId", tenantID, "roleId", role.ID, "err", err)
		}
	}
	return role.Permissions, nil
}

func (a *Authorizer) HasPermission(ctx context.Context, user auth.UserContext, perm auth.Permission) (bool, error) {
	if user.EmployeeID == "" {
		return false, nil
	}
	perms, err := a.EffectivePermissions(ctx, user.TenantID, user.EmployeeID)
	if errors.Is(err, core.ErrEmployeeNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if p == perm {
			return true, nil
		}
	}
	return false, nil
}
