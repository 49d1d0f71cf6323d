package assignments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"hrmaccess/internal/domain/auth"
	"hrmaccess/internal/domain/core"
	"hrmaccess/internal/domain/roles"
)

type RoleLookup interface {
	List(ctx context.Context, tenantID string) ([]roles.Role, error)
	Get(ctx context.Context, tenantID, roleID string) (roles.Role, error)
}

type EmployeeLookup interface {
	GetEmployee(ctx context.Context, tenantID, employeeID string) (core.Employee, error)
}

type Service struct {
	store     StoreAPI
	roles     RoleLookup
	employees EmployeeLookup
	now       func() time.Time
}

func NewService(store StoreAPI, roleLookup RoleLookup, employees EmployeeLookup) *Service {
	return &Service{store: store, roles: roleLookup, employees: employees, now: time.Now}
}

// Resolve returns the employee's role, or nil when the employee has no row or
// the row points at a role that no longer exists.
func (s *Service) Resolve(ctx context.Context, tenantID, employeeID string) (*roles.Role, error) {
	a, err := s.store.GetAssignment(ctx, tenantID, employeeID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	role, err := s.roles.Get(ctx, tenantID, a.RoleID)
	if errors.Is(err, roles.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// Map returns employee id to role id for the tenant.
func (s *Service) Map(ctx context.Context, tenantID string) (map[string]string, error) {
	list, err := s.store.ListAssignments(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(list))
	for _, a := range list {
		out[a.EmployeeID] = a.RoleID
	}
	return out, nil
}

// ResolveIn looks an employee up in already loaded collections.
func ResolveIn(assigned map[string]string, roleList []roles.Role, employeeID string) *roles.Role {
	roleID, ok := assigned[employeeID]
	if !ok {
		return nil
	}
	role, ok := roles.FindByID(roleList, roleID)
	if !ok {
		return nil
	}
	return &role
}

// BackfillMissing gives every employee without a row the Admin role when
// flagged admin and the Employee role otherwise.
func (s *Service) BackfillMissing(ctx context.Context, tenantID string, employees []core.Employee, roleList []roles.Role) (int, error) {
	assigned, err := s.Map(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	missing := make([]Assignment, 0)
	now := s.now().UTC()
	for _, emp := range employees {
		if _, ok := assigned[emp.ID]; ok {
			continue
		}
		role, err := defaultRoleFor(emp, roleList)
		if err != nil {
			return 0, err
		}
		missing = append(missing, Assignment{TenantID: tenantID, EmployeeID: emp.ID, RoleID: role.ID, UpdatedAt: now})
	}
	if len(missing) == 0 {
		return 0, nil
	}
	inserted, err := s.store.InsertMissing(ctx, tenantID, missing)
	if err != nil {
		return 0, fmt.Errorf("backfill assignments: %w", err)
	}
	if inserted > 0 {
		slog.Info("assignments backfilled", "tenantId", tenantID, "inserted", inserted)
	}
	return inserted, nil
}

func defaultRoleFor(emp core.Employee, roleList []roles.Role) (roles.Role, error) {
	if emp.IsAdmin {
		role, ok := roles.FindAdmin(roleList)
		if !ok {
			return roles.Role{}, fmt.Errorf("%w: %s", ErrDefaultRoleMissing, auth.RoleAdmin)
		}
		return role, nil
	}
	role, ok := roles.FindByName(roleList, auth.RoleEmployee)
	if !ok {
		return roles.Role{}, fmt.Errorf("%w: %s", ErrDefaultRoleMissing, auth.RoleEmployee)
	}
	return role, nil
}

// ValidateReassign rejects admin employees and the Admin role as a target.
func ValidateReassign(emp core.Employee, target roles.Role) error {
	if emp.IsAdmin {
		return ErrAdminEmployee
	}
	if target.IsAdmin {
		return ErrAdminRoleTarget
	}
	return nil
}

// Commit validates every change and then applies the batch in one write.
// Either all items are committed or none are; the result lists each item.
func (s *Service) Commit(ctx context.Context, tenantID, changedBy string, changes []Change) (CommitResult, error) {
	result := CommitResult{Items: make([]ItemResult, len(changes))}
	for i, c := range changes {
		result.Items[i] = ItemResult{EmployeeID: c.EmployeeID, OldRoleID: c.OldRoleID, NewRoleID: c.NewRoleID, Status: ItemStatusNotApplied}
	}
	if len(changes) == 0 {
		return result, nil
	}

	roleList, err := s.roles.List(ctx, tenantID)
	if err != nil {
		return result, err
	}
	seen := make(map[string]struct{}, len(changes))
	for i, c := range changes {
		if err := s.check(ctx, tenantID, c, roleList, seen); err != nil {
			result.Items[i].Status = ItemStatusRejected
			result.Items[i].Error = err.Error()
			return result, &ChangeError{Index: i, EmployeeID: c.EmployeeID, Err: err}
		}
	}

	entries, err := s.store.ApplyChanges(ctx, tenantID, changedBy, changes, s.now().UTC())
	if err != nil {
		var changeErr *ChangeError
		if errors.As(err, &changeErr) && changeErr.Index >= 0 && changeErr.Index < len(changes) {
			result.Items[changeErr.Index].Status = ItemStatusConflict
			result.Items[changeErr.Index].Error = changeErr.Err.Error()
		}
		slog.Warn("assignment batch rolled back", "tenantId", tenantID, "changes", len(changes), "err", err)
		return result, err
	}

	for i := range result.Items {
		result.Items[i].Status = ItemStatusCommitted
		if i < len(entries) {
			result.Items[i].AuditID = entries[i].ID
		}
	}
	result.Committed = len(changes)
	slog.Info("assignment batch committed", "tenantId", tenantID, "changedBy", changedBy, "changes", len(changes))
	return result, nil
}

func (s *Service) check(ctx context.Context, tenantID string, c Change, roleList []roles.Role, seen map[string]struct{}) error {
	if _, dup := seen[c.EmployeeID]; dup {
		return ErrDuplicateEmployee
	}
	seen[c.EmployeeID] = struct{}{}

	if c.NewRoleID == c.OldRoleID {
		return ErrUnchanged
	}
	emp, err := s.employees.GetEmployee(ctx, tenantID, c.EmployeeID)
	if err != nil {
		return err
	}
	target, ok := roles.FindByID(roleList, c.NewRoleID)
	if !ok {
		return roles.ErrNotFound
	}
	return ValidateReassign(emp, target)
}

// Reassign commits a single change against the employee's current row.
func (s *Service) Reassign(ctx context.Context, tenantID, changedBy, employeeID, newRoleID, reason string) (ItemResult, error) {
	change := Change{EmployeeID: employeeID, NewRoleID: newRoleID, Reason: reason}
	current, err := s.store.GetAssignment(ctx, tenantID, employeeID)
	switch {
	case err == nil:
		change.OldRoleID = current.RoleID
	case !errors.Is(err, ErrNotFound):
		return ItemResult{}, err
	}
	result, err := s.Commit(ctx, tenantID, changedBy, []Change{change})
	return result.Items[0], err
}
