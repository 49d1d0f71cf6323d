package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"hrmaccess/internal/domain/assignments"
	"hrmaccess/internal/domain/audit"
	"hrmaccess/internal/domain/auth"
	"hrmaccess/internal/domain/core"
	"hrmaccess/internal/domain/roles"
)

type Deps struct {
	Directory   core.StoreAPI
	Roles       *roles.Service
	Assignments *assignments.Service
	Audit       *audit.Service
	Metrics     Recorder
	RecentLimit int
}

// Console is one admin's working copy of the directory, roles and audit log.
// Role reassignments are staged locally until Commit; permission edits are
// written through immediately.
type Console struct {
	deps     Deps
	tenantID string
	userID   string
	now      func() time.Time

	mu        sync.Mutex
	state     State
	loaded    bool
	employees []core.Employee
	roles     []roles.Role
	assigned  map[string]string
	recent    []audit.Entry
	staged    []assignments.Change
	selected  string
	dropped   []assignments.Change
	lastErr   string
	loadedAt  time.Time
}

func NewConsole(deps Deps, tenantID, userID string) *Console {
	if deps.Metrics == nil {
		deps.Metrics = nopRecorder{}
	}
	return &Console{
		deps:     deps,
		tenantID: tenantID,
		userID:   userID,
		now:      time.Now,
		state:    StateBrowsing,
		assigned: map[string]string{},
	}
}

// Load refreshes every collection. Collections that fail to load keep their
// previous contents and the joined error is returned.
func (c *Console) Load(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateCommitting {
		c.mu.Unlock()
		return ErrCommitInProgress
	}
	c.mu.Unlock()
	return c.reload(ctx)
}

func (c *Console) reload(ctx context.Context) error {
	var errs []error

	if _, err := c.deps.Roles.SeedDefaultRolesIfEmpty(ctx, c.tenantID); err != nil {
		errs = append(errs, err)
	}
	employees, empErr := c.deps.Directory.ListEmployees(ctx, c.tenantID)
	if empErr != nil {
		errs = append(errs, fmt.Errorf("load employees: %w", empErr))
	}
	roleList, roleErr := c.deps.Roles.List(ctx, c.tenantID)
	if roleErr != nil {
		errs = append(errs, fmt.Errorf("load roles: %w", roleErr))
	}
	recent, auditErr := c.deps.Audit.ListRecent(ctx, c.tenantID, c.deps.RecentLimit)
	if auditErr != nil {
		errs = append(errs, fmt.Errorf("load audit log: %w", auditErr))
	}

	if empErr == nil && roleErr == nil {
		inserted, err := c.deps.Assignments.BackfillMissing(ctx, c.tenantID, employees, roleList)
		if err != nil {
			errs = append(errs, err)
		} else if inserted > 0 {
			c.deps.Metrics.AssignmentsBackfilled(inserted)
		}
	}
	assigned, mapErr := c.deps.Assignments.Map(ctx, c.tenantID)
	if mapErr != nil {
		errs = append(errs, fmt.Errorf("load assignments: %w", mapErr))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if empErr == nil {
		c.employees = employees
	}
	if roleErr == nil {
		c.roles = roleList
	}
	if auditErr == nil {
		c.recent = recent
	}
	if mapErr == nil {
		c.assigned = assigned
		c.dropOutdatedStaged()
	}
	c.loaded = true
	c.loadedAt = c.now().UTC()

	err := errors.Join(errs...)
	c.lastErr = ""
	if err != nil {
		c.lastErr = err.Error()
		slog.Warn("console load incomplete", "tenantId", c.tenantID, "userId", c.userID, "err", err)
	}
	return err
}

// Select marks an employee as the one being edited and resolves their role.
func (c *Console) Select(employeeID string) (Selection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		return Selection{}, ErrNotLoaded
	}
	emp, ok := c.findEmployee(employeeID)
	if !ok {
		return Selection{}, core.ErrEmployeeNotFound
	}
	c.selected = employeeID
	return c.selectionFor(emp), nil
}

func (c *Console) selectionFor(emp core.Employee) Selection {
	sel := Selection{
		Employee:        emp,
		CurrentRole:     assignments.ResolveIn(c.assigned, c.roles, emp.ID),
		Reassignable:    !emp.IsAdmin,
		AssignableRoles: make([]roles.Role, 0, len(c.roles)),
	}
	if i := c.stagedIndex(emp.ID); i >= 0 {
		sel.StagedRoleID = c.staged[i].NewRoleID
	}
	for _, r := range c.roles {
		if !r.IsAdmin {
			sel.AssignableRoles = append(sel.AssignableRoles, r)
		}
	}
	return sel
}

// Stage records a pending reassignment. Staging an employee back to the role
// they already hold removes the pending change.
func (c *Console) Stage(employeeID, roleID, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateCommitting {
		return ErrCommitInProgress
	}
	if !c.loaded {
		return ErrNotLoaded
	}
	emp, ok := c.findEmployee(employeeID)
	if !ok {
		return core.ErrEmployeeNotFound
	}
	target, ok := roles.FindByID(c.roles, roleID)
	if !ok {
		return roles.ErrNotFound
	}
	if err := assignments.ValidateReassign(emp, target); err != nil {
		return err
	}

	current := c.assigned[employeeID]
	idx := c.stagedIndex(employeeID)
	switch {
	case roleID == current:
		if idx >= 0 {
			c.staged = append(c.staged[:idx], c.staged[idx+1:]...)
		}
	case idx >= 0:
		c.staged[idx].OldRoleID = current
		c.staged[idx].NewRoleID = roleID
		c.staged[idx].Reason = reason
	default:
		c.staged = append(c.staged, assignments.Change{EmployeeID: employeeID, OldRoleID: current, NewRoleID: roleID, Reason: reason})
	}
	c.syncState()
	return nil
}

// Discard drops every staged change without writing anything.
func (c *Console) Discard() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateCommitting {
		return ErrCommitInProgress
	}
	c.staged = nil
	c.syncState()
	return nil
}

func (c *Console) Pending() []assignments.Change {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]assignments.Change(nil), c.staged...)
}

func (c *Console) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Commit writes every staged change as one batch. On success the staged set
// is cleared and all collections are reloaded. On failure the console goes
// back to Staged with the changes kept.
func (c *Console) Commit(ctx context.Context) (assignments.CommitResult, error) {
	c.mu.Lock()
	if c.state == StateCommitting {
		c.mu.Unlock()
		return assignments.CommitResult{}, ErrCommitInProgress
	}
	if len(c.staged) == 0 {
		c.mu.Unlock()
		return assignments.CommitResult{Items: []assignments.ItemResult{}}, nil
	}
	changes := append([]assignments.Change(nil), c.staged...)
	c.state = StateCommitting
	c.mu.Unlock()

	result, err := c.deps.Assignments.Commit(ctx, c.tenantID, c.userID, changes)
	if err != nil {
		c.deps.Metrics.CommitFailed()
		c.mu.Lock()
		c.state = StateStaged
		c.lastErr = err.Error()
		c.mu.Unlock()
		return result, err
	}
	c.deps.Metrics.RoleChangesCommitted(result.Committed)

	c.mu.Lock()
	c.staged = nil
	c.state = StateBrowsing
	c.mu.Unlock()

	if reloadErr := c.reload(ctx); reloadErr != nil {
		slog.Warn("reload after commit failed", "tenantId", c.tenantID, "err", reloadErr)
	}
	return result, nil
}

// Snapshot renders the console for the given filter.
func (c *Console) Snapshot(filter core.Filter) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	pending := make(map[string]string, len(c.staged))
	for _, ch := range c.staged {
		pending[ch.EmployeeID] = ch.NewRoleID
	}
	filtered := core.FilterEmployees(c.employees, filter)
	views := make([]EmployeeView, 0, len(filtered))
	for _, emp := range filtered {
		newRole, ok := pending[emp.ID]
		views = append(views, EmployeeView{
			Employee:      emp,
			Role:          assignments.ResolveIn(c.assigned, c.roles, emp.ID),
			Pending:       ok,
			PendingRoleID: newRole,
		})
	}

	snap := Snapshot{
		State:       c.state,
		Employees:   views,
		Departments: core.Departments(c.employees),
		Roles:       append([]roles.Role(nil), c.roles...),
		Recent:      append([]audit.Entry(nil), c.recent...),
		Pending:     append([]assignments.Change(nil), c.staged...),
		Dropped:     append([]assignments.Change(nil), c.dropped...),
		LastError:   c.lastErr,
		LoadedAt:    c.loadedAt,
	}
	if emp, ok := c.findEmployee(c.selected); ok {
		sel := c.selectionFor(emp)
		snap.Selected = &sel
	}
	return snap
}

func (c *Console) TogglePermission(ctx context.Context, roleID string, perm auth.Permission, expectedVersion int) (roles.Role, error) {
	return c.editRole("toggle", func() (roles.Role, error) {
		return c.deps.Roles.TogglePermission(ctx, c.tenantID, roleID, perm, expectedVersion)
	})
}

func (c *Console) SetGroupPermissions(ctx context.Context, roleID string, group auth.PermissionGroup, enabled bool, expectedVersion int) (roles.Role, error) {
	return c.editRole("group", func() (roles.Role, error) {
		return c.deps.Roles.SetGroupPermissions(ctx, c.tenantID, roleID, group, enabled, expectedVersion)
	})
}

func (c *Console) GrantAll(ctx context.Context, roleID string, expectedVersion int) (roles.Role, error) {
	return c.editRole("grant_all", func() (roles.Role, error) {
		return c.deps.Roles.GrantAll(ctx, c.tenantID, roleID, expectedVersion)
	})
}

func (c *Console) ClearAll(ctx context.Context, roleID string, expectedVersion int) (roles.Role, error) {
	return c.editRole("clear_all", func() (roles.Role, error) {
		return c.deps.Roles.ClearAll(ctx, c.tenantID, roleID, expectedVersion)
	})
}

// editRole applies a permission edit and refreshes the cached copy of the
// role, including after a stale-version rejection.
func (c *Console) editRole(op string, fn func() (roles.Role, error)) (roles.Role, error) {
	updated, err := fn()
	if updated.ID != "" {
		c.mu.Lock()
		for i := range c.roles {
			if c.roles[i].ID == updated.ID {
				c.roles[i] = updated
			}
		}
		c.mu.Unlock()
	}
	if err != nil {
		return updated, err
	}
	c.deps.Metrics.PermissionEdited(op)
	slog.Info("role permissions updated", "tenantId", c.tenantID, "userId", c.userID, "roleId", updated.ID, "op", op, "version", updated.Version)
	return updated, nil
}

func (c *Console) findEmployee(id string) (core.Employee, bool) {
	if id == "" {
		return core.Employee{}, false
	}
	for _, emp := range c.employees {
		if emp.ID == id {
			return emp, true
		}
	}
	return core.Employee{}, false
}

// dropOutdatedStaged removes staged changes whose employee moved to another
// role since staging. They would fail the whole batch on commit, so they are
// reported in the snapshot for the admin to stage again.
func (c *Console) dropOutdatedStaged() {
	c.dropped = nil
	kept := c.staged[:0]
	for _, ch := range c.staged {
		if c.assigned[ch.EmployeeID] == ch.OldRoleID {
			kept = append(kept, ch)
			continue
		}
		c.dropped = append(c.dropped, ch)
		slog.Info("staged change dropped after reload", "tenantId", c.tenantID, "userId", c.userID,
			"employeeId", ch.EmployeeID, "stagedFrom", ch.OldRoleID, "current", c.assigned[ch.EmployeeID])
	}
	c.staged = kept
	if c.state != StateCommitting {
		c.syncState()
	}
}

func (c *Console) stagedIndex(employeeID string) int {
	for i, ch := range c.staged {
		if ch.EmployeeID == employeeID {
			return i
		}
	}
	return -1
}

func (c *Console) syncState() {
	if len(c.staged) > 0 {
		c.state = StateStaged
		return
	}
	c.state = StateBrowsing
}
