// Package memstore keeps every collection in process memory behind a single
// mutex. It backs STORE_DRIVER=memory and the service tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"hrmaccess/internal/domain/assignments"
	"hrmaccess/internal/domain/audit"
	"hrmaccess/internal/domain/auth"
	"hrmaccess/internal/domain/core"
	"hrmaccess/internal/domain/roles"
)

var (
	_ roles.StoreAPI       = (*Store)(nil)
	_ core.StoreAPI        = (*Store)(nil)
	_ core.TenantLister    = (*Store)(nil)
	_ assignments.StoreAPI = (*Store)(nil)
	_ audit.StoreAPI       = (*Store)(nil)
	_ auth.UserStore       = (*Store)(nil)
	_ auth.UserDirectory   = (*Store)(nil)
)

type user struct {
	auth.LoginUser
	Email     string
	LastLogin time.Time
}

type auditRecord struct {
	audit.Entry
	seq int
}

type JobRun struct {
	ID          string
	TenantID    string
	JobType     string
	Status      string
	Details     []byte
	StartedAt   time.Time
	CompletedAt time.Time
}

type Store struct {
	mu          sync.RWMutex
	now         func() time.Time
	tenants     []string
	roles       map[string][]roles.Role
	employees   map[string][]core.Employee
	users       []user
	assignments map[string]map[string]assignments.Assignment
	audit       map[string][]auditRecord
	seq         int
	runs        []JobRun
	failures    map[string]error
}

func New() *Store {
	return &Store{
		now:         time.Now,
		roles:       map[string][]roles.Role{},
		employees:   map[string][]core.Employee{},
		assignments: map[string]map[string]assignments.Assignment{},
		audit:       map[string][]auditRecord{},
		failures:    map[string]error{},
	}
}

// FailOn makes the named method return err until cleared with a nil err.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, method)
		return
	}
	s.failures[method] = err
}

func (s *Store) fail(method string) error {
	return s.failures[method]
}

func (s *Store) AddTenant() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.tenants = append(s.tenants, id)
	return id
}

func (s *Store) AddEmployee(emp core.Employee) core.Employee {
	s.mu.Lock()
	defer s.mu.Unlock()
	if emp.ID == "" {
		emp.ID = uuid.NewString()
	}
	if emp.Status == "" {
		emp.Status = core.EmployeeStatusActive
	}
	if emp.CreatedAt.IsZero() {
		emp.CreatedAt = s.now().UTC()
	}
	s.employees[emp.TenantID] = append(s.employees[emp.TenantID], emp)
	return emp
}

func (s *Store) AddUser(tenantID, employeeID, email, passwordHash string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.users = append(s.users, user{
		LoginUser: auth.LoginUser{ID: id, TenantID: tenantID, EmployeeID: employeeID, PasswordHash: passwordHash},
		Email:     email,
	})
	return id
}

// DeleteRole removes a role without touching assignments that point at it.
func (s *Store) DeleteRole(tenantID, roleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.roles[tenantID]
	for i, r := range list {
		if r.ID == roleID {
			s.roles[tenantID] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

func (s *Store) ListTenants(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("ListTenants"); err != nil {
		return nil, err
	}
	return append([]string(nil), s.tenants...), nil
}

// Users

func (s *Store) FindActiveUserByEmail(_ context.Context, email string) (auth.LoginUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u.LoginUser, nil
		}
	}
	return auth.LoginUser{}, auth.ErrUserNotFound
}

func (s *Store) UpdateLastLogin(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.users {
		if s.users[i].ID == userID {
			s.users[i].LastLogin = s.now().UTC()
			return nil
		}
	}
	return auth.ErrUserNotFound
}

func (s *Store) ListUsers(_ context.Context, tenantID string) ([]auth.UserSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("ListUsers"); err != nil {
		return nil, err
	}
	out := []auth.UserSummary{}
	for _, u := range s.users {
		if u.TenantID == tenantID {
			out = append(out, auth.UserSummary{ID: u.ID, EmployeeID: u.EmployeeID, Email: u.Email})
		}
	}
	return out, nil
}

// Roles

func cloneRole(r roles.Role) roles.Role {
	r.Permissions = append([]auth.Permission(nil), r.Permissions...)
	if r.IsAdmin {
		r.Permissions = auth.AllPermissions()
	}
	return r
}

func (s *Store) ListRoles(_ context.Context, tenantID string) ([]roles.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("ListRoles"); err != nil {
		return nil, err
	}
	out := make([]roles.Role, 0, len(s.roles[tenantID]))
	for _, r := range s.roles[tenantID] {
		out = append(out, cloneRole(r))
	}
	return out, nil
}

func (s *Store) GetRole(_ context.Context, tenantID, roleID string) (roles.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("GetRole"); err != nil {
		return roles.Role{}, err
	}
	for _, r := range s.roles[tenantID] {
		if r.ID == roleID {
			return cloneRole(r), nil
		}
	}
	return roles.Role{}, roles.ErrNotFound
}

func (s *Store) InsertRolesIfEmpty(_ context.Context, tenantID string, defs []auth.RoleDefinition) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("InsertRolesIfEmpty"); err != nil {
		return 0, err
	}
	if len(s.roles[tenantID]) > 0 {
		return 0, nil
	}
	now := s.now().UTC()
	for _, def := range defs {
		s.roles[tenantID] = append(s.roles[tenantID], roles.Role{
			ID:          uuid.NewString(),
			TenantID:    tenantID,
			Name:        def.Name,
			Description: def.Description,
			Permissions: roles.Normalize(def.Permissions),
			IsAdmin:     def.IsAdmin,
			Version:     1,
			UpdatedAt:   now,
		})
	}
	return len(defs), nil
}

func (s *Store) ReplacePermissions(_ context.Context, tenantID, roleID string, perms []auth.Permission, expectedVersion int) (roles.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ReplacePermissions"); err != nil {
		return roles.Role{}, err
	}
	list := s.roles[tenantID]
	for i := range list {
		if list[i].ID != roleID {
			continue
		}
		if list[i].IsAdmin {
			return cloneRole(list[i]), roles.ErrAdminRoleReadOnly
		}
		if list[i].Version != expectedVersion {
			return cloneRole(list[i]), roles.ErrStaleRole
		}
		list[i].Permissions = roles.Normalize(perms)
		list[i].Version++
		list[i].UpdatedAt = s.now().UTC()
		return cloneRole(list[i]), nil
	}
	return roles.Role{}, roles.ErrNotFound
}

// Employees

func (s *Store) ListEmployees(_ context.Context, tenantID string) ([]core.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("ListEmployees"); err != nil {
		return nil, err
	}
	out := make([]core.Employee, 0, len(s.employees[tenantID]))
	for _, emp := range s.employees[tenantID] {
		if emp.Status == core.EmployeeStatusActive {
			out = append(out, emp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].LastName != out[j].LastName {
			return out[i].LastName < out[j].LastName
		}
		return out[i].FirstName < out[j].FirstName
	})
	return out, nil
}

func (s *Store) GetEmployee(_ context.Context, tenantID, employeeID string) (core.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("GetEmployee"); err != nil {
		return core.Employee{}, err
	}
	for _, emp := range s.employees[tenantID] {
		if emp.ID == employeeID {
			return emp, nil
		}
	}
	return core.Employee{}, core.ErrEmployeeNotFound
}

// Assignments

func (s *Store) ListAssignments(_ context.Context, tenantID string) ([]assignments.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("ListAssignments"); err != nil {
		return nil, err
	}
	out := make([]assignments.Assignment, 0, len(s.assignments[tenantID]))
	for _, a := range s.assignments[tenantID] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EmployeeID < out[j].EmployeeID })
	return out, nil
}

func (s *Store) GetAssignment(_ context.Context, tenantID, employeeID string) (assignments.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("GetAssignment"); err != nil {
		return assignments.Assignment{}, err
	}
	a, ok := s.assignments[tenantID][employeeID]
	if !ok {
		return assignments.Assignment{}, assignments.ErrNotFound
	}
	return a, nil
}

func (s *Store) InsertMissing(_ context.Context, tenantID string, items []assignments.Assignment) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("InsertMissing"); err != nil {
		return 0, err
	}
	m := s.tenantAssignments(tenantID)
	inserted := 0
	for _, item := range items {
		if _, ok := m[item.EmployeeID]; ok {
			continue
		}
		item.TenantID = tenantID
		m[item.EmployeeID] = item
		inserted++
	}
	return inserted, nil
}

// ApplyChanges checks every guard before writing anything, so a conflict
// leaves both the map and the log untouched.
func (s *Store) ApplyChanges(_ context.Context, tenantID, changedBy string, changes []assignments.Change, at time.Time) ([]audit.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ApplyChanges"); err != nil {
		return nil, err
	}
	m := s.tenantAssignments(tenantID)
	for i, c := range changes {
		current := m[c.EmployeeID]
		if current.RoleID != c.OldRoleID {
			return nil, &assignments.ChangeError{Index: i, EmployeeID: c.EmployeeID, Err: assignments.ErrAssignmentConflict}
		}
	}

	entries := make([]audit.Entry, 0, len(changes))
	for _, c := range changes {
		m[c.EmployeeID] = assignments.Assignment{TenantID: tenantID, EmployeeID: c.EmployeeID, RoleID: c.NewRoleID, UpdatedAt: at}
		entries = append(entries, s.appendAudit(assignments.AuditEntry(tenantID, changedBy, c, at)))
	}
	return entries, nil
}

func (s *Store) tenantAssignments(tenantID string) map[string]assignments.Assignment {
	m, ok := s.assignments[tenantID]
	if !ok {
		m = map[string]assignments.Assignment{}
		s.assignments[tenantID] = m
	}
	return m
}

// Audit

func (s *Store) appendAudit(entry audit.Entry) audit.Entry {
	s.seq++
	entry.ID = uuid.NewString()
	s.audit[entry.TenantID] = append(s.audit[entry.TenantID], auditRecord{Entry: entry, seq: s.seq})
	return entry
}

func (s *Store) Append(_ context.Context, entry audit.Entry) (audit.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("Append"); err != nil {
		return audit.Entry{}, err
	}
	return s.appendAudit(entry), nil
}

func (s *Store) ListRecent(_ context.Context, tenantID string, limit int) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("ListRecent"); err != nil {
		return nil, err
	}
	out := s.sortedAudit(tenantID, "")
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListByEmployee(_ context.Context, tenantID, employeeID string) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("ListByEmployee"); err != nil {
		return nil, err
	}
	return s.sortedAudit(tenantID, employeeID), nil
}

func (s *Store) sortedAudit(tenantID, employeeID string) []audit.Entry {
	records := make([]auditRecord, 0, len(s.audit[tenantID]))
	for _, r := range s.audit[tenantID] {
		if employeeID == "" || r.EmployeeID == employeeID {
			records = append(records, r)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].ChangedAt.Equal(records[j].ChangedAt) {
			return records[i].ChangedAt.After(records[j].ChangedAt)
		}
		return records[i].seq > records[j].seq
	})
	out := make([]audit.Entry, len(records))
	for i, r := range records {
		out[i] = r.Entry
	}
	return out
}

// Job runs

func (s *Store) StartRun(_ context.Context, tenantID, jobType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("StartRun"); err != nil {
		return "", err
	}
	id := uuid.NewString()
	s.runs = append(s.runs, JobRun{ID: id, TenantID: tenantID, JobType: jobType, Status: "running", StartedAt: s.now().UTC()})
	return id, nil
}

func (s *Store) FinishRun(_ context.Context, runID, status string, details []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.runs {
		if s.runs[i].ID == runID {
			s.runs[i].Status = status
			s.runs[i].Details = append([]byte(nil), details...)
			s.runs[i].CompletedAt = s.now().UTC()
			return nil
		}
	}
	return fmt.Errorf("job run %s not found", runID)
}

func (s *Store) Runs() []JobRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]JobRun(nil), s.runs...)
}
