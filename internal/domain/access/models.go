package access

import (
	"time"

	"hrmaccess/internal/domain/assignments"
	"hrmaccess/internal/domain/audit"
	"hrmaccess/internal/domain/core"
	"hrmaccess/internal/domain/roles"
)

type State string

const (
	StateBrowsing   State = "browsing"
	StateStaged     State = "staged"
	StateCommitting State = "committing"
)

type EmployeeView struct {
	Employee      core.Employee `json:"employee"`
	Role          *roles.Role   `json:"role"`
	Pending       bool          `json:"pending"`
	PendingRoleID string        `json:"pendingRoleId,omitempty"`
}

type Selection struct {
	Employee        core.Employee `json:"employee"`
	CurrentRole     *roles.Role   `json:"currentRole"`
	StagedRoleID    string        `json:"stagedRoleId,omitempty"`
	Reassignable    bool          `json:"reassignable"`
	AssignableRoles []roles.Role  `json:"assignableRoles"`
}

type Snapshot struct {
	State       State                `json:"state"`
	Employees   []EmployeeView       `json:"employees"`
	Departments []string             `json:"departments"`
	Roles       []roles.Role         `json:"roles"`
	Recent      []audit.Entry        `json:"recent"`
	Pending     []assignments.Change `json:"pending"`
	// Dropped lists staged changes the last load discarded because the
	// employee's role changed underneath them.
	Dropped     []assignments.Change `json:"dropped,omitempty"`
	Selected    *Selection           `json:"selected,omitempty"`
	LastError   string               `json:"lastError,omitempty"`
	LoadedAt    time.Time            `json:"loadedAt"`
}

// Recorder receives console events for metrics.
type Recorder interface {
	RoleChangesCommitted(n int)
	CommitFailed()
	PermissionEdited(op string)
	AssignmentsBackfilled(n int)
}

type nopRecorder struct{}

func (nopRecorder) RoleChangesCommitted(int) {}
func (nopRecorder) CommitFailed() {}
func (nopRecorder) PermissionEdited(string) {}
func (nopRecorder) AssignmentsBackfilled(int) {}
