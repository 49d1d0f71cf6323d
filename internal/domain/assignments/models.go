package assignments

import "time"

type Assignment struct {
	TenantID   string    `json:"tenantId"`
	EmployeeID string    `json:"employeeId"`
	RoleID     string    `json:"roleId"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Change moves an employee from OldRoleID to NewRoleID. An empty OldRoleID
// means the employee is expected to have no assignment row yet.
type Change struct {
	EmployeeID string `json:"employeeId"`
	OldRoleID  string `json:"oldRoleId,omitempty"`
	NewRoleID  string `json:"newRoleId"`
	Reason     string `json:"reason,omitempty"`
}

const (
	ItemStatusCommitted  = "committed"
	ItemStatusRejected   = "rejected"
	ItemStatusConflict   = "conflict"
	ItemStatusNotApplied = "not_applied"
)

type ItemResult struct {
	EmployeeID string `json:"employeeId"`
	OldRoleID  string `json:"oldRoleId,omitempty"`
	NewRoleID  string `json:"newRoleId"`
	Status     string `json:"status"`
	AuditID    string `json:"auditId,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CommitResult reports every item of a batch. A batch is applied entirely or
// not at all, so Committed is either zero or len(Items).
type CommitResult struct {
	Items     []ItemResult `json:"items"`
	Committed int          `json:"committed"`
}
