package audit

import "time"

// Entry records one committed role reassignment. Entries are never updated
// or deleted.
type Entry struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenantId"`
	EmployeeID string    `json:"employeeId"`
	OldRoleID  *string   `json:"oldRoleId"`
	NewRoleID  string    `json:"newRoleId"`
	ChangedBy  string    `json:"changedBy"`
	ChangedAt  time.Time `json:"changedAt"`
	Reason     string    `json:"reason,omitempty"`
}

// Row is an entry with ids resolved to display names, used by exports.
type Row struct {
	ChangedAt time.Time
	Employee  string
	OldRole   string
	NewRole   string
	ChangedBy string
	Reason    string
}
