package assignments

import (
	"context"
	"time"

	"hrmaccess/internal/domain/audit"
)

type StoreAPI interface {
	ListAssignments(ctx context.Context, tenantID string) ([]Assignment, error)
	GetAssignment(ctx context.Context, tenantID, employeeID string) (Assignment, error)
	// InsertMissing inserts rows for employees that have none and leaves
	// existing rows untouched. It returns the number inserted.
	InsertMissing(ctx context.Context, tenantID string, rows []Assignment) (int, error)
	// ApplyChanges writes every change and its audit entry atomically. A change
	// whose stored role no longer equals OldRoleID aborts the whole batch with a
	// *ChangeError wrapping ErrAssignmentConflict.
	ApplyChanges(ctx context.Context, tenantID, changedBy string, changes []Change, at time.Time) ([]audit.Entry, error)
}
