package access

import (
	"context"
	"fmt"
)

type ReconcileResult struct {
	TenantID string `json:"tenantId"`
	Inserted int    `json:"inserted"`
}

// Reconcile backfills missing assignments for a tenant outside any console
// session, for employees added to the directory since the last load.
func Reconcile(ctx context.Context, deps Deps, tenantID string) (ReconcileResult, error) {
	result := ReconcileResult{TenantID: tenantID}
	if _, err := deps.Roles.SeedDefaultRolesIfEmpty(ctx, tenantID); err != nil {
		return result, err
	}
	employees, err := deps.Directory.ListEmployees(ctx, tenantID)
	if err != nil {
		return result, fmt.Errorf("load employees: %w", err)
	}
	roleList, err := deps.Roles.List(ctx, tenantID)
	if err != nil {
		return result, fmt.Errorf("load roles: %w", err)
	}
	inserted, err := deps.Assignments.BackfillMissing(ctx, tenantID, employees, roleList)
	if err != nil {
		return result, err
	}
	result.Inserted = inserted
	if inserted > 0 && deps.Metrics != nil {
		deps.Metrics.AssignmentsBackfilled(inserted)
	}
	return result, nil
}
