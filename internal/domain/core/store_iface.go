package core

import "context"

type StoreAPI interface {
	ListEmployees(ctx context.Context, tenantID string) ([]Employee, error)
	GetEmployee(ctx context.Context, tenantID, employeeID string) (Employee, error)
}

// TenantLister enumerates tenants for background jobs.
type TenantLister interface {
	ListTenants(ctx context.Context) ([]string, error)
}
