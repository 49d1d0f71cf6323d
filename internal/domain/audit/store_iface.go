package audit

import "context"

type StoreAPI interface {
	Append(ctx context.Context, entry Entry) (Entry, error)
	ListRecent(ctx context.Context, tenantID string, limit int) ([]Entry, error)
	ListByEmployee(ctx context.Context, tenantID, employeeID string) ([]Entry, error)
}
