package roles

import (
	"context"

	"hrmaccess/internal/domain/auth"
)

type StoreAPI interface {
	ListRoles(ctx context.Context, tenantID string) ([]Role, error)
	GetRole(ctx context.Context, tenantID, roleID string) (Role, error)
	// InsertRolesIfEmpty creates every definition only when the tenant has no
	// roles yet. It returns the number of roles created.
	InsertRolesIfEmpty(ctx context.Context, tenantID string, defs []auth.RoleDefinition) (int, error)
	// ReplacePermissions overwrites the permission set when the stored version
	// still equals expectedVersion and bumps the version.
	ReplacePermissions(ctx context.Context, tenantID, roleID string, perms []auth.Permission, expectedVersion int) (Role, error)
}

// CacheInvalidator drops cached permission sets after a role write.
type CacheInvalidator interface {
	InvalidateRole(ctx context.Context, tenantID, roleID string) error
}
