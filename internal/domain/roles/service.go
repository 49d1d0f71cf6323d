package roles

import (
	"context"
	"fmt"
	"log/slog"

	"hrmaccess/internal/domain/auth"
)

type Service struct {
	store StoreAPI
	cache CacheInvalidator
}

func NewService(store StoreAPI, cache CacheInvalidator) *Service {
	return &Service{store: store, cache: cache}
}

func (s *Service) List(ctx context.Context, tenantID string) ([]Role, error) {
	return s.store.ListRoles(ctx, tenantID)
}

func (s *Service) Get(ctx context.Context, tenantID, roleID string) (Role, error) {
	return s.store.GetRole(ctx, tenantID, roleID)
}

// SeedDefaultRolesIfEmpty creates the four default roles for a tenant that has none.
func (s *Service) SeedDefaultRolesIfEmpty(ctx context.Context, tenantID string) (int, error) {
	created, err := s.store.InsertRolesIfEmpty(ctx, tenantID, auth.DefaultRoles())
	if err != nil {
		return 0, fmt.Errorf("seed default roles: %w", err)
	}
	if created > 0 {
		slog.Info("default roles seeded", "tenantId", tenantID, "created", created)
	}
	return created, nil
}

func (s *Service) TogglePermission(ctx context.Context, tenantID, roleID string, perm auth.Permission, expectedVersion int) (Role, error) {
	if _, ok := auth.ParsePermission(string(perm)); !ok {
		return Role{}, fmt.Errorf("%w: %s", ErrUnknownPermission, perm)
	}
	return s.mutate(ctx, tenantID, roleID, expectedVersion, func(current []auth.Permission) []auth.Permission {
		next := make([]auth.Permission, 0, len(current)+1)
		found := false
		for _, p := range current {
			if p == perm {
				found = true
				continue
			}
			next = append(next, p)
		}
		if !found {
			next = append(next, perm)
		}
		return next
	})
}

func (s *Service) SetGroupPermissions(ctx context.Context, tenantID, roleID string, group auth.PermissionGroup, enabled bool, expectedVersion int) (Role, error) {
	groupPerms, ok := auth.GroupPermissions(group)
	if !ok {
		return Role{}, fmt.Errorf("%w: %s", ErrUnknownGroup, group)
	}
	inGroup := make(map[auth.Permission]struct{}, len(groupPerms))
	for _, p := range groupPerms {
		inGroup[p] = struct{}{}
	}
	return s.mutate(ctx, tenantID, roleID, expectedVersion, func(current []auth.Permission) []auth.Permission {
		next := make([]auth.Permission, 0, len(current)+len(groupPerms))
		for _, p := range current {
			if _, ok := inGroup[p]; ok {
				continue
			}
			next = append(next, p)
		}
		if enabled {
			next = append(next, groupPerms...)
		}
		return next
	})
}

func (s *Service) GrantAll(ctx context.Context, tenantID, roleID string, expectedVersion int) (Role, error) {
	return s.mutate(ctx, tenantID, roleID, expectedVersion, func([]auth.Permission) []auth.Permission {
		return auth.AllPermissions()
	})
}

func (s *Service) ClearAll(ctx context.Context, tenantID, roleID string, expectedVersion int) (Role, error) {
	return s.mutate(ctx, tenantID, roleID, expectedVersion, func([]auth.Permission) []auth.Permission {
		return nil
	})
}

// mutate applies fn to the stored set and writes the full result back.
// expectedVersion 0 means "the version just read".
func (s *Service) mutate(ctx context.Context, tenantID, roleID string, expectedVersion int, fn func([]auth.Permission) []auth.Permission) (Role, error) {
	current, err := s.store.GetRole(ctx, tenantID, roleID)
	if err != nil {
		return Role{}, err
	}
	if current.IsAdmin {
		return current, ErrAdminRoleReadOnly
	}
	if expectedVersion > 0 && expectedVersion != current.Version {
		return current, ErrStaleRole
	}

	updated, err := s.store.ReplacePermissions(ctx, tenantID, roleID, Normalize(fn(current.Permissions)), current.Version)
	if err != nil {
		return updated, err
	}

	if s.cache != nil {
		if err := s.cache.InvalidateRole(ctx, tenantID, roleID); err != nil {
			slog.Warn("permission cache invalidate failed", "tenantId", tenantID, "roleId", roleID, "err", err)
		}
	}
	return updated, nil
}
