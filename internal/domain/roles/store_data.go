package roles

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"hrmaccess/internal/domain/auth"
)

const roleColumns = "id::text, tenant_id::text, name, COALESCE(description, ''), permissions, is_admin, version, updated_at"

func scanRole(row pgx.Row) (Role, error) {
	var r Role
	var perms []string
	if err := row.Scan(&r.ID, &r.TenantID, &r.Name, &r.Description, &perms, &r.IsAdmin, &r.Version, &r.UpdatedAt); err != nil {
		return Role{}, err
	}
	r.Permissions = fromStrings(perms)
	if r.IsAdmin {
		r.Permissions = auth.AllPermissions()
	}
	return r, nil
}

func (s *Store) ListRoles(ctx context.Context, tenantID string) ([]Role, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+roleColumns+`
    FROM roles
    WHERE tenant_id = $1
    ORDER BY is_admin DESC, created_at, name
  `, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) GetRole(ctx context.Context, tenantID, roleID string) (Role, error) {
	r, err := scanRole(s.DB.QueryRow(ctx, `
    SELECT `+roleColumns+`
    FROM roles
    WHERE tenant_id = $1 AND id::text = $2
  `, tenantID, roleID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, ErrNotFound
	}
	return r, err
}

func (s *Store) InsertRolesIfEmpty(ctx context.Context, tenantID string, defs []auth.RoleDefinition) (int, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Serialises concurrent seeders for the same tenant until commit.
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext('roles:' || $1))", tenantID); err != nil {
		return 0, err
	}

	var existing int
	if err := tx.QueryRow(ctx, "SELECT COUNT(1) FROM roles WHERE tenant_id = $1", tenantID).Scan(&existing); err != nil {
		return 0, err
	}
	if existing > 0 {
		return 0, nil
	}

	created := 0
	for _, def := range defs {
		tag, err := tx.Exec(ctx, `
      INSERT INTO roles (tenant_id, name, description, permissions, is_admin)
      VALUES ($1,$2,$3,$4,$5)
      ON CONFLICT (tenant_id, name) DO NOTHING
    `, tenantID, def.Name, def.Description, toStrings(Normalize(def.Permissions)), def.IsAdmin)
		if err != nil {
			return 0, err
		}
		created += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return created, nil
}

func (s *Store) ReplacePermissions(ctx context.Context, tenantID, roleID string, perms []auth.Permission, expectedVersion int) (Role, error) {
	r, err := scanRole(s.DB.QueryRow(ctx, `
    UPDATE roles
    SET permissions = $1, version = version + 1, updated_at = $2
    WHERE tenant_id = $3 AND id::text = $4 AND version = $5 AND NOT is_admin
    RETURNING `+roleColumns+`
  `, toStrings(Normalize(perms)), time.Now().UTC(), tenantID, roleID, expectedVersion))
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Role{}, err
	}

	current, getErr := s.GetRole(ctx, tenantID, roleID)
	if getErr != nil {
		return Role{}, getErr
	}
	if current.IsAdmin {
		return current, ErrAdminRoleReadOnly
	}
	return current, ErrStaleRole
}

func toStrings(perms []auth.Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}

// fromStrings drops keys that have left the catalog since they were stored.
func fromStrings(values []string) []auth.Permission {
	out := make([]auth.Permission, 0, len(values))
	for _, v := range values {
		if p, ok := auth.ParsePermission(v); ok {
			out = append(out, p)
		}
	}
	return Normalize(out)
}
