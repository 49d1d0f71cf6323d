package db

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hrmaccess/internal/domain/auth"
	"hrmaccess/internal/domain/roles"
)

type SeedConfig struct {
	TenantName    string
	AdminEmail    string
	AdminPassword string
}

// Seed creates the tenant, its default roles and, when credentials are set,
// an admin employee with a login. Every step is idempotent.
func Seed(ctx context.Context, pool *pgxpool.Pool, cfg SeedConfig) (string, error) {
	tenantID, err := ensureTenant(ctx, pool, cfg.TenantName)
	if err != nil {
		return "", err
	}

	if _, err := roles.NewService(roles.NewStore(pool), nil).SeedDefaultRolesIfEmpty(ctx, tenantID); err != nil {
		return "", err
	}

	if strings.TrimSpace(cfg.AdminEmail) == "" || strings.TrimSpace(cfg.AdminPassword) == "" {
		return tenantID, nil
	}
	employeeID, err := ensureAdminEmployee(ctx, pool, tenantID, cfg.AdminEmail)
	if err != nil {
		return "", err
	}
	if err := ensureAdminUser(ctx, pool, tenantID, employeeID, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return "", err
	}
	return tenantID, nil
}

func ensureTenant(ctx context.Context, pool *pgxpool.Pool, name string) (string, error) {
	var id string
	err := pool.QueryRow(ctx, "SELECT id::text FROM tenants WHERE name = $1", name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", err
	}
	err = pool.QueryRow(ctx, "INSERT INTO tenants (name) VALUES ($1) RETURNING id::text", name).Scan(&id)
	return id, err
}

func ensureAdminEmployee(ctx context.Context, pool *pgxpool.Pool, tenantID, email string) (string, error) {
	var id string
	err := pool.QueryRow(ctx, `
    INSERT INTO employees (tenant_id, first_name, last_name, email, department, position, is_admin)
    VALUES ($1, 'System', 'Administrator', $2, 'Administration', 'Administrator', true)
    ON CONFLICT (tenant_id, email) DO UPDATE SET is_admin = true
    RETURNING id::text
  `, tenantID, email).Scan(&id)
	return id, err
}

func ensureAdminUser(ctx context.Context, pool *pgxpool.Pool, tenantID, employeeID, email, password string) error {
	var id string
	err := pool.QueryRow(ctx, "SELECT id::text FROM users WHERE tenant_id = $1 AND lower(email) = lower($2)", tenantID, email).Scan(&id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx, "INSERT INTO users (tenant_id, employee_id, email, password_hash) VALUES ($1, $2, $3, $4)", tenantID, employeeID, email, hash)
	return err
}
