package core

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"hrmaccess/internal/platform/querier"
)

type Store struct {
	DB querier.Querier
}

func NewStore(db querier.Querier) *Store {
	return &Store{DB: db}
}

const employeeColumns = `id::text, tenant_id::text, first_name, last_name, email,
           COALESCE(department, ''), COALESCE(position, ''), is_admin, status, created_at`

func scanEmployee(row pgx.Row) (Employee, error) {
	var emp Employee
	err := row.Scan(&emp.ID, &emp.TenantID, &emp.FirstName, &emp.LastName, &emp.Email,
		&emp.Department, &emp.Position, &emp.IsAdmin, &emp.Status, &emp.CreatedAt)
	return emp, err
}

func (s *Store) ListEmployees(ctx context.Context, tenantID string) ([]Employee, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+employeeColumns+`
    FROM employees
    WHERE tenant_id = $1 AND status = $2
    ORDER BY last_name, first_name
  `, tenantID, EmployeeStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, emp)
	}
	return out, rows.Err()
}

func (s *Store) GetEmployee(ctx context.Context, tenantID, employeeID string) (Employee, error) {
	emp, err := scanEmployee(s.DB.QueryRow(ctx, `
    SELECT `+employeeColumns+`
    FROM employees
    WHERE tenant_id = $1 AND id::text = $2
  `, tenantID, employeeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Employee{}, ErrEmployeeNotFound
	}
	return emp, err
}

func (s *Store) ListTenants(ctx context.Context) ([]string, error) {
	rows, err := s.DB.Query(ctx, `SELECT id::text FROM tenants ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
