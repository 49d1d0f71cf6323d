package assignments

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"hrmaccess/internal/domain/audit"
	"hrmaccess/internal/platform/querier"
)

type Store struct {
	DB querier.Querier
}

func NewStore(db querier.Querier) *Store {
	return &Store{DB: db}
}

const assignmentColumns = "tenant_id::text, employee_id::text, role_id::text, updated_at"

func (s *Store) ListAssignments(ctx context.Context, tenantID string) ([]Assignment, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+assignmentColumns+`
    FROM employee_roles
    WHERE tenant_id = $1
  `, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Assignment
	for rows.Next() {
		var a Assignment
		if err := rows.Scan(&a.TenantID, &a.EmployeeID, &a.RoleID, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) GetAssignment(ctx context.Context, tenantID, employeeID string) (Assignment, error) {
	var a Assignment
	err := s.DB.QueryRow(ctx, `
    SELECT `+assignmentColumns+`
    FROM employee_roles
    WHERE tenant_id = $1 AND employee_id::text = $2
  `, tenantID, employeeID).Scan(&a.TenantID, &a.EmployeeID, &a.RoleID, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Assignment{}, ErrNotFound
	}
	return a, err
}

func (s *Store) InsertMissing(ctx context.Context, tenantID string, items []Assignment) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	inserted := 0
	for _, item := range items {
		tag, err := tx.Exec(ctx, `
      INSERT INTO employee_roles (tenant_id, employee_id, role_id, updated_at)
      VALUES ($1,$2,$3,$4)
      ON CONFLICT (tenant_id, employee_id) DO NOTHING
    `, tenantID, item.EmployeeID, item.RoleID, item.UpdatedAt)
		if err != nil {
			return 0, err
		}
		inserted += int(tag.RowsAffected())
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return inserted, nil
}

func (s *Store) ApplyChanges(ctx context.Context, tenantID, changedBy string, changes []Change, at time.Time) ([]audit.Entry, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	entries := make([]audit.Entry, 0, len(changes))
	for i, change := range changes {
		var affected int64
		if change.OldRoleID == "" {
			tag, err := tx.Exec(ctx, `
        INSERT INTO employee_roles (tenant_id, employee_id, role_id, updated_at)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (tenant_id, employee_id) DO NOTHING
      `, tenantID, change.EmployeeID, change.NewRoleID, at)
			if err != nil {
				return nil, &ChangeError{Index: i, EmployeeID: change.EmployeeID, Err: err}
			}
			affected = tag.RowsAffected()
		} else {
			tag, err := tx.Exec(ctx, `
        UPDATE employee_roles
        SET role_id = $1, updated_at = $2
        WHERE tenant_id = $3 AND employee_id::text = $4 AND role_id::text = $5
      `, change.NewRoleID, at, tenantID, change.EmployeeID, change.OldRoleID)
			if err != nil {
				return nil, &ChangeError{Index: i, EmployeeID: change.EmployeeID, Err: err}
			}
			affected = tag.RowsAffected()
		}
		if affected == 0 {
			return nil, &ChangeError{Index: i, EmployeeID: change.EmployeeID, Err: ErrAssignmentConflict}
		}

		entry, err := audit.InsertEntry(ctx, tx, AuditEntry(tenantID, changedBy, change, at))
		if err != nil {
			return nil, &ChangeError{Index: i, EmployeeID: change.EmployeeID, Err: err}
		}
		entries = append(entries, entry)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return entries, nil
}

// AuditEntry is the log record written alongside a committed change.
func AuditEntry(tenantID, changedBy string, change Change, at time.Time) audit.Entry {
	entry := audit.Entry{
		TenantID:   tenantID,
		EmployeeID: change.EmployeeID,
		NewRoleID:  change.NewRoleID,
		ChangedBy:  changedBy,
		ChangedAt:  at,
		Reason:     change.Reason,
	}
	if change.OldRoleID != "" {
		old := change.OldRoleID
		entry.OldRoleID = &old
	}
	return entry
}
