package audit

import (
	"context"

	"github.com/jackc/pgx/v5"

	"hrmaccess/internal/platform/querier"
)

type Store struct {
	DB querier.Querier
}

func NewStore(db querier.Querier) *Store {
	return &Store{DB: db}
}

const entryColumns = "id::text, tenant_id::text, employee_id::text, old_role_id::text, new_role_id::text, changed_by, changed_at, COALESCE(reason, '')"

// Execer is the subset of pgx.Tx and querier.Querier needed to append an entry.
type Execer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// InsertEntry appends within the caller's transaction when q is a pgx.Tx.
func InsertEntry(ctx context.Context, q Execer, entry Entry) (Entry, error) {
	err := q.QueryRow(ctx, `
    INSERT INTO role_audit_log (tenant_id, employee_id, old_role_id, new_role_id, changed_by, changed_at, reason)
    VALUES ($1,$2,$3,$4,$5,$6,$7)
    RETURNING id::text
  `, entry.TenantID, entry.EmployeeID, entry.OldRoleID, entry.NewRoleID, entry.ChangedBy, entry.ChangedAt, nullIfEmpty(entry.Reason)).Scan(&entry.ID)
	return entry, err
}

func (s *Store) Append(ctx context.Context, entry Entry) (Entry, error) {
	return InsertEntry(ctx, s.DB, entry)
}

func (s *Store) ListRecent(ctx context.Context, tenantID string, limit int) ([]Entry, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+entryColumns+`
    FROM role_audit_log
    WHERE tenant_id = $1
    ORDER BY changed_at DESC, seq DESC
    LIMIT $2
  `, tenantID, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (s *Store) ListByEmployee(ctx context.Context, tenantID, employeeID string) ([]Entry, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+entryColumns+`
    FROM role_audit_log
    WHERE tenant_id = $1 AND employee_id::text = $2
    ORDER BY changed_at DESC, seq DESC
  `, tenantID, employeeID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]Entry, error) {
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.TenantID, &e.EmployeeID, &e.OldRoleID, &e.NewRoleID, &e.ChangedBy, &e.ChangedAt, &e.Reason); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
