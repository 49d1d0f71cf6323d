package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"hrmaccess/internal/platform/querier"
)

var ErrUserNotFound = errors.New("user not found")

type LoginUser struct {
	ID           string
	TenantID     string
	EmployeeID   string
	PasswordHash string
}

type UserStore interface {
	FindActiveUserByEmail(ctx context.Context, email string) (LoginUser, error)
	UpdateLastLogin(ctx context.Context, userID string) error
}

// UserSummary identifies a login account for display, e.g. as the author of
// an audit entry.
type UserSummary struct {
	ID         string
	EmployeeID string
	Email      string
}

type UserDirectory interface {
	ListUsers(ctx context.Context, tenantID string) ([]UserSummary, error)
}

type Store struct {
	DB querier.Querier
}

func NewStore(db querier.Querier) *Store {
	return &Store{DB: db}
}

func (s *Store) FindActiveUserByEmail(ctx context.Context, email string) (LoginUser, error) {
	var out LoginUser
	err := s.DB.QueryRow(ctx, `
    SELECT id::text, tenant_id::text, COALESCE(employee_id::text, ''), password_hash
    FROM users
    WHERE lower(email) = lower($1) AND status = 'active'
  `, email).Scan(&out.ID, &out.TenantID, &out.EmployeeID, &out.PasswordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return out, ErrUserNotFound
	}
	return out, err
}

func (s *Store) UpdateLastLogin(ctx context.Context, userID string) error {
	_, err := s.DB.Exec(ctx, "UPDATE users SET last_login = now() WHERE id::text = $1", userID)
	return err
}

func (s *Store) ListUsers(ctx context.Context, tenantID string) ([]UserSummary, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id::text, COALESCE(employee_id::text, ''), email
    FROM users
    WHERE tenant_id::text = $1
    ORDER BY email
  `, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []UserSummary{}
	for rows.Next() {
		var u UserSummary
		if err := rows.Scan(&u.ID, &u.EmployeeID, &u.Email); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
