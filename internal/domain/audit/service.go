package audit

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultRecentLimit = 50
	MaxRecentLimit     = 500
)

type Service struct {
	store StoreAPI
	now   func() time.Time
}

func NewService(store StoreAPI) *Service {
	return &Service{store: store, now: time.Now}
}

func (s *Service) Append(ctx context.Context, entry Entry) (Entry, error) {
	if err := validate(entry); err != nil {
		return Entry{}, err
	}
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = s.now().UTC()
	}
	return s.store.Append(ctx, entry)
}

// ListRecent returns at most limit entries, newest first. Non-positive limits
// use the default; large limits are capped.
func (s *Service) ListRecent(ctx context.Context, tenantID string, limit int) ([]Entry, error) {
	return s.store.ListRecent(ctx, tenantID, ClampLimit(limit))
}

func (s *Service) ListByEmployee(ctx context.Context, tenantID, employeeID string) ([]Entry, error) {
	return s.store.ListByEmployee(ctx, tenantID, employeeID)
}

func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		return MaxRecentLimit
	}
	return limit
}

func validate(entry Entry) error {
	switch {
	case strings.TrimSpace(entry.TenantID) == "":
		return fmt.Errorf("%w: tenant is required", ErrInvalidEntry)
	case strings.TrimSpace(entry.EmployeeID) == "":
		return fmt.Errorf("%w: employee is required", ErrInvalidEntry)
	case strings.TrimSpace(entry.NewRoleID) == "":
		return fmt.Errorf("%w: new role is required", ErrInvalidEntry)
	case strings.TrimSpace(entry.ChangedBy) == "":
		return fmt.Errorf("%w: changed by is required", ErrInvalidEntry)
	}
	return nil
}
