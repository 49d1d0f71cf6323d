package assignments

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("assignment not found")
	ErrAdminEmployee      = errors.New("admin employees always hold the admin role")
	ErrAdminRoleTarget    = errors.New("the admin role cannot be assigned")
	ErrAssignmentConflict = errors.New("assignment changed since it was read")
	ErrDefaultRoleMissing = errors.New("default role missing")
	ErrUnchanged          = errors.New("employee already holds that role")
	ErrDuplicateEmployee  = errors.New("employee appears more than once in the batch")
)

// ChangeError ties a batch failure to the item that caused it.
type ChangeError struct {
	Index      int
	EmployeeID string
	Err        error
}

func (e *ChangeError) Error() string {
	return fmt.Sprintf("change %d (employee %s): %v", e.Index, e.EmployeeID, e.Err)
}

func (e *ChangeError) Unwrap() error { return e.Err }
