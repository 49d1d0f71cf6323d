package roles

import "errors"

var (
	ErrNotFound          = errors.New("role not found")
	ErrAdminRoleReadOnly = errors.New("admin role permissions are read-only")
	ErrStaleRole         = errors.New("role was modified by another session")
	ErrUnknownGroup      = errors.New("unknown permission group")
	ErrUnknownPermission = errors.New("unknown permission")
)
