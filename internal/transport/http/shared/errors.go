package shared

import (
	"errors"
	"log/slog"
	"net/http"

	"hrmaccess/internal/domain/access"
	"hrmaccess/internal/domain/assignments"
	"hrmaccess/internal/domain/core"
	"hrmaccess/internal/domain/roles"
	"hrmaccess/internal/transport/http/api"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{roles.ErrNotFound, http.StatusNotFound, "not_found"},
	{core.ErrEmployeeNotFound, http.StatusNotFound, "not_found"},
	{assignments.ErrNotFound, http.StatusNotFound, "not_found"},
	{roles.ErrAdminRoleReadOnly, http.StatusConflict, "admin_role_read_only"},
	{roles.ErrStaleRole, http.StatusConflict, "stale_role"},
	{assignments.ErrAssignmentConflict, http.StatusConflict, "assignment_conflict"},
	{assignments.ErrAdminEmployee, http.StatusUnprocessableEntity, "reassign_rejected"},
	{assignments.ErrAdminRoleTarget, http.StatusUnprocessableEntity, "reassign_rejected"},
	{access.ErrCommitInProgress, http.StatusConflict, "commit_in_progress"},
	{access.ErrNotLoaded, http.StatusConflict, "console_not_loaded"},
	{roles.ErrUnknownPermission, http.StatusBadRequest, "validation_error"},
	{roles.ErrUnknownGroup, http.StatusBadRequest, "validation_error"},
	{assignments.ErrUnchanged, http.StatusBadRequest, "validation_error"},
	{assignments.ErrDuplicateEmployee, http.StatusBadRequest, "validation_error"},
}

// ErrorStatus maps a domain error to its HTTP status and error code.
func ErrorStatus(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

// FailError writes err as an envelope. Unmapped errors are logged and reported
// without their message.
func FailError(w http.ResponseWriter, err error, requestID string) {
	status, code := ErrorStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "requestId", requestID, "err", err)
		api.Fail(w, status, code, "internal server error", requestID)
		return
	}
	api.Fail(w, status, code, err.Error(), requestID)
}
