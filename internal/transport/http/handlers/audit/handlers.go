package audithandler

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"hrmaccess/internal/domain/audit"
	"hrmaccess/internal/domain/auth"
	"hrmaccess/internal/domain/core"
	"hrmaccess/internal/domain/roles"
	"hrmaccess/internal/transport/http/api"
	"hrmaccess/internal/transport/http/middleware"
	"hrmaccess/internal/transport/http/shared"
)

const exportLimit = audit.MaxRecentLimit

type Handler struct {
	Service   *audit.Service
	Directory core.StoreAPI
	Users     auth.UserDirectory
	Roles     *roles.Service
	Perms     middleware.PermissionChecker
}

func NewHandler(service *audit.Service, directory core.StoreAPI, users auth.UserDirectory, roleService *roles.Service, perms middleware.PermissionChecker) *Handler {
	return &Handler{Service: service, Directory: directory, Users: users, Roles: roleService, Perms: perms}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/audit", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermAuditView, h.Perms)).Get("/role-changes", h.handleList)
		r.With(middleware.RequirePermission(auth.PermAuditView, h.Perms)).Get("/role-changes/export", h.handleExport)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())

	var (
		entries []audit.Entry
		err     error
	)
	if employeeID := strings.TrimSpace(r.URL.Query().Get("employeeId")); employeeID != "" {
		entries, err = h.Service.ListByEmployee(r.Context(), user.TenantID, employeeID)
	} else {
		page := shared.ParsePagination(r, audit.DefaultRecentLimit, audit.MaxRecentLimit)
		entries, err = h.Service.ListRecent(r.Context(), user.TenantID, page.Limit)
	}
	if err != nil {
		slog.Warn("audit list failed", "requestId", reqID, "err", err)
		api.Fail(w, http.StatusInternalServerError, "audit_list_failed", "failed to list role changes", reqID)
		return
	}
	api.Success(w, entries, reqID)
}

type exportFormat struct {
	contentType string
	extension   string
	write       func(buf *bytes.Buffer, rows []audit.Row, now time.Time) error
}

var exportFormats = map[string]exportFormat{
	"csv": {
		contentType: "text/csv",
		extension:   "csv",
		write: func(buf *bytes.Buffer, rows []audit.Row, _ time.Time) error {
			return audit.WriteCSV(buf, rows)
		},
	},
	"pdf": {
		contentType: "application/pdf",
		extension:   "pdf",
		write: func(buf *bytes.Buffer, rows []audit.Row, now time.Time) error {
			return audit.WritePDF(buf, "Role change history", now, rows)
		},
	},
	"xlsx": {
		contentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		extension:   "xlsx",
		write: func(buf *bytes.Buffer, rows []audit.Row, _ time.Time) error {
			return audit.WriteXLSX(buf, rows)
		},
	},
}

// handleExport renders the recent role changes with employee and role names
// resolved. The document is built in memory so a failure can still be
// reported as JSON.
func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())

	name := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if name == "" {
		name = "csv"
	}
	v := shared.NewValidator()
	v.Enum("format", name, []string{"csv", "pdf", "xlsx"}, "must be one of csv, pdf, xlsx")
	if v.Reject(w, reqID) {
		return
	}
	format := exportFormats[name]

	entries, err := h.Service.ListRecent(r.Context(), user.TenantID, exportLimit)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "audit_export_failed", "failed to export role changes", reqID)
		return
	}
	employeeNames, userNames := h.employeeNames(r, user)
	roleNames := h.roleNames(r, user.TenantID)
	rows := audit.BuildRows(entries, lookup(employeeNames), lookup(roleNames), lookup(userNames))

	var buf bytes.Buffer
	if err := format.write(&buf, rows, time.Now().UTC()); err != nil {
		slog.Error("audit export render failed", "requestId", reqID, "format", name, "err", err)
		api.Fail(w, http.StatusInternalServerError, "audit_export_failed", "failed to export role changes", reqID)
		return
	}

	w.Header().Set("Content-Type", format.contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=role-changes.%s", format.extension))
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Warn("audit export write failed", "requestId", reqID, "err", err)
	}
}

// employeeNames returns employee display names by id, and author names by
// user id since changedBy holds user ids. An author is named after the
// linked employee, or by email when the account has none.
func (h *Handler) employeeNames(r *http.Request, user auth.UserContext) (map[string]string, map[string]string) {
	employees := map[string]string{}
	users := map[string]string{}
	list, err := h.Directory.ListEmployees(r.Context(), user.TenantID)
	if err != nil {
		slog.Warn("audit export employee lookup failed", "err", err)
	}
	for _, emp := range list {
		employees[emp.ID] = emp.FullName()
	}
	if name, ok := employees[user.EmployeeID]; ok {
		users[user.UserID] = name
	}
	if h.Users == nil {
		return employees, users
	}
	accounts, err := h.Users.ListUsers(r.Context(), user.TenantID)
	if err != nil {
		slog.Warn("audit export user lookup failed", "err", err)
		return employees, users
	}
	for _, acc := range accounts {
		if name, ok := employees[acc.EmployeeID]; ok {
			users[acc.ID] = name
		} else if acc.Email != "" {
			users[acc.ID] = acc.Email
		}
	}
	return employees, users
}

func (h *Handler) roleNames(r *http.Request, tenantID string) map[string]string {
	names := map[string]string{}
	list, err := h.Roles.List(r.Context(), tenantID)
	if err != nil {
		slog.Warn("audit export role lookup failed", "err", err)
		return names
	}
	for _, role := range list {
		names[role.ID] = role.Name
	}
	return names
}

func lookup(names map[string]string) func(string) string {
	return func(id string) string { return names[id] }
}
