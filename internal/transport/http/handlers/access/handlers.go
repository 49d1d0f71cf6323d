package accesshandler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"hrmaccess/internal/domain/access"
	"hrmaccess/internal/domain/assignments"
	"hrmaccess/internal/domain/auth"
	"hrmaccess/internal/domain/core"
	"hrmaccess/internal/domain/roles"
	"hrmaccess/internal/transport/http/api"
	"hrmaccess/internal/transport/http/middleware"
	"hrmaccess/internal/transport/http/shared"
)

type Deps struct {
	Directory   core.StoreAPI
	Roles       *roles.Service
	Assignments *assignments.Service
	Authorizer  *access.Authorizer
	Sessions    *access.Sessions
	Perms       middleware.PermissionChecker
}

type Handler struct {
	deps Deps
}

func NewHandler(deps Deps) *Handler {
	return &Handler{deps: deps}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/employees", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermEmployeesView, h.deps.Perms)).Get("/", h.handleListEmployees)
		r.Route("/{employeeID}", func(r chi.Router) {
			r.With(middleware.RequirePermission(auth.PermEmployeesView, h.deps.Perms)).Get("/role", h.handleGetRole)
			r.With(middleware.RequirePermission(auth.PermRolesManage, h.deps.Perms)).Put("/role", h.handleReassign)
			r.Get("/permissions", h.handleEffectivePermissions)
		})
	})
	r.Route("/access/console", func(r chi.Router) {
		r.Use(middleware.RequirePermission(auth.PermRolesManage, h.deps.Perms))
		r.Get("/", h.handleSnapshot)
		r.Delete("/", h.handleClose)
		r.Post("/load", h.handleLoad)
		r.Post("/select", h.handleSelect)
		r.Post("/stage", h.handleStage)
		r.Delete("/staged", h.handleDiscard)
		r.Post("/commit", h.handleCommit)
	})
}

type employeeRow struct {
	core.Employee
	Role *roles.Role `json:"role"`
}

func filterFromQuery(r *http.Request) core.Filter {
	q := r.URL.Query()
	return core.Filter{Department: strings.TrimSpace(q.Get("department")), Search: strings.TrimSpace(q.Get("search"))}
}

func (h *Handler) handleListEmployees(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())

	employees, err := h.deps.Directory.ListEmployees(r.Context(), user.TenantID)
	if err != nil {
		shared.FailError(w, err, reqID)
		return
	}
	roleList, err := h.deps.Roles.List(r.Context(), user.TenantID)
	if err != nil {
		shared.FailError(w, err, reqID)
		return
	}
	assigned, err := h.deps.Assignments.Map(r.Context(), user.TenantID)
	if err != nil {
		shared.FailError(w, err, reqID)
		return
	}

	filtered := core.FilterEmployees(employees, filterFromQuery(r))
	page := shared.ParsePagination(r, 100, 500)
	total := len(filtered)
	start, end := page.Bounds(total)

	rows := make([]employeeRow, 0, end-start)
	for _, emp := range filtered[start:end] {
		rows = append(rows, employeeRow{Employee: emp, Role: assignments.ResolveIn(assigned, roleList, emp.ID)})
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	api.Success(w, rows, reqID)
}

func (h *Handler) handleGetRole(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	employeeID := chi.URLParam(r, "employeeID")

	if _, err := h.deps.Directory.GetEmployee(r.Context(), user.TenantID, employeeID); err != nil {
		shared.FailError(w, err, reqID)
		return
	}
	role, err := h.deps.Assignments.Resolve(r.Context(), user.TenantID, employeeID)
	if err != nil {
		shared.FailError(w, err, reqID)
		return
	}
	api.Success(w, map[string]any{"employeeId": employeeID, "role": role}, reqID)
}

type reassignRequest struct {
	RoleID string `json:"roleId"`
	Reason string `json:"reason"`
}

func (h *Handler) handleReassign(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var payload reassignRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}
	v := shared.NewValidator()
	v.Required("roleId", payload.RoleID, "is required")
	if v.Reject(w, reqID) {
		return
	}

	user, _ := middleware.GetUser(r.Context())
	item, err := h.deps.Assignments.Reassign(r.Context(), user.TenantID, user.UserID, chi.URLParam(r, "employeeID"), payload.RoleID, strings.TrimSpace(payload.Reason))
	if err != nil {
		status, code := shared.ErrorStatus(err)
		if status == http.StatusInternalServerError {
			shared.FailError(w, err, reqID)
			return
		}
		api.FailWithDetails(w, status, code, err.Error(), item, reqID)
		return
	}
	api.Success(w, item, reqID)
}

// handleEffectivePermissions lets any caller read their own permissions;
// reading someone else's requires role management.
func (h *Handler) handleEffectivePermissions(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	employeeID := chi.URLParam(r, "employeeID")

	if employeeID != user.EmployeeID {
		allowed, err := h.deps.Perms.HasPermission(r.Context(), user, auth.PermRolesManage)
		if err != nil {
			shared.FailError(w, err, reqID)
			return
		}
		if !allowed {
			api.Fail(w, http.StatusForbidden, "forbidden", "insufficient permissions", reqID)
			return
		}
	}

	perms, err := h.deps.Authorizer.EffectivePermissions(r.Context(), user.TenantID, employeeID)
	if err != nil {
		shared.FailError(w, err, reqID)
		return
	}
	api.Success(w, map[string]any{"employeeId": employeeID, "permissions": perms}, reqID)
}

func (h *Handler) console(r *http.Request) *access.Console {
	user, _ := middleware.GetUser(r.Context())
	return h.deps.Sessions.For(user.TenantID, user.UserID)
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	c := h.console(r)
	snap := c.Snapshot(filterFromQuery(r))
	if snap.LoadedAt.IsZero() {
		// The first view of a session loads it; a partial load still renders.
		_ = c.Load(r.Context())
		snap = c.Snapshot(filterFromQuery(r))
	}
	api.Success(w, snap, middleware.GetRequestID(r.Context()))
}

// handleClose ends the caller's console session. Staged changes are dropped.
func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	if err := h.deps.Sessions.DropIfIdle(user.TenantID, user.UserID); err != nil {
		shared.FailError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleLoad always returns the snapshot; collections that failed to load
// keep their previous contents and the failure is reported in lastError.
func (h *Handler) handleLoad(w http.ResponseWriter, r *http.Request) {
	c := h.console(r)
	if err := c.Load(r.Context()); err != nil && !isPartialLoad(err) {
		shared.FailError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, c.Snapshot(filterFromQuery(r)), middleware.GetRequestID(r.Context()))
}

func isPartialLoad(err error) bool {
	status, _ := shared.ErrorStatus(err)
	return status == http.StatusInternalServerError
}

type selectRequest struct {
	EmployeeID string `json:"employeeId"`
}

func (h *Handler) handleSelect(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var payload selectRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}
	v := shared.NewValidator()
	v.Required("employeeId", payload.EmployeeID, "is required")
	if v.Reject(w, reqID) {
		return
	}
	sel, err := h.console(r).Select(payload.EmployeeID)
	if err != nil {
		shared.FailError(w, err, reqID)
		return
	}
	api.Success(w, sel, reqID)
}

type stageRequest struct {
	EmployeeID string `json:"employeeId"`
	RoleID     string `json:"roleId"`
	Reason     string `json:"reason"`
}

func (h *Handler) handleStage(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var payload stageRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}
	v := shared.NewValidator()
	v.Required("employeeId", payload.EmployeeID, "is required")
	v.Required("roleId", payload.RoleID, "is required")
	if v.Reject(w, reqID) {
		return
	}
	c := h.console(r)
	if err := c.Stage(payload.EmployeeID, payload.RoleID, strings.TrimSpace(payload.Reason)); err != nil {
		shared.FailError(w, err, reqID)
		return
	}
	api.Success(w, map[string]any{"state": c.State(), "pending": c.Pending()}, reqID)
}

func (h *Handler) handleDiscard(w http.ResponseWriter, r *http.Request) {
	c := h.console(r)
	if err := c.Discard(); err != nil {
		shared.FailError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, map[string]any{"state": c.State(), "pending": c.Pending()}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCommit(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	result, err := h.console(r).Commit(r.Context())
	if err != nil {
		status, code := shared.ErrorStatus(err)
		if status == http.StatusInternalServerError {
			shared.FailError(w, err, reqID)
			return
		}
		api.FailWithDetails(w, status, code, err.Error(), result, reqID)
		return
	}
	api.Success(w, result, reqID)
}
