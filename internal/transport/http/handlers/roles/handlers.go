package roleshandler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"hrmaccess/internal/domain/access"
	"hrmaccess/internal/domain/auth"
	"hrmaccess/internal/domain/roles"
	"hrmaccess/internal/transport/http/api"
	"hrmaccess/internal/transport/http/middleware"
	"hrmaccess/internal/transport/http/shared"
)

type Handler struct {
	Roles    *roles.Service
	Sessions *access.Sessions
	Perms    middleware.PermissionChecker
}

func NewHandler(roleService *roles.Service, sessions *access.Sessions, perms middleware.PermissionChecker) *Handler {
	return &Handler{Roles: roleService, Sessions: sessions, Perms: perms}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/permissions", h.handleCatalog)
	r.Route("/roles", func(r chi.Router) {
		r.Use(middleware.RequirePermission(auth.PermRolesManage, h.Perms))
		r.Get("/", h.handleList)
		r.Post("/seed", h.handleSeed)
		r.Route("/{roleID}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Post("/permissions/toggle", h.handleToggle)
			r.Post("/groups/{group}", h.handleGroup)
			r.Post("/grant-all", h.handleGrantAll)
			r.Post("/clear-all", h.handleClearAll)
		})
	})
}

func (h *Handler) handleCatalog(w http.ResponseWriter, r *http.Request) {
	api.Success(w, auth.Groups(), middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	list, err := h.Roles.List(r.Context(), user.TenantID)
	if err != nil {
		shared.FailError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, list, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	role, err := h.Roles.Get(r.Context(), user.TenantID, chi.URLParam(r, "roleID"))
	if err != nil {
		shared.FailError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, role, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleSeed(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	created, err := h.Roles.SeedDefaultRolesIfEmpty(r.Context(), user.TenantID)
	if err != nil {
		shared.FailError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	body := map[string]int{"created": created}
	if created > 0 {
		api.Created(w, body, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, body, middleware.GetRequestID(r.Context()))
}

type toggleRequest struct {
	Permission      string `json:"permission"`
	ExpectedVersion int    `json:"expectedVersion"`
}

type groupRequest struct {
	Enabled         bool `json:"enabled"`
	ExpectedVersion int  `json:"expectedVersion"`
}

type versionRequest struct {
	ExpectedVersion int `json:"expectedVersion"`
}

func (h *Handler) handleToggle(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var payload toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}
	v := shared.NewValidator()
	perm, _ := v.Permission("permission", payload.Permission)
	v.NonNegative("expectedVersion", payload.ExpectedVersion)
	if v.Reject(w, reqID) {
		return
	}

	user, _ := middleware.GetUser(r.Context())
	role, err := h.Sessions.For(user.TenantID, user.UserID).TogglePermission(r.Context(), chi.URLParam(r, "roleID"), perm, payload.ExpectedVersion)
	writeRole(w, role, err, reqID)
}

func (h *Handler) handleGroup(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var payload groupRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}
	rawGroup, err := url.PathUnescape(chi.URLParam(r, "group"))
	if err != nil {
		rawGroup = chi.URLParam(r, "group")
	}
	v := shared.NewValidator()
	group, ok := auth.ParseGroup(rawGroup)
	if !ok {
		v.Add("group", "must be a known permission group")
	}
	v.NonNegative("expectedVersion", payload.ExpectedVersion)
	if v.Reject(w, reqID) {
		return
	}

	user, _ := middleware.GetUser(r.Context())
	role, err := h.Sessions.For(user.TenantID, user.UserID).SetGroupPermissions(r.Context(), chi.URLParam(r, "roleID"), group, payload.Enabled, payload.ExpectedVersion)
	writeRole(w, role, err, reqID)
}

func (h *Handler) handleGrantAll(w http.ResponseWriter, r *http.Request) {
	h.handleBulk(w, r, (*access.Console).GrantAll)
}

func (h *Handler) handleClearAll(w http.ResponseWriter, r *http.Request) {
	h.handleBulk(w, r, (*access.Console).ClearAll)
}

type bulkEdit func(c *access.Console, ctx context.Context, roleID string, expectedVersion int) (roles.Role, error)

func (h *Handler) handleBulk(w http.ResponseWriter, r *http.Request, edit bulkEdit) {
	reqID := middleware.GetRequestID(r.Context())
	var payload versionRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}
	v := shared.NewValidator()
	v.NonNegative("expectedVersion", payload.ExpectedVersion)
	if v.Reject(w, reqID) {
		return
	}

	user, _ := middleware.GetUser(r.Context())
	role, err := edit(h.Sessions.For(user.TenantID, user.UserID), r.Context(), chi.URLParam(r, "roleID"), payload.ExpectedVersion)
	writeRole(w, role, err, reqID)
}

// writeRole reports stale-version rejections with the current role so the
// caller can retry against the fresh version.
func writeRole(w http.ResponseWriter, role roles.Role, err error, reqID string) {
	if err == nil {
		api.Success(w, role, reqID)
		return
	}
	if errors.Is(err, roles.ErrStaleRole) && role.ID != "" {
		status, code := shared.ErrorStatus(err)
		api.FailWithDetails(w, status, code, err.Error(), map[string]any{"current": role}, reqID)
		return
	}
	shared.FailError(w, err, reqID)
}
