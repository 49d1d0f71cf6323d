package jobshandler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"hrmaccess/internal/domain/auth"
	"hrmaccess/internal/transport/http/api"
	"hrmaccess/internal/transport/http/middleware"
	"hrmaccess/internal/transport/http/shared"
)

type BackfillRunner interface {
	RunBackfillNow(ctx context.Context, tenantID string) (any, error)
}

type Handler struct {
	Jobs  BackfillRunner
	Perms middleware.PermissionChecker
}

func NewHandler(jobs BackfillRunner, perms middleware.PermissionChecker) *Handler {
	return &Handler{Jobs: jobs, Perms: perms}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(middleware.RequirePermission(auth.PermRolesManage, h.Perms)).Post("/jobs/assignment-backfill", h.handleBackfill)
}

func (h *Handler) handleBackfill(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	result, err := h.Jobs.RunBackfillNow(r.Context(), user.TenantID)
	if err != nil {
		shared.FailError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, result, middleware.GetRequestID(r.Context()))
}
