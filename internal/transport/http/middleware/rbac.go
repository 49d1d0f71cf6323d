package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"hrmaccess/internal/domain/auth"
	"hrmaccess/internal/platform/requestctx"
	"hrmaccess/internal/transport/http/api"
)

type PermissionChecker interface {
	HasPermission(ctx context.Context, user auth.UserContext, perm auth.Permission) (bool, error)
}

func RequirePermission(perm auth.Permission, checker PermissionChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := GetUser(r.Context())
			if !ok {
				api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", GetRequestID(r.Context()))
				return
			}

			allowed, err := checker.HasPermission(r.Context(), user, perm)
			if err != nil {
				slog.Error("permission check failed", append(requestctx.LogAttrs(r.Context()), "permission", perm, "err", err)...)
				api.Fail(w, http.StatusInternalServerError, "permission_error", "permission check failed", GetRequestID(r.Context()))
				return
			}
			if !allowed {
				api.Fail(w, http.StatusForbidden, "forbidden", "insufficient permissions", GetRequestID(r.Context()))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
