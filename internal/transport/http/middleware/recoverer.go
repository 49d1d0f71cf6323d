package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"hrmaccess/internal/platform/requestctx"
	"hrmaccess/internal/transport/http/api"
)

func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			attrs := append(requestctx.LogAttrs(r.Context()), "panic", rec, "path", r.URL.Path, "stack", string(debug.Stack()))
			slog.Error("panic recovered", attrs...)
			api.Fail(w, http.StatusInternalServerError, "internal_error", "internal server error", GetRequestID(r.Context()))
		}()
		next.ServeHTTP(w, r)
	})
}
