package authhandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"hrmaccess/internal/domain/auth"
	"hrmaccess/internal/platform/requestctx"
	"hrmaccess/internal/transport/http/api"
	"hrmaccess/internal/transport/http/shared"
)

type Handler struct {
	Users    auth.UserStore
	Secret   string
	TokenTTL time.Duration
}

func NewHandler(users auth.UserStore, secret string, ttl time.Duration) *Handler {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &Handler{Users: users, Secret: secret, TokenTTL: ttl}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/login", h.HandleLogin)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginUser struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenantId"`
	EmployeeID string `json:"employeeId,omitempty"`
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	reqID := requestctx.GetRequestID(r.Context())
	var payload loginRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}
	v := shared.NewValidator()
	v.Required("email", payload.Email, "is required")
	v.Required("password", payload.Password, "is required")
	if v.Reject(w, reqID) {
		return
	}

	user, err := h.Users.FindActiveUserByEmail(r.Context(), strings.TrimSpace(payload.Email))
	if errors.Is(err, auth.ErrUserNotFound) {
		api.Fail(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials", reqID)
		return
	}
	if err != nil {
		slog.Error("login lookup failed", "requestId", reqID, "err", err)
		api.Fail(w, http.StatusInternalServerError, "internal_error", "internal server error", reqID)
		return
	}
	if err := auth.CheckPassword(user.PasswordHash, payload.Password); err != nil {
		api.Fail(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials", reqID)
		return
	}

	token, err := auth.GenerateToken(h.Secret, auth.Claims{UserID: user.ID, TenantID: user.TenantID, EmployeeID: user.EmployeeID}, h.TokenTTL)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "token_error", "failed to issue token", reqID)
		return
	}
	if err := h.Users.UpdateLastLogin(r.Context(), user.ID); err != nil {
		slog.Warn("update last_login failed", "userId", user.ID, "err", err)
	}

	api.Success(w, map[string]any{
		"token":     token,
		"expiresIn": int(h.TokenTTL.Seconds()),
		"user":      loginUser{ID: user.ID, TenantID: user.TenantID, EmployeeID: user.EmployeeID},
	}, reqID)
}
