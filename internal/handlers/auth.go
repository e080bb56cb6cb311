package handlers

import (
	"log/slog"
	"net/http"

	"github.com/akmatori/incidentwatch/internal/api"
	"github.com/akmatori/incidentwatch/internal/middleware"
)

// AuthHandler issues bearer tokens for the review API.
type AuthHandler struct {
	jwtAuth *middleware.JWTAuthMiddleware
}

// NewAuthHandler creates an authentication handler.
func NewAuthHandler(jwtAuth *middleware.JWTAuthMiddleware) *AuthHandler {
	return &AuthHandler{jwtAuth: jwtAuth}
}

// SetupRoutes registers /auth/login and /auth/verify.
func (h *AuthHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/login", h.handleLogin)
	mux.HandleFunc("GET /auth/verify", h.handleVerify)
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if h.jwtAuth == nil || !h.jwtAuth.Enabled() {
		api.RespondError(w, http.StatusNotFound, "Authentication is not enabled")
		return
	}

	var req api.LoginRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if errs := api.Validate(req); errs != nil {
		api.RespondValidationError(w, errs)
		return
	}

	if !h.jwtAuth.ValidateCredentials(req.Username, req.Password) {
		slog.Warn("failed login attempt", "username", req.Username, "remote", r.RemoteAddr)
		api.RespondError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	token, err := h.jwtAuth.GenerateToken(req.Username)
	if err != nil {
		slog.Error("failed to sign token", "username", req.Username, "error", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	slog.Info("user logged in", "username", req.Username, "remote", r.RemoteAddr)
	api.RespondJSON(w, http.StatusOK, api.LoginResponse{
		Token:     token,
		Username:  req.Username,
		ExpiresIn: int(h.jwtAuth.TokenTTL().Seconds()),
	})
}

func (h *AuthHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == "" {
		api.RespondError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"valid":    true,
		"username": user,
	})
}
