package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/akmatori/incidentwatch/internal/api"
)

// Version is reported by the health endpoint.
var Version = "dev"

// HTTPHandler serves operational endpoints.
type HTTPHandler struct {
	db *gorm.DB
}

// NewHTTPHandler creates the handler. db may be nil, in which case the
// health check does not touch storage.
func NewHTTPHandler(db *gorm.DB) *HTTPHandler {
	return &HTTPHandler{db: db}
}

// SetupRoutes registers the health endpoint.
func (h *HTTPHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
}

func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{
		"status":  "ok",
		"version": Version,
	}

	if h.db != nil {
		resp["database"] = "ok"
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pingDB(ctx, h.db); err != nil {
			slog.Warn("health check: database unreachable", "error", err)
			resp["status"] = "degraded"
			resp["database"] = "unreachable"
			api.RespondJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}

	api.RespondJSON(w, http.StatusOK, resp)
}

func pingDB(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
