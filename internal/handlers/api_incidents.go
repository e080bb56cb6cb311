package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/akmatori/incidentwatch/internal/api"
	"github.com/akmatori/incidentwatch/internal/database"
	"github.com/akmatori/incidentwatch/internal/middleware"
	"github.com/akmatori/incidentwatch/internal/services"
)

// IncidentsHandler serves the incident review API.
type IncidentsHandler struct {
	service *services.IncidentService
}

// NewIncidentsHandler creates the handler.
func NewIncidentsHandler(service *services.IncidentService) *IncidentsHandler {
	return &IncidentsHandler{service: service}
}

// SetupRoutes registers the /api/incidents endpoints.
func (h *IncidentsHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/incidents", h.handleList)
	mux.HandleFunc("GET /api/incidents/{uuid}", h.handleGet)
	mux.HandleFunc("PATCH /api/incidents/{uuid}", h.handleUpdate)
	mux.HandleFunc("POST /api/incidents/{uuid}/reviews", h.handleReview)
}

// handleList handles GET /api/incidents?status=&page=&per_page=
func (h *IncidentsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	status := database.IncidentStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		api.RespondValidationError(w, map[string]string{"status": "must be one of: open under_review resolved"})
		return
	}

	params := api.ParsePagination(r)
	incidents, total, err := h.service.ListIncidents(r.Context(), status, params.Offset(), params.PerPage)
	if err != nil {
		slog.Error("failed to list incidents", "error", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to list incidents")
		return
	}

	api.RespondJSON(w, http.StatusOK, api.PaginatedResponse{
		Data:       api.IncidentsToListItems(incidents),
		Pagination: params.Meta(total),
	})
}

// handleGet handles GET /api/incidents/{uuid}
func (h *IncidentsHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	incident, err := h.service.GetIncident(r.Context(), r.PathValue("uuid"))
	if err != nil {
		h.respondServiceError(w, "get", err)
		return
	}
	api.RespondJSON(w, http.StatusOK, incident)
}

// handleUpdate handles PATCH /api/incidents/{uuid}
func (h *IncidentsHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req api.UpdateIncidentRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if errs := api.Validate(req); errs != nil {
		api.RespondValidationError(w, errs)
		return
	}

	upd := services.IncidentUpdate{
		Title:         req.Title,
		Description:   req.Description,
		SeverityLevel: req.SeverityLevel,
		ImpactUsers:   req.ImpactUsers,
		ResolvedAt:    req.ResolvedAt,
	}
	if req.Status != nil {
		status := database.IncidentStatus(*req.Status)
		upd.Status = &status
	}

	incident, err := h.service.UpdateIncident(r.Context(), r.PathValue("uuid"), upd)
	if err != nil {
		h.respondServiceError(w, "update", err)
		return
	}
	slog.Info("incident updated", "incident", incident.UUID, "status", incident.Status, "user", middleware.GetUserFromContext(r.Context()))
	api.RespondJSON(w, http.StatusOK, incident)
}

// handleReview handles POST /api/incidents/{uuid}/reviews
func (h *IncidentsHandler) handleReview(w http.ResponseWriter, r *http.Request) {
	var req api.CreateReviewRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if errs := api.Validate(req); errs != nil {
		api.RespondValidationError(w, errs)
		return
	}

	reviewer := strings.TrimSpace(req.ReviewedBy)
	if reviewer == "" {
		reviewer = middleware.GetUserFromContext(r.Context())
	}
	if reviewer == "" {
		api.RespondValidationError(w, map[string]string{"reviewed_by": "is required"})
		return
	}

	review, incident, err := h.service.AddReview(r.Context(), r.PathValue("uuid"), services.ReviewInput{
		ReviewedBy: reviewer,
		Status:     database.ReviewStatus(req.ReviewStatus),
		Notes:      req.ReviewNotes,
	})
	if err != nil {
		h.respondServiceError(w, "review", err)
		return
	}
	slog.Info("incident reviewed", "incident", incident.UUID, "review_status", review.ReviewStatus, "reviewer", reviewer)
	api.RespondJSON(w, http.StatusCreated, api.ReviewResponse{Review: review, Incident: incident})
}

func (h *IncidentsHandler) respondServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, services.ErrIncidentNotFound):
		api.RespondErrorWithCode(w, http.StatusNotFound, "not_found", "Incident not found")
	case errors.Is(err, services.ErrInvalidUpdate):
		api.RespondErrorWithCode(w, http.StatusUnprocessableEntity, "invalid_update", err.Error())
	default:
		slog.Error("incident request failed", "op", op, "error", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to "+op+" incident")
	}
}
