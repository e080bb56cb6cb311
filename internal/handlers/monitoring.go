package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/akmatori/incidentwatch/internal/api"
	"github.com/akmatori/incidentwatch/internal/config"
)

// ChannelNamer looks up a channel's name from its ID.
type ChannelNamer interface {
	ChannelName(ctx context.Context, channelID string) (string, error)
}

const unknownChannelName = "Unknown Channel"

// MonitoringHandler reports the effective monitoring configuration.
type MonitoringHandler struct {
	cfg   *config.Config
	namer ChannelNamer
}

// NewMonitoringHandler creates the handler. namer may be nil, in which case
// channels are listed without names.
func NewMonitoringHandler(cfg *config.Config, namer ChannelNamer) *MonitoringHandler {
	return &MonitoringHandler{cfg: cfg, namer: namer}
}

// SetupRoutes registers GET /api/monitoring.
func (h *MonitoringHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/monitoring", h.handleGet)
}

func (h *MonitoringHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	channels := make([]api.MonitoredChannel, 0, len(h.cfg.MonitorChannels))
	for _, id := range h.cfg.MonitorChannels {
		ch := api.MonitoredChannel{ID: id, Name: unknownChannelName}
		if h.namer != nil {
			name, err := h.namer.ChannelName(r.Context(), id)
			if err != nil {
				slog.Warn("failed to look up monitored channel", "channel", id, "error", err)
			} else {
				ch.Name = name
				ch.Active = true
			}
		}
		channels = append(channels, ch)
	}

	api.RespondJSON(w, http.StatusOK, api.MonitoringResponse{
		Limited:               len(h.cfg.MonitorChannels) > 0,
		Channels:              channels,
		NotificationEnabled:   h.cfg.NotificationEnabled,
		NotificationChannel:   h.cfg.NotificationChannelID,
		MinConfidence:         h.cfg.MinConfidenceForAutoCreate,
		HighSeverityThreshold: h.cfg.HighSeverityThreshold,
		AnalysisDebounce:      h.cfg.AnalysisDebounce.String(),
	})
}
