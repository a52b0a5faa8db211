package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"crmsync/internal/service"
)

type SwitchStore interface {
	ListSwitches(ctx context.Context) ([]service.FeatureSwitch, error)
	IsEnabled(ctx context.Context, key string, fallback bool) bool
	SetEnabled(ctx context.Context, key string, enabled bool) error
}

type SettingsHandler struct {
	Settings SwitchStore
}

func (h *SettingsHandler) Register(r *gin.Engine) {
	g := r.Group("/api/settings")
	g.GET("/switches", h.listSwitches)
	g.PUT("/switches/:name", h.putSwitch)
}

// @Summary List sync feature switches
// @Tags settings
// @Success 200 {object} apiResponse
// @Router /api/settings/switches [get]
func (h *SettingsHandler) listSwitches(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings service unavailable", nil)
		return
	}
	items, err := h.Settings.ListSwitches(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

type putSwitchRequest struct {
	Enabled *bool `json:"enabled"`
}

// @Summary Turn a sync feature switch on or off
// @Tags settings
// @Param name path string true "switch name, e.g. deals or feature.sync.deals"
// @Param body body putSwitchRequest true "new state"
// @Success 200 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/settings/switches/{name} [put]
func (h *SettingsHandler) putSwitch(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings service unavailable", nil)
		return
	}
	key := switchKey(c.Param("name"))
	if !service.IsKnownSwitch(key) {
		Error(c, http.StatusNotFound, "unknown switch", nil)
		return
	}
	var req putSwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	if err := h.Settings.SetEnabled(c.Request.Context(), key, *req.Enabled); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, map[string]any{
		"key":     key,
		"enabled": h.Settings.IsEnabled(c.Request.Context(), key, *req.Enabled),
	}, nil)
}

func switchKey(name string) string {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, "feature.") {
		return name
	}
	return service.FeatureKey(name)
}
