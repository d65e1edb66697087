package handler

import (
	"context"
	"net/http"

	"craftbid/internal/config"
	"craftbid/services/auction/helpers"
	"craftbid/utils"

	"github.com/gin-gonic/gin"
)

type SettingsServiceInterface interface {
	CurrentSettings() config.Settings
	ReloadSettings(ctx context.Context, s config.Settings) error
}

type AdminHandler struct {
	settings SettingsServiceInterface
}

func NewAdminHandler(settings SettingsServiceInterface) *AdminHandler {
	return &AdminHandler{settings: settings}
}

// GetSettingsHandler handles GET /admin/settings
func (h *AdminHandler) GetSettingsHandler(c *gin.Context) {
	utils.JSONResponse(c, http.StatusOK, helpers.ToSettingsPayload(h.settings.CurrentSettings()), "settings retrieved successfully")
}

// UpdateSettingsHandler handles PUT /admin/settings. The new snapshot
// applies to every operation that starts after it is stored.
func (h *AdminHandler) UpdateSettingsHandler(c *gin.Context) {
	var req helpers.SettingsPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "UpdateSettingsHandler", err)
		return
	}

	s, err := req.Settings()
	if err == nil {
		err = h.settings.ReloadSettings(c.Request.Context(), s)
	}
	if err != nil {
		helpers.RespondError(c, "UpdateSettingsHandler", err, nil)
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToSettingsPayload(s), "settings updated successfully")
	helpers.LogSuccess("UpdateSettingsHandler", "settings updated successfully", map[string]any{
		"commission_rate":     s.CommissionRate.String(),
		"anti_sniping_window": s.AntiSnipingWindow.String(),
		"actor":               helpers.ActorFrom(c).UserID,
	})
}
