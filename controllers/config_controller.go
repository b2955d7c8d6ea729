package controllers

import (
	"net/http"

	"alpha_gateway/applog"
	"alpha_gateway/apperror"
	"alpha_gateway/config"

	"github.com/gin-gonic/gin"
)

// ConfigController serves the persisted app configuration
type ConfigController struct {
	store  *config.AppConfigStore
	logger *applog.Logger
}

// NewConfigController creates a config controller
func NewConfigController(store *config.AppConfigStore, logger *applog.Logger) *ConfigController {
	return &ConfigController{store: store, logger: logger}
}

// GetConfig returns the masked configuration
// GET /config
func (cc *ConfigController) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, cc.store.Masked())
}

// UpdateConfig applies whitelisted keys from the JSON body
// POST /config
func (cc *ConfigController) UpdateConfig(c *gin.Context) {
	var patch config.ConfigPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondError(c, cc.logger, apperror.NewValidation("invalid json"))
		return
	}
	changed, err := cc.store.Apply(patch, c.ClientIP())
	if err != nil {
		respondError(c, cc.logger, apperror.Wrap(apperror.Internal, "failed to save config", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "changed": changed})
}
