package controllers

import (
	"math"
	"strconv"
	"strings"

	"alpha_gateway/applog"
	"alpha_gateway/apperror"
	"alpha_gateway/middleware"

	"github.com/gin-gonic/gin"
)

// respondError writes err as {error, reason?, note?} with its mapped status
func respondError(c *gin.Context, logger *applog.Logger, err error) {
	status := apperror.HTTPStatus(err)
	log := middleware.LoggerFrom(c, logger)
	if status >= 500 {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Int("status", status).Msg("request failed")
	} else {
		log.Debug().Err(err).Str("path", c.Request.URL.Path).Int("status", status).Msg("request rejected")
	}
	c.JSON(status, apperror.BodyOf(err))
}

// requireSymbol reads the trimmed symbol query parameter
func requireSymbol(c *gin.Context) (string, error) {
	sym := strings.TrimSpace(c.Query("symbol"))
	if sym == "" {
		return "", apperror.NewValidation("missing symbol")
	}
	return sym, nil
}

// floatParam returns nil when the parameter is absent, malformed or not finite
func floatParam(c *gin.Context, name string) *float64 {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func boolParam(c *gin.Context, name string, def bool) bool {
	raw := strings.ToLower(strings.TrimSpace(c.Query(name)))
	if raw == "" {
		return def
	}
	return raw == "true" || raw == "1" || raw == "yes"
}

func intParam(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(c.Query(name)))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
