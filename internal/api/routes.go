// Package api exposes the decision core to the UI and transaction-entry
// flow over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"pocketwatch/internal/service"
	"pocketwatch/internal/version"
)

// NewRouter builds the gin engine with all routes mounted.
func NewRouter(svc *service.Service, logger zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	handler := NewHandler(svc, logger)

	router.GET("/health", handler.Health)

	v1 := router.Group("/api/v1")
	{
		vaults := v1.Group("/vaults/:vault")
		{
			vaults.GET("/insights", handler.GetInsights)
			vaults.POST("/evaluate", handler.Evaluate)
			vaults.GET("/wallet", handler.GetWalletState)
			vaults.GET("/restricted/:category", handler.IsRestricted)
			vaults.POST("/insights/:key/dismiss", handler.DismissInsight)
			vaults.POST("/rules/:rule/mute", handler.MuteRule)
			vaults.DELETE("/rules/:rule/mute", handler.UnmuteRule)
			vaults.POST("/affordability", handler.CheckAffordability)
		}
	}

	return router
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	log := logger.With().Str("component", "http").Logger()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request handled")
	}
}

// HealthResponse reports process liveness.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// Health implements the liveness endpoint.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   version.Version,
	})
}
