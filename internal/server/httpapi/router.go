// Package httpapi exposes the inbound sync entry points over HTTP. Every
// sync call answers 200 with a flat result mapping; errors travel inside the
// body, never as transport failures.
package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/civisync/internal/logging"
	"github.com/dmitrijs2005/civisync/internal/server/config"
	"github.com/dmitrijs2005/civisync/internal/server/services"
)

// SyncFunc is the shape shared by the contact and contribution sync
// services.
type SyncFunc func(ctx context.Context, payload map[string]any) *services.SyncResponse

// NewRouter builds the gin engine with the two sync endpoints behind bearer
// auth.
func NewRouter(cfg *config.Config, logger logging.Logger, contactSync, contributionSync SyncFunc) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery(), RequestID())

	api := r.Group("/api/v1/sync", Auth(cfg.SecretKey))
	api.POST("/contact", handleSync(logger, contactSync))
	api.POST("/contribution", handleSync(logger, contributionSync))

	return r
}

func handleSync(logger logging.Logger, sync SyncFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload map[string]any
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusOK, &services.SyncResponse{
				IsError:  1,
				ErrorLog: []string{"malformed request body: " + err.Error()},
			})
			return
		}

		ctx := c.Request.Context()
		if id, ok := c.Get("request_id"); ok {
			logger.Debug(ctx, "sync request", "request_id", id)
		}
		c.JSON(http.StatusOK, sync(ctx, payload))
	}
}
