package server

import (
	"net/http"
	"time"

	"github.com/danmuck/snakeyard/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const adminVersion = "0.1.0"

// AdminRouter serves health, metrics and, when the spectator hub is running,
// the websocket feed.
func (s *Service) AdminRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(
		gin.Recovery(),
		observability.RequestLogger(observability.Component("snakeyard", "admin")),
		observability.RequestMetricsMiddleware(),
	)

	r.GET("/health", func(c *gin.Context) {
		spectators := 0
		if s.hub != nil {
			spectators = s.hub.Spectators()
		}
		c.JSON(http.StatusOK, gin.H{
			"status":     "ok",
			"uptime":     time.Since(s.started).String(),
			"component":  "yard",
			"version":    adminVersion,
			"clients":    s.ActiveClients(),
			"spectators": spectators,
			"grid": gin.H{
				"width":  s.cfg.Arena.Yard.Width,
				"height": s.cfg.Arena.Yard.Height,
			},
			"group": s.cfg.GroupAddr,
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/spectate", func(c *gin.Context) {
		if s.hub == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "spectating disabled"})
			return
		}
		s.hub.ServeHTTP(c.Writer, c.Request)
	})
	return r
}
