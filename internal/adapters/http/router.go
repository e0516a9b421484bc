package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/beamchat/relay/internal/adapters/ws"
	"github.com/beamchat/relay/internal/app"
	"github.com/beamchat/relay/internal/config"
	"github.com/beamchat/relay/internal/domain"
)

// SetupRouter wires the websocket endpoint plus a small read-only ops
// surface over the live registry and membership table.
func SetupRouter(ctx context.Context, cfg *config.Config, rt *app.Router, ctl *ws.Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": rt.Registry.Len()})
	})

	api := r.Group("/api")

	// GET /api/rooms — live fan-out groups and their sizes.
	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": rt.Rooms.Rooms()})
	})

	// GET /api/rooms/:id/members — identities currently connected to a room.
	api.GET("/rooms/:id/members", func(c *gin.Context) {
		room, err := domain.ParseRoomID(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"members": rt.MembersSnapshot(room)})
	})

	r.GET("/ws", func(c *gin.Context) {
		ctl.HandleChat(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
