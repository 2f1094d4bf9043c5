package http

import (
	"context"
	"net/http"

	"github.com/dkeye/voicemesh/internal/adapters/hub"
	"github.com/dkeye/voicemesh/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// SetupRouter wires the hub's websocket endpoint and its admin API.
func SetupRouter(ctx context.Context, mode string, h *hub.Hub) *gin.Engine {
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	}

	r := gin.New()
	if mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "participants": h.Participants()})
	})

	r.GET("/ws", func(c *gin.Context) {
		h.HandleSignal(ctx, c)
	})

	api := r.Group("/api")

	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": h.Rooms()})
	})

	api.GET("/rooms/:id", func(c *gin.Context) {
		room, ok := h.Room(domain.RoomID(c.Param("id")))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusOK, room)
	})

	// DELETE /api/participants/:id drops the connection; the client resyncs on reconnect
	api.DELETE("/participants/:id", func(c *gin.Context) {
		if !h.Kick(domain.ParticipantID(c.Param("id"))) {
			c.JSON(http.StatusNotFound, gin.H{"error": "participant not found"})
			return
		}
		c.Status(http.StatusNoContent)
	})

	log.Info().Str("module", "adapters.http").Str("mode", mode).Msg("router setup")
	return r
}
