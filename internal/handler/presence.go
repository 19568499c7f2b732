package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"stealthy-realtime/internal/hub"
)

type PresenceHandler struct {
	Hub *hub.Hub
}

func (h *PresenceHandler) Get(c *gin.Context) {
	connections, _ := h.Hub.Stats()
	c.JSON(http.StatusOK, gin.H{
		"onlineUsers": h.Hub.Snapshot(),
		"connections": connections,
	})
}
