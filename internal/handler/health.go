package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandler reports liveness together with the size of the realtime hub.
type HealthHandler struct {
	Stats func() (connections, online int)
}

func (h *HealthHandler) Check(c *gin.Context) {
	resp := gin.H{"ok": true}
	if h.Stats != nil {
		connections, online := h.Stats()
		resp["connections"] = connections
		resp["online"] = online
	}
	c.JSON(http.StatusOK, resp)
}
