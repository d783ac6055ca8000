package gateway

import "github.com/gin-gonic/gin"

// serveSignalingWS hands the connection straight to the signaling Switch,
// which owns its own upgrader and peer lifecycle (internal/signaling).
func (h *Handlers) serveSignalingWS(c *gin.Context) {
	h.signaling.ServeWS(c.Writer, c.Request)
}
