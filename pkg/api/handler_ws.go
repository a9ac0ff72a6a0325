package api

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
)

// wsHandler handles GET /ws: upgrades the connection and hands it to the
// ConnectionManager, which blocks until the WebSocket closes.
//
// Same-origin requests are always accepted; cross-origin requests must
// match one of the configured allowed_ws_origins patterns.
func (s *Server) wsHandler(c *gin.Context) {
	if s.connManager == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "WebSocket not available"})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.AllowedWSOrigins,
	})
	if err != nil {
		// Accept already wrote the HTTP error response.
		return
	}

	s.connManager.HandleConnection(c.Request.Context(), conn)
}
