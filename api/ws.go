package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"marketrouter/auth"
	"marketrouter/logger"
	"marketrouter/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type authFrame struct {
	Action string `json:"action"`
	Token  string `json:"token"`
}

// handleWebsocket upgrades the connection, requires an {action:"auth"}
// frame as the first message, then hands the socket to the hub.
func (s *Server) handleWebsocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Log.Warnf("api: websocket upgrade failed: %v", err)
		return
	}

	var in authFrame
	if err := conn.ReadJSON(&in); err != nil || in.Action != "auth" {
		conn.WriteJSON(gin.H{"type": "error", "message": "first frame must be auth"})
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(1008, "auth failed"))
		conn.Close()
		return
	}

	claims, err := auth.ValidateJWT(in.Token)
	if err != nil {
		conn.WriteJSON(gin.H{"type": "error", "message": "invalid token"})
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(1008, "auth failed"))
		conn.Close()
		return
	}

	conn.WriteJSON(gin.H{"type": "auth", "status": "ok"})

	client := s.hub.Register(conn, claims.Username)
	metrics.WSActiveConnections.Inc()

	done := make(chan struct{})
	go func() {
		client.WritePump()
		close(done)
	}()
	client.ReadPump()
	s.hub.Remove(client)
	<-done
	metrics.WSActiveConnections.Dec()
}
