package hub

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"uniportal/internal/auth"
	"uniportal/internal/session"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS is enforced by the HTTP layer; the origin allow-list lives there.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades /ws requests and wires the connection into the hub.
// Topics come from the comma-separated "topics" query parameter. The session
// id may arrive in the usual header or, because browsers cannot set headers
// on websocket handshakes, in the "session_id" query parameter.
func Handler(h *Hub, sessions session.Store, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(auth.HeaderSessionID)
		if id == "" {
			id = c.Query("session_id")
		}
		if id == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}
		sess, err := sessions.Get(c.Request.Context(), id)
		if err != nil || !sess.Active() {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}

		var topics []string
		for _, t := range strings.Split(c.Query("topics"), ",") {
			if t = strings.TrimSpace(t); t != "" {
				topics = append(topics, t)
			}
		}
		if len(topics) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "topics required"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		sub := h.Subscribe(topics...)
		log.Info("live subscriber connected",
			zap.String("name", sess.Name),
			zap.Strings("topics", topics))

		go writePump(conn, sub)

		// Read pump: inbound frames are ignored, but reading is what detects
		// a closed connection.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		h.Unsubscribe(sub)
		_ = conn.Close()
		log.Info("live subscriber disconnected", zap.String("name", sess.Name))
	}
}

func writePump(conn *websocket.Conn, sub *Subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case payload := <-sub.C():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		case <-sub.Done():
			return
		}
	}
}
