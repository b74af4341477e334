package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/loocate/loocate/internal/screen"
	"github.com/loocate/loocate/internal/telemetry"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// CameraStream handles GET /screens/:id/camera/stream. The last known move
// is sent first, then every move until the screen is unmounted or the
// client goes away.
func (h *ScreenHandler) CameraStream(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}

	// Subscribe before upgrading so no move slips between the two.
	events, unsubscribe := s.Camera.Subscribe()
	defer unsubscribe()

	logger := telemetry.GetContextualLogger(c.Request.Context()).WithFields(map[string]interface{}{
		"service":   "api",
		"operation": "camera_stream",
		"screen_id": s.ID,
	})

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the handshake error.
		logger.WithError(err).Warn("Camera stream upgrade failed")
		return
	}
	defer conn.Close()
	logger.Info("Camera stream client connected")

	done := make(chan struct{})
	go readPump(conn, done)

	var sent uint64
	if last, ok := s.Camera.Last(); ok {
		if err := writeEvent(conn, last); err != nil {
			logger.WithError(err).Debug("Failed to send last camera move")
			return
		}
		sent = last.Sequence
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case event, open := <-events:
			if !open {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "screen unmounted"))
				logger.Info("Screen unmounted, closing camera stream")
				return
			}
			if event.Sequence <= sent {
				continue
			}
			sent = event.Sequence
			if err := writeEvent(conn, event); err != nil {
				if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
					logger.Info("Camera stream client closed connection")
				} else {
					logger.WithError(err).Warn("Failed to send camera move")
				}
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			logger.Info("Camera stream client disconnected")
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, event screen.CameraEvent) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(event)
}

// readPump drains client frames so pongs and close frames are processed.
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
