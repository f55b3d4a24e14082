// Package ws streams event window updates to WebSocket clients. The event
// window surface (tray UI, dashboards) subscribes here to render session
// state and the live action feed.
package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/replaykit/recorderd/internal/eventwindow"
	"github.com/replaykit/recorderd/internal/infrastructure/logging"
	"github.com/replaykit/recorderd/internal/infrastructure/monitoring"
	"github.com/replaykit/recorderd/internal/shared/id"
	"github.com/replaykit/recorderd/internal/shared/types"
	"go.uber.org/zap"
)

const (
	writeWait  = 5 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The control API binds to loopback; the event window connects
		// from file:// and app origins.
		return true
	},
}

// StatsSource reports the current session snapshot for the hello message.
type StatsSource interface {
	Stats() types.SessionStats
}

// Handler upgrades event window connections and fans updates out to them.
type Handler struct {
	window  *eventwindow.Broadcaster
	stats   StatsSource
	metrics *monitoring.Metrics
	log     *logging.Logger
}

// NewHandler creates a WebSocket handler for the live update feed.
func NewHandler(window *eventwindow.Broadcaster, stats StatsSource, metrics *monitoring.Metrics, log *logging.Logger) *Handler {
	return &Handler{window: window, stats: stats, metrics: metrics, log: log}
}

type hello struct {
	Type   string             `json:"type"`
	ConnID string             `json:"conn_id"`
	Stats  types.SessionStats `json:"stats"`
}

// HandleConnection upgrades the request and streams updates until the
// client goes away or the broadcaster closes.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	connID := string(id.NewConnID())
	log := h.log.With(zap.String("conn_id", connID))

	if h.metrics != nil {
		h.metrics.StreamConnections.Inc()
		defer h.metrics.StreamConnections.Dec()
	}

	updates, cancel := h.window.Subscribe()
	defer cancel()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(hello{Type: "hello", ConnID: connID, Stats: h.stats.Stats()}); err != nil {
		log.Debug("hello write failed", zap.Error(err))
		return
	}

	// Reader goroutine: the feed is one-way, reads only surface closes.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	log.Info("event window connected")
	defer log.Info("event window disconnected")

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(u); err != nil {
				log.Debug("update write failed", zap.Error(err))
				return
			}
			if h.metrics != nil {
				h.metrics.StreamUpdates.Inc()
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
