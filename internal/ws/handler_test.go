package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/replaykit/recorderd/internal/eventwindow"
	"github.com/replaykit/recorderd/internal/infrastructure/logging"
	"github.com/replaykit/recorderd/internal/shared/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStats struct{ stats types.SessionStats }

func (f fakeStats) Stats() types.SessionStats { return f.stats }

func dialFeed(t *testing.T, window *eventwindow.Broadcaster, stats types.SessionStats) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	h := NewHandler(window, fakeStats{stats}, nil, logging.Nop())
	r.GET("/stream", h.HandleConnection)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHelloCarriesSessionSnapshot(t *testing.T) {
	window := eventwindow.NewBroadcaster()
	defer window.Close()

	conn := dialFeed(t, window, types.SessionStats{
		State: types.StateRecording, Test: "Login-Flow", ActionsTotal: 3,
	})

	var msg hello
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "hello", msg.Type)
	assert.True(t, strings.HasPrefix(msg.ConnID, "conn_"))
	assert.Equal(t, "Login-Flow", msg.Stats.Test)
	assert.Equal(t, 3, msg.Stats.ActionsTotal)
}

func TestUpdatesAreStreamed(t *testing.T) {
	window := eventwindow.NewBroadcaster()
	defer window.Close()

	conn := dialFeed(t, window, types.SessionStats{State: types.StateIdle})

	var first hello
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&first))

	// Subscription races the connect; publish until the update lands.
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for i := 0; i < 100; i++ {
			window.Action("demo", types.ActionRecord{Seq: 0, Kind: types.KindClick})
			<-ticker.C
		}
	}()

	var update types.Update
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&update))
	<-done

	assert.Equal(t, types.UpdateAction, update.Type)
	assert.Equal(t, "demo", update.Test)
	require.NotNil(t, update.Action)
	assert.Equal(t, types.KindClick, update.Action.Kind)
}

func TestBroadcasterCloseEndsConnection(t *testing.T) {
	window := eventwindow.NewBroadcaster()
	conn := dialFeed(t, window, types.SessionStats{State: types.StateIdle})

	var first hello
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&first))

	window.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}

func TestUpgradeRequiredForPlainGet(t *testing.T) {
	gin.SetMode(gin.TestMode)
	window := eventwindow.NewBroadcaster()
	defer window.Close()

	r := gin.New()
	h := NewHandler(window, fakeStats{}, nil, logging.Nop())
	r.GET("/stream", h.HandleConnection)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
