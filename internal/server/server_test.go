package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/replaykit/recorderd/internal/capture"
	"github.com/replaykit/recorderd/internal/infrastructure/config"
	"github.com/replaykit/recorderd/internal/infrastructure/logging"
	"github.com/replaykit/recorderd/internal/listener"
	"github.com/replaykit/recorderd/internal/shared/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource scripts raw input through the real listener pipeline.
type fakeSource struct {
	ch     chan listener.RawEvent
	closed chan struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		ch:     make(chan listener.RawEvent, 128),
		closed: make(chan struct{}),
	}
}

func (f *fakeSource) Open() (<-chan listener.RawEvent, error) {
	out := make(chan listener.RawEvent)
	go func() {
		defer close(out)
		for {
			select {
			case ev, ok := <-f.ch:
				if !ok {
					return
				}
				out <- ev
			case <-f.closed:
				return
			}
		}
	}()
	return out, nil
}

func (f *fakeSource) Close() error {
	select {
	case <-f.closed:
	default:
		close(f.closed)
	}
	return nil
}

func newTestServer(t *testing.T) (*Server, *fakeSource) {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.Root = filepath.Join(dir, "data")
	cfg.Storage.LockFile = filepath.Join(dir, "recorderd.lock")
	cfg.Capture.Enabled = false
	cfg.RateLimit.Enabled = false
	cfg.Points.SettleMS = 0

	src := newFakeSource()
	srv, err := New(cfg, logging.Nop(), Options{
		Source:   func() listener.Source { return src },
		Capturer: capture.Noop{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { srv.window.Close() })
	return srv, src
}

func do(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func waitForActions(t *testing.T, srv *Server, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return srv.Sessions().Stats().ActionsTotal == n
	}, 2*time.Second, 5*time.Millisecond)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	w := do(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
	assert.Contains(t, w.Body.String(), `"idle"`)
}

func TestRecordingLifecycleOverAPI(t *testing.T) {
	srv, src := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/session", h{
		"name": "Login-Flow", "purpose": "login", "starting_point": "desktop",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	src.ch <- listener.RawEvent{Kind: listener.RawClick, X: 120, Y: 340, When: time.Now()}
	src.ch <- listener.RawEvent{Kind: listener.RawKeyPress, Key: "enter", When: time.Now()}
	waitForActions(t, srv, 2)

	w = do(t, srv, http.MethodPost, "/session/stop", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, srv, http.MethodGet, "/tests/Login-Flow", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Test    types.TestCase       `json:"test"`
		Actions []types.ActionRecord `json:"actions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Login-Flow", resp.Test.Name)
	require.Len(t, resp.Actions, 2)
	assert.Equal(t, types.KindClick, resp.Actions[0].Kind)
	assert.Equal(t, types.KindKeyPress, resp.Actions[1].Kind)
	assert.Equal(t, 0, resp.Actions[0].Seq)
	assert.Equal(t, 1, resp.Actions[1].Seq)
}

func TestStartValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/session", h{"purpose": "missing name"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, http.MethodPost, "/session", h{
		"name": "x", "starting_point": "teleport",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSecondStartConflicts(t *testing.T) {
	srv, _ := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/session", h{"name": "one"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, srv, http.MethodPost, "/session", h{"name": "two"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, srv, http.MethodPost, "/session/abort", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestControlWithoutSessionConflicts(t *testing.T) {
	srv, _ := newTestServer(t)

	assert.Equal(t, http.StatusConflict, do(t, srv, http.MethodPost, "/session/pause", nil).Code)
	assert.Equal(t, http.StatusConflict, do(t, srv, http.MethodPost, "/session/stop", nil).Code)
}

func TestPauseResumeOverAPI(t *testing.T) {
	srv, _ := newTestServer(t)

	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/session", h{"name": "p"}).Code)

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/session/pause", nil).Code)
	assert.Equal(t, http.StatusConflict, do(t, srv, http.MethodPost, "/session/pause", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/session/resume", nil).Code)

	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/session/stop", nil).Code)
}

func TestTestsLibraryEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/session", h{"name": "lib-case"}).Code)
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/session/stop", nil).Code)

	w := do(t, srv, http.MethodGet, "/tests", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "lib-case")

	w = do(t, srv, http.MethodGet, "/tests?pattern=lib-*", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "lib-case")

	w = do(t, srv, http.MethodGet, "/tests/lib-case/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/gzip", w.Header().Get("Content-Type"))
	assert.NotZero(t, w.Body.Len())

	assert.Equal(t, http.StatusNoContent, do(t, srv, http.MethodDelete, "/tests/lib-case", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/tests/lib-case", nil).Code)
}

func TestMissingTestIs404(t *testing.T) {
	srv, _ := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/tests/nope", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/tests/nope/export", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodDelete, "/tests/nope", nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	w := do(t, srv, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "recorderd")
}

type h = map[string]any
