// Package server wires the recorder daemon together: session manager,
// test case store, control API routes, live update feed, and metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/replaykit/recorderd/internal/api/http"
	"github.com/replaykit/recorderd/internal/api/middleware"
	"github.com/replaykit/recorderd/internal/capture"
	"github.com/replaykit/recorderd/internal/domain/lock"
	"github.com/replaykit/recorderd/internal/domain/session"
	"github.com/replaykit/recorderd/internal/eventwindow"
	"github.com/replaykit/recorderd/internal/infrastructure/config"
	"github.com/replaykit/recorderd/internal/infrastructure/logging"
	"github.com/replaykit/recorderd/internal/infrastructure/monitoring"
	"github.com/replaykit/recorderd/internal/listener"
	"github.com/replaykit/recorderd/internal/report"
	"github.com/replaykit/recorderd/internal/shared/types"
	"github.com/replaykit/recorderd/internal/startpoint"
	"github.com/replaykit/recorderd/internal/storage"
	"github.com/replaykit/recorderd/internal/ws"
)

// Server is the assembled recorder daemon.
type Server struct {
	router   *gin.Engine
	http     *http.Server
	sessions *session.Manager
	store    *storage.Store
	window   *eventwindow.Broadcaster
	metrics  *monitoring.Metrics
	config   *config.Config
	log      *logging.Logger
}

// Options overrides collaborators for tests. Zero values select the real
// implementations.
type Options struct {
	// Source supplies raw input events. Nil uses the OS hook.
	Source func() listener.Source

	// Capturer overrides screenshot capture.
	Capturer capture.Capturer
}

// New assembles a server from configuration.
func New(cfg *config.Config, log *logging.Logger, opts Options) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	metrics := monitoring.New()
	window := eventwindow.NewBroadcaster()

	store, err := storage.New(cfg.Storage.Root, log.Component("storage"))
	if err != nil {
		window.Close()
		return nil, fmt.Errorf("failed to open test case store: %w", err)
	}

	capturer := opts.Capturer
	if capturer == nil && cfg.Capture.Enabled {
		scr, err := capture.NewScreen(capture.Options{
			Display: cfg.Capture.Display,
			X:       cfg.Capture.X,
			Y:       cfg.Capture.Y,
			Width:   cfg.Capture.Width,
			Height:  cfg.Capture.Height,
		})
		if err != nil {
			log.Warn("screenshot capture unavailable, recording without evidence", zap.Error(err))
		} else {
			capturer = scr
		}
	}

	newSource := opts.Source
	if newSource == nil {
		newSource = func() listener.Source { return listener.NewHookSource() }
	}
	listenerCfg := listener.Config{
		MoveThresholdPx: cfg.Recorder.MoveThresholdPx,
		Buffer:          cfg.Recorder.EventBuffer,
		StopTimeout:     cfg.Recorder.StopTimeout(),
		Hotkeys:         hotkeyControls(cfg.Hotkeys),
	}
	listenerLog := log.Component("listener")
	newListener := func() session.InputListener {
		l := listener.New(newSource(), listenerCfg, listenerLog)
		l.OnCoalesced(metrics.EventsCoalesced.Inc)
		return l
	}

	var reportSink session.ReportSink
	if client := report.New(cfg.Report, log.Component("report")); client != nil {
		reportSink = client
	}

	locker := lock.NewManager(cfg.Storage.LockPath())
	locker.OnStaleCleared(metrics.StaleLocksCleared.Inc)

	sessions := session.NewManager(session.Deps{
		Locker:         locker,
		Store:          storeAdapter{store},
		NewListener:    newListener,
		Capturer:       capturer,
		Window:         window,
		Navigator:      startpoint.New(cfg.Points, log.Component("startpoint")),
		Report:         reportSink,
		Metrics:        metrics,
		Log:            log,
		StopTimeout:    cfg.Recorder.StopTimeout(),
		CaptureWorkers: cfg.Capture.Workers,
	})

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS())
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(cfg.RateLimit))
	}

	handlers := apihttp.NewHandlers(sessions, store, log.Component("api"))
	wsHandler := ws.NewHandler(window, sessions, metrics, log.Component("ws"))

	router.GET("/health", handlers.Health)

	router.POST("/session", handlers.StartSession)
	router.GET("/session", handlers.GetSession)
	router.POST("/session/pause", handlers.PauseSession)
	router.POST("/session/resume", handlers.ResumeSession)
	router.POST("/session/stop", handlers.StopSession)
	router.POST("/session/abort", handlers.AbortSession)

	router.GET("/tests", handlers.ListTests)
	router.GET("/tests/:name", handlers.GetTest)
	router.GET("/tests/:name/export", handlers.ExportTest)
	router.DELETE("/tests/:name", handlers.DeleteTest)

	router.GET("/stream", wsHandler.HandleConnection)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	return &Server{
		router:   router,
		http:     &http.Server{Addr: addr, Handler: router},
		sessions: sessions,
		store:    store,
		window:   window,
		metrics:  metrics,
		config:   cfg,
		log:      log,
	}, nil
}

// Router exposes the gin engine for in-process tests.
func (s *Server) Router() *gin.Engine { return s.router }

// Sessions exposes the session manager for signal handling.
func (s *Server) Sessions() *session.Manager { return s.sessions }

// Run serves the control API until Shutdown.
func (s *Server) Run() error {
	s.log.Info("control api listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown aborts any live session and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down")
	s.sessions.Shutdown(ctx)
	s.window.Close()

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

func hotkeyControls(cfg config.HotkeyConfig) map[string]types.Control {
	return map[string]types.Control{
		cfg.Pause:  types.ControlPause,
		cfg.Resume: types.ControlResume,
		cfg.Stop:   types.ControlStop,
		cfg.Cancel: types.ControlCancel,
	}
}

// storeAdapter narrows *storage.Store to the session manager's view.
type storeAdapter struct{ store *storage.Store }

func (a storeAdapter) Begin(tc types.TestCase) (session.Recording, error) {
	return a.store.Begin(tc)
}
