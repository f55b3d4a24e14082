// Package http implements the control API handlers. The API drives the
// session state machine and serves the persisted test case library.
package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/replaykit/recorderd/internal/domain/lock"
	"github.com/replaykit/recorderd/internal/domain/session"
	"github.com/replaykit/recorderd/internal/infrastructure/logging"
	"github.com/replaykit/recorderd/internal/listener"
	"github.com/replaykit/recorderd/internal/shared/paths"
	"github.com/replaykit/recorderd/internal/storage"
)

// Handlers exposes session control and test case library endpoints.
type Handlers struct {
	sessions *session.Manager
	store    *storage.Store
	log      *logging.Logger
}

// NewHandlers creates the control API handler set.
func NewHandlers(sessions *session.Manager, store *storage.Store, log *logging.Logger) *Handlers {
	return &Handlers{sessions: sessions, store: store, log: log}
}

// Health reports liveness and the current session state.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"state":  h.sessions.Stats().State,
	})
}

// fail writes the error with a status derived from the error taxonomy.
func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{
		"success": false,
		"error":   err.Error(),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrInvalidTestCase),
		errors.Is(err, paths.ErrUnsafeName):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, lock.ErrAlreadyLocked),
		errors.Is(err, session.ErrSessionActive),
		errors.Is(err, session.ErrNoSession),
		errors.Is(err, session.ErrInvalidTransition),
		errors.Is(err, storage.ErrExists):
		return http.StatusConflict
	case errors.Is(err, listener.ErrStart):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
