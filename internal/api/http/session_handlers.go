package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/replaykit/recorderd/internal/shared/types"
	"go.uber.org/zap"
)

type startRequest struct {
	Name          string `json:"name" binding:"required"`
	Purpose       string `json:"purpose"`
	AccuracyLevel int    `json:"accuracy_level"`
	StartingPoint string `json:"starting_point"`
}

// StartSession begins recording a new test case.
func (h *Handlers) StartSession(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid request: " + err.Error(),
		})
		return
	}

	s, err := h.sessions.Start(c.Request.Context(), types.TestCase{
		Name:          req.Name,
		Purpose:       req.Purpose,
		AccuracyLevel: req.AccuracyLevel,
		StartingPoint: types.StartingPoint(req.StartingPoint),
	})
	if err != nil {
		h.log.Warn("session start rejected", zap.String("test", req.Name), zap.Error(err))
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"run_id":  s.RunID(),
		"stats":   s.Stats(),
	})
}

// GetSession reports the current session snapshot. Idle is a valid
// answer, not an error.
func (h *Handlers) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"stats":   h.sessions.Stats(),
	})
}

// PauseSession suspends recording.
func (h *Handlers) PauseSession(c *gin.Context) {
	h.control(c, h.sessions.Pause)
}

// ResumeSession re-enables recording after a pause.
func (h *Handlers) ResumeSession(c *gin.Context) {
	h.control(c, h.sessions.Resume)
}

// StopSession finalizes and commits the current recording.
func (h *Handlers) StopSession(c *gin.Context) {
	h.control(c, func() error { return h.sessions.Stop(c.Request.Context()) })
}

// AbortSession cancels the current recording without committing.
func (h *Handlers) AbortSession(c *gin.Context) {
	h.control(c, func() error { return h.sessions.Abort(c.Request.Context()) })
}

func (h *Handlers) control(c *gin.Context, fn func() error) {
	if err := fn(); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"stats":   h.sessions.Stats(),
	})
}
