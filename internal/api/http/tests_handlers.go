package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/replaykit/recorderd/internal/shared/types"
	"github.com/replaykit/recorderd/internal/storage"
	"go.uber.org/zap"
)

// ListTests returns the persisted test case library, optionally filtered
// by a glob pattern on the name.
func (h *Handlers) ListTests(c *gin.Context) {
	var (
		tests []types.TestCase
		err   error
	)
	if pattern := c.Query("pattern"); pattern != "" {
		tests, err = h.store.Find(pattern)
	} else {
		tests, err = h.store.List()
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "tests": tests})
}

// GetTest returns one test case with its full action log.
func (h *Handlers) GetTest(c *gin.Context) {
	tc, records, err := h.store.Load(c.Param("name"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"test":    tc,
		"actions": records,
	})
}

// ExportTest streams one test case as a gzipped tarball, screenshots
// included.
func (h *Handlers) ExportTest(c *gin.Context) {
	name := c.Param("name")
	if !h.store.Exists(name) {
		fail(c, fmt.Errorf("test case %q: %w", name, storage.ErrNotFound))
		return
	}

	c.Header("Content-Type", "application/gzip")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".tar.gz"))
	if err := h.store.Export(name, c.Writer); err != nil {
		// Headers are committed; all we can do is log.
		h.log.Error("export failed mid-stream",
			zap.String("test", name), zap.Error(err))
	}
}

// DeleteTest removes one test case and its screenshots.
func (h *Handlers) DeleteTest(c *gin.Context) {
	if err := h.store.Delete(c.Param("name")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
