// Package startpoint brings the desktop to a test's starting point before
// recording begins, so replays start from a reproducible screen state.
package startpoint

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/replaykit/recorderd/internal/infrastructure/config"
	"github.com/replaykit/recorderd/internal/infrastructure/logging"
	"github.com/replaykit/recorderd/internal/shared/types"
	"go.uber.org/zap"
)

// Runner executes one external command. Injected for tests.
type Runner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// Navigator resolves starting points to desktop actions: show-desktop for
// PointDesktop, the OS URL opener for PointBrowser and PointMap.
type Navigator struct {
	cfg    config.PointsConfig
	run    Runner
	settle func(time.Duration)
	log    *logging.Logger
}

// New creates a navigator using the real command runner.
func New(cfg config.PointsConfig, log *logging.Logger) *Navigator {
	return &Navigator{cfg: cfg, run: execRunner, settle: time.Sleep, log: log}
}

// NewWithRunner creates a navigator with an injected command runner and no
// settle delay.
func NewWithRunner(cfg config.PointsConfig, run Runner, log *logging.Logger) *Navigator {
	return &Navigator{cfg: cfg, run: run, settle: func(time.Duration) {}, log: log}
}

// Go navigates to the given starting point. PointNone is a no-op; an
// unknown point is rejected before any command runs.
func (n *Navigator) Go(ctx context.Context, p types.StartingPoint) error {
	switch p {
	case types.PointNone:
		return nil
	case types.PointDesktop:
		if err := n.showDesktop(ctx); err != nil {
			return err
		}
	case types.PointBrowser:
		if err := n.openURL(ctx, n.cfg.BrowserURL, "browser"); err != nil {
			return err
		}
	case types.PointMap:
		if err := n.openURL(ctx, n.cfg.MapURL, "map"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown starting point %q", p)
	}

	n.log.Info("navigated to starting point", zap.String("point", string(p)))
	n.settle(n.cfg.Settle())
	return nil
}

func (n *Navigator) showDesktop(ctx context.Context) error {
	cmd := n.cfg.DesktopCommand
	if cmd == "" {
		n.log.Debug("no show-desktop command configured, skipping")
		return nil
	}
	parts := strings.Fields(cmd)
	if err := n.run(ctx, parts[0], parts[1:]...); err != nil {
		return fmt.Errorf("show-desktop command failed: %w", err)
	}
	return nil
}

func (n *Navigator) openURL(ctx context.Context, url, what string) error {
	if url == "" {
		return fmt.Errorf("no %s url configured", what)
	}
	opener, args := urlOpener(url)
	if err := n.run(ctx, opener, args...); err != nil {
		return fmt.Errorf("failed to open %s url: %w", what, err)
	}
	return nil
}

// urlOpener picks the platform's URL handler.
func urlOpener(url string) (string, []string) {
	switch runtime.GOOS {
	case "darwin":
		return "open", []string{url}
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}
	default:
		return "xdg-open", []string{url}
	}
}
