package startpoint

import (
	"context"
	"errors"
	"testing"

	"github.com/replaykit/recorderd/internal/infrastructure/config"
	"github.com/replaykit/recorderd/internal/infrastructure/logging"
	"github.com/replaykit/recorderd/internal/shared/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	name string
	args []string
}

func recordingRunner(calls *[]call, err error) Runner {
	return func(ctx context.Context, name string, args ...string) error {
		*calls = append(*calls, call{name: name, args: args})
		return err
	}
}

func TestNoneIsNoOp(t *testing.T) {
	var calls []call
	n := NewWithRunner(config.PointsConfig{}, recordingRunner(&calls, nil), logging.Nop())

	require.NoError(t, n.Go(context.Background(), types.PointNone))
	assert.Empty(t, calls)
}

func TestDesktopRunsConfiguredCommand(t *testing.T) {
	var calls []call
	n := NewWithRunner(config.PointsConfig{DesktopCommand: "wmctrl -k on"},
		recordingRunner(&calls, nil), logging.Nop())

	require.NoError(t, n.Go(context.Background(), types.PointDesktop))
	require.Len(t, calls, 1)
	assert.Equal(t, "wmctrl", calls[0].name)
	assert.Equal(t, []string{"-k", "on"}, calls[0].args)
}

func TestDesktopWithoutCommandSkips(t *testing.T) {
	var calls []call
	n := NewWithRunner(config.PointsConfig{}, recordingRunner(&calls, nil), logging.Nop())

	require.NoError(t, n.Go(context.Background(), types.PointDesktop))
	assert.Empty(t, calls)
}

func TestBrowserOpensURL(t *testing.T) {
	var calls []call
	n := NewWithRunner(config.PointsConfig{BrowserURL: "https://app.example/login"},
		recordingRunner(&calls, nil), logging.Nop())

	require.NoError(t, n.Go(context.Background(), types.PointBrowser))
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].args, "https://app.example/login")
}

func TestMapWithoutURLFails(t *testing.T) {
	var calls []call
	n := NewWithRunner(config.PointsConfig{}, recordingRunner(&calls, nil), logging.Nop())

	err := n.Go(context.Background(), types.PointMap)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "map url")
	assert.Empty(t, calls)
}

func TestCommandFailurePropagates(t *testing.T) {
	var calls []call
	n := NewWithRunner(config.PointsConfig{DesktopCommand: "wmctrl -k on"},
		recordingRunner(&calls, errors.New("exit status 1")), logging.Nop())

	err := n.Go(context.Background(), types.PointDesktop)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "show-desktop")
}

func TestUnknownPointRejected(t *testing.T) {
	var calls []call
	n := NewWithRunner(config.PointsConfig{}, recordingRunner(&calls, nil), logging.Nop())

	err := n.Go(context.Background(), types.StartingPoint("teleport"))
	require.Error(t, err)
	assert.Empty(t, calls)
}
