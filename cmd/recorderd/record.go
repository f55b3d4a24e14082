package main

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"github.com/replaykit/recorderd/internal/capture"
	"github.com/replaykit/recorderd/internal/domain/lock"
	"github.com/replaykit/recorderd/internal/domain/recovery"
	"github.com/replaykit/recorderd/internal/domain/session"
	"github.com/replaykit/recorderd/internal/eventwindow"
	"github.com/replaykit/recorderd/internal/listener"
	"github.com/replaykit/recorderd/internal/report"
	"github.com/replaykit/recorderd/internal/shared/types"
	"github.com/replaykit/recorderd/internal/startpoint"
	"github.com/replaykit/recorderd/internal/storage"
	"github.com/spf13/cobra"
)

// recordCmd runs one recording session without the daemon: hotkeys are the
// only controls, and the command exits when the session finalizes.
func recordCmd() *cobra.Command {
	var (
		purpose  string
		accuracy int
		point    string
	)

	cmd := &cobra.Command{
		Use:   "record <name>",
		Short: "Record one test case from the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return fmt.Errorf("failed to build logger: %w", err)
			}
			defer log.Sync()

			store, err := storage.New(cfg.Storage.Root, log.Component("storage"))
			if err != nil {
				return err
			}

			var capturer capture.Capturer
			if cfg.Capture.Enabled {
				scr, err := capture.NewScreen(capture.Options{
					Display: cfg.Capture.Display,
					X:       cfg.Capture.X,
					Y:       cfg.Capture.Y,
					Width:   cfg.Capture.Width,
					Height:  cfg.Capture.Height,
				})
				if err != nil {
					fmt.Fprintf(os.Stderr, "screenshots disabled: %v\n", err)
				} else {
					capturer = scr
				}
			}

			hotkeys := map[string]types.Control{
				cfg.Hotkeys.Pause:  types.ControlPause,
				cfg.Hotkeys.Resume: types.ControlResume,
				cfg.Hotkeys.Stop:   types.ControlStop,
				cfg.Hotkeys.Cancel: types.ControlCancel,
			}
			listenerCfg := listener.Config{
				MoveThresholdPx: cfg.Recorder.MoveThresholdPx,
				Buffer:          cfg.Recorder.EventBuffer,
				StopTimeout:     cfg.Recorder.StopTimeout(),
				Hotkeys:         hotkeys,
			}

			window := eventwindow.NewBroadcaster()
			defer window.Close()

			var sink session.ReportSink
			if client := report.New(cfg.Report, log.Component("report")); client != nil {
				sink = client
			}

			manager := session.NewManager(session.Deps{
				Locker: lock.NewManager(cfg.Storage.LockPath()),
				Store:  cliStore{store},
				NewListener: func() session.InputListener {
					return listener.New(listener.NewHookSource(), listenerCfg, log.Component("listener"))
				},
				Capturer:       capturer,
				Window:         window,
				Navigator:      startpoint.New(cfg.Points, log.Component("startpoint")),
				Report:         sink,
				Log:            log,
				StopTimeout:    cfg.Recorder.StopTimeout(),
				CaptureWorkers: cfg.Capture.Workers,
			})

			s, err := manager.Start(cmd.Context(), types.TestCase{
				Name:          args[0],
				Purpose:       purpose,
				AccuracyLevel: accuracy,
				StartingPoint: types.StartingPoint(point),
			})
			if err != nil {
				return err
			}

			fmt.Printf("Recording %q. Hotkeys: %s pause, %s resume, %s stop, %s cancel.\n",
				args[0], cfg.Hotkeys.Pause, cfg.Hotkeys.Resume, cfg.Hotkeys.Stop, cfg.Hotkeys.Cancel)

			// A signal aborts the session; finalizing closes Done either way.
			interrupted := recovery.New(log.Component("signals"), func() error {
				fmt.Fprintln(os.Stderr, "interrupted, aborting session")
				return s.Abort(context.Background())
			})
			detach := interrupted.OnSignal(os.Interrupt, syscall.SIGTERM)
			defer detach()

			<-s.Done()

			if s.State() == types.StateStopped {
				fmt.Printf("Saved test case %q (%d actions).\n", args[0], s.Stats().ActionsTotal)
			} else {
				fmt.Printf("Recording cancelled, partial log parked.\n")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&purpose, "purpose", "", "what the test verifies")
	cmd.Flags().IntVar(&accuracy, "accuracy", 1, "replay accuracy level")
	cmd.Flags().StringVar(&point, "starting-point", "none", "desktop, browser, map, or none")
	return cmd
}

// cliStore narrows *storage.Store to the session manager's view.
type cliStore struct{ store *storage.Store }

func (a cliStore) Begin(tc types.TestCase) (session.Recording, error) {
	return a.store.Begin(tc)
}
