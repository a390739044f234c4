package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"dball/internal/daemonctl"
	"dball/internal/ipc"
	"dball/internal/logging"
	"dball/internal/reconnect"
	"dball/internal/state"
	"dball/internal/statewatch"
	"dball/internal/wire"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream state changes from the daemon, reconnecting when it restarts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			stdout := cmd.OutOrStdout()
			stderr := cmd.ErrOrStderr()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger, err := logging.New(logging.Options{
				Level:       "warn",
				Format:      cfg.Logging.Format,
				OutputPaths: []string{"stderr"},
			})
			if err != nil {
				return err
			}

			opts := daemonctl.ClientOptions(cfg)
			opts.Subscribe = true
			opts.Events = []wire.EventType{wire.EventAppStateChange}
			opts.Logger = logger
			client := ipc.NewClient(cfg.Paths.SocketPath, opts)
			defer client.Close()

			watchCtx, cancel := context.WithCancel(runCtx)
			defer cancel()

			sub := statewatch.New(client, logger)
			go func() { _ = sub.Run(watchCtx) }()
			events := sub.Events(watchCtx)

			manager := &reconnect.Manager{
				Target: client,
				Config: daemonctl.ReconnectConfig(cfg),
				OnDisconnect: func() {
					sub.Clear()
					fmt.Fprintln(stderr, "Connection lost, reconnecting...")
				},
				OnReconnect: func() {
					fmt.Fprintf(stderr, "Connected to %s\n", cfg.Paths.SocketPath)
				},
				Notify: func(attempt int, err error, wait time.Duration) {
					fmt.Fprintf(stderr, "Connect attempt %d failed: %v (retrying in %s)\n", attempt, err, wait)
				},
			}
			errCh := make(chan error, 1)
			go func() { errCh <- manager.Run(watchCtx) }()

			seen := 0
			for {
				select {
				case err := <-errCh:
					return err
				case ev, ok := <-events:
					if !ok {
						return nil
					}
					if ev.Kind == statewatch.EventCleared {
						fmt.Fprintln(stdout, "state cleared")
						continue
					}
					printStateLine(stdout, ev.State)
					seen++
					if count > 0 && seen >= count {
						return nil
					}
				}
			}
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 0, "Exit after this many updates (0 streams until interrupted)")
	return cmd
}

func printStateLine(w io.Writer, s state.AppState) {
	fmt.Fprintf(w, "%s period=%s next=%s pending=%d unscored=%d invested=%d returned=%d generation=%s\n",
		s.LastUpdate.Local().Format(time.TimeOnly),
		orDash(s.CurrentPeriod),
		orDash(s.NextPeriod),
		len(s.PendingTickets),
		s.UnprizeSpotsCount,
		s.TotalInvestment,
		s.TotalReturn,
		s.GenerationStatus,
	)
}
