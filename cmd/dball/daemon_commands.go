package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"dball/internal/daemonctl"
	"dball/internal/ipc"
	"dball/internal/state"
	"dball/internal/wire"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the dball daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(cmd.Context(), ctx.configValue(), exe, daemonLaunchOptions(ctx), 10*time.Second)
			if err != nil {
				return err
			}

			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintln(stdout, "Daemon not running, launching...")
				fmt.Fprintf(stdout, "Daemon started (pid %d)\n", result.PID)
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon already running")
			}
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the dball daemon (completely terminates the process)",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(cmd.Context(), ctx.configValue(), 5*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if !result.StopAcknowledged {
				fmt.Fprintln(stdout, "Shutdown request was not acknowledged")
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Killed daemon process (pid %d)\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the dball daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.Restart(cmd.Context(), ctx.configValue(), exe, daemonLaunchOptions(ctx), 5*time.Second, 10*time.Second)
			if err != nil {
				return err
			}

			if result.WasRunning {
				if result.Stop.ForcedKill && result.Stop.PID > 0 {
					fmt.Fprintf(stdout, "Killed daemon process (pid %d)\n", result.Stop.PID)
				}
				fmt.Fprintln(stdout, "Daemon stopped")
			}
			fmt.Fprintln(stdout, "Daemon restarted")
			return nil
		},
	}

	var output string
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and the current snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseOutputFormat(output)
			if err != nil {
				return err
			}
			cfg := ctx.configValue()
			view := statusView{Daemon: daemonView{Socket: cfg.Paths.SocketPath, HTTPAPI: cfg.API.Listen}}

			running, pid, err := daemonctl.ProcessInfo(cmd.Context(), cfg)
			if err != nil {
				return wrapDialError(err, cfg.Paths.SocketPath)
			}
			view.Daemon.Running = running
			view.Daemon.PID = pid
			if running {
				err := ctx.withClient(cmd.Context(), func(client *ipc.Client) error {
					var snapshot state.AppState
					if err := client.Call(cmd.Context(), wire.GetCurrentState{}, &snapshot); err != nil {
						return err
					}
					view.State = newStateView(snapshot)
					return nil
				})
				if err != nil {
					return err
				}
			}

			if handled, err := writeStructured(cmd, format, view); handled {
				return err
			}
			renderStatus(cmd, view)
			return nil
		},
	}
	addOutputFlag(statusCmd, &output)

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd}
}

func renderStatus(cmd *cobra.Command, view statusView) {
	stdout := cmd.OutOrStdout()
	p := paletteFor(stdout)

	writeHeading(stdout, "Daemon", p)
	if !view.Daemon.Running {
		writeField(stdout, "state", p.paint(healthDegraded.colors(), "Not running")+" (run `dball start`)")
		writeField(stdout, "socket", view.Daemon.Socket)
		return
	}
	detail := p.paint(healthGood.colors(), "Running")
	if view.Daemon.PID > 0 {
		detail += fmt.Sprintf(" (pid %d)", view.Daemon.PID)
	}
	writeField(stdout, "state", detail)
	writeField(stdout, "socket", view.Daemon.Socket)
	writeField(stdout, "http api", orDash(view.Daemon.HTTPAPI))
	if view.State == nil {
		return
	}

	fmt.Fprintln(stdout)
	writeHeading(stdout, "Provider "+orDash(view.State.API.Provider), p)
	writeField(stdout, "health", providerLine(view.State.API, p))

	fmt.Fprintln(stdout)
	writeHeading(stdout, "Snapshot", p)
	fmt.Fprint(stdout, renderSnapshot(view.State, p))
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext) daemonctl.LaunchOptions {
	return daemonctl.LaunchOptions{ConfigPath: ctx.configPath()}
}
