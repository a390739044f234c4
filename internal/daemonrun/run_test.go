package daemonrun_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"dball/internal/daemon"
	"dball/internal/daemonctl"
	"dball/internal/daemonrun"
	"dball/internal/ipc"
	"dball/internal/service"
	"dball/internal/state"
	"dball/internal/testsupport"
	"dball/internal/wire"
)

func TestRunServesUntilShutdown(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- daemonrun.Run(ctx, cfg, daemonrun.Options{LogLevel: "error"}) }()

	client, err := daemonctl.WaitForClient(ctx, cfg.Paths.SocketPath, daemonctl.ClientOptions(cfg), 5*time.Second)
	if err != nil {
		select {
		case runErr := <-done:
			if runErr != nil && strings.Contains(runErr.Error(), "operation not permitted") {
				t.Skipf("unix sockets not permitted in this environment: %v", runErr)
			}
			t.Fatalf("daemon exited early: %v", runErr)
		default:
		}
		t.Fatalf("WaitForClient: %v", err)
	}
	defer client.Close()

	if _, err := os.Stat(cfg.Paths.PIDPath); err != nil {
		t.Fatalf("expected pid file: %v", err)
	}

	second := *cfg
	if err := daemonrun.Run(ctx, &second, daemonrun.Options{LogLevel: "error"}); !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning from a second daemon, got %v", err)
	}
	pid, err := daemonctl.ReadPID(cfg.Paths.PIDPath)
	if err != nil {
		t.Fatalf("pid file should survive a rejected second daemon: %v", err)
	}
	if pid != os.Getpid() {
		t.Fatalf("pid file holds %d, want %d", pid, os.Getpid())
	}

	watcher := daemonctl.ClientOptions(cfg)
	watcher.Subscribe = true
	subscribed, err := ipc.Dial(ctx, cfg.Paths.SocketPath, watcher)
	if err != nil {
		t.Fatalf("dial subscriber: %v", err)
	}
	defer subscribed.Close()

	var snap state.AppState
	if err := client.Call(ctx, wire.GetCurrentState{}, &snap); err != nil {
		t.Fatalf("GetCurrentState: %v", err)
	}
	if snap.GenerationStatus != state.GenerationIdle || snap.NextDrawTime == nil {
		t.Fatalf("unexpected initial snapshot %+v", snap)
	}

	var ack service.Ack
	if err := client.Call(ctx, wire.Shutdown{}, &ack); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if ack.Message != "shutdown requested" {
		t.Fatalf("unexpected ack %q", ack.Message)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop after Shutdown")
	}
	deadline := time.Now().Add(2 * time.Second)
	for subscribed.Connected() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if subscribed.Connected() {
		t.Fatal("subscriber should be disconnected after shutdown")
	}
	for _, path := range []string{cfg.Paths.SocketPath, cfg.Paths.PIDPath} {
		if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("expected %s removed, stat err=%v", path, err)
		}
	}
}
