package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/CosmoTheDev/repowatch/internal/watcher"
	"github.com/spf13/cobra"
)

var (
	watchLogDir       string
	watchInterval     time.Duration
	watchSkipFirst    bool
	watchStopDeadline time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Start the polling daemon",
	Long: `Starts the repowatch daemon. Every interval it snapshots the enabled
subscriptions, fetches each repository's activity feed, works out what is new
since the stored cursor and delivers one digest per content kind.

The first observation of a repository only records where the feed currently
is; nothing is delivered for history that predates the subscription.

Press Ctrl+C to stop. An in-flight cycle is allowed to finish (bounded by
--stop-timeout) before cursors are flushed.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchLogDir, "log-dir", "logs",
		"directory to write daemon logs for later inspection")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0,
		"poll interval (overrides config; minimum 5s)")
	watchCmd.Flags().BoolVar(&watchSkipFirst, "skip-first", false,
		"wait one interval before the first cycle")
	watchCmd.Flags().DurationVar(&watchStopDeadline, "stop-timeout", 30*time.Second,
		"how long to wait for an in-flight cycle on shutdown")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	logFilePath, closeLog, err := setupWatchFileLogger(watchLogDir)
	if err != nil {
		return fmt.Errorf("initialising daemon logger: %w", err)
	}
	defer closeLog()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Error("closing stores", "error", err)
		}
	}()

	interval := a.cfg.Poll.Interval()
	if watchInterval > 0 {
		a.cfg.Poll.IntervalSeconds = int(watchInterval / time.Second)
		interval = a.cfg.Poll.Interval()
	}

	subs, err := a.subs.Active(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("repowatch daemon starting\n")
	fmt.Printf("  Interval   : %s\n", interval)
	fmt.Printf("  Watching   : %d active subscription(s)\n", len(subs))
	fmt.Printf("  Channels   : %s\n", orNone(strings.Join(a.router.Configured(), ", ")))
	fmt.Printf("  Cursors    : %s\n", orNone(a.cfg.Cursor.Backend))
	fmt.Printf("  Logs       : %s\n\n", logFilePath)
	fmt.Println("Press Ctrl+C to stop gracefully.")
	fmt.Println()

	slog.Info("daemon logger initialised", "file", logFilePath)
	sched := watcher.NewScheduler(a.orch, interval)
	if err := sched.Start(ctx, !watchSkipFirst); err != nil {
		return err
	}

	<-sigs
	fmt.Println("\nShutting down gracefully...")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), watchStopDeadline)
	defer stopCancel()
	if err := sched.Stop(stopCtx); err != nil {
		slog.Warn("in-flight cycle did not finish before the deadline", "error", err)
	}
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func setupWatchFileLogger(logDir string) (string, func(), error) {
	if logDir == "" {
		logDir = "logs"
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("creating log dir %s: %w", logDir, err)
	}

	ts := time.Now().UTC().Format("20060102-150405")
	runLogPath := filepath.Join(logDir, fmt.Sprintf("watch-%s.log", ts))
	runFile, err := os.OpenFile(runLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", nil, fmt.Errorf("opening run log file: %w", err)
	}

	latestPath := filepath.Join(logDir, "watch.log")
	latestFile, err := os.OpenFile(latestPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		_ = runFile.Close()
		return "", nil, fmt.Errorf("opening latest log file: %w", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, runFile, latestFile), &slog.HandlerOptions{
		Level:     level,
		AddSource: verbose,
	})
	slog.SetDefault(slog.New(handler))
	slog.SetLogLoggerLevel(level)

	cleanup := func() {
		_ = latestFile.Close()
		_ = runFile.Close()
	}
	return runLogPath, cleanup, nil
}
