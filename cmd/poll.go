package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CosmoTheDev/repowatch/internal/subscription"
	"github.com/CosmoTheDev/repowatch/internal/watcher"
	"github.com/CosmoTheDev/repowatch/models"
	"github.com/spf13/cobra"
)

var (
	pollOnce bool
	pollRepo string
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Run poll cycles in the foreground",
	Long: `Runs poll cycles without the daemon's file logging.

  repowatch poll --once              one cycle over every active subscription
  repowatch poll --repo octo/hello   check a single subscription once

Without --once the command keeps polling at the configured interval until
interrupted.`,
	RunE: runPoll,
}

func init() {
	pollCmd.Flags().BoolVar(&pollOnce, "once", false, "run a single cycle and exit")
	pollCmd.Flags().StringVar(&pollRepo, "repo", "", "check only this subscription (implies --once)")
}

func runPoll(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if pollRepo != "" {
		t, err := findSubscription(ctx, a.subs, pollRepo)
		if err != nil {
			return err
		}
		start := time.Now()
		if err := a.orch.CheckTarget(ctx, t); err != nil {
			return fmt.Errorf("%s: %w", t.RepoID(), err)
		}
		fmt.Println(successStyle.Render(fmt.Sprintf("%s checked in %s", t.RepoID(), time.Since(start).Round(time.Millisecond))))
		return nil
	}

	if pollOnce {
		rep := a.orch.RunCycle(ctx)
		printReport(rep)
		if rep.Err != nil {
			return rep.Err
		}
		return nil
	}

	sched := watcher.NewScheduler(a.orch, a.cfg.Poll.Interval())
	if err := sched.Start(ctx, true); err != nil {
		return err
	}
	fmt.Printf("Polling every %s. Press Ctrl+C to stop.\n", a.cfg.Poll.Interval())
	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := sched.Stop(stopCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// findSubscription resolves "owner/name" or "gitlab:group/name".
func findSubscription(ctx context.Context, subs *subscription.Store, ref string) (t models.WatchTarget, err error) {
	n, err := subscription.Normalize(models.WatchTarget{Repo: ref})
	if err != nil {
		return t, err
	}
	return subs.Find(ctx, n.Provider, n.Repo)
}

func printReport(rep watcher.CycleReport) {
	fmt.Printf("Cycle %s\n", rep.ID)
	fmt.Printf("  Targets     : %d\n", rep.Targets)
	fmt.Printf("  New entries : %d\n", rep.NewEntries)
	fmt.Printf("  Batches     : %d (%d delivered)\n", rep.Batches, rep.Delivered)
	fmt.Printf("  Duration    : %s\n", rep.Duration.Round(time.Millisecond))
	if rep.Err != nil {
		fmt.Fprintln(os.Stderr, warnStyle.Render("  cycle failed: "+rep.Err.Error()))
	}
	for _, f := range rep.Failures {
		fmt.Println(warnStyle.Render(fmt.Sprintf("  %s: %v", f.Repo, f.Err)))
	}
}
