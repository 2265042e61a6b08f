package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/CosmoTheDev/repowatch/internal/cursor"
	"github.com/CosmoTheDev/repowatch/internal/watcher"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

var (
	statusCycles int
	statusReset  string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stored cursors and recent poll cycles",
	Long: `Prints the last-seen marker of every repository feed and the most recent
poll cycles recorded by the daemon.

--reset <key> forgets one cursor so the next poll re-bootstraps that feed
without delivering anything.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVarP(&statusCycles, "cycles", "n", 10, "number of recent cycles to show")
	statusCmd.Flags().StringVar(&statusReset, "reset", "", "forget the cursor with this key (e.g. octo/hello:actions)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, db, _, err := openSubscriptions(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	cursors, err := cursor.Open(ctx, cfg.Cursor, db)
	if err != nil {
		return err
	}
	defer cursors.Close()

	if statusReset != "" {
		if err := cursors.Delete(ctx, statusReset); err != nil {
			return err
		}
		fmt.Println(successStyle.Render("Forgot cursor " + statusReset))
		return nil
	}

	entries, err := cursors.List(ctx)
	if err != nil {
		return err
	}
	fmt.Println(headerStyle.Render(fmt.Sprintf("Cursors (%s backend)", orNone(cfg.Cursor.Backend))))
	if len(entries) == 0 {
		fmt.Println(dimStyle.Render("  none yet; the first poll of each feed records one"))
	} else {
		t := newTable("KEY", "MARKER", "UPDATED")
		for _, e := range entries {
			t.Row(e.Key, e.Marker, ago(e.UpdatedAt))
		}
		fmt.Println(t.String())
	}

	cycles, err := watcher.NewHistory(db).Recent(ctx, statusCycles)
	if err != nil {
		return err
	}
	fmt.Println()
	fmt.Println(headerStyle.Render("Recent cycles"))
	if len(cycles) == 0 {
		fmt.Println(dimStyle.Render("  no cycles recorded"))
		return nil
	}
	t := newTable("CYCLE", "STARTED", "TOOK", "TARGETS", "NEW", "BATCHES", "ERRORS")
	for _, c := range cycles {
		started, _ := time.Parse(time.RFC3339Nano, c.StartedAt)
		var errs []string
		_ = json.Unmarshal([]byte(c.Errors), &errs)
		errCol := dimStyle.Render("-")
		if len(errs) > 0 {
			errCol = warnStyle.Render(truncateCell(strings.Join(errs, "; "), 60))
		}
		t.Row(
			shortID(c.CycleID),
			ago(started),
			(time.Duration(c.DurationMS) * time.Millisecond).String(),
			strconv.Itoa(c.Targets),
			strconv.Itoa(c.NewEntries),
			strconv.Itoa(c.Batches),
			errCol,
		)
	}
	fmt.Println(t.String())
	return nil
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerCellStyle
			}
			return cellStyle
		})
}

func ago(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Local().Format(time.DateTime)
	}
}

func shortID(id string) string {
	if len(id) > 13 {
		return id[:13]
	}
	return id
}

func truncateCell(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}
