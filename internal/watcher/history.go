package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/CosmoTheDev/repowatch/internal/database"
	"github.com/CosmoTheDev/repowatch/models"
)

// History persists cycle reports to the poll_cycles table.
type History struct {
	db database.DB
}

// NewHistory creates a History over db.
func NewHistory(db database.DB) *History { return &History{db: db} }

// Record stores one report.
func (h *History) Record(ctx context.Context, rep CycleReport) error {
	errs := make([]string, 0, len(rep.Failures)+1)
	if rep.Err != nil {
		errs = append(errs, rep.Err.Error())
	}
	for _, f := range rep.Failures {
		errs = append(errs, f.Repo+": "+f.Err.Error())
	}
	data, err := json.Marshal(errs)
	if err != nil {
		return err
	}
	row := models.PollCycle{
		CycleID:    rep.ID,
		StartedAt:  rep.StartedAt.Format(time.RFC3339Nano),
		DurationMS: rep.Duration.Milliseconds(),
		Targets:    rep.Targets,
		Failed:     len(rep.Failures),
		NewEntries: rep.NewEntries,
		Batches:    rep.Batches,
		Errors:     string(data),
	}
	if _, err := h.db.Insert(ctx, "poll_cycles", row); err != nil {
		return fmt.Errorf("recording poll cycle: %w", err)
	}
	return nil
}

// Recent returns the latest n cycles, newest first.
func (h *History) Recent(ctx context.Context, n int) ([]models.PollCycle, error) {
	var rows []models.PollCycle
	err := h.db.Select(ctx, &rows,
		`SELECT id, cycle_id, started_at, duration_ms, targets, failed, new_entries, batches, errors
		 FROM poll_cycles ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("listing poll cycles: %w", err)
	}
	return rows, nil
}

// Prune keeps the newest keep rows.
func (h *History) Prune(ctx context.Context, keep int) error {
	return h.db.Exec(ctx,
		`DELETE FROM poll_cycles WHERE id NOT IN (SELECT id FROM (SELECT id FROM poll_cycles ORDER BY id DESC LIMIT ?) AS recent)`, keep)
}
