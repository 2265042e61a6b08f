package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/CosmoTheDev/repowatch/internal/config"
	"github.com/CosmoTheDev/repowatch/internal/cursor"
	"github.com/CosmoTheDev/repowatch/internal/database"
	"github.com/CosmoTheDev/repowatch/internal/notify"
	"github.com/CosmoTheDev/repowatch/internal/render"
	"github.com/CosmoTheDev/repowatch/internal/repository"
	"github.com/CosmoTheDev/repowatch/internal/subscription"
	"github.com/CosmoTheDev/repowatch/internal/watcher"
)

// historyKeep bounds the poll_cycles table.
const historyKeep = 500

// app is everything a polling command needs, built from one config.
type app struct {
	cfg      *config.Config
	db       database.DB
	cursors  cursor.Store
	subs     *subscription.Store
	fetchers repository.Set
	router   *notify.Router
	history  *watcher.History
	orch     *watcher.Orchestrator
}

// openApp loads the config and wires storage, fetchers, rendering and
// delivery into an orchestrator.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, db: db, subs: subscription.NewStore(db), history: watcher.NewHistory(db)}

	a.cursors, err = cursor.Open(ctx, cfg.Cursor, db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("opening cursor store: %w", err)
	}
	a.fetchers, err = repository.NewSet(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	renderer, err := render.New(cfg.Render)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.router = notify.NewRouter(cfg.Notify)
	if len(a.router.Configured()) == 0 {
		slog.Warn("no notification channel configured; batches will fail to deliver")
	}

	d := watcher.NewDispatcher(a.cursors, renderer, a.router)
	a.orch = watcher.NewOrchestrator(a.subs, a.fetchers, a.cursors, d, watcher.Options{
		GapCap:            cfg.Poll.GapCap,
		Workers:           cfg.Poll.Workers,
		EnrichConcurrency: cfg.Poll.EnrichConcurrency,
		RequestTimeout:    cfg.Poll.RequestTimeout(),
		FeedSize:          cfg.Poll.FeedSize,
		RunSize:           cfg.Poll.RunSize,
		OnCycle:           a.recordCycle,
	})
	return a, nil
}

func (a *app) recordCycle(rep watcher.CycleReport) {
	ctx := context.Background()
	if err := a.history.Record(ctx, rep); err != nil {
		slog.Warn("recording poll cycle failed", "cycle", rep.ID, "error", err)
		return
	}
	if err := a.history.Prune(ctx, historyKeep); err != nil {
		slog.Debug("pruning poll cycles failed", "error", err)
	}
}

// Close flushes the cursor store before closing the database it may use.
func (a *app) Close() error {
	var errs []error
	if a.cursors != nil {
		errs = append(errs, a.cursors.Close())
	}
	errs = append(errs, a.db.Close())
	return errors.Join(errs...)
}
