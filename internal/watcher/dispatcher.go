package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/CosmoTheDev/repowatch/internal/cursor"
	"github.com/CosmoTheDev/repowatch/models"
)

// Renderer turns a batch into an artifact. A nil artifact or an error means
// the batch goes out as the plain-text Fallback instead.
type Renderer interface {
	Render(b models.Batch) (*models.Artifact, error)
	Fallback(b models.Batch) string
}

// Deliverer sends to one destination ID such as "slack" or "telegram:<chat>".
type Deliverer interface {
	Deliver(ctx context.Context, destination string, a *models.Artifact) error
	DeliverText(ctx context.Context, destination, text string) error
}

// Dispatcher advances cursors and delivers batches.
type Dispatcher struct {
	cursors  cursor.Store
	renderer Renderer
	sender   Deliverer
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cursors cursor.Store, r Renderer, d Deliverer) *Dispatcher {
	return &Dispatcher{cursors: cursors, renderer: r, sender: d}
}

// Advance moves key from prev to next. It refuses to move a cursor backwards
// and reports a failed write as a StoreError; in both cases the stored cursor
// is unchanged.
func (d *Dispatcher) Advance(ctx context.Context, key, prev string, hadCursor bool, next string) error {
	if next == "" {
		return nil
	}
	if hadCursor && !Newer(next, prev) {
		return &StoreError{Op: "write", Key: key, Err: fmt.Errorf("%w: %s -> %s", cursor.ErrNotNewer, prev, next)}
	}
	if err := d.cursors.Set(ctx, key, next); err != nil {
		return &StoreError{Op: "write", Key: key, Err: err}
	}
	slog.Debug("cursor advanced", "key", key, "from", prev, "to", next)
	return nil
}

// DispatchResult counts what one Dispatch call did.
type DispatchResult struct {
	Batches   int
	Delivered int
	Errors    []error
}

// Dispatch renders each non-empty batch once and delivers it to every
// destination. Render failures fall back to text; delivery failures are
// isolated per destination.
func (d *Dispatcher) Dispatch(ctx context.Context, destinations []string, batches []models.Batch) DispatchResult {
	var res DispatchResult
	for _, b := range batches {
		if b.Len() == 0 {
			continue
		}
		res.Batches++

		art, err := d.render(b)
		if err != nil {
			slog.Warn("render failed, sending text fallback", "repo", b.Repo, "kind", b.Kind, "error", err)
		}
		text := ""
		if art == nil {
			text = d.renderer.Fallback(b)
		}

		for _, dest := range destinations {
			var derr error
			if art != nil {
				derr = d.sender.Deliver(ctx, dest, art)
			} else {
				derr = d.sender.DeliverText(ctx, dest, text)
			}
			if derr != nil {
				e := &DeliveryError{Destination: dest, Err: derr}
				slog.Warn("delivery failed", "repo", b.Repo, "kind", b.Kind, "destination", dest, "error", derr)
				res.Errors = append(res.Errors, e)
				continue
			}
			res.Delivered++
		}
		slog.Info("batch dispatched", "repo", b.Repo, "kind", b.Kind, "records", b.Len(), "destinations", len(destinations))
	}
	return res
}

// render never panics; a renderer panic is treated as a render failure.
func (d *Dispatcher) render(b models.Batch) (art *models.Artifact, err error) {
	defer func() {
		if r := recover(); r != nil {
			art, err = nil, &RenderError{Kind: string(b.Kind), Repo: b.Repo, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	art, err = d.renderer.Render(b)
	if err != nil {
		var re *RenderError
		if !errors.As(err, &re) {
			err = &RenderError{Kind: string(b.Kind), Repo: b.Repo, Err: err}
		}
		return nil, err
	}
	return art, nil
}
