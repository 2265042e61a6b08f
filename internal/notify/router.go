package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/CosmoTheDev/repowatch/internal/config"
	"github.com/CosmoTheDev/repowatch/models"
)

// Router resolves destination IDs of the form "channel[:target]" to a
// configured channel and sends through it.
type Router struct {
	channels map[string]Channel
}

// NewRouter creates a Router from the given config.
// Only channels with IsConfigured() == true are active.
func NewRouter(cfg config.NotifyConfig) *Router {
	return NewRouterWith(
		NewSlack(cfg.Slack),
		NewTelegram(cfg.Telegram),
		NewEmail(cfg.Email),
		NewWebhook(cfg.Webhook),
	)
}

// NewRouterWith registers the configured subset of channels.
func NewRouterWith(channels ...Channel) *Router {
	r := &Router{channels: map[string]Channel{}}
	for _, ch := range channels {
		if ch.IsConfigured() {
			r.channels[ch.Name()] = ch
		}
	}
	return r
}

// Configured returns the names of the active channels, sorted.
func (r *Router) Configured() []string {
	names := make([]string, 0, len(r.channels))
	for n := range r.channels {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ParseDestination splits a destination ID into channel name and target.
func ParseDestination(dest string) (channel, target string) {
	channel, target, _ = strings.Cut(strings.TrimSpace(dest), ":")
	return strings.ToLower(channel), target
}

// Validate reports whether dest names a known channel. It does not require
// the channel to be configured.
func Validate(dest string) error {
	switch ch, _ := ParseDestination(dest); ch {
	case "slack", "telegram", "email", "webhook":
		return nil
	case "":
		return fmt.Errorf("empty destination")
	default:
		return fmt.Errorf("unknown channel %q in destination %q", ch, dest)
	}
}

func (r *Router) resolve(dest string) (Channel, string, error) {
	name, target := ParseDestination(dest)
	ch, ok := r.channels[name]
	if !ok {
		return nil, "", fmt.Errorf("channel %q is not configured", name)
	}
	return ch, target, nil
}

// Deliver sends a rendered artifact to dest.
func (r *Router) Deliver(ctx context.Context, dest string, a *models.Artifact) error {
	ch, target, err := r.resolve(dest)
	if err != nil {
		return err
	}
	return ch.Send(ctx, target, FromArtifact(a))
}

// DeliverText sends a plain-text fallback to dest.
func (r *Router) DeliverText(ctx context.Context, dest, text string) error {
	ch, target, err := r.resolve(dest)
	if err != nil {
		return err
	}
	return ch.Send(ctx, target, Message{Text: text})
}
