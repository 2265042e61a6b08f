// Package notify delivers rendered artifacts to Slack, Telegram, email and
// generic webhooks.
package notify

import (
	"context"

	"github.com/CosmoTheDev/repowatch/models"
)

// Message is what a channel sends. Text-only messages have an empty
// Markdown and HTML body.
type Message struct {
	Kind     models.ContentKind
	Repo     string
	Title    string
	Markdown string
	HTML     string
	Text     string
}

// FromArtifact builds a Message from a rendered artifact.
func FromArtifact(a *models.Artifact) Message {
	return Message{
		Kind:     a.Kind,
		Repo:     a.Repo,
		Title:    a.Title,
		Markdown: a.Markdown,
		HTML:     a.HTML,
		Text:     a.Text,
	}
}

// Channel is implemented by each notification provider. target is the part
// of a destination ID after the colon and may be empty.
type Channel interface {
	Name() string
	IsConfigured() bool
	Send(ctx context.Context, target string, msg Message) error
}
