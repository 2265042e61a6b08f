package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/CosmoTheDev/repowatch/internal/config"
)

// Slack attachment text is capped well below the API limit.
const slackMaxText = 3000

// SlackChannel sends notifications to a Slack incoming webhook URL. A
// destination of "slack:<url>" posts to another webhook.
type SlackChannel struct {
	cfg    config.SlackNotifyConfig
	client *http.Client
}

// NewSlack creates a SlackChannel from cfg.
func NewSlack(cfg config.SlackNotifyConfig) *SlackChannel {
	return &SlackChannel{cfg: cfg, client: &http.Client{Timeout: 5 * time.Second}}
}

func (s *SlackChannel) Name() string        { return "slack" }
func (s *SlackChannel) IsConfigured() bool { return s.cfg.WebhookURL != "" }

func (s *SlackChannel) Send(ctx context.Context, target string, msg Message) error {
	url := s.cfg.WebhookURL
	if target != "" {
		url = target
	}

	body := msg.Markdown
	if body == "" {
		body = msg.Text
	}
	if len(body) > slackMaxText {
		body = body[:slackMaxText-3] + "..."
	}
	payload := map[string]any{
		"text": msg.Title,
		"attachments": []map[string]any{{
			"color":     kindColor(string(msg.Kind)),
			"text":      body,
			"footer":    "repowatch · " + msg.Repo,
			"mrkdwn_in": []string{"text"},
			"ts":        time.Now().Unix(),
		}},
	}
	if msg.Title == "" {
		payload["text"] = body
		delete(payload, "attachments")
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req) // #nosec G107 -- URL is a user-configured Slack incoming webhook URL
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook returned %d", resp.StatusCode)
	}
	return nil
}

func kindColor(kind string) string {
	switch kind {
	case "commits":
		return "#2EA043"
	case "issues":
		return "#D29922"
	case "pulls":
		return "#8957E5"
	case "comments":
		return "#0099FF"
	case "actions":
		return "#FF6600"
	default:
		return "#888888"
	}
}
