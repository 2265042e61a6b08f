package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/CosmoTheDev/repowatch/internal/config"
)

// TelegramChannel sends notifications via the Telegram Bot API. A destination
// of "telegram:<chat id>" overrides the configured chat.
type TelegramChannel struct {
	cfg    config.TelegramNotifyConfig
	client *http.Client
}

// NewTelegram creates a TelegramChannel from cfg.
func NewTelegram(cfg config.TelegramNotifyConfig) *TelegramChannel {
	return &TelegramChannel{cfg: cfg, client: &http.Client{Timeout: 5 * time.Second}}
}

func (t *TelegramChannel) Name() string        { return "telegram" }
func (t *TelegramChannel) IsConfigured() bool { return t.cfg.BotToken != "" }

func (t *TelegramChannel) Send(ctx context.Context, target string, msg Message) error {
	chat := t.cfg.ChatID
	if target != "" {
		chat = target
	}
	if chat == "" {
		return fmt.Errorf("telegram: no chat id")
	}

	// Plain text only: the Bot API's Markdown dialects need escaping the
	// renderer does not do.
	text := msg.Text
	if text == "" {
		text = msg.Title
	}
	// Telegram max message length is 4096 chars.
	if r := []rune(text); len(r) > 4096 {
		text = string(r[:4093]) + "..."
	}
	payload := map[string]any{
		"chat_id":                  chat,
		"text":                     text,
		"disable_web_page_preview": true,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	base := strings.TrimRight(t.cfg.APIBase, "/")
	if base == "" {
		base = "https://api.telegram.org"
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", base, t.cfg.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.client.Do(req) // #nosec G107 -- URL is constructed from the Telegram API base + user-configured bot token
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("telegram API returned %d", resp.StatusCode)
	}
	return nil
}
