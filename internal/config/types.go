package config

// Config is the root configuration structure for repowatch.
// Serialised to ~/.repowatch/config.json.
type Config struct {
	Database DatabaseConfig `mapstructure:"database" json:"database"`
	GitHub   GitHubConfig   `mapstructure:"github"   json:"github"`
	GitLab   GitLabConfig   `mapstructure:"gitlab"   json:"gitlab"`
	Poll     PollConfig     `mapstructure:"poll"     json:"poll"`
	Cursor   CursorConfig   `mapstructure:"cursor"   json:"cursor"`
	Render   RenderConfig   `mapstructure:"render"   json:"render"`
	Notify   NotifyConfig   `mapstructure:"notify"   json:"notify"`
}

// DatabaseConfig controls the storage backend.
type DatabaseConfig struct {
	// Driver is "sqlite" (default) or "mysql".
	Driver string `mapstructure:"driver" json:"driver"`
	// Path is the SQLite file path (expanded at runtime).
	Path string `mapstructure:"path"   json:"path"`
	// DSN is the MySQL data source name (used when Driver == "mysql").
	DSN string `mapstructure:"dsn"    json:"dsn"`
}

// GitHubConfig holds credentials for GitHub or GitHub Enterprise.
type GitHubConfig struct {
	// Tokens are rotated round-robin across requests to spread the rate limit.
	Tokens []string `mapstructure:"tokens" json:"tokens"`
	// Host allows enterprise GitHub (e.g. github.mycompany.com).
	Host string `mapstructure:"host"   json:"host"`
}

// GitLabConfig holds credentials for a single GitLab instance.
type GitLabConfig struct {
	Token string `mapstructure:"token" json:"token"`
	Host  string `mapstructure:"host"  json:"host"`
}

// PollConfig controls the polling cadence and the diff policy.
type PollConfig struct {
	// IntervalSeconds between cycles. Values below MinIntervalSeconds are raised.
	IntervalSeconds int `mapstructure:"interval_seconds" json:"interval_seconds"`
	// GapCap bounds how many entries are emitted when the cursor fell out of the window.
	GapCap int `mapstructure:"gap_cap" json:"gap_cap"`
	// Workers is the number of targets processed concurrently within one cycle.
	Workers int `mapstructure:"workers" json:"workers"`
	// EnrichConcurrency bounds parallel commit detail fetches inside one batch.
	EnrichConcurrency int `mapstructure:"enrich_concurrency" json:"enrich_concurrency"`
	// RequestTimeoutSeconds applies to every remote call.
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds" json:"request_timeout_seconds"`
	// FeedSize is the page size requested from the activity feed.
	FeedSize int `mapstructure:"feed_size" json:"feed_size"`
	// RunSize is the page size requested from the CI runs feed.
	RunSize int `mapstructure:"run_size" json:"run_size"`
}

// CursorConfig selects where last-seen markers are persisted.
type CursorConfig struct {
	// Backend is "database" (default), "file" or "memory".
	Backend string `mapstructure:"backend" json:"backend"`
	// Path is the JSON file used by the file backend.
	Path string `mapstructure:"path" json:"path"`
}

// RenderConfig controls artifact rendering.
type RenderConfig struct {
	// Templates maps a content kind (commits, issues, pulls, comments, actions)
	// to a text/template file that replaces the built-in layout.
	Templates map[string]string `mapstructure:"templates" json:"templates"`
	// Timezone is an IANA zone name used for timestamps in artifacts.
	Timezone string `mapstructure:"timezone" json:"timezone"`
}

// NotifyConfig holds the delivery channel settings.
type NotifyConfig struct {
	Slack    SlackNotifyConfig    `mapstructure:"slack"    json:"slack"`
	Telegram TelegramNotifyConfig `mapstructure:"telegram" json:"telegram"`
	Email    EmailNotifyConfig    `mapstructure:"email"    json:"email"`
	Webhook  WebhookNotifyConfig  `mapstructure:"webhook"  json:"webhook"`
}

// SlackNotifyConfig is an incoming webhook.
type SlackNotifyConfig struct {
	WebhookURL string `mapstructure:"webhook_url" json:"webhook_url"`
}

// TelegramNotifyConfig is a bot plus a default chat. Destinations may name
// another chat with "telegram:<chat id>".
type TelegramNotifyConfig struct {
	BotToken string `mapstructure:"bot_token" json:"bot_token"`
	ChatID   string `mapstructure:"chat_id"   json:"chat_id"`
	// APIBase overrides https://api.telegram.org (used by tests and proxies).
	APIBase string `mapstructure:"api_base" json:"api_base"`
}

// EmailNotifyConfig is an SMTP relay.
type EmailNotifyConfig struct {
	SMTPHost string `mapstructure:"smtp_host" json:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port" json:"smtp_port"`
	Username string `mapstructure:"username"  json:"username"`
	Password string `mapstructure:"password"  json:"password"`
	From     string `mapstructure:"from"      json:"from"`
	To       string `mapstructure:"to"        json:"to"`
	UseTLS   bool   `mapstructure:"use_tls"   json:"use_tls"`
}

// WebhookNotifyConfig is a generic HTTP endpoint with optional HMAC signing.
type WebhookNotifyConfig struct {
	URL    string `mapstructure:"url"    json:"url"`
	Secret string `mapstructure:"secret" json:"secret"`
}
