package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/CosmoTheDev/repowatch/internal/config"
	"github.com/CosmoTheDev/repowatch/internal/database"
	"github.com/CosmoTheDev/repowatch/internal/subscription"
	"github.com/CosmoTheDev/repowatch/models"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Interactive setup wizard for repowatch",
	Long: `Walks you through configuring repowatch:
  - GitHub credentials (several tokens spread the rate limit)
  - GitLab credentials (optional)
  - Poll interval
  - A first notification channel
  - A first subscription`,
	RunE: runOnboard,
}

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#7C3AED")).
	MarginBottom(1)

var successStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#10B981"))

var warnStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#F59E0B"))

var dimStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#6B7280"))

var headerCellStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#7C3AED")).
	Padding(0, 1)

var cellStyle = lipgloss.NewStyle().Padding(0, 1)

func runOnboard(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	fmt.Println()
	fmt.Println(headerStyle.Render("  repowatch — repository activity digests"))
	fmt.Println(dimStyle.Render("  Polls GitHub and GitLab feeds and delivers what changed.\n"))

	// Load existing config or start fresh.
	cfg, err := config.Load(cfgFile)
	if err != nil {
		cfg = &config.Config{}
	}
	if err := config.EnsureDir(); err != nil {
		return fmt.Errorf("creating repowatch directory: %w", err)
	}

	// --- Step 1: GitHub ---
	fmt.Println(headerStyle.Render("  Step 1/5 · GitHub Credentials"))

	githubTokens := strings.Join(cfg.GitHub.Tokens, ",")
	githubHost := "github.com"
	if cfg.GitHub.Host != "" {
		githubHost = cfg.GitHub.Host
	}
	ghForm := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("GitHub Personal Access Token(s)").
				Description("Read-only access is enough. Separate several tokens with commas; requests rotate across them.").
				Placeholder("ghp_...").
				EchoMode(huh.EchoModePassword).
				Value(&githubTokens),
			huh.NewInput().
				Title("GitHub host").
				Description("Use 'github.com' for public GitHub or your enterprise hostname").
				Value(&githubHost),
		),
	)
	if err := ghForm.Run(); err != nil {
		return err
	}
	cfg.GitHub.Tokens = nil
	for _, t := range strings.Split(githubTokens, ",") {
		if t = strings.TrimSpace(t); t != "" {
			cfg.GitHub.Tokens = append(cfg.GitHub.Tokens, t)
		}
	}
	cfg.GitHub.Host = githubHost

	// --- Step 2: GitLab ---
	fmt.Println(headerStyle.Render("\n  Step 2/5 · GitLab (optional)"))

	addGitLab := cfg.GitLab.Token != ""
	if err := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title("Watch GitLab projects?").
			Value(&addGitLab),
	)).Run(); err != nil {
		return err
	}
	if addGitLab {
		glToken, glHost := cfg.GitLab.Token, cfg.GitLab.Host
		if glHost == "" {
			glHost = "gitlab.com"
		}
		glForm := huh.NewForm(huh.NewGroup(
			huh.NewInput().Title("GitLab token").Placeholder("glpat-...").EchoMode(huh.EchoModePassword).Value(&glToken),
			huh.NewInput().Title("GitLab host").Value(&glHost),
		))
		if err := glForm.Run(); err != nil {
			return err
		}
		cfg.GitLab = config.GitLabConfig{Token: glToken, Host: glHost}
	}

	// --- Step 3: Interval ---
	fmt.Println(headerStyle.Render("\n  Step 3/5 · Poll Interval"))

	interval := strconv.Itoa(int(cfg.Poll.Interval().Seconds()))
	if err := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Seconds between poll cycles").
			Description(fmt.Sprintf("Minimum %d. Each cycle costs one or two API requests per repository.", config.MinIntervalSeconds)).
			Validate(func(s string) error {
				n, err := strconv.Atoi(strings.TrimSpace(s))
				if err != nil || n < config.MinIntervalSeconds {
					return fmt.Errorf("enter a number of at least %d", config.MinIntervalSeconds)
				}
				return nil
			}).
			Value(&interval),
	)).Run(); err != nil {
		return err
	}
	cfg.Poll.IntervalSeconds, _ = strconv.Atoi(strings.TrimSpace(interval))

	// --- Step 4: Channel ---
	fmt.Println(headerStyle.Render("\n  Step 4/5 · Notification Channel"))

	channel := "slack"
	if err := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Where should digests go?").
			Options(
				huh.NewOption("Slack incoming webhook", "slack"),
				huh.NewOption("Telegram bot", "telegram"),
				huh.NewOption("Email (SMTP)", "email"),
				huh.NewOption("Generic webhook", "webhook"),
				huh.NewOption("Skip for now", ""),
			).
			Value(&channel),
	)).Run(); err != nil {
		return err
	}
	if err := onboardChannel(cfg, channel); err != nil {
		return err
	}

	cfgPath, _ := config.ConfigPath(cfgFile)
	if err := config.Save(cfg, cfgPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Println(successStyle.Render("  Config saved to " + cfgPath))

	// --- Step 5: First subscription ---
	fmt.Println(headerStyle.Render("\n  Step 5/5 · First Subscription (optional)"))

	var repo string
	kinds := []string{"commits", "issues", "pulls"}
	if err := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Repository to watch").
			Description("owner/name, or gitlab:group/name. Leave blank to skip.").
			Value(&repo),
		huh.NewMultiSelect[string]().
			Title("Report").
			Options(
				huh.NewOption("Commits on the default branch", "commits"),
				huh.NewOption("Issues", "issues"),
				huh.NewOption("Pull requests", "pulls"),
				huh.NewOption("CI runs", "actions"),
			).
			Value(&kinds),
	)).Run(); err != nil {
		return err
	}
	if strings.TrimSpace(repo) != "" {
		if err := onboardSubscription(ctx, cfg, repo, kinds, channel); err != nil {
			fmt.Println(warnStyle.Render("  Could not add the subscription: " + err.Error()))
		}
	}

	fmt.Println()
	fmt.Println(successStyle.Render("  Setup complete."))
	fmt.Println(dimStyle.Render("  Next: 'repowatch doctor' to verify, then 'repowatch watch' to start polling."))
	return nil
}

func onboardChannel(cfg *config.Config, channel string) error {
	var form *huh.Form
	n := &cfg.Notify
	switch channel {
	case "slack":
		form = huh.NewForm(huh.NewGroup(
			huh.NewInput().Title("Slack incoming webhook URL").Placeholder("https://hooks.slack.com/services/...").Value(&n.Slack.WebhookURL),
		))
	case "telegram":
		form = huh.NewForm(huh.NewGroup(
			huh.NewInput().Title("Bot token").EchoMode(huh.EchoModePassword).Value(&n.Telegram.BotToken),
			huh.NewInput().Title("Default chat ID").Placeholder("-100123456").Value(&n.Telegram.ChatID),
		))
	case "email":
		port := strconv.Itoa(n.Email.SMTPPort)
		if n.Email.SMTPPort == 0 {
			port = "587"
		}
		form = huh.NewForm(huh.NewGroup(
			huh.NewInput().Title("SMTP host").Value(&n.Email.SMTPHost),
			huh.NewInput().Title("SMTP port").Value(&port),
			huh.NewInput().Title("Username").Value(&n.Email.Username),
			huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).Value(&n.Email.Password),
			huh.NewInput().Title("From").Value(&n.Email.From),
			huh.NewInput().Title("To (comma-separated)").Value(&n.Email.To),
			huh.NewConfirm().Title("Implicit TLS (port 465)?").Value(&n.Email.UseTLS),
		))
		defer func() { n.Email.SMTPPort, _ = strconv.Atoi(port) }()
	case "webhook":
		form = huh.NewForm(huh.NewGroup(
			huh.NewInput().Title("Webhook URL").Value(&n.Webhook.URL),
			huh.NewInput().Title("Signing secret (optional)").EchoMode(huh.EchoModePassword).Value(&n.Webhook.Secret),
		))
	default:
		return nil
	}
	return form.Run()
}

func onboardSubscription(ctx context.Context, cfg *config.Config, repo string, kinds []string, channel string) error {
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	t := models.WatchTarget{Repo: repo, Enabled: true}
	if channel != "" {
		t.Destinations = []string{channel}
	}
	for _, k := range kinds {
		t.Kinds = append(t.Kinds, models.ContentKind(k))
	}
	t, err = subscription.Normalize(t)
	if err != nil {
		return err
	}
	if t.Wants(models.KindCommits) {
		t.Branch = lookupDefaultBranch(ctx, cfg, t)
	}
	t, err = subscription.NewStore(db).Add(ctx, t)
	if err != nil {
		return err
	}
	fmt.Println(successStyle.Render(fmt.Sprintf("  Subscribed to %s (%s)", t.RepoID(), kindList(t.Kinds))))
	return nil
}
