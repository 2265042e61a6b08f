package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/CosmoTheDev/repowatch/internal/config"
	"github.com/CosmoTheDev/repowatch/internal/database"
	"github.com/CosmoTheDev/repowatch/internal/notify"
	"github.com/CosmoTheDev/repowatch/internal/render"
	"github.com/CosmoTheDev/repowatch/internal/repository"
	"github.com/CosmoTheDev/repowatch/internal/subscription"
	"github.com/CosmoTheDev/repowatch/models"
	"github.com/spf13/cobra"
)

var doctorSendTest string

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Verify credentials, channels, and storage",
	Long: `Checks that the database can be reached, provider credentials work,
templates parse, and at least one notification channel is configured.

Use --send-test <destination> to deliver a sample digest, e.g.
  repowatch doctor --send-test telegram:-100123456`,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().StringVar(&doctorSendTest, "send-test", "",
		"deliver a sample digest to this destination")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	allOK := true

	fmt.Println("=== repowatch doctor ===")
	fmt.Println()

	// Check database
	fmt.Print("Database ................. ")
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		fmt.Printf("FAIL (%s)\n", err)
		allOK = false
	} else {
		if err := db.Ping(ctx); err != nil {
			fmt.Printf("FAIL (%s)\n", err)
			allOK = false
		} else {
			where := "dsn"
			if s, ok := db.(*database.SQLiteDB); ok {
				where = s.Path()
			}
			fmt.Printf("OK (%s: %s)\n", db.Driver(), where)
		}
		defer db.Close()
	}

	fmt.Print("Subscriptions ............ ")
	var subs []models.WatchTarget
	if db != nil {
		subs, err = subscription.NewStore(db).List(ctx)
	}
	switch {
	case db == nil:
		fmt.Println("SKIP (no database)")
	case err != nil:
		fmt.Printf("FAIL (%s)\n", err)
		allOK = false
	case len(subs) == 0:
		fmt.Println("WARN (none — add one with 'repowatch sub add')")
	default:
		fmt.Printf("OK (%d)\n", len(subs))
	}

	// Provider credentials
	fmt.Print("GitHub ................... ")
	if len(cfg.GitHub.Tokens) == 0 {
		fmt.Print("WARN (no token — 60 requests/hour) ")
	}
	allOK = checkProvider(ctx, cfg, "github", "octocat/Hello-World", subs) && allOK

	fmt.Print("GitLab ................... ")
	if cfg.GitLab.Token == "" && !usesProvider(subs, "gitlab") {
		fmt.Println("not configured")
	} else {
		allOK = checkProvider(ctx, cfg, "gitlab", "gitlab-org/gitlab", subs) && allOK
	}

	fmt.Print("Templates ................ ")
	renderer, err := render.New(cfg.Render)
	if err != nil {
		fmt.Printf("FAIL (%s)\n", err)
		allOK = false
	} else {
		fmt.Printf("OK (%d custom, tz %s)\n", len(cfg.Render.Templates), orNone(cfg.Render.Timezone))
	}

	fmt.Println()
	fmt.Println("Channels:")
	router := notify.NewRouter(cfg.Notify)
	configured := map[string]bool{}
	for _, n := range router.Configured() {
		configured[n] = true
	}
	for _, name := range []string{"slack", "telegram", "email", "webhook"} {
		fmt.Printf("  %-14s ... ", name)
		if configured[name] {
			fmt.Println("OK")
		} else {
			fmt.Println(dimStyle.Render("not configured"))
		}
	}
	if len(configured) == 0 {
		allOK = false
	}
	for _, s := range subs {
		for _, d := range s.Destinations {
			if name, _ := notify.ParseDestination(d); !configured[name] {
				fmt.Println(warnStyle.Render(fmt.Sprintf("  %s sends to %s, which is not configured", s.RepoID(), d)))
				allOK = false
			}
		}
	}

	if doctorSendTest != "" && renderer != nil {
		fmt.Printf("\nTest delivery to %s ... ", doctorSendTest)
		art, err := renderer.Render(sampleBatch())
		if err == nil {
			err = router.Deliver(ctx, doctorSendTest, art)
		}
		if err != nil {
			fmt.Printf("FAIL (%s)\n", err)
			allOK = false
		} else {
			fmt.Println("OK")
		}
	}

	fmt.Println()
	if allOK {
		fmt.Println(successStyle.Render("All checks passed — repowatch is ready!"))
	} else {
		fmt.Println(warnStyle.Render("Some checks failed — run 'repowatch onboard' to fix."))
	}

	return nil
}

// checkProvider fetches a repository feed: the first subscribed repository of
// that provider, or a well-known public one.
func checkProvider(ctx context.Context, cfg *config.Config, provider, fallback string, subs []models.WatchTarget) bool {
	repo := fallback
	for _, s := range subs {
		if s.Provider == provider {
			repo = s.Repo
			break
		}
	}
	f, err := repository.New(provider, cfg)
	if err != nil {
		fmt.Printf("FAIL (%s)\n", err)
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Poll.RequestTimeout())
	defer cancel()
	entries, err := f.FetchFeed(ctx, repo, 1)
	if err != nil {
		fmt.Printf("FAIL (%s: %s)\n", repo, err)
		return false
	}
	fmt.Printf("OK (%s: %d event)\n", repo, len(entries))
	return true
}

func usesProvider(subs []models.WatchTarget, provider string) bool {
	for _, s := range subs {
		if s.Provider == provider {
			return true
		}
	}
	return false
}

func sampleBatch() models.Batch {
	now := time.Now()
	return models.Batch{
		Kind: models.KindIssues,
		Repo: "repowatch/doctor",
		Issues: []models.IssueRecord{{
			Number:    1,
			Title:     "Test delivery from repowatch doctor",
			State:     "open",
			Action:    "opened",
			Author:    "repowatch",
			CreatedAt: now,
			UpdatedAt: now,
			Body:      "If you can read this, the destination works.",
		}},
	}
}
