package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/CosmoTheDev/repowatch/internal/config"
	"github.com/CosmoTheDev/repowatch/internal/database"
	"github.com/CosmoTheDev/repowatch/internal/repository"
	"github.com/CosmoTheDev/repowatch/internal/subscription"
	"github.com/CosmoTheDev/repowatch/models"
	"github.com/spf13/cobra"
)

var (
	subKinds    []string
	subDests    []string
	subBranch   string
	subDisabled bool
)

var subCmd = &cobra.Command{
	Use:     "sub",
	Aliases: []string{"subscription"},
	Short:   "Manage repository subscriptions",
	Long: `Add, remove, and list the repositories repowatch polls.

A subscription names a repository, the content kinds to report (commits,
issues, pulls, actions) and the destinations that receive the digests.
Comments are reported whenever issues or pulls are enabled.

Destinations are "channel[:target]":
  slack                   configured incoming webhook
  telegram:-100123456     another chat than the configured one
  email:ops@example.com   other recipients
  webhook:https://...     another endpoint`,
}

var subAddCmd = &cobra.Command{
	Use:   "add <owner/repo | gitlab:group/repo>",
	Short: "Subscribe to a repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		cfg, db, subs, err := openSubscriptions(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		provider, err := repository.DetectProvider(args[0])
		if err != nil {
			return err
		}
		t := models.WatchTarget{
			Provider:     provider,
			Repo:         args[0],
			Branch:       subBranch,
			Destinations: subDests,
			Enabled:      !subDisabled,
		}
		for _, k := range subKinds {
			t.Kinds = append(t.Kinds, models.ContentKind(k))
		}
		t, err = subscription.Normalize(t)
		if err != nil {
			return err
		}
		if t.Branch == "" && t.Wants(models.KindCommits) {
			t.Branch = lookupDefaultBranch(ctx, cfg, t)
		}

		t, err = subs.Add(ctx, t)
		if err != nil {
			return err
		}
		fmt.Println(successStyle.Render(fmt.Sprintf("Subscribed #%d %s (%s)", t.ID, t.RepoID(), kindList(t.Kinds))))
		if len(t.Destinations) == 0 {
			fmt.Println(warnStyle.Render("  No destinations yet; the subscription is skipped until one is added."))
		}
		return nil
	},
}

var subUpdateCmd = &cobra.Command{
	Use:   "update <id | repo>",
	Short: "Change the kinds, destinations or branch of a subscription",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		_, db, subs, err := openSubscriptions(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		t, err := resolveSubscription(ctx, subs, args[0])
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("kinds") {
			t.Kinds = nil
			for _, k := range subKinds {
				t.Kinds = append(t.Kinds, models.ContentKind(k))
			}
		}
		if cmd.Flags().Changed("dest") {
			t.Destinations = subDests
		}
		if cmd.Flags().Changed("branch") {
			t.Branch = subBranch
		}
		if _, err := subs.Update(ctx, t); err != nil {
			return err
		}
		fmt.Printf("Updated #%d %s\n", t.ID, t.RepoID())
		return nil
	},
}

var subRemoveCmd = &cobra.Command{
	Use:   "remove <id | repo>",
	Short: "Remove a subscription",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		_, db, subs, err := openSubscriptions(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		t, err := resolveSubscription(ctx, subs, args[0])
		if err != nil {
			return err
		}
		if err := subs.Remove(ctx, t.ID); err != nil {
			return err
		}
		fmt.Printf("Removed %s\n", t.RepoID())
		return nil
	},
}

var subListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all subscriptions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		_, db, subs, err := openSubscriptions(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		all, err := subs.List(ctx)
		if err != nil {
			return err
		}
		if len(all) == 0 {
			fmt.Println("No subscriptions. Add one with: repowatch sub add <owner/repo> --dest slack")
			return nil
		}
		fmt.Println(subscriptionTable(all))
		return nil
	},
}

func toggleCmd(use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id | repo>",
		Short: strings.ToUpper(use[:1]) + use[1:] + " a subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			_, db, subs, err := openSubscriptions(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			t, err := resolveSubscription(ctx, subs, args[0])
			if err != nil {
				return err
			}
			if err := subs.Toggle(ctx, t.ID, enabled); err != nil {
				return err
			}
			fmt.Printf("%s %sd\n", t.RepoID(), use)
			return nil
		},
	}
}

var subImportCmd = &cobra.Command{
	Use:   "import <file.yaml | ->",
	Short: "Add or replace subscriptions from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		_, db, subs, err := openSubscriptions(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		var r io.Reader = os.Stdin
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}
		res, err := subs.Import(ctx, r)
		if err != nil {
			return err
		}
		fmt.Printf("Imported: %d added, %d updated\n", res.Added, res.Updated)
		return nil
	},
}

var subExportCmd = &cobra.Command{
	Use:   "export [file.yaml]",
	Short: "Write all subscriptions as YAML (stdout by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		_, db, subs, err := openSubscriptions(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		if len(args) == 0 {
			return subs.Export(ctx, os.Stdout)
		}
		f, err := os.OpenFile(args[0], os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return err
		}
		if err := subs.Export(ctx, f); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	},
}

func init() {
	for _, c := range []*cobra.Command{subAddCmd, subUpdateCmd} {
		c.Flags().StringSliceVarP(&subKinds, "kinds", "k", nil,
			"content kinds: commits, issues, pulls, actions (default commits,issues,pulls)")
		c.Flags().StringSliceVarP(&subDests, "dest", "d", nil,
			"destination, repeatable (slack, telegram[:chat], email[:addr], webhook[:url])")
		c.Flags().StringVarP(&subBranch, "branch", "b", "",
			"branch whose pushes are reported (default: the repository's default branch)")
	}
	subAddCmd.Flags().BoolVar(&subDisabled, "disabled", false, "add the subscription disabled")

	subCmd.AddCommand(subAddCmd, subUpdateCmd, subRemoveCmd, subListCmd,
		toggleCmd("enable", true), toggleCmd("disable", false),
		subImportCmd, subExportCmd)
}

func openSubscriptions(ctx context.Context) (*config.Config, database.DB, *subscription.Store, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading config: %w", err)
	}
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, db, subscription.NewStore(db), nil
}

// resolveSubscription accepts a numeric ID or a repository reference.
func resolveSubscription(ctx context.Context, subs *subscription.Store, ref string) (models.WatchTarget, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return subs.Get(ctx, id)
	}
	return findSubscription(ctx, subs, ref)
}

// lookupDefaultBranch asks the provider; on failure "main" is assumed.
func lookupDefaultBranch(ctx context.Context, cfg *config.Config, t models.WatchTarget) string {
	f, err := repository.New(t.Provider, cfg)
	if err != nil {
		return "main"
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Poll.RequestTimeout())
	defer cancel()
	branch, err := f.DefaultBranch(ctx, t.Repo)
	if err != nil || branch == "" {
		fmt.Println(dimStyle.Render(fmt.Sprintf("  Could not look up the default branch (%v); using main.", err)))
		return "main"
	}
	return branch
}

func kindList(kinds []models.ContentKind) string {
	s := make([]string, len(kinds))
	for i, k := range kinds {
		s[i] = string(k)
	}
	return strings.Join(s, ", ")
}

func subscriptionTable(all []models.WatchTarget) string {
	t := newTable("ID", "REPOSITORY", "BRANCH", "KINDS", "DESTINATIONS", "STATUS", "ADDED")
	for _, s := range all {
		status := successStyle.Render("enabled")
		switch {
		case !s.Enabled:
			status = dimStyle.Render("disabled")
		case len(s.Destinations) == 0:
			status = warnStyle.Render("no destination")
		}
		t.Row(
			strconv.FormatInt(s.ID, 10),
			s.RepoID(),
			orNone(s.Branch),
			kindList(s.Kinds),
			orNone(strings.Join(s.Destinations, ", ")),
			status,
			s.CreatedAt.Local().Format(time.DateOnly),
		)
	}
	return t.String()
}
