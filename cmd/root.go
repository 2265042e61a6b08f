package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "repowatch",
	Short: "Watch remote repositories and deliver activity digests",
	Long: `repowatch polls the activity feeds of GitHub and GitLab repositories,
works out what happened since the last poll, and delivers one digest per
content kind (commits, issues, pull requests, comments, CI runs) to Slack,
Telegram, email or a webhook.

Get started:
  repowatch onboard           Interactive setup wizard
  repowatch sub add o/r       Subscribe to a repository
  repowatch doctor            Verify credentials and channels
  repowatch poll --once       Run a single poll cycle
  repowatch watch             Start the polling daemon`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ~/.repowatch/config.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable verbose/debug output")

	rootCmd.Version = Version
	rootCmd.AddCommand(
		onboardCmd,
		watchCmd,
		pollCmd,
		subCmd,
		statusCmd,
		configCmd,
		doctorCmd,
	)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	if verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
		slog.Debug("Verbose logging enabled")
	}
}
