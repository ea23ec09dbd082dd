package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"offer-filter/internal"
	"offer-filter/internal/config"
)

var (
	cfg *config.Config

	flagStartURL     string
	flagSettingsFile string
	flagLogLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "offerfilter",
	Short: "Hide Allegro listings that do not meet a rating threshold.",
	Long: `offerfilter drives a Chrome tab on Allegro search results and hides every
listing whose rating or number of reviews is not above your thresholds.
It can also skip sponsored listings and page forward until something qualifies.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if flagStartURL != "" {
			cfg.StartURL = flagStartURL
		}
		if flagSettingsFile != "" {
			cfg.SettingsFile = flagSettingsFile
		}
		if flagLogLevel != "" {
			cfg.LogLevel = flagLogLevel
		}
		return internal.SetLogLevel(cfg.LogLevel)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagSettingsFile, "settings", "", "settings file (default is $XDG_CONFIG_HOME/offer-filter/settings.yaml)")
	rootCmd.PersistentFlags().StringVarP(&flagLogLevel, "loglevel", "l", "", "Set log level. Available: debug, info, warn, error")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		internal.Log.Error(err)
		os.Exit(1)
	}
}
