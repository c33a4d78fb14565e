package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/Boomnana/test-agent/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "test-agent",
	Short: "Automated test report analysis",
	Long:  "Parses test case spreadsheets, tags and audits each case, extracts defect facts from failures and groups them into root-cause clusters.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		applyOverrides(cmd.Flags(), c)
		if err := requireStore(cmd, c); err != nil {
			return err
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		zap.L().Debug("config loaded",
			zap.String("command", cmd.CommandPath()),
			zap.String("store_driver", cfg.Store.Driver),
			zap.String("classifier", cfg.Classifier.Provider),
		)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("log-level", "", "log level: debug, info, warn or error (default from config)")
	pf.String("log-format", "", "log format: json or console (default from config)")
	pf.String("store-driver", "", "job store: sqlite, postgres or none (default from config)")
	pf.String("database-url", "", "job store location (default from config)")
}

// applyOverrides copies explicitly set persistent flags over the loaded
// config. Flags left at their zero value keep the file/env setting.
func applyOverrides(flags *pflag.FlagSet, c *config.Config) {
	set := func(name string, dst *string) {
		if !flags.Changed(name) {
			return
		}
		if v, err := flags.GetString(name); err == nil {
			*dst = v
		}
	}
	set("log-level", &c.Log.Level)
	set("log-format", &c.Log.Format)
	set("store-driver", &c.Store.Driver)
	set("database-url", &c.Store.DatabaseURL)
}

// requireStore rejects the jobs subcommands when persistence is disabled;
// they read history only from the store.
func requireStore(cmd *cobra.Command, c *config.Config) error {
	for p := cmd; p != nil; p = p.Parent() {
		if p == jobsCmd {
			if c.Store.Driver == "none" || c.Store.Driver == "" {
				return fmt.Errorf("%s needs a job store; set store.driver or --store-driver", cmd.CommandPath())
			}
			return nil
		}
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
