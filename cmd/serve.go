package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Boomnana/test-agent/internal/api"
	"github.com/Boomnana/test-agent/internal/monitoring"
)

const drainTimeout = 30 * time.Second

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the analysis API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		cfg.Server.Port = port

		env, err := initEnv(ctx, cfg, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		go env.Jobs.RunJanitor(ctx)

		if cfg.Monitoring.Enabled {
			collector := monitoring.NewCollector(env.Store, env.Classifier)
			checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			go checker.Run(ctx)
		}

		srv := api.NewServer(api.Options{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			UploadDir:      cfg.Uploads.Dir,
			MaxUploadBytes: cfg.Uploads.MaxBytes,
			ReportsDir:     cfg.Reports.Dir,
			ReportsPath:    cfg.Reports.URLPrefix,
		}, env.Jobs, env.Pipeline)

		serveErr := srv.Start(ctx, port)

		// Stop accepting work, then give running jobs a bounded window to
		// observe cancellation before the store closes.
		if n := env.Jobs.CancelAll(); n > 0 {
			zap.L().Info("cancelling active jobs", zap.Int("count", n))
		}
		drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if err := env.Jobs.Wait(drainCtx); err != nil {
			zap.L().Warn("jobs still running at shutdown", zap.Error(err))
		}

		return serveErr
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
