package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openfold/brokergate/internal/api"
	"github.com/openfold/brokergate/internal/app"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway HTTP server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app.App, log *zap.Logger) error {
		log.Info("starting brokergate server",
			zap.String("host", a.Config.Server.Host),
			zap.Int("port", a.Config.Server.Port),
		)

		server := api.NewServer(api.Config{
			Host:        a.Config.Server.Host,
			Port:        a.Config.Server.Port,
			MetricsPath: a.Config.Metrics.Path,
			Metrics:     a.Metrics,
		}, a.Gateway, a.Registry, log)

		archiveCtx, stopArchive := context.WithCancel(context.Background())
		defer stopArchive()
		go a.RunArchive(archiveCtx)

		go func() {
			if err := server.Start(); err != nil {
				log.Error("server error", zap.Error(err))
			}
		}()

		// Wait for shutdown signal
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		log.Info("shutting down brokergate server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		stopArchive()
		a.FlushArchive(ctx)
		return server.Shutdown(ctx)
	})
}
