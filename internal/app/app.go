// Package app wires configuration into a running gateway: provider
// registry, router, cache, transport, sinks and metrics.
package app

import (
	"context"
	"fmt"

	"github.com/openfold/brokergate/internal/callcache"
	"github.com/openfold/brokergate/internal/calllog"
	"github.com/openfold/brokergate/internal/calllog/archive"
	"github.com/openfold/brokergate/internal/config"
	"github.com/openfold/brokergate/internal/gateway"
	"github.com/openfold/brokergate/internal/metrics"
	"github.com/openfold/brokergate/internal/provider"
	"github.com/openfold/brokergate/internal/provider/alpaca"
	"github.com/openfold/brokergate/internal/provider/demo"
	"github.com/openfold/brokergate/internal/provider/discord"
	"github.com/openfold/brokergate/internal/provider/fidelity"
	"github.com/openfold/brokergate/internal/provider/trading212"
	"github.com/openfold/brokergate/internal/provider/tradier"
	"github.com/openfold/brokergate/internal/router"
	"github.com/openfold/brokergate/internal/transport"
	"go.uber.org/zap"
)

// App holds the assembled gateway and its collaborators.
type App struct {
	Config   *config.Config
	Log      *zap.Logger
	Registry *provider.Registry
	Gateway  *gateway.Gateway
	Metrics  *metrics.Registry

	archiveSink    *calllog.ArchiveSink
	archiveStorage archive.Storage
}

// New assembles an App from configuration. Every known provider is
// registered; which ones are usable depends on configured credentials.
func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	registry := provider.NewRegistry()
	clients := []provider.Client{
		alpaca.New(),
		tradier.New(),
		fidelity.New(),
		trading212.New(),
		discord.New(),
		demo.New(),
	}
	for _, c := range clients {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("registering %s: %w", c.Name(), err)
		}
	}

	app := &App{
		Config:   cfg,
		Log:      log,
		Registry: registry,
	}

	sinks := calllog.MultiSink{calllog.NewZapSink(log)}
	if cfg.Archive.Enabled {
		storage, err := buildArchive(cfg.Archive)
		if err != nil {
			return nil, fmt.Errorf("building archive: %w", err)
		}
		app.archiveSink = calllog.NewArchiveSink(storage, cfg.Archive.FlushInterval, log)
		app.archiveStorage = storage
		sinks = append(sinks, app.archiveSink)
	}

	if cfg.Metrics.Enabled {
		app.Metrics = metrics.NewRegistry()
	}

	app.Gateway = gateway.New(gateway.Options{
		Router:    router.New(registry, cfg.Gateway.Priority, cfg),
		Cache:     callcache.New(),
		Transport: transport.New(cfg.Gateway.HTTPTimeout),
		Sink:      sinks,
		Metrics:   app.Metrics,
		Log:       log,
		CacheTTL:  cfg.Gateway.CacheTTL,
		Fallback:  cfg.Gateway.Fallback,
	})

	return app, nil
}

func buildArchive(cfg config.ArchiveConfig) (archive.Storage, error) {
	switch cfg.Type {
	case "s3":
		return archive.NewS3(archive.S3Config{
			Bucket:    cfg.S3.Bucket,
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Prefix:    cfg.S3.Prefix,
		})
	default:
		return archive.NewLocalFS(cfg.Path)
	}
}

// RunArchive runs the archive flusher until the context is cancelled.
// No-op when archiving is disabled.
func (a *App) RunArchive(ctx context.Context) {
	if a.archiveSink == nil {
		return
	}
	a.archiveSink.Run(ctx)
}

// FlushArchive forces a final archive flush (used by one-shot CLI
// commands that exit immediately).
func (a *App) FlushArchive(ctx context.Context) {
	if a.archiveSink == nil {
		return
	}
	a.archiveSink.Flush(ctx)
}

// ArchiveStorage returns the configured archive backend, or nil when
// archiving is disabled.
func (a *App) ArchiveStorage() archive.Storage {
	return a.archiveStorage
}
