// Package main provides the entry point for Raidlog Companion.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/graaaaa/raidlog-companion/internal/api"
	"github.com/graaaaa/raidlog-companion/internal/app"
	"github.com/graaaaa/raidlog-companion/internal/appinfo"
	"github.com/graaaaa/raidlog-companion/internal/config"
	"github.com/graaaaa/raidlog-companion/internal/lifecycle"
	"github.com/graaaaa/raidlog-companion/internal/logging"
	"github.com/graaaaa/raidlog-companion/internal/market"
	"github.com/graaaaa/raidlog-companion/internal/notify"
	"github.com/graaaaa/raidlog-companion/internal/profile"
	"github.com/graaaaa/raidlog-companion/internal/records"
	"github.com/graaaaa/raidlog-companion/internal/singleinstance"
	"github.com/graaaaa/raidlog-companion/internal/valuation"
	"github.com/graaaaa/raidlog-companion/internal/version"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Config file, then environment, then flags.
	cfg, cfgErr := config.LoadConfig()
	cfg, envErr := config.ApplyEnvOverrides(cfg)
	port := flag.Int("port", cfg.Port, "HTTP server port")
	purge := flag.String("purge", "", "delete the record history of this account or player id, then exit")
	flag.Parse()

	logger, logCloser, err := logging.New(logging.Options{
		Level:      logging.ParseLevel(cfg.Log.Level),
		Dir:        cfg.Log.Dir,
		FileName:   appinfo.LogFileName,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	if cfgErr != nil {
		logger.Warn("config file unreadable, using defaults", "error", cfgErr)
	}
	if envErr != nil {
		logger.Warn("ignoring invalid environment overrides", "error", envErr)
	}

	dataDir, err := config.EnsureDataDir()
	if err != nil {
		return err
	}
	recordsDir, err := config.ResolveRecordsDir(cfg)
	if err != nil {
		return err
	}

	// An unusable records directory is not fatal here; the record store
	// reports it and runs degraded.
	release, ok, err := singleinstance.AcquireLock(recordsDir)
	switch {
	case err != nil:
		logger.Warn("instance lock unavailable", "dir", recordsDir, "error", err)
	case !ok:
		return fmt.Errorf("another instance is already using %s", recordsDir)
	default:
		defer release()
	}

	secrets, err := loadSecrets(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Profiles and prices.
	registry := profile.NewRegistry(cfg.ProfilesDir, profile.WithLogger(logger))
	if err := registry.Refresh(ctx); err != nil {
		logger.Warn("profile registry unavailable", "dir", cfg.ProfilesDir, "error", err)
	}

	dbPath, err := config.DatabasePath()
	if err != nil {
		return err
	}
	db, err := market.Open(dbPath, market.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("open market database: %w", err)
	}
	defer db.Close()
	prepareMarket(ctx, db, cfg.DatabaseDir, logger)

	catalog, err := db.Catalog(ctx)
	if err != nil {
		return fmt.Errorf("load item catalog: %w", err)
	}
	valuer := valuation.New(db, catalog,
		valuation.WithRefreshInterval(cfg.PriceRefreshInterval()),
		valuation.WithLogger(logger))

	// Records. A directory that cannot be created leaves the store degraded;
	// the service still answers with empty results.
	store, err := records.Open(recordsDir, registry,
		records.WithLogger(logger), records.WithCatalog(catalog))
	if err != nil {
		logger.Error("record store degraded, raid records will not be saved", "dir", recordsDir, "error", err)
	} else if stats, err := store.CompactAll(ctx); err != nil {
		logger.Warn("record compaction incomplete", "error", err)
	} else {
		logger.Info("records ready", "dir", recordsDir,
			"accounts", stats.Accounts, "records", stats.Records, "pending", stats.Pending)
	}

	maintenance := &app.MaintenanceService{Store: store, Accounts: registry}
	if *purge != "" {
		account, err := maintenance.Purge(ctx, *purge)
		if err != nil {
			return fmt.Errorf("purge %s: %w", *purge, err)
		}
		logger.Info("history purged", "account", account)
		return nil
	}

	hub := api.NewHub(api.WithHubLogger(logger))
	hooks := []lifecycle.Option{
		lifecycle.WithLogger(logger),
		lifecycle.WithArchiveHook(hub.OnArchived),
	}

	var notifier *notify.Notifier
	if !secrets.DiscordWebhookURL.IsEmpty() {
		sender := notify.NewDiscordSender(secrets.DiscordWebhookURL, notify.WithSenderLogger(logger))
		notifier = notify.NewNotifier(sender, time.Duration(cfg.DiscordBatchSec)*time.Second,
			notify.FilterConfig{
				NotifyOnSurvived: cfg.NotifyOnSurvived,
				NotifyOnDeath:    cfg.NotifyOnDeath,
			}, notify.WithNotifierLogger(logger))
		hooks = append(hooks, lifecycle.WithArchiveHook(notifier.OnArchived))
		logger.Info("discord notifications enabled")
	}
	manager := lifecycle.New(store, registry, valuer, hooks...)

	// HTTP.
	host := "127.0.0.1"
	if cfg.LanEnabled {
		host = "0.0.0.0"
	}
	addr := fmt.Sprintf("%s:%d", host, *port)

	limiter := api.NewRateLimiter(api.DefaultRateLimiterConfig())
	defer limiter.Stop()

	serverOpts := []api.ServerOption{
		api.WithLogger(logger),
		api.WithRaidUsecase(&app.RaidService{Lifecycle: manager}),
		api.WithRecordsUsecase(&app.RecordsService{Store: store, Accounts: registry, Valuer: valuer}),
		api.WithPriceUsecase(&app.PriceService{Pricer: valuer}),
		api.WithStatsUsecase(app.NewStatsService(store, registry)),
		api.WithReloader(maintenance),
		api.WithHub(hub),
		api.WithRateLimiter(limiter),
	}
	if cfg.LanEnabled {
		serverOpts = append(serverOpts,
			api.WithBasicAuth(secrets.BasicAuthUsername, secrets.BasicAuthPassword.Value()),
			api.WithAuthFailureLimiter(api.NewAuthFailureLimiter(api.DefaultAuthFailureLimiterConfig())))
		logger.Info("basic auth enabled for LAN mode")
	}
	server := api.NewServer(addr, app.HealthService{Version: version.String(), Store: store}, serverOpts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run()
		return nil
	})
	if notifier != nil {
		g.Go(func() error {
			notifier.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		logger.Info("starting "+appinfo.AppName, "version", version.String(), "addr", addr, "data_dir", dataDir)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdown(server, notifier, hub, logger)
		return nil
	})

	return g.Wait()
}

// loadSecrets reads secrets.json and makes sure LAN mode has credentials.
// A corrupt secrets file is never overwritten.
func loadSecrets(cfg config.Config, logger *slog.Logger) (config.Secrets, error) {
	secrets, status, err := config.LoadSecrets()
	if err != nil {
		logger.Warn("secrets unavailable, using defaults", "error", err)
	}

	updated, generated, err := config.EnsureLanAuth(&secrets, cfg.LanEnabled)
	if err != nil {
		return secrets, fmt.Errorf("ensure LAN auth: %w", err)
	}
	if !updated {
		return secrets, nil
	}
	if status == config.SecretsFallback {
		logger.Warn("secrets file has errors; generated credentials were not saved. Fix or delete secrets.json and restart")
		return secrets, nil
	}

	path, err := config.SecretsPath()
	if err != nil {
		return secrets, err
	}
	if err := config.SaveSecretsTo(secrets, path); err != nil {
		return secrets, fmt.Errorf("save secrets: %w", err)
	}
	if generated != "" {
		// Printed once on the console only; the file copy is the durable one.
		fmt.Fprintf(os.Stderr, "Generated LAN credentials (also stored in %s):\n  username: %s\n  password: %s\n",
			path, secrets.BasicAuthUsername, generated)
	}
	return secrets, nil
}

// prepareMarket imports price dumps when a database directory is set and
// runs periodic maintenance. Failures leave the previous data in place.
func prepareMarket(ctx context.Context, db *market.Store, dir string, logger *slog.Logger) {
	if dir != "" {
		stats, err := db.ImportDir(ctx, dir)
		if err != nil {
			logger.Warn("market import failed", "dir", dir, "error", err)
		} else {
			logger.Info("market data imported", "dir", dir,
				"templates", stats.Templates, "handbook", stats.Handbook, "offers", stats.Offers)
		}
	}
	if vacuumed, err := db.VacuumIfNeeded(ctx); err != nil {
		logger.Warn("market vacuum failed", "error", err)
	} else if vacuumed {
		logger.Info("market database vacuumed")
	}
}

func shutdown(server *api.Server, notifier *notify.Notifier, hub *api.Hub, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("server shutdown error", "error", err)
	}
	if notifier != nil {
		if err := notifier.Stop(ctx); err != nil {
			logger.Warn("notifier stop error", "error", err)
		}
	}
	hub.Stop()
}
