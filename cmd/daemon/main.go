// Command daemon runs the radigw relay: it authenticates against the
// radiko upstream, keeps the program catalog fresh and serves the local
// HTTP surface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/mashiroka/radigw/internal/airtime"
	"github.com/mashiroka/radigw/internal/api"
	"github.com/mashiroka/radigw/internal/bridge"
	"github.com/mashiroka/radigw/internal/catalog"
	"github.com/mashiroka/radigw/internal/config"
	"github.com/mashiroka/radigw/internal/daemon"
	"github.com/mashiroka/radigw/internal/jobs"
	"github.com/mashiroka/radigw/internal/log"
	"github.com/mashiroka/radigw/internal/logocache"
	"github.com/mashiroka/radigw/internal/radiko"
	"github.com/mashiroka/radigw/internal/relay"
	"github.com/mashiroka/radigw/internal/version"
)

func main() {
	os.Exit(run())
}

// handshaker and seeder are the slices of the upstream client and the
// fetcher that boot needs.
type handshaker interface {
	Init(ctx context.Context) error
}

type seeder interface {
	Bootstrap(ctx context.Context) error
}

// seedCatalog runs the initial handshake and catalog load. A rejected
// premium login (ErrLogin) still produced a usable free-tier token, so the
// catalog is seeded anyway; only a failed handshake skips the seed and
// leaves every lookup to the per-request refresh path. Reports whether the
// seed ran.
func seedCatalog(ctx context.Context, client handshaker, f seeder, onAuthErr func(error), logger zerolog.Logger) bool {
	if err := client.Init(ctx); err != nil {
		onAuthErr(err)
		if !errors.Is(err, radiko.ErrLogin) {
			logger.Error().Str("event", "auth.init_failed").Err(err).Msg("initial handshake failed")
			return false
		}
		logger.Warn().Str("event", "auth.login_rejected").Err(err).Msg("premium login rejected, continuing on free tier")
	}
	if err := f.Bootstrap(ctx); err != nil {
		logger.Error().Str("event", "catalog.bootstrap_failed").Err(err).Msg("catalog bootstrap failed")
	}
	return true
}

func run() int {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("radigw %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		return 0
	}

	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		base := log.Base()
		base.Error().
			Str("event", "config.load_failed").
			Str("config_path", *configPath).
			Err(err).
			Msg("failed to load configuration")
		return 1
	}

	log.Configure(log.Config{Level: cfg.LogLevel, Service: "radigw"})
	logger := log.WithComponent("main")
	logger.Info().
		Str("event", "daemon.starting").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Int("port", cfg.Port).
		Msg("starting radigw")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := radiko.Options{Timeout: cfg.UpstreamTimeout}
	if cfg.PremiumMail != "" && cfg.PremiumPass != "" {
		opts.Account = &radiko.Account{Mail: cfg.PremiumMail, Pass: cfg.PremiumPass}
	}
	client, err := radiko.New(opts)
	if err != nil {
		logger.Error().Str("event", "upstream.client_failed").Err(err).Msg("upstream client init failed")
		return 1
	}

	clock := airtime.NewClock(cfg.DelaySec)
	store := catalog.NewStore()
	fetcher := jobs.NewFetcher(client, store, clock, jobs.Config{
		EnabledAreas:      cfg.EnabledAreas,
		TimeshiftPastDays: cfg.TimeshiftPastDays,
	})
	registry := relay.NewRegistry()
	logos := logocache.New(cfg.LogoDir, cfg.UpstreamTimeout)

	adapter := bridge.New(bridge.Options{
		Store:    store,
		Clock:    clock,
		Registry: registry,
		AAType:   cfg.AAType,
		DelaySec: cfg.DelaySec,
		Toast: func(level, title, body string) {
			logger.Info().
				Str("event", "bridge.toast").
				Str("level", level).
				Str("title", title).
				Msg(body)
		},
	})

	// Handshake and bootstrap are best-effort: a failed handshake leaves
	// the server up, failing per-request until credentials become usable.
	seedCatalog(ctx, client, fetcher, func(err error) {
		adapter.Toast(bridge.ToastWarn, bridge.Lookup("toast.auth.failed"), err.Error())
	}, logger)

	scheduler := cron.New(cron.WithLocation(airtime.JST))
	if _, err := scheduler.AddFunc("59 4 * * *", func() {
		fetcher.RefreshDaily(context.Background())
	}); err != nil {
		logger.Error().Str("event", "scheduler.add_failed").Err(err).Msg("refresh schedule rejected")
		return 1
	}
	scheduler.Start()

	server := api.New(cfg, store, fetcher, client, clock, registry, logos)

	metricsAddr := ""
	if cfg.MetricsPort > 0 {
		metricsAddr = fmt.Sprintf(":%d", cfg.MetricsPort)
	}
	manager, err := daemon.NewManager(daemon.Options{
		ListenAddr:  fmt.Sprintf(":%d", cfg.Port),
		MetricsAddr: metricsAddr,
		ReadTimeout: 10 * time.Second,
	}, server.Handler())
	if err != nil {
		logger.Error().Str("event", "daemon.setup_failed").Err(err).Msg("daemon setup failed")
		return 1
	}

	// Drain hooks run LIFO before the listener closes: sessions first so
	// in-flight relay streams release their connections, then the
	// scheduler. The store is cleared once the listener has stopped.
	manager.RegisterDrainHook("stop-scheduler", func(ctx context.Context) error {
		adapter.StopTicker()
		select {
		case <-scheduler.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	manager.RegisterDrainHook("close-sessions", func(context.Context) error {
		registry.CloseAll()
		return nil
	})
	manager.RegisterShutdownHook("clear-store", func(context.Context) error {
		store.Clear()
		return nil
	})

	if err := manager.Start(ctx); err != nil {
		if errors.Is(err, daemon.ErrPortInUse) {
			adapter.Toast(bridge.ToastError, bridge.Lookup("toast.port.in_use"), err.Error())
		} else {
			adapter.Toast(bridge.ToastError, bridge.Lookup("toast.boot.failed"), err.Error())
		}
		logger.Error().Str("event", "daemon.exit").Err(err).Msg("daemon exited with error")
		return 1
	}

	logger.Info().Str("event", "daemon.exit").Msg("daemon exited cleanly")
	return 0
}
