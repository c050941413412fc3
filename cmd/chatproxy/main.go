package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/chatproxy/pkg/api"
	"github.com/odvcencio/chatproxy/pkg/automation"
	"github.com/odvcencio/chatproxy/pkg/config"
	"github.com/odvcencio/chatproxy/pkg/history"
	"github.com/odvcencio/chatproxy/pkg/logging"
	"github.com/odvcencio/chatproxy/pkg/provider"
	"github.com/odvcencio/chatproxy/pkg/proxy"
	"github.com/odvcencio/chatproxy/pkg/queue"
	"github.com/odvcencio/chatproxy/pkg/session"
	"github.com/odvcencio/chatproxy/pkg/translate"
)

// Version information - set via ldflags during build
var (
	version   = "1.0.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	var (
		configPath  string
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "", "path to config file (default: $CHATPROXY_CONFIG or ./chatproxy.yaml)")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("chatproxy %s (%s, built %s)\n", version, commit, buildDate)
		return
	}

	if err := run(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "chatproxy: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	runID := time.Now().UTC().Format("20060102-150405")
	logger, err := logging.NewLogger(cfg.Logging.Dir, runID)
	if err != nil {
		return fmt.Errorf("opening logs: %w", err)
	}
	defer logger.Close()
	logger.SetMinLevel(logging.Level(cfg.Logging.Level))

	launcher := automation.NewChromeLauncher(automation.ChromeOptions{
		Headless:   cfg.Browser.Headless,
		ProfileDir: cfg.ProfilePath(),
		UserAgent:  cfg.Browser.UserAgent,
		ProxyURL:   cfg.Browser.ProxyURL,
	}, logger)

	profiles := provider.Profiles()
	adapters := make(map[provider.Provider]provider.Adapter, len(profiles))
	var enabled []provider.Provider
	for _, p := range provider.All() {
		if !cfg.ProviderEnabled(string(p)) {
			continue
		}
		settings := cfg.SettingsFor(string(p))
		adapters[p] = provider.NewAdapter(profiles[p], provider.Options{
			PollInterval:  settings.PollInterval,
			StableSamples: settings.StableSamples,
		}, logger)
		enabled = append(enabled, p)
	}

	var store history.Store
	if cfg.History.Enabled {
		store, err = history.NewSQLiteStore(cfg.History.Path)
		if err != nil {
			return fmt.Errorf("opening history: %w", err)
		}
	} else {
		store = history.NewMemoryStore()
	}
	defer store.Close()

	sessions := session.NewManager(launcher, adapters, session.Options{
		Settings: func(p provider.Provider) session.Settings {
			s := cfg.SettingsFor(string(p))
			return session.Settings{
				StartAttempts: s.StartAttempts,
				StartTimeout:  s.JobTimeout,
				PollInterval:  s.PollInterval,
			}
		},
		OnRestart: func(p provider.Provider) {
			if !cfg.Browser.ClearOnRestart {
				return
			}
			if dir := cfg.ProfilePath(); dir != "" {
				if err := os.RemoveAll(dir); err != nil {
					logger.Warn(logging.CategoryBrowser, "profile_clear_failed", err.Error(), nil)
				}
			}
		},
	}, logger)
	defer sessions.Close()

	dispatcher := queue.NewDispatcher(func(p provider.Provider) queue.Settings {
		s := cfg.SettingsFor(string(p))
		return queue.Settings{
			Depth:          s.QueueDepth,
			RequestsPerMin: s.RequestsPerMin,
			JobTimeout:     s.JobTimeout,
		}
	}, logger)
	defer dispatcher.Close()

	orch := proxy.New(sessions, dispatcher, proxy.Options{
		Flatten: translate.Format{
			TurnTemplate:    cfg.Flatten.TurnTemplate,
			Separator:       cfg.Flatten.Separator,
			RepeatFinalUser: cfg.Flatten.RepeatFinalUser,
		},
		Incremental: cfg.Flatten.Incremental,
		Store:       store,
		Providers:   enabled,
	}, logger)

	server := api.NewServer(orch, api.Options{
		Bind:        cfg.Server.Bind,
		ForceStream: cfg.Server.ForceStream,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	fmt.Printf("chatproxy %s listening on %s\n", version, cfg.Server.Bind)
	return g.Wait()
}
