package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"notifsync/internal/config"
	"notifsync/internal/ics"
	appLog "notifsync/internal/log"
	"notifsync/internal/store"
	"notifsync/internal/web"
)

// flagConfig holds CLI flag values; non-empty values override the config
// file.
type flagConfig struct {
	configPath string
	listen     string
	dataFile   string
}

func main() {
	appLog.Info("notifsync starting", "version", "0.1.0")

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.dataFile != "" {
		conf.DataFile = flags.dataFile
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	appLog.Info("effective config",
		"listen", conf.Listen,
		"data_file", conf.DataFile,
		"watch_interval", conf.WatchEvery().String(),
		"allowed_origin", conf.AllowedOrigin,
		"timezone", conf.Timezone,
		"refresh", conf.RefreshCron,
		"horizon_days", conf.HorizonDays,
		"ics_count", len(conf.ICS),
	)

	st, err := store.Open(conf.DataFile, store.DefaultSeed)
	if err != nil {
		appLog.Error("failed to open event store", err, "path", conf.DataFile)
		os.Exit(1)
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	watcher := store.NewWatcher(st, conf.WatchEvery())
	watcher.Start()
	defer watcher.Stop()

	importer := ics.NewImporter(
		st,
		ics.NewFetcher(conf.CacheDir, nil),
		ics.SourcesFromConfig(conf.ICS),
		conf.HorizonDays,
		conf.Location(),
	)
	scheduler, err := startRefreshScheduler(ctx, conf, importer)
	if err != nil {
		appLog.Error("failed to schedule ICS refresh", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}
	if scheduler != nil {
		defer func() { <-scheduler.Stop().Done() }()
	}

	if err := web.StartServer(ctx, conf, st, importer); err != nil {
		appLog.Error("HTTP server failed", err, "listen", conf.Listen)
		cancel()
	}

	appLog.Info("notifsync exiting")
}

// startRefreshScheduler imports every configured ICS subscription once and
// then on the configured cron schedule. It returns nil when no
// subscriptions are configured.
func startRefreshScheduler(ctx context.Context, conf *config.Config, importer *ics.Importer) (*cron.Cron, error) {
	if len(importer.Sources()) == 0 {
		return nil, nil
	}

	refresh := func() {
		runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		res, errs := importer.RefreshAll(runCtx)
		if len(errs) > 0 {
			appLog.Error("ics refresh finished with errors", errors.Join(errs...), "error_count", len(errs))
		}
		appLog.Info("ics refresh completed", "added", res.Added, "updated", res.Updated)
	}

	c := cron.New(
		cron.WithLocation(conf.Location()),
		cron.WithLogger(appLog.CronLogger{}),
		cron.WithChain(cron.Recover(appLog.CronLogger{}), cron.SkipIfStillRunning(appLog.CronLogger{})),
	)
	if _, err := c.AddFunc(conf.RefreshCron, refresh); err != nil {
		return nil, err
	}

	go refresh()
	c.Start()
	appLog.Info("ics refresh scheduled", "schedule", conf.RefreshCron, "sources", len(importer.Sources()))
	return c, nil
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "notifsync.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.dataFile, "data", "", "Path to events.json (overrides config if set)")

	flag.Parse()

	return cfg
}
