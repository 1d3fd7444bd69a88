package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"flatwatch/internal/config"
	"flatwatch/internal/logger"
	"flatwatch/internal/notify"
	"flatwatch/internal/report"
	"flatwatch/internal/scrapers"
	"flatwatch/internal/snapshot"
	"flatwatch/internal/watcher"
)

func main() {
	// Command-line flags
	envFile := flag.String("env", ".env", "Path to the dotenv file")
	dryRun := flag.Bool("dry-run", false, "Print the report without saving the snapshot or notifying")
	flag.Parse()

	// Initialize configuration
	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatal("Error loading config:", err)
	}
	if !*dryRun {
		if err := cfg.ValidateNotifiers(); err != nil {
			log.Fatal("Error in notifier config:", err)
		}
	}

	// Initialize custom logger
	clog, err := logger.New(cfg.LogLevel, cfg.LogDir)
	if err != nil {
		log.Fatal("failed to initialize clog:", err)
	}
	defer func(clog logger.Logger) {
		if err := clog.Close(); err != nil {
			log.Println("failed to close custom logger:", err)
		}
	}(clog)

	if err := run(cfg, clog, *dryRun); err != nil {
		clog.Errorf("Run finished with error: %v", err)
		_ = clog.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, clog logger.Logger, dryRun bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.RunTimeout)
	defer cancel()

	clog.Infof("Starting run: fetch mode %s, cache backend %s", cfg.FetchMode, cfg.CacheBackend)

	// Serialize runs that share a cache
	if !dryRun {
		lock, err := snapshot.AcquireLock(cfg.LockPath)
		if err != nil {
			if errors.Is(err, snapshot.ErrLocked) {
				clog.Warnf("Another run is in progress, skipping: %v", err)
				return nil
			}
			return err
		}
		defer func() {
			if err := lock.Release(); err != nil {
				clog.Warnf("Failed to release lock: %v", err)
			}
		}()
	}

	source, closeSource := newPageSource(cfg, clog)
	defer closeSource()

	scraperCfg := scrapers.DefaultWunderflatsConfig().
		WithBaseURL(cfg.BaseURL).
		WithQuery(scrapers.SearchQuery{
			From:         cfg.SearchFrom,
			To:           cfg.SearchTo,
			ScoreVariant: cfg.SearchScoreVariant,
			BBox:         cfg.SearchBBox,
			MinSize:      cfg.SearchMinSize,
		}).
		WithMaxPages(cfg.MaxPages).
		WithRetry(cfg.RetryAttempts, cfg.RetryBackoff)
	scraper := scrapers.NewWunderflatsScraper(scraperCfg, source, clog)

	store, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	renderer := report.NewRenderer(cfg.DetailBaseURL, cfg.SubjectPrefix)

	if dryRun {
		w := watcher.New(scraper, store, renderer, nil, clog)
		state, err := w.Load(ctx)
		if err != nil {
			return err
		}
		out := w.Process(state)
		fmt.Println(out.Subject)
		fmt.Println()
		fmt.Print(out.Body)
		return nil
	}

	notifier, closeNotifiers, err := newNotifier(cfg, clog)
	if err != nil {
		return err
	}
	defer closeNotifiers()

	return watcher.New(scraper, store, renderer, notifier, clog).Run(ctx)
}

func newPageSource(cfg *config.Config, clog logger.Logger) (scrapers.PageSource, func()) {
	if cfg.FetchMode == config.FetchModeBrowser {
		b := scrapers.NewBrowserSource(cfg.Headless, cfg.RequestTimeout, clog)
		return b, b.Close
	}
	return scrapers.NewHTTPSource(cfg.RequestTimeout, clog), func() {}
}

func newStore(ctx context.Context, cfg *config.Config) (snapshot.Store, func(), error) {
	if cfg.CacheBackend != config.CacheBackendPostgres {
		return snapshot.NewFileStore(cfg.CachePath), func() {}, nil
	}

	pool, err := snapshot.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	store, err := snapshot.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}
	return store, store.Close, nil
}

func newNotifier(cfg *config.Config, clog logger.Logger) (notify.Notifier, func(), error) {
	var (
		multi   notify.Multi
		closers []func() error
	)
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				clog.Warnf("Failed to close notifier: %v", err)
			}
		}
	}

	for _, name := range cfg.Notifiers {
		var n notify.Notifier
		switch name {
		case "email":
			e, err := notify.NewEmailNotifier(notify.EmailConfig{
				Host:     cfg.SMTPHost,
				Port:     cfg.SMTPPort,
				Username: cfg.SMTPUser,
				Password: cfg.SMTPPass,
				From:     cfg.SMTPFrom,
				To:       cfg.MailTo,
			}, clog)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			n = e
		case "kafka":
			k, err := notify.NewKafkaNotifier(strings.Split(cfg.KafkaHost, ","), cfg.KafkaTopic, clog)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			closers = append(closers, k.Close)
			n = k
		case "rabbitmq":
			r, err := notify.NewRabbitMQNotifier(notify.RabbitMQConfig{
				URL:        cfg.RabbitMQURL,
				Exchange:   cfg.RabbitMQExchange,
				RoutingKey: cfg.RabbitMQRoutingKey,
			}, clog)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			closers = append(closers, r.Close)
			n = r
		case "mailapp":
			m, err := notify.NewMailAppNotifier(cfg.MailAppSender, cfg.MailTo, clog)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			n = m
		default:
			closeAll()
			return nil, nil, fmt.Errorf("unknown notifier %q", name)
		}
		multi = append(multi, notify.Named{Name: name, Notifier: n})
	}
	return multi, closeAll, nil
}
