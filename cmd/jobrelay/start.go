package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/amishk599/jobrelay/internal/api"
	"github.com/amishk599/jobrelay/internal/dispatch"
	"github.com/amishk599/jobrelay/internal/ingest"
	"github.com/amishk599/jobrelay/internal/metrics"
	"github.com/amishk599/jobrelay/internal/scheduler"
	"github.com/amishk599/jobrelay/internal/store"
	"github.com/amishk599/jobrelay/internal/telegram"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the relay daemon",
	Long:  "Start the bot, the ingest workers and the maintenance jobs; blocks until SIGINT/SIGTERM.",
	RunE:  runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, logger := mustLoad()
	if err := cfg.RequireTelegram(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger.Info("config loaded",
		"store", cfg.Store.Path,
		"classifier", cfg.Classifier.Type,
		"threshold", cfg.Dispatch.Threshold,
		"cooldown", cfg.Dispatch.Cooldown.String(),
		"operators", len(cfg.Dispatch.Operators),
		"channels", len(cfg.Telegram.Channels),
		"source", cfg.Source.Type,
		"email", cfg.Email.Provider,
		"locks", cfg.Lock.Backend,
	)
	if len(cfg.Dispatch.Operators) == 0 {
		logger.Warn("no operators configured, opportunities will be dispatched without confirmation requests")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sqlStore, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer sqlStore.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	classifier, err := setupClassifier(cfg, logger)
	if err != nil {
		logger.Error("failed to set up classifier", "error", err)
		os.Exit(1)
	}

	locker, closeLocker, err := setupLocker(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to set up locks", "error", err)
		os.Exit(1)
	}
	defer closeLocker()

	email, err := setupEmail(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to set up email", "error", err)
		os.Exit(1)
	}

	handler := telegram.NewHandler(cfg.Dispatch.Operators, cfg.Telegram.Channels, logger)
	b, err := telegram.NewBot(cfg.Telegram.BotToken, handler)
	if err != nil {
		logger.Error("failed to start telegram bot", "error", err)
		os.Exit(1)
	}
	messenger := telegram.NewMessenger(b, logger)

	coordinator := dispatch.New(
		dispatch.Deps{
			Extractor:     setupExtractor(cfg, logger),
			Filter:        setupFilter(cfg, logger),
			Opportunities: sqlStore,
			Deliveries:    sqlStore,
			Notifications: sqlStore,
			Sender:        setupSender(cfg, messenger, email, logger),
			Messenger:     messenger,
			Locker:        locker,
			Metrics:       m,
		},
		dispatch.Config{
			Threshold:       cfg.Dispatch.Threshold,
			Cooldown:        cfg.Dispatch.Cooldown,
			Operators:       cfg.Dispatch.Operators,
			SendConcurrency: cfg.Dispatch.Concurrency,
			MaxMessageRunes: telegram.MaxMessageRunes,
		},
		logger,
	)

	pool := ingest.NewPool(classifier, coordinator, cfg.Source.Workers, cfg.Source.QueueSize, m, logger)
	retention := retentionFrom(cfg)
	handler.Attach(messenger, pool, coordinator, telegram.NewCommands(sqlStore, messenger, retention, logger))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pool.Run(gctx) })
	g.Go(func() error {
		b.Start(gctx)
		return nil
	})

	if cfg.Source.Type == "kafka" {
		src, err := ingest.NewKafkaSource(ingest.KafkaConfig{
			Brokers: cfg.Source.Kafka.Brokers,
			Topic:   cfg.Source.Kafka.Topic,
			GroupID: cfg.Source.Kafka.GroupID,
		}, pool, logger)
		if err != nil {
			logger.Error("failed to set up kafka source", "error", err)
			os.Exit(1)
		}
		g.Go(func() error { return src.Run(gctx) })
	}

	sched := scheduler.NewScheduler([]scheduler.Job{
		scheduler.RetentionJob(sqlStore, retention, cfg.Retention.Interval, logger),
	}, logger)
	g.Go(func() error { return sched.Run(gctx) })

	if cfg.API.Enabled {
		srv := api.NewServer(cfg.API.Addr, api.NewRouter(sqlStore, reg, logger), logger)
		g.Go(func() error { return srv.Run(gctx) })
	}

	logger.Info("jobrelay started", "workers", cfg.Source.Workers, "api", cfg.API.Enabled)
	if err := g.Wait(); err != nil {
		logger.Error("jobrelay stopped with error", "error", err)
		os.Exit(1)
	}

	logger.Info("goodbye")
	return nil
}
