package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"contesthub/internal/bot"
	"contesthub/internal/config"
	"contesthub/internal/httpserver"
	"contesthub/internal/notify"
	"contesthub/internal/queue"
	"contesthub/internal/reminder"
)

const (
	gcInterval      = 10 * time.Minute
	shutdownTimeout = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scraper, reminder worker, Telegram bot and ops HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		a, err := newApp(cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func (a *app) newQueueBackend(ctx context.Context) (queue.Backend, error) {
	if a.cfg.QueueBackend != config.QueueRedis {
		return queue.NewBadgerBackend(a.repo.DB()), nil
	}
	client, err := queue.ConnectRedis(ctx, queue.RedisOptions{
		Addr:           a.cfg.RedisAddr,
		Password:       a.cfg.RedisPassword,
		DB:             a.cfg.RedisDB,
		ConnectTimeout: a.cfg.RedisConnectTimeout,
	}, a.log)
	if err != nil {
		return nil, err
	}
	return queue.NewRedisBackend(client), nil
}

func (a *app) serve() error {
	log := a.log
	startTime := time.Now()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	var wg sync.WaitGroup
	defer func() {
		stop()
		wg.Wait()
	}()

	goRun := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	goRun(func() { a.repo.RunGC(ctx, gcInterval) })

	// Queue
	backend, err := a.newQueueBackend(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize queue: %w", err)
	}
	q := queue.New(backend, log)
	defer func() {
		if err := q.Close(); err != nil {
			log.WithError(err).Error("Error closing queue")
		}
	}()

	scheduler := reminder.NewScheduler(a.repo, q, reminder.Options{
		Lead:        a.cfg.ReminderLead,
		MaxAttempts: a.cfg.ReminderMaxAttempts,
		Backoff:     a.cfg.ReminderBackoff,
	}, log)

	// Telegram front and reminder delivery
	var dispatcher notify.Dispatcher = notify.NewLogDispatcher(log)
	if a.cfg.TelegramBotToken != "" {
		handler, err := bot.NewHandler(a.cfg.TelegramBotToken, a.repo, scheduler, log)
		if err != nil {
			return err
		}
		dispatcher = notify.NewTelegramDispatcher(handler.Bot(), log)
		goRun(func() { handler.Start(ctx) })
	} else {
		log.Warn("TELEGRAM_BOT_TOKEN not set, bot disabled and reminders are only logged")
	}

	worker := queue.NewWorker(q, queue.WorkerOptions{
		Concurrency:  a.cfg.WorkerConcurrency,
		PollInterval: a.cfg.WorkerPollInterval,
	}, log)
	reminder.NewWorker(dispatcher, time.UTC, log).Register(worker)
	goRun(func() { worker.Run(ctx) })

	// Scrape schedule
	a.orchestrator.Start(ctx)

	// Ops HTTP
	srv := httpserver.New(a.cfg.HTTPAddr, httpserver.Deps{
		Logger:    log,
		StartTime: startTime,
		Contests:  a.repo,
		Status:    a.orchestrator,
		Jobs:      q,
		JobName:   reminder.JobName,
	})
	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.Start() }()

	log.Info("contesthub is running. Press Ctrl+C to exit.")

	select {
	case <-ctx.Done():
	case err = <-srvErr:
		if err != nil {
			log.WithError(err).Error("HTTP server failed")
		}
		stop()
	}

	log.Info("Shutting down contesthub...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.WithError(err).Error("Error stopping HTTP server")
	}
	a.orchestrator.Stop()
	stop()
	wg.Wait()

	log.Info("contesthub shut down gracefully.")
	return err
}
