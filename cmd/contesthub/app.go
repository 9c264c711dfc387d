package main

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"contesthub/internal/backfill"
	"contesthub/internal/config"
	"contesthub/internal/httpclient"
	"contesthub/internal/ingest"
	"contesthub/internal/normalize"
	"contesthub/internal/orchestrator"
	"contesthub/internal/source"
	"contesthub/internal/storage"
)

// app holds the components shared by serve and scrape.
type app struct {
	cfg          config.Config
	log          *logrus.Logger
	repo         *storage.BadgerRepository
	orchestrator *orchestrator.Orchestrator
}

func newApp(cfg config.Config, log *logrus.Logger) (*app, error) {
	repo, err := storage.NewBadgerRepository(cfg.BadgerDBPath, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	client := httpclient.New(httpclient.Options{
		Timeout:       cfg.PageTimeout,
		RatePerSecond: cfg.APIRatePerSecond,
		UserAgent:     cfg.BrowserUserAgent,
	}, log)

	browser := source.NewBrowser(source.BrowserOptions{
		Bin:            cfg.BrowserBin,
		UserAgent:      cfg.BrowserUserAgent,
		AcceptLanguage: cfg.BrowserAcceptLanguage,
		PageTimeout:    cfg.PageTimeout,
	}, log)

	sources := []source.Adapter{
		source.NewLeetCode(browser, log),
		source.NewCodeChef(browser, log),
		source.NewCodeforces(client, cfg.CodeforcesAPIURL, log),
	}

	norm := normalize.New(normalize.WithRollElapsed(cfg.RollElapsedWeekday))
	pipeline := ingest.NewPipeline(repo, norm, log)

	var bf orchestrator.BackfillRunner
	if cfg.YouTubeAPIKey != "" {
		yt := backfill.NewYouTubeClient(client, cfg.YouTubeAPIURL, cfg.YouTubeAPIKey)
		bf = backfill.New(yt, repo, cfg.Playlists(), cfg.PCDWindow, log)
	} else {
		log.Info("YOUTUBE_API_KEY not set, discussion backfill disabled")
	}

	return &app{
		cfg:          cfg,
		log:          log,
		repo:         repo,
		orchestrator: orchestrator.New(sources, pipeline, bf, cfg.ScrapeInterval, log),
	}, nil
}

func (a *app) Close() {
	a.log.Info("Closing database...")
	if err := a.repo.Close(); err != nil {
		a.log.WithError(err).Error("Error closing database")
	}
}
