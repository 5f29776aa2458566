package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/thomasjjj/Track-UA-Air-Attacks/internal/analyzer"
	"github.com/thomasjjj/Track-UA-Air-Attacks/internal/config"
	"github.com/thomasjjj/Track-UA-Air-Attacks/internal/credentials"
	"github.com/thomasjjj/Track-UA-Air-Attacks/internal/feed"
	"github.com/thomasjjj/Track-UA-Air-Attacks/internal/infrastructure/telegram"
	"github.com/thomasjjj/Track-UA-Air-Attacks/internal/ports"
	"github.com/thomasjjj/Track-UA-Air-Attacks/internal/scraper"
	"github.com/thomasjjj/Track-UA-Air-Attacks/internal/store"
)

// Application wires configuration and credentials into a runnable scrape.
type Application struct {
	orchestrator *scraper.Orchestrator
	logger       *slog.Logger
}

// New builds the full adapter graph. The responder handles interactive
// authentication challenges when the authenticated feed is selected.
func New(cfg config.Config, creds credentials.Credentials, responder ports.ChallengeResponder, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = slog.Default()
	}
	// One correlation id per run so resumed sessions are distinguishable in
	// a shared log file.
	logger := baseLogger.With("run_id", uuid.NewString())

	recordStore := store.New(cfg.Output.File, logger.With("component", "store"))

	analyzerClient := analyzer.NewClient(cfg.OpenAI, creds.OpenAIKey, analyzer.RetryPolicy{
		MaxAttempts:    cfg.RateLimit.RetryMaxAttempts,
		MaxElapsed:     cfg.RateLimit.RetryMaxElapsed,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
	}, logger.With("component", "analyzer"))

	registry := feed.NewRegistry()
	registry.Register(telegram.NewMTProtoFeed(
		creds.APIID, creds.APIHash, creds.PhoneNumber,
		cfg.Telegram.SessionFile, responder,
		logger.With("component", "feed.mtproto")))
	registry.Register(telegram.NewWebFeed(nil, "", logger.With("component", "feed.web")))

	sourceFeed, err := registry.Resolve(cfg.Telegram.Feed)
	if err != nil {
		return nil, fmt.Errorf("select feed: %w", err)
	}

	orchestrator := scraper.NewOrchestrator(sourceFeed, recordStore, analyzerClient, scraper.Options{
		Channel:      cfg.Telegram.Channel,
		SearchPhrase: cfg.Telegram.SearchPhrase,
		Incremental:  cfg.Processing.IsIncremental(),
		MessageLimit: cfg.Processing.Limit(),
		RequestDelay: cfg.RateLimit.RequestDelay,
		Concurrency:  cfg.RateLimit.MaxConcurrentRequests,
	}, logger.With("component", "orchestrator"))

	return &Application{orchestrator: orchestrator, logger: logger}, nil
}

// Run performs one scrape to completion, interruption or failure.
func (a *Application) Run(ctx context.Context) error {
	a.logger.Info("starting telegram scraper")
	return a.orchestrator.Run(ctx)
}
