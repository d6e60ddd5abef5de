package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"dinnerplan/internal/config"
	"dinnerplan/internal/database"
	"dinnerplan/internal/llm"
	"dinnerplan/internal/metrics"
	"dinnerplan/internal/store"

	"go.uber.org/zap"
)

// Bootstrap builds the App described by cfg: the SQLite database (always
// used for usage metrics), the document store backend and the generation
// backend. Callers must Close the App.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var closers []func() error
	fail := func(err error) (*App, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	db, err := database.NewDB(cfg.DatabasePath, logger)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, db.Close)

	collectors := metrics.NewCollectors()
	retrier := llm.NewRetrier(
		llm.RetryConfig{MaxAttempts: cfg.GenerationMaxAttempts},
		llm.WithLogger(logger),
		llm.WithCollectors(collectors),
	)

	var gen llm.Generator
	switch cfg.GenerationBackend {
	case config.BackendSDK:
		sdk, err := llm.NewSDKGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, retrier)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, sdk.Close)
		gen = sdk
	default:
		client := llm.NewClient(&http.Client{Timeout: 2 * time.Minute}, retrier)
		gen = llm.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiBaseURL, cfg.GeminiModel, client)
	}

	var gw store.Gateway
	switch cfg.StoreBackend {
	case config.StoreFirestore:
		fs, err := store.NewFirestore(ctx, cfg.FirestoreProjectID, logger)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, fs.Close)
		gw = fs
	default:
		gw = store.NewSQLite(db.SQL)
	}

	a, err := New(Deps{
		Generator:   gen,
		Gateway:     gw,
		AppID:       cfg.AppID,
		Usage:       metrics.NewStore(db.SQL),
		Collectors:  collectors,
		ShareSecret: cfg.ShareSecret,
		Logger:      logger,
	})
	if err != nil {
		return fail(fmt.Errorf("failed to build app: %w", err))
	}
	a.closers = closers

	logger.Info("app ready",
		zap.String("generation_backend", cfg.GenerationBackend),
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("model", cfg.GeminiModel),
		zap.Bool("sharing", cfg.ShareSecret != ""),
	)
	return a, nil
}
