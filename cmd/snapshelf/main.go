package main

import (
	"log"
	"log/slog"
	"time"

	"snapshelf/internal/capture"
	"snapshelf/internal/classify"
	"snapshelf/internal/classify/anthropic"
	"snapshelf/internal/classify/openai"
	"snapshelf/internal/config"
	"snapshelf/internal/homebox"
	"snapshelf/internal/locations"
	"snapshelf/internal/logging"
	"snapshelf/internal/photocache"
	"snapshelf/internal/retry"
	"snapshelf/internal/sessions"
	"snapshelf/internal/web"
)

func main() {
	cfg := config.Load()

	logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer cleanup()

	if cfg.HomeboxURL == "" {
		logger.Error("HOMEBOX_URL is required")
		return
	}

	filterMode, err := locations.ParseFilterMode(cfg.LocationFilterMode)
	if err != nil {
		logger.Error("invalid LOCATION_FILTER_MODE", "error", err)
		return
	}

	store, closeStore, err := sessions.New(cfg.SessionBackend, cfg.SessionDBPath)
	if err != nil {
		logger.Error("failed to open session store", "error", err)
		return
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Error("failed to close session store", "error", err)
		}
	}()

	client := homebox.New(homebox.Config{
		BaseURL:  cfg.HomeboxURL,
		Token:    cfg.HomeboxToken,
		Username: cfg.HomeboxUser,
		Password: cfg.HomeboxPassword,
		Retry: retry.Policy{
			MaxAttempts: cfg.RetryAttempts,
			Delay:       cfg.RetryDelay,
			Backoff:     cfg.RetryBackoff,
		},
	}, logger)

	backend := newClassifierBackend(cfg, logger)
	if backend == nil {
		return
	}

	cache, err := photocache.New(cfg.PhotoCachePath, logger)
	if err != nil {
		logger.Error("failed to initialize photo cache", "error", err)
		return
	}
	go sweepLoop(cache, cfg.SweepInterval, cfg.SweepMaxAge, logger)

	workflow := capture.New(store, client, classify.NewService(backend, logger), cache, capture.Config{
		FilterMode:    filterMode,
		Marker:        cfg.LocationMarker,
		Language:      cfg.Language,
		MaxImageBytes: cfg.MaxImageBytes(),
		MaxImageDim:   cfg.MaxImageDim,
		DownscaleDim:  cfg.DownscaleDim,
	}, logger)

	server := web.NewServer(workflow, client, logger)
	if err := server.ListenAndServe(cfg.ListenAddr); err != nil {
		logger.Error("server error", "error", err)
	}
}

func newClassifierBackend(cfg *config.Config, logger *slog.Logger) classify.Backend {
	switch cfg.ClassifierBackend {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			logger.Error("ANTHROPIC_API_KEY is required when CLASSIFIER_BACKEND=anthropic")
			return nil
		}
		logger.Info("using Anthropic classifier backend")
		return anthropic.New(anthropic.Config{APIKey: cfg.AnthropicAPIKey, Model: cfg.AnthropicModel})
	default:
		logger.Info("using OpenAI-compatible classifier backend", "base_url", cfg.OpenAIBaseURL)
		return openai.New(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	}
}

// sweepLoop periodically removes cached draft photos old enough to be
// orphans. Live drafts are cleaned up by the workflow itself; this only mops
// up after crashes.
func sweepLoop(cache *photocache.Cache, interval, maxAge time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		removed, err := cache.Sweep(maxAge)
		if err != nil {
			logger.Warn("photo sweep failed", "error", err)
			continue
		}
		if removed > 0 {
			logger.Info("swept orphaned draft photos", "removed", removed)
		}
	}
}
