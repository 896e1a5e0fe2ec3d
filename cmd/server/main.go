package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bradsjm/mlx-openai-tts/internal/audio"
	"github.com/bradsjm/mlx-openai-tts/internal/config"
	"github.com/bradsjm/mlx-openai-tts/internal/mlx"
	"github.com/bradsjm/mlx-openai-tts/internal/observability"
	"github.com/bradsjm/mlx-openai-tts/internal/registry"
	"github.com/bradsjm/mlx-openai-tts/internal/server"
	"github.com/bradsjm/mlx-openai-tts/internal/tts"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("models_path", cfg.ModelsPath).
		Bool("preload_all", cfg.PreloadAll).
		Bool("strict_load", cfg.StrictLoad).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("TTS gateway starting")

	// Load and validate the model registry
	reg, err := registry.Load(cfg.ModelsPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load model registry")
	}
	logger.Info().
		Int("models", len(reg.Specs)).
		Str("default_model", reg.DefaultModel).
		Msg("Model registry loaded")

	// Wire the model runner and manager
	loader := mlx.NewRunner(cfg.RunnerBin, logger)
	manager := tts.NewManager(reg, loader, tts.ManagerOptions{
		Strict:        cfg.StrictLoad,
		VoiceCloneDir: cfg.VoiceCloneDir,
		WarmupText:    cfg.WarmupText,
		Logger:        logger,
	})

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 10*time.Minute)
	if cfg.PreloadAll {
		if err := manager.PreloadAll(startupCtx); err != nil {
			logger.Fatal().Err(err).Msg("Model preload failed")
		}
	}
	if err := manager.LoadDefaultAndWarm(startupCtx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to load default model")
	}
	cancelStartup()

	engine := tts.NewEngine(manager, logger)
	encoder := audio.NewEncoder(cfg.FFmpegBin, time.Duration(cfg.FFmpegTimeoutSeconds)*time.Second)

	// Create HTTP server
	mux := http.NewServeMux()
	handler := server.New(cfg, manager, engine, encoder, logger)
	handler.Register(mux)

	// Readiness endpoint: default model loaded plus an advisory ffmpeg probe
	transcoder := audio.NewTranscoder(cfg.FFmpegBin, time.Duration(cfg.FFmpegTimeoutSeconds)*time.Second)
	checks := map[string]observability.HealthCheckFunc{
		"default_model": func(ctx context.Context) (bool, error) {
			snap := manager.Snapshot()
			if !snap.Loaded {
				return false, fmt.Errorf("default model %q not loaded", snap.DefaultModel)
			}
			return true, nil
		},
		"ffmpeg": func(ctx context.Context) (bool, error) {
			if !transcoder.Available() {
				return false, fmt.Errorf("ffmpeg not found; mp3/opus/aac/flac unavailable")
			}
			return true, nil
		},
	}
	mux.HandleFunc("/ready", observability.ReadinessHandler("mlx-openai-tts", server.Version, checks))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// Create HTTP server with timeouts. Write timeout stays generous
	// because streamed synthesis holds the response open.
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("http://localhost:%s/v1/audio/speech", cfg.Port)).
			Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}
