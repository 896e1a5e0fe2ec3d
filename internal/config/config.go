package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the TTS gateway
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8001"`

	// API key for Bearer authentication. Empty disables auth.
	APIKey string `envconfig:"API_KEY" default:""`

	// Model registry configuration
	ModelsPath string `envconfig:"TTS_MODELS_JSON" default:"models.json"`

	// PreloadAll loads every registry model at startup instead of lazily
	// on first request. Any load failure then aborts startup.
	PreloadAll bool `envconfig:"TTS_PRELOAD_ALL" default:"false"`

	// StrictLoad is forwarded verbatim to the model runner; strict loads
	// reject weight shape/version mismatches that lenient loads tolerate.
	StrictLoad bool `envconfig:"TTS_STRICT_LOAD" default:"false"`

	// WarmupText is synthesized once on the default model after load.
	WarmupText string `envconfig:"TTS_WARMUP_TEXT" default:"Hello from the TTS gateway."`

	// Request validation
	MaxChars int `envconfig:"TTS_MAX_CHARS" default:"4096"`

	// VoiceCloneDir holds reference audio files for voice cloning.
	// Optional; cloning requests fail when unset.
	VoiceCloneDir string `envconfig:"TTS_VOICE_CLONE_DIR" default:""`

	// Model runner binary driving actual inference
	RunnerBin string `envconfig:"TTS_RUNNER_BIN" default:"mlx-tts-runner"`

	// ffmpeg transcoding (mp3/opus/aac/flac)
	FFmpegBin            string `envconfig:"FFMPEG_BIN" default:""`
	FFmpegTimeoutSeconds int    `envconfig:"FFMPEG_TIMEOUT_SECONDS" default:"30"`

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`   // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"` // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.MaxChars <= 0 {
		return nil, fmt.Errorf("TTS_MAX_CHARS must be > 0, got %d", cfg.MaxChars)
	}
	if cfg.FFmpegTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("FFMPEG_TIMEOUT_SECONDS must be > 0, got %d", cfg.FFmpegTimeoutSeconds)
	}
	if cfg.VoiceCloneDir != "" {
		info, err := os.Stat(cfg.VoiceCloneDir)
		if err != nil || !info.IsDir() {
			return nil, fmt.Errorf("TTS_VOICE_CLONE_DIR %q does not exist or is not a directory", cfg.VoiceCloneDir)
		}
	}

	return &cfg, nil
}
