// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrInvalidThreshold is returned when SILENCE_THRESHOLD is outside [0, 1).
	ErrInvalidThreshold = errors.New("config: SILENCE_THRESHOLD must be in [0, 1)")
	// ErrInvalidPort is returned when PORT is not a valid TCP port.
	ErrInvalidPort = errors.New("config: PORT must be between 1 and 65535")
	// ErrIncompleteS3 is returned when only one of S3_BUCKET and S3_REGION is set.
	ErrIncompleteS3 = errors.New("config: S3_BUCKET and S3_REGION must be set together")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Dataset settings
	DatasetsDir string `env:"DATASETS_DIR, default=datasets" json:"datasets_dir"`
	TempDir     string `env:"TEMP_DIR, default=/tmp/speech-dataset-maker" json:"temp_dir"`

	// Processing settings
	SilenceThreshold float32 `env:"SILENCE_THRESHOLD, default=0.05" json:"silence_threshold"`
	FFmpegPath       string  `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`

	// Capture settings (terminal recorder only)
	InputDevice int `env:"INPUT_DEVICE, default=-1" json:"input_device"`

	// Optional S3 mirror settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	S3Prefix           string `env:"S3_PREFIX" json:"s3_prefix,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if the S3 mirror is configured.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges that struct tags cannot express.
func (c *Config) Validate() error {
	if c.SilenceThreshold < 0 || c.SilenceThreshold >= 1 {
		return fmt.Errorf("%w: got %v", ErrInvalidThreshold, c.SilenceThreshold)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: got %d", ErrInvalidPort, c.Port)
	}
	if (c.S3Bucket == "") != (c.S3Region == "") {
		return ErrIncompleteS3
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	return c.newLogger(os.Stdout)
}

func (c *Config) newLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(c.LogLevel)}

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, DatasetsDir: %s, TempDir: %s, SilenceThreshold: %v, FFmpegPath: %s, InputDevice: %d, S3Bucket: %s, S3Region: %s, S3Endpoint: %s, S3Prefix: %s, AWSAccessKeyID: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.DatasetsDir,
		c.TempDir,
		c.SilenceThreshold,
		c.FFmpegPath,
		c.InputDevice,
		c.S3Bucket,
		c.S3Region,
		c.S3Endpoint,
		c.S3Prefix,
		mask(c.AWSAccessKeyID),
		c.LogFormat,
		c.LogLevel,
	)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "****"
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
