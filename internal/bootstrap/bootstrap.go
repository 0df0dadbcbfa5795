// Package bootstrap provides dependency initialization for the studio server
// and the terminal recorder.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/maauso/speech-dataset-maker/internal/audio"
	"github.com/maauso/speech-dataset-maker/internal/config"
	"github.com/maauso/speech-dataset-maker/internal/dataset"
	"github.com/maauso/speech-dataset-maker/internal/metrics"
	"github.com/maauso/speech-dataset-maker/internal/storage"
	"github.com/maauso/speech-dataset-maker/internal/take"
)

// Dependencies holds all initialized dependencies.
type Dependencies struct {
	TakeService *take.Service
	Registry    *prometheus.Registry
	Metrics     *metrics.Metrics
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	catalog := dataset.NewCatalog(cfg.DatasetsDir)
	transcoder := audio.NewFFmpegTranscoder(cfg.FFmpegPath)

	svc := take.NewService(
		take.NewMemoryRepository(),
		catalog,
		transcoder,
		store,
		logger,
		take.WithThreshold(cfg.SilenceThreshold),
		take.WithMetrics(m),
	)

	return &Dependencies{
		TakeService: svc,
		Registry:    registry,
		Metrics:     m,
	}, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Prefix:          cfg.S3Prefix,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 dataset mirror configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
			slog.String("prefix", cfg.S3Prefix),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", localStore.TempDir()),
	)
	return localStore, nil
}
