package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/skypro1111/audio-transcription-service/internal/auth"
	"github.com/skypro1111/audio-transcription-service/internal/config"
	"github.com/skypro1111/audio-transcription-service/internal/metrics"
	"github.com/skypro1111/audio-transcription-service/internal/output"
	"github.com/skypro1111/audio-transcription-service/internal/pipeline"
	"github.com/skypro1111/audio-transcription-service/internal/server"
	"github.com/skypro1111/audio-transcription-service/internal/transcription"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "audio-transcription-service"
	serviceVersion    = "1.0.0"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Secrets come from the environment; a local .env is optional.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)
	logger.Info("configuration loaded",
		slog.Int("http_port", cfg.Server.Port),
		slog.String("bind_address", cfg.Server.Address),
		slog.Int64("max_upload_bytes", cfg.Upload.MaxUploadBytes),
		slog.Int64("max_chunk_bytes", cfg.Pipeline.MaxChunkBytes),
		slog.Int("pipeline_workers", cfg.Pipeline.Workers),
		slog.String("transcription_model", cfg.Transcription.Model),
		slog.String("output_backend", cfg.Output.Backend),
		slog.String("log_level", cfg.Logging.Level),
	)

	appMetrics := metrics.New(prometheus.DefaultRegisterer)

	writer, err := newWriter(cfg.Output)
	if err != nil {
		logger.Error("failed to create output writer", slog.String("error", err.Error()))
		os.Exit(1)
	}

	client, err := transcription.NewClient(transcription.Config{
		BaseURL:       cfg.Transcription.BaseURL,
		APIKey:        cfg.Transcription.APIKey,
		Model:         cfg.Transcription.Model,
		Language:      cfg.Transcription.Language,
		Timeout:       cfg.Transcription.GetTimeoutDuration(),
		MaxRetries:    cfg.Transcription.MaxRetries,
		MaxConcurrent: cfg.Transcription.MaxConcurrent,
	})
	if err != nil {
		logger.Error("failed to create transcription client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	orchestrator, err := pipeline.NewOrchestrator(pipeline.Config{
		MaxChunkBytes: cfg.Pipeline.MaxChunkBytes,
		Workers:       cfg.Pipeline.Workers,
	}, client, writer, logger, appMetrics)
	if err != nil {
		logger.Error("failed to create pipeline orchestrator", slog.String("error", err.Error()))
		os.Exit(1)
	}

	authService, err := auth.NewService(auth.Config{
		Secret:       cfg.Auth.Secret,
		Username:     cfg.Auth.Username,
		PasswordHash: cfg.Auth.PasswordHash,
		TokenTTL:     cfg.Auth.GetTokenTTL(),
	})
	if err != nil {
		logger.Error("failed to create auth service", slog.String("error", err.Error()))
		os.Exit(1)
	}

	httpServer := server.New(cfg, logger, orchestrator, authService, appMetrics, client.GetStats)
	if err := httpServer.Start(); err != nil {
		logger.Error("failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("service started",
		slog.String("http_address", fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)),
	)

	sig := <-sigChan
	logger.Info("received shutdown signal", slog.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("error stopping HTTP server", slog.String("error", err.Error()))
	}

	stats := orchestrator.GetStats()
	logger.Info("final pipeline statistics",
		slog.Uint64("runs", stats.Runs),
		slog.Uint64("completed", stats.Completed),
		slog.Uint64("partial_reports", stats.PartialReports),
		slog.Uint64("failed", stats.Failed),
		slog.Uint64("chunks_transcribed", stats.ChunksTranscribed),
		slog.Uint64("chunks_failed", stats.ChunksFailed),
	)

	logger.Info("service stopped")
}

// newWriter selects the transcript persistence backend.
func newWriter(cfg config.OutputConfig) (output.Writer, error) {
	switch cfg.Backend {
	case "s3":
		return output.NewS3Writer(output.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Prefix:    cfg.S3.Prefix,
			Secure:    cfg.S3.Secure,
		})
	default:
		return output.NewFileWriter(cfg.Dir)
	}
}

// initLogger creates the structured logger from configuration.
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var out *os.File
	switch cfg.Output {
	case "stderr":
		out = os.Stderr
	case "stdout", "":
		out = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			out = os.Stdout
		} else {
			out = file
		}
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler)
}
