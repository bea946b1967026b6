package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skypro1111/audio-transcription-service/internal/audio"
	"github.com/skypro1111/audio-transcription-service/internal/auth"
	"github.com/skypro1111/audio-transcription-service/internal/config"
	"github.com/skypro1111/audio-transcription-service/internal/metrics"
	"github.com/skypro1111/audio-transcription-service/internal/output"
	"github.com/skypro1111/audio-transcription-service/internal/pipeline"
	"github.com/skypro1111/audio-transcription-service/internal/transcription"
)

// Pipeline is the transcription pipeline as seen by the HTTP layer.
type Pipeline interface {
	Process(ctx context.Context, asset *audio.Asset) (*pipeline.Report, error)
	GetStats() pipeline.Stats
}

// Server provides the HTTP API for the transcription service.
type Server struct {
	server        *http.Server
	logger        *slog.Logger
	config        *config.Config
	pipeline      Pipeline
	auth          *auth.Service
	metrics       *metrics.Metrics
	upstreamStats func() transcription.Stats

	startTime time.Time
}

// New creates the HTTP API server. upstreamStats may be nil when no upstream
// client statistics are available.
func New(cfg *config.Config, logger *slog.Logger, pl Pipeline, authSvc *auth.Service,
	m *metrics.Metrics, upstreamStats func() transcription.Stats) *Server {

	s := &Server{
		logger:        logger,
		config:        cfg,
		pipeline:      pl,
		auth:          authSvc,
		metrics:       m,
		upstreamStats: upstreamStats,
		startTime:     time.Now(),
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port),
		Handler:      s.Routes(),
		ReadTimeout:  cfg.Server.GetReadTimeout(),
		WriteTimeout: cfg.Server.GetWriteTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Routes builds the router with all endpoints and middleware.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))
	r.Use(s.instrument)

	r.Post("/auth/login", s.handleLogin)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(pr chi.Router) {
		pr.Use(s.requireAuth)

		pr.With(httprate.LimitByIP(s.config.Server.RateLimitPerMinute, time.Minute)).
			Post("/v1/transcriptions", s.handleTranscribe)
		pr.Get("/config", s.handleConfig)
		pr.Get("/stats", s.handleStats)
	})

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", slog.String("address", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// instrument logs every request with its caller, masked credential, duration,
// and outcome, and records HTTP metrics.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(ww, r)

		duration := time.Since(startTime)
		endpoint := chi.RouteContext(r.Context()).RoutePattern()
		if endpoint == "" {
			endpoint = r.URL.Path
		}

		s.logger.Info("request",
			slog.String("method", r.Method),
			slog.String("endpoint", endpoint),
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("token", maskToken(r.Header.Get("Authorization"))),
			slog.Int("status", ww.statusCode),
			slog.Duration("duration", duration),
		)

		statusCode := fmt.Sprintf("%d", ww.statusCode)
		s.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration.Seconds())
		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			s.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// maskToken hides all but the last four characters of a bearer credential.
func maskToken(header string) string {
	if header == "" {
		return "none"
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if len(token) <= 4 {
		return "****"
	}
	return "***" + token[len(token)-4:]
}

// requireAuth rejects requests without a valid bearer token.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			w.Header().Set("WWW-Authenticate", "Bearer")
			s.writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		token := strings.TrimPrefix(header, "Bearer ")
		if _, err := s.auth.Verify(token); err != nil {
			w.Header().Set("WWW-Authenticate", "Bearer")
			s.writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleLogin implements POST /auth/login.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	token, err := s.auth.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"access_token": token,
		"token_type":   "bearer",
	})
}

// handleTranscribe implements POST /v1/transcriptions. It accepts the audio
// either as a multipart form with a "file" field or as the raw request body.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.Upload.MaxUploadBytes)

	data, contentType, err := readUpload(r)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds the %d byte limit", s.config.Upload.MaxUploadBytes))
			return
		}
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(data) == 0 {
		s.writeError(w, http.StatusBadRequest, "empty upload")
		return
	}

	s.metrics.RecordUpload(int64(len(data)))

	report, err := s.pipeline.Process(r.Context(), audio.NewAsset(data, contentType))
	if err != nil {
		s.writePipelineError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, report)
}

// readUpload extracts the audio bytes and declared content type from the
// request.
func readUpload(r *http.Request) ([]byte, string, error) {
	mediaType := r.Header.Get("Content-Type")

	if strings.HasPrefix(mediaType, "multipart/form-data") {
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, "", fmt.Errorf("missing multipart field 'file': %w", err)
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return nil, "", fmt.Errorf("read upload: %w", err)
		}
		return data, header.Header.Get("Content-Type"), nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read upload: %w", err)
	}
	return data, mediaType, nil
}

// writePipelineError maps each pipeline error kind to a distinct status and
// message.
func (s *Server) writePipelineError(w http.ResponseWriter, err error) {
	var probeErr *audio.ProbeError
	var chunkErr *audio.ChunkingError
	var persistErr *output.PersistenceError
	var aggErr *pipeline.TranscriptionError

	switch {
	case errors.As(err, &probeErr):
		s.writeError(w, http.StatusUnprocessableEntity, "unrecognized or corrupt audio: "+probeErr.Reason)
	case errors.As(err, &chunkErr):
		s.writeError(w, http.StatusUnprocessableEntity, chunkErr.Error())
	case errors.As(err, &persistErr):
		// The transcript was computed; only the write failed. Callers must be
		// able to tell this apart from a transcription failure.
		s.writeError(w, http.StatusInsufficientStorage, "transcript computed but not saved: "+persistErr.Error())
	case errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusGatewayTimeout, "transcription timed out")
	case errors.As(err, &aggErr):
		msg := "transcription failed"
		if len(aggErr.FailedChunks) > 0 {
			msg = fmt.Sprintf("transcription failed for chunks %v", aggErr.FailedChunks)
		}
		s.writeError(w, http.StatusBadGateway, msg)
	default:
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// handleHealth implements GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(s.startTime).String(),
		"service": map[string]interface{}{
			"name":    "audio-transcription-service",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"pipeline": s.pipeline.GetStats(),
		},
	}
	if s.upstreamStats != nil {
		health["components"].(map[string]interface{})["upstream"] = s.upstreamStats()
	}

	s.writeJSON(w, http.StatusOK, health)
}

// handleConfig implements GET /config. Secrets are omitted.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	sanitized := map[string]interface{}{
		"server": map[string]interface{}{
			"port":                  s.config.Server.Port,
			"address":               s.config.Server.Address,
			"rate_limit_per_minute": s.config.Server.RateLimitPerMinute,
		},
		"upload": map[string]interface{}{
			"max_upload_bytes": s.config.Upload.MaxUploadBytes,
		},
		"pipeline": map[string]interface{}{
			"max_chunk_bytes": s.config.Pipeline.MaxChunkBytes,
			"workers":         s.config.Pipeline.Workers,
		},
		"transcription": map[string]interface{}{
			"model":          s.config.Transcription.Model,
			"language":       s.config.Transcription.Language,
			"timeout":        s.config.Transcription.Timeout,
			"max_retries":    s.config.Transcription.MaxRetries,
			"max_concurrent": s.config.Transcription.MaxConcurrent,
			// API key intentionally omitted
		},
		"output": map[string]interface{}{
			"backend": s.config.Output.Backend,
			"dir":     s.config.Output.Dir,
		},
		"logging": map[string]interface{}{
			"level":  s.config.Logging.Level,
			"format": s.config.Logging.Format,
			"output": s.config.Logging.Output,
		},
	}

	s.writeJSON(w, http.StatusOK, sanitized)
}

// handleStats implements GET /stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"uptime":    time.Since(s.startTime).String(),
		"timestamp": time.Now().UTC(),
		"pipeline":  s.pipeline.GetStats(),
	}
	if s.upstreamStats != nil {
		stats["upstream"] = s.upstreamStats()
	}

	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", slog.String("error", err.Error()))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
