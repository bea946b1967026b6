package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"

	"github.com/skypro1111/audio-transcription-service/internal/audio"
	"github.com/skypro1111/audio-transcription-service/internal/auth"
	"github.com/skypro1111/audio-transcription-service/internal/config"
	"github.com/skypro1111/audio-transcription-service/internal/metrics"
	"github.com/skypro1111/audio-transcription-service/internal/output"
	"github.com/skypro1111/audio-transcription-service/internal/pipeline"
)

// stubPipeline returns a canned report or error and records the asset it saw.
type stubPipeline struct {
	report *pipeline.Report
	err    error
	asset  *audio.Asset
}

func (p *stubPipeline) Process(ctx context.Context, asset *audio.Asset) (*pipeline.Report, error) {
	p.asset = asset
	if p.err != nil {
		return nil, p.err
	}
	return p.report, nil
}

func (p *stubPipeline) GetStats() pipeline.Stats { return pipeline.Stats{Runs: 7} }

func testServerConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:               8080,
			Address:            "127.0.0.1",
			ReadTimeout:        5,
			WriteTimeout:       5,
			RateLimitPerMinute: 100,
		},
		Upload:   config.UploadConfig{MaxUploadBytes: 1 << 20},
		Pipeline: config.PipelineConfig{MaxChunkBytes: 26214400, Workers: 4},
		Transcription: config.TranscriptionConfig{
			APIKey: "sk-test", Model: "whisper-1", Timeout: 30, MaxRetries: 3, MaxConcurrent: 4,
		},
		Output:  config.OutputConfig{Backend: "file", Dir: "./out"},
		Auth:    config.AuthConfig{Secret: "test-secret", Username: "operator", PasswordHash: "set-below", TokenTTLMinutes: 60},
		Logging: config.LoggingConfig{Level: "info", Format: "text"},
	}
}

type serverFixture struct {
	handler http.Handler
	auth    *auth.Service
	pl      *stubPipeline
}

func newFixture(t *testing.T, pl *stubPipeline) *serverFixture {
	t.Helper()

	cfg := testServerConfig()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt.GenerateFromPassword failed: %v", err)
	}
	cfg.Auth.PasswordHash = string(hash)

	authSvc, err := auth.NewService(auth.Config{
		Secret:       cfg.Auth.Secret,
		Username:     cfg.Auth.Username,
		PasswordHash: cfg.Auth.PasswordHash,
		TokenTTL:     cfg.Auth.GetTokenTTL(),
	})
	if err != nil {
		t.Fatalf("auth.NewService failed: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New(prometheus.NewRegistry())

	s := New(cfg, logger, pl, authSvc, m, nil)
	return &serverFixture{handler: s.Routes(), auth: authSvc, pl: pl}
}

func (f *serverFixture) token(t *testing.T) string {
	t.Helper()

	token, err := f.auth.Login("operator", "correct horse")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	return token
}

func (f *serverFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestLoginIssuesToken(t *testing.T) {
	f := newFixture(t, &stubPipeline{})

	body := `{"username": "operator", "password": "correct horse"}`
	rec := f.do(httptest.NewRequest("POST", "/auth/login", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid JSON response: %v", err)
	}
	if resp["access_token"] == "" {
		t.Error("Expected a non-empty access_token")
	}
	if resp["token_type"] != "bearer" {
		t.Errorf("Expected token_type 'bearer', got %q", resp["token_type"])
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newFixture(t, &stubPipeline{})

	body := `{"username": "operator", "password": "wrong"}`
	rec := f.do(httptest.NewRequest("POST", "/auth/login", strings.NewReader(body)))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rec.Code)
	}
}

func TestProtectedEndpointsRequireToken(t *testing.T) {
	f := newFixture(t, &stubPipeline{})

	for _, tt := range []struct {
		method string
		path   string
	}{
		{"POST", "/v1/transcriptions"},
		{"GET", "/config"},
		{"GET", "/stats"},
	} {
		rec := f.do(httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without token: expected 401, got %d", tt.method, tt.path, rec.Code)
		}
	}

	req := httptest.NewRequest("GET", "/stats", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	if rec := f.do(req); rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for a garbage token, got %d", rec.Code)
	}
}

func TestHealthIsPublic(t *testing.T) {
	f := newFixture(t, &stubPipeline{})

	rec := f.do(httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var health map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("Invalid JSON response: %v", err)
	}
	if health["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", health["status"])
	}
}

func TestTranscribeRawBody(t *testing.T) {
	pl := &stubPipeline{report: &pipeline.Report{
		Transcription:   "hello world",
		ChunksProcessed: 3,
		ChunksFailed:    0,
		OutputFile:      "transcript_x.txt",
		FileSizeBytes:   1234,
		AudioDurationMS: 60000,
	}}
	f := newFixture(t, pl)

	req := httptest.NewRequest("POST", "/v1/transcriptions", bytes.NewReader([]byte("fake wav bytes")))
	req.Header.Set("Content-Type", "audio/wav")
	req.Header.Set("Authorization", "Bearer "+f.token(t))

	rec := f.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var report pipeline.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("Invalid JSON response: %v", err)
	}
	if report.Transcription != "hello world" || report.ChunksProcessed != 3 {
		t.Errorf("Unexpected report: %+v", report)
	}
	if report.OutputFile != "transcript_x.txt" {
		t.Errorf("Unexpected output file: %q", report.OutputFile)
	}

	if pl.asset == nil {
		t.Fatal("Pipeline never received the asset")
	}
	if pl.asset.ContentType != "audio/wav" {
		t.Errorf("Expected content type 'audio/wav', got %q", pl.asset.ContentType)
	}
	if !bytes.Equal(pl.asset.Data, []byte("fake wav bytes")) {
		t.Error("Asset bytes differ from the uploaded body")
	}
}

func TestTranscribeMultipartUpload(t *testing.T) {
	pl := &stubPipeline{report: &pipeline.Report{Transcription: "ok", ChunksProcessed: 1}}
	f := newFixture(t, pl)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "meeting.wav")
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	if _, err := fw.Write([]byte("multipart wav bytes")); err != nil {
		t.Fatalf("Writing form file failed: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest("POST", "/v1/transcriptions", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+f.token(t))

	rec := f.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if pl.asset == nil || !bytes.Equal(pl.asset.Data, []byte("multipart wav bytes")) {
		t.Error("Asset bytes differ from the uploaded form file")
	}
}

func TestTranscribeRejectsEmptyBody(t *testing.T) {
	f := newFixture(t, &stubPipeline{})

	req := httptest.NewRequest("POST", "/v1/transcriptions", nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t))

	if rec := f.do(req); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an empty upload, got %d", rec.Code)
	}
}

func TestTranscribeRejectsOversizeUpload(t *testing.T) {
	f := newFixture(t, &stubPipeline{})

	big := bytes.Repeat([]byte("a"), int(testServerConfig().Upload.MaxUploadBytes)+1)
	req := httptest.NewRequest("POST", "/v1/transcriptions", bytes.NewReader(big))
	req.Header.Set("Content-Type", "audio/wav")
	req.Header.Set("Authorization", "Bearer "+f.token(t))

	if rec := f.do(req); rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected 413 for an oversize upload, got %d", rec.Code)
	}
}

func TestTranscribeErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{
			name:       "corrupt audio",
			err:        &pipeline.TranscriptionError{Err: &audio.ProbeError{Reason: "not a RIFF container"}},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "unsplittable audio",
			err:        &pipeline.TranscriptionError{Err: &audio.ChunkingError{Reason: "duration unknown"}},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "persistence failure",
			err:        &pipeline.TranscriptionError{Err: &output.PersistenceError{Destination: "/out/x.txt", Err: errors.New("disk full")}},
			wantStatus: http.StatusInsufficientStorage,
		},
		{
			name:       "timeout",
			err:        &pipeline.TranscriptionError{Err: context.DeadlineExceeded},
			wantStatus: http.StatusGatewayTimeout,
		},
		{
			name:       "total transcription failure",
			err:        &pipeline.TranscriptionError{FailedChunks: []int{0, 1}, Err: errors.New("upstream down")},
			wantStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, &stubPipeline{err: tt.err})

			req := httptest.NewRequest("POST", "/v1/transcriptions", strings.NewReader("bytes"))
			req.Header.Set("Content-Type", "audio/wav")
			req.Header.Set("Authorization", "Bearer "+f.token(t))

			rec := f.do(req)
			if rec.Code != tt.wantStatus {
				t.Errorf("Expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}

			var resp map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("Invalid JSON error response: %v", err)
			}
			if resp["error"] == "" {
				t.Error("Expected a non-empty error message")
			}
		})
	}
}

func TestConfigEndpointOmitsSecrets(t *testing.T) {
	f := newFixture(t, &stubPipeline{})

	req := httptest.NewRequest("GET", "/config", nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t))

	rec := f.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	body := rec.Body.String()
	for _, secret := range []string{"sk-test", "test-secret", "$2a$"} {
		if strings.Contains(body, secret) {
			t.Errorf("Config response leaks secret %q", secret)
		}
	}
	if !strings.Contains(body, "max_chunk_bytes") {
		t.Error("Expected pipeline settings in the config response")
	}
}

func TestStatsEndpoint(t *testing.T) {
	f := newFixture(t, &stubPipeline{})

	req := httptest.NewRequest("GET", "/stats", nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t))

	rec := f.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var stats map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("Invalid JSON response: %v", err)
	}
	pipelineStats, ok := stats["pipeline"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected pipeline stats object, got %T", stats["pipeline"])
	}
	if pipelineStats["runs_total"] != float64(7) {
		t.Errorf("Expected 7 runs, got %v", pipelineStats["runs_total"])
	}
}

func TestMaskToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"", "none"},
		{"Bearer abc", "****"},
		{"Bearer abcdefgh", "***efgh"},
	}

	for _, tt := range tests {
		if got := maskToken(tt.header); got != tt.want {
			t.Errorf("maskToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}
