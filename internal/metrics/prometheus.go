// Package metrics exposes Prometheus instrumentation for the transcription
// service: upload volume, chunking behavior, pipeline outcomes, and HTTP API
// traffic.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the transcription service.
type Metrics struct {
	// Upload metrics
	UploadsReceived prometheus.Counter
	UploadSizeBytes prometheus.Histogram

	// Chunking metrics
	ChunksGenerated prometheus.Counter
	ChunkDuration   prometheus.Histogram
	ChunkSize       prometheus.Histogram

	// Pipeline metrics
	PipelineRuns     *prometheus.CounterVec
	PipelineDuration prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// New creates all service metrics and registers them with the given
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		UploadsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "ats_uploads_received_total",
			Help: "Total number of audio uploads received",
		}),
		UploadSizeBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ats_upload_size_bytes",
			Help:    "Size of uploaded audio assets in bytes",
			Buckets: prometheus.ExponentialBuckets(64*1024, 2, 12), // 64KB to ~128MB
		}),

		ChunksGenerated: factory.NewCounter(prometheus.CounterOpts{
			Name: "ats_audio_chunks_generated_total",
			Help: "Total number of audio chunks generated",
		}),
		ChunkDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ats_chunk_duration_seconds",
			Help:    "Duration of generated audio chunks",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10s to ~3 hours
		}),
		ChunkSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ats_chunk_size_bytes",
			Help:    "Size of generated audio chunks in bytes",
			Buckets: prometheus.ExponentialBuckets(64*1024, 2, 10), // 64KB to ~32MB
		}),

		PipelineRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ats_pipeline_runs_total",
			Help: "Total number of pipeline runs by outcome",
		}, []string{"outcome"}),
		PipelineDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ats_pipeline_duration_seconds",
			Help:    "End-to-end duration of pipeline runs",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~7 minutes
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ats_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ats_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ats_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordUpload records a received audio upload.
func (m *Metrics) RecordUpload(sizeBytes int64) {
	m.UploadsReceived.Inc()
	m.UploadSizeBytes.Observe(float64(sizeBytes))
}

// RecordChunkGenerated records a generated audio chunk.
func (m *Metrics) RecordChunkGenerated(durationSeconds float64, sizeBytes int) {
	m.ChunksGenerated.Inc()
	m.ChunkDuration.Observe(durationSeconds)
	m.ChunkSize.Observe(float64(sizeBytes))
}

// RecordPipelineRun records a finished pipeline run. Outcome is one of
// "completed", "degraded", or "failed".
func (m *Metrics) RecordPipelineRun(outcome string, durationSeconds float64) {
	m.PipelineRuns.WithLabelValues(outcome).Inc()
	m.PipelineDuration.Observe(durationSeconds)
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error.
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
