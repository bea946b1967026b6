package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/skypro1111/audio-transcription-service/internal/audio"
	"github.com/skypro1111/audio-transcription-service/internal/metrics"
	"github.com/skypro1111/audio-transcription-service/internal/output"
)

// failedChunkMarker replaces the text of a chunk that exhausted its retries.
// Substituting a visible gap marker keeps the surrounding chunks in their
// temporal positions instead of silently collapsing the transcript.
const failedChunkMarker = "[inaudible]"

// TranscriptionError is the aggregate failure surfaced to the caller. It
// wraps the underlying probe, chunking, upstream, or persistence error and
// carries the indices of chunks that failed, when any did.
type TranscriptionError struct {
	FailedChunks []int
	Err          error
}

func (e *TranscriptionError) Error() string {
	if len(e.FailedChunks) > 0 {
		return fmt.Sprintf("transcription failed (chunks %v): %v", e.FailedChunks, e.Err)
	}
	return fmt.Sprintf("transcription failed: %v", e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// Report is the terminal artifact of a pipeline run.
type Report struct {
	Transcription   string `json:"transcription"`
	ChunksProcessed int    `json:"chunks_processed"`
	ChunksFailed    int    `json:"chunks_failed"`
	OutputFile      string `json:"output_file"`
	FileSizeBytes   int64  `json:"file_size_bytes"`
	AudioDurationMS int64  `json:"audio_duration_ms"`
}

// ChunkResult holds the outcome of transcribing one chunk.
type ChunkResult struct {
	Index int
	Text  string
	Err   error
}

// Transcriber calls the external speech-to-text capability for one chunk.
type Transcriber interface {
	TranscribeChunk(ctx context.Context, chunk *audio.Chunk) (string, error)
}

// Config contains orchestrator configuration.
type Config struct {
	MaxChunkBytes int64 // upstream per-call payload limit
	Workers       int   // bound on concurrently dispatched chunks per request
}

// Stats represents aggregate pipeline statistics.
type Stats struct {
	Runs              uint64 `json:"runs_total"`
	Completed         uint64 `json:"completed"`
	PartialReports    uint64 `json:"partial_reports"`
	Failed            uint64 `json:"failed"`
	ChunksTranscribed uint64 `json:"chunks_transcribed"`
	ChunksFailed      uint64 `json:"chunks_failed"`
}

// Orchestrator runs the transcription pipeline. It holds only read-only
// configuration and shared collaborators; every Process call is independent.
type Orchestrator struct {
	config      Config
	transcriber Transcriber
	writer      output.Writer
	logger      *slog.Logger
	metrics     *metrics.Metrics

	stats Stats
	mu    sync.RWMutex
}

// NewOrchestrator creates a pipeline orchestrator.
func NewOrchestrator(config Config, transcriber Transcriber, writer output.Writer, logger *slog.Logger, m *metrics.Metrics) (*Orchestrator, error) {
	if config.MaxChunkBytes <= 0 {
		return nil, fmt.Errorf("max chunk bytes must be positive, got %d", config.MaxChunkBytes)
	}
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if transcriber == nil {
		return nil, fmt.Errorf("transcriber is required")
	}
	if writer == nil {
		return nil, fmt.Errorf("output writer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		config:      config,
		transcriber: transcriber,
		writer:      writer,
		logger:      logger,
		metrics:     m,
	}, nil
}

// Process transcribes one uploaded asset and returns its report.
//
// Assets at or under the upstream limit take the single-shot path and bypass
// the chunker entirely. Larger assets are split, dispatched with bounded
// parallelism, and merged strictly by chunk index, so completion order never
// affects output order.
//
// Partial-failure policy: chunks that exhaust their retries are replaced by a
// gap marker and counted in chunks_failed; the run still completes. Only a
// total failure (every chunk failed), a fatal probe/chunking error, a
// cancelled context, or a persistence failure aborts the run.
func (o *Orchestrator) Process(ctx context.Context, asset *audio.Asset) (*Report, error) {
	start := time.Now()
	o.recordRun()

	o.logger.Info("transcription pipeline started",
		slog.Int64("file_size_bytes", asset.SizeBytes),
		slog.String("content_type", asset.ContentType),
	)

	report, err := o.process(ctx, asset)
	duration := time.Since(start)

	if err != nil {
		o.recordFailure()
		if o.metrics != nil {
			o.metrics.RecordPipelineRun("failed", duration.Seconds())
		}
		o.logger.Error("transcription pipeline failed",
			slog.Duration("duration", duration),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	o.recordCompletion(report)
	if o.metrics != nil {
		outcome := "completed"
		if report.ChunksFailed > 0 {
			outcome = "degraded"
		}
		o.metrics.RecordPipelineRun(outcome, duration.Seconds())
	}
	o.logger.Info("transcription pipeline completed",
		slog.Duration("duration", duration),
		slog.Int("chunks_processed", report.ChunksProcessed),
		slog.Int("chunks_failed", report.ChunksFailed),
		slog.String("output_file", report.OutputFile),
	)

	return report, nil
}

func (o *Orchestrator) process(ctx context.Context, asset *audio.Asset) (*Report, error) {
	info, err := asset.Probe()
	if err != nil {
		return nil, &TranscriptionError{Err: err}
	}

	var chunks []audio.Chunk
	if asset.SizeBytes <= o.config.MaxChunkBytes {
		// Fast path: the whole asset fits in a single upstream call.
		chunks = []audio.Chunk{{Index: 0, DurationMS: info.DurationMS, Data: asset.Data}}
	} else {
		chunks, err = audio.Split(asset, info, o.config.MaxChunkBytes)
		if err != nil {
			return nil, &TranscriptionError{Err: err}
		}
		if o.metrics != nil {
			for i := range chunks {
				o.metrics.RecordChunkGenerated(float64(chunks[i].DurationMS)/1000, len(chunks[i].Data))
			}
		}
	}

	results := o.transcribeAll(ctx, chunks)
	if ctx.Err() != nil {
		return nil, &TranscriptionError{Err: ctx.Err()}
	}

	var failed []int
	var firstErr error
	texts := make([]string, len(results))
	for _, res := range results {
		if res.Err != nil {
			failed = append(failed, res.Index)
			if firstErr == nil {
				firstErr = res.Err
			}
			texts[res.Index] = failedChunkMarker
			continue
		}
		texts[res.Index] = res.Text
	}

	if len(failed) == len(chunks) {
		return nil, &TranscriptionError{FailedChunks: failed, Err: firstErr}
	}

	transcript := strings.Join(texts, " ")

	outputFile, err := o.writer.Write(ctx, transcript)
	if err != nil {
		// The transcript was computed; only persistence failed. The wrapped
		// cause stays reachable so the caller can report this distinctly.
		return nil, &TranscriptionError{Err: err}
	}

	return &Report{
		Transcription:   transcript,
		ChunksProcessed: len(chunks),
		ChunksFailed:    len(failed),
		OutputFile:      outputFile,
		FileSizeBytes:   asset.SizeBytes,
		AudioDurationMS: info.DurationMS,
	}, nil
}

// transcribeAll dispatches chunks to the transcriber with at most Workers
// in flight. Results land in a slice position equal to their chunk index, so
// the merge is ordered no matter when each call finishes.
func (o *Orchestrator) transcribeAll(ctx context.Context, chunks []audio.Chunk) []ChunkResult {
	results := make([]ChunkResult, len(chunks))
	sem := make(chan struct{}, o.config.Workers)
	var wg sync.WaitGroup

	for i := range chunks {
		if ctx.Err() != nil {
			results[chunks[i].Index] = ChunkResult{Index: chunks[i].Index, Err: ctx.Err()}
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(chunk *audio.Chunk) {
			defer wg.Done()
			defer func() { <-sem }()

			text, err := o.transcriber.TranscribeChunk(ctx, chunk)
			results[chunk.Index] = ChunkResult{Index: chunk.Index, Text: text, Err: err}
		}(&chunks[i])
	}

	wg.Wait()
	return results
}

func (o *Orchestrator) recordRun() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stats.Runs++
}

func (o *Orchestrator) recordFailure() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stats.Failed++
}

func (o *Orchestrator) recordCompletion(report *Report) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stats.Completed++
	if report.ChunksFailed > 0 {
		o.stats.PartialReports++
	}
	o.stats.ChunksTranscribed += uint64(report.ChunksProcessed - report.ChunksFailed)
	o.stats.ChunksFailed += uint64(report.ChunksFailed)
}

// GetStats returns aggregate pipeline statistics.
func (o *Orchestrator) GetStats() Stats {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.stats
}
