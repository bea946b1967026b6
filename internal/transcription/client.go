package transcription

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/skypro1111/audio-transcription-service/internal/audio"
)

// UpstreamError reports a failed call to the speech-to-text API. Retryable
// marks transient conditions (timeouts, rate limits, 5xx) that are worth
// another attempt; auth failures and malformed audio are not.
type UpstreamError struct {
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *UpstreamError) Error() string {
	kind := "permanent"
	if e.Retryable {
		kind = "transient"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("upstream: %s failure (HTTP %d): %v", kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upstream: %s failure: %v", kind, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Config contains transcription client configuration.
type Config struct {
	BaseURL        string // override for the API base URL, empty for the default
	APIKey         string
	Model          string
	Language       string
	Timeout        time.Duration
	MaxRetries     int
	MaxConcurrent  int
	RetryBaseDelay time.Duration
}

// retryMaxDelay caps the exponential backoff between attempts.
const retryMaxDelay = 30 * time.Second

// Stats represents client statistics.
type Stats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	TotalRetries    uint64        `json:"total_retries"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ActiveRequests  int           `json:"active_requests"`
}

// Client calls the upstream speech-to-text API for single audio chunks.
// It keeps no per-call state between requests.
type Client struct {
	config    Config
	api       *openai.Client
	semaphore chan struct{}

	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	totalRetries    uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// NewClient creates a new transcription client.
func NewClient(config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}
	if config.Model == "" {
		config.Model = openai.Whisper1
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 3
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 4
	}
	if config.RetryBaseDelay <= 0 {
		config.RetryBaseDelay = time.Second
	}

	apiConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		apiConfig.BaseURL = config.BaseURL
	}
	apiConfig.HTTPClient = &http.Client{Timeout: config.Timeout}

	return &Client{
		config:    config,
		api:       openai.NewClientWithConfig(apiConfig),
		semaphore: make(chan struct{}, config.MaxConcurrent),
	}, nil
}

// TranscribeChunk sends one chunk for transcription and returns its text.
// Transient upstream failures are retried up to MaxRetries times with
// exponential backoff; permanent failures propagate immediately.
func (c *Client) TranscribeChunk(ctx context.Context, chunk *audio.Chunk) (string, error) {
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	startTime := time.Now()
	c.incrementTotalRequests()

	var lastErr *UpstreamError
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.incrementTotalRetries()

			backoff := c.config.RetryBaseDelay << (attempt - 1)
			if backoff > retryMaxDelay {
				backoff = retryMaxDelay
			}

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				c.incrementFailedRequests()
				return "", ctx.Err()
			}
		}

		text, err := c.doRequest(ctx, chunk)
		if err == nil {
			c.incrementSuccessRequests()
			c.updateAvgResponseTime(time.Since(startTime))
			return text, nil
		}
		if ctx.Err() != nil {
			c.incrementFailedRequests()
			return "", ctx.Err()
		}

		lastErr = classifyError(err)
		if !lastErr.Retryable {
			break
		}
	}

	c.incrementFailedRequests()
	return "", fmt.Errorf("chunk %d failed after %d attempts: %w", chunk.Index, c.config.MaxRetries+1, lastErr)
}

// doRequest performs a single upstream call for one chunk.
func (c *Client) doRequest(ctx context.Context, chunk *audio.Chunk) (string, error) {
	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.config.Model,
		Language: c.config.Language,
		Reader:   bytes.NewReader(chunk.Data),
		FilePath: fmt.Sprintf("chunk_%04d.wav", chunk.Index),
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// classifyError maps an upstream call failure onto the retryable/permanent
// taxonomy.
func classifyError(err error) *UpstreamError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &UpstreamError{
			StatusCode: apiErr.HTTPStatusCode,
			Retryable:  apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500,
			Err:        err,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &UpstreamError{
			StatusCode: reqErr.HTTPStatusCode,
			Retryable:  reqErr.HTTPStatusCode == 0 || reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500,
			Err:        err,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &UpstreamError{Retryable: true, Err: err}
	}

	// Transport-level failures (connection refused, resets) are transient.
	return &UpstreamError{Retryable: true, Err: err}
}

func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) incrementSuccessRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func (c *Client) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *Client) incrementTotalRetries() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRetries++
}

func (c *Client) updateAvgResponseTime(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current client statistics.
func (c *Client) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return Stats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		TotalRetries:    c.totalRetries,
		AvgResponseTime: c.avgResponseTime,
		ActiveRequests:  len(c.semaphore),
	}
}
