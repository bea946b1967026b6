package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Upload        UploadConfig        `yaml:"upload"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Output        OutputConfig        `yaml:"output"`
	Auth          AuthConfig          `yaml:"auth"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port               int    `yaml:"port"`
	Address            string `yaml:"address"`
	ReadTimeout        int    `yaml:"read_timeout"`  // seconds
	WriteTimeout       int    `yaml:"write_timeout"` // seconds
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
}

// UploadConfig contains inbound upload limits.
type UploadConfig struct {
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// PipelineConfig contains transcription pipeline parameters.
type PipelineConfig struct {
	MaxChunkBytes int64 `yaml:"max_chunk_bytes"` // upstream per-call payload limit
	Workers       int   `yaml:"workers"`
}

// TranscriptionConfig contains upstream speech-to-text API configuration.
type TranscriptionConfig struct {
	BaseURL       string `yaml:"base_url"`
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	Language      string `yaml:"language"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxRetries    int    `yaml:"max_retries"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// OutputConfig contains transcript persistence configuration.
type OutputConfig struct {
	Backend string   `yaml:"backend"` // "file" or "s3"
	Dir     string   `yaml:"dir"`
	S3      S3Config `yaml:"s3"`
}

// S3Config contains object-storage configuration for the s3 backend.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Prefix    string `yaml:"prefix"`
	Secure    bool   `yaml:"secure"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// AuthConfig contains authentication configuration.
type AuthConfig struct {
	Secret          string `yaml:"secret"`
	Username        string `yaml:"username"`
	PasswordHash    string `yaml:"password_hash"`
	TokenTTLMinutes int    `yaml:"token_ttl_minutes"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads the configuration file, applies environment overrides for
// secrets, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// applyEnv overrides secret values from the environment so they never need
// to live in the YAML file.
func (c *Config) applyEnv() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Transcription.APIKey = v
	}
	if v := os.Getenv("AUTH_SECRET"); v != "" {
		c.Auth.Secret = v
	}
	if v := os.Getenv("AUTH_PASSWORD_HASH"); v != "" {
		c.Auth.PasswordHash = v
	}
	if v := os.Getenv("S3_ACCESS_KEY"); v != "" {
		c.Output.S3.AccessKey = v
	}
	if v := os.Getenv("S3_SECRET_KEY"); v != "" {
		c.Output.S3.SecretKey = v
	}
}

// Validate performs validation of the full configuration.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := c.Upload.Validate(); err != nil {
		return fmt.Errorf("upload config: %w", err)
	}
	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline config: %w", err)
	}
	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}
	if err := c.Output.Validate(); err != nil {
		return fmt.Errorf("output config: %w", err)
	}
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

// Validate validates server configuration.
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}
	if s.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if s.ReadTimeout < 1 {
		return fmt.Errorf("read_timeout must be at least 1 second, got %d", s.ReadTimeout)
	}
	if s.WriteTimeout < 1 {
		return fmt.Errorf("write_timeout must be at least 1 second, got %d", s.WriteTimeout)
	}
	if s.RateLimitPerMinute < 1 {
		return fmt.Errorf("rate_limit_per_minute must be at least 1, got %d", s.RateLimitPerMinute)
	}
	return nil
}

// Validate validates upload configuration.
func (u *UploadConfig) Validate() error {
	if u.MaxUploadBytes < 1024 {
		return fmt.Errorf("max_upload_bytes must be at least 1024, got %d", u.MaxUploadBytes)
	}
	return nil
}

// Validate validates pipeline configuration.
func (p *PipelineConfig) Validate() error {
	if p.MaxChunkBytes < 1024 {
		return fmt.Errorf("max_chunk_bytes must be at least 1024, got %d", p.MaxChunkBytes)
	}
	if p.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", p.Workers)
	}
	return nil
}

// Validate validates transcription configuration.
func (t *TranscriptionConfig) Validate() error {
	if t.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty (set OPENAI_API_KEY)")
	}
	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}
	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}
	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}
	return nil
}

// Validate validates output configuration.
func (o *OutputConfig) Validate() error {
	switch o.Backend {
	case "file":
		if o.Dir == "" {
			return fmt.Errorf("dir cannot be empty for the file backend")
		}
	case "s3":
		if o.S3.Endpoint == "" {
			return fmt.Errorf("s3 endpoint cannot be empty")
		}
		if o.S3.Bucket == "" {
			return fmt.Errorf("s3 bucket cannot be empty")
		}
		if o.S3.AccessKey == "" || o.S3.SecretKey == "" {
			return fmt.Errorf("s3 credentials cannot be empty (set S3_ACCESS_KEY and S3_SECRET_KEY)")
		}
	default:
		return fmt.Errorf("backend must be 'file' or 's3', got '%s'", o.Backend)
	}
	return nil
}

// Validate validates auth configuration.
func (a *AuthConfig) Validate() error {
	if a.Secret == "" {
		return fmt.Errorf("secret cannot be empty (set AUTH_SECRET)")
	}
	if a.Username == "" {
		return fmt.Errorf("username cannot be empty")
	}
	if a.PasswordHash == "" {
		return fmt.Errorf("password_hash cannot be empty (set AUTH_PASSWORD_HASH)")
	}
	if a.TokenTTLMinutes < 1 {
		return fmt.Errorf("token_ttl_minutes must be at least 1, got %d", a.TokenTTLMinutes)
	}
	return nil
}

// Validate validates logging configuration.
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetReadTimeout returns the server read timeout as a time.Duration.
func (s *ServerConfig) GetReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// GetWriteTimeout returns the server write timeout as a time.Duration.
func (s *ServerConfig) GetWriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration.
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetTokenTTL returns the auth token lifetime as a time.Duration.
func (a *AuthConfig) GetTokenTTL() time.Duration {
	return time.Duration(a.TokenTTLMinutes) * time.Minute
}
