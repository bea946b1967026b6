// Package config provides configuration loading and validation for the audio
// transcription service. It handles YAML-based configuration with struct
// validation and overrides secrets from the environment.
package config
