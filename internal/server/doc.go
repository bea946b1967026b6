// Package server implements the HTTP API: the authenticated transcription
// upload endpoint, login, and the health, config, stats, and Prometheus
// monitoring endpoints. It maps pipeline error kinds onto distinct HTTP
// statuses.
package server
