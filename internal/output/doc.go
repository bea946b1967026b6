// Package output persists final transcripts. Each successful transcription
// produces exactly one text object with a timestamped, unique name, written
// either to a local directory or to S3-compatible object storage.
package output
