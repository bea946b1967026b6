// Package pipeline drives the end-to-end transcription flow: probe the
// uploaded asset, pick the single-shot or chunked path, dispatch chunks to
// the upstream client with bounded parallelism, merge results in chunk index
// order, and persist the final transcript.
package pipeline
