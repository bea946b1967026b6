// Package transcription implements the client for the upstream speech-to-text
// API. It sends audio chunks to the OpenAI transcription endpoint, retries
// transient failures with exponential backoff, and bounds concurrent upstream
// calls with a semaphore so parallel requests cannot exceed the API's rate
// limits.
package transcription
