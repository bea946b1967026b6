// Package auth issues and verifies the bearer tokens that protect the
// transcription API. Login checks credentials against a bcrypt hash and
// returns a signed JWT; Verify validates presented tokens.
package auth
