// Package audio handles inspection and chunking of uploaded audio assets.
// It parses WAV (RIFF PCM) headers to probe size and duration without decoding
// samples, and splits oversized assets into ordered, independently decodable
// WAV chunks whose encoded size stays under the upstream payload limit.
package audio
