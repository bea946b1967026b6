package audio

import (
	"math"
	"testing"
)

// makeTestWAV generates a mono PCM-16 sine-wave WAV of the given duration.
func makeTestWAV(t *testing.T, sampleRate int, durationSec float64) []byte {
	t.Helper()

	numSamples := int(float64(sampleRate) * durationSec)
	samples := make([]int16, numSamples)
	for i := 0; i < numSamples; i++ {
		ts := float64(i) / float64(sampleRate)
		samples[i] = int16(16383.0 * math.Sin(2*math.Pi*440.0*ts))
	}

	data, err := EncodeWAV(samples, sampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	return data
}

func TestEncodeWAV(t *testing.T) {
	sampleRate := 8000
	data := makeTestWAV(t, sampleRate, 0.1)

	numSamples := int(float64(sampleRate) * 0.1)
	expectedSize := wavHeaderSize + numSamples*2
	if len(data) != expectedSize {
		t.Errorf("Expected WAV size %d, got %d", expectedSize, len(data))
	}

	info, err := probeWAV(data)
	if err != nil {
		t.Fatalf("probeWAV rejected generated WAV: %v", err)
	}

	if info.SampleRate != sampleRate {
		t.Errorf("Expected sample rate %d, got %d", sampleRate, info.SampleRate)
	}
	if info.Channels != 1 {
		t.Errorf("Expected 1 channel, got %d", info.Channels)
	}
	if info.BitsPerSample != 16 {
		t.Errorf("Expected 16 bits per sample, got %d", info.BitsPerSample)
	}
	if info.DurationMS != 100 {
		t.Errorf("Expected duration 100ms, got %d", info.DurationMS)
	}
}

func TestEncodeWAVRejectsInvalidInput(t *testing.T) {
	if _, err := EncodeWAV(nil, 8000); err == nil {
		t.Error("Expected error for empty samples")
	}
	if _, err := EncodeWAV([]int16{1, 2, 3}, 0); err == nil {
		t.Error("Expected error for zero sample rate")
	}
}

func TestEncodeSegmentIsStandaloneWAV(t *testing.T) {
	whole := makeTestWAV(t, 8000, 1.0)

	info, err := probeWAV(whole)
	if err != nil {
		t.Fatalf("probeWAV failed: %v", err)
	}

	// Take the middle half second of frames.
	startByte := info.DataOffset + 4000*info.BlockAlign
	endByte := info.DataOffset + 8000*info.BlockAlign
	segment := encodeSegment(info, whole[startByte:endByte])

	segInfo, err := probeWAV(segment)
	if err != nil {
		t.Fatalf("segment is not independently decodable: %v", err)
	}
	if segInfo.DurationMS != 500 {
		t.Errorf("Expected segment duration 500ms, got %d", segInfo.DurationMS)
	}
	if segInfo.SampleRate != info.SampleRate {
		t.Errorf("Expected segment sample rate %d, got %d", info.SampleRate, segInfo.SampleRate)
	}
}
