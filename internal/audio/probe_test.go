package audio

import (
	"bytes"
	"errors"
	"testing"
)

func TestProbeValidAsset(t *testing.T) {
	data := makeTestWAV(t, 16000, 2.0)
	asset := NewAsset(data, "audio/wav")

	info, err := asset.Probe()
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}

	if info.SizeBytes != int64(len(data)) {
		t.Errorf("Expected size %d, got %d", len(data), info.SizeBytes)
	}
	if info.DurationMS != 2000 {
		t.Errorf("Expected duration 2000ms, got %d", info.DurationMS)
	}
	if info.BlockAlign != 2 {
		t.Errorf("Expected block align 2, got %d", info.BlockAlign)
	}
	if info.DataOffset != wavHeaderSize {
		t.Errorf("Expected data offset %d, got %d", wavHeaderSize, info.DataOffset)
	}
}

func TestProbeRejectsCorruptBuffers(t *testing.T) {
	valid := makeTestWAV(t, 8000, 0.5)

	tests := []struct {
		name string
		data []byte
	}{
		{
			name: "empty buffer",
			data: nil,
		},
		{
			name: "too short",
			data: []byte("RIFF"),
		},
		{
			name: "not audio",
			data: bytes.Repeat([]byte("definitely not a wav file "), 10),
		},
		{
			name: "wrong riff magic",
			data: append([]byte("JUNK"), valid[4:]...),
		},
		{
			name: "wrong wave magic",
			data: func() []byte {
				d := append([]byte(nil), valid...)
				copy(d[8:12], "FLAC")
				return d
			}(),
		},
		{
			name: "truncated data chunk",
			data: valid[:len(valid)/2],
		},
		{
			name: "non-pcm format",
			data: func() []byte {
				d := append([]byte(nil), valid...)
				d[20] = 3 // IEEE float
				return d
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAsset(tt.data, "audio/wav").Probe()
			if err == nil {
				t.Fatal("Expected probe error, got nil")
			}

			var probeErr *ProbeError
			if !errors.As(err, &probeErr) {
				t.Errorf("Expected *ProbeError, got %T: %v", err, err)
			}
		})
	}
}
