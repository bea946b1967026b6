package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ProbeError reports a buffer that could not be recognized as valid audio.
type ProbeError struct {
	Reason string
	Err    error
}

func (e *ProbeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("probe: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("probe: %s", e.Reason)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// Info describes the layout of a probed asset. DataOffset and DataSize locate
// the PCM frames inside the original buffer so the chunker can slice them on
// frame boundaries.
type Info struct {
	SizeBytes     int64
	DurationMS    int64
	SampleRate    int
	Channels      int
	BitsPerSample int
	BlockAlign    int
	DataOffset    int
	DataSize      int
}

// Probe inspects an asset's WAV header and returns its byte size and duration
// in milliseconds without decoding the sample data. The inspection is
// read-only; the asset itself is not modified.
func (a *Asset) Probe() (Info, error) {
	info, err := probeWAV(a.Data)
	if err != nil {
		return Info{}, err
	}
	info.SizeBytes = a.SizeBytes
	return info, nil
}

func probeWAV(data []byte) (Info, error) {
	if len(data) < wavHeaderSize {
		return Info{}, &ProbeError{Reason: fmt.Sprintf("buffer too short for a WAV header: %d bytes", len(data))}
	}

	var header WAVHeader
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &header); err != nil {
		return Info{}, &ProbeError{Reason: "unreadable WAV header", Err: err}
	}

	if string(header.ChunkID[:]) != "RIFF" {
		return Info{}, &ProbeError{Reason: "missing RIFF header"}
	}
	if string(header.Format[:]) != "WAVE" {
		return Info{}, &ProbeError{Reason: "missing WAVE format"}
	}
	if string(header.Subchunk1ID[:]) != "fmt " || header.Subchunk1Size != 16 {
		return Info{}, &ProbeError{Reason: "unsupported WAV layout: expected a 16-byte fmt chunk"}
	}
	if string(header.Subchunk2ID[:]) != "data" {
		return Info{}, &ProbeError{Reason: "missing data chunk"}
	}
	if header.AudioFormat != 1 {
		return Info{}, &ProbeError{Reason: fmt.Sprintf("unsupported audio format %d: only PCM is supported", header.AudioFormat)}
	}
	if header.NumChannels == 0 {
		return Info{}, &ProbeError{Reason: "invalid channel count: 0"}
	}
	if header.SampleRate == 0 {
		return Info{}, &ProbeError{Reason: "invalid sample rate: 0"}
	}
	if header.BitsPerSample == 0 || header.BitsPerSample%8 != 0 {
		return Info{}, &ProbeError{Reason: fmt.Sprintf("invalid bit depth: %d", header.BitsPerSample)}
	}

	blockAlign := int(header.NumChannels) * int(header.BitsPerSample) / 8
	if int(header.BlockAlign) != blockAlign {
		return Info{}, &ProbeError{Reason: fmt.Sprintf("inconsistent block align: header says %d, layout implies %d", header.BlockAlign, blockAlign)}
	}

	dataSize := int(header.Subchunk2Size)
	if dataSize <= 0 {
		return Info{}, &ProbeError{Reason: "no audio data"}
	}
	if wavHeaderSize+dataSize > len(data) {
		return Info{}, &ProbeError{Reason: fmt.Sprintf("truncated data chunk: header declares %d bytes, buffer holds %d", dataSize, len(data)-wavHeaderSize)}
	}

	frames := dataSize / blockAlign
	durationMS := int64(frames) * 1000 / int64(header.SampleRate)

	return Info{
		SizeBytes:     int64(len(data)),
		DurationMS:    durationMS,
		SampleRate:    int(header.SampleRate),
		Channels:      int(header.NumChannels),
		BitsPerSample: int(header.BitsPerSample),
		BlockAlign:    blockAlign,
		DataOffset:    wavHeaderSize,
		DataSize:      frames * blockAlign,
	}, nil
}
