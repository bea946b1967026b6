package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// wavHeaderSize is the size of a canonical RIFF/WAVE header with a 16-byte
// fmt chunk immediately followed by the data chunk.
const wavHeaderSize = 44

// WAVHeader represents the canonical header of a PCM WAV file.
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16 // NumChannels * BitsPerSample / 8
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data chunk
}

func newWAVHeader(channels, sampleRate, bitsPerSample int, dataSize uint32) WAVHeader {
	blockAlign := uint16(channels * bitsPerSample / 8)
	return WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   uint16(channels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(blockAlign),
		BlockAlign:    blockAlign,
		BitsPerSample: uint16(bitsPerSample),
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}
}

// EncodeWAV encodes PCM-16 mono samples into a standalone WAV buffer.
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio samples")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	dataSize := uint32(len(samples) * 2)
	header := newWAVHeader(1, sampleRate, 16, dataSize)

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(samples)*2))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}

	return buf.Bytes(), nil
}

// encodeSegment wraps a raw PCM frame range of a probed asset into a
// standalone WAV buffer, so each chunk is decodable on its own.
func encodeSegment(info Info, frames []byte) []byte {
	header := newWAVHeader(info.Channels, info.SampleRate, info.BitsPerSample, uint32(len(frames)))

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(frames)))
	// Writing a fixed-layout struct to a byte buffer cannot fail.
	_ = binary.Write(buf, binary.LittleEndian, header)
	buf.Write(frames)

	return buf.Bytes()
}
