package audio

import (
	"fmt"
)

// chunkSafetyMargin keeps the estimated encoded chunk size below the upstream
// limit to absorb container overhead and byte-rate estimation error.
const chunkSafetyMargin = 0.9

// ChunkingError reports an asset for which no safe split could be derived.
type ChunkingError struct {
	Reason string
}

func (e *ChunkingError) Error() string {
	return fmt.Sprintf("chunking: %s", e.Reason)
}

// Chunk is a time-bounded, independently decodable slice of an asset.
// Indices are 0-based and contiguous; concatenating chunks in index order
// reconstructs the asset's full temporal span with no gap and no overlap.
type Chunk struct {
	Index      int
	StartMS    int64
	DurationMS int64
	Data       []byte
}

// span is a planned time range within the asset, before any bytes are sliced.
type span struct {
	startMS int64
	endMS   int64
}

// planSpans derives the chunk time ranges for an asset of the given total
// size and duration. The target chunk duration is computed from the asset's
// approximate byte rate so that each chunk's estimated encoded size stays
// under chunkSafetyMargin of maxBytes. The last span takes the remainder.
func planSpans(sizeBytes, durationMS, maxBytes int64) ([]span, error) {
	if maxBytes <= 0 {
		return nil, &ChunkingError{Reason: fmt.Sprintf("invalid chunk size limit: %d", maxBytes)}
	}
	if durationMS <= 0 {
		return nil, &ChunkingError{Reason: "asset duration could not be determined"}
	}

	if sizeBytes <= maxBytes {
		return []span{{startMS: 0, endMS: durationMS}}, nil
	}

	targetBytes := int64(float64(maxBytes) * chunkSafetyMargin)
	targetMS := durationMS * targetBytes / sizeBytes
	if targetMS <= 0 {
		return nil, &ChunkingError{Reason: fmt.Sprintf("chunk size limit %d is too small for a %d byte asset", maxBytes, sizeBytes)}
	}

	spans := make([]span, 0, durationMS/targetMS+1)
	for start := int64(0); start < durationMS; start += targetMS {
		end := start + targetMS
		if end > durationMS {
			end = durationMS
		}
		spans = append(spans, span{startMS: start, endMS: end})
	}

	return spans, nil
}

// Split produces the ordered chunk sequence for a probed asset. Assets that
// already fit under maxChunkBytes come back as a single chunk equal to the
// whole asset. Chunk boundaries are aligned to PCM frames so every chunk is
// a valid standalone WAV unit.
func Split(asset *Asset, info Info, maxChunkBytes int64) ([]Chunk, error) {
	spans, err := planSpans(asset.SizeBytes, info.DurationMS, maxChunkBytes)
	if err != nil {
		return nil, err
	}

	if len(spans) == 1 {
		return []Chunk{{
			Index:      0,
			StartMS:    0,
			DurationMS: info.DurationMS,
			Data:       asset.Data,
		}}, nil
	}

	totalFrames := info.DataSize / info.BlockAlign
	frameAt := func(ms int64) int {
		frame := int(ms * int64(info.SampleRate) / 1000)
		if frame > totalFrames {
			frame = totalFrames
		}
		return frame
	}

	chunks := make([]Chunk, 0, len(spans))
	for i, sp := range spans {
		startFrame := frameAt(sp.startMS)
		endFrame := frameAt(sp.endMS)
		if i == len(spans)-1 {
			endFrame = totalFrames // last chunk takes the remainder
		}
		if endFrame <= startFrame {
			return nil, &ChunkingError{Reason: fmt.Sprintf("empty slice at chunk %d: cannot derive a safe split", i)}
		}

		startByte := info.DataOffset + startFrame*info.BlockAlign
		endByte := info.DataOffset + endFrame*info.BlockAlign

		chunks = append(chunks, Chunk{
			Index:      i,
			StartMS:    sp.startMS,
			DurationMS: sp.endMS - sp.startMS,
			Data:       encodeSegment(info, asset.Data[startByte:endByte]),
		})
	}

	return chunks, nil
}
