package audio

// Asset is an uploaded audio payload. It is created once per request when the
// upload is received and never mutated afterwards; the pipeline discards it
// after chunking.
type Asset struct {
	Data        []byte
	ContentType string
	SizeBytes   int64
}

// NewAsset wraps an uploaded byte buffer.
func NewAsset(data []byte, contentType string) *Asset {
	return &Asset{
		Data:        data,
		ContentType: contentType,
		SizeBytes:   int64(len(data)),
	}
}
