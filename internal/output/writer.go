package output

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// PersistenceError reports a transcript that was computed but could not be
// durably written.
type PersistenceError struct {
	Destination string
	Err         error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist transcript to %s: %v", e.Destination, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Writer persists a final transcript and returns the identifier of the
// written destination.
type Writer interface {
	Write(ctx context.Context, transcript string) (string, error)
}

// transcriptName builds a timestamped, collision-free object name.
func transcriptName(now time.Time) string {
	return fmt.Sprintf("transcript_%s_%s.txt", now.UTC().Format("20060102T150405Z"), uuid.NewString())
}

// FileWriter persists transcripts as text files in a local directory.
type FileWriter struct {
	dir string
	now func() time.Time
}

// NewFileWriter creates the output directory if needed and returns a writer
// bound to it.
func NewFileWriter(dir string) (*FileWriter, error) {
	if dir == "" {
		return nil, fmt.Errorf("output directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory %s: %w", dir, err)
	}
	return &FileWriter{dir: dir, now: time.Now}, nil
}

// Write stores the transcript as a new file and returns the file name.
func (w *FileWriter) Write(_ context.Context, transcript string) (string, error) {
	name := transcriptName(w.now())
	path := filepath.Join(w.dir, name)

	if err := os.WriteFile(path, []byte(transcript), 0o644); err != nil {
		return "", &PersistenceError{Destination: path, Err: err}
	}

	return name, nil
}
