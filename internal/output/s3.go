package output

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config contains object-storage writer configuration.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Prefix    string
	Secure    bool
}

// S3Writer persists transcripts to S3-compatible object storage.
type S3Writer struct {
	client *minio.Client
	bucket string
	prefix string
	now    func() time.Time
}

// NewS3Writer connects to the object store and verifies the target bucket
// exists.
func NewS3Writer(cfg S3Config) (*S3Writer, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}

	exists, err := client.BucketExists(context.Background(), cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %q does not exist", cfg.Bucket)
	}

	return &S3Writer{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		now:    time.Now,
	}, nil
}

// Write uploads the transcript as a new object and returns the object key.
func (w *S3Writer) Write(ctx context.Context, transcript string) (string, error) {
	key := transcriptName(w.now())
	if w.prefix != "" {
		key = w.prefix + "/" + key
	}

	_, err := w.client.PutObject(ctx, w.bucket, key, strings.NewReader(transcript), int64(len(transcript)),
		minio.PutObjectOptions{
			ContentType:  "text/plain; charset=utf-8",
			UserMetadata: map[string]string{"uploaded-at": w.now().UTC().Format(time.RFC3339)},
		})
	if err != nil {
		return "", &PersistenceError{Destination: w.bucket + "/" + key, Err: err}
	}

	return key, nil
}
