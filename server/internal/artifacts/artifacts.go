// Package artifacts uploads generated report files to an S3-compatible
// bucket (MinIO, AWS S3) so they outlive the local reports directory.
package artifacts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/sensorcal/sensorcal/server/internal/config"
)

// PresignExpiry is how long the returned download links stay valid.
const PresignExpiry = 24 * time.Hour

// defaultRegion avoids a bucket-location round trip before every request.
const defaultRegion = "us-east-1"

var contentTypes = map[string]string{
	".csv":  "text/csv",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".pdf":  "application/pdf",
	".png":  "image/png",
}

// Object is one uploaded artifact.
type Object struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// Bucket uploads files under a per-run prefix. It creates the bucket on
// first use.
type Bucket struct {
	client *minio.Client
	bucket string

	mu    sync.Mutex
	ready bool
}

// New builds a Bucket from cfg. Credentials come from the environment
// variables named in cfg.
func New(cfg config.ArtifactsConfig) (*Bucket, error) {
	accessKey, secretKey := cfg.Credentials()
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: cfg.UseSSL,
		Region: defaultRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("artifacts: create client: %w", err)
	}
	return &Bucket{client: client, bucket: cfg.Bucket}, nil
}

// Publish uploads every file to "<runID>/<file name>" and returns the object
// keys with presigned download URLs.
func (b *Bucket) Publish(ctx context.Context, runID string, files []string) ([]Object, error) {
	if err := b.ensureBucket(ctx); err != nil {
		return nil, err
	}

	out := make([]Object, 0, len(files))
	for _, f := range files {
		key := path.Join(runID, filepath.Base(f))
		if err := b.upload(ctx, key, f); err != nil {
			return nil, err
		}
		u, err := b.client.PresignedGetObject(ctx, b.bucket, key, PresignExpiry, nil)
		if err != nil {
			return nil, fmt.Errorf("artifacts: presign %s: %w", key, err)
		}
		out = append(out, Object{Key: key, URL: u.String()})
	}
	slog.Info("artifacts: published", "run_id", runID, "bucket", b.bucket, "objects", len(out))
	return out, nil
}

func (b *Bucket) upload(ctx context.Context, key, file string) error {
	fh, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("artifacts: open %s: %w", file, err)
	}
	defer fh.Close()

	info, err := fh.Stat()
	if err != nil {
		return fmt.Errorf("artifacts: stat %s: %w", file, err)
	}

	ct, ok := contentTypes[filepath.Ext(file)]
	if !ok {
		ct = "application/octet-stream"
	}
	_, err = b.client.PutObject(ctx, b.bucket, key, fh, info.Size(), minio.PutObjectOptions{
		ContentType: ct,
	})
	if err != nil {
		return fmt.Errorf("artifacts: put %s: %w", key, err)
	}
	return nil
}

// ensureBucket creates the bucket once per process. A failed attempt is
// retried on the next Publish.
func (b *Bucket) ensureBucket(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ready {
		return nil
	}

	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return fmt.Errorf("artifacts: check bucket %q: %w", b.bucket, err)
	}
	if !exists {
		if err := b.client.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{Region: defaultRegion}); err != nil {
			return fmt.Errorf("artifacts: create bucket %q: %w", b.bucket, err)
		}
		slog.Info("artifacts: bucket created", "bucket", b.bucket)
	}
	b.ready = true
	return nil
}
