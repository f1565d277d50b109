package sink

import (
	"context"
	"fmt"

	"atlasbackup/internal/apperr"
	"atlasbackup/internal/artifact"
	"atlasbackup/internal/storage"

	"go.uber.org/zap"
)

// Destination is a bucket and key prefix
type Destination struct {
	Bucket string
	Prefix string
}

// Key returns the object key for a file name
func (d Destination) Key(name string) string {
	return d.Prefix + name
}

// Remote uploads artifacts to an S3-compatible bucket
type Remote struct {
	client storage.Client
	dest   Destination
	logger *zap.Logger
}

// NewRemote creates an object storage sink
func NewRemote(client storage.Client, dest Destination, logger *zap.Logger) *Remote {
	return &Remote{client: client, dest: dest, logger: logger}
}

// Name implements Sink
func (r *Remote) Name() string { return "s3" }

// Save implements Sink
func (r *Remote) Save(ctx context.Context, a *artifact.Artifact) (string, error) {
	return SaveRemote(ctx, r.client, r.dest, a, r.logger)
}

// SaveRemote uploads the artifact as a single object and checks the stored
// size. An empty bucket skips the upload without touching the client.
func SaveRemote(ctx context.Context, client storage.Client, dest Destination, a *artifact.Artifact, logger *zap.Logger) (string, error) {
	const op = "upload to object storage"

	if dest.Bucket == "" {
		logger.Debug("Object storage upload disabled")
		return "", nil
	}

	key := dest.Key(a.Name)
	logger.Info("Streaming to object storage",
		zap.String("bucket", dest.Bucket),
		zap.String("key", key),
		zap.Int64("size", a.Size),
	)

	src, err := a.Open()
	if err != nil {
		return "", apperr.New(apperr.KindStorage, op, err)
	}
	defer src.Close()

	err = client.PutObject(ctx, dest.Bucket, key, src, a.Size, storage.PutOptions{
		ContentType: a.ContentType,
		Metadata: map[string]string{
			"sha256": a.SHA256,
		},
	})
	if err != nil {
		return "", apperr.New(apperr.KindUpload, op, err)
	}

	info, err := client.HeadObject(ctx, dest.Bucket, key)
	if err != nil {
		return "", apperr.New(apperr.KindUpload, op, fmt.Errorf("failed to verify upload: %w", err))
	}
	if info.Size != a.Size {
		return "", apperr.Newf(apperr.KindUpload, op, "stored object is %d bytes, expected %d", info.Size, a.Size)
	}

	location := fmt.Sprintf("s3://%s/%s", dest.Bucket, key)
	logger.Info("Uploaded backup", zap.String("location", location))
	return location, nil
}
