package storage

import (
	"context"
	"io"
	"time"
)

// Client defines the interface for S3-compatible storage operations
type Client interface {
	PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts PutOptions) error
	HeadObject(ctx context.Context, bucket, key string) (ObjectInfo, error)
}

// ObjectInfo contains object metadata
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
	ContentType  string
	Metadata     map[string]string
}

// PutOptions contains options for put operations
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Config contains client configuration. An empty AccessKey selects the
// ambient credential chain (environment, shared credentials file, IAM).
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Secure    bool
}
