package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOClient implements the Client interface using minio-go
type MinIOClient struct {
	client *minio.Client
}

// NewMinIOClient creates a new S3-compatible client
func NewMinIOClient(cfg Config) (*MinIOClient, error) {
	endpoint, secure, err := cleanEndpoint(cfg.Endpoint, cfg.Secure)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentialsFor(cfg),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}

	return &MinIOClient{client: client}, nil
}

func credentialsFor(cfg Config) *credentials.Credentials {
	if cfg.AccessKey != "" {
		return credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	}

	return credentials.NewChainCredentials([]credentials.Provider{
		&credentials.EnvAWS{},
		&credentials.FileAWSCredentials{},
		&credentials.IAM{Client: &http.Client{Transport: http.DefaultTransport}},
	})
}

// cleanEndpoint removes protocol and path from endpoint URL to get host:port
// format. An explicit scheme overrides the secure flag.
func cleanEndpoint(endpoint string, secure bool) (string, bool, error) {
	if endpoint == "" {
		return "", false, fmt.Errorf("endpoint cannot be empty")
	}

	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if strings.Contains(endpoint, "/") {
			return "", false, fmt.Errorf("endpoint contains path but no protocol")
		}
		return endpoint, secure, nil
	}

	parsedURL, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("failed to parse endpoint URL: %w", err)
	}

	if parsedURL.Path != "" && parsedURL.Path != "/" {
		return "", false, fmt.Errorf("endpoint URL cannot have paths, only host:port is allowed (got path: %s)", parsedURL.Path)
	}

	return parsedURL.Host, parsedURL.Scheme == "https", nil
}

// PutObject uploads an object; size -1 lets minio-go stream it in parts
func (c *MinIOClient) PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts PutOptions) error {
	putOpts := minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		UserMetadata: opts.Metadata,
	}

	_, err := c.client.PutObject(ctx, bucket, key, reader, size, putOpts)
	return err
}

// HeadObject gets object metadata
func (c *MinIOClient) HeadObject(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	info, err := c.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, err
	}

	return ObjectInfo{
		Key:          info.Key,
		Size:         info.Size,
		ETag:         info.ETag,
		LastModified: info.LastModified,
		ContentType:  info.ContentType,
		Metadata:     info.UserMetadata,
	}, nil
}
