// Package sink delivers a fetched backup archive to its destinations.
package sink

import (
	"context"
	"fmt"

	"atlasbackup/internal/artifact"
	"atlasbackup/internal/config"
	"atlasbackup/internal/storage"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Sink persists an artifact somewhere. Save returns a description of
// where it was written, or "" when the sink skipped it.
type Sink interface {
	Name() string
	Save(ctx context.Context, a *artifact.Artifact) (string, error)
}

// ClientFactory builds a storage client; it is only called when an upload is configured
type ClientFactory func(cfg storage.Config) (storage.Client, error)

// NewMinIOFactory is the default ClientFactory
func NewMinIOFactory(cfg storage.Config) (storage.Client, error) {
	return storage.NewMinIOClient(cfg)
}

// FromConfig returns the sinks enabled by cfg
func FromConfig(cfg *config.Config, fs afero.Fs, newClient ClientFactory, logger *zap.Logger) ([]Sink, error) {
	var sinks []Sink

	if cfg.DownloadLocally {
		sinks = append(sinks, NewLocal(fs, cfg.BackupDir, logger))
	}

	if cfg.UploadToS3.Enabled() {
		client, err := newClient(storage.Config{
			Endpoint:  cfg.UploadToS3.Endpoint,
			AccessKey: cfg.UploadToS3.AccessKey,
			SecretKey: cfg.UploadToS3.SecretKey,
			Region:    cfg.UploadToS3.Region,
			Secure:    cfg.UploadToS3.Secure,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		sinks = append(sinks, NewRemote(client, Destination{
			Bucket: cfg.UploadToS3.Bucket,
			Prefix: cfg.UploadToS3.Prefix,
		}, logger))
	}

	return sinks, nil
}

// FanOut saves a to every sink in order and stops at the first failure
func FanOut(ctx context.Context, a *artifact.Artifact, sinks ...Sink) ([]string, error) {
	written := make([]string, 0, len(sinks))

	for _, s := range sinks {
		dest, err := s.Save(ctx, a)
		if err != nil {
			return written, fmt.Errorf("%s sink: %w", s.Name(), err)
		}
		if dest != "" {
			written = append(written, dest)
		}
	}

	return written, nil
}
