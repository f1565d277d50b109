package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"atlasbackup/internal/apperr"
	"atlasbackup/internal/artifact"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Local writes artifacts into a directory
type Local struct {
	fs     afero.Fs
	dir    string
	logger *zap.Logger
}

// NewLocal creates a local filesystem sink
func NewLocal(fs afero.Fs, dir string, logger *zap.Logger) *Local {
	return &Local{fs: fs, dir: dir, logger: logger}
}

// Name implements Sink
func (l *Local) Name() string { return "local" }

// Save implements Sink
func (l *Local) Save(ctx context.Context, a *artifact.Artifact) (string, error) {
	return SaveLocal(ctx, l.fs, l.dir, a, l.logger)
}

// SaveLocal copies the artifact to dir/<a.Name>. The file is written under a
// .part name and renamed once complete; a failed write leaves nothing behind.
func SaveLocal(ctx context.Context, fs afero.Fs, dir string, a *artifact.Artifact, logger *zap.Logger) (string, error) {
	const op = "save local copy"

	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return "", apperr.New(apperr.KindStorage, op, err)
	}

	final := filepath.Join(dir, a.Name)
	partial := final + ".part"

	src, err := a.Open()
	if err != nil {
		return "", apperr.New(apperr.KindStorage, op, err)
	}
	defer src.Close()

	dst, err := fs.OpenFile(partial, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", apperr.New(apperr.KindStorage, op, err)
	}

	n, err := io.CopyBuffer(dst, readerWithContext(ctx, src), make([]byte, artifact.ChunkSize))
	closeErr := dst.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && n != a.Size {
		err = fmt.Errorf("wrote %d bytes, expected %d", n, a.Size)
	}
	if err != nil {
		fs.Remove(partial)
		return "", apperr.New(apperr.KindStorage, op, err)
	}

	if err := fs.Rename(partial, final); err != nil {
		fs.Remove(partial)
		return "", apperr.New(apperr.KindStorage, op, err)
	}

	logger.Info("Saved backup locally", zap.String("path", final), zap.Int64("size", n))
	return final, nil
}
