package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// ChunkSize is the copy buffer used while streaming an artifact
const ChunkSize = 64 * 1024

// Extension is appended to every synthesized filename
const Extension = ".zip"

const timestampLayout = "02012006_1504"

// Artifact is a downloaded backup archive spooled to a temporary file so
// that every destination reads the same bytes.
type Artifact struct {
	Name        string
	ContentType string
	Size        int64
	SHA256      string
	SourceURL   string

	fs   afero.Fs
	path string
}

// Spool creates artifacts on a filesystem
type Spool struct {
	fs  afero.Fs
	dir string
}

// NewSpool returns a spool writing temporary files under dir ("" means the OS temp dir)
func NewSpool(fs afero.Fs, dir string) *Spool {
	return &Spool{fs: fs, dir: dir}
}

// Write streams r into a temporary file and returns the artifact describing it
func (s *Spool) Write(r io.Reader, name, contentType, sourceURL string) (*Artifact, error) {
	f, err := afero.TempFile(s.fs, s.dir, "atlasbackup-*"+Extension)
	if err != nil {
		return nil, fmt.Errorf("failed to create spool file: %w", err)
	}

	hash := sha256.New()
	buf := make([]byte, ChunkSize)
	n, err := io.CopyBuffer(io.MultiWriter(f, hash), r, buf)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		s.fs.Remove(f.Name())
		return nil, fmt.Errorf("failed to spool artifact: %w", err)
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return &Artifact{
		Name:        name,
		ContentType: contentType,
		Size:        n,
		SHA256:      hex.EncodeToString(hash.Sum(nil)),
		SourceURL:   sourceURL,
		fs:          s.fs,
		path:        f.Name(),
	}, nil
}

// Open returns a fresh reader over the artifact bytes
func (a *Artifact) Open() (io.ReadCloser, error) {
	return a.fs.Open(a.path)
}

// Remove deletes the spooled file
func (a *Artifact) Remove() error {
	return a.fs.Remove(a.path)
}

// Identifier extracts the server-provided identifier from a download URL:
// the last path segment with the "?fileId=" marker and a trailing .zip removed.
func Identifier(downloadURL string) string {
	id := downloadURL
	if i := strings.LastIndex(id, "/"); i >= 0 {
		id = id[i+1:]
	}
	id = strings.ReplaceAll(id, "?fileId=", "")
	if i := strings.IndexAny(id, "?&#"); i >= 0 {
		id = id[:i]
	}
	id = strings.TrimSuffix(id, Extension)
	if id == "" {
		id = "backup"
	}
	return id
}

// Filename synthesizes DDMMYYYY_HHMM_<identifier>.zip
func Filename(now time.Time, downloadURL string) string {
	return now.Format(timestampLayout) + "_" + Identifier(downloadURL) + Extension
}
