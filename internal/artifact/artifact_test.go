package artifact

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"regexp"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifier(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"https://acme.atlassian.net/plugins/servlet/export123.zip":                  "export123",
		"https://acme.atlassian.net/plugins/servlet/export/download/?fileId=abc-42": "abc-42",
		"https://acme.atlassian.net/wiki/download/temp/filestore/7f3e":              "7f3e",
		"https://acme.atlassian.net/wiki/download/":                                 "backup",
	}

	for in, want := range cases {
		in, want := in, want
		t.Run(want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, want, Identifier(in))
		})
	}
}

func TestFilename(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, time.March, 7, 9, 5, 0, 0, time.UTC)
	name := Filename(now, "https://acme.atlassian.net/plugins/servlet/export123.zip")

	assert.Equal(t, "07032024_0905_export123.zip", name)
	assert.Regexp(t, regexp.MustCompile(`^\d{8}_\d{4}_export123\.zip$`), name)
}

func TestSpoolWrite(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	payload := bytes.Repeat([]byte("atlassian"), ChunkSize/4)

	a, err := NewSpool(fs, "/tmp").Write(bytes.NewReader(payload), "x.zip", "", "https://h/x")
	require.NoError(t, err)

	sum := sha256.Sum256(payload)
	assert.Equal(t, int64(len(payload)), a.Size)
	assert.Equal(t, hex.EncodeToString(sum[:]), a.SHA256)
	assert.Equal(t, "application/octet-stream", a.ContentType)

	// every Open yields the full content
	for i := 0; i < 2; i++ {
		r, err := a.Open()
		require.NoError(t, err)
		got, err := io.ReadAll(r)
		require.NoError(t, err)
		require.NoError(t, r.Close())
		assert.Equal(t, payload, got)
	}

	require.NoError(t, a.Remove())
	_, err = a.Open()
	assert.Error(t, err)
}
