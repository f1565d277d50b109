package apperr

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func response(code int, body string) *http.Response {
	return &http.Response{
		StatusCode: code,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestFromResponse(t *testing.T) {
	t.Parallel()

	t.Run("keeps status and body", func(t *testing.T) {
		t.Parallel()
		err := FromResponse(KindJobStart, "start jira backup", response(500, "boom"))

		assert.Equal(t, KindJobStart, err.Kind)
		assert.Equal(t, 500, err.StatusCode)
		assert.Equal(t, []byte("boom"), err.Body)
		assert.Equal(t, "job_start: start jira backup: HTTP 500: boom", err.Error())
	})

	t.Run("maps 401 to auth", func(t *testing.T) {
		t.Parallel()
		err := FromResponse(KindDownload, "download", response(401, ""))
		assert.Equal(t, KindAuth, err.Kind)
	})

	t.Run("maps 403 to auth", func(t *testing.T) {
		t.Parallel()
		err := FromResponse(KindJobStart, "start", response(403, "denied"))
		assert.Equal(t, KindAuth, err.Kind)
	})
}

func TestErrorTruncatesBody(t *testing.T) {
	t.Parallel()

	err := &Error{Kind: KindTransport, Op: "poll", Body: []byte(strings.Repeat("ü", 300))}
	msg := err.Error()

	assert.True(t, utf8.ValidString(msg))
	assert.Equal(t, "transport: poll: "+strings.Repeat("ü", 200)+"...", msg)
}

func TestKindOfWrapped(t *testing.T) {
	t.Parallel()

	inner := New(KindTimeout, "poll", errors.New("too long"))
	wrapped := fmt.Errorf("backup failed: %w", inner)

	assert.Equal(t, KindTimeout, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindTimeout))
	assert.False(t, Is(nil, KindTimeout))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		err  error
		want int
	}{
		"nil":      {nil, ExitCodeSuccess},
		"config":   {New(KindConfig, "load", nil), ExitCodeConfig},
		"auth":     {New(KindAuth, "start", nil), ExitCodeAuth},
		"timeout":  {New(KindTimeout, "poll", nil), ExitCodeTimeout},
		"canceled": {New(KindCanceled, "poll", nil), ExitCodeCanceled},
		"upload":   {New(KindUpload, "put", nil), ExitCodeGeneric},
		"plain":    {errors.New("x"), ExitCodeGeneric},
	}

	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, ExitCode(tc.err))
		})
	}
}
