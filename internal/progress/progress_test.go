package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTrackerETA(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := newTracker("jira", func() time.Time { return now })

	now = now.Add(10 * time.Minute)
	tr.Update("IN_PROGRESS", "Exporting issues", 25)

	s := tr.GetStatus()
	assert.Equal(t, 25, s.Percent)
	assert.Equal(t, 1, s.Polls)
	assert.Equal(t, 30*time.Minute, s.ETA)

	now = now.Add(time.Minute)
	tr.Update("SUCCESS", "", 140)
	s = tr.GetStatus()
	assert.Equal(t, 100, s.Percent)
	assert.Equal(t, time.Duration(0), s.ETA)
}

func TestDisplayRender(t *testing.T) {
	tr := NewTracker("confluence")
	tr.Update("Exporting", "Exporting pages", 50)

	var out bytes.Buffer
	d := NewDisplay(tr, &out)
	d.Render()
	d.Finish()

	text := out.String()
	assert.True(t, strings.HasPrefix(text, "\rconfluence ["))
	assert.Contains(t, text, " 50%")
	assert.Contains(t, text, "Exporting pages")
	assert.True(t, strings.HasSuffix(text, "\n"))
}

func TestDisplayTruncatesLongDescription(t *testing.T) {
	tr := NewTracker("jira")
	tr.Update("IN_PROGRESS", strings.Repeat("é", 50), 10)

	line := NewDisplay(tr, &bytes.Buffer{}).line(tr.GetStatus())
	assert.True(t, utf8.ValidString(line))
	assert.Contains(t, line, strings.Repeat("é", 37)+"...")
	assert.NotContains(t, line, strings.Repeat("é", 38))
}

func TestGenerateProgressBar(t *testing.T) {
	assert.Equal(t, "[░░░░]   0%", generateProgressBar(-5, 4))
	assert.Equal(t, "[██░░]  50%", generateProgressBar(50, 4))
	assert.Equal(t, "[████] 100%", generateProgressBar(100, 4))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 MB", FormatBytes(1536*1024))
	assert.Equal(t, "unknown", FormatDuration(0))
	assert.Equal(t, "1h2m3s", FormatDuration(time.Hour+2*time.Minute+3*time.Second))
}
