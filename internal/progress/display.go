package progress

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

const barWidth = 30

// Display renders the tracker as a single redrawn console line
type Display struct {
	tracker *Tracker
	out     io.Writer
	drawn   bool
}

// NewDisplay creates a progress display writing to out
func NewDisplay(tracker *Tracker, out io.Writer) *Display {
	return &Display{tracker: tracker, out: out}
}

// Render redraws the progress line
func (d *Display) Render() {
	fmt.Fprint(d.out, "\r"+d.line(d.tracker.GetStatus()))
	d.drawn = true
}

// Finish ends the progress line so later output starts on a new line
func (d *Display) Finish() {
	if d.drawn {
		fmt.Fprintln(d.out)
		d.drawn = false
	}
}

func (d *Display) line(status Status) string {
	desc := status.Description
	if desc == "" {
		desc = status.State
	}
	if r := []rune(desc); len(r) > 40 {
		desc = string(r[:37]) + "..."
	}

	return fmt.Sprintf("%s %s ETA %s %-40s",
		status.Product,
		generateProgressBar(status.Percent, barWidth),
		FormatDuration(status.ETA),
		desc,
	)
}

// generateProgressBar generates a visual progress bar
func generateProgressBar(percent, width int) string {
	percent = clamp(percent)

	filled := percent * width / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)

	return fmt.Sprintf("[%s] %3d%%", bar, percent)
}

// IsTerminalSupported checks if stdout is an interactive terminal
func IsTerminalSupported() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
