package progress

import (
	"fmt"
	"sync"
	"time"
)

// Status represents the progress of the vendor job
type Status struct {
	Product     string
	State       string
	Description string
	Percent     int
	Polls       int
	StartTime   time.Time
	LastUpdate  time.Time
	ETA         time.Duration
}

// Tracker tracks job progress reported by successive polls
type Tracker struct {
	mu     sync.RWMutex
	status Status
	now    func() time.Time
}

// NewTracker creates a new progress tracker
func NewTracker(product string) *Tracker {
	return newTracker(product, time.Now)
}

func newTracker(product string, now func() time.Time) *Tracker {
	start := now()
	return &Tracker{
		status: Status{
			Product:    product,
			StartTime:  start,
			LastUpdate: start,
		},
		now: now,
	}
}

// Update records a poll result
func (t *Tracker) Update(state, description string, percent int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.status.State = state
	t.status.Description = description
	t.status.Percent = clamp(percent)
	t.status.Polls++
	t.status.LastUpdate = now
	t.calculateETA(now)
}

// calculateETA extrapolates linearly from the average rate since start (lock held)
func (t *Tracker) calculateETA(now time.Time) {
	elapsed := now.Sub(t.status.StartTime)
	if t.status.Percent <= 0 || t.status.Percent >= 100 || elapsed <= 0 {
		t.status.ETA = 0
		return
	}

	perPercent := elapsed / time.Duration(t.status.Percent)
	t.status.ETA = perPercent * time.Duration(100-t.status.Percent)
}

// GetStatus returns the current status (thread-safe)
func (t *Tracker) GetStatus() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.status
}

func clamp(percent int) int {
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}

// FormatBytes formats bytes in human readable format
func FormatBytes(bytes int64) string {
	if bytes < 1024 {
		return fmt.Sprintf("%d B", bytes)
	} else if bytes < 1024*1024 {
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	} else if bytes < 1024*1024*1024 {
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
	} else {
		return fmt.Sprintf("%.1f GB", float64(bytes)/(1024*1024*1024))
	}
}

// FormatDuration formats duration in human readable format
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "unknown"
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	} else {
		return fmt.Sprintf("%ds", seconds)
	}
}
