package history

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the state of a backup run
type RunStatus string

const (
	StatusStarted   RunStatus = "started"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusTimedOut  RunStatus = "timed_out"
	StatusCanceled  RunStatus = "canceled"
)

// Terminal reports whether no further transition is expected
func (s RunStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimedOut, StatusCanceled:
		return true
	default:
		return false
	}
}

// RunRecord represents one backup invocation
type RunRecord struct {
	ID           string    `json:"id"`
	Product      string    `json:"product"`
	TaskID       string    `json:"task_id,omitempty"`
	Status       RunStatus `json:"status"`
	Progress     int       `json:"progress"`
	DownloadURL  string    `json:"download_url,omitempty"`
	Filename     string    `json:"filename,omitempty"`
	Size         int64     `json:"size"`
	SHA256       string    `json:"sha256,omitempty"`
	Destinations []string  `json:"destinations,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewRun creates a record for a run that is about to start
func NewRun(product string) *RunRecord {
	now := time.Now()
	return &RunRecord{
		ID:        uuid.NewString(),
		Product:   product,
		Status:    StatusStarted,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// Store defines the interface for run history persistence
type Store interface {
	GetRun(id string) (*RunRecord, error)
	SaveRun(record *RunRecord) error
	ListRuns(limit int) ([]*RunRecord, error)

	// Cleanup
	Close() error
}

// Nop is a Store that keeps nothing
type Nop struct{}

func (Nop) GetRun(string) (*RunRecord, error) { return nil, nil }
func (Nop) SaveRun(*RunRecord) error { return nil }
func (Nop) ListRuns(int) ([]*RunRecord, error) { return nil, nil }
func (Nop) Close() error { return nil }
