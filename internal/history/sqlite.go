package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db      *sql.DB
	closed  bool
	writeMu sync.Mutex
}

// NewSQLiteStore opens (and creates if needed) the history database
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One process, one writer
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(10 * time.Minute)

	store := &SQLiteStore{db: db}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		product TEXT NOT NULL,
		task_id TEXT,
		status TEXT NOT NULL,
		progress INTEGER DEFAULT 0,
		download_url TEXT,
		filename TEXT,
		size INTEGER DEFAULT 0,
		sha256 TEXT,
		destinations TEXT,
		last_error TEXT,
		started_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	`

	_, err := s.db.Exec(query)
	return err
}

const selectColumns = `id, product, task_id, status, progress, download_url, filename, size, sha256, destinations, last_error, started_at, updated_at`

// GetRun retrieves a run record, or nil if it does not exist
func (s *SQLiteStore) GetRun(id string) (*RunRecord, error) {
	if s.closed {
		return nil, fmt.Errorf("database store is closed")
	}

	var result *RunRecord
	err := s.retryOnBusy(func() error {
		row := s.db.QueryRow(`SELECT `+selectColumns+` FROM runs WHERE id = ?`, id)
		record, err := scanRun(row)
		if err == sql.ErrNoRows {
			return nil
		}
		result = record
		return err
	})
	return result, err
}

// SaveRun inserts or updates a run record
func (s *SQLiteStore) SaveRun(record *RunRecord) error {
	if s.closed {
		return fmt.Errorf("database store is closed")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.retryOnBusy(func() error {
		return s.saveRunInternal(record)
	})
}

func (s *SQLiteStore) saveRunInternal(record *RunRecord) error {
	record.UpdatedAt = time.Now()

	destinations, err := json.Marshal(record.Destinations)
	if err != nil {
		return fmt.Errorf("failed to encode destinations: %w", err)
	}

	query := `
	INSERT INTO runs
	(id, product, task_id, status, progress, download_url, filename, size, sha256, destinations, last_error, started_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		task_id = excluded.task_id,
		status = excluded.status,
		progress = excluded.progress,
		download_url = excluded.download_url,
		filename = excluded.filename,
		size = excluded.size,
		sha256 = excluded.sha256,
		destinations = excluded.destinations,
		last_error = excluded.last_error,
		updated_at = excluded.updated_at
	`

	_, err = s.db.Exec(query,
		record.ID,
		record.Product,
		record.TaskID,
		record.Status,
		record.Progress,
		record.DownloadURL,
		record.Filename,
		record.Size,
		record.SHA256,
		string(destinations),
		record.LastError,
		record.StartedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to execute upsert: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs first
func (s *SQLiteStore) ListRuns(limit int) ([]*RunRecord, error) {
	if s.closed {
		return nil, fmt.Errorf("database store is closed")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`SELECT `+selectColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*RunRecord
	for rows.Next() {
		record, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*RunRecord, error) {
	var record RunRecord
	var taskID, downloadURL, filename, sha, destinations, lastError sql.NullString

	err := row.Scan(
		&record.ID,
		&record.Product,
		&taskID,
		&record.Status,
		&record.Progress,
		&downloadURL,
		&filename,
		&record.Size,
		&sha,
		&destinations,
		&lastError,
		&record.StartedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.TaskID = taskID.String
	record.DownloadURL = downloadURL.String
	record.Filename = filename.String
	record.SHA256 = sha.String
	record.LastError = lastError.String
	if destinations.Valid && destinations.String != "" && destinations.String != "null" {
		if err := json.Unmarshal([]byte(destinations.String), &record.Destinations); err != nil {
			return nil, fmt.Errorf("failed to decode destinations: %w", err)
		}
	}

	return &record, nil
}

// retryOnBusy retries the operation if SQLite is busy
func (s *SQLiteStore) retryOnBusy(operation func() error) error {
	maxRetries := 5
	baseDelay := 50 * time.Millisecond

	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err = operation()
		if err == nil || !isSQLiteBusyError(err) {
			return err
		}
		time.Sleep(baseDelay * time.Duration(1<<uint(attempt)))
	}

	return err
}

// isSQLiteBusyError checks if the error is a SQLite busy error
func isSQLiteBusyError(err error) bool {
	errorStr := err.Error()
	return strings.Contains(errorStr, "database is locked") ||
		strings.Contains(errorStr, "SQLITE_BUSY")
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.closed = true
	return s.db.Close()
}
