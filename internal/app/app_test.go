package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"atlasbackup/internal/apperr"
	"atlasbackup/internal/atlassian"
	"atlasbackup/internal/config"
	"atlasbackup/internal/history"
	"atlasbackup/internal/sink"
	"atlasbackup/internal/storage"

	"github.com/h2non/gock"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const site = "https://acme.atlassian.net"

type bucket struct {
	objects map[string][]byte
}

func (b *bucket) PutObject(_ context.Context, name, key string, r io.Reader, _ int64, _ storage.PutOptions) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.objects[name+"/"+key] = data
	return nil
}

func (b *bucket) HeadObject(_ context.Context, name, key string) (storage.ObjectInfo, error) {
	data, ok := b.objects[name+"/"+key]
	if !ok {
		return storage.ObjectInfo{}, errors.New("not found")
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.HostURL = "acme.atlassian.net"
	cfg.UserEmail = "ops@acme.test"
	cfg.APIToken = "token"
	cfg.DownloadLocally = true
	cfg.BackupDir = "/backups"
	cfg.History = ""
	return cfg
}

func newTestBackup(t *testing.T, cfg *config.Config, opts ...Option) *Backup {
	t.Helper()

	client := &http.Client{Transport: &http.Transport{}}
	gock.InterceptClient(client)
	t.Cleanup(func() {
		gock.Off()
		gock.RestoreClient(client)
	})

	noSleep := atlassian.WithSleep(func(context.Context, time.Duration) error { return nil })
	base := []Option{
		WithHTTPClient(client),
		WithOrchestratorOptions(noSleep),
		WithClock(func() time.Time { return time.Date(2024, 2, 29, 18, 30, 0, 0, time.UTC) }),
	}

	b, err := New(cfg, zap.NewNop(), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestRunJiraLocalAndRemote(t *testing.T) {
	cfg := testConfig()
	fs := afero.NewMemMapFs()
	store := &bucket{objects: map[string][]byte{}}
	payload := []byte("PK\x03\x04 jira export")

	sinks := []sink.Sink{
		sink.NewLocal(fs, cfg.BackupDir, zap.NewNop()),
		sink.NewRemote(store, sink.Destination{Bucket: "backups", Prefix: "jira/"}, zap.NewNop()),
	}

	runs := &recordingStore{}
	b := newTestBackup(t, cfg, WithFs(fs), WithSinks(sinks...), WithHistory(runs))

	gock.New(site).Post("/rest/backup/1/export/runbackup").Reply(200).JSON(map[string]string{"taskId": "7"})
	gock.New(site).Get("/rest/backup/1/export/getProgress").Reply(200).JSON(map[string]any{"progress": 10})
	gock.New(site).Get("/rest/backup/1/export/getProgress").Reply(200).JSON(map[string]any{"progress": 55})
	gock.New(site).Get("/rest/backup/1/export/getProgress").Reply(200).
		JSON(map[string]any{"status": "SUCCESS", "progress": 100, "result": "export123.zip"})
	// fetched exactly once for both destinations
	gock.New(site).Get("/plugins/servlet/export123.zip").Times(1).Reply(200).
		SetHeader("Content-Type", "application/zip").
		Body(bytes.NewReader(payload))

	result, err := b.Run(context.Background(), atlassian.Jira)
	require.NoError(t, err)
	assert.True(t, gock.IsDone())

	assert.Equal(t, site+"/plugins/servlet/export123.zip", result.DownloadURL)
	assert.Equal(t, "29022024_1830_export123.zip", result.Filename)
	assert.Equal(t, int64(len(payload)), result.Size)

	local, err := afero.ReadFile(fs, filepath.Join("/backups", result.Filename))
	require.NoError(t, err)
	assert.Equal(t, payload, local)
	assert.Equal(t, payload, store.objects["backups/jira/"+result.Filename])

	last := runs.last()
	assert.Equal(t, history.StatusCompleted, last.Status)
	assert.Equal(t, "7", last.TaskID)
	assert.Equal(t, 100, last.Progress)
	assert.Len(t, last.Destinations, 2)
}

func TestRunStartFailureStopsBeforePolling(t *testing.T) {
	runs := &recordingStore{}
	b := newTestBackup(t, testConfig(), WithFs(afero.NewMemMapFs()), WithHistory(runs))

	gock.New(site).Post("/wiki/rest/obm/1.0/runbackup").Reply(500).BodyString("nope")
	progress := gock.New(site).Get("/wiki/rest/obm/1.0/getprogress").Reply(200).JSON(map[string]any{"fileName": "x"})

	_, err := b.Run(context.Background(), atlassian.Confluence)
	require.Error(t, err)

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.KindJobStart, appErr.Kind)
	assert.Equal(t, 500, appErr.StatusCode)
	assert.False(t, progress.Mock.Done())

	assert.Equal(t, history.StatusFailed, runs.last().Status)
}

func TestRunTimeoutRecorded(t *testing.T) {
	cfg := testConfig()
	cfg.Poll.Timeout = time.Nanosecond

	runs := &recordingStore{}
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := atlassian.WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	})
	b := newTestBackup(t, cfg, WithFs(afero.NewMemMapFs()), WithHistory(runs), WithOrchestratorOptions(tick))

	gock.New(site).Post("/rest/backup/1/export/runbackup").Reply(200).JSON(map[string]string{"taskId": "9"})
	gock.New(site).Get("/rest/backup/1/export/getProgress").Persist().Reply(200).JSON(map[string]any{"progress": 1})

	_, err := b.Run(context.Background(), atlassian.Jira)
	assert.Equal(t, apperr.KindTimeout, apperr.KindOf(err))
	assert.Equal(t, history.StatusTimedOut, runs.last().Status)
}

func TestRunCanceledRecorded(t *testing.T) {
	runs := &recordingStore{}
	interrupted := atlassian.WithSleep(func(context.Context, time.Duration) error { return context.Canceled })
	b := newTestBackup(t, testConfig(), WithFs(afero.NewMemMapFs()), WithHistory(runs), WithOrchestratorOptions(interrupted))

	gock.New(site).Post("/rest/backup/1/export/runbackup").Reply(200).JSON(map[string]string{"taskId": "5"})

	_, err := b.Run(context.Background(), atlassian.Jira)
	assert.Equal(t, apperr.ExitCodeCanceled, apperr.ExitCode(err))
	assert.Equal(t, history.StatusCanceled, runs.last().Status)
	assert.Equal(t, "5", runs.last().TaskID)
}

func TestRunWithoutDestinationsSkipsDownload(t *testing.T) {
	cfg := testConfig()
	cfg.DownloadLocally = false

	b := newTestBackup(t, cfg, WithFs(afero.NewMemMapFs()), WithHistory(history.Nop{}))
	require.Empty(t, b.sinks)

	gock.New(site).Post("/rest/backup/1/export/runbackup").Reply(200).JSON(map[string]string{"taskId": "3"})
	gock.New(site).Get("/rest/backup/1/export/getProgress").Reply(200).JSON(map[string]any{"result": "export/download/?fileId=42"})

	result, err := b.Run(context.Background(), atlassian.Jira)
	require.NoError(t, err)
	assert.Equal(t, "29022024_1830_42.zip", result.Filename)
	assert.Zero(t, result.Size)
}

func TestListHistory(t *testing.T) {
	cfg := testConfig()
	cfg.History = filepath.Join(t.TempDir(), "history.db")

	store, err := history.NewSQLiteStore(cfg.History)
	require.NoError(t, err)
	require.NoError(t, store.SaveRun(history.NewRun("jira")))
	require.NoError(t, store.Close())

	runs, err := ListHistory(cfg, 5)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	cfg.History = ""
	_, err = ListHistory(cfg, 5)
	assert.Error(t, err)
}

// recordingStore keeps a copy of every saved record
type recordingStore struct {
	history.Nop
	saved []history.RunRecord
}

func (r *recordingStore) SaveRun(record *history.RunRecord) error {
	r.saved = append(r.saved, *record)
	return nil
}

func (r *recordingStore) last() history.RunRecord {
	return r.saved[len(r.saved)-1]
}
