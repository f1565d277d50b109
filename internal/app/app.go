package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"atlasbackup/internal/apperr"
	"atlasbackup/internal/artifact"
	"atlasbackup/internal/atlassian"
	"atlasbackup/internal/config"
	"atlasbackup/internal/history"
	"atlasbackup/internal/metrics"
	"atlasbackup/internal/progress"
	"atlasbackup/internal/sink"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Result summarizes a finished run
type Result struct {
	RunID        string
	DownloadURL  string
	Filename     string
	Size         int64
	SHA256       string
	Destinations []string
}

// Backup represents the main backup application
type Backup struct {
	cfg      *config.Config
	logger   *zap.Logger
	fs       afero.Fs
	client   *atlassian.Client
	history  history.Store
	metrics  *metrics.Collector
	sinks    []sink.Sink
	progress io.Writer
	orchOpts []atlassian.Option
	now      func() time.Time
}

// Option customizes a Backup
type Option func(*Backup)

// WithHTTPClient sets the HTTP client used for every vendor request
func WithHTTPClient(client *http.Client) Option {
	return func(b *Backup) {
		b.client = atlassian.NewClient(b.cfg.HostURL, b.cfg.UserEmail, b.cfg.APIToken, atlassian.WithHTTPClient(client))
	}
}

// WithFs sets the filesystem used for spooling and local copies
func WithFs(fs afero.Fs) Option {
	return func(b *Backup) {
		b.fs = fs
	}
}

// WithHistory replaces the history store
func WithHistory(store history.Store) Option {
	return func(b *Backup) {
		b.history = store
	}
}

// WithSinks replaces the sinks derived from the configuration
func WithSinks(sinks ...sink.Sink) Option {
	return func(b *Backup) {
		b.sinks = sinks
	}
}

// WithProgressOutput draws a progress bar on w while polling
func WithProgressOutput(w io.Writer) Option {
	return func(b *Backup) {
		b.progress = w
	}
}

// WithOrchestratorOptions passes options through to the orchestrator
func WithOrchestratorOptions(opts ...atlassian.Option) Option {
	return func(b *Backup) {
		b.orchOpts = append(b.orchOpts, opts...)
	}
}

// WithClock sets the time used to name the artifact
func WithClock(now func() time.Time) Option {
	return func(b *Backup) {
		b.now = now
	}
}

// New creates a new backup application
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Backup, error) {
	b := &Backup{
		cfg:     cfg,
		logger:  logger,
		fs:      afero.NewOsFs(),
		client:  atlassian.NewClient(cfg.HostURL, cfg.UserEmail, cfg.APIToken),
		metrics: metrics.New(),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(b)
	}

	if b.history == nil {
		store, err := openHistory(cfg.History)
		if err != nil {
			return nil, apperr.New(apperr.KindConfig, "open history", err)
		}
		b.history = store
	}

	if b.sinks == nil {
		sinks, err := sink.FromConfig(cfg, b.fs, sink.NewMinIOFactory, logger)
		if err != nil {
			b.history.Close()
			return nil, apperr.New(apperr.KindConfig, "configure destinations", err)
		}
		b.sinks = sinks
	}

	return b, nil
}

func openHistory(path string) (history.Store, error) {
	if path == "" {
		return history.Nop{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return history.NewSQLiteStore(path)
}

// Run executes one backup for the product line
func (b *Backup) Run(ctx context.Context, product atlassian.Product) (*Result, error) {
	started := b.now()
	run := history.NewRun(string(product))
	b.saveRun(run)

	b.logger.Info("Starting backup",
		zap.String("run_id", run.ID),
		zap.String("product", string(product)),
		zap.String("host", b.cfg.HostURL),
		zap.Bool("include_attachments", b.cfg.IncludeAttachments),
		zap.Int("destinations", len(b.sinks)),
	)

	result, err := b.run(ctx, product, run)

	status := history.StatusCompleted
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindTimeout:
			status = history.StatusTimedOut
		case apperr.KindCanceled:
			status = history.StatusCanceled
		default:
			status = history.StatusFailed
		}
		run.LastError = err.Error()
	}
	run.Status = status
	b.saveRun(run)

	b.metrics.ObserveRun(string(status), b.now().Sub(started))
	b.pushMetrics(ctx, product)

	if err != nil {
		b.logger.Error("Backup failed",
			zap.String("run_id", run.ID),
			zap.String("kind", string(apperr.KindOf(err))),
			zap.Error(err),
		)
		return nil, err
	}

	b.logger.Info("Backup completed",
		zap.String("run_id", run.ID),
		zap.String("file", result.Filename),
		zap.String("size", progress.FormatBytes(result.Size)),
		zap.Strings("destinations", result.Destinations),
	)
	return result, nil
}

func (b *Backup) run(ctx context.Context, product atlassian.Product, run *history.RunRecord) (*Result, error) {
	tracker := progress.NewTracker(string(product))
	var display *progress.Display
	if b.progress != nil {
		display = progress.NewDisplay(tracker, b.progress)
		defer display.Finish()
	}

	hook := atlassian.WithStatusHook(func(s atlassian.JobStatus) {
		tracker.Update(s.State, s.Description, s.Progress)
		b.metrics.ObservePoll(s.Progress)
		run.Progress = s.Progress
		if display != nil {
			display.Render()
		}
	})

	orch := atlassian.NewOrchestrator(b.client, atlassian.Options{
		IncludeAttachments: b.cfg.IncludeAttachments,
		Poll: atlassian.PollPolicy{
			Interval:    b.cfg.Poll.Interval,
			Timeout:     b.cfg.Poll.Timeout,
			MaxInterval: b.cfg.Poll.MaxInterval,
		},
	}, b.logger, append([]atlassian.Option{hook}, b.orchOpts...)...)

	handle, err := orch.StartJob(ctx, product)
	if err != nil {
		return nil, err
	}
	run.TaskID = handle.TaskID
	run.Status = history.StatusRunning
	b.saveRun(run)

	url, err := orch.PollUntilComplete(ctx, handle)
	if err != nil {
		return nil, err
	}
	if display != nil {
		display.Finish()
	}
	run.DownloadURL = url
	b.logger.Info("Backup URL", zap.String("url", url))

	result := &Result{
		RunID:       run.ID,
		DownloadURL: url,
		Filename:    artifact.Filename(b.now(), url),
	}
	run.Filename = result.Filename

	if len(b.sinks) == 0 {
		b.logger.Warn("No destination configured, archive left on the server",
			zap.String("url", url))
		return result, nil
	}

	a, err := orch.FetchArtifact(ctx, url, result.Filename, artifact.NewSpool(b.fs, ""))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := a.Remove(); err != nil {
			b.logger.Warn("Failed to remove spool file", zap.Error(err))
		}
	}()

	result.Size = a.Size
	result.SHA256 = a.SHA256
	run.Size = a.Size
	run.SHA256 = a.SHA256
	b.metrics.SetArtifactBytes(a.Size)

	written, err := sink.FanOut(ctx, a, b.sinks...)
	run.Destinations = written
	result.Destinations = written
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (b *Backup) saveRun(run *history.RunRecord) {
	if err := b.history.SaveRun(run); err != nil {
		b.logger.Warn("Failed to record run history",
			zap.String("run_id", run.ID),
			zap.Error(err))
	}
}

func (b *Backup) pushMetrics(ctx context.Context, product atlassian.Product) {
	if b.cfg.Metrics.Pushgateway == "" {
		return
	}

	// the run context may already be cancelled
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := b.metrics.Push(pushCtx, b.cfg.Metrics.Pushgateway, b.cfg.Metrics.Job, string(product)); err != nil {
		b.logger.Warn("Failed to push metrics", zap.Error(err))
	}
}

// History returns the run history store
func (b *Backup) History() history.Store {
	return b.history
}

// Close cleans up resources
func (b *Backup) Close() error {
	if b.history != nil {
		return b.history.Close()
	}
	return nil
}

// ListHistory opens the configured history store and returns recent runs
func ListHistory(cfg *config.Config, limit int) ([]*history.RunRecord, error) {
	if cfg.History == "" {
		return nil, fmt.Errorf("history is disabled in the configuration")
	}

	store, err := history.NewSQLiteStore(cfg.History)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	return store.ListRuns(limit)
}
