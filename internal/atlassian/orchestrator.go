package atlassian

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"atlasbackup/internal/apperr"
	"atlasbackup/internal/artifact"

	"go.uber.org/zap"
)

// PollPolicy bounds the progress loop
type PollPolicy struct {
	Interval time.Duration
	// Timeout of zero polls until the job finishes or ctx is cancelled.
	Timeout time.Duration
	// MaxInterval above Interval doubles the wait after each poll up to this cap.
	MaxInterval time.Duration
}

// Options configures an Orchestrator
type Options struct {
	IncludeAttachments bool
	Poll               PollPolicy
}

// Orchestrator runs one backup job against the vendor
type Orchestrator struct {
	client   *Client
	opts     Options
	logger   *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
	onStatus func(JobStatus)
}

// Option customizes an Orchestrator
type Option func(*Orchestrator)

// WithSleep replaces the wait between polls
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) {
		o.sleep = sleep
	}
}

// WithClock replaces the time source used for the poll deadline
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithStatusHook is called with every status received while polling
func WithStatusHook(fn func(JobStatus)) Option {
	return func(o *Orchestrator) {
		o.onStatus = fn
	}
}

// NewOrchestrator creates an orchestrator bound to an authenticated client
func NewOrchestrator(client *Client, opts Options, logger *zap.Logger, options ...Option) *Orchestrator {
	o := &Orchestrator{
		client:   client,
		opts:     opts,
		logger:   logger,
		sleep:    sleepContext,
		now:      time.Now,
		onStatus: func(JobStatus) {},
	}

	for _, opt := range options {
		opt(o)
	}

	return o
}

// StartJob asks the vendor to start a backup export
func (o *Orchestrator) StartJob(ctx context.Context, product Product) (JobHandle, error) {
	line, err := lineFor(product)
	if err != nil {
		return JobHandle{}, apperr.New(apperr.KindConfig, "start backup", err)
	}

	op := fmt.Sprintf("start %s backup", product)
	resp, err := o.client.do(ctx, http.MethodPost, o.client.URL(line.startPath()), newStartPayload(o.opts.IncludeAttachments))
	if err != nil {
		return JobHandle{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return JobHandle{}, apperr.FromResponse(apperr.KindJobStart, op, resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return JobHandle{}, apperr.New(apperr.KindTransport, op, err)
	}

	body := map[string]json.RawMessage{}
	if len(data) > 0 {
		// Confluence may answer with an empty or non-JSON body
		if err := json.Unmarshal(data, &body); err != nil && product == Jira {
			return JobHandle{}, &apperr.Error{Kind: apperr.KindJobStart, Op: op, StatusCode: resp.StatusCode, Body: data, Err: err}
		}
	}

	handle, err := line.handleFromStart(body)
	if err != nil {
		return JobHandle{}, &apperr.Error{Kind: apperr.KindJobStart, Op: op, StatusCode: resp.StatusCode, Body: data, Err: err}
	}

	o.logger.Info("Backup process successfully started",
		zap.String("product", string(product)),
		zap.String("task_id", handle.TaskID),
		zap.Bool("include_attachments", o.opts.IncludeAttachments),
	)

	return handle, nil
}

// PollUntilComplete waits for the terminal field and returns the download URL
func (o *Orchestrator) PollUntilComplete(ctx context.Context, handle JobHandle) (string, error) {
	line, err := lineFor(handle.Product)
	if err != nil {
		return "", apperr.New(apperr.KindConfig, "poll backup", err)
	}

	op := fmt.Sprintf("poll %s backup", handle.Product)
	progressURL := o.client.URL(line.progressPath(handle))
	start := o.now()

	for attempt := 1; ; attempt++ {
		if err := o.sleep(ctx, o.interval(attempt)); err != nil {
			return "", apperr.New(apperr.KindCanceled, op, err)
		}

		raw := map[string]json.RawMessage{}
		if err := o.client.doJSON(ctx, apperr.KindTransport, op, http.MethodGet, progressURL, nil, &raw); err != nil {
			return "", err
		}

		status := line.parseStatus(raw)
		o.onStatus(status)

		o.logger.Info("Current status",
			zap.String("product", string(handle.Product)),
			zap.Int("attempt", attempt),
			zap.String("state", status.State),
			zap.Int("progress", status.Progress),
			zap.String("description", status.Description),
		)

		if status.Failed {
			return "", apperr.Newf(apperr.KindJobFailed, op, "job reported %s: %s", status.State, status.Description)
		}
		if status.Done() {
			return o.client.URL(line.downloadPath(status.Terminal)), nil
		}

		if o.opts.Poll.Timeout > 0 && o.now().Sub(start) >= o.opts.Poll.Timeout {
			return "", apperr.Newf(apperr.KindTimeout, op,
				"job taking too long: still running after %s (last progress %d%%)", o.opts.Poll.Timeout, status.Progress)
		}
	}
}

// interval returns the wait before the given attempt
func (o *Orchestrator) interval(attempt int) time.Duration {
	base := o.opts.Poll.Interval
	limit := o.opts.Poll.MaxInterval
	if limit <= base {
		return base
	}

	d := base
	for i := 1; i < attempt && d < limit; i++ {
		d *= 2
	}
	if d > limit {
		d = limit
	}
	return d
}

// FetchArtifact streams the archive at url into the spool. The byte count is
// checked against Content-Length when the server sends one.
func (o *Orchestrator) FetchArtifact(ctx context.Context, url, name string, spool *artifact.Spool) (*artifact.Artifact, error) {
	const op = "download backup"

	o.logger.Info("Downloading file", zap.String("url", url))

	resp, err := o.client.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperr.FromResponse(apperr.KindDownload, op, resp)
	}

	a, err := spool.Write(resp.Body, name, resp.Header.Get("Content-Type"), url)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperr.New(apperr.KindCanceled, op, ctx.Err())
		}
		return nil, apperr.New(apperr.KindDownload, op, err)
	}

	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if want, perr := strconv.ParseInt(cl, 10, 64); perr == nil && want != a.Size {
			a.Remove()
			return nil, apperr.Newf(apperr.KindDownload, op, "size mismatch: got %d bytes, expected %d", a.Size, want)
		}
	}

	o.logger.Info("Download finished",
		zap.String("name", a.Name),
		zap.Int64("size", a.Size),
		zap.String("sha256", a.SHA256),
	)

	return a, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
