package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	synchttp "github.com/ligustah/orthanc-sync/internal/http"
	"github.com/ligustah/orthanc-sync/internal/manifest"
	"github.com/ligustah/orthanc-sync/internal/progress"
	"github.com/ligustah/orthanc-sync/internal/sink"
)

// DefaultWorkers is the pool size used when Options.Workers is not set.
const DefaultWorkers = 10

// ErrSizeMismatch is returned when the body is shorter or longer than the
// announced Content-Length.
var ErrSizeMismatch = errors.New("downloader: size mismatch")

// Options configures the downloader.
type Options struct {
	// Repository is the raw-file base URL.
	Repository string

	// Workers is the maximum number of simultaneous fetches.
	Workers int

	// KeepGoing schedules every task even after a failure. By default no
	// new task starts once one has failed.
	KeepGoing bool

	// Progress is an optional progress reporter.
	Progress *progress.Reporter

	// Logger receives diagnostics. Default: no-op.
	Logger *zap.Logger

	// HTTPOptions configures the HTTP client.
	HTTPOptions synchttp.Options
}

// Status is the outcome of a single task.
type Status string

const (
	// StatusOK means the file was written.
	StatusOK Status = "ok"
	// StatusFailed means the fetch or the write failed.
	StatusFailed Status = "failed"
	// StatusSkipped means the task never started.
	StatusSkipped Status = "skipped"
)

// Result records what happened to one task.
type Result struct {
	Task     manifest.Task
	URL      string
	Status   Status
	Bytes    int64
	Err      error
	Duration time.Duration
}

// FetchError is the error of a failed task. It always names the URL.
type FetchError struct {
	URL    string
	Target string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// BatchError is returned by Run when at least one task failed.
// Use errors.As to extract it and inspect Failed.
type BatchError struct {
	Failed  []Result
	Skipped int
}

func (e *BatchError) Error() string {
	urls := e.URLs()
	msg := fmt.Sprintf("%d files failed: %s", len(urls), strings.Join(urls, ", "))
	if e.Skipped > 0 {
		msg += fmt.Sprintf(" (%d not attempted)", e.Skipped)
	}
	return msg
}

// URLs returns the URL of every failed task.
func (e *BatchError) URLs() []string {
	urls := make([]string, len(e.Failed))
	for i, r := range e.Failed {
		urls[i] = r.URL
	}
	return urls
}

// Report holds one Result per manifest task, in manifest order.
type Report struct {
	Results []Result
}

// Succeeded returns the results with StatusOK.
func (r *Report) Succeeded() []Result { return r.filter(StatusOK) }

// Failed returns the results with StatusFailed.
func (r *Report) Failed() []Result { return r.filter(StatusFailed) }

// Skipped returns the results with StatusSkipped.
func (r *Report) Skipped() []Result { return r.filter(StatusSkipped) }

// Bytes returns the number of bytes written by successful tasks.
func (r *Report) Bytes() int64 {
	var n int64
	for _, res := range r.Results {
		if res.Status == StatusOK {
			n += res.Bytes
		}
	}
	return n
}

func (r *Report) filter(s Status) []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Status == s {
			out = append(out, res)
		}
	}
	return out
}

// Fetcher downloads manifest tasks into a sink.
type Fetcher struct {
	client *synchttp.Client
	sink   sink.Sink
	opts   Options
	log    *zap.Logger
}

// New creates a Fetcher writing to s.
func New(s sink.Sink, opts Options) *Fetcher {
	// Apply defaults
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.HTTPOptions.MaxIdleConnsPerHost == 0 {
		opts.HTTPOptions.MaxIdleConnsPerHost = opts.Workers
	}
	if opts.HTTPOptions.RetryBackoff == 0 {
		opts.HTTPOptions.RetryBackoff = synchttp.DefaultOptions().RetryBackoff
	}
	if opts.HTTPOptions.RetryMaxBackoff == 0 {
		opts.HTTPOptions.RetryMaxBackoff = synchttp.DefaultOptions().RetryMaxBackoff
	}

	return &Fetcher{
		client: synchttp.NewClient(opts.HTTPOptions),
		sink:   s,
		opts:   opts,
		log:    opts.Logger,
	}
}

// Fetch downloads one task. The target location is reported to the progress
// reporter before the request is sent. A failed fetch leaves the previous
// content of the target untouched.
func (f *Fetcher) Fetch(ctx context.Context, task manifest.Task) Result {
	url := manifest.URL(f.opts.Repository, task)
	res := Result{Task: task, URL: url}

	if f.opts.Progress != nil {
		f.opts.Progress.FileStarted(f.sink.Location(task.Target))
	}

	start := time.Now()
	n, err := f.fetch(ctx, url, task.Target)
	res.Duration = time.Since(start)

	if err != nil {
		res.Status = StatusFailed
		res.Err = &FetchError{URL: url, Target: task.Target, Err: err}
		if f.opts.Progress != nil {
			f.opts.Progress.FileFailed()
		}
		f.log.Error("fetch failed",
			zap.String("url", url),
			zap.String("target", task.Target),
			zap.Error(err),
		)
		return res
	}

	res.Status = StatusOK
	res.Bytes = n
	if f.opts.Progress != nil {
		f.opts.Progress.FileCompleted(n)
	}
	f.log.Debug("fetched",
		zap.String("url", url),
		zap.String("target", task.Target),
		zap.Int64("bytes", n),
		zap.Duration("duration", res.Duration),
	)
	return res
}

func (f *Fetcher) fetch(ctx context.Context, url, target string) (int64, error) {
	resp, err := f.client.Get(ctx, url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	w, err := f.sink.Create(ctx, target)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		w.Abort()
		return n, fmt.Errorf("read body: %w", err)
	}

	if resp.ContentLength >= 0 && n != resp.ContentLength {
		w.Abort()
		return n, fmt.Errorf("%w: expected %d, got %d", ErrSizeMismatch, resp.ContentLength, n)
	}

	if err := w.Commit(); err != nil {
		return n, err
	}
	return n, nil
}

// Run fetches every task of m with at most Options.Workers in flight and
// waits for all of them. Unless KeepGoing is set, the first failure stops
// scheduling; tasks already running are allowed to finish and the rest are
// reported as skipped. The returned Report is never nil. The error is a
// *BatchError when any task failed.
func (f *Fetcher) Run(ctx context.Context, m manifest.Manifest) (*Report, error) {
	report := &Report{Results: make([]Result, len(m))}
	for i, task := range m {
		report.Results[i] = Result{
			Task:   task,
			URL:    manifest.URL(f.opts.Repository, task),
			Status: StatusSkipped,
		}
	}

	f.log.Info("starting sync",
		zap.String("repository", f.opts.Repository),
		zap.Int("files", len(m)),
		zap.Int("workers", f.opts.Workers),
	)

	var aborted atomic.Bool
	stop := func() bool {
		return ctx.Err() != nil || (!f.opts.KeepGoing && aborted.Load())
	}

	var g errgroup.Group
	g.SetLimit(f.opts.Workers)

	for i, task := range m {
		if stop() {
			break
		}
		i, task := i, task
		g.Go(func() error {
			if stop() {
				return nil
			}
			res := f.Fetch(ctx, task)
			report.Results[i] = res
			if res.Status == StatusFailed {
				aborted.Store(true)
			}
			return nil
		})
	}

	// Workers never return errors; failures live in the report.
	_ = g.Wait()

	failed := report.Failed()
	if len(failed) > 0 {
		return report, &BatchError{
			Failed:  failed,
			Skipped: len(report.Skipped()),
		}
	}

	if ctx.Err() != nil {
		return report, ctx.Err()
	}

	f.log.Info("sync complete",
		zap.Int("files", len(m)),
		zap.Int64("bytes", report.Bytes()),
	)
	return report, nil
}
