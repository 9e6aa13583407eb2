package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Options configures the progress reporter.
type Options struct {
	// TotalFiles is the number of files in the manifest.
	TotalFiles int

	// Workers is the number of parallel workers.
	Workers int

	// Output is where to write progress output.
	// Default: os.Stdout
	Output io.Writer

	// Repository is the base URL files are fetched from (for display).
	Repository string

	// Quiet suppresses the header and summary. File lines are still printed.
	Quiet bool
}

// Stats is a point-in-time view of the counters.
type Stats struct {
	Completed  int
	Failed     int
	InProgress int
	Bytes      int64
}

// Reporter outputs human-readable progress information.
type Reporter struct {
	opts Options

	mu             sync.Mutex
	completedBytes atomic.Int64
	completed      atomic.Int32
	failed         atomic.Int32
	inProgress     atomic.Int32
	startTime      time.Time
	stopped        bool
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Reporter{
		opts:      opts,
		startTime: time.Now(),
	}
}

// Start prints the header and resets the clock.
func (r *Reporter) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.startTime = time.Now()
	if r.opts.Quiet {
		return
	}
	fmt.Fprintf(r.opts.Output, "[orthanc-sync] Fetching %d files from %s | Workers: %d\n",
		r.opts.TotalFiles,
		r.opts.Repository,
		r.opts.Workers,
	)
}

// Stop prints the summary. Calling Stop more than once is a no-op.
func (r *Reporter) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return
	}
	r.stopped = true

	if !r.opts.Quiet {
		r.printFinalStatus()
	}
}

// FileStarted prints the location of a file about to be fetched.
func (r *Reporter) FileStarted(location string) {
	r.inProgress.Add(1)

	r.mu.Lock()
	fmt.Fprintln(r.opts.Output, location)
	r.mu.Unlock()
}

// FileCompleted marks a file as written.
func (r *Reporter) FileCompleted(size int64) {
	r.completedBytes.Add(size)
	r.completed.Add(1)
	r.inProgress.Add(-1)
}

// FileFailed marks a file as failed (removes from in-progress).
func (r *Reporter) FileFailed() {
	r.failed.Add(1)
	r.inProgress.Add(-1)
}

// Stats returns the current counters.
func (r *Reporter) Stats() Stats {
	return Stats{
		Completed:  int(r.completed.Load()),
		Failed:     int(r.failed.Load()),
		InProgress: int(r.inProgress.Load()),
		Bytes:      r.completedBytes.Load(),
	}
}

// printFinalStatus outputs the final status. Callers hold r.mu.
func (r *Reporter) printFinalStatus() {
	s := r.Stats()
	duration := time.Since(r.startTime)

	skipped := r.opts.TotalFiles - s.Completed - s.Failed - s.InProgress
	if skipped < 0 {
		skipped = 0
	}

	fmt.Fprintf(r.opts.Output, "[orthanc-sync] Files: %d completed | %d failed | %d skipped\n",
		s.Completed,
		s.Failed,
		skipped,
	)
	fmt.Fprintf(r.opts.Output, "[orthanc-sync] Total: %s in %s\n",
		FormatBytes(s.Bytes),
		formatDuration(duration),
	)
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm %ds", m, s)
}

// FormatBytes formats bytes as a human-readable IEC string (e.g. "1.5 KiB").
func FormatBytes(b int64) string {
	if b < 0 {
		b = 0
	}
	return humanize.IBytes(uint64(b))
}
