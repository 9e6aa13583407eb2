package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ligustah/orthanc-sync/internal/config"
	"github.com/ligustah/orthanc-sync/internal/downloader"
	synchttp "github.com/ligustah/orthanc-sync/internal/http"
	"github.com/ligustah/orthanc-sync/internal/logger"
	"github.com/ligustah/orthanc-sync/internal/manifest"
	"github.com/ligustah/orthanc-sync/internal/progress"
)

func runSync(args []string) int {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)

	var common commonFlags
	common.register(fs)
	workers := fs.Int("workers", 0, "Number of parallel downloads (default 10)")
	timeout := fs.Duration("timeout", 0, "Per-request timeout (default none)")
	retryAttempts := fs.Int("retry-attempts", 0, "Retries for connection errors and 5xx responses")
	keepGoing := fs.Bool("keep-going", false, "Attempt every file even after a failure")
	quiet := fs.Bool("quiet", false, "Suppress the header and summary")

	fs.Usage = func() {
		fmt.Fprintln(stderr, `Usage: orthanc-sync sync [options]

Fetch every file of the manifest from the Orthanc repository and write it
to the target directory or bucket. Each target path is printed before its
download starts. Existing files are replaced only once the new content has
been fully received.

Options:`)
		fs.PrintDefaults()
	}

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	override := common.override()
	override.Workers = *workers
	override.Timeout = *timeout
	override.KeepGoing = *keepGoing
	override.Quiet = *quiet
	override.Retry.Attempts = *retryAttempts

	cfg, err := common.load(override)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	log, err := logger.NewWithWriter(cfg.Logging.Level, cfg.Logging.Format, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	defer log.Sync()

	m, err := manifest.Build(cfg.Sources())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(stderr, "\n[orthanc-sync] Received interrupt, shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return syncFiles(ctx, cfg, m, log)
}

func syncFiles(ctx context.Context, cfg config.Config, m manifest.Manifest, log *zap.Logger) int {
	s, err := openSink(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitStorageError
	}
	defer s.Close()

	reporter := progress.NewReporter(progress.Options{
		TotalFiles: len(m),
		Workers:    cfg.Workers,
		Output:     stdout,
		Repository: cfg.Repository,
		Quiet:      cfg.Quiet,
	})

	f := downloader.New(s, downloader.Options{
		Repository: cfg.Repository,
		Workers:    cfg.Workers,
		KeepGoing:  cfg.KeepGoing,
		Progress:   reporter,
		Logger:     log,
		HTTPOptions: synchttp.Options{
			Timeout:         cfg.Timeout,
			RetryAttempts:   cfg.Retry.Attempts,
			RetryBackoff:    cfg.Retry.Backoff,
			RetryMaxBackoff: cfg.Retry.MaxBackoff,
		},
	})

	reporter.Start()
	_, err = f.Run(ctx, m)
	reporter.Stop()

	if err != nil {
		var batchErr *downloader.BatchError
		if errors.As(err, &batchErr) {
			for _, r := range batchErr.Failed {
				var fetchErr *downloader.FetchError
				if errors.As(r.Err, &fetchErr) {
					fmt.Fprintf(stderr, "ERROR %s: %v\n", fetchErr.URL, fetchErr.Err)
				} else {
					fmt.Fprintf(stderr, "ERROR %s: %v\n", r.URL, r.Err)
				}
			}
			if batchErr.Skipped > 0 {
				fmt.Fprintf(stderr, "[orthanc-sync] %d files not attempted\n", batchErr.Skipped)
			}
			return ExitFetchFailed
		}

		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(stderr, "[orthanc-sync] Interrupted")
			return ExitGeneralError
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitGeneralError
	}

	return ExitSuccess
}
