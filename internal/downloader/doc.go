// Package downloader fetches manifest files in parallel and stores them in a
// sink.
//
// # Usage
//
//	f := downloader.New(sink.NewDir("Resources"), downloader.Options{
//	    Repository: cfg.Repository,
//	    Workers:    10,
//	    Progress:   reporter,
//	})
//
//	report, err := f.Run(ctx, m)
//
// # Worker Pool
//
// At most Workers fetches run at once. Every task produces a [Result]; the
// [Report] keeps them in manifest order. A failure stops scheduling new
// tasks unless KeepGoing is set, and Run returns a [*BatchError] naming the
// failed URLs. In-flight tasks are never cancelled by a sibling's failure.
//
// # Graceful Shutdown
//
// Cancelling the context passed to Run stops scheduling and aborts running
// requests. Aborted writes leave previous files in place.
package downloader
