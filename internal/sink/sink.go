package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	// ErrNotExist is returned by Stat when the target has not been written.
	ErrNotExist = errors.New("sink: target does not exist")

	// ErrOutsideRoot is returned when a target resolves outside the bucket.
	ErrOutsideRoot = errors.New("sink: target outside bucket root")
)

// Sink stores fetched files under slash separated target paths.
type Sink interface {
	// Create opens target for writing. Nothing is visible at target until
	// the returned Writer is committed.
	Create(ctx context.Context, target string) (Writer, error)

	// Stat returns the size of a stored target, or an error wrapping
	// ErrNotExist.
	Stat(ctx context.Context, target string) (int64, error)

	// Location describes where target is stored, for display.
	Location(target string) string

	Close() error
}

// Writer receives the body of one file.
type Writer interface {
	io.Writer

	// Commit publishes the written bytes at the target, replacing any
	// previous content.
	Commit() error

	// Abort discards the written bytes and leaves the target untouched.
	Abort() error
}

// EnsureDir creates dir and any missing parents. An existing directory is
// not an error; anything else (permissions, a file in the way) is.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("sink: ensure dir: %w", err)
	}
	return nil
}
