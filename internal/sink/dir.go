package sink

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// partialSuffix marks a file that is still being written.
const partialSuffix = ".downloading"

// Dir stores targets below a local root directory. Targets may climb out of
// the root with "..", as the SDK headers do.
type Dir struct {
	root string
}

var _ Sink = (*Dir)(nil)

// NewDir returns a Dir rooted at root. The root is created lazily.
func NewDir(root string) *Dir {
	return &Dir{root: root}
}

// Root returns the root directory.
func (d *Dir) Root() string {
	return d.root
}

// Location returns the local path of target.
func (d *Dir) Location(target string) string {
	return filepath.Join(d.root, filepath.FromSlash(target))
}

// Create ensures the parent directory of target exists and opens a partial
// file next to it.
func (d *Dir) Create(_ context.Context, target string) (Writer, error) {
	dest := d.Location(target)

	if err := EnsureDir(filepath.Dir(dest)); err != nil {
		return nil, err
	}

	tmp := dest + partialSuffix
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("sink: create %s: %w", tmp, err)
	}

	return &fileWriter{f: f, tmp: tmp, dest: dest}, nil
}

// Stat returns the size of the file at target.
func (d *Dir) Stat(_ context.Context, target string) (int64, error) {
	info, err := os.Stat(d.Location(target))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", ErrNotExist, target)
		}
		return 0, fmt.Errorf("sink: stat %s: %w", target, err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("sink: %s is a directory", target)
	}
	return info.Size(), nil
}

// Close is a no-op.
func (d *Dir) Close() error {
	return nil
}

type fileWriter struct {
	f    *os.File
	tmp  string
	dest string
}

func (w *fileWriter) Write(p []byte) (int, error) {
	return w.f.Write(p)
}

func (w *fileWriter) Commit() error {
	if err := w.f.Close(); err != nil {
		os.Remove(w.tmp)
		return fmt.Errorf("sink: close %s: %w", w.tmp, err)
	}
	if err := os.Rename(w.tmp, w.dest); err != nil {
		os.Remove(w.tmp)
		return fmt.Errorf("sink: rename %s: %w", w.dest, err)
	}
	return nil
}

func (w *fileWriter) Abort() error {
	w.f.Close()
	if err := os.Remove(w.tmp); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("sink: remove %s: %w", w.tmp, err)
	}
	return nil
}
