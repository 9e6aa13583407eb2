package sink

import (
	"context"
	"fmt"
	"path"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// Bucket stores targets as objects below a key prefix.
type Bucket struct {
	bucket *blob.Bucket
	prefix string
	owned  bool
}

var _ Sink = (*Bucket)(nil)

// OpenBucket opens the bucket at url (file://, mem://, s3://, gs://, ...).
// The bucket is closed by Close.
func OpenBucket(ctx context.Context, url, prefix string) (*Bucket, error) {
	b, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("sink: open bucket: %w", err)
	}
	return &Bucket{bucket: b, prefix: prefix, owned: true}, nil
}

// NewBucket wraps an already open bucket. The caller keeps ownership.
func NewBucket(b *blob.Bucket, prefix string) *Bucket {
	return &Bucket{bucket: b, prefix: prefix}
}

// Key returns the object key of target. Targets are resolved against the
// prefix, so "../Orthanc/x" under prefix "Resources" becomes "Orthanc/x".
func (b *Bucket) Key(target string) (string, error) {
	key := path.Join(b.prefix, target)
	if key == "." || key == ".." || strings.HasPrefix(key, "../") || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, target)
	}
	return key, nil
}

// Location returns the object key of target.
func (b *Bucket) Location(target string) string {
	key, err := b.Key(target)
	if err != nil {
		return target
	}
	return key
}

// Create opens an object writer for target. Aborting cancels the upload.
func (b *Bucket) Create(ctx context.Context, target string) (Writer, error) {
	key, err := b.Key(target)
	if err != nil {
		return nil, err
	}

	wctx, cancel := context.WithCancel(ctx)
	w, err := b.bucket.NewWriter(wctx, key, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("sink: new writer %s: %w", key, err)
	}

	return &objectWriter{w: w, key: key, cancel: cancel}, nil
}

// Stat returns the size of the object at target.
func (b *Bucket) Stat(ctx context.Context, target string) (int64, error) {
	key, err := b.Key(target)
	if err != nil {
		return 0, err
	}

	attrs, err := b.bucket.Attributes(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return 0, fmt.Errorf("%w: %s", ErrNotExist, key)
		}
		return 0, fmt.Errorf("sink: attributes %s: %w", key, err)
	}
	return attrs.Size, nil
}

// Close closes the bucket if it was opened by OpenBucket.
func (b *Bucket) Close() error {
	if !b.owned {
		return nil
	}
	return b.bucket.Close()
}

type objectWriter struct {
	w      *blob.Writer
	key    string
	cancel context.CancelFunc
}

func (o *objectWriter) Write(p []byte) (int, error) {
	return o.w.Write(p)
}

func (o *objectWriter) Commit() error {
	defer o.cancel()
	if err := o.w.Close(); err != nil {
		return fmt.Errorf("sink: commit %s: %w", o.key, err)
	}
	return nil
}

func (o *objectWriter) Abort() error {
	o.cancel()
	// Close after cancel discards the upload and reports the cancellation.
	_ = o.w.Close()
	return nil
}
