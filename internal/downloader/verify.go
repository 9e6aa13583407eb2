package downloader

import (
	"context"
	"errors"
	"fmt"

	"github.com/ligustah/orthanc-sync/internal/manifest"
	"github.com/ligustah/orthanc-sync/internal/sink"
)

// VerifyResult contains the results of checking a destination against a
// manifest.
type VerifyResult struct {
	Valid   bool     // true if every target exists and is non-empty
	Checked int      // number of targets checked
	Missing []string // targets that don't exist
	Empty   []string // targets with zero bytes
	Bytes   int64    // total size of the present targets
}

// Verify checks that every target of m is present in s. It does not touch
// the network.
//
// Missing or empty targets are NOT returned as errors; they are reported
// in the VerifyResult with Valid=false. An error is returned only when the
// sink itself cannot be queried.
func Verify(ctx context.Context, s sink.Sink, m manifest.Manifest) (*VerifyResult, error) {
	result := &VerifyResult{Valid: true}

	for _, task := range m {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result.Checked++
		size, err := s.Stat(ctx, task.Target)
		if err != nil {
			if errors.Is(err, sink.ErrNotExist) {
				result.Valid = false
				result.Missing = append(result.Missing, task.Target)
				continue
			}
			return nil, fmt.Errorf("verify %s: %w", task.Target, err)
		}

		if size == 0 {
			result.Valid = false
			result.Empty = append(result.Empty, task.Target)
		}
		result.Bytes += size
	}

	return result, nil
}
