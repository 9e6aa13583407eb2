// Package sink stores fetched files.
//
// [Dir] writes below a local directory, the default destination. Each file
// is written to a ".downloading" sibling and renamed into place on
// [Writer.Commit], so an interrupted run never leaves a truncated file at a
// target. [Bucket] writes objects to any gocloud.dev/blob bucket.
package sink
