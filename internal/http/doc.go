// Package http provides the HTTP client used to fetch raw repository files.
//
// This package handles:
//   - Connection pooling shared by all workers
//   - Mapping of non-2xx statuses to sentinel errors
//   - Optional retry with exponential backoff (disabled by default)
//
// # Usage
//
//	client := http.NewClient(http.DefaultOptions())
//
//	resp, err := client.Get(ctx, url)
//	if err != nil {
//	    return err
//	}
//	defer resp.Body.Close()
package http
