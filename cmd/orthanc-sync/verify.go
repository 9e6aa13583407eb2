package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/ligustah/orthanc-sync/internal/downloader"
	"github.com/ligustah/orthanc-sync/internal/manifest"
	"github.com/ligustah/orthanc-sync/internal/progress"
)

func runVerify(args []string) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)

	var common commonFlags
	common.register(fs)

	fs.Usage = func() {
		fmt.Fprintln(stderr, `Usage: orthanc-sync verify [options]

Check that every file of the manifest exists at the target and is not
empty. Does not access the repository.

Options:`)
		fs.PrintDefaults()
	}

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	cfg, err := common.load(common.override())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	m, err := manifest.Build(cfg.Sources())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	ctx := context.Background()

	s, err := openSink(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitStorageError
	}
	defer s.Close()

	result, err := downloader.Verify(ctx, s, m)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitStorageError
	}

	for _, target := range result.Missing {
		fmt.Fprintf(stdout, "MISSING %s\n", s.Location(target))
	}
	for _, target := range result.Empty {
		fmt.Fprintf(stdout, "EMPTY   %s\n", s.Location(target))
	}

	if !result.Valid {
		fmt.Fprintf(stdout, "[orthanc-sync] INVALID: %d missing, %d empty of %d files\n",
			len(result.Missing), len(result.Empty), result.Checked)
		return ExitVerificationFailed
	}

	fmt.Fprintf(stdout, "[orthanc-sync] VALID: %d files, %s\n", result.Checked, progress.FormatBytes(result.Bytes))
	return ExitSuccess
}
