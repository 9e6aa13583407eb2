package main

import (
	"flag"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/ligustah/orthanc-sync/internal/manifest"
)

func runManifest(args []string) int {
	fs := flag.NewFlagSet("manifest", flag.ContinueOnError)

	var common commonFlags
	common.register(fs)
	format := fs.String("format", "text", "Output format: text, yaml")
	urls := fs.Bool("urls", false, "Print the full source URL instead of branch and path (text format)")

	fs.Usage = func() {
		fmt.Fprintln(stderr, `Usage: orthanc-sync manifest [options]

Print the files sync would fetch, in manifest order, without touching the
network or the target.

Options:`)
		fs.PrintDefaults()
	}

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	if *format != "text" && *format != "yaml" {
		fmt.Fprintf(stderr, "Error: unknown format %q\n", *format)
		return ExitInvalidArgs
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

	if *format == "yaml" {
		enc := yaml.NewEncoder(stdout)
		enc.SetIndent(2)
		if err := enc.Encode(m); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return ExitGeneralError
		}
		if err := enc.Close(); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return ExitGeneralError
		}
		return ExitSuccess
	}

	for _, task := range m {
		if *urls {
			fmt.Fprintf(stdout, "%s\t%s\n", manifest.URL(cfg.Repository, task), task.Target)
			continue
		}
		fmt.Fprintf(stdout, "%s\t%s\t%s\n", task.Branch, task.Source, task.Target)
	}
	return ExitSuccess
}
