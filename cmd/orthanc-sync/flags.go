package main

import (
	"context"
	"flag"
	"fmt"

	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/ligustah/orthanc-sync/internal/config"
	"github.com/ligustah/orthanc-sync/internal/sink"
)

// commonFlags are accepted by every command.
type commonFlags struct {
	config           string
	repository       string
	target           string
	bucket           string
	prefix           string
	frameworkVersion string
	frameworkBranch  string
	sdkVersion       string
	logLevel         string
	logFormat        string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.config, "config", "", "Path to a YAML config file")
	fs.StringVar(&c.repository, "repository", "", "Raw-file base URL of the Orthanc repository")
	fs.StringVar(&c.target, "target", "", "Destination directory (default \"Resources\")")
	fs.StringVar(&c.bucket, "bucket", "", "Destination bucket URL (file://, mem://, s3://, gs://); replaces -target")
	fs.StringVar(&c.prefix, "prefix", "", "Key prefix inside the bucket (default \"Resources\")")
	fs.StringVar(&c.frameworkVersion, "framework-version", "", "Orthanc framework version")
	fs.StringVar(&c.frameworkBranch, "framework-branch", "", "Branch framework files are taken from")
	fs.StringVar(&c.sdkVersion, "sdk-version", "", "Orthanc plugin SDK version")
	fs.StringVar(&c.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&c.logFormat, "log-format", "", "Log format: console, json")
}

// override returns the flag values as a Config suitable for Merge.
func (c *commonFlags) override() config.Config {
	return config.Config{
		Repository: c.repository,
		Target:     c.target,
		Bucket:     c.bucket,
		Prefix:     c.prefix,
		Framework: config.FrameworkConfig{
			Version: c.frameworkVersion,
			Branch:  c.frameworkBranch,
		},
		SDK: config.SDKConfig{
			Version: c.sdkVersion,
		},
		Logging: config.LoggingConfig{
			Level:  c.logLevel,
			Format: c.logFormat,
		},
	}
}

// load layers defaults, the config file, the environment and flags, in
// that order, and validates the result.
func (c *commonFlags) load(override config.Config) (config.Config, error) {
	cfg := config.Default()
	if c.config != "" {
		var err error
		cfg, err = config.LoadFromFile(c.config)
		if err != nil {
			return config.Config{}, err
		}
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}

	cfg = cfg.Merge(override)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// openSink returns the bucket sink when a bucket is configured and the
// directory sink otherwise.
func openSink(ctx context.Context, cfg config.Config) (sink.Sink, error) {
	if cfg.Bucket != "" {
		return sink.OpenBucket(ctx, cfg.Bucket, cfg.Prefix)
	}
	return sink.NewDir(cfg.Target), nil
}

func parseFlags(fs *flag.FlagSet, args []string) (int, bool) {
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return ExitSuccess, false
		}
		return ExitInvalidArgs, false
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "Error: unexpected arguments: %v\n", fs.Args())
		fs.Usage()
		return ExitInvalidArgs, false
	}
	return ExitSuccess, true
}
