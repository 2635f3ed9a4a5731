package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/hopper/blob"
	"github.com/pithecene-io/hopper/cli/config"
	"github.com/pithecene-io/hopper/iox"
	"github.com/pithecene-io/hopper/log"
	"github.com/pithecene-io/hopper/metrics"
	"github.com/pithecene-io/hopper/pipeline"
	"github.com/pithecene-io/hopper/rows"
	"github.com/pithecene-io/hopper/watch"
)

// Exit codes for the run command.
const (
	exitSuccess        = 0
	exitRunFailure     = 1
	exitStartupFailure = 2
)

// RunCommand returns the run command: the long-running ingestion worker.
// This is the only command that executes work.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Watch a folder, filter CSV files, and upload them to the object store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file (optional, defaults apply without one)",
			},
			// Folder flags
			&cli.StringFlag{
				Name:  "input",
				Usage: "Watched input folder",
			},
			&cli.StringFlag{
				Name:  "temp",
				Usage: "Staging folder for filtered artifacts",
			},
			&cli.StringFlag{
				Name:  "archive",
				Usage: "Archive root for processed source files",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Local log file shipped to the store",
			},
			// Store flags
			&cli.StringFlag{
				Name:  "endpoint",
				Usage: "Object store endpoint URL (empty for AWS default)",
			},
			&cli.StringFlag{
				Name:  "bucket",
				Usage: "Target bucket",
			},
			&cli.StringFlag{
				Name:  "prefix",
				Usage: "Key prefix for uploaded data objects",
			},
			&cli.StringFlag{
				Name:  "region",
				Usage: "Store region",
			},
			&cli.StringFlag{
				Name:  "versioning",
				Usage: "Bucket versioning mode: enabled or suspended",
			},
			// Pipeline flags
			&cli.IntFlag{
				Name:  "max-concurrent",
				Usage: "Max simultaneously processed files",
			},
			// Filter flags
			&cli.StringFlag{
				Name:  "filter-column",
				Usage: "Column the numeric filter applies to (empty disables filtering)",
			},
			&cli.Float64Flag{
				Name:  "filter-min",
				Usage: "Inclusive lower bound for the filter column",
				Value: -1,
			},
			&cli.Float64Flag{
				Name:  "filter-max",
				Usage: "Inclusive upper bound for the filter column",
				Value: -1,
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress the metrics summary at shutdown",
			},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	cfg, err := resolveConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid configuration: %v", err), exitStartupFailure)
	}

	runID := uuid.New().String()

	capture, err := log.OpenCapture(cfg.Folders.LogFile)
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot open log file: %v", err), exitStartupFailure)
	}
	defer iox.DiscardErr(capture.Close)

	logger := log.NewTeeLogger(runID, capture)
	defer iox.DiscardErr(logger.Sync)

	collector := metrics.NewCollector(cfg.Store.Bucket, cfg.Store.Prefix, runID)

	// Set up context with signal handling before touching the store so a
	// quick Ctrl-C interrupts even the startup checks.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutdown signal received", map[string]any{"signal": sig.String()})
		cancel()
	}()

	store, err := blob.NewS3Store(ctx, blob.S3Config{
		Bucket:       cfg.Store.Bucket,
		Region:       cfg.Store.Region,
		Endpoint:     cfg.Store.Endpoint,
		AccessKey:    cfg.Store.AccessKey,
		SecretKey:    cfg.Store.SecretKey,
		UsePathStyle: cfg.Store.PathStyle,
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot create store client: %v", err), exitStartupFailure)
	}
	defer iox.DiscardClose(store)

	p := pipeline.New(pipeline.Options{
		Store:     blob.NewInstrumentedStore(store, collector),
		Capture:   capture,
		Logger:    logger,
		Collector: collector,

		InputDir:   cfg.Folders.Input,
		TempDir:    cfg.Folders.Temp,
		ArchiveDir: cfg.Folders.Archive,

		Extension:  ".csv",
		KeyPrefix:  cfg.Store.Prefix,
		Versioning: blob.VersioningMode(cfg.Store.Versioning),

		MaxConcurrent: int64(cfg.Pipeline.MaxConcurrentFiles),
		Filter: rows.Bounds{
			Column: cfg.Filter.Column,
			Min:    cfg.Filter.Min,
			Max:    cfg.Filter.Max,
		},

		Debounce: cfg.Pipeline.Debounce.Duration,
		Step:     cfg.Pipeline.Step.Duration,
		Stability: watch.StabilityConfig{
			PollInterval: cfg.Pipeline.StabilityPoll.Duration,
			ConfirmDelay: cfg.Pipeline.StabilityConfirm.Duration,
			Timeout:      cfg.Pipeline.StabilityTimeout.Duration,
		},

		FlushInterval: cfg.Pipeline.FlushInterval.Duration,
		FlushTick:     cfg.Pipeline.FlushTick.Duration,
		DrainTimeout:  cfg.Pipeline.DrainTimeout.Duration,
	})

	logger.Info("pipeline starting", map[string]any{
		"run_id": runID,
		"bucket": cfg.Store.Bucket,
		"prefix": cfg.Store.Prefix,
		"input":  cfg.Folders.Input,
	})

	start := time.Now()
	runErr := p.Run(ctx)

	if !c.Bool("quiet") {
		printRunSummary(collector.Snapshot(), time.Since(start))
	}

	if runErr != nil {
		return cli.Exit(fmt.Sprintf("pipeline failed: %v", runErr), exitRunFailure)
	}
	return cli.Exit("", exitSuccess)
}

// resolveConfig layers configuration sources: defaults, then the YAML file
// (when --config is given), then HOPPER_* environment variables, then flags.
func resolveConfig(c *cli.Context) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if path := c.String("config"); path != "" {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}

	config.ApplyEnv(cfg)

	applyFlagString(c, "input", &cfg.Folders.Input)
	applyFlagString(c, "temp", &cfg.Folders.Temp)
	applyFlagString(c, "archive", &cfg.Folders.Archive)
	applyFlagString(c, "log-file", &cfg.Folders.LogFile)

	applyFlagString(c, "endpoint", &cfg.Store.Endpoint)
	applyFlagString(c, "bucket", &cfg.Store.Bucket)
	applyFlagString(c, "prefix", &cfg.Store.Prefix)
	applyFlagString(c, "region", &cfg.Store.Region)
	applyFlagString(c, "versioning", &cfg.Store.Versioning)

	if c.IsSet("max-concurrent") {
		cfg.Pipeline.MaxConcurrentFiles = c.Int("max-concurrent")
	}
	if c.IsSet("filter-column") {
		cfg.Filter.Column = c.String("filter-column")
	}
	if c.IsSet("filter-min") {
		cfg.Filter.Min = c.Float64("filter-min")
	}
	if c.IsSet("filter-max") {
		cfg.Filter.Max = c.Float64("filter-max")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlagString(c *cli.Context, name string, dst *string) {
	if c.IsSet(name) {
		*dst = c.String(name)
	}
}

func printRunSummary(snap metrics.Snapshot, duration time.Duration) {
	fmt.Printf("\nrun_id=%s, bucket=%s, prefix=%s, duration=%s\n",
		snap.RunID, snap.Bucket, snap.Prefix, duration.Round(time.Millisecond))

	fmt.Printf("\n=== Files ===\n")
	fmt.Printf("Detected:          %d\n", snap.FilesDetected)
	fmt.Printf("Started:           %d\n", snap.FilesStarted)
	fmt.Printf("Processed:         %d\n", snap.FilesProcessed)
	fmt.Printf("Skipped (empty):   %d\n", snap.FilesSkippedEmpty)
	fmt.Printf("Skipped (unstable):%d\n", snap.FilesSkippedUnstable)
	fmt.Printf("Duplicates:        %d\n", snap.FilesDuplicate)
	fmt.Printf("Failures:          %d\n", snap.WorkflowFailures)

	fmt.Printf("\n=== Rows ===\n")
	fmt.Printf("Loaded:            %d\n", snap.RowsIn)
	fmt.Printf("Kept:              %d\n", snap.RowsOut)

	fmt.Printf("\n=== Store ===\n")
	fmt.Printf("Put Success:       %d\n", snap.StorePutSuccess)
	fmt.Printf("Put Failure:       %d\n", snap.StorePutFailure)
	fmt.Printf("Archive Failures:  %d\n", snap.ArchiveFailures)
	fmt.Printf("Log Flushes:       %d\n", snap.LogFlushSuccess)
	fmt.Printf("Log Flush Errors:  %d\n", snap.LogFlushFailure)
}
