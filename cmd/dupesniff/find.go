package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ivoronin/dupesniff/internal/classify"
	"github.com/ivoronin/dupesniff/internal/config"
	"github.com/ivoronin/dupesniff/internal/finder"
	"github.com/ivoronin/dupesniff/internal/report"
)

// findOptions holds CLI flags for the find command.
// Flags override config file values only when explicitly set.
type findOptions struct {
	configFile   string
	workers      int
	minSizeStr   string
	maxSizeStr   string
	blockSizeStr string
	boundary     string
	cacheFile    string
	noProgress   bool
	logLevel     string
	verbose      bool
}

// newFindCmd creates the find subcommand.
func newFindCmd() *cobra.Command {
	opts := &findOptions{
		workers:      config.DefaultWorkers,
		minSizeStr:   config.DefaultMinSize,
		maxSizeStr:   config.DefaultMaxSize,
		blockSizeStr: config.DefaultBlockSize,
		boundary:     config.DefaultBoundary,
		logLevel:     config.DefaultLogLevel,
	}

	cmd := &cobra.Command{
		Use:   "find OUTPUT ROOT [ROOT...]",
		Short: "Find duplicate files under the given roots",
		Long: `Walks every ROOT, groups files of equal size, fingerprints the candidates
and writes the duplicate groups to OUTPUT: one path per line, groups separated
by a blank line. An existing OUTPUT is renamed to OUTPUT.bak first. When no
duplicates are found OUTPUT is left untouched.

The scan does not cross mount points. --boundary selects how a mount point is
recognised:
  capacity  filesystem total size differs from the root's (default)
  device    device ID differs from the root's
  none      never stop at mount points`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFind(cmd, args[0], args[1:], opts)
		},
	}

	// Bind flags to options
	cmd.Flags().StringVarP(&opts.configFile, "config", "c", "", "YAML config file")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", opts.workers, "Maximum parallel workers (capped at CPU count)")
	cmd.Flags().StringVarP(&opts.minSizeStr, "min-size", "m", opts.minSizeStr, "Minimum file size (e.g., 100, 1K, 32KiB)")
	cmd.Flags().StringVarP(&opts.maxSizeStr, "max-size", "M", opts.maxSizeStr, "Maximum file size (0 for no limit)")
	cmd.Flags().StringVar(&opts.blockSizeStr, "block-size", opts.blockSizeStr, "Fingerprint read block size")
	cmd.Flags().StringVar(&opts.boundary, "boundary", opts.boundary, "Mount boundary policy: capacity, device or none")
	cmd.Flags().StringVar(&opts.cacheFile, "cache-file", "", "Path to fingerprint cache file (enables caching)")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "Disable progress output (always off when stderr is not a terminal)")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", opts.logLevel, "Log level: debug, info, warn or error")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Shorthand for --log-level debug")

	return cmd
}

// resolveConfig loads the config file and overlays explicitly set flags.
func resolveConfig(cmd *cobra.Command, opts *findOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("workers") {
		cfg.Workers = opts.workers
	}
	if flags.Changed("min-size") {
		cfg.MinSize = opts.minSizeStr
	}
	if flags.Changed("max-size") {
		cfg.MaxSize = opts.maxSizeStr
	}
	if flags.Changed("block-size") {
		cfg.BlockSize = opts.blockSizeStr
	}
	if flags.Changed("boundary") {
		cfg.Boundary = opts.boundary
	}
	if flags.Changed("cache-file") {
		cfg.CacheFile = opts.cacheFile
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if opts.verbose {
		cfg.LogLevel = "debug"
	}
	if opts.noProgress {
		disabled := false
		cfg.Progress = &disabled
	}
	return cfg, nil
}

// drainErrors logs non-fatal errors from a channel.
// Clears progress bar line before logging to avoid visual collision.
func drainErrors(errs <-chan error) {
	for err := range errs {
		fmt.Fprint(os.Stderr, "\r\033[K")
		slog.Warn("skipped", "error", err)
	}
}

// runFind executes the pipeline: scan → hash → build → write.
func runFind(cmd *cobra.Command, output string, roots []string, opts *findOptions) error {
	cfg, err := resolveConfig(cmd, opts)
	if err != nil {
		return err
	}

	level, err := parseLogLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := validateOutput(output); err != nil {
		return err
	}
	minSize, maxSize, blockSize, err := cfg.Sizes()
	if err != nil {
		return fmt.Errorf("invalid size: %w", err)
	}
	boundary, err := classify.ParseBoundary(cfg.Boundary)
	if err != nil {
		return fmt.Errorf("invalid --boundary: %w", err)
	}

	// Shared error channel; drained before returning so nothing is lost
	errCh := make(chan error, 100)
	drained := make(chan struct{})
	go func() {
		drainErrors(errCh)
		close(drained)
	}()
	defer func() {
		close(errCh)
		<-drained
	}()

	f, err := finder.New(finder.Options{
		Roots:        roots,
		Workers:      cfg.Workers,
		MinSize:      minSize,
		MaxSize:      maxSize,
		Boundary:     boundary,
		BlockSize:    blockSize,
		CacheFile:    cfg.CacheFile,
		ShowProgress: *cfg.Progress && term.IsTerminal(int(os.Stderr.Fd())),
		ErrCh:        errCh,
	})
	if err != nil {
		return err
	}

	slog.Debug("starting scan", "output", output, "roots", roots, "workers", cfg.Workers,
		"min_size", minSize, "max_size", maxSize, "boundary", boundary, "block_size", blockSize)

	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	groups, stats, err := f.Run(ctx)
	if err != nil {
		return fmt.Errorf("scan aborted: %w", err)
	}

	wrote, err := report.Write(output, groups)
	if err != nil {
		return err
	}
	if wrote {
		slog.Info("wrote report", "path", output, "groups", stats.Groups)
	}

	fmt.Fprintln(cmd.OutOrStdout(), stats)
	return nil
}

// cmdContext returns the command's context, or Background when run without one.
func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
