// Package main provides the CLI entry point for the STEM Incubator directory.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gscoppino/STEM/internal/cli"
	"github.com/gscoppino/STEM/internal/collection"
	"github.com/gscoppino/STEM/internal/config"
	"github.com/gscoppino/STEM/internal/errhandling"
	"github.com/gscoppino/STEM/internal/factory"
	"github.com/gscoppino/STEM/internal/logger"
	"github.com/gscoppino/STEM/internal/scheduler"
	"github.com/gscoppino/STEM/internal/server"
)

// Exit codes
const (
	ExitSuccess         = cli.ExitSuccess
	ExitValidationError = cli.ExitValidationError
	ExitParseError      = cli.ExitParseError
	ExitRuntimeError    = cli.ExitRuntimeError
)

var (
	// Global flags
	verbose    bool
	quiet      bool
	logFormat  string
	configPath string

	// Fetch command flags
	fetchParent  string
	fetchLimit   int
	fetchJSON    bool
	fetchRetries int

	// Serve command flags
	serveAddr    string
	serveLogFile string

	// Build information (set via ldflags during build)
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitRuntimeError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "stem",
	Short: "STEM Incubator - directory client for the OAE listing API",
	Long: `stem fetches the groups, members and points of interest of the
STEM Incubator directory from its OAE tenant.

Without --config the built-in site is used: the businesses, courses,
partnerships and schools groups of stemincubator.oaeproject.org.

Examples:
  # Validate a site configuration
  stem validate site.yaml

  # List the members of the schools group
  stem fetch schools

  # Serve the directory and its map layer over HTTP
  stem serve --config site.yaml --addr :8080`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		format, err := logger.ParseFormat(logFormat)
		if err != nil {
			fmt.Fprintf(os.Stderr, "✗ %v\n", err)
			os.Exit(ExitRuntimeError)
		}
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		} else if quiet {
			level = slog.LevelError
		}
		logger.SetLevelAndFormat(level, format)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate [config-file]",
	Short: "Validate a site configuration file",
	Long: `Validate a site configuration file against the schema, then check
its filters, refresh schedule and collection declarations.

Supports both JSON and YAML formats. The file defaults to --config.

Exit codes:
  0 - Configuration is valid
  1 - Validation errors
  2 - Parse errors (invalid JSON/YAML syntax)`,
	Args: cobra.MaximumNArgs(1),
	Run:  runValidate,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <collection>",
	Short: "Fetch a collection and print its records",
	Long: `Fetch one configured collection from the listing API and print the
normalized records.

--parent and --limit override the collection's configured options for this
fetch. --retries re-issues the fetch after transient failures.

Exit codes:
  0 - Records fetched
  1 - Validation errors
  2 - Parse errors
  3 - Runtime errors (unknown collection, transport failure)`,
	Args: cobra.ExactArgs(1),
	Run:  runFetch,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the configured collections and their URLs",
	Args:  cobra.NoArgs,
	Run:   runList,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the directory over HTTP",
	Long: `Serve the configured collections, search filters and the points of
interest layer over HTTP. When the site configures a refresh schedule the
fetchable collections are refreshed in the background.

The server stops on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	Run:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version, commit hash, and build date information.",
	Run:   runVersion,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-error output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "Log format: json or human")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Site configuration file (JSON or YAML)")

	fetchCmd.Flags().StringVar(&fetchParent, "parent", "", "Override the parent group id")
	fetchCmd.Flags().IntVar(&fetchLimit, "limit", 0, "Override the maximum number of records")
	fetchCmd.Flags().BoolVar(&fetchJSON, "json", false, "Print records as JSON")
	fetchCmd.Flags().IntVar(&fetchRetries, "retries", 0, "Retries after transient failures")

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from configuration, then :8080)")
	serveCmd.Flags().StringVar(&serveLogFile, "log-file", "", "Also write JSON logs to this file")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func outputOptions() cli.OutputOptions {
	return cli.OutputOptions{Verbose: verbose, Quiet: quiet, JSON: fetchJSON}
}

// loadSite loads --config, or the built-in site when none is given. On
// failure it prints the errors and exits.
func loadSite() *config.Site {
	if configPath == "" {
		return config.Default()
	}
	site, err := config.Load(configPath)
	if err != nil {
		os.Exit(cli.PrintConfigError(os.Stderr, err, outputOptions()))
	}
	return site
}

func buildDirectory(site *config.Site) *factory.Directory {
	dir, err := factory.Build(site, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ Failed to build directory: %v\n", err)
		os.Exit(ExitRuntimeError)
	}
	return dir
}

func runValidate(_ *cobra.Command, args []string) {
	path := configPath
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "✗ No configuration file given (pass a path or --config)")
		os.Exit(ExitValidationError)
	}

	if !quiet {
		fmt.Printf("Validating configuration: %s\n", path)
	}

	site, err := config.Load(path)
	if err != nil {
		os.Exit(cli.PrintConfigError(os.Stderr, err, outputOptions()))
	}

	if !quiet {
		format := config.DetectFormat(path)
		if format == "" {
			format = "detected from content"
		}
		fmt.Printf("✓ Configuration is valid (format: %s)\n", format)
		if verbose {
			cli.PrintSiteSummary(os.Stdout, site)
		}
	}

	os.Exit(ExitSuccess)
}

func runFetch(cmd *cobra.Command, args []string) {
	name := args[0]
	site := loadSite()
	dir := buildDirectory(site)
	defer dir.Close()

	c, ok := dir.Collection(name)
	if !ok {
		fmt.Fprintf(os.Stderr, "✗ Unknown collection %q\n", name)
		os.Exit(ExitRuntimeError)
	}

	var opts []collection.Option
	if cmd.Flags().Changed("parent") {
		opts = append(opts, collection.WithParentID(fetchParent))
	}
	if cmd.Flags().Changed("limit") {
		if fetchLimit < 0 {
			fmt.Fprintln(os.Stderr, "✗ --limit must be >= 0")
			os.Exit(ExitValidationError)
		}
		opts = append(opts, collection.WithLimit(fetchLimit))
	}
	c.SetOptions(opts...)

	url, err := c.BuildURL()
	if err != nil {
		cli.PrintFetchError(os.Stderr, err, verbose)
		os.Exit(ExitRuntimeError)
	}

	retry := site.Refresh().Retry
	if cmd.Flags().Changed("retries") {
		retry.MaxAttempts = fetchRetries
	}
	if err := retry.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "✗ Invalid retry settings: %v\n", err)
		os.Exit(ExitValidationError)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	attempts := 0
	err = errhandling.Retry(ctx, retry, func(ctx context.Context) error {
		attempts++
		return c.Fetch(ctx)
	}, func(attempt int, err error, delay time.Duration) {
		logger.Warn("fetch failed, retrying",
			slog.String("collection", name),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
	})
	if err != nil {
		cli.PrintFetchError(os.Stderr, err, verbose)
		os.Exit(ExitRuntimeError)
	}

	result := cli.FetchResult{
		Collection: name,
		URL:        url,
		Records:    c.Records(),
		Duration:   time.Since(start),
		Attempts:   attempts,
	}
	if err := cli.PrintFetchResult(os.Stdout, result, outputOptions()); err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(ExitRuntimeError)
	}
	os.Exit(ExitSuccess)
}

func runList(_ *cobra.Command, _ []string) {
	dir := buildDirectory(loadSite())
	defer dir.Close()

	cli.PrintCollectionList(os.Stdout, dir.Collections())
}

func runServe(_ *cobra.Command, _ []string) {
	site := loadSite()

	if serveLogFile != "" {
		format, _ := logger.ParseFormat(logFormat)
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		if err := logger.SetLogFile(serveLogFile, level, format); err != nil {
			fmt.Fprintf(os.Stderr, "✗ Failed to open log file: %v\n", err)
			os.Exit(ExitRuntimeError)
		}
		defer logger.CloseLogFile()
	}

	dir := buildDirectory(site)
	defer dir.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched, err := startScheduler(ctx, site, dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ Failed to start refresh scheduler: %v\n", err)
		os.Exit(ExitRuntimeError)
	}

	addr := serveAddr
	if addr == "" {
		addr = site.Server().Addr
	}

	if !quiet {
		fmt.Printf("Serving %d collections on %s\n", len(dir.Collections()), addr)
		if sched != nil {
			fmt.Printf("  Next refresh: %s\n", cli.NextRefresh(sched.NextRun(time.Now())))
		}
	}

	serveErr := server.New(dir).ListenAndServe(ctx, addr)

	if sched != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), server.ShutdownTimeout)
		if err := sched.Stop(stopCtx); err != nil && !errors.Is(err, scheduler.ErrNotRunning) {
			logger.Warn("scheduler did not stop cleanly", slog.String("error", err.Error()))
		}
		cancel()
	}

	if serveErr != nil {
		fmt.Fprintf(os.Stderr, "✗ Server failed: %v\n", serveErr)
		logger.CloseLogFile()
		os.Exit(ExitRuntimeError)
	}
}

// startScheduler registers every fetchable collection and starts periodic
// refresh. It returns nil when the site configures no refresh.
func startScheduler(ctx context.Context, site *config.Site, dir *factory.Directory) (*scheduler.Scheduler, error) {
	refresh := site.Refresh()
	if !refresh.Enabled() {
		return nil, nil
	}

	sched, err := scheduler.New(scheduler.Options{
		Schedule: refresh.Schedule,
		Interval: time.Duration(refresh.IntervalMs) * time.Millisecond,
		Retry:    refresh.Retry,
	})
	if err != nil {
		return nil, err
	}
	for _, c := range dir.Fetchable() {
		if err := sched.Register(c); err != nil {
			return nil, err
		}
	}
	if err := sched.Start(ctx); err != nil {
		return nil, err
	}
	return sched, nil
}

func runVersion(_ *cobra.Command, _ []string) {
	fmt.Printf("Version: %s\n", version)
	fmt.Printf("Commit: %s\n", commit)
	fmt.Printf("Build Date: %s\n", buildDate)
}
