package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/specialistvlad/incrbuild/internal/app"
	"github.com/specialistvlad/incrbuild/internal/config"
	"github.com/spf13/cobra"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// options mirrors the command-line flags.
type options struct {
	projectRoot  string
	pathsFile    string
	pipelinePath string
	sourceRoot   string
	historyPath  string
	metricsPath  string
	logFormat    string
	logLevel     string

	init         bool
	hash         bool
	execute      bool
	dryRun       bool
	saveManifest bool
	timeout      time.Duration
	hashWorkers  int

	limit int
}

// NewRootCommand builds the incrbuild command tree writing to outW.
func NewRootCommand(outW io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "incrbuild",
		Short: "Rebuild only the artifacts whose source data changed",
		Long: `incrbuild fingerprints a source data corpus, compares it with the manifest
of the last successful build, and plans the minimal set of rebuild commands.

By default it only prints the plan. Use --execute to run it; the manifest is
committed only when every command succeeds.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd.Context(), outW, opts)
		},
	}
	root.SetOut(outW)
	root.SetErr(outW)

	pf := root.PersistentFlags()
	pf.StringVar(&opts.projectRoot, "project-root", "", "Project root; commands run here and relative paths resolve against it (default: current directory).")
	pf.StringVar(&opts.pathsFile, "paths", config.DefaultPathsFile, "Paths YAML file, relative to the project root.")
	pf.StringVar(&opts.pipelinePath, "pipeline", "", "Pipeline .hcl file or directory (default: embedded pipeline).")
	pf.StringVar(&opts.sourceRoot, "source-root", "", "Source data root; overrides the paths file.")
	pf.StringVar(&opts.historyPath, "history", "", "SQLite run history file; overrides the paths file.")
	pf.StringVar(&opts.logFormat, "log-format", "text", "Log output format. Options: 'text' or 'json'.")
	pf.StringVar(&opts.logLevel, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	f := root.Flags()
	f.BoolVar(&opts.init, "init", false, "Record the current corpus as the baseline manifest without planning.")
	f.BoolVar(&opts.hash, "hash", false, "Confirm size/mtime changes with SHA-256 content hashes.")
	f.BoolVar(&opts.execute, "execute", false, "Run the rebuild commands.")
	f.BoolVar(&opts.dryRun, "dry-run", false, "Walk the plan without running any command.")
	f.BoolVar(&opts.saveManifest, "save-manifest", false, "Commit the manifest even though nothing was rebuilt (manual recovery).")
	f.DurationVar(&opts.timeout, "timeout", 0, "Per-command timeout (default: the pipeline's command_timeout, or 30m).")
	f.IntVar(&opts.hashWorkers, "hash-workers", 0, "Parallel hashing workers (default: number of CPUs).")
	f.StringVar(&opts.metricsPath, "metrics-file", "", "Write Prometheus textfile metrics here; overrides the paths file.")

	root.AddCommand(newHistoryCommand(outW, opts))
	return root
}

func newHistoryCommand(outW io.Writer, opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "history",
		Short:         "List recent runs from the run history",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistory(cmd.Context(), outW, opts)
		},
	}
	cmd.Flags().IntVar(&opts.limit, "limit", 20, "Number of runs to show.")
	return cmd
}

// Execute parses args, runs the selected command and translates every
// failure into an *ExitError.
func Execute(ctx context.Context, outW io.Writer, args []string) error {
	root := NewRootCommand(outW)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	// Anything cobra rejects before RunE is a usage error.
	return &ExitError{Code: app.ExitConfig, Message: err.Error()}
}

func runBuild(ctx context.Context, outW io.Writer, opts *options) error {
	cfg, err := buildConfig(opts)
	if err != nil {
		return err
	}
	a, err := app.NewApp(outW, cfg)
	if err != nil {
		return &ExitError{Code: app.ExitConfig, Message: err.Error()}
	}
	if _, err := a.Run(ctx); err != nil {
		return &ExitError{Code: app.ExitCode(err), Message: err.Error()}
	}
	return nil
}

func runHistory(ctx context.Context, outW io.Writer, opts *options) error {
	cfg, err := buildConfig(opts)
	if err != nil {
		return err
	}
	cfg.HistoryOnly = true
	a, err := app.NewApp(io.Discard, cfg)
	if err != nil {
		return &ExitError{Code: app.ExitConfig, Message: err.Error()}
	}
	runs, err := a.History(ctx, opts.limit)
	if err != nil {
		return &ExitError{Code: app.ExitCode(err), Message: err.Error()}
	}
	return printHistory(outW, runs, time.Now())
}

// buildConfig validates the flags and converts them into an app.Config.
func buildConfig(opts *options) (*app.Config, error) {
	slog.Debug("CLI parameter validation started.")

	logFormat := strings.ToLower(opts.logFormat)
	if logFormat != "text" && logFormat != "json" {
		return nil, &ExitError{Code: app.ExitConfig, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(opts.logLevel)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, &ExitError{Code: app.ExitConfig, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	projectRoot := opts.projectRoot
	if projectRoot == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, &ExitError{Code: app.ExitConfig, Message: fmt.Sprintf("cannot determine working directory: %v", err)}
		}
		projectRoot = wd
	}

	cfg, err := app.NewConfig(app.Config{
		ProjectRoot:  projectRoot,
		PathsFile:    opts.pathsFile,
		PipelinePath: opts.pipelinePath,
		SourceRoot:   opts.sourceRoot,
		Init:         opts.init,
		Hash:         opts.hash,
		Execute:      opts.execute,
		DryRun:       opts.dryRun,
		SaveManifest: opts.saveManifest,
		Timeout:      opts.timeout,
		HashWorkers:  opts.hashWorkers,
		HistoryPath:  opts.historyPath,
		MetricsPath:  opts.metricsPath,
		LogFormat:    logFormat,
		LogLevel:     logLevel,
	})
	if err != nil {
		return nil, &ExitError{Code: app.ExitConfig, Message: err.Error()}
	}
	slog.Debug("CLI parameter validation complete.", "mode", cfg.Mode())
	return cfg, nil
}
