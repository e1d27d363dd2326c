package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/specialistvlad/incrbuild/internal/classify"
	"github.com/specialistvlad/incrbuild/internal/config"
	"github.com/specialistvlad/incrbuild/internal/ctxlog"
	"github.com/specialistvlad/incrbuild/internal/executor"
	"github.com/specialistvlad/incrbuild/internal/graph"
	"github.com/specialistvlad/incrbuild/internal/manifest"
	"github.com/specialistvlad/incrbuild/internal/pipeline"
)

// ErrConfig marks failures caused by configuration or the environment rather
// than by a rebuild command: unreadable paths file, invalid pipeline, missing
// source root, corrupt manifest.
var ErrConfig = errors.New("configuration error")

// ErrActionsFailed is returned by Run when at least one rebuild action failed.
var ErrActionsFailed = errors.New("rebuild actions failed")

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW       io.Writer
	logger     *slog.Logger
	cfg        *Config
	paths      *config.Paths
	pipeline   *config.Pipeline
	classifier *classify.Classifier
	graph      *graph.Table
	store      *manifest.Store
	runner     executor.Runner
	now        func() time.Time
}

// NewApp is the constructor for the main application. It loads the paths
// file and the pipeline, and returns an App with its own isolated logger.
func NewApp(outW io.Writer, cfg *Config) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	paths, err := loadPaths(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if cfg.HistoryOnly {
		return &App{outW: outW, logger: logger, cfg: cfg, paths: paths, now: time.Now}, nil
	}

	p, err := pipeline.Load(ctx, cfg.PipelinePath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load pipeline: %v", ErrConfig, err)
	}
	classifier, err := p.Classifier()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	g, err := p.Graph()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	logger.Debug("Pipeline loaded.",
		"datasets", len(p.Datasets),
		"mapped_datasets", len(g.Datasets()),
		"artifacts", g.ArtifactCount(),
	)

	store, err := manifest.NewStore(paths.ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	return &App{
		outW:       outW,
		logger:     logger,
		cfg:        cfg,
		paths:      paths,
		pipeline:   p,
		classifier: classifier,
		graph:      g,
		store:      store,
		runner:     executor.ShellRunner{},
		now:        time.Now,
	}, nil
}

// WithRunner replaces the subprocess runner. Tests use it to script command
// outcomes.
func (a *App) WithRunner(r executor.Runner) *App {
	a.runner = r
	return a
}

// Paths returns the resolved paths of the run.
func (a *App) Paths() *config.Paths {
	return a.paths
}

func loadPaths(ctx context.Context, cfg *Config) (*config.Paths, error) {
	logger := ctxlog.FromContext(ctx)

	file := cfg.PathsFile
	if file == "" {
		file = config.DefaultPathsFile
	}
	if !filepath.IsAbs(file) {
		file = filepath.Join(cfg.ProjectRoot, file)
	}
	paths, found, err := config.LoadPaths(file)
	if err != nil {
		return nil, err
	}
	if !found {
		if cfg.SourceRoot == "" && !cfg.HistoryOnly {
			return nil, fmt.Errorf("paths file %s not found and no --source-root given", file)
		}
		logger.Debug("No paths file, using flags only.", "path", file)
	}

	if cfg.SourceRoot != "" {
		paths.SourceRoot = cfg.SourceRoot
	}
	if cfg.HistoryPath != "" {
		paths.HistoryPath = cfg.HistoryPath
	}
	if cfg.MetricsPath != "" {
		paths.MetricsPath = cfg.MetricsPath
	}
	if cfg.HistoryOnly {
		paths.ResolveHistory(cfg.ProjectRoot)
		logger.Debug("Paths resolved for history.", "history", paths.HistoryPath)
		return paths, nil
	}
	if err := paths.Resolve(cfg.ProjectRoot); err != nil {
		return nil, err
	}
	logger.Debug("Paths resolved.",
		"source_root", paths.SourceRoot,
		"manifest", paths.ManifestPath,
		"history", paths.HistoryPath,
		"metrics", paths.MetricsPath,
	)
	return paths, nil
}
