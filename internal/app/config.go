package app

import (
	"errors"
	"fmt"
	"time"
)

// Mode is what a run does after planning.
type Mode string

const (
	// ModeInit records the current corpus as the baseline without planning.
	ModeInit Mode = "init"
	// ModePlan prints the rebuild plan and leaves everything untouched.
	ModePlan Mode = "plan"
	// ModeExecute runs the plan and commits the manifest when it all succeeds.
	ModeExecute Mode = "execute"
	// ModeDryRun walks the plan without spawning commands.
	ModeDryRun Mode = "dry-run"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ProjectRoot  string
	PathsFile    string // relative to ProjectRoot unless absolute
	PipelinePath string // .hcl file or directory; empty means the embedded default
	SourceRoot   string // overrides the paths file

	Init         bool
	Hash         bool
	Execute      bool
	DryRun       bool
	SaveManifest bool

	Timeout     time.Duration // zero means the pipeline's command_timeout
	HashWorkers int

	// HistoryOnly builds an App that can only read the run ledger. It needs
	// neither a source root nor a pipeline.
	HistoryOnly bool
	HistoryPath string // overrides the paths file
	MetricsPath string // overrides the paths file

	LogFormat string
	LogLevel  string
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.ProjectRoot == "" {
		return nil, errors.New("ProjectRoot is a required configuration field and cannot be empty")
	}
	if cfg.Init && (cfg.Execute || cfg.DryRun) {
		return nil, errors.New("--init cannot be combined with --execute or --dry-run")
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must not be negative, got %s", cfg.Timeout)
	}
	if cfg.HashWorkers < 0 {
		return nil, fmt.Errorf("hash-workers must not be negative, got %d", cfg.HashWorkers)
	}
	return &cfg, nil
}

// Mode derives the run mode from the flags. --dry-run wins over --execute.
func (c *Config) Mode() Mode {
	switch {
	case c.Init:
		return ModeInit
	case c.DryRun:
		return ModeDryRun
	case c.Execute:
		return ModeExecute
	default:
		return ModePlan
	}
}
