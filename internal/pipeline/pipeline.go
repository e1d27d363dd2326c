// Package pipeline resolves which pipeline definition a run uses: the HCL
// files named on the command line, or the embedded default.
package pipeline

import (
	"context"
	_ "embed"

	"github.com/specialistvlad/incrbuild/internal/config"
	"github.com/specialistvlad/incrbuild/internal/hcl"
)

//go:embed default.hcl
var defaultSource []byte

// DefaultSource returns the embedded default pipeline.
func DefaultSource() []byte {
	return append([]byte(nil), defaultSource...)
}

// Default parses the embedded default pipeline.
func Default(ctx context.Context) (*config.Pipeline, error) {
	return hcl.NewLoader().LoadSource(ctx, "default.hcl", defaultSource)
}

// Load parses the pipeline at path (a file or a directory of .hcl files), or
// the embedded default when path is empty.
func Load(ctx context.Context, path string) (*config.Pipeline, error) {
	if path == "" {
		return Default(ctx)
	}
	return hcl.NewLoader().Load(ctx, path)
}
