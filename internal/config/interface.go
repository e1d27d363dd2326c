package config

import "context"

// Loader is the interface for a format-specific pipeline loader.
type Loader interface {
	// Load reads every pipeline file found under the given paths and merges
	// them into one format-agnostic Pipeline.
	Load(ctx context.Context, paths ...string) (*Pipeline, error)
}
