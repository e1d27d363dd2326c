package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultPathsFile is looked up relative to the project root.
const DefaultPathsFile = "configs/paths.yaml"

// Paths locates the source corpus and the orchestrator's own state. After
// Resolve every field is an absolute path.
type Paths struct {
	SourceRoot string `yaml:"source_root"`
	// DataRoot is the legacy name of SourceRoot.
	DataRoot      string `yaml:"data_root"`
	ArtifactsRoot string `yaml:"artifacts_root"`
	ManifestPath  string `yaml:"manifest_path"`
	HistoryPath   string `yaml:"history_path"`
	MetricsPath   string `yaml:"metrics_path"`
}

// LoadPaths reads a paths file. A missing file returns an empty Paths and
// found=false so callers can fall back to flags.
func LoadPaths(path string) (p *Paths, found bool, err error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Paths{}, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", path, err)
	}
	p = &Paths{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, true, fmt.Errorf("unmarshal %s: %w", path, err)
	}
	return p, true, nil
}

// Resolve fills defaults and makes every path absolute against projectRoot.
// It fails when no source root is known.
func (p *Paths) Resolve(projectRoot string) error {
	if p.SourceRoot == "" {
		p.SourceRoot = p.DataRoot
	}
	if p.SourceRoot == "" {
		return errors.New("no source root: set source_root in the paths file or pass --source-root")
	}
	if p.ArtifactsRoot == "" {
		p.ArtifactsRoot = "artifacts"
	}

	abs := func(v string) string {
		if v == "" || filepath.IsAbs(v) {
			return v
		}
		return filepath.Join(projectRoot, v)
	}
	p.SourceRoot = abs(p.SourceRoot)
	p.DataRoot = p.SourceRoot
	p.ArtifactsRoot = abs(p.ArtifactsRoot)
	if p.ManifestPath == "" {
		p.ManifestPath = filepath.Join(p.ArtifactsRoot, "metrics", "p1_manifest.json")
	}
	p.ManifestPath = abs(p.ManifestPath)
	p.HistoryPath = abs(p.HistoryPath)
	p.MetricsPath = abs(p.MetricsPath)
	return nil
}

// ResolveHistory makes the ledger path absolute against projectRoot. Reading
// the ledger needs no source root.
func (p *Paths) ResolveHistory(projectRoot string) {
	if p.HistoryPath != "" && !filepath.IsAbs(p.HistoryPath) {
		p.HistoryPath = filepath.Join(projectRoot, p.HistoryPath)
	}
}
