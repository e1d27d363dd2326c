package hcl

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/incrbuild/internal/config"
	"github.com/specialistvlad/incrbuild/internal/ctxlog"
	"github.com/specialistvlad/incrbuild/internal/fsutil"
	"github.com/specialistvlad/incrbuild/internal/model"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// FileExtension is the suffix of pipeline files discovered in directories.
const FileExtension = ".hcl"

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct {
	env map[string]string
}

var _ config.Loader = (*Loader)(nil)

// NewLoader creates a loader whose `env` variable is the process environment.
func NewLoader() *Loader {
	env := map[string]string{}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			env[k] = v
		}
	}
	return &Loader{env: env}
}

// WithEnv replaces the environment visible to expressions.
func (l *Loader) WithEnv(env map[string]string) *Loader {
	return &Loader{env: env}
}

// Load parses every .hcl file under the given paths, in sorted order per
// path, and merges them into one pipeline.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Pipeline, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	var files []string
	seen := map[string]struct{}{}
	for _, p := range paths {
		found, err := fsutil.FindFilesByExtension(p, FileExtension)
		if err != nil {
			return nil, err
		}
		for _, f := range found {
			if _, dup := seen[f]; !dup {
				seen[f] = struct{}{}
				files = append(files, f)
			}
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no %s pipeline files found in %s", FileExtension, strings.Join(paths, ", "))
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	parser := hclparse.NewParser()
	m := newMerger()
	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}
		if err := l.decodeInto(m, hclFile, file); err != nil {
			return nil, err
		}
	}
	return m.finish(ctx)
}

// LoadSource parses a single in-memory pipeline, such as an embedded default.
func (l *Loader) LoadSource(ctx context.Context, filename string, src []byte) (*config.Pipeline, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL source %s: %w", filename, diags)
	}
	m := newMerger()
	if err := l.decodeInto(m, hclFile, ""); err != nil {
		return nil, err
	}
	return m.finish(ctx)
}

func (l *Loader) decodeInto(m *merger, file *hcl.File, path string) error {
	var root fileRoot
	if diags := gohcl.DecodeBody(file.Body, l.evalContext(), &root); diags.HasErrors() {
		return fmt.Errorf("failed to decode HCL file %s: %w", model.NewFSInfo(path), diags)
	}
	return m.add(&root, model.NewFSInfo(path))
}

// evalContext exposes the environment and a few string functions to pipeline
// expressions.
func (l *Loader) evalContext() *hcl.EvalContext {
	env := cty.MapValEmpty(cty.String)
	if len(l.env) > 0 {
		vals := make(map[string]cty.Value, len(l.env))
		for k, v := range l.env {
			vals[k] = cty.StringVal(v)
		}
		env = cty.MapVal(vals)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": env},
		Functions: map[string]function.Function{
			"upper":     stdlib.UpperFunc,
			"lower":     stdlib.LowerFunc,
			"join":      stdlib.JoinFunc,
			"format":    stdlib.FormatFunc,
			"trimspace": stdlib.TrimSpaceFunc,
			"concat":    stdlib.ConcatFunc,
			"coalesce":  stdlib.CoalesceFunc,
		},
	}
}

// merger accumulates decoded files and rejects conflicting declarations.
type merger struct {
	p          *config.Pipeline
	timeoutSrc *model.FSInfo
	extSrc     *model.FSInfo
	stageSrc   map[int]*model.FSInfo
}

func newMerger() *merger {
	return &merger{
		p:        &config.Pipeline{Stages: model.StageNames{}},
		stageSrc: map[int]*model.FSInfo{},
	}
}

func (m *merger) add(root *fileRoot, src *model.FSInfo) error {
	if root.TrackedExtensions != nil {
		if m.extSrc != nil {
			return fmt.Errorf("tracked_extensions set in both %s and %s", m.extSrc, src)
		}
		m.extSrc = src
		m.p.TrackedExtensions = root.TrackedExtensions
	}
	if root.CommandTimeout != nil {
		if m.timeoutSrc != nil {
			return fmt.Errorf("command_timeout set in both %s and %s", m.timeoutSrc, src)
		}
		d, err := time.ParseDuration(*root.CommandTimeout)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid command_timeout %q in %s: must be a positive duration", *root.CommandTimeout, src)
		}
		m.timeoutSrc = src
		m.p.CommandTimeout = d
	}
	for _, s := range root.Stages {
		if s.Number < 1 {
			return fmt.Errorf("stage %q in %s has number %d, stages start at 1", s.Name, src, s.Number)
		}
		if prev, dup := m.stageSrc[s.Number]; dup {
			return fmt.Errorf("stage %d named twice (%s and %s)", s.Number, prev, src)
		}
		m.stageSrc[s.Number] = src
		m.p.Stages[s.Number] = strings.ToUpper(s.Name)
	}
	for _, d := range root.Datasets {
		if existing := m.p.Dataset(d.Tag); existing != nil {
			return fmt.Errorf("dataset %q declared twice (%s and %s)", d.Tag, existing.Source, src)
		}
		m.p.Datasets = append(m.p.Datasets, translateDataset(d, src))
	}
	return nil
}

func (m *merger) finish(ctx context.Context) (*config.Pipeline, error) {
	p := m.p
	if _, err := p.Classifier(); err != nil {
		return nil, err
	}
	if _, err := p.Graph(); err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("HCL loading complete.",
		"datasets", len(p.Datasets),
		"stages", len(p.Stages),
		"extensions", len(p.Extensions()),
		"command_timeout", p.CommandTimeout,
	)
	return p, nil
}

func translateDataset(d *datasetBlock, src *model.FSInfo) *config.Dataset {
	out := &config.Dataset{
		Tag:           d.Tag,
		Patterns:      d.Patterns,
		ReferenceOnly: d.ReferenceOnly,
		Source:        src,
	}
	for _, a := range d.Artifacts {
		out.Artifacts = append(out.Artifacts, model.Artifact{
			Name:            a.Name,
			Stage:           a.Stage,
			CommandTemplate: a.Command,
		})
	}
	return out
}
