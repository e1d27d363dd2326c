// Package manifest persists the fingerprint set of the last successful build.
//
// The manifest is a single JSON document. It is validated against an embedded
// JSON Schema on load, so a truncated or hand-edited file surfaces as a
// configuration error instead of silently turning into "first run, everything
// is new". Saves replace the whole file atomically.
package manifest

import (
	"bytes"
	"context"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/gowebpki/jcs"
	"github.com/kaptinlin/jsonschema"
	"github.com/specialistvlad/incrbuild/internal/ctxlog"
	"github.com/specialistvlad/incrbuild/internal/fsutil"
	"github.com/specialistvlad/incrbuild/internal/model"
)

// ErrInvalidManifest wraps every failure to interpret an existing manifest.
var ErrInvalidManifest = errors.New("invalid manifest")

//go:embed schema.json
var schemaJSON []byte

// Store reads and writes one manifest file.
type Store struct {
	path   string
	schema *jsonschema.Schema
	now    func() time.Time
}

// NewStore creates a store for the manifest at path.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("manifest path is required")
	}
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	schema, err := compiler.Compile(schemaJSON)
	if err != nil {
		return nil, fmt.Errorf("compile manifest schema: %w", err)
	}
	return &Store{path: path, schema: schema, now: time.Now}, nil
}

// Path returns the manifest file location.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether a manifest has been saved before.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// document is the on-disk shape. data_root is accepted on read for manifests
// written before the key was renamed.
type document struct {
	SavedAt    *time.Time                       `json:"saved_at,omitempty"`
	SourceRoot string                           `json:"source_root"`
	DataRoot   string                           `json:"data_root,omitempty"`
	FileCount  int                              `json:"file_count"`
	Files      map[string]model.FileFingerprint `json:"files"`
}

// Load reads the manifest. A missing file yields an empty manifest: this is
// the first run and every scanned file is new.
func (s *Store) Load(ctx context.Context) (*model.Manifest, error) {
	logger := ctxlog.FromContext(ctx)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Info("No manifest found, treating every file as new.", "path", s.path)
			return model.EmptyManifest(), nil
		}
		return nil, fmt.Errorf("read manifest %s: %w", s.path, err)
	}

	m, err := s.decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrInvalidManifest, s.path, err)
	}
	logger.Info("Loaded manifest.", "path", s.path, "files", len(m.Files), "saved_at", m.SavedAt.Format(time.RFC3339))
	return m, nil
}

func (s *Store) decode(data []byte) (*model.Manifest, error) {
	if result := s.schema.ValidateJSON(data); !result.IsValid() {
		return nil, fmt.Errorf("schema validation failed: %v", result.Errors)
	}

	var doc document
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	files := doc.Files
	if files == nil {
		files = map[string]model.FileFingerprint{}
	}
	for key, fp := range files {
		if fp.RelPath != key {
			return nil, fmt.Errorf("entry %q carries rel_path %q", key, fp.RelPath)
		}
	}

	m := &model.Manifest{
		SourceRoot: doc.SourceRoot,
		FileCount:  len(files),
		Files:      files,
	}
	if m.SourceRoot == "" {
		m.SourceRoot = doc.DataRoot
	}
	if doc.SavedAt != nil {
		m.SavedAt = *doc.SavedAt
	}
	return m, nil
}

// Save stamps the manifest with the current time and atomically replaces the
// file. Callers only invoke it once every planned rebuild action of the run
// has succeeded, or when an operator forces a commit.
func (s *Store) Save(ctx context.Context, m *model.Manifest) error {
	logger := ctxlog.FromContext(ctx)
	if m == nil {
		return errors.New("cannot save a nil manifest")
	}
	if m.Files == nil {
		m.Files = map[string]model.FileFingerprint{}
	}
	m.SavedAt = s.now().UTC()
	m.FileCount = len(m.Files)

	data, err := Encode(m)
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest %s: %w", s.path, err)
	}
	logger.Info("💾 Manifest saved.", "path", s.path, "files", m.FileCount)
	return nil
}

// Encode renders a manifest in its on-disk form.
func Encode(m *model.Manifest) ([]byte, error) {
	savedAt := m.SavedAt
	doc := document{
		SavedAt:    &savedAt,
		SourceRoot: m.SourceRoot,
		FileCount:  len(m.Files),
		Files:      m.Files,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return append(data, '\n'), nil
}

// Digest returns the SHA-256 of the RFC 8785 canonical form of the file set.
// Two manifests describing the same files have the same digest regardless of
// when they were saved.
func Digest(m *model.Manifest) (string, error) {
	files := map[string]model.FileFingerprint{}
	if m != nil && m.Files != nil {
		files = m.Files
	}
	raw, err := json.Marshal(files)
	if err != nil {
		return "", fmt.Errorf("encode files: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize files: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
