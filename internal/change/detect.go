// Package change computes the ChangeSet between the manifest of the last
// successful build and a fresh scan of the source tree.
//
// A file is only re-hashed when its size or mtime already suggests a change,
// so hashing cost is proportional to what moved, not to corpus size.
//
// Accuracy trade-off: without hashing, a file whose size and mtime are both
// unchanged but whose content differs is not detected.
package change

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/specialistvlad/incrbuild/internal/ctxlog"
	"github.com/specialistvlad/incrbuild/internal/model"
)

// MTimeTolerance is the modification-time jitter, in seconds, that is not
// considered a change.
const MTimeTolerance = 1.0

// Hasher computes the content hash of a file addressed by its relative path.
type Hasher interface {
	Hash(relPath string) (string, error)
}

// Options controls change detection.
type Options struct {
	// Hasher enables content-hash confirmation. Nil disables hashing: any
	// size or mtime difference is then a change.
	Hasher Hasher
}

// Result is the change set plus the fingerprint set that a successful build
// would commit. Current carries forward hashes of unchanged files and the
// hashes computed during detection.
type Result struct {
	ChangeSet *model.ChangeSet
	Current   map[string]model.FileFingerprint
}

// Detect diffs current against old. Size and mtime are checked independently:
// either one differing beyond tolerance makes the file a change candidate.
// With a hasher, a candidate is only confirmed when the old fingerprint has a
// hash and the new hash differs from it; a candidate whose old hash is unknown
// stays a change. Output lists are sorted by path.
func Detect(ctx context.Context, old *model.Manifest, current map[string]model.FileFingerprint, opts Options) (*Result, error) {
	logger := ctxlog.FromContext(ctx)

	oldFiles := map[string]model.FileFingerprint{}
	if old != nil && old.Files != nil {
		oldFiles = old.Files
	}

	next := make(map[string]model.FileFingerprint, len(current))
	for k, v := range current {
		next[k] = v
	}
	cs := &model.ChangeSet{}

	for _, path := range sortedKeys(next) {
		fp := next[path]
		prev, existed := oldFiles[path]
		if !existed {
			if opts.Hasher != nil && !fp.HasHash() {
				sum, err := opts.Hasher.Hash(path)
				if err != nil {
					return nil, fmt.Errorf("hash new file %s: %w", path, err)
				}
				fp = fp.WithHash(sum)
				next[path] = fp
			}
			cs.New = append(cs.New, fp)
			continue
		}

		if !differs(prev, fp) {
			if !fp.HasHash() && prev.HasHash() {
				next[path] = fp.WithHash(*prev.SHA256)
			}
			cs.UnchangedCount++
			continue
		}

		if opts.Hasher != nil {
			if !fp.HasHash() {
				sum, err := opts.Hasher.Hash(path)
				if err != nil {
					return nil, fmt.Errorf("hash changed file %s: %w", path, err)
				}
				fp = fp.WithHash(sum)
				next[path] = fp
			}
			if prev.HasHash() && *prev.SHA256 == *fp.SHA256 {
				logger.Debug("File touched but content unchanged.", "path", path)
				cs.UnchangedCount++
				continue
			}
		}
		cs.Changed = append(cs.Changed, model.ChangedFile{Old: prev, New: fp})
	}

	for _, path := range sortedKeys(oldFiles) {
		if _, still := next[path]; !still {
			cs.Deleted = append(cs.Deleted, oldFiles[path])
		}
	}

	logger.Info("🔍 Change detection complete.", "result", cs.Summary())
	if len(cs.New) > 0 {
		logger.Info("New files span datasets.", "datasets", cs.NewDatasets())
	}
	if len(cs.Changed) > 0 {
		logger.Info("Changed files span datasets.", "datasets", cs.ChangedDatasets())
	}
	if len(cs.Deleted) > 0 {
		logger.Info("Deleted files span datasets.", "datasets", cs.DeletedDatasets())
	}

	return &Result{ChangeSet: cs, Current: next}, nil
}

// differs reports whether size or mtime moved beyond tolerance.
func differs(old, cur model.FileFingerprint) bool {
	if old.Size != cur.Size {
		return true
	}
	return math.Abs(old.MTime-cur.MTime) > MTimeTolerance
}

func sortedKeys(m map[string]model.FileFingerprint) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
