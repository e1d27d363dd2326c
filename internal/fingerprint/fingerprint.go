// Package fingerprint walks a source tree and produces one FileFingerprint per
// tracked file.
//
// A scan only reads file system metadata unless content hashing is requested.
// Hashing is bounded by a small worker pool and completes before Scan returns,
// so callers always observe a finished, read-only result.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/specialistvlad/incrbuild/internal/ctxlog"
	"github.com/specialistvlad/incrbuild/internal/model"
	"golang.org/x/sync/errgroup"
)

// ErrRootNotFound is returned, together with an empty result, when the source
// root does not exist. Callers treat it as a fatal configuration error.
var ErrRootNotFound = errors.New("source root not found")

// Classifier assigns a dataset tag to a relative path.
type Classifier interface {
	Classify(relPath string) string
}

// Options controls a scan.
type Options struct {
	// Extensions lists the tracked file extensions, e.g. ".xlsx". Matching is
	// case-insensitive and a missing leading dot is tolerated.
	Extensions []string
	// ComputeHash enables SHA-256 hashing of every tracked file.
	ComputeHash bool
	// HashWorkers bounds concurrent hashing. Zero means GOMAXPROCS.
	HashWorkers int
	// Classifier tags each fingerprint. Nil tags everything as UNKNOWN.
	Classifier Classifier
}

// Scan walks root and fingerprints every tracked file. Entries whose name
// starts with "." or "_" are skipped, and such directories are not descended
// into. Keys of the returned map are slash-separated paths relative to root.
func Scan(ctx context.Context, root string, opts Options) (map[string]model.FileFingerprint, error) {
	logger := ctxlog.FromContext(ctx)
	result := make(map[string]model.FileFingerprint)

	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return result, fmt.Errorf("%w: %s", ErrRootNotFound, root)
		}
		return result, fmt.Errorf("stat source root %s: %w", root, err)
	}
	if !info.IsDir() {
		return result, fmt.Errorf("%w: %s is not a directory", ErrRootNotFound, root)
	}

	tracked := normalizeExtensions(opts.Extensions)
	logger.Debug("Starting source scan.", "root", root, "extensions", len(tracked), "hash", opts.ComputeHash)

	var fps []model.FileFingerprint
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == root {
			return nil
		}
		if isSkipped(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := tracked[strings.ToLower(filepath.Ext(d.Name()))]; !ok {
			return nil
		}

		fi, err := fileInfo(path, d)
		if err != nil {
			return err
		}
		if fi == nil {
			logger.Debug("Skipping non-regular entry.", "path", path, "type", d.Type().String())
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		dataset := model.UnknownDataset
		if opts.Classifier != nil {
			dataset = opts.Classifier.Classify(rel)
		}
		fps = append(fps, model.FileFingerprint{
			RelPath: rel,
			Size:    fi.Size(),
			MTime:   model.UnixSeconds(fi.ModTime()),
			Dataset: dataset,
		})
		return nil
	})
	if err != nil {
		return make(map[string]model.FileFingerprint), fmt.Errorf("walk %s: %w", root, err)
	}

	if opts.ComputeHash {
		if err := hashAll(ctx, root, fps, opts.HashWorkers); err != nil {
			return make(map[string]model.FileFingerprint), err
		}
	}

	for _, fp := range fps {
		result[fp.RelPath] = fp
	}
	logger.Debug("Source scan complete.", "files", len(result))
	return result, nil
}

// fileInfo returns the metadata of a regular file. Symlinks are followed to
// their target; links to directories, dangling links and other special files
// yield nil.
func fileInfo(path string, d fs.DirEntry) (fs.FileInfo, error) {
	if d.Type()&fs.ModeSymlink != 0 {
		fi, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		if !fi.Mode().IsRegular() {
			return nil, nil
		}
		return fi, nil
	}
	if !d.Type().IsRegular() {
		return nil, nil
	}
	fi, err := d.Info()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return fi, nil
}

// hashAll fills in the SHA256 of every fingerprint using a bounded pool.
func hashAll(ctx context.Context, root string, fps []model.FileFingerprint, workers int) error {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range fps {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sum, err := HashFile(filepath.Join(root, filepath.FromSlash(fps[i].RelPath)))
			if err != nil {
				return err
			}
			fps[i] = fps[i].WithHash(sum)
			return nil
		})
	}
	return g.Wait()
}

// HashFile returns the hex SHA-256 digest of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.CopyBuffer(h, f, make([]byte, 1<<20)); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// RootHasher hashes files addressed by their path relative to Root.
type RootHasher struct {
	Root string
}

// Hash implements the change detector's hasher contract.
func (h RootHasher) Hash(relPath string) (string, error) {
	return HashFile(filepath.Join(h.Root, filepath.FromSlash(relPath)))
}

// SortedPaths returns the keys of a scan result in sorted order.
func SortedPaths(scan map[string]model.FileFingerprint) []string {
	paths := make([]string, 0, len(scan))
	for p := range scan {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func isSkipped(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}

func normalizeExtensions(exts []string) map[string]struct{} {
	out := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out[e] = struct{}{}
	}
	return out
}
