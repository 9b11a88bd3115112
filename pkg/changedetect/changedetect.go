// Package changedetect enumerates a project's source tree, computes
// per-file content hashes, and classifies each file against persisted
// file metadata (§4.6's Scanning/Classifying phases).
package changedetect

import (
	"crypto/sha256"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/fenwick-labs/codegraph/internal/cgerrors"
	"github.com/fenwick-labs/codegraph/internal/types"
)

// Classification is the per-file result of comparing a scan against
// persisted FileMetadata.
type Classification string

const (
	Added     Classification = "added"
	Modified  Classification = "modified"
	Unchanged Classification = "unchanged"
	Deleted   Classification = "deleted"
)

// ScannedFile is one file discovered by Scan, with its content hash
// already computed.
type ScannedFile struct {
	Path        string // canonicalized absolute path
	ContentHash [32]byte
	Size        int64
	ModifiedAt  int64 // unix nanos, avoids importing time for a single field comparison
}

// FileChange pairs a scanned (or formerly-known) path with its
// classification.
type FileChange struct {
	Path           string
	Classification Classification
	ContentHash    [32]byte
}

// Detector scans a project root honoring a set of doublestar ignore
// globs, the same library the teacher reserves for its own include/
// exclude matching.
type Detector struct {
	root         string
	ignoreGlobs  []string
}

// New returns a detector rooted at root with the given ignore globs
// (relative to root, doublestar syntax, e.g. "vendor/**").
func New(root string, ignoreGlobs []string) *Detector {
	return &Detector{root: root, ignoreGlobs: ignoreGlobs}
}

// Scan walks the tree rooted at d.root, skipping ignored paths and
// following symlinks exactly once; cycles are detected via a visited
// set of resolved real paths and skipped rather than erroring.
func (d *Detector) Scan() ([]ScannedFile, []*cgerrors.IoError) {
	var (
		files  []ScannedFile
		ioErrs []*cgerrors.IoError
		seen   = make(map[string]struct{})
	)

	_ = filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			ioErrs = append(ioErrs, cgerrors.NewIoError("walk", path, err))
			return nil
		}

		rel, relErr := filepath.Rel(d.root, path)
		if relErr == nil && d.isIgnored(rel) {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		resolved, info, err := resolveSymlinkOnce(path)
		if err != nil {
			ioErrs = append(ioErrs, cgerrors.NewIoError("canonicalize", path, err))
			return nil
		}
		if _, dup := seen[resolved]; dup {
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		seen[resolved] = struct{}{}

		if entry.IsDir() || info == nil || info.IsDir() {
			return nil
		}

		bytes, err := os.ReadFile(path)
		if err != nil {
			ioErrs = append(ioErrs, cgerrors.NewIoError("read", path, err))
			return nil
		}

		files = append(files, ScannedFile{
			Path:        resolved,
			ContentHash: ContentHash(resolved, bytes),
			Size:        info.Size(),
			ModifiedAt:  info.ModTime().UnixNano(),
		})
		return nil
	})

	return files, ioErrs
}

// resolveSymlinkOnce canonicalizes path, following a single level of
// symlink indirection (per §4.6: "path canonicalization follows
// symlinks exactly once before hashing"). It does not chase a
// symlink-to-symlink chain; the intermediate cycle guard in Scan's
// seen set catches any remaining cycle.
func resolveSymlinkOnce(path string) (string, os.FileInfo, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return "", nil, err
	}

	resolved := path
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(path)
		if err != nil {
			return "", nil, err
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(path), target)
		}
		resolved = target
		info, err = os.Lstat(resolved)
		if err != nil {
			return "", nil, err
		}
	}

	abs, err := filepath.Abs(resolved)
	if err != nil {
		return resolved, info, nil
	}
	return filepath.Clean(abs), info, nil
}

func (d *Detector) isIgnored(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, pattern := range d.ignoreGlobs {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// ContentHash computes SHA-256 over the canonicalized path, a NUL
// separator byte, then the file bytes (§3/§4.6): the path is hashed
// alongside the bytes so
// that two files with identical content at different paths never
// collide.
func ContentHash(canonicalPath string, content []byte) [32]byte {
	h := sha256.New()
	h.Write([]byte(canonicalPath))
	h.Write([]byte{0})
	h.Write(content)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Classify compares a scan's result against the project's persisted
// FileMetadata and produces one FileChange per affected path. Renamed
// or moved files are handled as Deleted + Added with no special case,
// per §4.6.
func Classify(scanned []ScannedFile, prior map[string]types.FileMetadata) []FileChange {
	currentByPath := make(map[string]ScannedFile, len(scanned))
	for _, f := range scanned {
		currentByPath[f.Path] = f
	}

	var changes []FileChange
	for _, f := range scanned {
		prevMeta, existed := prior[f.Path]
		switch {
		case !existed:
			changes = append(changes, FileChange{Path: f.Path, Classification: Added, ContentHash: f.ContentHash})
		case prevMeta.ContentHash != f.ContentHash:
			changes = append(changes, FileChange{Path: f.Path, Classification: Modified, ContentHash: f.ContentHash})
		default:
			changes = append(changes, FileChange{Path: f.Path, Classification: Unchanged, ContentHash: f.ContentHash})
		}
	}

	for path, meta := range prior {
		if _, stillPresent := currentByPath[path]; !stillPresent {
			changes = append(changes, FileChange{Path: path, Classification: Deleted, ContentHash: meta.ContentHash})
		}
	}

	return changes
}
