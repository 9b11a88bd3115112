package changedetect

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fenwick-labs/codegraph/internal/types"
)

func TestContentHash_StableForSameInputs(t *testing.T) {
	a := ContentHash("/proj/a.go", []byte("package main"))
	b := ContentHash("/proj/a.go", []byte("package main"))
	if a != b {
		t.Fatal("expected identical hash for identical inputs")
	}
}

func TestContentHash_DiffersByPathEvenWithSameBytes(t *testing.T) {
	a := ContentHash("/proj/a.go", []byte("x"))
	b := ContentHash("/proj/b.go", []byte("x"))
	if a == b {
		t.Fatal("expected different hash for different canonical paths")
	}
}

func TestScan_RespectsIgnoreGlobs(t *testing.T) {
	dir := t.TempDir()
	mustWriteFile(t, filepath.Join(dir, "main.go"), "package main")
	mustMkdir(t, filepath.Join(dir, "vendor"))
	mustWriteFile(t, filepath.Join(dir, "vendor", "dep.go"), "package dep")

	d := New(dir, []string{"vendor/**"})
	files, errs := d.Scan()
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}

	if len(files) != 1 {
		t.Fatalf("len(files) = %d, want 1 (vendor should be ignored): %+v", len(files), files)
	}
}

// TestClassify_RenameIsDeletePlusAdd is the foundation for scenario 2
// (rename detection): renaming a.rs to c.rs with identical content
// classifies as Deleted(a) + Added(c), not a rename-aware third case.
func TestClassify_RenameIsDeletePlusAdd(t *testing.T) {
	hash := ContentHash("/proj/c.rs", []byte("fn main() {}"))
	prior := map[string]types.FileMetadata{
		"/proj/a.rs": {FilePath: "/proj/a.rs", ContentHash: ContentHash("/proj/a.rs", []byte("fn main() {}"))},
	}
	scanned := []ScannedFile{
		{Path: "/proj/c.rs", ContentHash: hash},
	}

	changes := Classify(scanned, prior)
	byPath := indexChanges(changes)

	if byPath["/proj/a.rs"] != Deleted {
		t.Fatalf("a.rs classified as %v, want Deleted", byPath["/proj/a.rs"])
	}
	if byPath["/proj/c.rs"] != Added {
		t.Fatalf("c.rs classified as %v, want Added", byPath["/proj/c.rs"])
	}
}

func TestClassify_ModifiedWhenHashDiffers(t *testing.T) {
	prior := map[string]types.FileMetadata{
		"/proj/a.go": {FilePath: "/proj/a.go", ContentHash: [32]byte{1}},
	}
	scanned := []ScannedFile{{Path: "/proj/a.go", ContentHash: [32]byte{2}}}

	changes := Classify(scanned, prior)
	if len(changes) != 1 || changes[0].Classification != Modified {
		t.Fatalf("got %+v, want one Modified change", changes)
	}
}

func TestClassify_UnchangedWhenHashEqual(t *testing.T) {
	hash := [32]byte{9}
	prior := map[string]types.FileMetadata{
		"/proj/a.go": {FilePath: "/proj/a.go", ContentHash: hash},
	}
	scanned := []ScannedFile{{Path: "/proj/a.go", ContentHash: hash}}

	changes := Classify(scanned, prior)
	if len(changes) != 1 || changes[0].Classification != Unchanged {
		t.Fatalf("got %+v, want one Unchanged change", changes)
	}
}

func TestClassify_DeleteLawZeroRowsForDeletedPath(t *testing.T) {
	prior := map[string]types.FileMetadata{
		"/proj/a.go": {FilePath: "/proj/a.go", ContentHash: [32]byte{1}},
	}
	changes := Classify(nil, prior)
	if len(changes) != 1 || changes[0].Classification != Deleted || changes[0].Path != "/proj/a.go" {
		t.Fatalf("got %+v, want one Deleted change for /proj/a.go", changes)
	}
}

func indexChanges(changes []FileChange) map[string]Classification {
	out := make(map[string]Classification, len(changes))
	for _, c := range changes {
		out[c.Path] = c.Classification
	}
	return out
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func mustMkdir(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatal(err)
	}
}
