package symbolmap

import (
	"testing"

	"github.com/fenwick-labs/codegraph/internal/types"
)

func mkNode(id byte, path, name string) types.CodeNode {
	var nodeID types.NodeID
	nodeID[15] = id
	return types.CodeNode{ID: nodeID, FilePath: path, Name: name, Kind: types.KindFunction}
}

func TestMap_LookupFQNameAndShortName(t *testing.T) {
	m := New()
	n := mkNode(1, "/proj/a.go", "Foo")
	m.Add(n)

	id, ok := m.LookupFQName(CanonicalFQName(n))
	if !ok || id != n.ID {
		t.Fatalf("LookupFQName: got (%x, %v), want (%x, true)", id, ok, n.ID)
	}

	shorts := m.LookupShortName("Foo")
	if len(shorts) != 1 || shorts[0] != n.ID {
		t.Fatalf("LookupShortName = %v, want [%x]", shorts, n.ID)
	}
}

func TestMap_FQNameConflictLastWins(t *testing.T) {
	m := New()
	a := mkNode(1, "/proj/a.go", "Foo")
	b := mkNode(2, "/proj/a.go", "Foo") // same canonical FQN

	m.Add(a)
	m.Add(b)

	id, ok := m.LookupFQName(CanonicalFQName(a))
	if !ok || id != b.ID {
		t.Fatalf("LookupFQName after conflict = (%x, %v), want (%x, true)", id, ok, b.ID)
	}
}

func TestMap_Remove(t *testing.T) {
	m := New()
	n := mkNode(1, "/proj/a.go", "Foo")
	m.Add(n)
	m.Remove(n.ID)

	if _, ok := m.LookupFQName(CanonicalFQName(n)); ok {
		t.Fatal("expected fqname entry removed")
	}
	if shorts := m.LookupShortName("Foo"); len(shorts) != 0 {
		t.Fatalf("expected no short-name entries, got %v", shorts)
	}
	if m.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", m.Len())
	}
}

func TestMap_MultipleShortNameCandidates(t *testing.T) {
	m := New()
	a := mkNode(1, "/proj/a.go", "Run")
	b := mkNode(2, "/proj/b.go", "Run")
	m.Add(a)
	m.Add(b)

	shorts := m.LookupShortName("Run")
	if len(shorts) != 2 {
		t.Fatalf("LookupShortName = %v, want 2 entries", shorts)
	}
}
