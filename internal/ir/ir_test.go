package ir

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWalkVisitsPreOrder(t *testing.T) {
	b := NewBuilder()
	buf := b.MemRef("A", F32, Global, 16)
	inner := b.Parallel("t", []int64{16})
	loop := b.For("i", 0, 4, 1)
	load := b.Load("r", buf, []AffineExpr{D(0)}, loop.IV)
	loop.Body = []Node{load, &Yield{}}
	inner.Body = []Node{loop, &Barrier{}}
	outer := b.Parallel("b", []int64{2}, inner)

	var got []string
	WalkNode(outer, func(n Node) bool {
		got = append(got, strings.Fields(renderNode(n))[0])
		return true
	})
	want := []string{"parallel", "parallel", "for", "%r", "yield", "barrier"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("walk order mismatch (-want +got):\n%s", diff)
	}
}

func TestWalkSkipsChildren(t *testing.T) {
	b := NewBuilder()
	loop := b.For("i", 0, 4, 1, &Barrier{})
	count := 0
	Walk([]Node{loop, &Yield{}}, func(n Node) bool {
		count++
		_, isFor := n.(*For)
		return !isFor
	})
	if count != 2 {
		t.Fatalf("expected 2 visits, got %d", count)
	}
}

func TestParallelExtents(t *testing.T) {
	p := &Parallel{Ranges: []int64{4, 8}}
	dims, total := p.Extents()
	if diff := cmp.Diff([]int64{4, 8}, dims); diff != "" {
		t.Fatalf("dims mismatch (-want +got):\n%s", diff)
	}
	if total != 32 {
		t.Fatalf("expected total 32, got %d", total)
	}
	dims[0] = 99
	if p.Ranges[0] != 4 {
		t.Fatalf("Extents must not alias the boundary ranges")
	}
}

func TestAffineString(t *testing.T) {
	e := Add(Mul(D(0), C(16)), CeilDiv(D(1), C(4)))
	if got, want := e.String(), "((d0 * 16) + (d1 ceildiv 4))"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	if got := MaxDim(e); got != 1 {
		t.Fatalf("expected max dim 1, got %d", got)
	}
	if got := MaxDim(C(3)); got != -1 {
		t.Fatalf("expected -1 for constant, got %d", got)
	}
}

func TestElemTypeWidths(t *testing.T) {
	cases := map[ElemType]int{F16: 16, F32: 32, F64: 64, Int: 32, Index: 32}
	for typ, bits := range cases {
		if typ.Bits() != bits {
			t.Fatalf("%s: expected %d bits, got %d", typ, bits, typ.Bits())
		}
		if _, err := typ.CType(); err != nil {
			t.Fatalf("%s: unexpected error %v", typ, err)
		}
	}
	if _, err := ElemType(42).CType(); err == nil {
		t.Fatalf("expected error for unknown element type")
	}
}

func TestDumpRendersNesting(t *testing.T) {
	b := NewBuilder()
	buf := b.MemRef("A", F32, Global, 4, 8)
	inner := b.Parallel("t", []int64{8})
	load := b.Load("r", buf, []AffineExpr{D(0), D(1)}, inner.IVs[0], inner.IVs[0])
	inner.Body = []Node{load}
	outer := b.Parallel("b", []int64{4}, inner)
	module := &Module{Name: "m", Funcs: []*Func{{Name: "main", Body: []Node{outer}}}}

	var out bytes.Buffer
	Dump(module, &out)
	want := strings.Join([]string{
		"module m",
		"  func main",
		"    parallel (%b0) = (0) to (4)",
		"      parallel (%t0) = (0) to (8)",
		"        %r = load %A[d0, d1] (%t0, %t0)",
		"",
	}, "\n")
	if diff := cmp.Diff(want, out.String()); diff != "" {
		t.Fatalf("dump mismatch (-want +got):\n%s", diff)
	}
}

func TestBuilderAssignsSequentialIDs(t *testing.T) {
	b := NewBuilder()
	a := b.Index("a")
	c := b.MemRef("c", F16, Shared, 2)
	if a.ID != 0 || c.ID != 1 {
		t.Fatalf("expected IDs 0 and 1, got %d and %d", a.ID, c.ID)
	}
	if !c.IsMemRef() || a.IsMemRef() {
		t.Fatalf("memref classification wrong")
	}
	if c.Mem.Rank() != 1 {
		t.Fatalf("expected rank 1, got %d", c.Mem.Rank())
	}
}
