package cuda

import (
	"go/types"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	gopackages "golang.org/x/tools/go/packages"

	"kernelgen/internal/ir"
)

// nodeKinds holds one instance of every ir.Node implementation.
var nodeKinds = map[string]ir.Node{
	"Parallel":    &ir.Parallel{},
	"For":         &ir.For{Step: 1},
	"If":          &ir.If{},
	"Constant":    &ir.Constant{},
	"Apply":       &ir.Apply{},
	"Binary":      &ir.Binary{},
	"Unary":       &ir.Unary{},
	"Compare":     &ir.Compare{},
	"Bitcast":     &ir.Bitcast{},
	"Alloc":       &ir.Alloc{},
	"Load":        &ir.Load{},
	"IndexedLoad": &ir.IndexedLoad{},
	"Store":       &ir.Store{},
	"VectorLoad":  &ir.VectorLoad{},
	"VectorStore": &ir.VectorStore{},
	"Barrier":     &ir.Barrier{},
	"Shuffle":     &ir.Shuffle{},
	"Yield":       &ir.Yield{},
}

// irNodeTypes lists the named types of package ir whose pointer implements
// ir.Node, read from the package's type information.
func irNodeTypes(t *testing.T) []string {
	t.Helper()
	cfg := &gopackages.Config{Mode: gopackages.NeedName | gopackages.NeedTypes}
	pkgs, err := gopackages.Load(cfg, "kernelgen/internal/ir")
	if err != nil {
		t.Fatalf("load ir package: %v", err)
	}
	if len(pkgs) != 1 || len(pkgs[0].Errors) > 0 || pkgs[0].Types == nil {
		t.Fatalf("load ir package: unexpected result %v", pkgs)
	}
	scope := pkgs[0].Types.Scope()
	node, ok := scope.Lookup("Node").Type().Underlying().(*types.Interface)
	if !ok {
		t.Fatalf("ir.Node is not an interface")
	}
	var names []string
	for _, name := range scope.Names() {
		tn, ok := scope.Lookup(name).(*types.TypeName)
		if !ok || tn.IsAlias() || types.IsInterface(tn.Type()) {
			continue
		}
		if types.Implements(types.NewPointer(tn.Type()), node) {
			names = append(names, name)
		}
	}
	return names
}

func TestEveryNodeKindIsLowered(t *testing.T) {
	want := irNodeTypes(t)
	got := make([]string, 0, len(nodeKinds))
	for name := range nodeKinds {
		got = append(got, name)
	}
	sort.Strings(want)
	sort.Strings(got)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("node kind table out of date (-ir +table):\n%s", diff)
	}

	unknown := ErrUnsupported.Error() + ": node "
	for name, n := range nodeKinds {
		g := newGenerator(Options{Strict: false})
		err := g.emitNode(n)
		if err != nil && strings.HasPrefix(err.Error(), unknown) {
			t.Fatalf("%s has no lowering: %v", name, err)
		}
	}
}
