package cuda

import (
	"fmt"

	"kernelgen/internal/ir"
)

// Hardware dimension letters, slowest varying last. A boundary with k
// induction variables gives its i-th variable dimLetters[k-1-i], so the
// outermost loop index lands on the slowest hardware dimension.
var dimLetters = [...]string{"x", "y", "z"}

// counters hold the sequential name suffixes. They live for the whole run
// so that names other than the hardware indices never repeat across
// kernels.
type counters struct {
	kernel int
	arg    int
	iter   int
	expr   int
	array  int
	vec    int
	reg    int
	konst  int
	temp   int
}

// scanKernel names every value produced inside the grid boundary k and
// returns the memory values it references from outside, in discovery order.
// Those become the kernel parameters.
func (g *generator) scanKernel(k *ir.Parallel) ([]*ir.Value, error) {
	var nodes []ir.Node
	ir.WalkNode(k, func(n ir.Node) bool {
		nodes = append(nodes, n)
		return true
	})

	local := make(map[*ir.Value]struct{})
	define := func(v *ir.Value, name string) {
		g.names.bind(v, name)
		if v != nil {
			local[v] = struct{}{}
		}
	}

	for _, n := range nodes {
		p, ok := n.(*ir.Parallel)
		if !ok {
			continue
		}
		if len(p.IVs) > len(dimLetters) {
			return nil, fmt.Errorf("%w: kernel boundary with %d induction variables, at most %d map to hardware dimensions",
				ErrStructure, len(p.IVs), len(dimLetters))
		}
		prefix := "threadIdx."
		if p == k {
			prefix = "blockIdx."
		}
		for i, iv := range p.IVs {
			define(iv, prefix+dimLetters[len(p.IVs)-1-i])
		}
	}

	for _, n := range nodes {
		if f, ok := n.(*ir.For); ok {
			define(f.IV, fmt.Sprintf("iter%d", g.next.iter))
			g.next.iter++
		}
	}
	for _, n := range nodes {
		if a, ok := n.(*ir.Apply); ok {
			define(a.Result, fmt.Sprintf("expr%d", g.next.expr))
			g.next.expr++
		}
	}
	for _, n := range nodes {
		if a, ok := n.(*ir.Alloc); ok {
			define(a.Result, fmt.Sprintf("array%d", g.next.array))
			g.next.array++
		}
	}

	var params []*ir.Value
	seen := make(map[*ir.Value]struct{})
	external := func(mem *ir.Value) {
		if mem == nil {
			return
		}
		if _, ok := local[mem]; ok {
			return
		}
		if _, ok := seen[mem]; ok {
			return
		}
		seen[mem] = struct{}{}
		params = append(params, mem)
		// A buffer shared with an earlier kernel keeps its parameter name.
		if _, ok := g.names.lookup(mem); !ok {
			g.names.bind(mem, fmt.Sprintf("arg%d", g.next.arg))
			g.next.arg++
		}
	}

	for _, n := range nodes {
		if l, ok := n.(*ir.VectorLoad); ok {
			external(l.Memref)
			define(l.Result, fmt.Sprintf("vec%d", g.next.vec))
			g.next.vec++
		}
	}
	for _, n := range nodes {
		if l, ok := n.(*ir.Load); ok {
			external(l.Memref)
			define(l.Result, fmt.Sprintf("R%d", g.next.reg))
			g.next.reg++
		}
	}
	for _, n := range nodes {
		if l, ok := n.(*ir.IndexedLoad); ok {
			external(l.Memref)
			define(l.Result, fmt.Sprintf("R%d", g.next.reg))
			g.next.reg++
		}
	}
	for _, n := range nodes {
		if s, ok := n.(*ir.Store); ok {
			external(s.Memref)
		}
	}
	for _, n := range nodes {
		if s, ok := n.(*ir.VectorStore); ok {
			external(s.Memref)
		}
	}

	for class := constIndex; class <= constInt; class++ {
		for _, n := range nodes {
			c, ok := n.(*ir.Constant)
			if !ok || constClass(c) != class {
				continue
			}
			define(c.Result, fmt.Sprintf("const%dth", g.next.konst))
			g.next.konst++
		}
	}

	for rank := 0; rank < tempRanks; rank++ {
		for _, n := range nodes {
			result, r, ok := tempResult(n)
			if !ok || r != rank {
				continue
			}
			define(result, fmt.Sprintf("temp%d", g.next.temp))
			g.next.temp++
		}
	}

	if len(params) == 0 {
		return nil, fmt.Errorf("%w: kernel references no external memory", ErrStructure)
	}
	return params, nil
}

const (
	constIndex = iota
	constFloat
	constInt
)

func constClass(c *ir.Constant) int {
	if c.Result == nil {
		return constInt
	}
	switch {
	case c.Result.Type == ir.Index:
		return constIndex
	case c.Result.Type.IsFloat():
		return constFloat
	default:
		return constInt
	}
}

// tempRanks is the number of temporary categories. Temporaries are named
// one category at a time in the order given by tempResult.
const tempRanks = 13

func tempResult(n ir.Node) (*ir.Value, int, bool) {
	switch n := n.(type) {
	case *ir.Binary:
		switch n.Op {
		case ir.MulF:
			return n.Result, 0, true
		case ir.AddF:
			return n.Result, 1, true
		case ir.MaxF:
			return n.Result, 2, true
		case ir.SubF:
			return n.Result, 3, true
		case ir.DivF:
			return n.Result, 4, true
		case ir.PowF:
			return n.Result, 6, true
		}
	case *ir.Unary:
		switch n.Op {
		case ir.Exp:
			return n.Result, 5, true
		case ir.Tanh:
			return n.Result, 8, true
		case ir.Sqrt:
			return n.Result, 9, true
		case ir.Log:
			return n.Result, 10, true
		}
	case *ir.Compare:
		return n.Result, 7, true
	case *ir.Bitcast:
		return n.Result, 11, true
	case *ir.Shuffle:
		return n.Result, 12, true
	}
	return nil, 0, false
}
