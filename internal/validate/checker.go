// Package validate checks that an IR module has the shape the CUDA
// lowering expects before any code is generated.
package validate

import (
	"fmt"

	"github.com/samber/lo"

	"kernelgen/internal/diag"
	"kernelgen/internal/ir"
)

const maxHardwareDims = 3

// CheckModule reports every structural problem in module and fails if
// there was at least one.
func CheckModule(module *ir.Module, reporter *diag.Reporter) error {
	if module == nil {
		return fmt.Errorf("no module provided for validation")
	}
	if reporter == nil {
		return fmt.Errorf("no reporter provided for validation")
	}

	c := &checker{reporter: reporter}
	for _, fn := range module.Funcs {
		c.checkFunc(fn)
	}
	if c.errCount > 0 {
		return fmt.Errorf("validation failed with %d issue(s)", c.errCount)
	}
	return nil
}

type checker struct {
	reporter *diag.Reporter
	errCount int
}

func (c *checker) error(where string, format string, args ...any) {
	c.errCount++
	c.reporter.Errorf("%s: %s", where, fmt.Sprintf(format, args...))
}

func (c *checker) checkFunc(fn *ir.Func) {
	kernel := 0
	c.checkYield("func "+fn.Name, fn.Body)
	for _, n := range fn.Body {
		switch n := n.(type) {
		case *ir.Parallel:
			c.checkKernel(fmt.Sprintf("func %s: kernel %d", fn.Name, kernel), n)
			kernel++
		case *ir.Yield:
		default:
			c.error("func "+fn.Name, "%s outside a kernel boundary", kindOf(n))
		}
	}
}

// checkKernel enforces the two-level layout: one grid boundary holding
// exactly one block boundary directly, and no boundary anywhere else.
func (c *checker) checkKernel(where string, grid *ir.Parallel) {
	c.checkBoundary(where, grid)
	direct := lo.CountBy(grid.Body, func(n ir.Node) bool {
		_, ok := n.(*ir.Parallel)
		return ok
	})
	if direct != 1 {
		c.error(where, "grid boundary must hold exactly one block boundary, found %d", direct)
	}
	c.checkBody(where, grid.Body, 1)
}

func (c *checker) checkBoundary(where string, p *ir.Parallel) {
	if len(p.IVs) == 0 {
		c.error(where, "boundary has no induction variables")
	}
	if len(p.IVs) > maxHardwareDims {
		c.error(where, "boundary has %d induction variables, at most %d map to hardware dimensions", len(p.IVs), maxHardwareDims)
	}
	if len(p.IVs) != len(p.Ranges) {
		c.error(where, "boundary has %d induction variables but %d ranges", len(p.IVs), len(p.Ranges))
	}
	for i, iv := range p.IVs {
		if iv == nil {
			c.error(where, "induction variable %d is nil", i)
		}
	}
}

// checkBody walks one body. level is 1 directly inside a grid boundary,
// 2 inside its block boundary and 0 anywhere a boundary is not allowed.
func (c *checker) checkBody(where string, body []ir.Node, level int) {
	c.checkYield(where, body)
	for _, n := range body {
		c.checkNode(where, n, level)
	}
}

func (c *checker) checkYield(where string, body []ir.Node) {
	for i, n := range body {
		if _, ok := n.(*ir.Yield); ok && i != len(body)-1 {
			c.error(where, "yield must terminate its body, found %d node(s) after it", len(body)-1-i)
		}
	}
}

func (c *checker) checkNode(where string, n ir.Node, level int) {
	switch n := n.(type) {
	case nil:
		c.error(where, "nil node")
	case *ir.Parallel:
		if level != 1 {
			c.error(where, "parallel boundary nested below the block level")
		}
		c.checkBoundary(where+": block", n)
		c.checkBody(where+": block", n.Body, 0)
	case *ir.For:
		c.requireValue(where, "loop induction variable", n.IV)
		if n.Step <= 0 {
			c.error(where, "loop step must be positive, got %d", n.Step)
		}
		c.checkBody(where, n.Body, 0)
	case *ir.If:
		if len(n.Constraints) == 0 {
			c.error(where, "conditional without constraints")
		}
		c.requireValues(where, "conditional operand", n.Operands)
		for _, k := range n.Constraints {
			c.checkExpr(where, k.Expr, len(n.Operands))
		}
		c.checkBody(where, n.Body, 0)
	case *ir.Constant:
		c.requireValue(where, "constant result", n.Result)
	case *ir.Apply:
		c.requireValue(where, "apply result", n.Result)
		c.requireValues(where, "apply operand", n.Operands)
		c.checkExpr(where, n.Expr, len(n.Operands))
	case *ir.Binary:
		c.requireValues(where, n.Op.String()+" operand", []*ir.Value{n.Result, n.LHS, n.RHS})
	case *ir.Unary:
		c.requireValues(where, n.Op.String()+" operand", []*ir.Value{n.Result, n.Operand})
	case *ir.Compare:
		c.requireValues(where, "cmp operand", []*ir.Value{n.Result, n.LHS, n.RHS})
	case *ir.Bitcast:
		c.requireValues(where, "bitcast operand", []*ir.Value{n.Result, n.Operand})
	case *ir.Alloc:
		if c.requireMemRef(where, "alloc result", n.Result) {
			c.checkShape(where, n.Result)
		}
	case *ir.Load:
		c.requireValue(where, "load result", n.Result)
		c.checkAccess(where, "load", n.Memref, n.Map, n.Operands)
	case *ir.IndexedLoad:
		c.requireValue(where, "load result", n.Result)
		c.requireValues(where, "load index", n.Indices)
		if c.requireMemRef(where, "load memref", n.Memref) && len(n.Indices) != n.Memref.Mem.Rank() {
			c.error(where, "load of %s uses %d indices for rank %d", n.Memref, len(n.Indices), n.Memref.Mem.Rank())
		}
	case *ir.Store:
		c.requireValue(where, "stored value", n.Value)
		c.checkAccess(where, "store", n.Memref, n.Map, n.Operands)
	case *ir.VectorLoad:
		c.requireValue(where, "vector load result", n.Result)
		c.checkAccess(where, "vector load", n.Memref, n.Map, n.Operands)
		c.checkVector(where, n.Vector)
	case *ir.VectorStore:
		c.requireValue(where, "stored vector", n.Value)
		c.checkAccess(where, "vector store", n.Memref, n.Map, n.Operands)
		c.checkVector(where, n.Vector)
	case *ir.Barrier:
	case *ir.Shuffle:
		c.requireValues(where, "shuffle operand", []*ir.Value{n.Result, n.Value, n.Offset, n.Width})
		if n.Mode != ir.ShuffleDown && n.Mode != ir.ShuffleIdx {
			c.error(where, "shuffle mode %s has no kernel spelling", n.Mode)
		}
	case *ir.Yield:
	default:
		c.error(where, "unknown node %T", n)
	}
}

func (c *checker) requireValue(where, what string, v *ir.Value) bool {
	if v == nil {
		c.error(where, "%s is nil", what)
		return false
	}
	return true
}

func (c *checker) requireValues(where, what string, vs []*ir.Value) {
	for _, v := range vs {
		c.requireValue(where, what, v)
	}
}

func (c *checker) requireMemRef(where, what string, v *ir.Value) bool {
	if !c.requireValue(where, what, v) {
		return false
	}
	if !v.IsMemRef() {
		c.error(where, "%s %s is not a memref", what, v)
		return false
	}
	return true
}

func (c *checker) checkShape(where string, v *ir.Value) {
	for i, d := range v.Mem.Shape {
		if d <= 0 {
			c.error(where, "%s has non-positive extent %d in dimension %d", v, d, i)
		}
	}
}

func (c *checker) checkAccess(where, what string, mem *ir.Value, exprs []ir.AffineExpr, operands []*ir.Value) {
	c.requireValues(where, what+" operand", operands)
	for _, e := range exprs {
		c.checkExpr(where, e, len(operands))
	}
	if !c.requireMemRef(where, what+" memref", mem) {
		return
	}
	if len(exprs) != mem.Mem.Rank() {
		c.error(where, "%s of %s uses %d subscripts for rank %d", what, mem, len(exprs), mem.Mem.Rank())
	}
}

func (c *checker) checkExpr(where string, e ir.AffineExpr, operands int) {
	if e == nil {
		c.error(where, "nil affine expression")
		return
	}
	if maxDim := ir.MaxDim(e); maxDim >= operands {
		c.error(where, "affine expression %s refers to d%d but only %d operand(s) are given", e, maxDim, operands)
	}
}

func (c *checker) checkVector(where string, vt ir.VectorType) {
	bits := vt.Lanes * vt.Elem.Bits()
	if vt.Lanes <= 0 || bits%32 != 0 || bits/32 < 1 || bits/32 > 4 {
		c.error(where, "vector of %d x %s does not fill 1 to 4 whole 32-bit lanes", vt.Lanes, vt.Elem)
	}
}

func kindOf(n ir.Node) string {
	if n == nil {
		return "nil node"
	}
	return fmt.Sprintf("%T", n)
}
