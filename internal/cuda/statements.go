package cuda

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"kernelgen/internal/ir"
)

func (g *generator) emitBody(body []ir.Node) error {
	for _, n := range body {
		if err := g.emitNode(n); err != nil {
			return err
		}
	}
	return nil
}

// emitNode writes the statement for n and recurses into nested bodies.
// Every node kind must be handled here; anything else is an error.
func (g *generator) emitNode(n ir.Node) error {
	switch n := n.(type) {
	case *ir.For:
		return g.emitFor(n)
	case *ir.If:
		return g.emitIf(n)
	case *ir.Constant:
		return g.emitConstant(n)
	case *ir.Apply:
		expr, err := g.compileExpr(n.Expr, n.Operands)
		if err != nil {
			return err
		}
		g.line("int %s = %s;", g.names.nameOf(n.Result), expr)
	case *ir.Binary:
		rhs, err := g.binary(n)
		if err != nil {
			return err
		}
		g.line("auto %s = %s;", g.names.nameOf(n.Result), rhs)
	case *ir.Unary:
		fn, err := unaryFunc(n.Op)
		if err != nil {
			return err
		}
		g.line("auto %s = %s(%s);", g.names.nameOf(n.Result), fn, g.names.nameOf(n.Operand))
	case *ir.Compare:
		var op string
		switch n.Pred {
		case ir.PredEQ:
			op = "=="
		case ir.PredGT:
			op = ">"
		default:
			return fmt.Errorf("%w: compare predicate %s", ErrUnsupported, n.Pred)
		}
		g.line("auto %s = %s %s %s;", g.names.nameOf(n.Result), g.names.nameOf(n.LHS), op, g.names.nameOf(n.RHS))
	case *ir.Bitcast:
		if n.Result == nil {
			return fmt.Errorf("%w: bitcast without result", ErrStructure)
		}
		ctype, err := n.Result.Type.CType()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnsupported, err)
		}
		g.line("auto %s = static_cast<%s>(%s);", g.names.nameOf(n.Result), ctype, g.names.nameOf(n.Operand))
	case *ir.Alloc:
		decl, err := g.declare(n.Result)
		if err != nil {
			return err
		}
		g.line("%s;", decl)
	case *ir.Load:
		addr, err := g.address(n.Memref, n.Map, n.Operands)
		if err != nil {
			return err
		}
		g.line("auto %s = %s;", g.names.nameOf(n.Result), addr)
	case *ir.IndexedLoad:
		addr, err := g.address(n.Memref, ir.Identity(len(n.Indices)), n.Indices)
		if err != nil {
			return err
		}
		g.line("auto %s = %s;", g.names.nameOf(n.Result), addr)
	case *ir.Store:
		addr, err := g.address(n.Memref, n.Map, n.Operands)
		if err != nil {
			return err
		}
		g.line("%s = %s;", addr, g.names.nameOf(n.Value))
	case *ir.VectorLoad:
		addr, err := g.vectorAddress(n.Memref, n.Map, n.Operands, n.Vector)
		if err != nil {
			return err
		}
		g.line("auto %s = %s;", g.names.nameOf(n.Result), addr)
	case *ir.VectorStore:
		addr, err := g.vectorAddress(n.Memref, n.Map, n.Operands, n.Vector)
		if err != nil {
			return err
		}
		g.line("%s = %s;", addr, g.names.nameOf(n.Value))
	case *ir.Barrier:
		g.line("__syncthreads();")
	case *ir.Shuffle:
		var intrinsic string
		switch n.Mode {
		case ir.ShuffleDown:
			intrinsic = "__shfl_down_sync"
		case ir.ShuffleIdx:
			intrinsic = "__shfl_sync"
		default:
			return fmt.Errorf("%w: shuffle mode %s", ErrUnsupported, n.Mode)
		}
		g.line("auto %s = %s(0xffffffff, %s, %s, %s);", g.names.nameOf(n.Result), intrinsic,
			g.names.nameOf(n.Value), g.names.nameOf(n.Offset), g.names.nameOf(n.Width))
	case *ir.Yield:
	case *ir.Parallel:
		return fmt.Errorf("%w: parallel boundary below the block level", ErrStructure)
	default:
		return fmt.Errorf("%w: node %T", ErrUnsupported, n)
	}
	return nil
}

func (g *generator) emitFor(f *ir.For) error {
	if f.Unroll {
		g.line("#pragma unroll")
	}
	iv := g.names.nameOf(f.IV)
	g.line("for (int %s = %d; %s < %d; %s += %d) {", iv, f.Lower, iv, f.Upper, iv, f.Step)
	g.indent++
	if err := g.emitBody(f.Body); err != nil {
		return err
	}
	g.indent--
	g.line("}")
	return nil
}

func (g *generator) emitIf(n *ir.If) error {
	var cond strings.Builder
	for _, c := range n.Constraints {
		expr, err := g.compileExpr(c.Expr, n.Operands)
		if err != nil {
			return err
		}
		rel := ">="
		if c.Eq {
			rel = "=="
		}
		fmt.Fprintf(&cond, "%s %s 0 && ", expr, rel)
	}
	cond.WriteString("true")
	g.line("if (%s) {", cond.String())
	g.indent++
	if err := g.emitBody(n.Body); err != nil {
		return err
	}
	g.indent--
	g.line("}")
	return nil
}

func (g *generator) emitConstant(c *ir.Constant) error {
	if c.Result == nil {
		return fmt.Errorf("%w: constant without result", ErrStructure)
	}
	name := g.names.nameOf(c.Result)
	if !c.Result.Type.IsFloat() {
		g.line("constexpr int %s = %d;", name, c.Int)
		return nil
	}
	ctype, err := c.Result.Type.CType()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	g.line("constexpr %s %s = %s;", ctype, name, floatLiteral(c.Float))
	return nil
}

func (g *generator) binary(b *ir.Binary) (string, error) {
	lhs, rhs := g.names.nameOf(b.LHS), g.names.nameOf(b.RHS)
	switch b.Op {
	case ir.MulF:
		return lhs + " * " + rhs, nil
	case ir.AddF:
		return lhs + " + " + rhs, nil
	case ir.SubF:
		return lhs + " - " + rhs, nil
	case ir.DivF:
		return lhs + " / " + rhs, nil
	case ir.MaxF:
		return "max(" + lhs + ", " + rhs + ")", nil
	case ir.PowF:
		return "powf(" + lhs + ", " + rhs + ")", nil
	default:
		return "", fmt.Errorf("%w: binary op %s", ErrUnsupported, b.Op)
	}
}

func unaryFunc(op ir.UnaryOp) (string, error) {
	switch op {
	case ir.Sqrt:
		return "sqrtf", nil
	case ir.Log:
		return "logf", nil
	case ir.Exp:
		return "exp", nil
	case ir.Tanh:
		return "tanhf", nil
	default:
		return "", fmt.Errorf("%w: unary op %s", ErrUnsupported, op)
	}
}

// floatLiteral spells v as a single precision literal that always reads as
// floating point.
func floatLiteral(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NAN"
	case math.IsInf(v, 1):
		return "INFINITY"
	case math.IsInf(v, -1):
		return "-INFINITY"
	}
	s := strconv.FormatFloat(v, 'g', -1, 32)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}
