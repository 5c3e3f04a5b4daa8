package ir

import (
	"fmt"
	"io"
	"strings"
)

// Dump writes a simple human-readable representation of the module.
func Dump(module *Module, w io.Writer) {
	if module == nil {
		fmt.Fprintln(w, "<nil module>")
		return
	}
	fmt.Fprintf(w, "module %s\n", module.Name)
	for _, fn := range module.Funcs {
		fmt.Fprintf(w, "  func %s\n", fn.Name)
		dumpBody(w, fn.Body, 2)
	}
}

func dumpBody(w io.Writer, body []Node, depth int) {
	pad := strings.Repeat("  ", depth)
	for _, n := range body {
		fmt.Fprintf(w, "%s%s\n", pad, renderNode(n))
		if inner := Body(n); inner != nil {
			dumpBody(w, inner, depth+1)
		}
	}
}

func renderNode(n Node) string {
	switch n := n.(type) {
	case *Parallel:
		return fmt.Sprintf("parallel (%s) = (0) to (%s)", valueList(n.IVs), intList(n.Ranges))
	case *For:
		suffix := ""
		if n.Unroll {
			suffix = " {unroll}"
		}
		return fmt.Sprintf("for %s = %d to %d step %d%s", n.IV, n.Lower, n.Upper, n.Step, suffix)
	case *If:
		conds := make([]string, 0, len(n.Constraints))
		for _, c := range n.Constraints {
			rel := ">="
			if c.Eq {
				rel = "=="
			}
			conds = append(conds, fmt.Sprintf("%s %s 0", exprString(c.Expr), rel))
		}
		return fmt.Sprintf("if %s (%s)", strings.Join(conds, ", "), valueList(n.Operands))
	case *Constant:
		if n.Result != nil && n.Result.Type.IsFloat() {
			return fmt.Sprintf("%s = constant %g : %s", n.Result, n.Float, typeOf(n.Result))
		}
		return fmt.Sprintf("%s = constant %d : %s", n.Result, n.Int, typeOf(n.Result))
	case *Apply:
		return fmt.Sprintf("%s = apply %s (%s)", n.Result, exprString(n.Expr), valueList(n.Operands))
	case *Binary:
		return fmt.Sprintf("%s = %s %s, %s", n.Result, n.Op, n.LHS, n.RHS)
	case *Unary:
		return fmt.Sprintf("%s = %s %s", n.Result, n.Op, n.Operand)
	case *Compare:
		return fmt.Sprintf("%s = cmp %s %s, %s", n.Result, n.Pred, n.LHS, n.RHS)
	case *Bitcast:
		return fmt.Sprintf("%s = bitcast %s : %s", n.Result, n.Operand, typeOf(n.Result))
	case *Alloc:
		return fmt.Sprintf("%s = alloc : %s", n.Result, typeOf(n.Result))
	case *Load:
		return fmt.Sprintf("%s = load %s[%s] (%s)", n.Result, n.Memref, exprList(n.Map), valueList(n.Operands))
	case *IndexedLoad:
		return fmt.Sprintf("%s = load %s[%s]", n.Result, n.Memref, valueList(n.Indices))
	case *Store:
		return fmt.Sprintf("store %s, %s[%s] (%s)", n.Value, n.Memref, exprList(n.Map), valueList(n.Operands))
	case *VectorLoad:
		return fmt.Sprintf("%s = vector_load %s[%s] (%s) : %dx%s", n.Result, n.Memref, exprList(n.Map), valueList(n.Operands), n.Vector.Lanes, n.Vector.Elem)
	case *VectorStore:
		return fmt.Sprintf("vector_store %s, %s[%s] (%s) : %dx%s", n.Value, n.Memref, exprList(n.Map), valueList(n.Operands), n.Vector.Lanes, n.Vector.Elem)
	case *Barrier:
		return "barrier"
	case *Shuffle:
		return fmt.Sprintf("%s = shuffle %s %s, %s, %s", n.Result, n.Mode, n.Value, n.Offset, n.Width)
	case *Yield:
		return "yield"
	default:
		return fmt.Sprintf("<unknown node %T>", n)
	}
}

func typeOf(v *Value) string {
	if v == nil {
		return "?"
	}
	if v.Mem != nil {
		return fmt.Sprintf("memref<%s%s, %s>", shapePrefix(v.Mem.Shape), v.Mem.Elem, v.Mem.Space)
	}
	return v.Type.String()
}

func shapePrefix(shape []int64) string {
	var b strings.Builder
	for _, d := range shape {
		fmt.Fprintf(&b, "%dx", d)
	}
	return b.String()
}

func valueList(values []*Value) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, v.String())
	}
	return strings.Join(parts, ", ")
}

func exprList(exprs []AffineExpr) string {
	parts := make([]string, 0, len(exprs))
	for _, e := range exprs {
		parts = append(parts, exprString(e))
	}
	return strings.Join(parts, ", ")
}

func intList(values []int64) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, fmt.Sprintf("%d", v))
	}
	return strings.Join(parts, ", ")
}
