package cuda

import (
	"fmt"
	"strconv"

	"kernelgen/internal/ir"
)

// compileExpr lowers an affine expression to fully parenthesized integer
// arithmetic. Dimension references resolve through operands.
func (g *generator) compileExpr(e ir.AffineExpr, operands []*ir.Value) (string, error) {
	switch e := e.(type) {
	case ir.DimExpr:
		if e.Pos < 0 || e.Pos >= len(operands) {
			return "", fmt.Errorf("%w: d%d used with %d operands", ErrStructure, e.Pos, len(operands))
		}
		return g.names.nameOf(operands[e.Pos]), nil
	case ir.ConstExpr:
		return strconv.FormatInt(e.Value, 10), nil
	case ir.BinExpr:
		lhs, err := g.compileExpr(e.LHS, operands)
		if err != nil {
			return "", err
		}
		rhs, err := g.compileExpr(e.RHS, operands)
		if err != nil {
			return "", err
		}
		switch e.Kind {
		case ir.AffineAdd:
			return "(" + lhs + " + " + rhs + ")", nil
		case ir.AffineMul:
			return "(" + lhs + " * " + rhs + ")", nil
		case ir.AffineMod:
			return "(" + lhs + " % " + rhs + ")", nil
		case ir.AffineFloorDiv:
			return "(" + lhs + " / " + rhs + ")", nil
		case ir.AffineCeilDiv:
			return "((" + lhs + " + " + rhs + " - 1) / " + rhs + ")", nil
		default:
			return "", fmt.Errorf("%w: affine operator %s", ErrUnsupported, e.Kind)
		}
	default:
		return "", fmt.Errorf("%w: affine expression %T", ErrUnsupported, e)
	}
}
