package cuda

import (
	"fmt"
	"strconv"
	"strings"

	"kernelgen/internal/ir"
)

// rowMajorStrides returns, for each dimension, the product of the extents
// to its right.
func rowMajorStrides(shape []int64) []int64 {
	strides := make([]int64, len(shape))
	acc := int64(1)
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= shape[i]
	}
	return strides
}

// address renders mem indexed by exprs. Global memory is flattened to a
// single row-major offset; shared and register arrays keep one subscript
// per dimension.
func (g *generator) address(mem *ir.Value, exprs []ir.AffineExpr, operands []*ir.Value) (string, error) {
	if !mem.IsMemRef() {
		return "", fmt.Errorf("%w: %s is not a memory value", ErrStructure, mem)
	}
	if len(exprs) != mem.Mem.Rank() {
		return "", fmt.Errorf("%w: %d subscripts for rank-%d memref %s", ErrStructure, len(exprs), mem.Mem.Rank(), mem)
	}

	var b strings.Builder
	b.WriteString(g.names.nameOf(mem))
	switch mem.Mem.Space {
	case ir.Global:
		strides := rowMajorStrides(mem.Mem.Shape)
		b.WriteByte('[')
		for i, e := range exprs {
			idx, err := g.compileExpr(e, operands)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&b, "%s * %d + ", idx, strides[i])
		}
		b.WriteString("0]")
	case ir.Shared, ir.Register:
		for _, e := range exprs {
			idx, err := g.compileExpr(e, operands)
			if err != nil {
				return "", err
			}
			b.WriteString("[" + idx + "]")
		}
	default:
		return "", fmt.Errorf("%w: memory space %s", ErrUnsupported, mem.Mem.Space)
	}
	return b.String(), nil
}

// vectorAddress reinterprets the scalar address of the first element as a
// pointer to the matching wide type and dereferences it once.
func (g *generator) vectorAddress(mem *ir.Value, exprs []ir.AffineExpr, operands []*ir.Value, vt ir.VectorType) (string, error) {
	wide, err := vectorTypeName(vt)
	if err != nil {
		return "", err
	}
	addr, err := g.address(mem, exprs, operands)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(reinterpret_cast<%s*>(&(%s))[0])", wide, addr), nil
}

// vectorTypeName picks the native vector of 32-bit lanes covering vt.
func vectorTypeName(vt ir.VectorType) (string, error) {
	bits := vt.Lanes * vt.Elem.Bits()
	lanes := bits / 32
	if vt.Lanes <= 0 || bits%32 != 0 || lanes < 1 || lanes > 4 {
		return "", fmt.Errorf("%w: vector of %d x %s (%d bits)", ErrUnsupported, vt.Lanes, vt.Elem, bits)
	}
	return "float" + strconv.Itoa(lanes), nil
}

// declare renders the declaration of a memory value: a flat pointer for
// global memory, a fixed-extent array otherwise.
func (g *generator) declare(v *ir.Value) (string, error) {
	if !v.IsMemRef() {
		return "", fmt.Errorf("%w: %s is not a memory value", ErrStructure, v)
	}
	ctype, err := v.Mem.Elem.CType()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	name := g.names.nameOf(v)
	switch v.Mem.Space {
	case ir.Global:
		return ctype + "* " + name, nil
	case ir.Shared:
		return "__shared__ " + ctype + " " + name + extents(v.Mem.Shape), nil
	case ir.Register:
		return ctype + " " + name + extents(v.Mem.Shape), nil
	default:
		return "", fmt.Errorf("%w: memory space %s", ErrUnsupported, v.Mem.Space)
	}
}

func extents(shape []int64) string {
	var b strings.Builder
	for _, d := range shape {
		fmt.Fprintf(&b, "[%d]", d)
	}
	return b.String()
}
