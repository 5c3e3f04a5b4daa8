package ir

// Builder allocates values with sequential IDs and offers shorthands for
// the node kinds that produce them. The frontend and tests construct IR
// through it so that dumps stay stable.
type Builder struct {
	nextID int
}

// NewBuilder returns a builder whose first value gets ID 0.
func NewBuilder() *Builder {
	return &Builder{}
}

// Value allocates a scalar value.
func (b *Builder) Value(hint string, t ElemType) *Value {
	v := &Value{ID: b.nextID, Hint: hint, Type: t}
	b.nextID++
	return v
}

// Index allocates an index-typed value, e.g. an induction variable.
func (b *Builder) Index(hint string) *Value {
	return b.Value(hint, Index)
}

// MemRef allocates a memory value with the given element type, space and
// extents (outermost first).
func (b *Builder) MemRef(hint string, elem ElemType, space MemorySpace, shape ...int64) *Value {
	v := b.Value(hint, elem)
	v.Mem = &MemRefType{Elem: elem, Shape: append([]int64(nil), shape...), Space: space}
	return v
}

// VectorValue allocates a value holding lanes elements of elem.
func (b *Builder) VectorValue(hint string, elem ElemType, lanes int) *Value {
	v := b.Value(hint, elem)
	v.Vector = &VectorType{Elem: elem, Lanes: lanes}
	return v
}

// Parallel creates a kernel boundary with one fresh induction variable per
// extent.
func (b *Builder) Parallel(prefix string, ranges []int64, body ...Node) *Parallel {
	p := &Parallel{Ranges: append([]int64(nil), ranges...), Body: body}
	for i := range ranges {
		p.IVs = append(p.IVs, b.Index(indexedHint(prefix, i)))
	}
	return p
}

// For creates a loop with a fresh induction variable.
func (b *Builder) For(hint string, lower, upper, step int64, body ...Node) *For {
	return &For{IV: b.Index(hint), Lower: lower, Upper: upper, Step: step, Body: body}
}

// Alloc creates an allocation node and its result.
func (b *Builder) Alloc(hint string, elem ElemType, space MemorySpace, shape ...int64) *Alloc {
	return &Alloc{Result: b.MemRef(hint, elem, space, shape...)}
}

// Load creates an affine scalar load whose result takes mem's element type.
func (b *Builder) Load(hint string, mem *Value, exprs []AffineExpr, operands ...*Value) *Load {
	return &Load{Result: b.Value(hint, elemOf(mem)), Memref: mem, Map: exprs, Operands: operands}
}

// VectorLoad creates a vector load of lanes elements.
func (b *Builder) VectorLoad(hint string, mem *Value, lanes int, exprs []AffineExpr, operands ...*Value) *VectorLoad {
	elem := elemOf(mem)
	return &VectorLoad{
		Result:   b.VectorValue(hint, elem, lanes),
		Memref:   mem,
		Map:      exprs,
		Operands: operands,
		Vector:   VectorType{Elem: elem, Lanes: lanes},
	}
}

// Binary creates a two-operand op whose result takes lhs's element type.
func (b *Builder) Binary(hint string, op BinaryOp, lhs, rhs *Value) *Binary {
	return &Binary{Op: op, Result: b.Value(hint, elemOf(lhs)), LHS: lhs, RHS: rhs}
}

// Unary creates a one-operand math op.
func (b *Builder) Unary(hint string, op UnaryOp, operand *Value) *Unary {
	return &Unary{Op: op, Result: b.Value(hint, elemOf(operand)), Operand: operand}
}

// IndexConst creates an index constant.
func (b *Builder) IndexConst(hint string, v int64) *Constant {
	return &Constant{Result: b.Index(hint), Int: v}
}

// FloatConst creates a floating point constant of type t.
func (b *Builder) FloatConst(hint string, t ElemType, v float64) *Constant {
	return &Constant{Result: b.Value(hint, t), Float: v}
}

func elemOf(v *Value) ElemType {
	if v == nil {
		return F32
	}
	if v.Mem != nil {
		return v.Mem.Elem
	}
	return v.Type
}

func indexedHint(prefix string, i int) string {
	if prefix == "" {
		return ""
	}
	return prefix + string(rune('0'+i%10))
}
