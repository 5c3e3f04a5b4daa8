package ir

import "fmt"

// Module is the top-level container handed to the code generator.
type Module struct {
	Name  string
	Funcs []*Func
}

// Func is a function-like container whose body holds kernel boundaries.
type Func struct {
	Name string
	Body []Node
}

// ElemType enumerates the scalar element types attached to values.
type ElemType int

const (
	F16 ElemType = iota
	F32
	F64
	Int
	Index
)

// Bits reports the storage width of the element type.
func (t ElemType) Bits() int {
	switch t {
	case F16:
		return 16
	case F64:
		return 64
	default:
		return 32
	}
}

// IsFloat reports whether t is one of the floating point types.
func (t ElemType) IsFloat() bool {
	return t == F16 || t == F32 || t == F64
}

// CType returns the spelling of t in kernel source.
func (t ElemType) CType() (string, error) {
	switch t {
	case F16:
		return "half_t", nil
	case F32:
		return "float", nil
	case F64:
		return "double", nil
	case Int, Index:
		return "int", nil
	default:
		return "", fmt.Errorf("unknown element type %d", int(t))
	}
}

func (t ElemType) String() string {
	switch t {
	case F16:
		return "f16"
	case F32:
		return "f32"
	case F64:
		return "f64"
	case Int:
		return "i32"
	case Index:
		return "index"
	default:
		return fmt.Sprintf("elem(%d)", int(t))
	}
}

// MemorySpace classifies where a memory object lives.
type MemorySpace int

const (
	Global MemorySpace = iota
	Shared
	Register
)

func (s MemorySpace) String() string {
	switch s {
	case Global:
		return "global"
	case Shared:
		return "shared"
	case Register:
		return "register"
	default:
		return fmt.Sprintf("space(%d)", int(s))
	}
}

// MemRefType describes a memory object: element type, extents (outermost
// first) and memory space.
type MemRefType struct {
	Elem  ElemType
	Shape []int64
	Space MemorySpace
}

// Rank is the number of dimensions.
func (m *MemRefType) Rank() int {
	return len(m.Shape)
}

// VectorType describes the value moved by a vector load or store.
type VectorType struct {
	Elem  ElemType
	Lanes int
}

// Value is an identity handle for a produced datum. Values are compared by
// pointer; two distinct *Value never alias even when their fields match.
type Value struct {
	ID     int
	Hint   string
	Type   ElemType
	Mem    *MemRefType
	Vector *VectorType
}

// IsMemRef reports whether v denotes a memory object.
func (v *Value) IsMemRef() bool {
	return v != nil && v.Mem != nil
}

func (v *Value) String() string {
	if v == nil {
		return "<nil>"
	}
	if v.Hint != "" {
		return fmt.Sprintf("%%%s", v.Hint)
	}
	return fmt.Sprintf("%%%d", v.ID)
}

// Node is implemented by every IR node kind. The set is closed: only types
// in this package implement it.
type Node interface {
	isNode()
}

// Parallel is a kernel boundary. The outermost boundary maps its induction
// variables to grid dimensions, a nested one to block dimensions. Ranges
// holds the static extent of each induction variable.
type Parallel struct {
	IVs    []*Value
	Ranges []int64
	Body   []Node
}

// For is a counted loop with constant bounds.
type For struct {
	IV     *Value
	Lower  int64
	Upper  int64
	Step   int64
	Unroll bool
	Body   []Node
}

// Constraint is one affine condition: Expr == 0 when Eq is set, Expr >= 0
// otherwise.
type Constraint struct {
	Expr AffineExpr
	Eq   bool
}

// If guards Body with the conjunction of Constraints evaluated over Operands.
type If struct {
	Constraints []Constraint
	Operands    []*Value
	Body        []Node
}

// Constant produces a literal. Int is used for Index and Int results, Float
// for floating point results.
type Constant struct {
	Result *Value
	Int    int64
	Float  float64
}

// Apply evaluates one affine expression over Operands.
type Apply struct {
	Result   *Value
	Expr     AffineExpr
	Operands []*Value
}

// BinaryOp enumerates two-operand arithmetic and math ops.
type BinaryOp int

const (
	MulF BinaryOp = iota
	AddF
	SubF
	DivF
	MaxF
	PowF
)

func (op BinaryOp) String() string {
	switch op {
	case MulF:
		return "mul"
	case AddF:
		return "add"
	case SubF:
		return "sub"
	case DivF:
		return "div"
	case MaxF:
		return "max"
	case PowF:
		return "pow"
	default:
		return fmt.Sprintf("binary(%d)", int(op))
	}
}

// Binary applies Op to LHS and RHS.
type Binary struct {
	Op     BinaryOp
	Result *Value
	LHS    *Value
	RHS    *Value
}

// UnaryOp enumerates single-operand math functions.
type UnaryOp int

const (
	Sqrt UnaryOp = iota
	Log
	Exp
	Tanh
)

func (op UnaryOp) String() string {
	switch op {
	case Sqrt:
		return "sqrt"
	case Log:
		return "log"
	case Exp:
		return "exp"
	case Tanh:
		return "tanh"
	default:
		return fmt.Sprintf("unary(%d)", int(op))
	}
}

// Unary applies Op to Operand.
type Unary struct {
	Op      UnaryOp
	Result  *Value
	Operand *Value
}

// Predicate enumerates ordered floating point comparisons.
type Predicate int

const (
	PredEQ Predicate = iota
	PredGT
	PredGE
	PredLT
	PredLE
	PredNE
)

func (p Predicate) String() string {
	switch p {
	case PredEQ:
		return "eq"
	case PredGT:
		return "gt"
	case PredGE:
		return "ge"
	case PredLT:
		return "lt"
	case PredLE:
		return "le"
	case PredNE:
		return "ne"
	default:
		return fmt.Sprintf("pred(%d)", int(p))
	}
}

// Compare evaluates Pred on LHS and RHS.
type Compare struct {
	Pred   Predicate
	Result *Value
	LHS    *Value
	RHS    *Value
}

// Bitcast reinterprets Operand as Result's element type.
type Bitcast struct {
	Result  *Value
	Operand *Value
}

// Alloc produces a fresh memory object; Result.Mem carries its shape and
// space.
type Alloc struct {
	Result *Value
}

// Load reads one element of Memref addressed by the affine Map.
type Load struct {
	Result   *Value
	Memref   *Value
	Map      []AffineExpr
	Operands []*Value
}

// IndexedLoad reads one element of Memref addressed directly by Indices,
// one per dimension.
type IndexedLoad struct {
	Result  *Value
	Memref  *Value
	Indices []*Value
}

// Store writes Value into Memref at the address given by Map.
type Store struct {
	Value    *Value
	Memref   *Value
	Map      []AffineExpr
	Operands []*Value
}

// VectorLoad reads Vector.Lanes consecutive elements starting at the
// addressed element.
type VectorLoad struct {
	Result   *Value
	Memref   *Value
	Map      []AffineExpr
	Operands []*Value
	Vector   VectorType
}

// VectorStore writes Value as Vector.Lanes consecutive elements.
type VectorStore struct {
	Value    *Value
	Memref   *Value
	Map      []AffineExpr
	Operands []*Value
	Vector   VectorType
}

// Barrier is a block-wide synchronization point.
type Barrier struct{}

// ShuffleMode selects how a warp shuffle picks its source lane.
type ShuffleMode int

const (
	ShuffleDown ShuffleMode = iota
	ShuffleIdx
	ShuffleUp
	ShuffleXor
)

func (m ShuffleMode) String() string {
	switch m {
	case ShuffleDown:
		return "down"
	case ShuffleIdx:
		return "idx"
	case ShuffleUp:
		return "up"
	case ShuffleXor:
		return "xor"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Shuffle exchanges Value between lanes of a warp.
type Shuffle struct {
	Mode   ShuffleMode
	Result *Value
	Value  *Value
	Offset *Value
	Width  *Value
}

// Yield terminates a body.
type Yield struct{}

func (*Parallel) isNode()    {}
func (*For) isNode()         {}
func (*If) isNode()          {}
func (*Constant) isNode()    {}
func (*Apply) isNode()       {}
func (*Binary) isNode()      {}
func (*Unary) isNode()       {}
func (*Compare) isNode()     {}
func (*Bitcast) isNode()     {}
func (*Alloc) isNode()       {}
func (*Load) isNode()        {}
func (*IndexedLoad) isNode() {}
func (*Store) isNode()       {}
func (*VectorLoad) isNode()  {}
func (*VectorStore) isNode() {}
func (*Barrier) isNode()     {}
func (*Shuffle) isNode()     {}
func (*Yield) isNode()       {}

// Extents returns the static extents of the boundary's induction variables
// together with their product.
func (p *Parallel) Extents() ([]int64, int64) {
	dims := make([]int64, len(p.Ranges))
	copy(dims, p.Ranges)
	total := int64(1)
	for _, d := range dims {
		total *= d
	}
	return dims, total
}

// Walk visits nodes in pre-order, descending into the bodies of structural
// nodes. Returning false from fn skips the children of that node.
func Walk(nodes []Node, fn func(Node) bool) {
	for _, n := range nodes {
		WalkNode(n, fn)
	}
}

// WalkNode is Walk for a single root, which is itself visited first.
func WalkNode(n Node, fn func(Node) bool) {
	if !fn(n) {
		return
	}
	switch n := n.(type) {
	case *Parallel:
		Walk(n.Body, fn)
	case *For:
		Walk(n.Body, fn)
	case *If:
		Walk(n.Body, fn)
	}
}

// Body returns the nested body of a structural node, or nil.
func Body(n Node) []Node {
	switch n := n.(type) {
	case *Parallel:
		return n.Body
	case *For:
		return n.Body
	case *If:
		return n.Body
	default:
		return nil
	}
}
