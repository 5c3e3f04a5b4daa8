package ir

import "fmt"

// AffineExpr is a node of an affine expression tree. The set is closed:
// DimExpr, ConstExpr and BinExpr.
type AffineExpr interface {
	isAffine()
	String() string
}

// DimExpr refers to the operand at Pos in the operand list passed alongside
// the expression.
type DimExpr struct {
	Pos int
}

// ConstExpr is an integer literal.
type ConstExpr struct {
	Value int64
}

// AffineKind enumerates the binary affine operators.
type AffineKind int

const (
	AffineAdd AffineKind = iota
	AffineMul
	AffineMod
	AffineFloorDiv
	AffineCeilDiv
)

func (k AffineKind) String() string {
	switch k {
	case AffineAdd:
		return "+"
	case AffineMul:
		return "*"
	case AffineMod:
		return "mod"
	case AffineFloorDiv:
		return "floordiv"
	case AffineCeilDiv:
		return "ceildiv"
	default:
		return fmt.Sprintf("affine(%d)", int(k))
	}
}

// BinExpr combines two sub-expressions.
type BinExpr struct {
	Kind AffineKind
	LHS  AffineExpr
	RHS  AffineExpr
}

func (DimExpr) isAffine()   {}
func (ConstExpr) isAffine() {}
func (BinExpr) isAffine()   {}

func (e DimExpr) String() string   { return fmt.Sprintf("d%d", e.Pos) }
func (e ConstExpr) String() string { return fmt.Sprintf("%d", e.Value) }

func (e BinExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", exprString(e.LHS), e.Kind, exprString(e.RHS))
}

func exprString(e AffineExpr) string {
	if e == nil {
		return "<nil>"
	}
	return e.String()
}

// D returns a reference to operand pos.
func D(pos int) AffineExpr { return DimExpr{Pos: pos} }

// C returns an integer literal.
func C(v int64) AffineExpr { return ConstExpr{Value: v} }

func Add(l, r AffineExpr) AffineExpr      { return BinExpr{Kind: AffineAdd, LHS: l, RHS: r} }
func Mul(l, r AffineExpr) AffineExpr      { return BinExpr{Kind: AffineMul, LHS: l, RHS: r} }
func Mod(l, r AffineExpr) AffineExpr      { return BinExpr{Kind: AffineMod, LHS: l, RHS: r} }
func FloorDiv(l, r AffineExpr) AffineExpr { return BinExpr{Kind: AffineFloorDiv, LHS: l, RHS: r} }
func CeilDiv(l, r AffineExpr) AffineExpr  { return BinExpr{Kind: AffineCeilDiv, LHS: l, RHS: r} }

// Identity returns the map (d0, d1, ..., d{n-1}).
func Identity(n int) []AffineExpr {
	exprs := make([]AffineExpr, n)
	for i := range exprs {
		exprs[i] = D(i)
	}
	return exprs
}

// MaxDim returns the highest operand position referenced by e, or -1 when e
// references none.
func MaxDim(e AffineExpr) int {
	switch e := e.(type) {
	case DimExpr:
		return e.Pos
	case BinExpr:
		return max(MaxDim(e.LHS), MaxDim(e.RHS))
	default:
		return -1
	}
}
