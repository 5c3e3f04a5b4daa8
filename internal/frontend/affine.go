package frontend

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"kernelgen/internal/ir"
)

// ParseAffine parses an affine expression written the way MLIR prints
// them: d0 * 16 + d1, d0 floordiv 4, (d0 + 1) ceildiv 8, d1 mod 2.
// Subtraction and negation lower to multiplication by -1.
func ParseAffine(src string) (ir.AffineExpr, error) {
	toks, err := lexAffine(src)
	if err != nil {
		return nil, err
	}
	p := &affineParser{toks: toks}
	e, err := p.sum()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, fmt.Errorf("affine %q: unexpected %q", src, p.toks[p.pos])
	}
	return e, nil
}

func lexAffine(src string) ([]string, error) {
	var toks []string
	rs := []rune(src)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case strings.ContainsRune("+-*()", r):
			toks = append(toks, string(r))
			i++
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			j := i
			for j < len(rs) && (unicode.IsLetter(rs[j]) || unicode.IsDigit(rs[j])) {
				j++
			}
			toks = append(toks, string(rs[i:j]))
			i = j
		default:
			return nil, fmt.Errorf("affine %q: unexpected character %q", src, r)
		}
	}
	if len(toks) == 0 {
		return nil, fmt.Errorf("empty affine expression")
	}
	return toks, nil
}

type affineParser struct {
	toks []string
	pos  int
}

func (p *affineParser) peek() string {
	if p.pos < len(p.toks) {
		return p.toks[p.pos]
	}
	return ""
}

func (p *affineParser) sum() (ir.AffineExpr, error) {
	lhs, err := p.product()
	if err != nil {
		return nil, err
	}
	for {
		op := p.peek()
		if op != "+" && op != "-" {
			return lhs, nil
		}
		p.pos++
		rhs, err := p.product()
		if err != nil {
			return nil, err
		}
		if op == "-" {
			rhs = negate(rhs)
		}
		lhs = ir.Add(lhs, rhs)
	}
}

func (p *affineParser) product() (ir.AffineExpr, error) {
	lhs, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		var kind ir.AffineKind
		switch p.peek() {
		case "*":
			kind = ir.AffineMul
		case "mod":
			kind = ir.AffineMod
		case "floordiv":
			kind = ir.AffineFloorDiv
		case "ceildiv":
			kind = ir.AffineCeilDiv
		default:
			return lhs, nil
		}
		p.pos++
		rhs, err := p.unary()
		if err != nil {
			return nil, err
		}
		lhs = ir.BinExpr{Kind: kind, LHS: lhs, RHS: rhs}
	}
}

func (p *affineParser) unary() (ir.AffineExpr, error) {
	if p.peek() == "-" {
		p.pos++
		e, err := p.unary()
		if err != nil {
			return nil, err
		}
		return negate(e), nil
	}
	return p.atom()
}

func (p *affineParser) atom() (ir.AffineExpr, error) {
	tok := p.peek()
	if tok == "" {
		return nil, fmt.Errorf("affine expression ends early")
	}
	p.pos++
	switch {
	case tok == "(":
		e, err := p.sum()
		if err != nil {
			return nil, err
		}
		if p.peek() != ")" {
			return nil, fmt.Errorf("affine expression: missing )")
		}
		p.pos++
		return e, nil
	case len(tok) > 1 && tok[0] == 'd':
		pos, err := strconv.Atoi(tok[1:])
		if err != nil {
			return nil, fmt.Errorf("affine expression: bad dimension %q", tok)
		}
		return ir.D(pos), nil
	default:
		v, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("affine expression: unexpected %q", tok)
		}
		return ir.C(v), nil
	}
}

func negate(e ir.AffineExpr) ir.AffineExpr {
	if c, ok := e.(ir.ConstExpr); ok {
		return ir.C(-c.Value)
	}
	return ir.Mul(e, ir.C(-1))
}
