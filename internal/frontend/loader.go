// Package frontend reads kernel IR documents written in YAML and builds
// the in-memory IR the rest of the compiler works on.
package frontend

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"kernelgen/internal/diag"
	"kernelgen/internal/ir"
)

// LoadConfig lists the IR documents to load. Functions from every source
// end up in one module named after the first document.
type LoadConfig struct {
	Sources []string
}

var validate = validator.New()

// LoadModule parses every source and merges the results. Each failing
// source is reported before the combined error is returned.
func LoadModule(cfg LoadConfig, reporter *diag.Reporter) (*ir.Module, error) {
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("no source files were provided")
	}

	var merged *ir.Module
	var hadErrors bool
	for _, src := range cfg.Sources {
		data, err := os.ReadFile(src)
		if err != nil {
			reporter.Errorf("%v", err)
			hadErrors = true
			continue
		}
		module, err := ParseModule(src, data)
		if err != nil {
			reporter.Errorf("%v", err)
			hadErrors = true
			continue
		}
		reporter.Debugf("loaded %s: %d func(s)", filepath.Base(src), len(module.Funcs))
		if merged == nil {
			merged = module
			continue
		}
		merged.Funcs = append(merged.Funcs, module.Funcs...)
	}

	if hadErrors {
		return nil, fmt.Errorf("module loading failed")
	}
	return merged, nil
}

// ParseModule decodes one IR document. name is used as the position
// prefix in error messages.
func ParseModule(name string, data []byte) (*ir.Module, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: empty document", name)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if err := validate.Struct(&doc); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	l := &loader{
		name:   name,
		b:      ir.NewBuilder(),
		values: make(map[string]*ir.Value),
	}
	for _, v := range doc.Values {
		val, err := l.newValue(v)
		if err != nil {
			return nil, err
		}
		if err := l.define(v.ID, val, 0); err != nil {
			return nil, err
		}
	}

	module := &ir.Module{Name: doc.Module}
	for _, fd := range doc.Funcs {
		body, err := l.body(fd.Body)
		if err != nil {
			return nil, fmt.Errorf("func %s: %w", fd.Name, err)
		}
		module.Funcs = append(module.Funcs, &ir.Func{Name: fd.Name, Body: body})
	}
	return module, nil
}

type loader struct {
	name   string
	b      *ir.Builder
	values map[string]*ir.Value
}

func (l *loader) errorf(line int, format string, args ...any) error {
	if line > 0 {
		return fmt.Errorf("%s:%d: %s", l.name, line, fmt.Sprintf(format, args...))
	}
	return fmt.Errorf("%s: %s", l.name, fmt.Sprintf(format, args...))
}

func (l *loader) define(id string, v *ir.Value, line int) error {
	if _, ok := l.values[id]; ok {
		return l.errorf(line, "value %q redefined", id)
	}
	l.values[id] = v
	return nil
}

func (l *loader) use(id string, line int) (*ir.Value, error) {
	v, ok := l.values[id]
	if !ok {
		return nil, l.errorf(line, "value %q used before definition", id)
	}
	return v, nil
}

func (l *loader) uses(ids []string, line int) ([]*ir.Value, error) {
	out := make([]*ir.Value, 0, len(ids))
	for _, id := range ids {
		v, err := l.use(id, line)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (l *loader) memref(id string, line int) (*ir.Value, error) {
	v, err := l.use(id, line)
	if err != nil {
		return nil, err
	}
	if !v.IsMemRef() {
		return nil, l.errorf(line, "value %q is not a memref", id)
	}
	return v, nil
}

func (l *loader) newValue(v valueDoc) (*ir.Value, error) {
	elem := elemTypes[v.Type]
	if len(v.Shape) == 0 {
		return l.b.Value(v.ID, elem), nil
	}
	space := memorySpaces[v.Space]
	return l.b.MemRef(v.ID, elem, space, v.Shape...), nil
}

func (l *loader) affineMap(exprs []string, line int) ([]ir.AffineExpr, error) {
	out := make([]ir.AffineExpr, 0, len(exprs))
	for _, src := range exprs {
		e, err := ParseAffine(src)
		if err != nil {
			return nil, l.errorf(line, "%v", err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (l *loader) body(items []yaml.Node) ([]ir.Node, error) {
	nodes := make([]ir.Node, 0, len(items))
	for i := range items {
		n, err := l.node(&items[i])
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// decode fills doc from the node's value and checks its constraints.
func (l *loader) decode(kind string, value *yaml.Node, doc any) error {
	if value.Kind != yaml.ScalarNode || value.Tag != "!!null" {
		if err := value.Decode(doc); err != nil {
			return l.errorf(value.Line, "%s: %v", kind, err)
		}
	}
	if err := validate.Struct(doc); err != nil {
		return l.errorf(value.Line, "%s: %v", kind, err)
	}
	return nil
}

func (l *loader) node(item *yaml.Node) (ir.Node, error) {
	if item.Kind != yaml.MappingNode || len(item.Content) != 2 {
		return nil, l.errorf(item.Line, "body entry must be a single-key mapping naming the node kind")
	}
	kind := item.Content[0].Value
	value := item.Content[1]
	line := item.Content[0].Line

	switch kind {
	case "parallel":
		var doc parallelDoc
		if err := l.decode(kind, value, &doc); err != nil {
			return nil, err
		}
		if len(doc.IVs) != len(doc.Ranges) {
			return nil, l.errorf(line, "parallel: %d induction variables for %d ranges", len(doc.IVs), len(doc.Ranges))
		}
		p := &ir.Parallel{Ranges: doc.Ranges}
		for _, id := range doc.IVs {
			iv := l.b.Index(id)
			if err := l.define(id, iv, line); err != nil {
				return nil, err
			}
			p.IVs = append(p.IVs, iv)
		}
		body, err := l.body(doc.Body)
		if err != nil {
			return nil, err
		}
		p.Body = body
		return p, nil

	case "for":
		var doc forDoc
		if err := l.decode(kind, value, &doc); err != nil {
			return nil, err
		}
		f := l.b.For(doc.IV, doc.Lower, doc.Upper, doc.Step)
		f.Unroll = doc.Unroll
		if err := l.define(doc.IV, f.IV, line); err != nil {
			return nil, err
		}
		body, err := l.body(doc.Body)
		if err != nil {
			return nil, err
		}
		f.Body = body
		return f, nil

	case "if":
		var doc ifDoc
		if err := l.decode(kind, value, &doc); err != nil {
			return nil, err
		}
		operands, err := l.uses(doc.Operands, line)
		if err != nil {
			return nil, err
		}
		n := &ir.If{Operands: operands}
		for _, c := range doc.Constraints {
			e, err := ParseAffine(c.Expr)
			if err != nil {
				return nil, l.errorf(line, "if: %v", err)
			}
			n.Constraints = append(n.Constraints, ir.Constraint{Expr: e, Eq: c.Eq})
		}
		body, err := l.body(doc.Body)
		if err != nil {
			return nil, err
		}
		n.Body = body
		return n, nil

	case "constant":
		var doc constantDoc
		if err := l.decode(kind, value, &doc); err != nil {
			return nil, err
		}
		result := l.b.Value(doc.ID, elemTypes[doc.Type])
		c := &ir.Constant{Result: result}
		if result.Type.IsFloat() {
			c.Float = doc.Value
		} else {
			if doc.Value != float64(int64(doc.Value)) {
				return nil, l.errorf(line, "constant %q: %v is not an integer", doc.ID, doc.Value)
			}
			c.Int = int64(doc.Value)
		}
		return c, l.define(doc.ID, result, line)

	case "apply":
		var doc applyDoc
		if err := l.decode(kind, value, &doc); err != nil {
			return nil, err
		}
		e, err := ParseAffine(doc.Expr)
		if err != nil {
			return nil, l.errorf(line, "apply: %v", err)
		}
		operands, err := l.uses(doc.Operands, line)
		if err != nil {
			return nil, err
		}
		a := &ir.Apply{Result: l.b.Index(doc.ID), Expr: e, Operands: operands}
		return a, l.define(doc.ID, a.Result, line)

	case "arith":
		var doc arithDoc
		if err := l.decode(kind, value, &doc); err != nil {
			return nil, err
		}
		operands, err := l.uses([]string{doc.LHS, doc.RHS}, line)
		if err != nil {
			return nil, err
		}
		n := l.b.Binary(doc.ID, binaryOps[doc.Op], operands[0], operands[1])
		return n, l.define(doc.ID, n.Result, line)

	case "math":
		var doc mathDoc
		if err := l.decode(kind, value, &doc); err != nil {
			return nil, err
		}
		operand, err := l.use(doc.Operand, line)
		if err != nil {
			return nil, err
		}
		n := l.b.Unary(doc.ID, unaryOps[doc.Op], operand)
		return n, l.define(doc.ID, n.Result, line)

	case "cmp":
		var doc cmpDoc
		if err := l.decode(kind, value, &doc); err != nil {
			return nil, err
		}
		operands, err := l.uses([]string{doc.LHS, doc.RHS}, line)
		if err != nil {
			return nil, err
		}
		n := &ir.Compare{Pred: predicates[doc.Pred], Result: l.b.Value(doc.ID, ir.Int), LHS: operands[0], RHS: operands[1]}
		return n, l.define(doc.ID, n.Result, line)

	case "bitcast":
		var doc bitcastDoc
		if err := l.decode(kind, value, &doc); err != nil {
			return nil, err
		}
		operand, err := l.use(doc.Operand, line)
		if err != nil {
			return nil, err
		}
		n := &ir.Bitcast{Result: l.b.Value(doc.ID, elemTypes[doc.Type]), Operand: operand}
		return n, l.define(doc.ID, n.Result, line)

	case "alloc":
		var doc allocDoc
		if err := l.decode(kind, value, &doc); err != nil {
			return nil, err
		}
		n := l.b.Alloc(doc.ID, elemTypes[doc.Type], memorySpaces[doc.Space], doc.Shape...)
		return n, l.define(doc.ID, n.Result, line)

	case "load":
		var doc loadDoc
		if err := l.decode(kind, value, &doc); err != nil {
			return nil, err
		}
		mem, exprs, operands, err := l.access(doc.Memref, doc.Map, doc.Operands, line)
		if err != nil {
			return nil, err
		}
		n := l.b.Load(doc.ID, mem, exprs, operands...)
		return n, l.define(doc.ID, n.Result, line)

	case "indexed_load":
		var doc indexedLoadDoc
		if err := l.decode(kind, value, &doc); err != nil {
			return nil, err
		}
		mem, err := l.memref(doc.Memref, line)
		if err != nil {
			return nil, err
		}
		indices, err := l.uses(doc.Indices, line)
		if err != nil {
			return nil, err
		}
		n := &ir.IndexedLoad{Result: l.b.Value(doc.ID, mem.Mem.Elem), Memref: mem, Indices: indices}
		return n, l.define(doc.ID, n.Result, line)

	case "store":
		var doc storeDoc
		if err := l.decode(kind, value, &doc); err != nil {
			return nil, err
		}
		stored, err := l.use(doc.Value, line)
		if err != nil {
			return nil, err
		}
		mem, exprs, operands, err := l.access(doc.Memref, doc.Map, doc.Operands, line)
		if err != nil {
			return nil, err
		}
		return &ir.Store{Value: stored, Memref: mem, Map: exprs, Operands: operands}, nil

	case "vector_load":
		var doc vectorLoadDoc
		if err := l.decode(kind, value, &doc); err != nil {
			return nil, err
		}
		mem, exprs, operands, err := l.access(doc.Memref, doc.Map, doc.Operands, line)
		if err != nil {
			return nil, err
		}
		n := l.b.VectorLoad(doc.ID, mem, doc.Lanes, exprs, operands...)
		return n, l.define(doc.ID, n.Result, line)

	case "vector_store":
		var doc vectorStoreDoc
		if err := l.decode(kind, value, &doc); err != nil {
			return nil, err
		}
		stored, err := l.use(doc.Value, line)
		if err != nil {
			return nil, err
		}
		mem, exprs, operands, err := l.access(doc.Memref, doc.Map, doc.Operands, line)
		if err != nil {
			return nil, err
		}
		return &ir.VectorStore{
			Value:    stored,
			Memref:   mem,
			Map:      exprs,
			Operands: operands,
			Vector:   ir.VectorType{Elem: mem.Mem.Elem, Lanes: doc.Lanes},
		}, nil

	case "barrier":
		return &ir.Barrier{}, nil

	case "shuffle":
		var doc shuffleDoc
		if err := l.decode(kind, value, &doc); err != nil {
			return nil, err
		}
		operands, err := l.uses([]string{doc.Value, doc.Offset, doc.Width}, line)
		if err != nil {
			return nil, err
		}
		n := &ir.Shuffle{
			Mode:   shuffleModes[doc.Mode],
			Result: l.b.Value(doc.ID, operands[0].Type),
			Value:  operands[0],
			Offset: operands[1],
			Width:  operands[2],
		}
		return n, l.define(doc.ID, n.Result, line)

	case "yield":
		return &ir.Yield{}, nil

	default:
		return nil, l.errorf(line, "unknown node kind %q (want one of %s)", kind, strings.Join(nodeKinds, ", "))
	}
}

func (l *loader) access(memref string, exprs, operandIDs []string, line int) (*ir.Value, []ir.AffineExpr, []*ir.Value, error) {
	mem, err := l.memref(memref, line)
	if err != nil {
		return nil, nil, nil, err
	}
	m, err := l.affineMap(exprs, line)
	if err != nil {
		return nil, nil, nil, err
	}
	operands, err := l.uses(operandIDs, line)
	if err != nil {
		return nil, nil, nil, err
	}
	return mem, m, operands, nil
}
