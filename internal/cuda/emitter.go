// Package cuda lowers kernel IR to CUDA C++ source. Each outermost
// parallel boundary of a function becomes one __global__ kernel; its
// induction variables index the grid and those of the single nested
// boundary index the block.
package cuda

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"kernelgen/internal/diag"
	"kernelgen/internal/ir"
)

const preamble = `#include "cuda_runtime.h"`

// Dimensioner reports the extents of a parallel boundary together with
// their product.
type Dimensioner interface {
	Dimensions(p *ir.Parallel) ([]int64, int64)
}

type staticDims struct{}

func (staticDims) Dimensions(p *ir.Parallel) ([]int64, int64) {
	return p.Extents()
}

// Options configure a generation run.
type Options struct {
	// Reporter receives naming diagnostics and the generated source at
	// debug level. Nil discards them.
	Reporter *diag.Reporter
	// Dimensions supplies grid and block extents. Nil uses the static
	// ranges recorded on each boundary.
	Dimensions Dimensioner
	// Strict turns any naming diagnostic into ErrNaming once the run ends.
	Strict bool
}

// DefaultOptions returns strict options with static dimensions.
func DefaultOptions() Options {
	return Options{Strict: true}
}

// Param is one kernel parameter.
type Param struct {
	Name  string
	Decl  string
	Space ir.MemorySpace
}

// Kernel describes one emitted __global__ function.
type Kernel struct {
	Name   string
	Params []Param
	Grid   []int64
	Block  []int64
}

// Result is the output of a generation run.
type Result struct {
	Source  string
	Kernels []Kernel
}

// Generate lowers every kernel of module. Each call starts from a fresh
// naming state, so equal inputs produce equal output.
func Generate(module *ir.Module, opts Options) (*Result, error) {
	if module == nil {
		return nil, fmt.Errorf("cuda: nil module")
	}
	g := newGenerator(opts)
	g.line(preamble)
	for _, fn := range module.Funcs {
		if err := g.emitFunc(fn); err != nil {
			return nil, fmt.Errorf("cuda: func %s: %w", fn.Name, err)
		}
	}
	if g.opts.Strict && g.names.failures > 0 {
		return nil, fmt.Errorf("cuda: %w: %d diagnostic(s)", ErrNaming, g.names.failures)
	}
	source := g.out.String()
	g.reporter.Debugf("generated source:\n%s", source)
	return &Result{Source: source, Kernels: g.kernels}, nil
}

// Emit writes the CUDA source for module to outputPath. When outputPath is
// empty or "-", the result is written to stdout. Nothing is written when
// generation fails.
func Emit(module *ir.Module, outputPath string, opts Options) error {
	res, err := Generate(module, opts)
	if err != nil {
		return err
	}
	if outputPath == "" || outputPath == "-" {
		_, err = io.WriteString(os.Stdout, res.Source)
		return err
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	return writeAndClose(f, res.Source)
}

// writeAndClose writes source to wc and closes it, returning the write
// error if any and otherwise the close error.
func writeAndClose(wc io.WriteCloser, source string) error {
	_, err := io.WriteString(wc, source)
	if closeErr := wc.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	return err
}

type generator struct {
	opts     Options
	reporter *diag.Reporter
	dims     Dimensioner
	names    *registry
	next     counters
	out      strings.Builder
	indent   int
	kernels  []Kernel
}

func newGenerator(opts Options) *generator {
	reporter := opts.Reporter
	if reporter == nil {
		reporter = diag.Discard()
	}
	dims := opts.Dimensions
	if dims == nil {
		dims = staticDims{}
	}
	return &generator{
		opts:     opts,
		reporter: reporter,
		dims:     dims,
		names:    newRegistry(reporter),
	}
}

func (g *generator) line(format string, args ...any) {
	g.out.WriteString(strings.Repeat("  ", g.indent))
	if len(args) == 0 {
		g.out.WriteString(format)
	} else {
		fmt.Fprintf(&g.out, format, args...)
	}
	g.out.WriteByte('\n')
}

func (g *generator) emitFunc(fn *ir.Func) error {
	for _, n := range fn.Body {
		switch n := n.(type) {
		case *ir.Parallel:
			if err := g.emitKernel(n); err != nil {
				return err
			}
		case *ir.Yield:
		default:
			return fmt.Errorf("%w: %T outside a kernel boundary", ErrStructure, n)
		}
	}
	return nil
}

// blockBoundary returns the single parallel boundary directly inside k and
// rejects any other placement of nested boundaries.
func blockBoundary(k *ir.Parallel) (*ir.Parallel, error) {
	var inner *ir.Parallel
	for _, n := range k.Body {
		if p, ok := n.(*ir.Parallel); ok {
			if inner != nil {
				return nil, fmt.Errorf("%w: grid boundary holds more than one block boundary", ErrStructure)
			}
			inner = p
		}
	}
	if inner == nil {
		return nil, fmt.Errorf("%w: grid boundary holds no block boundary", ErrStructure)
	}
	total := 0
	ir.WalkNode(k, func(n ir.Node) bool {
		if _, ok := n.(*ir.Parallel); ok {
			total++
		}
		return true
	})
	if total != 2 {
		return nil, fmt.Errorf("%w: %d parallel boundaries in one kernel, want a grid and a block boundary", ErrStructure, total)
	}
	return inner, nil
}

func (g *generator) emitKernel(k *ir.Parallel) error {
	inner, err := blockBoundary(k)
	if err != nil {
		return err
	}
	params, err := g.scanKernel(k)
	if err != nil {
		return err
	}

	grid, _ := g.dims.Dimensions(k)
	block, _ := g.dims.Dimensions(inner)
	g.line("// grid dims:(%s), block dims:(%s)", dimList(grid), dimList(block))

	kernel := Kernel{
		Name:  "kernel" + strconv.Itoa(g.next.kernel),
		Grid:  grid,
		Block: block,
	}
	g.next.kernel++
	decls := make([]string, 0, len(params))
	for _, p := range params {
		decl, err := g.declare(p)
		if err != nil {
			return err
		}
		decls = append(decls, decl)
		kernel.Params = append(kernel.Params, Param{Name: g.names.nameOf(p), Decl: decl, Space: p.Mem.Space})
	}
	g.line("__global__ void %s(%s) {", kernel.Name, strings.Join(decls, ", "))

	g.indent++
	for _, n := range k.Body {
		if n == ir.Node(inner) {
			if err := g.emitBody(inner.Body); err != nil {
				return err
			}
			continue
		}
		if err := g.emitNode(n); err != nil {
			return err
		}
	}
	g.indent--
	g.line("}")

	g.kernels = append(g.kernels, kernel)
	return nil
}

func dimList(dims []int64) string {
	return strings.Join(lo.Map(dims, func(d int64, _ int) string {
		return strconv.FormatInt(d, 10) + ", "
	}), "")
}
