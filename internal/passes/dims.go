package passes

import (
	"fmt"

	"github.com/samber/lo"

	"kernelgen/internal/diag"
	"kernelgen/internal/ir"
)

// ParallelDims records the extents and total trip count of every parallel
// boundary. Code generation queries it for grid and block dimensions.
type ParallelDims struct {
	reporter *diag.Reporter
	dims     map[*ir.Parallel][]int64
}

// NewParallelDims constructs the pass. reporter is optional.
func NewParallelDims(reporter *diag.Reporter) *ParallelDims {
	return &ParallelDims{
		reporter: reporter,
		dims:     make(map[*ir.Parallel][]int64),
	}
}

// Name implements the Pass interface.
func (d *ParallelDims) Name() string {
	return "parallel-dims"
}

// Run records every boundary of module.
func (d *ParallelDims) Run(module *ir.Module) error {
	if module == nil {
		return fmt.Errorf("parallel dims requires a non-nil module")
	}
	bad := 0
	for _, fn := range module.Funcs {
		ir.Walk(fn.Body, func(n ir.Node) bool {
			p, ok := n.(*ir.Parallel)
			if !ok {
				return true
			}
			if !d.record(fn.Name, p) {
				bad++
			}
			return true
		})
	}
	if bad > 0 {
		return fmt.Errorf("%d parallel boundary(ies) with invalid extents", bad)
	}
	return nil
}

func (d *ParallelDims) record(fn string, p *ir.Parallel) bool {
	ok := true
	if len(p.Ranges) != len(p.IVs) {
		d.errorf("func %s: boundary has %d induction variables but %d ranges", fn, len(p.IVs), len(p.Ranges))
		ok = false
	}
	for i, r := range p.Ranges {
		if r <= 0 {
			d.errorf("func %s: boundary extent %d is %d, want a positive trip count", fn, i, r)
			ok = false
		}
	}
	dims, _ := p.Extents()
	d.dims[p] = dims
	return ok
}

func (d *ParallelDims) errorf(format string, args ...any) {
	if d.reporter != nil {
		d.reporter.Errorf(format, args...)
	}
}

// Dimensions returns the recorded extents of p and their product. A
// boundary the pass has not seen falls back to its static ranges.
func (d *ParallelDims) Dimensions(p *ir.Parallel) ([]int64, int64) {
	dims, ok := d.dims[p]
	if !ok {
		dims, _ = p.Extents()
	}
	total := lo.Reduce(dims, func(acc int64, dim int64, _ int) int64 {
		return acc * dim
	}, int64(1))
	return append([]int64(nil), dims...), total
}
