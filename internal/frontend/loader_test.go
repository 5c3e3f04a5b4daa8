package frontend

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"kernelgen/internal/diag"
	"kernelgen/internal/ir"
)

func TestLoadModuleCopyKernel(t *testing.T) {
	module, err := LoadModule(LoadConfig{Sources: []string{filepath.Join("testdata", "copy.yaml")}}, diag.Discard())
	require.NoError(t, err)
	require.Equal(t, "copy", module.Name)
	require.Len(t, module.Funcs, 1)

	fn := module.Funcs[0]
	require.Equal(t, "main", fn.Name)
	require.Len(t, fn.Body, 2)
	outer, ok := fn.Body[0].(*ir.Parallel)
	require.True(t, ok, "expected a parallel boundary, got %T", fn.Body[0])
	require.Equal(t, []int64{1}, outer.Ranges)
	require.IsType(t, &ir.Yield{}, fn.Body[1])

	inner, ok := outer.Body[0].(*ir.Parallel)
	require.True(t, ok)
	require.Len(t, inner.Body, 4)

	alloc := inner.Body[0].(*ir.Alloc)
	require.Equal(t, ir.Register, alloc.Result.Mem.Space)
	require.Equal(t, []int64{1}, alloc.Result.Mem.Shape)

	load := inner.Body[1].(*ir.Load)
	require.Equal(t, "%A", load.Memref.String())
	require.Equal(t, ir.Global, load.Memref.Mem.Space)
	require.Equal(t, ir.F32, load.Result.Type)
	require.Same(t, inner.IVs[0], load.Operands[0])

	store := inner.Body[2].(*ir.Store)
	require.Same(t, load.Result, store.Value)
	require.Same(t, alloc.Result, store.Memref)
	require.Equal(t, []ir.AffineExpr{ir.C(0)}, store.Map)
}

func TestLoadModuleAllNodeKinds(t *testing.T) {
	module, err := LoadModule(LoadConfig{Sources: []string{filepath.Join("testdata", "scale.yaml")}}, diag.Discard())
	require.NoError(t, err)

	var buf bytes.Buffer
	ir.Dump(module, &buf)
	want := `module scale
  func scale
    parallel (%row) = (0) to (8)
      parallel (%lane) = (0) to (16)
        %two = constant 2 : f32
        %v = vector_load %X[d0, (d1 * 4)] (%row, %lane) : 4xf32
        for %k = 0 to 4 step 1 {unroll}
          %col = apply ((d0 * 4) + d1) (%lane, %k)
          %x = load %X[%row, %col]
          %y = mul %x, %two
          if (d0 + -1) >= 0 (%k)
            %e = exp %y
          store %y, %Y[d0, d1] (%row, %col)
        vector_store %v, %Y[d0, (d1 * 4)] (%row, %lane) : 4xf32
`
	require.Equal(t, want, buf.String())
}

func TestLoadModuleMergesSources(t *testing.T) {
	cfg := LoadConfig{Sources: []string{
		filepath.Join("testdata", "copy.yaml"),
		filepath.Join("testdata", "scale.yaml"),
	}}
	module, err := LoadModule(cfg, diag.Discard())
	require.NoError(t, err)
	require.Equal(t, "copy", module.Name)
	require.Len(t, module.Funcs, 2)
	require.Equal(t, "scale", module.Funcs[1].Name)
}

func TestLoadModuleReportsEachFailure(t *testing.T) {
	var buf bytes.Buffer
	reporter := diag.NewReporter(&buf, "text")
	cfg := LoadConfig{Sources: []string{
		filepath.Join("testdata", "missing.yaml"),
		filepath.Join("testdata", "copy.yaml"),
		filepath.Join("testdata", "also-missing.yaml"),
	}}
	_, err := LoadModule(cfg, reporter)
	require.Error(t, err)
	require.Equal(t, 2, reporter.ErrorCount())
	require.Contains(t, buf.String(), "missing.yaml")
}

func TestLoadModuleRequiresSources(t *testing.T) {
	_, err := LoadModule(LoadConfig{}, diag.Discard())
	require.Error(t, err)
}

func TestParseModuleErrors(t *testing.T) {
	const header = `module: m
values:
  - {id: A, type: f32, shape: [16]}
  - {id: s, type: f32}
funcs:
  - name: main
    body:
`
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "redefinition",
			body: `      - constant: {id: A, type: index, value: 1}`,
			want: `value "A" redefined`,
		},
		{
			name: "use before definition",
			body: `      - arith: {id: y, op: add, lhs: x, rhs: x}`,
			want: `value "x" used before definition`,
		},
		{
			name: "unknown kind",
			body: `      - launch: {}`,
			want: `unknown node kind "launch"`,
		},
		{
			name: "bad op",
			body: `      - arith: {id: y, op: fma, lhs: s, rhs: s}`,
			want: "oneof",
		},
		{
			name: "zero step",
			body: `      - for: {iv: i, lower: 0, upper: 4, step: 0}`,
			want: "Step",
		},
		{
			name: "too many induction variables",
			body: `      - parallel: {ivs: [a, b, c, d], ranges: [1, 1, 1, 1]}`,
			want: "IVs",
		},
		{
			name: "range count",
			body: `      - parallel: {ivs: [a, b], ranges: [4]}`,
			want: "2 induction variables for 1 ranges",
		},
		{
			name: "scalar memref",
			body: `      - load: {id: x, memref: s, map: ["0"]}`,
			want: `value "s" is not a memref`,
		},
		{
			name: "bad affine",
			body: `      - load: {id: x, memref: A, map: ["d0 +"]}`,
			want: "ends early",
		},
		{
			name: "fractional integer constant",
			body: `      - constant: {id: c, type: i32, value: 1.5}`,
			want: "is not an integer",
		},
		{
			name: "multi-key entry",
			body: `      - {barrier: {}, yield: {}}`,
			want: "single-key mapping",
		},
		{
			name: "missing fields",
			body: `      - store:`,
			want: "required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseModule("in.yaml", []byte(header+tt.body+"\n"))
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
			require.True(t, strings.HasPrefix(err.Error(), "in.yaml"), err.Error())
		})
	}
}

func TestParseModuleRejectsUnknownFields(t *testing.T) {
	_, err := ParseModule("in.yaml", []byte("module: m\nfuncs: [{name: main}]\nextra: 1\n"))
	require.Error(t, err)
}

func TestParseModuleEmptyDocument(t *testing.T) {
	_, err := ParseModule("in.yaml", nil)
	require.ErrorContains(t, err, "empty document")
}

func TestParseModuleErrorPositions(t *testing.T) {
	src := "module: m\nfuncs:\n  - name: main\n    body:\n      - barrier:\n      - load: {id: x, memref: Q, map: [d0]}\n"
	_, err := ParseModule("pos.yaml", []byte(src))
	require.ErrorContains(t, err, "pos.yaml:6:")
}
