package main

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"kernelgen/internal/backend"
	"kernelgen/internal/ir"
)

const copyKernelSource = `#include "cuda_runtime.h"
// grid dims:(1, ), block dims:(16, )
__global__ void kernel0(float* arg0) {
  float array0[1];
  auto R0 = arg0[threadIdx.x * 1 + 0];
  array0[0] = R0;
}
`

func TestRunRequiresKnownCommand(t *testing.T) {
	if err := run(nil); err == nil || err.Error() != "missing command" {
		t.Fatalf("expected missing command error, got %v", err)
	}
	if err := run([]string{"sim"}); err == nil || !strings.Contains(err.Error(), "unknown command: sim") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

func TestCompileWritesCUDA(t *testing.T) {
	out := filepath.Join(t.TempDir(), "copy.cu")
	if err := run([]string{"compile", "-o", out, testdataPath(t, "copy.yaml")}); err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if diff := cmp.Diff(copyKernelSource, string(got)); diff != "" {
		t.Fatalf("source mismatch (-want +got):\n%s", diff)
	}
}

func TestCompileWritesLauncher(t *testing.T) {
	tmp := t.TempDir()
	out := filepath.Join(tmp, "copy.cu")
	launcher := filepath.Join(tmp, "copy_launch.h")
	if err := run([]string{"compile", "-o", out, "-launcher", launcher, testdataPath(t, "copy.yaml")}); err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	got, err := os.ReadFile(launcher)
	if err != nil {
		t.Fatalf("read launcher: %v", err)
	}
	if !strings.Contains(string(got), "kernel0<<<dim3(1), dim3(16), 0, stream>>>(arg0);") {
		t.Fatalf("launcher missing launch statement:\n%s", got)
	}
}

func TestCompileEmitsIR(t *testing.T) {
	out := filepath.Join(t.TempDir(), "copy.ir")
	if err := run([]string{"compile", "-emit=ir", "-o", out, testdataPath(t, "copy.yaml")}); err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.HasPrefix(string(got), "module copy\n  func main\n") {
		t.Fatalf("unexpected IR dump:\n%s", got)
	}
}

func TestCompileOutputRequirements(t *testing.T) {
	input := testdataPath(t, "copy.yaml")
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"-emit=ptx"}, "ptx emission requires -o"},
		{[]string{"-emit=ptx", "-o", "kernel.cu"}, "would overwrite the CUDA source"},
		{[]string{"-launcher", "k.h"}, "launcher emission requires -o"},
		{[]string{"-emit=llvm"}, "unknown emit format: llvm"},
	}
	for _, tt := range tests {
		args := append([]string{"compile"}, tt.args...)
		err := run(append(args, input))
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Fatalf("%v: expected error containing %q, got %v", tt.args, tt.want, err)
		}
	}
}

func TestCompilePTXPassesToolSettings(t *testing.T) {
	tmp := t.TempDir()
	envFile := writeFile(t, tmp, "kgen.env", "KGEN_NVCC_ARCH=sm_90\n")
	t.Cleanup(func() { os.Unsetenv("KGEN_NVCC_ARCH") })
	t.Setenv("KGEN_NVCC", "/opt/cuda/bin/nvcc")

	var gotPath string
	var gotOpts backend.Options
	stubEmitCUDA(t, func(module *ir.Module, outputPath string, opts backend.Options) (backend.Result, error) {
		gotPath, gotOpts = outputPath, opts
		return backend.Result{MainPath: outputPath, AuxPaths: []string{opts.PTXPath}}, nil
	})

	ptx := filepath.Join(tmp, "copy.ptx")
	if err := run([]string{"compile", "-emit=ptx", "-o", ptx, "-env", envFile, testdataPath(t, "copy.yaml")}); err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if want := filepath.Join(tmp, "copy.cu"); gotPath != want {
		t.Fatalf("expected source path %s, got %s", want, gotPath)
	}
	if gotOpts.PTXPath != ptx || gotOpts.NVCCPath != "/opt/cuda/bin/nvcc" || gotOpts.Arch != "sm_90" {
		t.Fatalf("unexpected backend options: ptx=%q nvcc=%q arch=%q", gotOpts.PTXPath, gotOpts.NVCCPath, gotOpts.Arch)
	}
	if !gotOpts.CUDA.Strict || gotOpts.CUDA.Dimensions == nil || gotOpts.CUDA.Reporter == nil {
		t.Fatalf("cuda options not wired: %+v", gotOpts.CUDA)
	}
}

func TestCompileFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("KGEN_NVCC_ARCH", "sm_70")

	var gotOpts backend.Options
	stubEmitCUDA(t, func(module *ir.Module, outputPath string, opts backend.Options) (backend.Result, error) {
		gotOpts = opts
		return backend.Result{MainPath: outputPath}, nil
	})

	ptx := filepath.Join(t.TempDir(), "copy.ptx")
	args := []string{"compile", "-emit=ptx", "-o", ptx, "-arch", "sm_80", "-strict-names=false", testdataPath(t, "copy.yaml")}
	if err := run(args); err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if gotOpts.Arch != "sm_80" {
		t.Fatalf("expected flag to win, got arch %q", gotOpts.Arch)
	}
	if gotOpts.CUDA.Strict {
		t.Fatalf("expected lenient naming")
	}
}

func TestEnvironmentDefaultsWithoutEnvFile(t *testing.T) {
	input, err := filepath.Abs(testdataPath(t, "copy.yaml"))
	if err != nil {
		t.Fatalf("resolve input: %v", err)
	}
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("KGEN_NVCC_ARCH", "sm_90")
	t.Setenv("KGEN_NVCC", "/usr/local/cuda/bin/nvcc")
	t.Setenv("KGEN_DIAG_FORMAT", "json")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	common := addCommonFlags(fs)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := common.applyEnv(fs); err != nil {
		t.Fatalf("applyEnv without .env failed: %v", err)
	}
	if *common.diagFormat != "json" {
		t.Fatalf("expected diag format from KGEN_DIAG_FORMAT, got %q", *common.diagFormat)
	}

	var gotOpts backend.Options
	stubEmitCUDA(t, func(module *ir.Module, outputPath string, opts backend.Options) (backend.Result, error) {
		gotOpts = opts
		return backend.Result{MainPath: outputPath}, nil
	})
	ptx := filepath.Join(dir, "copy.ptx")
	if err := run([]string{"compile", "-emit=ptx", "-o", ptx, input}); err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if gotOpts.Arch != "sm_90" || gotOpts.NVCCPath != "/usr/local/cuda/bin/nvcc" {
		t.Fatalf("environment defaults not applied: arch=%q nvcc=%q", gotOpts.Arch, gotOpts.NVCCPath)
	}
}

func TestExplicitEnvFileMustExist(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.env")
	err := run([]string{"lint", "-env", missing, testdataPath(t, "copy.yaml")})
	if err == nil || !strings.Contains(err.Error(), "load env file") {
		t.Fatalf("expected env file error, got %v", err)
	}
}

func TestInvalidLogLevel(t *testing.T) {
	err := run([]string{"lint", "-log-level", "loud", testdataPath(t, "copy.yaml")})
	if err == nil || !strings.Contains(err.Error(), "diag:") {
		t.Fatalf("expected log level error, got %v", err)
	}
}

func TestLint(t *testing.T) {
	if err := run([]string{"lint", testdataPath(t, "copy.yaml")}); err != nil {
		t.Fatalf("lint of valid module failed: %v", err)
	}
	err := run([]string{"lint", "-diag-format", "json", testdataPath(t, "flat.yaml")})
	if err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Fatalf("expected validation failure, got %v", err)
	}
	if err := run([]string{"lint"}); err == nil || !strings.Contains(err.Error(), "requires at least one IR source file") {
		t.Fatalf("expected missing input error, got %v", err)
	}
}

func TestCompileStopsBeforeCodegenOnInvalidModule(t *testing.T) {
	called := false
	stubEmitCUDA(t, func(*ir.Module, string, backend.Options) (backend.Result, error) {
		called = true
		return backend.Result{}, nil
	})
	out := filepath.Join(t.TempDir(), "flat.cu")
	if err := run([]string{"compile", "-o", out, testdataPath(t, "flat.yaml")}); err == nil {
		t.Fatalf("expected compile to fail")
	}
	if called {
		t.Fatalf("backend ran on an invalid module")
	}
}

func TestSourcePathFor(t *testing.T) {
	tests := map[string]string{
		"out/kernel.ptx": "out/kernel.cu",
		"kernel":         "kernel.cu",
		"a.b/kernel.s":   "a.b/kernel.cu",
	}
	for in, want := range tests {
		if got := sourcePathFor(in); got != want {
			t.Fatalf("sourcePathFor(%q): expected %q, got %q", in, want, got)
		}
	}
}

func testdataPath(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join("testdata", name)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("testdata %s: %v", name, err)
	}
	return path
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write file %s: %v", path, err)
	}
	return path
}

func stubEmitCUDA(t *testing.T, fn func(*ir.Module, string, backend.Options) (backend.Result, error)) {
	t.Helper()
	prev := emitCUDA
	emitCUDA = fn
	t.Cleanup(func() { emitCUDA = prev })
}
