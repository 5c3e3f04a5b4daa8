// Package backend writes the artifacts of a compilation: the CUDA source,
// an optional host launcher header and optional PTX produced by nvcc.
package backend

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"text/template"

	"github.com/samber/lo"

	"kernelgen/internal/cuda"
	"kernelgen/internal/ir"
)

// Options configure artifact emission.
type Options struct {
	// CUDA configures source generation.
	CUDA cuda.Options
	// LauncherPath, when set, receives a host header with one launch
	// helper per kernel.
	LauncherPath string
	// PTXPath, when set, receives the PTX that nvcc compiles from the
	// emitted source.
	PTXPath string
	// NVCCPath overrides the nvcc lookup on PATH.
	NVCCPath string
	// Arch is passed to nvcc as -arch when non-empty.
	Arch string
}

// Result lists the files written by EmitCUDA.
type Result struct {
	MainPath string
	AuxPaths []string
}

// EmitCUDA lowers module to CUDA and writes it to outputPath together with
// any auxiliary artifacts requested in opts.
func EmitCUDA(module *ir.Module, outputPath string, opts Options) (Result, error) {
	if module == nil {
		return Result{}, fmt.Errorf("backend: module is nil")
	}
	if outputPath == "" || outputPath == "-" {
		return Result{}, fmt.Errorf("backend: cuda emission requires an output path")
	}

	var nvcc string
	if opts.PTXPath != "" {
		var err error
		nvcc, err = resolveBinary(opts.NVCCPath, "nvcc")
		if err != nil {
			return Result{}, fmt.Errorf("backend: resolve nvcc: %w", err)
		}
	}

	gen, err := cuda.Generate(module, opts.CUDA)
	if err != nil {
		return Result{}, err
	}
	if err := writeFile(outputPath, []byte(gen.Source)); err != nil {
		return Result{}, fmt.Errorf("backend: write cuda source: %w", err)
	}
	res := Result{MainPath: outputPath}

	if opts.LauncherPath != "" {
		header, err := renderLauncher(filepath.Base(outputPath), gen.Kernels)
		if err != nil {
			return res, err
		}
		if err := writeFile(opts.LauncherPath, header); err != nil {
			return res, fmt.Errorf("backend: write launcher: %w", err)
		}
		res.AuxPaths = append(res.AuxPaths, opts.LauncherPath)
	}

	if opts.PTXPath != "" {
		if err := runNVCC(nvcc, opts.Arch, outputPath, opts.PTXPath); err != nil {
			return res, err
		}
		res.AuxPaths = append(res.AuxPaths, opts.PTXPath)
	}
	return res, nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func runNVCC(binary, arch, inputPath, outputPath string) error {
	args := []string{"--ptx"}
	if arch != "" {
		args = append(args, "-arch", arch)
	}
	args = append(args, "-o", outputPath, inputPath)
	cmd := exec.Command(binary, args...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("backend: create ptx output dir: %w", err)
	}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("backend: nvcc failed: %w", err)
	}
	return nil
}

func resolveBinary(explicit, fallback string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", err
		}
		return explicit, nil
	}
	return exec.LookPath(fallback)
}

//go:embed templates/launcher.h.tmpl
var launcherSource string

var (
	launcherOnce sync.Once
	launcherTmpl *template.Template
	launcherErr  error
)

func launcherTemplate() (*template.Template, error) {
	launcherOnce.Do(func() {
		launcherTmpl, launcherErr = template.New("launcher").Funcs(template.FuncMap{
			"decls": paramDecls,
			"args":  paramNames,
			"dim3":  dim3,
		}).Parse(launcherSource)
	})
	return launcherTmpl, launcherErr
}

type launcherData struct {
	Source  string
	Guard   string
	Kernels []cuda.Kernel
}

func renderLauncher(source string, kernels []cuda.Kernel) ([]byte, error) {
	tmpl, err := launcherTemplate()
	if err != nil {
		return nil, fmt.Errorf("backend: parse launcher template: %w", err)
	}
	data := launcherData{Source: source, Guard: headerGuard(source), Kernels: kernels}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("backend: render launcher: %w", err)
	}
	return buf.Bytes(), nil
}

func paramDecls(params []cuda.Param) string {
	return strings.Join(lo.Map(params, func(p cuda.Param, _ int) string {
		return p.Decl
	}), ", ")
}

func paramNames(params []cuda.Param) string {
	return strings.Join(lo.Map(params, func(p cuda.Param, _ int) string {
		return p.Name
	}), ", ")
}

// dim3 lists extents x first. The innermost induction variable of a
// boundary maps to x, so the recorded order is reversed.
func dim3(extents []int64) string {
	if len(extents) == 0 {
		return "1"
	}
	parts := make([]string, 0, len(extents))
	for i := len(extents) - 1; i >= 0; i-- {
		parts = append(parts, strconv.FormatInt(extents[i], 10))
	}
	return strings.Join(parts, ", ")
}

func headerGuard(source string) string {
	guard := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, source)
	return "KGEN_" + guard + "_LAUNCH_H"
}
