package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"kernelgen/internal/backend"
	"kernelgen/internal/cuda"
	"kernelgen/internal/diag"
	"kernelgen/internal/frontend"
	"kernelgen/internal/ir"
	"kernelgen/internal/passes"
	"kernelgen/internal/validate"
)

var emitCUDA = backend.EmitCUDA

const defaultEnvFile = ".env"

// envDefaults maps flag names to the environment variables that supply
// their defaults.
var envDefaults = map[string]string{
	"nvcc":        "KGEN_NVCC",
	"arch":        "KGEN_NVCC_ARCH",
	"diag-format": "KGEN_DIAG_FORMAT",
	"log-level":   "KGEN_LOG_LEVEL",
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		printGlobalUsage()
		return fmt.Errorf("missing command")
	}

	switch args[0] {
	case "compile":
		return runCompile(args[1:])
	case "lint":
		return runLint(args[1:])
	default:
		printGlobalUsage()
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func runCompile(args []string) error {
	fs := flag.NewFlagSet("compile", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	emit := fs.String("emit", "cuda", "output format (ir|cuda|ptx)")
	output := fs.String("o", "", "output file path (stdout when omitted, except ptx)")
	launcher := fs.String("launcher", "", "path to write a host launcher header (optional, requires -o)")
	nvcc := fs.String("nvcc", "", "path to nvcc (optional, falls back to PATH lookup)")
	arch := fs.String("arch", "", "nvcc -arch value, e.g. sm_80 (optional)")
	strict := fs.Bool("strict-names", true, "fail when a value is bound twice or used unbound")
	common := addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("compile command requires at least one IR source file")
	}
	if err := common.applyEnv(fs); err != nil {
		return err
	}

	reporter, err := common.reporter()
	if err != nil {
		return err
	}
	module, err := prepareModule(fs.Args(), reporter)
	if err != nil {
		return err
	}
	if *emit == "ir" {
		return emitIRModule(module, *output)
	}

	dims, err := runDefaultPasses(module, reporter)
	if err != nil {
		return err
	}
	cudaOpts := cuda.Options{Reporter: reporter, Dimensions: dims, Strict: *strict}

	switch *emit {
	case "cuda":
		if *output == "" || *output == "-" {
			if *launcher != "" {
				return fmt.Errorf("launcher emission requires -o")
			}
			return cuda.Emit(module, *output, cudaOpts)
		}
		return writeArtifacts(module, *output, backend.Options{
			CUDA:         cudaOpts,
			LauncherPath: *launcher,
		})
	case "ptx":
		if *output == "" || *output == "-" {
			return fmt.Errorf("ptx emission requires -o")
		}
		source := sourcePathFor(*output)
		if source == *output {
			return fmt.Errorf("ptx output %s would overwrite the CUDA source", *output)
		}
		return writeArtifacts(module, source, backend.Options{
			CUDA:         cudaOpts,
			LauncherPath: *launcher,
			PTXPath:      *output,
			NVCCPath:     *nvcc,
			Arch:         *arch,
		})
	default:
		return fmt.Errorf("unknown emit format: %s", *emit)
	}
}

func printGlobalUsage() {
	fmt.Fprintf(os.Stderr, "kgen: affine kernel IR to CUDA\n\n")
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "  kgen <command> [options] file.yaml...\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  compile    Lower IR to CUDA source, PTX, or an IR dump\n")
	fmt.Fprintf(os.Stderr, "  lint       Load and validate IR without generating code\n")
}

func runLint(args []string) error {
	fs := flag.NewFlagSet("lint", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	common := addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("lint requires at least one IR source file")
	}
	if err := common.applyEnv(fs); err != nil {
		return err
	}

	reporter, err := common.reporter()
	if err != nil {
		return err
	}
	_, err = prepareModule(fs.Args(), reporter)
	return err
}

type commonFlags struct {
	diagFormat *string
	logLevel   *string
	envFile    *string
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	return &commonFlags{
		diagFormat: fs.String("diag-format", "text", "diagnostic output format (text|json)"),
		logLevel:   fs.String("log-level", "info", "minimum diagnostic level (debug|info|warn|error)"),
		envFile:    fs.String("env", defaultEnvFile, "dotenv file supplying KGEN_* defaults"),
	}
}

// applyEnv loads the dotenv file and fills every flag the command line
// left unset from its KGEN_* variable. A missing default file only means
// nothing extra is loaded; the process environment still applies.
func (c *commonFlags) applyEnv(fs *flag.FlagSet) error {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if err := godotenv.Load(*c.envFile); err != nil {
		if set["env"] || !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load env file %s: %w", *c.envFile, err)
		}
	}
	for name, key := range envDefaults {
		if set[name] || fs.Lookup(name) == nil {
			continue
		}
		if value, ok := os.LookupEnv(key); ok && value != "" {
			if err := fs.Set(name, value); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
		}
	}
	return nil
}

func (c *commonFlags) reporter() (*diag.Reporter, error) {
	reporter := diag.NewReporter(os.Stderr, *c.diagFormat)
	if err := reporter.SetLevel(*c.logLevel); err != nil {
		return nil, err
	}
	return reporter, nil
}

func prepareModule(sources []string, reporter *diag.Reporter) (*ir.Module, error) {
	module, err := frontend.LoadModule(frontend.LoadConfig{Sources: sources}, reporter)
	if err != nil {
		return nil, err
	}
	if err := validate.CheckModule(module, reporter); err != nil {
		return nil, err
	}
	return module, nil
}

func runDefaultPasses(module *ir.Module, reporter *diag.Reporter) (*passes.ParallelDims, error) {
	dims := passes.NewParallelDims(reporter)
	passMgr := passes.NewManager()
	passMgr.Add(dims)
	if err := passMgr.Run(module); err != nil {
		return nil, err
	}
	if reporter != nil && reporter.HasErrors() {
		return nil, fmt.Errorf("analysis passes reported errors")
	}
	return dims, nil
}

func writeArtifacts(module *ir.Module, outputPath string, opts backend.Options) error {
	res, err := emitCUDA(module, outputPath, opts)
	if err != nil {
		return err
	}
	if len(res.AuxPaths) > 0 {
		fmt.Fprintf(os.Stderr, "additional outputs written: %s\n", strings.Join(res.AuxPaths, ", "))
	}
	return nil
}

// sourcePathFor names the .cu file written next to a PTX output.
func sourcePathFor(ptxPath string) string {
	return strings.TrimSuffix(ptxPath, filepath.Ext(ptxPath)) + ".cu"
}

func emitIRModule(module *ir.Module, outputPath string) error {
	if module == nil {
		return fmt.Errorf("no IR module available to emit")
	}
	return withOutputWriter(outputPath, func(w io.Writer) error {
		ir.Dump(module, w)
		return nil
	})
}

func withOutputWriter(path string, fn func(io.Writer) error) error {
	w, cleanup, err := outputWriter(path)
	if err != nil {
		return err
	}
	if cleanup == nil {
		return fn(w)
	}
	err = fn(w)
	if closeErr := cleanup(); err == nil && closeErr != nil {
		err = closeErr
	}
	return err
}

func outputWriter(path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return os.Stdout, nil, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
