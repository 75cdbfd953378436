package main

import (
	"context"
	"flag"
	"fmt"
	"go/token"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"silica/internal/config"
	"silica/internal/diag"
	"silica/internal/eval"
	"silica/internal/frontend"
	"silica/internal/ir"
)

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
	case "sim":
		return runSim(args[1:])
	case "lint":
		return runLint(args[1:])
	default:
		printGlobalUsage()
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func printGlobalUsage() {
	fmt.Fprintf(os.Stderr, "silica hardware compiler\n\n")
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "  silica <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  compile    Compile a design through the pass pipeline\n")
	fmt.Fprintf(os.Stderr, "  sim        Compile a design and run the cycle-level interpreter\n")
	fmt.Fprintf(os.Stderr, "  lint       Run well-formedness checks only\n")
}

func runCompile(args []string) error {
	fs := flag.NewFlagSet("compile", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	output := fs.String("o", "", "output file path (stdout when omitted)")
	pipelinePath := fs.String("passes", "", "HCL pipeline file (built-in schedule when omitted)")
	earlyReset := fs.Bool("early-reset", false, "use the early-reset counter encoding for static regions")
	diagFormat := fs.String("diag-format", "text", "diagnostic output format (text|json)")
	verbose := fs.Bool("v", false, "log pass progress")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("compile requires exactly one design file")
	}

	res, err := prepareDesign(fs.Arg(0), *diagFormat)
	if err != nil {
		return err
	}
	if err := runPipeline(res, *pipelinePath, *earlyReset, *verbose); err != nil {
		return err
	}
	return withOutputWriter(*output, func(w io.Writer) error {
		ir.Dump(res.ctx, w)
		return nil
	})
}

func runLint(args []string) error {
	fs := flag.NewFlagSet("lint", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	diagFormat := fs.String("diag-format", "text", "diagnostic output format (text|json)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("lint requires exactly one design file")
	}

	res, err := prepareDesign(fs.Arg(0), *diagFormat)
	if err != nil {
		return err
	}
	lintOnly := config.Pipeline{Stages: []config.Stage{{Name: "well-formed"}}}
	mgr, err := lintOnly.Build(res.reporter, newLogger(false))
	if err != nil {
		return err
	}
	return mgr.Run(context.Background(), res.ctx)
}

func runSim(args []string) error {
	fs := flag.NewFlagSet("sim", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	pipelinePath := fs.String("passes", "", "HCL pipeline file (built-in schedule when omitted)")
	earlyReset := fs.Bool("early-reset", false, "use the early-reset counter encoding for static regions")
	diagFormat := fs.String("diag-format", "text", "diagnostic output format (text|json)")
	maxCycles := fs.Int("max-cycles", 1024, "abort if the design does not finish within this many cycles")
	verbose := fs.Bool("v", false, "log pass progress")
	var sets inputFlags
	fs.Var(&sets, "set", "hold an input port at a value, as name=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("sim requires exactly one design file")
	}

	res, err := prepareDesign(fs.Arg(0), *diagFormat)
	if err != nil {
		return err
	}
	if err := runPipeline(res, *pipelinePath, *earlyReset, *verbose); err != nil {
		return err
	}
	entry := res.ctx.Entry()
	sim, err := eval.New(res.ctx, entry)
	if err != nil {
		return err
	}
	for _, set := range sets {
		if err := sim.SetInput(set.name, set.value); err != nil {
			return err
		}
	}
	cycles, err := sim.RunActivation(*maxCycles)
	if err != nil {
		return err
	}
	fmt.Printf("%s: done after %d cycles\n", entry.Name, cycles)
	for _, p := range entry.Ports {
		if p.Dir == ir.Output && p.Role == ir.NoRole {
			v, _ := sim.SignatureValue(p.Name)
			fmt.Printf("  %s = %d\n", p.Name, v)
		}
	}
	return nil
}

type designResult struct {
	reporter *diag.Reporter
	fset     *token.FileSet
	ctx      *ir.Context
}

func prepareDesign(path, diagFormat string) (*designResult, error) {
	reporter := diag.NewReporter(os.Stderr, diagFormat)
	fset := token.NewFileSet()
	reporter.SetFileSet(fset)
	ctx, err := frontend.ParseFile(fset, path, reporter)
	if err != nil {
		return nil, err
	}
	if reporter.HasErrors() {
		return nil, fmt.Errorf("errors reported while parsing %s", path)
	}
	return &designResult{reporter: reporter, fset: fset, ctx: ctx}, nil
}

func runPipeline(res *designResult, pipelinePath string, earlyReset, verbose bool) error {
	pipeline := config.Default()
	if pipelinePath != "" {
		loaded, err := config.Load(pipelinePath)
		if err != nil {
			return err
		}
		pipeline = loaded
	} else if earlyReset {
		pipeline = pipeline.WithEarlyReset()
	}
	mgr, err := pipeline.Build(res.reporter, newLogger(verbose))
	if err != nil {
		return err
	}
	if err := mgr.Run(context.Background(), res.ctx); err != nil {
		return err
	}
	if res.reporter.HasErrors() {
		return fmt.Errorf("compilation passes reported errors")
	}
	return nil
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

type inputSetting struct {
	name  string
	value uint64
}

type inputFlags []inputSetting

func (f *inputFlags) String() string {
	parts := make([]string, len(*f))
	for i, s := range *f {
		parts[i] = fmt.Sprintf("%s=%d", s.name, s.value)
	}
	return strings.Join(parts, ",")
}

func (f *inputFlags) Set(raw string) error {
	name, val, ok := strings.Cut(raw, "=")
	if !ok || name == "" {
		return fmt.Errorf("expected name=value, got %q", raw)
	}
	v, err := strconv.ParseUint(val, 0, 64)
	if err != nil {
		return fmt.Errorf("value of %s: %w", name, err)
	}
	*f = append(*f, inputSetting{name: name, value: v})
	return nil
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
