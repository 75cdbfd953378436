package passes_test

import (
	"bytes"
	"context"
	"go/token"
	"io"
	"log/slog"
	"testing"

	"silica/internal/config"
	"silica/internal/diag"
	"silica/internal/eval"
	"silica/internal/frontend"
	"silica/internal/ir"
)

// parseDesign parses src, failing the test on any error. The returned buffer
// collects diagnostics so failures can show what the passes reported.
func parseDesign(t *testing.T, src string) (*ir.Context, *diag.Reporter, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	reporter := diag.NewReporter(&buf, "text")
	fset := token.NewFileSet()
	reporter.SetFileSet(fset)
	ctx, err := frontend.Parse(fset, "test.hw", []byte(src), reporter)
	if err != nil {
		t.Fatalf("parse: %v\n%s", err, buf.String())
	}
	return ctx, reporter, &buf
}

// compileDesign runs the default pipeline over src.
func compileDesign(t *testing.T, src string, earlyReset bool) *ir.Context {
	t.Helper()
	ctx, reporter, buf := parseDesign(t, src)
	pipeline := config.Default()
	if earlyReset {
		pipeline = pipeline.WithEarlyReset()
	}
	mgr, err := pipeline.Build(reporter, quietLogger())
	if err != nil {
		t.Fatalf("build pipeline: %v", err)
	}
	if err := mgr.Run(context.Background(), ctx); err != nil {
		t.Fatalf("pipeline: %v\n%s", err, buf.String())
	}
	return ctx
}

func simulate(t *testing.T, ctx *ir.Context) *eval.Simulator {
	t.Helper()
	sim, err := eval.New(ctx, ctx.Entry())
	if err != nil {
		t.Fatalf("simulator: %v", err)
	}
	return sim
}

// runToDone compiles, simulates one activation, and returns the simulator and
// the number of active cycles.
func runToDone(t *testing.T, src string, earlyReset bool) (*eval.Simulator, int) {
	t.Helper()
	ctx := compileDesign(t, src, earlyReset)
	sim := simulate(t, ctx)
	cycles, err := sim.RunActivation(64)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return sim, cycles
}

func mustRegister(t *testing.T, sim *eval.Simulator, name string) uint64 {
	t.Helper()
	v, ok := sim.Register(name)
	if !ok {
		t.Fatalf("no register %q", name)
	}
	return v
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
