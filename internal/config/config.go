// Package config loads the pass pipeline description. The pipeline is plain
// HCL so projects can check their compilation schedule into version control
// next to the designs it builds.
package config

import (
	"fmt"
	"log/slog"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"silica/internal/diag"
	"silica/internal/passes"
)

type fileSchema struct {
	Pipeline *pipelineSchema `hcl:"pipeline,block"`
}

type pipelineSchema struct {
	Passes []stageSchema `hcl:"pass,block"`
}

type stageSchema struct {
	Name    string   `hcl:"name,label"`
	Options hcl.Body `hcl:",remain"`
}

// Stage is one scheduled pass with its options.
type Stage struct {
	Name    string
	Options map[string]cty.Value
}

// Pipeline is an ordered pass schedule.
type Pipeline struct {
	Stages []Stage
}

// Default returns the full compilation schedule: validate, erase reference
// cells, infer and promote latencies, collapse static regions, synthesize
// the dynamic FSMs, then clean up.
func Default() Pipeline {
	return Pipeline{Stages: []Stage{
		{Name: "well-formed"},
		{Name: "compile-ref"},
		{Name: "promote"},
		{Name: "static-compile"},
		{Name: "tdcc"},
		{Name: "simplify-guards"},
		{Name: "dead-code"},
	}}
}

// WithEarlyReset switches every static-compile stage to the early-reset
// counter encoding.
func (p Pipeline) WithEarlyReset() Pipeline {
	for i, stage := range p.Stages {
		if stage.Name == "static-compile" {
			p.Stages[i].Options = map[string]cty.Value{"early_reset": cty.True}
		}
	}
	return p
}

// Load parses an HCL pipeline file.
func Load(path string) (Pipeline, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return Pipeline{}, fmt.Errorf("parsing %s: %w", path, diags)
	}
	var root fileSchema
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return Pipeline{}, fmt.Errorf("decoding %s: %w", path, diags)
	}
	if root.Pipeline == nil {
		return Pipeline{}, fmt.Errorf("%s: no pipeline block", path)
	}
	var p Pipeline
	for _, stage := range root.Pipeline.Passes {
		opts, err := decodeOptions(stage.Options)
		if err != nil {
			return Pipeline{}, fmt.Errorf("%s: pass %q: %w", path, stage.Name, err)
		}
		p.Stages = append(p.Stages, Stage{Name: stage.Name, Options: opts})
	}
	if len(p.Stages) == 0 {
		return Pipeline{}, fmt.Errorf("%s: pipeline schedules no passes", path)
	}
	return p, nil
}

func decodeOptions(body hcl.Body) (map[string]cty.Value, error) {
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, diags
	}
	if len(attrs) == 0 {
		return nil, nil
	}
	opts := make(map[string]cty.Value, len(attrs))
	for name, attr := range attrs {
		v, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, diags
		}
		opts[name] = v
	}
	return opts, nil
}

// Build turns the pipeline description into an executable pass manager.
// Unknown pass names and unknown options are errors rather than silent
// no-ops; a misspelled stage must not quietly skip compilation work.
func (p Pipeline) Build(reporter *diag.Reporter, log *slog.Logger) (*passes.Manager, error) {
	mgr := passes.NewManager(log)
	for _, stage := range p.Stages {
		pass, err := buildStage(stage, reporter, log)
		if err != nil {
			return nil, err
		}
		mgr.Add(pass)
	}
	return mgr, nil
}

func buildStage(stage Stage, reporter *diag.Reporter, log *slog.Logger) (passes.Pass, error) {
	allowed := func(names ...string) error {
		for opt := range stage.Options {
			found := false
			for _, n := range names {
				if opt == n {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("pass %q has no option %q", stage.Name, opt)
			}
		}
		return nil
	}
	switch stage.Name {
	case "well-formed":
		if err := allowed(); err != nil {
			return nil, err
		}
		return passes.NewWellFormed(reporter), nil
	case "compile-ref":
		if err := allowed(); err != nil {
			return nil, err
		}
		return passes.NewCompileRef(reporter), nil
	case "promote":
		if err := allowed(); err != nil {
			return nil, err
		}
		return passes.NewPromote(reporter), nil
	case "static-compile":
		if err := allowed("early_reset"); err != nil {
			return nil, err
		}
		earlyReset, err := boolOption(stage, "early_reset", false)
		if err != nil {
			return nil, err
		}
		return passes.NewStaticCompile(reporter, earlyReset), nil
	case "tdcc":
		if err := allowed(); err != nil {
			return nil, err
		}
		return passes.NewTDCC(reporter), nil
	case "simplify-guards":
		if err := allowed(); err != nil {
			return nil, err
		}
		return passes.NewSimplifyGuards(reporter), nil
	case "dead-code":
		if err := allowed(); err != nil {
			return nil, err
		}
		return passes.NewDeadCode(log), nil
	default:
		return nil, fmt.Errorf("unknown pass %q", stage.Name)
	}
}

func boolOption(stage Stage, name string, fallback bool) (bool, error) {
	v, ok := stage.Options[name]
	if !ok {
		return fallback, nil
	}
	converted, err := convert.Convert(v, cty.Bool)
	if err != nil {
		return false, fmt.Errorf("pass %q: option %q: %w", stage.Name, name, err)
	}
	return converted.True(), nil
}
