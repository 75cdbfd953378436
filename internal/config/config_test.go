package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"silica/internal/diag"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDefaultSchedule(t *testing.T) {
	p := Default()
	var names []string
	for _, s := range p.Stages {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{
		"well-formed",
		"compile-ref",
		"promote",
		"static-compile",
		"tdcc",
		"simplify-guards",
		"dead-code",
	}, names)

	mgr, err := p.Build(diag.NewReporter(io.Discard, "text"), testLogger())
	require.NoError(t, err)
	assert.Equal(t, names, mgr.Names())
}

func TestWithEarlyReset(t *testing.T) {
	p := Default().WithEarlyReset()
	for _, s := range p.Stages {
		if s.Name == "static-compile" {
			require.Contains(t, s.Options, "early_reset")
			assert.Equal(t, cty.True, s.Options["early_reset"])
		} else {
			assert.Empty(t, s.Options, "stage %s should carry no options", s.Name)
		}
	}
	_, err := p.Build(diag.NewReporter(io.Discard, "text"), testLogger())
	require.NoError(t, err)
}

func TestLoadPipeline(t *testing.T) {
	p, err := Load(filepath.Join("testdata", "pipeline.hcl"))
	require.NoError(t, err)
	require.Len(t, p.Stages, 3)
	assert.Equal(t, "well-formed", p.Stages[0].Name)
	assert.Equal(t, "static-compile", p.Stages[1].Name)
	assert.Equal(t, "dead-code", p.Stages[2].Name)
	assert.Equal(t, cty.True, p.Stages[1].Options["early_reset"])
	assert.Empty(t, p.Stages[0].Options)

	_, err = p.Build(diag.NewReporter(io.Discard, "text"), testLogger())
	require.NoError(t, err)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "does-not-exist.hcl"))
	require.Error(t, err)

	write := func(name, content string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}

	_, err = Load(write("no-block.hcl", `other {}`))
	require.Error(t, err)

	_, err = Load(write("empty.hcl", `pipeline {}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schedules no passes")
}

func TestBuildRejectsUnknownPass(t *testing.T) {
	p := Pipeline{Stages: []Stage{{Name: "frobnicate"}}}
	_, err := p.Build(diag.NewReporter(io.Discard, "text"), testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown pass "frobnicate"`)
}

func TestBuildRejectsUnknownOption(t *testing.T) {
	p := Pipeline{Stages: []Stage{{
		Name:    "well-formed",
		Options: map[string]cty.Value{"verbose": cty.True},
	}}}
	_, err := p.Build(diag.NewReporter(io.Discard, "text"), testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no option "verbose"`)
}

func TestBuildRejectsNonBoolOption(t *testing.T) {
	p := Pipeline{Stages: []Stage{{
		Name:    "static-compile",
		Options: map[string]cty.Value{"early_reset": cty.StringVal("maybe")},
	}}}
	_, err := p.Build(diag.NewReporter(io.Discard, "text"), testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "early_reset")
}
