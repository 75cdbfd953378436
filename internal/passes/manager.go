// Package passes contains the compilation pipeline: well-formedness checks,
// latency inference and promotion, the static schedule compiler, and the
// dynamic FSM synthesizer. Passes mutate the IR in place and report problems
// through a shared diagnostics reporter.
package passes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"silica/internal/ir"
)

// Pass is one pipeline stage. Run mutates ctx in place; a returned error
// aborts the pipeline.
type Pass interface {
	Name() string
	Run(ctx *ir.Context) error
}

// Manager executes passes in registration order.
type Manager struct {
	passes []Pass
	log    *slog.Logger
}

// NewManager returns an empty pipeline. A nil logger disables per-pass
// progress logging.
func NewManager(log *slog.Logger) *Manager {
	return &Manager{log: log}
}

// Add appends one or more passes to the pipeline.
func (m *Manager) Add(passes ...Pass) {
	m.passes = append(m.passes, passes...)
}

// Names lists the registered passes in execution order.
func (m *Manager) Names() []string {
	names := make([]string, len(m.passes))
	for i, p := range m.passes {
		names[i] = p.Name()
	}
	return names
}

// Run executes every registered pass against ctx. The context cancels the
// pipeline between passes; individual passes are not interruptible.
func (m *Manager) Run(goCtx context.Context, ctx *ir.Context) error {
	for _, p := range m.passes {
		if err := goCtx.Err(); err != nil {
			return err
		}
		start := time.Now()
		if err := p.Run(ctx); err != nil {
			return fmt.Errorf("pass %s: %w", p.Name(), err)
		}
		if m.log != nil {
			m.log.Debug("pass completed", "pass", p.Name(), "elapsed", time.Since(start))
		}
	}
	return nil
}
