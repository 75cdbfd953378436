package passes

import (
	"silica/internal/diag"
	"silica/internal/ir"
)

// SimplifyGuards rewrites every guard in the design through the algebraic
// simplifier. Purely a cleanup: the rewrites are semantics-preserving, so the
// pass can run at any point in the pipeline.
type SimplifyGuards struct {
	reporter *diag.Reporter
}

// NewSimplifyGuards builds the pass.
func NewSimplifyGuards(reporter *diag.Reporter) *SimplifyGuards {
	return &SimplifyGuards{reporter: reporter}
}

func (s *SimplifyGuards) Name() string { return "simplify-guards" }

func (s *SimplifyGuards) Run(ctx *ir.Context) error {
	simplify := func(assigns []*ir.Assignment) {
		for _, a := range assigns {
			a.Guard = ir.SimplifyGuard(a.Guard)
		}
	}
	for _, comp := range ctx.Components {
		for _, g := range comp.Groups {
			simplify(g.Assignments)
		}
		for _, g := range comp.StaticGroups {
			simplify(g.Assignments)
		}
		for _, g := range comp.CombGroups {
			simplify(g.Assignments)
		}
		simplify(comp.Continuous)
	}
	return nil
}
