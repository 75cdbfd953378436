package passes

import (
	"fmt"
	"go/token"

	"silica/internal/diag"
	"silica/internal/ir"
)

// WellFormed validates the structural rules the rest of the pipeline depends
// on: every dynamic group drives its done hole, positional guards appear only
// inside static groups and stay within the declared latency, same-destination
// drivers are provably exclusive, and invokes bind every reference cell of
// the callee.
type WellFormed struct {
	reporter *diag.Reporter
}

// NewWellFormed builds the checker pass.
func NewWellFormed(reporter *diag.Reporter) *WellFormed {
	return &WellFormed{reporter: reporter}
}

func (w *WellFormed) Name() string { return "well-formed" }

func (w *WellFormed) Run(ctx *ir.Context) error {
	before := 0
	if w.reporter != nil {
		before = w.reporter.ErrorCount()
	}
	for _, comp := range ctx.Components {
		c := &checker{comp: comp, ctx: ctx, reporter: w.reporter}
		c.check()
	}
	if w.reporter != nil && w.reporter.ErrorCount() > before {
		return fmt.Errorf("%d well-formedness error(s)", w.reporter.ErrorCount()-before)
	}
	return nil
}

type checker struct {
	comp     *ir.Component
	ctx      *ir.Context
	reporter *diag.Reporter
}

func (c *checker) error(pos token.Pos, format string, args ...any) {
	if c.reporter != nil {
		c.reporter.Errorf(pos, "%s: %s", c.comp.Name, fmt.Sprintf(format, args...))
	}
}

func (c *checker) warning(pos token.Pos, format string, args ...any) {
	if c.reporter != nil {
		c.reporter.Warningf(pos, "%s: %s", c.comp.Name, fmt.Sprintf(format, args...))
	}
}

func (c *checker) check() {
	for _, g := range c.comp.Groups {
		c.checkDynamicGroup(g)
	}
	for _, g := range c.comp.StaticGroups {
		c.checkStaticGroup(g)
	}
	for _, g := range c.comp.CombGroups {
		for _, a := range g.Assignments {
			c.forbidPositional(a, "comb group "+g.Name)
		}
		c.checkExclusive(g.Assignments, "comb group "+g.Name)
	}
	for _, a := range c.comp.Continuous {
		c.forbidPositional(a, "continuous assignments")
	}
	c.checkExclusive(c.comp.Continuous, "continuous assignments")
	if c.comp.Control != nil {
		c.checkControl(c.comp.Control)
	}
}

func (c *checker) checkDynamicGroup(g *ir.Group) {
	if len(g.DoneAssignments()) == 0 {
		c.error(g.Source, "group %s never drives its done hole, so an enable of it would hang", g.Name)
	}
	for _, a := range g.Assignments {
		c.forbidPositional(a, "group "+g.Name)
	}
	c.checkExclusive(g.Assignments, "group "+g.Name)
}

func (c *checker) checkStaticGroup(g *ir.StaticGroup) {
	if g.Latency < 1 {
		c.error(g.Source, "static group %s has latency %d; the minimum is 1", g.Name, g.Latency)
	}
	for _, a := range g.Assignments {
		if start, end, ok := ir.CycleInterval(a.Guard); ok {
			if start < 0 || end > g.Latency {
				c.error(a.Source, "static group %s: %s uses cycles [%d:%d) outside latency %d",
					g.Name, ir.AssignmentString(a), start, end, g.Latency)
			}
		}
		if a.Dst.IsHole() {
			c.error(a.Source, "static group %s drives hole %s; static groups have no handshake",
				g.Name, a.Dst.FullName())
		}
	}
	c.checkExclusive(g.Assignments, "static group "+g.Name)
}

func (c *checker) forbidPositional(a *ir.Assignment, where string) {
	if _, _, ok := ir.CycleInterval(a.Guard); ok {
		c.error(a.Source, "%s: positional guard in %s; cycle guards are only legal in static groups",
			ir.AssignmentString(a), where)
	}
}

// checkExclusive requires any two assignments to the same destination to
// carry provably exclusive guards. The proof is conservative; code that is
// exclusive for reasons the analysis cannot see must be rewritten so it can.
func (c *checker) checkExclusive(assigns []*ir.Assignment, where string) {
	byDst := make(map[*ir.Port][]*ir.Assignment)
	for _, a := range assigns {
		byDst[a.Dst] = append(byDst[a.Dst], a)
	}
	for dst, group := range byDst {
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				if !ir.ExclusiveGuards(group[i].Guard, group[j].Guard) {
					c.error(group[j].Source,
						"%s: %s has two drivers whose guards are not provably exclusive: %q and %q",
						where, dst.FullName(),
						ir.GuardString(group[i].Guard), ir.GuardString(group[j].Guard))
				}
			}
		}
	}
}

func (c *checker) checkControl(n ir.Control) {
	ir.WalkControl(n, func(node ir.Control) {
		switch v := node.(type) {
		case *ir.Invoke:
			c.checkInvokeRefs(v.Cell, v.Refs, v.Source)
		case *ir.StaticInvoke:
			c.checkInvokeRefs(v.Cell, v.Refs, v.Source)
		case *ir.While:
			if v.With == nil && !c.stableCond(v.Cond) {
				c.warning(v.Source,
					"while condition %s has no comb group and is not a registered value; it may be unstable between iterations",
					v.Cond.FullName())
			}
		case *ir.Par:
			c.checkParSiblings(v)
		case *ir.Repeat:
			if v.Count < 0 {
				c.error(v.Source, "repeat count %d is negative", v.Count)
			}
		}
	})
}

// stableCond approximates "holds its value across cycles": outputs of
// registers and of sub-component instances qualify.
func (c *checker) stableCond(p *ir.Port) bool {
	if p == nil || p.Cell == nil {
		return false
	}
	return p.Cell.Prototype == "std_reg" || p.Cell.IsComponentInstance()
}

func (c *checker) checkInvokeRefs(cell *ir.Cell, refs []ir.RefBinding, pos token.Pos) {
	if cell == nil || !cell.IsComponentInstance() {
		if len(refs) > 0 {
			c.error(pos, "invoke of primitive cell %s cannot bind reference cells", cell.Name)
		}
		return
	}
	callee := c.ctx.Component(cell.CompRef)
	if callee == nil {
		c.error(pos, "invoke of %s references an unknown component", cell.Name)
		return
	}
	bound := make(map[string]bool, len(refs))
	for _, r := range refs {
		target := callee.Cell(r.Name)
		if target == nil || !target.Reference {
			c.error(pos, "invoke of %s binds %q, which is not a reference cell of %s",
				cell.Name, r.Name, callee.Name)
			continue
		}
		if bound[r.Name] {
			c.error(pos, "invoke of %s binds reference cell %q twice", cell.Name, r.Name)
		}
		bound[r.Name] = true
	}
	for _, target := range callee.Cells {
		if target.Reference && !bound[target.Name] {
			c.error(pos, "invoke of %s leaves reference cell %q of %s unbound",
				cell.Name, target.Name, callee.Name)
		}
	}
}

// checkParSiblings checks ports written by more than one arm of a par. Arms
// run in the same cycles, so cross-arm drivers of a shared port must carry
// provably exclusive guards, the same rule checkExclusive applies within a
// group.
func (c *checker) checkParSiblings(par *ir.Par) {
	type armWrite struct {
		arm    int
		assign *ir.Assignment
	}
	writers := make(map[*ir.Port][]armWrite)
	for i, child := range par.Children {
		for _, a := range c.armWrites(child) {
			writers[a.Dst] = append(writers[a.Dst], armWrite{arm: i, assign: a})
		}
	}
	for p, ws := range writers {
	pairs:
		for i := 0; i < len(ws); i++ {
			for j := i + 1; j < len(ws); j++ {
				if ws[i].arm == ws[j].arm {
					continue
				}
				if !ir.ExclusiveGuards(ws[i].assign.Guard, ws[j].assign.Guard) {
					c.error(par.Source,
						"par arms %d and %d both write %s under guards that are not provably exclusive: %q and %q",
						ws[i].arm, ws[j].arm, p.FullName(),
						ir.GuardString(ws[i].assign.Guard), ir.GuardString(ws[j].assign.Guard))
					break pairs
				}
			}
		}
	}
}

func (c *checker) armWrites(n ir.Control) []*ir.Assignment {
	var out []*ir.Assignment
	add := func(assigns []*ir.Assignment) {
		for _, a := range assigns {
			if a.Dst == nil || a.Dst.IsHole() {
				continue
			}
			out = append(out, a)
		}
	}
	ir.WalkControl(n, func(node ir.Control) {
		switch v := node.(type) {
		case *ir.Enable:
			add(v.Group.Assignments)
		case *ir.StaticEnable:
			add(v.Group.Assignments)
		case *ir.If:
			if v.With != nil {
				add(v.With.Assignments)
			}
		case *ir.While:
			if v.With != nil {
				add(v.With.Assignments)
			}
		}
	})
	return out
}
