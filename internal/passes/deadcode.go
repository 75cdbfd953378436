package passes

import (
	"log/slog"

	"silica/internal/ir"
)

// DeadCode removes groups no control node references and generated cells no
// remaining assignment touches. Source-written cells are kept even when
// unused; only compiler-introduced state is eligible. Removing a group can
// orphan cells and vice versa, so the pass iterates until nothing changes.
type DeadCode struct {
	log *slog.Logger
}

// NewDeadCode builds the pass. A nil logger disables removal logging.
func NewDeadCode(log *slog.Logger) *DeadCode {
	return &DeadCode{log: log}
}

func (d *DeadCode) Name() string { return "dead-code" }

func (d *DeadCode) Run(ctx *ir.Context) error {
	for _, comp := range ctx.Components {
		for d.sweep(comp) {
		}
	}
	return nil
}

func (d *DeadCode) sweep(comp *ir.Component) bool {
	liveGroups := make(map[string]bool)
	liveStatic := make(map[string]bool)
	liveComb := make(map[string]bool)
	if comp.Control != nil {
		ir.WalkControl(comp.Control, func(n ir.Control) {
			switch v := n.(type) {
			case *ir.Enable:
				liveGroups[v.Group.Name] = true
			case *ir.StaticEnable:
				liveStatic[v.Group.Name] = true
			case *ir.If:
				if v.With != nil {
					liveComb[v.With.Name] = true
				}
			case *ir.While:
				if v.With != nil {
					liveComb[v.With.Name] = true
				}
			}
		})
	}
	// Group holes referenced from other live groups keep their group alive:
	// FSM groups drive child go holes directly.
	for changed := true; changed; {
		changed = false
		touch := func(assigns []*ir.Assignment) {
			for _, p := range append(ir.ReadSet(assigns), ir.WriteSet(assigns)...) {
				if p.IsHole() && !liveGroups[p.Group] {
					liveGroups[p.Group] = true
					changed = true
				}
			}
		}
		for _, g := range comp.Groups {
			if liveGroups[g.Name] {
				touch(g.Assignments)
			}
		}
		touch(comp.Continuous)
	}

	removed := false
	var groups []*ir.Group
	for _, g := range comp.Groups {
		if liveGroups[g.Name] {
			groups = append(groups, g)
			continue
		}
		removed = true
		d.logRemoval(comp, "group", g.Name)
	}
	comp.Groups = groups
	var statics []*ir.StaticGroup
	for _, g := range comp.StaticGroups {
		if liveStatic[g.Name] {
			statics = append(statics, g)
			continue
		}
		removed = true
		d.logRemoval(comp, "static group", g.Name)
	}
	comp.StaticGroups = statics
	var combs []*ir.CombGroup
	for _, g := range comp.CombGroups {
		if liveComb[g.Name] {
			combs = append(combs, g)
			continue
		}
		removed = true
		d.logRemoval(comp, "comb group", g.Name)
	}
	comp.CombGroups = combs

	return d.sweepCells(comp) || removed
}

func (d *DeadCode) sweepCells(comp *ir.Component) bool {
	live := make(map[*ir.Cell]bool)
	touchPort := func(p *ir.Port) {
		if p != nil && p.Cell != nil {
			live[p.Cell] = true
		}
	}
	touch := func(assigns []*ir.Assignment) {
		for _, a := range assigns {
			touchPort(a.Dst)
			if pa, ok := a.Src.(*ir.PortAtom); ok {
				touchPort(pa.Port)
			}
			for _, p := range ir.GuardPorts(a.Guard) {
				touchPort(p)
			}
		}
	}
	for _, g := range comp.Groups {
		touch(g.Assignments)
	}
	for _, g := range comp.StaticGroups {
		touch(g.Assignments)
	}
	for _, g := range comp.CombGroups {
		touch(g.Assignments)
	}
	touch(comp.Continuous)
	if comp.Control != nil {
		ir.WalkControl(comp.Control, func(n ir.Control) {
			switch v := n.(type) {
			case *ir.If:
				touchPort(v.Cond)
			case *ir.StaticIf:
				touchPort(v.Cond)
			case *ir.While:
				touchPort(v.Cond)
			case *ir.Invoke:
				live[v.Cell] = true
			case *ir.StaticInvoke:
				live[v.Cell] = true
			}
		})
	}

	removed := false
	var cells []*ir.Cell
	for _, cell := range comp.Cells {
		if !cell.Generated || live[cell] {
			cells = append(cells, cell)
			continue
		}
		removed = true
		d.logRemoval(comp, "cell", cell.Name)
	}
	comp.Cells = cells
	return removed
}

func (d *DeadCode) logRemoval(comp *ir.Component, kind, name string) {
	if d.log != nil {
		d.log.Debug("removed dead "+kind, "component", comp.Name, "name", name)
	}
}
