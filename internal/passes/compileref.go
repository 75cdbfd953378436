package passes

import (
	"fmt"

	"silica/internal/diag"
	"silica/internal/ir"
)

// CompileRef erases reference cells. Each reference cell's ports are hoisted
// into the owning component's signature (inputs of the cell become outputs of
// the component and vice versa), internal uses are rewired to the new
// signature ports, and every invoke binding a cell to the reference turns
// into plain input/output port bindings on the call site.
type CompileRef struct {
	reporter *diag.Reporter
}

// NewCompileRef builds the pass.
func NewCompileRef(reporter *diag.Reporter) *CompileRef {
	return &CompileRef{reporter: reporter}
}

func (c *CompileRef) Name() string { return "compile-ref" }

func (c *CompileRef) Run(ctx *ir.Context) error {
	hoisted := make(map[*ir.Component]bool)
	for _, comp := range ctx.Components {
		if c.hoist(comp) {
			hoisted[comp] = true
		}
	}
	for _, comp := range ctx.Components {
		// Instance cells mirror the callee signature from before hoisting;
		// grow them to match.
		for _, cell := range comp.Cells {
			if !cell.IsComponentInstance() {
				continue
			}
			callee := ctx.Component(cell.CompRef)
			if callee == nil || !hoisted[callee] {
				continue
			}
			for _, sig := range callee.Ports {
				if cell.Port(sig.Name) != nil {
					continue
				}
				cell.Ports = append(cell.Ports, &ir.Port{
					Name: sig.Name, Width: sig.Width, Dir: sig.Dir, Role: sig.Role, Cell: cell,
				})
			}
		}
		if err := c.rewriteInvokes(comp); err != nil {
			return err
		}
	}
	return nil
}

// hoist lifts every reference cell of comp into its signature and reports
// whether the signature changed.
func (c *CompileRef) hoist(comp *ir.Component) bool {
	remap := make(map[*ir.Port]*ir.Port)
	var kept []*ir.Cell
	for _, cell := range comp.Cells {
		if !cell.Reference {
			kept = append(kept, cell)
			continue
		}
		for _, p := range cell.Ports {
			dir := ir.Output
			if p.Dir == ir.Output {
				dir = ir.Input
			}
			sig := &ir.Port{
				Name:   cell.Name + "_" + p.Name,
				Width:  p.Width,
				Dir:    dir,
				Source: cell.Source,
			}
			comp.Ports = append(comp.Ports, sig)
			remap[p] = sig
		}
	}
	if len(remap) == 0 {
		return false
	}
	comp.Cells = kept
	rewrite := func(assigns []*ir.Assignment) {
		for _, a := range assigns {
			if np, ok := remap[a.Dst]; ok {
				a.Dst = np
			}
			a.Src = remapAtom(a.Src, remap)
			a.Guard = remapGuard(a.Guard, remap)
		}
	}
	for _, g := range comp.Groups {
		rewrite(g.Assignments)
	}
	for _, g := range comp.StaticGroups {
		rewrite(g.Assignments)
	}
	for _, g := range comp.CombGroups {
		rewrite(g.Assignments)
	}
	rewrite(comp.Continuous)
	if comp.Control != nil {
		ir.WalkControl(comp.Control, func(n ir.Control) {
			switch v := n.(type) {
			case *ir.If:
				if np, ok := remap[v.Cond]; ok {
					v.Cond = np
				}
			case *ir.StaticIf:
				if np, ok := remap[v.Cond]; ok {
					v.Cond = np
				}
			case *ir.While:
				if np, ok := remap[v.Cond]; ok {
					v.Cond = np
				}
			case *ir.Invoke:
				remapBindings(v.Inputs, remap)
			case *ir.StaticInvoke:
				remapBindings(v.Inputs, remap)
			}
		})
	}
	return true
}

func (c *CompileRef) rewriteInvokes(comp *ir.Component) error {
	var err error
	expand := func(cell *ir.Cell, refs []ir.RefBinding, inputs, outputs *[]ir.Binding) {
		for _, r := range refs {
			for _, actual := range r.Cell.Ports {
				sig := cell.Port(r.Name + "_" + actual.Name)
				if sig == nil {
					err = fmt.Errorf("%s: invoke of %s: callee has no hoisted port for %s.%s",
						comp.Name, cell.Name, r.Name, actual.Name)
					return
				}
				if sig.Dir == ir.Input {
					// The callee reads this wire; feed it the actual port.
					*inputs = append(*inputs, ir.Binding{Port: sig, Src: &ir.PortAtom{Port: actual}})
				} else {
					// The callee drives it; route it back to the actual cell.
					*outputs = append(*outputs, ir.Binding{Port: actual, Src: &ir.PortAtom{Port: sig}})
				}
			}
		}
	}
	ir.WalkControl(comp.Control, func(n ir.Control) {
		if err != nil {
			return
		}
		switch v := n.(type) {
		case *ir.Invoke:
			if len(v.Refs) > 0 {
				expand(v.Cell, v.Refs, &v.Inputs, &v.Outputs)
				v.Refs = nil
			}
		case *ir.StaticInvoke:
			if len(v.Refs) > 0 {
				expand(v.Cell, v.Refs, &v.Inputs, &v.Outputs)
				v.Refs = nil
			}
		}
	})
	return err
}

func remapAtom(a ir.Atom, remap map[*ir.Port]*ir.Port) ir.Atom {
	if pa, ok := a.(*ir.PortAtom); ok {
		if np, ok := remap[pa.Port]; ok {
			return &ir.PortAtom{Port: np}
		}
	}
	return a
}

func remapBindings(bindings []ir.Binding, remap map[*ir.Port]*ir.Port) {
	for i := range bindings {
		bindings[i].Src = remapAtom(bindings[i].Src, remap)
	}
}

func remapGuard(g ir.Guard, remap map[*ir.Port]*ir.Port) ir.Guard {
	return ir.TransformGuard(g, func(n ir.Guard) ir.Guard {
		switch v := n.(type) {
		case *ir.PortGuard:
			if np, ok := remap[v.Port]; ok {
				return &ir.PortGuard{Port: np}
			}
		case *ir.CmpGuard:
			return &ir.CmpGuard{Op: v.Op, Left: remapAtom(v.Left, remap), Right: remapAtom(v.Right, remap)}
		}
		return n
	})
}
