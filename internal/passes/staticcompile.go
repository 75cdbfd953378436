package passes

import (
	"fmt"

	"silica/internal/diag"
	"silica/internal/ir"
)

// StaticCompile lowers every maximal static region of a control tree into a
// single dynamic group driven by one shared cycle counter. Positional guards
// from the region's static groups are re-offset onto the counter and become
// ordinary comparisons, so downstream stages see only dynamic groups.
//
// Two counter encodings are available. The standalone encoding derives done
// combinationally from the final count. The early-reset encoding sets a
// one-bit signal register in the next-to-last cycle instead, so done comes
// off a flop rather than the counter comparator. Both encodings assert done
// in the region's last active cycle and wrap the counter back to zero on the
// same edge.
type StaticCompile struct {
	reporter   *diag.Reporter
	earlyReset bool
}

// NewStaticCompile builds the pass. earlyReset selects the wrapping counter
// encoding.
func NewStaticCompile(reporter *diag.Reporter, earlyReset bool) *StaticCompile {
	return &StaticCompile{reporter: reporter, earlyReset: earlyReset}
}

func (s *StaticCompile) Name() string { return "static-compile" }

func (s *StaticCompile) Run(ctx *ir.Context) error {
	for _, comp := range ctx.Components {
		if comp.Control == nil {
			continue
		}
		lowered, err := s.lower(comp, comp.Control)
		if err != nil {
			return fmt.Errorf("%s: %w", comp.Name, err)
		}
		comp.Control = lowered
	}
	return nil
}

// lower walks top-down so that each static node it meets is maximal: its
// parent is dynamic (or it is the root), and the whole subtree collapses
// into one counter.
func (s *StaticCompile) lower(comp *ir.Component, n ir.Control) (ir.Control, error) {
	if lat, ok := ir.StaticLatency(n); ok {
		if lat == 0 {
			return n, nil
		}
		g, err := s.compileIsland(comp, n, lat)
		if err != nil {
			return nil, err
		}
		return &ir.Enable{Group: g, Source: n.Pos()}, nil
	}
	switch v := n.(type) {
	case *ir.Seq:
		for i, c := range v.Children {
			lc, err := s.lower(comp, c)
			if err != nil {
				return nil, err
			}
			v.Children[i] = lc
		}
	case *ir.Par:
		for i, c := range v.Children {
			lc, err := s.lower(comp, c)
			if err != nil {
				return nil, err
			}
			v.Children[i] = lc
		}
	case *ir.If:
		t, err := s.lower(comp, v.Then)
		if err != nil {
			return nil, err
		}
		e, err := s.lower(comp, v.Else)
		if err != nil {
			return nil, err
		}
		v.Then, v.Else = t, e
	case *ir.While:
		b, err := s.lower(comp, v.Body)
		if err != nil {
			return nil, err
		}
		v.Body = b
	case *ir.Repeat:
		b, err := s.lower(comp, v.Body)
		if err != nil {
			return nil, err
		}
		v.Body = b
	}
	return n, nil
}

func (s *StaticCompile) compileIsland(comp *ir.Component, n ir.Control, latency int) (*ir.Group, error) {
	ic := &islandCompiler{comp: comp}
	if err := ic.schedule(n, 0); err != nil {
		return nil, err
	}
	wrapper := ir.NewGroup(comp.UniqueName("static_run"))
	wrapper.Source = n.Pos()
	comp.Groups = append(comp.Groups, wrapper)

	if latency == 1 {
		// No counter: every positional guard inside a one-cycle schedule is
		// %0, which always holds while the group runs.
		for _, a := range ic.out {
			a.Guard = stripPositional(a.Guard)
			wrapper.Assignments = append(wrapper.Assignments, a)
		}
		wrapper.Assignments = append(wrapper.Assignments,
			ir.NewAssignment(wrapper.Done, one(1), ir.True()))
		return wrapper, nil
	}

	width := ir.CounterWidth(latency)
	fsm, err := ir.AddGeneratedPrimitive(comp, "fsm", "std_reg", width)
	if err != nil {
		return nil, err
	}
	adder, err := ir.AddGeneratedPrimitive(comp, "incr", "std_add", width)
	if err != nil {
		return nil, err
	}
	fsmOut := &ir.PortAtom{Port: fsm.Port("out")}
	cmpCycle := func(at int) ir.Guard {
		return &ir.CmpGuard{Op: ir.CmpEq, Left: fsmOut, Right: constant(width, uint64(at))}
	}

	// Re-offset positional guards onto counter comparisons.
	for _, a := range ic.out {
		a.Guard = ir.TransformGuard(a.Guard, func(g ir.Guard) ir.Guard {
			switch v := g.(type) {
			case *ir.CycleGuard:
				return cmpCycle(v.Cycle)
			case *ir.RangeGuard:
				// The counter never reaches latency, so a range that runs to
				// the end needs no upper comparison. Keeping it would also
				// need a constant one bit wider than the counter when the
				// latency is a power of two.
				var hi ir.Guard
				if v.End < latency {
					hi = &ir.CmpGuard{Op: ir.CmpLt, Left: fsmOut, Right: constant(width, uint64(v.End))}
				}
				var lo ir.Guard
				if v.Start > 0 {
					lo = &ir.CmpGuard{Op: ir.CmpGe, Left: fsmOut, Right: constant(width, uint64(v.Start))}
				}
				switch {
				case lo == nil && hi == nil:
					return ir.True()
				case lo == nil:
					return hi
				case hi == nil:
					return lo
				default:
					return &ir.AndGuard{Left: lo, Right: hi}
				}
			}
			return g
		})
		wrapper.Assignments = append(wrapper.Assignments, a)
	}

	atLast := cmpCycle(latency - 1)
	emit := func(dst *ir.Port, src ir.Atom, g ir.Guard) {
		wrapper.Assignments = append(wrapper.Assignments, ir.NewAssignment(dst, src, g))
	}
	emit(adder.Port("left"), fsmOut, ir.True())
	emit(adder.Port("right"), constant(width, 1), ir.True())
	emit(fsm.Port("write_en"), one(1), ir.True())
	emit(fsm.Port("in"), &ir.PortAtom{Port: adder.Port("out")}, ir.Not(atLast))
	emit(fsm.Port("in"), constant(width, 0), atLast)

	if !s.earlyReset {
		emit(wrapper.Done, one(1), atLast)
		return wrapper, nil
	}

	// The counter wraps unconditionally; a signal register set in the
	// next-to-last cycle carries the done pulse into the last one.
	sig, err := ir.AddGeneratedPrimitive(comp, "signal", "std_reg", 1)
	if err != nil {
		return nil, err
	}
	atPenultimate := cmpCycle(latency - 2)
	emit(sig.Port("in"), one(1), atPenultimate)
	emit(sig.Port("in"), constant(1, 0), atLast)
	emit(sig.Port("write_en"), one(1), atPenultimate)
	emit(sig.Port("write_en"), one(1), atLast)
	emit(wrapper.Done, &ir.PortAtom{Port: sig.Port("out")}, ir.True())
	return wrapper, nil
}

// islandCompiler accumulates the flattened, absolutely positioned
// assignments of one static region.
type islandCompiler struct {
	comp *ir.Component
	out  []*ir.Assignment
}

func (c *islandCompiler) schedule(n ir.Control, offset int) error {
	switch v := n.(type) {
	case *ir.Empty:
		return nil
	case *ir.StaticEnable:
		for _, a := range v.Group.Assignments {
			c.out = append(c.out, positioned(a, offset, v.Group.Latency))
		}
		return nil
	case *ir.StaticSeq:
		at := offset
		for _, child := range v.Children {
			if err := c.schedule(child, at); err != nil {
				return err
			}
			lat, _ := ir.StaticLatency(child)
			at += lat
		}
		return nil
	case *ir.StaticPar:
		for _, child := range v.Children {
			if err := c.schedule(child, offset); err != nil {
				return err
			}
		}
		return nil
	case *ir.StaticRepeat:
		for i := 0; i < v.Count; i++ {
			if err := c.schedule(v.Body, offset+i*v.Latency); err != nil {
				return err
			}
		}
		return nil
	case *ir.StaticIf:
		return c.scheduleIf(v, offset)
	case *ir.StaticInvoke:
		return c.scheduleInvoke(v, offset)
	default:
		return fmt.Errorf("dynamic node %T inside a static region", n)
	}
}

// scheduleIf samples the condition in the region's entry cycle. The sampled
// bit flows through a select wire: in the entry cycle the wire carries the
// live condition, afterwards the registered copy, so branch guards read one
// port regardless of cycle.
func (c *islandCompiler) scheduleIf(v *ir.StaticIf, offset int) error {
	var sel ir.Guard
	if v.Latency == 1 {
		sel = ir.PortG(v.Cond)
	} else {
		reg, err := ir.AddGeneratedPrimitive(c.comp, "cond_reg", "std_reg", 1)
		if err != nil {
			return err
		}
		wire, err := ir.AddGeneratedPrimitive(c.comp, "cond_wire", "std_wire", 1)
		if err != nil {
			return err
		}
		entry := ir.Cycle(offset)
		rest, err := ir.CycleRange(offset+1, offset+v.Latency)
		if err != nil {
			return err
		}
		cond := &ir.PortAtom{Port: v.Cond}
		c.emit(reg.Port("in"), cond, entry)
		c.emit(reg.Port("write_en"), one(1), entry)
		c.emit(wire.Port("in"), cond, entry)
		c.emit(wire.Port("in"), &ir.PortAtom{Port: reg.Port("out")}, rest)
		sel = ir.PortG(wire.Port("out"))
	}
	mark := len(c.out)
	if err := c.schedule(v.Then, offset); err != nil {
		return err
	}
	for _, a := range c.out[mark:] {
		a.Guard = ir.And(a.Guard, sel)
	}
	mark = len(c.out)
	if err := c.schedule(v.Else, offset); err != nil {
		return err
	}
	for _, a := range c.out[mark:] {
		a.Guard = ir.And(a.Guard, ir.Not(sel))
	}
	return nil
}

func (c *islandCompiler) scheduleInvoke(v *ir.StaticInvoke, offset int) error {
	if len(v.Refs) > 0 {
		return fmt.Errorf("invoke of %s still carries reference bindings; compile-ref must run first", v.Cell.Name)
	}
	active, err := ir.CycleRange(offset, offset+v.Latency)
	if err != nil {
		return err
	}
	goPort := rolePort(v.Cell, ir.RoleGo)
	if goPort == nil {
		return fmt.Errorf("invoked cell %s has no go port", v.Cell.Name)
	}
	c.emit(goPort, one(1), active)
	for _, b := range v.Inputs {
		c.emit(b.Port, b.Src, active)
	}
	for _, b := range v.Outputs {
		c.emit(b.Port, b.Src, active)
	}
	return nil
}

func (c *islandCompiler) emit(dst *ir.Port, src ir.Atom, g ir.Guard) {
	c.out = append(c.out, ir.NewAssignment(dst, src, g))
}

// positioned clones a and anchors it at the absolute offset. Assignments
// without a positional guard are active for the group's whole interval.
func positioned(a *ir.Assignment, offset, latency int) *ir.Assignment {
	g := a.Guard
	if _, _, ok := ir.CycleInterval(g); !ok {
		span, err := ir.CycleRange(0, latency)
		if err != nil {
			span = ir.Cycle(0)
		}
		g = ir.And(span, g)
	}
	return &ir.Assignment{Dst: a.Dst, Src: a.Src, Guard: ir.ShiftCycles(g, offset), Source: a.Source}
}

// stripPositional replaces every positional guard with true. Only valid when
// the whole schedule is one cycle long.
func stripPositional(g ir.Guard) ir.Guard {
	return ir.SimplifyGuard(ir.TransformGuard(g, func(n ir.Guard) ir.Guard {
		switch n.(type) {
		case *ir.CycleGuard, *ir.RangeGuard:
			return ir.True()
		}
		return n
	}))
}

func rolePort(cell *ir.Cell, role ir.Role) *ir.Port {
	for _, p := range cell.Ports {
		if p.Role == role {
			return p
		}
	}
	return nil
}

func constant(width int, v uint64) *ir.ConstAtom {
	return &ir.ConstAtom{Bits: width, Value: v}
}

func one(width int) *ir.ConstAtom {
	return &ir.ConstAtom{Bits: width, Value: 1}
}
