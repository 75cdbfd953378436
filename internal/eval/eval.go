// Package eval is a cycle-accurate interpreter for fully compiled designs.
// Each cycle the combinational network settles to a fixpoint, then registers
// latch on the clock edge. It exists to check compiled schedules against
// their declared timing, both in tests and behind the sim command.
package eval

import (
	"fmt"

	"silica/internal/ir"
)

// Simulator executes one component instance. Sub-component instances get
// their own nested simulators; port values cross the boundary by copying, so
// two instances of the same component never share state.
type Simulator struct {
	ctx  *ir.Context
	comp *ir.Component

	prev map[*ir.Port]uint64
	next map[*ir.Port]uint64

	regs    map[*ir.Cell]uint64
	regDone map[*ir.Cell]bool

	children map[*ir.Cell]*Simulator
	inputs   map[*ir.Port]uint64

	top   *ir.Group // root enable target, nil for an empty program
	cycle int
}

// New builds a simulator for comp. The design must be fully compiled: only
// dynamic groups remain and the control tree is a single enable.
func New(ctx *ir.Context, comp *ir.Component) (*Simulator, error) {
	if comp == nil {
		return nil, fmt.Errorf("nil component")
	}
	if len(comp.StaticGroups) > 0 || len(comp.CombGroups) > 0 {
		return nil, fmt.Errorf("%s still has static or comb groups; run the full pipeline first", comp.Name)
	}
	s := &Simulator{
		ctx:      ctx,
		comp:     comp,
		regs:     make(map[*ir.Cell]uint64),
		regDone:  make(map[*ir.Cell]bool),
		children: make(map[*ir.Cell]*Simulator),
		inputs:   make(map[*ir.Port]uint64),
		prev:     make(map[*ir.Port]uint64),
	}
	switch v := comp.Control.(type) {
	case *ir.Enable:
		s.top = v.Group
	case *ir.Empty, nil:
	default:
		return nil, fmt.Errorf("%s: control is %T; only a single enable is executable", comp.Name, comp.Control)
	}
	for _, cell := range comp.Cells {
		if !cell.IsComponentInstance() {
			continue
		}
		callee := ctx.Component(cell.CompRef)
		if callee == nil {
			return nil, fmt.Errorf("%s: cell %s instantiates an unknown component", comp.Name, cell.Name)
		}
		child, err := New(ctx, callee)
		if err != nil {
			return nil, err
		}
		s.children[cell] = child
	}
	return s, nil
}

// SetInput holds a signature input at the given value until changed.
func (s *Simulator) SetInput(name string, v uint64) error {
	p := s.comp.Port(name)
	if p == nil || p.Dir != ir.Input {
		return fmt.Errorf("%s has no input port %q", s.comp.Name, name)
	}
	s.inputs[p] = v & mask(p.Width)
	return nil
}

// Step settles the combinational network and clocks the registers once.
func (s *Simulator) Step() error {
	if err := s.settle(); err != nil {
		return err
	}
	s.edge()
	s.cycle++
	return nil
}

// Value reads a port as of the last settled cycle.
func (s *Simulator) Value(p *ir.Port) uint64 {
	return s.prev[p]
}

// SignatureValue reads a signature port by name as of the last settled cycle.
func (s *Simulator) SignatureValue(name string) (uint64, bool) {
	p := s.comp.Port(name)
	if p == nil {
		return 0, false
	}
	return s.prev[p], true
}

// Register reads the latched value of a named std_reg cell.
func (s *Simulator) Register(name string) (uint64, bool) {
	cell := s.comp.Cell(name)
	if cell == nil || cell.Prototype != "std_reg" {
		return 0, false
	}
	return s.regs[cell], true
}

// Done reports whether the component's done port was high in the last
// settled cycle.
func (s *Simulator) Done() bool {
	done := s.comp.DonePort()
	return done != nil && s.prev[done] != 0
}

// CycleCount returns the number of completed cycles.
func (s *Simulator) CycleCount() int { return s.cycle }

// Reset clears all register and cycle state.
func (s *Simulator) Reset() {
	s.regs = make(map[*ir.Cell]uint64)
	s.regDone = make(map[*ir.Cell]bool)
	s.prev = make(map[*ir.Port]uint64)
	s.cycle = 0
	for _, child := range s.children {
		child.Reset()
	}
}

// RunActivation holds go high and steps until done is observed, returning
// the number of active cycles including the done cycle. go is dropped
// afterwards and one recovery cycle is stepped so the design returns to rest.
func (s *Simulator) RunActivation(maxCycles int) (int, error) {
	goPort := s.comp.GoPort()
	if goPort == nil {
		return 0, fmt.Errorf("%s has no go port", s.comp.Name)
	}
	s.inputs[goPort] = 1
	active := 0
	for {
		if active >= maxCycles {
			return 0, fmt.Errorf("%s: no done pulse within %d cycles", s.comp.Name, maxCycles)
		}
		if err := s.Step(); err != nil {
			return 0, err
		}
		active++
		if s.Done() {
			break
		}
	}
	s.inputs[goPort] = 0
	if err := s.Step(); err != nil {
		return 0, err
	}
	return active, nil
}

// settle iterates the combinational network to a fixpoint. Every pass
// recomputes all values from the previous pass, so transiently true guards
// leave no residue. Driver conflicts only count on the converged pass.
func (s *Simulator) settle() error {
	limit := s.settleBound()
	var conflict error
	for pass := 0; pass < limit; pass++ {
		changed, err := s.pass()
		conflict = err
		if !changed {
			return conflict
		}
	}
	return fmt.Errorf("%s: combinational logic did not settle; a guard cycle is likely", s.comp.Name)
}

func (s *Simulator) settleBound() int {
	n := len(s.comp.Ports) + 16
	for _, cell := range s.comp.Cells {
		n += len(cell.Ports)
	}
	for _, g := range s.comp.Groups {
		n += len(g.Assignments)
	}
	for _, child := range s.children {
		n += child.settleBound()
	}
	return n
}

// pass computes one Jacobi iteration and reports whether any value moved.
func (s *Simulator) pass() (bool, error) {
	s.next = make(map[*ir.Port]uint64)
	// Seeds: held inputs and register outputs.
	for p, v := range s.inputs {
		s.next[p] = v
	}
	for _, cell := range s.comp.Cells {
		if cell.Prototype == "std_reg" {
			s.next[cell.Port("out")] = s.regs[cell]
			if s.regDone[cell] {
				s.next[cell.Port("done")] = 1
			}
		}
	}
	read := func(p *ir.Port) uint64 { return s.prev[p] }

	// Combinational primitives.
	for _, cell := range s.comp.Cells {
		if cell.IsComponentInstance() || cell.Prototype == "std_reg" {
			continue
		}
		s.evalPrimitive(cell, read)
	}

	// Root handshake bridging.
	if s.top != nil {
		if g := s.comp.GoPort(); g != nil {
			s.next[s.top.Go] = s.prev[g]
		}
		if d := s.comp.DonePort(); d != nil {
			s.next[d] = s.prev[s.top.Done]
		}
	}

	var conflict error
	writers := make(map[*ir.Port]*ir.Assignment)
	drive := func(a *ir.Assignment) {
		if !ir.EvalGuard(a.Guard, read, 0) {
			return
		}
		v := ir.EvalAtom(a.Src, read) & mask(a.Dst.Width)
		if other, ok := writers[a.Dst]; ok && other != a {
			conflict = fmt.Errorf("%s: %s driven by both %q and %q in the same cycle",
				s.comp.Name, a.Dst.FullName(), ir.AssignmentString(other), ir.AssignmentString(a))
			return
		}
		writers[a.Dst] = a
		s.next[a.Dst] = v
	}
	for _, a := range s.comp.Continuous {
		drive(a)
	}
	for _, g := range s.comp.Groups {
		if s.prev[g.Go] == 0 {
			continue
		}
		for _, a := range g.Assignments {
			drive(a)
		}
	}

	// Sub-components: feed instance inputs across, run one pass, read the
	// outputs back.
	changed := false
	for cell, child := range s.children {
		for _, p := range cell.Ports {
			if p.Dir == ir.Input {
				sig := child.comp.Port(p.Name)
				if sig != nil {
					child.inputs[sig] = s.prev[p]
				}
			}
		}
		ch, err := child.pass()
		if err != nil && conflict == nil {
			conflict = err
		}
		changed = changed || ch
		for _, p := range cell.Ports {
			if p.Dir == ir.Output {
				if sig := child.comp.Port(p.Name); sig != nil {
					s.next[p] = child.prev[sig]
				}
			}
		}
	}

	if !mapsEqual(s.prev, s.next) {
		changed = true
	}
	s.prev = s.next
	return changed, conflict
}

func (s *Simulator) evalPrimitive(cell *ir.Cell, read func(*ir.Port) uint64) {
	l := read(cell.Port("left"))
	r := read(cell.Port("right"))
	m := mask(cell.Param)
	set := func(v uint64) { s.next[cell.Port("out")] = v & m }
	b := func(cond bool) {
		if cond {
			s.next[cell.Port("out")] = 1
		} else {
			s.next[cell.Port("out")] = 0
		}
	}
	switch cell.Prototype {
	case "std_add":
		set(l + r)
	case "std_sub":
		set(l - r)
	case "std_lt":
		b(l < r)
	case "std_gt":
		b(l > r)
	case "std_eq":
		b(l == r)
	case "std_ne":
		b(l != r)
	case "std_wire":
		set(read(cell.Port("in")))
	}
}

// edge latches every register from the converged values and recurses into
// sub-components.
func (s *Simulator) edge() {
	for _, cell := range s.comp.Cells {
		if cell.Prototype != "std_reg" {
			continue
		}
		if s.prev[cell.Port("reset")] != 0 {
			s.regs[cell] = 0
			s.regDone[cell] = false
			continue
		}
		if s.prev[cell.Port("write_en")] != 0 {
			s.regs[cell] = s.prev[cell.Port("in")] & mask(cell.Param)
			s.regDone[cell] = true
		} else {
			s.regDone[cell] = false
		}
	}
	for _, child := range s.children {
		child.edge()
		child.cycle++
	}
}

func mapsEqual(a, b map[*ir.Port]uint64) bool {
	for p, v := range b {
		if a[p] != v {
			return false
		}
	}
	for p, v := range a {
		if v != 0 {
			if _, ok := b[p]; !ok {
				return false
			}
		}
	}
	return true
}

func mask(width int) uint64 {
	if width <= 0 {
		return 0
	}
	if width >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << width) - 1
}
