package passes

import (
	"fmt"

	"silica/internal/diag"
	"silica/internal/ir"
)

// TDCC compiles what remains of each control tree after static compilation
// into dynamic groups, top down. Every composite node becomes one group that
// sequences its children through their go/done handshakes; the tree collapses
// to a single enable of the outermost group.
//
// Sequencing uses one state register per seq, with directly nested seqs
// flattened into their parent's register unless marked @new_fsm. Parallel
// arms get one-bit completion latches so a finished arm stays finished while
// its siblings run out.
type TDCC struct {
	reporter *diag.Reporter
}

// NewTDCC builds the pass.
func NewTDCC(reporter *diag.Reporter) *TDCC {
	return &TDCC{reporter: reporter}
}

func (t *TDCC) Name() string { return "tdcc" }

func (t *TDCC) Run(ctx *ir.Context) error {
	for _, comp := range ctx.Components {
		if comp.Control == nil {
			comp.Control = &ir.Empty{}
			continue
		}
		if _, ok := comp.Control.(*ir.Empty); ok {
			continue
		}
		sy := &synthesizer{comp: comp, reporter: t.reporter}
		top, err := sy.lower(comp.Control)
		if err != nil {
			return fmt.Errorf("%s: %w", comp.Name, err)
		}
		comp.Control = &ir.Enable{Group: top, Source: comp.Control.Pos()}
	}
	return nil
}

type synthesizer struct {
	comp     *ir.Component
	reporter *diag.Reporter
}

// lower turns one control node into a group implementing its handshake.
func (s *synthesizer) lower(n ir.Control) (*ir.Group, error) {
	switch v := n.(type) {
	case *ir.Enable:
		if lat, ok := v.Group.Attributes.Get(ir.AttrPromotable); ok && s.reporter != nil {
			s.reporter.Warningf(v.Source,
				"%s: group %s is marked @promotable(%d) but was not promoted; is the promote pass scheduled?",
				s.comp.Name, v.Group.Name, lat)
		}
		return v.Group, nil
	case *ir.Empty:
		return s.emptyGroup(), nil
	case *ir.Seq:
		return s.lowerSeq(v)
	case *ir.Par:
		return s.lowerPar(v)
	case *ir.If:
		return s.lowerIf(v)
	case *ir.While:
		return s.lowerWhile(v)
	case *ir.Repeat:
		return s.lowerRepeat(v)
	case *ir.Invoke:
		return s.lowerInvoke(v)
	default:
		return nil, fmt.Errorf("node %T survived static compilation; cannot synthesize an FSM for it", n)
	}
}

// emptyGroup finishes in its first cycle.
func (s *synthesizer) emptyGroup() *ir.Group {
	g := s.newGroup("nop")
	g.Assignments = append(g.Assignments, ir.NewAssignment(g.Done, one(1), ir.True()))
	return g
}

func (s *synthesizer) newGroup(prefix string) *ir.Group {
	g := ir.NewGroup(s.comp.UniqueName(prefix))
	s.comp.Groups = append(s.comp.Groups, g)
	return g
}

// flattenSeq splices directly nested dynamic seqs into one child list so the
// whole chain shares a single state register. @new_fsm opts a nested seq out
// and gives it its own.
func flattenSeq(v *ir.Seq) []ir.Control {
	var out []ir.Control
	for _, c := range v.Children {
		if nested, ok := c.(*ir.Seq); ok && !nested.Attributes.Has(ir.AttrNewFSM) {
			out = append(out, flattenSeq(nested)...)
			continue
		}
		if _, ok := c.(*ir.Empty); ok {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (s *synthesizer) lowerSeq(v *ir.Seq) (*ir.Group, error) {
	children := flattenSeq(v)
	switch len(children) {
	case 0:
		return s.emptyGroup(), nil
	case 1:
		return s.lower(children[0])
	}
	groups := make([]*ir.Group, len(children))
	for i, c := range children {
		g, err := s.lower(c)
		if err != nil {
			return nil, err
		}
		groups[i] = g
	}

	seq := s.newGroup("seq")
	states := len(groups) + 1 // one per child plus the terminal state
	width := ir.CounterWidth(states)
	fsm, err := ir.AddGeneratedPrimitive(s.comp, "fsm", "std_reg", width)
	if err != nil {
		return nil, err
	}
	fsmOut := &ir.PortAtom{Port: fsm.Port("out")}
	inState := func(i int) ir.Guard {
		return &ir.CmpGuard{Op: ir.CmpEq, Left: fsmOut, Right: constant(width, uint64(i))}
	}
	emit := func(dst *ir.Port, src ir.Atom, g ir.Guard) {
		seq.Assignments = append(seq.Assignments, ir.NewAssignment(dst, src, g))
	}
	// go is a pure function of the state, so the child stays active through
	// its own done cycle; the transition fires off the same edge.
	for i, child := range groups {
		at := inState(i)
		childDone := ir.PortG(child.Done)
		emit(child.Go, one(1), at)
		emit(fsm.Port("in"), constant(width, uint64(i+1)), ir.And(at, childDone))
		emit(fsm.Port("write_en"), one(1), ir.And(at, childDone))
	}
	terminal := inState(len(groups))
	emit(seq.Done, one(1), terminal)
	emit(fsm.Port("in"), constant(width, 0), terminal)
	emit(fsm.Port("write_en"), one(1), terminal)
	return seq, nil
}

func (s *synthesizer) lowerPar(v *ir.Par) (*ir.Group, error) {
	var groups []*ir.Group
	for _, c := range v.Children {
		if _, ok := c.(*ir.Empty); ok {
			continue
		}
		g, err := s.lower(c)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	switch len(groups) {
	case 0:
		return s.emptyGroup(), nil
	case 1:
		return groups[0], nil
	}

	par := s.newGroup("par")
	latches := make([]*ir.Cell, len(groups))
	for i := range groups {
		latch, err := ir.AddGeneratedPrimitive(s.comp, "pd", "std_reg", 1)
		if err != nil {
			return nil, err
		}
		latches[i] = latch
	}
	// An arm counts as finished once its latch is set or its done is high in
	// the current cycle; the group completes when every arm has.
	var allDone ir.Guard = ir.True()
	for i, child := range groups {
		armDone := ir.Or(ir.PortG(latches[i].Port("out")), ir.PortG(child.Done))
		allDone = ir.And(allDone, armDone)
	}
	emit := func(dst *ir.Port, src ir.Atom, g ir.Guard) {
		par.Assignments = append(par.Assignments, ir.NewAssignment(dst, src, g))
	}
	for i, child := range groups {
		latchOut := ir.PortG(latches[i].Port("out"))
		emit(child.Go, one(1), ir.Not(latchOut))
		set := ir.And(ir.PortG(child.Done), ir.Not(allDone))
		emit(latches[i].Port("in"), one(1), set)
		emit(latches[i].Port("write_en"), one(1), set)
		emit(latches[i].Port("in"), constant(1, 0), allDone)
		emit(latches[i].Port("write_en"), one(1), allDone)
	}
	emit(par.Done, one(1), allDone)
	return par, nil
}

// lowerIf spends one cycle deciding, registers the sampled condition, runs
// the chosen branch, and finishes through a terminal state. The comb group,
// when present, is active only during the decision cycle.
func (s *synthesizer) lowerIf(v *ir.If) (*ir.Group, error) {
	thenG, err := s.lower(v.Then)
	if err != nil {
		return nil, err
	}
	elseG, err := s.lower(v.Else)
	if err != nil {
		return nil, err
	}

	g := s.newGroup("branch")
	fsm, err := ir.AddGeneratedPrimitive(s.comp, "fsm", "std_reg", 2)
	if err != nil {
		return nil, err
	}
	cs, err := ir.AddGeneratedPrimitive(s.comp, "cond_reg", "std_reg", 1)
	if err != nil {
		return nil, err
	}
	fsmOut := &ir.PortAtom{Port: fsm.Port("out")}
	inState := func(i int) ir.Guard {
		return &ir.CmpGuard{Op: ir.CmpEq, Left: fsmOut, Right: constant(2, uint64(i))}
	}
	emit := func(dst *ir.Port, src ir.Atom, guard ir.Guard) {
		g.Assignments = append(g.Assignments, ir.NewAssignment(dst, src, guard))
	}

	decide, run, finished := inState(0), inState(1), inState(2)
	if v.With != nil {
		for _, a := range v.With.Assignments {
			emit(a.Dst, a.Src, ir.And(decide, a.Guard))
		}
	}
	emit(cs.Port("in"), &ir.PortAtom{Port: v.Cond}, decide)
	emit(cs.Port("write_en"), one(1), decide)
	emit(fsm.Port("in"), constant(2, 1), decide)
	emit(fsm.Port("write_en"), one(1), decide)

	csOut := ir.PortG(cs.Port("out"))
	thenDone := ir.PortG(thenG.Done)
	elseDone := ir.PortG(elseG.Done)
	emit(thenG.Go, one(1), ir.And(run, csOut))
	emit(elseG.Go, one(1), ir.And(run, ir.Not(csOut)))
	emit(fsm.Port("in"), constant(2, 2), ir.And(run, ir.And(csOut, thenDone)))
	emit(fsm.Port("in"), constant(2, 2), ir.And(run, ir.And(ir.Not(csOut), elseDone)))
	emit(fsm.Port("write_en"), one(1), ir.And(run, ir.And(csOut, thenDone)))
	emit(fsm.Port("write_en"), one(1), ir.And(run, ir.And(ir.Not(csOut), elseDone)))

	emit(g.Done, one(1), finished)
	emit(fsm.Port("in"), constant(2, 0), finished)
	emit(fsm.Port("write_en"), one(1), finished)
	return g, nil
}

// lowerWhile re-evaluates the condition in a decide state before every
// iteration and exits only from that state, so a condition that flips while
// the body runs still finishes the iteration.
func (s *synthesizer) lowerWhile(v *ir.While) (*ir.Group, error) {
	body, err := s.lower(v.Body)
	if err != nil {
		return nil, err
	}
	g := s.newGroup("loop")
	fsm, err := ir.AddGeneratedPrimitive(s.comp, "fsm", "std_reg", 2)
	if err != nil {
		return nil, err
	}
	fsmOut := &ir.PortAtom{Port: fsm.Port("out")}
	inState := func(i int) ir.Guard {
		return &ir.CmpGuard{Op: ir.CmpEq, Left: fsmOut, Right: constant(2, uint64(i))}
	}
	emit := func(dst *ir.Port, src ir.Atom, guard ir.Guard) {
		g.Assignments = append(g.Assignments, ir.NewAssignment(dst, src, guard))
	}

	decide, run, finished := inState(0), inState(1), inState(2)
	if v.With != nil {
		for _, a := range v.With.Assignments {
			emit(a.Dst, a.Src, ir.And(decide, a.Guard))
		}
	}
	cond := ir.PortG(v.Cond)
	emit(fsm.Port("in"), constant(2, 1), ir.And(decide, cond))
	emit(fsm.Port("in"), constant(2, 2), ir.And(decide, ir.Not(cond)))
	emit(fsm.Port("write_en"), one(1), decide)

	bodyDone := ir.PortG(body.Done)
	emit(body.Go, one(1), run)
	emit(fsm.Port("in"), constant(2, 0), ir.And(run, bodyDone))
	emit(fsm.Port("write_en"), one(1), ir.And(run, bodyDone))

	emit(g.Done, one(1), finished)
	emit(fsm.Port("in"), constant(2, 0), finished)
	emit(fsm.Port("write_en"), one(1), finished)
	return g, nil
}

// lowerRepeat runs its body through a decide state, like a while loop over
// an iteration counter. The body's go drops for the decide cycle between
// iterations, which is what separates consecutive activations.
func (s *synthesizer) lowerRepeat(v *ir.Repeat) (*ir.Group, error) {
	body, err := s.lower(v.Body)
	if err != nil {
		return nil, err
	}
	g := s.newGroup("repeat")
	width := ir.CounterWidth(v.Count + 1)
	idx, err := ir.AddGeneratedPrimitive(s.comp, "idx", "std_reg", width)
	if err != nil {
		return nil, err
	}
	adder, err := ir.AddGeneratedPrimitive(s.comp, "incr", "std_add", width)
	if err != nil {
		return nil, err
	}
	fsm, err := ir.AddGeneratedPrimitive(s.comp, "fsm", "std_reg", 2)
	if err != nil {
		return nil, err
	}
	fsmOut := &ir.PortAtom{Port: fsm.Port("out")}
	inState := func(i int) ir.Guard {
		return &ir.CmpGuard{Op: ir.CmpEq, Left: fsmOut, Right: constant(2, uint64(i))}
	}
	emit := func(dst *ir.Port, src ir.Atom, guard ir.Guard) {
		g.Assignments = append(g.Assignments, ir.NewAssignment(dst, src, guard))
	}

	idxOut := &ir.PortAtom{Port: idx.Port("out")}
	more := ir.Guard(&ir.CmpGuard{Op: ir.CmpLt, Left: idxOut, Right: constant(width, uint64(v.Count))})
	decide, run, finished := inState(0), inState(1), inState(2)
	emit(fsm.Port("in"), constant(2, 1), ir.And(decide, more))
	emit(fsm.Port("in"), constant(2, 2), ir.And(decide, ir.Not(more)))
	emit(fsm.Port("write_en"), one(1), decide)

	bodyDone := ir.PortG(body.Done)
	emit(adder.Port("left"), idxOut, ir.True())
	emit(adder.Port("right"), constant(width, 1), ir.True())
	emit(body.Go, one(1), run)
	emit(idx.Port("in"), &ir.PortAtom{Port: adder.Port("out")}, ir.And(run, bodyDone))
	emit(idx.Port("write_en"), one(1), ir.And(run, bodyDone))
	emit(fsm.Port("in"), constant(2, 0), ir.And(run, bodyDone))
	emit(fsm.Port("write_en"), one(1), ir.And(run, bodyDone))

	emit(g.Done, one(1), finished)
	emit(fsm.Port("in"), constant(2, 0), finished)
	emit(fsm.Port("write_en"), one(1), finished)
	emit(idx.Port("in"), constant(width, 0), finished)
	emit(idx.Port("write_en"), one(1), finished)
	return g, nil
}

// lowerInvoke holds the callee's go high for the activation, feeding the
// bindings the whole time. The callee's done passes through as the group's.
func (s *synthesizer) lowerInvoke(v *ir.Invoke) (*ir.Group, error) {
	if len(v.Refs) > 0 {
		return nil, fmt.Errorf("invoke of %s still carries reference bindings; compile-ref must run first", v.Cell.Name)
	}
	goPort := rolePort(v.Cell, ir.RoleGo)
	donePort := rolePort(v.Cell, ir.RoleDone)
	if goPort == nil || donePort == nil {
		return nil, fmt.Errorf("invoked cell %s lacks a go/done interface", v.Cell.Name)
	}
	g := s.newGroup("invoke")
	emit := func(dst *ir.Port, src ir.Atom, guard ir.Guard) {
		g.Assignments = append(g.Assignments, ir.NewAssignment(dst, src, guard))
	}
	emit(goPort, one(1), ir.True())
	for _, b := range v.Inputs {
		emit(b.Port, b.Src, ir.True())
	}
	for _, b := range v.Outputs {
		emit(b.Port, b.Src, ir.True())
	}
	emit(g.Done, &ir.PortAtom{Port: donePort}, ir.True())
	return g, nil
}
