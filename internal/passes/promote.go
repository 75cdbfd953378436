package passes

import (
	"fmt"

	"silica/internal/diag"
	"silica/internal/ir"
)

// maxIterations bounds the cross-component fixpoint. Latencies only ever
// become known, never unknown again, so convergence is guaranteed; the bound
// exists to turn a bug into an error instead of a hang.
const maxIterations = 32

// Promote infers latencies bottom-up over every control tree and rewrites
// provably fixed-latency regions into their static variants. Inference
// results propagate across components: once a component's whole tree is
// static, invokes of it in later components promote too, so the pass iterates
// to a fixpoint over the arena.
type Promote struct {
	reporter *diag.Reporter
}

// NewPromote builds the promotion pass.
func NewPromote(reporter *diag.Reporter) *Promote {
	return &Promote{reporter: reporter}
}

func (p *Promote) Name() string { return "promote" }

func (p *Promote) Run(ctx *ir.Context) error {
	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for _, comp := range ctx.Components {
			ch, err := p.promoteComponent(ctx, comp)
			if err != nil {
				return err
			}
			changed = changed || ch
		}
		if !changed {
			return nil
		}
	}
	return fmt.Errorf("latency inference did not converge after %d iterations", maxIterations)
}

func (p *Promote) promoteComponent(ctx *ir.Context, comp *ir.Component) (bool, error) {
	pc := &promoter{ctx: ctx, comp: comp, reporter: p.reporter, promoted: make(map[*ir.Group]*ir.StaticGroup)}
	if comp.Control == nil {
		comp.Control = &ir.Empty{}
	}
	comp.Control = ir.RewriteControl(comp.Control, pc.rewrite)
	if pc.err != nil {
		return false, pc.err
	}
	// A fully static tree makes the whole component static, which in turn
	// lets invokes of it promote in the components compiled after this one.
	if lat, ok := ir.StaticLatency(comp.Control); ok && lat > 0 && comp.Latency == 0 {
		comp.Latency = lat
		comp.Attributes.Set(ir.AttrStatic, lat)
		pc.changed = true
	}
	return pc.changed, nil
}

type promoter struct {
	ctx      *ir.Context
	comp     *ir.Component
	reporter *diag.Reporter
	promoted map[*ir.Group]*ir.StaticGroup
	changed  bool
	err      error
}

// rewrite is applied bottom-up, so children of composite nodes have already
// been promoted when the composite itself is considered.
func (p *promoter) rewrite(n ir.Control) ir.Control {
	if p.err != nil {
		return n
	}
	switch v := n.(type) {
	case *ir.Enable:
		lat, ok := p.groupLatency(v.Group)
		if !ok {
			return n
		}
		sg := p.promoteGroup(v.Group, lat)
		attrs := v.Attributes.Clone()
		attrs.Set(ir.AttrPromoted, 1)
		p.changed = true
		return &ir.StaticEnable{Group: sg, Attributes: attrs, Source: v.Source}

	case *ir.Invoke:
		callee := p.ctx.Component(v.Cell.CompRef)
		if callee == nil || callee.Latency == 0 {
			return n
		}
		attrs := v.Attributes.Clone()
		attrs.Set(ir.AttrPromoted, 1)
		p.changed = true
		return &ir.StaticInvoke{
			Cell: v.Cell, Inputs: v.Inputs, Outputs: v.Outputs, Refs: v.Refs,
			Latency: callee.Latency, Attributes: attrs, Source: v.Source,
		}

	case *ir.Seq:
		total := 0
		for _, c := range v.Children {
			lat, ok := ir.StaticLatency(c)
			if !ok {
				return n
			}
			total += lat
		}
		if total == 0 {
			return &ir.Empty{Source: v.Source}
		}
		p.changed = true
		return &ir.StaticSeq{Children: v.Children, Latency: total, Attributes: promotedAttrs(v.Attributes), Source: v.Source}

	case *ir.Par:
		longest := 0
		for _, c := range v.Children {
			lat, ok := ir.StaticLatency(c)
			if !ok {
				return n
			}
			if lat > longest {
				longest = lat
			}
		}
		if longest == 0 {
			return &ir.Empty{Source: v.Source}
		}
		p.changed = true
		return &ir.StaticPar{Children: v.Children, Latency: longest, Attributes: promotedAttrs(v.Attributes), Source: v.Source}

	case *ir.If:
		// A comb group must be active in the decision cycle; the static
		// encoding samples the condition against a register instead, so only
		// bare conditions promote.
		if v.With != nil {
			return n
		}
		thenLat, ok1 := ir.StaticLatency(v.Then)
		elseLat, ok2 := ir.StaticLatency(v.Else)
		if !ok1 || !ok2 || thenLat != elseLat {
			return n
		}
		// Both branches empty: the condition selects between two no-ops.
		if thenLat == 0 {
			p.changed = true
			return &ir.Empty{Source: v.Source}
		}
		p.changed = true
		return &ir.StaticIf{Cond: v.Cond, Then: v.Then, Else: v.Else, Latency: thenLat, Attributes: promotedAttrs(v.Attributes), Source: v.Source}

	case *ir.While:
		bound, ok := v.Attributes.Get(ir.AttrBound)
		if !ok {
			return n
		}
		if bound <= 0 {
			p.err = fmt.Errorf("%s: while loop declares @bound(%d); bounds must be positive", p.comp.Name, bound)
			return n
		}
		bodyLat, isStatic := ir.StaticLatency(v.Body)
		if !isStatic || bodyLat == 0 {
			return n
		}
		p.changed = true
		return &ir.StaticRepeat{Count: bound, Body: v.Body, Latency: bodyLat, Attributes: promotedAttrs(v.Attributes), Source: v.Source}

	case *ir.Repeat:
		if bound, ok := v.Attributes.Get(ir.AttrBound); ok && bound != v.Count {
			p.err = fmt.Errorf("%s: repeat %d carries contradictory @bound(%d)", p.comp.Name, v.Count, bound)
			return n
		}
		if v.Count == 0 {
			p.changed = true
			return &ir.Empty{Source: v.Source}
		}
		bodyLat, isStatic := ir.StaticLatency(v.Body)
		if !isStatic || bodyLat == 0 {
			return n
		}
		p.changed = true
		return &ir.StaticRepeat{Count: v.Count, Body: v.Body, Latency: bodyLat, Attributes: promotedAttrs(v.Attributes), Source: v.Source}
	}
	return n
}

func promotedAttrs(attrs ir.AttrSet) ir.AttrSet {
	out := attrs.Clone()
	out.Set(ir.AttrPromoted, 1)
	return out
}

// groupLatency decides whether a dynamic group has a provable latency. An
// explicit @promotable(n) on the group is trusted. Otherwise the single
// recognized shape is the one-cycle register write: the group's only done
// driver is `g[done] = r.done` for a std_reg r whose write_en the group
// drives unconditionally high.
func (p *promoter) groupLatency(g *ir.Group) (int, bool) {
	if n, ok := g.Attributes.Get(ir.AttrPromotable); ok {
		return n, n > 0
	}
	done := g.DoneAssignments()
	if len(done) != 1 {
		return 0, false
	}
	d := done[0]
	if _, isTrue := d.Guard.(*ir.TrueGuard); !isTrue {
		return 0, false
	}
	src, ok := d.Src.(*ir.PortAtom)
	if !ok || src.Port.Cell == nil || src.Port.Cell.Prototype != "std_reg" || src.Port.Name != "done" {
		return 0, false
	}
	reg := src.Port.Cell
	for _, a := range g.Assignments {
		// Reads of the group's own holes make the timing depend on the
		// handshake itself; such groups stay dynamic.
		for _, read := range ir.GuardPorts(a.Guard) {
			if read.IsHole() {
				return 0, false
			}
		}
	}
	for _, a := range g.Assignments {
		if a.Dst.Cell != reg || a.Dst.Name != "write_en" {
			continue
		}
		c, isConst := a.Src.(*ir.ConstAtom)
		_, isTrue := a.Guard.(*ir.TrueGuard)
		if isConst && isTrue && c.Value == 1 {
			return 1, true
		}
	}
	return 0, false
}

// promoteGroup converts a dynamic group into a static one of the given
// latency, dropping the handshake: done drivers disappear and the remaining
// assignments become position-guarded by the full interval implicitly.
func (p *promoter) promoteGroup(g *ir.Group, latency int) *ir.StaticGroup {
	if sg, ok := p.promoted[g]; ok {
		return sg
	}
	sg := &ir.StaticGroup{
		Name:       g.Name,
		Latency:    latency,
		Attributes: promotedAttrs(g.Attributes),
		Source:     g.Source,
	}
	sg.Attributes.Clear(ir.AttrPromotable)
	for _, a := range g.Assignments {
		if a.Dst == g.Done {
			continue
		}
		sg.Assignments = append(sg.Assignments, a)
	}
	p.comp.RemoveGroup(g.Name)
	p.comp.StaticGroups = append(p.comp.StaticGroups, sg)
	p.promoted[g] = sg
	return sg
}
