package ir

import (
	"fmt"
	"strings"
)

// Guard is a boolean condition gating an assignment. Cycle-bit and
// cycle-range guards are positional: they are only legal inside a static
// group's body and are read relative to that group's local counter.
type Guard interface {
	guard()
}

// TrueGuard always holds.
type TrueGuard struct{}

func (*TrueGuard) guard() {}

// PortGuard holds while the referenced 1-bit port is high.
type PortGuard struct {
	Port *Port
}

func (*PortGuard) guard() {}

// NotGuard negates its operand.
type NotGuard struct {
	Inner Guard
}

func (*NotGuard) guard() {}

// AndGuard holds while both operands hold.
type AndGuard struct {
	Left, Right Guard
}

func (*AndGuard) guard() {}

// OrGuard holds while either operand holds.
type OrGuard struct {
	Left, Right Guard
}

func (*OrGuard) guard() {}

// CmpOp enumerates comparison predicates.
type CmpOp int

const (
	CmpEq CmpOp = iota
	CmpNeq
	CmpLt
	CmpGt
	CmpLe
	CmpGe
)

func (op CmpOp) String() string {
	switch op {
	case CmpEq:
		return "=="
	case CmpNeq:
		return "!="
	case CmpLt:
		return "<"
	case CmpGt:
		return ">"
	case CmpLe:
		return "<="
	case CmpGe:
		return ">="
	default:
		return "?"
	}
}

// CmpGuard compares two atoms (unsigned).
type CmpGuard struct {
	Op          CmpOp
	Left, Right Atom
}

func (*CmpGuard) guard() {}

// CycleGuard holds during exactly one local cycle of a static group (%i).
type CycleGuard struct {
	Cycle int
}

func (*CycleGuard) guard() {}

// RangeGuard holds during the inclusive-exclusive local cycle interval
// %[Start:End) of a static group.
type RangeGuard struct {
	Start, End int
}

func (*RangeGuard) guard() {}

// True returns the always-true guard.
func True() Guard { return &TrueGuard{} }

// PortG wraps a port read as a guard.
func PortG(p *Port) Guard { return &PortGuard{Port: p} }

// Not negates g, folding double negation and constants.
func Not(g Guard) Guard {
	switch inner := g.(type) {
	case *NotGuard:
		return inner.Inner
	case *TrueGuard:
		// !true is expressible only as an unsatisfiable comparison-free
		// guard; keep the Not node so evaluation stays trivially correct.
		return &NotGuard{Inner: g}
	}
	return &NotGuard{Inner: g}
}

// And conjoins a and b, absorbing always-true operands.
func And(a, b Guard) Guard {
	if _, ok := a.(*TrueGuard); ok {
		return b
	}
	if _, ok := b.(*TrueGuard); ok {
		return a
	}
	return &AndGuard{Left: a, Right: b}
}

// Or disjoins a and b.
func Or(a, b Guard) Guard {
	if _, ok := a.(*TrueGuard); ok {
		return a
	}
	if _, ok := b.(*TrueGuard); ok {
		return b
	}
	return &OrGuard{Left: a, Right: b}
}

// Cycle returns the single-cycle positional guard %at.
func Cycle(at int) Guard { return &CycleGuard{Cycle: at} }

// CycleRange returns the positional guard %[start:end). Ranges are
// normalized on construction: an empty or inverted interval is an error.
func CycleRange(start, end int) (Guard, error) {
	if start < 0 || end <= start {
		return nil, fmt.Errorf("cycle range %%[%d:%d) is empty or inverted", start, end)
	}
	if end == start+1 {
		return &CycleGuard{Cycle: start}, nil
	}
	return &RangeGuard{Start: start, End: end}, nil
}

// EvalGuard evaluates g against a port valuation and the local cycle of the
// enclosing static schedule (ignored by non-positional guards).
func EvalGuard(g Guard, value func(*Port) uint64, cycle int) bool {
	switch v := g.(type) {
	case *TrueGuard:
		return true
	case *PortGuard:
		return value(v.Port) != 0
	case *NotGuard:
		return !EvalGuard(v.Inner, value, cycle)
	case *AndGuard:
		return EvalGuard(v.Left, value, cycle) && EvalGuard(v.Right, value, cycle)
	case *OrGuard:
		return EvalGuard(v.Left, value, cycle) || EvalGuard(v.Right, value, cycle)
	case *CmpGuard:
		l := EvalAtom(v.Left, value)
		r := EvalAtom(v.Right, value)
		switch v.Op {
		case CmpEq:
			return l == r
		case CmpNeq:
			return l != r
		case CmpLt:
			return l < r
		case CmpGt:
			return l > r
		case CmpLe:
			return l <= r
		case CmpGe:
			return l >= r
		}
		return false
	case *CycleGuard:
		return cycle == v.Cycle
	case *RangeGuard:
		return cycle >= v.Start && cycle < v.End
	default:
		return false
	}
}

// EvalAtom resolves an atom against a port valuation.
func EvalAtom(a Atom, value func(*Port) uint64) uint64 {
	switch v := a.(type) {
	case *PortAtom:
		return value(v.Port)
	case *ConstAtom:
		return v.Value
	default:
		return 0
	}
}

// GuardPorts returns every port read by g, in first-seen order.
func GuardPorts(g Guard) []*Port {
	var out []*Port
	var walk func(Guard)
	walk = func(g Guard) {
		switch v := g.(type) {
		case *PortGuard:
			out = append(out, v.Port)
		case *NotGuard:
			walk(v.Inner)
		case *AndGuard:
			walk(v.Left)
			walk(v.Right)
		case *OrGuard:
			walk(v.Left)
			walk(v.Right)
		case *CmpGuard:
			if pa, ok := v.Left.(*PortAtom); ok {
				out = append(out, pa.Port)
			}
			if pa, ok := v.Right.(*PortAtom); ok {
				out = append(out, pa.Port)
			}
		}
	}
	walk(g)
	return out
}

// TransformGuard rewrites g bottom-up through f. f receives every node after
// its children were rewritten and may return a replacement.
func TransformGuard(g Guard, f func(Guard) Guard) Guard {
	switch v := g.(type) {
	case *NotGuard:
		return f(&NotGuard{Inner: TransformGuard(v.Inner, f)})
	case *AndGuard:
		return f(&AndGuard{Left: TransformGuard(v.Left, f), Right: TransformGuard(v.Right, f)})
	case *OrGuard:
		return f(&OrGuard{Left: TransformGuard(v.Left, f), Right: TransformGuard(v.Right, f)})
	default:
		return f(g)
	}
}

// ShiftCycles moves every positional guard in g later by offset cycles.
func ShiftCycles(g Guard, offset int) Guard {
	return TransformGuard(g, func(n Guard) Guard {
		switch v := n.(type) {
		case *CycleGuard:
			return &CycleGuard{Cycle: v.Cycle + offset}
		case *RangeGuard:
			return &RangeGuard{Start: v.Start + offset, End: v.End + offset}
		}
		return n
	})
}

// CycleInterval returns the [start,end) interval covered by the positional
// part of g, and whether g contains a positional guard at all. Non-positional
// structure is ignored.
func CycleInterval(g Guard) (int, int, bool) {
	switch v := g.(type) {
	case *CycleGuard:
		return v.Cycle, v.Cycle + 1, true
	case *RangeGuard:
		return v.Start, v.End, true
	case *NotGuard:
		return CycleInterval(v.Inner)
	case *AndGuard:
		if s, e, ok := CycleInterval(v.Left); ok {
			return s, e, true
		}
		return CycleInterval(v.Right)
	case *OrGuard:
		ls, le, lok := CycleInterval(v.Left)
		rs, re, rok := CycleInterval(v.Right)
		if lok && rok {
			return min(ls, rs), max(le, re), true
		}
		if lok {
			return ls, le, true
		}
		return rs, re, rok
	default:
		return 0, 0, false
	}
}

// SimplifyGuard applies semantics-preserving algebraic rewrites: constant
// folding, absorption of always-true conjuncts, double-negation elimination,
// and merging of adjacent or overlapping cycle ranges under a disjunction.
// Every rewrite here is covered by an evaluation-equivalence test rather than
// trusted syntactically.
func SimplifyGuard(g Guard) Guard {
	return TransformGuard(g, func(n Guard) Guard {
		switch v := n.(type) {
		case *NotGuard:
			if inner, ok := v.Inner.(*NotGuard); ok {
				return inner.Inner
			}
		case *AndGuard:
			if _, ok := v.Left.(*TrueGuard); ok {
				return v.Right
			}
			if _, ok := v.Right.(*TrueGuard); ok {
				return v.Left
			}
			if GuardEqual(v.Left, v.Right) {
				return v.Left
			}
		case *OrGuard:
			if _, ok := v.Left.(*TrueGuard); ok {
				return v.Left
			}
			if _, ok := v.Right.(*TrueGuard); ok {
				return v.Right
			}
			if GuardEqual(v.Left, v.Right) {
				return v.Left
			}
			if merged, ok := mergeRanges(v.Left, v.Right); ok {
				return merged
			}
		case *RangeGuard:
			if v.End == v.Start+1 {
				return &CycleGuard{Cycle: v.Start}
			}
		}
		return n
	})
}

func mergeRanges(a, b Guard) (Guard, bool) {
	as, ae, aok := rangeBounds(a)
	bs, be, bok := rangeBounds(b)
	if !aok || !bok {
		return nil, false
	}
	// Merge only touching or overlapping intervals; disjoint ones must stay
	// separate or the result would cover cycles neither operand covers.
	if as > bs {
		as, ae, bs, be = bs, be, as, ae
	}
	if bs > ae {
		return nil, false
	}
	return &RangeGuard{Start: as, End: max(ae, be)}, true
}

func rangeBounds(g Guard) (int, int, bool) {
	switch v := g.(type) {
	case *CycleGuard:
		return v.Cycle, v.Cycle + 1, true
	case *RangeGuard:
		return v.Start, v.End, true
	default:
		return 0, 0, false
	}
}

// GuardEqual reports structural equality of two guards.
func GuardEqual(a, b Guard) bool {
	switch av := a.(type) {
	case *TrueGuard:
		_, ok := b.(*TrueGuard)
		return ok
	case *PortGuard:
		bv, ok := b.(*PortGuard)
		return ok && av.Port == bv.Port
	case *NotGuard:
		bv, ok := b.(*NotGuard)
		return ok && GuardEqual(av.Inner, bv.Inner)
	case *AndGuard:
		bv, ok := b.(*AndGuard)
		return ok && GuardEqual(av.Left, bv.Left) && GuardEqual(av.Right, bv.Right)
	case *OrGuard:
		bv, ok := b.(*OrGuard)
		return ok && GuardEqual(av.Left, bv.Left) && GuardEqual(av.Right, bv.Right)
	case *CmpGuard:
		bv, ok := b.(*CmpGuard)
		return ok && av.Op == bv.Op && atomEqual(av.Left, bv.Left) && atomEqual(av.Right, bv.Right)
	case *CycleGuard:
		bv, ok := b.(*CycleGuard)
		return ok && av.Cycle == bv.Cycle
	case *RangeGuard:
		bv, ok := b.(*RangeGuard)
		return ok && av.Start == bv.Start && av.End == bv.End
	default:
		return false
	}
}

func atomEqual(a, b Atom) bool {
	switch av := a.(type) {
	case *PortAtom:
		bv, ok := b.(*PortAtom)
		return ok && av.Port == bv.Port
	case *ConstAtom:
		bv, ok := b.(*ConstAtom)
		return ok && av.Bits == bv.Bits && av.Value == bv.Value
	default:
		return false
	}
}

// ExclusiveGuards conservatively decides whether a and b can never hold in
// the same cycle. It checks pairs of conjuncts for known-disjoint conditions:
// non-overlapping cycle intervals, a literal against its own negation, and
// equality comparisons pinning the same port to different constants. A false
// answer means "not provably exclusive", not "overlapping".
func ExclusiveGuards(a, b Guard) bool {
	for _, ca := range conjuncts(a) {
		for _, cb := range conjuncts(b) {
			if conjunctsExclusive(ca, cb) {
				return true
			}
		}
	}
	return false
}

func conjuncts(g Guard) []Guard {
	if v, ok := g.(*AndGuard); ok {
		return append(conjuncts(v.Left), conjuncts(v.Right)...)
	}
	return []Guard{g}
}

func conjunctsExclusive(a, b Guard) bool {
	// Literal vs its negation.
	if na, ok := a.(*NotGuard); ok && GuardEqual(na.Inner, b) {
		return true
	}
	if nb, ok := b.(*NotGuard); ok && GuardEqual(nb.Inner, a) {
		return true
	}
	// Disjoint cycle intervals.
	if as, ae, ok := rangeBounds(a); ok {
		if bs, be, ok2 := rangeBounds(b); ok2 {
			return ae <= bs || be <= as
		}
	}
	// Same port pinned to different constants.
	ca, aok := a.(*CmpGuard)
	cb, bok := b.(*CmpGuard)
	if aok && bok && ca.Op == CmpEq && cb.Op == CmpEq {
		pa, pok := ca.Left.(*PortAtom)
		pb, qok := cb.Left.(*PortAtom)
		va, vok := ca.Right.(*ConstAtom)
		vb, wok := cb.Right.(*ConstAtom)
		if pok && qok && vok && wok && pa.Port == pb.Port && va.Value != vb.Value {
			return true
		}
	}
	return false
}

// GuardString renders g in the surface syntax.
func GuardString(g Guard) string {
	switch v := g.(type) {
	case *TrueGuard:
		return "true"
	case *PortGuard:
		return v.Port.FullName()
	case *NotGuard:
		return "!" + parenthesize(v.Inner)
	case *AndGuard:
		return parenthesize(v.Left) + " & " + parenthesize(v.Right)
	case *OrGuard:
		return parenthesize(v.Left) + " | " + parenthesize(v.Right)
	case *CmpGuard:
		return fmt.Sprintf("%s %s %s", AtomString(v.Left), v.Op, AtomString(v.Right))
	case *CycleGuard:
		return fmt.Sprintf("%%%d", v.Cycle)
	case *RangeGuard:
		return fmt.Sprintf("%%[%d:%d)", v.Start, v.End)
	default:
		return "<guard>"
	}
}

func parenthesize(g Guard) string {
	switch g.(type) {
	case *AndGuard, *OrGuard, *CmpGuard:
		return "(" + GuardString(g) + ")"
	default:
		return GuardString(g)
	}
}

// AtomString renders an atom in the surface syntax.
func AtomString(a Atom) string {
	switch v := a.(type) {
	case *PortAtom:
		return v.Port.FullName()
	case *ConstAtom:
		return fmt.Sprintf("%d'd%d", v.Bits, v.Value)
	default:
		return "<atom>"
	}
}

// AssignmentString renders one assignment in the surface syntax.
func AssignmentString(a *Assignment) string {
	var sb strings.Builder
	sb.WriteString(a.Dst.FullName())
	sb.WriteString(" = ")
	if _, ok := a.Guard.(*TrueGuard); !ok {
		sb.WriteString(GuardString(a.Guard))
		sb.WriteString(" ? ")
	}
	sb.WriteString(AtomString(a.Src))
	return sb.String()
}
