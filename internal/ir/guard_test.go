package ir

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func testPort(name string) *Port {
	return &Port{Name: name, Width: 1}
}

func valuation(vals map[*Port]uint64) func(*Port) uint64 {
	return func(p *Port) uint64 { return vals[p] }
}

func TestEvalGuard(t *testing.T) {
	p := testPort("p")
	q := testPort("q")
	read := valuation(map[*Port]uint64{p: 1, q: 0})
	cases := []struct {
		name  string
		guard Guard
		cycle int
		want  bool
	}{
		{"true", True(), 0, true},
		{"port high", PortG(p), 0, true},
		{"port low", PortG(q), 0, false},
		{"not", Not(PortG(p)), 0, false},
		{"and", And(PortG(p), PortG(q)), 0, false},
		{"or", Or(PortG(p), PortG(q)), 0, true},
		{"eq port const", &CmpGuard{Op: CmpEq, Left: &PortAtom{Port: p}, Right: &ConstAtom{Bits: 1, Value: 1}}, 0, true},
		{"lt consts", &CmpGuard{Op: CmpLt, Left: &ConstAtom{Bits: 4, Value: 2}, Right: &ConstAtom{Bits: 4, Value: 7}}, 0, true},
		{"ge consts", &CmpGuard{Op: CmpGe, Left: &ConstAtom{Bits: 4, Value: 2}, Right: &ConstAtom{Bits: 4, Value: 7}}, 0, false},
		{"cycle hit", Cycle(3), 3, true},
		{"cycle miss", Cycle(3), 2, false},
		{"range inside", &RangeGuard{Start: 1, End: 4}, 3, true},
		{"range end exclusive", &RangeGuard{Start: 1, End: 4}, 4, false},
	}
	for _, tc := range cases {
		if got := EvalGuard(tc.guard, read, tc.cycle); got != tc.want {
			t.Errorf("%s: EvalGuard = %v, want %v", tc.name, got, tc.want)
		}
	}
}

// truthTable samples g over every valuation of ports and cycles 0 through 5.
func truthTable(g Guard, ports []*Port) []bool {
	var out []bool
	for bits := 0; bits < 1<<len(ports); bits++ {
		vals := make(map[*Port]uint64)
		for i, p := range ports {
			vals[p] = uint64(bits>>i) & 1
		}
		for cycle := 0; cycle <= 5; cycle++ {
			out = append(out, EvalGuard(g, valuation(vals), cycle))
		}
	}
	return out
}

func TestSimplifyGuardPreservesMeaning(t *testing.T) {
	p := testPort("p")
	q := testPort("q")
	ports := []*Port{p, q}
	// Raw nodes on purpose: the smart constructors already fold some of these
	// shapes, and the simplifier must handle the unfolded forms too.
	guards := []Guard{
		&NotGuard{Inner: &NotGuard{Inner: PortG(p)}},
		&AndGuard{Left: &TrueGuard{}, Right: PortG(p)},
		&AndGuard{Left: PortG(p), Right: PortG(p)},
		&OrGuard{Left: &TrueGuard{}, Right: PortG(q)},
		&OrGuard{Left: &CycleGuard{Cycle: 0}, Right: &CycleGuard{Cycle: 1}},
		&OrGuard{Left: &RangeGuard{Start: 0, End: 3}, Right: &RangeGuard{Start: 2, End: 5}},
		&OrGuard{Left: &CycleGuard{Cycle: 0}, Right: &CycleGuard{Cycle: 2}},
		&RangeGuard{Start: 1, End: 2},
		&AndGuard{
			Left:  &OrGuard{Left: PortG(p), Right: &NotGuard{Inner: &NotGuard{Inner: PortG(q)}}},
			Right: &AndGuard{Left: &TrueGuard{}, Right: &RangeGuard{Start: 0, End: 1}},
		},
	}
	for _, g := range guards {
		simplified := SimplifyGuard(g)
		if diff := cmp.Diff(truthTable(g, ports), truthTable(simplified, ports)); diff != "" {
			t.Errorf("%s: simplification changed meaning (-orig +simplified):\n%s", GuardString(g), diff)
		}
	}
}

func TestSimplifyGuardShapes(t *testing.T) {
	p := testPort("p")
	cases := []struct {
		name     string
		in, want Guard
	}{
		{"double negation", &NotGuard{Inner: &NotGuard{Inner: PortG(p)}}, PortG(p)},
		{"true conjunct", &AndGuard{Left: &TrueGuard{}, Right: PortG(p)}, PortG(p)},
		{"idempotent and", &AndGuard{Left: PortG(p), Right: PortG(p)}, PortG(p)},
		{"idempotent or", &OrGuard{Left: PortG(p), Right: PortG(p)}, PortG(p)},
		{"adjacent cycles merge", &OrGuard{Left: &CycleGuard{Cycle: 0}, Right: &CycleGuard{Cycle: 1}}, &RangeGuard{Start: 0, End: 2}},
		{"overlapping ranges merge", &OrGuard{Left: &RangeGuard{Start: 0, End: 3}, Right: &RangeGuard{Start: 2, End: 5}}, &RangeGuard{Start: 0, End: 5}},
		{"disjoint cycles stay", &OrGuard{Left: &CycleGuard{Cycle: 0}, Right: &CycleGuard{Cycle: 2}}, &OrGuard{Left: &CycleGuard{Cycle: 0}, Right: &CycleGuard{Cycle: 2}}},
		{"single-cycle range collapses", &RangeGuard{Start: 1, End: 2}, &CycleGuard{Cycle: 1}},
	}
	for _, tc := range cases {
		got := SimplifyGuard(tc.in)
		if !GuardEqual(got, tc.want) {
			t.Errorf("%s: got %s, want %s", tc.name, GuardString(got), GuardString(tc.want))
		}
	}
}

func TestCycleRange(t *testing.T) {
	if _, err := CycleRange(2, 2); err == nil {
		t.Error("empty range [2:2) should be rejected")
	}
	if _, err := CycleRange(3, 1); err == nil {
		t.Error("inverted range [3:1) should be rejected")
	}
	if _, err := CycleRange(-1, 2); err == nil {
		t.Error("negative start should be rejected")
	}
	g, err := CycleRange(1, 2)
	if err != nil {
		t.Fatalf("CycleRange(1,2): %v", err)
	}
	if !GuardEqual(g, &CycleGuard{Cycle: 1}) {
		t.Errorf("[1:2) should normalize to %%1, got %s", GuardString(g))
	}
	g, err = CycleRange(0, 3)
	if err != nil {
		t.Fatalf("CycleRange(0,3): %v", err)
	}
	if !GuardEqual(g, &RangeGuard{Start: 0, End: 3}) {
		t.Errorf("[0:3) should stay a range, got %s", GuardString(g))
	}
}

func TestExclusiveGuards(t *testing.T) {
	p := testPort("p")
	q := testPort("q")
	fsm := testPort("fsm")
	eqConst := func(port *Port, v uint64) Guard {
		return &CmpGuard{Op: CmpEq, Left: &PortAtom{Port: port}, Right: &ConstAtom{Bits: 2, Value: v}}
	}
	cases := []struct {
		name string
		a, b Guard
		want bool
	}{
		{"literal vs negation", PortG(p), Not(PortG(p)), true},
		{"negation buried in conjunction", And(PortG(q), PortG(p)), And(PortG(q), Not(PortG(p))), true},
		{"distinct cycles", Cycle(0), Cycle(1), true},
		{"disjoint ranges", &RangeGuard{Start: 0, End: 2}, &RangeGuard{Start: 2, End: 4}, true},
		{"overlapping ranges", &RangeGuard{Start: 0, End: 3}, &RangeGuard{Start: 2, End: 4}, false},
		{"same state register different values", eqConst(fsm, 0), eqConst(fsm, 1), true},
		{"same value not exclusive", eqConst(fsm, 1), eqConst(fsm, 1), false},
		{"different ports", eqConst(p, 0), eqConst(q, 1), false},
		{"independent literals", PortG(p), PortG(q), false},
		{"true vs true", True(), True(), false},
	}
	for _, tc := range cases {
		if got := ExclusiveGuards(tc.a, tc.b); got != tc.want {
			t.Errorf("%s: ExclusiveGuards(%s, %s) = %v, want %v",
				tc.name, GuardString(tc.a), GuardString(tc.b), got, tc.want)
		}
		// Exclusivity is symmetric.
		if got := ExclusiveGuards(tc.b, tc.a); got != tc.want {
			t.Errorf("%s: ExclusiveGuards is not symmetric", tc.name)
		}
	}
}

func TestShiftCycles(t *testing.T) {
	p := testPort("p")
	g := And(Cycle(1), PortG(p))
	shifted := ShiftCycles(g, 2)
	start, end, ok := CycleInterval(shifted)
	if !ok || start != 3 || end != 4 {
		t.Fatalf("shifted interval = [%d:%d) ok=%v, want [3:4)", start, end, ok)
	}
	r := ShiftCycles(&RangeGuard{Start: 0, End: 2}, 5)
	if !GuardEqual(r, &RangeGuard{Start: 5, End: 7}) {
		t.Errorf("shifted range = %s, want %%[5:7)", GuardString(r))
	}
}

func TestCycleInterval(t *testing.T) {
	p := testPort("p")
	cases := []struct {
		guard      Guard
		start, end int
		ok         bool
	}{
		{Cycle(2), 2, 3, true},
		{&RangeGuard{Start: 1, End: 4}, 1, 4, true},
		{And(Cycle(2), PortG(p)), 2, 3, true},
		{Or(Cycle(0), Cycle(3)), 0, 4, true},
		{PortG(p), 0, 0, false},
		{True(), 0, 0, false},
	}
	for _, tc := range cases {
		start, end, ok := CycleInterval(tc.guard)
		if start != tc.start || end != tc.end || ok != tc.ok {
			t.Errorf("CycleInterval(%s) = [%d:%d) %v, want [%d:%d) %v",
				GuardString(tc.guard), start, end, ok, tc.start, tc.end, tc.ok)
		}
	}
}

func TestGuardString(t *testing.T) {
	p := testPort("p")
	q := testPort("q")
	cases := []struct {
		guard Guard
		want  string
	}{
		{True(), "true"},
		{PortG(p), "p"},
		{Not(PortG(p)), "!p"},
		{And(Or(PortG(p), PortG(q)), Not(PortG(p))), "(p | q) & !p"},
		{Not(&CmpGuard{Op: CmpEq, Left: &PortAtom{Port: p}, Right: &ConstAtom{Bits: 2, Value: 1}}), "!(p == 2'd1)"},
		{Cycle(4), "%4"},
		{&RangeGuard{Start: 1, End: 3}, "%[1:3)"},
	}
	for _, tc := range cases {
		if got := GuardString(tc.guard); got != tc.want {
			t.Errorf("GuardString = %q, want %q", got, tc.want)
		}
	}
}

func TestAssignmentString(t *testing.T) {
	cell := &Cell{Name: "r", Prototype: "std_reg", CompRef: InvalidComponent}
	in := &Port{Name: "in", Width: 8, Dir: Input, Cell: cell}
	a := NewAssignment(in, &ConstAtom{Bits: 8, Value: 3}, nil)
	if got := AssignmentString(a); got != "r.in = 8'd3" {
		t.Errorf("unguarded: %q", got)
	}
	a.Guard = Cycle(1)
	if got := AssignmentString(a); got != "r.in = %1 ? 8'd3" {
		t.Errorf("guarded: %q", got)
	}
}
