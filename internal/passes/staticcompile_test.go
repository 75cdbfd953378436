package passes_test

import (
	"testing"

	"silica/internal/ir"
)

// findGenerated returns the generated cells of a prototype with the given
// name prefix. Generated names carry a uniquing counter, so tests match on
// prefix instead of exact names.
func findGenerated(comp *ir.Component, prototype, prefix string) []*ir.Cell {
	var out []*ir.Cell
	for _, c := range comp.Cells {
		if c.Generated && c.Prototype == prototype && len(c.Name) >= len(prefix) && c.Name[:len(prefix)] == prefix {
			out = append(out, c)
		}
	}
	return out
}

func TestSeqCompilesToTwoCycleSchedule(t *testing.T) {
	ctx := compileDesign(t, twoWrites, false)
	comp := ctx.Entry()

	if _, ok := comp.Control.(*ir.Enable); !ok {
		t.Fatalf("control is %T, want a single enable of the compiled island", comp.Control)
	}
	if len(comp.StaticGroups) != 0 {
		t.Fatalf("%d static groups survived compilation", len(comp.StaticGroups))
	}
	if n := len(findGenerated(comp, "std_reg", "fsm")); n != 1 {
		t.Fatalf("got %d counter registers, want 1", n)
	}

	sim := simulate(t, ctx)
	if err := sim.SetInput("go", 1); err != nil {
		t.Fatal(err)
	}
	if err := sim.Step(); err != nil {
		t.Fatal(err)
	}
	if sim.Done() {
		t.Fatal("done asserted in the first cycle of a two-cycle schedule")
	}
	if got := mustRegister(t, sim, "a"); got != 5 {
		t.Fatalf("after cycle 1, a = %d, want 5", got)
	}
	if got := mustRegister(t, sim, "b"); got != 0 {
		t.Fatalf("b written early: %d", got)
	}
	if err := sim.Step(); err != nil {
		t.Fatal(err)
	}
	if !sim.Done() {
		t.Fatal("done not asserted in the second cycle")
	}
	if got := mustRegister(t, sim, "b"); got != 7 {
		t.Fatalf("after cycle 2, b = %d, want 7", got)
	}
}

func TestEarlyResetMatchesStandalone(t *testing.T) {
	plain, plainCycles := runToDone(t, twoWrites, false)
	early, earlyCycles := runToDone(t, twoWrites, true)

	if plainCycles != 2 || earlyCycles != 2 {
		t.Fatalf("cycles = %d standalone, %d early-reset, want 2 and 2", plainCycles, earlyCycles)
	}
	for _, reg := range []string{"a", "b"} {
		if p, e := mustRegister(t, plain, reg), mustRegister(t, early, reg); p != e {
			t.Errorf("register %s diverges: %d standalone, %d early-reset", reg, p, e)
		}
	}

	// The counter and signal register wrap, so a second activation runs the
	// same schedule again.
	again, err := early.RunActivation(64)
	if err != nil {
		t.Fatalf("second activation: %v", err)
	}
	if again != 2 {
		t.Fatalf("second activation took %d cycles, want 2", again)
	}
}

func TestRepeatUnrollsIntoOneIsland(t *testing.T) {
	const src = `
component main() {
  cells { r = std_reg(32); add = std_add(32); }
  wires {
    group incr {
      add.left = r.out;
      add.right = 32'd1;
      r.in = add.out;
      r.write_en = 1'd1;
      incr[done] = r.done;
    }
  }
  control { repeat 4 { incr; } }
}
`
	sim, cycles := runToDone(t, src, false)
	if cycles != 4 {
		t.Fatalf("activation took %d cycles, want 4", cycles)
	}
	if got := mustRegister(t, sim, "r"); got != 4 {
		t.Fatalf("r = %d, want 4", got)
	}

	ctx := compileDesign(t, src, false)
	comp := ctx.Entry()
	if len(comp.Groups) != 1 {
		t.Errorf("got %d groups, want only the island wrapper", len(comp.Groups))
	}
	if len(comp.StaticGroups) != 0 {
		t.Errorf("%d static groups survived", len(comp.StaticGroups))
	}
}

// guardConstants collects the comparison constants inside g.
func guardConstants(g ir.Guard) []*ir.ConstAtom {
	var out []*ir.ConstAtom
	collect := func(a ir.Atom) {
		if c, ok := a.(*ir.ConstAtom); ok {
			out = append(out, c)
		}
	}
	ir.TransformGuard(g, func(n ir.Guard) ir.Guard {
		if cg, ok := n.(*ir.CmpGuard); ok {
			collect(cg.Left)
			collect(cg.Right)
		}
		return n
	})
	return out
}

func TestScheduleGuardConstantsFitCounterWidth(t *testing.T) {
	// Latency 4 gives a two-bit counter; a range running to the end of the
	// schedule must not compare against the unrepresentable value 4.
	const src = `
component main() {
  cells { r = std_reg(4); }
  wires {
    static<4> group run {
      r.in = %[0:4) ? 4'd1;
      r.write_en = %3 ? 1'd1;
    }
  }
  control { run; }
}
`
	ctx := compileDesign(t, src, false)
	for _, g := range ctx.Entry().Groups {
		for _, a := range g.Assignments {
			for _, c := range guardConstants(a.Guard) {
				if c.Value >= 1<<uint(c.Bits) {
					t.Errorf("%s: guard constant %d does not fit %d bit(s)",
						ir.AssignmentString(a), c.Value, c.Bits)
				}
			}
		}
	}

	sim, cycles := runToDone(t, src, false)
	if cycles != 4 {
		t.Fatalf("activation took %d cycles, want 4", cycles)
	}
	if got := mustRegister(t, sim, "r"); got != 1 {
		t.Fatalf("r = %d, want 1", got)
	}
}

func TestStaticIfSelects(t *testing.T) {
	const src = `
component main(sel: 1) {
  cells { r = std_reg(32); }
  wires {
    group wa { r.in = 32'd1; r.write_en = 1'd1; wa[done] = r.done; }
    group wb { r.in = 32'd2; r.write_en = 1'd1; wb[done] = r.done; }
  }
  control { if sel { wa; } else { wb; } }
}
`
	cases := []struct {
		sel, want uint64
	}{
		{1, 1},
		{0, 2},
	}
	for _, tc := range cases {
		ctx := compileDesign(t, src, false)
		sim := simulate(t, ctx)
		if err := sim.SetInput("sel", tc.sel); err != nil {
			t.Fatal(err)
		}
		cycles, err := sim.RunActivation(64)
		if err != nil {
			t.Fatalf("sel=%d: %v", tc.sel, err)
		}
		if cycles != 1 {
			t.Errorf("sel=%d: %d cycles, want 1; equal branches need no counter", tc.sel, cycles)
		}
		if got := mustRegister(t, sim, "r"); got != tc.want {
			t.Errorf("sel=%d: r = %d, want %d", tc.sel, got, tc.want)
		}
	}
}
