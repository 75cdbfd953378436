package passes_test

import (
	"testing"

	"silica/internal/ir"
	"silica/internal/passes"
)

func TestDeadCodeRemovesUnreferencedGroup(t *testing.T) {
	ctx, _, _ := parseDesign(t, `
component main() {
  cells { r = std_reg(4); s = std_reg(4); }
  wires {
    group used { r.in = 4'd1; r.write_en = 1'd1; used[done] = r.done; }
    group unused { s.in = 4'd2; s.write_en = 1'd1; unused[done] = s.done; }
  }
  control { used; }
}`)
	if err := passes.NewDeadCode(quietLogger()).Run(ctx); err != nil {
		t.Fatal(err)
	}
	comp := ctx.Entry()
	if comp.Group("unused") != nil {
		t.Error("unreferenced group survived")
	}
	if comp.Group("used") == nil {
		t.Error("live group removed")
	}
	// Source cells stay even when nothing touches them anymore.
	if comp.Cell("s") == nil {
		t.Error("source cell removed")
	}
}

func TestDeadCodeSweepsOrphanGeneratedCells(t *testing.T) {
	ctx, _, _ := parseDesign(t, `
component main() {
  cells { r = std_reg(4); }
  wires { group g { r.in = 4'd1; r.write_en = 1'd1; g[done] = r.done; } }
  control { g; }
}`)
	comp := ctx.Entry()
	if _, err := ir.AddGeneratedPrimitive(comp, "fsm", "std_reg", 2); err != nil {
		t.Fatal(err)
	}
	if err := passes.NewDeadCode(quietLogger()).Run(ctx); err != nil {
		t.Fatal(err)
	}
	if n := len(findGenerated(comp, "std_reg", "fsm")); n != 0 {
		t.Errorf("%d orphan generated registers survived", n)
	}
	if comp.Cell("r") == nil {
		t.Error("referenced cell removed")
	}
}

func TestDeadCodeAfterFullPipeline(t *testing.T) {
	const src = `
component main() {
  cells { a = std_reg(32); b = std_reg(32); add = std_add(32); }
  wires {
    group fill {
      add.left = a.out;
      add.right = 32'd1;
      a.in = !(a.out == 32'd5) ? add.out;
      a.write_en = !(a.out == 32'd5) ? 1'd1;
      fill[done] = a.out == 32'd5 ? 1'd1;
    }
    group copy { b.in = a.out; b.write_en = 1'd1; copy[done] = b.done; }
  }
  control { seq { fill; copy; } }
}
`
	ctx := compileDesign(t, src, false)
	comp := ctx.Entry()
	if len(comp.StaticGroups) != 0 {
		t.Errorf("%d static groups survived; promoted groups fold into islands", len(comp.StaticGroups))
	}
	if len(comp.CombGroups) != 0 {
		t.Errorf("%d comb groups survived", len(comp.CombGroups))
	}
	// fill stays dynamic, copy compiles to an island, and the seq FSM group
	// references both through their handshake holes.
	if comp.Group("fill") == nil {
		t.Error("fill removed; groups referenced through holes are live")
	}
	if len(comp.Groups) != 3 {
		t.Errorf("got %d groups, want the seq group and its two children", len(comp.Groups))
	}
}
