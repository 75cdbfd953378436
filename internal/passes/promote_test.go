package passes_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"silica/internal/ir"
	"silica/internal/passes"
)

const twoWrites = `
component main() {
  cells { a = std_reg(32); b = std_reg(32); }
  wires {
    group wa { a.in = 32'd5; a.write_en = 1'd1; wa[done] = a.done; }
    group wb { b.in = 32'd7; b.write_en = 1'd1; wb[done] = b.done; }
  }
  control { seq { wa; wb; } }
}
`

func promote(t *testing.T, src string) (*ir.Context, error) {
	t.Helper()
	ctx, reporter, _ := parseDesign(t, src)
	return ctx, passes.NewPromote(reporter).Run(ctx)
}

func TestPromoteSeqOfRegisterWrites(t *testing.T) {
	ctx, err := promote(t, twoWrites)
	if err != nil {
		t.Fatal(err)
	}
	comp := ctx.Entry()
	seq, ok := comp.Control.(*ir.StaticSeq)
	if !ok {
		t.Fatalf("control is %T, want *ir.StaticSeq", comp.Control)
	}
	if seq.Latency != 2 {
		t.Fatalf("seq latency = %d, want 2", seq.Latency)
	}
	for i, c := range seq.Children {
		se, ok := c.(*ir.StaticEnable)
		if !ok {
			t.Fatalf("child %d is %T", i, c)
		}
		if se.Group.Latency != 1 {
			t.Errorf("child %d latency = %d, want 1", i, se.Group.Latency)
		}
	}
	if len(comp.Groups) != 0 || len(comp.StaticGroups) != 2 {
		t.Errorf("groups not migrated: %d dynamic, %d static", len(comp.Groups), len(comp.StaticGroups))
	}
	// Promoted static groups lose their done drivers.
	for _, sg := range comp.StaticGroups {
		for _, a := range sg.Assignments {
			if a.Dst.IsHole() {
				t.Errorf("static group %s still drives hole %s", sg.Name, a.Dst.FullName())
			}
		}
	}
	if comp.Latency != 2 {
		t.Errorf("component latency = %d, want 2", comp.Latency)
	}
	if n, ok := comp.Attributes.Get(ir.AttrStatic); !ok || n != 2 {
		t.Error("component should carry @static(2)")
	}
}

func TestPromoteIsIdempotent(t *testing.T) {
	ctx, err := promote(t, twoWrites)
	if err != nil {
		t.Fatal(err)
	}
	first := dumpContext(ctx)
	if err := passes.NewPromote(nil).Run(ctx); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(first, dumpContext(ctx)); diff != "" {
		t.Errorf("second run changed the design:\n%s", diff)
	}
}

func TestPromoteTrustsPromotableAttribute(t *testing.T) {
	ctx, err := promote(t, `
component main() {
  cells { r = std_reg(32); }
  wires {
    @promotable(2) group slow {
      r.in = 32'd1;
      r.write_en = 1'd1;
      slow[done] = r.done;
    }
  }
  control { slow; }
}`)
	if err != nil {
		t.Fatal(err)
	}
	comp := ctx.Entry()
	se, ok := comp.Control.(*ir.StaticEnable)
	if !ok {
		t.Fatalf("control is %T", comp.Control)
	}
	if se.Group.Latency != 2 {
		t.Errorf("latency = %d, want the declared 2", se.Group.Latency)
	}
	if se.Group.Attributes.Has(ir.AttrPromotable) {
		t.Error("promotable marker should be cleared after promotion")
	}
	if !se.Group.Attributes.Has(ir.AttrPromoted) {
		t.Error("promoted group should be marked")
	}
}

func TestPromoteLeavesUnprovableGroupsDynamic(t *testing.T) {
	cases := []struct {
		name string
		src  string
	}{
		{
			"guarded done",
			`component main() {
			   cells { r = std_reg(32); }
			   wires { group g { r.in = 32'd5; r.write_en = 1'd1; g[done] = r.out == 32'd5 ? 1'd1; } }
			   control { g; }
			 }`,
		},
		{
			"guard reads own hole",
			`component main() {
			   cells { r = std_reg(32); }
			   wires { group g { r.in = g[go] ? 32'd1; r.write_en = 1'd1; g[done] = r.done; } }
			   control { g; }
			 }`,
		},
		{
			"guarded write enable",
			`component main() {
			   cells { r = std_reg(32); lt = std_lt(32); }
			   wires {
			     lt.left = r.out;
			     lt.right = 32'd3;
			     group g { r.in = 32'd1; r.write_en = lt.out ? 1'd1; g[done] = r.done; }
			   }
			   control { g; }
			 }`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, err := promote(t, tc.src)
			if err != nil {
				t.Fatal(err)
			}
			if _, ok := ctx.Entry().Control.(*ir.Enable); !ok {
				t.Fatalf("control is %T, want a dynamic enable", ctx.Entry().Control)
			}
		})
	}
}

func TestPromoteBoundedWhile(t *testing.T) {
	ctx, err := promote(t, `
component main() {
  cells { r = std_reg(32); }
  wires { group w { r.in = 32'd1; r.write_en = 1'd1; w[done] = r.done; } }
  control { @bound(3) while r.out { w; } }
}`)
	if err != nil {
		t.Fatal(err)
	}
	comp := ctx.Entry()
	rep, ok := comp.Control.(*ir.StaticRepeat)
	if !ok {
		t.Fatalf("control is %T, want *ir.StaticRepeat", comp.Control)
	}
	if rep.Count != 3 || rep.Latency != 1 {
		t.Errorf("repeat = %d x %d cycles, want 3 x 1", rep.Count, rep.Latency)
	}
	if comp.Latency != 3 {
		t.Errorf("component latency = %d, want 3", comp.Latency)
	}
}

func TestPromoteUnequalIfStaysDynamic(t *testing.T) {
	ctx, err := promote(t, `
component main(sel: 1) {
  cells { a = std_reg(32); b = std_reg(32); }
  wires {
    group wa { a.in = 32'd1; a.write_en = 1'd1; wa[done] = a.done; }
    group wb { b.in = 32'd2; b.write_en = 1'd1; wb[done] = b.done; }
  }
  control { if sel { wa; } else { seq { wa; wb; } } }
}`)
	if err != nil {
		t.Fatal(err)
	}
	ifNode, ok := ctx.Entry().Control.(*ir.If)
	if !ok {
		t.Fatalf("control is %T, want *ir.If", ctx.Entry().Control)
	}
	// Branches of unequal latency still promote individually.
	if _, ok := ifNode.Then.(*ir.StaticEnable); !ok {
		t.Errorf("then branch is %T", ifNode.Then)
	}
	if _, ok := ifNode.Else.(*ir.StaticSeq); !ok {
		t.Errorf("else branch is %T", ifNode.Else)
	}
}

func TestPromoteInvokeOfStaticComponent(t *testing.T) {
	ctx, err := promote(t, `
component inc(x: 32) -> (y: 32) {
  cells { r = std_reg(32); add = std_add(32); }
  wires {
    group run { add.left = x; add.right = 32'd1; r.in = add.out; r.write_en = 1'd1; run[done] = r.done; }
    y = r.out;
  }
  control { run; }
}
component main() {
  cells { c = inc; }
  wires {}
  control { invoke c(x = 32'd1); }
}`)
	if err != nil {
		t.Fatal(err)
	}
	inv, ok := ctx.Entry().Control.(*ir.StaticInvoke)
	if !ok {
		t.Fatalf("control is %T, want *ir.StaticInvoke", ctx.Entry().Control)
	}
	if inv.Latency != 1 {
		t.Errorf("invoke latency = %d, want 1", inv.Latency)
	}
	if ctx.Entry().Latency != 1 {
		t.Errorf("main latency = %d, want 1", ctx.Entry().Latency)
	}
}

func TestPromoteRejectsBadBounds(t *testing.T) {
	cases := []struct {
		name, src, want string
	}{
		{
			"non-positive while bound",
			`component main() {
			   cells { r = std_reg(32); }
			   wires { group w { r.in = 32'd1; r.write_en = 1'd1; w[done] = r.done; } }
			   control { @bound(0) while r.out { w; } }
			 }`,
			"must be positive",
		},
		{
			"contradictory repeat bound",
			`component main() {
			   cells { r = std_reg(32); }
			   wires { group w { r.in = 32'd1; r.write_en = 1'd1; w[done] = r.done; } }
			   control { @bound(2) repeat 4 { w; } }
			 }`,
			"contradictory",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := promote(t, tc.src)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestPromoteEmptyIfBecomesEmpty(t *testing.T) {
	ctx, err := promote(t, `
component main(sel: 1) {
  cells { r = std_reg(4); }
  wires {}
  control { if sel {} else {} }
}`)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ctx.Entry().Control.(*ir.Empty); !ok {
		t.Fatalf("control is %T, want *ir.Empty", ctx.Entry().Control)
	}
	if ctx.Entry().Latency != 0 {
		t.Error("an empty program has no latency")
	}
}

func TestPromoteZeroRepeatBecomesEmpty(t *testing.T) {
	ctx, err := promote(t, `
component main() {
  cells { r = std_reg(32); }
  wires { group w { r.in = 32'd1; r.write_en = 1'd1; w[done] = r.done; } }
  control { repeat 0 { w; } }
}`)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ctx.Entry().Control.(*ir.Empty); !ok {
		t.Fatalf("control is %T, want *ir.Empty", ctx.Entry().Control)
	}
	if ctx.Entry().Latency != 0 {
		t.Error("an empty program has no latency")
	}
}

func dumpContext(ctx *ir.Context) string {
	var buf bytes.Buffer
	ir.Dump(ctx, &buf)
	return buf.String()
}
