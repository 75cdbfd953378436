package ir

import "testing"

func TestContextEntry(t *testing.T) {
	ctx := NewContext()
	first := NewComponent("helper")
	if _, err := ctx.AddComponent(first); err != nil {
		t.Fatal(err)
	}
	if ctx.Entry() != first {
		t.Error("without a main component, Entry should return the first one")
	}
	main := NewComponent("main")
	if _, err := ctx.AddComponent(main); err != nil {
		t.Fatal(err)
	}
	if ctx.Entry() != main {
		t.Error("Entry should prefer the component named main")
	}
	if _, err := ctx.AddComponent(NewComponent("main")); err == nil {
		t.Error("duplicate component names should be rejected")
	}
	id, ok := ctx.Lookup("helper")
	if !ok || ctx.Component(id) != first {
		t.Error("Lookup did not resolve helper")
	}
	if ctx.Component(InvalidComponent) != nil {
		t.Error("invalid id should resolve to nil")
	}
}

func TestWriteSetSkipsHoles(t *testing.T) {
	g := NewGroup("g")
	cell, err := NewPrimitive("r", "std_reg", 4)
	if err != nil {
		t.Fatal(err)
	}
	g.Assignments = append(g.Assignments,
		NewAssignment(cell.Port("in"), &ConstAtom{Bits: 4, Value: 1}, nil),
		NewAssignment(cell.Port("in"), &ConstAtom{Bits: 4, Value: 2}, Cycle(1)),
		NewAssignment(g.Done, &PortAtom{Port: cell.Port("done")}, nil),
	)
	ws := WriteSet(g.Assignments)
	if len(ws) != 1 || ws[0] != cell.Port("in") {
		t.Fatalf("WriteSet = %v, want just r.in once", ws)
	}
}

func TestReadSetIncludesGuardPorts(t *testing.T) {
	cell, err := NewPrimitive("r", "std_reg", 4)
	if err != nil {
		t.Fatal(err)
	}
	lt, err := NewPrimitive("lt", "std_lt", 4)
	if err != nil {
		t.Fatal(err)
	}
	a := NewAssignment(cell.Port("in"), &PortAtom{Port: cell.Port("out")}, PortG(lt.Port("out")))
	rs := ReadSet([]*Assignment{a})
	has := func(p *Port) bool {
		for _, q := range rs {
			if q == p {
				return true
			}
		}
		return false
	}
	if !has(cell.Port("out")) || !has(lt.Port("out")) {
		t.Fatalf("ReadSet = %v, want r.out and lt.out", rs)
	}
}

func TestRewriteDst(t *testing.T) {
	g := NewGroup("g")
	cell, err := NewPrimitive("r", "std_reg", 4)
	if err != nil {
		t.Fatal(err)
	}
	a := NewAssignment(g.Done, &ConstAtom{Bits: 1, Value: 1}, nil)
	RewriteDst([]*Assignment{a}, g.Done, cell.Port("write_en"))
	if a.Dst != cell.Port("write_en") {
		t.Error("RewriteDst did not redirect the destination")
	}
}

func TestParseAttrKind(t *testing.T) {
	for _, name := range []string{"bound", "promotable", "promoted", "new_fsm", "static"} {
		kind, err := ParseAttrKind(name)
		if err != nil {
			t.Errorf("ParseAttrKind(%q): %v", name, err)
			continue
		}
		if kind.String() != name {
			t.Errorf("round trip of %q gave %q", name, kind.String())
		}
	}
	if _, err := ParseAttrKind("external"); err == nil {
		t.Error("unknown attribute names should be rejected")
	}
}

func TestAttrSet(t *testing.T) {
	var s AttrSet
	if s.Has(AttrBound) {
		t.Error("nil set should have nothing")
	}
	s.Set(AttrBound, 4)
	if v, ok := s.Get(AttrBound); !ok || v != 4 {
		t.Errorf("Get = %d,%v want 4,true", v, ok)
	}
	clone := s.Clone()
	clone.Set(AttrBound, 9)
	if v, _ := s.Get(AttrBound); v != 4 {
		t.Error("Clone should not share storage")
	}
	s.Clear(AttrBound)
	if s.Has(AttrBound) {
		t.Error("Clear did not remove the attribute")
	}
}
