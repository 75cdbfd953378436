package ir

import (
	"fmt"
	"go/token"
	"math/bits"
)

// The primitive library is a closed set. The schedule compilers may only
// instantiate cells from this table for generated state (FSM registers,
// counters, select wires), so the evaluator and downstream code generators
// agree on exactly which prototypes exist.

// IsPrimitive reports whether name is a known primitive prototype.
func IsPrimitive(name string) bool {
	switch name {
	case "std_reg", "std_add", "std_sub", "std_lt", "std_gt", "std_eq", "std_ne", "std_wire":
		return true
	default:
		return false
	}
}

// NewPrimitive instantiates a primitive cell with the given width parameter.
func NewPrimitive(name, proto string, width int) (*Cell, error) {
	if width <= 0 {
		return nil, fmt.Errorf("primitive %s requires a positive width, got %d", proto, width)
	}
	cell := &Cell{Name: name, Prototype: proto, Param: width, CompRef: InvalidComponent}
	in := func(port string, w int) {
		cell.Ports = append(cell.Ports, &Port{Name: port, Width: w, Dir: Input, Cell: cell})
	}
	out := func(port string, w int) {
		cell.Ports = append(cell.Ports, &Port{Name: port, Width: w, Dir: Output, Cell: cell})
	}
	switch proto {
	case "std_reg":
		in("in", width)
		in("write_en", 1)
		in("clk", 1)
		in("reset", 1)
		out("out", width)
		done := &Port{Name: "done", Width: 1, Dir: Output, Role: RoleDone, Cell: cell}
		cell.Ports = append(cell.Ports, done)
	case "std_add", "std_sub":
		in("left", width)
		in("right", width)
		out("out", width)
	case "std_lt", "std_gt", "std_eq", "std_ne":
		in("left", width)
		in("right", width)
		out("out", 1)
	case "std_wire":
		in("in", width)
		out("out", width)
	default:
		return nil, fmt.Errorf("unknown primitive %q", proto)
	}
	return cell, nil
}

// NewInstance instantiates a sub-component cell whose ports mirror the
// component's signature.
func NewInstance(name string, id ComponentID, comp *Component, pos token.Pos) *Cell {
	cell := &Cell{Name: name, Prototype: comp.Name, CompRef: id, Source: pos}
	for _, sig := range comp.Ports {
		dir := sig.Dir
		cell.Ports = append(cell.Ports, &Port{
			Name:  sig.Name,
			Width: sig.Width,
			Dir:   dir,
			Role:  sig.Role,
			Cell:  cell,
		})
	}
	return cell
}

// AddGeneratedPrimitive mints a uniquely named primitive cell, marks it
// generated, and installs it in comp.
func AddGeneratedPrimitive(comp *Component, prefix, proto string, width int) (*Cell, error) {
	cell, err := NewPrimitive(comp.UniqueName(prefix), proto, width)
	if err != nil {
		return nil, err
	}
	cell.Generated = true
	if err := comp.AddCell(cell); err != nil {
		return nil, err
	}
	return cell, nil
}

// CounterWidth returns the register width needed to count the values
// 0..states-1 (at least one bit).
func CounterWidth(states int) int {
	if states <= 2 {
		return 1
	}
	return bits.Len(uint(states - 1))
}
