// Package ir defines the hardware intermediate representation: components
// built from cells, wired together by guarded assignments grouped into
// dynamic, static, and combinational groups, and orchestrated by a structured
// control tree. Passes in internal/passes mutate this model in place.
package ir

import (
	"fmt"
	"go/token"
)

// ComponentID is a stable index into a Context's component arena. Cells refer
// to sub-components by ID rather than by pointer so mutually recursive
// component definitions do not create ownership cycles.
type ComponentID int

// InvalidComponent marks a cell that does not instantiate a component.
const InvalidComponent ComponentID = -1

// Context owns every component of a compilation unit.
type Context struct {
	Components []*Component
	byName     map[string]ComponentID
}

// NewContext returns an empty component arena.
func NewContext() *Context {
	return &Context{byName: make(map[string]ComponentID)}
}

// AddComponent appends comp to the arena and returns its ID. Duplicate names
// are an error.
func (c *Context) AddComponent(comp *Component) (ComponentID, error) {
	if comp == nil {
		return InvalidComponent, fmt.Errorf("nil component")
	}
	if _, ok := c.byName[comp.Name]; ok {
		return InvalidComponent, fmt.Errorf("component %q defined twice", comp.Name)
	}
	id := ComponentID(len(c.Components))
	c.Components = append(c.Components, comp)
	c.byName[comp.Name] = id
	return id, nil
}

// Lookup resolves a component name to its ID.
func (c *Context) Lookup(name string) (ComponentID, bool) {
	id, ok := c.byName[name]
	return id, ok
}

// Component returns the component stored under id, or nil.
func (c *Context) Component(id ComponentID) *Component {
	if id < 0 || int(id) >= len(c.Components) {
		return nil
	}
	return c.Components[id]
}

// Entry returns the component named "main" when present, otherwise the first
// component.
func (c *Context) Entry() *Component {
	if id, ok := c.byName["main"]; ok {
		return c.Components[id]
	}
	if len(c.Components) > 0 {
		return c.Components[0]
	}
	return nil
}

// Direction tells whether a port is read from or written to the outside.
type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "out"
	}
	return "in"
}

// Role attaches interface meaning to a port.
type Role int

const (
	NoRole Role = iota
	RoleGo
	RoleDone
	RoleClk
	RoleReset
)

func (r Role) String() string {
	switch r {
	case RoleGo:
		return "go"
	case RoleDone:
		return "done"
	case RoleClk:
		return "clk"
	case RoleReset:
		return "reset"
	default:
		return "none"
	}
}

// Port is one wire endpoint. It is owned either by a cell, by a component
// signature (Cell == nil, Group == ""), or by a group as an implicit hole
// (Group != "").
type Port struct {
	Name   string
	Width  int
	Dir    Direction
	Role   Role
	Cell   *Cell  // owning cell, nil for signature ports and holes
	Group  string // owning group name when this port is a go/done hole
	Source token.Pos
}

// IsHole reports whether the port is a group's implicit go/done hole.
func (p *Port) IsHole() bool {
	return p != nil && p.Group != ""
}

// FullName renders the canonical dotted name used in diagnostics and dumps.
func (p *Port) FullName() string {
	if p == nil {
		return "<nil>"
	}
	if p.Group != "" {
		return fmt.Sprintf("%s[%s]", p.Group, p.Name)
	}
	if p.Cell != nil {
		return fmt.Sprintf("%s.%s", p.Cell.Name, p.Name)
	}
	return p.Name
}

// Cell instantiates a primitive or another component inside a component.
type Cell struct {
	Name      string
	Prototype string      // primitive name, or component name for instances
	Param     int         // primitive width parameter (0 when unused)
	CompRef   ComponentID // valid when the prototype is a component
	Reference bool        // borrowed from the caller instead of owned locally
	Generated bool        // introduced by a compiler pass
	Ports     []*Port
	Source    token.Pos
}

// Port finds a port of the cell by name.
func (c *Cell) Port(name string) *Port {
	for _, p := range c.Ports {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// IsComponentInstance reports whether the cell instantiates a component
// rather than a primitive.
func (c *Cell) IsComponentInstance() bool {
	return c != nil && c.CompRef != InvalidComponent
}

// Atom is a source operand of an assignment: either a port or a constant.
type Atom interface {
	Width() int
	atom()
}

// PortAtom reads a port.
type PortAtom struct {
	Port *Port
}

func (a *PortAtom) Width() int {
	if a.Port == nil {
		return 0
	}
	return a.Port.Width
}
func (*PortAtom) atom() {}

// ConstAtom is a literal bit vector of the given width.
type ConstAtom struct {
	Bits  int
	Value uint64
}

func (a *ConstAtom) Width() int { return a.Bits }
func (*ConstAtom) atom()        {}

// Assignment conditionally drives Dst from Src while Guard holds.
type Assignment struct {
	Dst    *Port
	Src    Atom
	Guard  Guard
	Source token.Pos
}

// NewAssignment builds an assignment with an always-true guard when g is nil.
func NewAssignment(dst *Port, src Atom, g Guard) *Assignment {
	if g == nil {
		g = True()
	}
	return &Assignment{Dst: dst, Src: src, Guard: g}
}

// Group is a named bag of assignments with an explicit go/done handshake.
// The two hole ports live in the group's own namespace; they become real
// wires only in the lowered encoding chosen by the schedule compilers.
type Group struct {
	Name        string
	Assignments []*Assignment
	Go          *Port
	Done        *Port
	Attributes  AttrSet
	Source      token.Pos
}

// NewGroup builds a dynamic group with fresh go/done holes.
func NewGroup(name string) *Group {
	g := &Group{Name: name, Attributes: AttrSet{}}
	g.Go = &Port{Name: "go", Width: 1, Dir: Input, Role: RoleGo, Group: name}
	g.Done = &Port{Name: "done", Width: 1, Dir: Output, Role: RoleDone, Group: name}
	return g
}

// DoneAssignments returns the assignments driving the group's done hole.
func (g *Group) DoneAssignments() []*Assignment {
	var out []*Assignment
	for _, a := range g.Assignments {
		if a.Dst == g.Done {
			out = append(out, a)
		}
	}
	return out
}

// StaticGroup is a bag of assignments scheduled purely by cycle position
// against an external counter; it has no handshake holes.
type StaticGroup struct {
	Name        string
	Latency     int
	Assignments []*Assignment
	Attributes  AttrSet
	Source      token.Pos
}

// CombGroup holds zero-latency assignments used to compute a condition in
// the same cycle it is read.
type CombGroup struct {
	Name        string
	Assignments []*Assignment
	Source      token.Pos
}

// Component is one hardware module: signature ports, owned cells, groups,
// continuous assignments, and a single control tree.
type Component struct {
	Name         string
	Ports        []*Port
	Cells        []*Cell
	Groups       []*Group
	StaticGroups []*StaticGroup
	CombGroups   []*CombGroup
	Continuous   []*Assignment
	Control      Control
	Attributes   AttrSet
	// Latency is the total proven cycle count when the component is fully
	// static; 0 means dynamic.
	Latency int
	Source  token.Pos

	nameSeq int
}

// NewComponent builds a component carrying the standard interface ports.
func NewComponent(name string) *Component {
	comp := &Component{
		Name:       name,
		Attributes: AttrSet{},
		Control:    &Empty{},
	}
	comp.Ports = []*Port{
		{Name: "go", Width: 1, Dir: Input, Role: RoleGo},
		{Name: "clk", Width: 1, Dir: Input, Role: RoleClk},
		{Name: "reset", Width: 1, Dir: Input, Role: RoleReset},
		{Name: "done", Width: 1, Dir: Output, Role: RoleDone},
	}
	return comp
}

// Port finds a signature port by name.
func (c *Component) Port(name string) *Port {
	for _, p := range c.Ports {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// GoPort returns the signature go port.
func (c *Component) GoPort() *Port { return c.rolePort(RoleGo) }

// DonePort returns the signature done port.
func (c *Component) DonePort() *Port { return c.rolePort(RoleDone) }

func (c *Component) rolePort(role Role) *Port {
	for _, p := range c.Ports {
		if p.Role == role {
			return p
		}
	}
	return nil
}

// Cell finds an owned cell by name.
func (c *Component) Cell(name string) *Cell {
	for _, cell := range c.Cells {
		if cell.Name == name {
			return cell
		}
	}
	return nil
}

// Group finds an owned dynamic group by name.
func (c *Component) Group(name string) *Group {
	for _, g := range c.Groups {
		if g.Name == name {
			return g
		}
	}
	return nil
}

// StaticGroup finds an owned static group by name.
func (c *Component) StaticGroup(name string) *StaticGroup {
	for _, g := range c.StaticGroups {
		if g.Name == name {
			return g
		}
	}
	return nil
}

// CombGroup finds an owned combinational group by name.
func (c *Component) CombGroup(name string) *CombGroup {
	for _, g := range c.CombGroups {
		if g.Name == name {
			return g
		}
	}
	return nil
}

// AddCell appends a cell, failing on duplicate names.
func (c *Component) AddCell(cell *Cell) error {
	if c.Cell(cell.Name) != nil {
		return fmt.Errorf("cell %q defined twice in component %s", cell.Name, c.Name)
	}
	c.Cells = append(c.Cells, cell)
	return nil
}

// UniqueName mints a fresh cell/group name with the given prefix. Generated
// cells and groups use this so repeated compilation never collides.
func (c *Component) UniqueName(prefix string) string {
	for {
		name := fmt.Sprintf("%s%d", prefix, c.nameSeq)
		c.nameSeq++
		if c.Cell(name) == nil && c.Group(name) == nil && c.StaticGroup(name) == nil && c.CombGroup(name) == nil {
			return name
		}
	}
}

// RemoveGroup drops a dynamic group by name. Control nodes referencing it
// must already have been rewritten.
func (c *Component) RemoveGroup(name string) {
	for i, g := range c.Groups {
		if g.Name == name {
			c.Groups = append(c.Groups[:i], c.Groups[i+1:]...)
			return
		}
	}
}

// RemoveStaticGroup drops a static group by name.
func (c *Component) RemoveStaticGroup(name string) {
	for i, g := range c.StaticGroups {
		if g.Name == name {
			c.StaticGroups = append(c.StaticGroups[:i], c.StaticGroups[i+1:]...)
			return
		}
	}
}

// WriteSet returns the distinct non-hole destination ports of assigns.
func WriteSet(assigns []*Assignment) []*Port {
	seen := make(map[*Port]bool)
	var out []*Port
	for _, a := range assigns {
		if a.Dst == nil || a.Dst.IsHole() || seen[a.Dst] {
			continue
		}
		seen[a.Dst] = true
		out = append(out, a.Dst)
	}
	return out
}

// ReadSet returns the distinct ports read by assigns, including guard reads.
func ReadSet(assigns []*Assignment) []*Port {
	seen := make(map[*Port]bool)
	var out []*Port
	add := func(p *Port) {
		if p == nil || seen[p] {
			return
		}
		seen[p] = true
		out = append(out, p)
	}
	for _, a := range assigns {
		if pa, ok := a.Src.(*PortAtom); ok {
			add(pa.Port)
		}
		for _, p := range GuardPorts(a.Guard) {
			add(p)
		}
	}
	return out
}

// RewriteDst redirects every assignment in assigns writing to old so it
// writes to new instead. Used when inlining one structure into another.
func RewriteDst(assigns []*Assignment, old, new *Port) {
	for _, a := range assigns {
		if a.Dst == old {
			a.Dst = new
		}
	}
}
