package ir

import "go/token"

// Control is the structured program a component executes: a tagged union
// with one variant per node kind. Every traversal in the compiler switches
// exhaustively over these variants so a new node kind is a compile-time
// obligation, not a runtime surprise.
type Control interface {
	control()
	// Attrs exposes the node's attribute set for inference bookkeeping.
	Attrs() *AttrSet
	// Pos returns the node's source position for diagnostics.
	Pos() token.Pos
}

// Empty is the do-nothing control node (latency 0).
type Empty struct {
	Attributes AttrSet
	Source     token.Pos
}

// Enable runs one dynamic group to completion.
type Enable struct {
	Group      *Group
	Attributes AttrSet
	Source     token.Pos
}

// StaticEnable runs one static group for its fixed latency.
type StaticEnable struct {
	Group      *StaticGroup
	Attributes AttrSet
	Source     token.Pos
}

// Binding connects an invoked cell's port to a caller-supplied atom.
type Binding struct {
	Port *Port
	Src  Atom
}

// RefBinding supplies a caller cell for a reference cell of the invoked
// component.
type RefBinding struct {
	Name string // reference cell name inside the invoked component
	Cell *Cell  // caller-owned cell standing in for it
}

// Invoke activates a sub-component instance through its go/done interface.
// Outputs route results back to caller-owned ports while the invoke is
// active; they are populated when reference cells are compiled away.
type Invoke struct {
	Cell       *Cell
	Inputs     []Binding
	Outputs    []Binding
	Refs       []RefBinding
	Attributes AttrSet
	Source     token.Pos
}

// StaticInvoke activates a fully static sub-component positionally.
type StaticInvoke struct {
	Cell       *Cell
	Inputs     []Binding
	Outputs    []Binding
	Refs       []RefBinding
	Latency    int
	Attributes AttrSet
	Source     token.Pos
}

// Seq runs children strictly one after another.
type Seq struct {
	Children   []Control
	Attributes AttrSet
	Source     token.Pos
}

// StaticSeq is a Seq whose total latency is proven.
type StaticSeq struct {
	Children   []Control
	Latency    int
	Attributes AttrSet
	Source     token.Pos
}

// Par runs children in the same cycles and waits for all of them.
type Par struct {
	Children   []Control
	Attributes AttrSet
	Source     token.Pos
}

// StaticPar is a Par whose latency (max of children) is proven.
type StaticPar struct {
	Children   []Control
	Latency    int
	Attributes AttrSet
	Source     token.Pos
}

// If selects a branch on a 1-bit condition port, optionally computed by a
// combinational group in the decision cycle.
type If struct {
	Cond       *Port
	With       *CombGroup
	Then, Else Control
	Attributes AttrSet
	Source     token.Pos
}

// StaticIf is an If whose branches have equal proven latency; the condition
// is sampled once at entry.
type StaticIf struct {
	Cond       *Port
	Then, Else Control
	Latency    int
	Attributes AttrSet
	Source     token.Pos
}

// While re-samples a 1-bit condition port before each iteration of its body.
type While struct {
	Cond       *Port
	With       *CombGroup
	Body       Control
	Attributes AttrSet
	Source     token.Pos
}

// Repeat runs its body a fixed number of times.
type Repeat struct {
	Count      int
	Body       Control
	Attributes AttrSet
	Source     token.Pos
}

// StaticRepeat is a Repeat with a proven per-iteration latency.
type StaticRepeat struct {
	Count      int
	Body       Control
	Latency    int
	Attributes AttrSet
	Source     token.Pos
}

func (*Empty) control()        {}
func (*Enable) control()       {}
func (*StaticEnable) control() {}
func (*Invoke) control()       {}
func (*StaticInvoke) control() {}
func (*Seq) control()          {}
func (*StaticSeq) control()    {}
func (*Par) control()          {}
func (*StaticPar) control()    {}
func (*If) control()           {}
func (*StaticIf) control()     {}
func (*While) control()        {}
func (*Repeat) control()       {}
func (*StaticRepeat) control() {}

func (n *Empty) Attrs() *AttrSet        { return &n.Attributes }
func (n *Enable) Attrs() *AttrSet       { return &n.Attributes }
func (n *StaticEnable) Attrs() *AttrSet { return &n.Attributes }
func (n *Invoke) Attrs() *AttrSet       { return &n.Attributes }
func (n *StaticInvoke) Attrs() *AttrSet { return &n.Attributes }
func (n *Seq) Attrs() *AttrSet          { return &n.Attributes }
func (n *StaticSeq) Attrs() *AttrSet    { return &n.Attributes }
func (n *Par) Attrs() *AttrSet          { return &n.Attributes }
func (n *StaticPar) Attrs() *AttrSet    { return &n.Attributes }
func (n *If) Attrs() *AttrSet           { return &n.Attributes }
func (n *StaticIf) Attrs() *AttrSet     { return &n.Attributes }
func (n *While) Attrs() *AttrSet        { return &n.Attributes }
func (n *Repeat) Attrs() *AttrSet       { return &n.Attributes }
func (n *StaticRepeat) Attrs() *AttrSet { return &n.Attributes }

func (n *Empty) Pos() token.Pos        { return n.Source }
func (n *Enable) Pos() token.Pos       { return n.Source }
func (n *StaticEnable) Pos() token.Pos { return n.Source }
func (n *Invoke) Pos() token.Pos       { return n.Source }
func (n *StaticInvoke) Pos() token.Pos { return n.Source }
func (n *Seq) Pos() token.Pos          { return n.Source }
func (n *StaticSeq) Pos() token.Pos    { return n.Source }
func (n *Par) Pos() token.Pos          { return n.Source }
func (n *StaticPar) Pos() token.Pos    { return n.Source }
func (n *If) Pos() token.Pos           { return n.Source }
func (n *StaticIf) Pos() token.Pos     { return n.Source }
func (n *While) Pos() token.Pos        { return n.Source }
func (n *Repeat) Pos() token.Pos       { return n.Source }
func (n *StaticRepeat) Pos() token.Pos { return n.Source }

// Children returns the direct sub-nodes of n in execution order.
func Children(n Control) []Control {
	switch v := n.(type) {
	case *Seq:
		return v.Children
	case *StaticSeq:
		return v.Children
	case *Par:
		return v.Children
	case *StaticPar:
		return v.Children
	case *If:
		return []Control{v.Then, v.Else}
	case *StaticIf:
		return []Control{v.Then, v.Else}
	case *While:
		return []Control{v.Body}
	case *Repeat:
		return []Control{v.Body}
	case *StaticRepeat:
		return []Control{v.Body}
	default:
		return nil
	}
}

// RewriteControl replaces sub-nodes bottom-up: f sees every node after its
// children were rewritten and returns the node to put in its place.
func RewriteControl(n Control, f func(Control) Control) Control {
	switch v := n.(type) {
	case *Seq:
		for i, c := range v.Children {
			v.Children[i] = RewriteControl(c, f)
		}
	case *StaticSeq:
		for i, c := range v.Children {
			v.Children[i] = RewriteControl(c, f)
		}
	case *Par:
		for i, c := range v.Children {
			v.Children[i] = RewriteControl(c, f)
		}
	case *StaticPar:
		for i, c := range v.Children {
			v.Children[i] = RewriteControl(c, f)
		}
	case *If:
		v.Then = RewriteControl(v.Then, f)
		v.Else = RewriteControl(v.Else, f)
	case *StaticIf:
		v.Then = RewriteControl(v.Then, f)
		v.Else = RewriteControl(v.Else, f)
	case *While:
		v.Body = RewriteControl(v.Body, f)
	case *Repeat:
		v.Body = RewriteControl(v.Body, f)
	case *StaticRepeat:
		v.Body = RewriteControl(v.Body, f)
	}
	return f(n)
}

// WalkControl visits every node of the tree preorder.
func WalkControl(n Control, visit func(Control)) {
	visit(n)
	for _, c := range Children(n) {
		WalkControl(c, visit)
	}
}

// StaticLatency returns the proven latency of a node and whether the node is
// a static variant at all. Empty is static with latency 0.
func StaticLatency(n Control) (int, bool) {
	switch v := n.(type) {
	case *Empty:
		return 0, true
	case *StaticEnable:
		return v.Group.Latency, true
	case *StaticInvoke:
		return v.Latency, true
	case *StaticSeq:
		return v.Latency, true
	case *StaticPar:
		return v.Latency, true
	case *StaticIf:
		return v.Latency, true
	case *StaticRepeat:
		return v.Count * v.Latency, true
	default:
		return 0, false
	}
}

// IsStatic reports whether the node is a static variant.
func IsStatic(n Control) bool {
	_, ok := StaticLatency(n)
	return ok
}
