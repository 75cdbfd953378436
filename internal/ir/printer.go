package ir

import (
	"fmt"
	"io"
	"strings"
)

// Dump writes a human-readable rendering of every component. The output uses
// the same surface syntax the frontend accepts, so compiled designs remain
// inspectable with the tools used for the input.
func Dump(ctx *Context, w io.Writer) {
	if ctx == nil {
		fmt.Fprintln(w, "<nil context>")
		return
	}
	for i, comp := range ctx.Components {
		if i > 0 {
			fmt.Fprintln(w)
		}
		dumpComponent(comp, w)
	}
}

func dumpComponent(comp *Component, w io.Writer) {
	var ins, outs []string
	for _, p := range comp.Ports {
		if p.Role != NoRole {
			continue
		}
		decl := fmt.Sprintf("%s: %d", p.Name, p.Width)
		if p.Dir == Output {
			outs = append(outs, decl)
		} else {
			ins = append(ins, decl)
		}
	}
	sig := "(" + strings.Join(ins, ", ") + ")"
	if len(outs) > 0 {
		sig += " -> (" + strings.Join(outs, ", ") + ")"
	}
	fmt.Fprintf(w, "component %s%s%s {\n", comp.Name, sig, attrSuffix(comp.Attributes, comp.Latency))
	dumpCells(comp, w)
	dumpWires(comp, w)
	fmt.Fprintln(w, "  control {")
	dumpControl(comp.Control, w, 2)
	fmt.Fprintln(w, "  }")
	fmt.Fprintln(w, "}")
}

func attrSuffix(attrs AttrSet, latency int) string {
	var parts []string
	if latency > 0 {
		parts = append(parts, fmt.Sprintf("static<%d>", latency))
	}
	if attrs.Has(AttrPromoted) {
		parts = append(parts, "@promoted")
	}
	if n, ok := attrs.Get(AttrPromotable); ok {
		parts = append(parts, fmt.Sprintf("@promotable(%d)", n))
	}
	if len(parts) == 0 {
		return ""
	}
	return " " + strings.Join(parts, " ")
}

func dumpCells(comp *Component, w io.Writer) {
	if len(comp.Cells) == 0 {
		return
	}
	fmt.Fprintln(w, "  cells {")
	for _, cell := range comp.Cells {
		marks := ""
		if cell.Reference {
			marks = "@ref "
		}
		if cell.Generated {
			marks += "@generated "
		}
		if cell.IsComponentInstance() {
			fmt.Fprintf(w, "    %s%s = %s;\n", marks, cell.Name, cell.Prototype)
			continue
		}
		fmt.Fprintf(w, "    %s%s = %s(%d);\n", marks, cell.Name, cell.Prototype, cell.Param)
	}
	fmt.Fprintln(w, "  }")
}

func dumpWires(comp *Component, w io.Writer) {
	fmt.Fprintln(w, "  wires {")
	for _, g := range comp.Groups {
		fmt.Fprintf(w, "    group %s {\n", g.Name)
		for _, a := range g.Assignments {
			fmt.Fprintf(w, "      %s;\n", AssignmentString(a))
		}
		fmt.Fprintln(w, "    }")
	}
	for _, g := range comp.StaticGroups {
		fmt.Fprintf(w, "    static<%d> group %s {\n", g.Latency, g.Name)
		for _, a := range g.Assignments {
			fmt.Fprintf(w, "      %s;\n", AssignmentString(a))
		}
		fmt.Fprintln(w, "    }")
	}
	for _, g := range comp.CombGroups {
		fmt.Fprintf(w, "    comb group %s {\n", g.Name)
		for _, a := range g.Assignments {
			fmt.Fprintf(w, "      %s;\n", AssignmentString(a))
		}
		fmt.Fprintln(w, "    }")
	}
	for _, a := range comp.Continuous {
		fmt.Fprintf(w, "    %s;\n", AssignmentString(a))
	}
	fmt.Fprintln(w, "  }")
}

func dumpControl(n Control, w io.Writer, depth int) {
	pad := strings.Repeat("  ", depth)
	switch v := n.(type) {
	case *Empty:
		// Nothing to print.
	case *Enable:
		fmt.Fprintf(w, "%s%s;\n", pad, v.Group.Name)
	case *StaticEnable:
		fmt.Fprintf(w, "%s%s; // static<%d>\n", pad, v.Group.Name, v.Group.Latency)
	case *Invoke:
		fmt.Fprintf(w, "%sinvoke %s(%s);\n", pad, v.Cell.Name, bindingString(v.Inputs))
	case *StaticInvoke:
		fmt.Fprintf(w, "%sinvoke %s(%s); // static<%d>\n", pad, v.Cell.Name, bindingString(v.Inputs), v.Latency)
	case *Seq:
		fmt.Fprintf(w, "%sseq {\n", pad)
		for _, c := range v.Children {
			dumpControl(c, w, depth+1)
		}
		fmt.Fprintf(w, "%s}\n", pad)
	case *StaticSeq:
		fmt.Fprintf(w, "%sstatic<%d> seq {\n", pad, v.Latency)
		for _, c := range v.Children {
			dumpControl(c, w, depth+1)
		}
		fmt.Fprintf(w, "%s}\n", pad)
	case *Par:
		fmt.Fprintf(w, "%spar {\n", pad)
		for _, c := range v.Children {
			dumpControl(c, w, depth+1)
		}
		fmt.Fprintf(w, "%s}\n", pad)
	case *StaticPar:
		fmt.Fprintf(w, "%sstatic<%d> par {\n", pad, v.Latency)
		for _, c := range v.Children {
			dumpControl(c, w, depth+1)
		}
		fmt.Fprintf(w, "%s}\n", pad)
	case *If:
		fmt.Fprintf(w, "%sif %s%s {\n", pad, v.Cond.FullName(), withClause(v.With))
		dumpControl(v.Then, w, depth+1)
		if _, empty := v.Else.(*Empty); !empty {
			fmt.Fprintf(w, "%s} else {\n", pad)
			dumpControl(v.Else, w, depth+1)
		}
		fmt.Fprintf(w, "%s}\n", pad)
	case *StaticIf:
		fmt.Fprintf(w, "%sstatic<%d> if %s {\n", pad, v.Latency, v.Cond.FullName())
		dumpControl(v.Then, w, depth+1)
		if _, empty := v.Else.(*Empty); !empty {
			fmt.Fprintf(w, "%s} else {\n", pad)
			dumpControl(v.Else, w, depth+1)
		}
		fmt.Fprintf(w, "%s}\n", pad)
	case *While:
		bound := ""
		if n, ok := v.Attributes.Get(AttrBound); ok {
			bound = fmt.Sprintf("@bound(%d) ", n)
		}
		fmt.Fprintf(w, "%s%swhile %s%s {\n", pad, bound, v.Cond.FullName(), withClause(v.With))
		dumpControl(v.Body, w, depth+1)
		fmt.Fprintf(w, "%s}\n", pad)
	case *Repeat:
		fmt.Fprintf(w, "%srepeat %d {\n", pad, v.Count)
		dumpControl(v.Body, w, depth+1)
		fmt.Fprintf(w, "%s}\n", pad)
	case *StaticRepeat:
		fmt.Fprintf(w, "%sstatic repeat %d { // %d cycles each\n", pad, v.Count, v.Latency)
		dumpControl(v.Body, w, depth+1)
		fmt.Fprintf(w, "%s}\n", pad)
	default:
		fmt.Fprintf(w, "%s<unknown control %T>\n", pad, n)
	}
}

func withClause(g *CombGroup) string {
	if g == nil {
		return ""
	}
	return " with " + g.Name
}

func bindingString(bindings []Binding) string {
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		parts = append(parts, fmt.Sprintf("%s = %s", b.Port.Name, AtomString(b.Src)))
	}
	return strings.Join(parts, ", ")
}
