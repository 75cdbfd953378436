// Package frontend turns the textual hardware description into the in-memory
// IR. The grammar mirrors what internal/ir's printer emits, so dumped designs
// stay readable by the same tooling.
package frontend

import (
	"fmt"
	"go/token"
	"os"

	"silica/internal/diag"
	"silica/internal/ir"
)

// Parse builds a component arena from src. Components must be defined before
// they are instantiated. Parse errors are returned; semantic issues found
// while building the model go through the reporter as well.
func Parse(fset *token.FileSet, filename string, src []byte, reporter *diag.Reporter) (*ir.Context, error) {
	file := fset.AddFile(filename, -1, len(src))
	p := &parser{
		lx:       newLexer(file, src),
		reporter: reporter,
		ctx:      ir.NewContext(),
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	for p.tok.kind != tokEOF {
		if err := p.parseComponent(); err != nil {
			return nil, err
		}
	}
	if len(p.ctx.Components) == 0 {
		return nil, fmt.Errorf("%s contains no components", filename)
	}
	return p.ctx, nil
}

// ParseFile reads and parses one source file.
func ParseFile(fset *token.FileSet, path string, reporter *diag.Reporter) (*ir.Context, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(fset, path, src, reporter)
}

type parser struct {
	lx       *lexer
	tok      lexToken
	reporter *diag.Reporter
	ctx      *ir.Context
	comp     *ir.Component
}

func (p *parser) advance() error {
	tok, err := p.lx.next()
	if err != nil {
		return fmt.Errorf("lex error: %w", err)
	}
	p.tok = tok
	return nil
}

func (p *parser) expect(kind tokenKind, what string) (lexToken, error) {
	if p.tok.kind != kind {
		return lexToken{}, p.errHere("expected %s", what)
	}
	tok := p.tok
	return tok, p.advance()
}

func (p *parser) expectIdent(what string) (lexToken, error) {
	return p.expect(tokIdent, what)
}

func (p *parser) expectKeyword(kw string) error {
	if p.tok.kind != tokIdent || p.tok.text != kw {
		return p.errHere("expected %q", kw)
	}
	return p.advance()
}

func (p *parser) atKeyword(kw string) bool {
	return p.tok.kind == tokIdent && p.tok.text == kw
}

func (p *parser) errHere(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if p.reporter != nil {
		p.reporter.Error(p.tok.pos, msg)
	}
	return fmt.Errorf("parse: %s", msg)
}

// parseAttrs reads a possibly empty run of @name or @name(payload) markers.
func (p *parser) parseAttrs() (ir.AttrSet, error) {
	attrs := ir.AttrSet{}
	for p.tok.kind == tokAt {
		if err := p.advance(); err != nil {
			return nil, err
		}
		name, err := p.expectIdent("attribute name")
		if err != nil {
			return nil, err
		}
		if name.text == "ref" {
			// @ref is positional syntax for reference cells, stored on the
			// cell itself rather than in the attribute set.
			attrs[refMarker] = 1
			continue
		}
		kind, err := ir.ParseAttrKind(name.text)
		if err != nil {
			return nil, p.errHere("%v", err)
		}
		payload := 1
		if p.tok.kind == tokLParen {
			if err := p.advance(); err != nil {
				return nil, err
			}
			num, err := p.expect(tokNumber, "attribute payload")
			if err != nil {
				return nil, err
			}
			payload = num.num
			if _, err := p.expect(tokRParen, ")"); err != nil {
				return nil, err
			}
		}
		attrs[kind] = payload
	}
	return attrs, nil
}

// refMarker is a parser-private sentinel; it never reaches the IR.
const refMarker ir.AttrKind = -1

func takeRef(attrs ir.AttrSet) bool {
	if attrs.Has(refMarker) {
		attrs.Clear(refMarker)
		return true
	}
	return false
}

func (p *parser) parseComponent() error {
	attrs, err := p.parseAttrs()
	if err != nil {
		return err
	}
	pos := p.tok.pos
	if err := p.expectKeyword("component"); err != nil {
		return err
	}
	name, err := p.expectIdent("component name")
	if err != nil {
		return err
	}
	comp := ir.NewComponent(name.text)
	comp.Source = pos
	comp.Attributes = attrs
	if n, ok := attrs.Get(ir.AttrStatic); ok {
		comp.Latency = n
	}
	p.comp = comp

	if _, err := p.expect(tokLParen, "("); err != nil {
		return err
	}
	if err := p.parseSignaturePorts(ir.Input); err != nil {
		return err
	}
	if _, err := p.expect(tokRParen, ")"); err != nil {
		return err
	}
	if p.tok.kind == tokArrow {
		if err := p.advance(); err != nil {
			return err
		}
		if _, err := p.expect(tokLParen, "("); err != nil {
			return err
		}
		if err := p.parseSignaturePorts(ir.Output); err != nil {
			return err
		}
		if _, err := p.expect(tokRParen, ")"); err != nil {
			return err
		}
	}
	if _, err := p.expect(tokLBrace, "{"); err != nil {
		return err
	}
	for p.tok.kind != tokRBrace {
		switch {
		case p.atKeyword("cells"):
			if err := p.parseCells(); err != nil {
				return err
			}
		case p.atKeyword("wires"):
			if err := p.parseWires(); err != nil {
				return err
			}
		case p.atKeyword("control"):
			if err := p.parseControl(); err != nil {
				return err
			}
		default:
			return p.errHere("expected cells, wires, or control section")
		}
	}
	if err := p.advance(); err != nil { // consume }
		return err
	}
	if _, err := p.ctx.AddComponent(comp); err != nil {
		return p.errHere("%v", err)
	}
	return nil
}

func (p *parser) parseSignaturePorts(dir ir.Direction) error {
	for p.tok.kind == tokIdent {
		name := p.tok
		if err := p.advance(); err != nil {
			return err
		}
		if _, err := p.expect(tokColon, ":"); err != nil {
			return err
		}
		width, err := p.expect(tokNumber, "port width")
		if err != nil {
			return err
		}
		if p.comp.Port(name.text) != nil {
			return p.errHere("port %q collides with an existing signature port", name.text)
		}
		p.comp.Ports = append(p.comp.Ports, &ir.Port{
			Name:   name.text,
			Width:  width.num,
			Dir:    dir,
			Source: name.pos,
		})
		if p.tok.kind != tokComma {
			break
		}
		if err := p.advance(); err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) parseCells() error {
	if err := p.advance(); err != nil { // consume "cells"
		return err
	}
	if _, err := p.expect(tokLBrace, "{"); err != nil {
		return err
	}
	for p.tok.kind != tokRBrace {
		attrs, err := p.parseAttrs()
		if err != nil {
			return err
		}
		isRef := takeRef(attrs)
		name, err := p.expectIdent("cell name")
		if err != nil {
			return err
		}
		if _, err := p.expect(tokEq, "="); err != nil {
			return err
		}
		proto, err := p.expectIdent("cell prototype")
		if err != nil {
			return err
		}
		var cell *ir.Cell
		if p.tok.kind == tokLParen {
			if err := p.advance(); err != nil {
				return err
			}
			width, err := p.expect(tokNumber, "primitive width")
			if err != nil {
				return err
			}
			if _, err := p.expect(tokRParen, ")"); err != nil {
				return err
			}
			if !ir.IsPrimitive(proto.text) {
				return p.errHere("unknown primitive %q", proto.text)
			}
			cell, err = ir.NewPrimitive(name.text, proto.text, width.num)
			if err != nil {
				return p.errHere("%v", err)
			}
		} else {
			id, ok := p.ctx.Lookup(proto.text)
			if !ok {
				return p.errHere("component %q is not defined (components must be defined before use)", proto.text)
			}
			cell = ir.NewInstance(name.text, id, p.ctx.Component(id), name.pos)
		}
		cell.Reference = isRef
		cell.Source = name.pos
		if err := p.comp.AddCell(cell); err != nil {
			return p.errHere("%v", err)
		}
		if _, err := p.expect(tokSemi, ";"); err != nil {
			return err
		}
	}
	return p.advance() // consume }
}

func (p *parser) parseWires() error {
	if err := p.advance(); err != nil { // consume "wires"
		return err
	}
	if _, err := p.expect(tokLBrace, "{"); err != nil {
		return err
	}
	for p.tok.kind != tokRBrace {
		attrs, err := p.parseAttrs()
		if err != nil {
			return err
		}
		switch {
		case p.atKeyword("group"):
			if err := p.parseGroup(attrs); err != nil {
				return err
			}
		case p.atKeyword("static"):
			if err := p.parseStaticGroup(attrs); err != nil {
				return err
			}
		case p.atKeyword("comb"):
			if err := p.parseCombGroup(); err != nil {
				return err
			}
		default:
			a, err := p.parseAssignment()
			if err != nil {
				return err
			}
			p.comp.Continuous = append(p.comp.Continuous, a)
		}
	}
	return p.advance()
}

func (p *parser) parseGroup(attrs ir.AttrSet) error {
	if err := p.advance(); err != nil { // consume "group"
		return err
	}
	name, err := p.expectIdent("group name")
	if err != nil {
		return err
	}
	g := ir.NewGroup(name.text)
	g.Source = name.pos
	g.Attributes = attrs
	// Register before parsing the body so the group's own holes resolve.
	p.comp.Groups = append(p.comp.Groups, g)
	if _, err := p.expect(tokLBrace, "{"); err != nil {
		return err
	}
	for p.tok.kind != tokRBrace {
		a, err := p.parseAssignment()
		if err != nil {
			return err
		}
		g.Assignments = append(g.Assignments, a)
	}
	return p.advance()
}

func (p *parser) parseStaticGroup(attrs ir.AttrSet) error {
	if err := p.advance(); err != nil { // consume "static"
		return err
	}
	if _, err := p.expect(tokLt, "<"); err != nil {
		return err
	}
	latency, err := p.expect(tokNumber, "static latency")
	if err != nil {
		return err
	}
	if _, err := p.expect(tokGt, ">"); err != nil {
		return err
	}
	if err := p.expectKeyword("group"); err != nil {
		return err
	}
	name, err := p.expectIdent("group name")
	if err != nil {
		return err
	}
	if latency.num < 1 {
		return p.errHere("static group %s declares latency %d; the minimum is 1", name.text, latency.num)
	}
	g := &ir.StaticGroup{Name: name.text, Latency: latency.num, Attributes: attrs, Source: name.pos}
	p.comp.StaticGroups = append(p.comp.StaticGroups, g)
	if _, err := p.expect(tokLBrace, "{"); err != nil {
		return err
	}
	for p.tok.kind != tokRBrace {
		a, err := p.parseAssignment()
		if err != nil {
			return err
		}
		g.Assignments = append(g.Assignments, a)
	}
	return p.advance()
}

func (p *parser) parseCombGroup() error {
	if err := p.advance(); err != nil { // consume "comb"
		return err
	}
	if err := p.expectKeyword("group"); err != nil {
		return err
	}
	name, err := p.expectIdent("group name")
	if err != nil {
		return err
	}
	g := &ir.CombGroup{Name: name.text, Source: name.pos}
	p.comp.CombGroups = append(p.comp.CombGroups, g)
	if _, err := p.expect(tokLBrace, "{"); err != nil {
		return err
	}
	for p.tok.kind != tokRBrace {
		a, err := p.parseAssignment()
		if err != nil {
			return err
		}
		g.Assignments = append(g.Assignments, a)
	}
	return p.advance()
}

// parseAssignment reads `dst = [guard ?] src ;`. Groups register themselves
// before their body parses, so a group's own holes resolve inside it.
func (p *parser) parseAssignment() (*ir.Assignment, error) {
	pos := p.tok.pos
	dst, err := p.parsePortRef()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokEq, "="); err != nil {
		return nil, err
	}
	guard, atom, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	var src ir.Atom
	if p.tok.kind == tokQuestion {
		if guard == nil {
			return nil, p.errHere("left side of ? is not a guard")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		_, src, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
		if src == nil {
			return nil, p.errHere("expected a port or constant after ?")
		}
	} else {
		if atom == nil {
			return nil, p.errHere("expected a port or constant source")
		}
		src = atom
		guard = ir.True()
	}
	if _, err := p.expect(tokSemi, ";"); err != nil {
		return nil, err
	}
	a := ir.NewAssignment(dst, src, guard)
	a.Source = pos

	return a, nil
}

// parsePortRef resolves cell.port, group[hole], or a bare signature port.
func (p *parser) parsePortRef() (*ir.Port, error) {
	name, err := p.expectIdent("port reference")
	if err != nil {
		return nil, err
	}
	switch p.tok.kind {
	case tokDot:
		if err := p.advance(); err != nil {
			return nil, err
		}
		portName, err := p.expectIdent("port name")
		if err != nil {
			return nil, err
		}
		cell := p.comp.Cell(name.text)
		if cell == nil {
			return nil, p.errHere("unknown cell %q", name.text)
		}
		port := cell.Port(portName.text)
		if port == nil {
			return nil, p.errHere("cell %s has no port %q", name.text, portName.text)
		}
		return port, nil
	case tokLBracket:
		if err := p.advance(); err != nil {
			return nil, err
		}
		holeName, err := p.expectIdent("hole name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRBracket, "]"); err != nil {
			return nil, err
		}
		g := p.comp.Group(name.text)
		if g == nil {
			return nil, p.errHere("unknown group %q", name.text)
		}
		switch holeName.text {
		case "go":
			return g.Go, nil
		case "done":
			return g.Done, nil
		default:
			return nil, p.errHere("group holes are go and done, not %q", holeName.text)
		}
	default:
		port := p.comp.Port(name.text)
		if port == nil {
			return nil, p.errHere("unknown signature port %q", name.text)
		}
		return port, nil
	}
}

// parseExpr reads a guard-or-atom expression. When the expression is a bare
// port or constant, both views are returned; operators force it into a guard.
func (p *parser) parseExpr() (ir.Guard, ir.Atom, error) {
	guard, atom, err := p.parseAnd()
	if err != nil {
		return nil, nil, err
	}
	for p.tok.kind == tokPipe {
		if err := p.advance(); err != nil {
			return nil, nil, err
		}
		right, _, err := p.parseAnd()
		if err != nil {
			return nil, nil, err
		}
		if guard == nil || right == nil {
			return nil, nil, p.errHere("| requires boolean operands")
		}
		guard = ir.Or(guard, right)
		atom = nil
	}
	return guard, atom, nil
}

func (p *parser) parseAnd() (ir.Guard, ir.Atom, error) {
	guard, atom, err := p.parseUnary()
	if err != nil {
		return nil, nil, err
	}
	for p.tok.kind == tokAmp {
		if err := p.advance(); err != nil {
			return nil, nil, err
		}
		right, _, err := p.parseUnary()
		if err != nil {
			return nil, nil, err
		}
		if guard == nil || right == nil {
			return nil, nil, p.errHere("& requires boolean operands")
		}
		guard = ir.And(guard, right)
		atom = nil
	}
	return guard, atom, nil
}

func (p *parser) parseUnary() (ir.Guard, ir.Atom, error) {
	if p.tok.kind == tokBang {
		if err := p.advance(); err != nil {
			return nil, nil, err
		}
		guard, _, err := p.parseUnary()
		if err != nil {
			return nil, nil, err
		}
		if guard == nil {
			return nil, nil, p.errHere("! requires a boolean operand")
		}
		return ir.Not(guard), nil, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (ir.Guard, ir.Atom, error) {
	switch p.tok.kind {
	case tokLParen:
		if err := p.advance(); err != nil {
			return nil, nil, err
		}
		guard, atom, err := p.parseExpr()
		if err != nil {
			return nil, nil, err
		}
		if _, err := p.expect(tokRParen, ")"); err != nil {
			return nil, nil, err
		}
		return guard, atom, nil
	case tokPercent:
		return p.parseCycleGuard()
	case tokConst:
		c := &ir.ConstAtom{Bits: p.tok.width, Value: p.tok.value}
		if err := p.advance(); err != nil {
			return nil, nil, err
		}
		return p.maybeComparison(nil, c)
	case tokIdent:
		if p.tok.text == "true" {
			if err := p.advance(); err != nil {
				return nil, nil, err
			}
			return ir.True(), nil, nil
		}
		port, err := p.parsePortRef()
		if err != nil {
			return nil, nil, err
		}
		return p.maybeComparison(ir.PortG(port), &ir.PortAtom{Port: port})
	default:
		return nil, nil, p.errHere("expected a guard or source expression")
	}
}

func (p *parser) maybeComparison(guard ir.Guard, atom ir.Atom) (ir.Guard, ir.Atom, error) {
	var op ir.CmpOp
	switch p.tok.kind {
	case tokCmpEq:
		op = ir.CmpEq
	case tokCmpNe:
		op = ir.CmpNeq
	case tokLt:
		op = ir.CmpLt
	case tokGt:
		op = ir.CmpGt
	case tokCmpLe:
		op = ir.CmpLe
	case tokCmpGe:
		op = ir.CmpGe
	default:
		return guard, atom, nil
	}
	if err := p.advance(); err != nil {
		return nil, nil, err
	}
	_, right, err := p.parsePrimary()
	if err != nil {
		return nil, nil, err
	}
	if atom == nil || right == nil {
		return nil, nil, p.errHere("comparison operands must be ports or constants")
	}
	return &ir.CmpGuard{Op: op, Left: atom, Right: right}, nil, nil
}

func (p *parser) parseCycleGuard() (ir.Guard, ir.Atom, error) {
	if err := p.advance(); err != nil { // consume %
		return nil, nil, err
	}
	if p.tok.kind == tokNumber {
		g := ir.Cycle(p.tok.num)
		return g, nil, p.advance()
	}
	if _, err := p.expect(tokLBracket, "[ or cycle number after %"); err != nil {
		return nil, nil, err
	}
	start, err := p.expect(tokNumber, "range start")
	if err != nil {
		return nil, nil, err
	}
	if _, err := p.expect(tokColon, ":"); err != nil {
		return nil, nil, err
	}
	end, err := p.expect(tokNumber, "range end")
	if err != nil {
		return nil, nil, err
	}
	if _, err := p.expect(tokRParen, ")"); err != nil {
		return nil, nil, err
	}
	g, gerr := ir.CycleRange(start.num, end.num)
	if gerr != nil {
		return nil, nil, p.errHere("%v", gerr)
	}
	return g, nil, nil
}

func (p *parser) parseControl() error {
	if err := p.advance(); err != nil { // consume "control"
		return err
	}
	if _, err := p.expect(tokLBrace, "{"); err != nil {
		return err
	}
	stmts, err := p.parseStmtList()
	if err != nil {
		return err
	}
	if _, err := p.expect(tokRBrace, "}"); err != nil {
		return err
	}
	switch len(stmts) {
	case 0:
		p.comp.Control = &ir.Empty{}
	case 1:
		p.comp.Control = stmts[0]
	default:
		p.comp.Control = &ir.Seq{Children: stmts}
	}
	return nil
}

func (p *parser) parseStmtList() ([]ir.Control, error) {
	var stmts []ir.Control
	for p.tok.kind != tokRBrace {
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

func (p *parser) parseStmt() (ir.Control, error) {
	attrs, err := p.parseAttrs()
	if err != nil {
		return nil, err
	}
	pos := p.tok.pos
	switch {
	case p.atKeyword("seq"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		children, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		return &ir.Seq{Children: children, Attributes: attrs, Source: pos}, nil
	case p.atKeyword("par"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		children, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		return &ir.Par{Children: children, Attributes: attrs, Source: pos}, nil
	case p.atKeyword("if"):
		return p.parseIf(attrs, pos)
	case p.atKeyword("while"):
		return p.parseWhile(attrs, pos)
	case p.atKeyword("repeat"):
		return p.parseRepeat(attrs, pos)
	case p.atKeyword("invoke"):
		return p.parseInvoke(attrs, pos)
	case p.tok.kind == tokIdent:
		name := p.tok
		if err := p.advance(); err != nil {
			return nil, err
		}
		if _, err := p.expect(tokSemi, ";"); err != nil {
			return nil, err
		}
		if g := p.comp.Group(name.text); g != nil {
			return &ir.Enable{Group: g, Attributes: attrs, Source: name.pos}, nil
		}
		if g := p.comp.StaticGroup(name.text); g != nil {
			return &ir.StaticEnable{Group: g, Attributes: attrs, Source: name.pos}, nil
		}
		return nil, p.errHere("unknown group %q enabled in control", name.text)
	default:
		return nil, p.errHere("expected a control statement")
	}
}

func (p *parser) parseBlock() ([]ir.Control, error) {
	if _, err := p.expect(tokLBrace, "{"); err != nil {
		return nil, err
	}
	stmts, err := p.parseStmtList()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokRBrace, "}"); err != nil {
		return nil, err
	}
	return stmts, nil
}

func (p *parser) parseCond() (*ir.Port, *ir.CombGroup, error) {
	cond, err := p.parsePortRef()
	if err != nil {
		return nil, nil, err
	}
	var with *ir.CombGroup
	if p.atKeyword("with") {
		if err := p.advance(); err != nil {
			return nil, nil, err
		}
		name, err := p.expectIdent("comb group name")
		if err != nil {
			return nil, nil, err
		}
		with = p.comp.CombGroup(name.text)
		if with == nil {
			return nil, nil, p.errHere("unknown comb group %q", name.text)
		}
	}
	return cond, with, nil
}

func (p *parser) parseIf(attrs ir.AttrSet, pos token.Pos) (ir.Control, error) {
	if err := p.advance(); err != nil { // consume "if"
		return nil, err
	}
	cond, with, err := p.parseCond()
	if err != nil {
		return nil, err
	}
	thenStmts, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	var elseCtrl ir.Control = &ir.Empty{}
	if p.atKeyword("else") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		elseStmts, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		elseCtrl = wrapStmts(elseStmts)
	}
	return &ir.If{
		Cond:       cond,
		With:       with,
		Then:       wrapStmts(thenStmts),
		Else:       elseCtrl,
		Attributes: attrs,
		Source:     pos,
	}, nil
}

func (p *parser) parseWhile(attrs ir.AttrSet, pos token.Pos) (ir.Control, error) {
	if err := p.advance(); err != nil { // consume "while"
		return nil, err
	}
	cond, with, err := p.parseCond()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ir.While{
		Cond:       cond,
		With:       with,
		Body:       wrapStmts(body),
		Attributes: attrs,
		Source:     pos,
	}, nil
}

func (p *parser) parseRepeat(attrs ir.AttrSet, pos token.Pos) (ir.Control, error) {
	if err := p.advance(); err != nil { // consume "repeat"
		return nil, err
	}
	count, err := p.expect(tokNumber, "repeat count")
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ir.Repeat{
		Count:      count.num,
		Body:       wrapStmts(body),
		Attributes: attrs,
		Source:     pos,
	}, nil
}

func (p *parser) parseInvoke(attrs ir.AttrSet, pos token.Pos) (ir.Control, error) {
	if err := p.advance(); err != nil { // consume "invoke"
		return nil, err
	}
	name, err := p.expectIdent("cell name")
	if err != nil {
		return nil, err
	}
	cell := p.comp.Cell(name.text)
	if cell == nil {
		return nil, p.errHere("unknown cell %q", name.text)
	}
	var refs []ir.RefBinding
	if p.tok.kind == tokLBracket {
		if err := p.advance(); err != nil {
			return nil, err
		}
		for p.tok.kind != tokRBracket {
			refName, err := p.expectIdent("reference cell name")
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokEq, "="); err != nil {
				return nil, err
			}
			supplied, err := p.expectIdent("supplied cell name")
			if err != nil {
				return nil, err
			}
			actual := p.comp.Cell(supplied.text)
			if actual == nil {
				return nil, p.errHere("unknown cell %q supplied for reference %q", supplied.text, refName.text)
			}
			refs = append(refs, ir.RefBinding{Name: refName.text, Cell: actual})
			if p.tok.kind == tokComma {
				if err := p.advance(); err != nil {
					return nil, err
				}
			}
		}
		if err := p.advance(); err != nil { // consume ]
			return nil, err
		}
	}
	if _, err := p.expect(tokLParen, "("); err != nil {
		return nil, err
	}
	var inputs []ir.Binding
	for p.tok.kind != tokRParen {
		portName, err := p.expectIdent("invoked port name")
		if err != nil {
			return nil, err
		}
		port := cell.Port(portName.text)
		if port == nil {
			return nil, p.errHere("cell %s has no port %q", cell.Name, portName.text)
		}
		if _, err := p.expect(tokEq, "="); err != nil {
			return nil, err
		}
		_, src, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if src == nil {
			return nil, p.errHere("invoke bindings take a port or constant")
		}
		inputs = append(inputs, ir.Binding{Port: port, Src: src})
		if p.tok.kind == tokComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	if err := p.advance(); err != nil { // consume )
		return nil, err
	}
	if _, err := p.expect(tokSemi, ";"); err != nil {
		return nil, err
	}
	return &ir.Invoke{Cell: cell, Inputs: inputs, Refs: refs, Attributes: attrs, Source: pos}, nil
}

func wrapStmts(stmts []ir.Control) ir.Control {
	switch len(stmts) {
	case 0:
		return &ir.Empty{}
	case 1:
		return stmts[0]
	default:
		return &ir.Seq{Children: stmts}
	}
}
