package frontend

import (
	"fmt"
	"go/token"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokConst // width'dvalue literal
	tokLBrace
	tokRBrace
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokSemi
	tokComma
	tokColon
	tokDot
	tokEq // =
	tokQuestion
	tokBang
	tokAmp
	tokPipe
	tokAt
	tokPercent
	tokLt
	tokGt
	tokArrow // ->
	tokCmpEq // ==
	tokCmpNe // !=
	tokCmpLe // <=
	tokCmpGe // >=
)

type lexToken struct {
	kind  tokenKind
	text  string
	num   int
	width int    // for tokConst
	value uint64 // for tokConst
	pos   token.Pos
}

type lexer struct {
	src  []byte
	off  int
	file *token.File
}

func newLexer(file *token.File, src []byte) *lexer {
	return &lexer{src: src, file: file}
}

func (l *lexer) pos() token.Pos {
	return l.file.Pos(l.off)
}

func (l *lexer) peekByte() (byte, bool) {
	if l.off >= len(l.src) {
		return 0, false
	}
	return l.src[l.off], true
}

func (l *lexer) skipSpaceAndComments() {
	for l.off < len(l.src) {
		c := l.src[l.off]
		switch {
		case c == ' ' || c == '\t' || c == '\r':
			l.off++
		case c == '\n':
			l.off++
			l.file.AddLine(l.off)
		case c == '/' && l.off+1 < len(l.src) && l.src[l.off+1] == '/':
			for l.off < len(l.src) && l.src[l.off] != '\n' {
				l.off++
			}
		default:
			return
		}
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || ('0' <= c && c <= '9')
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

func (l *lexer) next() (lexToken, error) {
	l.skipSpaceAndComments()
	start := l.pos()
	c, ok := l.peekByte()
	if !ok {
		return lexToken{kind: tokEOF, pos: start}, nil
	}
	switch {
	case isIdentStart(c):
		begin := l.off
		for l.off < len(l.src) && isIdentPart(l.src[l.off]) {
			l.off++
		}
		return lexToken{kind: tokIdent, text: string(l.src[begin:l.off]), pos: start}, nil
	case isDigit(c):
		return l.lexNumber(start)
	}
	l.off++
	two := func(next byte, kind, fallback tokenKind) (lexToken, error) {
		if b, ok := l.peekByte(); ok && b == next {
			l.off++
			return lexToken{kind: kind, pos: start}, nil
		}
		return lexToken{kind: fallback, pos: start}, nil
	}
	switch c {
	case '{':
		return lexToken{kind: tokLBrace, pos: start}, nil
	case '}':
		return lexToken{kind: tokRBrace, pos: start}, nil
	case '(':
		return lexToken{kind: tokLParen, pos: start}, nil
	case ')':
		return lexToken{kind: tokRParen, pos: start}, nil
	case '[':
		return lexToken{kind: tokLBracket, pos: start}, nil
	case ']':
		return lexToken{kind: tokRBracket, pos: start}, nil
	case ';':
		return lexToken{kind: tokSemi, pos: start}, nil
	case ',':
		return lexToken{kind: tokComma, pos: start}, nil
	case ':':
		return lexToken{kind: tokColon, pos: start}, nil
	case '.':
		return lexToken{kind: tokDot, pos: start}, nil
	case '?':
		return lexToken{kind: tokQuestion, pos: start}, nil
	case '&':
		return lexToken{kind: tokAmp, pos: start}, nil
	case '|':
		return lexToken{kind: tokPipe, pos: start}, nil
	case '@':
		return lexToken{kind: tokAt, pos: start}, nil
	case '%':
		return lexToken{kind: tokPercent, pos: start}, nil
	case '=':
		return two('=', tokCmpEq, tokEq)
	case '!':
		return two('=', tokCmpNe, tokBang)
	case '<':
		return two('=', tokCmpLe, tokLt)
	case '>':
		return two('=', tokCmpGe, tokGt)
	case '-':
		if b, ok := l.peekByte(); ok && b == '>' {
			l.off++
			return lexToken{kind: tokArrow, pos: start}, nil
		}
		return lexToken{}, fmt.Errorf("unexpected character %q", string(c))
	default:
		return lexToken{}, fmt.Errorf("unexpected character %q", string(c))
	}
}

// lexNumber reads either a plain decimal number or a sized constant of the
// form width'dvalue.
func (l *lexer) lexNumber(start token.Pos) (lexToken, error) {
	begin := l.off
	for l.off < len(l.src) && isDigit(l.src[l.off]) {
		l.off++
	}
	first := l.src[begin:l.off]
	if b, ok := l.peekByte(); !ok || b != '\'' {
		n, err := parseInt(string(first))
		if err != nil {
			return lexToken{}, err
		}
		return lexToken{kind: tokNumber, num: n, text: string(first), pos: start}, nil
	}
	l.off++ // consume '
	if b, ok := l.peekByte(); !ok || b != 'd' {
		return lexToken{}, fmt.Errorf("expected 'd' in sized constant")
	}
	l.off++
	vbegin := l.off
	for l.off < len(l.src) && isDigit(l.src[l.off]) {
		l.off++
	}
	if vbegin == l.off {
		return lexToken{}, fmt.Errorf("sized constant is missing its value digits")
	}
	width, err := parseInt(string(first))
	if err != nil {
		return lexToken{}, err
	}
	var value uint64
	for _, d := range l.src[vbegin:l.off] {
		value = value*10 + uint64(d-'0')
	}
	return lexToken{kind: tokConst, width: width, value: value, pos: start}, nil
}

func parseInt(s string) (int, error) {
	n := 0
	for _, c := range s {
		if n > (1<<31)/10 {
			return 0, fmt.Errorf("number %s is out of range", s)
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}
