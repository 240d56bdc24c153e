// Package evaluator runs operator-authored condition scripts and
// expressions over a bounded request context. The language is a small
// expression dialect: literals, identifiers, arithmetic, comparisons,
// boolean logic, indexing, dict/list literals, calls to an allow-list
// of builtins, and single-assignment statements. The host environment
// is never reachable from evaluated code.
package evaluator

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenInt
	tokenFloat
	tokenString
	tokenIdent
	tokenKeyword // and or not in if else
	tokenOp      // operators and punctuation
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

var keywords = map[string]struct{}{
	"and": {}, "or": {}, "not": {}, "in": {}, "if": {}, "else": {},
}

// multi-character operators, longest first.
var multiOps = []string{"**", "//", "==", "!=", "<=", ">="}

const singleOps = "+-*/%<>()[]{},:.="

type lexer struct {
	src string
	pos int
}

func (l *lexer) errorf(pos int, format string, args ...any) error {
	return fmt.Errorf("position %d: %s", pos, fmt.Sprintf(format, args...))
}

// tokens lexes the whole input.
func (l *lexer) tokens() ([]token, error) {
	var out []token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
		if tok.kind == tokenEOF {
			return out, nil
		}
	}
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) && isSpace(l.src[l.pos]) {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return token{kind: tokenEOF, pos: l.pos}, nil
	}

	start := l.pos
	c := l.src[l.pos]

	switch {
	case isDigit(c), c == '.' && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1]):
		return l.lexNumber()
	case c == '\'' || c == '"':
		return l.lexString()
	case isIdentStart(c):
		for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
			l.pos++
		}
		text := l.src[start:l.pos]
		if _, ok := keywords[text]; ok {
			return token{kind: tokenKeyword, text: text, pos: start}, nil
		}
		return token{kind: tokenIdent, text: text, pos: start}, nil
	}

	for _, op := range multiOps {
		if strings.HasPrefix(l.src[l.pos:], op) {
			l.pos += len(op)
			return token{kind: tokenOp, text: op, pos: start}, nil
		}
	}
	if strings.IndexByte(singleOps, c) >= 0 {
		l.pos++
		return token{kind: tokenOp, text: string(c), pos: start}, nil
	}

	return token{}, l.errorf(start, "unexpected character %q", c)
}

func (l *lexer) lexNumber() (token, error) {
	start := l.pos
	isFloat := false
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if isDigit(c) {
			l.pos++
			continue
		}
		// The first dot makes the number a float and is consumed
		// whatever follows it; a second dot ends the number.
		if c == '.' && !isFloat {
			isFloat = true
			l.pos++
			continue
		}
		break
	}
	kind := tokenInt
	if isFloat {
		kind = tokenFloat
	}
	return token{kind: kind, text: l.src[start:l.pos], pos: start}, nil
}

func (l *lexer) lexString() (token, error) {
	start := l.pos
	quote := l.src[l.pos]
	l.pos++
	var sb strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == '\\' && l.pos+1 < len(l.src) {
			next := l.src[l.pos+1]
			switch next {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '\\', '\'', '"':
				sb.WriteByte(next)
			default:
				sb.WriteByte('\\')
				sb.WriteByte(next)
			}
			l.pos += 2
			continue
		}
		if c == quote {
			l.pos++
			return token{kind: tokenString, text: sb.String(), pos: start}, nil
		}
		sb.WriteByte(c)
		l.pos++
	}
	return token{}, l.errorf(start, "unterminated string")
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\r' || c == '\n' }
func isDigit(c byte) bool { return '0' <= c && c <= '9' }
func isIdentStart(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}
func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }
