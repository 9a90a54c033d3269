package filter

import (
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokInt
	tokFloat
	tokBool
	tokLParen
	tokRParen
	tokComma
	tokAnd
	tokOr
	tokNot
	tokIs
	tokNull
	tokIn
	tokOpEq
	tokOpNe
	tokOpGt
	tokOpLt
	tokOpGe
	tokOpLe
	tokOpLike
	tokOpContains
)

type token struct {
	kind   tokenKind
	text   string
	i64    int64
	f64    float64
	boo    bool
	offset int
}

var keywords = map[string]tokenKind{
	"AND":      tokAnd,
	"OR":       tokOr,
	"NOT":      tokNot,
	"IS":       tokIs,
	"NULL":     tokNull,
	"IN":       tokIn,
	"LIKE":     tokOpLike,
	"CONTAINS": tokOpContains,
	"TRUE":     tokBool,
	"FALSE":    tokBool,
}

type lexer struct {
	src    string
	pos    int
	tokens []token
}

func lex(src string) ([]token, error) {
	l := &lexer{src: src}
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		l.tokens = append(l.tokens, tok)
		if tok.kind == tokEOF {
			break
		}
	}
	return l.tokens, nil
}

func (l *lexer) next() (token, error) {
	l.skipSpace()
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, offset: l.pos}, nil
	}

	start := l.pos
	c := l.src[l.pos]

	switch {
	case c == '(':
		l.pos++
		return token{kind: tokLParen, offset: start}, nil
	case c == ')':
		l.pos++
		return token{kind: tokRParen, offset: start}, nil
	case c == ',':
		l.pos++
		return token{kind: tokComma, offset: start}, nil
	case c == '=':
		l.pos++
		return token{kind: tokOpEq, offset: start}, nil
	case c == '!':
		if l.pos+1 < len(l.src) && l.src[l.pos+1] == '=' {
			l.pos += 2
			return token{kind: tokOpNe, offset: start}, nil
		}
		return token{}, &ParseError{Offset: start, Kind: "unexpected character"}
	case c == '>':
		if l.pos+1 < len(l.src) && l.src[l.pos+1] == '=' {
			l.pos += 2
			return token{kind: tokOpGe, offset: start}, nil
		}
		l.pos++
		return token{kind: tokOpGt, offset: start}, nil
	case c == '<':
		if l.pos+1 < len(l.src) && l.src[l.pos+1] == '=' {
			l.pos += 2
			return token{kind: tokOpLe, offset: start}, nil
		}
		l.pos++
		return token{kind: tokOpLt, offset: start}, nil
	case c == '\'' || c == '"':
		return l.lexString(c)
	case c == '-' || isDigit(c):
		return l.lexNumber()
	case isIdentStart(c):
		return l.lexIdentOrKeyword()
	default:
		return token{}, &ParseError{Offset: start, Kind: "unexpected character"}
	}
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) && (l.src[l.pos] == ' ' || l.src[l.pos] == '\t' || l.src[l.pos] == '\n' || l.src[l.pos] == '\r') {
		l.pos++
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentCont(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == '.'
}

func (l *lexer) lexString(quote byte) (token, error) {
	start := l.pos
	l.pos++ // consume opening quote
	var sb strings.Builder
	for {
		if l.pos >= len(l.src) {
			return token{}, &ParseError{Offset: start, Kind: "unterminated string"}
		}
		c := l.src[l.pos]
		if c == quote {
			l.pos++
			return token{kind: tokString, text: sb.String(), offset: start}, nil
		}
		if c == '\\' && l.pos+1 < len(l.src) {
			l.pos++
			sb.WriteByte(l.src[l.pos])
			l.pos++
			continue
		}
		sb.WriteByte(c)
		l.pos++
	}
}

func (l *lexer) lexNumber() (token, error) {
	start := l.pos
	if l.src[l.pos] == '-' {
		l.pos++
	}
	for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
		l.pos++
	}
	isFloat := false
	if l.pos < len(l.src) && l.src[l.pos] == '.' {
		isFloat = true
		l.pos++
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
	}
	text := l.src[start:l.pos]
	if isFloat {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return token{}, &ParseError{Offset: start, Kind: "invalid float literal"}
		}
		return token{kind: tokFloat, f64: f, offset: start}, nil
	}
	i, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return token{}, &ParseError{Offset: start, Kind: "invalid integer literal"}
	}
	return token{kind: tokInt, i64: i, offset: start}, nil
}

func (l *lexer) lexIdentOrKeyword() (token, error) {
	start := l.pos
	for l.pos < len(l.src) && isIdentCont(l.src[l.pos]) {
		l.pos++
	}
	text := l.src[start:l.pos]
	upper := strings.ToUpper(text)
	if kind, ok := keywords[upper]; ok {
		if kind == tokBool {
			return token{kind: tokBool, boo: upper == "TRUE", offset: start}, nil
		}
		return token{kind: kind, text: text, offset: start}, nil
	}
	return token{kind: tokIdent, text: text, offset: start}, nil
}
