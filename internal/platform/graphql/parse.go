package graphql

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// document is a parsed GraphQL request: an operation type plus its
// top-level field selections.
type document struct {
	Operation string // "query" or "mutation"
	Name      string
	Fields    []*fieldNode
}

// fieldNode is one selected field with its arguments and sub-selection.
type fieldNode struct {
	Name      string
	Args      map[string]interface{}
	Selection []*fieldNode
}

// parseDocument parses the supported subset of the GraphQL query
// language: an optional operation keyword and name, one selection set,
// scalar/list/object argument values, and $variable references resolved
// against vars.
func parseDocument(query string, vars map[string]interface{}) (*document, error) {
	p := &parser{lexer: newLexer(query), vars: vars}
	return p.parse()
}

// ---------------------------------------------------------------------------
// Lexer
// ---------------------------------------------------------------------------

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokPunct
	tokName
	tokInt
	tokFloat
	tokString
	tokVariable
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

type lexer struct {
	src []rune
	pos int
}

func newLexer(src string) *lexer {
	return &lexer{src: []rune(src)}
}

func (l *lexer) next() (token, error) {
	l.skipIgnored()
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}

	start := l.pos
	r := l.src[l.pos]

	switch {
	case strings.ContainsRune("{}():,[]!", r):
		l.pos++
		return token{kind: tokPunct, text: string(r), pos: start}, nil

	case r == '$':
		l.pos++
		name := l.readName()
		if name == "" {
			return token{}, fmt.Errorf("expected variable name at position %d", start)
		}
		return token{kind: tokVariable, text: name, pos: start}, nil

	case r == '"':
		s, err := l.readString()
		if err != nil {
			return token{}, err
		}
		return token{kind: tokString, text: s, pos: start}, nil

	case r == '-' || unicode.IsDigit(r):
		return l.readNumber()

	case r == '_' || unicode.IsLetter(r):
		return token{kind: tokName, text: l.readName(), pos: start}, nil
	}

	return token{}, fmt.Errorf("unexpected character %q at position %d", r, start)
}

func (l *lexer) skipIgnored() {
	for l.pos < len(l.src) {
		r := l.src[l.pos]
		if unicode.IsSpace(r) {
			l.pos++
			continue
		}
		if r == '#' {
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
			continue
		}
		break
	}
}

func (l *lexer) readName() string {
	start := l.pos
	for l.pos < len(l.src) {
		r := l.src[l.pos]
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			l.pos++
			continue
		}
		break
	}
	return string(l.src[start:l.pos])
}

func (l *lexer) readString() (string, error) {
	l.pos++ // opening quote
	var b strings.Builder
	for l.pos < len(l.src) {
		r := l.src[l.pos]
		switch r {
		case '"':
			l.pos++
			return b.String(), nil
		case '\\':
			l.pos++
			if l.pos >= len(l.src) {
				return "", fmt.Errorf("unterminated escape in string")
			}
			esc := l.src[l.pos]
			switch esc {
			case '"', '\\', '/':
				b.WriteRune(esc)
			case 'n':
				b.WriteRune('\n')
			case 't':
				b.WriteRune('\t')
			case 'r':
				b.WriteRune('\r')
			default:
				b.WriteRune(esc)
			}
			l.pos++
		default:
			b.WriteRune(r)
			l.pos++
		}
	}
	return "", fmt.Errorf("unterminated string")
}

func (l *lexer) readNumber() (token, error) {
	start := l.pos
	if l.src[l.pos] == '-' {
		l.pos++
	}
	isFloat := false
	for l.pos < len(l.src) {
		r := l.src[l.pos]
		if unicode.IsDigit(r) {
			l.pos++
			continue
		}
		if r == '.' && !isFloat {
			isFloat = true
			l.pos++
			continue
		}
		break
	}
	text := string(l.src[start:l.pos])
	if isFloat {
		return token{kind: tokFloat, text: text, pos: start}, nil
	}
	return token{kind: tokInt, text: text, pos: start}, nil
}

// ---------------------------------------------------------------------------
// Parser
// ---------------------------------------------------------------------------

type parser struct {
	lexer *lexer
	vars  map[string]interface{}
	tok   token
	ahead *token
}

func (p *parser) advance() error {
	if p.ahead != nil {
		p.tok = *p.ahead
		p.ahead = nil
		return nil
	}
	t, err := p.lexer.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *parser) peek() (token, error) {
	if p.ahead == nil {
		t, err := p.lexer.next()
		if err != nil {
			return token{}, err
		}
		p.ahead = &t
	}
	return *p.ahead, nil
}

func (p *parser) parse() (*document, error) {
	doc := &document{Operation: "query"}

	if err := p.advance(); err != nil {
		return nil, err
	}

	if p.tok.kind == tokName {
		switch p.tok.text {
		case "query", "mutation":
			doc.Operation = p.tok.text
		default:
			return nil, fmt.Errorf("unsupported operation type %q", p.tok.text)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind == tokName {
			doc.Name = p.tok.text
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
		// Variable definitions "( $x: Int! ... )" are tolerated and
		// skipped; actual values come from the variables map.
		if p.tok.kind == tokPunct && p.tok.text == "(" {
			if err := p.skipParens(); err != nil {
				return nil, err
			}
		}
	}

	fields, err := p.parseSelectionSet()
	if err != nil {
		return nil, err
	}
	doc.Fields = fields

	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, fmt.Errorf("unexpected trailing input at position %d", p.tok.pos)
	}
	return doc, nil
}

func (p *parser) skipParens() error {
	depth := 0
	for {
		if p.tok.kind == tokEOF {
			return fmt.Errorf("unterminated variable definitions")
		}
		if p.tok.kind == tokPunct {
			switch p.tok.text {
			case "(":
				depth++
			case ")":
				depth--
				if depth == 0 {
					return p.advance()
				}
			}
		}
		if err := p.advance(); err != nil {
			return err
		}
	}
}

// parseSelectionSet parses "{ field field ... }". On entry the current
// token must be "{"; on exit it is the closing "}".
func (p *parser) parseSelectionSet() ([]*fieldNode, error) {
	if p.tok.kind != tokPunct || p.tok.text != "{" {
		return nil, fmt.Errorf("expected '{' at position %d", p.tok.pos)
	}

	var fields []*fieldNode
	for {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind == tokPunct && p.tok.text == "}" {
			if len(fields) == 0 {
				return nil, fmt.Errorf("empty selection set at position %d", p.tok.pos)
			}
			return fields, nil
		}
		if p.tok.kind != tokName {
			return nil, fmt.Errorf("expected field name at position %d", p.tok.pos)
		}

		f := &fieldNode{Name: p.tok.text}

		next, err := p.peek()
		if err != nil {
			return nil, err
		}
		if next.kind == tokPunct && next.text == "(" {
			if err := p.advance(); err != nil {
				return nil, err
			}
			args, err := p.parseArguments()
			if err != nil {
				return nil, err
			}
			f.Args = args
			next, err = p.peek()
			if err != nil {
				return nil, err
			}
		}
		if next.kind == tokPunct && next.text == "{" {
			if err := p.advance(); err != nil {
				return nil, err
			}
			sel, err := p.parseSelectionSet()
			if err != nil {
				return nil, err
			}
			f.Selection = sel
		}

		fields = append(fields, f)
	}
}

// parseArguments parses "( name: value, ... )". On entry the current
// token is "("; on exit it is ")".
func (p *parser) parseArguments() (map[string]interface{}, error) {
	args := make(map[string]interface{})
	for {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind == tokPunct {
			switch p.tok.text {
			case ")":
				return args, nil
			case ",":
				continue
			}
		}
		if p.tok.kind != tokName {
			return nil, fmt.Errorf("expected argument name at position %d", p.tok.pos)
		}
		name := p.tok.text

		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind != tokPunct || p.tok.text != ":" {
			return nil, fmt.Errorf("expected ':' after argument %q", name)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}

		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		args[name] = val
	}
}

// parseValue parses one value with the current token positioned at its
// first token; on exit the current token is the value's last token.
func (p *parser) parseValue() (interface{}, error) {
	switch p.tok.kind {
	case tokString:
		return p.tok.text, nil

	case tokInt:
		n, err := strconv.ParseInt(p.tok.text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", p.tok.text)
		}
		return float64(n), nil

	case tokFloat:
		f, err := strconv.ParseFloat(p.tok.text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float %q", p.tok.text)
		}
		return f, nil

	case tokVariable:
		val, ok := p.vars[p.tok.text]
		if !ok {
			return nil, fmt.Errorf("variable $%s is not defined", p.tok.text)
		}
		return val, nil

	case tokName:
		switch p.tok.text {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "null":
			return nil, nil
		}
		// Enum-style bare name; treated as its string value.
		return p.tok.text, nil

	case tokPunct:
		switch p.tok.text {
		case "[":
			return p.parseListValue()
		case "{":
			return p.parseObjectValue()
		}
	}
	return nil, fmt.Errorf("unexpected token %q at position %d", p.tok.text, p.tok.pos)
}

func (p *parser) parseListValue() (interface{}, error) {
	list := []interface{}{}
	for {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind == tokPunct {
			if p.tok.text == "]" {
				return list, nil
			}
			if p.tok.text == "," {
				continue
			}
		}
		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		list = append(list, val)
	}
}

func (p *parser) parseObjectValue() (interface{}, error) {
	obj := make(map[string]interface{})
	for {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind == tokPunct {
			if p.tok.text == "}" {
				return obj, nil
			}
			if p.tok.text == "," {
				continue
			}
		}
		if p.tok.kind != tokName && p.tok.kind != tokString {
			return nil, fmt.Errorf("expected object field name at position %d", p.tok.pos)
		}
		name := p.tok.text

		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind != tokPunct || p.tok.text != ":" {
			return nil, fmt.Errorf("expected ':' after object field %q", name)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}

		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		obj[name] = val
	}
}
