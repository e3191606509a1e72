package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/starford/quarry/internal/schema"
)

const foldFunc = "tolower"

type parser struct {
	src    string
	toks   []token
	pos    int
	schema *schema.Schema
}

// parseFilter parses a boolean filter clause:
//
//	or    = and { "or" and }
//	and   = unary { "and" unary }
//	unary = "not" unary | "(" or ")" | cmp
//	cmp   = operand op value
func parseFilter(src string, s *schema.Schema) (Expr, *ParseError) {
	toks, perr := lex(src)
	if perr != nil {
		return nil, perr
	}
	p := &parser{src: src, toks: toks, schema: s}
	e, perr := p.or()
	if perr != nil {
		return nil, perr
	}
	if t := p.peek(); t.kind != tkEOF {
		return nil, p.errorf(t, "unexpected %q", t.text)
	}
	return e, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tkEOF {
		p.pos++
	}
	return t
}

func (p *parser) keyword(word string) bool {
	t := p.peek()
	return t.kind == tkIdent && t.text == word
}

func (p *parser) expect(kind tokenKind, what string) (token, *ParseError) {
	t := p.next()
	if t.kind != kind {
		return t, p.errorf(t, "expected %s", what)
	}
	return t, nil
}

func (p *parser) errorf(t token, format string, args ...any) *ParseError {
	frag := p.src[t.pos:t.end]
	if t.kind == tkEOF {
		frag = "end of input"
	}
	return &ParseError{Offset: t.pos, Fragment: frag, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) or() (Expr, *ParseError) {
	left, err := p.and()
	if err != nil {
		return nil, err
	}
	for p.keyword("or") {
		p.next()
		right, err := p.and()
		if err != nil {
			return nil, err
		}
		left = &Or{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) and() (Expr, *ParseError) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.keyword("and") {
		p.next()
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = &And{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) unary() (Expr, *ParseError) {
	if p.keyword("not") {
		p.next()
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &Not{X: x}, nil
	}
	if p.peek().kind == tkLParen {
		p.next()
		e, err := p.or()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tkRParen, "')'"); err != nil {
			return nil, err
		}
		return e, nil
	}
	return p.comparison()
}

// folded reports whether the next tokens open a tolower( call.
func (p *parser) folded() bool {
	return p.keyword(foldFunc) && p.toks[p.pos+1].kind == tkLParen
}

func (p *parser) comparison() (Expr, *ParseError) {
	start := p.peek()
	fold := p.folded()
	if fold {
		p.next()
		p.next()
	}
	ref, err := p.fieldRef()
	if err != nil {
		return nil, err
	}
	if fold {
		if _, err := p.expect(tkRParen, "')' closing tolower"); err != nil {
			return nil, err
		}
	}

	opTok := p.next()
	op, ok := lookupOp(opTok.text)
	if opTok.kind != tkIdent || !ok {
		return nil, p.errorf(opTok, "expected comparison operator")
	}

	valTok := p.peek()
	valFold := p.folded()
	if valFold {
		p.next()
		p.next()
	}
	lit, litTok, err := p.literal()
	if err != nil {
		return nil, err
	}
	if valFold {
		if _, err := p.expect(tkRParen, "')' closing tolower"); err != nil {
			return nil, err
		}
	}
	if fold != valFold {
		return nil, p.errorf(valTok, "tolower must be applied to both sides")
	}

	f, isArray, perr := resolve(p.schema, ref, start.pos)
	if perr != nil {
		perr.Fragment = strings.TrimSpace(p.src[start.pos:opTok.pos])
		return nil, perr
	}
	ref.Builtin = f == idField
	c := &Comparison{Field: ref, Op: op, Value: lit, Fold: fold, Kind: f.Kind, Array: isArray}
	if perr := p.check(c, start, opTok, litTok); perr != nil {
		return nil, perr
	}
	return c, nil
}

// check enforces operator and literal types against the field kind.
func (p *parser) check(c *Comparison, fieldTok, opTok, litTok token) *ParseError {
	if c.Kind == schema.KindArray {
		return p.errorf(fieldTok, "cannot compare nested array %s", c.Field)
	}
	if c.Fold && c.Kind != schema.KindString {
		return p.errorf(fieldTok, "tolower requires a string field")
	}
	if c.Op.textual() && c.Kind != schema.KindString {
		return p.errorf(opTok, "%s requires a string field, %s is %s", c.Op, c.Field, c.Kind)
	}
	if c.Op.ordered() && c.Kind == schema.KindBoolean {
		return p.errorf(opTok, "%s is not defined for boolean field %s", c.Op, c.Field)
	}
	want := LitString
	switch c.Kind {
	case schema.KindNumber:
		want = LitNumber
	case schema.KindBoolean:
		want = LitBool
	}
	if c.Value.Kind != want {
		return p.errorf(litTok, "%s is %s, literal does not match", c.Field, c.Kind)
	}
	if c.Kind == schema.KindDate {
		if _, ok := schema.ParseDate(c.Value.Str); !ok {
			return p.errorf(litTok, "invalid date literal")
		}
	}
	return nil
}

func (p *parser) fieldRef() (FieldRef, *ParseError) {
	t := p.next()
	if t.kind != tkIdent {
		return FieldRef{}, p.errorf(t, "expected field name")
	}
	ref := FieldRef{Name: t.text, Index: -1}
	if p.peek().kind != tkLBrack {
		return ref, nil
	}
	p.next()
	n, err := p.expect(tkNumber, "array index")
	if err != nil {
		return FieldRef{}, err
	}
	idx, convErr := strconv.Atoi(n.text)
	if convErr != nil || idx < 0 {
		return FieldRef{}, p.errorf(n, "array index must be a non-negative integer")
	}
	if _, err := p.expect(tkRBrack, "']'"); err != nil {
		return FieldRef{}, err
	}
	ref.Index = idx
	return ref, nil
}

func (p *parser) literal() (Literal, token, *ParseError) {
	t := p.next()
	switch t.kind {
	case tkString:
		return Literal{Kind: LitString, Str: t.text}, t, nil
	case tkNumber:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return Literal{}, t, p.errorf(t, "invalid number")
		}
		return Literal{Kind: LitNumber, Num: f}, t, nil
	case tkIdent:
		switch t.text {
		case "true":
			return Literal{Kind: LitBool, Bool: true}, t, nil
		case "false":
			return Literal{Kind: LitBool, Bool: false}, t, nil
		}
	}
	return Literal{}, t, p.errorf(t, "expected literal")
}
