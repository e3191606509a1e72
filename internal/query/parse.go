package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/starford/quarry/internal/apperr"
	"github.com/starford/quarry/internal/models"
	"github.com/starford/quarry/internal/schema"
)

// Parameter names.
const (
	ParamFilter  = "filter"
	ParamOrderBy = "orderby"
	ParamTop     = "top"
	ParamSkip    = "skip"
	ParamSelect  = "select"
)

// ParseError locates a malformed query. Offset is a byte offset into the
// decoded parameter value, or into the raw query string when Param is empty.
type ParseError struct {
	Param    string `json:"param,omitempty"`
	Offset   int    `json:"offset"`
	Fragment string `json:"fragment"`
	Msg      string `json:"message"`
}

func (e *ParseError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("query: %s at offset %d near %q", e.Msg, e.Offset, e.Fragment)
	}
	return fmt.Sprintf("query: %s: %s at offset %d near %q", e.Param, e.Msg, e.Offset, e.Fragment)
}

// Is makes errors.Is(err, apperr.ErrInvalidQuery) true for parse errors.
func (e *ParseError) Is(target error) bool { return target == apperr.ErrInvalidQuery }

// Options tune parsing.
type Options struct {
	// MaxPageSize is the largest accepted top. Zero means DefaultMaxPageSize.
	MaxPageSize int
}

func (o Options) maxPageSize() int {
	if o.MaxPageSize > 0 {
		return o.MaxPageSize
	}
	return DefaultMaxPageSize
}

// Params holds the decoded parameter values of a query. Empty means absent.
type Params struct {
	Filter  string
	OrderBy string
	Top     string
	Skip    string
	Select  string
}

// Parse parses a raw query string such as
// "filter=tag eq 'tutorial'&orderby=publishDate desc&top=10" against s.
// Parameter names may carry a leading '$'. Unknown or repeated parameters
// are errors.
func Parse(raw string, s *schema.Schema, opts Options) (*Query, error) {
	p, err := SplitParams(raw)
	if err != nil {
		return nil, err
	}
	return Build(p, s, opts)
}

// SplitParams splits a raw query string on '&' outside single-quoted
// literals and URL-decodes every value.
func SplitParams(raw string) (Params, error) {
	var p Params
	seen := make(map[string]bool)
	for _, seg := range splitOutsideQuotes(raw) {
		if strings.TrimSpace(seg.text) == "" {
			continue
		}
		name, value, _ := strings.Cut(seg.text, "=")
		key := strings.ToLower(strings.TrimPrefix(name, "$"))
		if seen[key] {
			return Params{}, &ParseError{Offset: seg.pos, Fragment: name, Msg: "duplicate parameter"}
		}
		seen[key] = true
		decoded, err := url.QueryUnescape(value)
		if err != nil {
			return Params{}, &ParseError{Param: key, Offset: 0, Fragment: value, Msg: "invalid escape sequence"}
		}
		switch key {
		case ParamFilter:
			p.Filter = decoded
		case ParamOrderBy:
			p.OrderBy = decoded
		case ParamTop:
			p.Top = decoded
		case ParamSkip:
			p.Skip = decoded
		case ParamSelect:
			p.Select = decoded
		default:
			return Params{}, &ParseError{Offset: seg.pos, Fragment: name, Msg: "unknown parameter"}
		}
	}
	return p, nil
}

type segment struct {
	text string
	pos  int
}

func splitOutsideQuotes(raw string) []segment {
	var out []segment
	quoted := false
	start := 0
	for i := 0; i < len(raw); i++ {
		switch raw[i] {
		case '\'':
			quoted = !quoted
		case '&':
			if !quoted {
				out = append(out, segment{text: raw[start:i], pos: start})
				start = i + 1
			}
		}
	}
	return append(out, segment{text: raw[start:], pos: start})
}

// Build checks decoded parameters against s and assembles the Query.
func Build(p Params, s *schema.Schema, opts Options) (*Query, error) {
	q := &Query{}
	if strings.TrimSpace(p.Filter) != "" {
		expr, err := parseFilter(p.Filter, s)
		if err != nil {
			err.Param = ParamFilter
			return nil, err
		}
		q.Filter = expr
	}
	if strings.TrimSpace(p.OrderBy) != "" {
		clauses, err := parseOrderBy(p.OrderBy, s)
		if err != nil {
			err.Param = ParamOrderBy
			return nil, err
		}
		q.OrderBy = clauses
	}
	if p.Top != "" {
		n, err := strconv.Atoi(strings.TrimSpace(p.Top))
		switch {
		case err != nil:
			return nil, &ParseError{Param: ParamTop, Fragment: p.Top, Msg: "not an integer"}
		case n <= 0:
			return nil, &ParseError{Param: ParamTop, Fragment: p.Top, Msg: "must be positive"}
		case n > opts.maxPageSize():
			return nil, &ParseError{Param: ParamTop, Fragment: p.Top, Msg: fmt.Sprintf("exceeds maximum page size %d", opts.maxPageSize())}
		}
		q.Top = &n
	}
	if p.Skip != "" {
		n, err := strconv.Atoi(strings.TrimSpace(p.Skip))
		switch {
		case err != nil:
			return nil, &ParseError{Param: ParamSkip, Fragment: p.Skip, Msg: "not an integer"}
		case n < 0:
			return nil, &ParseError{Param: ParamSkip, Fragment: p.Skip, Msg: "must not be negative"}
		}
		q.Skip = n
	}
	if strings.TrimSpace(p.Select) != "" {
		fields, err := parseSelect(p.Select, s)
		if err != nil {
			err.Param = ParamSelect
			return nil, err
		}
		q.Select = fields
	}
	return q, nil
}

// list splits a comma-separated clause, keeping each element's offset.
func list(src string) []segment {
	var out []segment
	start := 0
	for i := 0; i <= len(src); i++ {
		if i == len(src) || src[i] == ',' {
			seg := src[start:i]
			trimmed := strings.TrimLeft(seg, " \t")
			out = append(out, segment{
				text: strings.TrimSpace(seg),
				pos:  start + len(seg) - len(trimmed),
			})
			start = i + 1
		}
	}
	return out
}

func parseOrderBy(src string, s *schema.Schema) ([]SortClause, *ParseError) {
	var out []SortClause
	seen := make(map[string]bool)
	for _, seg := range list(src) {
		if seg.text == "" {
			return nil, &ParseError{Offset: seg.pos, Fragment: src, Msg: "empty sort clause"}
		}
		fields := strings.Fields(seg.text)
		if len(fields) > 2 {
			return nil, &ParseError{Offset: seg.pos, Fragment: seg.text, Msg: "expected field [asc|desc]"}
		}
		clause := SortClause{}
		if len(fields) == 2 {
			switch fields[1] {
			case "asc":
			case "desc":
				clause.Desc = true
			default:
				return nil, &ParseError{Offset: seg.pos + strings.Index(seg.text, fields[1]), Fragment: fields[1], Msg: "sort direction must be asc or desc"}
			}
		}
		ref, perr := parseFieldRefText(fields[0], seg.pos)
		if perr != nil {
			return nil, perr
		}
		f, isArray, perr := resolve(s, ref, seg.pos)
		if perr != nil {
			return nil, perr
		}
		ref.Builtin = f == idField
		if isArray {
			return nil, &ParseError{Offset: seg.pos, Fragment: fields[0], Msg: "cannot sort by an array field; address an element"}
		}
		if !f.Scalar() {
			return nil, &ParseError{Offset: seg.pos, Fragment: fields[0], Msg: "cannot sort by a nested array"}
		}
		if seen[ref.String()] {
			return nil, &ParseError{Offset: seg.pos, Fragment: fields[0], Msg: "duplicate sort field"}
		}
		seen[ref.String()] = true
		clause.Field = ref
		clause.Kind = f.Kind
		out = append(out, clause)
	}
	return out, nil
}

func parseSelect(src string, s *schema.Schema) ([]string, *ParseError) {
	var out []string
	seen := make(map[string]bool)
	for _, seg := range list(src) {
		if seg.text == "" {
			return nil, &ParseError{Offset: seg.pos, Fragment: src, Msg: "empty field name"}
		}
		if seg.text != models.BodyField {
			if _, _, perr := resolve(s, FieldRef{Name: seg.text, Index: -1}, seg.pos); perr != nil {
				return nil, perr
			}
		}
		if seen[seg.text] {
			return nil, &ParseError{Offset: seg.pos, Fragment: seg.text, Msg: "duplicate field"}
		}
		seen[seg.text] = true
		out = append(out, seg.text)
	}
	return out, nil
}

// parseFieldRefText parses "name" or "name[3]" as used in orderby.
func parseFieldRefText(text string, pos int) (FieldRef, *ParseError) {
	toks, perr := lex(text)
	if perr != nil {
		perr.Offset += pos
		return FieldRef{}, perr
	}
	p := &parser{src: text, toks: toks}
	ref, perr := p.fieldRef()
	if perr == nil && p.peek().kind != tkEOF {
		perr = p.errorf(p.peek(), "unexpected %q after field", p.peek().text)
	}
	if perr != nil {
		perr.Offset += pos
		return FieldRef{}, perr
	}
	return ref, nil
}

// resolve looks a reference up in s. It returns the field describing the
// addressed value and whether the value is a whole array.
func resolve(s *schema.Schema, ref FieldRef, pos int) (*schema.Field, bool, *ParseError) {
	f, ok := s.Field(ref.Name)
	if !ok {
		if ref.Name == IDField {
			if ref.Index >= 0 {
				return nil, false, &ParseError{Offset: pos, Fragment: ref.String(), Msg: "field is not an array"}
			}
			return idField, false, nil
		}
		return nil, false, &ParseError{Offset: pos, Fragment: ref.Name, Msg: "unknown field"}
	}
	if ref.Index >= 0 {
		if f.Kind != schema.KindArray {
			return nil, false, &ParseError{Offset: pos, Fragment: ref.String(), Msg: "field is not an array"}
		}
		return f.Items, false, nil
	}
	if f.Kind == schema.KindArray {
		return f.Items, true, nil
	}
	return f, false, nil
}

var idField = &schema.Field{Name: IDField, Kind: schema.KindString}
