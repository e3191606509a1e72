// Package query parses and executes the collection query language:
// filter, orderby, top, skip and select over a schema-typed item set.
package query

import (
	"strconv"
	"strings"

	"github.com/starford/quarry/internal/schema"
)

// DefaultMaxPageSize caps top when Options.MaxPageSize is unset.
const DefaultMaxPageSize = 100

// IDField addresses the resolved item identifier when the schema does not
// declare a field with the same name.
const IDField = "id"

// Op is a comparison operator.
type Op uint8

// Comparison operators.
const (
	OpEq Op = iota + 1
	OpNe
	OpGt
	OpLt
	OpGe
	OpLe
	OpContains
	OpStartsWith
	OpEndsWith
)

var opNames = map[Op]string{
	OpEq:         "eq",
	OpNe:         "ne",
	OpGt:         "gt",
	OpLt:         "lt",
	OpGe:         "ge",
	OpLe:         "le",
	OpContains:   "contains",
	OpStartsWith: "startswith",
	OpEndsWith:   "endswith",
}

func (o Op) String() string { return opNames[o] }

func lookupOp(s string) (Op, bool) {
	for op, name := range opNames {
		if name == s {
			return op, true
		}
	}
	return 0, false
}

// textual reports whether the operator only applies to string values.
func (o Op) textual() bool { return o == OpContains || o == OpStartsWith || o == OpEndsWith }

// ordered reports whether the operator needs an ordering on values.
func (o Op) ordered() bool { return o == OpGt || o == OpLt || o == OpGe || o == OpLe }

// FieldRef names a top-level field, optionally one element of an array
// field. Index is -1 when no element is addressed. Builtin is set when the
// reference resolved to the item identifier rather than a schema field.
type FieldRef struct {
	Name    string
	Index   int
	Builtin bool
}

func (f FieldRef) String() string {
	if f.Index < 0 {
		return f.Name
	}
	return f.Name + "[" + strconv.Itoa(f.Index) + "]"
}

// LitKind is the syntactic type of a literal.
type LitKind uint8

// Literal kinds.
const (
	LitString LitKind = iota + 1
	LitNumber
	LitBool
)

// Literal is a constant on the right-hand side of a comparison.
type Literal struct {
	Kind LitKind
	Str  string
	Num  float64
	Bool bool
}

func (l Literal) String() string {
	switch l.Kind {
	case LitString:
		return "'" + strings.ReplaceAll(l.Str, "'", "''") + "'"
	case LitNumber:
		return strconv.FormatFloat(l.Num, 'g', -1, 64)
	case LitBool:
		return strconv.FormatBool(l.Bool)
	}
	return ""
}

// Expr is a node of a filter tree.
type Expr interface {
	String() string
	isExpr()
}

// Comparison is a leaf: field op literal. Kind is the kind of the compared
// value (the element kind for arrays) and Array reports any-element
// semantics for an un-indexed array field. Fold lowercases both sides.
type Comparison struct {
	Field FieldRef
	Op    Op
	Value Literal
	Fold  bool
	Kind  schema.Kind
	Array bool
}

// And matches when both sides match.
type And struct{ Left, Right Expr }

// Or matches when either side matches.
type Or struct{ Left, Right Expr }

// Not inverts its operand.
type Not struct{ X Expr }

func (*Comparison) isExpr() {}
func (*And) isExpr()        {}
func (*Or) isExpr()         {}
func (*Not) isExpr()        {}

func (c *Comparison) String() string {
	if c.Fold {
		return "tolower(" + c.Field.String() + ") " + c.Op.String() + " tolower(" + c.Value.String() + ")"
	}
	return c.Field.String() + " " + c.Op.String() + " " + c.Value.String()
}

func (a *And) String() string {
	return operand(a.Left, false, precAnd) + " and " + operand(a.Right, true, precAnd)
}

func (o *Or) String() string {
	return operand(o.Left, false, precOr) + " or " + operand(o.Right, true, precOr)
}

func (n *Not) String() string {
	if _, ok := n.X.(*Comparison); ok {
		return "not " + n.X.String()
	}
	if _, ok := n.X.(*Not); ok {
		return "not " + n.X.String()
	}
	return "not (" + n.X.String() + ")"
}

const (
	precOr = iota + 1
	precAnd
	precUnary
)

func precedence(e Expr) int {
	switch e.(type) {
	case *Or:
		return precOr
	case *And:
		return precAnd
	}
	return precUnary
}

// operand renders a child of a binary node, parenthesising it when the
// parser would otherwise associate it differently.
func operand(e Expr, right bool, parent int) string {
	p := precedence(e)
	if p < parent || (right && p == parent) {
		return "(" + e.String() + ")"
	}
	return e.String()
}

// SortClause orders by one field. Kind is the kind of the sorted value.
type SortClause struct {
	Field FieldRef
	Desc  bool
	Kind  schema.Kind
}

func (s SortClause) String() string {
	if s.Desc {
		return s.Field.String() + " desc"
	}
	return s.Field.String() + " asc"
}

// Query is a parsed, schema-checked query expression. Top is nil when no
// page size was requested.
type Query struct {
	Filter  Expr
	OrderBy []SortClause
	Top     *int
	Skip    int
	Select  []string
}

// String renders the canonical query string. Parsing the result yields an
// equivalent Query.
func (q *Query) String() string {
	var parts []string
	if q.Filter != nil {
		parts = append(parts, "filter="+escape(q.Filter.String()))
	}
	if len(q.OrderBy) > 0 {
		keys := make([]string, len(q.OrderBy))
		for i, s := range q.OrderBy {
			keys[i] = s.String()
		}
		parts = append(parts, "orderby="+escape(strings.Join(keys, ",")))
	}
	if q.Top != nil {
		parts = append(parts, "top="+strconv.Itoa(*q.Top))
	}
	if q.Skip > 0 {
		parts = append(parts, "skip="+strconv.Itoa(q.Skip))
	}
	if len(q.Select) > 0 {
		parts = append(parts, "select="+escape(strings.Join(q.Select, ",")))
	}
	return strings.Join(parts, "&")
}

var escaper = strings.NewReplacer("%", "%25", "&", "%26", "+", "%2B")

func escape(s string) string { return escaper.Replace(s) }
