package query

import (
	"strconv"

	"github.com/starford/quarry/internal/schema"
)

// EqualityTerms returns the exact-match comparisons that every match of e
// must satisfy: eq leaves of the top-level and-chain on un-indexed fields.
// Date fields are excluded because equal instants may be spelled
// differently.
func EqualityTerms(e Expr) []*Comparison {
	switch n := e.(type) {
	case *And:
		return append(EqualityTerms(n.Left), EqualityTerms(n.Right)...)
	case *Comparison:
		if n.Op == OpEq && !n.Fold && n.Field.Index < 0 && n.Kind != schema.KindDate && !n.Field.Builtin {
			return []*Comparison{n}
		}
	}
	return nil
}

// Key returns the equality-index key of the comparison's literal.
func (c *Comparison) Key() string {
	k, _ := Key(c.Kind, literalRaw(c.Value))
	return k
}

// Key returns the equality-index key for a raw metadata value of kind.
// Values that do not normalize to kind report false.
func Key(kind schema.Kind, raw any) (string, bool) {
	v, ok := normalize(kind, raw)
	if !ok {
		return "", false
	}
	switch kind {
	case schema.KindNumber:
		n := v.num
		if n == 0 {
			// -0 compares equal to 0 and must share its key.
			n = 0
		}
		return strconv.FormatFloat(n, 'g', -1, 64), true
	case schema.KindBoolean:
		return strconv.FormatBool(v.b), true
	}
	return v.str, true
}

func literalRaw(l Literal) any {
	switch l.Kind {
	case LitNumber:
		return l.Num
	case LitBool:
		return l.Bool
	}
	return l.Str
}
