package query

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/starford/quarry/internal/models"
	"github.com/starford/quarry/internal/schema"
)

// Result is one page of a query. Total counts every match before paging.
type Result struct {
	Items []*models.Item
	Total int
	Skip  int
	Top   int // applied page size, 0 when unbounded
}

// Execute runs q over items in a fixed order: filter, stable sort, count,
// skip/top, project. items is not modified. The schema is bound at parse
// time, so Execute only needs the ordered item set.
func Execute(q *Query, items []*models.Item) Result {
	matched := make([]*models.Item, 0, len(items))
	for _, it := range items {
		if q.Filter == nil || Match(q.Filter, it) {
			matched = append(matched, it)
		}
	}

	if len(q.OrderBy) > 0 {
		slices.SortStableFunc(matched, func(a, b *models.Item) int {
			for _, key := range q.OrderBy {
				c := compareKey(key, a, b)
				if key.Desc {
					c = -c
				}
				if c != 0 {
					return c
				}
			}
			return 0
		})
	}

	res := Result{Total: len(matched), Skip: q.Skip}
	start := min(q.Skip, len(matched))
	end := len(matched)
	if q.Top != nil {
		res.Top = *q.Top
		end = min(start+*q.Top, len(matched))
	}
	page := matched[start:end]

	res.Items = make([]*models.Item, len(page))
	for i, it := range page {
		if len(q.Select) > 0 {
			it = it.Project(q.Select)
		}
		res.Items[i] = it
	}
	return res
}

// Match evaluates a filter tree against one item.
func Match(e Expr, it *models.Item) bool {
	switch n := e.(type) {
	case *And:
		return Match(n.Left, it) && Match(n.Right, it)
	case *Or:
		return Match(n.Left, it) || Match(n.Right, it)
	case *Not:
		return !Match(n.X, it)
	case *Comparison:
		return matchComparison(n, it)
	}
	return false
}

func matchComparison(c *Comparison, it *models.Item) bool {
	raw, ok := lookup(it, c.Field)
	if !ok {
		return c.Op == OpNe
	}
	if !c.Array {
		return compareValue(c, raw)
	}
	elems, ok := raw.([]any)
	if !ok {
		return c.Op == OpNe
	}
	if c.Op == OpNe {
		eq := *c
		eq.Op = OpEq
		for _, el := range elems {
			if compareValue(&eq, el) {
				return false
			}
		}
		return true
	}
	for _, el := range elems {
		if compareValue(c, el) {
			return true
		}
	}
	return false
}

// lookup returns the raw value addressed by ref. Absent keys, nil values
// and out-of-range indexes report false.
func lookup(it *models.Item, ref FieldRef) (any, bool) {
	if ref.Builtin {
		return it.ID, true
	}
	v, ok := it.Metadata.Get(ref.Name)
	if !ok || v == nil {
		return nil, false
	}
	if ref.Index < 0 {
		return v, true
	}
	elems, ok := v.([]any)
	if !ok || ref.Index >= len(elems) || elems[ref.Index] == nil {
		return nil, false
	}
	return elems[ref.Index], true
}

// value is a normalized comparable value of one kind.
type value struct {
	num  float64
	str  string
	b    bool
	time time.Time
}

func normalize(kind schema.Kind, raw any) (value, bool) {
	switch kind {
	case schema.KindNumber:
		f, ok := schema.ToFloat(raw)
		return value{num: f}, ok
	case schema.KindBoolean:
		b, ok := raw.(bool)
		return value{b: b}, ok
	case schema.KindString:
		s, ok := raw.(string)
		return value{str: s}, ok
	case schema.KindDate:
		s, ok := raw.(string)
		if !ok {
			return value{}, false
		}
		t, ok := schema.ParseDate(s)
		return value{str: s, time: t}, ok
	}
	return value{}, false
}

func literalValue(kind schema.Kind, l Literal) value {
	switch l.Kind {
	case LitNumber:
		return value{num: l.Num}
	case LitBool:
		return value{b: l.Bool}
	}
	v := value{str: l.Str}
	if kind == schema.KindDate {
		v.time, _ = schema.ParseDate(l.Str)
	}
	return v
}

func compareValue(c *Comparison, raw any) bool {
	v, ok := normalize(c.Kind, raw)
	if !ok {
		return c.Op == OpNe
	}
	lit := literalValue(c.Kind, c.Value)

	if c.Op.textual() {
		s, sub := strings.ToLower(v.str), strings.ToLower(lit.str)
		switch c.Op {
		case OpContains:
			return strings.Contains(s, sub)
		case OpStartsWith:
			return strings.HasPrefix(s, sub)
		default:
			return strings.HasSuffix(s, sub)
		}
	}
	if c.Fold {
		v.str, lit.str = strings.ToLower(v.str), strings.ToLower(lit.str)
	}

	d := compareValues(c.Kind, v, lit)
	switch c.Op {
	case OpEq:
		return d == 0
	case OpNe:
		return d != 0
	case OpGt:
		return d > 0
	case OpLt:
		return d < 0
	case OpGe:
		return d >= 0
	case OpLe:
		return d <= 0
	}
	return false
}

func compareValues(kind schema.Kind, a, b value) int {
	switch kind {
	case schema.KindNumber:
		return cmp.Compare(a.num, b.num)
	case schema.KindBoolean:
		switch {
		case a.b == b.b:
			return 0
		case !a.b:
			return -1
		}
		return 1
	case schema.KindDate:
		return a.time.Compare(b.time)
	}
	return strings.Compare(a.str, b.str)
}

// compareKey orders two items on one sort key. Missing values compare as
// less than any present value.
func compareKey(key SortClause, a, b *models.Item) int {
	av, aok := sortValue(key, a)
	bv, bok := sortValue(key, b)
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return -1
	case !bok:
		return 1
	}
	return compareValues(key.Kind, av, bv)
}

func sortValue(key SortClause, it *models.Item) (value, bool) {
	raw, ok := lookup(it, key.Field)
	if !ok {
		return value{}, false
	}
	return normalize(key.Kind, raw)
}
