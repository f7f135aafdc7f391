package query

import (
	"sort"
	"strings"
	"time"

	"github.com/Astemirdum/library-admin/library/internal/model"
)

type Op uint8

const (
	OpEq Op = iota + 1
	OpNeq
	OpIsNull
	OpLt
)

func (o Op) String() string {
	switch o {
	case OpEq:
		return "eq"
	case OpNeq:
		return "neq"
	case OpIsNull:
		return "is"
	case OpLt:
		return "lt"
	}
	return "unknown"
}

// Filter is one predicate of a query; all filters of a query are ANDed.
type Filter struct {
	Op     Op
	Column string
	Value  any
}

func (f Filter) Match(r model.Record) bool {
	v, ok := r.Value(f.Column)
	switch f.Op {
	case OpEq:
		return ok && Equal(v, f.Value)
	case OpNeq:
		// as in SQL, a null column is neither equal nor unequal
		return ok && v != nil && !Equal(v, f.Value)
	case OpIsNull:
		return ok && v == nil
	case OpLt:
		if !ok {
			return false
		}
		c, okCmp := Compare(v, f.Value)
		return okCmp && c < 0
	}
	return false
}

func MatchAll(r model.Record, filters []Filter) bool {
	for _, f := range filters {
		if !f.Match(r) {
			return false
		}
	}
	return true
}

// EqValue returns the value of the first eq filter on column.
func EqValue(filters []Filter, column string) (any, bool) {
	for _, f := range filters {
		if f.Op == OpEq && f.Column == column {
			return f.Value, true
		}
	}
	return nil, false
}

// Apply filters, orders and limits rows in memory. total is the number of
// matching rows before the limit was applied.
func Apply(rows []model.Record, q Query) (data []model.Record, total int) {
	matched := make([]model.Record, 0, len(rows))
	for _, r := range rows {
		if MatchAll(r, q.Filters) {
			matched = append(matched, r)
		}
	}
	if q.Order != nil {
		col, asc := q.Order.Column, q.Order.Ascending
		sort.SliceStable(matched, func(i, j int) bool {
			a, _ := matched[i].Value(col)
			b, _ := matched[j].Value(col)
			c, _ := Compare(a, b)
			if c == 0 {
				// ties break on the id in the same direction
				a, _ = matched[i].Value(model.ColID)
				b, _ = matched[j].Value(model.ColID)
				c, _ = Compare(a, b)
			}
			if asc {
				return c < 0
			}
			return c > 0
		})
	}
	total = len(matched)
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, total
}

func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	c, ok := Compare(a, b)
	return ok && c == 0
}

// Compare orders two column values. Numbers of any width compare by value;
// nil sorts before everything else. ok is false for unrelated types.
func Compare(a, b any) (c int, ok bool) {
	switch {
	case a == nil && b == nil:
		return 0, true
	case a == nil:
		return -1, true
	case b == nil:
		return 1, true
	}
	if x, isNum := toFloat(a); isNum {
		y, isNum := toFloat(b)
		if !isNum {
			return 0, false
		}
		return cmp(x, y), true
	}
	switch x := a.(type) {
	case string:
		y, isStr := b.(string)
		if !isStr {
			return 0, false
		}
		return strings.Compare(x, y), true
	case time.Time:
		y, isTime := toTime(b)
		if !isTime {
			return 0, false
		}
		return x.Compare(y), true
	case *time.Time:
		if x == nil {
			return Compare(nil, b)
		}
		return Compare(*x, b)
	case bool:
		y, isBool := b.(bool)
		if !isBool {
			return 0, false
		}
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

func cmp(x, y float64) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}
