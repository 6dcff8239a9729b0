package filter

import (
	"fmt"
	"math"
	"strings"

	"github.com/MAKaminski/alpha-kite/internal/model"
)

// Match reports whether rec satisfies every predicate. A record missing a
// constrained field never matches.
func Match(preds []Predicate, rec model.Record) bool {
	for _, p := range preds {
		v, ok := rec[p.Field]
		if !ok || v == nil {
			return false
		}
		if !matchOne(p, v) {
			return false
		}
	}
	return true
}

func matchOne(p Predicate, v any) bool {
	switch p.Op {
	case OpEq:
		c, ok := Compare(v, p.Value)
		return ok && c == 0
	case OpIn:
		for _, want := range p.Values {
			if c, ok := Compare(v, want); ok && c == 0 {
				return true
			}
		}
		return false
	case OpGt:
		c, ok := Compare(v, p.Value)
		return ok && c > 0
	case OpGte:
		c, ok := Compare(v, p.Value)
		return ok && c >= 0
	case OpLt:
		c, ok := Compare(v, p.Value)
		return ok && c < 0
	case OpLte:
		c, ok := Compare(v, p.Value)
		return ok && c <= 0
	}
	return false
}

// Compare orders a and b. Two strings compare as instants when both parse as
// timestamps and as strings otherwise; they are never read as numbers. When
// either side is a number, both compare numerically if the other converts.
// The second result is false when either side is nil or NaN.
func Compare(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	_, aStr := a.(string)
	_, bStr := b.(string)
	if !aStr || !bStr {
		if fa, ok := model.ToFloat(a); ok {
			if fb, ok := model.ToFloat(b); ok {
				if math.IsNaN(fa) || math.IsNaN(fb) {
					return 0, false
				}
				return cmpFloat(fa, fb), true
			}
		}
	}
	if ta, ok := model.ToTime(a); ok {
		if tb, ok := model.ToTime(b); ok {
			return ta.Compare(tb), true
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b)), true
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
