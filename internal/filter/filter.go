package filter

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"time"
)

// Op is a predicate operator.
type Op string

const (
	OpEq  Op = "eq"
	OpIn  Op = "in"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
)

// rangeOps are the keys accepted inside an operator map.
var rangeOps = map[string]Op{
	"gt":  OpGt,
	"gte": OpGte,
	"lt":  OpLt,
	"lte": OpLte,
}

var opOrder = map[Op]int{OpEq: 0, OpIn: 1, OpGt: 2, OpGte: 3, OpLt: 4, OpLte: 5}

// Spec is a filter specification. A nil or empty Spec matches everything.
type Spec map[string]any

// Ops is an operator map for range constraints, e.g. Ops{"gte": 10, "lt": 20}.
type Ops map[string]any

// Predicate is one compiled constraint.
type Predicate struct {
	Field  string
	Op     Op
	Value  any   // Set for every operator except OpIn
	Values []any // Set for OpIn
}

func (p Predicate) String() string {
	if p.Op == OpIn {
		return fmt.Sprintf("%s in %v", p.Field, p.Values)
	}
	return fmt.Sprintf("%s %s %v", p.Field, p.Op, p.Value)
}

// InvalidFilterError reports a malformed filter specification.
type InvalidFilterError struct {
	Table    string
	Field    string
	Operator string
	Reason   string
}

func (e *InvalidFilterError) Error() string {
	if e.Operator != "" {
		return fmt.Sprintf("invalid filter on %s.%s: operator %q: %s", e.Table, e.Field, e.Operator, e.Reason)
	}
	return fmt.Sprintf("invalid filter on %s.%s: %s", e.Table, e.Field, e.Reason)
}

// Range returns a Spec constraining field to [start, end] inclusive.
func Range(field string, start, end any) Spec {
	return Spec{field: Ops{"gte": start, "lte": end}}
}

// Compile translates spec into predicates for table. Predicates are ordered
// by field, then operator, so the output is deterministic.
func Compile(table string, spec Spec) ([]Predicate, error) {
	if len(spec) == 0 {
		return nil, nil
	}

	fields := make([]string, 0, len(spec))
	for f := range spec {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var preds []Predicate
	for _, field := range fields {
		if field == "" {
			return nil, &InvalidFilterError{Table: table, Reason: "empty field name"}
		}
		compiled, err := compileField(table, field, spec[field])
		if err != nil {
			return nil, err
		}
		preds = append(preds, compiled...)
	}
	return preds, nil
}

func compileField(table, field string, v any) ([]Predicate, error) {
	if v == nil {
		return nil, &InvalidFilterError{Table: table, Field: field, Reason: "nil value"}
	}

	if ops, ok := asOps(v); ok {
		return compileOps(table, field, ops)
	}

	if values, ok := asList(v); ok {
		if len(values) == 0 {
			return nil, &InvalidFilterError{Table: table, Field: field, Reason: "empty membership set"}
		}
		return []Predicate{{Field: field, Op: OpIn, Values: values}}, nil
	}

	return []Predicate{{Field: field, Op: OpEq, Value: v}}, nil
}

func compileOps(table, field string, ops map[string]any) ([]Predicate, error) {
	if len(ops) == 0 {
		return nil, &InvalidFilterError{Table: table, Field: field, Reason: "empty operator map"}
	}

	preds := make([]Predicate, 0, len(ops))
	for key, val := range ops {
		op, ok := rangeOps[key]
		if !ok {
			return nil, &InvalidFilterError{Table: table, Field: field, Operator: key, Reason: "unrecognized operator"}
		}
		if val == nil {
			return nil, &InvalidFilterError{Table: table, Field: field, Operator: key, Reason: "nil value"}
		}
		preds = append(preds, Predicate{Field: field, Op: op, Value: val})
	}
	sort.Slice(preds, func(i, j int) bool { return opOrder[preds[i].Op] < opOrder[preds[j].Op] })
	return preds, nil
}

func asOps(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case Ops:
		return m, true
	case map[string]any:
		return m, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

func asList(v any) ([]any, bool) {
	switch v.(type) {
	case []byte, json.RawMessage, string, time.Time:
		return nil, false
	case []any:
		return append([]any(nil), v.([]any)...), true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
