package filter

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/MAKaminski/alpha-kite/internal/model"
)

// SQL renders preds as a WHERE clause body joined with AND. Placeholders are
// numbered from firstArg. An empty predicate list renders "TRUE".
func SQL(preds []Predicate, firstArg int) (string, []any) {
	if len(preds) == 0 {
		return "TRUE", nil
	}

	var (
		clauses = make([]string, 0, len(preds))
		args    []any
		n       = firstArg
	)
	for _, p := range preds {
		col := pgx.Identifier{p.Field}.Sanitize()
		switch p.Op {
		case OpIn:
			ph := make([]string, len(p.Values))
			for i, v := range p.Values {
				ph[i] = "$" + strconv.Itoa(n)
				args = append(args, sqlValue(v))
				n++
			}
			clauses = append(clauses, fmt.Sprintf("%s IN (%s)", col, strings.Join(ph, ", ")))
		default:
			clauses = append(clauses, fmt.Sprintf("%s %s $%d", col, sqlOp(p.Op), n))
			args = append(args, sqlValue(p.Value))
			n++
		}
	}
	return strings.Join(clauses, " AND "), args
}

func sqlOp(op Op) string {
	switch op {
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	default:
		return "="
	}
}

// sqlValue passes numbers and times through so pgx encodes them natively;
// everything else goes as text and is cast by the server.
func sqlValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case string, bool, float64, float32, int, int32, int64:
		return t
	default:
		return formatValue(v)
	}
}

// Query renders preds as PostgREST query parameters. Several constraints on
// one field become repeated parameters, which PostgREST combines with AND.
func Query(preds []Predicate) url.Values {
	q := url.Values{}
	for _, p := range preds {
		if p.Op == OpIn {
			items := make([]string, len(p.Values))
			for i, v := range p.Values {
				items[i] = quoteListItem(formatValue(v))
			}
			q.Add(p.Field, "in.("+strings.Join(items, ",")+")")
			continue
		}
		q.Add(p.Field, string(p.Op)+"."+formatValue(p.Value))
	}
	return q
}

func quoteListItem(s string) string {
	if strings.ContainsAny(s, `,()" `) {
		return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
	}
	return s
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case time.Time:
		return model.FormatTime(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	default:
		return fmt.Sprint(v)
	}
}
