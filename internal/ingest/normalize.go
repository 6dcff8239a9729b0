package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/MAKaminski/alpha-kite/internal/model"
)

// NormalizeSymbol trims and upper-cases a ticker.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// NormalizeSymbols normalizes and de-duplicates symbols, keeping order.
func NormalizeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = NormalizeSymbol(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// NormalizeType maps an option side to CALL or PUT.
func NormalizeType(s string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "C", model.OptionCall:
		return model.OptionCall, nil
	case "P", model.OptionPut:
		return model.OptionPut, nil
	default:
		return "", fmt.Errorf("unknown option type %q", s)
	}
}

// NormalizeQuote converts q into an equity_data record. A zero quote
// timestamp is replaced by now.
func NormalizeQuote(q model.RawQuote, source string, now time.Time) model.Record {
	ts := q.Timestamp
	if ts.IsZero() {
		ts = now
	}
	r := model.Record{
		model.FieldSymbol:    NormalizeSymbol(q.Symbol),
		model.FieldPrice:     q.Price,
		model.FieldChange:    q.Change,
		model.FieldVolume:    q.Volume,
		model.FieldSource:    source,
		model.FieldTimestamp: model.FormatTime(ts),
	}
	if q.Description != "" {
		r[model.FieldDescription] = q.Description
	}
	setNonZero(r, model.FieldOpen, q.Open)
	setNonZero(r, model.FieldHigh, q.High)
	setNonZero(r, model.FieldLow, q.Low)
	return r
}

// NormalizeOption converts o into an options_data record.
func NormalizeOption(o model.RawOption, source string, now time.Time) (model.Record, error) {
	typ, err := NormalizeType(o.Type)
	if err != nil {
		return nil, err
	}
	if o.Expiry.IsZero() {
		return nil, fmt.Errorf("option %s %v %s: missing expiry", o.Symbol, o.Strike, typ)
	}
	ts := o.Timestamp
	if ts.IsZero() {
		ts = now
	}

	r := model.Record{
		model.FieldSymbol:       NormalizeSymbol(o.Symbol),
		model.FieldStrike:       o.Strike,
		model.FieldType:         typ,
		model.FieldExpiry:       model.FormatDate(o.Expiry),
		model.FieldBid:          o.Bid,
		model.FieldAsk:          o.Ask,
		model.FieldVolume:       o.Volume,
		model.FieldOpenInterest: o.OpenInterest,
		model.FieldSource:       source,
		model.FieldTimestamp:    model.FormatTime(ts),
	}
	if o.Bid > 0 && o.Ask > 0 {
		r[model.FieldPrice] = (o.Bid + o.Ask) / 2
	}
	return r, nil
}

// NormalizeBar converts a daily bar into an equity_data record priced at
// the close.
func NormalizeBar(b model.RawBar, source string) model.Record {
	r := model.Record{
		model.FieldSymbol:    NormalizeSymbol(b.Symbol),
		model.FieldPrice:     b.Close,
		model.FieldClose:     b.Close,
		model.FieldVolume:    b.Volume,
		model.FieldSource:    source,
		model.FieldTimestamp: model.FormatTime(b.Date),
	}
	setNonZero(r, model.FieldOpen, b.Open)
	setNonZero(r, model.FieldHigh, b.High)
	setNonZero(r, model.FieldLow, b.Low)
	return r
}

func setNonZero(r model.Record, field string, v float64) {
	if v != 0 {
		r[field] = v
	}
}
