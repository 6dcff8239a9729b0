package marketdata

import (
	"sort"
	"strings"
	"time"

	"github.com/MAKaminski/alpha-kite/internal/model"
)

// MillisToTime converts Unix milliseconds to UTC. Zero stays the zero time.
func MillisToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// ParseExpiry reads a contract expiration date, or the date part of a
// "YYYY-MM-DD:dte" map key.
func ParseExpiry(s string) time.Time {
	if i := strings.IndexByte(s, ':'); i == 10 {
		s = s[:i]
	}
	t, ok := model.ParseTime(s)
	if !ok {
		return time.Time{}
	}
	return t.UTC()
}

// ToRawQuote converts a quote entry.
func (q QuoteEntry) ToRawQuote(symbol string) model.RawQuote {
	if q.Symbol != "" {
		symbol = q.Symbol
	}
	return model.RawQuote{
		Symbol:        symbol,
		Description:   q.Reference.Description,
		Price:         q.Quote.LastPrice,
		Change:        q.Quote.NetChange,
		Volume:        q.Quote.TotalVolume,
		Open:          q.Quote.OpenPrice,
		High:          q.Quote.HighPrice,
		Low:           q.Quote.LowPrice,
		PreviousClose: q.Quote.ClosePrice,
		Timestamp:     MillisToTime(q.Quote.QuoteTime),
	}
}

// ToRawOptions flattens both sides of the chain. Output is ordered by
// expiry, strike, then CALL before PUT so repeated fetches are stable.
func (r *ChainResponse) ToRawOptions() []model.RawOption {
	var out []model.RawOption
	appendSide := func(side map[string]map[string][]OptionContract, typ string) {
		for expKey, strikes := range side {
			mapExpiry := ParseExpiry(expKey)
			for _, contracts := range strikes {
				for _, c := range contracts {
					expiry := ParseExpiry(c.ExpirationDate)
					if expiry.IsZero() {
						expiry = mapExpiry
					}
					putCall := c.PutCall
					if putCall == "" {
						putCall = typ
					}
					out = append(out, model.RawOption{
						Symbol:       r.Symbol,
						Strike:       c.StrikePrice,
						Type:         putCall,
						Expiry:       expiry,
						Bid:          c.Bid,
						Ask:          c.Ask,
						Volume:       c.TotalVolume,
						OpenInterest: c.OpenInterest,
						Timestamp:    MillisToTime(c.QuoteTimeInLong),
					})
				}
			}
		}
	}
	appendSide(r.CallExpDateMap, model.OptionCall)
	appendSide(r.PutExpDateMap, model.OptionPut)

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Expiry.Equal(b.Expiry) {
			return a.Expiry.Before(b.Expiry)
		}
		if a.Strike != b.Strike {
			return a.Strike < b.Strike
		}
		return strings.ToUpper(a.Type) < strings.ToUpper(b.Type)
	})
	return out
}

// ToRawBar converts a candle.
func (c Candle) ToRawBar(symbol string) model.RawBar {
	return model.RawBar{
		Symbol: symbol,
		Date:   MillisToTime(c.Datetime),
		Open:   c.Open,
		High:   c.High,
		Low:    c.Low,
		Close:  c.Close,
		Volume: c.Volume,
	}
}
