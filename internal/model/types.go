package model

import (
	"encoding/json"
	"math"
	"time"
)

// -----------------------------------------------------------------------------
// Producer Types
// -----------------------------------------------------------------------------

// RawQuote is an equity quote as returned by a market-data producer.
type RawQuote struct {
	Symbol        string    `json:"symbol"`
	Description   string    `json:"description,omitempty"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	Volume        int64     `json:"volume"`
	Open          float64   `json:"open,omitempty"`
	High          float64   `json:"high,omitempty"`
	Low           float64   `json:"low,omitempty"`
	PreviousClose float64   `json:"previous_close,omitempty"`
	Timestamp     time.Time `json:"timestamp"` // Zero means "use ingestion time"
}

// RawOption is one option contract snapshot as returned by a producer.
type RawOption struct {
	Symbol       string    `json:"symbol"`
	Strike       float64   `json:"strike"`
	Type         string    `json:"type"` // CALL/PUT, any case; "C"/"P" accepted
	Expiry       time.Time `json:"expiry"`
	Bid          float64   `json:"bid"`
	Ask          float64   `json:"ask"`
	Volume       int64     `json:"volume"`
	OpenInterest int64     `json:"open_interest"`
	Timestamp    time.Time `json:"timestamp"`
}

// RawBar is one daily OHLC bar from a historical request.
type RawBar struct {
	Symbol string    `json:"symbol"`
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// -----------------------------------------------------------------------------
// Change Feed Types
// -----------------------------------------------------------------------------

// ChangeType is the kind of row mutation carried by a ChangeEvent.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// ChangeEvent is a store-originated notification that a row changed.
type ChangeEvent struct {
	Table      string     `json:"table"`
	Type       ChangeType `json:"type"`
	New        Record     `json:"new,omitempty"` // Empty for deletes
	Old        Record     `json:"old,omitempty"` // Primary key only unless the store sends full rows
	CommitTime time.Time  `json:"commit_time"`
}

// -----------------------------------------------------------------------------
// Derived Types
// -----------------------------------------------------------------------------

// Stats summarizes the most recent sample of a table.
type Stats struct {
	TotalRecords  int     `json:"totalRecords"`
	UniqueSymbols int     `json:"uniqueSymbols"`
	AveragePrice  float64 `json:"averagePrice"` // NaN when the sample is empty
	TotalVolume   float64 `json:"totalVolume"`
}

// HasAveragePrice reports whether AveragePrice is defined.
func (s Stats) HasAveragePrice() bool {
	return !math.IsNaN(s.AveragePrice)
}

// MarshalJSON encodes an undefined average price as null.
func (s Stats) MarshalJSON() ([]byte, error) {
	var avg *float64
	if s.HasAveragePrice() {
		avg = &s.AveragePrice
	}
	return json.Marshal(struct {
		TotalRecords  int      `json:"totalRecords"`
		UniqueSymbols int      `json:"uniqueSymbols"`
		AveragePrice  *float64 `json:"averagePrice"`
		TotalVolume   float64  `json:"totalVolume"`
	}{s.TotalRecords, s.UniqueSymbols, avg, s.TotalVolume})
}

// OptionsChainEntry is one (strike, type) slot of an options chain.
// Never persisted.
type OptionsChainEntry struct {
	Strike float64 `json:"strike"`
	Type   string  `json:"type"`
	Record Record  `json:"record"`
}

// Series is the chart-ready price history of a symbol, ordered oldest first.
type Series struct {
	Symbol     string     `json:"symbol"`
	Timestamps []string   `json:"timestamps"`
	Prices     []float64  `json:"prices"`
	VWAPs      []float64  `json:"vwaps"`
	MA9s       []*float64 `json:"ma9s"` // nil until the window fills
}
