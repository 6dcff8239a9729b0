package marketdata

// QuoteEntry is one symbol's entry in a /quotes response. The response is a
// JSON object keyed by symbol.
type QuoteEntry struct {
	Symbol    string         `json:"symbol"`
	AssetType string         `json:"assetMainType"`
	Quote     QuoteData      `json:"quote"`
	Reference QuoteReference `json:"reference"`
}

// QuoteData holds the pricing fields of a quote.
type QuoteData struct {
	LastPrice   float64 `json:"lastPrice"`
	NetChange   float64 `json:"netChange"`
	TotalVolume int64   `json:"totalVolume"`
	OpenPrice   float64 `json:"openPrice"`
	HighPrice   float64 `json:"highPrice"`
	LowPrice    float64 `json:"lowPrice"`
	ClosePrice  float64 `json:"closePrice"` // Previous session close
	BidPrice    float64 `json:"bidPrice"`
	AskPrice    float64 `json:"askPrice"`
	QuoteTime   int64   `json:"quoteTime"` // Unix milliseconds
}

// QuoteReference holds static instrument data.
type QuoteReference struct {
	Description string `json:"description"`
	Exchange    string `json:"exchangeName"`
}

// ChainResponse is the /chains response. Both maps are keyed first by
// "YYYY-MM-DD:daysToExpiry" and then by strike string.
type ChainResponse struct {
	Symbol          string                                 `json:"symbol"`
	Status          string                                 `json:"status"`
	UnderlyingPrice float64                                `json:"underlyingPrice"`
	CallExpDateMap  map[string]map[string][]OptionContract `json:"callExpDateMap"`
	PutExpDateMap   map[string]map[string][]OptionContract `json:"putExpDateMap"`
}

// OptionContract is one contract in a chain.
type OptionContract struct {
	PutCall         string  `json:"putCall"` // CALL or PUT
	Symbol          string  `json:"symbol"`
	Bid             float64 `json:"bid"`
	Ask             float64 `json:"ask"`
	Last            float64 `json:"last"`
	TotalVolume     int64   `json:"totalVolume"`
	OpenInterest    int64   `json:"openInterest"`
	StrikePrice     float64 `json:"strikePrice"`
	ExpirationDate  string  `json:"expirationDate"` // ISO 8601
	QuoteTimeInLong int64   `json:"quoteTimeInLong"`
}

// PriceHistoryResponse is the /pricehistory response.
type PriceHistoryResponse struct {
	Symbol  string   `json:"symbol"`
	Empty   bool     `json:"empty"`
	Candles []Candle `json:"candles"`
}

// Candle is one OHLCV bar.
type Candle struct {
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   int64   `json:"volume"`
	Datetime int64   `json:"datetime"` // Unix milliseconds
}
