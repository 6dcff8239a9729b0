// Package marketdata is a REST client for a brokerage market-data API
// (quotes, option chains, daily price history) and an ingest producer
// built on it.
//
// Endpoints, relative to the configured base URL:
//   - GET /quotes?symbols=A,B
//   - GET /chains?symbol=A&fromDate=YYYY-MM-DD&toDate=YYYY-MM-DD
//   - GET /pricehistory?symbol=A&startDate=ms&endDate=ms
//
// Requests carry an OAuth2 bearer token from a TokenProvider.
package marketdata
