// Package httpapi serves the read-only JSON API over the store, the
// aggregation engine and the ingestion pipeline.
//
// Routes:
//
//	GET  /health
//	GET  /api/v1/tables/{table}/latest?limit=
//	GET  /api/v1/tables/{table}/range?start=&end=
//	GET  /api/v1/tables/{table}/search?q=&limit=
//	GET  /api/v1/tables/{table}/count?<field>=<value>
//	GET  /api/v1/stats/{table}?sample=
//	GET  /api/v1/history/{symbol}?days=
//	GET  /api/v1/series/{symbol}?days=
//	GET  /api/v1/options/{symbol}/chain?expiry=
//	GET  /api/v1/quotes/{symbol}
//	POST /api/v1/refresh
//
// Unknown tables, malformed filters and bad parameters answer 400, missing
// data answers 404 and everything else 500. Error bodies are {"error": msg}.
package httpapi
