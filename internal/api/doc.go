// Package api serves the merged update view over HTTP.
//
// Routes:
//
//	GET /healthz
//	GET /metrics
//	GET /v1/stats
//	GET /v1/objects/{hash}
//	GET /v1/{kind}/updates      paginated query, JSON or CSV
//	GET /v1/{kind}/latest       most recently seen content of one entity
//	GET /v1/{kind}/provenance/{hash}
//
// The updates endpoint accepts entity (comma-separated or repeated),
// season, day, before, after (RFC 3339), search, started (true/false),
// where (path=value, repeatable), order (asc/desc), count, page and
// format (json/csv). JSON responses are {"data": [...], "nextPage": "..."};
// CSV responses take their header from the first row's top-level fields.
package api
