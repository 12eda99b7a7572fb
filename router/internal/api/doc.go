// Package api implements the HTTP REST API for the router.
//
// New(flow, store, opts...) returns an http.Handler that serves:
//
//	GET /api/v1/health               - state, threshold and outcome totals
//	POST /api/v1/records             - classify a batch (same body as the gRPC Submit)
//	GET /api/v1/channels/{name}      - recent records routed to fraud or non-fraud
//	GET /api/v1/stats                - running totals plus sink queue state
//	GET /api/v1/processor            - properties, relationships, active threshold
//	PUT /api/v1/processor/threshold  - replace the threshold ({"value":"1500"})
//	GET /api/v1/diagnostics          - human-readable hints derived from the totals
//
// All endpoints respond with Content-Type: application/json and return 405
// for methods they do not serve. JSON types are defined in types.go.
package api
