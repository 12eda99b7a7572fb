// Package sink delivers routed records to external targets.
//
// A Dispatcher owns a bounded buffer of Deliveries. Enqueue never blocks:
// when the buffer is full the oldest pending delivery is dropped so the
// newest routing decisions are always kept. Run drains the buffer and hands
// each delivery to every sink subscribed to its channel. Delivery errors are
// logged and counted; they are never retried.
//
// Sinks:
//   - Webhook  Slack, Teams or generic HTTP JSON POST (10s timeout)
//   - Postgres one row per delivery via database/sql and lib/pq
//   - File     JSON lines appended to a local file
package sink
