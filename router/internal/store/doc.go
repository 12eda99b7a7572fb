// Package store keeps a short window of recently routed records per output
// channel, for the REST API and the WebSocket hub.
package store
