// Package ws streams router statistics to WebSocket clients.
//
// New(source, interval) creates a Hub. Hub.Run(ctx) broadcasts the current
// totals to every client each interval and closes all connections when ctx
// is cancelled. Hub.ServeHTTP upgrades the request, sends the totals
// immediately, then keeps the client subscribed.
//
// Message format sent to clients:
//
//	{
//	  "event": "stats",
//	  "data":  { /* same schema as flow.Stats */ }
//	}
//
// The hub is mounted at /ws/stream. Origins are not checked here; apply
// CORS at the reverse proxy.
package ws
