// Package types defines the shared Go types exchanged between the feeder and
// the router. They are the wire representation of a transaction record and
// of the routing decision the router made for it.
package types
