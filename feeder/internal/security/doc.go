// Package security inspects the TLS certificates of the feeder's HTTPS
// sources at startup and reports how long each has left.
package security
