// Package probe reads the router's Prometheus endpoint and turns the routed
// and dropped counters into per-minute rates.
//
// Probe.Sample fetches and parses the text exposition with expfmt. Probe.Observe
// keeps the previous sample and derives rates from the delta; the first
// sample only sets the baseline. A counter that went backwards (router
// restart) is treated as a fresh start from zero.
//
// Probe.Run samples on an interval and logs the rates. It never affects
// shipping.
package probe
