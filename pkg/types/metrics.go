package types

// Prometheus metric family names exported by the router and read back by
// the feeder's probe.
const (
	MetricRoutedTotal  = "txnroute_records_routed_total"
	MetricDroppedTotal = "txnroute_records_dropped_total"
	MetricThreshold    = "txnroute_threshold"
)
