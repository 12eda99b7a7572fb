package api

import (
	"fmt"
	"sort"

	"github.com/txnroute/txnroute/router/internal/classifier"
	"github.com/txnroute/txnroute/router/internal/flow"
)

// DiagnosticHint is one human-readable insight about the router's traffic.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical"
	Level  string `json:"level"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
	// Value is an optional number associated with the hint (e.g. drop %).
	Value *float64 `json:"value,omitempty"`
}

var levelOrder = map[string]int{"critical": 0, "warning": 1, "info": 2, "ok": 3}

// computeDiagnostics derives hints from running totals. Hints are ordered
// critical first, then warnings, info and ok.
func computeDiagnostics(s flow.Stats, queueDropped int) []DiagnosticHint {
	var hints []DiagnosticHint

	if s.Submitted == 0 {
		return []DiagnosticHint{{
			Key:   "no_traffic",
			Level: "info",
			Title: "No traffic yet",
			Detail: "No records have been submitted since the router started. " +
				"Check that the feeder is running and pointed at this router's gRPC port.",
		}}
	}

	for _, r := range []struct {
		reason classifier.Reason
		title  string
		cause  string
	}{
		{classifier.ReasonMissingAmount, "Missing amounts", "carry no transaction.amount attribute"},
		{classifier.ReasonUnparseableAmount, "Unparseable amounts", "have a transaction.amount that is not a number"},
	} {
		n := s.Dropped[string(r.reason)]
		if n == 0 {
			continue
		}
		pct := float64(n) / float64(s.Submitted) * 100
		level := "info"
		switch {
		case pct >= 10:
			level = "critical"
		case pct >= 1:
			level = "warning"
		}
		hints = append(hints, DiagnosticHint{
			Key:   "dropped_" + string(r.reason),
			Level: level,
			Title: fmt.Sprintf("%s (%.1f%%)", r.title, pct),
			Detail: fmt.Sprintf("%d of %d submitted records %s and were discarded. "+
				"Fix the upstream producer; dropped records are not retained.", n, s.Submitted, r.cause),
			Value: &pct,
		})
	}

	if queueDropped > 0 {
		v := float64(queueDropped)
		hints = append(hints, DiagnosticHint{
			Key:   "sink_queue_overflow",
			Level: "warning",
			Title: "Sink queue overflow",
			Detail: fmt.Sprintf("%d deliveries were evicted from the full sink buffer. "+
				"A sink is slower than the routed rate; raise dispatch.buffer_size or check the sink.", queueDropped),
			Value: &v,
		})
	}

	fraud := s.Routed[string(classifier.ChannelFraud)]
	routed := fraud + s.Routed[string(classifier.ChannelNonFraud)]
	if routed > 0 && fraud == routed {
		hints = append(hints, DiagnosticHint{
			Key:   "all_fraud",
			Level: "info",
			Title: "Everything is fraud",
			Detail: fmt.Sprintf("All %d routed records exceeded the threshold of %d. "+
				"The threshold may be set lower than intended.", routed, s.Threshold),
		})
	}

	if len(hints) == 0 {
		hints = append(hints, DiagnosticHint{
			Key:   "healthy",
			Level: "ok",
			Title: "All clear",
			Detail: fmt.Sprintf("%d records submitted, none dropped, threshold %d.",
				s.Submitted, s.Threshold),
		})
	}

	sort.SliceStable(hints, func(i, j int) bool {
		return levelOrder[hints[i].Level] < levelOrder[hints[j].Level]
	})
	return hints
}
