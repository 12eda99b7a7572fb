package probe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/txnroute/txnroute/pkg/types"
)

const fetchTimeout = 10 * time.Second

// Sample is one reading of the router's counters.
type Sample struct {
	At        time.Time
	Routed    map[string]float64 // by channel
	Dropped   map[string]float64 // by reason
	Threshold float64
}

// Rates are per-minute rates between two samples.
type Rates struct {
	Baseline  bool // true for the first sample; no rates yet
	RoutedPM  map[string]float64
	DroppedPM map[string]float64
	DropPct   float64
	Threshold float64
}

// Probe samples one router. Safe for concurrent use.
type Probe struct {
	url    string
	client *http.Client

	mu   sync.Mutex
	prev *Sample
}

// New returns a Probe for the metrics URL. A nil client gets a default one
// with a short timeout.
func New(url string, client *http.Client) *Probe {
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}
	return &Probe{url: url, client: client}
}

// Sample fetches the current counters.
func (p *Probe) Sample(ctx context.Context) (*Sample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("probe: build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("probe: http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("probe: unexpected status %d", resp.StatusCode)
	}
	mfs, err := parseMetrics(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Sample{
		At:        time.Now(),
		Routed:    sumByLabel(mfs[types.MetricRoutedTotal], "channel"),
		Dropped:   sumByLabel(mfs[types.MetricDroppedTotal], "reason"),
		Threshold: sumFamily(mfs[types.MetricThreshold]),
	}, nil
}

// Observe records s and returns the rates since the previous sample.
func (p *Probe) Observe(s *Sample) Rates {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev := p.prev
	p.prev = s
	if prev == nil {
		return Rates{Baseline: true, Threshold: s.Threshold}
	}

	elapsed := s.At.Sub(prev.At).Minutes()
	if elapsed <= 0 {
		elapsed = 1 // clock went backwards
	}

	r := Rates{
		RoutedPM:  make(map[string]float64, len(s.Routed)),
		DroppedPM: make(map[string]float64, len(s.Dropped)),
		Threshold: s.Threshold,
	}
	var routed, dropped float64
	for k, v := range s.Routed {
		d := deltaOf(v, prev.Routed[k])
		routed += d
		r.RoutedPM[k] = d / elapsed
	}
	for k, v := range s.Dropped {
		d := deltaOf(v, prev.Dropped[k])
		dropped += d
		r.DroppedPM[k] = d / elapsed
	}
	if total := routed + dropped; total > 0 {
		r.DropPct = dropped / total * 100
	}
	return r
}

// Run samples every interval and logs the rates until ctx is cancelled.
func (p *Probe) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s, err := p.Sample(ctx)
			if err != nil {
				slog.Warn("probe: sample failed", "url", p.url, "err", err)
				continue
			}
			r := p.Observe(s)
			if r.Baseline {
				slog.Info("probe: baseline recorded", "url", p.url, "threshold", r.Threshold)
				continue
			}
			slog.Info("probe: router rates",
				"routed_per_min", r.RoutedPM,
				"dropped_per_min", r.DroppedPM,
				"drop_pct", r.DropPct,
				"threshold", r.Threshold,
			)
		}
	}
}

// parseMetrics decodes a text exposition. A partial result with a parse
// warning is still returned.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("probe: parse prometheus text: %w", err)
	}
	return mfs, nil
}

// sumFamily adds up every counter, gauge or untyped value in mf.
func sumFamily(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		total += value(m)
	}
	return total
}

// sumByLabel groups the values of mf by the given label.
func sumByLabel(mf *dto.MetricFamily, label string) map[string]float64 {
	out := make(map[string]float64)
	if mf == nil {
		return out
	}
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == label {
				out[lp.GetValue()] += value(m)
			}
		}
	}
	return out
}

func value(m *dto.Metric) float64 {
	switch {
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	case m.Untyped != nil:
		return m.Untyped.GetValue()
	}
	return 0
}

// deltaOf returns cur-prev, or cur when the counter was reset.
func deltaOf(cur, prev float64) float64 {
	if cur < prev {
		return cur
	}
	return cur - prev
}
