package sink

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const deliverTimeout = 15 * time.Second

// DeliveryObserver is notified of every delivery attempt.
type DeliveryObserver interface {
	ObserveDelivery(sink string, err error)
}

type route struct {
	name     string
	sink     Sink
	channels map[string]bool
}

// Dispatcher fans routed records out to the sinks bound to their channel.
type Dispatcher struct {
	buf      chan Delivery
	observer DeliveryObserver

	mu      sync.RWMutex
	routes  []route
	dropped int
}

// NewDispatcher creates a Dispatcher with a buffer of size deliveries.
// observer may be nil.
func NewDispatcher(size int, observer DeliveryObserver) *Dispatcher {
	return &Dispatcher{
		buf:      make(chan Delivery, size),
		observer: observer,
	}
}

// Add binds s to the given channels.
func (d *Dispatcher) Add(name string, s Sink, channels []string) {
	set := make(map[string]bool, len(channels))
	for _, ch := range channels {
		set[ch] = true
	}
	d.mu.Lock()
	d.routes = append(d.routes, route{name: name, sink: s, channels: set})
	d.mu.Unlock()
}

// Len returns the number of sinks registered.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.routes)
}

// Dropped returns how many deliveries were evicted from a full buffer.
func (d *Dispatcher) Dropped() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.dropped
}

// Pending returns the number of deliveries waiting in the buffer.
func (d *Dispatcher) Pending() int { return len(d.buf) }

// Enqueue queues del without blocking. If the buffer is full the oldest
// pending delivery is dropped to make room.
func (d *Dispatcher) Enqueue(del Delivery) {
	if d.Len() == 0 {
		return
	}
	for {
		select {
		case d.buf <- del:
			return
		default:
		}
		select {
		case old := <-d.buf:
			d.mu.Lock()
			d.dropped++
			d.mu.Unlock()
			slog.Warn("sink: buffer full, dropped oldest delivery",
				"record_id", old.Record.ID(), "channel", old.Channel, "buffer_cap", cap(d.buf))
		default:
		}
	}
}

// Run delivers queued records until ctx is cancelled, then closes every sink.
func (d *Dispatcher) Run(ctx context.Context) {
	defer d.closeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case del := <-d.buf:
			d.deliver(ctx, del)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, del Delivery) {
	d.mu.RLock()
	routes := d.routes
	d.mu.RUnlock()

	for _, r := range routes {
		if !r.channels[del.Channel] {
			continue
		}
		dctx, cancel := context.WithTimeout(ctx, deliverTimeout)
		err := r.sink.Deliver(dctx, del)
		cancel()

		if d.observer != nil {
			d.observer.ObserveDelivery(r.name, err)
		}
		if err != nil {
			slog.Error("sink: delivery failed",
				"sink", r.name, "record_id", del.Record.ID(), "channel", del.Channel, "err", err)
			continue
		}
		slog.Debug("sink: delivered", "sink", r.name, "record_id", del.Record.ID(), "channel", del.Channel)
	}
}

func (d *Dispatcher) closeAll() {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, r := range d.routes {
		if err := r.sink.Close(); err != nil {
			slog.Warn("sink: close failed", "sink", r.name, "err", err)
		}
	}
}
