package metrics

import (
	"context"
	"time"
)

// Counter reports a current size, such as a gesture or session count
type Counter interface {
	Count() int
}

// CounterFunc adapts a function to Counter
type CounterFunc func() int

// Count implements Counter
func (f CounterFunc) Count() int { return f() }

// Collector samples gauges that are cheaper to poll than to track on every change
type Collector struct {
	startTime time.Time
	gestures  Counter
	clients   Counter
}

// NewCollector creates a collector over the gesture store and client pool sizes
func NewCollector(gestures, clients Counter) *Collector {
	return &Collector{
		startTime: time.Now(),
		gestures:  gestures,
		clients:   clients,
	}
}

// Collect samples every gauge once
func (c *Collector) Collect() {
	Uptime.Set(time.Since(c.startTime).Seconds())
	if c.gestures != nil {
		GesturesTotal.Set(float64(c.gestures.Count()))
	}
	if c.clients != nil {
		ClientsConnected.Set(float64(c.clients.Count()))
	}
}

// Run collects on every interval until ctx is cancelled
func (c *Collector) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.Collect()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Collect()
		}
	}
}
