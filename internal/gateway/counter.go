package gateway

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Counter is the per-worker online user count: connects minus closes on the
// play endpoint. It never goes below zero.
type Counter struct {
	n atomic.Int64
	// gauge mirrors n; nil means the process-wide online_users gauge.
	gauge prometheus.Gauge
}

func (c *Counter) metric() prometheus.Gauge {
	if c.gauge != nil {
		return c.gauge
	}
	return onlineUsers
}

// Inc records a new connection and returns the updated count.
func (c *Counter) Inc() int64 {
	v := c.n.Add(1)
	c.metric().Inc()
	return v
}

// Dec records a closed connection and returns the updated count. A Dec at
// zero is ignored and leaves the gauge alone.
func (c *Counter) Dec() int64 {
	for {
		cur := c.n.Load()
		if cur <= 0 {
			return 0
		}
		if c.n.CompareAndSwap(cur, cur-1) {
			c.metric().Dec()
			return cur - 1
		}
	}
}

// Value returns the current count.
func (c *Counter) Value() int64 { return c.n.Load() }
