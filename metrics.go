package vkframe

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts frame cycle events. A nil *Metrics records nothing.
type Metrics struct {
	FramesPresented    prometheus.Counter
	SwapchainOutOfDate prometheus.Counter
	FramesAbandoned    prometheus.Counter
	DeferredDeletes    *prometheus.CounterVec
	FenceWait          prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg, if given.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesPresented: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vkframe",
			Name:      "frames_presented_total",
			Help:      "Frames submitted and handed to the presentation engine.",
		}),
		SwapchainOutOfDate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vkframe",
			Name:      "swapchain_out_of_date_total",
			Help:      "Acquire or present calls that reported a stale swapchain.",
		}),
		FramesAbandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vkframe",
			Name:      "frames_abandoned_total",
			Help:      "Frames dropped after acquire because recording or submission failed.",
		}),
		DeferredDeletes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vkframe",
			Name:      "deferred_deletes_total",
			Help:      "GPU objects destroyed after their frame fence signaled.",
		}, []string{"kind"}),
		FenceWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vkframe",
			Name:      "fence_wait_seconds",
			Help:      "Time spent blocked on a frame slot fence.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.FramesPresented, m.SwapchainOutOfDate, m.FramesAbandoned, m.DeferredDeletes, m.FenceWait)
	}
	return m
}

func (m *Metrics) framePresented() {
	if m == nil {
		return
	}
	m.FramesPresented.Inc()
}

func (m *Metrics) outOfDate() {
	if m == nil {
		return
	}
	m.SwapchainOutOfDate.Inc()
}

func (m *Metrics) frameAbandoned() {
	if m == nil {
		return
	}
	m.FramesAbandoned.Inc()
}

func (m *Metrics) fenceWaited(d time.Duration) {
	if m == nil {
		return
	}
	m.FenceWait.Observe(d.Seconds())
}

// deletesPending records the per-kind contents of q just before it drains.
func (m *Metrics) deletesPending(q *DeletionQueue) {
	if m == nil {
		return
	}
	for _, kind := range ObjectKinds() {
		if n := q.LenKind(kind); n > 0 {
			m.DeferredDeletes.WithLabelValues(kind.String()).Add(float64(n))
		}
	}
}
