// Package metrics exposes per-connection replication engine statistics as a
// Prometheus Collector, grounded on
// runZeroInc-sockstats/pkg/exporter/exporter.go's Describe/Collect pattern
// (per-connection map guarded by a mutex, metrics derived on each scrape
// rather than pushed), adapted from TCP-socket-level stats to this engine's
// RTT/jitter/key-occupancy/packet-loss stats (SPEC_FULL.md §4.12).
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ConnStats is one connection's current snapshot, refreshed by the caller
// (typically once per tick) via Collector.Update.
type ConnStats struct {
	RTT           time.Duration
	Jitter        time.Duration
	LiveLocalKeys int
	PacketsSent   uint64
	PacketsLost   uint64
}

// Collector implements prometheus.Collector over a set of live connections,
// identified by an opaque label (e.g. a UserKey's string form).
type Collector struct {
	mu    sync.Mutex
	conns map[string]ConnStats

	rttDesc      *prometheus.Desc
	jitterDesc   *prometheus.Desc
	liveKeysDesc *prometheus.Desc
	sentDesc     *prometheus.Desc
	lostDesc     *prometheus.Desc
}

// NewCollector creates a metrics collector; prefix namespaces every metric
// name (e.g. "statewire").
func NewCollector(prefix string) *Collector {
	labels := []string{"connection"}
	return &Collector{
		conns:        make(map[string]ConnStats),
		rttDesc:      prometheus.NewDesc(prefix+"_rtt_seconds", "Smoothed round-trip time estimate.", labels, nil),
		jitterDesc:   prometheus.NewDesc(prefix+"_jitter_seconds", "Smoothed RTT jitter estimate.", labels, nil),
		liveKeysDesc: prometheus.NewDesc(prefix+"_live_local_keys", "Number of live local replicate keys.", labels, nil),
		sentDesc:     prometheus.NewDesc(prefix+"_packets_sent_total", "Outgoing packets sent.", labels, nil),
		lostDesc:     prometheus.NewDesc(prefix+"_packets_lost_total", "Outgoing packets confirmed dropped.", labels, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.rttDesc
	ch <- c.jitterDesc
	ch <- c.liveKeysDesc
	ch <- c.sentDesc
	ch <- c.lostDesc
}

// Collect implements prometheus.Collector, computed fresh from each
// connection's last-known stats on every scrape.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for label, stats := range c.conns {
		ch <- prometheus.MustNewConstMetric(c.rttDesc, prometheus.GaugeValue, stats.RTT.Seconds(), label)
		ch <- prometheus.MustNewConstMetric(c.jitterDesc, prometheus.GaugeValue, stats.Jitter.Seconds(), label)
		ch <- prometheus.MustNewConstMetric(c.liveKeysDesc, prometheus.GaugeValue, float64(stats.LiveLocalKeys), label)
		ch <- prometheus.MustNewConstMetric(c.sentDesc, prometheus.CounterValue, float64(stats.PacketsSent), label)
		ch <- prometheus.MustNewConstMetric(c.lostDesc, prometheus.CounterValue, float64(stats.PacketsLost), label)
	}
}

// Update replaces the stats tracked for a connection label.
func (c *Collector) Update(label string, stats ConnStats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns[label] = stats
}

// Remove stops reporting a connection, called on disconnect.
func (c *Collector) Remove(label string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.conns, label)
}
