/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package metricsserver is the daemon's local-only observability surface:
// a /healthz and a /metrics endpoint, bound to 127.0.0.1, carrying no
// mutation endpoints of its own.
package metricsserver

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GraphStatsProvider exposes read-only graph state at scrape time. Satisfied
// by *internal/graph.Engine, narrowed to avoid this package depending on
// graph's mirror types.
type GraphStatsProvider interface {
	Connected() bool
	ReconnectCount() uint64
	MirrorCounts() (nodes, ports, links int)
}

// Collector is a prometheus.Collector gathering daemon-wide gauges at
// scrape time, the same pull-at-scrape shape as a multi-provider service
// metrics collector.
type Collector struct {
	graph     GraphStatsProvider
	startTime time.Time

	connectedDesc  *prometheus.Desc
	reconnectsDesc *prometheus.Desc
	ownedNodesDesc *prometheus.Desc
	ownedLinksDesc *prometheus.Desc
	uptimeDesc     *prometheus.Desc
}

// NewCollector builds a Collector reading live state from graph at scrape
// time. graph may be nil before the Graph Engine has started; every
// graph-derived metric is then omitted rather than panicking, and uptime
// is still reported.
func NewCollector(graph GraphStatsProvider, startTime time.Time) *Collector {
	return &Collector{
		graph:     graph,
		startTime: startTime,

		connectedDesc: prometheus.NewDesc(
			"undertone_graph_connected",
			"Whether the audio-graph backend connection is currently live (1) or down (0)",
			nil, nil,
		),
		reconnectsDesc: prometheus.NewDesc(
			"undertone_graph_reconnects_total",
			"Number of times the audio-graph backend connection has been re-established",
			nil, nil,
		),
		ownedNodesDesc: prometheus.NewDesc(
			"undertone_graph_mirror_nodes",
			"Number of nodes currently tracked in the Graph Engine's mirror",
			nil, nil,
		),
		ownedLinksDesc: prometheus.NewDesc(
			"undertone_graph_mirror_links",
			"Number of links currently tracked in the Graph Engine's mirror",
			nil, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"undertone_uptime_seconds",
			"Seconds since the daemon process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.connectedDesc
	ch <- c.reconnectsDesc
	ch <- c.ownedNodesDesc
	ch <- c.ownedLinksDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.graph != nil {
		connected := 0.0
		if c.graph.Connected() {
			connected = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.connectedDesc, prometheus.GaugeValue, connected)
		ch <- prometheus.MustNewConstMetric(c.reconnectsDesc, prometheus.CounterValue, float64(c.graph.ReconnectCount()))

		nodes, _, links := c.graph.MirrorCounts()
		ch <- prometheus.MustNewConstMetric(c.ownedNodesDesc, prometheus.GaugeValue, float64(nodes))
		ch <- prometheus.MustNewConstMetric(c.ownedLinksDesc, prometheus.GaugeValue, float64(links))
	}

	ch <- prometheus.MustNewConstMetric(c.uptimeDesc, prometheus.GaugeValue, time.Since(c.startTime).Seconds())
}

// CommandLatencyHistogram is a prometheus.Histogram wired into the Graph
// Engine's Config.OnCommandExecuted hook, recording wall-clock time spent
// running a graph command on the graph thread (queueing time excluded).
func CommandLatencyHistogram() prometheus.Histogram {
	return prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "undertone_graph_command_duration_seconds",
		Help:    "Time spent executing a single graph command on the graph thread",
		Buckets: prometheus.DefBuckets,
	})
}
