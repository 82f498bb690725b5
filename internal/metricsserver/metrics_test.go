/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package metricsserver

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeGraphStats struct {
	connected           bool
	reconnectCount      uint64
	nodes, ports, links int
}

func (f fakeGraphStats) Connected() bool        { return f.connected }
func (f fakeGraphStats) ReconnectCount() uint64 { return f.reconnectCount }
func (f fakeGraphStats) MirrorCounts() (nodes, ports, links int) {
	return f.nodes, f.ports, f.links
}

func TestCollectorReportsGraphGauges(t *testing.T) {
	stats := fakeGraphStats{connected: true, reconnectCount: 3, nodes: 5, ports: 9, links: 4}
	c := NewCollector(stats, time.Now().Add(-time.Minute))

	reg := prometheus.NewRegistry()
	reg.MustRegister(c)

	got, err := testutil.GatherAndCount(reg)
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	// connected, reconnects, mirror nodes, mirror links, uptime.
	if got != 5 {
		t.Fatalf("metric count = %d, want 5", got)
	}

	if err := testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP undertone_graph_connected Whether the audio-graph backend connection is currently live (1) or down (0)
# TYPE undertone_graph_connected gauge
undertone_graph_connected 1
# HELP undertone_graph_reconnects_total Number of times the audio-graph backend connection has been re-established
# TYPE undertone_graph_reconnects_total counter
undertone_graph_reconnects_total 3
# HELP undertone_graph_mirror_links Number of links currently tracked in the Graph Engine's mirror
# TYPE undertone_graph_mirror_links gauge
undertone_graph_mirror_links 4
# HELP undertone_graph_mirror_nodes Number of nodes currently tracked in the Graph Engine's mirror
# TYPE undertone_graph_mirror_nodes gauge
undertone_graph_mirror_nodes 5
`), "undertone_graph_connected", "undertone_graph_reconnects_total", "undertone_graph_mirror_links", "undertone_graph_mirror_nodes"); err != nil {
		t.Fatalf("unexpected metric output: %v", err)
	}
}

func TestCollectorWithNilGraphStillReportsUptime(t *testing.T) {
	c := NewCollector(nil, time.Now().Add(-time.Second))
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)

	got, err := testutil.GatherAndCount(reg, "undertone_uptime_seconds")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if got != 1 {
		t.Fatalf("uptime metric count = %d, want 1", got)
	}
}
