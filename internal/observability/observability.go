// Package observability exposes Prometheus metrics for the mesh, election,
// and tick subsystems. Grounded on the teacher's internal/infra/observability
// package-level promauto var pattern, repurposed from task-scheduling
// metrics to peer-mesh/election/tick metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PeerCount is the number of peers currently registered, including self.
var PeerCount = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "huntmesh",
	Subsystem: "mesh",
	Name:      "peer_count",
	Help:      "Number of peers currently registered, including self.",
})

// IsLeader is 1 while this node holds the leader slot, 0 otherwise.
var IsLeader = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "huntmesh",
	Subsystem: "election",
	Name:      "is_leader",
	Help:      "1 while this node is the elected leader, 0 otherwise.",
})

// ElectionsStarted counts how many times this node has initiated an
// election (self-ELECT, whether from warm-up or a COORD timeout).
var ElectionsStarted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "huntmesh",
	Subsystem: "election",
	Name:      "elections_started_total",
	Help:      "Number of elections this node has initiated.",
})

// LeaderPromotions counts how many times this node has assumed leadership.
var LeaderPromotions = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "huntmesh",
	Subsystem: "election",
	Name:      "leader_promotions_total",
	Help:      "Number of times this node has assumed leadership.",
})

// TickClock mirrors the authoritative game-state clock while leading.
var TickClock = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "huntmesh",
	Subsystem: "gametick",
	Name:      "clock",
	Help:      "Current authoritative game-state clock value (leader only).",
})

// SnapshotBytesSent tracks the size of broadcast snapshots, by class.
var SnapshotBytesSent = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "huntmesh",
	Subsystem: "mesh",
	Name:      "snapshot_bytes_sent_total",
	Help:      "Total bytes sent in outbound class-c snapshots.",
}, []string{"reason"})

// PeersEvicted counts stale or disconnected peer removals.
var PeersEvicted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "huntmesh",
	Subsystem: "mesh",
	Name:      "peers_evicted_total",
	Help:      "Number of peers removed from the registry, by reason.",
}, []string{"reason"})
