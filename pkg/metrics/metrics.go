package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "collabdocs"

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	DocumentMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "document_mutations_total", Help: "Accepted document metadata mutations by operation."},
		[]string{"op"},
	)
	SyncCommits = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "sync_commits_total", Help: "Accepted checkpoint commits by kind (steps, snapshot)."},
		[]string{"kind"},
	)
	SyncConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "sync_conflicts_total", Help: "Checkpoint requests rejected with a version conflict, by operation."},
		[]string{"op"},
	)
	PresenceHeartbeats = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "presence_heartbeats_total", Help: "Presence heartbeats recorded."},
	)
	RealtimeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: namespace, Name: "realtime_connections", Help: "Open realtime websocket connections."},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(DocumentMutations)
	reg.MustRegister(SyncCommits)
	reg.MustRegister(SyncConflicts)
	reg.MustRegister(PresenceHeartbeats)
	reg.MustRegister(RealtimeConnections)
}
