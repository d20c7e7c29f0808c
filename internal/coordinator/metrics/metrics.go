// Package metrics exposes coordinator instrumentation (spec §9, domain
// stack): counters for job/task lifecycle transitions and lease
// expirations, registered with promauto the way a production Prometheus
// exporter does — no Inc/Observe call site has to hold a reference to
// the registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "crowdcompute"

var (
	JobsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_submitted_total",
		Help:      "Jobs submitted, labeled by shape.",
	}, []string{"shape"})

	JobsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_completed_total",
		Help:      "Jobs reaching a terminal state, labeled by status.",
	}, []string{"status"})

	TasksClaimed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_claimed_total",
		Help:      "Tasks handed out to workers, labeled by task type.",
	}, []string{"type"})

	TasksCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_completed_total",
		Help:      "Tasks reaching a terminal outcome, labeled by type and outcome.",
	}, []string{"type", "outcome"})

	LeaseExpirations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lease_expirations_total",
		Help:      "Leases reclaimed by the sweeper after a worker went silent.",
	})

	PendingQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pending_queue_depth",
		Help:      "Tasks currently eligible for claim.",
	})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_workers",
		Help:      "Workers seen within WORKER_TTL.",
	})
)
