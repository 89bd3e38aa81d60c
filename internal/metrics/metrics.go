// Package metrics exposes Prometheus metrics for the presence and
// assignment engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	presenceUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpline_presence_updates_total",
			Help: "Total number of personal status updates by resulting status",
		},
		[]string{"status"},
	)

	heartbeats = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "helpline_heartbeats_total",
			Help: "Total number of agent heartbeats received",
		},
	)

	assignments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpline_assignments_total",
			Help: "Total number of ticket ownership changes by reason",
		},
		[]string{"reason"},
	)

	rebalanceRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpline_rebalance_runs_total",
			Help: "Total number of rebalancing workflow runs by trigger",
		},
		[]string{"trigger"},
	)

	storeRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpline_store_retries_total",
			Help: "Total number of store mutations that needed a retry",
		},
		[]string{"store"},
	)

	connectedAgents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "helpline_connected_agents",
			Help: "Number of agents with an open websocket connection",
		},
	)

	dashboardClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "helpline_dashboard_clients",
			Help: "Number of connected dashboard websocket clients",
		},
	)
)

// RecordPresenceUpdate counts one personal status write
func RecordPresenceUpdate(status string) {
	presenceUpdates.WithLabelValues(status).Inc()
}

// RecordHeartbeat counts one agent heartbeat
func RecordHeartbeat() {
	heartbeats.Inc()
}

// RecordAssignment counts one ownership change by audit reason
func RecordAssignment(reason string) {
	assignments.WithLabelValues(reason).Inc()
}

// RecordRebalance counts one rebalancing run ("going_idle" or "coming_back")
func RecordRebalance(trigger string) {
	rebalanceRuns.WithLabelValues(trigger).Inc()
}

// RecordStoreRetry counts one retried store mutation ("presence" or "assignment")
func RecordStoreRetry(store string) {
	storeRetries.WithLabelValues(store).Inc()
}

// SetConnectedAgents updates the connected-agent gauge
func SetConnectedAgents(n int) {
	connectedAgents.Set(float64(n))
}

// SetDashboardClients updates the dashboard-client gauge
func SetDashboardClients(n int) {
	dashboardClients.Set(float64(n))
}
