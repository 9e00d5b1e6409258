package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry = prometheus.NewRegistry()

	// Deployment metrics
	DeploymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stevedore_deployments_total",
			Help: "Total number of deployment attempts by outcome",
		},
		[]string{"outcome"},
	)

	DeploymentDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stevedore_deployment_duration_seconds",
			Help:    "End-to-end deployment duration in seconds",
			Buckets: []float64{30, 60, 120, 180, 300, 480, 600},
		},
	)

	PollAttempts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stevedore_poll_attempts",
			Help: "Health poll attempts consumed by the last deployment",
		},
	)

	RollbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stevedore_rollbacks_total",
			Help: "Total number of rollbacks performed",
		},
	)

	// Backup metrics
	BackupSizeBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stevedore_backup_size_bytes",
			Help: "Size of the most recent database backup archive",
		},
	)

	BackupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stevedore_backups_total",
			Help: "Total number of backup runs by result",
		},
		[]string{"result"},
	)
)

func init() {
	registry.MustRegister(DeploymentsTotal)
	registry.MustRegister(DeploymentDuration)
	registry.MustRegister(PollAttempts)
	registry.MustRegister(RollbacksTotal)
	registry.MustRegister(BackupSizeBytes)
	registry.MustRegister(BackupsTotal)
}

// WriteTextfile exports the current metric state in the node-exporter
// textfile-collector format. Called once at the end of each run; the
// file is replaced atomically.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, registry)
}
