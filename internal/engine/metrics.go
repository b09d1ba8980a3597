package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	mailboxDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "reactor_engine_mailbox_depth",
			Help: "Number of jobs waiting in the engine mailbox after the last one drained.",
		})
	jobLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "reactor_engine_job_latency_seconds",
			Help: "Time a submitted job spent queued plus running on the engine goroutine.",
		})
)

// Register adds engine's metrics to reg.
func Register(reg *prometheus.Registry) error {
	for _, c := range []prometheus.Collector{mailboxDepth, jobLatency} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
