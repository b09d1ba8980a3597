package clientmgr

import "github.com/prometheus/client_golang/prometheus"

var (
	connectedClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "reactor_clientmgr_connected_clients",
			Help: "Number of clients currently connected.",
		})
	droppedUpdates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reactor_clientmgr_dropped_updates",
			Help: "Steady-state updates dropped after a send timed out.",
		})
	droppedSnapshotEntries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reactor_clientmgr_dropped_snapshot_entries",
			Help: "Initial-snapshot entries dropped after a send timed out.",
		})
)

// Register adds clientmgr's metrics to reg. Callers own the registry
// (cmd/reactord registers every package's metrics once at startup), so
// Register, not an init() MustRegister, is how this package joins it.
func Register(reg *prometheus.Registry) error {
	for _, c := range []prometheus.Collector{connectedClients, droppedUpdates, droppedSnapshotEntries} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
