package lls

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics for the LLS core (component I) and eviction ordering (component
// J), following worker/storage/committee/node.go's
// NewGaugeVec/NewCounterVec + prometheusOnce.Do(MustRegister) idiom.
var (
	llsCurrentRole = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lls_current_role",
			Help: "Current role as last observed from the Global Store lease (0=unknown, 1=worker, 2=master).",
		},
		[]string{"machine"},
	)

	llsLastHeartbeatTime = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lls_last_heartbeat_time_seconds",
			Help: "Unix time of the last completed heartbeat.",
		},
		[]string{"machine"},
	)

	llsLastCheckpointSequencePoint = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lls_last_checkpoint_sequence_point",
			Help: "Sequence point recorded by the most recently created checkpoint.",
		},
		[]string{"machine"},
	)

	llsRegistrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lls_registrations_total",
			Help: "register_local_location items processed, by the registration policy action taken.",
		},
		[]string{"machine", "action"},
	)

	llsTouches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lls_touches_total",
			Help: "touch_bulk items that emitted an event after dedup.",
		},
		[]string{"machine"},
	)

	llsTrims = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lls_trims_total",
			Help: "trim_bulk items processed.",
		},
		[]string{"machine"},
	)

	llsReconcileDiffs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lls_reconcile_diff_total",
			Help: "Reconciliation co-walk diff items emitted, by kind.",
		},
		[]string{"machine", "kind"},
	)

	llsEvictionCandidates = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lls_eviction_candidates",
			Help: "Local content items considered on the last get_hashes_in_eviction_order call.",
		},
		[]string{"machine"},
	)

	llsCollectors = []prometheus.Collector{
		llsCurrentRole,
		llsLastHeartbeatTime,
		llsLastCheckpointSequencePoint,
		llsRegistrations,
		llsTouches,
		llsTrims,
		llsReconcileDiffs,
		llsEvictionCandidates,
	}

	prometheusOnce sync.Once
)

// machineLabel renders this core's machine id as the metrics label value.
func (c *Core) machineLabel() string {
	return strconv.FormatUint(uint64(c.cfg.LocalMachineID), 10)
}
