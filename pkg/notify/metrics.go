package notify

import (
	"github.com/coopernurse/gridscaler/pkg/autoscaler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "gridscaler"

// EventsCount counts autoscaler events by type
var EventsCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: metricsNamespace,
	Subsystem: "autoscaler",
	Name:      "events_total",
	Help:      "Total number of autoscaler events",
}, []string{"type"})

var WorkersLaunchedCount = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: metricsNamespace,
	Subsystem: "autoscaler",
	Name:      "workers_launched_total",
	Help:      "Total number of launched workers that joined the grid",
})

var WorkersLaunchTimeoutCount = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: metricsNamespace,
	Subsystem: "autoscaler",
	Name:      "workers_launch_timeout_total",
	Help:      "Total number of launched workers that never joined the grid",
})

var WorkersTerminatedCount = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: metricsNamespace,
	Subsystem: "autoscaler",
	Name:      "workers_terminated_total",
	Help:      "Total number of workers terminated by down-scaling",
})

// LaunchDuration observes the time between a launch and the worker joining the grid
var LaunchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: metricsNamespace,
	Subsystem: "autoscaler",
	Name:      "launch_duration_seconds",
	Help:      "Time from launch request until the worker appears in the grid",
	Buckets:   []float64{15, 30, 60, 120, 180, 300, 600, 900, 1800},
})

var LaunchingWorkers = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: metricsNamespace,
	Subsystem: "autoscaler",
	Name:      "launching_workers",
	Help:      "Number of workers launched but not yet in the grid",
})

// GridWorkers is the number of grid workers by state: busy, idle, terminating
var GridWorkers = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: metricsNamespace,
	Subsystem: "grid",
	Name:      "workers",
	Help:      "Number of workers in the most recent grid snapshot",
}, []string{"state"})

var GridCPUDebt = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: metricsNamespace,
	Subsystem: "grid",
	Name:      "cpu_debt",
	Help:      "CPU debt reported in the most recent grid snapshot",
})

// NewMetricsObserver returns an observer that updates the package's Prometheus
// metrics. launching reports the current number of launching workers and is read on
// every change event.
func NewMetricsObserver(launching func() int) *MetricsObserver {
	return &MetricsObserver{launching: launching}
}

type MetricsObserver struct {
	launching func() int
}

func (m *MetricsObserver) OnAutoscalerEvent(e autoscaler.Event) {
	EventsCount.WithLabelValues(string(e.Type)).Inc()

	switch e.Type {
	case autoscaler.EventScalableState:
		if e.State != nil {
			observeGridState(e.State)
		}
	case autoscaler.EventWorkersLaunched:
		WorkersLaunchedCount.Add(float64(len(e.LaunchedWorkers)))
		for _, w := range e.LaunchedWorkers {
			LaunchDuration.Observe(float64(w.LaunchDurationMS) / 1000)
		}
	case autoscaler.EventWorkersLaunchTimeout:
		WorkersLaunchTimeoutCount.Add(float64(len(e.LaunchingWorkers)))
	case autoscaler.EventDownScaled:
		WorkersTerminatedCount.Add(float64(len(e.TerminatingWorkers)))
	case autoscaler.EventChange:
		if m.launching != nil {
			LaunchingWorkers.Set(float64(m.launching()))
		}
	}
}

func observeGridState(state *autoscaler.GridState) {
	busy, idle, terminating := 0, 0, 0
	for _, ws := range state.WorkerStates {
		if ws.Terminating {
			terminating++
		} else if ws.Busy {
			busy++
		} else {
			idle++
		}
	}
	GridWorkers.WithLabelValues("busy").Set(float64(busy))
	GridWorkers.WithLabelValues("idle").Set(float64(idle))
	GridWorkers.WithLabelValues("terminating").Set(float64(terminating))
	GridCPUDebt.Set(state.CPUDebt)
}
