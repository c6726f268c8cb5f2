package test

import (
	"fmt"
	"github.com/coopernurse/gridscaler/pkg/autoscaler"
)

// IdleWorker returns a worker named name that has been idle since idleSince (epoch millis)
func IdleWorker(name string, idleSince int64) autoscaler.WorkerState {
	return autoscaler.WorkerState{
		Worker:       autoscaler.Worker{Id: "id-" + name, Name: name},
		Busy:         false,
		LastIdleTime: &idleSince,
	}
}

func BusyWorker(name string) autoscaler.WorkerState {
	return autoscaler.WorkerState{
		Worker: autoscaler.Worker{Id: "id-" + name, Name: name},
		Busy:   true,
	}
}

// IdleWorkers returns n workers named prefix-0..prefix-(n-1), all idle since idleSince
func IdleWorkers(prefix string, n int, idleSince int64) []autoscaler.WorkerState {
	states := make([]autoscaler.WorkerState, n)
	for i := 0; i < n; i++ {
		states[i] = IdleWorker(fmt.Sprintf("%s-%d", prefix, i), idleSince)
	}
	return states
}

func BusyWorkers(prefix string, n int) []autoscaler.WorkerState {
	states := make([]autoscaler.WorkerState, n)
	for i := 0; i < n; i++ {
		states[i] = BusyWorker(fmt.Sprintf("%s-%d", prefix, i))
	}
	return states
}
