package notify

import (
	"github.com/coopernurse/gridscaler/pkg/autoscaler"
	log "github.com/mgutz/logxi/v1"
)

// LogObserver writes every autoscaler event to the log. Polling and grid snapshots are
// logged at debug level.
type LogObserver struct{}

func (LogObserver) OnAutoscalerEvent(e autoscaler.Event) {
	switch e.Type {
	case autoscaler.EventPolling:
		if log.IsDebug() {
			log.Debug("autoscaler: polling")
		}
	case autoscaler.EventScalableState:
		if log.IsDebug() && e.State != nil {
			log.Debug("autoscaler: scalable state", "workers", len(e.State.WorkerStates),
				"queueEmpty", e.State.QueueEmpty, "cpuDebt", e.State.CPUDebt)
		}
	case autoscaler.EventError:
		log.Error("autoscaler: error", "err", e.Err)
	case autoscaler.EventChange:
		log.Info("autoscaler: change")
	case autoscaler.EventDownScaling:
		log.Info("autoscaler: down-scaling", "workers", len(e.Workers))
	case autoscaler.EventDownScaled:
		log.Info("autoscaler: down-scaled", "workers", len(e.TerminatingWorkers))
	case autoscaler.EventUpScaling:
		if e.LaunchRequest != nil {
			log.Info("autoscaler: up-scaling", "instances", e.LaunchRequest.NumInstances)
		}
	case autoscaler.EventUpScaled:
		log.Info("autoscaler: up-scaled", "workers", len(e.LaunchingWorkers))
	case autoscaler.EventWorkersLaunched:
		for _, w := range e.LaunchedWorkers {
			log.Info("autoscaler: worker launched", "id", w.Id, "key", w.WorkerKey, "instanceId", w.InstanceId,
				"durationMS", w.LaunchDurationMS)
		}
	case autoscaler.EventWorkersLaunchTimeout:
		for _, w := range e.LaunchingWorkers {
			log.Warn("autoscaler: worker launch timeout", "key", w.WorkerKey, "instanceId", w.InstanceId)
		}
	case autoscaler.EventDisablingWorkers, autoscaler.EventSetWorkersTerminate:
		log.Info("autoscaler: "+string(e.Type), "workerIds", e.WorkerIds)
	}
}
