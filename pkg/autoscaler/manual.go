package autoscaler

import (
	"context"
	log "github.com/mgutz/logxi/v1"
)

// LaunchWorkers launches workers on operator request, regardless of Enabled.
// Launched instances are tracked like those from an automatic up-scale.
func (a *Autoscaler) LaunchWorkers(ctx context.Context, req LaunchRequest) ([]LaunchingWorker, error) {
	return a.upScale(ctx, req, timeNow())
}

// TerminateWorkers disables and terminates the given grid workers on operator request
func (a *Autoscaler) TerminateWorkers(ctx context.Context, workers []Worker) ([]TerminatingWorker, error) {
	if len(workers) == 0 {
		return nil, nil
	}
	return a.downScale(ctx, workers)
}

// TerminateLaunchingWorkers terminates workers that have not yet appeared in the grid.
// Keys not currently launching are ignored. Returns the launching workers the backend
// confirmed as terminated, which are no longer tracked.
func (a *Autoscaler) TerminateLaunchingWorkers(ctx context.Context, keys []WorkerKey) ([]LaunchingWorker, error) {
	a.lock.Lock()
	launchingKeys := make([]WorkerKey, 0, len(keys))
	for _, k := range keys {
		if _, ok := a.launchingWorkers[k]; ok {
			launchingKeys = append(launchingKeys, k)
		}
	}
	a.lock.Unlock()

	if len(launchingKeys) == 0 {
		return nil, nil
	}

	instances, err := a.terminateInstances(ctx, launchingKeys)
	if err != nil {
		return nil, err
	}

	a.lock.Lock()
	removed := make([]LaunchingWorker, 0, len(instances))
	for _, inst := range instances {
		if lw, ok := a.launchingWorkers[inst.WorkerKey]; ok {
			removed = append(removed, lw)
			delete(a.launchingWorkers, inst.WorkerKey)
		}
	}
	if len(a.launchingWorkers) == 0 {
		a.launchingWorkers = nil
	}
	a.lock.Unlock()

	if len(removed) > 0 {
		log.Info("autoscaler: terminated launching workers", "count", len(removed))
		a.emitChange()
	}
	return removed, nil
}
