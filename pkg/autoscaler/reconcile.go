package autoscaler

import (
	"context"
	log "github.com/mgutz/logxi/v1"
	"github.com/pkg/errors"
)

func (a *Autoscaler) getCurrentState(ctx context.Context) (*GridState, error) {
	ctx, cancel := a.callCtx(ctx)
	defer cancel()
	state, err := a.grid.GetCurrentState(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "autoscaler: GetCurrentState failed")
	}
	if state == nil {
		return nil, errors.New("autoscaler: GetCurrentState returned nil state")
	}
	return state, nil
}

func (a *Autoscaler) translateToWorkerKeys(ctx context.Context, workers []Worker) ([]WorkerKey, error) {
	if len(workers) == 0 {
		return []WorkerKey{}, nil
	}
	ctx, cancel := a.callCtx(ctx)
	defer cancel()
	keys, err := a.impl.TranslateToWorkerKeys(ctx, workers)
	if err != nil {
		return nil, errors.Wrap(err, "autoscaler: TranslateToWorkerKeys failed")
	}
	if len(keys) != len(workers) {
		return nil, errors.Errorf("autoscaler: TranslateToWorkerKeys returned %d keys for %d workers",
			len(keys), len(workers))
	}
	return keys, nil
}

// reconcile moves launching workers that now appear in the grid to launched,
// and drops launching workers that have exceeded the launch timeout.
// The snapshot is always translated so a failing backend aborts the tick.
func (a *Autoscaler) reconcile(ctx context.Context, state *GridState) error {
	workers := workersFromStates(state.WorkerStates)
	keys, err := a.translateToWorkerKeys(ctx, workers)
	if err != nil {
		return err
	}
	if !a.ScalingUp() {
		return nil
	}
	current := make(map[WorkerKey]string, len(keys))
	for i, k := range keys {
		current[k] = workers[i].Id
	}

	launched, timedOut := a.removeLaunchedOrTimedOut(current, state.CurrentTime)

	if len(launched) > 0 {
		if log.IsDebug() {
			log.Debug("autoscaler: workers launched", "count", len(launched))
		}
		a.emit(Event{Type: EventWorkersLaunched, LaunchedWorkers: launched})
	}
	if len(timedOut) > 0 {
		log.Warn("autoscaler: workers launch timeout", "count", len(timedOut))
		a.emit(Event{Type: EventWorkersLaunchTimeout, LaunchingWorkers: timedOut})
	}
	if len(launched) > 0 || len(timedOut) > 0 {
		a.emitChange()
	}
	return nil
}

func (a *Autoscaler) removeLaunchedOrTimedOut(current map[WorkerKey]string,
	now int64) ([]LaunchedWorker, []LaunchingWorker) {
	a.lock.Lock()
	defer a.lock.Unlock()

	timeoutMillis := int64(a.launchingTimeoutMinutes) * 60 * 1000
	launched := make([]LaunchedWorker, 0)
	timedOut := make([]LaunchingWorker, 0)

	for _, lw := range a.sortedLaunchingWorkers() {
		durationMS := now - lw.LaunchingTime
		if id, ok := current[lw.WorkerKey]; ok {
			launched = append(launched, LaunchedWorker{
				Id:               id,
				WorkerKey:        lw.WorkerKey,
				InstanceId:       lw.InstanceId,
				LaunchingTime:    lw.LaunchingTime,
				LaunchedTime:     now,
				LaunchDurationMS: durationMS,
			})
			delete(a.launchingWorkers, lw.WorkerKey)
		} else if durationMS > timeoutMillis {
			timedOut = append(timedOut, lw)
			delete(a.launchingWorkers, lw.WorkerKey)
		}
	}
	if len(a.launchingWorkers) == 0 {
		a.launchingWorkers = nil
	}
	return launched, timedOut
}
