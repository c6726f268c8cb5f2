package autoscaler

import (
	"context"
	"github.com/coopernurse/gridscaler/pkg/common"
	log "github.com/mgutz/logxi/v1"
	"github.com/pkg/errors"
)

// ComputeDownScalingWorkers returns the workers that have been idle longer than
// terminateAfterMinutesIdle, in snapshot order. If minWorkersCap is set, the result is
// truncated so that at least that many non-terminating workers remain.
func ComputeDownScalingWorkers(state *GridState, minWorkersCap *int, terminateAfterMinutesIdle int) []Worker {
	maxTerminate := -1
	if hasCap(minWorkersCap) {
		notTerminating := 0
		for _, ws := range state.WorkerStates {
			if !ws.Terminating {
				notTerminating++
			}
		}
		maxTerminate = common.MaxInt(notTerminating-*minWorkersCap, 0)
	}

	idleMillis := common.MinutesToMillis(terminateAfterMinutesIdle)
	workers := make([]Worker, 0)
	for _, ws := range state.WorkerStates {
		if maxTerminate >= 0 && len(workers) >= maxTerminate {
			break
		}
		if ws.Terminating || ws.Busy || ws.LastIdleTime == nil {
			continue
		}
		if state.CurrentTime-*ws.LastIdleTime > idleMillis {
			workers = append(workers, ws.Worker)
		}
	}
	return workers
}

func (a *Autoscaler) autoDownScale(ctx context.Context, state *GridState) ([]TerminatingWorker, error) {
	a.lock.Lock()
	minWorkersCap := copyCap(a.minWorkersCap)
	idleMinutes := a.terminateWorkerAfterMinutesIdle
	a.lock.Unlock()

	workers := ComputeDownScalingWorkers(state, minWorkersCap, idleMinutes)
	if len(workers) == 0 {
		return nil, nil
	}
	return a.downScale(ctx, workers)
}

// downScale disables the workers in the grid, terminates them through the
// Implementation, and marks the terminated subset as terminating in the grid
func (a *Autoscaler) downScale(ctx context.Context, workers []Worker) ([]TerminatingWorker, error) {
	a.emit(Event{Type: EventDownScaling, Workers: workers})

	ids := workerIds(workers)
	a.emit(Event{Type: EventDisablingWorkers, WorkerIds: ids})
	err := a.callGrid(ctx, func(ctx context.Context) error { return a.grid.DisableWorkers(ctx, ids) })
	if err != nil {
		return nil, errors.Wrap(err, "autoscaler: DisableWorkers failed")
	}

	keys, err := a.translateToWorkerKeys(ctx, workers)
	if err != nil {
		return nil, err
	}
	keyToId := make(map[WorkerKey]string, len(keys))
	for i, k := range keys {
		keyToId[k] = workers[i].Id
	}

	instances, err := a.terminateInstances(ctx, keys)
	if err != nil {
		return nil, err
	}

	terminating := make([]TerminatingWorker, 0, len(instances))
	for _, inst := range instances {
		id, ok := keyToId[inst.WorkerKey]
		if !ok {
			log.Warn("autoscaler: TerminateInstances returned unknown worker key", "key", inst.WorkerKey)
			continue
		}
		terminating = append(terminating, TerminatingWorker{
			Id:         id,
			WorkerKey:  inst.WorkerKey,
			InstanceId: inst.InstanceId,
		})
	}
	if len(terminating) == 0 {
		return nil, nil
	}

	terminatingIds := make([]string, len(terminating))
	for i, tw := range terminating {
		terminatingIds[i] = tw.Id
	}
	a.emit(Event{Type: EventSetWorkersTerminate, WorkerIds: terminatingIds})
	err = a.callGrid(ctx, func(ctx context.Context) error {
		return a.grid.SetWorkersTerminating(ctx, terminatingIds)
	})
	if err != nil {
		return nil, errors.Wrap(err, "autoscaler: SetWorkersTerminating failed")
	}

	log.Info("autoscaler: down-scaled", "count", len(terminating))
	a.emit(Event{Type: EventDownScaled, TerminatingWorkers: terminating})
	return terminating, nil
}

func (a *Autoscaler) terminateInstances(ctx context.Context, keys []WorkerKey) ([]WorkerInstance, error) {
	if len(keys) == 0 {
		return []WorkerInstance{}, nil
	}
	ctx, cancel := a.callCtx(ctx)
	defer cancel()
	instances, err := a.impl.TerminateInstances(ctx, keys)
	if err != nil {
		return nil, errors.Wrap(err, "autoscaler: TerminateInstances failed")
	}
	return instances, nil
}

func (a *Autoscaler) callGrid(ctx context.Context, fx func(ctx context.Context) error) error {
	ctx, cancel := a.callCtx(ctx)
	defer cancel()
	return fx(ctx)
}
