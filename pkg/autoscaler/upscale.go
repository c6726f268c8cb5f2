package autoscaler

import (
	"context"
	"github.com/coopernurse/gridscaler/pkg/common"
	log "github.com/mgutz/logxi/v1"
	"github.com/pkg/errors"
	"math"
)

// ComputeLaunchRequest throttles estimate by rampUpSpeedRatio (never below one instance)
// and limits it so the grid does not exceed maxWorkersCap. Returns nil if nothing
// should be launched.
func ComputeLaunchRequest(estimate LaunchRequest, rampUpSpeedRatio float64, maxWorkersCap *int,
	currentWorkers int) *LaunchRequest {
	numInstances := common.MaxInt(int(math.Round(float64(estimate.NumInstances)*rampUpSpeedRatio)), 1)
	if hasCap(maxWorkersCap) {
		allowance := common.MaxInt(*maxWorkersCap-currentWorkers, 0)
		numInstances = common.MinInt(numInstances, allowance)
	}
	if numInstances <= 0 {
		return nil
	}
	return &LaunchRequest{NumInstances: numInstances, Hint: estimate.Hint}
}

func (a *Autoscaler) autoUpScale(ctx context.Context, state *GridState) ([]LaunchingWorker, error) {
	estimate, err := a.estimateWorkersLaunchRequest(ctx, state)
	if err != nil {
		return nil, err
	}

	a.lock.Lock()
	ratio := a.rampUpSpeedRatio
	maxWorkersCap := copyCap(a.maxWorkersCap)
	a.lock.Unlock()

	req := ComputeLaunchRequest(estimate, ratio, maxWorkersCap, len(state.WorkerStates))
	if req == nil {
		return nil, nil
	}
	return a.upScale(ctx, *req, state.CurrentTime)
}

func (a *Autoscaler) estimateWorkersLaunchRequest(ctx context.Context, state *GridState) (LaunchRequest, error) {
	ctx, cancel := a.callCtx(ctx)
	defer cancel()
	req, err := a.impl.EstimateWorkersLaunchRequest(ctx, state)
	if err != nil {
		return LaunchRequest{}, errors.Wrap(err, "autoscaler: EstimateWorkersLaunchRequest failed")
	}
	return req, nil
}

// upScale launches req.NumInstances and records the returned instances as launching
// at launchingTime
func (a *Autoscaler) upScale(ctx context.Context, req LaunchRequest, launchingTime int64) ([]LaunchingWorker, error) {
	if req.NumInstances <= 0 {
		return nil, nil
	}
	a.emit(Event{Type: EventUpScaling, LaunchRequest: &req})

	instances, err := a.launchInstances(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(instances) == 0 {
		return nil, nil
	}

	launching := make([]LaunchingWorker, len(instances))
	for i, inst := range instances {
		launching[i] = LaunchingWorker{
			WorkerKey:     inst.WorkerKey,
			InstanceId:    inst.InstanceId,
			LaunchingTime: launchingTime,
		}
	}

	a.lock.Lock()
	if a.launchingWorkers == nil {
		a.launchingWorkers = make(map[WorkerKey]LaunchingWorker, len(launching))
	}
	for _, lw := range launching {
		a.launchingWorkers[lw.WorkerKey] = lw
	}
	a.lock.Unlock()

	log.Info("autoscaler: up-scaled", "requested", req.NumInstances, "launched", len(launching))
	a.emit(Event{Type: EventUpScaled, LaunchingWorkers: launching})
	a.emitChange()
	return launching, nil
}

func (a *Autoscaler) launchInstances(ctx context.Context, req LaunchRequest) ([]WorkerInstance, error) {
	ctx, cancel := a.callCtx(ctx)
	defer cancel()
	instances, err := a.impl.LaunchInstances(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "autoscaler: LaunchInstances failed")
	}
	return instances, nil
}
