package test

import (
	"context"
	"fmt"
	"github.com/coopernurse/gridscaler/pkg/autoscaler"
	"sync"
)

// FakeImplementation is an in-memory autoscaler.Implementation. Worker keys are worker
// names. Launched instances get keys "launched-N", so a test can make a launch show up
// in the grid by adding a worker with that name.
type FakeImplementation struct {
	lock *sync.Mutex

	Estimate     autoscaler.LaunchRequest
	EstimateErr  error
	LaunchErr    error
	TerminateErr error
	TranslateErr error
	// if > 0, LaunchInstances returns at most this many instances
	LaunchLimit int
	// keys TerminateInstances silently refuses to terminate
	KeepAlive map[autoscaler.WorkerKey]bool
	Url       string

	launchCount int
	launched    []autoscaler.LaunchRequest
	terminated  [][]autoscaler.WorkerKey
}

func NewFakeImplementation() *FakeImplementation {
	return &FakeImplementation{
		lock:      &sync.Mutex{},
		KeepAlive: map[autoscaler.WorkerKey]bool{},
		Url:       "http://config.example.com/workers",
	}
}

func (f *FakeImplementation) TranslateToWorkerKeys(ctx context.Context,
	workers []autoscaler.Worker) ([]autoscaler.WorkerKey, error) {
	if f.TranslateErr != nil {
		return nil, f.TranslateErr
	}
	keys := make([]autoscaler.WorkerKey, len(workers))
	for i, w := range workers {
		keys[i] = autoscaler.WorkerKey(w.Name)
	}
	return keys, nil
}

func (f *FakeImplementation) EstimateWorkersLaunchRequest(ctx context.Context,
	state *autoscaler.GridState) (autoscaler.LaunchRequest, error) {
	if f.EstimateErr != nil {
		return autoscaler.LaunchRequest{}, f.EstimateErr
	}
	return f.Estimate, nil
}

func (f *FakeImplementation) LaunchInstances(ctx context.Context,
	req autoscaler.LaunchRequest) ([]autoscaler.WorkerInstance, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.launched = append(f.launched, req)
	if f.LaunchErr != nil {
		return nil, f.LaunchErr
	}
	num := req.NumInstances
	if f.LaunchLimit > 0 && num > f.LaunchLimit {
		num = f.LaunchLimit
	}
	instances := make([]autoscaler.WorkerInstance, num)
	for i := 0; i < num; i++ {
		instances[i] = autoscaler.WorkerInstance{
			InstanceId: fmt.Sprintf("i-%d", f.launchCount),
			WorkerKey:  autoscaler.WorkerKey(fmt.Sprintf("launched-%d", f.launchCount)),
		}
		f.launchCount++
	}
	return instances, nil
}

func (f *FakeImplementation) TerminateInstances(ctx context.Context,
	workerKeys []autoscaler.WorkerKey) ([]autoscaler.WorkerInstance, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.terminated = append(f.terminated, workerKeys)
	if f.TerminateErr != nil {
		return nil, f.TerminateErr
	}
	instances := make([]autoscaler.WorkerInstance, 0, len(workerKeys))
	for _, k := range workerKeys {
		if f.KeepAlive[k] {
			continue
		}
		instances = append(instances, autoscaler.WorkerInstance{InstanceId: "i-" + string(k), WorkerKey: k})
	}
	return instances, nil
}

func (f *FakeImplementation) ConfigUrl(ctx context.Context) (string, error) {
	return f.Url, nil
}

func (f *FakeImplementation) Launched() []autoscaler.LaunchRequest {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]autoscaler.LaunchRequest{}, f.launched...)
}

func (f *FakeImplementation) Terminated() [][]autoscaler.WorkerKey {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([][]autoscaler.WorkerKey{}, f.terminated...)
}
