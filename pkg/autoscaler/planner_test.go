package autoscaler_test

import (
	"fmt"
	"github.com/coopernurse/gridscaler/pkg/autoscaler"
	"github.com/coopernurse/gridscaler/pkg/common"
	"github.com/coopernurse/gridscaler/pkg/test"
	"github.com/stretchr/testify/assert"
	"math"
	"math/rand"
	"reflect"
	"testing"
	"testing/quick"
)

const t0 = int64(1500000000000)

func minutesAgo(minutes int) int64 {
	return t0 - common.MinutesToMillis(minutes)
}

func TestScenarioAIdleWorkerSelected(t *testing.T) {
	state := &autoscaler.GridState{
		WorkerStates: []autoscaler.WorkerState{test.IdleWorker("w1", minutesAgo(10))},
		QueueEmpty:   true,
		CurrentTime:  t0,
	}
	workers := autoscaler.ComputeDownScalingWorkers(state, nil, 5)
	assert.Equal(t, []autoscaler.Worker{{Id: "id-w1", Name: "w1"}}, workers)
}

func TestScenarioBMinCapPreventsDownScale(t *testing.T) {
	state := &autoscaler.GridState{
		WorkerStates: test.IdleWorkers("w", 5, minutesAgo(10)),
		QueueEmpty:   true,
		CurrentTime:  t0,
	}
	workers := autoscaler.ComputeDownScalingWorkers(state, common.IntPtr(5), 5)
	assert.Equal(t, 0, len(workers))

	workers = autoscaler.ComputeDownScalingWorkers(state, common.IntPtr(3), 5)
	assert.Equal(t, []autoscaler.Worker{{Id: "id-w-0", Name: "w-0"}, {Id: "id-w-1", Name: "w-1"}}, workers)
}

func TestDownScaleSkipsBusyTerminatingAndRecentlyIdle(t *testing.T) {
	terminating := test.IdleWorker("term", minutesAgo(30))
	terminating.Terminating = true
	neverIdle := autoscaler.WorkerState{Worker: autoscaler.Worker{Id: "id-never", Name: "never"}}
	state := &autoscaler.GridState{
		WorkerStates: []autoscaler.WorkerState{
			test.BusyWorker("busy"),
			terminating,
			neverIdle,
			test.IdleWorker("recent", minutesAgo(2)),
			test.IdleWorker("exact", minutesAgo(5)),
			test.IdleWorker("old", minutesAgo(6)),
		},
		QueueEmpty:  true,
		CurrentTime: t0,
	}
	workers := autoscaler.ComputeDownScalingWorkers(state, nil, 5)
	assert.Equal(t, []autoscaler.Worker{{Id: "id-old", Name: "old"}}, workers)
}

func TestDownScaleMinCapCountsOnlyNonTerminating(t *testing.T) {
	states := test.IdleWorkers("w", 4, minutesAgo(10))
	states[0].Terminating = true
	state := &autoscaler.GridState{WorkerStates: states, QueueEmpty: true, CurrentTime: t0}

	// 3 non-terminating workers, floor of 2 leaves room for one
	workers := autoscaler.ComputeDownScalingWorkers(state, common.IntPtr(2), 1)
	assert.Equal(t, []autoscaler.Worker{{Id: "id-w-1", Name: "w-1"}}, workers)
}

func TestScenarioCRampUpThrottle(t *testing.T) {
	req := autoscaler.ComputeLaunchRequest(autoscaler.LaunchRequest{NumInstances: 10, Hint: "h"}, 0.5, nil, 0)
	assert.Equal(t, &autoscaler.LaunchRequest{NumInstances: 5, Hint: "h"}, req)
}

func TestScenarioDMaxCapClampsLaunch(t *testing.T) {
	req := autoscaler.ComputeLaunchRequest(autoscaler.LaunchRequest{NumInstances: 10}, 0.5, common.IntPtr(12), 10)
	assert.Equal(t, &autoscaler.LaunchRequest{NumInstances: 2}, req)

	req = autoscaler.ComputeLaunchRequest(autoscaler.LaunchRequest{NumInstances: 10}, 0.5, common.IntPtr(12), 12)
	assert.Nil(t, req)

	req = autoscaler.ComputeLaunchRequest(autoscaler.LaunchRequest{NumInstances: 10}, 0.5, common.IntPtr(12), 15)
	assert.Nil(t, req)
}

func TestThrottleNeverBelowOne(t *testing.T) {
	req := autoscaler.ComputeLaunchRequest(autoscaler.LaunchRequest{NumInstances: 1}, 0.1, nil, 0)
	assert.Equal(t, 1, req.NumInstances)

	req = autoscaler.ComputeLaunchRequest(autoscaler.LaunchRequest{NumInstances: 3}, 0, nil, 0)
	assert.Equal(t, 1, req.NumInstances)
}

type downScaleInput struct {
	State         *autoscaler.GridState
	MinWorkersCap *int
	IdleMinutes   int
}

func (downScaleInput) Generate(r *rand.Rand, size int) reflect.Value {
	num := r.Intn(30)
	states := make([]autoscaler.WorkerState, num)
	for i := 0; i < num; i++ {
		ws := autoscaler.WorkerState{
			Worker:      autoscaler.Worker{Id: fmt.Sprintf("id-%d", i), Name: fmt.Sprintf("w-%d", i)},
			Busy:        r.Intn(3) == 0,
			Terminating: r.Intn(4) == 0,
		}
		if r.Intn(5) != 0 {
			idle := t0 - int64(r.Intn(20*60000))
			ws.LastIdleTime = &idle
		}
		states[i] = ws
	}
	var minCap *int
	if r.Intn(3) != 0 {
		minCap = common.IntPtr(r.Intn(20))
	}
	return reflect.ValueOf(downScaleInput{
		State:         &autoscaler.GridState{WorkerStates: states, QueueEmpty: true, CurrentTime: t0},
		MinWorkersCap: minCap,
		IdleMinutes:   r.Intn(10) + 1,
	})
}

func TestPropertyDownScaleRespectsMinCap(t *testing.T) {
	f := func(input downScaleInput) bool {
		workers := autoscaler.ComputeDownScalingWorkers(input.State, input.MinWorkersCap, input.IdleMinutes)
		notTerminating := 0
		for _, ws := range input.State.WorkerStates {
			if !ws.Terminating {
				notTerminating++
			}
		}
		if input.MinWorkersCap != nil && len(workers) > common.MaxInt(notTerminating-*input.MinWorkersCap, 0) {
			return false
		}
		return len(workers) <= notTerminating
	}
	assert.Nil(t, quick.Check(f, nil))
}

func TestPropertyDownScaleOnlySelectsIdleCandidates(t *testing.T) {
	f := func(input downScaleInput) bool {
		byId := map[string]autoscaler.WorkerState{}
		for _, ws := range input.State.WorkerStates {
			byId[ws.Id] = ws
		}
		idleMillis := common.MinutesToMillis(input.IdleMinutes)
		for _, w := range autoscaler.ComputeDownScalingWorkers(input.State, input.MinWorkersCap, input.IdleMinutes) {
			ws := byId[w.Id]
			if ws.Busy || ws.Terminating || ws.LastIdleTime == nil {
				return false
			}
			if input.State.CurrentTime-*ws.LastIdleTime <= idleMillis {
				return false
			}
		}
		return true
	}
	assert.Nil(t, quick.Check(f, nil))
}

type launchInput struct {
	Estimate       int
	Ratio          float64
	MaxWorkersCap  *int
	CurrentWorkers int
}

func (launchInput) Generate(r *rand.Rand, size int) reflect.Value {
	var maxCap *int
	if r.Intn(2) == 0 {
		maxCap = common.IntPtr(r.Intn(50) + 1)
	}
	return reflect.ValueOf(launchInput{
		Estimate:       r.Intn(100) + 1,
		Ratio:          r.Float64() * autoscaler.MaxRampUpSpeedRatio,
		MaxWorkersCap:  maxCap,
		CurrentWorkers: r.Intn(60),
	})
}

func TestPropertyUpScaleRespectsMaxCap(t *testing.T) {
	f := func(input launchInput) bool {
		req := autoscaler.ComputeLaunchRequest(autoscaler.LaunchRequest{NumInstances: input.Estimate},
			input.Ratio, input.MaxWorkersCap, input.CurrentWorkers)
		if req == nil {
			return input.MaxWorkersCap != nil && *input.MaxWorkersCap-input.CurrentWorkers <= 0
		}
		if req.NumInstances < 1 {
			return false
		}
		return input.MaxWorkersCap == nil || req.NumInstances <= *input.MaxWorkersCap-input.CurrentWorkers
	}
	assert.Nil(t, quick.Check(f, nil))
}

func TestPropertyThrottleFormula(t *testing.T) {
	f := func(input launchInput) bool {
		req := autoscaler.ComputeLaunchRequest(autoscaler.LaunchRequest{NumInstances: input.Estimate},
			input.Ratio, nil, input.CurrentWorkers)
		expected := common.MaxInt(int(math.Round(float64(input.Estimate)*input.Ratio)), 1)
		return req != nil && req.NumInstances == expected
	}
	assert.Nil(t, quick.Check(f, nil))
}
