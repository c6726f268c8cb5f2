package test

import (
	"context"
	"github.com/coopernurse/gridscaler/pkg/autoscaler"
	"sync"
)

// FakeGrid is an in-memory autoscaler.Grid that records the calls made to it
type FakeGrid struct {
	lock *sync.Mutex

	state        *autoscaler.GridState
	stateErr     error
	disableErr   error
	terminateErr error

	disabled    [][]string
	terminating [][]string
	stateCalls  int
}

func NewFakeGrid(state *autoscaler.GridState) *FakeGrid {
	return &FakeGrid{
		lock:  &sync.Mutex{},
		state: state,
	}
}

func (g *FakeGrid) SetState(state *autoscaler.GridState) {
	g.lock.Lock()
	g.state = state
	g.lock.Unlock()
}

func (g *FakeGrid) SetErrors(stateErr error, disableErr error, terminateErr error) {
	g.lock.Lock()
	g.stateErr = stateErr
	g.disableErr = disableErr
	g.terminateErr = terminateErr
	g.lock.Unlock()
}

func (g *FakeGrid) GetCurrentState(ctx context.Context) (*autoscaler.GridState, error) {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.stateCalls++
	if g.stateErr != nil {
		return nil, g.stateErr
	}
	return g.state, nil
}

func (g *FakeGrid) DisableWorkers(ctx context.Context, workerIds []string) error {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.disabled = append(g.disabled, workerIds)
	return g.disableErr
}

func (g *FakeGrid) SetWorkersTerminating(ctx context.Context, workerIds []string) error {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.terminating = append(g.terminating, workerIds)
	return g.terminateErr
}

func (g *FakeGrid) Disabled() [][]string {
	g.lock.Lock()
	defer g.lock.Unlock()
	return append([][]string{}, g.disabled...)
}

func (g *FakeGrid) Terminating() [][]string {
	g.lock.Lock()
	defer g.lock.Unlock()
	return append([][]string{}, g.terminating...)
}

func (g *FakeGrid) StateCalls() int {
	g.lock.Lock()
	defer g.lock.Unlock()
	return g.stateCalls
}
