package autoscaler

import (
	"context"
	log "github.com/mgutz/logxi/v1"
	"go.uber.org/multierr"
	"sync"
	"time"
)

// Run polls the grid once per PollingInterval until ctx is cancelled. Errors are
// emitted as error events and never stop the loop.
func (a *Autoscaler) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	log.Info("autoscaler: starting poll loop", "intervalMS", a.PollingIntervalMS())
	for {
		if ctx.Err() != nil {
			log.Info("autoscaler: poll loop shutdown gracefully")
			return
		}

		a.poll(ctx)

		// interval is re-read each iteration so setters take effect on the next tick
		timer := time.NewTimer(a.PollingInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info("autoscaler: poll loop shutdown gracefully")
			return
		case <-timer.C:
		}
	}
}

func (a *Autoscaler) poll(ctx context.Context) {
	a.emit(Event{Type: EventPolling})
	err := a.Tick(ctx)
	for _, e := range multierr.Errors(err) {
		log.Error("autoscaler: tick failed", "err", e)
		a.emit(Event{Type: EventError, Err: e})
	}
}

// Tick fetches the grid state, reconciles launching workers, and runs the down and up
// scaling planners concurrently. The returned error may combine both planners' errors.
func (a *Autoscaler) Tick(ctx context.Context) error {
	state, err := a.getCurrentState(ctx)
	if err != nil {
		return err
	}
	a.emit(Event{Type: EventScalableState, State: state})

	err = a.reconcile(ctx, state)
	if err != nil {
		return err
	}

	a.lock.Lock()
	run := a.enabled && a.launchingWorkers == nil
	a.lock.Unlock()
	if !run {
		return nil
	}

	var downErr, upErr error
	wg := &sync.WaitGroup{}
	if state.QueueEmpty {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, downErr = a.autoDownScale(ctx, state)
		}()
	}
	if !state.QueueEmpty && state.CPUDebt > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, upErr = a.autoUpScale(ctx, state)
		}()
	}
	wg.Wait()
	return multierr.Combine(downErr, upErr)
}
