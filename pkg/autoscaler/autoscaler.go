package autoscaler

import (
	"context"
	"encoding/json"
	"github.com/coopernurse/gridscaler/pkg/common"
	log "github.com/mgutz/logxi/v1"
	"math"
	"sort"
	"sync"
	"time"
)

// Autoscaler grows and shrinks a grid of workers. Run drives one reconcile-and-decide
// cycle per polling interval until its context is cancelled.
//
// Options and the launching worker set may be read and modified from any goroutine.
// Observers are invoked synchronously, outside of any lock, possibly from two
// goroutines at once during a tick.
func NewAutoscaler(grid Grid, impl Implementation, opts Options) *Autoscaler {
	opts = opts.Bounded()
	return &Autoscaler{
		grid:                            grid,
		impl:                            impl,
		lock:                            &sync.Mutex{},
		enabled:                         opts.EnabledAtStart,
		maxWorkersCap:                   opts.MaxWorkersCap,
		minWorkersCap:                   opts.MinWorkersCap,
		launchingTimeoutMinutes:         opts.LaunchingTimeoutMinutes,
		pollingIntervalMS:               opts.PollingIntervalMS,
		terminateWorkerAfterMinutesIdle: opts.TerminateWorkerAfterMinutesIdle,
		rampUpSpeedRatio:                opts.RampUpSpeedRatio,
		callTimeout:                     opts.CallTimeout,
		launchingWorkers:                nil,
		observers:                       []Observer{},
	}
}

type Autoscaler struct {
	grid Grid
	impl Implementation
	lock *sync.Mutex

	enabled                         bool
	maxWorkersCap                   *int
	minWorkersCap                   *int
	launchingTimeoutMinutes         int
	pollingIntervalMS               int
	terminateWorkerAfterMinutesIdle int
	rampUpSpeedRatio                float64
	callTimeout                     time.Duration

	// nil when no launch is in flight
	launchingWorkers map[WorkerKey]LaunchingWorker
	observers        []Observer
}

// Status is the JSON read model of the Autoscaler
type Status struct {
	Enabled                         bool
	ScalingUp                       bool
	HasMaxWorkersCap                bool
	MaxWorkersCap                   *int
	HasMinWorkersCap                bool
	MinWorkersCap                   *int
	LaunchingTimeoutMinutes         int
	TerminateWorkerAfterMinutesIdle int
	RampUpSpeedRatio                float64
	PollingIntervalMS               int
	LaunchingWorkers                []LaunchingWorker
}

func (a *Autoscaler) AddObserver(observer Observer) {
	a.lock.Lock()
	a.observers = append(a.observers, observer)
	a.lock.Unlock()
}

func (a *Autoscaler) emit(e Event) {
	if e.Time == 0 {
		e.Time = timeNow()
	}
	a.lock.Lock()
	observers := make([]Observer, len(a.observers))
	copy(observers, a.observers)
	a.lock.Unlock()
	for _, o := range observers {
		o.OnAutoscalerEvent(e)
	}
}

func (a *Autoscaler) emitChange() {
	a.emit(Event{Type: EventChange})
}

// update runs fx under the lock and emits a change event if fx reports a modification
func (a *Autoscaler) update(fx func() bool) bool {
	a.lock.Lock()
	changed := fx()
	a.lock.Unlock()
	if changed {
		a.emitChange()
	}
	return changed
}

func (a *Autoscaler) Enabled() bool {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.enabled
}

func (a *Autoscaler) SetEnabled(enabled bool) bool {
	return a.update(func() bool {
		if enabled == a.enabled {
			return false
		}
		a.enabled = enabled
		return true
	})
}

func (a *Autoscaler) ScalingUp() bool {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.launchingWorkers != nil
}

func (a *Autoscaler) HasMaxWorkersCap() bool {
	a.lock.Lock()
	defer a.lock.Unlock()
	return hasCap(a.maxWorkersCap)
}

func (a *Autoscaler) MaxWorkersCap() *int {
	a.lock.Lock()
	defer a.lock.Unlock()
	return copyCap(a.maxWorkersCap)
}

// SetMaxWorkersCap sets the upper bound on grid size. nil removes the cap.
func (a *Autoscaler) SetMaxWorkersCap(maxWorkersCap *int) bool {
	maxWorkersCap = boundCap(maxWorkersCap, MinMaxWorkersCap)
	return a.update(func() bool {
		if capsEqual(maxWorkersCap, a.maxWorkersCap) {
			return false
		}
		a.maxWorkersCap = maxWorkersCap
		return true
	})
}

func (a *Autoscaler) HasMinWorkersCap() bool {
	a.lock.Lock()
	defer a.lock.Unlock()
	return hasCap(a.minWorkersCap)
}

func (a *Autoscaler) MinWorkersCap() *int {
	a.lock.Lock()
	defer a.lock.Unlock()
	return copyCap(a.minWorkersCap)
}

// SetMinWorkersCap sets the floor that down-scaling never crosses. nil removes the floor.
func (a *Autoscaler) SetMinWorkersCap(minWorkersCap *int) bool {
	minWorkersCap = boundCap(minWorkersCap, MinMinWorkersCap)
	return a.update(func() bool {
		if capsEqual(minWorkersCap, a.minWorkersCap) {
			return false
		}
		a.minWorkersCap = minWorkersCap
		return true
	})
}

func (a *Autoscaler) LaunchingTimeoutMinutes() int {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.launchingTimeoutMinutes
}

func (a *Autoscaler) SetLaunchingTimeoutMinutes(minutes int) bool {
	minutes = common.BoundInt(float64(minutes), MinLaunchingTimeoutMinutes)
	return a.update(func() bool {
		if minutes == a.launchingTimeoutMinutes {
			return false
		}
		a.launchingTimeoutMinutes = minutes
		return true
	})
}

func (a *Autoscaler) TerminateWorkerAfterMinutesIdle() int {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.terminateWorkerAfterMinutesIdle
}

func (a *Autoscaler) SetTerminateWorkerAfterMinutesIdle(minutes int) bool {
	minutes = common.BoundInt(float64(minutes), MinTerminateWorkerAfterMinutesIdle)
	return a.update(func() bool {
		if minutes == a.terminateWorkerAfterMinutesIdle {
			return false
		}
		a.terminateWorkerAfterMinutesIdle = minutes
		return true
	})
}

func (a *Autoscaler) RampUpSpeedRatio() float64 {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.rampUpSpeedRatio
}

func (a *Autoscaler) SetRampUpSpeedRatio(ratio float64) bool {
	if math.IsNaN(ratio) {
		return false
	}
	ratio = boundRatio(ratio)
	return a.update(func() bool {
		if ratio == a.rampUpSpeedRatio {
			return false
		}
		a.rampUpSpeedRatio = ratio
		return true
	})
}

func (a *Autoscaler) PollingIntervalMS() int {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.pollingIntervalMS
}

func (a *Autoscaler) PollingInterval() time.Duration {
	return common.MillisToDuration(int64(a.PollingIntervalMS()))
}

func (a *Autoscaler) SetPollingIntervalMS(intervalMS int) bool {
	intervalMS = common.BoundInt(float64(intervalMS), MinPollingIntervalMS)
	return a.update(func() bool {
		if intervalMS == a.pollingIntervalMS {
			return false
		}
		a.pollingIntervalMS = intervalMS
		return true
	})
}

// LaunchingWorkers returns the workers launched but not yet seen in a grid snapshot,
// ordered by launch time
func (a *Autoscaler) LaunchingWorkers() []LaunchingWorker {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.sortedLaunchingWorkers()
}

// caller must hold a.lock
func (a *Autoscaler) sortedLaunchingWorkers() []LaunchingWorker {
	workers := make([]LaunchingWorker, 0, len(a.launchingWorkers))
	for _, w := range a.launchingWorkers {
		workers = append(workers, w)
	}
	sort.Sort(LaunchingWorkerByTime(workers))
	return workers
}

// Options returns the current settings in a form that can be passed back to NewAutoscaler
func (a *Autoscaler) Options() Options {
	a.lock.Lock()
	defer a.lock.Unlock()
	return Options{
		EnabledAtStart:                  a.enabled,
		MaxWorkersCap:                   copyCap(a.maxWorkersCap),
		MinWorkersCap:                   copyCap(a.minWorkersCap),
		LaunchingTimeoutMinutes:         a.launchingTimeoutMinutes,
		PollingIntervalMS:               a.pollingIntervalMS,
		TerminateWorkerAfterMinutesIdle: a.terminateWorkerAfterMinutesIdle,
		RampUpSpeedRatio:                a.rampUpSpeedRatio,
		CallTimeout:                     a.callTimeout,
	}
}

// ApplyOptions replaces every mutable setting with the bounded values in opts and emits
// a single change event if anything differs. CallTimeout is fixed at construction.
func (a *Autoscaler) ApplyOptions(opts Options) bool {
	opts = opts.Bounded()
	changed := a.update(func() bool {
		changed := a.enabled != opts.EnabledAtStart ||
			!capsEqual(a.maxWorkersCap, opts.MaxWorkersCap) ||
			!capsEqual(a.minWorkersCap, opts.MinWorkersCap) ||
			a.launchingTimeoutMinutes != opts.LaunchingTimeoutMinutes ||
			a.pollingIntervalMS != opts.PollingIntervalMS ||
			a.terminateWorkerAfterMinutesIdle != opts.TerminateWorkerAfterMinutesIdle ||
			a.rampUpSpeedRatio != opts.RampUpSpeedRatio
		if !changed {
			return false
		}
		a.enabled = opts.EnabledAtStart
		a.maxWorkersCap = copyCap(opts.MaxWorkersCap)
		a.minWorkersCap = copyCap(opts.MinWorkersCap)
		a.launchingTimeoutMinutes = opts.LaunchingTimeoutMinutes
		a.pollingIntervalMS = opts.PollingIntervalMS
		a.terminateWorkerAfterMinutesIdle = opts.TerminateWorkerAfterMinutesIdle
		a.rampUpSpeedRatio = opts.RampUpSpeedRatio
		return true
	})
	if changed {
		log.Info("autoscaler: options applied", "enabled", opts.EnabledAtStart,
			"pollingIntervalMS", opts.PollingIntervalMS, "rampUpSpeedRatio", opts.RampUpSpeedRatio)
	}
	return changed
}

func (a *Autoscaler) Status() Status {
	a.lock.Lock()
	defer a.lock.Unlock()
	return Status{
		Enabled:                         a.enabled,
		ScalingUp:                       a.launchingWorkers != nil,
		HasMaxWorkersCap:                hasCap(a.maxWorkersCap),
		MaxWorkersCap:                   copyCap(a.maxWorkersCap),
		HasMinWorkersCap:                hasCap(a.minWorkersCap),
		MinWorkersCap:                   copyCap(a.minWorkersCap),
		LaunchingTimeoutMinutes:         a.launchingTimeoutMinutes,
		TerminateWorkerAfterMinutesIdle: a.terminateWorkerAfterMinutesIdle,
		RampUpSpeedRatio:                a.rampUpSpeedRatio,
		PollingIntervalMS:               a.pollingIntervalMS,
		LaunchingWorkers:                a.sortedLaunchingWorkers(),
	}
}

func (a *Autoscaler) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Status())
}

// ConfigUrl returns the provisioning backend's configuration URL
func (a *Autoscaler) ConfigUrl(ctx context.Context) (string, error) {
	ctx, cancel := a.callCtx(ctx)
	defer cancel()
	return a.impl.ConfigUrl(ctx)
}

func (a *Autoscaler) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	a.lock.Lock()
	timeout := a.callTimeout
	a.lock.Unlock()
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

func copyCap(v *int) *int {
	if v == nil {
		return nil
	}
	return common.IntPtr(*v)
}

type LaunchingWorkerByTime []LaunchingWorker

func (s LaunchingWorkerByTime) Len() int      { return len(s) }
func (s LaunchingWorkerByTime) Swap(i, j int) { s[i], s[j] = s[j], s[i] }
func (s LaunchingWorkerByTime) Less(i, j int) bool {
	if s[i].LaunchingTime == s[j].LaunchingTime {
		return s[i].WorkerKey < s[j].WorkerKey
	}
	return s[i].LaunchingTime < s[j].LaunchingTime
}
