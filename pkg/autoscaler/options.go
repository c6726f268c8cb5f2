package autoscaler

import (
	"github.com/coopernurse/gridscaler/pkg/common"
	"math"
	"time"
)

const (
	MinPollingIntervalMS               = 500
	MinMaxWorkersCap                   = 1
	MinMinWorkersCap                   = 0
	MinLaunchingTimeoutMinutes         = 1
	MinTerminateWorkerAfterMinutesIdle = 1
	MinRampUpSpeedRatio                = 0.0
	MaxRampUpSpeedRatio                = 10.0
)

type Options struct {
	EnabledAtStart bool
	// nil means no cap
	MaxWorkersCap *int
	// nil means no floor
	MinWorkersCap                   *int
	LaunchingTimeoutMinutes         int
	PollingIntervalMS               int
	TerminateWorkerAfterMinutesIdle int
	RampUpSpeedRatio                float64
	// If > 0, each Grid and Implementation call is bounded by this timeout
	CallTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		EnabledAtStart:                  false,
		MaxWorkersCap:                   nil,
		MinWorkersCap:                   nil,
		LaunchingTimeoutMinutes:         10,
		PollingIntervalMS:               1000,
		TerminateWorkerAfterMinutesIdle: 1,
		RampUpSpeedRatio:                0.5,
	}
}

// Bounded returns a copy of o with every numeric option clamped to its allowed range
func (o Options) Bounded() Options {
	o.PollingIntervalMS = common.BoundInt(float64(o.PollingIntervalMS), MinPollingIntervalMS)
	o.MaxWorkersCap = boundCap(o.MaxWorkersCap, MinMaxWorkersCap)
	o.MinWorkersCap = boundCap(o.MinWorkersCap, MinMinWorkersCap)
	o.LaunchingTimeoutMinutes = common.BoundInt(float64(o.LaunchingTimeoutMinutes), MinLaunchingTimeoutMinutes)
	o.TerminateWorkerAfterMinutesIdle = common.BoundInt(float64(o.TerminateWorkerAfterMinutesIdle),
		MinTerminateWorkerAfterMinutesIdle)
	o.RampUpSpeedRatio = boundRatio(o.RampUpSpeedRatio)
	if o.CallTimeout < 0 {
		o.CallTimeout = 0
	}
	return o
}

func boundCap(v *int, min int) *int {
	if v == nil {
		return nil
	}
	return common.IntPtr(common.BoundInt(float64(*v), min))
}

func boundRatio(v float64) float64 {
	if math.IsNaN(v) {
		return DefaultOptions().RampUpSpeedRatio
	}
	return common.BoundFloat(v, MinRampUpSpeedRatio, MaxRampUpSpeedRatio)
}

func hasCap(v *int) bool {
	return v != nil && *v > 0
}

func capsEqual(a *int, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
