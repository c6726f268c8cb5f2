package gateway

import (
	"github.com/coopernurse/gridscaler/pkg/autoscaler"
)

// OptionsPatch is the body of PUT /v1/autoscaler/options. Nil fields are left unchanged.
type OptionsPatch struct {
	Enabled                         *bool    `json:",omitempty"`
	MaxWorkersCap                   *int     `json:",omitempty"`
	MinWorkersCap                   *int     `json:",omitempty"`
	RemoveMaxWorkersCap             bool     `json:",omitempty"`
	RemoveMinWorkersCap             bool     `json:",omitempty"`
	LaunchingTimeoutMinutes         *int     `json:",omitempty"`
	PollingIntervalMS               *int     `json:",omitempty"`
	TerminateWorkerAfterMinutesIdle *int     `json:",omitempty"`
	RampUpSpeedRatio                *float64 `json:",omitempty"`
}

type LaunchOutput struct {
	LaunchingWorkers []autoscaler.LaunchingWorker
}

// TerminateInput names the workers to terminate, either directly or by grid worker id.
// Ids are resolved against the current grid state.
type TerminateInput struct {
	Workers   []autoscaler.Worker `json:",omitempty"`
	WorkerIds []string            `json:",omitempty"`
}

type TerminateOutput struct {
	TerminatingWorkers []autoscaler.TerminatingWorker
}

type TerminateLaunchingInput struct {
	WorkerKeys []autoscaler.WorkerKey
}

type TerminateLaunchingOutput struct {
	LaunchingWorkers []autoscaler.LaunchingWorker
}

type ConfigUrlOutput struct {
	ConfigUrl string
}

type ErrorOutput struct {
	Error string
}
