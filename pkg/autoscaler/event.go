package autoscaler

import (
	"encoding/json"
	"github.com/coopernurse/gridscaler/pkg/common"
)

type EventType string

const (
	EventPolling              EventType = "polling"
	EventScalableState        EventType = "scalable-state"
	EventChange               EventType = "change"
	EventError                EventType = "error"
	EventDownScaling          EventType = "down-scaling"
	EventDownScaled           EventType = "down-scaled"
	EventUpScaling            EventType = "up-scaling"
	EventUpScaled             EventType = "up-scaled"
	EventWorkersLaunched      EventType = "workers-launched"
	EventWorkersLaunchTimeout EventType = "workers-launch-timeout"
	EventDisablingWorkers     EventType = "disabling-workers"
	EventSetWorkersTerminate  EventType = "set-workers-termination"
)

var AllEventTypes = []EventType{
	EventPolling, EventScalableState, EventChange, EventError, EventDownScaling, EventDownScaled,
	EventUpScaling, EventUpScaled, EventWorkersLaunched, EventWorkersLaunchTimeout, EventDisablingWorkers,
	EventSetWorkersTerminate,
}

// Event is a notification emitted by the Autoscaler. Only the payload field that
// corresponds to Type is set.
type Event struct {
	Type EventType
	// epoch millis when the event was emitted
	Time int64

	State              *GridState          // scalable-state
	Err                error               // error
	Workers            []Worker            // down-scaling
	LaunchRequest      *LaunchRequest      // up-scaling
	LaunchingWorkers   []LaunchingWorker   // up-scaled, workers-launch-timeout
	LaunchedWorkers    []LaunchedWorker    // workers-launched
	TerminatingWorkers []TerminatingWorker // down-scaled
	WorkerIds          []string            // disabling-workers, set-workers-termination
}

// Payload returns the value carried by the event, or nil for events without one
func (e Event) Payload() interface{} {
	switch e.Type {
	case EventScalableState:
		return e.State
	case EventError:
		if e.Err == nil {
			return nil
		}
		return e.Err.Error()
	case EventDownScaling:
		return e.Workers
	case EventUpScaling:
		return e.LaunchRequest
	case EventUpScaled, EventWorkersLaunchTimeout:
		return e.LaunchingWorkers
	case EventWorkersLaunched:
		return e.LaunchedWorkers
	case EventDownScaled:
		return e.TerminatingWorkers
	case EventDisablingWorkers, EventSetWorkersTerminate:
		return e.WorkerIds
	}
	return nil
}

func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    EventType
		Time    int64
		Payload interface{} `json:",omitempty"`
	}{
		Type:    e.Type,
		Time:    e.Time,
		Payload: e.Payload(),
	})
}

type Observer interface {
	OnAutoscalerEvent(e Event)
}

// ObserverFunc adapts a plain function to the Observer interface
type ObserverFunc func(e Event)

func (f ObserverFunc) OnAutoscalerEvent(e Event) {
	f(e)
}

// timeNow is replaced in tests
var timeNow = common.NowMillis
