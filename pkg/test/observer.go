package test

import (
	"github.com/coopernurse/gridscaler/pkg/autoscaler"
	"sync"
)

// RecordingObserver keeps every event it receives
type RecordingObserver struct {
	lock   *sync.Mutex
	events []autoscaler.Event
}

func NewRecordingObserver() *RecordingObserver {
	return &RecordingObserver{lock: &sync.Mutex{}}
}

func (r *RecordingObserver) OnAutoscalerEvent(e autoscaler.Event) {
	r.lock.Lock()
	r.events = append(r.events, e)
	r.lock.Unlock()
}

func (r *RecordingObserver) Events() []autoscaler.Event {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]autoscaler.Event{}, r.events...)
}

func (r *RecordingObserver) Types() []autoscaler.EventType {
	r.lock.Lock()
	defer r.lock.Unlock()
	types := make([]autoscaler.EventType, len(r.events))
	for i, e := range r.events {
		types[i] = e.Type
	}
	return types
}

// OfType returns the recorded events with the given type, in order
func (r *RecordingObserver) OfType(t autoscaler.EventType) []autoscaler.Event {
	r.lock.Lock()
	defer r.lock.Unlock()
	out := make([]autoscaler.Event, 0)
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *RecordingObserver) Reset() {
	r.lock.Lock()
	r.events = nil
	r.lock.Unlock()
}
