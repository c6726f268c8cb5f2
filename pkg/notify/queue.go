package notify

import (
	"context"
	"github.com/coopernurse/gridscaler/pkg/autoscaler"
	log "github.com/mgutz/logxi/v1"
	"sync"
	"time"
)

const defaultQueueSize = 256

// drain timeout applied to events still buffered when Run's context is cancelled
const flushTimeout = 5 * time.Second

// DefaultSkipTypes are the high volume event types that async writers ignore unless
// configured otherwise
var DefaultSkipTypes = []autoscaler.EventType{autoscaler.EventPolling, autoscaler.EventScalableState}

type writeFunc func(ctx context.Context, e autoscaler.Event) error

// eventQueue buffers events so that slow writers never block the autoscaler.
// Events are dropped when the buffer is full.
type eventQueue struct {
	name  string
	ch    chan autoscaler.Event
	skip  map[autoscaler.EventType]bool
	write writeFunc
}

func newEventQueue(name string, size int, skip []autoscaler.EventType, write writeFunc) *eventQueue {
	if size <= 0 {
		size = defaultQueueSize
	}
	skipMap := make(map[autoscaler.EventType]bool, len(skip))
	for _, t := range skip {
		skipMap[t] = true
	}
	return &eventQueue{
		name:  name,
		ch:    make(chan autoscaler.Event, size),
		skip:  skipMap,
		write: write,
	}
}

func (q *eventQueue) OnAutoscalerEvent(e autoscaler.Event) {
	if q.skip[e.Type] {
		return
	}
	select {
	case q.ch <- e:
	default:
		log.Warn("notify: queue full, dropping event", "queue", q.name, "type", e.Type)
	}
}

func (q *eventQueue) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case e := <-q.ch:
			q.writeEvent(ctx, e)
		case <-ctx.Done():
			q.flush()
			log.Info("notify: queue writer shutdown gracefully", "queue", q.name)
			return
		}
	}
}

func (q *eventQueue) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	for {
		select {
		case e := <-q.ch:
			q.writeEvent(ctx, e)
		default:
			return
		}
	}
}

func (q *eventQueue) writeEvent(ctx context.Context, e autoscaler.Event) {
	if err := q.write(ctx, e); err != nil {
		log.Error("notify: write failed", "queue", q.name, "type", e.Type, "err", err)
	}
}
