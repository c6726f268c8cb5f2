package notify

import (
	"context"
	"encoding/json"
	"github.com/coopernurse/gridscaler/pkg/autoscaler"
	"github.com/coopernurse/gridscaler/pkg/db"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// JournalObserver records autoscaler events in a db.Db. Writes happen on the goroutine
// started with Run.
type JournalObserver struct {
	*eventQueue
	db db.Db
}

func NewJournalObserver(journal db.Db, queueSize int, skip []autoscaler.EventType) *JournalObserver {
	j := &JournalObserver{db: journal}
	j.eventQueue = newEventQueue("journal", queueSize, skip, j.put)
	return j
}

func (j *JournalObserver) put(ctx context.Context, e autoscaler.Event) error {
	rec, err := ToEventRecord(e)
	if err != nil {
		return err
	}
	return j.db.PutEvent(rec)
}

// ToEventRecord converts e to its journal form, assigning a new random id
func ToEventRecord(e autoscaler.Event) (db.EventRecord, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return db.EventRecord{}, errors.Wrap(err, "notify: marshal event failed")
	}
	return db.EventRecord{
		Id:   uuid.New().String(),
		Type: string(e.Type),
		Time: e.Time,
		Data: data,
	}, nil
}
