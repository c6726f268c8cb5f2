package db

import (
	"github.com/coopernurse/gridscaler/pkg/common"
	"sort"
	"strconv"
	"sync"
	"time"
)

func NewMemDb() *MemDb {
	return &MemDb{
		events:   make([]EventRecord, 0),
		settings: make(map[string][]byte),
		lock:     &sync.Mutex{},
	}
}

// MemDb is a Db that keeps everything in memory. Used when no SQL driver is configured.
type MemDb struct {
	events   []EventRecord
	settings map[string][]byte
	lock     *sync.Mutex
}

func (d *MemDb) PutEvent(event EventRecord) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.events = append(d.events, event)
	sort.SliceStable(d.events, func(i, j int) bool {
		if d.events[i].Time == d.events[j].Time {
			return d.events[i].Id < d.events[j].Id
		}
		return d.events[i].Time > d.events[j].Time
	})
	return nil
}

func (d *MemDb) ListEvents(input ListEventsInput) (ListEventsOutput, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	offset := 0
	if input.NextToken != "" {
		o, err := strconv.Atoi(input.NextToken)
		if err == nil {
			offset = o
		}
	}
	limit := int(pageSize(input.Limit))

	matched := make([]EventRecord, 0)
	for _, e := range d.events {
		if input.Type == "" || e.Type == input.Type {
			matched = append(matched, e)
		}
	}

	out := ListEventsOutput{Events: []EventRecord{}}
	if offset >= len(matched) {
		return out, nil
	}
	end := offset + limit
	if end < len(matched) {
		out.NextToken = strconv.Itoa(end)
	} else {
		end = len(matched)
	}
	out.Events = append(out.Events, matched[offset:end]...)
	return out, nil
}

func (d *MemDb) RemoveEventsOlderThan(t time.Time) (int64, error) {
	cutoff := common.TimeToMillis(t)
	d.lock.Lock()
	defer d.lock.Unlock()
	keep := make([]EventRecord, 0, len(d.events))
	for _, e := range d.events {
		if e.Time >= cutoff {
			keep = append(keep, e)
		}
	}
	removed := int64(len(d.events) - len(keep))
	d.events = keep
	return removed, nil
}

func (d *MemDb) PutSetting(name string, value []byte) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.settings[name] = append([]byte{}, value...)
	return nil
}

func (d *MemDb) GetSetting(name string) ([]byte, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	v, ok := d.settings[name]
	if !ok {
		return nil, NotFound
	}
	return append([]byte{}, v...), nil
}
