package db

import (
	"encoding/json"
	"fmt"
	"time"
)

var NotFound = fmt.Errorf("db: not found")

const maxPageSize = 1000

// Db stores the autoscaler's event journal and its persisted settings
type Db interface {
	PutEvent(event EventRecord) error
	// ListEvents returns events newest first
	ListEvents(input ListEventsInput) (ListEventsOutput, error)
	RemoveEventsOlderThan(t time.Time) (int64, error)
	PutSetting(name string, value []byte) error
	// GetSetting returns NotFound if no setting with that name has been stored
	GetSetting(name string) ([]byte, error)
}

type EventRecord struct {
	Id   string
	Type string
	// epoch millis
	Time int64
	Data json.RawMessage
}

type ListEventsInput struct {
	// If set, only events of this type are returned
	Type      string
	Limit     int64
	NextToken string
}

type ListEventsOutput struct {
	Events    []EventRecord
	NextToken string
}

func pageSize(limit int64) int64 {
	if limit < 1 || limit > maxPageSize {
		return maxPageSize
	}
	return limit
}
