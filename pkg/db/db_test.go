package db

import (
	"encoding/json"
	"fmt"
	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/assert"
	"sort"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

func panicOnErr(err error) {
	if err != nil {
		panic(err)
	}
}

func createTestSqlDb() *SqlDb {
	sqlDb, err := NewSqlDb("sqlite3", "file:test.db?cache=shared&_journal_mode=WAL&mode=memory&_busy_timeout=5000")
	panicOnErr(err)

	// run sql migrations and delete any existing data
	panicOnErr(sqlDb.Migrate())
	panicOnErr(sqlDb.DeleteAll())
	return sqlDb
}

func forEachDb(t *testing.T, fx func(t *testing.T, db Db)) {
	t.Run("mem", func(t *testing.T) {
		fx(t, NewMemDb())
	})
	t.Run("sqlite", func(t *testing.T) {
		sqlDb := createTestSqlDb()
		defer sqlDb.Close()
		fx(t, sqlDb)
	})
}

func fuzzEvents(num int, eventType string, baseTime int64) []EventRecord {
	f := fuzz.New()
	events := make([]EventRecord, num)
	for i := 0; i < num; i++ {
		var payload map[string]int
		f.Fuzz(&payload)
		data, err := json.Marshal(payload)
		panicOnErr(err)
		events[i] = EventRecord{
			Id:   fmt.Sprintf("%s-%04d", eventType, i),
			Type: eventType,
			Time: baseTime + int64(i),
			Data: data,
		}
	}
	return events
}

func newestFirst(events []EventRecord) []EventRecord {
	sorted := append([]EventRecord{}, events...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Time == sorted[j].Time {
			return sorted[i].Id < sorted[j].Id
		}
		return sorted[i].Time > sorted[j].Time
	})
	return sorted
}

func TestEventJournal(t *testing.T) {
	forEachDb(t, func(t *testing.T, db Db) {
		out, err := db.ListEvents(ListEventsInput{})
		assert.Nil(t, err)
		assert.Equal(t, ListEventsOutput{Events: []EventRecord{}}, out)

		now := int64(1500000000000)
		changes := fuzzEvents(5, "change", now)
		scaled := fuzzEvents(3, "up-scaled", now+100)
		for _, e := range append(changes, scaled...) {
			assert.Nil(t, db.PutEvent(e))
		}

		out, err = db.ListEvents(ListEventsInput{})
		assert.Nil(t, err)
		assert.Equal(t, newestFirst(append(changes, scaled...)), out.Events)
		assert.Equal(t, "", out.NextToken)

		out, err = db.ListEvents(ListEventsInput{Type: "up-scaled"})
		assert.Nil(t, err)
		assert.Equal(t, newestFirst(scaled), out.Events)
	})
}

func TestEventPagination(t *testing.T) {
	forEachDb(t, func(t *testing.T, db Db) {
		events := fuzzEvents(7, "change", 1000)
		for _, e := range events {
			assert.Nil(t, db.PutEvent(e))
		}

		all := make([]EventRecord, 0)
		input := ListEventsInput{Limit: 3}
		pages := 0
		for {
			out, err := db.ListEvents(input)
			assert.Nil(t, err)
			all = append(all, out.Events...)
			pages++
			if out.NextToken == "" || pages > 10 {
				break
			}
			input.NextToken = out.NextToken
		}
		assert.Equal(t, 3, pages)
		assert.Equal(t, newestFirst(events), all)
	})
}

func TestRemoveEventsOlderThan(t *testing.T) {
	forEachDb(t, func(t *testing.T, db Db) {
		base := time.Unix(1500000000, 0)
		events := []EventRecord{
			{Id: "old", Type: "change", Time: base.Add(-2*time.Hour).UnixNano() / 1e6, Data: []byte(`{}`)},
			{Id: "new", Type: "change", Time: base.UnixNano() / 1e6, Data: []byte(`{}`)},
		}
		for _, e := range events {
			assert.Nil(t, db.PutEvent(e))
		}

		removed, err := db.RemoveEventsOlderThan(base.Add(-time.Hour))
		assert.Nil(t, err)
		assert.Equal(t, int64(1), removed)

		out, err := db.ListEvents(ListEventsInput{})
		assert.Nil(t, err)
		assert.Equal(t, []EventRecord{events[1]}, out.Events)
	})
}

func TestSettings(t *testing.T) {
	forEachDb(t, func(t *testing.T, db Db) {
		_, err := db.GetSetting("autoscaler")
		assert.Equal(t, NotFound, err)

		assert.Nil(t, db.PutSetting("autoscaler", []byte(`{"Enabled":true}`)))
		val, err := db.GetSetting("autoscaler")
		assert.Nil(t, err)
		assert.Equal(t, `{"Enabled":true}`, string(val))

		assert.Nil(t, db.PutSetting("autoscaler", []byte(`{"Enabled":false}`)))
		val, err = db.GetSetting("autoscaler")
		assert.Nil(t, err)
		assert.Equal(t, `{"Enabled":false}`, string(val))
	})
}

func TestPutSettingSameValueTwice(t *testing.T) {
	forEachDb(t, func(t *testing.T, db Db) {
		for i := 0; i < 3; i++ {
			assert.Nil(t, db.PutSetting("repeat", []byte(`{"Enabled":true}`)))
		}
		val, err := db.GetSetting("repeat")
		assert.Nil(t, err)
		assert.Equal(t, `{"Enabled":true}`, string(val))

		assert.Nil(t, db.PutSetting("other", []byte(`{}`)))
		val, err = db.GetSetting("repeat")
		assert.Nil(t, err)
		assert.Equal(t, `{"Enabled":true}`, string(val))
	})
}

func TestMigrationDialect(t *testing.T) {
	assert.Equal(t, "bytea", blobType("postgres"))
	assert.Equal(t, "mediumblob", blobType("mysql"))
	assert.Equal(t, "mediumblob", blobType("sqlite3"))
}
