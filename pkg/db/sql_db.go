package db

import (
	"database/sql"
	"fmt"
	"github.com/GuiaBolso/darwin"
	"github.com/Masterminds/squirrel"
	"github.com/coopernurse/gridscaler/pkg/common"
	log "github.com/mgutz/logxi/v1"
	"strconv"
	"strings"
	"time"
)

func NewSqlDb(driver string, dsn string) (*SqlDb, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	sq := squirrel.StatementBuilder
	if isPostgres(driver) {
		sq = sq.PlaceholderFormat(squirrel.Dollar)
	}
	return &SqlDb{db: db, driver: driver, sq: sq}, nil
}

type SqlDb struct {
	db       *sql.DB
	driver   string
	sq       squirrel.StatementBuilderType
	DebugLog bool
}

func (d *SqlDb) Close() {
	err := d.db.Close()
	if err != nil {
		log.Error("sql_db: err closing db", "err", err)
	}
}

func (d *SqlDb) DeleteAll() error {
	tables := []string{"event", "setting"}
	for _, t := range tables {
		_, err := d.db.Exec(fmt.Sprintf("delete from %s", t))
		if err != nil {
			return fmt.Errorf("sql_db: unable to delete from: %s - %v", t, err)
		}
	}
	return nil
}

func (d *SqlDb) PutEvent(event EventRecord) error {
	q := d.sq.Insert("event").
		Columns("id", "type", "createdAt", "json").
		Values(event.Id, event.Type, event.Time, []byte(event.Data))
	if d.DebugLog {
		log.Debug("sql_db: PutEvent", "sql", squirrel.DebugSqlizer(q))
	}
	_, err := q.RunWith(d.db).Exec()
	if err != nil {
		return fmt.Errorf("sql_db: PutEvent insert failed for id: %s err: %v", event.Id, err)
	}
	return nil
}

func (d *SqlDb) ListEvents(input ListEventsInput) (ListEventsOutput, error) {
	q := d.sq.Select("id", "type", "createdAt", "json").From("event").OrderBy("createdAt desc", "id")
	if input.Type != "" {
		q = q.Where(squirrel.Eq{"type": input.Type})
	}
	events := make([]EventRecord, 0)
	nextToken, err := d.selectPaginated(q, input.NextToken, input.Limit, func(rows *sql.Rows) error {
		var e EventRecord
		var data []byte
		err := rows.Scan(&e.Id, &e.Type, &e.Time, &data)
		if err != nil {
			return fmt.Errorf("sql_db: ListEvents scan failed: %v", err)
		}
		e.Data = data
		events = append(events, e)
		return nil
	})
	if err != nil {
		return ListEventsOutput{}, err
	}
	return ListEventsOutput{Events: events, NextToken: nextToken}, nil
}

func (d *SqlDb) RemoveEventsOlderThan(t time.Time) (int64, error) {
	del := d.sq.Delete("event").Where(squirrel.Lt{"createdAt": common.TimeToMillis(t)})
	return d.removeRows(del)
}

func (d *SqlDb) PutSetting(name string, value []byte) error {
	now := common.NowMillis()
	exists, err := d.settingExists(name)
	if err != nil {
		return err
	}
	if exists {
		_, err = d.sq.Update("setting").
			SetMap(map[string]interface{}{
				"modifiedAt": now,
				"json":       value,
			}).Where(squirrel.Eq{"name": name}).
			RunWith(d.db).Exec()
		if err != nil {
			return fmt.Errorf("sql_db: PutSetting update failed for: %s err: %v", name, err)
		}
		return nil
	}
	_, err = d.sq.Insert("setting").
		Columns("name", "modifiedAt", "json").Values(name, now, value).
		RunWith(d.db).Exec()
	if err != nil {
		return fmt.Errorf("sql_db: PutSetting insert failed for: %s err: %v", name, err)
	}
	return nil
}

func (d *SqlDb) settingExists(name string) (exists bool, err error) {
	rows, err := d.sq.Select("name").
		From("setting").
		Where(squirrel.Eq{"name": name}).
		RunWith(d.db).Query()
	if err != nil {
		return false, fmt.Errorf("sql_db: PutSetting select failed for: %s - %v", name, err)
	}
	defer common.CheckClose(rows, &err)
	return rows.Next(), nil
}

func (d *SqlDb) GetSetting(name string) (value []byte, err error) {
	rows, err := d.sq.Select("json").
		From("setting").
		Where(squirrel.Eq{"name": name}).
		RunWith(d.db).Query()
	if err != nil {
		return nil, fmt.Errorf("sql_db: GetSetting query failed for: %s - %v", name, err)
	}
	defer common.CheckClose(rows, &err)
	if !rows.Next() {
		return nil, NotFound
	}
	err = rows.Scan(&value)
	if err != nil {
		return nil, fmt.Errorf("sql_db: GetSetting scan failed for: %s - %v", name, err)
	}
	return value, nil
}

func (d *SqlDb) selectPaginated(q squirrel.SelectBuilder, nextToken string, limit int64,
	onRow func(rows *sql.Rows) error) (token string, err error) {
	offset := 0
	if nextToken != "" {
		o, err := strconv.Atoi(nextToken)
		if err == nil {
			offset = o
		}
	}
	limit = pageSize(limit)

	rows, err := q.Offset(uint64(offset)).Limit(uint64(limit + 1)).RunWith(d.db).Query()
	if err != nil {
		return "", fmt.Errorf("sql_db: err in query: %v", err)
	}
	defer common.CheckClose(rows, &err)

	x := int64(0)
	for x < limit && rows.Next() {
		err = onRow(rows)
		if err != nil {
			return "", err
		}
		x++
	}

	if rows.Next() {
		token = strconv.Itoa(offset + int(x))
	}
	return token, nil
}

func (d *SqlDb) removeRows(del squirrel.DeleteBuilder) (rows int64, err error) {
	var result sql.Result
	result, err = del.RunWith(d.db).Exec()
	if err != nil {
		err = fmt.Errorf("sql_db: delete failed - err: %v", err)
		return
	}
	rows, err = result.RowsAffected()
	if err != nil {
		err = fmt.Errorf("sql_db: delete rowsaffected failed - err: %v", err)
		return
	}
	return
}

func (d *SqlDb) Migrate() error {
	blob := blobType(d.driver)
	migrations := []darwin.Migration{
		{
			Version:     1,
			Description: "Create event table",
			Script: `create table event (
                        id          varchar(60) primary key,
                        type        varchar(40) not null,
                        createdAt   bigint not null,
                        json        ` + blob + ` not null
                     )`,
		},
		{
			Version:     2,
			Description: "Create event createdAt index",
			Script:      `create index event_createdAt on event (createdAt)`,
		},
		{
			Version:     3,
			Description: "Create setting table",
			Script: `create table setting (
                        name        varchar(60) primary key,
                        modifiedAt  bigint not null,
                        json        ` + blob + ` not null
                     )`,
		},
	}
	darwinDriver := darwin.NewGenericDriver(d.db, migrationDialect(d.driver))
	m := darwin.New(darwinDriver, migrations, nil)
	err := m.Migrate()
	if err != nil {
		return fmt.Errorf("sql_db: Migrate failed: %v", err)
	}
	return nil
}

func isPostgres(driver string) bool {
	return strings.Contains(driver, "postgres")
}

func blobType(driver string) string {
	if isPostgres(driver) {
		return "bytea"
	}
	return "mediumblob"
}

func migrationDialect(driver string) darwin.Dialect {
	if strings.Contains(driver, "sqlite") {
		return darwin.SqliteDialect{}
	} else if isPostgres(driver) {
		return darwin.PostgresDialect{}
	}
	return darwin.MySQLDialect{}
}
