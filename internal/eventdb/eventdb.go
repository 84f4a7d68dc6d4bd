// Package eventdb archives control messages in Postgres.
//
// Connection details come from the DB_* environment variables.  A table is created if it
// does not exist:
//
//	CREATE TABLE rsudp_event (
//		id uuid PRIMARY KEY,
//		station text NOT NULL,
//		kind text NOT NULL,
//		event_time timestamptz NOT NULL,
//		payload text NOT NULL
//	);
package eventdb

import (
	"database/sql"
	"fmt"
	"log"
	"regexp"
	"time"

	"github.com/GeoNet/kit/cfg"
	"github.com/GeoNet/kit/slogger"
	"github.com/GeoNet/rsudp/internal/codec"
	"github.com/GeoNet/rsudp/internal/pipeline"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// http://www.postgresql.org/docs/9.4/static/errcodes-appendix.html
const errorUniqueViolation pq.ErrorCode = "23505"

const DefaultTable = "rsudp_event"

// RetryDelay is the wait before the single reconnection attempt.
var RetryDelay = 5 * time.Second

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*(\.[a-z_][a-z0-9_]*)?$`)

type Config struct {
	Table string
}

// Event is one archived row.
type Event struct {
	ID      uuid.UUID
	Station string
	Kind    string
	Time    time.Time
	Payload string
}

// FromMessage returns the Event for an ALARM, RESET, or PROCESS message.
func FromMessage(station string, m codec.Message) (Event, bool) {
	e := Event{
		ID:      uuid.New(),
		Station: station,
		Kind:    m.Kind().String(),
		Payload: string(codec.Encode(m)),
	}

	switch v := m.(type) {
	case codec.Alarm:
		e.Time = v.Time
	case codec.Reset:
		e.Time = v.Time
	case codec.Process:
		e.Time = v.Motion.EventTime.Time
	default:
		return Event{}, false
	}

	e.Time = e.Time.UTC()

	return e, true
}

// Archive is a pipeline.Handler.  Without a database it only logs.
type Archive struct {
	db      *sql.DB
	station string
	table   string
	save    *sql.Stmt
	saved   int
	log     *slogger.SmartLogger
}

// New connects with the DB_* environment variables.  A failed connection is retried once
// after RetryDelay and the Archive then runs without a database.  An invalid table name
// is an error.
func New(station string, c Config) (*Archive, error) {
	table, err := checkTable(c.Table)
	if err != nil {
		return nil, err
	}

	a := &Archive{
		station: station,
		table:   table,
		log:     slogger.NewSmartLogger(time.Minute, "eventdb:"),
	}

	p, err := cfg.PostgresEnv()
	if err != nil {
		log.Printf("eventdb: error reading DB config from the environment vars, continuing without archive: %s", err)
		return a, nil
	}

	db, err := sql.Open("postgres", p.Connection()+" statement_timeout=60000")
	if err != nil {
		log.Printf("eventdb: error with DB config, continuing without archive: %s", err)
		return a, nil
	}

	db.SetMaxIdleConns(p.MaxIdle)
	db.SetMaxOpenConns(p.MaxOpen)

	if err := a.open(db); err != nil {
		log.Printf("eventdb: %s, retrying in %s", err, RetryDelay)
		time.Sleep(RetryDelay)

		if err := a.open(db); err != nil {
			log.Printf("eventdb: %s, continuing without archive", err)
			db.Close()
		}
	}

	return a, nil
}

// NewWithDB uses an existing connection pool.  Errors are returned, not retried.
func NewWithDB(db *sql.DB, station string, c Config) (*Archive, error) {
	table, err := checkTable(c.Table)
	if err != nil {
		return nil, err
	}

	a := &Archive{
		station: station,
		table:   table,
		log:     slogger.NewSmartLogger(time.Minute, "eventdb:"),
	}

	if err := a.open(db); err != nil {
		return nil, err
	}

	return a, nil
}

func checkTable(t string) (string, error) {
	if t == "" {
		return DefaultTable, nil
	}
	if !tableName.MatchString(t) {
		return "", errors.Errorf("eventdb: invalid table name %q", t)
	}
	return t, nil
}

func (a *Archive) open(db *sql.DB) error {
	if err := db.Ping(); err != nil {
		return errors.Wrap(err, "problem pinging DB")
	}

	_, err := db.Exec(fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id uuid PRIMARY KEY,
		station text NOT NULL,
		kind text NOT NULL,
		event_time timestamptz NOT NULL,
		payload text NOT NULL)`, a.table))
	if err != nil {
		return errors.Wrapf(err, "creating table %s", a.table)
	}

	a.save, err = db.Prepare(fmt.Sprintf(`INSERT INTO %s (id, station, kind, event_time, payload)
		VALUES ($1, $2, $3, $4, $5)`, a.table))
	if err != nil {
		return errors.Wrap(err, "preparing insert")
	}

	a.db = db

	log.Printf("eventdb: archiving events to %s", a.table)

	return nil
}

// Enabled reports whether events are being stored.
func (a *Archive) Enabled() bool {
	return a.db != nil
}

func (a *Archive) Handle(m codec.Message, _ *pipeline.Flags) error {
	e, ok := FromMessage(a.station, m)
	if !ok {
		return nil
	}

	if a.db == nil {
		a.log.Log(fmt.Sprintf("no archive, dropped %s", e.Kind))
		return nil
	}

	if err := a.Save(e); err != nil {
		a.log.Log(err.Error())
		return nil
	}

	a.saved++

	return nil
}

// Save inserts e.  An existing row with the same id is not an error.
func (a *Archive) Save(e Event) error {
	_, err := a.save.Exec(e.ID, e.Station, e.Kind, e.Time, e.Payload)
	if err != nil {
		if u, ok := err.(*pq.Error); ok && u.Code == errorUniqueViolation {
			// it is not an error if the event already exists.
			return nil
		}
		return errors.Wrapf(err, "saving %s %s", e.Kind, e.ID)
	}

	return nil
}

// Saved returns the number of rows written by Handle.
func (a *Archive) Saved() int {
	return a.saved
}

func (a *Archive) Close() error {
	if a.db == nil {
		return nil
	}

	log.Printf("eventdb: saved %d events", a.saved)

	if a.save != nil {
		a.save.Close()
	}

	return a.db.Close()
}
