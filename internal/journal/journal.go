// Package journal records acquisition sessions in sqlite: when each session
// ran, which streams it declared, every readiness transition, and the final
// per-stream counters. Sample values are never stored.
package journal

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/biostream/internal/monitoring"
	"github.com/banshee-data/biostream/internal/stream"
	"github.com/banshee-data/biostream/internal/timeutil"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNoSession is returned when recording outside BeginSession/EndSession.
var ErrNoSession = errors.New("journal: no active session")

// Event kinds stored in session_events.
const (
	KindUserAdded   = "user_added"
	KindUserRemoved = "user_removed"
)

// Journal is a session journal backed by one sqlite file.
type Journal struct {
	db    *sql.DB
	path  string
	clock timeutil.Clock

	mu        sync.Mutex
	sessionID string
}

// Open opens (creating if needed) the journal at path and migrates it to
// the latest schema.
func Open(path string, clock timeutil.Clock) (*Journal, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection serialises writers and keeps :memory: databases whole.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	j := &Journal{db: db, path: path, clock: clock}
	if err := j.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

// MigrateUp runs all pending migrations. No change is not an error.
func (j *Journal) MigrateUp() error {
	m, err := j.newMigrate()
	if err != nil {
		return err
	}
	// m is not closed: that would close the shared connection.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the schema version and dirty state. Returns 0,
// false, nil before the first migration.
func (j *Journal) MigrateVersion() (version uint, dirty bool, err error) {
	m, err := j.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (j *Journal) newMigrate() (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(j.db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool { return false }

func (j *Journal) unixNow() float64 {
	return float64(j.clock.Now().UnixNano()) / 1e9
}

// BeginSession starts a session and returns its id. Any session left open
// is ended first without counters.
func (j *Journal) BeginSession(sourceID string, streams []string) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.sessionID != "" {
		if err := j.endLocked(nil); err != nil {
			return "", err
		}
	}
	id := uuid.NewString()
	_, err := j.db.Exec(`INSERT INTO sessions (session_id, source_id, streams, started_unix) VALUES (?, ?, ?, ?)`,
		id, sourceID, strings.Join(streams, ","), j.unixNow())
	if err != nil {
		return "", fmt.Errorf("failed to record session start: %w", err)
	}
	j.sessionID = id
	return id, nil
}

// SessionID returns the active session id, or "".
func (j *Journal) SessionID() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.sessionID
}

// RecordEvent stores one readiness transition in the active session.
func (j *Journal) RecordEvent(kind string, userID uint32) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.sessionID == "" {
		return ErrNoSession
	}
	_, err := j.db.Exec(`INSERT INTO session_events (session_id, kind, user_id, event_unix) VALUES (?, ?, ?, ?)`,
		j.sessionID, kind, userID, j.unixNow())
	if err != nil {
		return fmt.Errorf("failed to record %s: %w", kind, err)
	}
	return nil
}

// UserAdded records a user_added event. Errors are logged.
func (j *Journal) UserAdded(userID uint32) {
	if err := j.RecordEvent(KindUserAdded, userID); err != nil {
		monitoring.Logf("journal: %v", err)
	}
}

// UserRemoved records a user_removed event. Errors are logged.
func (j *Journal) UserRemoved(userID uint32) {
	if err := j.RecordEvent(KindUserRemoved, userID); err != nil {
		monitoring.Logf("journal: %v", err)
	}
}

// EndSession stores the final counters and closes the active session.
func (j *Journal) EndSession(counters []stream.GroupStats) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.sessionID == "" {
		return ErrNoSession
	}
	return j.endLocked(counters)
}

func (j *Journal) endLocked(counters []stream.GroupStats) (err error) {
	tx, err := j.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
				monitoring.Logf("warning: failed to rollback transaction: %v", rerr)
			}
		}
	}()

	for _, c := range counters {
		if _, err = tx.Exec(`INSERT INTO stream_counters (session_id, stream, group_label, published, failed) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(session_id, stream) DO UPDATE SET published = excluded.published, failed = excluded.failed`,
			j.sessionID, c.Name, c.Group, int64(c.Published), int64(c.Failed)); err != nil {
			return fmt.Errorf("failed to record counters for %s: %w", c.Name, err)
		}
	}
	if _, err = tx.Exec(`UPDATE sessions SET ended_unix = ? WHERE session_id = ?`, j.unixNow(), j.sessionID); err != nil {
		return fmt.Errorf("failed to record session end: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	j.sessionID = ""
	return nil
}

// Close closes the database. An open session is ended without counters.
func (j *Journal) Close() error {
	j.mu.Lock()
	var err error
	if j.sessionID != "" {
		err = j.endLocked(nil)
	}
	j.mu.Unlock()
	return errors.Join(err, j.db.Close())
}

// Session is one row of the sessions table.
type Session struct {
	ID       string
	SourceID string
	Streams  []string
	Started  time.Time
	// Ended is zero while the session is open.
	Ended time.Time
}

// Event is one readiness transition.
type Event struct {
	Kind   string
	UserID uint32
	At     time.Time
}

// Counter is one stream's final counts for a session.
type Counter struct {
	Stream    string
	Group     string
	Published uint64
	Failed    uint64
}

func fromUnix(sec float64) time.Time {
	return time.Unix(0, int64(sec*1e9)).UTC()
}

// Sessions lists sessions, newest first.
func (j *Journal) Sessions() ([]Session, error) {
	rows, err := j.db.Query(`SELECT session_id, source_id, streams, started_unix, ended_unix FROM sessions ORDER BY started_unix DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var s Session
		var streams string
		var started float64
		var ended sql.NullFloat64
		if err := rows.Scan(&s.ID, &s.SourceID, &streams, &started, &ended); err != nil {
			return nil, err
		}
		if streams != "" {
			s.Streams = strings.Split(streams, ",")
		}
		s.Started = fromUnix(started)
		if ended.Valid {
			s.Ended = fromUnix(ended.Float64)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Events lists a session's readiness transitions in order.
func (j *Journal) Events(sessionID string) ([]Event, error) {
	rows, err := j.db.Query(`SELECT kind, user_id, event_unix FROM session_events WHERE session_id = ? ORDER BY event_id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var at float64
		if err := rows.Scan(&e.Kind, &e.UserID, &at); err != nil {
			return nil, err
		}
		e.At = fromUnix(at)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Counters lists a session's stream counters by stream name.
func (j *Journal) Counters(sessionID string) ([]Counter, error) {
	rows, err := j.db.Query(`SELECT stream, group_label, published, failed FROM stream_counters WHERE session_id = ? ORDER BY stream`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Counter
	for rows.Next() {
		var c Counter
		var published, failed int64
		if err := rows.Scan(&c.Stream, &c.Group, &published, &failed); err != nil {
			return nil, err
		}
		c.Published, c.Failed = uint64(published), uint64(failed)
		out = append(out, c)
	}
	return out, rows.Err()
}
