// Package journal keeps a record of every frequency transition in a SQLite
// database.
package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"

	"github.com/Jon-Bright/cpufreqctl/cpufreq"
	"github.com/tebeka/atexit"
)

// Entry is one journalled transition.
type Entry struct {
	ID        string        `json:"id"`
	Index     int           `json:"index"`
	FromKHz   uint32        `json:"from_khz"`
	ToKHz     uint32        `json:"to_khz"`
	FromVCOHz uint64        `json:"from_vco_hz"`
	ToVCOHz   uint64        `json:"to_vco_hz"`
	Path      string        `json:"path"`
	States    []string      `json:"states"`
	Start     time.Time     `json:"start"`
	Duration  time.Duration `json:"duration_ns"`
	Err       string        `json:"error,omitempty"`
}

// Journal is a cpufreq.Tracer that buffers finished transitions and writes
// them to SQLite in batches.
type Journal struct {
	mu        sync.Mutex
	db        *sql.DB
	insert    *sql.Stmt
	pending   []Entry
	batchSize int
	closed    bool
}

// DefaultBatchSize suits a long-running server. The CLI flushes after every
// command anyway.
const DefaultBatchSize = 16

// Open opens or creates the journal at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("couldn't open journal %s: %v", path, err)
	}
	j := &Journal{db: db, batchSize: DefaultBatchSize}
	err = j.createTable()
	if err != nil {
		db.Close()
		return nil, err
	}
	j.insert, err = db.Prepare(`INSERT INTO transition
		(id, idx, from_khz, to_khz, from_vco_hz, to_vco_hz, path, states, start_ns, duration_ns, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("couldn't prepare insert: %v", err)
	}

	track(j)
	return j, nil
}

// Journals still open at exit are flushed by one atexit handler, registered
// on the first Open.
var (
	openMu    sync.Mutex
	open      = map[*Journal]struct{}{}
	exitOnce  sync.Once
	exitHooks int
)

func track(j *Journal) {
	exitOnce.Do(func() {
		atexit.Register(flushOpen)
		exitHooks++
	})
	openMu.Lock()
	defer openMu.Unlock()
	open[j] = struct{}{}
}

func untrack(j *Journal) {
	openMu.Lock()
	defer openMu.Unlock()
	delete(open, j)
}

func openJournals() []*Journal {
	openMu.Lock()
	defer openMu.Unlock()
	js := make([]*Journal, 0, len(open))
	for j := range open {
		js = append(js, j)
	}
	return js
}

func flushOpen() {
	for _, j := range openJournals() {
		err := j.Flush()
		if err != nil {
			log.Printf("Journal flush at exit failed: %v", err)
		}
	}
}

func (j *Journal) createTable() error {
	stmts := []string{`
		CREATE TABLE IF NOT EXISTS transition
		(
			id          VARCHAR(20) NOT NULL PRIMARY KEY,
			idx         INTEGER     NOT NULL,
			from_khz    INTEGER     NOT NULL,
			to_khz      INTEGER     NOT NULL,
			from_vco_hz INTEGER     NOT NULL,
			to_vco_hz   INTEGER     NOT NULL,
			path        VARCHAR(10) NOT NULL,
			states      TEXT        NOT NULL,
			start_ns    INTEGER     NOT NULL,
			duration_ns INTEGER     NOT NULL,
			error       TEXT        NOT NULL DEFAULT ''
		);`, `
		CREATE INDEX IF NOT EXISTS transition_start_index
			ON transition (start_ns);`,
	}
	for _, s := range stmts {
		_, err := j.db.Exec(s)
		if err != nil {
			return fmt.Errorf("couldn't create journal table: %v", err)
		}
	}
	return nil
}

// SetBatchSize sets how many transitions are buffered before a write. One
// writes every transition immediately.
func (j *Journal) SetBatchSize(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if n < 1 {
		n = 1
	}
	j.batchSize = n
}

func (j *Journal) StartTransition(t *cpufreq.Transition) {}

func (j *Journal) EnterState(t *cpufreq.Transition, s cpufreq.State) {}

// NewEntry converts a finished transition.
func NewEntry(t *cpufreq.Transition) Entry {
	e := Entry{
		ID:        t.ID,
		Index:     t.Index,
		FromKHz:   t.FromKHz,
		ToKHz:     t.ToKHz,
		FromVCOHz: t.FromVCOHz,
		ToVCOHz:   t.ToVCOHz,
		Path:      t.Path.String(),
		Start:     t.Start,
		Duration:  t.End.Sub(t.Start),
	}
	for _, s := range t.States {
		e.States = append(e.States, s.String())
	}
	if t.Err != nil {
		e.Err = t.Err.Error()
	}
	return e
}

func (j *Journal) EndTransition(t *cpufreq.Transition) {
	e := NewEntry(t)
	j.mu.Lock()
	defer j.mu.Unlock()
	j.pending = append(j.pending, e)
	if len(j.pending) >= j.batchSize {
		err := j.flush()
		if err != nil {
			log.Printf("Journal write failed: %v", err)
		}
	}
}

// Flush writes all buffered transitions.
func (j *Journal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.flush()
}

func (j *Journal) flush() error {
	if j.closed || len(j.pending) == 0 {
		return nil
	}
	tx, err := j.db.Begin()
	if err != nil {
		return fmt.Errorf("couldn't begin transaction: %v", err)
	}
	stmt := tx.Stmt(j.insert)
	for _, e := range j.pending {
		states, err := json.Marshal(e.States)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("couldn't encode states of %s: %v", e.ID, err)
		}
		_, err = stmt.Exec(e.ID, e.Index, e.FromKHz, e.ToKHz, e.FromVCOHz, e.ToVCOHz,
			e.Path, string(states), e.Start.UnixNano(), int64(e.Duration), e.Err)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("couldn't insert transition %s: %v", e.ID, err)
		}
	}
	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("couldn't commit transitions: %v", err)
	}
	j.pending = nil
	return nil
}

// Recent returns up to limit transitions, newest first. Buffered transitions
// are written first. A limit of 0 or less returns everything.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	err := j.flush()
	if err != nil {
		return nil, err
	}
	if j.closed {
		return nil, fmt.Errorf("journal closed")
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := j.db.Query(`SELECT id, idx, from_khz, to_khz, from_vco_hz, to_vco_hz,
		path, states, start_ns, duration_ns, error
		FROM transition ORDER BY start_ns DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("couldn't query journal: %v", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var states string
		var start, dur int64
		err = rows.Scan(&e.ID, &e.Index, &e.FromKHz, &e.ToKHz, &e.FromVCOHz, &e.ToVCOHz,
			&e.Path, &states, &start, &dur, &e.Err)
		if err != nil {
			return nil, fmt.Errorf("couldn't read journal row: %v", err)
		}
		if states != "null" {
			err = json.Unmarshal([]byte(states), &e.States)
			if err != nil {
				return nil, fmt.Errorf("couldn't decode states of %s: %v", e.ID, err)
			}
		}
		e.Start = time.Unix(0, start)
		e.Duration = time.Duration(dur)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close flushes and closes the database.
func (j *Journal) Close() error {
	untrack(j)
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	err := j.flush()
	j.closed = true
	j.insert.Close()
	cerr := j.db.Close()
	if err != nil {
		return err
	}
	return cerr
}

var _ cpufreq.Tracer = (*Journal)(nil)
