// Package journal appends transfer outcomes and building stops to a
// SQLite file. It is write-only: nothing is ever restored from it.
// Every Open starts a new run; rows of earlier runs are kept.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/gravitas-games/prodsim/internal/observe"
	"github.com/gravitas-games/prodsim/internal/production"
	"github.com/gravitas-games/prodsim/internal/sim"
	"github.com/gravitas-games/prodsim/internal/transfer"
)

// ErrEmptyPath is returned by Open when no database path is given.
var ErrEmptyPath = errors.New("journal: empty db path")

// TransferRecord is one finished transfer. Resource, Source and
// Destination are empty for transfers that failed before starting.
type TransferRecord struct {
	ID          transfer.ID
	Status      string
	Resource    string
	Source      string
	Destination string
	Origin      string
	Tick        uint64
}

// StopRecord is one entry of a building into Stopped.
type StopRecord struct {
	Building production.BuildingID
	Reason   string
	Tick     uint64
}

// Stats counts records by outcome.
type Stats struct {
	Queued  uint64 `json:"queued"`
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
	Failed  uint64 `json:"failed"`
}

type entry struct {
	transfer *TransferRecord
	stop     *StopRecord
}

// Journal writes records on a background goroutine. Record calls never
// block: when the queue is full the record is dropped and counted.
type Journal struct {
	db     *sql.DB
	logger *log.Logger
	run    string

	mu     sync.RWMutex
	closed bool
	ch     chan entry
	wg     sync.WaitGroup
	once   sync.Once

	subs observe.Group

	queued  atomic.Uint64
	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// Open creates or opens the journal at path. A nil logger discards
// write errors.
func Open(path string, queueSize int, logger *log.Logger) (*Journal, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	if queueSize < 1 {
		queueSize = 1
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("journal: create dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: pragmas: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: schema: %w", err)
	}

	run := uuid.NewString()
	if _, err := db.Exec(`INSERT INTO runs(id,started_at) VALUES(?,?)`, run, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: start run: %w", err)
	}

	j := &Journal{
		db:     db,
		logger: logger,
		run:    run,
		ch:     make(chan entry, queueSize),
	}
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.loop()
	}()
	return j, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS transfers (
			run TEXT NOT NULL,
			id INTEGER NOT NULL,
			status TEXT NOT NULL,
			resource TEXT,
			source TEXT,
			destination TEXT,
			origin TEXT NOT NULL,
			tick INTEGER NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (run, id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transfers_status ON transfers(status, tick);`,
		`CREATE TABLE IF NOT EXISTS stops (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			run TEXT NOT NULL,
			building INTEGER NOT NULL,
			reason TEXT NOT NULL,
			tick INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_stops_building_tick ON stops(building, tick);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// RecordTransfer queues r.
func (j *Journal) RecordTransfer(r TransferRecord) {
	j.enqueue(entry{transfer: &r})
}

// RecordStop queues r.
func (j *Journal) RecordStop(r StopRecord) {
	j.enqueue(entry{stop: &r})
}

func (j *Journal) enqueue(e entry) {
	if j == nil {
		return
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return
	}
	select {
	case j.ch <- e:
		j.queued.Add(1)
	default:
		j.dropped.Add(1)
	}
}

// Stats returns the record counters.
func (j *Journal) Stats() Stats {
	return Stats{
		Queued:  j.queued.Load(),
		Written: j.written.Load(),
		Dropped: j.dropped.Load(),
		Failed:  j.failed.Load(),
	}
}

// Close detaches from any world, flushes queued records and closes the
// database.
func (j *Journal) Close() error {
	var err error
	j.once.Do(func() {
		j.subs.Dispose()

		j.mu.Lock()
		j.closed = true
		close(j.ch)
		j.mu.Unlock()

		j.wg.Wait()
		err = j.db.Close()
	})
	return err
}

// Run returns the id this Open recorded in the runs table.
func (j *Journal) Run() string { return j.run }

func (j *Journal) loop() {
	ctx := context.Background()

	insertTransfer, err := j.db.PrepareContext(ctx,
		`INSERT INTO transfers(run,id,status,resource,source,destination,origin,tick,recorded_at) VALUES(?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		j.logger.Printf("prepare transfers: %v", err)
	}
	insertStop, err := j.db.PrepareContext(ctx,
		`INSERT INTO stops(run,building,reason,tick,recorded_at) VALUES(?,?,?,?,?)`)
	if err != nil {
		j.logger.Printf("prepare stops: %v", err)
	}
	defer func() {
		if insertTransfer != nil {
			_ = insertTransfer.Close()
		}
		if insertStop != nil {
			_ = insertStop.Close()
		}
	}()

	for e := range j.ch {
		now := time.Now().UTC().Format(time.RFC3339Nano)
		var err error
		switch {
		case e.transfer != nil && insertTransfer != nil:
			r := e.transfer
			_, err = insertTransfer.ExecContext(ctx, j.run, int64(r.ID), r.Status,
				nullable(r.Resource), nullable(r.Source), nullable(r.Destination), r.Origin, int64(r.Tick), now)
		case e.stop != nil && insertStop != nil:
			r := e.stop
			_, err = insertStop.ExecContext(ctx, j.run, int64(r.Building), r.Reason, int64(r.Tick), now)
		default:
			err = errors.New("no statement")
		}
		if err != nil {
			j.failed.Add(1)
			j.logger.Printf("write: %v", err)
			continue
		}
		j.written.Add(1)
	}
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Attach records every finished transfer and every building stop of w
// until Close. Handlers run on the goroutine that ticks w.
func (j *Journal) Attach(w *sim.World) {
	cat := w.Catalog()
	started := make(map[transfer.ID]TransferRecord)

	s := w.Scheduler()
	j.subs.Add(
		s.Started().Subscribe(func(e transfer.Started) {
			started[e.ID] = TransferRecord{
				Resource:    cat.KeyOf(e.Resource),
				Source:      e.Source.Name(),
				Destination: e.Destination.Name(),
				Origin:      originOf(e.Tag),
			}
		}),
		s.Finished().Subscribe(func(e transfer.Finished) {
			r, ok := started[e.ID]
			delete(started, e.ID)
			if !ok {
				r.Origin = "unknown"
			}
			r.ID = e.ID
			r.Status = e.Status.String()
			r.Tick = w.Ticks()
			j.RecordTransfer(r)
		}),
		w.Transitions().Subscribe(func(tr production.Transition) {
			if tr.To != production.Stopped {
				return
			}
			j.RecordStop(StopRecord{
				Building: tr.Building.ID(),
				Reason:   tr.Reason.String(),
				Tick:     w.Ticks(),
			})
		}),
	)
}

func originOf(tag any) string {
	switch t := tag.(type) {
	case nil:
		return "none"
	case production.BuildingID:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
