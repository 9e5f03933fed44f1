// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package eventlog persists condition transitions and sync-loss events to
// SQLite, grouped into monitoring sessions.
package eventlog

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Thermoquad/ecustat/pkg/condition"
	"github.com/Thermoquad/ecustat/pkg/pipeline"
)

const schema = `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id        TEXT PRIMARY KEY,
		source            TEXT NOT NULL,
		started_at_ms     BIGINT NOT NULL,
		ended_at_ms       BIGINT
	);
	CREATE TABLE IF NOT EXISTS transitions (
		session_id        TEXT NOT NULL,
		at_ms             BIGINT NOT NULL,
		from_state        TEXT NOT NULL,
		to_state          TEXT NOT NULL,
		rpm               INTEGER,
		coolant_c         INTEGER,
		afr_x100          INTEGER,
		battery_mv        INTEGER,
		sync_loss_count   INTEGER,
		FOREIGN KEY(session_id) REFERENCES sessions(session_id)
	);
	CREATE TABLE IF NOT EXISTS sync_losses (
		session_id        TEXT NOT NULL,
		at_ms             BIGINT NOT NULL,
		count             INTEGER NOT NULL,
		recent_bytes      BLOB,
		FOREIGN KEY(session_id) REFERENCES sessions(session_id)
	);
	CREATE INDEX IF NOT EXISTS idx_transitions_session ON transitions(session_id, at_ms);
`

// Log is an open event log with one active session.
type Log struct {
	db      *sql.DB
	session string
}

// Transition is a stored condition change.
type Transition struct {
	At            time.Time
	From          condition.State
	To            condition.State
	RPM           uint16
	CoolantC      int16
	AFRx100       uint16
	BatteryMV     uint16
	SyncLossCount uint32
}

// SyncLoss is a stored sync-loss event.
type SyncLoss struct {
	At          time.Time
	Count       uint32
	RecentBytes []byte
}

// Open opens (or creates) the database at path and starts a new session.
func Open(path, source string, now time.Time) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	// SQLite allows one writer; keep a single connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create event log schema: %w", err)
	}

	l := &Log{db: db, session: uuid.New().String()}
	_, err = db.Exec(`INSERT INTO sessions (session_id, source, started_at_ms) VALUES (?, ?, ?)`,
		l.session, source, now.UnixMilli())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	return l, nil
}

// Session returns the active session id.
func (l *Log) Session() string {
	return l.session
}

// RecordTransition stores a classifier transition.
func (l *Log) RecordTransition(t pipeline.Transition) error {
	_, err := l.db.Exec(`
		INSERT INTO transitions (
			session_id, at_ms, from_state, to_state,
			rpm, coolant_c, afr_x100, battery_mv, sync_loss_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.session, t.At.UnixMilli(), t.From.String(), t.To.String(),
		t.Snapshot.RPM, t.Snapshot.CoolantC, t.Snapshot.AFRx100, t.Snapshot.BatteryMV,
		t.Snapshot.SyncLossCount,
	)
	if err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}
	return nil
}

// RecordSyncLoss stores a sync-loss event with the bytes that preceded it.
func (l *Log) RecordSyncLoss(at time.Time, count uint32, recent []byte) error {
	_, err := l.db.Exec(`INSERT INTO sync_losses (session_id, at_ms, count, recent_bytes) VALUES (?, ?, ?, ?)`,
		l.session, at.UnixMilli(), count, recent)
	if err != nil {
		return fmt.Errorf("insert sync loss: %w", err)
	}
	return nil
}

// Transitions returns the transitions of a session in time order.
func (l *Log) Transitions(session string) ([]Transition, error) {
	rows, err := l.db.Query(`
		SELECT at_ms, from_state, to_state, rpm, coolant_c, afr_x100, battery_mv, sync_loss_count
		FROM transitions WHERE session_id = ? ORDER BY at_ms, rowid`, session)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var (
			atMs     int64
			from, to string
			t        Transition
		)
		if err := rows.Scan(&atMs, &from, &to, &t.RPM, &t.CoolantC, &t.AFRx100, &t.BatteryMV, &t.SyncLossCount); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		t.At = time.UnixMilli(atMs)
		t.From = parseState(from)
		t.To = parseState(to)
		out = append(out, t)
	}
	return out, rows.Err()
}

// SyncLosses returns the sync-loss events of a session in time order.
func (l *Log) SyncLosses(session string) ([]SyncLoss, error) {
	rows, err := l.db.Query(`
		SELECT at_ms, count, recent_bytes FROM sync_losses
		WHERE session_id = ? ORDER BY at_ms, rowid`, session)
	if err != nil {
		return nil, fmt.Errorf("query sync losses: %w", err)
	}
	defer rows.Close()

	var out []SyncLoss
	for rows.Next() {
		var (
			atMs int64
			s    SyncLoss
		)
		if err := rows.Scan(&atMs, &s.Count, &s.RecentBytes); err != nil {
			return nil, fmt.Errorf("scan sync loss: %w", err)
		}
		s.At = time.UnixMilli(atMs)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Sessions returns all session ids, oldest first.
func (l *Log) Sessions() ([]string, error) {
	rows, err := l.db.Query(`SELECT session_id FROM sessions ORDER BY started_at_ms, rowid`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Close ends the session and closes the database.
func (l *Log) Close(now time.Time) error {
	_, err := l.db.Exec(`UPDATE sessions SET ended_at_ms = ? WHERE session_id = ?`, now.UnixMilli(), l.session)
	if cerr := l.db.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to close event log: %w", err)
	}
	return nil
}

func parseState(s string) condition.State {
	for _, st := range condition.States {
		if st.String() == s {
			return st
		}
	}
	return condition.NoData
}
