package traffic

import (
	"database/sql"
	"fmt"
	"time"
)

// #region modes

// Mode is the global operating posture of the gatekeeper.
type Mode string

const (
	ModeNormal Mode = "NORMAL" // full operations
	ModeLean   Mode = "LEAN"   // sustained CPU pressure, shed optional work
	ModeSurge  Mode = "SURGE"  // deep approval queue, prioritize throughput
	ModeSafe   Mode = "SAFE"   // security escalation, strictest verification
)

func validMode(m Mode) bool {
	switch m {
	case ModeNormal, ModeLean, ModeSurge, ModeSafe:
		return true
	}
	return false
}

// #endregion modes

// #region schema

const modeSchema = `
CREATE TABLE IF NOT EXISTS system_state (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	mode       TEXT NOT NULL,
	changed_at TEXT NOT NULL,
	reason     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS mode_transitions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	from_mode  TEXT NOT NULL,
	to_mode    TEXT NOT NULL,
	reason     TEXT NOT NULL,
	created_at TEXT NOT NULL
);
`

// #endregion schema

// #region store

// ModeStore persists the single current-mode row and an append-only history
// of transitions. The monitor is the sole writer; request paths only read.
type ModeStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewModeStore initializes the mode tables and seeds NORMAL on first run.
func NewModeStore(db *sql.DB) (*ModeStore, error) {
	if _, err := db.Exec(modeSchema); err != nil {
		return nil, fmt.Errorf("migrate mode schema: %w", err)
	}
	s := &ModeStore{db: db, now: time.Now}
	if _, err := db.Exec(
		`INSERT OR IGNORE INTO system_state (id, mode, changed_at, reason)
		 VALUES (1, ?, ?, 'initial state')`,
		string(ModeNormal), s.now().Format(time.RFC3339Nano),
	); err != nil {
		return nil, fmt.Errorf("seed system state: %w", err)
	}
	return s, nil
}

// SetClock overrides the time source for tests.
func (s *ModeStore) SetClock(now func() time.Time) {
	s.now = now
}

// Current reads the active mode.
func (s *ModeStore) Current() (Mode, error) {
	var m string
	err := s.db.QueryRow(`SELECT mode FROM system_state WHERE id = 1`).Scan(&m)
	if err != nil {
		return "", fmt.Errorf("read current mode: %w", err)
	}
	return Mode(m), nil
}

// Transition moves the system to a new mode, recording one history row.
// Re-requesting the active mode is a no-op and returns false.
func (s *ModeStore) Transition(to Mode, reason string) (bool, error) {
	if !validMode(to) {
		return false, fmt.Errorf("invalid mode %q", to)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin mode tx: %w", err)
	}
	defer tx.Rollback()

	var from string
	if err := tx.QueryRow(`SELECT mode FROM system_state WHERE id = 1`).Scan(&from); err != nil {
		return false, fmt.Errorf("read current mode: %w", err)
	}
	if Mode(from) == to {
		return false, nil
	}

	now := s.now().Format(time.RFC3339Nano)
	if _, err := tx.Exec(
		`UPDATE system_state SET mode = ?, changed_at = ?, reason = ? WHERE id = 1`,
		string(to), now, reason,
	); err != nil {
		return false, fmt.Errorf("write mode: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO mode_transitions (from_mode, to_mode, reason, created_at)
		 VALUES (?, ?, ?, ?)`,
		from, string(to), reason, now,
	); err != nil {
		return false, fmt.Errorf("record transition: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit mode tx: %w", err)
	}
	return true, nil
}

// #endregion store

// #region history

// TransitionRecord is one persisted mode change.
type TransitionRecord struct {
	From      Mode
	To        Mode
	Reason    string
	CreatedAt time.Time
}

// Transitions returns the most recent mode changes, newest first.
func (s *ModeStore) Transitions(limit int) ([]TransitionRecord, error) {
	rows, err := s.db.Query(
		`SELECT from_mode, to_mode, reason, created_at
		 FROM mode_transitions ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("mode history: %w", err)
	}
	defer rows.Close()

	var recs []TransitionRecord
	for rows.Next() {
		var rec TransitionRecord
		var from, to, createdStr string
		if err := rows.Scan(&from, &to, &rec.Reason, &createdStr); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		rec.From, rec.To = Mode(from), Mode(to)
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// #endregion history
