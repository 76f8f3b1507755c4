package trust

import (
	"database/sql"
	"fmt"
	"time"
)

// #region schema

const schema = `
CREATE TABLE IF NOT EXISTS agent_trust (
	agent_id           TEXT PRIMARY KEY,
	trust_score        REAL NOT NULL,
	verification_count INTEGER NOT NULL DEFAULT 0,
	daily_penalty_sum  REAL NOT NULL DEFAULT 0,
	penalty_reset_date TEXT NOT NULL,
	created_at         TEXT NOT NULL,
	last_trust_update  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS trust_updates (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_id     TEXT NOT NULL,
	old_score    REAL NOT NULL,
	new_score    REAL NOT NULL,
	delta        REAL NOT NULL,
	update_type  TEXT NOT NULL,
	context_note TEXT,
	ledger_ref   TEXT,
	created_at   TEXT NOT NULL,
	FOREIGN KEY (agent_id) REFERENCES agent_trust(agent_id)
);

CREATE INDEX IF NOT EXISTS idx_trust_updates_agent
ON trust_updates(agent_id, created_at);
`

// #endregion schema

// #region records

// Record is the persisted trust state of one agent. Records are created on
// first verification and never deleted.
type Record struct {
	AgentID           string
	TrustScore        float64
	VerificationCount int
	DailyPenaltySum   float64
	PenaltyResetDate  string // calendar date, YYYY-MM-DD
	CreatedAt         time.Time
	LastTrustUpdate   time.Time
}

// UpdateType tags one row of trust history.
type UpdateType string

const (
	UpdateEWMA          UpdateType = "EWMA_UPDATE"
	UpdateMicroPenalty  UpdateType = "MICRO_PENALTY"
	UpdateTemporalDecay UpdateType = "TEMPORAL_DECAY"
)

// Event is one append-only history row per trust mutation.
type Event struct {
	AgentID     string
	OldScore    float64
	NewScore    float64
	Delta       float64
	UpdateType  UpdateType
	ContextNote string
	LedgerRef   string
	CreatedAt   time.Time
}

// #endregion records

// #region store

// Store persists agent trust records and their history in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore initializes the trust tables on an open database handle.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate trust schema: %w", err)
	}
	return &Store{db: db}, nil
}

// DB returns the underlying handle for sharing with other stores.
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion store

// #region queries

// Get reads one agent record. found is false when the agent is unknown.
func (s *Store) Get(agentID string) (Record, bool, error) {
	return getRecord(s.db, agentID)
}

type querier interface {
	QueryRow(query string, args ...any) *sql.Row
}

func getRecord(q querier, agentID string) (Record, bool, error) {
	var rec Record
	var createdStr, updatedStr string
	err := q.QueryRow(
		`SELECT agent_id, trust_score, verification_count, daily_penalty_sum,
		        penalty_reset_date, created_at, last_trust_update
		 FROM agent_trust WHERE agent_id = ?`, agentID,
	).Scan(&rec.AgentID, &rec.TrustScore, &rec.VerificationCount,
		&rec.DailyPenaltySum, &rec.PenaltyResetDate, &createdStr, &updatedStr)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("get agent %s: %w", agentID, err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	rec.LastTrustUpdate, _ = time.Parse(time.RFC3339Nano, updatedStr)
	return rec, true, nil
}

// History returns the most recent trust events for an agent, newest first.
func (s *Store) History(agentID string, limit int) ([]Event, error) {
	rows, err := s.db.Query(
		`SELECT agent_id, old_score, new_score, delta, update_type,
		        COALESCE(context_note, ''), COALESCE(ledger_ref, ''), created_at
		 FROM trust_updates WHERE agent_id = ?
		 ORDER BY id DESC LIMIT ?`, agentID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("trust history: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var typ, createdStr string
		if err := rows.Scan(&ev.AgentID, &ev.OldScore, &ev.NewScore, &ev.Delta,
			&typ, &ev.ContextNote, &ev.LedgerRef, &createdStr); err != nil {
			return nil, fmt.Errorf("scan trust event: %w", err)
		}
		ev.UpdateType = UpdateType(typ)
		ev.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// #endregion queries

// #region tx-helpers

func insertEvent(tx *sql.Tx, ev Event) error {
	_, err := tx.Exec(
		`INSERT INTO trust_updates
		 (agent_id, old_score, new_score, delta, update_type, context_note, ledger_ref, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.AgentID, ev.OldScore, ev.NewScore, ev.Delta, string(ev.UpdateType),
		nullIfEmpty(ev.ContextNote), nullIfEmpty(ev.LedgerRef),
		ev.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert trust event: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// #endregion tx-helpers
