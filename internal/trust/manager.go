package trust

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// NewAgentScore is the neutral starting trust for a first-seen agent.
const NewAgentScore = 0.40

// decayEpsilon suppresses decay writes too small to matter.
const decayEpsilon = 1e-4

// #region manager

// Manager applies trust dynamics to persisted agent records. All mutations
// are serialized per agent and written with their history row in one
// transaction.
type Manager struct {
	store *Store
	now   func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager builds a manager over an initialized store.
func NewManager(store *Store) *Manager {
	return &Manager{
		store: store,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}
}

// SetClock overrides the time source for tests.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

func (m *Manager) agentLock(agentID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lk, ok := m.locks[agentID]
	if !ok {
		lk = &sync.Mutex{}
		m.locks[agentID] = lk
	}
	return lk
}

// #endregion manager

// #region reads

// Trust returns an agent's current score. Unknown agents report the
// new-agent starting score without creating a record.
func (m *Manager) Trust(agentID string) (float64, error) {
	rec, found, err := m.store.Get(agentID)
	if err != nil {
		return 0, err
	}
	if !found {
		return NewAgentScore, nil
	}
	return rec.TrustScore, nil
}

// Get returns the full record for an agent.
func (m *Manager) Get(agentID string) (Record, bool, error) {
	return m.store.Get(agentID)
}

// History returns the most recent trust events for an agent, newest first.
func (m *Manager) History(agentID string, limit int) ([]Event, error) {
	return m.store.History(agentID, limit)
}

// Stage returns the coarse trust band an agent sits in.
func (m *Manager) Stage(agentID string) (Stage, error) {
	score, err := m.Trust(agentID)
	if err != nil {
		return "", err
	}
	return StageFor(score), nil
}

// #endregion reads

// #region verification

// ApplyVerification folds a verification outcome into an agent's score via
// EWMA, creating the record on first sight. Probationary agents cannot be
// pushed below the probation floor by a single bad outcome.
func (m *Manager) ApplyVerification(agentID string, outcome float64, c Context, ledgerRef string) (float64, error) {
	lk := m.agentLock(agentID)
	lk.Lock()
	defer lk.Unlock()

	now := m.now()
	tx, err := m.store.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin trust tx: %w", err)
	}
	defer tx.Rollback()

	rec, found, err := getRecord(tx, agentID)
	if err != nil {
		return 0, err
	}
	if !found {
		rec = Record{
			AgentID:          agentID,
			TrustScore:       NewAgentScore,
			PenaltyResetDate: now.Format("2006-01-02"),
			CreatedAt:        now,
		}
		if _, err := tx.Exec(
			`INSERT INTO agent_trust
			 (agent_id, trust_score, verification_count, daily_penalty_sum,
			  penalty_reset_date, created_at, last_trust_update)
			 VALUES (?, ?, 0, 0, ?, ?, ?)`,
			rec.AgentID, rec.TrustScore, rec.PenaltyResetDate,
			now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
		); err != nil {
			return 0, fmt.Errorf("create agent %s: %w", agentID, err)
		}
		log.Printf("[TRUST] new agent %s starts at %.2f", agentID, NewAgentScore)
	}

	old := rec.TrustScore
	updated := EWMAUpdate(old, outcome, c)
	if InProbation(rec.CreatedAt, now, rec.VerificationCount) && updated < ProbationFloor() {
		updated = ProbationFloor()
	}

	if _, err := tx.Exec(
		`UPDATE agent_trust
		 SET trust_score = ?, verification_count = verification_count + 1,
		     last_trust_update = ?
		 WHERE agent_id = ?`,
		updated, now.Format(time.RFC3339Nano), agentID,
	); err != nil {
		return 0, fmt.Errorf("update agent %s: %w", agentID, err)
	}

	if err := insertEvent(tx, Event{
		AgentID:     agentID,
		OldScore:    old,
		NewScore:    updated,
		Delta:       updated - old,
		UpdateType:  UpdateEWMA,
		ContextNote: fmt.Sprintf("outcome=%.2f context=%s", outcome, c),
		LedgerRef:   ledgerRef,
		CreatedAt:   now,
	}); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit trust tx: %w", err)
	}
	return updated, nil
}

// #endregion verification

// #region penalty

// ApplyMicroPenalty deducts an anti-gaming penalty, resetting the daily
// running sum on the first penalty of a new calendar day. It returns the new
// score and the amount actually applied.
func (m *Manager) ApplyMicroPenalty(agentID string, p PenaltyType, ledgerRef string) (float64, float64, error) {
	lk := m.agentLock(agentID)
	lk.Lock()
	defer lk.Unlock()

	now := m.now()
	tx, err := m.store.db.Begin()
	if err != nil {
		return 0, 0, fmt.Errorf("begin trust tx: %w", err)
	}
	defer tx.Rollback()

	rec, found, err := getRecord(tx, agentID)
	if err != nil {
		return 0, 0, err
	}
	if !found {
		return 0, 0, fmt.Errorf("penalty for unknown agent %s", agentID)
	}

	today := now.Format("2006-01-02")
	dailySum := rec.DailyPenaltySum
	if rec.PenaltyResetDate != today {
		dailySum = 0
	}

	old := rec.TrustScore
	updated, applied := MicroPenalty(old, p, dailySum)
	if applied == 0 {
		log.Printf("[TRUST] penalty cap reached for %s, %s ignored", agentID, p)
		return old, 0, tx.Commit()
	}

	if _, err := tx.Exec(
		`UPDATE agent_trust
		 SET trust_score = ?, daily_penalty_sum = ?, penalty_reset_date = ?,
		     last_trust_update = ?
		 WHERE agent_id = ?`,
		updated, dailySum+applied, today, now.Format(time.RFC3339Nano), agentID,
	); err != nil {
		return 0, 0, fmt.Errorf("update agent %s: %w", agentID, err)
	}

	if err := insertEvent(tx, Event{
		AgentID:     agentID,
		OldScore:    old,
		NewScore:    updated,
		Delta:       updated - old,
		UpdateType:  UpdateMicroPenalty,
		ContextNote: string(p),
		LedgerRef:   ledgerRef,
		CreatedAt:   now,
	}); err != nil {
		return 0, 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit trust tx: %w", err)
	}
	return updated, applied, nil
}

// #endregion penalty

// #region decay

// ApplyTemporalDecay drifts an agent's score toward the neutral baseline for
// elapsed inactivity. Movements below the write threshold are skipped so
// periodic sweeps do not flood the history.
func (m *Manager) ApplyTemporalDecay(agentID string) (float64, error) {
	lk := m.agentLock(agentID)
	lk.Lock()
	defer lk.Unlock()

	now := m.now()
	tx, err := m.store.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin trust tx: %w", err)
	}
	defer tx.Rollback()

	rec, found, err := getRecord(tx, agentID)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("decay for unknown agent %s", agentID)
	}

	old := rec.TrustScore
	updated := TemporalDecay(old, rec.LastTrustUpdate, now, DecayBaseline)
	if diff := updated - old; diff < decayEpsilon && diff > -decayEpsilon {
		return old, tx.Commit()
	}

	if _, err := tx.Exec(
		`UPDATE agent_trust SET trust_score = ?, last_trust_update = ? WHERE agent_id = ?`,
		updated, now.Format(time.RFC3339Nano), agentID,
	); err != nil {
		return 0, fmt.Errorf("update agent %s: %w", agentID, err)
	}

	if err := insertEvent(tx, Event{
		AgentID:     agentID,
		OldScore:    old,
		NewScore:    updated,
		Delta:       updated - old,
		UpdateType:  UpdateTemporalDecay,
		ContextNote: fmt.Sprintf("inactive since %s", rec.LastTrustUpdate.Format(time.RFC3339)),
		CreatedAt:   now,
	}); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit trust tx: %w", err)
	}
	return updated, nil
}

// DecayAll sweeps temporal decay over every known agent.
func (m *Manager) DecayAll() error {
	rows, err := m.store.db.Query(`SELECT agent_id FROM agent_trust`)
	if err != nil {
		return fmt.Errorf("list agents: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan agent id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Close(); err != nil {
		return err
	}

	for _, id := range ids {
		if _, err := m.ApplyTemporalDecay(id); err != nil {
			return err
		}
	}
	return nil
}

// #endregion decay
