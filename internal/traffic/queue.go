package traffic

import (
	"database/sql"
	"fmt"
	"time"
)

// QueueSource supplies the current depth of the pending-approval backlog.
type QueueSource interface {
	Depth() (int, error)
}

// #region approval-queue

const queueSchema = `
CREATE TABLE IF NOT EXISTS approval_queue (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_id   TEXT NOT NULL,
	ledger_ref TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'PENDING',
	created_at TEXT NOT NULL,
	resolved_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_approval_queue_status
ON approval_queue(status);
`

// ApprovalQueue holds failed audits awaiting human review. Its pending depth
// is what drives SURGE transitions.
type ApprovalQueue struct {
	db *sql.DB
}

// NewApprovalQueue initializes the queue table on an open database handle.
func NewApprovalQueue(db *sql.DB) (*ApprovalQueue, error) {
	if _, err := db.Exec(queueSchema); err != nil {
		return nil, fmt.Errorf("migrate queue schema: %w", err)
	}
	return &ApprovalQueue{db: db}, nil
}

// Enqueue adds a pending review item and returns its id.
func (q *ApprovalQueue) Enqueue(agentID, ledgerRef string) (int64, error) {
	res, err := q.db.Exec(
		`INSERT INTO approval_queue (agent_id, ledger_ref, status, created_at)
		 VALUES (?, ?, 'PENDING', ?)`,
		agentID, ledgerRef, time.Now().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("enqueue approval: %w", err)
	}
	return res.LastInsertId()
}

// Resolve marks one item reviewed with a terminal status.
func (q *ApprovalQueue) Resolve(id int64, status string) error {
	res, err := q.db.Exec(
		`UPDATE approval_queue SET status = ?, resolved_at = ?
		 WHERE id = ? AND status = 'PENDING'`,
		status, time.Now().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return fmt.Errorf("resolve approval %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("approval %d not pending", id)
	}
	return nil
}

// Depth counts items still awaiting review.
func (q *ApprovalQueue) Depth() (int, error) {
	var n int
	err := q.db.QueryRow(
		`SELECT COUNT(*) FROM approval_queue WHERE status = 'PENDING'`,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return n, nil
}

// #endregion approval-queue
