package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	_ "modernc.org/sqlite"

	"github.com/kestrelsec/gatewarden/internal/traffic"
	"github.com/kestrelsec/gatewarden/internal/trust"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to gatewarden.db")
	agent := flag.String("agent", "", "show one agent's trust detail")
	last := flag.Int("last", 20, "history rows to show")
	modes := flag.Bool("modes", false, "show mode transition history")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/gatewarden.db [--agent id] [--modes] [--last N] [--json]")
		os.Exit(2)
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	var runErr error
	switch {
	case *agent != "":
		runErr = runAgentMode(db, *agent, *last, *jsonOut)
	case *modes:
		runErr = runModesMode(db, *last, *jsonOut)
	default:
		runErr = runOverviewMode(db, *jsonOut)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		os.Exit(1)
	}
}

// #endregion main

// #region agent-mode

type agentDetail struct {
	AgentID           string       `json:"agent_id"`
	TrustScore        float64      `json:"trust_score"`
	Stage             trust.Stage  `json:"stage"`
	VerificationCount int          `json:"verification_count"`
	CreatedAt         string       `json:"created_at"`
	History           []historyRow `json:"history"`
}

type historyRow struct {
	Type      trust.UpdateType `json:"type"`
	OldScore  float64          `json:"old_score"`
	NewScore  float64          `json:"new_score"`
	Note      string           `json:"note,omitempty"`
	LedgerRef string           `json:"ledger_ref,omitempty"`
	CreatedAt string           `json:"created_at"`
}

func runAgentMode(db *sql.DB, agentID string, last int, jsonOut bool) error {
	store, err := trust.NewStore(db)
	if err != nil {
		return err
	}

	rec, found, err := store.Get(agentID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("agent %s not found", agentID)
	}
	events, err := store.History(agentID, last)
	if err != nil {
		return err
	}

	out := agentDetail{
		AgentID:           rec.AgentID,
		TrustScore:        rec.TrustScore,
		Stage:             trust.StageFor(rec.TrustScore),
		VerificationCount: rec.VerificationCount,
		CreatedAt:         rec.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
	for _, ev := range events {
		out.History = append(out.History, historyRow{
			Type:      ev.UpdateType,
			OldScore:  ev.OldScore,
			NewScore:  ev.NewScore,
			Note:      ev.ContextNote,
			LedgerRef: ev.LedgerRef,
			CreatedAt: ev.CreatedAt.Format("2006-01-02T15:04:05Z"),
		})
	}

	if jsonOut {
		return printJSON(out)
	}

	fmt.Printf("Agent:         %s\n", out.AgentID)
	fmt.Printf("Trust:         %.3f (%s)\n", out.TrustScore, out.Stage)
	fmt.Printf("Verifications: %d\n", out.VerificationCount)
	fmt.Printf("Created:       %s\n", out.CreatedAt)

	if len(out.History) > 0 {
		fmt.Printf("\n%-16s  %7s  %7s  %-20s  %s\n", "Type", "Old", "New", "Time", "Note")
		for _, h := range out.History {
			fmt.Printf("%-16s  %7.3f  %7.3f  %-20s  %s\n",
				h.Type, h.OldScore, h.NewScore, h.CreatedAt, h.Note)
		}
	}
	return nil
}

// #endregion agent-mode

// #region modes-mode

type transitionRow struct {
	From      traffic.Mode `json:"from"`
	To        traffic.Mode `json:"to"`
	Reason    string       `json:"reason"`
	CreatedAt string       `json:"created_at"`
}

func runModesMode(db *sql.DB, last int, jsonOut bool) error {
	store, err := traffic.NewModeStore(db)
	if err != nil {
		return err
	}

	current, err := store.Current()
	if err != nil {
		return err
	}
	recs, err := store.Transitions(last)
	if err != nil {
		return err
	}

	rows := make([]transitionRow, len(recs))
	for i, rec := range recs {
		rows[i] = transitionRow{
			From:      rec.From,
			To:        rec.To,
			Reason:    rec.Reason,
			CreatedAt: rec.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
	}

	if jsonOut {
		return printJSON(struct {
			Current     traffic.Mode    `json:"current"`
			Transitions []transitionRow `json:"transitions"`
		}{current, rows})
	}

	fmt.Printf("Current mode: %s\n", current)
	if len(rows) > 0 {
		fmt.Printf("\n%-8s  %-8s  %-20s  %s\n", "From", "To", "Time", "Reason")
		for _, r := range rows {
			fmt.Printf("%-8s  %-8s  %-20s  %s\n", r.From, r.To, r.CreatedAt, r.Reason)
		}
	}
	return nil
}

// #endregion modes-mode

// #region overview-mode

type overviewRow struct {
	AgentID           string      `json:"agent_id"`
	TrustScore        float64     `json:"trust_score"`
	Stage             trust.Stage `json:"stage"`
	VerificationCount int         `json:"verification_count"`
}

func runOverviewMode(db *sql.DB, jsonOut bool) error {
	rows, err := db.Query(
		`SELECT agent_id, trust_score, verification_count
		 FROM agent_trust ORDER BY trust_score DESC`)
	if err != nil {
		return fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []overviewRow
	for rows.Next() {
		var a overviewRow
		if err := rows.Scan(&a.AgentID, &a.TrustScore, &a.VerificationCount); err != nil {
			return err
		}
		a.Stage = trust.StageFor(a.TrustScore)
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	var pending int
	if err := db.QueryRow(
		`SELECT COUNT(*) FROM approval_queue WHERE status = 'PENDING'`,
	).Scan(&pending); err != nil {
		pending = 0
	}

	if jsonOut {
		return printJSON(struct {
			Agents       []overviewRow `json:"agents"`
			PendingQueue int           `json:"pending_queue"`
		}{agents, pending})
	}

	if len(agents) == 0 {
		fmt.Fprintln(os.Stderr, "no agents found")
		return nil
	}
	fmt.Printf("%-24s  %7s  %-14s  %s\n", "Agent", "Trust", "Stage", "Verifications")
	for _, a := range agents {
		fmt.Printf("%-24s  %7.3f  %-14s  %d\n", a.AgentID, a.TrustScore, a.Stage, a.VerificationCount)
	}
	fmt.Printf("\nPending review queue: %d\n", pending)
	return nil
}

// #endregion overview-mode

// #region output

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// #endregion output
