package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kestrelsec/gatewarden/internal/audit"
	"github.com/kestrelsec/gatewarden/internal/checker"
	"github.com/kestrelsec/gatewarden/internal/config"
	"github.com/kestrelsec/gatewarden/internal/heuristics"
	"github.com/kestrelsec/gatewarden/internal/traffic"
	"github.com/kestrelsec/gatewarden/internal/transpile"
	"github.com/kestrelsec/gatewarden/internal/trust"
	"github.com/kestrelsec/gatewarden/internal/verify"
)

// #region main

func main() {
	cfg, err := config.Load(os.Getenv("GATEWARDEN_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	db, err := sql.Open("sqlite", cfg.DBPath+"?_pragma=journal_mode(WAL)")
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	trustStore, err := trust.NewStore(db)
	if err != nil {
		log.Fatalf("init trust store: %v", err)
	}
	trustMgr := trust.NewManager(trustStore)

	modeStore, err := traffic.NewModeStore(db)
	if err != nil {
		log.Fatalf("init mode store: %v", err)
	}
	queue, err := traffic.NewApprovalQueue(db)
	if err != nil {
		log.Fatalf("init approval queue: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chk := checker.NewRunner(checker.Config{
		Timeout:       cfg.CheckerTimeout(),
		UnwindDepth:   cfg.Checker.UnwindDepth,
		MemoryLimitMB: cfg.Checker.MemoryLimitMB,
	})
	tr := transpile.NewTranspiler(transpile.Config{
		Endpoint:       cfg.Transpile.Endpoint,
		PrimaryModel:   cfg.Transpile.PrimaryModel,
		FallbackModels: cfg.Transpile.FallbackModels,
		Timeout:        cfg.TranspileTimeout(),
	})
	orch := verify.NewOrchestrator(ctx, verify.Mode(cfg.VerificationMode),
		heuristics.NewScanner(), tr, chk)

	gate := traffic.NewBackpressure(cfg.Traffic.Capacity)
	monitor := traffic.NewMonitor(traffic.MonitorConfig{
		PollInterval:    cfg.PollInterval(),
		WindowSize:      cfg.Traffic.CPUWindowSize,
		CPUThresholdPct: cfg.Traffic.CPUThresholdPct,
		SurgeEnterDepth: cfg.Traffic.SurgeEnterDepth,
		SurgeExitDepth:  cfg.Traffic.SurgeExitDepth,
	}, modeStore, traffic.SystemCPUSampler{}, queue)
	go monitor.Run(ctx)

	svc := audit.NewService(gate, modeStore, orch, trustMgr, queue)

	caps := orch.Capabilities()
	fmt.Println("Gatewarden ready.")
	fmt.Printf("  DB: %s | mode: %s | checker: %v | llm: %v\n",
		cfg.DBPath, cfg.VerificationMode, caps.Checker, caps.LLM)
	fmt.Println("Commands: audit <agent> <file> | trust <agent> | status | safe <reason> | quit")

	repl(ctx, svc, trustMgr, gate, monitor)
}

// #endregion main

// #region repl

func repl(ctx context.Context, svc *audit.Service, trustMgr *trust.Manager, gate *traffic.Backpressure, monitor *traffic.Monitor) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)

		switch fields[0] {
		case "quit", "exit":
			return

		case "audit":
			if len(fields) != 3 {
				fmt.Println("usage: audit <agent> <file>")
				continue
			}
			runAudit(ctx, svc, fields[1], fields[2])

		case "trust":
			if len(fields) != 2 {
				fmt.Println("usage: trust <agent>")
				continue
			}
			printTrust(trustMgr, fields[1])

		case "status":
			printStatus(gate, monitor)

		case "safe":
			reason := "manual trigger"
			if len(fields) > 1 {
				reason = strings.Join(fields[1:], " ")
			}
			if err := monitor.TriggerSafeMode(reason); err != nil {
				fmt.Printf("safe mode: %v\n", err)
			}

		default:
			fmt.Printf("unknown command %q\n", fields[0])
		}
	}
}

func runAudit(ctx context.Context, svc *audit.Service, agentID, path string) {
	content, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("read %s: %v\n", path, err)
		return
	}

	auditCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	out, err := svc.Audit(auditCtx, agentID, verify.Request{Content: string(content)})
	if err != nil {
		fmt.Printf("audit error: %v\n", err)
		return
	}

	fmt.Printf("[%s] verdict=%s mode=%s trust=%.3f\n",
		out.LedgerRef, out.Result.Status, out.Result.Mode, out.TrustScore)
	for _, v := range out.Result.Violations {
		fmt.Printf("  violation: %s\n", v)
	}
	if out.Result.Output != "" && out.Result.Status != verify.StatusPass {
		fmt.Printf("  detail: %s\n", out.Result.Output)
	}
	if out.QueuedForReview {
		fmt.Println("  queued for human review")
	}
}

func printTrust(trustMgr *trust.Manager, agentID string) {
	rec, found, err := trustMgr.Get(agentID)
	if err != nil {
		fmt.Printf("trust: %v\n", err)
		return
	}
	if !found {
		fmt.Printf("%s: unknown agent (would start at %.2f)\n", agentID, trust.NewAgentScore)
		return
	}
	fmt.Printf("%s: score=%.3f stage=%s verifications=%d\n",
		rec.AgentID, rec.TrustScore, trust.StageFor(rec.TrustScore), rec.VerificationCount)

	events, err := trustMgr.History(agentID, 5)
	if err != nil {
		return
	}
	for _, ev := range events {
		fmt.Printf("  %s %s %.3f -> %.3f\n",
			ev.CreatedAt.Format("2006-01-02T15:04:05Z"), ev.UpdateType, ev.OldScore, ev.NewScore)
	}
}

func printStatus(gate *traffic.Backpressure, monitor *traffic.Monitor) {
	status := struct {
		Backpressure traffic.BackpressureStatus `json:"backpressure"`
		Monitor      traffic.MonitorStatus      `json:"monitor"`
	}{gate.Status(), monitor.Status()}

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		fmt.Printf("status: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

// #endregion repl
