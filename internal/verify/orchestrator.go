package verify

import (
	"context"
	"fmt"
	"log"

	"github.com/kestrelsec/gatewarden/internal/checker"
	"github.com/kestrelsec/gatewarden/internal/heuristics"
	"github.com/kestrelsec/gatewarden/internal/transpile"
)

// #region orchestrator

// Orchestrator selects and runs a verification strategy per configured mode,
// merging heuristic and checker results into one verdict. It holds no
// mutable state after construction and is safe for concurrent use.
type Orchestrator struct {
	mode    Mode
	scanner Scanner
	tr      Transpiler
	chk     Checker
	caps    Capabilities
}

// NewOrchestrator wires the verification components and probes external
// capabilities once.
func NewOrchestrator(ctx context.Context, mode Mode, scanner Scanner, tr Transpiler, chk Checker) *Orchestrator {
	return &Orchestrator{
		mode:    mode,
		scanner: scanner,
		tr:      tr,
		chk:     chk,
		caps:    ProbeCapabilities(ctx, chk, tr),
	}
}

// ConfiguredMode returns the mode the orchestrator was built with.
func (o *Orchestrator) ConfiguredMode() Mode {
	return o.mode
}

// Capabilities returns the startup dependency probe.
func (o *Orchestrator) Capabilities() Capabilities {
	return o.caps
}

// #endregion orchestrator

// #region verify

// Verify audits a request in the configured mode.
func (o *Orchestrator) Verify(ctx context.Context, req Request) Result {
	return o.VerifyInMode(ctx, req, o.mode)
}

// VerifyInMode audits a request in an explicit mode, letting callers force
// the strictest strategy (e.g. SAFE posture). Internal faults surface as a
// status ERROR result, never as a panic across this boundary.
func (o *Orchestrator) VerifyInMode(ctx context.Context, req Request, mode Mode) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[VERIFY] internal fault: %v", r)
			res = Result{
				Status: StatusError,
				Mode:   mode,
				Output: fmt.Sprintf("internal verification fault: %v", r),
			}
		}
	}()

	if mode == ModeDisabled {
		return Result{
			Status: StatusDisabled,
			Mode:   ModeDisabled,
			Output: "formal verification disabled in configuration",
		}
	}

	if req.Structured {
		return o.verifyStructured(ctx, req.Content)
	}

	if mode == ModeFull {
		return o.verifyFull(ctx, req.Content)
	}
	return o.verifyLite(req.Content)
}

// #endregion verify

// #region structured

// verifyStructured runs the checker directly on checker-native content.
func (o *Orchestrator) verifyStructured(ctx context.Context, content string) Result {
	if !o.caps.Checker {
		return Result{
			Status: StatusUnavailable,
			Mode:   ModeFull,
			Output: o.caps.CheckerDetail,
		}
	}

	chk := o.chk.Verify(ctx, content, "")
	switch chk.Status {
	case checker.StatusPass:
		return Result{Status: StatusPass, Mode: ModeFull, Output: chk.RawOutput}
	case checker.StatusFail:
		return Result{
			Status:     StatusFail,
			Mode:       ModeFull,
			Violations: formatCheckerViolations(chk.Violations, nil),
			Output:     chk.RawOutput,
		}
	default:
		// TIMEOUT / PARSE_ERROR / ERROR: inconclusive, never a verdict.
		return Result{
			Status: StatusError,
			Mode:   ModeFull,
			Output: fmt.Sprintf("checker inconclusive (%s): %s", chk.Status, chk.RawOutput),
		}
	}
}

// #endregion structured

// #region lite

// verifyLite runs heuristics only. HIGH and CRITICAL findings are
// violations; any of them fails the audit.
func (o *Orchestrator) verifyLite(content string) Result {
	findings := o.scanner.Scan(content, heuristics.SeverityLow)
	violations := criticalViolations(findings)

	status := StatusPass
	if len(violations) > 0 {
		status = StatusFail
	}

	return Result{
		Status:            status,
		Violations:        violations,
		Mode:              ModeLite,
		HeuristicFindings: findings,
		Output: fmt.Sprintf("lite mode: %d rules evaluated, %d blocking issues",
			len(findings), len(violations)),
	}
}

// #endregion lite

// #region full

// verifyFull runs heuristics, then the transpile-and-check pipeline.
// Heuristics always run first: they catch classes the checker cannot, such
// as hardcoded secrets. Any missing link degrades to LITE_ONLY with the
// degradation reason preserved.
func (o *Orchestrator) verifyFull(ctx context.Context, content string) Result {
	findings := o.scanner.Scan(content, heuristics.SeverityLow)

	if !o.caps.LLM {
		return o.liteOnly(findings, fmt.Sprintf("LLM unavailable (%s); heuristic analysis only", o.caps.LLMDetail), false, "")
	}

	trans := o.tr.Transpile(ctx, content)
	if trans.Status != transpile.StatusSuccess {
		reason := fmt.Sprintf("transpilation failed (%s): %s; heuristic analysis only",
			trans.Status, trans.ErrorMessage)
		return o.liteOnly(findings, reason, false, trans.ModelUsed)
	}

	if !o.caps.Checker {
		return o.liteOnly(findings,
			fmt.Sprintf("checker unavailable (%s); heuristic analysis only", o.caps.CheckerDetail),
			true, trans.ModelUsed)
	}

	chk := o.chk.Verify(ctx, trans.Code, "")
	if chk.Status != checker.StatusPass && chk.Status != checker.StatusFail {
		return o.liteOnly(findings,
			fmt.Sprintf("checker inconclusive (%s); heuristic analysis only", chk.Status),
			true, trans.ModelUsed)
	}

	violations := formatCheckerViolations(chk.Violations, trans.LineMap)
	violations = append(violations, criticalViolations(findings)...)

	status := StatusPass
	if chk.Status == checker.StatusFail || hasCritical(findings) {
		status = StatusFail
	}

	return Result{
		Status:            status,
		Violations:        violations,
		Mode:              ModeFull,
		HeuristicFindings: findings,
		TranspilationUsed: true,
		ModelUsed:         trans.ModelUsed,
		Output:            chk.RawOutput,
	}
}

// liteOnly reports a degraded full-mode audit: heuristic verdict material
// only, with the reason full verification did not run.
func (o *Orchestrator) liteOnly(findings []heuristics.Finding, reason string, transpiled bool, model string) Result {
	log.Printf("[VERIFY] degraded to lite-only: %s", reason)
	return Result{
		Status:            StatusLiteOnly,
		Violations:        criticalViolations(findings),
		Mode:              ModeLite,
		HeuristicFindings: findings,
		TranspilationUsed: transpiled,
		ModelUsed:         model,
		Output:            reason,
	}
}

// #endregion full

// #region merge-helpers

// criticalViolations renders HIGH and CRITICAL findings as violation lines.
func criticalViolations(findings []heuristics.Finding) []string {
	var out []string
	for _, f := range findings {
		if f.Severity.Rank() >= heuristics.SeverityHigh.Rank() {
			out = append(out, fmt.Sprintf("[L%d] %s: %s", f.Line, f.RuleID, f.Description))
		}
	}
	return out
}

func hasCritical(findings []heuristics.Finding) bool {
	for _, f := range findings {
		if f.Severity == heuristics.SeverityCritical {
			return true
		}
	}
	return false
}

// formatCheckerViolations renders checker violations, mapping translated
// lines back to original lines where the line map covers them. Unmapped
// violations are still reported, just without a line annotation.
func formatCheckerViolations(violations []checker.Violation, lineMap map[int]int) []string {
	var out []string
	for _, v := range violations {
		if orig, ok := lineMap[v.Line]; ok {
			out = append(out, fmt.Sprintf("[L%d] %s: %s", orig, v.Kind, v.Description))
		} else {
			out = append(out, fmt.Sprintf("%s: %s", v.Kind, v.Description))
		}
	}
	return out
}

// #endregion merge-helpers
