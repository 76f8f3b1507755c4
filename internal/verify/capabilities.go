package verify

import (
	"context"
	"log"

	"github.com/kestrelsec/gatewarden/internal/checker"
	"github.com/kestrelsec/gatewarden/internal/heuristics"
	"github.com/kestrelsec/gatewarden/internal/transpile"
)

// #region interfaces

// Scanner runs heuristic pattern detection.
type Scanner interface {
	Scan(content string, threshold heuristics.Severity) []heuristics.Finding
}

// Transpiler converts source text to checker-native C.
type Transpiler interface {
	Transpile(ctx context.Context, source string) transpile.Result
	Available(ctx context.Context) (bool, string)
}

// Checker runs the bounded model checker.
type Checker interface {
	Verify(ctx context.Context, source, targetFunction string) checker.Result
	Available() bool
}

// #endregion interfaces

// #region capabilities

// Capabilities is the startup probe of external dependencies. Probed once
// at construction and consumed thereafter; the orchestrator never re-probes
// per call.
type Capabilities struct {
	Checker       bool
	CheckerDetail string
	LLM           bool
	LLMDetail     string
}

// ProbeCapabilities checks each external dependency once.
func ProbeCapabilities(ctx context.Context, chk Checker, tr Transpiler) Capabilities {
	caps := Capabilities{}

	if chk != nil && chk.Available() {
		caps.Checker = true
		caps.CheckerDetail = "checker binary present"
	} else {
		caps.CheckerDetail = "checker binary not found in PATH"
	}

	if tr != nil {
		ok, detail := tr.Available(ctx)
		caps.LLM = ok
		caps.LLMDetail = detail
	} else {
		caps.LLMDetail = "transpiler not configured"
	}

	log.Printf("[VERIFY] capabilities: checker=%v llm=%v", caps.Checker, caps.LLM)
	return caps
}

// #endregion capabilities
