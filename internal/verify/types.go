package verify

import (
	"github.com/kestrelsec/gatewarden/internal/heuristics"
)

// #region status

// Status is the unified verdict of one audit.
type Status string

const (
	StatusPass        Status = "PASS"
	StatusFail        Status = "FAIL"
	StatusError       Status = "ERROR"
	StatusUnavailable Status = "UNAVAILABLE"
	StatusDisabled    Status = "DISABLED"
	StatusLiteOnly    Status = "LITE_ONLY" // heuristics ran, full pipeline degraded
)

// #endregion status

// #region mode

// Mode is the configured verification intensity.
type Mode string

const (
	ModeFull     Mode = "full"
	ModeLite     Mode = "lite"
	ModeDisabled Mode = "disabled"
)

// #endregion mode

// #region request

// Request is one immutable audit input. Structured marks content already in
// the checker's native language, bypassing transpilation.
type Request struct {
	Content    string `json:"content"`
	Structured bool   `json:"is_structured_language"`
}

// #endregion request

// #region result

// Result is the terminal artifact of one audit. Never mutated after
// creation; serializes losslessly to JSON.
type Result struct {
	Status            Status               `json:"status"`
	Violations        []string             `json:"violations"`
	Mode              Mode                 `json:"mode"`
	HeuristicFindings []heuristics.Finding `json:"heuristic_findings"`
	TranspilationUsed bool                 `json:"transpilation_used"`
	ModelUsed         string               `json:"model_used,omitempty"`
	Output            string               `json:"output,omitempty"`
}

// #endregion result
