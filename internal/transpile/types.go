package transpile

import "time"

// #region status

// Status classifies one transpilation attempt.
type Status string

const (
	StatusSuccess          Status = "success"
	StatusLLMUnavailable   Status = "llm_unavailable"
	StatusCompilationError Status = "compilation_error"
	StatusTimeout          Status = "timeout"
	StatusInvalidOutput    Status = "invalid_output"
	StatusDisabled         Status = "disabled"
)

// #endregion status

// #region result

// Result is the outcome of translating source text to C. Only StatusSuccess
// results may feed the model checker. Elapsed is always populated, even on
// failure, so time is attributable per attempt.
type Result struct {
	Status       Status
	Code         string
	LineMap      map[int]int // translated line -> original line
	ModelUsed    string
	Elapsed      time.Duration
	ErrorMessage string
}

// #endregion result
