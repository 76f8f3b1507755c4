package checker

import "time"

// #region status

// Status classifies one checker invocation. TIMEOUT is deliberately its own
// value: callers must never fold it into PASS or FAIL.
type Status string

const (
	StatusPass        Status = "PASS"
	StatusFail        Status = "FAIL"
	StatusTimeout     Status = "TIMEOUT"
	StatusParseError  Status = "PARSE_ERROR"
	StatusUnavailable Status = "UNAVAILABLE"
	StatusError       Status = "ERROR"
)

// #endregion status

// #region violation

// Violation is a single property violation reported by the checker.
type Violation struct {
	Kind        string   `json:"kind"`
	File        string   `json:"file"`
	Line        int      `json:"line"`
	Function    string   `json:"function"`
	Description string   `json:"description"`
	Trace       []string `json:"trace"`
}

// #endregion violation

// #region result

// Result is the outcome of one bounded verification run.
type Result struct {
	Status     Status
	Violations []Violation
	RawOutput  string
	Stderr     string
	Elapsed    time.Duration
	BoundDepth int
}

// #endregion result
