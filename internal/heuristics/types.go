package heuristics

import "regexp"

// #region severity

// Severity ranks a finding. The ordering LOW < MEDIUM < HIGH < CRITICAL
// is total and drives threshold filtering.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Rank returns the numeric order of a severity. Unknown severities rank 0,
// below LOW, so they never pass a threshold.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// #endregion severity

// #region category

// Category groups rules by the class of defect they detect.
type Category string

const (
	CategoryMemory     Category = "memory"
	CategoryArithmetic Category = "arithmetic"
	CategoryInjection  Category = "injection"
	CategoryCrypto     Category = "crypto"
	CategoryResource   Category = "resource"
	CategoryLogic      Category = "logic"
)

// #endregion category

// #region rule

// Rule is a single detection pattern. Rules fire independently; one line
// may match several rules.
type Rule struct {
	ID          string
	Name        string
	Category    Category
	Pattern     *regexp.Regexp
	Severity    Severity
	Description string
	WeaknessRef string // CWE identifier
}

// #endregion rule

// #region finding

// Finding is one rule match at one line. Immutable once produced.
type Finding struct {
	RuleID      string   `json:"rule_id"`
	Name        string   `json:"name"`
	Category    Category `json:"category"`
	Severity    Severity `json:"severity"`
	Line        int      `json:"line"`
	Excerpt     string   `json:"excerpt"`
	Description string   `json:"description"`
	WeaknessRef string   `json:"weakness_ref"`
}

// #endregion finding
