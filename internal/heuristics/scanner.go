package heuristics

import (
	"regexp"
	"strings"
)

// #region rule-table

// rule compiles a case-insensitive pattern into a Rule.
func rule(id, name string, cat Category, pattern string, sev Severity, desc, cwe string) Rule {
	return Rule{
		ID:          id,
		Name:        name,
		Category:    cat,
		Pattern:     regexp.MustCompile(`(?i)` + pattern),
		Severity:    sev,
		Description: desc,
		WeaknessRef: cwe,
	}
}

// DefaultRules is the built-in vulnerability pattern table. Order is stable
// and determines output ordering.
var DefaultRules = []Rule{
	// Arithmetic
	rule("ARITH-001", "Division by Zero (Literal)", CategoryArithmetic,
		`/\s*0\s*($|[;#,\)\]])`, SeverityHigh,
		"Potential division by literal zero", "CWE-369"),
	rule("ARITH-002", "Division by Variable (Unchecked)", CategoryArithmetic,
		`/\s*[a-zA-Z_]\w*\s*([^!=<>]|$)`, SeverityMedium,
		"Division by variable without zero-check guard", "CWE-369"),
	rule("ARITH-003", "Integer Overflow Risk", CategoryArithmetic,
		`\*\s*\d{10,}|\d{10,}\s*\*`, SeverityMedium,
		"Multiplication with very large literal", "CWE-190"),

	// Memory / buffer
	rule("MEM-001", "Unsafe Index Access", CategoryMemory,
		`\[\s*-\d+\s*\]`, SeverityMedium,
		"Negative index access", "CWE-125"),
	rule("MEM-002", "Hardcoded Large Index", CategoryMemory,
		`\[\s*\d{4,}\s*\]`, SeverityLow,
		"Very large hardcoded index", "CWE-129"),

	// Injection
	rule("INJ-001", "SQL Injection (f-string)", CategoryInjection,
		`execute\s*\(\s*f["'].*\{`, SeverityCritical,
		"SQL query built with f-string interpolation", "CWE-89"),
	rule("INJ-002", "SQL Injection (format)", CategoryInjection,
		`execute\s*\(.*\.format\s*\(`, SeverityCritical,
		"SQL query built with .format()", "CWE-89"),
	rule("INJ-003", "SQL Injection (concat)", CategoryInjection,
		`execute\s*\([^)]*\+`, SeverityCritical,
		"SQL query built with string concatenation", "CWE-89"),
	rule("INJ-004", "Command Injection (os.system)", CategoryInjection,
		`os\.system\s*\(\s*[^"'][^)]*\+`, SeverityCritical,
		"Shell command with dynamic input", "CWE-78"),
	rule("INJ-005", "Command Injection (subprocess)", CategoryInjection,
		`subprocess\.(call|run|Popen)\s*\(\s*[^"'][^)]*\+`, SeverityHigh,
		"Subprocess with dynamic command string", "CWE-78"),
	rule("INJ-006", "Code Injection (eval)", CategoryInjection,
		`\beval\s*\([^)]*[a-zA-Z_]\w*[^)]*\)`, SeverityCritical,
		"eval() with variable input", "CWE-94"),
	rule("INJ-007", "Code Injection (exec)", CategoryInjection,
		`\bexec\s*\([^)]*[a-zA-Z_]\w*[^)]*\)`, SeverityCritical,
		"exec() with variable input", "CWE-94"),

	// Crypto / secrets
	rule("CRYPTO-001", "Hardcoded API Key (Stripe)", CategoryCrypto,
		`sk_(live|test)_[0-9a-zA-Z]{20,}`, SeverityCritical,
		"Stripe secret key in source code", "CWE-798"),
	rule("CRYPTO-002", "Hardcoded API Key (AWS)", CategoryCrypto,
		`AKIA[0-9A-Z]{16}`, SeverityCritical,
		"AWS access key in source code", "CWE-798"),
	rule("CRYPTO-003", "Hardcoded API Key (GitHub)", CategoryCrypto,
		`ghp_[0-9a-zA-Z]{36}`, SeverityCritical,
		"GitHub personal access token in source code", "CWE-798"),
	rule("CRYPTO-004", "Hardcoded Password", CategoryCrypto,
		`password\s*=\s*["'][^"']{4,}["']`, SeverityHigh,
		"Hardcoded password assignment", "CWE-259"),
	rule("CRYPTO-005", "Weak Hash (MD5)", CategoryCrypto,
		`hashlib\.md5\s*\(`, SeverityMedium,
		"MD5 hash (cryptographically broken)", "CWE-328"),
	rule("CRYPTO-006", "Weak Hash (SHA1)", CategoryCrypto,
		`hashlib\.sha1\s*\(`, SeverityLow,
		"SHA1 hash (weak for security purposes)", "CWE-328"),
	rule("CRYPTO-007", "Embedded Private Key", CategoryCrypto,
		`-----BEGIN (RSA |EC |OPENSSH )?PRIVATE KEY-----`, SeverityCritical,
		"Private key material in source code", "CWE-798"),

	// Resource
	rule("RES-001", "Unclosed File", CategoryResource,
		`open\s*\([^)]+\)\s*$`, SeverityLow,
		"File opened without context manager", "CWE-404"),

	// Logic
	rule("LOGIC-001", "Impossible Condition", CategoryLogic,
		`if\s+False\s*:`, SeverityLow,
		"Condition that is always false", "CWE-570"),
	rule("LOGIC-002", "Always True Condition", CategoryLogic,
		`if\s+True\s*:`, SeverityLow,
		"Condition that is always true", "CWE-571"),
	rule("LOGIC-003", "Useless Comparison", CategoryLogic,
		`\bx\s*==\s*x\b|\bx\s*!=\s*x\b`, SeverityLow,
		"Variable compared to itself", "CWE-697"),
}

// #endregion rule-table

// #region scanner

// Scanner runs the pattern table over source text line by line.
// It holds no mutable state and is safe for concurrent use.
type Scanner struct {
	rules []Rule
}

// NewScanner creates a scanner with the default rule table.
func NewScanner() *Scanner {
	return &Scanner{rules: DefaultRules}
}

// NewScannerWithRules creates a scanner with a custom rule table.
func NewScannerWithRules(rules []Rule) *Scanner {
	return &Scanner{rules: rules}
}

// RuleCount returns the number of loaded rules.
func (s *Scanner) RuleCount() int {
	return len(s.rules)
}

// #endregion scanner

// #region scan

// Scan matches every rule against every line and returns findings whose
// severity rank is at or above the threshold. Output is deterministic:
// table order first, then line order within each rule.
func (s *Scanner) Scan(content string, threshold Severity) []Finding {
	minRank := threshold.Rank()
	lines := strings.Split(content, "\n")

	var findings []Finding
	for _, r := range s.rules {
		if r.Severity.Rank() < minRank {
			continue
		}
		for i, line := range lines {
			if !r.Pattern.MatchString(line) {
				continue
			}
			findings = append(findings, Finding{
				RuleID:      r.ID,
				Name:        r.Name,
				Category:    r.Category,
				Severity:    r.Severity,
				Line:        i + 1,
				Excerpt:     excerpt(line),
				Description: r.Description,
				WeaknessRef: r.WeaknessRef,
			})
		}
	}
	return findings
}

// excerpt trims and truncates a matched line for reporting.
func excerpt(line string) string {
	t := strings.TrimSpace(line)
	if len(t) > 100 {
		t = t[:100]
	}
	return t
}

// #endregion scan
