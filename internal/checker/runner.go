package checker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// The checker signals "violations found" with this exit code; anything else
// non-zero is inconclusive.
const exitCodeViolations = 10

// #region config

// Config bounds one checker invocation.
type Config struct {
	Timeout       time.Duration
	UnwindDepth   int
	MemoryLimitMB int
}

// DefaultConfig returns the standard bounds.
func DefaultConfig() Config {
	return Config{
		Timeout:       30 * time.Second,
		UnwindDepth:   10,
		MemoryLimitMB: 512,
	}
}

// #endregion config

// #region runner

// Runner executes the external bounded model checker against C source.
// The binary is probed once at construction; Verify never re-probes.
type Runner struct {
	binPath string
	cfg     Config
}

// NewRunner probes PATH for the cbmc binary and returns a runner.
// A missing binary is not an error: Verify reports UNAVAILABLE.
func NewRunner(cfg Config) *Runner {
	path, err := exec.LookPath("cbmc")
	if err != nil {
		path = ""
	}
	return &Runner{binPath: path, cfg: cfg}
}

// NewRunnerWithBinary creates a runner for a specific binary path.
// Used for testing with stub checkers.
func NewRunnerWithBinary(path string, cfg Config) *Runner {
	return &Runner{binPath: path, cfg: cfg}
}

// Available reports whether the checker binary was found.
func (r *Runner) Available() bool {
	return r.binPath != ""
}

// Version runs the checker's version probe.
func (r *Runner) Version(ctx context.Context) (string, error) {
	if !r.Available() {
		return "", errors.New("checker binary not found in PATH")
	}
	out, err := exec.CommandContext(ctx, r.binPath, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("version probe: %w", err)
	}
	lines := strings.SplitN(strings.TrimSpace(string(out)), "\n", 2)
	return lines[0], nil
}

// #endregion runner

// #region verify

// Verify writes source to a process-private temporary file, runs the checker
// with bounds/pointer/overflow/div-by-zero checks enabled, and parses the
// outcome. The temporary file is removed on every exit path.
func (r *Runner) Verify(ctx context.Context, source, targetFunction string) Result {
	if !r.Available() {
		return Result{
			Status:     StatusUnavailable,
			RawOutput:  "checker binary not found in PATH",
			BoundDepth: r.cfg.UnwindDepth,
		}
	}

	tmp, err := os.CreateTemp("", "gatewarden-*.c")
	if err != nil {
		return Result{
			Status:     StatusError,
			RawOutput:  fmt.Sprintf("create temp artifact: %v", err),
			BoundDepth: r.cfg.UnwindDepth,
		}
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(source); err != nil {
		tmp.Close()
		return Result{
			Status:     StatusError,
			RawOutput:  fmt.Sprintf("write temp artifact: %v", err),
			BoundDepth: r.cfg.UnwindDepth,
		}
	}
	if err := tmp.Close(); err != nil {
		return Result{
			Status:     StatusError,
			RawOutput:  fmt.Sprintf("close temp artifact: %v", err),
			BoundDepth: r.cfg.UnwindDepth,
		}
	}

	return r.run(ctx, tmpPath, targetFunction)
}

func (r *Runner) run(ctx context.Context, path, targetFunction string) Result {
	args := []string{
		path,
		"--unwind", strconv.Itoa(r.cfg.UnwindDepth),
		"--bounds-check",
		"--pointer-check",
		"--div-by-zero-check",
		"--signed-overflow-check",
		"--unsigned-overflow-check",
		"--json-ui",
	}
	if targetFunction != "" {
		args = append(args, "--function", targetFunction)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.binPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	res := Result{
		RawOutput:  stdout.String(),
		Stderr:     stderr.String(),
		Elapsed:    elapsed,
		BoundDepth: r.cfg.UnwindDepth,
	}

	// Timeout is reported distinctly so callers can retry or mark the run
	// inconclusive instead of treating it as a verdict.
	if runCtx.Err() == context.DeadlineExceeded {
		res.Status = StatusTimeout
		res.RawOutput = fmt.Sprintf("checker exceeded %s timeout", r.cfg.Timeout)
		return res
	}

	if err == nil {
		res.Status = StatusPass
		return res
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.ExitCode() == exitCodeViolations {
			res.Status = StatusFail
			res.Violations = ParseViolations(stdout.String())
			return res
		}
		res.Status = StatusParseError
		return res
	}

	res.Status = StatusError
	res.RawOutput = err.Error()
	return res
}

// #endregion verify

// #region parsing

type jsonSourceLocation struct {
	File     string `json:"file"`
	Line     string `json:"line"`
	Function string `json:"function"`
}

type jsonMessage struct {
	MessageType    string             `json:"messageType"`
	MessageText    string             `json:"messageText"`
	Property       string             `json:"property"`
	SourceLocation jsonSourceLocation `json:"sourceLocation"`
}

// ParseViolations extracts violations from checker output, preferring the
// machine-readable JSON form and falling back to scanning raw text for
// failure markers when the JSON cannot be decoded.
func ParseViolations(output string) []Violation {
	var messages []jsonMessage
	if err := json.Unmarshal([]byte(output), &messages); err == nil {
		var violations []Violation
		for _, m := range messages {
			if m.MessageType != "ERROR" {
				continue
			}
			line, _ := strconv.Atoi(m.SourceLocation.Line)
			kind := m.Property
			if kind == "" {
				kind = "unknown"
			}
			violations = append(violations, Violation{
				Kind:        kind,
				File:        m.SourceLocation.File,
				Line:        line,
				Function:    m.SourceLocation.Function,
				Description: m.MessageText,
			})
		}
		return violations
	}

	// Text fallback
	var violations []Violation
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, "FAILURE") || strings.Contains(line, "VIOLATED") {
			violations = append(violations, Violation{
				Kind:        "unknown",
				Description: strings.TrimSpace(line),
			})
		}
	}
	return violations
}

// #endregion parsing
