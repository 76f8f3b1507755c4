package checker

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// stubChecker writes an executable script that mimics the checker binary.
func stubChecker(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-cbmc")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestVerifyUnavailable(t *testing.T) {
	r := NewRunnerWithBinary("", DefaultConfig())
	res := r.Verify(context.Background(), "int main() { return 0; }", "")
	if res.Status != StatusUnavailable {
		t.Fatalf("expected UNAVAILABLE, got %s", res.Status)
	}
}

func TestVerifyPassOnExitZero(t *testing.T) {
	bin := stubChecker(t, "exit 0")
	r := NewRunnerWithBinary(bin, DefaultConfig())
	res := r.Verify(context.Background(), "int main() { return 0; }", "")
	if res.Status != StatusPass {
		t.Fatalf("expected PASS, got %s", res.Status)
	}
	if len(res.Violations) != 0 {
		t.Fatalf("expected no violations, got %d", len(res.Violations))
	}
}

func TestVerifyFailParsesViolations(t *testing.T) {
	bin := stubChecker(t, `cat <<'EOF'
[{"messageType":"ERROR","messageText":"division by zero in x / y","property":"division-by-zero","sourceLocation":{"file":"main.c","line":"7","function":"compute"}}]
EOF
exit 10`)
	r := NewRunnerWithBinary(bin, DefaultConfig())
	res := r.Verify(context.Background(), "int main() { return 1/0; }", "")
	if res.Status != StatusFail {
		t.Fatalf("expected FAIL, got %s", res.Status)
	}
	if len(res.Violations) != 1 {
		t.Fatalf("expected 1 violation, got %d", len(res.Violations))
	}
	v := res.Violations[0]
	if v.Kind != "division-by-zero" || v.Line != 7 || v.Function != "compute" {
		t.Fatalf("violation not parsed: %+v", v)
	}
}

func TestVerifyParseErrorOnOtherExitCode(t *testing.T) {
	bin := stubChecker(t, "exit 6")
	r := NewRunnerWithBinary(bin, DefaultConfig())
	res := r.Verify(context.Background(), "not c at all", "")
	if res.Status != StatusParseError {
		t.Fatalf("expected PARSE_ERROR, got %s", res.Status)
	}
}

func TestVerifyTimeoutDistinct(t *testing.T) {
	bin := stubChecker(t, "sleep 5")
	cfg := DefaultConfig()
	cfg.Timeout = 100 * time.Millisecond
	r := NewRunnerWithBinary(bin, cfg)

	res := r.Verify(context.Background(), "int main() { for(;;); }", "")
	if res.Status != StatusTimeout {
		t.Fatalf("expected TIMEOUT, got %s", res.Status)
	}
	if res.Status == StatusPass || res.Status == StatusFail {
		t.Fatal("timeout must never read as a verdict")
	}
}

func TestParseViolationsTextFallback(t *testing.T) {
	out := "** Results:\n[main.assertion.1] line 3 assertion x > 0: FAILURE\nVERIFICATION FAILED\n"
	violations := ParseViolations(out)
	if len(violations) != 1 {
		t.Fatalf("expected 1 violation from text fallback, got %d", len(violations))
	}
	if violations[0].Kind != "unknown" {
		t.Fatalf("expected unknown kind, got %s", violations[0].Kind)
	}
}

func TestParseViolationsSkipsNonErrors(t *testing.T) {
	out := `[{"messageType":"STATUS-MESSAGE","messageText":"Parsing main.c"},{"messageType":"ERROR","messageText":"bad deref","property":"pointer-check","sourceLocation":{"file":"main.c","line":"12","function":"main"}}]`
	violations := ParseViolations(out)
	if len(violations) != 1 {
		t.Fatalf("expected 1 violation, got %d", len(violations))
	}
	if violations[0].Line != 12 {
		t.Fatalf("expected line 12, got %d", violations[0].Line)
	}
}
