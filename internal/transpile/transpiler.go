package transpile

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// #region prompt

const transpilePrompt = `You are a Python to C transpiler. Convert the following Python code to equivalent C code.

Rules:
1. Preserve the exact logic and control flow
2. Add necessary #include statements
3. Handle Python types as: int -> int, float -> double, str -> char*, list -> array
4. Add bounds checking assertions where appropriate
5. Mark each significant C line with a comment showing the original Python line number: // PY:N

Python code:
` + "```python\n%s\n```" + `

Output ONLY valid C code, no explanations:
` + "```c\n"

// #endregion prompt

// #region config

// Config holds the endpoint and model chain for translation.
type Config struct {
	Endpoint       string // generate endpoint, e.g. http://localhost:11434/api/generate
	PrimaryModel   string
	FallbackModels []string
	Timeout        time.Duration
}

// DefaultConfig returns the standard local endpoint and model chain.
func DefaultConfig() Config {
	return Config{
		Endpoint:     "http://localhost:11434/api/generate",
		PrimaryModel: "qwen2.5-coder:7b",
		FallbackModels: []string{
			"codellama:7b",
			"deepseek-coder:6.7b",
			"starcoder2:3b",
		},
		Timeout: 30 * time.Second,
	}
}

// #endregion config

// #region validator

// SyntaxValidator checks that generated C parses. ran is false when no
// compiler was available to perform the check.
type SyntaxValidator func(ctx context.Context, code string) (ok bool, detail string, ran bool)

// CompilerValidator builds a validator that tries gcc then clang with a
// syntax-only pass. When neither is installed the code is accepted
// optimistically; the caller is told the check did not run.
func CompilerValidator() SyntaxValidator {
	return func(ctx context.Context, code string) (bool, string, bool) {
		tmp, err := os.CreateTemp("", "gatewarden-syn-*.c")
		if err != nil {
			return false, fmt.Sprintf("create temp file: %v", err), true
		}
		tmpPath := tmp.Name()
		defer os.Remove(tmpPath)
		if _, err := tmp.WriteString(code); err != nil {
			tmp.Close()
			return false, fmt.Sprintf("write temp file: %v", err), true
		}
		tmp.Close()

		for _, compiler := range []string{"gcc", "clang"} {
			if _, err := exec.LookPath(compiler); err != nil {
				continue
			}
			checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			cmd := exec.CommandContext(checkCtx, compiler, "-fsyntax-only", "-x", "c", tmpPath)
			var stderr bytes.Buffer
			cmd.Stderr = &stderr
			err := cmd.Run()
			cancel()
			if err == nil {
				return true, "", true
			}
			detail := stderr.String()
			if len(detail) > 500 {
				detail = detail[:500]
			}
			return false, detail, true
		}
		return true, "no C compiler available for syntax validation", false
	}
}

// #endregion validator

// #region transpiler

// Transpiler converts source text to C through an LLM endpoint, walking a
// model preference chain and caching results by content hash.
type Transpiler struct {
	cfg      Config
	client   *http.Client
	validate SyntaxValidator

	mu    sync.Mutex
	cache map[string]Result
}

// NewTranspiler creates a transpiler with the compiler-backed validator.
func NewTranspiler(cfg Config) *Transpiler {
	return NewTranspilerWithValidator(cfg, CompilerValidator())
}

// NewTranspilerWithValidator creates a transpiler with an injected syntax
// validator. Used for testing without a host compiler.
func NewTranspilerWithValidator(cfg Config, validate SyntaxValidator) *Transpiler {
	return &Transpiler{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.Timeout},
		validate: validate,
		cache:    make(map[string]Result),
	}
}

// #endregion transpiler

// #region available

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Available probes the endpoint's model-listing route.
func (t *Transpiler) Available(ctx context.Context) (bool, string) {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	url := strings.Replace(t.cfg.Endpoint, "/api/generate", "/api/tags", 1)
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
	if err != nil {
		return false, err.Error()
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return false, err.Error()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Sprintf("HTTP %d", resp.StatusCode)
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false, fmt.Sprintf("decode tags: %v", err)
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	if len(names) > 5 {
		names = names[:5]
	}
	return true, fmt.Sprintf("available models: %s", strings.Join(names, ", "))
}

// #endregion available

// #region transpile

// Transpile converts source to C. Models are tried in preference order;
// model-specific failures move on to the next model, while a globally
// unreachable endpoint short-circuits the chain. Repeated calls with
// identical source are served from the content-hash cache.
func (t *Transpiler) Transpile(ctx context.Context, source string) Result {
	start := time.Now()

	sum := sha256.Sum256([]byte(source))
	key := hex.EncodeToString(sum[:])

	t.mu.Lock()
	if cached, ok := t.cache[key]; ok {
		t.mu.Unlock()
		return cached
	}
	t.mu.Unlock()

	models := append([]string{t.cfg.PrimaryModel}, t.cfg.FallbackModels...)
	for _, model := range models {
		res, fatal := t.tryModel(ctx, model, source, start)
		if res.Status == StatusSuccess {
			t.mu.Lock()
			t.cache[key] = res
			t.mu.Unlock()
			return res
		}
		if fatal {
			return res
		}
		log.Printf("[TRANSPILE] model %s failed (%s), trying next", model, res.Status)
	}

	return Result{
		Status:       StatusInvalidOutput,
		LineMap:      map[int]int{},
		ModelUsed:    "none",
		Elapsed:      time.Since(start),
		ErrorMessage: "all models failed to produce valid C code",
	}
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// tryModel attempts one model. fatal reports that the endpoint itself is
// unreachable and the remaining chain should be abandoned.
func (t *Transpiler) tryModel(ctx context.Context, model, source string, start time.Time) (Result, bool) {
	body, err := json.Marshal(generateRequest{
		Model:  model,
		Prompt: fmt.Sprintf(transpilePrompt, source),
		Stream: false,
		Options: generateOptions{
			Temperature: 0.1, // low temperature for determinism
			NumPredict:  2000,
		},
	})
	if err != nil {
		return t.failure(StatusLLMUnavailable, model, start, err.Error()), true
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return t.failure(StatusLLMUnavailable, model, start, err.Error()), true
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded || isTimeout(err) {
			// A timed-out model may simply be too slow; the next one gets
			// its chance.
			return t.failure(StatusTimeout, model, start,
				fmt.Sprintf("timeout after %s", t.cfg.Timeout)), false
		}
		// Transport-level failure: the endpoint is down for every model.
		return t.failure(StatusLLMUnavailable, model, start, err.Error()), true
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Model-specific rejection (e.g. model not pulled); keep walking
		// the chain.
		return t.failure(StatusLLMUnavailable, model, start,
			fmt.Sprintf("HTTP %d", resp.StatusCode)), false
	}

	var gen generateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&gen); err != nil {
		return t.failure(StatusInvalidOutput, model, start,
			fmt.Sprintf("decode response: %v", err)), false
	}

	code := ExtractCode(gen.Response)
	if code == "" {
		return t.failure(StatusInvalidOutput, model, start,
			"no valid C code in model output"), false
	}

	ok, detail, ran := t.validate(ctx, code)
	if ran && !ok {
		res := t.failure(StatusCompilationError, model, start, detail)
		res.Code = code
		return res, false
	}
	if !ran {
		log.Printf("[TRANSPILE] %s", detail)
	}

	return Result{
		Status:    StatusSuccess,
		Code:      code,
		LineMap:   ExtractLineMap(code),
		ModelUsed: model,
		Elapsed:   time.Since(start),
	}, false
}

func (t *Transpiler) failure(status Status, model string, start time.Time, msg string) Result {
	return Result{
		Status:       status,
		LineMap:      map[int]int{},
		ModelUsed:    model,
		Elapsed:      time.Since(start),
		ErrorMessage: msg,
	}
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	for e := err; e != nil; {
		if t, ok := e.(timeouter); ok && t.Timeout() {
			return true
		}
		type unwrapper interface{ Unwrap() error }
		u, ok := e.(unwrapper)
		if !ok {
			return false
		}
		e = u.Unwrap()
	}
	return false
}

// #endregion transpile

// #region extraction

var (
	fencedBlockRe = regexp.MustCompile("(?s)```c?\n(.*?)```")
	cStartRe      = regexp.MustCompile(`^(#include|int |void |char |double |float |struct |if |for |while |return )`)
	lineMarkerRe  = regexp.MustCompile(`//\s*PY:(\d+)`)
)

// ExtractCode pulls translated C out of model output: a fenced code block
// when present, otherwise everything from the first line that looks like C.
func ExtractCode(raw string) string {
	if m := fencedBlockRe.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}

	var cLines []string
	inCode := false
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		if cStartRe.MatchString(line) {
			inCode = true
		}
		if inCode {
			cLines = append(cLines, line)
		}
	}
	return strings.TrimSpace(strings.Join(cLines, "\n"))
}

// ExtractLineMap reads // PY:N markers and maps translated line numbers to
// original line numbers. Lines without a marker stay unmapped.
func ExtractLineMap(code string) map[int]int {
	lineMap := make(map[int]int)
	for i, line := range strings.Split(code, "\n") {
		if m := lineMarkerRe.FindStringSubmatch(line); m != nil {
			orig, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			lineMap[i+1] = orig
		}
	}
	return lineMap
}

// #endregion extraction
