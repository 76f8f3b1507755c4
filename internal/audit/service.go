package audit

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/kestrelsec/gatewarden/internal/traffic"
	"github.com/kestrelsec/gatewarden/internal/trust"
	"github.com/kestrelsec/gatewarden/internal/verify"
)

// #region dependencies

// Verifier runs a verification strategy over submitted content.
type Verifier interface {
	ConfiguredMode() verify.Mode
	VerifyInMode(ctx context.Context, req verify.Request, mode verify.Mode) verify.Result
}

// TrustUpdater folds audit outcomes into persisted agent trust.
type TrustUpdater interface {
	ApplyVerification(agentID string, outcome float64, c trust.Context, ledgerRef string) (float64, error)
	Trust(agentID string) (float64, error)
}

// ModeReader exposes the current operating posture.
type ModeReader interface {
	Current() (traffic.Mode, error)
}

// Approvals receives failed audits for human review.
type Approvals interface {
	Enqueue(agentID, ledgerRef string) (int64, error)
}

// #endregion dependencies

// #region service

// Service is the audit entry point: admission control, posture-aware
// verification, trust update, and review queuing in one pass.
type Service struct {
	gate      *traffic.Backpressure
	modes     ModeReader
	verifier  Verifier
	trust     TrustUpdater
	approvals Approvals
}

// NewService wires the audit pipeline.
func NewService(gate *traffic.Backpressure, modes ModeReader, verifier Verifier, tr TrustUpdater, approvals Approvals) *Service {
	return &Service{
		gate:      gate,
		modes:     modes,
		verifier:  verifier,
		trust:     tr,
		approvals: approvals,
	}
}

// Outcome is the full audit record returned to the caller.
type Outcome struct {
	LedgerRef       string        `json:"ledger_ref"`
	SystemMode      traffic.Mode  `json:"system_mode"`
	Result          verify.Result `json:"result"`
	TrustScore      float64       `json:"trust_score"`
	TrustUpdated    bool          `json:"trust_updated"`
	QueuedForReview bool          `json:"queued_for_review,omitempty"`
}

// #endregion service

// #region audit

// Audit verifies one submission for one agent. It returns
// traffic.ErrOverloaded when admission is refused. A trust persistence
// failure is logged but never hides the verdict from the caller.
func (s *Service) Audit(ctx context.Context, agentID string, req verify.Request) (Outcome, error) {
	if agentID == "" {
		return Outcome{}, fmt.Errorf("empty agent id")
	}
	if err := s.gate.Acquire(); err != nil {
		return Outcome{}, err
	}
	defer s.gate.Release()

	systemMode, err := s.modes.Current()
	if err != nil {
		// Posture unknown: assume the worst and audit at full strictness.
		log.Printf("[AUDIT] mode read failed, assuming SAFE: %v", err)
		systemMode = traffic.ModeSafe
	}

	// SAFE posture overrides configuration: strictest strategy, fast trust
	// reaction.
	verifyMode := s.verifier.ConfiguredMode()
	riskCtx := trust.LowRisk
	if systemMode == traffic.ModeSafe {
		verifyMode = verify.ModeFull
		riskCtx = trust.HighRisk
	}

	ledgerRef := uuid.NewString()
	res := s.verifier.VerifyInMode(ctx, req, verifyMode)

	out := Outcome{
		LedgerRef:  ledgerRef,
		SystemMode: systemMode,
		Result:     res,
	}

	outcome, update := trustOutcome(res)
	if update {
		score, err := s.trust.ApplyVerification(agentID, outcome, riskCtx, ledgerRef)
		if err != nil {
			log.Printf("[AUDIT] trust update failed for %s: %v", agentID, err)
		} else {
			out.TrustScore = score
			out.TrustUpdated = true
		}
	}
	if !out.TrustUpdated {
		if score, err := s.trust.Trust(agentID); err == nil {
			out.TrustScore = score
		}
	}

	if res.Status == verify.StatusFail && s.approvals != nil {
		if _, err := s.approvals.Enqueue(agentID, ledgerRef); err != nil {
			log.Printf("[AUDIT] review enqueue failed for %s: %v", ledgerRef, err)
		} else {
			out.QueuedForReview = true
		}
	}

	log.Printf("[AUDIT] %s agent=%s mode=%s verdict=%s", ledgerRef, agentID, systemMode, res.Status)
	return out, nil
}

// trustOutcome maps a verdict to an EWMA outcome. Inconclusive audits never
// move trust in either direction.
func trustOutcome(res verify.Result) (float64, bool) {
	switch res.Status {
	case verify.StatusPass:
		return 1.0, true
	case verify.StatusFail:
		return 0.0, true
	case verify.StatusLiteOnly:
		if len(res.Violations) > 0 {
			return 0.0, true
		}
		return 0, false
	default:
		return 0, false
	}
}

// #endregion audit
