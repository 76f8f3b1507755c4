package trust

import "time"

// #region constants

// EWMA decay factors. High-risk contexts react faster to new outcomes;
// low-risk contexts tolerate minor variance.
const (
	LambdaHighRisk = 0.94
	LambdaLowRisk  = 0.97
)

// Transitive trust parameters: trust degrades per extra hop and evaporates
// entirely beyond MaxHops.
const (
	DampingFactor = 0.5
	MaxHops       = 3
)

// Temporal decay: inactive agents drift toward the neutral baseline at
// DecayPer30Days per 30 days of inactivity.
const (
	DecayBaseline  = 0.4
	DecayPer30Days = 0.01
)

// Micro-penalty parameters. Penalties are felt more strongly than
// equivalent gains (loss aversion), and the running daily sum is capped so
// a burst of findings cannot zero an agent in one day.
const (
	LossAversionMultiplier = 2.0
	DailyPenaltyCap        = 0.15
)

// Probation protects new agents from hostile first impressions.
const (
	probationFloor    = 0.40
	probationMaxAge   = 7 * 24 * time.Hour
	probationMinCount = 10
)

// #endregion constants

// #region context

// Context selects the risk-sensitive update rate.
type Context string

const (
	LowRisk  Context = "LOW_RISK"
	HighRisk Context = "HIGH_RISK"
)

// Lambda returns the EWMA decay factor for a risk context.
func Lambda(c Context) float64 {
	if c == HighRisk {
		return LambdaHighRisk
	}
	return LambdaLowRisk
}

// #endregion context

// #region ewma

// EWMAUpdate folds a new outcome into the current trust score:
// new = λ·current + (1−λ)·outcome. The result is clamped to [0, 1].
func EWMAUpdate(current, outcome float64, c Context) float64 {
	lam := Lambda(c)
	return clamp01(lam*current + (1-lam)*outcome)
}

// #endregion ewma

// #region temporal-decay

// TemporalDecay drifts a score toward the baseline for elapsed inactivity.
// It never overshoots the baseline, never moves on a future timestamp
// (clock-skew guard), and never moves when no time has elapsed.
func TemporalDecay(current float64, lastUpdate, now time.Time, baseline float64) float64 {
	if lastUpdate.After(now) {
		return current
	}
	daysInactive := now.Sub(lastUpdate).Hours() / 24
	if daysInactive <= 0 {
		return current
	}

	amount := daysInactive / 30 * DecayPer30Days
	switch {
	case current > baseline:
		return maxFloat(baseline, current-amount)
	case current < baseline:
		return minFloat(baseline, current+amount)
	}
	return current
}

// #endregion temporal-decay

// #region transitive

// TransitiveTrust derives trust through a chain of intermediaries: the
// product of all direct scores, damped once per hop beyond the first. An
// empty path or one longer than MaxHops yields zero.
func TransitiveTrust(path []float64) float64 {
	if len(path) == 0 || len(path) > MaxHops {
		return 0
	}
	trust := path[0]
	for _, link := range path[1:] {
		trust = trust * link * DampingFactor
	}
	return clamp01(trust)
}

// #endregion transitive

// #region micro-penalty

// PenaltyType keys the base deduction size for anti-gaming penalties.
type PenaltyType string

const (
	PenaltySchemaViolation PenaltyType = "schema_violation"
	PenaltyUnsafePattern   PenaltyType = "unsafe_pattern"
	PenaltyRetryStorm      PenaltyType = "retry_storm"
	PenaltyStyleDrift      PenaltyType = "style_drift"
)

var basePenalties = map[PenaltyType]float64{
	PenaltySchemaViolation: 0.05,
	PenaltyUnsafePattern:   0.05,
	PenaltyRetryStorm:      0.02,
	PenaltyStyleDrift:      0.01,
}

// MicroPenalty deducts a loss-aversion-amplified penalty from the score,
// trimmed so the running daily sum never exceeds DailyPenaltyCap. It
// returns the new score and the penalty actually applied, which may be
// smaller than the nominal penalty near the cap.
func MicroPenalty(current float64, p PenaltyType, dailySum float64) (newScore, applied float64) {
	nominal := basePenalties[p] * LossAversionMultiplier

	headroom := DailyPenaltyCap - dailySum
	if headroom <= 0 {
		return current, 0
	}
	applied = minFloat(nominal, headroom)
	return clamp01(current - applied), applied
}

// #endregion micro-penalty

// #region probation

// ProbationFloor is the minimum score a single EWMA update may leave a
// probationary agent at.
func ProbationFloor() float64 {
	return probationFloor
}

// InProbation reports whether an agent is still protected: young by age or
// thin on verification history.
func InProbation(createdAt, now time.Time, verificationCount int) bool {
	if now.Sub(createdAt) < probationMaxAge {
		return true
	}
	return verificationCount < probationMinCount
}

// #endregion probation

// #region stage

// Stage is the coarse trust band an agent sits in.
type Stage string

const (
	StageCalculus       Stage = "calculus"       // score < 0.3: every action weighed
	StageKnowledge      Stage = "knowledge"      // score < 0.6: predictable track record
	StageIdentification Stage = "identification" // score >= 0.6: aligned interests
)

// StageFor maps a score to its trust band.
func StageFor(score float64) Stage {
	switch {
	case score < 0.3:
		return StageCalculus
	case score < 0.6:
		return StageKnowledge
	}
	return StageIdentification
}

// #endregion stage

// #region helpers

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// #endregion helpers
