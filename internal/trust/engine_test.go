package trust

import (
	"math"
	"testing"
	"time"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-4
}

func TestEWMAHighRiskExact(t *testing.T) {
	got := EWMAUpdate(0.5, 1.0, HighRisk)
	// 0.5*0.94 + 1.0*0.06 = 0.53
	if !almostEqual(got, 0.53) {
		t.Fatalf("expected 0.53, got %f", got)
	}
}

func TestEWMALowRiskSlower(t *testing.T) {
	high := EWMAUpdate(0.5, 1.0, HighRisk)
	low := EWMAUpdate(0.5, 1.0, LowRisk)
	if low >= high {
		t.Fatalf("low-risk update should move slower: low=%f high=%f", low, high)
	}
}

func TestEWMAStaysWithinBounds(t *testing.T) {
	scores := []float64{0, 0.25, 0.5, 0.75, 1}
	outcomes := []float64{0, 0.3, 0.7, 1}
	for _, s := range scores {
		for _, o := range outcomes {
			for _, c := range []Context{LowRisk, HighRisk} {
				got := EWMAUpdate(s, o, c)
				lo, hi := math.Min(s, o), math.Max(s, o)
				if got < lo-1e-12 || got > hi+1e-12 {
					t.Fatalf("ewma(%f, %f, %s)=%f outside [%f, %f]", s, o, c, got, lo, hi)
				}
			}
		}
	}
}

func TestEWMAFixedPoint(t *testing.T) {
	for _, s := range []float64{0, 0.4, 1} {
		if got := EWMAUpdate(s, s, HighRisk); !almostEqual(got, s) {
			t.Fatalf("ewma(%f, %f) should be %f, got %f", s, s, s, got)
		}
	}
}

func TestTemporalDecayDriftsDown(t *testing.T) {
	now := time.Now()
	// 30 days inactive: exactly one decay step toward the baseline.
	got := TemporalDecay(0.9, now.Add(-30*24*time.Hour), now, DecayBaseline)
	if !almostEqual(got, 0.89) {
		t.Fatalf("expected 0.89, got %f", got)
	}
}

func TestTemporalDecayDriftsUp(t *testing.T) {
	now := time.Now()
	got := TemporalDecay(0.1, now.Add(-30*24*time.Hour), now, DecayBaseline)
	if !almostEqual(got, 0.11) {
		t.Fatalf("expected 0.11, got %f", got)
	}
}

func TestTemporalDecayNeverOvershootsBaseline(t *testing.T) {
	now := time.Now()
	// Huge inactivity: clamps at the baseline from both sides.
	ages := now.Add(-10 * 365 * 24 * time.Hour)
	if got := TemporalDecay(0.9, ages, now, DecayBaseline); got != DecayBaseline {
		t.Fatalf("expected baseline, got %f", got)
	}
	if got := TemporalDecay(0.1, ages, now, DecayBaseline); got != DecayBaseline {
		t.Fatalf("expected baseline, got %f", got)
	}
}

func TestTemporalDecayClockSkewGuard(t *testing.T) {
	now := time.Now()
	if got := TemporalDecay(0.9, now.Add(time.Hour), now, DecayBaseline); got != 0.9 {
		t.Fatalf("future timestamp must not move the score, got %f", got)
	}
	if got := TemporalDecay(0.9, now, now, DecayBaseline); got != 0.9 {
		t.Fatalf("zero elapsed time must not move the score, got %f", got)
	}
}

func TestTransitiveTrustTwoHops(t *testing.T) {
	got := TransitiveTrust([]float64{0.9, 0.9})
	// 0.9 * 0.9 * 0.5 = 0.405
	if !almostEqual(got, 0.405) {
		t.Fatalf("expected 0.405, got %f", got)
	}
}

func TestTransitiveTrustEdges(t *testing.T) {
	if got := TransitiveTrust(nil); got != 0 {
		t.Fatalf("empty path must yield 0, got %f", got)
	}
	if got := TransitiveTrust([]float64{0.9, 0.9, 0.9, 0.9}); got != 0 {
		t.Fatalf("path beyond max hops must yield 0, got %f", got)
	}
	if got := TransitiveTrust([]float64{0.8}); !almostEqual(got, 0.8) {
		t.Fatalf("single hop is undamped, got %f", got)
	}
}

func TestMicroPenaltyLossAversion(t *testing.T) {
	newScore, applied := MicroPenalty(1.0, PenaltySchemaViolation, 0)
	// base 0.05 * multiplier 2.0 = 0.10
	if !almostEqual(applied, 0.10) {
		t.Fatalf("expected applied 0.10, got %f", applied)
	}
	if !almostEqual(newScore, 0.90) {
		t.Fatalf("expected score 0.90, got %f", newScore)
	}
}

func TestMicroPenaltyDailyCap(t *testing.T) {
	// 0.12 already spent today; only 0.03 of headroom remains.
	newScore, applied := MicroPenalty(0.8, PenaltySchemaViolation, 0.12)
	if !almostEqual(applied, 0.03) {
		t.Fatalf("expected trimmed penalty 0.03, got %f", applied)
	}
	if !almostEqual(newScore, 0.77) {
		t.Fatalf("expected score 0.77, got %f", newScore)
	}

	// Cap exhausted: no further penalty today.
	newScore, applied = MicroPenalty(0.8, PenaltyUnsafePattern, DailyPenaltyCap)
	if applied != 0 || newScore != 0.8 {
		t.Fatalf("exhausted cap must apply nothing, got score=%f applied=%f", newScore, applied)
	}
}

func TestMicroPenaltyNeverBelowZero(t *testing.T) {
	newScore, _ := MicroPenalty(0.05, PenaltySchemaViolation, 0)
	if newScore < 0 {
		t.Fatalf("score clamped at 0, got %f", newScore)
	}
}

func TestProbation(t *testing.T) {
	now := time.Now()
	if !InProbation(now.Add(-24*time.Hour), now, 100) {
		t.Fatal("day-old agent must be in probation regardless of count")
	}
	if !InProbation(now.Add(-30*24*time.Hour), now, 3) {
		t.Fatal("thin history must keep an agent in probation")
	}
	if InProbation(now.Add(-30*24*time.Hour), now, 50) {
		t.Fatal("seasoned agent must be out of probation")
	}
	if ProbationFloor() != 0.40 {
		t.Fatalf("unexpected probation floor %f", ProbationFloor())
	}
}

func TestStageBands(t *testing.T) {
	cases := []struct {
		score float64
		want  Stage
	}{
		{0.1, StageCalculus},
		{0.3, StageKnowledge},
		{0.59, StageKnowledge},
		{0.6, StageIdentification},
		{0.95, StageIdentification},
	}
	for _, c := range cases {
		if got := StageFor(c.score); got != c.want {
			t.Fatalf("stage(%f)=%s, want %s", c.score, got, c.want)
		}
	}
}
