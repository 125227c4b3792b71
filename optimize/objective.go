package optimize

import (
	"fmt"
	"math"
	"strings"

	"github.com/i-zrhe2016/amazing-3.1/pkg/errs"
	"github.com/i-zrhe2016/amazing-3.1/window"
)

// Mode selects the feasibility predicate and the score.
type Mode string

const (
	// ModeNoBlowup: every window ran and none blew up.
	ModeNoBlowup Mode = "no_blowup"
	// ModeDrawdown: additionally no drawdown stop and the worst window
	// drawdown strictly below the limit.
	ModeDrawdown Mode = "drawdown"
	// ModeTarget is no_blowup feasibility with pass_target_years reported.
	ModeTarget Mode = "target"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeNoBlowup, "no-blowup", "":
		return ModeNoBlowup, nil
	case ModeDrawdown, "dd":
		return ModeDrawdown, nil
	case ModeTarget:
		return ModeTarget, nil
	}
	return "", errs.Param("mode", "unknown mode %q (no_blowup|drawdown|target)", s)
}

// Score weights and penalties. Infeasible scores sit below -1e9 so any
// feasible set outranks them; within them fewer violations rank higher.
const (
	infeasibleFloor = -1e9
	penaltyMissing  = 5_000_000.0
	penaltyBlowup   = 3_000_000.0
	penaltyDDHit    = 1_500_000.0
	penaltyDDExcess = 50_000.0

	noBlowupFloor   = -1e12
	noBlowupPenalty = 1e9
)

type Objective struct {
	Mode             Mode    `json:"mode"`
	DrawdownLimitPct float64 `json:"drawdown_limit_pct"`
	TargetReturnPct  float64 `json:"target_return_pct"`
}

func (o Objective) Validate() error {
	switch o.Mode {
	case ModeNoBlowup:
	case ModeDrawdown:
		if o.DrawdownLimitPct <= 0 || o.DrawdownLimitPct >= 100 {
			return errs.Param("drawdown_limit", "must be in (0, 100) in drawdown mode")
		}
	case ModeTarget:
		if o.TargetReturnPct <= 0 {
			return errs.Param("target_return", "must be positive in target mode")
		}
	default:
		return errs.Param("mode", "unknown mode %q", o.Mode)
	}
	return nil
}

// Feasible applies the mode's predicate.
func (o Objective) Feasible(a window.Aggregate) bool {
	ok := a.Missing() == 0 && a.BlowupYears == 0
	if o.Mode == ModeDrawdown {
		ok = ok && a.DrawdownLimitHitYears == 0 && a.WorstYearMaxDrawdownPct < o.DrawdownLimitPct
	}
	return ok
}

// Score ranks an aggregate; higher is better. Feasible sets score their
// summed profit nudged by the worst window and the worst drawdown.
func (o Objective) Score(a window.Aggregate) float64 {
	feasible := o.Feasible(a)
	if o.Mode == ModeDrawdown {
		if feasible {
			return a.SumNetProfit + 0.03*a.MinYearNetProfit - 0.03*a.WorstYearMaxDrawdownPct
		}
		excess := math.Max(0, a.WorstYearMaxDrawdownPct-o.DrawdownLimitPct)
		penalty := float64(a.Missing())*penaltyMissing +
			float64(a.BlowupYears)*penaltyBlowup +
			float64(a.DrawdownLimitHitYears)*penaltyDDHit +
			excess*penaltyDDExcess
		return infeasibleFloor - penalty + a.SumNetProfit
	}
	if feasible {
		return a.SumNetProfit + 0.05*a.MinYearNetProfit - 0.02*a.WorstYearMaxDrawdownPct
	}
	return noBlowupFloor - float64(a.BlowupYears+a.Missing())*noBlowupPenalty + a.SumNetProfit
}

// Describe is the human-readable objective written to result files.
func (o Objective) Describe(windows int) string {
	switch o.Mode {
	case ModeDrawdown:
		return fmt.Sprintf("maximize total net profit over %d windows with no blow-up and max drawdown < %.1f%% in every window", windows, o.DrawdownLimitPct)
	case ModeTarget:
		return fmt.Sprintf("maximize total net profit over %d windows with no blow-up; report windows returning >= %.1f%%", windows, o.TargetReturnPct)
	default:
		return fmt.Sprintf("maximize total net profit over %d windows with no blow-up", windows)
	}
}
