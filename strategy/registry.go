package strategy

import (
	"fmt"
	"strings"
)

// Noop never trades. Backtests of it must end flat with zero drawdown.
type Noop struct{}

func (Noop) Name() string { return "noop" }

func (Noop) Decide(v View, st State) (Decision, State) {
	_ = v
	return Decision{}, st
}

// ByName builds a decider for the backtest and optimize commands.
func ByName(name string, p Params) (Decider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "amazing31", "amazing3.1":
		e, err := NewEngine(p)
		if err != nil {
			return nil, err
		}
		return e, nil
	case "noop", "none":
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q (supported: amazing31, noop)", name)
	}
}
