package abstraction

import (
	"math"
	"sort"

	"github.com/lox/holdem3cfr/internal/game"
)

// BetAbstraction collapses continuous bet/raise amounts to a small set
// of pot- or blind-relative multipliers.
type BetAbstraction struct {
	level    Level
	bigBlind float64
}

// NewBetAbstraction returns an abstraction that sizes preflop bets
// relative to bigBlind and postflop bets relative to the current pot.
func NewBetAbstraction(level Level, bigBlind float64) *BetAbstraction {
	return &BetAbstraction{level: level, bigBlind: bigBlind}
}

// AbstractActions maps the legal action set to its abstracted
// counterpart. Fold/check/call pass through unchanged; every bet or
// raise in legal is replaced by the active multiplier ladder, clipped
// to [minRaise, stack], de-duplicated, and, for raises, filtered to
// amounts that strictly exceed the call amount.
func (b *BetAbstraction) AbstractActions(legal []game.Action, pot, stack, toCall, minRaise float64, round game.Round) []game.Action {
	out := make([]game.Action, 0, len(legal))

	var aggressiveKind game.ActionKind
	haveAggressive := false
	for _, a := range legal {
		switch a.Kind {
		case game.Fold, game.Check, game.Call:
			out = append(out, a)
		case game.Bet, game.Raise:
			if !haveAggressive {
				aggressiveKind = a.Kind
				haveAggressive = true
			}
		}
	}
	if !haveAggressive {
		return out
	}

	candidates := b.candidateAmounts(pot, stack, round)

	seen := make(map[float64]bool)
	for _, amount := range candidates {
		clipped := clip(amount, minRaise, stack)
		if aggressiveKind == game.Raise && clipped <= toCall+1e-9 {
			continue
		}
		if seen[clipped] {
			continue
		}
		seen[clipped] = true
		out = append(out, game.Action{Kind: aggressiveKind, Amount: clipped})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Amount < out[j].Amount
	})
	return out
}

// AbstractSingle snaps one raw action to its closest abstracted
// counterpart using an L1 distance on amount. Fold/check/call pass
// through unchanged.
func (b *BetAbstraction) AbstractSingle(action game.Action, pot, stack, toCall, minRaise float64, round game.Round) game.Action {
	if action.Kind != game.Bet && action.Kind != game.Raise {
		return action
	}

	candidates := b.candidateAmounts(pot, stack, round)
	best := clip(candidates[0], minRaise, stack)
	bestDist := math.Abs(best - action.Amount)
	for _, amount := range candidates[1:] {
		clipped := clip(amount, minRaise, stack)
		dist := math.Abs(clipped - action.Amount)
		if dist < bestDist {
			best = clipped
			bestDist = dist
		}
	}
	return game.Action{Kind: action.Kind, Amount: best}
}

// candidateAmounts resolves the active multiplier ladder directly from
// (pot, stack, round), independent of any externally supplied legal
// action amounts. A multiplier of 0 is the all-in sentinel.
func (b *BetAbstraction) candidateAmounts(pot, stack float64, round game.Round) []float64 {
	set := betMultipliers[b.level]
	multipliers := set.postflop
	base := pot
	if round == game.Preflop {
		multipliers = set.preflop
		base = b.bigBlind
	}

	out := make([]float64, 0, len(multipliers))
	for _, m := range multipliers {
		if m == 0 {
			out = append(out, stack)
			continue
		}
		out = append(out, m*base)
	}
	return out
}

func clip(amount, minRaise, stack float64) float64 {
	if amount < minRaise {
		amount = minRaise
	}
	if amount > stack {
		amount = stack
	}
	return amount
}
