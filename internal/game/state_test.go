package game

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lox/holdem3cfr/poker"
)

func newTestState(t *testing.T) *State {
	t.Helper()
	return NewState(
		WithBlinds(0.5, 1.0),
		WithStartingStack(100),
		WithRNG(rand.New(rand.NewSource(1))),
	)
}

func TestImmediateFoldWinsBlinds(t *testing.T) {
	s := newTestState(t)
	require.NoError(t, s.DealHoleCards())

	require.Equal(t, BTN, s.CurrentActor)
	require.NoError(t, s.Apply(FoldAction()))
	require.Equal(t, SB, s.CurrentActor)
	require.NoError(t, s.Apply(FoldAction()))

	require.True(t, s.IsTerminal())
	payoffs, err := s.Payoffs()
	require.NoError(t, err)

	require.InDelta(t, -0.5, payoffs[SB], 1e-9)
	require.InDelta(t, 0.5, payoffs[BB], 1e-9)
	require.InDelta(t, 0.0, payoffs[BTN], 1e-9)

	sum := payoffs[SB] + payoffs[BB] + payoffs[BTN]
	require.InDelta(t, 0.0, sum, 1e-9)
}

func TestLimpCheckDownToRiver(t *testing.T) {
	s := newTestState(t)
	require.NoError(t, s.DealHoleCards())

	// Preflop: BTN calls 1, SB calls 1 (completing to 1), BB checks.
	require.Equal(t, BTN, s.CurrentActor)
	require.NoError(t, s.Apply(CallAction(1.0)))
	require.Equal(t, SB, s.CurrentActor)
	require.NoError(t, s.Apply(CallAction(0.5)))
	require.Equal(t, BB, s.CurrentActor)
	require.NoError(t, s.Apply(CheckAction()))

	require.Equal(t, Flop, s.Round)
	require.Equal(t, SB, s.CurrentActor)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Apply(CheckAction()))
	}
	require.Equal(t, Turn, s.Round)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Apply(CheckAction()))
	}
	require.Equal(t, River, s.Round)
	for i := 0; i < 2; i++ {
		require.NoError(t, s.Apply(CheckAction()))
	}
	require.False(t, s.IsTerminal())
	require.NoError(t, s.Apply(CheckAction()))

	require.True(t, s.IsTerminal())
	payoffs, err := s.Payoffs()
	require.NoError(t, err)

	sum := payoffs[SB] + payoffs[BB] + payoffs[BTN]
	require.InDelta(t, 0.0, sum, 1e-9)
}

func TestLegalActionsNonEmptyAndApplicable(t *testing.T) {
	s := newTestState(t)
	require.NoError(t, s.DealHoleCards())

	steps := 0
	for !s.IsTerminal() && steps < 200 {
		legal := s.LegalActions()
		require.NotEmpty(t, legal)

		hasFoldOrCheck := false
		hasAggressive := false
		for _, a := range legal {
			if a.Kind == Fold || a.Kind == Check {
				hasFoldOrCheck = true
			}
			if a.Kind == Bet || a.Kind == Raise {
				hasAggressive = true
			}
		}
		require.True(t, hasFoldOrCheck)

		actor := &s.Players[s.CurrentActor]
		if actor.Stack > 0 {
			require.True(t, hasAggressive)
		}

		// Always apply the first (least committal) legal action to keep the
		// hand progressing deterministically toward a terminal state.
		clone := s.Clone()
		require.NoError(t, clone.Apply(legal[0]))
		s = clone
		steps++
	}

	require.True(t, s.IsTerminal())
	payoffs, err := s.Payoffs()
	require.NoError(t, err)
	sum := 0.0
	for _, v := range payoffs {
		sum += v
	}
	require.InDelta(t, 0.0, sum, 1e-6)
}

func TestPayoffsBeforeTerminalErrors(t *testing.T) {
	s := newTestState(t)
	require.NoError(t, s.DealHoleCards())
	_, err := s.Payoffs()
	require.ErrorIs(t, err, ErrNotTerminal)
}

func TestApplyIllegalActionErrors(t *testing.T) {
	s := newTestState(t)
	require.NoError(t, s.DealHoleCards())
	// BTN faces a bet (the big blind), so CHECK is illegal.
	err := s.Apply(CheckAction())
	require.ErrorIs(t, err, ErrIllegalAction)
}

func TestCloneIsIndependent(t *testing.T) {
	s := newTestState(t)
	require.NoError(t, s.DealHoleCards())

	clone := s.Clone()
	require.NoError(t, clone.Apply(FoldAction()))

	require.Equal(t, BTN, s.CurrentActor, "original state must be unaffected by mutating the clone")
	require.NotEqual(t, s.CurrentActor, clone.CurrentActor)
}

func TestAllInRunsOutBoardToRiver(t *testing.T) {
	s := NewState(
		WithBlinds(0.5, 1.0),
		WithStartingStack(5),
		WithRNG(rand.New(rand.NewSource(7))),
	)
	require.NoError(t, s.DealHoleCards())

	// BTN shoves all-in over the big blind, SB calls all-in, BB calls all-in.
	btnStack := s.Players[BTN].Stack
	require.NoError(t, s.Apply(RaiseAction(btnStack)))
	sbToCall := s.Players[BTN].CurrentBet - s.Players[SB].CurrentBet
	require.NoError(t, s.Apply(CallAction(sbToCall)))
	bbToCall := s.Players[BTN].CurrentBet - s.Players[BB].CurrentBet
	require.NoError(t, s.Apply(CallAction(bbToCall)))

	require.True(t, s.IsTerminal())
	require.Equal(t, 5, s.Board.CountCards())

	payoffs, err := s.Payoffs()
	require.NoError(t, err)
	sum := payoffs[SB] + payoffs[BB] + payoffs[BTN]
	require.InDelta(t, 0.0, sum, 1e-9)
}

func TestBucketableHoleCardsDealt(t *testing.T) {
	s := newTestState(t)
	require.NoError(t, s.DealHoleCards())

	seen := poker.Hand(0)
	for i := range s.Players {
		require.Equal(t, 2, s.Players[i].Hole.CountCards())
		require.Zero(t, seen&s.Players[i].Hole, "hole cards must not overlap across seats")
		seen |= s.Players[i].Hole
	}
}

func TestShortStackFacingBetExceedingStackMustFold(t *testing.T) {
	s := newTestState(t)
	// BB enters this hand already short, as if it had committed the rest
	// of its stack in an earlier round, and now faces a raise it cannot
	// cover in full.
	s.Players[BB].Stack = 3
	require.NoError(t, s.DealHoleCards())

	require.Equal(t, BTN, s.CurrentActor)
	require.NoError(t, s.Apply(RaiseAction(50)))
	require.Equal(t, SB, s.CurrentActor)
	require.NoError(t, s.Apply(FoldAction()))
	require.Equal(t, BB, s.CurrentActor)

	legal := s.LegalActions()
	require.Len(t, legal, 1)
	require.Equal(t, Fold, legal[0].Kind)

	// The old short-call fallback is gone: a call for anything less than
	// the full amount owed is illegal, not silently accepted.
	err := s.Apply(CallAction(3))
	require.ErrorIs(t, err, ErrIllegalAction)

	require.NoError(t, s.Apply(FoldAction()))
	require.True(t, s.IsTerminal())
}

func TestSidePotsSplitWhenShortStackAllInBets(t *testing.T) {
	s := newTestState(t)
	// BTN enters short, as if it had already lost most of its stack in an
	// earlier hand, and shoves preflop for less than SB and BB hold.
	s.Players[BTN].Stack = 10

	require.Equal(t, BTN, s.CurrentActor)
	require.NoError(t, s.Apply(RaiseAction(10)))
	require.Equal(t, SB, s.CurrentActor)
	require.NoError(t, s.Apply(CallAction(9.5)))
	require.Equal(t, BB, s.CurrentActor)
	require.NoError(t, s.Apply(CallAction(9)))
	require.True(t, s.Players[BTN].AllIn)

	// BTN is capped out; SB and BB keep betting between themselves on the
	// flop, building a side pot BTN has no claim on.
	require.Equal(t, Flop, s.Round)
	require.Equal(t, SB, s.CurrentActor)
	require.NoError(t, s.Apply(BetAction(20)))
	require.Equal(t, BB, s.CurrentActor)
	require.NoError(t, s.Apply(CallAction(20)))

	require.Equal(t, Turn, s.Round)
	for i := 0; i < 2; i++ {
		require.NoError(t, s.Apply(CheckAction()))
	}
	require.Equal(t, River, s.Round)
	for i := 0; i < 2; i++ {
		require.NoError(t, s.Apply(CheckAction()))
	}
	require.True(t, s.IsTerminal())

	require.InDelta(t, 10.0, s.Players[BTN].TotalBet, 1e-9)
	require.InDelta(t, 30.0, s.Players[SB].TotalBet, 1e-9)
	require.InDelta(t, 30.0, s.Players[BB].TotalBet, 1e-9)

	// Fix the showdown so BTN's four aces take the main pot outright while
	// SB's two pair beats BB's for the side pot it alone is eligible for.
	s.Players[BTN].Hole = poker.NewHand(poker.NewCard(poker.Ace, poker.Spades), poker.NewCard(poker.Ace, poker.Hearts))
	s.Players[SB].Hole = poker.NewHand(poker.NewCard(poker.King, poker.Spades), poker.NewCard(poker.King, poker.Hearts))
	s.Players[BB].Hole = poker.NewHand(poker.NewCard(poker.Queen, poker.Spades), poker.NewCard(poker.Queen, poker.Hearts))
	s.Board = poker.NewHand(
		poker.NewCard(poker.Ace, poker.Clubs),
		poker.NewCard(poker.Ace, poker.Diamonds),
		poker.NewCard(poker.Two, poker.Clubs),
		poker.NewCard(poker.Three, poker.Diamonds),
		poker.NewCard(poker.Four, poker.Hearts),
	)

	pots := s.sidePots()
	require.Len(t, pots, 2)
	require.InDelta(t, 30.0, pots[0].amount, 1e-9)
	require.ElementsMatch(t, []Position{SB, BB, BTN}, pots[0].eligible)
	require.InDelta(t, 40.0, pots[1].amount, 1e-9)
	require.ElementsMatch(t, []Position{SB, BB}, pots[1].eligible)

	payoffs, err := s.Payoffs()
	require.NoError(t, err)
	require.InDelta(t, 20.0, payoffs[BTN], 1e-9)
	require.InDelta(t, 10.0, payoffs[SB], 1e-9)
	require.InDelta(t, -30.0, payoffs[BB], 1e-9)

	sum := payoffs[SB] + payoffs[BB] + payoffs[BTN]
	require.InDelta(t, 0.0, sum, 1e-9)
}
