package game

import (
	"math/rand"

	"github.com/lox/holdem3cfr/poker"
)

// PlayerState is one seat's per-hand state.
type PlayerState struct {
	Stack      float64
	CurrentBet float64
	TotalBet   float64
	Folded     bool
	AllIn      bool
	Hole       poker.Hand
}

func (p *PlayerState) active() bool {
	return !p.Folded && !p.AllIn
}

// config collects the functional options for State construction.
type config struct {
	startingStack float64
	smallBlind    float64
	bigBlind      float64
	deck          *poker.Deck
	rng           *rand.Rand
}

// Option configures a new State.
type Option func(*config)

// WithStartingStack sets every seat's starting stack.
func WithStartingStack(stack float64) Option {
	return func(c *config) { c.startingStack = stack }
}

// WithBlinds sets the small and big blind amounts.
func WithBlinds(sb, bb float64) Option {
	return func(c *config) { c.smallBlind, c.bigBlind = sb, bb }
}

// WithDeck injects a pre-built deck, for deterministic testing.
func WithDeck(d *poker.Deck) Option {
	return func(c *config) { c.deck = d }
}

// WithRNG injects the RNG used to build a fresh deck when none is given.
func WithRNG(rng *rand.Rand) Option {
	return func(c *config) { c.rng = rng }
}

// State is the opaque game state the CFR solver drives through C1's
// interface. Every betting-relevant field is exported for the
// abstraction and info-set layers to read; mutation happens only through
// the operations below.
type State struct {
	Players       [NumPlayers]PlayerState
	Board         poker.Hand
	Round         Round
	Pot           float64
	CurrentActor  Position
	LastAggressor int // -1 means no aggressor yet this round
	History       []HistoryEntry

	deck     *poker.Deck
	cfg      config
	highBet  float64
	minRaise float64
	acted    [NumPlayers]bool
}

// NewState constructs a fresh, unreset state with default options
// (100bb starting stacks, 0.5/1.0 blinds, a deck shuffled by an RNG
// seeded from the global math/rand source).
func NewState(opts ...Option) *State {
	cfg := config{
		startingStack: 100,
		smallBlind:    0.5,
		bigBlind:      1.0,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.rng == nil {
		cfg.rng = rand.New(rand.NewSource(rand.Int63()))
	}
	if cfg.deck == nil {
		cfg.deck = poker.NewDeck(cfg.rng)
	}

	s := &State{cfg: cfg, deck: cfg.deck}
	s.Reset()
	return s
}

// Reset returns the state to a fresh hand with blinds posted. The first
// actor is BTN, since SB and BB have already posted forced bets and,
// three-handed, BTN is next to act preflop.
func (s *State) Reset() {
	for i := range s.Players {
		s.Players[i] = PlayerState{Stack: s.cfg.startingStack}
	}
	s.Board = 0
	s.Round = Preflop
	s.History = s.History[:0]
	s.LastAggressor = -1
	s.acted = [NumPlayers]bool{}

	s.postBlind(SB, s.cfg.smallBlind)
	s.postBlind(BB, s.cfg.bigBlind)

	s.Pot = s.Players[SB].CurrentBet + s.Players[BB].CurrentBet
	s.highBet = s.cfg.bigBlind
	s.minRaise = s.cfg.bigBlind
	s.CurrentActor = BTN
}

func (s *State) postBlind(pos Position, amount float64) {
	p := &s.Players[pos]
	paid := amount
	if paid > p.Stack {
		paid = p.Stack
	}
	p.Stack -= paid
	p.CurrentBet = paid
	p.TotalBet = paid
	if p.Stack == 0 {
		p.AllIn = true
	}
}

// DealHoleCards deals two hidden cards to each seat from a shuffled deck.
func (s *State) DealHoleCards() error {
	for i := range s.Players {
		cards := s.deck.Deal(2)
		if cards == nil {
			return ErrDeckExhausted
		}
		s.Players[i].Hole = poker.NewHand(cards...)
	}
	return nil
}

// DealBoard extends the board to the size mandated by round. It is a
// no-op if the board is already at that size.
func (s *State) DealBoard(round Round) error {
	need := round.BoardSize() - s.Board.CountCards()
	if need <= 0 {
		return nil
	}
	cards := s.deck.Deal(need)
	if cards == nil {
		return ErrDeckExhausted
	}
	for _, c := range cards {
		s.Board.AddCard(c)
	}
	return nil
}

// CurrentActorSeat returns the acting player.
func (s *State) CurrentActorSeat() Position {
	return s.CurrentActor
}

// ToCall returns the amount pos still owes to match the current high
// bet, clipped to zero (never negative).
func (s *State) ToCall(pos Position) float64 {
	toCall := s.highBet - s.Players[pos].CurrentBet
	if toCall < 0 {
		return 0
	}
	return toCall
}

// MinRaiseIncrement returns the minimum additional amount, on top of
// the call amount, required for a legal raise this round.
func (s *State) MinRaiseIncrement() float64 {
	return s.minRaise
}

// LegalActions returns the non-empty set of legal actions for the current
// actor: FOLD only when there is a bet to face, CHECK only when there is
// none, CALL for the exact amount owed (only when the stack covers it in
// full; a player who cannot cover the call has FOLD as its only option),
// and a small canonical aggressive ladder (BET when unopposed, RAISE when
// facing a bet) clipped to [min-raise, stack] and de-duplicated.
func (s *State) LegalActions() []Action {
	p := &s.Players[s.CurrentActor]
	toCall := s.highBet - p.CurrentBet
	if toCall < 0 {
		toCall = 0
	}

	actions := make([]Action, 0, 6)
	if toCall > amountEpsilon {
		actions = append(actions, FoldAction())
		if toCall <= p.Stack+amountEpsilon {
			actions = append(actions, CallAction(toCall))
		}
	} else {
		actions = append(actions, CheckAction())
	}

	if p.Stack > toCall {
		kind := Bet
		if toCall > amountEpsilon {
			kind = Raise
		}
		for _, raiseTo := range s.raiseLadder(toCall) {
			totalCommit := raiseTo - p.CurrentBet
			if totalCommit <= toCall+amountEpsilon {
				continue
			}
			if totalCommit > p.Stack {
				totalCommit = p.Stack
			}
			actions = appendUniqueAmount(actions, Action{Kind: kind, Amount: totalCommit})
		}
	}

	return actions
}

// raiseLadder returns candidate "raise to" totals (relative to the
// current high bet, not the actor's own contribution): a minimum raise,
// half-pot, pot, and all-in.
func (s *State) raiseLadder(toCall float64) []float64 {
	p := &s.Players[s.CurrentActor]
	potAfterCall := s.Pot + toCall
	minRaiseTo := s.highBet + s.minRaise
	allIn := p.CurrentBet + p.Stack

	candidates := []float64{
		minRaiseTo,
		s.highBet + 0.5*potAfterCall,
		s.highBet + potAfterCall,
		allIn,
	}
	for i, c := range candidates {
		if c > allIn {
			candidates[i] = allIn
		}
		if c < minRaiseTo {
			candidates[i] = minRaiseTo
		}
	}
	return candidates
}

func appendUniqueAmount(actions []Action, a Action) []Action {
	for _, existing := range actions {
		if existing.Kind == a.Kind && existing.Equal(a) {
			return actions
		}
	}
	return append(actions, a)
}

// Apply mutates the state by the given action. Legality is checked against
// the underlying bounds (facing bet, stack, minimum raise increment)
// rather than against one specific enumerated ladder, because callers are
// expected to apply abstraction-chosen amounts that need not equal one of
// LegalActions' canonical entries exactly.
func (s *State) Apply(a Action) error {
	if !s.isLegal(a) {
		return ErrIllegalAction
	}

	actor := s.CurrentActor
	p := &s.Players[actor]
	s.acted[actor] = true

	switch a.Kind {
	case Fold:
		p.Folded = true
	case Check:
		// no chip movement
	case Call:
		s.commit(p, p.CurrentBet+a.Amount)
	case Bet, Raise:
		newTotal := p.CurrentBet + a.Amount
		s.minRaise = newTotal - s.highBet
		s.highBet = newTotal
		s.LastAggressor = int(actor)
		s.commit(p, newTotal)
		for i := range s.acted {
			s.acted[i] = false
		}
		s.acted[actor] = true
	}

	s.History = append(s.History, HistoryEntry{Round: s.Round, Position: actor, Action: a})
	s.advanceActor()
	return nil
}

// isLegal reports whether action a may be applied for the current actor:
// FOLD/CHECK gated on whether a bet is faced, CALL pinned to the exact
// amount owed and only legal when the stack covers it in full (a player
// who cannot cover the call may only FOLD), and BET/RAISE bounded by the
// minimum raise increment and the actor's stack (an all-in shove below
// the minimum increment is always allowed).
func (s *State) isLegal(a Action) bool {
	p := &s.Players[s.CurrentActor]
	toCall := s.highBet - p.CurrentBet
	if toCall < 0 {
		toCall = 0
	}
	facingBet := toCall > amountEpsilon

	switch a.Kind {
	case Fold:
		return facingBet
	case Check:
		return !facingBet
	case Call:
		if !facingBet {
			return false
		}
		if toCall > p.Stack+amountEpsilon {
			return false
		}
		diff := a.Amount - toCall
		if diff < 0 {
			diff = -diff
		}
		return diff < amountEpsilon
	case Bet:
		if facingBet {
			return false
		}
		return s.legalAggressiveAmount(p, a.Amount, toCall)
	case Raise:
		if !facingBet {
			return false
		}
		if a.Amount <= toCall+amountEpsilon {
			return false
		}
		return s.legalAggressiveAmount(p, a.Amount, toCall)
	default:
		return false
	}
}

func (s *State) legalAggressiveAmount(p *PlayerState, amount, toCall float64) bool {
	if amount <= 0 || amount > p.Stack+amountEpsilon {
		return false
	}
	if amount >= p.Stack-amountEpsilon {
		return true // all-in is always legal, even below the minimum raise
	}
	newTotal := p.CurrentBet + amount
	return newTotal >= s.highBet+s.minRaise-amountEpsilon
}

func (s *State) commit(p *PlayerState, newCurrentBet float64) {
	delta := newCurrentBet - p.CurrentBet
	if delta > p.Stack {
		delta = p.Stack
	}
	p.Stack -= delta
	p.CurrentBet += delta
	p.TotalBet += delta
	s.Pot += delta
	if p.Stack <= amountEpsilon {
		p.AllIn = true
	}
}

func (s *State) advanceActor() {
	next := s.nextActive(int(s.CurrentActor) + 1)
	if next >= 0 {
		s.CurrentActor = Position(next)
	}
	if s.roundClosed() && !s.IsTerminal() {
		_ = s.StartNextRound()
	}
}

func (s *State) nextActive(from int) int {
	for i := 0; i < NumPlayers; i++ {
		pos := (from + i) % NumPlayers
		if s.Players[pos].active() {
			return pos
		}
	}
	return -1
}

// roundClosed reports whether every still-active player has matched the
// current high bet and has acted since the last raise (or since the
// start of the round, if nobody has raised).
func (s *State) roundClosed() bool {
	activeCount := 0
	for i := range s.Players {
		if s.Players[i].active() {
			activeCount++
		}
	}
	if activeCount == 0 {
		return true
	}

	for i := range s.Players {
		p := &s.Players[i]
		if !p.active() {
			continue
		}
		if p.CurrentBet < s.highBet-amountEpsilon {
			return false
		}
		if !s.acted[i] {
			return false
		}
	}
	return true
}

// IsTerminal reports whether at most one unfolded player remains, or the
// river's action has closed with all unfolded players matched.
func (s *State) IsTerminal() bool {
	unfolded := 0
	for i := range s.Players {
		if !s.Players[i].Folded {
			unfolded++
		}
	}
	if unfolded <= 1 {
		return true
	}
	if s.Round == River && s.roundClosed() {
		return true
	}
	return false
}

// StartNextRound consolidates bets, deals the next round's board cards,
// resets per-round bookkeeping, and sets the actor to the first active
// seat for the new round (SB acts first on every postflop round).
func (s *State) StartNextRound() error {
	for i := range s.Players {
		s.Players[i].CurrentBet = 0
	}
	s.highBet = 0
	s.minRaise = s.cfg.bigBlind
	s.LastAggressor = -1
	s.acted = [NumPlayers]bool{}

	switch s.Round {
	case Preflop:
		s.Round = Flop
	case Flop:
		s.Round = Turn
	case Turn:
		s.Round = River
	case River:
		return nil // already at the last round; nothing to advance to
	}

	if err := s.DealBoard(s.Round); err != nil {
		return err
	}

	next := s.nextActive(int(SB))
	if next >= 0 {
		s.CurrentActor = Position(next)
	}

	// If every still-unfolded player is all-in, no further action is
	// possible on this round; keep consolidating through to showdown.
	if next < 0 && !s.IsTerminal() {
		return s.StartNextRound()
	}
	return nil
}

// Payoffs returns the net chip change for each position at a terminal
// state. Folding players lose exactly their total contribution; the
// pot is awarded to the remaining unfolded player(s), split evenly among
// showdown ties, with side pots respected via per-player eligibility
// caps on total contribution.
func (s *State) Payoffs() (map[Position]float64, error) {
	if !s.IsTerminal() {
		return nil, ErrNotTerminal
	}

	pots := s.sidePots()
	winnings := map[Position]float64{SB: 0, BB: 0, BTN: 0}

	for _, pot := range pots {
		winners := s.potWinners(pot.eligible)
		if len(winners) == 0 {
			continue
		}
		share := pot.amount / float64(len(winners))
		for _, w := range winners {
			winnings[w] += share
		}
	}

	payoffs := make(map[Position]float64, NumPlayers)
	for i := range s.Players {
		pos := Position(i)
		payoffs[pos] = winnings[pos] - s.Players[i].TotalBet
	}
	return payoffs, nil
}

type sidePot struct {
	amount   float64
	eligible []Position
}

// sidePots partitions total contributions into a main pot and any side
// pots created by all-in contribution caps, mirroring standard side-pot
// construction.
func (s *State) sidePots() []sidePot {
	levelSet := map[float64]bool{}
	for i := range s.Players {
		if s.Players[i].TotalBet > 0 {
			levelSet[s.Players[i].TotalBet] = true
		}
	}
	levels := make([]float64, 0, len(levelSet))
	for l := range levelSet {
		levels = append(levels, l)
	}
	for i := 1; i < len(levels); i++ {
		for j := i; j > 0 && levels[j-1] > levels[j]; j-- {
			levels[j-1], levels[j] = levels[j], levels[j-1]
		}
	}

	var pots []sidePot
	previous := 0.0
	for _, level := range levels {
		pot := sidePot{}
		for i := range s.Players {
			p := &s.Players[i]
			contribution := p.TotalBet - previous
			if contribution <= 0 {
				continue
			}
			if contribution > level-previous {
				contribution = level - previous
			}
			pot.amount += contribution
			if !p.Folded {
				pot.eligible = append(pot.eligible, Position(i))
			}
		}
		if pot.amount > 0 {
			pots = append(pots, pot)
		}
		previous = level
	}
	return pots
}

func (s *State) potWinners(eligible []Position) []Position {
	if len(eligible) == 0 {
		return nil
	}
	if len(eligible) == 1 {
		return eligible
	}

	best := poker.HandRank(0)
	var winners []Position
	for i, pos := range eligible {
		rank := poker.Evaluate7Cards(s.Players[pos].Hole | s.Board)
		if i == 0 || rank < best {
			best = rank
			winners = []Position{pos}
		} else if rank == best {
			winners = append(winners, pos)
		}
	}
	return winners
}

// Clone deep-copies the state, required because the solver branches the
// tree on every legal action.
func (s *State) Clone() *State {
	clone := *s
	clone.History = append([]HistoryEntry(nil), s.History...)
	// Remaining deck state is copied by value (array field), so dealing
	// proceeds independently per branch.
	deckCopy := *s.deck
	clone.deck = &deckCopy
	return &clone
}
