package abstraction

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"

	"github.com/lox/holdem3cfr/poker"
)

// ErrInvalidBoard is returned when the board does not have a legal
// number of community cards for any betting round.
var ErrInvalidBoard = errors.New("abstraction: board must have 0, 3, 4, or 5 cards")

// EquityFunc estimates showdown equity against a number of random
// opponents. It is satisfied by poker.Equity; tests substitute a cheap
// deterministic stand-in.
type EquityFunc func(hole, board poker.Hand, opponents, trials int, rng *rand.Rand) float64

// HandAbstraction maps (hole cards, board) pairs to bucket ids. The
// preflop table is computed once at construction; postflop buckets are
// computed lazily via Monte Carlo equity rollout and cached.
type HandAbstraction struct {
	level     Level
	opponents int
	trials    int
	equity    EquityFunc

	preflop map[string]int

	mu    sync.RWMutex
	cache map[string]int

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option configures a HandAbstraction.
type Option func(*HandAbstraction)

// WithOpponents sets the number of random opponents simulated for
// postflop equity rollouts. Default is 2 (fills the 3-handed table).
func WithOpponents(n int) Option {
	return func(h *HandAbstraction) { h.opponents = n }
}

// WithTrials sets the number of Monte Carlo trials per postflop bucket
// lookup. Default is 10000.
func WithTrials(n int) Option {
	return func(h *HandAbstraction) { h.trials = n }
}

// WithEquityFunc overrides the equity collaborator, primarily for tests.
func WithEquityFunc(f EquityFunc) Option {
	return func(h *HandAbstraction) { h.equity = f }
}

// WithRNG seeds the rollout RNG deterministically.
func WithRNG(rng *rand.Rand) Option {
	return func(h *HandAbstraction) { h.rng = rng }
}

// NewHandAbstraction builds the preflop table for level and returns a
// ready-to-use abstraction.
func NewHandAbstraction(level Level, opts ...Option) *HandAbstraction {
	h := &HandAbstraction{
		level:     level,
		opponents: 2,
		trials:    10000,
		equity:    poker.Equity,
		cache:     make(map[string]int),
		rng:       rand.New(rand.NewSource(1)),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.preflop = buildPreflopTable(h.bucketCount(0))
	return h
}

// bucketCount returns B_r, the bucket count for round r (0=preflop,
// 1=flop, 2=turn, 3=river).
func (h *HandAbstraction) bucketCount(roundIdx int) int {
	return bucketCounts[h.level][roundIdx]
}

// PreflopBucketCount returns B_preflop for this abstraction's level.
func (h *HandAbstraction) PreflopBucketCount() int {
	return h.bucketCount(0)
}

// roundIndex maps a board's card count to the 0-3 round index the
// bucket-count tables are indexed by.
func roundIndex(boardCards int) (int, error) {
	switch boardCards {
	case 0:
		return 0, nil
	case 3:
		return 1, nil
	case 4:
		return 2, nil
	case 5:
		return 3, nil
	default:
		return 0, ErrInvalidBoard
	}
}

// Bucket maps hole cards and the current board to a bucket in
// [0, B_r). It is deterministic, symmetric in hole-card ordering, and
// invariant under suit permutations that preserve flush/straight
// structure, because both the preflop table key and the postflop cache
// key are built from canonicalized suits.
func (h *HandAbstraction) Bucket(hole, board poker.Hand) (int, error) {
	roundIdx, err := roundIndex(board.CountCards())
	if err != nil {
		return 0, err
	}

	if roundIdx == 0 {
		key := canonicalHoleKey(hole)
		b, ok := h.preflop[key]
		if !ok {
			return 0, fmt.Errorf("abstraction: hole cards %s have no preflop table entry", hole)
		}
		return b, nil
	}

	bucketCount := h.bucketCount(roundIdx)
	if bucketCount <= 1 {
		return 0, nil
	}

	cacheKey := canonicalCombinedKey(hole, board)

	h.mu.RLock()
	if b, ok := h.cache[cacheKey]; ok {
		h.mu.RUnlock()
		return b, nil
	}
	h.mu.RUnlock()

	equity := h.rollEquity(hole, board)
	b := equityToBucket(equity, bucketCount)

	h.mu.Lock()
	h.cache[cacheKey] = b
	h.mu.Unlock()

	return b, nil
}

func (h *HandAbstraction) rollEquity(hole, board poker.Hand) float64 {
	h.rngMu.Lock()
	seed := h.rng.Int63()
	h.rngMu.Unlock()
	workerRNG := rand.New(rand.NewSource(seed))
	return h.equity(hole, board, h.opponents, h.trials, workerRNG)
}

// equityToBucket maps equity in [0,1] non-linearly, via equity^0.7, so
// the high-strength tail gets finer resolution than the low end.
func equityToBucket(equity float64, bucketCount int) int {
	if bucketCount <= 1 {
		return 0
	}
	shaped := math.Pow(clamp01(equity), 0.7)
	b := int(shaped * float64(bucketCount))
	if b >= bucketCount {
		b = bucketCount - 1
	}
	if b < 0 {
		b = 0
	}
	return b
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// canonicalizeSuits remaps suits to the order in which they first appear
// when cards are scanned in ascending-rank order, so that two
// suit-isomorphic hands map to identical canonical forms regardless of
// which physical suit each card happened to be dealt.
func canonicalizeSuits(cards []poker.Card) []poker.Card {
	sorted := make([]poker.Card, len(cards))
	copy(sorted, cards)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Rank() != sorted[j].Rank() {
			return sorted[i].Rank() < sorted[j].Rank()
		}
		return sorted[i].Suit() < sorted[j].Suit()
	})

	remap := make(map[uint8]uint8)
	next := uint8(0)
	out := make([]poker.Card, len(sorted))
	for i, c := range sorted {
		s := c.Suit()
		cs, ok := remap[s]
		if !ok {
			cs = next
			remap[s] = cs
			next++
		}
		out[i] = poker.NewCard(c.Rank(), cs)
	}
	return out
}

func sortedCardStrings(cards []poker.Card) []string {
	canon := canonicalizeSuits(cards)
	strs := make([]string, len(canon))
	for i, c := range canon {
		strs[i] = c.String()
	}
	sort.Strings(strs)
	return strs
}

func canonicalHoleKey(hole poker.Hand) string {
	return strings.Join(sortedCardStrings(hole.Cards()), ",")
}

func canonicalCombinedKey(hole, board poker.Hand) string {
	holeStrs := sortedCardStrings(hole.Cards())
	boardStrs := sortedCardStrings(board.Cards())
	return strings.Join(holeStrs, ",") + "|" + strings.Join(boardStrs, ",")
}

// buildPreflopTable ranks the 169 canonical starting hands by a scalar
// strength and partitions them into bucketCount equal-size bins.
func buildPreflopTable(bucketCount int) map[string]int {
	type scored struct {
		key      string
		strength float64
	}

	var hands []scored
	for r0 := uint8(0); r0 < 13; r0++ {
		for r1 := r0; r1 < 13; r1++ {
			if r0 == r1 {
				card0 := poker.NewCard(r0, 0)
				card1 := poker.NewCard(r0, 1)
				key := canonicalHoleKey(poker.NewHand(card0, card1))
				hands = append(hands, scored{key, preflopStrength(r0, r0, true)})
				continue
			}
			suited := poker.NewHand(poker.NewCard(r1, 0), poker.NewCard(r0, 0))
			offsuit := poker.NewHand(poker.NewCard(r1, 0), poker.NewCard(r0, 1))
			hands = append(hands, scored{canonicalHoleKey(suited), preflopStrength(r0, r1, true)})
			hands = append(hands, scored{canonicalHoleKey(offsuit), preflopStrength(r0, r1, false)})
		}
	}

	sort.Slice(hands, func(i, j int) bool { return hands[i].strength < hands[j].strength })

	table := make(map[string]int, len(hands))
	n := len(hands)
	for i, hs := range hands {
		bucket := i * bucketCount / n
		if bucket >= bucketCount {
			bucket = bucketCount - 1
		}
		table[hs.key] = bucket
	}
	return table
}

// preflopStrength blends high-card sum, a pair bonus, a suitedness
// bonus, and a connectedness penalty into a monotone scalar. r0 <= r1.
func preflopStrength(r0, r1 uint8, suited bool) float64 {
	score := float64(r0) + float64(r1)
	if r0 == r1 {
		score += 15
	}
	if suited {
		score += 2
	}
	gap := float64(r1) - float64(r0)
	score -= gap * 0.5
	return score
}
