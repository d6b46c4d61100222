package poker

import (
	"math/rand"

	"golang.org/x/sync/errgroup"
)

// Equity estimates the showdown equity of hole against a number of random
// opponents, conditioned on the given board, via Monte Carlo rollout. It
// returns a value in [0,1]: the hero's expected share of the pot across
// trials, splitting ties evenly among the winners.
//
// This is the "black box" hand-strength collaborator: callers never need
// to know how equity is computed, only that it returns a scalar in [0,1].
func Equity(hole, board Hand, opponents, trials int, rng *rand.Rand) float64 {
	if trials <= 0 || opponents <= 0 {
		return 0.5
	}

	dead := hole | board
	deck := remainingDeck(dead)

	boardNeeded := 5 - board.CountCards()
	total := 0.0

	for t := 0; t < trials; t++ {
		shuffled := shuffleCopy(deck, rng)

		idx := 0
		extraBoard := Hand(0)
		for i := 0; i < boardNeeded; i++ {
			extraBoard.AddCard(shuffled[idx])
			idx++
		}

		opponentHands := make([]Hand, opponents)
		for o := 0; o < opponents; o++ {
			opponentHands[o] = NewHand(shuffled[idx], shuffled[idx+1])
			idx += 2
		}

		finalBoard := board | extraBoard
		heroRank := Evaluate7Cards(hole | finalBoard)

		best := heroRank
		winners := 1
		for _, oh := range opponentHands {
			oppRank := Evaluate7Cards(oh | finalBoard)
			switch {
			case oppRank < best: // lower HandRank is stronger
				best = oppRank
				winners = 1
			case oppRank == best:
				winners++
			}
		}

		if best == heroRank {
			total += 1.0 / float64(winners)
		}
	}

	return total / float64(trials)
}

// EquityParallel splits the Monte Carlo rollout across workers goroutines
// using a distinct RNG per worker (seeded from the supplied rng) so that
// results are reproducible given a fixed seed and worker count.
func EquityParallel(hole, board Hand, opponents, trials, workers int, rng *rand.Rand) (float64, error) {
	if workers <= 1 || trials < workers {
		return Equity(hole, board, opponents, trials, rng), nil
	}

	perWorker := trials / workers
	remainder := trials % workers

	partials := make([]float64, workers)
	seeds := make([]int64, workers)
	for i := range seeds {
		seeds[i] = rng.Int63()
	}

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		n := perWorker
		if w == workers-1 {
			n += remainder
		}
		g.Go(func() error {
			workerRNG := rand.New(rand.NewSource(seeds[w]))
			partials[w] = Equity(hole, board, opponents, n, workerRNG) * float64(n)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	sum := 0.0
	for _, p := range partials {
		sum += p
	}
	return sum / float64(trials), nil
}

// remainingDeck returns every card not present in dead, in ascending
// bit-position order.
func remainingDeck(dead Hand) []Card {
	out := make([]Card, 0, 52-dead.CountCards())
	for i := uint8(0); i < 52; i++ {
		c := Card(1) << i
		if dead&Hand(c) == 0 {
			out = append(out, c)
		}
	}
	return out
}

// shuffleCopy returns a Fisher-Yates shuffled copy of deck, leaving the
// original untouched so repeated trials can reuse the same remaining deck.
func shuffleCopy(deck []Card, rng *rand.Rand) []Card {
	shuffled := make([]Card, len(deck))
	copy(shuffled, deck)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled
}
