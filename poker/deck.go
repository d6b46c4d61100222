package poker

import "math/rand"

// Deck is a standard 52-card deck that deals cards top-down in shuffled
// order.
type Deck struct {
	cards [52]Card
	next  int
	rng   *rand.Rand
}

// NewDeck builds a freshly shuffled 52-card deck. rng is the sole source
// of randomness; callers needing reproducible deals seed it themselves
// (see game.WithRNG).
func NewDeck(rng *rand.Rand) *Deck {
	d := &Deck{rng: rng}

	i := 0
	for suit := uint8(0); suit < 4; suit++ {
		for rank := uint8(0); rank < 13; rank++ {
			d.cards[i] = NewCard(rank, suit)
			i++
		}
	}

	d.Shuffle()
	return d
}

// Shuffle reshuffles every card in place and rewinds the deal cursor to
// the top of the deck.
func (d *Deck) Shuffle() {
	d.next = 0
	d.rng.Shuffle(len(d.cards), func(i, j int) {
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	})
}

// Deal removes and returns the next n cards from the top of the deck, or
// nil if fewer than n cards remain.
func (d *Deck) Deal(n int) []Card {
	if d.next+n > len(d.cards) {
		return nil
	}
	cards := d.cards[d.next : d.next+n]
	d.next += n
	return cards
}

// DealOne removes and returns the next card, or the zero Card once the
// deck is exhausted.
func (d *Deck) DealOne() Card {
	if d.next >= len(d.cards) {
		return 0
	}
	card := d.cards[d.next]
	d.next++
	return card
}

// Reset reshuffles the deck, discarding whatever has already been dealt.
func (d *Deck) Reset() {
	d.Shuffle()
}

// CardsRemaining returns how many cards are left to deal.
func (d *Deck) CardsRemaining() int {
	return len(d.cards) - d.next
}
