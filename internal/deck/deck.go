package deck

import (
	"errors"
	"math/rand"
)

// ErrExhausted indicates a draw from an empty deck. Under the supported
// table sizes the engine can never legally draw 53 cards, so hitting
// this is a sizing bug, not a recoverable condition.
var ErrExhausted = errors.New("deck exhausted")

// Deck is an ordered, privately shuffled set of the 52 unique cards.
type Deck struct {
	cards []Card
}

// New creates a full deck shuffled with the given RNG. Passing a seeded
// source makes the deal deterministic for tests.
func New(rng *rand.Rand) *Deck {
	d := &Deck{cards: make([]Card, 0, 52)}
	for suit := Spades; suit <= Clubs; suit++ {
		for rank := Two; rank <= Ace; rank++ {
			d.cards = append(d.cards, NewCard(rank, suit))
		}
	}
	rng.Shuffle(len(d.cards), func(i, j int) {
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	})
	return d
}

// Draw removes and returns the top card.
func (d *Deck) Draw() (Card, error) {
	if len(d.cards) == 0 {
		return Card{}, ErrExhausted
	}
	c := d.cards[0]
	d.cards = d.cards[1:]
	return c, nil
}

// DrawN draws n cards from the top.
func (d *Deck) DrawN(n int) ([]Card, error) {
	if n > len(d.cards) {
		return nil, ErrExhausted
	}
	cards := make([]Card, n)
	for i := range cards {
		c, err := d.Draw()
		if err != nil {
			return nil, err
		}
		cards[i] = c
	}
	return cards, nil
}

// Burn discards the top card.
func (d *Deck) Burn() error {
	_, err := d.Draw()
	return err
}

// Remaining returns the number of cards left.
func (d *Deck) Remaining() int {
	return len(d.cards)
}
