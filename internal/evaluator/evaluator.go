// Package evaluator ranks poker hands. A Strength is a single ordered
// value: the category sits in the high bits with the tiebreak ranks
// packed below it in descending significance, so plain integer
// comparison gives the standard total order over hands. Equal hands
// produce identical Strength values.
package evaluator

import (
	"sort"

	"github.com/cardroom/holdem/internal/deck"
)

// Category is the hand category, weakest to strongest.
type Category int

const (
	HighCard Category = iota
	Pair
	TwoPair
	ThreeOfAKind
	Straight
	Flush
	FullHouse
	FourOfAKind
	StraightFlush
)

// String returns the readable name of the category
func (c Category) String() string {
	switch c {
	case HighCard:
		return "High Card"
	case Pair:
		return "Pair"
	case TwoPair:
		return "Two Pair"
	case ThreeOfAKind:
		return "Three of a Kind"
	case Straight:
		return "Straight"
	case Flush:
		return "Flush"
	case FullHouse:
		return "Full House"
	case FourOfAKind:
		return "Four of a Kind"
	case StraightFlush:
		return "Straight Flush"
	default:
		return "Unknown"
	}
}

// Strength is a comparable hand-strength value. Bigger is better.
// Layout: category << 20 | up to five tiebreak ranks as nibbles,
// most significant first.
type Strength uint32

// Category returns the hand category encoded in the strength.
func (s Strength) Category() Category {
	return Category(s >> 20)
}

// String returns the category name of the strength
func (s Strength) String() string {
	return s.Category().String()
}

// Evaluate returns the strength of the best 5-card hand contained in
// the given 5 to 7 cards.
func Evaluate(cards []deck.Card) Strength {
	_, s := BestFive(cards)
	return s
}

// BestFive returns the best 5-card subset of the given 5 to 7 cards
// along with its strength.
func BestFive(cards []deck.Card) ([]deck.Card, Strength) {
	if len(cards) == 5 {
		return cards, evaluate5(cards)
	}

	var (
		best     Strength
		bestHand []deck.Card
		scratch  = make([]deck.Card, 5)
	)
	combinations(len(cards), 5, func(idx []int) {
		for i, j := range idx {
			scratch[i] = cards[j]
		}
		if s := evaluate5(scratch); bestHand == nil || s > best {
			best = s
			bestHand = append([]deck.Card(nil), scratch...)
		}
	})
	return bestHand, best
}

// combinations calls fn with every k-combination of [0,n).
func combinations(n, k int, fn func([]int)) {
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	for {
		fn(idx)
		i := k - 1
		for i >= 0 && idx[i] == n-k+i {
			i--
		}
		if i < 0 {
			return
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}

// evaluate5 ranks exactly five cards.
func evaluate5(cards []deck.Card) Strength {
	var counts [15]int
	flush := true
	for i, c := range cards {
		counts[c.Rank]++
		if i > 0 && c.Suit != cards[0].Suit {
			flush = false
		}
	}

	straightHigh := straightHighRank(counts)

	if flush && straightHigh != 0 {
		return pack(StraightFlush, straightHigh)
	}

	// Group ranks by multiplicity, highest rank first within a group.
	var quads, trips, pairs, singles []deck.Rank
	for r := deck.Ace; r >= deck.Two; r-- {
		switch counts[r] {
		case 4:
			quads = append(quads, r)
		case 3:
			trips = append(trips, r)
		case 2:
			pairs = append(pairs, r)
		case 1:
			singles = append(singles, r)
		}
	}

	switch {
	case len(quads) == 1:
		return pack(FourOfAKind, quads[0], singles[0])
	case len(trips) == 1 && len(pairs) == 1:
		return pack(FullHouse, trips[0], pairs[0])
	case flush:
		return pack(Flush, singles...)
	case straightHigh != 0:
		return pack(Straight, straightHigh)
	case len(trips) == 1:
		return pack(ThreeOfAKind, trips[0], singles[0], singles[1])
	case len(pairs) == 2:
		return pack(TwoPair, pairs[0], pairs[1], singles[0])
	case len(pairs) == 1:
		return pack(Pair, pairs[0], singles[0], singles[1], singles[2])
	default:
		return pack(HighCard, singles...)
	}
}

// straightHighRank returns the high card of a 5-card straight, or 0.
// The wheel (A-2-3-4-5) counts with Five high.
func straightHighRank(counts [15]int) deck.Rank {
	run := 0
	for r := deck.Two; r <= deck.Ace; r++ {
		if counts[r] == 0 {
			run = 0
			continue
		}
		run++
		if run == 5 {
			return r
		}
	}
	if counts[deck.Ace] > 0 && counts[deck.Two] > 0 && counts[deck.Three] > 0 &&
		counts[deck.Four] > 0 && counts[deck.Five] > 0 {
		return deck.Five
	}
	return 0
}

// pack encodes a category and up to five tiebreak ranks.
func pack(cat Category, ranks ...deck.Rank) Strength {
	s := Strength(cat) << 20
	shift := 16
	for _, r := range ranks {
		s |= Strength(r) << shift
		shift -= 4
	}
	return s
}

// SortDesc sorts cards by rank descending, for stable display.
func SortDesc(cards []deck.Card) {
	sort.Slice(cards, func(i, j int) bool {
		return cards[i].Rank > cards[j].Rank
	})
}
