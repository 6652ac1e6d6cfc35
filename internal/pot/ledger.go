// Package pot tracks per-seat chip commitments and settles them into
// main and side pots. Side pots fall out of all-in short stacks: each
// distinct contribution level closes off a pot that only seats who
// covered that level can win.
package pot

import (
	"errors"
	"sort"
)

var (
	// ErrConservation indicates the computed pots do not add up to
	// the chips committed. This is an engine bug, not a game outcome.
	ErrConservation = errors.New("pot total does not match committed chips")

	// ErrNoEligibleWinners indicates a pot whose contributors all
	// folded. Earlier validation is supposed to make this impossible.
	ErrNoEligibleWinners = errors.New("pot has no eligible winners")
)

// Pot is a settled pot with the seats eligible to win it.
type Pot struct {
	Amount   int
	Eligible []int
	// Level is the per-seat contribution ceiling this pot covers.
	Level int
}

// Ledger records chip commitments per seat, split into the current
// betting round and the hand total. A seat's hand total never
// decreases within a hand.
type Ledger struct {
	round []int
	hand  []int
}

// NewLedger creates a ledger for the given number of seats.
func NewLedger(seats int) *Ledger {
	return &Ledger{
		round: make([]int, seats),
		hand:  make([]int, seats),
	}
}

// Add records chips committed by a seat in the current round.
func (l *Ledger) Add(seat, amount int) {
	l.round[seat] += amount
}

// Refund returns uncalled chips to a seat before the round is
// committed. Hand totals only ever grow; refunds never touch them.
func (l *Ledger) Refund(seat, amount int) {
	l.round[seat] -= amount
}

// EndRound folds the current round's commitments into the hand totals.
func (l *Ledger) EndRound() {
	for seat, amount := range l.round {
		l.hand[seat] += amount
		l.round[seat] = 0
	}
}

// RoundCommitted returns the chips a seat has committed this round.
func (l *Ledger) RoundCommitted(seat int) int {
	return l.round[seat]
}

// HandCommitted returns the chips a seat has committed this hand,
// excluding the current round.
func (l *Ledger) HandCommitted(seat int) int {
	return l.hand[seat]
}

// Total returns all chips committed this hand, including the current round.
func (l *Ledger) Total() int {
	total := 0
	for _, c := range l.hand {
		total += c
	}
	for _, c := range l.round {
		total += c
	}
	return total
}

// Pots settles the hand commitments into ordered pots, main pot first.
// folded reports whether a seat has folded; folded seats' chips stay in
// the pots their contribution covers but the seats are never eligible.
// Call EndRound first so the current round is included.
func (l *Ledger) Pots(folded func(seat int) bool) ([]Pot, error) {
	pots, orphaned := computePots(l.hand, folded, true)
	if orphaned {
		return nil, ErrNoEligibleWinners
	}

	total := 0
	committed := 0
	for _, p := range pots {
		total += p.Amount
	}
	for _, c := range l.hand {
		committed += c
	}
	if total != committed {
		return nil, ErrConservation
	}
	return pots, nil
}

// Preview computes the pots as they stand mid-hand, current round
// included, for display. Chips above the last in-hand contribution
// level (an uncalled bet that has not been refunded yet) are shown in
// the top pot.
func (l *Ledger) Preview(folded func(seat int) bool) []Pot {
	totals := make([]int, len(l.hand))
	for seat := range totals {
		totals[seat] = l.hand[seat] + l.round[seat]
	}
	pots, _ := computePots(totals, folded, false)
	return pots
}

// computePots walks the distinct contribution levels ascending. In
// strict mode chips nobody is eligible for set the orphaned flag (an
// invariant violation at settlement); otherwise they are an uncalled
// bet mid-round and attach to the previous pot for display.
func computePots(totals []int, folded func(seat int) bool, strict bool) (pots []Pot, orphaned bool) {
	seen := make(map[int]bool)
	var levels []int
	for _, c := range totals {
		if c > 0 && !seen[c] {
			seen[c] = true
			levels = append(levels, c)
		}
	}
	sort.Ints(levels)

	prev := 0
	for _, level := range levels {
		p := Pot{Level: level}
		for seat, committed := range totals {
			if committed > prev {
				p.Amount += min(committed, level) - prev
				if committed >= level && !folded(seat) {
					p.Eligible = append(p.Eligible, seat)
				}
			}
		}
		prev = level
		if p.Amount == 0 {
			continue
		}
		if len(p.Eligible) == 0 {
			if !strict {
				if n := len(pots); n > 0 {
					pots[n-1].Amount += p.Amount
					pots[n-1].Level = p.Level
					continue
				}
			}
			orphaned = true
			pots = append(pots, p)
			continue
		}
		// A level boundary left by a folded short stack doesn't
		// split the pot: merge when eligibility is unchanged.
		if n := len(pots); n > 0 && equalSeats(pots[n-1].Eligible, p.Eligible) {
			pots[n-1].Amount += p.Amount
			pots[n-1].Level = p.Level
		} else {
			pots = append(pots, p)
		}
	}
	return pots, orphaned
}

func equalSeats(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
