package table

import "github.com/cardroom/holdem/internal/deck"

// Status is a seat's standing at the table. Active, SittingOut and
// Eliminated persist across hands; Folded and AllIn describe the seat
// within the current hand only.
type Status int

const (
	Active Status = iota
	Folded
	AllIn
	SittingOut
	Eliminated
)

func (s Status) String() string {
	return [...]string{"active", "folded", "allin", "sitting_out", "eliminated"}[s]
}

// Seat is a fixed position at the table. Seats persist across hands;
// the occupant, stack and status change, the index never does.
type Seat struct {
	Index     int
	Occupied  bool
	Name      string
	Stack     int
	Status    Status
	HoleCards []deck.Card // current hand only, nil between hands
}

// eligible reports whether the seat will be dealt into the next hand.
func (s *Seat) eligible() bool {
	return s.Occupied && s.Status == Active && s.Stack > 0
}
