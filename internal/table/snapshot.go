package table

import (
	"github.com/cardroom/holdem/internal/betting"
	"github.com/cardroom/holdem/internal/deck"
)

// SeatView is a seat as seen in a snapshot.
type SeatView struct {
	Index         int         `json:"index"`
	Occupied      bool        `json:"occupied"`
	Name          string      `json:"name,omitempty"`
	Stack         int         `json:"stack"`
	Status        Status      `json:"-"`
	StatusName    string      `json:"status"`
	RoundBet      int         `json:"round_bet"`
	HandCommitted int         `json:"hand_committed"`
	HoleCards     []deck.Card `json:"-"`
	HoleNames     []string    `json:"hole_cards,omitempty"`
	Revealed      bool        `json:"revealed,omitempty"`
}

// PotView is a pot as seen in a snapshot.
type PotView struct {
	Amount   int   `json:"amount"`
	Eligible []int `json:"eligible"`
}

// State is the canonical table state at a point in time. It is a value
// copy: safe to read after the table has moved on. A State straight
// from Snapshot contains every seat's hole cards; always project it
// through For before sending it anywhere.
type State struct {
	HandID       string      `json:"hand_id,omitempty"`
	HandNum      int         `json:"hand_num"`
	Button       int         `json:"button"`
	InHand       bool        `json:"in_hand"`
	Street       string      `json:"street,omitempty"`
	Community    []deck.Card `json:"-"`
	Board        []string    `json:"board"`
	Seats        []SeatView  `json:"seats"`
	Pots         []PotView   `json:"pots"`
	PotTotal     int         `json:"pot_total"`
	CurrentActor int         `json:"current_actor"`
	CurrentBet   int         `json:"current_bet"`
	MinRaise     int         `json:"min_raise"`
	Revealed     bool        `json:"revealed"`
}

// Snapshot copies the full table state, private cards included.
func (t *Table) Snapshot() State {
	st := State{
		Button:       t.button,
		HandNum:      t.handNum,
		CurrentActor: -1,
	}

	st.Seats = make([]SeatView, len(t.seats))
	for i, s := range t.seats {
		view := SeatView{
			Index:    i,
			Occupied: s.Occupied,
			Name:     s.Name,
			Stack:    s.Stack,
			Status:   s.Status,
		}
		if s.HoleCards != nil {
			view.HoleCards = append([]deck.Card(nil), s.HoleCards...)
		}
		st.Seats[i] = view
	}

	h := t.hand
	if h != nil {
		st.HandID = h.id
		st.InHand = true
		st.Revealed = h.revealed
		st.Community = append([]deck.Card(nil), h.community...)
		st.CurrentActor = t.CurrentActor()
		if h.round != nil {
			st.Street = h.round.Street().String()
			st.CurrentBet = h.round.CurrentBet()
			st.MinRaise = h.round.MinRaise()
		}
		st.PotTotal = h.ledger.Total()
		for _, p := range h.ledger.Preview(t.foldedFn()) {
			st.Pots = append(st.Pots, PotView{Amount: p.Amount, Eligible: append([]int(nil), p.Eligible...)})
		}
		for i := range st.Seats {
			c := h.contenders[i]
			if !c.Out {
				// Seat stacks are written back at hand end; the
				// contender carries the live stack until then.
				st.Seats[i].Stack = c.Stack
			}
			st.Seats[i].RoundBet = c.Bet
			st.Seats[i].HandCommitted = h.ledger.HandCommitted(i) + h.ledger.RoundCommitted(i)
			st.Seats[i].Status = seatHandStatus(t.seats[i], c)
			st.Seats[i].Revealed = h.revealed && c.InHand()
		}
	}

	for i := range st.Seats {
		st.Seats[i].StatusName = st.Seats[i].Status.String()
	}
	st.Board = cardNames(st.Community)
	return st
}

// seatHandStatus folds per-hand contender flags into the seat status.
func seatHandStatus(s *Seat, c *betting.Contender) Status {
	switch {
	case s.Status != Active:
		return s.Status
	case c.Folded:
		return Folded
	case c.AllIn:
		return AllIn
	default:
		return Active
	}
}

// For projects the state for one viewer: the viewer's own hole cards
// stay, everyone else's are withheld unless showdown revealed them.
// Pass a negative seat for a pure observer. The projection never
// mutates the source state.
func (s State) For(viewer int) State {
	out := s
	out.Seats = make([]SeatView, len(s.Seats))
	copy(out.Seats, s.Seats)
	for i := range out.Seats {
		visible := i == viewer || out.Seats[i].Revealed
		if !visible {
			out.Seats[i].HoleCards = nil
		}
		out.Seats[i].HoleNames = cardNames(out.Seats[i].HoleCards)
	}
	return out
}

func cardNames(cards []deck.Card) []string {
	if cards == nil {
		return nil
	}
	names := make([]string, len(cards))
	for i, c := range cards {
		names[i] = c.String()
	}
	return names
}
