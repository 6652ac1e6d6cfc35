package table

import (
	"time"

	"github.com/cardroom/holdem/internal/betting"
	"github.com/cardroom/holdem/internal/deck"
	"github.com/cardroom/holdem/internal/evaluator"
)

// EventType identifies a game event.
type EventType string

const (
	EventTypeHandStarted     EventType = "hand_started"
	EventTypeHoleCardsDealt  EventType = "hole_cards_dealt"
	EventTypeActionApplied   EventType = "action_applied"
	EventTypeStreetAdvanced  EventType = "street_advanced"
	EventTypeShowdownReached EventType = "showdown_reached"
	EventTypePotAwarded      EventType = "pot_awarded"
	EventTypeSeatEliminated  EventType = "seat_eliminated"
	EventTypeSeatStatus      EventType = "seat_status"
	EventTypeHandEnded       EventType = "hand_ended"
)

// Event is an immutable description of a single state transition. The
// coordinator consumes events to drive broadcasts; a persistence layer
// may consume the same stream for logging.
type Event interface {
	EventType() EventType
	Timestamp() time.Time
}

type eventTime struct{ at time.Time }

func (e eventTime) Timestamp() time.Time { return e.at }

func stamp() eventTime { return eventTime{at: time.Now()} }

// HandStarted is emitted when blinds are posted and a new hand begins.
type HandStarted struct {
	eventTime
	HandID         string
	HandNum        int
	Button         int
	SmallBlindSeat int
	BigBlindSeat   int
	SmallBlind     int
	BigBlind       int
}

func (HandStarted) EventType() EventType { return EventTypeHandStarted }

// HoleCardsDealt is emitted once per dealt-in seat. The cards are
// private: the coordinator must deliver them to the owning session only.
type HoleCardsDealt struct {
	eventTime
	Seat  int
	Cards []deck.Card
}

func (HoleCardsDealt) EventType() EventType { return EventTypeHoleCardsDealt }

// ActionApplied is emitted after a betting action mutates the hand.
type ActionApplied struct {
	eventTime
	Seat   int
	Action betting.Action
	Amount int // street commitment after the action
	Paid   int // chips moved this action
	Pot    int // total pot after the action
	Street betting.Street
	// Forced marks actions synthesized by the coordinator on
	// timeout or disconnect rather than submitted by the player.
	Forced bool
}

func (ActionApplied) EventType() EventType { return EventTypeActionApplied }

// StreetAdvanced is emitted when community cards are revealed.
type StreetAdvanced struct {
	eventTime
	Street    betting.Street
	Community []deck.Card // full board so far
}

func (StreetAdvanced) EventType() EventType { return EventTypeStreetAdvanced }

// SeatCards pairs a seat with its revealed hole cards.
type SeatCards struct {
	Seat  int
	Cards []deck.Card
}

// ShowdownReached is emitted when the hand reaches showdown. From this
// point the listed hole cards are public.
type ShowdownReached struct {
	eventTime
	Reveals []SeatCards
}

func (ShowdownReached) EventType() EventType { return EventTypeShowdownReached }

// PotShare is one winner's cut of a pot.
type PotShare struct {
	Seat     int
	Amount   int
	Strength evaluator.Strength // zero when the pot was won uncontested
	Best     []deck.Card        // winning five cards, nil when uncontested
}

// PotAwarded is emitted once per settled pot.
type PotAwarded struct {
	eventTime
	Index  int
	Amount int
	Shares []PotShare
}

func (PotAwarded) EventType() EventType { return EventTypePotAwarded }

// SeatEliminated is emitted when a busted seat leaves the action order.
type SeatEliminated struct {
	eventTime
	Seat int
}

func (SeatEliminated) EventType() EventType { return EventTypeSeatEliminated }

// SeatStatus is emitted when a seat sits out, sits in or is vacated.
type SeatStatus struct {
	eventTime
	Seat   int
	Status Status
}

func (SeatStatus) EventType() EventType { return EventTypeSeatStatus }

// HandEnded is emitted after payouts are applied to stacks.
type HandEnded struct {
	eventTime
	HandID string
	Stacks []int // per-seat stacks after payout
}

func (HandEnded) EventType() EventType { return EventTypeHandEnded }
