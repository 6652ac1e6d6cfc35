// Package table orchestrates full hands of No-Limit Texas Hold'em:
// blind posting, street progression, showdown and payouts, plus seat
// bookkeeping across hands. Every state transition emits immutable
// events for the session coordinator to broadcast.
package table

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/thoas/go-funk"

	"github.com/cardroom/holdem/internal/betting"
	"github.com/cardroom/holdem/internal/deck"
	"github.com/cardroom/holdem/internal/evaluator"
	"github.com/cardroom/holdem/internal/pot"
)

var (
	ErrHandInProgress   = errors.New("hand already in progress")
	ErrNoActiveRound    = errors.New("no active betting round")
	ErrNotEnoughPlayers = errors.New("not enough players to start a hand")
	ErrTableFull        = errors.New("table is full")
	ErrSeatUnavailable  = errors.New("seat unavailable")

	// ErrInvariant wraps chip-conservation and pot-integrity
	// failures. These are engine bugs: the affected hand is aborted
	// and the error surfaced to operators, never to players.
	ErrInvariant = errors.New("engine invariant violation")
)

// Config fixes a table's shape for its lifetime.
type Config struct {
	Seats      int
	SmallBlind int
	BigBlind   int
	BuyIn      int
}

// Table is a poker table. It is not safe for concurrent use; the
// session coordinator serializes all calls.
type Table struct {
	cfg     Config
	rng     *rand.Rand
	logger  *log.Logger
	seats   []*Seat
	button  int
	handNum int
	hand    *hand
	settled *State
}

// hand is the per-hand state, discarded after payout.
type hand struct {
	id           string
	deck         *deck.Deck
	community    []deck.Card
	ledger       *pot.Ledger
	contenders   []*betting.Contender
	round        *betting.Round
	revealed     bool
	chipsAtStart int
}

// New creates a table. The RNG drives deck shuffling; seed it for
// deterministic tests.
func New(cfg Config, rng *rand.Rand, logger *log.Logger) *Table {
	seats := make([]*Seat, cfg.Seats)
	for i := range seats {
		seats[i] = &Seat{Index: i}
	}
	return &Table{
		cfg:    cfg,
		rng:    rng,
		logger: logger.WithPrefix("table"),
		seats:  seats,
		button: -1,
	}
}

// Config returns the table configuration.
func (t *Table) Config() Config { return t.cfg }

// Sit places a player at the first free seat with the given stack.
// Joining mid-hand is allowed; the seat is dealt in from the next hand.
func (t *Table) Sit(name string, buyIn int) (int, []Event, error) {
	for _, s := range t.seats {
		if s.Occupied {
			continue
		}
		s.Occupied = true
		s.Name = name
		s.Stack = buyIn
		s.Status = Active
		s.HoleCards = nil
		t.logger.Info("player seated", "seat", s.Index, "name", name, "stack", buyIn)
		return s.Index, []Event{SeatStatus{stamp(), s.Index, Active}}, nil
	}
	return -1, nil, ErrTableFull
}

// Vacate empties a seat. If the seat is in the current hand it must be
// folded first (the coordinator does this on disconnect).
func (t *Table) Vacate(seat int) {
	s := t.seats[seat]
	s.Occupied = false
	s.Name = ""
	s.Stack = 0
	s.Status = Active
	s.HoleCards = nil
}

// SitOut marks a seat as sitting out. A seat with a live hand is
// folded out of it; its committed chips stay in the pot.
func (t *Table) SitOut(seat int) ([]Event, error) {
	s := t.seats[seat]
	if !s.Occupied || s.Status != Active {
		return nil, ErrSeatUnavailable
	}
	s.Status = SittingOut
	evs := []Event{SeatStatus{stamp(), seat, SittingOut}}

	if t.hand != nil && t.hand.round != nil && !t.hand.round.Terminal() && t.hand.contenders[seat].CanAct() {
		res := t.hand.round.ForceFold(seat)
		{
			evs = append(evs, ActionApplied{
				eventTime: stamp(),
				Seat:      seat,
				Action:    betting.Fold,
				Amount:    res.ToTotal,
				Pot:       t.hand.ledger.Total(),
				Street:    res.Street,
				Forced:    true,
			})
			if res.Terminal {
				more, err := t.settleRound()
				evs = append(evs, more...)
				if err != nil {
					return evs, err
				}
			}
		}
	}
	return evs, nil
}

// SitIn returns a sitting-out or eliminated seat to play from the next
// hand. An eliminated or felted seat rebuys for the table buy-in.
func (t *Table) SitIn(seat int) ([]Event, error) {
	s := t.seats[seat]
	if !s.Occupied || s.Status == Active {
		return nil, ErrSeatUnavailable
	}
	if s.Status == Eliminated || s.Stack == 0 {
		s.Stack = t.cfg.BuyIn
		t.logger.Info("seat rebought", "seat", seat, "stack", s.Stack)
	}
	s.Status = Active
	return []Event{SeatStatus{stamp(), seat, Active}}, nil
}

// CanStartHand reports whether at least two seats can be dealt in.
func (t *Table) CanStartHand() bool {
	return t.hand == nil && t.eligibleCount() >= 2
}

// StartHand begins a new hand: advances the button, posts blinds and
// deals hole cards.
func (t *Table) StartHand() ([]Event, error) {
	if t.hand != nil {
		return nil, ErrHandInProgress
	}
	if t.eligibleCount() < 2 {
		return nil, ErrNotEnoughPlayers
	}

	t.handNum++
	t.button = t.nextEligible(t.button + 1)
	for _, s := range t.seats {
		s.HoleCards = nil
	}

	contenders := make([]*betting.Contender, len(t.seats))
	chips := 0
	for i, s := range t.seats {
		contenders[i] = &betting.Contender{
			Seat:  i,
			Stack: s.Stack,
			Out:   !s.eligible(),
		}
		chips += s.Stack
	}

	h := &hand{
		id:           uuid.NewString(),
		deck:         deck.New(t.rng),
		ledger:       pot.NewLedger(len(t.seats)),
		contenders:   contenders,
		chipsAtStart: chips,
	}
	t.hand = h

	sbSeat, bbSeat := t.blindSeats()
	h.round = betting.NewRound(betting.Preflop, contenders, t.button, t.cfg.BigBlind)
	sbPaid, bbPaid := h.round.PostBlinds(sbSeat, bbSeat, t.cfg.SmallBlind, t.cfg.BigBlind)
	h.ledger.Add(sbSeat, sbPaid)
	h.ledger.Add(bbSeat, bbPaid)

	evs := []Event{HandStarted{
		eventTime:      stamp(),
		HandID:         h.id,
		HandNum:        t.handNum,
		Button:         t.button,
		SmallBlindSeat: sbSeat,
		BigBlindSeat:   bbSeat,
		SmallBlind:     sbPaid,
		BigBlind:       bbPaid,
	}}

	for offset := 1; offset <= len(t.seats); offset++ {
		seat := (t.button + offset) % len(t.seats)
		if contenders[seat].Out {
			continue
		}
		cards, err := h.deck.DrawN(2)
		if err != nil {
			return evs, t.fatal(err)
		}
		t.seats[seat].HoleCards = cards
		evs = append(evs, HoleCardsDealt{stamp(), seat, cards})
	}

	t.logger.Info("hand started", "hand", h.id, "num", t.handNum, "button", t.button)

	// Blinds can put everyone all-in.
	if h.round.Terminal() {
		more, err := t.settleRound()
		evs = append(evs, more...)
		if err != nil {
			return evs, err
		}
	}
	if err := t.checkConservation(); err != nil {
		return evs, err
	}
	return evs, nil
}

// Apply validates and applies a betting action for a seat, advancing
// streets and settling the hand as needed. forced marks actions
// synthesized on timeout or disconnect.
func (t *Table) Apply(seat int, action betting.Action, amount int, forced bool) ([]Event, error) {
	if t.hand == nil || t.hand.round == nil || t.hand.round.Terminal() {
		return nil, ErrNoActiveRound
	}

	res, err := t.hand.round.Apply(seat, action, amount)
	if err != nil {
		return nil, err
	}
	if res.Paid > 0 {
		t.hand.ledger.Add(seat, res.Paid)
	}

	evs := []Event{ActionApplied{
		eventTime: stamp(),
		Seat:      seat,
		Action:    res.Action,
		Amount:    res.ToTotal,
		Paid:      res.Paid,
		Pot:       t.hand.ledger.Total(),
		Street:    res.Street,
		Forced:    forced,
	}}

	if res.Terminal {
		more, err := t.settleRound()
		evs = append(evs, more...)
		if err != nil {
			return evs, err
		}
	}
	if t.hand != nil {
		if err := t.checkConservation(); err != nil {
			return evs, err
		}
	}
	return evs, nil
}

// CurrentActor returns the seat due to act, or -1.
func (t *Table) CurrentActor() int {
	if t.hand == nil || t.hand.round == nil {
		return -1
	}
	return t.hand.round.Actor()
}

// LegalActionsFor returns the legal action set for a seat; empty
// unless the seat is the current actor.
func (t *Table) LegalActionsFor(seat int) betting.LegalActions {
	if t.hand == nil || t.hand.round == nil {
		return betting.LegalActions{}
	}
	return t.hand.round.LegalActions(seat)
}

// HandInProgress reports whether a hand is being played.
func (t *Table) HandInProgress() bool { return t.hand != nil }

// settleRound runs after a betting round terminates: commits the round
// to the ledger, then advances streets (running out the board when
// everyone is all-in), pays the last player standing, or shows down.
func (t *Table) settleRound() ([]Event, error) {
	h := t.hand
	t.refundUncalled()
	h.ledger.EndRound()

	if t.inHandCount() <= 1 {
		return t.payoutUncontested()
	}

	var evs []Event
	for {
		if h.round.Street() == betting.River {
			more, err := t.showdown()
			return append(evs, more...), err
		}

		next := h.round.Street() + 1
		if err := h.deck.Burn(); err != nil {
			return evs, t.fatal(err)
		}
		n := 1
		if next == betting.Flop {
			n = 3
		}
		cards, err := h.deck.DrawN(n)
		if err != nil {
			return evs, t.fatal(err)
		}
		h.community = append(h.community, cards...)
		board := make([]deck.Card, len(h.community))
		copy(board, h.community)
		evs = append(evs, StreetAdvanced{stamp(), next, board})

		h.round = betting.NewRound(next, h.contenders, t.button, t.cfg.BigBlind)
		if !h.round.Terminal() {
			return evs, nil
		}
		// Nobody can act: keep dealing toward showdown.
		h.ledger.EndRound()
	}
}

// refundUncalled returns the uncalled portion of the street's highest
// bet to the bettor. A refunded all-in seat gets its surplus chips
// back and is live again (which only matters for later runout streets).
func (t *Table) refundUncalled() {
	h := t.hand
	top, second, topSeat := 0, 0, -1
	for _, c := range h.contenders {
		switch {
		case c.Bet > top:
			second = top
			top = c.Bet
			topSeat = c.Seat
		case c.Bet > second:
			second = c.Bet
		}
	}
	if topSeat == -1 || top == second {
		return
	}
	refund := top - second
	c := h.contenders[topSeat]
	c.Bet -= refund
	c.Stack += refund
	if c.AllIn && c.Stack > 0 {
		c.AllIn = false
	}
	h.ledger.Refund(topSeat, refund)
}

// payoutUncontested awards every pot to the last seat in the hand
// without revealing hole cards.
func (t *Table) payoutUncontested() ([]Event, error) {
	h := t.hand
	winner := -1
	for _, c := range h.contenders {
		if c.InHand() {
			winner = c.Seat
			break
		}
	}
	if winner == -1 {
		return nil, t.fatal(pot.ErrNoEligibleWinners)
	}

	pots, err := h.ledger.Pots(t.foldedFn())
	if err != nil {
		return nil, t.fatal(err)
	}

	var evs []Event
	for i, p := range pots {
		h.contenders[winner].Stack += p.Amount
		evs = append(evs, PotAwarded{
			eventTime: stamp(),
			Index:     i,
			Amount:    p.Amount,
			Shares:    []PotShare{{Seat: winner, Amount: p.Amount}},
		})
	}
	return append(evs, t.finishHand()...), nil
}

// showdown reveals the remaining hole cards, evaluates each pot's
// eligible hands and splits the chips. Odd remainder chips go one at a
// time to winners in clockwise seat order from the button.
func (t *Table) showdown() ([]Event, error) {
	h := t.hand
	h.revealed = true

	var reveals []SeatCards
	for _, c := range h.contenders {
		if c.InHand() {
			reveals = append(reveals, SeatCards{Seat: c.Seat, Cards: t.seats[c.Seat].HoleCards})
		}
	}
	evs := []Event{ShowdownReached{stamp(), reveals}}

	pots, err := h.ledger.Pots(t.foldedFn())
	if err != nil {
		return evs, t.fatal(err)
	}

	strengths := make(map[int]evaluator.Strength)
	bestFives := make(map[int][]deck.Card)
	for _, c := range h.contenders {
		if !c.InHand() {
			continue
		}
		cards := append(append([]deck.Card(nil), t.seats[c.Seat].HoleCards...), h.community...)
		best, s := evaluator.BestFive(cards)
		strengths[c.Seat] = s
		bestFives[c.Seat] = best
	}

	for i, p := range pots {
		var winners []int
		var best evaluator.Strength
		for _, seat := range p.Eligible {
			s := strengths[seat]
			switch {
			case len(winners) == 0 || s > best:
				winners = []int{seat}
				best = s
			case s == best:
				winners = append(winners, seat)
			}
		}
		if len(winners) == 0 {
			return evs, t.fatal(pot.ErrNoEligibleWinners)
		}

		amounts := splitPot(p.Amount, winners, t.button, len(t.seats))

		shares := make([]PotShare, 0, len(winners))
		for _, seat := range winners {
			h.contenders[seat].Stack += amounts[seat]
			shares = append(shares, PotShare{
				Seat:     seat,
				Amount:   amounts[seat],
				Strength: strengths[seat],
				Best:     bestFives[seat],
			})
		}
		evs = append(evs, PotAwarded{eventTime: stamp(), Index: i, Amount: p.Amount, Shares: shares})
	}

	return append(evs, t.finishHand()...), nil
}

// splitPot divides a pot between winners: equal floor shares, then the
// odd chips one at a time in clockwise seat order from the button.
func splitPot(amount int, winners []int, button, seats int) map[int]int {
	share := amount / len(winners)
	remainder := amount % len(winners)
	amounts := make(map[int]int, len(winners))
	for _, seat := range winners {
		amounts[seat] = share
	}
	for offset := 1; offset <= seats && remainder > 0; offset++ {
		seat := (button + offset) % seats
		if funk.Contains(winners, seat) {
			amounts[seat]++
			remainder--
		}
	}
	return amounts
}

// finishHand writes contender stacks back to seats, eliminates busted
// seats and discards the per-hand state.
func (t *Table) finishHand() []Event {
	h := t.hand
	var evs []Event

	for _, c := range h.contenders {
		if c.Out {
			continue
		}
		s := t.seats[c.Seat]
		if !s.Occupied {
			// Vacated mid-hand; the stack has nowhere to go.
			continue
		}
		s.Stack = c.Stack
		if s.Stack == 0 {
			s.Status = Eliminated
			evs = append(evs, SeatEliminated{stamp(), c.Seat})
		}
	}

	total := 0
	for _, c := range h.contenders {
		total += c.Stack
	}
	if total != h.chipsAtStart {
		t.logger.Error("chip conservation broken at hand end",
			"hand", h.id, "expected", h.chipsAtStart, "got", total)
	}

	stacks := make([]int, len(t.seats))
	for i, s := range t.seats {
		stacks[i] = s.Stack
	}
	evs = append(evs, HandEnded{stamp(), h.id, stacks})

	// Keep the final state, reveals included, so the coordinator can
	// publish the settled hand after the per-hand state is discarded.
	st := t.Snapshot()
	t.settled = &st

	t.logger.Info("hand ended", "hand", h.id)
	t.hand = nil
	return evs
}

// LastHandState returns the final state of the most recently settled
// hand, showdown reveals included. False until a hand has finished.
func (t *Table) LastHandState() (State, bool) {
	if t.settled == nil {
		return State{}, false
	}
	return *t.settled, true
}

// InCurrentHand reports whether a seat still has a claim on the pot.
func (t *Table) InCurrentHand(seat int) bool {
	return t.hand != nil && t.hand.contenders[seat].InHand()
}

// checkConservation verifies that dealt-in stacks plus committed chips
// equal the chips present at the deal. A failure aborts the hand.
func (t *Table) checkConservation() error {
	h := t.hand
	if h == nil {
		return nil
	}
	total := h.ledger.Total()
	for _, c := range h.contenders {
		total += c.Stack
	}
	if total != h.chipsAtStart {
		return t.fatal(fmt.Errorf("chips at start %d, now %d: %w", h.chipsAtStart, total, pot.ErrConservation))
	}
	return nil
}

// fatal logs an invariant violation and aborts the current hand. The
// table itself survives; other tables are unaffected by construction.
func (t *Table) fatal(err error) error {
	t.logger.Error("aborting hand", "error", err)
	t.hand = nil
	return fmt.Errorf("%w: %v", ErrInvariant, err)
}

func (t *Table) foldedFn() func(int) bool {
	contenders := t.hand.contenders
	return func(seat int) bool {
		return !contenders[seat].InHand()
	}
}

func (t *Table) inHandCount() int {
	count := 0
	for _, c := range t.hand.contenders {
		if c.InHand() {
			count++
		}
	}
	return count
}

func (t *Table) eligibleCount() int {
	count := 0
	for _, s := range t.seats {
		if s.eligible() {
			count++
		}
	}
	return count
}

// blindSeats returns the small and big blind seats for the coming
// hand. Heads-up, the button posts the small blind.
func (t *Table) blindSeats() (sb, bb int) {
	if t.eligibleCount() == 2 {
		sb = t.button
		bb = t.nextEligible(t.button + 1)
		return sb, bb
	}
	sb = t.nextEligible(t.button + 1)
	bb = t.nextEligible(sb + 1)
	return sb, bb
}

func (t *Table) nextEligible(from int) int {
	n := len(t.seats)
	for i := 0; i < n; i++ {
		seat := ((from + i) % n + n) % n
		if t.seats[seat].eligible() {
			return seat
		}
	}
	return -1
}
