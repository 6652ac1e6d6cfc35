// Package betting implements the state machine for a single betting
// street: turn order, legal-action sets with amount bounds, min-raise
// tracking, and round termination. It owns no chips beyond the street;
// the table engine feeds paid amounts into the pot ledger.
package betting

import (
	"errors"
	"fmt"

	"github.com/thoas/go-funk"
)

var (
	// ErrNotYourTurn rejects an action from any seat other than the
	// current actor. No state is mutated.
	ErrNotYourTurn = errors.New("not your turn")

	// ErrIllegalAction rejects an action outside the current legal
	// set or with an out-of-bounds amount. No state is mutated.
	ErrIllegalAction = errors.New("illegal action")

	// ErrRoundOver rejects actions submitted after the round
	// reached its terminal state.
	ErrRoundOver = errors.New("betting round is over")
)

// Street is one of the shared-card betting phases.
type Street int

const (
	Preflop Street = iota
	Flop
	Turn
	River
)

func (s Street) String() string {
	return [...]string{"preflop", "flop", "turn", "river"}[s]
}

// Action is a player action within a betting round.
type Action int

const (
	Fold Action = iota
	Check
	Call
	Bet
	Raise
	AllIn
)

func (a Action) String() string {
	return [...]string{"fold", "check", "call", "bet", "raise", "allin"}[a]
}

// Contender is the betting-relevant view of a seat for one hand. The
// table engine shares one set of contenders across the hand's streets;
// the round mutates Stack, Bet and the status flags.
type Contender struct {
	Seat   int
	Stack  int
	Bet    int // committed this street
	Folded bool
	AllIn  bool
	Out    bool // sitting out or eliminated; dealt out of the hand
}

// CanAct reports whether the contender still takes turns.
func (c *Contender) CanAct() bool {
	return !c.Folded && !c.AllIn && !c.Out
}

// InHand reports whether the contender can still win the pot.
func (c *Contender) InHand() bool {
	return !c.Folded && !c.Out
}

// LegalActions describes what the current actor may do and the amount
// bounds for the sized actions. Bet and Raise amounts are "to" values:
// the total street commitment after the action.
type LegalActions struct {
	Actions    []Action
	Call       int // additional chips needed to call
	MinBet     int // minimum total for an opening bet
	MinRaiseTo int // minimum total for a raise
	MaxTo      int // stack-capped total for a bet or raise
}

// Can reports whether the given action is in the legal set.
func (la LegalActions) Can(a Action) bool {
	return funk.Contains(la.Actions, a)
}

// Result describes a single applied action.
type Result struct {
	Seat     int
	Action   Action
	Paid     int // chips moved from stack this action
	ToTotal  int // street commitment after the action
	AllIn    bool
	Street   Street
	Terminal bool
	// HandOver is set when the action left at most one contender in
	// the hand, ending the hand without further streets.
	HandOver bool
}

// Round is the state machine for one betting street. Exactly one seat
// is the current actor whenever the round is non-terminal.
type Round struct {
	street     Street
	button     int
	bigBlind   int
	contenders []*Contender
	currentBet int
	minRaise   int
	actor      int
	acted      []bool // acted since the last full bet or raise
	terminal   bool
}

// NewRound creates a round over the shared contenders. Post-flop
// streets start acting left of the button immediately; a pre-flop
// round waits for PostBlinds.
func NewRound(street Street, contenders []*Contender, button, bigBlind int) *Round {
	r := &Round{
		street:     street,
		button:     button,
		bigBlind:   bigBlind,
		contenders: contenders,
		minRaise:   bigBlind,
		actor:      -1,
		acted:      make([]bool, len(contenders)),
	}
	for _, c := range contenders {
		c.Bet = 0
	}
	if street != Preflop {
		r.begin(button + 1)
	}
	return r
}

// PostBlinds posts the small and big blind and opens action left of
// the big blind. Blinds count as street commitments but not as acting:
// both blind seats keep their option. Short stacks post what they have
// and are all-in; the amount to call stays the full big blind.
// Returns the chips actually paid by each blind for the pot ledger.
func (r *Round) PostBlinds(sbSeat, bbSeat, smallBlind, bigBlind int) (sbPaid, bbPaid int) {
	sbPaid = r.postBlind(sbSeat, smallBlind)
	bbPaid = r.postBlind(bbSeat, bigBlind)
	r.currentBet = bigBlind
	r.minRaise = bigBlind
	r.begin(bbSeat + 1)
	return sbPaid, bbPaid
}

func (r *Round) postBlind(seat, amount int) int {
	c := r.contenders[seat]
	paid := min(amount, c.Stack)
	c.Stack -= paid
	c.Bet += paid
	if c.Stack == 0 {
		c.AllIn = true
	}
	return paid
}

func (r *Round) begin(from int) {
	r.actor = r.nextActor(from)
	if r.actor == -1 || r.isComplete() {
		r.actor = -1
		r.terminal = true
	}
}

// Street returns the round's street.
func (r *Round) Street() Street { return r.street }

// Actor returns the current actor's seat, or -1 when terminal.
func (r *Round) Actor() int {
	if r.terminal {
		return -1
	}
	return r.actor
}

// Terminal reports whether the round has ended.
func (r *Round) Terminal() bool { return r.terminal }

// CurrentBet returns the highest street commitment so far.
func (r *Round) CurrentBet() int { return r.currentBet }

// MinRaise returns the current minimum raise increment.
func (r *Round) MinRaise() int { return r.minRaise }

// LegalActions returns the legal action set for a seat. Only the
// current actor has a non-empty set.
func (r *Round) LegalActions(seat int) LegalActions {
	if r.terminal || seat != r.actor {
		return LegalActions{}
	}

	c := r.contenders[seat]
	toCall := r.currentBet - c.Bet
	maxTo := c.Stack + c.Bet

	la := LegalActions{
		Call:       min(toCall, c.Stack),
		MinBet:     min(r.bigBlind, maxTo),
		MinRaiseTo: min(r.currentBet+r.minRaise, maxTo),
		MaxTo:      maxTo,
	}

	// canRaise: action has not been reopened for a seat that already
	// acted and matched a prior full bet. A short all-in does not
	// clear acted flags, which is exactly this rule.
	canRaise := !r.acted[seat] && maxTo > r.currentBet

	if toCall == 0 {
		la.Actions = append(la.Actions, Check)
		if r.currentBet == 0 {
			la.Actions = append(la.Actions, Bet, AllIn)
		} else if canRaise {
			la.Actions = append(la.Actions, Raise, AllIn)
		}
		la.Actions = append(la.Actions, Fold)
		return la
	}

	la.Actions = append(la.Actions, Fold)
	if c.Stack <= toCall {
		// Calling puts the whole stack in.
		la.Actions = append(la.Actions, AllIn)
		return la
	}
	la.Actions = append(la.Actions, Call)
	if canRaise {
		la.Actions = append(la.Actions, Raise, AllIn)
	}
	return la
}

// Apply validates and applies an action for a seat. Bet and Raise take
// the total street commitment as amount; other actions ignore it.
// Illegal or out-of-turn submissions return an error without mutating
// any state.
func (r *Round) Apply(seat int, action Action, amount int) (Result, error) {
	if r.terminal {
		return Result{}, ErrRoundOver
	}
	if seat < 0 || seat >= len(r.contenders) || seat != r.actor {
		return Result{}, ErrNotYourTurn
	}

	la := r.LegalActions(seat)
	if !la.Can(action) {
		return Result{}, fmt.Errorf("%w: %s not available", ErrIllegalAction, action)
	}

	c := r.contenders[seat]
	res := Result{Seat: seat, Action: action, Street: r.street}

	switch action {
	case Fold:
		c.Folded = true
		r.acted[seat] = true

	case Check:
		r.acted[seat] = true

	case Call:
		res.Paid = min(r.currentBet-c.Bet, c.Stack)
		r.pay(c, res.Paid)
		r.acted[seat] = true

	case Bet, Raise:
		if amount > la.MaxTo {
			return Result{}, fmt.Errorf("%w: amount %d exceeds stack", ErrIllegalAction, amount)
		}
		minTo := la.MinRaiseTo
		if action == Bet {
			minTo = la.MinBet
		}
		// Below-minimum is only legal as an all-in for the full stack.
		if amount < minTo && amount != la.MaxTo {
			return Result{}, fmt.Errorf("%w: amount %d below minimum %d", ErrIllegalAction, amount, minTo)
		}
		if amount <= r.currentBet {
			return Result{}, fmt.Errorf("%w: amount %d does not exceed current bet %d", ErrIllegalAction, amount, r.currentBet)
		}
		res.Paid = amount - c.Bet
		r.pay(c, res.Paid)
		r.applyAggression(seat, amount)

	case AllIn:
		amount = c.Stack + c.Bet
		res.Paid = c.Stack
		r.pay(c, res.Paid)
		if amount > r.currentBet {
			r.applyAggression(seat, amount)
		} else {
			// All-in for less than the bet is a short call.
			r.acted[seat] = true
		}
	}

	res.ToTotal = c.Bet
	res.AllIn = c.AllIn
	r.advance(seat)
	res.Terminal = r.terminal
	res.HandOver = r.terminal && r.inHandCount() <= 1
	return res, nil
}

// ForceFold folds a seat out of turn, for disconnects and sit-outs.
// The round's contributed chips are unchanged. Safe to call for seats
// that already folded or are all-in.
func (r *Round) ForceFold(seat int) Result {
	if seat < 0 || seat >= len(r.contenders) {
		return Result{}
	}
	c := r.contenders[seat]
	if c.Folded || c.Out || c.AllIn {
		// An all-in seat has no pending action and keeps its pot
		// eligibility; there is nothing to fold.
		return Result{}
	}
	c.Folded = true
	r.acted[seat] = true
	res := Result{Seat: seat, Action: Fold, Street: r.street, ToTotal: c.Bet}

	if !r.terminal {
		if seat == r.actor {
			r.advance(seat)
		} else if r.isComplete() || r.inHandCount() <= 1 {
			r.actor = -1
			r.terminal = true
		}
	}
	res.Terminal = r.terminal
	res.HandOver = r.terminal && r.inHandCount() <= 1
	return res
}

func (r *Round) pay(c *Contender, amount int) {
	c.Stack -= amount
	c.Bet += amount
	if c.Stack == 0 {
		c.AllIn = true
	}
}

// applyAggression updates bet state for a bet or raise to amount. A
// full raise (increment >= minRaise) reopens action for everyone; a
// short all-in raise updates the amount to call without reopening.
func (r *Round) applyAggression(seat, amount int) {
	increment := amount - r.currentBet
	r.currentBet = amount
	if increment >= r.minRaise {
		r.minRaise = increment
		for i := range r.acted {
			r.acted[i] = false
		}
	}
	r.acted[seat] = true
}

func (r *Round) advance(from int) {
	if r.inHandCount() <= 1 || r.isComplete() {
		r.actor = -1
		r.terminal = true
		return
	}
	r.actor = r.nextActor(from + 1)
	if r.actor == -1 {
		r.terminal = true
	}
}

// isComplete reports whether no further action is owed this street.
func (r *Round) isComplete() bool {
	canAct := 0
	for _, c := range r.contenders {
		if !c.CanAct() {
			continue
		}
		if c.Bet != r.currentBet {
			return false
		}
		canAct++
	}
	if canAct <= 1 {
		// Betting is over when at most one seat can act and every
		// commitment is matched: there is nobody left to respond.
		return true
	}
	for _, c := range r.contenders {
		if c.CanAct() && !r.acted[c.Seat] {
			return false
		}
	}
	return true
}

func (r *Round) nextActor(from int) int {
	n := len(r.contenders)
	for i := 0; i < n; i++ {
		seat := ((from + i) % n + n) % n
		if r.contenders[seat].CanAct() {
			return seat
		}
	}
	return -1
}

func (r *Round) inHandCount() int {
	count := 0
	for _, c := range r.contenders {
		if c.InHand() {
			count++
		}
	}
	return count
}
