// Package coordinator turns the sequential table engine into a safe
// concurrent service. It maps sessions to seats, serializes every
// mutation (player actions, turn deadlines, disconnects) through one
// lock, and fans out per-viewer filtered snapshots after each one.
package coordinator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/google/uuid"

	"github.com/cardroom/holdem/internal/betting"
	"github.com/cardroom/holdem/internal/deck"
	"github.com/cardroom/holdem/internal/table"
)

var (
	// ErrUnknownSession rejects requests for sessions that never
	// connected or already disconnected.
	ErrUnknownSession = errors.New("unknown session")

	// ErrStaleAction rejects an action that raced a timeout or
	// another resolution: the round or actor it targeted has
	// already advanced. Nothing is mutated.
	ErrStaleAction = errors.New("stale action: the round has advanced")
)

// SessionID identifies one connected session.
type SessionID string

// Kind is the closed set of submittable actions. The betting kinds
// map straight onto the engine; SitOut and SitIn are table-level.
type Kind int

const (
	KindFold Kind = iota
	KindCheck
	KindCall
	KindBet
	KindRaise
	KindAllIn
	KindSitOut
	KindSitIn
)

func (k Kind) String() string {
	return [...]string{"fold", "check", "call", "bet", "raise", "allin", "sit_out", "sit_in"}[k]
}

// ParseKind maps a wire action name to a Kind.
func ParseKind(s string) (Kind, error) {
	for k := KindFold; k <= KindSitIn; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown action %q", s)
}

// Action is one submitted player action. Amount is the total street
// commitment for bet and raise, ignored otherwise.
type Action struct {
	Kind   Kind
	Amount int
}

// ActionNotice describes the most recent applied action for display.
type ActionNotice struct {
	Seat   int    `json:"seat"`
	Action string `json:"action"`
	Amount int    `json:"amount"`
	Forced bool   `json:"forced"`
}

// Reveal pairs a seat with the cards it showed at showdown.
type Reveal struct {
	Seat  int      `json:"seat"`
	Cards []string `json:"cards"`
}

// PotShareNotice is one winner's cut of a settled pot. Hand and Cards
// are empty when the pot was won without a showdown.
type PotShareNotice struct {
	Seat   int      `json:"seat"`
	Amount int      `json:"amount"`
	Hand   string   `json:"hand,omitempty"`
	Cards  []string `json:"cards,omitempty"`
}

// PotResult is one settled pot and its winners, main pot first.
type PotResult struct {
	Amount int              `json:"amount"`
	Shares []PotShareNotice `json:"shares"`
}

// HandResult summarizes a settled hand. It rides the snapshot pushed
// after the hand's final action, before the next hand is dealt.
type HandResult struct {
	HandID  string      `json:"hand_id"`
	Reveals []Reveal    `json:"reveals,omitempty"`
	Pots    []PotResult `json:"pots"`
	Stacks  []int       `json:"stacks"`
}

// Snapshot is the per-viewer filtered state pushed after every
// accepted mutation and on join.
type Snapshot struct {
	table.State
	YourSeat   int                   `json:"your_seat"`
	Deadline   *time.Time            `json:"deadline,omitempty"`
	Legal      *betting.LegalActions `json:"legal,omitempty"`
	LastAction *ActionNotice         `json:"last_action,omitempty"`
	Result     *HandResult           `json:"result,omitempty"`
}

// Sink receives snapshots for one session. Implementations must not
// block: the coordinator pushes while holding the table lock so that
// every session observes event N before any session can act on N+1.
type Sink interface {
	PushSnapshot(Snapshot)
}

type session struct {
	id   SessionID
	name string
	seat int
	sink Sink
}

// Coordinator owns one table. All methods are safe for concurrent use.
type Coordinator struct {
	mu       sync.Mutex
	tbl      *table.Table
	clock    quartz.Clock
	timeout  time.Duration
	logger   *log.Logger
	sessions map[SessionID]*session
	bySeat   map[int]*session

	// gen increments on every armed deadline; a timer that fires
	// with a stale gen lost its race against a real action.
	gen      int
	timer    *quartz.Timer
	deadline time.Time
	last     *ActionNotice

	// result is a settled hand waiting to be broadcast. It is flushed
	// before the next hand is dealt so every session observes the
	// showdown reveals and payouts.
	result *HandResult

	// pendingVacate holds seats whose session left mid-hand. They keep
	// their claim on the pot and are freed once the hand settles.
	pendingVacate map[int]bool
}

// New creates a coordinator for a table. The clock drives turn
// deadlines; pass quartz.NewReal() outside tests.
func New(tbl *table.Table, clock quartz.Clock, timeout time.Duration, logger *log.Logger) *Coordinator {
	return &Coordinator{
		tbl:      tbl,
		clock:    clock,
		timeout:  timeout,
		logger:   logger.WithPrefix("coordinator"),
		sessions: make(map[SessionID]*session),
		bySeat:   make(map[int]*session),

		pendingVacate: make(map[int]bool),
	}
}

// Connect seats a new session at the table with the configured buy-in
// and pushes it an initial snapshot. Starts a hand when enough players
// are present.
func (c *Coordinator) Connect(name string, sink Sink) (SessionID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seat, _, err := c.tbl.Sit(name, c.tbl.Config().BuyIn)
	if err != nil {
		return "", err
	}

	sess := &session{
		id:   SessionID(uuid.NewString()),
		name: name,
		seat: seat,
		sink: sink,
	}
	c.sessions[sess.id] = sess
	c.bySeat[seat] = sess
	c.logger.Info("session connected", "session", sess.id, "name", name, "seat", seat)

	c.afterMutation()
	return sess.id, nil
}

// Disconnect resolves any pending turn for the session's seat exactly
// as a timeout would, folds the seat out of the hand, and frees the
// seat. Other sessions only ever observe the forced action.
func (c *Coordinator) Disconnect(id SessionID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, ok := c.sessions[id]
	if !ok {
		return
	}
	c.logger.Info("session disconnected", "session", id, "seat", sess.seat)

	if c.tbl.CurrentActor() == sess.seat {
		c.resolveDefault(sess.seat)
	}
	if evs, err := c.tbl.SitOut(sess.seat); err == nil {
		c.consume(evs)
	}
	if c.tbl.InCurrentHand(sess.seat) {
		// Still live in the hand, typically all-in. The seat keeps its
		// claim on the pot and is vacated once the hand settles.
		c.pendingVacate[sess.seat] = true
	} else {
		c.tbl.Vacate(sess.seat)
	}

	delete(c.sessions, id)
	delete(c.bySeat, sess.seat)

	c.afterMutation()
}

// Submit validates and applies an action for a session. Errors stay
// local to the submitting session; on success every session receives
// a fresh snapshot before Submit returns.
func (c *Coordinator) Submit(id SessionID, act Action) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, ok := c.sessions[id]
	if !ok {
		return ErrUnknownSession
	}

	switch act.Kind {
	case KindSitOut:
		evs, err := c.tbl.SitOut(sess.seat)
		if err != nil {
			return err
		}
		c.consume(evs)

	case KindSitIn:
		evs, err := c.tbl.SitIn(sess.seat)
		if err != nil {
			return err
		}
		c.consume(evs)

	default:
		ba, ok := act.Kind.betting()
		if !ok {
			return fmt.Errorf("%w: %s is not a betting action", betting.ErrIllegalAction, act.Kind)
		}
		if !c.tbl.HandInProgress() || c.tbl.CurrentActor() == -1 {
			return ErrStaleAction
		}
		if c.tbl.CurrentActor() != sess.seat {
			return betting.ErrNotYourTurn
		}
		evs, err := c.tbl.Apply(sess.seat, ba, act.Amount, false)
		if err != nil {
			if errors.Is(err, table.ErrInvariant) {
				c.logger.Error("hand aborted", "error", err)
				c.consume(evs)
				break
			}
			return err
		}
		c.consume(evs)
	}

	c.afterMutation()
	return nil
}

// betting maps a Kind to the engine action. The table-level kinds
// report ok false.
func (k Kind) betting() (betting.Action, bool) {
	switch k {
	case KindFold:
		return betting.Fold, true
	case KindCheck:
		return betting.Check, true
	case KindCall:
		return betting.Call, true
	case KindBet:
		return betting.Bet, true
	case KindRaise:
		return betting.Raise, true
	case KindAllIn:
		return betting.AllIn, true
	default:
		return 0, false
	}
}

// resolveDefault applies the timeout default for the current actor:
// check when free, otherwise fold. Marked forced in the broadcast.
func (c *Coordinator) resolveDefault(seat int) {
	legal := c.tbl.LegalActionsFor(seat)
	act := betting.Fold
	if legal.Can(betting.Check) {
		act = betting.Check
	}
	evs, err := c.tbl.Apply(seat, act, 0, true)
	if err != nil {
		c.logger.Error("forced action failed", "seat", seat, "action", act, "error", err)
	}
	c.consume(evs)
}

// onDeadline fires when the turn clock expires. A stale generation
// means an action won the race; the expiry is then a no-op, so a seat
// is never resolved twice.
func (c *Coordinator) onDeadline(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return
	}
	seat := c.tbl.CurrentActor()
	if seat == -1 {
		return
	}
	c.logger.Info("turn deadline expired", "seat", seat)
	c.resolveDefault(seat)

	c.afterMutation()
}

// afterMutation runs the shared tail of every mutation path: publish
// any settled hand, free seats whose session left mid-hand, deal the
// next hand, rearm the turn clock and push fresh snapshots.
func (c *Coordinator) afterMutation() {
	c.flushResult()
	c.vacatePending()
	c.startHands()
	c.rearm()
	c.broadcast()
}

// flushResult broadcasts the settled state of a finished hand, with
// showdown reveals and pot shares, before anything else moves.
func (c *Coordinator) flushResult() {
	if c.result == nil {
		return
	}
	res := c.result
	c.result = nil

	st, ok := c.tbl.LastHandState()
	if !ok {
		return
	}
	for _, sess := range c.sessions {
		sess.sink.PushSnapshot(Snapshot{
			State:      st.For(sess.seat),
			YourSeat:   sess.seat,
			LastAction: c.last,
			Result:     res,
		})
	}
}

// vacatePending frees seats whose session disconnected mid-hand, once
// their hand has settled.
func (c *Coordinator) vacatePending() {
	if c.tbl.HandInProgress() {
		return
	}
	for seat := range c.pendingVacate {
		c.tbl.Vacate(seat)
		delete(c.pendingVacate, seat)
	}
}

// startHands starts hands while the table can play one. Hands where
// the blinds put everyone all-in settle inside StartHand, so this
// loops. The bound keeps two micro-stacks chopping the blinds from
// spinning forever.
func (c *Coordinator) startHands() {
	for i := 0; i < 16; i++ {
		if c.tbl.HandInProgress() || !c.tbl.CanStartHand() {
			return
		}
		evs, err := c.tbl.StartHand()
		c.consume(evs)
		if err != nil {
			c.logger.Error("failed to start hand", "error", err)
			return
		}
		if c.tbl.HandInProgress() {
			return
		}
		// The blinds settled the hand on the spot; publish it before
		// the next deal.
		c.flushResult()
		c.vacatePending()
	}
	c.logger.Warn("stopping auto-deal after repeated instant hands")
}

// rearm resets the turn deadline for the current actor, invalidating
// any previously armed timer via the generation counter.
func (c *Coordinator) rearm() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.deadline = time.Time{}

	seat := c.tbl.CurrentActor()
	if seat == -1 {
		return
	}
	gen := c.gen
	c.deadline = c.clock.Now().Add(c.timeout)
	c.timer = c.clock.AfterFunc(c.timeout, func() {
		c.onDeadline(gen)
	})
}

// consume records broadcast-relevant facts from engine events.
func (c *Coordinator) consume(evs []table.Event) {
	for _, ev := range evs {
		switch e := ev.(type) {
		case table.ActionApplied:
			c.last = &ActionNotice{
				Seat:   e.Seat,
				Action: e.Action.String(),
				Amount: e.Amount,
				Forced: e.Forced,
			}
		case table.HandStarted:
			c.last = nil
		case table.ShowdownReached:
			res := c.pendingResult()
			for _, r := range e.Reveals {
				res.Reveals = append(res.Reveals, Reveal{
					Seat:  r.Seat,
					Cards: cardNames(r.Cards),
				})
			}
		case table.PotAwarded:
			res := c.pendingResult()
			pot := PotResult{Amount: e.Amount}
			for _, sh := range e.Shares {
				notice := PotShareNotice{Seat: sh.Seat, Amount: sh.Amount}
				if sh.Best != nil {
					notice.Hand = sh.Strength.String()
					notice.Cards = cardNames(sh.Best)
				}
				pot.Shares = append(pot.Shares, notice)
			}
			res.Pots = append(res.Pots, pot)
		case table.HandEnded:
			res := c.pendingResult()
			res.HandID = e.HandID
			res.Stacks = e.Stacks
		}
	}
}

// pendingResult returns the result under construction for the hand
// being settled, creating it on first use.
func (c *Coordinator) pendingResult() *HandResult {
	if c.result == nil {
		c.result = &HandResult{}
	}
	return c.result
}

func cardNames(cards []deck.Card) []string {
	names := make([]string, len(cards))
	for i, card := range cards {
		names[i] = card.String()
	}
	return names
}

// broadcast pushes one filtered snapshot per session. Running under
// the lock guarantees every session sees this state before the next
// mutation is accepted.
func (c *Coordinator) broadcast() {
	st := c.tbl.Snapshot()
	actor := c.tbl.CurrentActor()
	var deadline *time.Time
	if !c.deadline.IsZero() {
		d := c.deadline
		deadline = &d
	}
	for _, sess := range c.sessions {
		snap := Snapshot{
			State:      st.For(sess.seat),
			YourSeat:   sess.seat,
			Deadline:   deadline,
			LastAction: c.last,
		}
		if actor != -1 && actor == sess.seat {
			legal := c.tbl.LegalActionsFor(sess.seat)
			snap.Legal = &legal
		}
		sess.sink.PushSnapshot(snap)
	}
}

// SeatOf reports the seat a session occupies.
func (c *Coordinator) SeatOf(id SessionID) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess, ok := c.sessions[id]
	if !ok {
		return -1, false
	}
	return sess.seat, true
}

// Stop cancels any armed deadline.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
