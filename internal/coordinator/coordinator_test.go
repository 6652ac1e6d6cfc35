package coordinator

import (
	"context"
	"io"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardroom/holdem/internal/betting"
	"github.com/cardroom/holdem/internal/table"
)

const turnTimeout = 30 * time.Second

type fakeSink struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (s *fakeSink) PushSnapshot(sn Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, sn)
}

func (s *fakeSink) last(t *testing.T) Snapshot {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.snaps)
	return s.snaps[len(s.snaps)-1]
}

func (s *fakeSink) all() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Snapshot(nil), s.snaps...)
}

func newTestCoordinator(t *testing.T, seats int) (*Coordinator, *quartz.Mock) {
	t.Helper()
	clock := quartz.NewMock(t)
	tbl := table.New(table.Config{
		Seats:      seats,
		SmallBlind: 1,
		BigBlind:   2,
		BuyIn:      100,
	}, rand.New(rand.NewSource(11)), log.New(io.Discard))
	c := New(tbl, clock, turnTimeout, log.New(io.Discard))
	t.Cleanup(c.Stop)
	return c, clock
}

func advance(t *testing.T, clock *quartz.Mock, d time.Duration) {
	t.Helper()
	clock.Advance(d).MustWait(context.Background())
}

func TestConnectStartsHandWhenTwoPresent(t *testing.T) {
	c, clock := newTestCoordinator(t, 2)

	alice := &fakeSink{}
	aliceID, err := c.Connect("alice", alice)
	require.NoError(t, err)
	assert.False(t, alice.last(t).InHand, "one player is not enough")

	bob := &fakeSink{}
	_, err = c.Connect("bob", bob)
	require.NoError(t, err)

	aliceSnap := alice.last(t)
	bobSnap := bob.last(t)
	assert.True(t, aliceSnap.InHand)
	assert.True(t, bobSnap.InHand)
	assert.Equal(t, 0, aliceSnap.YourSeat)
	assert.Equal(t, 1, bobSnap.YourSeat)

	// Heads-up the button acts first; only the actor gets a legal set.
	require.NotNil(t, aliceSnap.Legal)
	assert.True(t, aliceSnap.Legal.Can(betting.Call))
	assert.Nil(t, bobSnap.Legal)

	require.NotNil(t, aliceSnap.Deadline)
	assert.Equal(t, clock.Now().Add(turnTimeout), *aliceSnap.Deadline)

	seat, ok := c.SeatOf(aliceID)
	require.True(t, ok)
	assert.Equal(t, 0, seat)
}

func TestSubmitRejections(t *testing.T) {
	c, _ := newTestCoordinator(t, 2)

	alice := &fakeSink{}
	aliceID, err := c.Connect("alice", alice)
	require.NoError(t, err)

	// No hand yet: the action targets nothing current.
	err = c.Submit(aliceID, Action{Kind: KindFold})
	assert.ErrorIs(t, err, ErrStaleAction)

	bob := &fakeSink{}
	bobID, err := c.Connect("bob", bob)
	require.NoError(t, err)

	// Alice is the actor; bob's submission is out of turn.
	err = c.Submit(bobID, Action{Kind: KindFold})
	assert.ErrorIs(t, err, betting.ErrNotYourTurn)

	err = c.Submit(SessionID("nope"), Action{Kind: KindFold})
	assert.ErrorIs(t, err, ErrUnknownSession)

	// A rejected action must not have advanced anything.
	require.NotNil(t, alice.last(t).Legal)
}

func TestTimeoutFoldsWhenFacingABet(t *testing.T) {
	c, clock := newTestCoordinator(t, 3)

	alice := &fakeSink{}
	aliceID, err := c.Connect("alice", alice)
	require.NoError(t, err)
	bob := &fakeSink{}
	bobID, err := c.Connect("bob", bob)
	require.NoError(t, err)
	carol := &fakeSink{}
	_, err = c.Connect("carol", carol)
	require.NoError(t, err)

	// Hand one started heads-up before carol arrived. Fold it out to
	// reach a three-handed hand.
	require.NoError(t, c.Submit(aliceID, Action{Kind: KindFold}))

	snap := alice.last(t)
	require.True(t, snap.InHand)
	require.Equal(t, 2, snap.HandNum)
	require.Equal(t, 1, snap.CurrentActor, "bob is first to act three-handed")

	// Bob times out facing the big blind: the default is a fold,
	// marked forced, and the hand moves on.
	advance(t, clock, turnTimeout)

	snap = carol.last(t)
	require.True(t, snap.InHand)
	require.NotNil(t, snap.LastAction)
	assert.Equal(t, 1, snap.LastAction.Seat)
	assert.Equal(t, "fold", snap.LastAction.Action)
	assert.True(t, snap.LastAction.Forced)
	assert.Equal(t, 2, snap.CurrentActor)

	// The timed-out seat was resolved exactly once; a late submission
	// finds the turn gone.
	err = c.Submit(bobID, Action{Kind: KindCheck})
	assert.ErrorIs(t, err, betting.ErrNotYourTurn)
}

func TestTimeoutChecksWhenFree(t *testing.T) {
	c, clock := newTestCoordinator(t, 2)

	alice := &fakeSink{}
	aliceID, err := c.Connect("alice", alice)
	require.NoError(t, err)
	bob := &fakeSink{}
	bobID, err := c.Connect("bob", bob)
	require.NoError(t, err)

	// Limp to the flop, where bob acts first with no bet to face.
	require.NoError(t, c.Submit(aliceID, Action{Kind: KindCall}))
	require.NoError(t, c.Submit(bobID, Action{Kind: KindCheck}))
	require.Equal(t, "flop", bob.last(t).Street)
	require.Equal(t, 1, bob.last(t).CurrentActor)

	advance(t, clock, turnTimeout)

	snap := bob.last(t)
	require.NotNil(t, snap.LastAction)
	assert.Equal(t, "check", snap.LastAction.Action)
	assert.True(t, snap.LastAction.Forced)
	assert.Equal(t, "active", snap.Seats[1].StatusName, "a free seat is never folded by the clock")
	assert.Equal(t, 0, snap.CurrentActor)
}

func TestActionRearmsDeadline(t *testing.T) {
	c, clock := newTestCoordinator(t, 2)

	alice := &fakeSink{}
	aliceID, err := c.Connect("alice", alice)
	require.NoError(t, err)
	bob := &fakeSink{}
	_, err = c.Connect("bob", bob)
	require.NoError(t, err)

	// Act just before the deadline; the fresh turn gets a fresh clock.
	advance(t, clock, turnTimeout-time.Second)
	require.NoError(t, c.Submit(aliceID, Action{Kind: KindCall}))

	snap := bob.last(t)
	require.NotNil(t, snap.Deadline)
	assert.Equal(t, clock.Now().Add(turnTimeout), *snap.Deadline)
	assert.Equal(t, 1, snap.CurrentActor)

	// The old timer was invalidated: one second past the original
	// deadline nothing fires and no forced action appears.
	advance(t, clock, time.Second)
	snap = bob.last(t)
	assert.Equal(t, 1, snap.CurrentActor)
	require.NotNil(t, snap.LastAction)
	assert.Equal(t, "call", snap.LastAction.Action)
	assert.False(t, snap.LastAction.Forced)
}

func TestDisconnectFoldsAndVacates(t *testing.T) {
	c, _ := newTestCoordinator(t, 2)

	alice := &fakeSink{}
	aliceID, err := c.Connect("alice", alice)
	require.NoError(t, err)
	bob := &fakeSink{}
	_, err = c.Connect("bob", bob)
	require.NoError(t, err)

	// Alice is the actor when the socket drops: her turn resolves as a
	// fold, the pot goes to bob, and the seat frees up.
	c.Disconnect(aliceID)

	snap := bob.last(t)
	assert.False(t, snap.InHand, "one player left, no new hand")
	assert.False(t, snap.Seats[0].Occupied)
	assert.Equal(t, 101, snap.Seats[1].Stack)

	// The session is gone.
	err = c.Submit(aliceID, Action{Kind: KindFold})
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestDisconnectOfIdleSeatKeepsHandRunning(t *testing.T) {
	c, _ := newTestCoordinator(t, 3)

	alice := &fakeSink{}
	aliceID, err := c.Connect("alice", alice)
	require.NoError(t, err)
	bob := &fakeSink{}
	_, err = c.Connect("bob", bob)
	require.NoError(t, err)
	carol := &fakeSink{}
	carolID, err := c.Connect("carol", carol)
	require.NoError(t, err)

	// Reach the three-handed hand, bob to act.
	require.NoError(t, c.Submit(aliceID, Action{Kind: KindFold}))
	require.Equal(t, 1, carol.last(t).CurrentActor)

	// Carol is not the actor; her disconnect folds her without
	// touching bob's turn.
	c.Disconnect(carolID)

	snap := alice.last(t)
	assert.True(t, snap.InHand)
	assert.Equal(t, 1, snap.CurrentActor)
	assert.False(t, snap.Seats[2].Occupied)
}

func TestHoleCardVisibility(t *testing.T) {
	c, _ := newTestCoordinator(t, 2)

	alice := &fakeSink{}
	_, err := c.Connect("alice", alice)
	require.NoError(t, err)
	bob := &fakeSink{}
	_, err = c.Connect("bob", bob)
	require.NoError(t, err)

	for _, snap := range alice.all() {
		if !snap.InHand {
			continue
		}
		assert.Len(t, snap.Seats[0].HoleNames, 2, "own cards visible")
		assert.Empty(t, snap.Seats[1].HoleNames, "opponent cards withheld")
	}
	for _, snap := range bob.all() {
		if !snap.InHand {
			continue
		}
		assert.Empty(t, snap.Seats[0].HoleNames)
		assert.Len(t, snap.Seats[1].HoleNames, 2)
	}
}

func TestSitOutViaSubmit(t *testing.T) {
	c, _ := newTestCoordinator(t, 3)

	alice := &fakeSink{}
	_, err := c.Connect("alice", alice)
	require.NoError(t, err)
	bob := &fakeSink{}
	_, err = c.Connect("bob", bob)
	require.NoError(t, err)
	carol := &fakeSink{}
	carolID, err := c.Connect("carol", carol)
	require.NoError(t, err)

	require.NoError(t, c.Submit(carolID, Action{Kind: KindSitOut}))
	assert.Equal(t, "sitting_out", carol.last(t).Seats[2].StatusName)

	require.NoError(t, c.Submit(carolID, Action{Kind: KindSitIn}))
	assert.Equal(t, "active", carol.last(t).Seats[2].StatusName)
}

func TestShowdownBroadcastRevealsCards(t *testing.T) {
	c, _ := newTestCoordinator(t, 2)

	alice := &fakeSink{}
	aliceID, err := c.Connect("alice", alice)
	require.NoError(t, err)
	bob := &fakeSink{}
	bobID, err := c.Connect("bob", bob)
	require.NoError(t, err)

	// Check the hand down to showdown.
	require.NoError(t, c.Submit(aliceID, Action{Kind: KindCall}))
	require.NoError(t, c.Submit(bobID, Action{Kind: KindCheck}))
	for street := 0; street < 3; street++ {
		require.NoError(t, c.Submit(bobID, Action{Kind: KindCheck}))
		require.NoError(t, c.Submit(aliceID, Action{Kind: KindCheck}))
	}

	// Exactly one broadcast carries the settled hand, pushed before
	// the next hand was dealt.
	var settled *Snapshot
	for _, snap := range alice.all() {
		if snap.Result != nil {
			require.Nil(t, settled, "settled hand broadcast once")
			s := snap
			settled = &s
		}
	}
	require.NotNil(t, settled, "showdown never reached the sinks")

	assert.True(t, settled.Revealed)
	require.Len(t, settled.Result.Reveals, 2)
	assert.Len(t, settled.Seats[0].HoleNames, 2)
	assert.Len(t, settled.Seats[1].HoleNames, 2, "opponent cards public at showdown")

	require.Len(t, settled.Result.Pots, 1)
	pot := settled.Result.Pots[0]
	assert.Equal(t, 4, pot.Amount)
	paid := 0
	for _, share := range pot.Shares {
		paid += share.Amount
		assert.NotEmpty(t, share.Hand)
		assert.Len(t, share.Cards, 5)
	}
	assert.Equal(t, 4, paid)

	assert.NotEmpty(t, settled.Result.HandID)
	total := 0
	for _, stack := range settled.Result.Stacks {
		total += stack
	}
	assert.Equal(t, 200, total)

	// The next hand dealt after the settled broadcast hides cards again.
	next := alice.last(t)
	require.True(t, next.InHand)
	assert.Equal(t, 2, next.HandNum)
	assert.Empty(t, next.Seats[1].HoleNames)
}

func TestDisconnectedAllInSeatSettlesBeforeVacate(t *testing.T) {
	c, _ := newTestCoordinator(t, 2)

	alice := &fakeSink{}
	aliceID, err := c.Connect("alice", alice)
	require.NoError(t, err)
	bob := &fakeSink{}
	bobID, err := c.Connect("bob", bob)
	require.NoError(t, err)

	// Alice shoves, then her socket drops while bob is deciding. Her
	// seat must keep its claim on the pot until the hand settles.
	require.NoError(t, c.Submit(aliceID, Action{Kind: KindAllIn}))
	c.Disconnect(aliceID)

	snap := bob.last(t)
	require.True(t, snap.InHand)
	assert.True(t, snap.Seats[0].Occupied, "all-in seat survives its disconnect")

	// Bob folds; the uncalled bet and the pot both go back to seat 0.
	require.NoError(t, c.Submit(bobID, Action{Kind: KindFold}))

	var settled *Snapshot
	for _, s := range bob.all() {
		if s.Result != nil {
			sn := s
			settled = &sn
		}
	}
	require.NotNil(t, settled)
	assert.Equal(t, []int{102, 98}, settled.Result.Stacks, "winnings are not destroyed")

	// Only after settlement is the seat freed.
	final := bob.last(t)
	assert.False(t, final.Seats[0].Occupied)
	assert.Equal(t, 98, final.Seats[1].Stack)
}

func TestBettingKindMapping(t *testing.T) {
	cases := []struct {
		kind Kind
		want betting.Action
	}{
		{KindFold, betting.Fold},
		{KindCheck, betting.Check},
		{KindCall, betting.Call},
		{KindBet, betting.Bet},
		{KindRaise, betting.Raise},
		{KindAllIn, betting.AllIn},
	}
	for _, tc := range cases {
		got, ok := tc.kind.betting()
		require.True(t, ok, tc.kind.String())
		assert.Equal(t, tc.want, got)
	}

	for _, k := range []Kind{KindSitOut, KindSitIn} {
		_, ok := k.betting()
		assert.False(t, ok, k.String())
	}
}

func TestParseKind(t *testing.T) {
	for k := KindFold; k <= KindSitIn; k++ {
		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	_, err := ParseKind("jam")
	assert.Error(t, err)
}
