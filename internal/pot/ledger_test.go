package pot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nobodyFolded(int) bool { return false }

func foldedSeats(seats ...int) func(int) bool {
	m := make(map[int]bool)
	for _, s := range seats {
		m[s] = true
	}
	return func(seat int) bool { return m[seat] }
}

func TestSinglePotEqualContributions(t *testing.T) {
	l := NewLedger(3)
	for seat := 0; seat < 3; seat++ {
		l.Add(seat, 100)
	}
	l.EndRound()

	pots, err := l.Pots(nobodyFolded)
	require.NoError(t, err)
	require.Len(t, pots, 1)
	assert.Equal(t, 300, pots[0].Amount)
	assert.Equal(t, []int{0, 1, 2}, pots[0].Eligible)
}

func TestSidePotsThreeAllInLevels(t *testing.T) {
	// Stacks 10, 30, 50 all-in: main pot 30 for everyone, side pot 40
	// for the two bigger stacks, and the last 20 returns as an uncalled
	// bet in real play. Committed as-is, the top level forms a
	// one-player pot.
	l := NewLedger(3)
	l.Add(0, 10)
	l.Add(1, 30)
	l.Add(2, 50)
	l.EndRound()

	pots, err := l.Pots(nobodyFolded)
	require.NoError(t, err)
	require.Len(t, pots, 3)

	assert.Equal(t, 30, pots[0].Amount)
	assert.Equal(t, []int{0, 1, 2}, pots[0].Eligible)

	assert.Equal(t, 40, pots[1].Amount)
	assert.Equal(t, []int{1, 2}, pots[1].Eligible)

	assert.Equal(t, 20, pots[2].Amount)
	assert.Equal(t, []int{2}, pots[2].Eligible)
}

func TestFoldedChipsStayInPotWithoutEligibility(t *testing.T) {
	l := NewLedger(3)
	l.Add(0, 60)
	l.Add(1, 100)
	l.Add(2, 100)
	l.EndRound()

	pots, err := l.Pots(foldedSeats(0))
	require.NoError(t, err)
	require.Len(t, pots, 2)

	assert.Equal(t, 180, pots[0].Amount)
	assert.Equal(t, []int{1, 2}, pots[0].Eligible)
	assert.Equal(t, 80, pots[1].Amount)
	assert.Equal(t, []int{1, 2}, pots[1].Eligible)
}

func TestFoldedShortStackLevelDoesNotSplitPot(t *testing.T) {
	// Seat 0 folded after committing 40; the 40 boundary must not
	// produce two pots with identical eligibility.
	l := NewLedger(3)
	l.Add(0, 40)
	l.Add(1, 100)
	l.Add(2, 100)
	l.EndRound()

	pots, err := l.Pots(foldedSeats(0))
	require.NoError(t, err)
	require.Len(t, pots, 1)
	assert.Equal(t, 240, pots[0].Amount)
	assert.Equal(t, []int{1, 2}, pots[0].Eligible)
}

func TestPotsRejectsAllFoldedContributors(t *testing.T) {
	l := NewLedger(2)
	l.Add(0, 50)
	l.Add(1, 100)
	l.EndRound()

	// The top 50 belongs only to seat 1; with seat 1 folded it has no
	// eligible winner.
	_, err := l.Pots(foldedSeats(1))
	assert.ErrorIs(t, err, ErrNoEligibleWinners)
}

func TestRefundBeforeEndRound(t *testing.T) {
	l := NewLedger(2)
	l.Add(0, 50)
	l.Add(1, 100)
	l.Refund(1, 50)
	l.EndRound()

	pots, err := l.Pots(nobodyFolded)
	require.NoError(t, err)
	require.Len(t, pots, 1)
	assert.Equal(t, 100, pots[0].Amount)
	assert.Equal(t, 100, l.Total())
}

func TestMultiRoundAccumulation(t *testing.T) {
	l := NewLedger(2)
	l.Add(0, 10)
	l.Add(1, 10)
	l.EndRound()
	l.Add(0, 25)
	l.Add(1, 25)

	assert.Equal(t, 25, l.RoundCommitted(0))
	assert.Equal(t, 10, l.HandCommitted(0))
	assert.Equal(t, 70, l.Total())

	l.EndRound()
	assert.Equal(t, 0, l.RoundCommitted(0))
	assert.Equal(t, 35, l.HandCommitted(0))

	pots, err := l.Pots(nobodyFolded)
	require.NoError(t, err)
	require.Len(t, pots, 1)
	assert.Equal(t, 70, pots[0].Amount)
}

func TestPreviewShowsUncalledBetInTopPot(t *testing.T) {
	// Mid-round, seat 1's extra 60 is an uncalled bet: only seat 1 has
	// covered that level, so it shows as a top pot with seat 1 alone
	// eligible rather than erroring.
	l := NewLedger(3)
	l.Add(0, 40)
	l.Add(1, 100)
	l.Add(2, 40)

	pots := l.Preview(nobodyFolded)
	require.Len(t, pots, 2)
	assert.Equal(t, 120, pots[0].Amount)
	assert.Equal(t, []int{0, 1, 2}, pots[0].Eligible)
	assert.Equal(t, 60, pots[1].Amount)
	assert.Equal(t, []int{1}, pots[1].Eligible)

	total := 0
	for _, p := range pots {
		total += p.Amount
	}
	assert.Equal(t, l.Total(), total)
}

func TestPreviewIncludesCurrentRound(t *testing.T) {
	l := NewLedger(2)
	l.Add(0, 10)
	l.Add(1, 10)
	l.EndRound()
	l.Add(0, 20)
	l.Add(1, 20)

	pots := l.Preview(nobodyFolded)
	require.Len(t, pots, 1)
	assert.Equal(t, 60, pots[0].Amount)
}

func TestPotConservation(t *testing.T) {
	l := NewLedger(4)
	l.Add(0, 13)
	l.Add(1, 77)
	l.Add(2, 77)
	l.Add(3, 40)
	l.EndRound()

	pots, err := l.Pots(foldedSeats(3))
	require.NoError(t, err)

	total := 0
	for _, p := range pots {
		total += p.Amount
	}
	assert.Equal(t, 207, total)
}
