package questions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogShape(t *testing.T) {
	require.Equal(t, 35, Count())

	first, ok := ByID(FirstID())
	require.True(t, ok)
	assert.False(t, first.Declinable)

	last, ok := ByID(LastID())
	require.True(t, ok)
	assert.False(t, last.Declinable)
}

func TestNewOrder_IsPermutation(t *testing.T) {
	order := NewOrder()
	require.Len(t, order, Count())

	seen := make(map[int]bool, len(order))
	for _, id := range order {
		_, ok := ByID(id)
		require.True(t, ok, "unknown question id %d", id)
		require.False(t, seen[id], "duplicate question id %d", id)
		seen[id] = true
	}
}

func TestNewOrder_FixedEndpointsInvariant(t *testing.T) {
	for i := 0; i < 1000; i++ {
		order := NewOrder()
		require.Equal(t, FirstID(), order[0])
		require.Equal(t, LastID(), order[len(order)-1])
	}
}

// The middle shuffle should place each middle question in each middle slot
// about uniformly. With 10k orderings over 33 slots the expected count per
// (question, slot) cell is ~303 with a standard deviation of ~17, so the
// generous 150..600 window only trips on real bias.
func TestNewOrder_MiddleUniformity(t *testing.T) {
	const trials = 10_000

	middleSize := Count() - 2
	counts := make(map[int][]int, middleSize)

	for i := 0; i < trials; i++ {
		order := NewOrder()
		for pos, id := range order[1 : len(order)-1] {
			if counts[id] == nil {
				counts[id] = make([]int, middleSize)
			}
			counts[id][pos]++
		}
	}

	expected := float64(trials) / float64(middleSize)
	for id, positions := range counts {
		for pos, n := range positions {
			if float64(n) < expected/2 || float64(n) > expected*2 {
				t.Errorf("question %d at middle position %d: count %d too far from expected %.0f", id, pos, n, expected)
			}
		}
	}
}

func TestAll_ReturnsCopy(t *testing.T) {
	a := All()
	a[0].Text = "mutated"
	b := All()
	assert.NotEqual(t, a[0].Text, b[0].Text)
}
