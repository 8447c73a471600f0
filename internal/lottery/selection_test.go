package lottery

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func members(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("entrant-%d", i)
	}
	return out
}

func TestPickPartitionsMembers(t *testing.T) {
	sampler := NewSampler()
	pool := members(20)

	for count := 0; count <= 25; count++ {
		winners, losers := sampler.Pick(pool, count)

		expected := count
		if expected > len(pool) {
			expected = len(pool)
		}
		assert.Len(t, winners, expected)
		assert.Len(t, losers, len(pool)-expected)
		assert.ElementsMatch(t, pool, append(append([]string{}, winners...), losers...))

		seen := make(map[string]bool)
		for _, id := range winners {
			assert.False(t, seen[id], "winner %s drawn twice", id)
			seen[id] = true
		}
	}
}

func TestPickKeepsLoserOrder(t *testing.T) {
	pool := members(10)
	_, losers := NewSeededSampler(7).Pick(pool, 4)

	last := -1
	for _, id := range losers {
		var i int
		_, err := fmt.Sscanf(id, "entrant-%d", &i)
		assert.NoError(t, err)
		assert.Greater(t, i, last)
		last = i
	}
}

func TestPickIsDeterministicForSeed(t *testing.T) {
	pool := members(50)

	a, _ := NewSeededSampler(42).Pick(pool, 10)
	b, _ := NewSeededSampler(42).Pick(pool, 10)
	assert.Equal(t, a, b)
}

func TestPickIsRoughlyUniform(t *testing.T) {
	sampler := NewSeededSampler(1)
	pool := members(5)
	counts := make(map[string]int)

	const rounds = 20000
	for i := 0; i < rounds; i++ {
		winners, _ := sampler.Pick(pool, 2)
		for _, id := range winners {
			counts[id]++
		}
	}

	// each member wins with probability 2/5
	expected := float64(rounds) * 2 / 5
	for _, id := range pool {
		assert.InDelta(t, expected, float64(counts[id]), expected*0.05, id)
	}
}

func TestPickEmptyPool(t *testing.T) {
	winners, losers := NewSampler().Pick(nil, 3)
	assert.Empty(t, winners)
	assert.Empty(t, losers)
}
