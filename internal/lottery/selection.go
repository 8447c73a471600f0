package lottery

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"
)

// Sampler picks winners uniformly at random without replacement.
// It is safe for concurrent use.
type Sampler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSampler seeds a ChaCha8 generator with 256 bits from the OS entropy source
func NewSampler() *Sampler {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		panic("lottery: reading entropy: " + err.Error())
	}
	return &Sampler{rng: rand.New(rand.NewChaCha8(seed))}
}

// NewSeededSampler returns a deterministic sampler
func NewSeededSampler(seed uint64) *Sampler {
	var s [32]byte
	binary.LittleEndian.PutUint64(s[:], seed)
	return &Sampler{rng: rand.New(rand.NewChaCha8(s))}
}

// Pick splits members into count winners and the remaining losers.
//
// Winners are chosen with a partial Fisher-Yates shuffle, so every subset of
// size count is equally likely. Losers keep the order they had in members.
// When count covers every member all of them win.
func (s *Sampler) Pick(members []string, count int) (winners, losers []string) {
	if count >= len(members) {
		return append([]string{}, members...), []string{}
	}
	if count <= 0 {
		return []string{}, append([]string{}, members...)
	}

	idx := make([]int, len(members))
	for i := range idx {
		idx[i] = i
	}

	s.mu.Lock()
	for i := 0; i < count; i++ {
		j := i + s.rng.IntN(len(idx)-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
	s.mu.Unlock()

	won := make([]bool, len(members))
	winners = make([]string, 0, count)
	for _, i := range idx[:count] {
		won[i] = true
		winners = append(winners, members[i])
	}

	losers = make([]string, 0, len(members)-count)
	for i, id := range members {
		if !won[i] {
			losers = append(losers, id)
		}
	}
	return winners, losers
}
