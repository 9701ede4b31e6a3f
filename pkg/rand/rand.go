// Package rand is a small seedable random source used for failure draws.
package rand

import (
	"time"

	"github.com/MichaelTJones/pcg"
)

const sequence = 0xda3e39cb94b95bdb

type Rand struct {
	r *pcg.PCG32
}

// New returns a source seeded from the wall clock.
func New() *Rand {
	return NewSeeded(time.Now().UnixNano())
}

// NewSeeded returns a source whose sequence is fully determined by s.
func NewSeeded(s int64) *Rand {
	r := &Rand{r: pcg.NewPCG32()}
	r.Seed(s)
	return r
}

func (r *Rand) Seed(s int64) {
	r.r.Seed(uint64(s), sequence)
}

// Float64 returns a value in [0, 1).
func (r *Rand) Float64() float64 {
	return float64(r.r.Random()) / (1 << 32)
}

func (r *Rand) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(r.r.Bounded(uint32(n)))
}
