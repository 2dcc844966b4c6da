package dice

import (
	"math/rand"
	"sync"
	"time"
)

// Roller produces two-die roll outcomes. Implementations must be safe for
// use from a single coordinator goroutine; the default roller is safe for
// concurrent use across rooms.
type Roller interface {
	Roll() (int, int)
}

// RollerFunc adapts a function to the Roller interface. Tests use this to
// script exact rolls.
type RollerFunc func() (int, int)

func (f RollerFunc) Roll() (int, int) { return f() }

type roller struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRoller returns a roller backed by a time-seeded source.
func NewRoller() Roller {
	return NewRollerWithSource(rand.NewSource(time.Now().UnixNano()))
}

// NewRollerWithSource returns a roller drawing from the given source, so
// outcomes are deterministic under a fixed seed.
func NewRollerWithSource(src rand.Source) Roller {
	return &roller{rng: rand.New(src)}
}

func (r *roller) Roll() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Intn(6) + 1, r.rng.Intn(6) + 1
}

// IsBust reports whether a roll forfeits the turn's unbanked points.
func IsBust(d1, d2 int) bool {
	return d1 == 1 || d2 == 1
}

// ScoreOf returns the points earned by a roll; a bust earns nothing.
func ScoreOf(d1, d2 int) int {
	if IsBust(d1, d2) {
		return 0
	}
	return d1 + d2
}
