package draw

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// Record is a published draw result.
type Record struct {
	Period   string    `json:"period" yaml:"period"`
	DrawTime time.Time `json:"draw_time" yaml:"draw_time"`
	Numbers  Numbers   `json:"numbers" yaml:"numbers"`
	Name     string    `json:"name,omitempty" yaml:"name,omitempty"`
}

// Validate checks the period and numbers.
func (r Record) Validate() error {
	if _, _, err := ParsePeriod(r.Period); err != nil {
		return err
	}
	if err := r.Numbers.Validate(); err != nil {
		return fmt.Errorf("record %s: %w", r.Period, err)
	}
	return nil
}

// Equal reports whether two records describe the same result.
func (r Record) Equal(other Record) bool {
	return r.Period == other.Period && r.Numbers == other.Numbers && r.DrawTime.Equal(other.DrawTime)
}

// Entry is a generated pick for a period. PrizeLevel is meaningful only once
// Settled is true.
type Entry struct {
	ID         int64     `json:"id" yaml:"id"`
	Batch      int64     `json:"batch" yaml:"batch"`
	Period     string    `json:"period" yaml:"period"`
	Numbers    Numbers   `json:"numbers" yaml:"numbers"`
	Multiplier int       `json:"multiplier" yaml:"multiplier"`
	Settled    bool      `json:"settled" yaml:"settled"`
	PrizeLevel int       `json:"prize_level" yaml:"prize_level"`
	Deprecated bool      `json:"deprecated" yaml:"deprecated"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
}

// Cost is what the entry paid.
func (e Entry) Cost() int64 {
	m := e.Multiplier
	if m < 1 {
		m = 1
	}
	return int64(EntryCost * m)
}

// Return is what the entry won, zero until settled.
func (e Entry) Return() int64 {
	if !e.Settled {
		return 0
	}
	m := e.Multiplier
	if m < 1 {
		m = 1
	}
	return PrizeAmount(e.PrizeLevel) * int64(m)
}

// Generate draws n random valid picks.
func Generate(rng *rand.Rand, n int) []Numbers {
	picks := make([]Numbers, 0, n)
	for len(picks) < n {
		perm := rng.Perm(RedMax)
		var red [RedCount]int
		for i := range red {
			red[i] = perm[i] + 1
		}
		pick, err := NewNumbers(red, rng.IntN(BlueMax)+1)
		if err != nil {
			continue
		}
		picks = append(picks, pick)
	}
	return picks
}
