package deviation

import (
	"math"
	"math/rand/v2"
)

// Model draws randomized effort figures from an injectable source, so a fixed
// seed reproduces a whole run in tests.
type Model struct {
	rng *rand.Rand
}

// New builds a model around the given source. A nil source falls back to a
// ChaCha8 generator seeded from the zero seed, which callers should override
// outside tests via NewSeeded or NewFromRand.
func NewFromRand(rng *rand.Rand) *Model {
	if rng == nil {
		rng = rand.New(rand.NewChaCha8([32]byte{}))
	}
	return &Model{rng: rng}
}

// NewSeeded builds a deterministic model from a 64-bit seed.
func NewSeeded(seed uint64) *Model {
	return &Model{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// SpeedProbabilities configures the categorical speed draw. The values are
// used as cumulative thresholds in declaration order and are deliberately not
// normalized to sum to 1.
type SpeedProbabilities struct {
	OnTrack     float64
	Early       float64
	Delay       float64
	SevereDelay float64
}

// Speed multipliers per bucket.
const (
	speedOnTrack     = 1.0
	speedEarly       = 0.8
	speedDelay       = 1.3
	speedSevereDelay = 1.7
)

// ApplyDailyDeviation multiplies baseHours by a uniform factor in
// [1-variance, 1+variance], floors the result at half an hour and rounds to
// the nearest half hour.
func (m *Model) ApplyDailyDeviation(baseHours, variance float64) float64 {
	factor := 1 - variance + m.rng.Float64()*2*variance
	hours := baseHours * factor
	if hours < 0.5 {
		hours = 0.5
	}
	return RoundHalf(hours)
}

// RollSpeedDeviation draws one of four schedule-deviation buckets using
// cumulative thresholds over the configured probabilities.
func (m *Model) RollSpeedDeviation(p SpeedProbabilities) float64 {
	roll := m.rng.Float64()
	threshold := p.OnTrack
	if roll < threshold {
		return speedOnTrack
	}
	threshold += p.Early
	if roll < threshold {
		return speedEarly
	}
	threshold += p.Delay
	if roll < threshold {
		return speedDelay
	}
	return speedSevereDelay
}

// ApplySpeedDeviation scales hours by a speed multiplier, rounded to the
// nearest half hour. Available to callers but not part of the daily
// work-logging computation.
func ApplySpeedDeviation(hours, multiplier float64) float64 {
	return RoundHalf(hours * multiplier)
}

// RoundHalf rounds to the nearest 0.5.
func RoundHalf(v float64) float64 {
	return math.Round(v*2) / 2
}
