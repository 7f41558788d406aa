package domain

import (
	"math"
	"slices"
)

// Factor names one of the statistical scoring factors.
type Factor string

// The seven recognized scoring factors.
const (
	FactorWinRateAll    Factor = "win_rate_all"
	FactorWinRateLocal  Factor = "win_rate_local"
	FactorMotorRate     Factor = "motor_rate"
	FactorBoatRate      Factor = "boat_rate"
	FactorStartTiming   Factor = "avg_st"
	FactorCourseRate    Factor = "course_rate"
	FactorCurrentSeries Factor = "current_series"
)

// WeightSumTolerance is how far the weight sum may drift from 1.0 before
// the scorer logs a warning.
const WeightSumTolerance = 0.001

// Factors returns the recognized factors in their canonical order.
func Factors() []Factor {
	return []Factor{
		FactorWinRateAll,
		FactorWinRateLocal,
		FactorMotorRate,
		FactorBoatRate,
		FactorStartTiming,
		FactorCourseRate,
		FactorCurrentSeries,
	}
}

// IsKnown reports whether f is one of the recognized factors.
func (f Factor) IsKnown() bool { return slices.Contains(Factors(), f) }

// WeightConfig maps factors to non-negative coefficients. Factors missing
// from the map do not contribute to a score. The coefficients do not need
// to sum to 1.
type WeightConfig map[Factor]float64

// DefaultWeights returns the default weight distribution.
func DefaultWeights() WeightConfig {
	return WeightConfig{
		FactorWinRateAll:    0.20,
		FactorWinRateLocal:  0.15,
		FactorMotorRate:     0.15,
		FactorBoatRate:      0.10,
		FactorStartTiming:   0.15,
		FactorCourseRate:    0.15,
		FactorCurrentSeries: 0.10,
	}
}

// Validate checks that every key is a recognized factor and every
// coefficient is a finite, non-negative number.
func (w WeightConfig) Validate() error {
	verr := NewValidationError("WeightConfig")
	for _, f := range w.sortedKeys() {
		v := w[f]
		switch {
		case !f.IsKnown():
			verr.AddErrorf("unknown factor %q", f)
		case math.IsNaN(v) || math.IsInf(v, 0):
			verr.AddErrorf("weight for %s must be finite", f)
		case v < 0:
			verr.AddErrorf("weight for %s must be non-negative, got %g", f, v)
		}
	}
	return verr.ErrOrNil()
}

// Sum returns the total of all coefficients.
func (w WeightConfig) Sum() float64 {
	var sum float64
	for _, f := range w.sortedKeys() {
		sum += w[f]
	}
	return sum
}

// Normalized reports whether the coefficients sum to 1 within WeightSumTolerance.
func (w WeightConfig) Normalized() bool {
	return math.Abs(w.Sum()-1.0) <= WeightSumTolerance
}

// Clone returns an independent copy.
func (w WeightConfig) Clone() WeightConfig {
	out := make(WeightConfig, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// sortedKeys gives a stable iteration order so sums and error lists are
// reproducible.
func (w WeightConfig) sortedKeys() []Factor {
	keys := make([]Factor, 0, len(w))
	for k := range w {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
