// Package ml implements the outcome predictors behind ports.OutcomePredictor:
// a client for an external model server, the built-in heuristic model and a
// fallback that combines the two.
package ml

import (
	"cmp"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/ahrav/go-magi/internal/domain"
)

// DefaultRacerWeight is substituted when an entry carries no weight (kg).
const DefaultRacerWeight = 52.0

var classRank = map[string]int{"A1": 4, "A2": 3, "B1": 2, "B2": 1}

const defaultClassRank = 2

// FeatureRow is one entrant's model input, in the column order the model
// was trained on.
type FeatureRow struct {
	Lane           int     `json:"lane"`
	WinRateAll     float64 `json:"win_rate_all"`
	PlaceRateAll   float64 `json:"place_rate_all"`
	WinRateLocal   float64 `json:"win_rate_local"`
	PlaceRateLocal float64 `json:"place_rate_local"`
	MotorRate      float64 `json:"motor_rate"`
	BoatRate       float64 `json:"boat_rate"`
	AvgStartTiming float64 `json:"avg_start_timing"`
	Class          int     `json:"class"`
	Weight         float64 `json:"weight"`
}

// Features converts entries to model rows, preserving order.
func Features(entries []domain.EntryStatistics) []FeatureRow {
	rows := make([]FeatureRow, len(entries))
	for i, e := range entries {
		class, ok := classRank[e.RacerClass]
		if !ok {
			class = defaultClassRank
		}
		weight := e.Weight
		if weight <= 0 {
			weight = DefaultRacerWeight
		}
		rows[i] = FeatureRow{
			Lane:           e.Lane,
			WinRateAll:     e.WinRateAll,
			PlaceRateAll:   e.PlaceRateAll,
			WinRateLocal:   e.WinRateLocal,
			PlaceRateLocal: e.PlaceRateLocal,
			MotorRate:      e.MotorRate,
			BoatRate:       e.BoatRate,
			AvgStartTiming: e.AvgStartTiming,
			Class:          class,
			Weight:         weight,
		}
	}
	return rows
}

// finalize ranks probabilities by first-place chance and derives the
// predicted order and model confidence.
func finalize(raceID int, probs []domain.BoatProbability, source string) domain.MLPrediction {
	slices.SortStableFunc(probs, func(a, b domain.BoatProbability) int {
		if c := cmp.Compare(b.First, a.First); c != 0 {
			return c
		}
		return a.Lane - b.Lane
	})

	n := min(3, len(probs))
	lanes := make([]string, n)
	for i := range n {
		lanes[i] = strconv.Itoa(probs[i].Lane)
	}

	return domain.MLPrediction{
		RaceID:         raceID,
		Probabilities:  probs,
		PredictedOrder: strings.Join(lanes, "-"),
		Confidence:     confidence(probs),
		Source:         source,
	}
}

// confidence is twice the margin between the two best first-place
// probabilities, capped at 1. probs must be sorted.
func confidence(probs []domain.BoatProbability) float64 {
	var margin float64
	switch len(probs) {
	case 0:
		return 0
	case 1:
		margin = probs[0].First
	default:
		margin = probs[0].First - probs[1].First
	}
	return round(min(margin*2, 1), 4)
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
