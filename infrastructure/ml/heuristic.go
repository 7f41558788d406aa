package ml

import (
	"context"

	"github.com/ahrav/go-magi/internal/domain"
	"github.com/ahrav/go-magi/internal/ports"
)

// SourceHeuristic labels predictions made by HeuristicPredictor.
const SourceHeuristic = "heuristic"

// laneBonus favors the inside lanes.
var laneBonus = map[int]float64{1: 30, 2: 10, 3: 8, 4: 6, 5: 4, 6: 2}

const defaultLaneBonus = 5.0

// HeuristicPredictor is a closed-form stand-in for a trained model. Each
// entrant's strength is a weighted sum of its rates plus a lane bonus;
// first-place probability is its share of the field's total strength.
type HeuristicPredictor struct{}

var _ ports.OutcomePredictor = HeuristicPredictor{}

// Predict implements ports.OutcomePredictor. It never fails.
func (HeuristicPredictor) Predict(_ context.Context, race domain.RaceContext) (domain.MLPrediction, error) {
	strengths := make([]float64, len(race.Entries))
	var total float64
	for i, e := range race.Entries {
		bonus, ok := laneBonus[e.Lane]
		if !ok {
			bonus = defaultLaneBonus
		}
		strengths[i] = e.WinRateAll*2 + e.WinRateLocal*1.5 + e.MotorRate + e.BoatRate*0.5 + bonus
		total += strengths[i]
	}
	if total == 0 {
		total = 1
	}

	probs := make([]domain.BoatProbability, len(race.Entries))
	for i, e := range race.Entries {
		p1 := strengths[i] / total
		probs[i] = domain.BoatProbability{
			Lane:         e.Lane,
			First:        round(p1, 4),
			Second:       round(p1*0.8, 4),
			Third:        round(p1*0.7, 4),
			ExpectedRank: round(7-6*p1, 2),
		}
	}
	return finalize(race.RaceID, probs, SourceHeuristic), nil
}
