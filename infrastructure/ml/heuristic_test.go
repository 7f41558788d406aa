package ml

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-magi/internal/domain"
)

func twoBoatRace() domain.RaceContext {
	return domain.RaceContext{
		RaceID: 7,
		Entries: []domain.EntryStatistics{
			{Lane: 2, WinRateAll: 5.0, WinRateLocal: 4.0, MotorRate: 35, BoatRate: 30},
			{Lane: 1, WinRateAll: 6.0, WinRateLocal: 5.0, MotorRate: 40, BoatRate: 30},
		},
	}
}

func TestHeuristicPredictor_Predict(t *testing.T) {
	pred, err := HeuristicPredictor{}.Predict(context.Background(), twoBoatRace())
	require.NoError(t, err)

	assert.Equal(t, 7, pred.RaceID)
	assert.Equal(t, SourceHeuristic, pred.Source)
	assert.Equal(t, "1-2", pred.PredictedOrder)
	require.Len(t, pred.Probabilities, 2)

	// Lane 1 strength 104.5, lane 2 strength 76.
	best := pred.Probabilities[0]
	assert.Equal(t, 1, best.Lane)
	assert.InDelta(t, 0.5789, best.First, 1e-9)
	assert.InDelta(t, 0.4632, best.Second, 1e-9)
	assert.InDelta(t, 0.4053, best.Third, 1e-9)
	assert.InDelta(t, 3.53, best.ExpectedRank, 1e-9)

	second := pred.Probabilities[1]
	assert.Equal(t, 2, second.Lane)
	assert.InDelta(t, 0.4211, second.First, 1e-9)
	assert.InDelta(t, 4.47, second.ExpectedRank, 1e-9)

	assert.InDelta(t, 0.3156, pred.Confidence, 1e-9)
}

func TestHeuristicPredictor_OrderUsesTopThree(t *testing.T) {
	race := domain.RaceContext{Entries: []domain.EntryStatistics{
		{Lane: 1}, {Lane: 2}, {Lane: 3}, {Lane: 4, WinRateAll: 20},
	}}

	pred, err := HeuristicPredictor{}.Predict(context.Background(), race)
	require.NoError(t, err)
	// Lane 4 scores 46, lane 1 scores 30, lane 2 scores 10, lane 3 scores 8.
	assert.Equal(t, "4-1-2", pred.PredictedOrder)
	assert.Len(t, pred.Probabilities, 4)
}

func TestHeuristicPredictor_UnknownLaneGetsDefaultBonus(t *testing.T) {
	race := domain.RaceContext{Entries: []domain.EntryStatistics{{Lane: 9}, {Lane: 6}}}

	pred, err := HeuristicPredictor{}.Predict(context.Background(), race)
	require.NoError(t, err)
	assert.Equal(t, "9-6", pred.PredictedOrder)
	assert.InDelta(t, 0.7143, pred.Probabilities[0].First, 1e-9)
}

func TestHeuristicPredictor_EdgeCases(t *testing.T) {
	t.Run("NoEntries", func(t *testing.T) {
		pred, err := HeuristicPredictor{}.Predict(context.Background(), domain.RaceContext{RaceID: 3})
		require.NoError(t, err)
		assert.Empty(t, pred.Probabilities)
		assert.Empty(t, pred.PredictedOrder)
		assert.Zero(t, pred.Confidence)
	})

	t.Run("SingleEntry", func(t *testing.T) {
		race := domain.RaceContext{Entries: []domain.EntryStatistics{{Lane: 1}}}
		pred, err := HeuristicPredictor{}.Predict(context.Background(), race)
		require.NoError(t, err)
		assert.Equal(t, "1", pred.PredictedOrder)
		assert.InDelta(t, 1.0, pred.Probabilities[0].First, 1e-9)
		assert.InDelta(t, 1.0, pred.Confidence, 1e-9)
		assert.InDelta(t, 1.0, pred.Probabilities[0].ExpectedRank, 1e-9)
	})
}
