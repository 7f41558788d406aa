package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ahrav/go-magi/internal/domain"
	"github.com/ahrav/go-magi/internal/ports"
)

// PredictionService is the entry point used by presentation code. It
// exposes the three prediction sources over one race.
type PredictionService struct {
	scorer     *WeightedScorer
	predictor  ports.OutcomePredictor
	aggregator *ConsensusAggregator
	logger     *logrus.Logger
}

// NewPredictionService wires the prediction sources together. scorer and
// aggregator are required; predictor may be nil, in which case Machine
// reports an error.
func NewPredictionService(
	scorer *WeightedScorer,
	predictor ports.OutcomePredictor,
	aggregator *ConsensusAggregator,
	logger *logrus.Logger,
) (*PredictionService, error) {
	if scorer == nil {
		return nil, errors.New("scorer cannot be nil")
	}
	if aggregator == nil {
		return nil, errors.New("aggregator cannot be nil")
	}
	return &PredictionService{
		scorer:     scorer,
		predictor:  predictor,
		aggregator: aggregator,
		logger:     loggerOrDiscard(logger),
	}, nil
}

// Statistical scores the race with weights. Nil weights select
// domain.DefaultWeights.
func (s *PredictionService) Statistical(
	race domain.RaceContext,
	weights domain.WeightConfig,
) (*domain.StatisticalPrediction, error) {
	if weights == nil {
		weights = domain.DefaultWeights()
	}
	return s.scorer.Score(race.RaceID, race.Entries, weights)
}

// Machine runs the outcome predictor over the race entries.
func (s *PredictionService) Machine(ctx context.Context, race domain.RaceContext) (*domain.MLPrediction, error) {
	if s.predictor == nil {
		return nil, errors.New("no outcome predictor configured")
	}
	if err := s.scorer.validateInput(race.Entries, nil); err != nil {
		return nil, err
	}

	pred, err := s.predictor.Predict(ctx, race)
	if err != nil {
		return nil, fmt.Errorf("outcome prediction for race %d: %w", race.RaceID, err)
	}
	if pred.RaceID == 0 {
		pred.RaceID = race.RaceID
	}
	return &pred, nil
}

// Consensus validates the race entries and runs one MAGI consensus round
// with cfg. See ConsensusAggregator.Aggregate for the error contract.
func (s *PredictionService) Consensus(
	ctx context.Context,
	race domain.RaceContext,
	cfg domain.MAGIConfig,
) (*domain.ConsensusResult, error) {
	if err := s.scorer.validateInput(race.Entries, nil); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"race_id":   race.RaceID,
		"providers": cfg.UsableProviders(),
	}).Debug("starting consensus")

	return s.aggregator.Aggregate(ctx, race, cfg)
}

// Analyze asks one provider for its prediction and analysis of the race,
// without the consensus quorum. See ConsensusAggregator.Consult.
func (s *PredictionService) Analyze(
	ctx context.Context,
	race domain.RaceContext,
	cfg domain.MAGIConfig,
	id domain.ProviderID,
) (*domain.ProviderVerdict, error) {
	if err := s.scorer.validateInput(race.Entries, nil); err != nil {
		return nil, err
	}
	return s.aggregator.Consult(ctx, race, cfg, id)
}
