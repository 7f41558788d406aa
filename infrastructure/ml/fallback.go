package ml

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/ahrav/go-magi/internal/domain"
	"github.com/ahrav/go-magi/internal/ports"
)

// FallbackPredictor uses the heuristic model whenever the primary fails.
type FallbackPredictor struct {
	primary   ports.OutcomePredictor
	secondary HeuristicPredictor
	logger    *logrus.Logger
}

var _ ports.OutcomePredictor = (*FallbackPredictor)(nil)

// NewFallbackPredictor wraps primary. A nil primary always uses the
// heuristic.
func NewFallbackPredictor(primary ports.OutcomePredictor, logger *logrus.Logger) *FallbackPredictor {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &FallbackPredictor{primary: primary, logger: logger}
}

// Predict implements ports.OutcomePredictor. Cancellation of ctx is
// returned rather than masked by the fallback.
func (f *FallbackPredictor) Predict(ctx context.Context, race domain.RaceContext) (domain.MLPrediction, error) {
	if f.primary == nil {
		return f.secondary.Predict(ctx, race)
	}

	pred, err := f.primary.Predict(ctx, race)
	if err == nil {
		return pred, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return domain.MLPrediction{}, ctxErr
	}

	f.logger.WithFields(logrus.Fields{
		"race_id": race.RaceID,
		"error":   err.Error(),
	}).Warn("model prediction failed, using heuristic")
	return f.secondary.Predict(ctx, race)
}
