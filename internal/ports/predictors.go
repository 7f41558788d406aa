package ports

import (
	"context"

	"github.com/ahrav/go-magi/internal/domain"
)

// Judge is the capability every AI backend exposes to the consensus
// aggregator. Implementations must never return an error or panic past
// this boundary: every failure is reported as a StatusError verdict.
type Judge interface {
	// Provider returns the slot this judge serves.
	Provider() domain.ProviderID

	// Judge asks the backend for a finishing order. An empty credential
	// yields a StatusDisabled verdict without any network activity. The
	// caller bounds the call through ctx.
	Judge(ctx context.Context, race domain.RaceContext, slot domain.ProviderSlot) domain.ProviderVerdict
}

// OutcomePredictor is the opaque machine-learning model: entry statistics
// in, per-entrant place probabilities and an overall confidence out.
type OutcomePredictor interface {
	Predict(ctx context.Context, race domain.RaceContext) (domain.MLPrediction, error)
}
