package domain

import (
	"time"
)

// VerdictStatus is the lifecycle state of one provider's verdict.
type VerdictStatus string

// Verdict statuses.
const (
	// StatusDisabled marks a provider that had no usable credentials and was
	// never invoked.
	StatusDisabled VerdictStatus = "disabled"
	// StatusSuccess marks a provider that returned a parsable finishing order.
	StatusSuccess VerdictStatus = "success"
	// StatusError marks a provider that was invoked and failed, including timeouts.
	StatusError VerdictStatus = "error"
)

// Active reports whether the provider took part in the vote, successfully or not.
func (s VerdictStatus) Active() bool { return s == StatusSuccess || s == StatusError }

// ConfidenceLabel is the provider's self-reported confidence.
type ConfidenceLabel string

// Confidence labels.
const (
	ConfidenceHigh   ConfidenceLabel = "high"
	ConfidenceMedium ConfidenceLabel = "medium"
	ConfidenceLow    ConfidenceLabel = "low"
)

// ProviderVerdict is one provider's judgment for one race. It is created
// per call and consumed once by the aggregator.
type ProviderVerdict struct {
	// Provider identifies the backend slot.
	Provider ProviderID `json:"provider"`

	// Name is the MAGI unit name of the slot.
	Name string `json:"name"`

	// Model is the model that answered, when known.
	Model string `json:"model,omitempty"`

	Status VerdictStatus `json:"status"`

	// Prediction is the finishing-order token, e.g. "1-3-4".
	Prediction string `json:"prediction,omitempty"`

	Confidence ConfidenceLabel `json:"confidence,omitempty"`

	// Analysis is the raw narrative returned by the provider.
	Analysis string `json:"analysis,omitempty"`

	TokensUsed int `json:"tokens_used,omitempty"`

	// Error is a human-readable failure detail for StatusError.
	Error string `json:"error,omitempty"`

	// Latency is how long the call took. Zero for disabled providers.
	Latency time.Duration `json:"latency_ns,omitempty"`
}

// DisabledVerdict returns the static verdict for a provider that was not invoked.
func DisabledVerdict(id ProviderID) ProviderVerdict {
	return ProviderVerdict{Provider: id, Name: id.MagiName(), Status: StatusDisabled}
}

// ErrorVerdict returns a verdict for a provider that failed.
func ErrorVerdict(id ProviderID, model string, err error) ProviderVerdict {
	v := ProviderVerdict{Provider: id, Name: id.MagiName(), Model: model, Status: StatusError}
	if err != nil {
		v.Error = err.Error()
	}
	return v
}

// VoteCount is the number of votes one finishing-order token received.
type VoteCount struct {
	Token string `json:"token"`
	Votes int    `json:"votes"`
}

// ConsensusResult is the aggregator's immutable output for one race.
type ConsensusResult struct {
	// ID uniquely identifies this aggregation (a UUID).
	ID string `json:"id"`

	RaceID int `json:"race_id"`

	// Verdicts holds one verdict per recognized provider in slot order.
	Verdicts []ProviderVerdict `json:"results"`

	// VoteDetail is sorted by votes descending, then token ascending.
	VoteDetail []VoteCount `json:"vote_detail"`

	// Winner is the consensus token. Empty when there is no winner.
	Winner string `json:"consensus,omitempty"`

	// AgreementRatio is the winner's share of the successful verdicts.
	// Zero when there is no winner.
	AgreementRatio float64 `json:"consensus_rate"`

	// ActiveCount is the number of providers that were invoked, successful
	// or not.
	ActiveCount int `json:"active_count"`

	// Policy is the winner-selection policy that was applied.
	Policy ConsensusPolicy `json:"policy"`

	CreatedAt time.Time `json:"created_at"`
}

// HasWinner reports whether a consensus token was reached.
func (r *ConsensusResult) HasWinner() bool { return r.Winner != "" }

// Votes returns the tally as a map from token to count.
func (r *ConsensusResult) Votes() map[string]int {
	out := make(map[string]int, len(r.VoteDetail))
	for _, vc := range r.VoteDetail {
		out[vc.Token] = vc.Votes
	}
	return out
}

// Outcome classifies the result for presentation.
func (r *ConsensusResult) Outcome() ConsensusOutcome {
	if r.HasWinner() {
		return OutcomeVerdict
	}
	return OutcomeInconclusive
}

// ConsensusOutcome distinguishes the user-visible result categories.
type ConsensusOutcome string

// Consensus outcomes. OutcomeUnconfigured is reported by callers that
// received an InsufficientQuorumError.
const (
	OutcomeUnconfigured ConsensusOutcome = "unconfigured"
	OutcomeInconclusive ConsensusOutcome = "inconclusive"
	OutcomeVerdict      ConsensusOutcome = "verdict"
)
