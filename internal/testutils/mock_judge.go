package testutils

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ahrav/go-magi/internal/domain"
	"github.com/ahrav/go-magi/internal/ports"
)

// MockJudge is a scripted ports.Judge that counts invocations.
type MockJudge struct {
	ID domain.ProviderID

	// Verdict is returned as-is; Provider and Name are filled in when empty.
	Verdict domain.ProviderVerdict

	// Delay makes Judge wait before answering. When IgnoreContext is false
	// the wait ends early with an error verdict if ctx is done.
	Delay         time.Duration
	IgnoreContext bool

	// Panic makes Judge panic with this value.
	Panic any

	calls atomic.Int64
}

// NewSuccessJudge returns a judge that predicts token with high confidence.
func NewSuccessJudge(id domain.ProviderID, token string) *MockJudge {
	return &MockJudge{
		ID: id,
		Verdict: domain.ProviderVerdict{
			Status:     domain.StatusSuccess,
			Prediction: token,
			Confidence: domain.ConfidenceHigh,
			TokensUsed: 100,
		},
	}
}

// NewErrorJudge returns a judge that always fails with detail.
func NewErrorJudge(id domain.ProviderID, detail string) *MockJudge {
	return &MockJudge{
		ID:      id,
		Verdict: domain.ProviderVerdict{Status: domain.StatusError, Error: detail},
	}
}

// Provider implements ports.Judge.
func (j *MockJudge) Provider() domain.ProviderID { return j.ID }

// Judge implements ports.Judge.
func (j *MockJudge) Judge(ctx context.Context, _ domain.RaceContext, slot domain.ProviderSlot) domain.ProviderVerdict {
	if slot.Credential == "" {
		return domain.DisabledVerdict(j.ID)
	}
	j.calls.Add(1)
	if j.Panic != nil {
		panic(j.Panic)
	}

	if j.Delay > 0 {
		if j.IgnoreContext {
			time.Sleep(j.Delay)
		} else {
			select {
			case <-time.After(j.Delay):
			case <-ctx.Done():
				return domain.ErrorVerdict(j.ID, slot.Model, ctx.Err())
			}
		}
	}

	v := j.Verdict
	if v.Provider == "" {
		v.Provider = j.ID
	}
	if v.Name == "" {
		v.Name = j.ID.MagiName()
	}
	return v
}

// CallCount returns how many times Judge ran with a credential.
func (j *MockJudge) CallCount() int { return int(j.calls.Load()) }

var _ ports.Judge = (*MockJudge)(nil)
