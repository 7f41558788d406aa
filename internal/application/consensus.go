package application

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-magi/internal/domain"
	"github.com/ahrav/go-magi/internal/ports"
)

// DefaultProviderTimeout bounds each provider call when the configuration
// does not set one.
const DefaultProviderTimeout = 60 * time.Second

// ConsensusAggregator fans a race out to every enabled judge, waits for all
// of them to settle and reduces their verdicts to a single ConsensusResult.
// It performs no retries and holds no per-call state, so one aggregator can
// serve concurrent aggregations.
type ConsensusAggregator struct {
	judges  map[domain.ProviderID]ports.Judge
	metrics ports.MetricsCollector
	logger  *logrus.Logger
	tracer  trace.Tracer

	// defaultTimeout applies when MAGIConfig.Timeout is zero.
	defaultTimeout time.Duration
	now            func() time.Time
}

// NewConsensusAggregator registers one judge per provider. metrics may be
// nil; a nil logger discards output.
// NewConsensusAggregator returns an error if a judge reports an unknown
// provider or two judges claim the same provider.
func NewConsensusAggregator(
	judges []ports.Judge,
	metrics ports.MetricsCollector,
	logger *logrus.Logger,
) (*ConsensusAggregator, error) {
	registered := make(map[domain.ProviderID]ports.Judge, len(judges))
	for _, j := range judges {
		if j == nil {
			return nil, errors.New("judge cannot be nil")
		}
		id, err := domain.ParseProviderID(string(j.Provider()))
		if err != nil {
			return nil, err
		}
		if _, dup := registered[id]; dup {
			return nil, fmt.Errorf("duplicate judge for provider %s", id)
		}
		registered[id] = j
	}

	return &ConsensusAggregator{
		judges:         registered,
		metrics:        metrics,
		logger:         loggerOrDiscard(logger),
		tracer:         otel.Tracer("github.com/ahrav/go-magi/consensus"),
		defaultTimeout: DefaultProviderTimeout,
		now:            time.Now,
	}, nil
}

// Aggregate runs one consensus round for race.
// A slot takes part when it is enabled, carries a credential and has a
// registered judge. With fewer than domain.MinQuorum such slots Aggregate
// returns *domain.InsufficientQuorumError without invoking any judge.
// Provider failures never fail the aggregation; they become error verdicts.
// If ctx is canceled before every invoked judge has settled, Aggregate
// returns ctx.Err() and no result.
func (a *ConsensusAggregator) Aggregate(
	ctx context.Context,
	race domain.RaceContext,
	cfg domain.MAGIConfig,
) (*domain.ConsensusResult, error) {
	policy := cfg.EffectivePolicy()
	if policy != domain.PolicyPlurality && policy != domain.PolicyMajority {
		verr := domain.NewValidationError("MAGIConfig")
		verr.AddErrorf("unknown consensus policy %q", cfg.Policy)
		return nil, verr
	}

	participants := a.participants(cfg)
	if len(participants) < domain.MinQuorum {
		a.logger.WithFields(logrus.Fields{
			"race_id": race.RaceID,
			"enabled": len(participants),
		}).Warn("consensus skipped: insufficient quorum")
		a.recordCounter(ports.MetricConsensusOutcomes, map[string]string{"outcome": string(domain.OutcomeUnconfigured)})
		return nil, &domain.InsufficientQuorumError{Enabled: len(participants), Required: domain.MinQuorum}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = a.defaultTimeout
	}

	ctx, span := a.tracer.Start(ctx, "ConsensusAggregator.Aggregate", trace.WithAttributes(
		attribute.Int("race.id", race.RaceID),
		attribute.Int("magi.participants", len(participants)),
		attribute.String("magi.policy", string(policy)),
		attribute.String("magi.timeout", timeout.String()),
	))
	defer span.End()

	providers := domain.Providers()
	verdicts := make([]domain.ProviderVerdict, len(providers))

	// Each goroutine writes only its own index, so the slice needs no lock.
	// Goroutines never return an error, so siblings are never canceled.
	var g errgroup.Group
	for i, id := range providers {
		judge, ok := participants[id]
		if !ok {
			verdicts[i] = domain.DisabledVerdict(id)
			continue
		}
		slot := cfg.Slot(id)
		g.Go(func() error {
			verdicts[i] = a.invoke(ctx, judge, id, race, slot, timeout)
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
	case <-done:
	}
	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "aggregation canceled")
		a.logger.WithFields(logrus.Fields{
			"race_id": race.RaceID,
			"error":   err,
		}).Warn("consensus abandoned")
		return nil, err
	}

	t := tally(verdicts, policy)
	result := &domain.ConsensusResult{
		ID:             uuid.NewString(),
		RaceID:         race.RaceID,
		Verdicts:       verdicts,
		VoteDetail:     t.detail,
		Winner:         t.winner,
		AgreementRatio: t.ratio,
		ActiveCount:    t.active,
		Policy:         policy,
		CreatedAt:      a.now().UTC(),
	}

	span.SetAttributes(
		attribute.String("magi.consensus_id", result.ID),
		attribute.Int("magi.active", result.ActiveCount),
		attribute.String("magi.winner", result.Winner),
		attribute.Float64("magi.agreement_ratio", result.AgreementRatio),
	)
	span.SetStatus(codes.Ok, "")

	a.recordResult(result)
	a.logger.WithFields(logrus.Fields{
		"race_id":         race.RaceID,
		"consensus_id":    result.ID,
		"active":          result.ActiveCount,
		"winner":          result.Winner,
		"agreement_ratio": result.AgreementRatio,
		"policy":          policy,
	}).Info("consensus completed")

	return result, nil
}

// Consult asks the single provider id for a verdict, bypassing the quorum.
// The slot is taken from cfg and its Enabled flag is ignored, since the
// caller named the provider explicitly; a missing credential is still a
// ValidationError. Provider failures come back as an error verdict, while
// cancellation of ctx returns ctx.Err().
func (a *ConsensusAggregator) Consult(
	ctx context.Context,
	race domain.RaceContext,
	cfg domain.MAGIConfig,
	id domain.ProviderID,
) (*domain.ProviderVerdict, error) {
	id, err := domain.ParseProviderID(string(id))
	if err != nil {
		return nil, err
	}
	judge, ok := a.judges[id]
	if !ok {
		return nil, fmt.Errorf("no judge registered for provider %s", id)
	}
	slot := cfg.Slot(id)
	if slot.Credential == "" {
		verr := domain.NewValidationError("MAGIConfig")
		verr.AddErrorf("%s has no credential", id)
		return nil, verr
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = a.defaultTimeout
	}

	v := a.invoke(ctx, judge, id, race, slot, timeout)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.logger.WithFields(logrus.Fields{
		"race_id":    race.RaceID,
		"provider":   id,
		"status":     v.Status,
		"prediction": v.Prediction,
	}).Info("single provider analysis completed")
	return &v, nil
}

// participants returns the judges whose slots are usable in cfg.
func (a *ConsensusAggregator) participants(cfg domain.MAGIConfig) map[domain.ProviderID]ports.Judge {
	out := make(map[domain.ProviderID]ports.Judge, len(a.judges))
	for _, id := range cfg.UsableProviders() {
		if j, ok := a.judges[id]; ok {
			out[id] = j
		}
	}
	return out
}

// invoke runs one judge under its own deadline. The call always settles:
// if the judge ignores its context, the deadline still produces an error
// verdict and the late reply is dropped.
func (a *ConsensusAggregator) invoke(
	ctx context.Context,
	judge ports.Judge,
	id domain.ProviderID,
	race domain.RaceContext,
	slot domain.ProviderSlot,
	timeout time.Duration,
) domain.ProviderVerdict {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, span := a.tracer.Start(callCtx, "Judge."+string(id), trace.WithAttributes(
		attribute.String("magi.provider", string(id)),
		attribute.String("magi.model", slot.Model),
	))
	defer span.End()

	start := time.Now()
	ch := make(chan domain.ProviderVerdict, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- domain.ErrorVerdict(id, slot.Model, fmt.Errorf("judge panicked: %v", r))
			}
		}()
		ch <- judge.Judge(ctx, race, slot)
	}()

	var v domain.ProviderVerdict
	select {
	case v = <-ch:
	case <-ctx.Done():
		v = domain.ErrorVerdict(id, slot.Model, fmt.Errorf("%s did not respond: %w", id.MagiName(), ctx.Err()))
	}
	v = settle(id, slot, v)
	if v.Latency == 0 {
		v.Latency = time.Since(start)
	}

	span.SetAttributes(attribute.String("magi.status", string(v.Status)))
	if v.Status == domain.StatusError {
		span.SetStatus(codes.Error, v.Error)
	}
	a.recordVerdict(v)
	return v
}

// settle pins the verdict to the slot it was requested for and enforces
// that an invoked judge ends in success or error.
func settle(id domain.ProviderID, slot domain.ProviderSlot, v domain.ProviderVerdict) domain.ProviderVerdict {
	v.Provider = id
	v.Name = id.MagiName()
	if v.Model == "" {
		v.Model = slot.Model
	}

	switch {
	case v.Status == domain.StatusSuccess && v.Prediction == "":
		v.Status = domain.StatusError
		v.Error = "no finishing order in response"
	case !v.Status.Active():
		v.Error = fmt.Sprintf("judge returned status %q for an enabled slot", v.Status)
		v.Status = domain.StatusError
	}
	if v.Status == domain.StatusError && v.Error == "" {
		v.Error = "unknown error"
	}
	return v
}

type tallyResult struct {
	detail []domain.VoteCount
	winner string
	ratio  float64

	// active counts invoked providers, votes only the successful ones.
	active int
	votes  int
}

// tally counts successful predictions by exact token. The top token wins
// only if no other token shares its count, and under PolicyMajority only if
// it also holds more than half of the active participants. The agreement
// ratio is the winner's share of the votes cast.
func tally(verdicts []domain.ProviderVerdict, policy domain.ConsensusPolicy) tallyResult {
	var res tallyResult
	counts := make(map[string]int)
	for _, v := range verdicts {
		if !v.Status.Active() {
			continue
		}
		res.active++
		if v.Status == domain.StatusSuccess {
			counts[v.Prediction]++
			res.votes++
		}
	}

	res.detail = make([]domain.VoteCount, 0, len(counts))
	for token, n := range counts {
		res.detail = append(res.detail, domain.VoteCount{Token: token, Votes: n})
	}
	slices.SortFunc(res.detail, func(a, b domain.VoteCount) int {
		if c := cmp.Compare(b.Votes, a.Votes); c != 0 {
			return c
		}
		return cmp.Compare(a.Token, b.Token)
	})

	if len(res.detail) == 0 {
		return res
	}
	top := res.detail[0]
	if len(res.detail) > 1 && res.detail[1].Votes == top.Votes {
		return res
	}
	if policy == domain.PolicyMajority && top.Votes*2 <= res.active {
		return res
	}
	res.winner = top.Token
	res.ratio = float64(top.Votes) / float64(res.votes)
	return res
}

func (a *ConsensusAggregator) recordVerdict(v domain.ProviderVerdict) {
	if a.metrics == nil {
		return
	}
	labels := map[string]string{"provider": string(v.Provider), "status": string(v.Status)}
	a.metrics.RecordCounter(ports.MetricProviderVerdictsTotal, 1, labels)
	a.metrics.RecordLatency(ports.MetricProviderCall, v.Latency, map[string]string{"provider": string(v.Provider)})
	if v.TokensUsed > 0 {
		a.metrics.RecordCounter(ports.MetricProviderTokensTotal, float64(v.TokensUsed), map[string]string{"provider": string(v.Provider)})
	}
	if v.Status == domain.StatusError {
		a.logger.WithFields(logrus.Fields{
			"provider": v.Provider,
			"model":    v.Model,
			"error":    v.Error,
		}).Warn("provider verdict failed")
	}
}

func (a *ConsensusAggregator) recordResult(r *domain.ConsensusResult) {
	for _, v := range r.Verdicts {
		if v.Status == domain.StatusDisabled {
			a.recordCounter(ports.MetricProviderVerdictsTotal, map[string]string{"provider": string(v.Provider), "status": string(v.Status)})
		}
	}
	a.recordCounter(ports.MetricConsensusOutcomes, map[string]string{"outcome": string(r.Outcome())})
	if a.metrics != nil {
		a.metrics.RecordHistogram(ports.MetricConsensusAgreement, r.AgreementRatio, map[string]string{"policy": string(r.Policy)})
		a.metrics.RecordGauge(ports.MetricConsensusActive, float64(r.ActiveCount), nil)
	}
}

func (a *ConsensusAggregator) recordCounter(metric string, labels map[string]string) {
	if a.metrics != nil {
		a.metrics.RecordCounter(metric, 1, labels)
	}
}
