package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-magi/internal/domain"
	"github.com/ahrav/go-magi/internal/ports"
)

// SourceModel labels predictions made by a model server.
const SourceModel = "model"

// DefaultTimeout bounds a model server round trip.
const DefaultTimeout = 10 * time.Second

// maxResponseBytes caps how much of a model server reply is read.
const maxResponseBytes = 1 << 20

// ErrMalformedResponse is returned when the model server's reply does not
// match the request.
var ErrMalformedResponse = errors.New("malformed model response")

// ServerError is a non-2xx reply from the model server.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("model server returned HTTP %d", e.StatusCode)
}

type predictRequest struct {
	RaceID   int          `json:"race_id"`
	Features []FeatureRow `json:"features"`
}

// predictResponse holds one probability row per requested entrant, in
// request order. A row is [p1, p2, p3] or a full [p1..p6] distribution.
type predictResponse struct {
	Probabilities [][]float64 `json:"probabilities" validate:"required,dive,min=3,max=6,dive,gte=0,lte=1"`
	Confidence    *float64    `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// HTTPPredictor asks an external model server for place probabilities.
type HTTPPredictor struct {
	endpoint string
	client   *http.Client
	validate *validator.Validate
	tracer   trace.Tracer
}

var _ ports.OutcomePredictor = (*HTTPPredictor)(nil)

// NewHTTPPredictor creates a predictor posting to endpoint. A non-positive
// timeout selects DefaultTimeout.
func NewHTTPPredictor(endpoint string, timeout time.Duration) (*HTTPPredictor, error) {
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid model endpoint %q", endpoint)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPPredictor{
		endpoint: u.String(),
		client:   &http.Client{Timeout: timeout},
		validate: validator.New(),
		tracer:   otel.Tracer("github.com/ahrav/go-magi/ml"),
	}, nil
}

// Predict implements ports.OutcomePredictor.
func (p *HTTPPredictor) Predict(ctx context.Context, race domain.RaceContext) (domain.MLPrediction, error) {
	ctx, span := p.tracer.Start(ctx, "HTTPPredictor.Predict", trace.WithAttributes(
		attribute.Int("race.id", race.RaceID),
		attribute.Int("race.entries", len(race.Entries)),
	))
	defer span.End()

	pred, err := p.predict(ctx, race)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "prediction failed")
		return domain.MLPrediction{}, err
	}
	span.SetAttributes(attribute.Float64("ml.confidence", pred.Confidence))
	return pred, nil
}

func (p *HTTPPredictor) predict(ctx context.Context, race domain.RaceContext) (domain.MLPrediction, error) {
	body, err := json.Marshal(predictRequest{RaceID: race.RaceID, Features: Features(race.Entries)})
	if err != nil {
		return domain.MLPrediction{}, fmt.Errorf("encode features: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.MLPrediction{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return domain.MLPrediction{}, fmt.Errorf("call model server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return domain.MLPrediction{}, &ServerError{StatusCode: resp.StatusCode}
	}

	var out predictResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return domain.MLPrediction{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := p.validate.Struct(out); err != nil {
		return domain.MLPrediction{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(out.Probabilities) != len(race.Entries) {
		return domain.MLPrediction{}, fmt.Errorf("%w: %d rows for %d entries",
			ErrMalformedResponse, len(out.Probabilities), len(race.Entries))
	}

	probs := make([]domain.BoatProbability, len(race.Entries))
	for i, e := range race.Entries {
		row := out.Probabilities[i]
		probs[i] = domain.BoatProbability{
			Lane:         e.Lane,
			First:        round(row[0], 4),
			Second:       round(row[1], 4),
			Third:        round(row[2], 4),
			ExpectedRank: expectedRank(row),
		}
	}

	pred := finalize(race.RaceID, probs, SourceModel)
	if out.Confidence != nil {
		pred.Confidence = round(*out.Confidence, 4)
	}
	return pred, nil
}

// expectedRank is the mean finishing position when the full distribution is
// known, and the linear approximation from the win probability otherwise.
func expectedRank(row []float64) float64 {
	if len(row) < 6 {
		return round(7-6*row[0], 2)
	}
	var sum float64
	for k, p := range row {
		sum += p * float64(k+1)
	}
	return round(sum, 2)
}
