package application

import (
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/ahrav/go-magi/internal/domain"
)

// baseLaneWinRates is the venue-independent first-place rate per lane,
// used when an entry carries no historical lane win rate.
var baseLaneWinRates = map[int]float64{1: 55, 2: 14, 3: 12, 4: 11, 5: 6, 6: 2}

const defaultLaneWinRate = 10.0

// seriesPoints converts one finishing position in the current series to points.
var seriesPoints = map[rune]float64{'1': 100, '2': 80, '3': 60, '4': 40, '5': 20, '6': 10}

const defaultSeriesScore = 50.0

// WeightedScorer turns entry statistics into a ranked StatisticalPrediction.
// It holds no per-call state and is safe for concurrent use.
type WeightedScorer struct {
	validate *validator.Validate
	logger   *logrus.Logger
}

// NewWeightedScorer creates a scorer. A nil logger discards output.
func NewWeightedScorer(logger *logrus.Logger) *WeightedScorer {
	return &WeightedScorer{
		validate: validator.New(),
		logger:   loggerOrDiscard(logger),
	}
}

// Score validates the input, computes each entrant's weighted score and
// ranks the field. Only factors present in weights contribute. Equal scores
// are ranked by ascending lane.
// Score returns a *domain.ValidationError when entries is empty or larger
// than domain.MaxEntrants, a lane is out of range or duplicated, a statistic
// is negative or not finite, or a weight is unknown, negative or not finite.
func (s *WeightedScorer) Score(
	raceID int,
	entries []domain.EntryStatistics,
	weights domain.WeightConfig,
) (*domain.StatisticalPrediction, error) {
	if err := s.validateInput(entries, weights); err != nil {
		return nil, err
	}

	if !weights.Normalized() {
		s.logger.WithFields(logrus.Fields{
			"race_id":    raceID,
			"weight_sum": weights.Sum(),
		}).Warn("scoring weights do not sum to 1.0")
	}

	stats := newFieldStats(entries)
	scores := make([]domain.BoatScore, 0, len(entries))
	for _, e := range entries {
		details := make(map[domain.Factor]float64, len(weights))
		var total float64
		// Factors() fixes the summation order so totals are bit-identical
		// across calls regardless of map iteration.
		for _, f := range domain.Factors() {
			w, ok := weights[f]
			if !ok {
				continue
			}
			c := round2(stats.normalized(f, e) * w)
			details[f] = c
			total += c
		}
		scores = append(scores, domain.BoatScore{
			Lane:    e.Lane,
			Score:   round2(total),
			Details: details,
		})
	}

	slices.SortStableFunc(scores, func(a, b domain.BoatScore) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return a.Lane - b.Lane
		}
	})
	for i := range scores {
		scores[i].Rank = i + 1
	}

	s.logger.WithFields(logrus.Fields{
		"race_id":  raceID,
		"entrants": len(scores),
	}).Debug("statistical scoring completed")

	return &domain.StatisticalPrediction{
		RaceID:           raceID,
		Scores:           scores,
		RecommendedOrder: recommendedOrder(scores),
		Weights:          weights.Clone(),
	}, nil
}

// validateInput checks entries and weights before any scoring happens.
func (s *WeightedScorer) validateInput(entries []domain.EntryStatistics, weights domain.WeightConfig) error {
	verr := domain.NewValidationError("scoring input")

	switch {
	case len(entries) == 0:
		verr.AddError("at least one entry is required")
	case len(entries) > domain.MaxEntrants:
		verr.AddErrorf("at most %d entries are allowed, got %d", domain.MaxEntrants, len(entries))
	}

	seen := make(map[int]struct{}, len(entries))
	for i, e := range entries {
		if err := s.validate.Struct(e); err != nil {
			var fieldErrs validator.ValidationErrors
			if !errors.As(err, &fieldErrs) {
				return fmt.Errorf("validating entry %d: %w", i, err)
			}
			for _, fe := range fieldErrs {
				verr.AddErrorf("entries[%d].%s failed %s=%s (got %v)", i, fe.Field(), fe.Tag(), fe.Param(), fe.Value())
			}
		}
		for _, nf := range numericFields(e) {
			if math.IsNaN(nf.value) || math.IsInf(nf.value, 0) {
				verr.AddErrorf("entries[%d].%s must be finite", i, nf.name)
			}
		}
		if _, dup := seen[e.Lane]; dup {
			verr.AddErrorf("duplicate lane %d", e.Lane)
		}
		seen[e.Lane] = struct{}{}
	}

	if err := weights.Validate(); err != nil {
		var werr *domain.ValidationError
		if errors.As(err, &werr) {
			verr.Errors = append(verr.Errors, werr.Errors...)
		} else {
			return err
		}
	}

	return verr.ErrOrNil()
}

type namedValue struct {
	name  string
	value float64
}

func numericFields(e domain.EntryStatistics) []namedValue {
	out := []namedValue{
		{"WinRateAll", e.WinRateAll},
		{"PlaceRateAll", e.PlaceRateAll},
		{"WinRateLocal", e.WinRateLocal},
		{"PlaceRateLocal", e.PlaceRateLocal},
		{"MotorRate", e.MotorRate},
		{"BoatRate", e.BoatRate},
		{"AvgStartTiming", e.AvgStartTiming},
		{"Weight", e.Weight},
	}
	if e.LaneWinRate != nil {
		out = append(out, namedValue{"LaneWinRate", *e.LaneWinRate})
	}
	return out
}

// fieldStats holds the race-wide maxima that rate factors are normalized against.
type fieldStats struct {
	maxWinAll, maxWinLocal, maxMotor, maxBoat float64

	// hasST is false when no entrant reported a start timing.
	hasST        bool
	minST, maxST float64
}

func newFieldStats(entries []domain.EntryStatistics) fieldStats {
	var fs fieldStats
	for _, e := range entries {
		fs.maxWinAll = max(fs.maxWinAll, e.WinRateAll)
		fs.maxWinLocal = max(fs.maxWinLocal, e.WinRateLocal)
		fs.maxMotor = max(fs.maxMotor, e.MotorRate)
		fs.maxBoat = max(fs.maxBoat, e.BoatRate)

		if e.AvgStartTiming <= 0 {
			continue
		}
		if !fs.hasST {
			fs.minST, fs.maxST, fs.hasST = e.AvgStartTiming, e.AvgStartTiming, true
			continue
		}
		fs.minST = min(fs.minST, e.AvgStartTiming)
		fs.maxST = max(fs.maxST, e.AvgStartTiming)
	}
	return fs
}

// normalized returns the factor's unweighted value for e on a 0..100 scale.
func (fs fieldStats) normalized(f domain.Factor, e domain.EntryStatistics) float64 {
	switch f {
	case domain.FactorWinRateAll:
		return relative(e.WinRateAll, fs.maxWinAll)
	case domain.FactorWinRateLocal:
		return relative(e.WinRateLocal, fs.maxWinLocal)
	case domain.FactorMotorRate:
		return relative(e.MotorRate, fs.maxMotor)
	case domain.FactorBoatRate:
		return relative(e.BoatRate, fs.maxBoat)
	case domain.FactorStartTiming:
		return fs.startTiming(e.AvgStartTiming)
	case domain.FactorCourseRate:
		return laneWinRate(e)
	case domain.FactorCurrentSeries:
		return seriesScore(e.CurrentSeriesResults)
	default:
		return 0
	}
}

func relative(v, maxV float64) float64 {
	if maxV == 0 {
		maxV = 1
	}
	return v / maxV * 100
}

// startTiming inverts the timing so the fastest starter scores 100 and the
// slowest 0. An unknown timing is treated as the slowest.
func (fs fieldStats) startTiming(st float64) float64 {
	if !fs.hasST {
		return 0
	}
	if st <= 0 {
		st = fs.maxST
	}
	spread := fs.maxST - fs.minST
	if spread == 0 {
		spread = 1
	}
	return max(0, fs.maxST-st) / spread * 100
}

func laneWinRate(e domain.EntryStatistics) float64 {
	if e.LaneWinRate != nil {
		return *e.LaneWinRate
	}
	if r, ok := baseLaneWinRates[e.Lane]; ok {
		return r
	}
	return defaultLaneWinRate
}

func seriesScore(results string) float64 {
	var total float64
	var n int
	for _, r := range results {
		if p, ok := seriesPoints[r]; ok {
			total += p
			n++
		}
	}
	if n == 0 {
		return defaultSeriesScore
	}
	return total / float64(n)
}

// recommendedOrder joins the lanes of the top three scores, e.g. "1-3-4".
func recommendedOrder(ranked []domain.BoatScore) string {
	n := min(3, len(ranked))
	lanes := make([]string, n)
	for i := range n {
		lanes[i] = strconv.Itoa(ranked[i].Lane)
	}
	return strings.Join(lanes, "-")
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func loggerOrDiscard(logger *logrus.Logger) *logrus.Logger {
	if logger != nil {
		return logger
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
