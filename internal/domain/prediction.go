package domain

// BoatScore is the statistical outcome for one entrant.
type BoatScore struct {
	// Lane identifies the entrant.
	Lane int `json:"lane"`

	// Score is the weighted sum, rounded to two decimals. It is not clamped;
	// consumers clamp for display.
	Score float64 `json:"score"`

	// Rank is 1..N, ties broken by ascending lane.
	Rank int `json:"rank"`

	// Details holds each configured factor's contribution.
	Details map[Factor]float64 `json:"details"`
}

// StatisticalPrediction is the immutable result of one scoring run.
type StatisticalPrediction struct {
	RaceID int `json:"race_id"`

	// Scores are in rank order.
	Scores []BoatScore `json:"scores"`

	// RecommendedOrder joins the top three lanes with "-", e.g. "1-3-4".
	RecommendedOrder string `json:"recommended_order"`

	// Weights is a copy of the configuration used.
	Weights WeightConfig `json:"weights_used"`
}

// BoatProbability is the ML model's per-entrant output.
type BoatProbability struct {
	Lane         int     `json:"lane"`
	First        float64 `json:"prob_1st"`
	Second       float64 `json:"prob_2nd"`
	Third        float64 `json:"prob_3rd"`
	ExpectedRank float64 `json:"expected_rank"`
}

// MLPrediction is the opaque ML predictor's output contract.
type MLPrediction struct {
	RaceID int `json:"race_id"`

	// Probabilities are sorted by first-place probability, descending.
	Probabilities []BoatProbability `json:"probabilities"`

	PredictedOrder string `json:"predicted_order"`

	// Confidence is in [0, 1].
	Confidence float64 `json:"model_confidence"`

	// Source names the predictor that produced the result.
	Source string `json:"source"`
}
