package domain

import (
	"time"
)

// MaxEntrants is the number of lanes in a race. Lanes are numbered 1..MaxEntrants.
const MaxEntrants = 6

// EntryStatistics carries the attributes of one entrant that the scorers
// and the ML feature contract consume. Values are treated as immutable once
// a prediction starts.
type EntryStatistics struct {
	// Lane is the boat/lane number, unique within a race.
	Lane int `json:"lane" yaml:"lane" validate:"min=1,max=6"`

	// RacerName is informational and only used in prompts.
	RacerName string `json:"racer_name,omitempty" yaml:"racer_name"`

	// RacerClass is the racer grade (A1, A2, B1, B2).
	RacerClass string `json:"racer_class,omitempty" yaml:"racer_class" validate:"omitempty,oneof=A1 A2 B1 B2"`

	// WinRateAll is the national win rate.
	WinRateAll float64 `json:"win_rate_all" yaml:"win_rate_all" validate:"gte=0"`

	// PlaceRateAll is the national top-two rate in percent.
	PlaceRateAll float64 `json:"place_rate_all" yaml:"place_rate_all" validate:"gte=0"`

	// WinRateLocal is the win rate at this venue.
	WinRateLocal float64 `json:"win_rate_local" yaml:"win_rate_local" validate:"gte=0"`

	// PlaceRateLocal is the top-two rate at this venue in percent.
	PlaceRateLocal float64 `json:"place_rate_local" yaml:"place_rate_local" validate:"gte=0"`

	// MotorRate is the propulsion equipment top-two rate in percent.
	MotorRate float64 `json:"motor_rate" yaml:"motor_rate" validate:"gte=0"`

	// BoatRate is the hull equipment top-two rate in percent.
	BoatRate float64 `json:"boat_rate" yaml:"boat_rate" validate:"gte=0"`

	// AvgStartTiming is the average start timing in seconds. Lower is
	// better; zero means unknown.
	AvgStartTiming float64 `json:"avg_start_timing" yaml:"avg_start_timing" validate:"gte=0"`

	// LaneWinRate is the historical first-place rate for this lane in
	// percent. Nil falls back to the venue-independent base table.
	LaneWinRate *float64 `json:"lane_win_rate,omitempty" yaml:"lane_win_rate" validate:"omitempty,gte=0"`

	// CurrentSeriesResults lists finishing positions in the current series,
	// e.g. "1324". Unrecognized characters are ignored.
	CurrentSeriesResults string `json:"current_series_results,omitempty" yaml:"current_series_results"`

	// Weight is the racer body weight in kg; zero means unknown.
	Weight float64 `json:"weight,omitempty" yaml:"weight" validate:"gte=0"`
}

// RaceContext is the payload handed to predictors and providers: the race
// identity plus its entry list.
type RaceContext struct {
	RaceID    int               `json:"race_id" yaml:"race_id"`
	VenueName string            `json:"venue_name,omitempty" yaml:"venue_name"`
	RaceDate  time.Time         `json:"race_date,omitempty" yaml:"race_date"`
	RaceNo    int               `json:"race_no,omitempty" yaml:"race_no"`
	RaceName  string            `json:"race_name,omitempty" yaml:"race_name"`
	Entries   []EntryStatistics `json:"entries" yaml:"entries"`
}
