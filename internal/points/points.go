// Copyright (c) 2026 Ecodam. All rights reserved.

/*
Package points implements point accrual driven by waste-analysis outcomes.

Each analysis event carries how many items the user sorted correctly and
incorrectly. Correct items earn points, incorrect ones deduct, and the
resulting delta feeds two counters with different semantics:

  - monthly: the leaderboard score, silently reset at each UTC month
    boundary (lazily, on the first event of the new month). May go negative.
  - accumulated: the lifetime total driving the grade, floored at zero.

Grades are re-derived from the accumulated total on every accrual; they are
monotonic in the total and carry no hysteresis, so a dropping total can
demote.
*/
package points

import (
	"fmt"
	"time"
)

// # Tuning

// Accrual rates per classified item. Wired from configuration at startup;
// both must be positive.
type Rates struct {
	// Reward is granted per correctly sorted item.
	Reward int
	// Penalty is deducted per incorrectly sorted item.
	Penalty int
}

// DefaultRates mirrors the production configuration defaults.
func DefaultRates() Rates { return Rates{Reward: 10, Penalty: 5} }

// # Grades

// Grade is the tier derived from a user's accumulated point total.
type Grade string

const (
	GradeSeed          Grade = "seed"
	GradeSprout        Grade = "sprout"
	GradeEarthFriend   Grade = "earth_friend"
	GradeEarthGuardian Grade = "earth_guardian"
)

// gradeThresholds maps each tier to the minimum accumulated total that
// earns it, in ascending order.
var gradeThresholds = []struct {
	grade Grade
	min   int
}{
	{GradeSeed, 0},
	{GradeSprout, 1000},
	{GradeEarthFriend, 5000},
	{GradeEarthGuardian, 10000},
}

// GradeFor returns the tier for an accumulated total. Totals below the
// first threshold (impossible given the zero floor, but cheap to handle)
// map to the lowest tier.
func GradeFor(accumulated int) Grade {
	grade := GradeSeed
	for _, tier := range gradeThresholds {
		if accumulated >= tier.min {
			grade = tier.grade
		}
	}
	return grade
}

// # Events & Results

// Event is a single delivered waste-analysis outcome.
//
// EventID is the idempotency key: applying the same event twice must not
// double-count, so the persisted analysis result document is keyed by it.
type Event struct {
	EventID    string
	UID        string
	Correct    int
	Incorrect  int
	OccurredAt time.Time
}

// Result is the applied outcome of one accrual.
type Result struct {
	Earned   int `json:"earned"`
	Deducted int `json:"deducted"`
	Final    int `json:"final"`

	Monthly     int   `json:"monthly_points"`
	Accumulated int   `json:"accumulated_points"`
	Grade       Grade `json:"grade"`

	// MonthReset reports whether this event was the first of a new UTC
	// month and restarted the monthly counter.
	MonthReset bool `json:"month_reset"`
}

// Compute derives the raw point delta of an event. Final may be negative.
func (r Rates) Compute(correct, incorrect int) (earned, deducted, final int) {
	earned = correct * r.Reward
	deducted = incorrect * r.Penalty
	return earned, deducted, earned - deducted
}

// MonthKey formats the UTC accrual month of a timestamp as "YYYYMM".
func MonthKey(t time.Time) string {
	utc := t.UTC()
	return fmt.Sprintf("%04d%02d", utc.Year(), int(utc.Month()))
}

// Apply folds an event's delta into the given counters, handling the lazy
// monthly reset and the accumulated floor. It is pure; persistence is the
// service's job.
func Apply(rates Rates, event Event, monthly, accumulated int, pointsMonth string) Result {
	earned, deducted, final := rates.Compute(event.Correct, event.Incorrect)

	eventMonth := MonthKey(event.OccurredAt)
	reset := pointsMonth != "" && pointsMonth != eventMonth
	if reset {
		monthly = 0
	}

	monthly += final
	accumulated += final
	if accumulated < 0 {
		accumulated = 0
	}

	return Result{
		Earned:      earned,
		Deducted:    deducted,
		Final:       final,
		Monthly:     monthly,
		Accumulated: accumulated,
		Grade:       GradeFor(accumulated),
		MonthReset:  reset,
	}
}
