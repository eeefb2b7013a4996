// Copyright (c) 2026 Ecodam. All rights reserved.

package points_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ecodam/ecodam-api/internal/points"
)

func eventAt(year int, month time.Month, correct, incorrect int) points.Event {
	return points.Event{
		EventID:    "evt",
		UID:        "alice",
		Correct:    correct,
		Incorrect:  incorrect,
		OccurredAt: time.Date(year, month, 15, 12, 0, 0, 0, time.UTC),
	}
}

/*
TestCompute verifies the raw delta arithmetic at the default rates.
*/
func TestCompute(t *testing.T) {
	rates := points.DefaultRates()

	tests := []struct {
		name      string
		correct   int
		incorrect int
		earned    int
		deducted  int
		final     int
	}{
		{"mixed_batch", 3, 1, 30, 5, 25},
		{"all_correct", 5, 0, 50, 0, 50},
		{"all_incorrect", 0, 4, 0, 20, -20},
		{"empty_batch", 0, 0, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			earned, deducted, final := rates.Compute(tt.correct, tt.incorrect)
			assert.Equal(t, tt.earned, earned)
			assert.Equal(t, tt.deducted, deducted)
			assert.Equal(t, tt.final, final)
		})
	}
}

/*
TestGradeFor verifies the tier thresholds and monotonicity.
*/
func TestGradeFor(t *testing.T) {
	tests := []struct {
		accumulated int
		grade       points.Grade
	}{
		{0, points.GradeSeed},
		{999, points.GradeSeed},
		{1000, points.GradeSprout},
		{4999, points.GradeSprout},
		{5000, points.GradeEarthFriend},
		{9999, points.GradeEarthFriend},
		{10000, points.GradeEarthGuardian},
		{250000, points.GradeEarthGuardian},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.grade, points.GradeFor(tt.accumulated), "accumulated=%d", tt.accumulated)
	}

	// Monotonic: a larger total never yields a lower tier.
	order := map[points.Grade]int{
		points.GradeSeed: 0, points.GradeSprout: 1,
		points.GradeEarthFriend: 2, points.GradeEarthGuardian: 3,
	}
	previous := points.GradeSeed
	for total := 0; total <= 12000; total += 250 {
		current := points.GradeFor(total)
		assert.GreaterOrEqual(t, order[current], order[previous])
		previous = current
	}
}

/*
TestApply_MonthlyReset verifies the lazy month rollover: the first event of
a new UTC month restarts the monthly counter but never the accumulated one.
*/
func TestApply_MonthlyReset(t *testing.T) {
	rates := points.DefaultRates()

	// Same month: counters just advance.
	result := points.Apply(rates, eventAt(2026, time.March, 3, 1), 100, 2000, "202603")
	assert.False(t, result.MonthReset)
	assert.Equal(t, 125, result.Monthly)
	assert.Equal(t, 2025, result.Accumulated)

	// New month: monthly restarts from zero before the delta applies.
	result = points.Apply(rates, eventAt(2026, time.April, 3, 1), 100, 2000, "202603")
	assert.True(t, result.MonthReset)
	assert.Equal(t, 25, result.Monthly)
	assert.Equal(t, 2025, result.Accumulated)

	// A fresh account (no stored month) is not treated as a rollover.
	result = points.Apply(rates, eventAt(2026, time.April, 1, 0), 0, 0, "")
	assert.False(t, result.MonthReset)
	assert.Equal(t, 10, result.Monthly)
}

/*
TestApply_AccumulatedFloor verifies the zero floor on the lifetime total
while the monthly counter is allowed to go negative.
*/
func TestApply_AccumulatedFloor(t *testing.T) {
	rates := points.DefaultRates()

	result := points.Apply(rates, eventAt(2026, time.March, 0, 4), 5, 10, "202603")
	assert.Equal(t, -20, result.Final)
	assert.Equal(t, -15, result.Monthly)
	assert.Equal(t, 0, result.Accumulated)
	assert.Equal(t, points.GradeSeed, result.Grade)
}

/*
TestMonthKey verifies UTC month bucketing across timezone boundaries.
*/
func TestMonthKey(t *testing.T) {
	assert.Equal(t, "202603", points.MonthKey(time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)))

	// 23:30 on March 31st in UTC+2 is still March in local time but the
	// bucket follows UTC.
	zone := time.FixedZone("UTC+2", 2*3600)
	assert.Equal(t, "202603", points.MonthKey(time.Date(2026, time.April, 1, 1, 30, 0, 0, zone)))
}
