// Copyright (c) 2026 Ecodam. All rights reserved.

package points_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecodam/ecodam-api/internal/docstore"
	"github.com/ecodam/ecodam-api/internal/platform/apperr"
	"github.com/ecodam/ecodam-api/internal/platform/sec"
	"github.com/ecodam/ecodam-api/internal/points"
	"github.com/ecodam/ecodam-api/internal/rules"
	"github.com/ecodam/ecodam-api/pkg/pagination"
)

func newFixture(t *testing.T) (*docstore.Store, *points.Service) {
	t.Helper()
	store := docstore.New(docstore.NewMemoryBackend(), rules.NewEvaluator())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := points.NewService(store, points.DefaultRates(), logger)

	_, err := store.Create(context.Background(), rules.System(), "users/alice", map[string]any{
		"uid":                "alice",
		"role":               "user",
		"username":           "alice",
		"apartment_complex":  "green-hill",
		"monthly_points":     0,
		"accumulated_points": 0,
		"points_month":       "202603",
		"grade":              "seed",
	})
	require.NoError(t, err)

	return store, service
}

func marchEvent(id string, correct, incorrect int) points.Event {
	return points.Event{
		EventID:    id,
		UID:        "alice",
		Correct:    correct,
		Incorrect:  incorrect,
		OccurredAt: time.Date(2026, time.March, 20, 9, 0, 0, 0, time.UTC),
	}
}

/*
TestService_Apply verifies the full accrual write set: profile counters,
rank account, analysis result, and audit log.
*/
func TestService_Apply(t *testing.T) {
	ctx := context.Background()
	store, service := newFixture(t)

	result, err := service.Apply(ctx, marchEvent("evt-1", 3, 1))
	require.NoError(t, err)
	assert.Equal(t, 30, result.Earned)
	assert.Equal(t, 5, result.Deducted)
	assert.Equal(t, 25, result.Final)
	assert.Equal(t, 25, result.Monthly)
	assert.Equal(t, 25, result.Accumulated)
	assert.Equal(t, points.GradeSeed, result.Grade)

	system := rules.System()

	// Profile counters moved.
	user, err := store.Get(ctx, system, "users/alice")
	require.NoError(t, err)
	assert.Equal(t, 25, user.Int("monthly_points"))
	assert.Equal(t, 25, user.Int("accumulated_points"))
	assert.Equal(t, "202603", user.Str("points_month"))

	// Leaderboard account mirrors the totals and is world-readable.
	rank, err := store.Get(ctx, rules.Anonymous(), "users/alice/rank_accounts/alice")
	require.NoError(t, err)
	assert.Equal(t, 25, rank.Int("monthly_points"))
	assert.Equal(t, "green-hill", rank.Str("apartment_complex"))

	// The analysis result is owner-readable and keyed by the event id.
	owner := rules.Authenticated("alice", sec.RoleUser)
	stored, err := store.Get(ctx, owner, "users/alice/analysis_results/evt-1")
	require.NoError(t, err)
	assert.Equal(t, 25, stored.Int("final"))

	// One audit entry, admin-visible only.
	logs, err := store.Query(ctx, rules.Authenticated("root", sec.RoleAdmin), "users/alice/user_activity_logs", nil)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

/*
TestService_ApplyIdempotent verifies that a redelivered event id conflicts
and leaves every counter untouched.
*/
func TestService_ApplyIdempotent(t *testing.T) {
	ctx := context.Background()
	store, service := newFixture(t)

	_, err := service.Apply(ctx, marchEvent("evt-1", 3, 1))
	require.NoError(t, err)

	_, err = service.Apply(ctx, marchEvent("evt-1", 3, 1))
	require.Error(t, err)
	assert.True(t, apperr.IsConflict(err))

	user, err := store.Get(ctx, rules.System(), "users/alice")
	require.NoError(t, err)
	assert.Equal(t, 25, user.Int("monthly_points"))
	assert.Equal(t, 25, user.Int("accumulated_points"))
}

/*
TestService_ApplyMonthRollover verifies the lazy reset across an accrual
month boundary while the accumulated total survives.
*/
func TestService_ApplyMonthRollover(t *testing.T) {
	ctx := context.Background()
	store, service := newFixture(t)

	_, err := service.Apply(ctx, marchEvent("evt-1", 10, 0))
	require.NoError(t, err)

	april := points.Event{
		EventID:    "evt-2",
		UID:        "alice",
		Correct:    2,
		Incorrect:  0,
		OccurredAt: time.Date(2026, time.April, 1, 0, 30, 0, 0, time.UTC),
	}
	result, err := service.Apply(ctx, april)
	require.NoError(t, err)
	assert.True(t, result.MonthReset)
	assert.Equal(t, 20, result.Monthly)
	assert.Equal(t, 120, result.Accumulated)

	user, err := store.Get(ctx, rules.System(), "users/alice")
	require.NoError(t, err)
	assert.Equal(t, "202604", user.Str("points_month"))
}

/*
TestService_ApplyFloor verifies that a net-negative event cannot push the
accumulated total below zero.
*/
func TestService_ApplyFloor(t *testing.T) {
	ctx := context.Background()
	_, service := newFixture(t)

	result, err := service.Apply(ctx, marchEvent("evt-1", 0, 3))
	require.NoError(t, err)
	assert.Equal(t, -15, result.Final)
	assert.Equal(t, -15, result.Monthly)
	assert.Equal(t, 0, result.Accumulated)
}

/*
TestService_ApplyUnknownUser verifies that accrual never provisions
accounts.
*/
func TestService_ApplyUnknownUser(t *testing.T) {
	ctx := context.Background()
	_, service := newFixture(t)

	event := marchEvent("evt-1", 1, 0)
	event.UID = "ghost"
	_, err := service.Apply(ctx, event)
	assert.True(t, apperr.IsNotFound(err))
}

/*
TestService_ListResults verifies owner visibility and ordering of the
analysis history.
*/
func TestService_ListResults(t *testing.T) {
	ctx := context.Background()
	_, service := newFixture(t)

	first := marchEvent("evt-1", 1, 0)
	second := marchEvent("evt-2", 2, 0)
	second.OccurredAt = second.OccurredAt.Add(time.Hour)

	_, err := service.Apply(ctx, first)
	require.NoError(t, err)
	_, err = service.Apply(ctx, second)
	require.NoError(t, err)

	owner := rules.Authenticated("alice", sec.RoleUser)
	page := pagination.Params{Page: 1, Limit: 10}

	results, meta, err := service.ListResults(ctx, owner, "alice", page)
	require.NoError(t, err)
	assert.Equal(t, 2, meta.Total)
	require.Len(t, results, 2)
	assert.Equal(t, "evt-2", results[0].EventID) // newest first

	// A stranger sees an empty page, not an error.
	stranger := rules.Authenticated("bob", sec.RoleUser)
	results, meta, err = service.ListResults(ctx, stranger, "alice", page)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, meta.Total)
}
