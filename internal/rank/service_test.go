// Copyright (c) 2026 Ecodam. All rights reserved.

package rank_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecodam/ecodam-api/internal/docstore"
	"github.com/ecodam/ecodam-api/internal/rank"
	"github.com/ecodam/ecodam-api/internal/rules"
	"github.com/ecodam/ecodam-api/pkg/pagination"
)

type account struct {
	uid         string
	apartment   string
	monthly     int
	accumulated int
}

func seedBoard(t *testing.T, accounts []account) *rank.Service {
	t.Helper()
	store := docstore.New(docstore.NewMemoryBackend(), rules.NewEvaluator())
	system := rules.System()

	for _, a := range accounts {
		path := "users/" + a.uid + "/rank_accounts/" + a.uid
		_, err := store.Create(context.Background(), system, path, map[string]any{
			"uid":                a.uid,
			"username":           a.uid,
			"apartment_complex":  a.apartment,
			"monthly_points":     a.monthly,
			"accumulated_points": a.accumulated,
			"grade":              "seed",
		})
		require.NoError(t, err)
	}
	return rank.NewService(store)
}

/*
TestLeaderboard_Ordering verifies the total order: monthly desc, then
accumulated desc, then uid asc, with 1-based global ranks.
*/
func TestLeaderboard_Ordering(t *testing.T) {
	service := seedBoard(t, []account{
		{"carol", "", 50, 300},
		{"alice", "", 80, 100},
		{"dave", "", 50, 300}, // full tie with carol except uid
		{"bob", "", 50, 900},
	})

	entries, meta, err := service.Leaderboard(context.Background(), rules.Anonymous(), "", pagination.Params{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 4, meta.Total)

	uids := make([]string, 0, len(entries))
	for _, e := range entries {
		uids = append(uids, e.UID)
	}
	assert.Equal(t, []string{"alice", "bob", "carol", "dave"}, uids)

	for i, e := range entries {
		assert.Equal(t, i+1, e.Rank)
	}
}

/*
TestLeaderboard_Pagination verifies that ranks are assigned before slicing,
so page two continues the global numbering.
*/
func TestLeaderboard_Pagination(t *testing.T) {
	service := seedBoard(t, []account{
		{"a", "", 40, 0}, {"b", "", 30, 0}, {"c", "", 20, 0}, {"d", "", 10, 0},
	})

	entries, meta, err := service.Leaderboard(context.Background(), rules.Anonymous(), "", pagination.Params{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, meta.Total)
	assert.Equal(t, 2, meta.TotalPages)
	require.Len(t, entries, 2)
	assert.Equal(t, 3, entries[0].Rank)
	assert.Equal(t, "c", entries[0].UID)

	// Out-of-range page: empty data, intact metadata.
	entries, meta, err = service.Leaderboard(context.Background(), rules.Anonymous(), "", pagination.Params{Page: 9, Limit: 2})
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, 4, meta.Total)
}

/*
TestLeaderboard_ApartmentScope verifies complex-scoped boards rank only
within the scope.
*/
func TestLeaderboard_ApartmentScope(t *testing.T) {
	service := seedBoard(t, []account{
		{"alice", "green-hill", 10, 0},
		{"bob", "green-hill", 90, 0},
		{"carol", "river-side", 500, 0},
	})

	entries, meta, err := service.Leaderboard(context.Background(), rules.Anonymous(), "green-hill", pagination.Params{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, meta.Total)
	require.Len(t, entries, 2)

	// carol's global lead is invisible here; bob tops the scoped board.
	assert.Equal(t, "bob", entries[0].UID)
	assert.Equal(t, 1, entries[0].Rank)
}
