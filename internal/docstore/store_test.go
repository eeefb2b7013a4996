// Copyright (c) 2026 Ecodam. All rights reserved.

package docstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecodam/ecodam-api/internal/docstore"
	"github.com/ecodam/ecodam-api/internal/platform/apperr"
	"github.com/ecodam/ecodam-api/internal/platform/sec"
	"github.com/ecodam/ecodam-api/internal/rules"
)

func newStore() *docstore.Store {
	return docstore.New(docstore.NewMemoryBackend(), rules.NewEvaluator())
}

func seedUser(t *testing.T, store *docstore.Store, uid string, data map[string]any) {
	t.Helper()
	if data == nil {
		data = map[string]any{"uid": uid, "role": "user"}
	}
	_, err := store.Create(context.Background(), rules.System(), "users/"+uid, data)
	require.NoError(t, err)
}

/*
TestStore_GetGating verifies that reads are rule-gated and that denial does
not leak document existence.
*/
func TestStore_GetGating(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	seedUser(t, store, "alice", nil)

	owner := rules.Authenticated("alice", sec.RoleUser)
	stranger := rules.Authenticated("bob", sec.RoleUser)

	doc, err := store.Get(ctx, owner, "users/alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", doc.ID)

	// Denied reader: PermissionDenied whether or not the document exists.
	_, err = store.Get(ctx, stranger, "users/alice")
	assert.True(t, apperr.IsPermissionDenied(err))
	_, err = store.Get(ctx, stranger, "users/ghost")
	assert.True(t, apperr.IsPermissionDenied(err))

	// Permitted reader of a missing document gets NotFound.
	_, err = store.Get(ctx, rules.System(), "users/ghost")
	assert.True(t, apperr.IsNotFound(err))
}

/*
TestStore_SetClassification verifies that Set applies the Create cell for
missing documents and the Update cell for existing ones.
*/
func TestStore_SetClassification(t *testing.T) {
	ctx := context.Background()
	store := newStore()

	owner := rules.Authenticated("alice", sec.RoleUser)
	sessionPath := "users/alice/user_sessions/s1"

	// Sessions are owner-creatable and owner-replaceable.
	_, err := store.Set(ctx, owner, sessionPath, map[string]any{"user_agent": "cli"})
	require.NoError(t, err)
	doc, err := store.Set(ctx, owner, sessionPath, map[string]any{"user_agent": "web"})
	require.NoError(t, err)
	assert.Equal(t, "web", doc.Str("user_agent"))

	// Profiles: Set on a missing profile hits the Create cell, which a
	// plain user fails even for their own uid.
	_, err = store.Set(ctx, owner, "users/alice", map[string]any{"uid": "alice"})
	assert.True(t, apperr.IsPermissionDenied(err))
}

/*
TestStore_UpdateMerge verifies partial merges and the field-pin evaluation
against merged content.
*/
func TestStore_UpdateMerge(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	seedUser(t, store, "alice", map[string]any{"uid": "alice", "role": "user", "username": "alice", "bio": "hi"})

	owner := rules.Authenticated("alice", sec.RoleUser)

	// Partial update keeps unmentioned fields.
	doc, err := store.Update(ctx, owner, "users/alice", map[string]any{"username": "alicia"})
	require.NoError(t, err)
	assert.Equal(t, "alicia", doc.Str("username"))
	assert.Equal(t, "hi", doc.Str("bio"))

	// Role escalation through a partial update is denied with no write.
	_, err = store.Update(ctx, owner, "users/alice", map[string]any{"role": "admin"})
	assert.True(t, apperr.IsPermissionDenied(err))

	after, err := store.Get(ctx, owner, "users/alice")
	require.NoError(t, err)
	assert.Equal(t, "user", after.Str("role"))

	// Updating a missing document yields NotFound once the rules pass.
	_, err = store.Update(ctx, rules.System(), "users/ghost", map[string]any{"bio": "x"})
	assert.True(t, apperr.IsNotFound(err))
}

/*
TestStore_ProfilePinnedFields verifies that an owner can neither author the
trusted profile fields through a partial update nor strip them through a
full replace: Set proposes the complete new content, so omitting a pinned
field counts as changing it.
*/
func TestStore_ProfilePinnedFields(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	profile := map[string]any{
		"uid":                "alice",
		"role":               "user",
		"username":           "alice",
		"password_hash":      "x",
		"email_verified":     false,
		"monthly_points":     0,
		"accumulated_points": 0,
		"points_month":       "202608",
		"grade":              "seed",
	}
	seedUser(t, store, "alice", profile)

	owner := rules.Authenticated("alice", sec.RoleUser)

	// Partial update inflating point state is denied with no write.
	_, err := store.Update(ctx, owner, "users/alice", map[string]any{"accumulated_points": 999999, "grade": "earth_guardian"})
	assert.True(t, apperr.IsPermissionDenied(err))

	// Full replace omitting role and password_hash would strip them; denied.
	_, err = store.Set(ctx, owner, "users/alice", map[string]any{"uid": "alice", "username": "mallory"})
	assert.True(t, apperr.IsPermissionDenied(err))

	after, err := store.Get(ctx, owner, "users/alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", after.Str("username"))
	assert.Equal(t, "seed", after.Str("grade"))
	assert.Zero(t, after.Int("accumulated_points"))
	assert.Equal(t, "x", after.Str("password_hash"))

	// A replace that carries every pinned field unchanged still works.
	replacement := make(map[string]any, len(profile))
	for key, value := range profile {
		replacement[key] = value
	}
	replacement["username"] = "alicia"
	doc, err := store.Set(ctx, owner, "users/alice", replacement)
	require.NoError(t, err)
	assert.Equal(t, "alicia", doc.Str("username"))
}

/*
TestStore_CreateConflict verifies the insert-only idempotency primitive.
*/
func TestStore_CreateConflict(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	seedUser(t, store, "alice", nil)

	path := "users/alice/analysis_results/evt-1"
	_, err := store.Create(ctx, rules.System(), path, map[string]any{"final": 25})
	require.NoError(t, err)

	_, err = store.Create(ctx, rules.System(), path, map[string]any{"final": 25})
	assert.True(t, apperr.IsConflict(err))
}

/*
TestStore_QueryVisibility verifies that query results are filtered per
document by the read rule rather than failing wholesale.
*/
func TestStore_QueryVisibility(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	seedUser(t, store, "alice", map[string]any{"uid": "alice", "role": "user", "email": "a@x.io"})
	seedUser(t, store, "bob", map[string]any{"uid": "bob", "role": "user", "email": "b@x.io"})

	// System sees every profile; a user sees only their own.
	all, err := store.Query(ctx, rules.System(), "users", nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := store.Query(ctx, rules.Authenticated("alice", sec.RoleUser), "users", nil)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "alice", mine[0].ID)

	// Equality filters narrow the system view.
	filtered, err := store.Query(ctx, rules.System(), "users", map[string]any{"email": "b@x.io"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "bob", filtered[0].ID)
}

/*
TestStore_QueryGroup verifies cross-parent collection-group reads, the
leaderboard access pattern.
*/
func TestStore_QueryGroup(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	seedUser(t, store, "alice", nil)
	seedUser(t, store, "bob", nil)

	system := rules.System()
	for _, uid := range []string{"alice", "bob"} {
		_, err := store.Create(ctx, system, "users/"+uid+"/rank_accounts/"+uid, map[string]any{"uid": uid, "monthly_points": 10})
		require.NoError(t, err)
	}

	// Rank accounts are world-readable: anonymous sees both.
	docs, err := store.QueryGroup(ctx, rules.Anonymous(), "rank_accounts", nil)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	// Profile documents stay invisible to anonymous group readers.
	docs, err = store.QueryGroup(ctx, rules.Anonymous(), "users", nil)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

/*
TestStore_InTxRollback verifies that a failing transaction leaves no
partial writes behind.
*/
func TestStore_InTxRollback(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	seedUser(t, store, "alice", nil)

	system := rules.System()
	resultPath := "users/alice/analysis_results/evt-1"
	_, err := store.Create(ctx, system, resultPath, map[string]any{"final": 10})
	require.NoError(t, err)

	// Transaction updates the profile, then trips the duplicate-event gate.
	err = store.InTx(ctx, func(tx *docstore.Store) error {
		if _, err := tx.Update(ctx, system, "users/alice", map[string]any{"monthly_points": 999}); err != nil {
			return err
		}
		_, err := tx.Create(ctx, system, resultPath, map[string]any{"final": 10})
		return err
	})
	require.Error(t, err)
	assert.True(t, apperr.IsConflict(err))

	// The profile update must not have survived.
	doc, err := store.Get(ctx, system, "users/alice")
	require.NoError(t, err)
	assert.Zero(t, doc.Int("monthly_points"))
}

/*
TestStore_DataIsolation verifies that returned documents never alias
backend state.
*/
func TestStore_DataIsolation(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	seedUser(t, store, "alice", map[string]any{"uid": "alice", "role": "user", "username": "alice"})

	system := rules.System()
	doc, err := store.Get(ctx, system, "users/alice")
	require.NoError(t, err)
	doc.Data["username"] = "mutated"

	again, err := store.Get(ctx, system, "users/alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", again.Str("username"))
}
