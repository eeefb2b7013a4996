// Copyright (c) 2026 Ecodam. All rights reserved.

package users_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecodam/ecodam-api/internal/docstore"
	"github.com/ecodam/ecodam-api/internal/platform/apperr"
	"github.com/ecodam/ecodam-api/internal/platform/sec"
	"github.com/ecodam/ecodam-api/internal/rules"
	"github.com/ecodam/ecodam-api/internal/users"
	"github.com/ecodam/ecodam-api/pkg/pagination"
)

// memoryTokens is an in-memory stand-in for the Redis token repositories.
type memoryTokens struct {
	mu     sync.Mutex
	tokens map[string]string
}

func newMemoryTokens() *memoryTokens {
	return &memoryTokens{tokens: make(map[string]string)}
}

func (m *memoryTokens) Set(_ context.Context, token, userID string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token] = userID
	return nil
}

func (m *memoryTokens) Get(_ context.Context, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	uid, ok := m.tokens[token]
	if !ok {
		return "", apperr.NotFound("Token")
	}
	return uid, nil
}

func (m *memoryTokens) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, token)
	return nil
}

// last returns the only stored token; test helper.
func (m *memoryTokens) last(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.Len(t, m.tokens, 1)
	for token := range m.tokens {
		return token
	}
	return ""
}

// staticTokenProvider issues a fixed token string.
type staticTokenProvider struct{}

func (staticTokenProvider) GenerateAccessToken(string, string, string, time.Duration) (string, error) {
	return "signed-jwt", nil
}

type fixture struct {
	store   *docstore.Store
	service *users.Service
	resets  *memoryTokens
	verify  *memoryTokens
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := docstore.New(docstore.NewMemoryBackend(), rules.NewEvaluator())
	resets := newMemoryTokens()
	verify := newMemoryTokens()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := users.NewService(store, resets, verify, staticTokenProvider{}, logger)
	return &fixture{store: store, service: service, resets: resets, verify: verify}
}

func register(t *testing.T, f *fixture) *users.User {
	t.Helper()
	user, err := f.service.Register(context.Background(), users.RegisterInput{
		Username:  "alice",
		Email:     "alice@example.com",
		Password:  "correct horse",
		Apartment: "Green Hill 2",
	})
	require.NoError(t, err)
	return user
}

/*
TestService_Register verifies provisioning through the trusted signup flow.
*/
func TestService_Register(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	user := register(t, f)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "user", user.Role)
	assert.Equal(t, "green-hill-2", user.Apartment) // free text became a slug
	assert.False(t, user.EmailVerified)
	assert.Zero(t, user.Accumulated)

	// The stored document carries a hash, never the raw password.
	doc, err := f.store.Get(ctx, rules.System(), "users/"+user.UID)
	require.NoError(t, err)
	hash := doc.Str(users.FieldPasswordHash)
	assert.NotEmpty(t, hash)
	assert.NotEqual(t, "correct horse", hash)
	assert.True(t, sec.CheckPasswordHash("correct horse", hash))

	// The verification document was provisioned alongside the Redis token,
	// addressable by the token digest.
	token := f.verify.last(t)
	owner := rules.Authenticated(user.UID, sec.RoleUser)
	verification, err := f.store.Get(ctx, owner, "users/"+user.UID+"/email_verifications/"+sec.HashToken(token))
	require.NoError(t, err)
	assert.Equal(t, "pending", verification.Str(users.FieldStatus))

	// Duplicate identities conflict.
	_, err = f.service.Register(ctx, users.RegisterInput{Username: "other", Email: "alice@example.com", Password: "x1234567"})
	assert.True(t, apperr.IsConflict(err))
	_, err = f.service.Register(ctx, users.RegisterInput{Username: "alice", Email: "new@example.com", Password: "x1234567"})
	assert.True(t, apperr.IsConflict(err))
}

/*
TestService_Login verifies credential checks and the session side effects.
*/
func TestService_Login(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := register(t, f)

	session, err := f.service.Login(ctx, users.LoginInput{
		Email:    "alice@example.com",
		Password: "correct horse",
	})
	require.NoError(t, err)
	assert.Equal(t, "signed-jwt", session.AccessToken)
	assert.Equal(t, user.UID, session.User.UID)

	// A session document now belongs to the user.
	owner := rules.Authenticated(user.UID, sec.RoleUser)
	sessions, _, err := f.service.ListSessions(ctx, owner, user.UID, pagination.Params{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, sessions, 1)

	// Wrong password and unknown email fail identically.
	_, err = f.service.Login(ctx, users.LoginInput{Email: "alice@example.com", Password: "wrong"})
	wrongPass := apperr.As(err)
	_, err = f.service.Login(ctx, users.LoginInput{Email: "nobody@example.com", Password: "wrong"})
	unknown := apperr.As(err)
	require.NotNil(t, wrongPass)
	require.NotNil(t, unknown)
	assert.Equal(t, wrongPass.Message, unknown.Message)
}

/*
TestService_ProfileAuthority verifies that profile operations carry the
caller's principal into the document rules.
*/
func TestService_ProfileAuthority(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := register(t, f)

	owner := rules.Authenticated(user.UID, sec.RoleUser)
	stranger := rules.Authenticated("someone-else", sec.RoleUser)
	admin := rules.Authenticated("root", sec.RoleAdmin)

	// Owner reads; stranger is denied.
	_, err := f.service.Get(ctx, owner, user.UID)
	require.NoError(t, err)
	_, err = f.service.Get(ctx, stranger, user.UID)
	assert.True(t, apperr.IsPermissionDenied(err))

	// Self-promotion is denied at the store; admin promotion succeeds.
	role := "admin"
	_, err = f.service.UpdateProfile(ctx, owner, user.UID, users.UpdateProfileInput{Role: &role})
	assert.True(t, apperr.IsPermissionDenied(err))
	updated, err := f.service.UpdateProfile(ctx, admin, user.UID, users.UpdateProfileInput{Role: &role})
	require.NoError(t, err)
	assert.Equal(t, "admin", updated.Role)

	// Deletion is admin-only.
	assert.True(t, apperr.IsPermissionDenied(f.service.Delete(ctx, stranger, user.UID)))
	require.NoError(t, f.service.Delete(ctx, admin, user.UID))
}

/*
TestService_PasswordRecovery verifies the full pre-auth reset round trip.
*/
func TestService_PasswordRecovery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := register(t, f)

	// Unknown email reports success without leaving a token behind.
	require.NoError(t, f.service.ForgotPassword(ctx, "nobody@example.com"))
	assert.Empty(t, f.resets.tokens)

	require.NoError(t, f.service.ForgotPassword(ctx, "alice@example.com"))
	token := f.resets.last(t)

	require.NoError(t, f.service.ResetPassword(ctx, token, "new password!"))

	// Old credentials die, new ones work, the token is burned.
	_, err := f.service.Login(ctx, users.LoginInput{Email: "alice@example.com", Password: "correct horse"})
	assert.Error(t, err)
	session, err := f.service.Login(ctx, users.LoginInput{Email: "alice@example.com", Password: "new password!"})
	require.NoError(t, err)
	assert.Equal(t, user.UID, session.User.UID)

	err = f.service.ResetPassword(ctx, token, "again!")
	assert.True(t, apperr.IsNotFound(err))
}

/*
TestService_VerifyEmail verifies the verification round trip.
*/
func TestService_VerifyEmail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := register(t, f)

	token := f.verify.last(t)
	require.NoError(t, f.service.VerifyEmail(ctx, token))

	owner := rules.Authenticated(user.UID, sec.RoleUser)
	fresh, err := f.service.Get(ctx, owner, user.UID)
	require.NoError(t, err)
	assert.True(t, fresh.EmailVerified)

	// Token is single-use.
	assert.True(t, apperr.IsNotFound(f.service.VerifyEmail(ctx, token)))
}

/*
TestService_ActivityVisibility verifies that the audit trail is admin-only.
*/
func TestService_ActivityVisibility(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := register(t, f)

	admin := rules.Authenticated("root", sec.RoleAdmin)
	owner := rules.Authenticated(user.UID, sec.RoleUser)
	page := pagination.Params{Page: 1, Limit: 10}

	entries, _, err := f.service.ListActivity(ctx, admin, user.UID, page)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "register", entries[0].Action)

	// The subject user cannot read their own audit trail.
	entries, _, err = f.service.ListActivity(ctx, owner, user.UID, page)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
