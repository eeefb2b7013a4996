// Copyright (c) 2026 Ecodam. All rights reserved.

/*
Package users implements the user lifecycle on top of the rule-gated
document store: registration, login, profile management, sessions, email
verification, password recovery, and the append-only activity log.

Architecture:

  - Service: Orchestrates the flows; every document access passes the
    acting principal to the store, so authorization lives in ONE place
    (the rule table), not in per-handler checks.
  - Trusted flows: signup provisioning, audit logging, and password-hash
    updates run under the system principal, which a client token can
    never mint.
  - Tokens: transient reset/verification tokens live in Redis; JWTs come
    from the RS256 token service.

The package ensures that identity data remains consistent and secure
throughout the platform's lifecycle.
*/
package users

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ecodam/ecodam-api/internal/docstore"
	"github.com/ecodam/ecodam-api/internal/platform/apperr"
	"github.com/ecodam/ecodam-api/internal/platform/constants"
	"github.com/ecodam/ecodam-api/internal/platform/sec"
	"github.com/ecodam/ecodam-api/internal/points"
	"github.com/ecodam/ecodam-api/internal/rules"
	"github.com/ecodam/ecodam-api/pkg/pagination"
	"github.com/ecodam/ecodam-api/pkg/slug"
	"github.com/ecodam/ecodam-api/pkg/uuid"
)

// # Contracts & Types

// TokenProvider defines the contract for generating security tokens.
type TokenProvider interface {
	// GenerateAccessToken creates a signed JWT string for the given user.
	GenerateAccessToken(userID, username, role string, timeToLive time.Duration) (string, error)
}

// Service implements the user lifecycle use cases.
//
// # Review Process
//
// This service is critical for security. Any changes to hashing,
// registration, or the principals used for document access must be
// reviewed by the security team.
type Service struct {
	store                       *docstore.Store
	resetTokenRepository        ResetTokenRepository
	verificationTokenRepository VerificationTokenRepository
	tokenProvider               TokenProvider
	logger                      *slog.Logger
}

// NewService constructs a new [Service] with necessary dependencies.
func NewService(
	store *docstore.Store,
	resetRepo ResetTokenRepository,
	verifyRepo VerificationTokenRepository,
	tokenProv TokenProvider,
	logger *slog.Logger,
) *Service {
	return &Service{
		store:                       store,
		resetTokenRepository:        resetRepo,
		verificationTokenRepository: verifyRepo,
		tokenProvider:               tokenProv,
		logger:                      logger,
	}
}

// userPath builds the profile document path for a uid.
func userPath(uid string) string {
	return docstore.JoinDoc(constants.CollectionUsers, uid)
}

// subPath builds a subcollection document path under a user.
func subPath(uid, collection, id string) string {
	return docstore.JoinDoc(constants.CollectionUsers, uid, collection, id)
}

// findByEmail resolves a profile document by email through the system
// principal. Email lookup happens pre-auth, so no client principal exists yet.
func (service *Service) findByEmail(ctx context.Context, email string) (*docstore.Document, error) {
	docs, err := service.store.Query(ctx, rules.System(), constants.CollectionUsers, map[string]any{FieldEmail: email})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, apperr.NotFound("User")
	}
	return docs[0], nil
}

// logActivity appends an audit record under the system principal. Audit
// failures outside transactions are logged, never surfaced to the client.
func (service *Service) logActivity(ctx context.Context, uid, action string) {
	path := subPath(uid, constants.CollectionActivityLogs, uuid.New())
	_, err := service.store.Create(ctx, rules.System(), path, map[string]any{FieldAction: action})
	if err != nil {
		service.logger.WarnContext(ctx, "activity_log_write_failed",
			slog.String("uid", uid),
			slog.String("action", action),
			slog.String("error", err.Error()),
		)
	}
}

// # Registration Flow

// RegisterInput holds the data required to enroll a new member.
type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	Apartment string // Free-text apartment complex name; stored as a slug.
}

/*
Register validates, hashes, and persists a brand new user account.

Description: Provisioning runs under the system principal — the rule table
forbids clients from creating their own profile document, so signup is the
only door. Point state starts zeroed at the lowest grade.

Returns:
  - *User: Created profile
  - err: Conflict (if identity exists) or storage errors
*/
func (service *Service) Register(ctx context.Context, input RegisterInput) (*User, error) {

	// Verify email uniqueness. Return a client-safe Conflict err.
	if _, err := service.findByEmail(ctx, input.Email); err == nil {
		return nil, apperr.Conflict("Email is already registered")
	}

	// Verify username uniqueness.
	existing, err := service.store.Query(ctx, rules.System(), constants.CollectionUsers, map[string]any{FieldUsername: input.Username})
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, apperr.Conflict("Username is already taken")
	}

	// Prevent storing plain-text passwords. Default cost is used for balance
	// between security and CPU utilization during registration spikes.
	hashedPassword, err := sec.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("users_service_hash_failed: %w", err)
	}

	// Time-sortable ID to prevent index fragmentation.
	uid := uuid.New()
	now := time.Now().UTC()

	doc, err := service.store.Create(ctx, rules.System(), userPath(uid), map[string]any{
		FieldUID:           uid,
		FieldEmail:         input.Email,
		FieldUsername:      input.Username,
		FieldPasswordHash:  hashedPassword,
		FieldRole:          string(sec.RoleUser),
		FieldApartment:     slug.From(input.Apartment),
		FieldEmailVerified: false,

		points.FieldMonthly:     0,
		points.FieldAccumulated: 0,
		points.FieldPointsMonth: points.MonthKey(now),
		points.FieldGrade:       string(points.GradeSeed),
	})
	if err != nil {
		return nil, fmt.Errorf("users_service_register_failed: %w", err)
	}

	// Generate and store a verification token as an async-ready side effect.
	token, err := sec.GenerateSecureToken(VerificationTokenLength)
	if err == nil {
		_ = service.verificationTokenRepository.Set(ctx, token, uid, VerificationTokenTTL)

		// The verification document is owned by the new user; its id is the
		// token digest so the verify flow can address it without a lookup.
		owner := rules.Authenticated(uid, sec.RoleUser)
		verifyPath := subPath(uid, constants.CollectionEmailVerifications, sec.HashToken(token))
		if _, err := service.store.Create(ctx, owner, verifyPath, map[string]any{
			FieldStatus: "pending",
		}); err != nil {
			service.logger.WarnContext(ctx, "verification_doc_write_failed",
				slog.String("uid", uid),
				slog.String("error", err.Error()),
			)
		}
		// TODO: Trigger email service with the verification link
	}

	service.logActivity(ctx, uid, "register")

	return fromDocument(doc), nil
}

// # Authentication Flow

// LoginInput defines credentials for an authentication attempt.
type LoginInput struct {
	Email     string
	Password  string
	UserAgent string
	IPAddress string
}

// LoginSession represents a successfully established user session.
type LoginSession struct {
	AccessToken string `json:"access_token"`
	User        *User  `json:"user"`
}

/*
Login validates user credentials and issues an access token.

Description: Verifies identity with a constant-time bcrypt comparison,
issues an RS256 JWT carrying the verified role claim, and records the
session as an owner-held document.

Returns:
  - *LoginSession: Transport-ready session
  - err: Unauthorized or internal failures
*/
func (service *Service) Login(ctx context.Context, input LoginInput) (*LoginSession, error) {
	doc, err := service.findByEmail(ctx, input.Email)

	// Generic message on any lookup failure to prevent enumeration.
	if err != nil {
		return nil, apperr.Unauthorized("Invalid login credentials")
	}

	if !sec.CheckPasswordHash(input.Password, doc.Str(FieldPasswordHash)) {
		return nil, apperr.Unauthorized("Invalid login credentials")
	}

	user := fromDocument(doc)
	accessToken, err := service.tokenProvider.GenerateAccessToken(user.UID, user.Username, user.Role, AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("users_service_token_failed: %w", err)
	}

	// The session document belongs to the user, created as the owner.
	owner := rules.Authenticated(user.UID, sec.UserRole(user.Role))
	sessionPath := subPath(user.UID, constants.CollectionUserSessions, uuid.New())
	_, err = service.store.Create(ctx, owner, sessionPath, map[string]any{
		"user_agent": input.UserAgent,
		"ip_address": input.IPAddress,
	})
	if err != nil {
		return nil, fmt.Errorf("users_service_session_failed: %w", err)
	}

	service.logActivity(ctx, user.UID, "login")

	return &LoginSession{AccessToken: accessToken, User: user}, nil
}

// # Profile Management

// Get returns a profile as seen by the acting principal.
func (service *Service) Get(ctx context.Context, principal rules.Principal, uid string) (*User, error) {
	doc, err := service.store.Get(ctx, principal, userPath(uid))
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, apperr.NotFound("User")
		}
		return nil, err
	}
	return fromDocument(doc), nil
}

// UpdateProfileInput carries the updatable profile fields. Nil pointers
// mean "leave unchanged".
type UpdateProfileInput struct {
	Username  *string
	Apartment *string
	Role      *string // Honored only for admin principals; rules deny the rest.
}

/*
UpdateProfile merges profile changes under the acting principal.

Description: The handler does NOT pre-check authorization; the rule table
decides. A non-admin attempting to change role or uid is denied at the
store with no partial write.
*/
func (service *Service) UpdateProfile(ctx context.Context, principal rules.Principal, uid string, input UpdateProfileInput) (*User, error) {
	fields := make(map[string]any, 3)
	if input.Username != nil {
		fields[FieldUsername] = *input.Username
	}
	if input.Apartment != nil {
		fields[FieldApartment] = slug.From(*input.Apartment)
	}
	if input.Role != nil {
		fields[FieldRole] = *input.Role
	}
	if len(fields) == 0 {
		return service.Get(ctx, principal, uid)
	}

	doc, err := service.store.Update(ctx, principal, userPath(uid), fields)
	if err != nil {
		return nil, err
	}

	service.logActivity(ctx, uid, "profile_updated")
	return fromDocument(doc), nil
}

// Delete removes a profile document. The rule table restricts this to
// admin/system principals.
func (service *Service) Delete(ctx context.Context, principal rules.Principal, uid string) error {
	if err := service.store.Delete(ctx, principal, userPath(uid)); err != nil {
		return err
	}
	service.logActivity(ctx, uid, "account_deleted")
	return nil
}

// ListSessions returns a user's sessions, newest first. Only the owner
// passes the rule check; everyone else gets an empty page.
func (service *Service) ListSessions(ctx context.Context, principal rules.Principal, uid string, page pagination.Params) ([]Session, pagination.Meta, error) {
	collection := fmt.Sprintf("%s/%s/%s", constants.CollectionUsers, uid, constants.CollectionUserSessions)
	docs, err := service.store.Query(ctx, principal, collection, nil)
	if err != nil {
		return nil, pagination.Meta{}, err
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].CreatedAt.After(docs[j].CreatedAt) })
	total := len(docs)
	docs = pageSlice(docs, page)

	sessions := make([]Session, 0, len(docs))
	for _, doc := range docs {
		sessions = append(sessions, Session{
			ID:        doc.ID,
			UserAgent: doc.Str("user_agent"),
			IPAddress: doc.Str("ip_address"),
			CreatedAt: doc.CreatedAt,
		})
	}
	return sessions, pagination.NewMeta(page.Page, page.Limit, total), nil
}

// ListActivity returns a user's audit log, newest first. The rule table
// restricts reads to admins.
func (service *Service) ListActivity(ctx context.Context, principal rules.Principal, uid string, page pagination.Params) ([]ActivityEntry, pagination.Meta, error) {
	collection := fmt.Sprintf("%s/%s/%s", constants.CollectionUsers, uid, constants.CollectionActivityLogs)
	docs, err := service.store.Query(ctx, principal, collection, nil)
	if err != nil {
		return nil, pagination.Meta{}, err
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].CreatedAt.After(docs[j].CreatedAt) })
	total := len(docs)
	docs = pageSlice(docs, page)

	entries := make([]ActivityEntry, 0, len(docs))
	for _, doc := range docs {
		entries = append(entries, ActivityEntry{
			ID:        doc.ID,
			Action:    doc.Str(FieldAction),
			CreatedAt: doc.CreatedAt,
		})
	}
	return entries, pagination.NewMeta(page.Page, page.Limit, total), nil
}

// pageSlice cuts a full result set down to the requested page.
func pageSlice(docs []*docstore.Document, page pagination.Params) []*docstore.Document {
	offset := page.Offset()
	if offset >= len(docs) {
		return nil
	}
	end := offset + page.Limit
	if end > len(docs) {
		end = len(docs)
	}
	return docs[offset:end]
}

// # Password Recovery

/*
ForgotPassword starts the pre-auth password recovery flow.

Description: Always succeeds from the caller's perspective (enumeration-
safe). For known accounts it creates the reset request document AS THE
ANONYMOUS PRINCIPAL — the one write the rule table allows pre-auth — and
stores the transient token in Redis.
*/
func (service *Service) ForgotPassword(ctx context.Context, email string) error {
	doc, err := service.findByEmail(ctx, email)
	if err != nil {
		// Unknown email: report success anyway.
		return nil
	}
	uid := doc.ID

	token, err := sec.GenerateSecureToken(ResetTokenLength)
	if err != nil {
		return fmt.Errorf("users_service_reset_token_failed: %w", err)
	}
	if err := service.resetTokenRepository.Set(ctx, token, uid, ResetTokenTTL); err != nil {
		return err
	}

	// The document id is the token digest so the reset flow can address it
	// later without a query. Created anonymously; never client-readable.
	resetPath := subPath(uid, constants.CollectionPasswordResets, sec.HashToken(token))
	if _, err := service.store.Create(ctx, rules.Anonymous(), resetPath, map[string]any{
		FieldStatus: "pending",
	}); err != nil {
		return err
	}

	// TODO: Trigger email service with the reset link
	service.logger.InfoContext(ctx, "password_reset_requested", slog.String("uid", uid))
	return nil
}

/*
ResetPassword completes the recovery flow.

Description: Resolves the Redis token, replaces the password hash and marks
the reset document completed under the system principal, then burns the
token. An invalid or expired token yields NotFound.
*/
func (service *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	uid, err := service.resetTokenRepository.Get(ctx, token)
	if err != nil {
		return err
	}

	hashedPassword, err := sec.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("users_service_hash_failed: %w", err)
	}

	system := rules.System()
	if _, err := service.store.Update(ctx, system, userPath(uid), map[string]any{
		FieldPasswordHash: hashedPassword,
	}); err != nil {
		return err
	}

	resetPath := subPath(uid, constants.CollectionPasswordResets, sec.HashToken(token))
	if _, err := service.store.Update(ctx, system, resetPath, map[string]any{
		FieldStatus: "completed",
	}); err != nil && !apperr.IsNotFound(err) {
		return err
	}

	_ = service.resetTokenRepository.Delete(ctx, token)
	service.logActivity(ctx, uid, "password_reset")
	return nil
}

// # Email Verification

/*
VerifyEmail completes the email verification flow.

Description: Resolves the Redis token, marks the verification document as
the owner, flips the profile's email_verified flag under the system
principal, and burns the token.
*/
func (service *Service) VerifyEmail(ctx context.Context, token string) error {
	uid, err := service.verificationTokenRepository.Get(ctx, token)
	if err != nil {
		return err
	}

	// Load the profile to recover the user's role for the owner principal.
	system := rules.System()
	doc, err := service.store.Get(ctx, system, userPath(uid))
	if err != nil {
		return err
	}
	owner := rules.Authenticated(uid, sec.UserRole(doc.Str(FieldRole)))

	verifyPath := subPath(uid, constants.CollectionEmailVerifications, sec.HashToken(token))
	if _, err := service.store.Update(ctx, owner, verifyPath, map[string]any{
		FieldStatus: "verified",
	}); err != nil && !apperr.IsNotFound(err) {
		return err
	}

	if _, err := service.store.Update(ctx, system, userPath(uid), map[string]any{
		FieldEmailVerified: true,
	}); err != nil {
		return err
	}

	_ = service.verificationTokenRepository.Delete(ctx, token)
	service.logActivity(ctx, uid, "email_verified")
	return nil
}
