// Copyright (c) 2026 Ecodam. All rights reserved.

/*
Package rules implements the access-control rule evaluator gating every
document-store operation.

It is a pure, synchronous decision function: given a principal, an
operation, a document path, and (for writes) the existing and proposed
document content, it returns Allow (nil) or Deny (PermissionDenied). It has
no side effects, performs no I/O, and its decisions are never cached across
requests.

Architecture:

  - Rule table: an ordered list of (path pattern, per-operation predicate)
    entries, evaluated most-specific-first.
  - Default-deny: any path or operation without an explicit allow rule is
    rejected.
  - Field validation: write predicates can inspect the proposed content, so
    role escalation via document data is structurally prevented at the same
    layer as the path check.

The table mirrors the platform's authorization contract:

	users/{uid}                          read: owner|admin  create: trusted  update: owner|admin*  delete: admin
	users/{uid}/user_sessions/{id}       owner only, all operations
	users/{uid}/password_resets/{id}     create: anyone (even anonymous), read/update/delete: system only
	users/{uid}/email_verifications/{id} read/create/update: owner, delete: denied
	users/{uid}/user_activity_logs/{id}  read: admin, create: trusted, update/delete: denied
	users/{uid}/rank_accounts/{id}       read: anyone (public leaderboard), writes: trusted
	users/{uid}/analysis_results/{id}    read: owner|admin, create/update: trusted, delete: denied

(*) non-admin updates must leave the identity, credential, and accrual
fields unchanged: `uid`, `role`, `password_hash`, `email_verified`,
`monthly_points`, `accumulated_points`, `points_month`, `grade`.
*/
package rules

import (
	"strings"

	"github.com/ecodam/ecodam-api/internal/platform/apperr"
	"github.com/ecodam/ecodam-api/internal/platform/constants"
)

// # Operations

// Operation is the kind of document-store access being attempted.
type Operation int

const (
	OpRead Operation = iota
	OpCreate
	OpUpdate
	OpDelete
)

// String returns the lowercase operation name for logging.
func (op Operation) String() string {
	switch op {
	case OpRead:
		return "read"
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// # Decision Input

// Request carries everything a predicate may inspect.
//
// Resource is the existing document content (nil when the document does not
// exist); NewResource is the proposed content of a write. Predicates must
// not mutate either map.
type Request struct {
	Principal   Principal
	Operation   Operation
	Path        string
	Vars        map[string]string
	Resource    map[string]any
	NewResource map[string]any
}

// Predicate decides a single (pattern, operation) cell of the rule table.
// A nil predicate in the table means deny.
type Predicate func(Request) bool

// # Rule Table

// Rule binds a path pattern to one predicate per operation.
//
// Patterns use `{name}` wildcards for single segments, e.g.
// "users/{uid}/rank_accounts/{id}". Wildcard bindings are exposed to
// predicates via [Request.Vars].
type Rule struct {
	Pattern string

	Read   Predicate
	Create Predicate
	Update Predicate
	Delete Predicate
}

// predicate returns the table cell for the given operation.
func (r Rule) predicate(op Operation) Predicate {
	switch op {
	case OpRead:
		return r.Read
	case OpCreate:
		return r.Create
	case OpUpdate:
		return r.Update
	case OpDelete:
		return r.Delete
	default:
		return nil
	}
}

// # Common Predicates

// anyone allows every principal, including unauthenticated ones.
func anyone(Request) bool { return true }

// owner allows only the authenticated subject user of the path.
func owner(r Request) bool { return r.Principal.IsOwner(r.Vars["uid"]) }

// admin allows principals with the verified admin claim or the system principal.
func admin(r Request) bool { return r.Principal.IsAdmin() || r.Principal.IsSystem() }

// systemOnly allows only the in-process trusted server. Admins acting
// through the client API are denied too.
func systemOnly(r Request) bool { return r.Principal.IsSystem() }

// ownerOrAdmin allows the subject user, admins, and the system principal.
func ownerOrAdmin(r Request) bool { return owner(r) || admin(r) }

// profileLockedFields are the profile fields a non-admin update must leave
// untouched: identity claims, credentials, and the point state that only
// the trusted accrual flow may write.
var profileLockedFields = []string{
	"uid", "role", "password_hash", "email_verified",
	"monthly_points", "accumulated_points", "points_month", "grade",
}

// profileUpdate allows owner-or-admin updates, but non-admin principals
// must leave every locked field untouched.
func profileUpdate(r Request) bool {
	if !ownerOrAdmin(r) {
		return false
	}
	if admin(r) {
		return true
	}
	for _, field := range profileLockedFields {
		if !fieldUnchanged(r, field) {
			return false
		}
	}
	return true
}

// fieldUnchanged reports whether the proposed content leaves the named
// field as it was. The store evaluates merged content for partial updates,
// so a field absent from the proposal means a full replace is stripping
// it; that counts as a change whenever the field existed.
func fieldUnchanged(r Request, field string) bool {
	var existing any
	var had bool
	if r.Resource != nil {
		existing, had = r.Resource[field]
	}
	proposed, ok := r.NewResource[field]
	if !ok {
		return !had
	}
	return proposed == existing
}

// # Evaluator

// Evaluator holds the ordered rule table.
//
// It is immutable after construction and safe for concurrent use.
type Evaluator struct {
	rules []Rule
}

// NewEvaluator constructs the evaluator with the platform rule table.
//
// The table is listed deepest-pattern-first so the most specific match
// always wins; [Evaluator.Evaluate] additionally verifies specificity
// ordering so a future mis-ordered entry cannot widen access.
func NewEvaluator() *Evaluator {
	users := constants.CollectionUsers

	return &Evaluator{rules: []Rule{
		{
			Pattern: users + "/{uid}/" + constants.CollectionUserSessions + "/{id}",
			Read:    owner,
			Create:  owner,
			Update:  owner,
			Delete:  owner,
		},
		{
			// Reset requests may be created pre-auth (forgot-password), but
			// the documents are never client-readable: tokens must not be
			// harvestable, not even by the owner or an admin.
			Pattern: users + "/{uid}/" + constants.CollectionPasswordResets + "/{id}",
			Read:    systemOnly,
			Create:  anyone,
			Update:  systemOnly,
			Delete:  systemOnly,
		},
		{
			Pattern: users + "/{uid}/" + constants.CollectionEmailVerifications + "/{id}",
			Read:    owner,
			Create:  owner,
			Update:  owner,
		},
		{
			// Append-only audit trail: the subject user can neither write
			// nor read their own log entries.
			Pattern: users + "/{uid}/" + constants.CollectionActivityLogs + "/{id}",
			Read:    admin,
			Create:  admin,
		},
		{
			// Public leaderboard data: world-readable, trusted-writable.
			Pattern: users + "/{uid}/" + constants.CollectionRankAccounts + "/{id}",
			Read:    anyone,
			Create:  admin,
			Update:  admin,
			Delete:  admin,
		},
		{
			// Written by the AI pipeline; the subject user may read but
			// never author their own results.
			Pattern: users + "/{uid}/" + constants.CollectionAnalysisResults + "/{id}",
			Read:    ownerOrAdmin,
			Create:  admin,
			Update:  admin,
		},
		{
			// Profiles are provisioned by the trusted signup flow, never by
			// the client directly.
			Pattern: users + "/{uid}",
			Read:    ownerOrAdmin,
			Create:  admin,
			Update:  profileUpdate,
			Delete: func(r Request) bool {
				return r.Principal.IsAdmin() || r.Principal.IsSystem()
			},
		},
	}}
}

// Evaluate decides a single operation. It returns nil on Allow and a
// [apperr.AppError] with code FORBIDDEN on Deny.
//
// Denial is terminal for the attempt: callers must not retry, and a denied
// write must touch no state.
func (e *Evaluator) Evaluate(p Principal, op Operation, path string, resource, proposed map[string]any) error {
	segments := strings.Split(path, "/")

	var best *Rule
	var bestVars map[string]string
	bestScore := -1

	for i := range e.rules {
		vars, ok := match(e.rules[i].Pattern, segments)
		if !ok {
			continue
		}
		if score := specificity(e.rules[i].Pattern); score > bestScore {
			best = &e.rules[i]
			bestVars = vars
			bestScore = score
		}
	}

	// No matching pattern: default-deny.
	if best == nil {
		return denied(op)
	}

	predicate := best.predicate(op)
	if predicate == nil {
		return denied(op)
	}

	allowed := predicate(Request{
		Principal:   p,
		Operation:   op,
		Path:        path,
		Vars:        bestVars,
		Resource:    resource,
		NewResource: proposed,
	})
	if !allowed {
		return denied(op)
	}

	return nil
}

// denied builds the terminal PermissionDenied verdict for an operation.
func denied(op Operation) error {
	return apperr.PermissionDenied("Missing or insufficient permissions for " + op.String())
}

// # Pattern Matching

// match compares a pattern against path segments. Wildcard segments
// (`{name}`) bind the corresponding path segment; literals must be equal.
// Patterns only match paths of exactly the same depth.
func match(pattern string, segments []string) (map[string]string, bool) {
	parts := strings.Split(pattern, "/")
	if len(parts) != len(segments) {
		return nil, false
	}

	vars := make(map[string]string, 2)
	for i, part := range parts {
		if isWildcard(part) {
			if segments[i] == "" {
				return nil, false
			}
			vars[part[1:len(part)-1]] = segments[i]
			continue
		}
		if part != segments[i] {
			return nil, false
		}
	}

	return vars, true
}

// specificity scores a pattern: deeper patterns and patterns with more
// literal segments outrank shallower, more generic ones.
func specificity(pattern string) int {
	parts := strings.Split(pattern, "/")
	score := len(parts) * 100
	for _, part := range parts {
		if !isWildcard(part) {
			score++
		}
	}
	return score
}

// isWildcard reports whether a pattern segment is a `{name}` binding.
func isWildcard(part string) bool {
	return len(part) > 2 && strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}")
}
