// Copyright (c) 2026 Ecodam. All rights reserved.

package rules

import "github.com/ecodam/ecodam-api/internal/platform/sec"

// # Principals

// Principal is the identity a request acts under when it reaches the
// document store.
//
// # Trust Model
//
// The Role is populated exclusively from a cryptographically verified token
// claim (or by the in-process system principal). It is NEVER read from
// document content or from anything a client can write, so a user cannot
// escalate by storing `role: "admin"` in their own profile.
type Principal struct {
	// UID is the authenticated account id; empty for anonymous principals.
	UID string

	// Role is the verified role claim of the principal.
	Role sec.UserRole

	// Authenticated reports whether the request carried a valid identity token.
	Authenticated bool

	// System marks the in-process trusted-server principal used by the
	// signup flow, the accrual pipeline, and audit logging. It can never be
	// minted from a client token.
	System bool
}

// Anonymous returns the unauthenticated principal.
func Anonymous() Principal {
	return Principal{}
}

// Authenticated returns a client principal with the given uid and verified role.
func Authenticated(uid string, role sec.UserRole) Principal {
	return Principal{UID: uid, Role: role, Authenticated: true}
}

// System returns the trusted-server principal.
func System() Principal {
	return Principal{System: true, Authenticated: true}
}

// IsAdmin reports whether the principal carries the verified admin claim.
func (p Principal) IsAdmin() bool {
	return p.Authenticated && p.Role == sec.RoleAdmin
}

// IsSystem reports whether the principal is the in-process trusted server.
func (p Principal) IsSystem() bool {
	return p.System
}

// IsOwner reports whether the principal is the authenticated subject user.
func (p Principal) IsOwner(uid string) bool {
	return p.Authenticated && !p.System && p.UID != "" && p.UID == uid
}
