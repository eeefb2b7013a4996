// Copyright (c) 2026 Ecodam. All rights reserved.

package users

import (
	"time"

	"github.com/ecodam/ecodam-api/internal/docstore"
	"github.com/ecodam/ecodam-api/internal/points"
)

// # Document Fields
//
// Content field names of the users/{uid} profile document. The role and uid
// fields are the ones the rule evaluator pins for non-admin updates.

const (
	FieldUID           = "uid"
	FieldEmail         = "email"
	FieldUsername      = "username"
	FieldPassword      = "password"
	FieldPasswordHash  = "password_hash"
	FieldRole          = "role"
	FieldApartment     = "apartment_complex"
	FieldEmailVerified = "email_verified"
	FieldToken         = "token"
	FieldStatus        = "status"
	FieldAction        = "action"
)

// User is the client-facing profile shape.
//
// PasswordHash never appears here: it stays inside the document and is
// stripped at this boundary.
type User struct {
	UID           string       `json:"uid"`
	Email         string       `json:"email"`
	Username      string       `json:"username"`
	Role          string       `json:"role"`
	Apartment     string       `json:"apartment_complex,omitempty"`
	EmailVerified bool         `json:"email_verified"`
	Monthly       int          `json:"monthly_points"`
	Accumulated   int          `json:"accumulated_points"`
	Grade         points.Grade `json:"grade"`
	CreatedAt     time.Time    `json:"created_at"`
}

// fromDocument projects a profile document into the client-facing shape.
func fromDocument(doc *docstore.Document) *User {
	return &User{
		UID:           doc.ID,
		Email:         doc.Str(FieldEmail),
		Username:      doc.Str(FieldUsername),
		Role:          doc.Str(FieldRole),
		Apartment:     doc.Str(FieldApartment),
		EmailVerified: doc.Bool(FieldEmailVerified),
		Monthly:       doc.Int(points.FieldMonthly),
		Accumulated:   doc.Int(points.FieldAccumulated),
		Grade:         points.Grade(doc.Str(points.FieldGrade)),
		CreatedAt:     doc.CreatedAt,
	}
}

// Session is one active login session of a user.
type Session struct {
	ID        string    `json:"id"`
	UserAgent string    `json:"user_agent,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ActivityEntry is one append-only audit log record.
type ActivityEntry struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	CreatedAt time.Time `json:"created_at"`
}
