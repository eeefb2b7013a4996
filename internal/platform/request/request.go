// Copyright (c) 2026 Ecodam. All rights reserved.

/*
Package request provides utilities for extracting data from HTTP requests.

It abstracts away the underlying router's parameter extraction and common
body decoding patterns, ensuring consistent error handling and type safety.
*/
package requestutil

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ecodam/ecodam-api/internal/platform/apperr"
	"github.com/ecodam/ecodam-api/internal/platform/ctxutil"
	"github.com/ecodam/ecodam-api/internal/platform/sec"
	"github.com/ecodam/ecodam-api/internal/platform/validate"
	"github.com/ecodam/ecodam-api/internal/rules"
)

/*
DecodeJSON reads the request body and decodes it into the target structure.

Parameters:
  - request: *http.Request
  - target: interface{} (Pointer to the destination struct)

Returns:
  - error: validate.ErrInvalidJSON if decoding fails, otherwise nil
*/
func DecodeJSON(request *http.Request, target interface{}) error {
	if err := json.NewDecoder(request.Body).Decode(target); err != nil {
		return validate.ErrInvalidJSON
	}
	return nil
}

/*
Param retrieves a named URL parameter from the request.
*/
func Param(request *http.Request, name string) string {
	return chi.URLParam(request, name)
}

/*
Claims extracts the authenticated user claims from the request context.

Returns nil if the request is not authenticated.
*/
func Claims(request *http.Request) *sec.AuthClaims {
	return ctxutil.GetAuthUser(request.Context())
}

/*
RequiredClaims ensures the request is authenticated and returns the user claims.

Returns:
  - *sec.AuthClaims: The authenticated user claims
  - error: apperr.Unauthorized if the request is not authenticated
*/
func RequiredClaims(request *http.Request) (*sec.AuthClaims, error) {

	// Get user claims
	claims := ctxutil.GetAuthUser(request.Context())

	// If the user is not authenticated, return an error
	if claims == nil {
		return nil, apperr.Unauthorized("Authentication required")
	}

	return claims, nil
}

/*
Principal builds the access-control principal for the current request.

Anonymous requests yield the unauthenticated principal; authenticated
requests carry the uid and the VERIFIED role claim from the token. This is
the only place claims are converted into a principal, so a stale or
client-fabricated role can never reach the rule evaluator.
*/
func Principal(request *http.Request) rules.Principal {
	claims := ctxutil.GetAuthUser(request.Context())
	if claims == nil {
		return rules.Anonymous()
	}
	return rules.Authenticated(claims.UserID, sec.UserRole(claims.Role))
}
