// Copyright (c) 2026 Ecodam. All rights reserved.

package docstore

import (
	"strings"

	"github.com/ecodam/ecodam-api/internal/platform/apperr"
)

// # Path Model
//
// Paths alternate collection and document segments, exactly like the
// hierarchy they address:
//
//	users/{uid}                          document (depth 2)
//	users/{uid}/rank_accounts            collection (depth 3)
//	users/{uid}/rank_accounts/{id}       document (depth 4)
//
// A document path therefore always has an even number of segments, a
// collection path an odd number.

// JoinDoc builds a document path from alternating collection/id pairs.
func JoinDoc(segments ...string) string {
	return strings.Join(segments, "/")
}

// ValidateDocPath checks that a path addresses a document.
func ValidateDocPath(path string) error {
	segments, err := splitPath(path)
	if err != nil {
		return err
	}
	if len(segments)%2 != 0 {
		return apperr.ValidationError("Path must address a document, not a collection")
	}
	return nil
}

// ValidateCollectionPath checks that a path addresses a collection.
func ValidateCollectionPath(path string) error {
	segments, err := splitPath(path)
	if err != nil {
		return err
	}
	if len(segments)%2 != 1 {
		return apperr.ValidationError("Path must address a collection, not a document")
	}
	return nil
}

// CollectionOf returns the full parent collection path of a document path
// (e.g. "users/alice/rank_accounts" for "users/alice/rank_accounts/r1").
func CollectionOf(docPath string) string {
	idx := strings.LastIndex(docPath, "/")
	if idx < 0 {
		return ""
	}
	return docPath[:idx]
}

// IDOf returns the final document id segment of a document path.
func IDOf(docPath string) string {
	idx := strings.LastIndex(docPath, "/")
	if idx < 0 {
		return docPath
	}
	return docPath[idx+1:]
}

// GroupOf returns the collection NAME a document belongs to (the last
// collection segment), used for cross-parent group queries.
func GroupOf(docPath string) string {
	collection := CollectionOf(docPath)
	idx := strings.LastIndex(collection, "/")
	if idx < 0 {
		return collection
	}
	return collection[idx+1:]
}

// splitPath splits and sanity-checks raw path segments.
func splitPath(path string) ([]string, error) {
	if path == "" {
		return nil, apperr.ValidationError("Path must not be empty")
	}
	segments := strings.Split(path, "/")
	for _, segment := range segments {
		if segment == "" {
			return nil, apperr.ValidationError("Path must not contain empty segments")
		}
	}
	return segments, nil
}
