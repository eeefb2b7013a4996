// Copyright (c) 2026 Ecodam. All rights reserved.

package rank

import (
	"context"
	"sort"

	"github.com/ecodam/ecodam-api/internal/docstore"
	"github.com/ecodam/ecodam-api/internal/platform/constants"
	"github.com/ecodam/ecodam-api/internal/points"
	"github.com/ecodam/ecodam-api/internal/rules"
	"github.com/ecodam/ecodam-api/pkg/pagination"
)

// Service derives leaderboard pages from rank account documents.
type Service struct {
	store *docstore.Store
}

// NewService constructs the leaderboard service.
func NewService(store *docstore.Store) *Service {
	return &Service{store: store}
}

/*
Leaderboard returns one page of the ranking, optionally scoped to an
apartment complex slug.

Description: Collects every rank account via a collection-group query under
the caller's principal (rank accounts are world-readable, so anonymous
callers see the full board), sorts by monthly desc, accumulated desc, uid
asc, and assigns 1-based positions BEFORE pagination so ranks are global,
not per-page.
*/
func (service *Service) Leaderboard(ctx context.Context, principal rules.Principal, apartment string, page pagination.Params) ([]Entry, pagination.Meta, error) {
	var filters map[string]any
	if apartment != "" {
		filters = map[string]any{"apartment_complex": apartment}
	}

	docs, err := service.store.QueryGroup(ctx, principal, constants.CollectionRankAccounts, filters)
	if err != nil {
		return nil, pagination.Meta{}, err
	}

	entries := make([]Entry, 0, len(docs))
	for _, doc := range docs {
		entries = append(entries, Entry{
			UID:         doc.Str(points.FieldUID),
			Username:    doc.Str("username"),
			Apartment:   doc.Str("apartment_complex"),
			Monthly:     doc.Int(points.FieldMonthly),
			Accumulated: doc.Int(points.FieldAccumulated),
			Grade:       points.Grade(doc.Str(points.FieldGrade)),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Monthly != b.Monthly {
			return a.Monthly > b.Monthly
		}
		if a.Accumulated != b.Accumulated {
			return a.Accumulated > b.Accumulated
		}
		return a.UID < b.UID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}

	total := len(entries)
	offset := page.Offset()
	if offset >= total {
		return []Entry{}, pagination.NewMeta(page.Page, page.Limit, total), nil
	}
	end := offset + page.Limit
	if end > total {
		end = total
	}

	return entries[offset:end], pagination.NewMeta(page.Page, page.Limit, total), nil
}
