// Copyright (c) 2026 Ecodam. All rights reserved.

/*
Package rank serves the public recycling leaderboard.

Rankings are derived, never stored: every read collects the rank account
documents, sorts them, and assigns 1-based positions. Ties on monthly
points fall back to accumulated points, then to the account id, so the
ordering is total and stable across reads.
*/
package rank

import "github.com/ecodam/ecodam-api/internal/points"

// Entry is one leaderboard row.
type Entry struct {
	Rank        int          `json:"rank"`
	UID         string       `json:"uid"`
	Username    string       `json:"username"`
	Apartment   string       `json:"apartment_complex,omitempty"`
	Monthly     int          `json:"monthly_points"`
	Accumulated int          `json:"accumulated_points"`
	Grade       points.Grade `json:"grade"`
}
