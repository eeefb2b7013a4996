// Copyright (c) 2026 Ecodam. All rights reserved.

package rank

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	requestutil "github.com/ecodam/ecodam-api/internal/platform/request"
	"github.com/ecodam/ecodam-api/internal/platform/respond"
	"github.com/ecodam/ecodam-api/pkg/pagination"
)

// Handler implements the public leaderboard endpoint.
type Handler struct {
	rankService *Service

	// defaultLimit is the configured page size used when the client does
	// not ask for one.
	defaultLimit int
}

// NewHandler constructs a new [Handler] with its service dependency.
func NewHandler(service *Service, defaultLimit int) *Handler {
	if defaultLimit <= 0 {
		defaultLimit = pagination.DefaultLimit
	}
	return &Handler{rankService: service, defaultLimit: defaultLimit}
}

// Routes returns the leaderboard router.
//
// # Endpoints
//   - GET / : Current leaderboard page (public, no auth required).
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()
	router.Get("/", handler.leaderboard)
	return router
}

/*
leaderboard handles leaderboard reads.

GET /api/v1/rankings?apartment={slug}&page={n}&limit={n}

Description: Returns the ranked board, optionally scoped to an apartment
complex. Works for anonymous callers; ranks are global across pages.
*/
func (handler *Handler) leaderboard(writer http.ResponseWriter, request *http.Request) {
	apartment := request.URL.Query().Get("apartment")
	page := pagination.FromRequest(request)
	if request.URL.Query().Get("limit") == "" {
		page.Limit = handler.defaultLimit
	}

	entries, meta, err := handler.rankService.Leaderboard(request.Context(), requestutil.Principal(request), apartment, page)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Paginated(writer, entries, meta)
}
