// Copyright (c) 2026 Ecodam. All rights reserved.

package points

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ecodam/ecodam-api/internal/platform/middleware"
	requestutil "github.com/ecodam/ecodam-api/internal/platform/request"
	"github.com/ecodam/ecodam-api/internal/platform/respond"
	"github.com/ecodam/ecodam-api/internal/platform/validate"
	"github.com/ecodam/ecodam-api/pkg/pagination"
)

// # Definitions & Constructors

// Handler implements the accrual ingest and analysis-history endpoints.
type Handler struct {
	pointService *Service
}

// NewHandler constructs a new [Handler] with its service dependency.
func NewHandler(service *Service) *Handler {
	return &Handler{pointService: service}
}

// IngestRoutes returns the trusted ingest router.
//
// # Endpoints
//   - POST /results : Applies one analysis outcome (admin role).
func (handler *Handler) IngestRoutes() chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequireAdmin)
	router.Post("/results", handler.applyResult)
	return router
}

// # Request Payloads

type applyResultRequest struct {
	EventID    string `json:"event_id"`
	UID        string `json:"uid"`
	Correct    int    `json:"correct_count"`
	Incorrect  int    `json:"incorrect_count"`
	OccurredAt string `json:"occurred_at"`
}

/*
applyResult handles delivery of one waste-analysis outcome.

POST /api/v1/analysis/results

Description: Applies the point delta of an analysis event atomically. A
redelivered event id returns 409 without double-counting.

Response:
  - 201: Result: Applied delta and resulting totals
  - 404: Unknown user
  - 409: Event already applied
*/
func (handler *Handler) applyResult(writer http.ResponseWriter, request *http.Request) {
	var input applyResultRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	var occurredAt time.Time
	if input.OccurredAt != "" {
		parsed, err := time.Parse(time.RFC3339, input.OccurredAt)
		if err != nil {
			respond.Error(writer, request, validate.RequiredError(FieldOccurredAt, "Must be an RFC3339 timestamp"))
			return
		}
		occurredAt = parsed
	}

	result, err := handler.pointService.Apply(request.Context(), Event{
		EventID:    input.EventID,
		UID:        input.UID,
		Correct:    input.Correct,
		Incorrect:  input.Incorrect,
		OccurredAt: occurredAt,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, result)
}

/*
ListUserResults handles a user's analysis history.

GET /api/v1/users/{uid}/analysis

Description: Lists stored analysis outcomes newest first. Visibility is
decided by the document rules (owner or admin).
*/
func (handler *Handler) ListUserResults(writer http.ResponseWriter, request *http.Request) {
	uid := requestutil.Param(request, "uid")
	page := pagination.FromRequest(request)

	results, meta, err := handler.pointService.ListResults(request.Context(), requestutil.Principal(request), uid, page)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Paginated(writer, results, meta)
}
