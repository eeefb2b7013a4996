// Copyright (c) 2026 Ecodam. All rights reserved.

package points

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ecodam/ecodam-api/internal/docstore"
	"github.com/ecodam/ecodam-api/internal/platform/apperr"
	"github.com/ecodam/ecodam-api/internal/platform/constants"
	"github.com/ecodam/ecodam-api/internal/platform/validate"
	"github.com/ecodam/ecodam-api/internal/rules"
	"github.com/ecodam/ecodam-api/pkg/pagination"
	"github.com/ecodam/ecodam-api/pkg/uuid"
)

// # Document Fields

const (
	FieldEventID     = "event_id"
	FieldUID         = "uid"
	FieldCorrect     = "correct_count"
	FieldIncorrect   = "incorrect_count"
	FieldEarned      = "earned"
	FieldDeducted    = "deducted"
	FieldFinal       = "final"
	FieldOccurredAt  = "occurred_at"
	FieldMonthly     = "monthly_points"
	FieldAccumulated = "accumulated_points"
	FieldPointsMonth = "points_month"
	FieldGrade       = "grade"
)

// Service applies analysis outcomes to user point state.
//
// All persistence goes through the rule-gated document store. The accrual
// itself runs under the system principal: it is a trusted in-process flow
// triggered by the AI pipeline, not something a client token could author.
type Service struct {
	store  *docstore.Store
	rates  Rates
	logger *slog.Logger
}

// NewService constructs the accrual service.
func NewService(store *docstore.Store, rates Rates, logger *slog.Logger) *Service {
	return &Service{store: store, rates: rates, logger: logger}
}

/*
Apply folds one analysis event into the user's point state.

Description: Runs the full accrual in a single document-store transaction:
idempotency check (event-keyed analysis result), lazy monthly reset, delta
application with the accumulated floor, grade re-derivation, leaderboard
account refresh, and an audit log entry. Either all of it commits or none.

Returns:
  - *Result: The applied delta and resulting totals
  - err: Conflict when the event was already applied, NotFound for an
    unknown user, or storage errors
*/
func (service *Service) Apply(ctx context.Context, event Event) (*Result, error) {
	validator := &validate.Validator{}
	validator.Required(FieldEventID, event.EventID).
		Required(FieldUID, event.UID).
		Min(FieldCorrect, event.Correct, 0).
		Min(FieldIncorrect, event.Incorrect, 0)
	if err := validator.Err(); err != nil {
		return nil, err
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	system := rules.System()
	userPath := docstore.JoinDoc(constants.CollectionUsers, event.UID)

	var result Result
	err := service.store.InTx(ctx, func(tx *docstore.Store) error {

		// 1. Load and lock the subject user. A missing profile is a hard
		// error: accrual never provisions accounts.
		user, err := tx.Get(ctx, system, userPath)
		if err != nil {
			if apperr.IsNotFound(err) {
				return apperr.NotFound("User")
			}
			return err
		}

		// 2. Idempotency gate: the analysis result document is keyed by the
		// event id, so a redelivered event aborts here with Conflict before
		// any counter moves.
		result = Apply(service.rates, event, user.Int(FieldMonthly), user.Int(FieldAccumulated), user.Str(FieldPointsMonth))

		resultPath := docstore.JoinDoc(constants.CollectionUsers, event.UID, constants.CollectionAnalysisResults, event.EventID)
		_, err = tx.Create(ctx, system, resultPath, map[string]any{
			FieldEventID:    event.EventID,
			FieldUID:        event.UID,
			FieldCorrect:    event.Correct,
			FieldIncorrect:  event.Incorrect,
			FieldEarned:     result.Earned,
			FieldDeducted:   result.Deducted,
			FieldFinal:      result.Final,
			FieldOccurredAt: event.OccurredAt.Format(time.RFC3339),
		})
		if err != nil {
			if apperr.IsConflict(err) {
				return apperr.Conflict("Analysis event was already applied")
			}
			return err
		}

		// 3. Persist the new totals on the profile.
		if _, err := tx.Update(ctx, system, userPath, map[string]any{
			FieldMonthly:     result.Monthly,
			FieldAccumulated: result.Accumulated,
			FieldPointsMonth: MonthKey(event.OccurredAt),
			FieldGrade:       string(result.Grade),
		}); err != nil {
			return err
		}

		// 4. Refresh the public leaderboard account.
		rankPath := docstore.JoinDoc(constants.CollectionUsers, event.UID, constants.CollectionRankAccounts, event.UID)
		if _, err := tx.Set(ctx, system, rankPath, map[string]any{
			FieldUID:            event.UID,
			"username":          user.Str("username"),
			"apartment_complex": user.Str("apartment_complex"),
			FieldMonthly:        result.Monthly,
			FieldAccumulated:    result.Accumulated,
			FieldGrade:          string(result.Grade),
		}); err != nil {
			return err
		}

		// 5. Audit trail.
		logPath := docstore.JoinDoc(constants.CollectionUsers, event.UID, constants.CollectionActivityLogs, uuid.New())
		_, err = tx.Create(ctx, system, logPath, map[string]any{
			"action":        "points_accrued",
			FieldEventID:    event.EventID,
			FieldFinal:      result.Final,
			FieldOccurredAt: event.OccurredAt.Format(time.RFC3339),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	service.logger.InfoContext(ctx, "points_accrued",
		slog.String("uid", event.UID),
		slog.String("event_id", event.EventID),
		slog.Int("final", result.Final),
		slog.String("grade", string(result.Grade)),
	)

	return &result, nil
}

// AnalysisResult is the client-facing shape of a stored analysis outcome.
type AnalysisResult struct {
	EventID    string `json:"event_id"`
	Correct    int    `json:"correct_count"`
	Incorrect  int    `json:"incorrect_count"`
	Earned     int    `json:"earned"`
	Deducted   int    `json:"deducted"`
	Final      int    `json:"final"`
	OccurredAt string `json:"occurred_at"`
}

/*
ListResults returns a user's stored analysis outcomes, newest first.

The caller's principal decides visibility: owners and admins see the
documents, everyone else gets an empty page.
*/
func (service *Service) ListResults(ctx context.Context, principal rules.Principal, uid string, page pagination.Params) ([]AnalysisResult, pagination.Meta, error) {
	collection := fmt.Sprintf("%s/%s/%s", constants.CollectionUsers, uid, constants.CollectionAnalysisResults)

	docs, err := service.store.Query(ctx, principal, collection, nil)
	if err != nil {
		return nil, pagination.Meta{}, err
	}

	// Newest first by occurrence time.
	sortByOccurredDesc(docs)

	total := len(docs)
	docs = paginate(docs, page)

	results := make([]AnalysisResult, 0, len(docs))
	for _, doc := range docs {
		results = append(results, AnalysisResult{
			EventID:    doc.Str(FieldEventID),
			Correct:    doc.Int(FieldCorrect),
			Incorrect:  doc.Int(FieldIncorrect),
			Earned:     doc.Int(FieldEarned),
			Deducted:   doc.Int(FieldDeducted),
			Final:      doc.Int(FieldFinal),
			OccurredAt: doc.Str(FieldOccurredAt),
		})
	}

	return results, pagination.NewMeta(page.Page, page.Limit, total), nil
}

// sortByOccurredDesc orders documents newest-first by their occurred_at
// field, falling back to creation time.
func sortByOccurredDesc(docs []*docstore.Document) {
	sort.Slice(docs, func(i, j int) bool {
		at, bt := docs[i].Str(FieldOccurredAt), docs[j].Str(FieldOccurredAt)
		if at != bt {
			return at > bt
		}
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
}

// paginate slices a full result set down to the requested page.
func paginate(docs []*docstore.Document, page pagination.Params) []*docstore.Document {
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
