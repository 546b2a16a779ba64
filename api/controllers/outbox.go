package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

// DeadLetterLister reads events the outbox publisher gave up on.
type DeadLetterLister interface {
	List(ctx context.Context, params outbox.DLQListParams) (outbox.DLQPage, error)
}

type deadLetterDTO struct {
	ID            uuid.UUID                  `json:"id"`
	EventID       uuid.UUID                  `json:"event_id"`
	EventType     enums.OutboxEventType      `json:"event_type"`
	AggregateType enums.OutboxAggregateType  `json:"aggregate_type"`
	AggregateID   uuid.UUID                  `json:"aggregate_id"`
	Payload       json.RawMessage            `json:"payload"`
	ErrorReason   enums.OutboxDLQErrorReason `json:"error_reason"`
	ErrorMessage  *string                    `json:"error_message,omitempty"`
	AttemptCount  int                        `json:"attempt_count"`
	FailedAt      time.Time                  `json:"failed_at"`
}

type deadLetterList struct {
	Items      []deadLetterDTO `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// AdminListDeadLetters pages through parked outbox events, newest first.
func AdminListDeadLetters(dlq DeadLetterLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := dlq.List(r.Context(), outbox.DLQListParams{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if errors.Is(err, pagination.ErrInvalidCursor) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor"))
			return
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list dead letters"))
			return
		}

		out := deadLetterList{Items: make([]deadLetterDTO, 0, len(page.Entries)), NextCursor: page.NextCursor}
		for _, entry := range page.Entries {
			out.Items = append(out.Items, deadLetterDTO{
				ID:            entry.ID,
				EventID:       entry.EventID,
				EventType:     entry.EventType,
				AggregateType: entry.AggregateType,
				AggregateID:   entry.AggregateID,
				Payload:       entry.Payload,
				ErrorReason:   entry.ErrorReason,
				ErrorMessage:  entry.ErrorMessage,
				AttemptCount:  entry.AttemptCount,
				FailedAt:      entry.FailedAt,
			})
		}
		responses.WriteSuccess(w, out)
	}
}
