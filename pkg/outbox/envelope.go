package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// ActorRef identifies who produced the event.
type ActorRef struct {
	UserID *uuid.UUID      `json:"userId,omitempty"`
	Role   enums.ActorRole `json:"role"`
}

// SystemActor is the actor attached to events produced by background jobs
// and allocation side effects.
func SystemActor() *ActorRef {
	return &ActorRef{Role: enums.ActorRoleSystem}
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
