package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/quockhanh41/blog-microservice/internal/post/core/domain"
)

// Wire format du topic user-events (contract avec le user-service)
type userEventDTO struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	EventKind string    `json:"event_kind"`
	EmittedAt time.Time `json:"emitted_at"`
}

// decodeUserEvent valide le payload à la frontière du consumer.
// Union taguée stricte : tout ce qui ne matche pas est rejeté (log + skip),
// on ne fait jamais confiance à la forme au runtime.
func decodeUserEvent(data []byte) (domain.UserEvent, error) {
	var dto userEventDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return domain.UserEvent{}, fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
	}

	if dto.UserID == "" {
		return domain.UserEvent{}, fmt.Errorf("%w: missing user_id", domain.ErrMalformedEvent)
	}
	if dto.Username == "" {
		return domain.UserEvent{}, fmt.Errorf("%w: missing username", domain.ErrMalformedEvent)
	}

	var kind domain.EventKind
	switch dto.EventKind {
	case string(domain.EventKindCreated):
		kind = domain.EventKindCreated
	case string(domain.EventKindUpdated):
		kind = domain.EventKindUpdated
	default:
		return domain.UserEvent{}, fmt.Errorf("%w: unknown event_kind %q", domain.ErrMalformedEvent, dto.EventKind)
	}

	return domain.UserEvent{
		UserID:    dto.UserID,
		Username:  dto.Username,
		Kind:      kind,
		EmittedAt: dto.EmittedAt,
	}, nil
}
