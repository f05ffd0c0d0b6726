package domain

import (
	"errors"
	"time"
)

var ErrMalformedEvent = errors.New("malformed user event")

type EventKind string

const (
	EventKindCreated EventKind = "created"
	EventKindUpdated EventKind = "updated"
)

// UserEvent : changement d'identité publié par le user-service.
// Livraison at-least-once : le traitement DOIT être idempotent.
type UserEvent struct {
	UserID    string
	Username  string
	Kind      EventKind
	EmittedAt time.Time
}
