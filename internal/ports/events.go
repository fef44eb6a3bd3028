package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/oddspool/internal/domain"
)

// EventSink receives every committed state transition, in commit order.
// A sink error never rolls back the transition that produced the event.
type EventSink interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// EventFilter narrows a journal query. Zero fields match everything.
type EventFilter struct {
	Kind        domain.EventKind
	ConditionID uint64
	From, To    time.Time
	Limit       int
}

// EventJournal persists events and reads them back.
type EventJournal interface {
	EventSink

	// List returns matching events oldest first.
	List(ctx context.Context, f EventFilter) ([]domain.Event, error)

	// Close releases the underlying database.
	Close() error
}
