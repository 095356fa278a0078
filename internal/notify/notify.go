// Package notify delivers trade lifecycle events to participants.
//
// The registry dispatches events outside its own locks, so a slow or
// blocking sink cannot stall trade operations for other sessions.
package notify

import (
	"github.com/ashgrove-games/tradepost/internal/trade/domain"
)

// StateEvent announces a session state transition to one participant.
type StateEvent struct {
	SessionID string
	State     domain.State
	// Counterpart is the other side of the trade. In a solo session it
	// equals the recipient.
	Counterpart domain.ParticipantID
	// Reason is a short machine-readable tag for why the transition
	// happened, empty for ordinary progress.
	Reason string
}

// OfferEvent announces a change to one side's offer.
type OfferEvent struct {
	SessionID string
	// Owner is the participant whose offer changed.
	Owner   domain.ParticipantID
	Entries []domain.ItemEntry
}

// Sink receives trade events for a single participant. Implementations
// must not call back into the registry from inside a delivery.
type Sink interface {
	SessionState(event StateEvent)
	OfferChanged(event OfferEvent)
	Status(message string)
}

// Nop is a Sink that discards every event.
type Nop struct{}

func (Nop) SessionState(StateEvent) {}
func (Nop) OfferChanged(OfferEvent) {}
func (Nop) Status(string)           {}
