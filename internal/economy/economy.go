// Package economy defines the currency hook for trades that include a
// monetary component alongside items.
package economy

import (
	"context"
	"errors"

	"github.com/ashgrove-games/tradepost/internal/trade/domain"
)

// ErrUnavailable indicates no economy backend is installed.
var ErrUnavailable = errors.New("economy provider unavailable")

// Provider moves currency between participants. Implementations are
// expected to be atomic per call.
type Provider interface {
	// Balance returns the participant's current funds.
	Balance(ctx context.Context, participant domain.ParticipantID) (int64, error)

	// Transfer moves amount from one participant to another. It fails
	// without partial effect when the source holds less than amount.
	Transfer(ctx context.Context, from, to domain.ParticipantID, amount int64) error
}

// Unavailable is a Provider stub that rejects every call. It stands in
// until a real backend registers, so currency-bearing trades fail
// cleanly instead of silently dropping the monetary side.
type Unavailable struct{}

// Balance always fails with ErrUnavailable.
func (Unavailable) Balance(context.Context, domain.ParticipantID) (int64, error) {
	return 0, ErrUnavailable
}

// Transfer always fails with ErrUnavailable.
func (Unavailable) Transfer(context.Context, domain.ParticipantID, domain.ParticipantID, int64) error {
	return ErrUnavailable
}
