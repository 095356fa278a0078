package inventory

import (
	"context"
	"fmt"

	"github.com/ashgrove-games/tradepost/internal/trade/domain"
)

// Snapshot is a deep copy of one participant's inventory contents,
// captured before a destructive operation so it can be rolled back.
type Snapshot struct {
	participant domain.ParticipantID
	entries     []domain.ItemEntry
}

// Capture records the full contents of the participant's inventory.
func Capture(ctx context.Context, participant domain.ParticipantID, accessor Accessor) (Snapshot, error) {
	entries, err := accessor.Entries(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("capture inventory snapshot for %s: %w", participant, err)
	}
	return Snapshot{
		participant: participant,
		entries:     domain.CloneEntries(entries),
	}, nil
}

// Participant returns the identity the snapshot belongs to.
func (s Snapshot) Participant() domain.ParticipantID {
	return s.participant
}

// Entries returns a deep copy of the captured contents.
func (s Snapshot) Entries() []domain.ItemEntry {
	return domain.CloneEntries(s.entries)
}

// Restore overwrites the accessor's contents with the captured state.
func (s Snapshot) Restore(ctx context.Context, accessor Accessor) error {
	if err := accessor.Replace(ctx, s.entries); err != nil {
		return fmt.Errorf("restore inventory snapshot for %s: %w", s.participant, err)
	}
	return nil
}
