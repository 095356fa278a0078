// Package inventory defines access to participant item storage and the
// snapshot primitives the exchange executor rolls back with.
package inventory

import (
	"context"

	apperrors "github.com/ashgrove-games/tradepost/internal/errors"
	"github.com/ashgrove-games/tradepost/internal/trade/domain"
)

var (
	// ErrMissingItems indicates a withdrawal asked for more of an item
	// than the inventory holds.
	ErrMissingItems = apperrors.New(apperrors.CodeMissingItems, "inventory does not hold the requested items")
	// ErrInsufficientSpace indicates a deposit found no stack room and
	// no empty slot.
	ErrInsufficientSpace = apperrors.New(apperrors.CodeInsufficientSpace, "inventory has no space for the item")
	// ErrHandleUnavailable indicates a participant's inventory could not
	// be resolved, usually because they disconnected.
	ErrHandleUnavailable = apperrors.New(apperrors.CodeHandleUnavailable, "participant inventory is unavailable")
)

// Accessor provides stack-level access to one participant's inventory.
// Implementations own their own synchronization; the exchange executor
// layers no locks of its own on top.
type Accessor interface {
	// Capacity returns the total number of slots.
	Capacity() int

	// Entries returns a deep copy of all occupied stacks.
	Entries(ctx context.Context) ([]domain.ItemEntry, error)

	// FreeSlots returns the number of empty slots.
	FreeSlots(ctx context.Context) (int, error)

	// Withdraw removes the given quantity of an item, drawing from as
	// many matching stacks as needed. It fails with ErrMissingItems
	// without mutating anything when the inventory holds less than the
	// requested quantity.
	Withdraw(ctx context.Context, entry domain.ItemEntry) error

	// Deposit adds an item, merging into matching stacks with room
	// before falling back to an empty slot. It fails with
	// ErrInsufficientSpace when neither exists.
	Deposit(ctx context.Context, entry domain.ItemEntry) error

	// Replace discards the current contents and installs the given
	// stacks. It is the restore half of snapshotting.
	Replace(ctx context.Context, entries []domain.ItemEntry) error
}

// Provider resolves a participant identity to their inventory. A
// resolution failure means the participant is gone, not that the
// trade is at fault.
type Provider interface {
	Accessor(ctx context.Context, participant domain.ParticipantID) (Accessor, error)
}
