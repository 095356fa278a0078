package domain

import (
	apperrors "github.com/ashgrove-games/tradepost/internal/errors"
)

var (
	// ErrOfferLocked indicates a mutation attempt on a locked offer.
	ErrOfferLocked = apperrors.New(apperrors.CodeOfferLocked, "offer is locked while accepted")
	// ErrIndexOutOfRange indicates an entry index outside the offer.
	ErrIndexOutOfRange = apperrors.New(apperrors.CodeIndexOutOfRange, "offer entry index out of range")
)

// Offer is the ordered set of item entries one participant has proposed
// to give away. The order is display order only. An offer locks when
// its owner accepts the trade and unlocks when that acceptance is
// revoked; a locked offer rejects every mutation.
//
// Offer is not safe for concurrent use on its own; the owning Session
// serializes access.
type Offer struct {
	entries []ItemEntry
	locked  bool
}

// NewOffer creates an empty, unlocked offer.
func NewOffer() *Offer {
	return &Offer{}
}

// Add appends an entry to the offer.
func (o *Offer) Add(entry ItemEntry) error {
	if o.locked {
		return ErrOfferLocked
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	o.entries = append(o.entries, entry.Clone())
	return nil
}

// Remove deletes the entry at index, preserving order.
func (o *Offer) Remove(index int) error {
	if o.locked {
		return ErrOfferLocked
	}
	if index < 0 || index >= len(o.entries) {
		return ErrIndexOutOfRange
	}
	o.entries = append(o.entries[:index], o.entries[index+1:]...)
	return nil
}

// SetQuantity updates the quantity of the entry at index.
func (o *Offer) SetQuantity(index, quantity int) error {
	if o.locked {
		return ErrOfferLocked
	}
	if index < 0 || index >= len(o.entries) {
		return ErrIndexOutOfRange
	}
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	o.entries[index].Quantity = quantity
	return nil
}

// Entries returns a deep copy of the offer's entries in display order.
func (o *Offer) Entries() []ItemEntry {
	return CloneEntries(o.entries)
}

// EntryCount returns the number of entries (stacks) in the offer.
func (o *Offer) EntryCount() int {
	return len(o.entries)
}

// ItemCount returns the total quantity across all entries.
func (o *Offer) ItemCount() int {
	return CountQuantity(o.entries)
}

// Locked reports whether the offer currently rejects mutation.
func (o *Offer) Locked() bool {
	return o.locked
}

func (o *Offer) lock()   { o.locked = true }
func (o *Offer) unlock() { o.locked = false }
