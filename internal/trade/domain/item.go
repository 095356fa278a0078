package domain

import (
	"bytes"

	apperrors "github.com/ashgrove-games/tradepost/internal/errors"
)

// ParticipantID is an opaque, globally unique handle for a connected
// participant. It is stable for the duration of a trade and invalid
// after disconnect. All trade lookups key on it, never on transient
// connection state.
type ParticipantID string

var (
	// ErrInvalidItem indicates an item entry with an empty identifier.
	ErrInvalidItem = apperrors.New(apperrors.CodeInvalidItem, "item identifier is required")
	// ErrInvalidQuantity indicates a non-positive item quantity.
	ErrInvalidQuantity = apperrors.New(apperrors.CodeInvalidQuantity, "item quantity must be positive")
)

// ItemEntry describes a discrete inventory item: an identifier, a
// positive quantity, and opaque extra data (durability, enchantments)
// that must survive an exchange byte-for-byte.
type ItemEntry struct {
	ID       string
	Quantity int
	Extra    []byte
}

// Validate checks the entry's identifier and quantity.
func (e ItemEntry) Validate() error {
	if e.ID == "" {
		return ErrInvalidItem
	}
	if e.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	return nil
}

// StacksWith reports whether two entries describe the same stackable
// item. Equality is (identifier, extra data); quantity is not part of
// the key.
func (e ItemEntry) StacksWith(other ItemEntry) bool {
	return e.ID == other.ID && bytes.Equal(e.Extra, other.Extra)
}

// Clone returns a deep copy of the entry, including extra data.
func (e ItemEntry) Clone() ItemEntry {
	cloned := e
	if e.Extra != nil {
		cloned.Extra = append([]byte(nil), e.Extra...)
	}
	return cloned
}

// CloneEntries deep-copies a slice of item entries.
func CloneEntries(entries []ItemEntry) []ItemEntry {
	if entries == nil {
		return nil
	}
	cloned := make([]ItemEntry, len(entries))
	for i, entry := range entries {
		cloned[i] = entry.Clone()
	}
	return cloned
}

// CountQuantity sums the total quantity across entries.
func CountQuantity(entries []ItemEntry) int {
	total := 0
	for _, entry := range entries {
		total += entry.Quantity
	}
	return total
}
