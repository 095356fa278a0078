package domain

import (
	"errors"
	"testing"
)

func TestOfferAdd(t *testing.T) {
	offer := NewOffer()

	if err := offer.Add(ItemEntry{ID: "iron_ingot", Quantity: 5}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := offer.Add(ItemEntry{ID: "gold_ingot", Quantity: 2}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if got := offer.EntryCount(); got != 2 {
		t.Fatalf("EntryCount() = %d, want 2", got)
	}
	if got := offer.ItemCount(); got != 7 {
		t.Fatalf("ItemCount() = %d, want 7", got)
	}
}

func TestOfferAddInvalidEntry(t *testing.T) {
	offer := NewOffer()

	if err := offer.Add(ItemEntry{Quantity: 5}); !errors.Is(err, ErrInvalidItem) {
		t.Fatalf("Add() error = %v, want %v", err, ErrInvalidItem)
	}
	if err := offer.Add(ItemEntry{ID: "iron_ingot"}); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("Add() error = %v, want %v", err, ErrInvalidQuantity)
	}
	if got := offer.EntryCount(); got != 0 {
		t.Fatalf("EntryCount() = %d, want 0 after rejected adds", got)
	}
}

func TestOfferRemovePreservesOrder(t *testing.T) {
	offer := NewOffer()
	for _, id := range []string{"a", "b", "c"} {
		if err := offer.Add(ItemEntry{ID: id, Quantity: 1}); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}

	if err := offer.Remove(1); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	entries := offer.Entries()
	if len(entries) != 2 || entries[0].ID != "a" || entries[1].ID != "c" {
		t.Fatalf("Entries() = %v, want [a c]", entries)
	}
}

func TestOfferRemoveOutOfRange(t *testing.T) {
	offer := NewOffer()
	if err := offer.Add(ItemEntry{ID: "a", Quantity: 1}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	for _, index := range []int{-1, 1, 5} {
		if err := offer.Remove(index); !errors.Is(err, ErrIndexOutOfRange) {
			t.Fatalf("Remove(%d) error = %v, want %v", index, err, ErrIndexOutOfRange)
		}
	}
}

func TestOfferSetQuantity(t *testing.T) {
	offer := NewOffer()
	if err := offer.Add(ItemEntry{ID: "iron_ingot", Quantity: 5}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if err := offer.SetQuantity(0, 12); err != nil {
		t.Fatalf("SetQuantity() error = %v", err)
	}
	if got := offer.Entries()[0].Quantity; got != 12 {
		t.Fatalf("quantity = %d, want 12", got)
	}

	if err := offer.SetQuantity(0, 0); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("SetQuantity(0, 0) error = %v, want %v", err, ErrInvalidQuantity)
	}
	if err := offer.SetQuantity(3, 1); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("SetQuantity(3, 1) error = %v, want %v", err, ErrIndexOutOfRange)
	}
}

func TestOfferLockRejectsMutation(t *testing.T) {
	offer := NewOffer()
	if err := offer.Add(ItemEntry{ID: "iron_ingot", Quantity: 5}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	offer.lock()
	if !offer.Locked() {
		t.Fatal("Locked() = false after lock")
	}

	if err := offer.Add(ItemEntry{ID: "gold_ingot", Quantity: 1}); !errors.Is(err, ErrOfferLocked) {
		t.Fatalf("Add() error = %v, want %v", err, ErrOfferLocked)
	}
	if err := offer.Remove(0); !errors.Is(err, ErrOfferLocked) {
		t.Fatalf("Remove() error = %v, want %v", err, ErrOfferLocked)
	}
	if err := offer.SetQuantity(0, 2); !errors.Is(err, ErrOfferLocked) {
		t.Fatalf("SetQuantity() error = %v, want %v", err, ErrOfferLocked)
	}

	offer.unlock()
	if err := offer.Add(ItemEntry{ID: "gold_ingot", Quantity: 1}); err != nil {
		t.Fatalf("Add() after unlock error = %v", err)
	}
}

func TestOfferEntriesIsDeepCopy(t *testing.T) {
	offer := NewOffer()
	if err := offer.Add(ItemEntry{ID: "worn_blade", Quantity: 1, Extra: []byte{0x01}}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	entries := offer.Entries()
	entries[0].Extra[0] = 0xff
	entries[0].Quantity = 99

	fresh := offer.Entries()
	if fresh[0].Extra[0] != 0x01 || fresh[0].Quantity != 1 {
		t.Fatal("mutating returned entries changed the offer")
	}
}
