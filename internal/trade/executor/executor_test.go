package executor

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/ashgrove-games/tradepost/internal/errors"
	"github.com/ashgrove-games/tradepost/internal/inventory"
	"github.com/ashgrove-games/tradepost/internal/trade/domain"
)

type mapProvider map[domain.ParticipantID]inventory.Accessor

func (p mapProvider) Accessor(_ context.Context, participant domain.ParticipantID) (inventory.Accessor, error) {
	accessor, ok := p[participant]
	if !ok {
		return nil, inventory.ErrHandleUnavailable
	}
	return accessor, nil
}

func seed(t *testing.T, capacity int, entries ...domain.ItemEntry) *inventory.Memory {
	t.Helper()
	m := inventory.NewMemory(capacity)
	if err := m.Replace(context.Background(), entries); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	return m
}

func holds(t *testing.T, inv inventory.Accessor, want domain.ItemEntry) int {
	t.Helper()
	entries, err := inv.Entries(context.Background())
	if err != nil {
		t.Fatalf("Entries() error = %v", err)
	}
	total := 0
	for _, e := range entries {
		if e.StacksWith(want) {
			total += e.Quantity
		}
	}
	return total
}

func twoPartyView(initiatorOffer, targetOffer []domain.ItemEntry) domain.Snapshot {
	return domain.Snapshot{
		ID:             "session-1",
		Initiator:      "alice",
		Target:         "bob",
		State:          domain.StateExecuting,
		InitiatorOffer: initiatorOffer,
		TargetOffer:    targetOffer,
	}
}

func TestExecuteCommitsBothOffers(t *testing.T) {
	ctx := context.Background()
	aliceInv := seed(t, 8,
		domain.ItemEntry{ID: "iron_ingot", Quantity: 40},
		domain.ItemEntry{ID: "worn_blade", Quantity: 1, Extra: []byte{0x0a, 0x0b}},
	)
	bobInv := seed(t, 8,
		domain.ItemEntry{ID: "gold_ingot", Quantity: 10},
	)
	exec := New(mapProvider{"alice": aliceInv, "bob": bobInv})

	view := twoPartyView(
		[]domain.ItemEntry{
			{ID: "iron_ingot", Quantity: 15},
			{ID: "worn_blade", Quantity: 1, Extra: []byte{0x0a, 0x0b}},
		},
		[]domain.ItemEntry{
			{ID: "gold_ingot", Quantity: 4},
		},
	)

	result, err := exec.Execute(ctx, view)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.InitiatorGave != 16 || result.TargetGave != 4 {
		t.Fatalf("Result = %+v, want {16 4}", result)
	}

	if got := holds(t, aliceInv, domain.ItemEntry{ID: "iron_ingot", Quantity: 1}); got != 25 {
		t.Fatalf("alice iron = %d, want 25", got)
	}
	if got := holds(t, aliceInv, domain.ItemEntry{ID: "gold_ingot", Quantity: 1}); got != 4 {
		t.Fatalf("alice gold = %d, want 4", got)
	}
	if got := holds(t, bobInv, domain.ItemEntry{ID: "iron_ingot", Quantity: 1}); got != 15 {
		t.Fatalf("bob iron = %d, want 15", got)
	}
	if got := holds(t, bobInv, domain.ItemEntry{ID: "worn_blade", Quantity: 1, Extra: []byte{0x0a, 0x0b}}); got != 1 {
		t.Fatal("extra data did not survive the exchange")
	}
}

func TestExecuteOneSidedOffer(t *testing.T) {
	ctx := context.Background()
	aliceInv := seed(t, 4, domain.ItemEntry{ID: "iron_ingot", Quantity: 10})
	bobInv := seed(t, 4)
	exec := New(mapProvider{"alice": aliceInv, "bob": bobInv})

	view := twoPartyView(
		[]domain.ItemEntry{{ID: "iron_ingot", Quantity: 10}},
		nil,
	)

	result, err := exec.Execute(ctx, view)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.InitiatorGave != 10 || result.TargetGave != 0 {
		t.Fatalf("Result = %+v, want {10 0}", result)
	}
	if got := holds(t, bobInv, domain.ItemEntry{ID: "iron_ingot", Quantity: 1}); got != 10 {
		t.Fatalf("bob iron = %d, want 10", got)
	}
}

func TestExecuteMissingItemsAttributedToOwner(t *testing.T) {
	ctx := context.Background()
	aliceInv := seed(t, 4, domain.ItemEntry{ID: "iron_ingot", Quantity: 3})
	bobInv := seed(t, 4, domain.ItemEntry{ID: "gold_ingot", Quantity: 5})
	exec := New(mapProvider{"alice": aliceInv, "bob": bobInv})

	view := twoPartyView(
		[]domain.ItemEntry{{ID: "iron_ingot", Quantity: 5}},
		[]domain.ItemEntry{{ID: "gold_ingot", Quantity: 5}},
	)

	_, err := exec.Execute(ctx, view)
	if !errors.Is(err, inventory.ErrMissingItems) {
		t.Fatalf("Execute() error = %v, want %v", err, inventory.ErrMissingItems)
	}
	if got := FailureSide(err); got != SideInitiator {
		t.Fatalf("FailureSide() = %v, want %v", got, SideInitiator)
	}

	var exchangeErr *Error
	if !errors.As(err, &exchangeErr) {
		t.Fatalf("error %v is not an exchange error", err)
	}
	if !exchangeErr.Recoverable() {
		t.Fatal("missing items must be recoverable")
	}

	// Nothing moved.
	if got := holds(t, aliceInv, domain.ItemEntry{ID: "iron_ingot", Quantity: 1}); got != 3 {
		t.Fatalf("alice iron = %d, want 3", got)
	}
	if got := holds(t, bobInv, domain.ItemEntry{ID: "gold_ingot", Quantity: 1}); got != 5 {
		t.Fatalf("bob gold = %d, want 5", got)
	}
}

func TestExecuteNoRoomAttributedToReceiver(t *testing.T) {
	ctx := context.Background()
	aliceInv := seed(t, 4, domain.ItemEntry{ID: "iron_ingot", Quantity: 10})
	// Bob's inventory is full of unrelated stacks and he offers nothing,
	// so nothing vacates.
	bobInv := seed(t, 2,
		domain.ItemEntry{ID: "stone", Quantity: 64},
		domain.ItemEntry{ID: "dirt", Quantity: 64},
	)
	exec := New(mapProvider{"alice": aliceInv, "bob": bobInv})

	view := twoPartyView(
		[]domain.ItemEntry{{ID: "iron_ingot", Quantity: 10}},
		nil,
	)

	_, err := exec.Execute(ctx, view)
	if !errors.Is(err, inventory.ErrInsufficientSpace) {
		t.Fatalf("Execute() error = %v, want %v", err, inventory.ErrInsufficientSpace)
	}
	if got := FailureSide(err); got != SideTarget {
		t.Fatalf("FailureSide() = %v, want %v", got, SideTarget)
	}
	if got := holds(t, aliceInv, domain.ItemEntry{ID: "iron_ingot", Quantity: 1}); got != 10 {
		t.Fatalf("alice iron = %d after failed exchange, want 10", got)
	}
}

func TestExecuteDepositFailureRollsBackBothSides(t *testing.T) {
	ctx := context.Background()
	// Alice offers 5 iron out of a stack of 40, so withdrawing does not
	// vacate her only slot. The slot check passes on the vacancy
	// estimate, bob's gold leaves, his iron arrives, and then the gold
	// finds no room on alice's side. Both inventories must come back
	// untouched.
	aliceInv := seed(t, 1, domain.ItemEntry{ID: "iron_ingot", Quantity: 40})
	bobInv := seed(t, 1, domain.ItemEntry{ID: "gold_ingot", Quantity: 10})
	exec := New(mapProvider{"alice": aliceInv, "bob": bobInv})

	view := twoPartyView(
		[]domain.ItemEntry{{ID: "iron_ingot", Quantity: 5}},
		[]domain.ItemEntry{{ID: "gold_ingot", Quantity: 10}},
	)

	_, err := exec.Execute(ctx, view)
	if !errors.Is(err, inventory.ErrInsufficientSpace) {
		t.Fatalf("Execute() error = %v, want %v", err, inventory.ErrInsufficientSpace)
	}

	if got := holds(t, aliceInv, domain.ItemEntry{ID: "iron_ingot", Quantity: 1}); got != 40 {
		t.Fatalf("alice iron = %d after rollback, want 40", got)
	}
	if got := holds(t, bobInv, domain.ItemEntry{ID: "gold_ingot", Quantity: 1}); got != 10 {
		t.Fatalf("bob gold = %d after rollback, want 10", got)
	}
}

func TestExecuteHandleUnavailable(t *testing.T) {
	ctx := context.Background()
	aliceInv := seed(t, 4, domain.ItemEntry{ID: "iron_ingot", Quantity: 10})
	exec := New(mapProvider{"alice": aliceInv})

	view := twoPartyView(
		[]domain.ItemEntry{{ID: "iron_ingot", Quantity: 1}},
		nil,
	)

	_, err := exec.Execute(ctx, view)
	if !errors.Is(err, inventory.ErrHandleUnavailable) {
		t.Fatalf("Execute() error = %v, want %v", err, inventory.ErrHandleUnavailable)
	}
	if got := FailureSide(err); got != SideNone {
		t.Fatalf("FailureSide() = %v, want %v", got, SideNone)
	}
	if got := apperrors.GetCode(err); got != apperrors.CodeHandleUnavailable {
		t.Fatalf("GetCode() = %v, want %v", got, apperrors.CodeHandleUnavailable)
	}

	var exchangeErr *Error
	if !errors.As(err, &exchangeErr) {
		t.Fatalf("error %v is not an exchange error", err)
	}
	if exchangeErr.Recoverable() {
		t.Fatal("handle loss must not be recoverable")
	}
}

func TestExecuteSoloSession(t *testing.T) {
	ctx := context.Background()
	aliceInv := seed(t, 4, domain.ItemEntry{ID: "iron_ingot", Quantity: 10})
	exec := New(mapProvider{"alice": aliceInv})

	view := domain.Snapshot{
		ID:             "session-1",
		Initiator:      "alice",
		Target:         "alice",
		Solo:           true,
		State:          domain.StateExecuting,
		InitiatorOffer: []domain.ItemEntry{{ID: "iron_ingot", Quantity: 10}},
	}

	result, err := exec.Execute(ctx, view)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.InitiatorGave != 10 {
		t.Fatalf("Result = %+v, want InitiatorGave 10", result)
	}
	if got := holds(t, aliceInv, domain.ItemEntry{ID: "iron_ingot", Quantity: 1}); got != 10 {
		t.Fatalf("alice iron = %d after solo exchange, want 10", got)
	}
}

func TestFailureSideOnPlainError(t *testing.T) {
	if got := FailureSide(errors.New("boom")); got != SideNone {
		t.Fatalf("FailureSide(plain) = %v, want %v", got, SideNone)
	}
	if got := FailureSide(nil); got != SideNone {
		t.Fatalf("FailureSide(nil) = %v, want %v", got, SideNone)
	}
}
