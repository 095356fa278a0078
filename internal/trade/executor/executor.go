// Package executor performs the atomic item exchange at the end of a
// trade. It runs in phases so every failure is attributable to one
// side of the trade or to the system itself, and so any partial
// mutation can be rolled back from inventory snapshots.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/ashgrove-games/tradepost/internal/errors"
	"github.com/ashgrove-games/tradepost/internal/inventory"
	"github.com/ashgrove-games/tradepost/internal/trade/domain"
)

// Side attributes an exchange failure to one participant or to neither.
type Side int

const (
	// SideNone marks a system-level failure neither participant caused.
	SideNone Side = iota
	// SideInitiator marks a failure caused by the initiator's inventory.
	SideInitiator
	// SideTarget marks a failure caused by the target's inventory.
	SideTarget
)

// String returns the label for a failure side.
func (s Side) String() string {
	switch s {
	case SideInitiator:
		return "initiator"
	case SideTarget:
		return "target"
	default:
		return "none"
	}
}

// Error is an exchange failure attributed to one side.
type Error struct {
	Side Side
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("exchange failed (side=%s): %v", e.Side, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Recoverable reports whether the failure is a verification problem
// the participants can fix by renegotiating, as opposed to a system
// failure that should end the session.
func (e *Error) Recoverable() bool {
	switch apperrors.GetCode(e.Err) {
	case apperrors.CodeMissingItems, apperrors.CodeInsufficientSpace:
		return true
	default:
		return false
	}
}

// FailureSide extracts the attributed side from an exchange error.
// SideNone when the error carries no attribution.
func FailureSide(err error) Side {
	var exchangeErr *Error
	if errors.As(err, &exchangeErr) {
		return exchangeErr.Side
	}
	return SideNone
}

// Result summarizes a committed exchange.
type Result struct {
	// InitiatorGave is the total item quantity the initiator handed over.
	InitiatorGave int
	// TargetGave is the total item quantity the target handed over.
	TargetGave int
}

// Executor moves offered items between two inventories atomically.
// Either both offers transfer in full or neither inventory changes.
type Executor struct {
	provider inventory.Provider
	tracer   trace.Tracer
}

// New creates an executor over the given inventory provider.
func New(provider inventory.Provider) *Executor {
	return &Executor{
		provider: provider,
		tracer:   otel.Tracer("github.com/ashgrove-games/tradepost/internal/trade/executor"),
	}
}

// Execute runs the exchange for a session that has entered execution.
// The session's offers are read from a consistent snapshot, so
// concurrent mutation attempts cannot change what transfers.
//
// Phases: resolve handles, verify both sides, snapshot both
// inventories, withdraw all offered items, deposit them on the
// opposite side. Any failure after the first mutation restores both
// snapshots before returning.
func (e *Executor) Execute(ctx context.Context, view domain.Snapshot) (Result, error) {
	ctx, span := e.tracer.Start(ctx, "trade.execute",
		trace.WithAttributes(
			attribute.String("trade.session_id", view.ID),
			attribute.Bool("trade.solo", view.Solo),
		))
	defer span.End()

	result, err := e.execute(ctx, view)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "exchange failed")
		return Result{}, err
	}
	span.SetAttributes(
		attribute.Int("trade.initiator_gave", result.InitiatorGave),
		attribute.Int("trade.target_gave", result.TargetGave),
	)
	return result, nil
}

func (e *Executor) execute(ctx context.Context, view domain.Snapshot) (Result, error) {
	initiatorInv, err := e.provider.Accessor(ctx, view.Initiator)
	if err != nil {
		return Result{}, &Error{Side: SideNone, Err: apperrors.Wrap(apperrors.CodeHandleUnavailable, "resolve initiator inventory", err)}
	}
	targetInv := initiatorInv
	if !view.Solo {
		targetInv, err = e.provider.Accessor(ctx, view.Target)
		if err != nil {
			return Result{}, &Error{Side: SideNone, Err: apperrors.Wrap(apperrors.CodeHandleUnavailable, "resolve target inventory", err)}
		}
	}

	if err := e.verify(ctx, view, initiatorInv, targetInv); err != nil {
		return Result{}, err
	}

	initiatorSnap, err := inventory.Capture(ctx, view.Initiator, initiatorInv)
	if err != nil {
		return Result{}, &Error{Side: SideNone, Err: apperrors.Wrap(apperrors.CodeExchangeInternal, "snapshot initiator inventory", err)}
	}
	targetSnap := initiatorSnap
	if !view.Solo {
		targetSnap, err = inventory.Capture(ctx, view.Target, targetInv)
		if err != nil {
			return Result{}, &Error{Side: SideNone, Err: apperrors.Wrap(apperrors.CodeExchangeInternal, "snapshot target inventory", err)}
		}
	}

	rollback := func() {
		if err := initiatorSnap.Restore(ctx, initiatorInv); err != nil {
			log.Printf("level=error msg=\"inventory rollback failed\" session_id=%s participant=%s error=%q",
				view.ID, view.Initiator, err)
		}
		if !view.Solo {
			if err := targetSnap.Restore(ctx, targetInv); err != nil {
				log.Printf("level=error msg=\"inventory rollback failed\" session_id=%s participant=%s error=%q",
					view.ID, view.Target, err)
			}
		}
	}

	if err := withdrawAll(ctx, initiatorInv, view.InitiatorOffer); err != nil {
		rollback()
		return Result{}, &Error{Side: SideInitiator, Err: err}
	}
	if err := withdrawAll(ctx, targetInv, view.TargetOffer); err != nil {
		rollback()
		return Result{}, &Error{Side: SideTarget, Err: err}
	}

	if err := depositAll(ctx, targetInv, view.InitiatorOffer); err != nil {
		rollback()
		return Result{}, &Error{Side: SideTarget, Err: err}
	}
	if err := depositAll(ctx, initiatorInv, view.TargetOffer); err != nil {
		rollback()
		return Result{}, &Error{Side: SideInitiator, Err: err}
	}

	return Result{
		InitiatorGave: domain.CountQuantity(view.InitiatorOffer),
		TargetGave:    domain.CountQuantity(view.TargetOffer),
	}, nil
}

// verify checks, before anything mutates, that each side still holds
// what they offered and that each side has room for what they will
// receive. The room check is conservative: it counts incoming stacks
// against free slots plus the slots the outgoing stacks vacate, and
// ignores merge opportunities.
func (e *Executor) verify(ctx context.Context, view domain.Snapshot, initiatorInv, targetInv inventory.Accessor) error {
	if err := verifyHolds(ctx, initiatorInv, view.InitiatorOffer); err != nil {
		return &Error{Side: SideInitiator, Err: err}
	}
	if err := verifyHolds(ctx, targetInv, view.TargetOffer); err != nil {
		return &Error{Side: SideTarget, Err: err}
	}

	if view.Solo {
		// Items leave and re-enter one inventory; it cannot run out of
		// room it already had.
		return nil
	}

	if err := verifyRoom(ctx, initiatorInv, view.TargetOffer, view.InitiatorOffer); err != nil {
		return &Error{Side: SideInitiator, Err: err}
	}
	if err := verifyRoom(ctx, targetInv, view.InitiatorOffer, view.TargetOffer); err != nil {
		return &Error{Side: SideTarget, Err: err}
	}
	return nil
}

func verifyHolds(ctx context.Context, inv inventory.Accessor, offered []domain.ItemEntry) error {
	if len(offered) == 0 {
		return nil
	}
	held, err := inv.Entries(ctx)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeExchangeInternal, "read inventory", err)
	}
	for _, want := range offered {
		total := 0
		for _, have := range held {
			if have.StacksWith(want) {
				total += have.Quantity
			}
		}
		if total < want.Quantity {
			return fmt.Errorf("%s x%d: %w", want.ID, want.Quantity, inventory.ErrMissingItems)
		}
	}
	return nil
}

func verifyRoom(ctx context.Context, inv inventory.Accessor, incoming, outgoing []domain.ItemEntry) error {
	if len(incoming) == 0 {
		return nil
	}
	free, err := inv.FreeSlots(ctx)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeExchangeInternal, "count free slots", err)
	}
	if len(incoming) > free+len(outgoing) {
		return fmt.Errorf("need %d slots, have %d: %w", len(incoming)-len(outgoing), free, inventory.ErrInsufficientSpace)
	}
	return nil
}

func withdrawAll(ctx context.Context, inv inventory.Accessor, entries []domain.ItemEntry) error {
	for _, entry := range entries {
		if err := inv.Withdraw(ctx, entry); err != nil {
			return fmt.Errorf("withdraw %s x%d: %w", entry.ID, entry.Quantity, err)
		}
	}
	return nil
}

func depositAll(ctx context.Context, inv inventory.Accessor, entries []domain.ItemEntry) error {
	for _, entry := range entries {
		if err := inv.Deposit(ctx, entry); err != nil {
			return fmt.Errorf("deposit %s x%d: %w", entry.ID, entry.Quantity, err)
		}
	}
	return nil
}
