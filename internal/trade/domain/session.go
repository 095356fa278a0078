package domain

import (
	"fmt"
	"strings"
	"sync"
	"time"

	apperrors "github.com/ashgrove-games/tradepost/internal/errors"
	"github.com/ashgrove-games/tradepost/internal/platform/id"
)

// State describes the lifecycle state of a trade session.
type State int

const (
	// StateUnspecified represents an invalid session state value.
	StateUnspecified State = iota
	// StateRequested indicates the request has been sent but not answered.
	StateRequested
	// StateNegotiating indicates both participants are building offers.
	StateNegotiating
	// StateOneAccepted indicates exactly one participant has accepted.
	StateOneAccepted
	// StateCountdown indicates both participants accepted and the
	// observation countdown is running.
	StateCountdown
	// StateExecuting indicates the exchange executor is running.
	StateExecuting
	// StateCompleted indicates the exchange committed.
	StateCompleted
	// StateFailed indicates the exchange failed terminally.
	StateFailed
	// StateCancelled indicates the session was cancelled.
	StateCancelled
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// StateLabel returns the string label for a session state.
func StateLabel(state State) string {
	switch state {
	case StateRequested:
		return "REQUESTED"
	case StateNegotiating:
		return "NEGOTIATING"
	case StateOneAccepted:
		return "ONE_ACCEPTED"
	case StateCountdown:
		return "BOTH_ACCEPTED_COUNTDOWN"
	case StateExecuting:
		return "EXECUTING"
	case StateCompleted:
		return "COMPLETED"
	case StateFailed:
		return "FAILED"
	case StateCancelled:
		return "CANCELLED"
	default:
		return "UNSPECIFIED"
	}
}

// StateFromLabel converts a state label to a State value.
func StateFromLabel(label string) State {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "REQUESTED":
		return StateRequested
	case "NEGOTIATING":
		return StateNegotiating
	case "ONE_ACCEPTED":
		return StateOneAccepted
	case "BOTH_ACCEPTED_COUNTDOWN":
		return StateCountdown
	case "EXECUTING":
		return StateExecuting
	case "COMPLETED":
		return StateCompleted
	case "FAILED":
		return StateFailed
	case "CANCELLED":
		return StateCancelled
	default:
		return StateUnspecified
	}
}

var (
	// ErrEmptyParticipantID indicates a missing participant identity.
	ErrEmptyParticipantID = apperrors.New(apperrors.CodeNotParticipant, "participant id is required")
	// ErrSelfTrade indicates the two-party constructor was given one identity.
	ErrSelfTrade = apperrors.New(apperrors.CodeSelfTrade, "cannot trade with yourself; use a solo session")
	// ErrNotParticipant indicates an identity outside the session.
	ErrNotParticipant = apperrors.New(apperrors.CodeNotParticipant, "participant is not part of this session")
	// ErrWrongState indicates an operation invalid in the current state.
	ErrWrongState = apperrors.New(apperrors.CodeWrongState, "operation not valid in current session state")
	// ErrAlreadyAccepted indicates a duplicate acceptance.
	ErrAlreadyAccepted = apperrors.New(apperrors.CodeAlreadyAccepted, "participant already accepted")
	// ErrNotAccepted indicates a revoke without a prior acceptance.
	ErrNotAccepted = apperrors.New(apperrors.CodeNotAccepted, "participant has not accepted")
	// ErrCountdownNotComplete indicates execution before the countdown elapsed.
	ErrCountdownNotComplete = apperrors.New(apperrors.CodeCountdownNotComplete, "countdown not complete")
)

// TimerHandle is a cancellable handle to a scheduled timer. Cancelling
// an already-fired or already-cancelled handle is a no-op.
type TimerHandle interface {
	Cancel() bool
}

// Session is the state machine for one trade between two participant
// identities. A solo session (initiator == target) models one
// participant trading with themself for testing; it is only built via
// NewSoloSession. All methods are safe for concurrent use.
type Session struct {
	mu sync.Mutex

	id        string
	initiator ParticipantID
	target    ParticipantID
	solo      bool

	initiatorOffer *Offer
	targetOffer    *Offer

	initiatorAccepted bool
	targetAccepted    bool

	state          State
	countdown      time.Duration
	countdownStart time.Time

	timer TimerHandle
	clock func() time.Time

	createdAt time.Time
}

// NewSession creates a session in StateRequested between two distinct
// participants. The clock and idGenerator are injectable for tests.
func NewSession(initiator, target ParticipantID, countdown time.Duration, now func() time.Time, idGenerator func() (string, error)) (*Session, error) {
	if initiator == "" || target == "" {
		return nil, ErrEmptyParticipantID
	}
	if initiator == target {
		return nil, ErrSelfTrade
	}
	return newSession(initiator, target, false, countdown, now, idGenerator)
}

// NewSoloSession creates a session where one participant plays both
// sides. This is the only path that permits initiator == target.
func NewSoloSession(participant ParticipantID, countdown time.Duration, now func() time.Time, idGenerator func() (string, error)) (*Session, error) {
	if participant == "" {
		return nil, ErrEmptyParticipantID
	}
	return newSession(participant, participant, true, countdown, now, idGenerator)
}

func newSession(initiator, target ParticipantID, solo bool, countdown time.Duration, now func() time.Time, idGenerator func() (string, error)) (*Session, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	sessionID, err := idGenerator()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}

	return &Session{
		id:             sessionID,
		initiator:      initiator,
		target:         target,
		solo:           solo,
		initiatorOffer: NewOffer(),
		targetOffer:    NewOffer(),
		state:          StateRequested,
		countdown:      countdown,
		clock:          now,
		createdAt:      now().UTC(),
	}, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Initiator returns the identity that requested the trade.
func (s *Session) Initiator() ParticipantID { return s.initiator }

// Target returns the identity the trade was requested of.
func (s *Session) Target() ParticipantID { return s.target }

// Solo reports whether the session is a self-trade test session.
func (s *Session) Solo() bool { return s.solo }

// CreatedAt returns the session creation time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// IsParticipant reports whether the identity belongs to this session.
func (s *Session) IsParticipant(p ParticipantID) bool {
	return p == s.initiator || p == s.target
}

// Other returns the counterpart identity. In a solo session the
// participant is their own counterpart.
func (s *Session) Other(p ParticipantID) (ParticipantID, bool) {
	switch p {
	case s.initiator:
		return s.target, true
	case s.target:
		return s.initiator, true
	default:
		return "", false
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// HasAccepted reports whether the participant's acceptance flag is set.
func (s *Session) HasAccepted(p ParticipantID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.solo {
		return s.initiatorAccepted
	}
	switch p {
	case s.initiator:
		return s.initiatorAccepted
	case s.target:
		return s.targetAccepted
	default:
		return false
	}
}

// AcceptRequest promotes a pending request to active negotiation.
func (s *Session) AcceptRequest() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRequested {
		return ErrWrongState
	}
	s.cancelTimerLocked()
	s.state = StateNegotiating
	return nil
}

// Accept sets the participant's acceptance flag. When both flags are
// set the session enters the countdown and the countdown start time is
// recorded. In a solo session a single accept sets both flags.
// The returned state is the state after the transition.
func (s *Session) Accept(p ParticipantID) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.IsParticipant(p) {
		return s.state, ErrNotParticipant
	}
	if s.state != StateNegotiating && s.state != StateOneAccepted {
		return s.state, ErrWrongState
	}

	if s.solo {
		if s.initiatorAccepted {
			return s.state, ErrAlreadyAccepted
		}
		s.initiatorAccepted = true
		s.targetAccepted = true
		s.initiatorOffer.lock()
		s.targetOffer.lock()
		s.enterCountdownLocked()
		return s.state, nil
	}

	switch p {
	case s.initiator:
		if s.initiatorAccepted {
			return s.state, ErrAlreadyAccepted
		}
		s.initiatorAccepted = true
		s.initiatorOffer.lock()
	case s.target:
		if s.targetAccepted {
			return s.state, ErrAlreadyAccepted
		}
		s.targetAccepted = true
		s.targetOffer.lock()
	}

	if s.initiatorAccepted && s.targetAccepted {
		s.enterCountdownLocked()
	} else {
		s.state = StateOneAccepted
	}
	return s.state, nil
}

func (s *Session) enterCountdownLocked() {
	s.state = StateCountdown
	s.countdownStart = s.clock().UTC()
}

// RevokeAccept clears the participant's acceptance flag, unlocks their
// offer, and cancels any in-flight countdown timer. The returned state
// is the state after the transition.
func (s *Session) RevokeAccept(p ParticipantID) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.IsParticipant(p) {
		return s.state, ErrNotParticipant
	}
	if s.state != StateOneAccepted && s.state != StateCountdown {
		return s.state, ErrWrongState
	}

	if s.solo {
		if !s.initiatorAccepted {
			return s.state, ErrNotAccepted
		}
		s.revokeAllLocked()
		return s.state, nil
	}

	switch p {
	case s.initiator:
		if !s.initiatorAccepted {
			return s.state, ErrNotAccepted
		}
		s.initiatorAccepted = false
		s.initiatorOffer.unlock()
	case s.target:
		if !s.targetAccepted {
			return s.state, ErrNotAccepted
		}
		s.targetAccepted = false
		s.targetOffer.unlock()
	}

	s.cancelTimerLocked()
	if s.initiatorAccepted || s.targetAccepted {
		s.state = StateOneAccepted
	} else {
		s.state = StateNegotiating
	}
	return s.state, nil
}

// RevokeAll clears both acceptance flags and returns the session to
// negotiation. It is a no-op outside the accepted states. An accepted
// offer must never change silently, so every offer mutation path runs
// through this first.
func (s *Session) RevokeAll() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateOneAccepted || s.state == StateCountdown {
		s.revokeAllLocked()
	}
	return s.state
}

func (s *Session) revokeAllLocked() {
	s.initiatorAccepted = false
	s.targetAccepted = false
	s.initiatorOffer.unlock()
	s.targetOffer.unlock()
	s.cancelTimerLocked()
	s.state = StateNegotiating
}

// offerOf resolves the offer a participant owns. Solo sessions edit
// the initiator-side offer.
func (s *Session) offerOf(p ParticipantID) (*Offer, error) {
	if s.solo {
		if p != s.initiator {
			return nil, ErrNotParticipant
		}
		return s.initiatorOffer, nil
	}
	switch p {
	case s.initiator:
		return s.initiatorOffer, nil
	case s.target:
		return s.targetOffer, nil
	default:
		return nil, ErrNotParticipant
	}
}

// mutateOffer applies fn to the participant's offer, auto-revoking all
// acceptances first when the session sits in an accepted state.
func (s *Session) mutateOffer(p ParticipantID, fn func(*Offer) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	offer, err := s.offerOf(p)
	if err != nil {
		return err
	}

	switch s.state {
	case StateNegotiating:
	case StateOneAccepted, StateCountdown:
		s.revokeAllLocked()
	default:
		return ErrWrongState
	}

	return fn(offer)
}

// AddItem appends an entry to the participant's offer.
func (s *Session) AddItem(p ParticipantID, entry ItemEntry) error {
	return s.mutateOffer(p, func(o *Offer) error { return o.Add(entry) })
}

// RemoveItem removes the entry at index from the participant's offer.
func (s *Session) RemoveItem(p ParticipantID, index int) error {
	return s.mutateOffer(p, func(o *Offer) error { return o.Remove(index) })
}

// SetItemQuantity updates the quantity of the entry at index in the
// participant's offer.
func (s *Session) SetItemQuantity(p ParticipantID, index, quantity int) error {
	return s.mutateOffer(p, func(o *Offer) error { return o.SetQuantity(index, quantity) })
}

// OfferEntries returns a deep copy of the participant's offer entries.
func (s *Session) OfferEntries(p ParticipantID) ([]ItemEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	offer, err := s.offerOf(p)
	if err != nil {
		return nil, err
	}
	return offer.Entries(), nil
}

// CountdownComplete reports whether the observation countdown has
// elapsed since both participants accepted.
func (s *Session) CountdownComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countdownCompleteLocked()
}

func (s *Session) countdownCompleteLocked() bool {
	if s.state != StateCountdown {
		return false
	}
	return s.clock().Sub(s.countdownStart) >= s.countdown
}

// CountdownRemaining returns how long until the countdown completes.
// Zero when the countdown is complete or not running.
func (s *Session) CountdownRemaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCountdown {
		return 0
	}
	remaining := s.countdown - s.clock().Sub(s.countdownStart)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// BeginExecution moves the session into StateExecuting. It is valid
// only from the countdown state with the countdown complete.
func (s *Session) BeginExecution() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCountdown {
		return ErrWrongState
	}
	if !s.countdownCompleteLocked() {
		return ErrCountdownNotComplete
	}
	s.cancelTimerLocked()
	s.state = StateExecuting
	return nil
}

// FinishExecution records the terminal outcome of the exchange.
func (s *Session) FinishExecution(success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateExecuting {
		return ErrWrongState
	}
	if success {
		s.state = StateCompleted
	} else {
		s.state = StateFailed
	}
	return nil
}

// ReturnToNegotiation moves a failed execution attempt back to
// negotiation with both acceptances cleared, so the participants can
// renegotiate instead of carrying stale acceptances forward.
func (s *Session) ReturnToNegotiation() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateExecuting {
		return ErrWrongState
	}
	s.revokeAllLocked()
	return nil
}

// Cancel moves the session to StateCancelled from any non-terminal
// state and cancels any in-flight timer.
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return ErrWrongState
	}
	s.cancelTimerLocked()
	s.state = StateCancelled
	return nil
}

// SetTimer stores the handle of the timer currently scheduled for this
// session, cancelling any previous one. Every transition away from the
// state that scheduled the timer cancels it.
func (s *Session) SetTimer(handle TimerHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelTimerLocked()
	s.timer = handle
}

func (s *Session) cancelTimerLocked() {
	if s.timer != nil {
		s.timer.Cancel()
		s.timer = nil
	}
}

// Snapshot is a consistent read-only view of a session.
type Snapshot struct {
	ID                 string
	Initiator          ParticipantID
	Target             ParticipantID
	Solo               bool
	State              State
	InitiatorAccepted  bool
	TargetAccepted     bool
	InitiatorOffer     []ItemEntry
	TargetOffer        []ItemEntry
	CountdownRemaining time.Duration
}

// Snapshot captures the session's current state under the session lock.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	remaining := time.Duration(0)
	if s.state == StateCountdown {
		remaining = s.countdown - s.clock().Sub(s.countdownStart)
		if remaining < 0 {
			remaining = 0
		}
	}

	return Snapshot{
		ID:                 s.id,
		Initiator:          s.initiator,
		Target:             s.target,
		Solo:               s.solo,
		State:              s.state,
		InitiatorAccepted:  s.initiatorAccepted,
		TargetAccepted:     s.targetAccepted,
		InitiatorOffer:     s.initiatorOffer.Entries(),
		TargetOffer:        s.targetOffer.Entries(),
		CountdownRemaining: remaining,
	}
}
