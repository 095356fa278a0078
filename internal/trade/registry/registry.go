// Package registry coordinates every live trade in the process: pending
// requests, active sessions, the timers that expire and execute them,
// and the participant lookup tables.
//
// The registry guards its three tables (sessions by id, active session
// by participant, pending request by target) with one mutex so they
// always change as a group. Session state is guarded by each session's
// own lock, acquired strictly after the registry lock. Participant
// notifications are collected during an operation and dispatched after
// the registry lock is released.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/ashgrove-games/tradepost/internal/errors"
	"github.com/ashgrove-games/tradepost/internal/inventory"
	"github.com/ashgrove-games/tradepost/internal/notify"
	"github.com/ashgrove-games/tradepost/internal/platform/id"
	"github.com/ashgrove-games/tradepost/internal/platform/telemetry"
	"github.com/ashgrove-games/tradepost/internal/trade/domain"
	"github.com/ashgrove-games/tradepost/internal/trade/executor"
)

var (
	// ErrRegistryClosed indicates the registry has shut down.
	ErrRegistryClosed = apperrors.New(apperrors.CodeRegistryClosed, "trade registry is closed")
	// ErrAlreadyInTrade indicates the caller already has an active session.
	ErrAlreadyInTrade = apperrors.New(apperrors.CodeAlreadyInTrade, "participant is already trading")
	// ErrTargetAlreadyInTrade indicates the requested counterpart is busy.
	ErrTargetAlreadyInTrade = apperrors.New(apperrors.CodeTargetAlreadyInTrade, "target is already trading")
	// ErrNoPendingRequest indicates no request is waiting for the caller.
	ErrNoPendingRequest = apperrors.New(apperrors.CodeNoPendingRequest, "no pending trade request")
	// ErrNoActiveSession indicates the caller is not in a trade.
	ErrNoActiveSession = apperrors.New(apperrors.CodeNoActiveSession, "no active trade session")
)

// Config carries the registry's timing knobs.
type Config struct {
	// RequestTimeout is how long an unanswered trade request lives.
	RequestTimeout time.Duration
	// Countdown is the observation delay between mutual acceptance and
	// execution.
	Countdown time.Duration
}

const (
	// DefaultRequestTimeout is the pending request lifetime.
	DefaultRequestTimeout = 30 * time.Second
	// DefaultCountdown is the observation window after mutual acceptance.
	DefaultCountdown = 3 * time.Second
)

func (c Config) withDefaults() Config {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.Countdown <= 0 {
		c.Countdown = DefaultCountdown
	}
	return c
}

// Option customizes a Registry.
type Option func(*Registry)

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.clock = now }
}

// WithIDGenerator injects the session id source.
func WithIDGenerator(gen func() (string, error)) Option {
	return func(r *Registry) { r.idGen = gen }
}

// WithScheduler injects the timer scheduler.
func WithScheduler(s Scheduler) Option {
	return func(r *Registry) { r.scheduler = s }
}

// WithMetrics injects trade outcome instruments.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// Registry owns all live trade state for the process.
type Registry struct {
	cfg       Config
	clock     func() time.Time
	idGen     func() (string, error)
	scheduler Scheduler
	exec      *executor.Executor
	metrics   *telemetry.Metrics
	tracer    trace.Tracer

	mu       sync.RWMutex
	sessions map[string]*domain.Session
	active   map[domain.ParticipantID]string
	pending  map[domain.ParticipantID]*domain.Session
	sinks    map[domain.ParticipantID]notify.Sink
	surfaces map[domain.ParticipantID]string
	closed   bool
}

// New creates a registry over the given inventory provider.
func New(cfg Config, provider inventory.Provider, opts ...Option) *Registry {
	r := &Registry{
		cfg:      cfg.withDefaults(),
		clock:    time.Now,
		idGen:    id.NewID,
		exec:     executor.New(provider),
		tracer:   otel.Tracer("github.com/ashgrove-games/tradepost/internal/trade/registry"),
		sessions: make(map[string]*domain.Session),
		active:   make(map[domain.ParticipantID]string),
		pending:  make(map[domain.ParticipantID]*domain.Session),
		sinks:    make(map[domain.ParticipantID]notify.Sink),
		surfaces: make(map[domain.ParticipantID]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.scheduler == nil {
		r.scheduler = NewTimers()
	}
	return r
}

// notes collects participant notifications while the registry lock is
// held; dispatch runs them after release.
type notes []func()

func (n notes) dispatch() {
	for _, fn := range n {
		fn()
	}
}

// callers hold r.mu
func (r *Registry) noteState(n *notes, p domain.ParticipantID, event notify.StateEvent) {
	sink, ok := r.sinks[p]
	if !ok {
		return
	}
	*n = append(*n, func() { sink.SessionState(event) })
}

func (r *Registry) noteOffer(n *notes, p domain.ParticipantID, event notify.OfferEvent) {
	sink, ok := r.sinks[p]
	if !ok {
		return
	}
	*n = append(*n, func() { sink.OfferChanged(event) })
}

func (r *Registry) noteStatus(n *notes, p domain.ParticipantID, message string) {
	sink, ok := r.sinks[p]
	if !ok {
		return
	}
	*n = append(*n, func() { sink.Status(message) })
}

// noteStateBoth notifies both sides of a session of one transition.
// Solo sessions get a single delivery.
func (r *Registry) noteStateBoth(n *notes, s *domain.Session, state domain.State, reason string) {
	r.noteState(n, s.Initiator(), notify.StateEvent{
		SessionID:   s.ID(),
		State:       state,
		Counterpart: s.Target(),
		Reason:      reason,
	})
	if s.Solo() {
		return
	}
	r.noteState(n, s.Target(), notify.StateEvent{
		SessionID:   s.ID(),
		State:       state,
		Counterpart: s.Initiator(),
		Reason:      reason,
	})
}

// RegisterSink installs the notification sink for a participant,
// replacing any previous one.
func (r *Registry) RegisterSink(p domain.ParticipantID, sink notify.Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sink == nil {
		delete(r.sinks, p)
		return
	}
	r.sinks[p] = sink
}

// RequestTrade creates a pending trade request from initiator to
// target and returns the new session's id. When the target already has
// a request out to the initiator, the two requests merge and the trade
// goes straight to negotiation. Repeating a request is idempotent: the
// existing pending entry and its expiry timer stand, and its id is
// returned. A request from a different initiator replaces the earlier
// one.
func (r *Registry) RequestTrade(ctx context.Context, initiator, target domain.ParticipantID) (string, error) {
	if initiator == "" || target == "" {
		return "", domain.ErrEmptyParticipantID
	}
	if initiator == target {
		return "", domain.ErrSelfTrade
	}

	_, span := r.tracer.Start(ctx, "registry.request_trade",
		trace.WithAttributes(
			attribute.String("trade.initiator", string(initiator)),
			attribute.String("trade.target", string(target)),
		))
	defer span.End()

	r.mu.Lock()
	var n notes
	defer func() {
		r.mu.Unlock()
		n.dispatch()
	}()

	if r.closed {
		return "", ErrRegistryClosed
	}
	if _, ok := r.active[initiator]; ok {
		return "", ErrAlreadyInTrade
	}
	if _, ok := r.active[target]; ok {
		return "", ErrTargetAlreadyInTrade
	}

	// Crossing requests accept each other.
	if mutual, ok := r.pending[initiator]; ok && mutual.Initiator() == target {
		if err := r.promoteLocked(mutual, &n); err != nil {
			return "", err
		}
		log.Printf("level=info msg=\"mutual trade requests merged\" session_id=%s initiator=%s target=%s",
			mutual.ID(), mutual.Initiator(), mutual.Target())
		return mutual.ID(), nil
	}

	if old, ok := r.pending[target]; ok {
		if old.Initiator() == initiator {
			return old.ID(), nil
		}
		delete(r.pending, target)
		delete(r.sessions, old.ID())
		_ = old.Cancel()
		r.noteStateBoth(&n, old, domain.StateCancelled, "superseded")
	}

	session, err := domain.NewSession(initiator, target, r.cfg.Countdown, r.clock, r.idGen)
	if err != nil {
		return "", err
	}
	r.sessions[session.ID()] = session
	r.pending[target] = session

	sessionID := session.ID()
	session.SetTimer(r.scheduler.After(r.cfg.RequestTimeout, func() {
		r.expireRequest(sessionID)
	}))

	r.noteState(&n, target, notify.StateEvent{
		SessionID:   sessionID,
		State:       domain.StateRequested,
		Counterpart: initiator,
	})
	log.Printf("level=info msg=\"trade requested\" session_id=%s initiator=%s target=%s timeout=%s",
		sessionID, initiator, target, r.cfg.RequestTimeout)
	return sessionID, nil
}

// expireRequest is the pending request timeout callback. It re-checks
// that the same session instance is still the pending request before
// touching anything, so a timer that lost a race with accept, decline,
// or replacement is a no-op.
func (r *Registry) expireRequest(sessionID string) {
	r.mu.Lock()
	var n notes
	defer func() {
		r.mu.Unlock()
		n.dispatch()
	}()

	session, ok := r.sessions[sessionID]
	if !ok || session.State() != domain.StateRequested {
		return
	}
	if current, ok := r.pending[session.Target()]; !ok || current != session {
		return
	}

	delete(r.pending, session.Target())
	delete(r.sessions, sessionID)
	_ = session.Cancel()
	r.metrics.RequestExpired(context.Background())
	r.noteStateBoth(&n, session, domain.StateCancelled, "request_expired")
	log.Printf("level=info msg=\"trade request expired\" session_id=%s initiator=%s target=%s",
		sessionID, session.Initiator(), session.Target())
}

// AcceptTradeRequest answers the request waiting for target and moves
// the trade into negotiation. It returns the session id.
func (r *Registry) AcceptTradeRequest(ctx context.Context, target domain.ParticipantID) (string, error) {
	_, span := r.tracer.Start(ctx, "registry.accept_trade_request",
		trace.WithAttributes(attribute.String("trade.target", string(target))))
	defer span.End()

	r.mu.Lock()
	var n notes
	defer func() {
		r.mu.Unlock()
		n.dispatch()
	}()

	if r.closed {
		return "", ErrRegistryClosed
	}
	session, ok := r.pending[target]
	if !ok {
		return "", ErrNoPendingRequest
	}
	if err := r.promoteLocked(session, &n); err != nil {
		return "", err
	}
	log.Printf("level=info msg=\"trade request accepted\" session_id=%s initiator=%s target=%s",
		session.ID(), session.Initiator(), session.Target())
	return session.ID(), nil
}

// promoteLocked moves a pending request into active negotiation. The
// participants are re-checked against the active table: either may
// have entered another trade while this request sat pending.
func (r *Registry) promoteLocked(session *domain.Session, n *notes) error {
	dropPending := func() {
		delete(r.pending, session.Target())
		delete(r.sessions, session.ID())
		_ = session.Cancel()
	}
	if _, ok := r.active[session.Initiator()]; ok {
		dropPending()
		r.noteStateBoth(n, session, domain.StateCancelled, "initiator_busy")
		return ErrAlreadyInTrade
	}
	if _, ok := r.active[session.Target()]; ok {
		dropPending()
		r.noteStateBoth(n, session, domain.StateCancelled, "target_busy")
		return ErrTargetAlreadyInTrade
	}

	if err := session.AcceptRequest(); err != nil {
		dropPending()
		return err
	}
	delete(r.pending, session.Target())
	r.active[session.Initiator()] = session.ID()
	r.active[session.Target()] = session.ID()
	r.noteStateBoth(n, session, domain.StateNegotiating, "")
	return nil
}

// DeclineTradeRequest removes the request waiting for target.
func (r *Registry) DeclineTradeRequest(ctx context.Context, target domain.ParticipantID) error {
	r.mu.Lock()
	var n notes
	defer func() {
		r.mu.Unlock()
		n.dispatch()
	}()

	session, ok := r.pending[target]
	if !ok {
		return ErrNoPendingRequest
	}
	delete(r.pending, target)
	delete(r.sessions, session.ID())
	_ = session.Cancel()
	r.noteState(&n, session.Initiator(), notify.StateEvent{
		SessionID:   session.ID(),
		State:       domain.StateCancelled,
		Counterpart: target,
		Reason:      "declined",
	})
	log.Printf("level=info msg=\"trade request declined\" session_id=%s initiator=%s target=%s",
		session.ID(), session.Initiator(), target)
	return nil
}

// StartSoloSession opens a self-trade session for one participant,
// already in negotiation. Used for exercising the trade surface
// without a counterpart.
func (r *Registry) StartSoloSession(ctx context.Context, participant domain.ParticipantID) (string, error) {
	r.mu.Lock()
	var n notes
	defer func() {
		r.mu.Unlock()
		n.dispatch()
	}()

	if r.closed {
		return "", ErrRegistryClosed
	}
	if _, ok := r.active[participant]; ok {
		return "", ErrAlreadyInTrade
	}

	session, err := domain.NewSoloSession(participant, r.cfg.Countdown, r.clock, r.idGen)
	if err != nil {
		return "", err
	}
	if err := session.AcceptRequest(); err != nil {
		return "", err
	}
	r.sessions[session.ID()] = session
	r.active[participant] = session.ID()
	r.noteStateBoth(&n, session, domain.StateNegotiating, "")
	log.Printf("level=info msg=\"solo trade session started\" session_id=%s participant=%s",
		session.ID(), participant)
	return session.ID(), nil
}

// activeSessionLocked resolves the caller's active session. Callers
// hold r.mu.
func (r *Registry) activeSessionLocked(p domain.ParticipantID) (*domain.Session, error) {
	sessionID, ok := r.active[p]
	if !ok {
		return nil, ErrNoActiveSession
	}
	session, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrNoActiveSession
	}
	return session, nil
}

// AcceptTrade marks the participant's acceptance of the current
// offers. When both sides have accepted, the execution countdown
// starts.
func (r *Registry) AcceptTrade(ctx context.Context, p domain.ParticipantID) error {
	_, span := r.tracer.Start(ctx, "registry.accept_trade",
		trace.WithAttributes(attribute.String("trade.participant", string(p))))
	defer span.End()

	r.mu.Lock()
	var n notes
	defer func() {
		r.mu.Unlock()
		n.dispatch()
	}()

	session, err := r.activeSessionLocked(p)
	if err != nil {
		return err
	}
	state, err := session.Accept(p)
	if err != nil {
		return err
	}
	r.noteStateBoth(&n, session, state, "")

	if state == domain.StateCountdown {
		sessionID := session.ID()
		session.SetTimer(r.scheduler.After(r.cfg.Countdown, func() {
			r.runExecution(context.Background(), sessionID)
		}))
		message := fmt.Sprintf("both sides accepted, trade executes in %s", r.cfg.Countdown)
		r.noteStatus(&n, session.Initiator(), message)
		if !session.Solo() {
			r.noteStatus(&n, session.Target(), message)
		}
		log.Printf("level=info msg=\"trade countdown started\" session_id=%s countdown=%s",
			sessionID, r.cfg.Countdown)
	}
	return nil
}

// RevokeAccept withdraws the participant's acceptance. Leaving the
// countdown this way cancels the scheduled execution.
func (r *Registry) RevokeAccept(ctx context.Context, p domain.ParticipantID) error {
	_, span := r.tracer.Start(ctx, "registry.revoke_accept",
		trace.WithAttributes(attribute.String("trade.participant", string(p))))
	defer span.End()

	r.mu.Lock()
	var n notes
	defer func() {
		r.mu.Unlock()
		n.dispatch()
	}()

	session, err := r.activeSessionLocked(p)
	if err != nil {
		return err
	}
	state, err := session.RevokeAccept(p)
	if err != nil {
		return err
	}
	r.noteStateBoth(&n, session, state, "accept_revoked")
	return nil
}

// mutateOffer runs one offer mutation and fans out the resulting
// offer, plus a state event when the mutation knocked the session out
// of an accepted state.
func (r *Registry) mutateOffer(p domain.ParticipantID, mutate func(*domain.Session) error) error {
	r.mu.Lock()
	var n notes
	defer func() {
		r.mu.Unlock()
		n.dispatch()
	}()

	session, err := r.activeSessionLocked(p)
	if err != nil {
		return err
	}

	before := session.State()
	if err := mutate(session); err != nil {
		return err
	}
	after := session.State()

	entries, err := session.OfferEntries(p)
	if err != nil {
		return err
	}
	event := notify.OfferEvent{SessionID: session.ID(), Owner: p, Entries: entries}
	r.noteOffer(&n, session.Initiator(), event)
	if !session.Solo() {
		r.noteOffer(&n, session.Target(), event)
	}
	if before != after {
		r.noteStateBoth(&n, session, after, "offer_changed")
	}
	return nil
}

// AddOfferItem adds an item to the participant's offer.
func (r *Registry) AddOfferItem(ctx context.Context, p domain.ParticipantID, entry domain.ItemEntry) error {
	return r.mutateOffer(p, func(s *domain.Session) error { return s.AddItem(p, entry) })
}

// RemoveOfferItem removes the item at index from the participant's offer.
func (r *Registry) RemoveOfferItem(ctx context.Context, p domain.ParticipantID, index int) error {
	return r.mutateOffer(p, func(s *domain.Session) error { return s.RemoveItem(p, index) })
}

// SetOfferQuantity changes the quantity of the item at index in the
// participant's offer.
func (r *Registry) SetOfferQuantity(ctx context.Context, p domain.ParticipantID, index, quantity int) error {
	return r.mutateOffer(p, func(s *domain.Session) error { return s.SetItemQuantity(p, index, quantity) })
}

// ConfirmTrade executes the trade immediately once the countdown has
// elapsed, for callers that drive execution themselves instead of
// waiting for the countdown timer.
func (r *Registry) ConfirmTrade(ctx context.Context, p domain.ParticipantID) error {
	ctx, span := r.tracer.Start(ctx, "registry.confirm_trade",
		trace.WithAttributes(attribute.String("trade.participant", string(p))))
	defer span.End()

	r.mu.RLock()
	session, err := r.activeSessionLocked(p)
	r.mu.RUnlock()
	if err != nil {
		return err
	}
	if session.State() != domain.StateCountdown {
		return domain.ErrWrongState
	}
	if !session.CountdownComplete() {
		return domain.ErrCountdownNotComplete
	}
	return r.runExecution(ctx, session.ID())
}

// runExecution drives a session through the exchange. It is the
// countdown timer callback and the ConfirmTrade entry point; the
// BeginExecution transition is the stale-timer guard, so a session
// that moved on since the timer was scheduled is left alone.
func (r *Registry) runExecution(ctx context.Context, sessionID string) error {
	r.mu.RLock()
	session, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return ErrNoActiveSession
	}

	if err := session.BeginExecution(); err != nil {
		return err
	}

	var n notes
	r.mu.RLock()
	r.noteStateBoth(&n, session, domain.StateExecuting, "")
	r.mu.RUnlock()
	n.dispatch()

	result, execErr := r.exec.Execute(ctx, session.Snapshot())

	r.mu.Lock()
	n = nil
	defer func() {
		r.mu.Unlock()
		n.dispatch()
	}()

	if execErr == nil {
		_ = session.FinishExecution(true)
		r.teardownLocked(session)
		r.metrics.TradeCompleted(ctx, result.InitiatorGave, result.TargetGave)
		r.noteStateBoth(&n, session, domain.StateCompleted, "")
		log.Printf("level=info msg=\"trade completed\" session_id=%s initiator_gave=%d target_gave=%d",
			sessionID, result.InitiatorGave, result.TargetGave)
		return nil
	}

	var exchangeErr *executor.Error
	if errors.As(execErr, &exchangeErr) && exchangeErr.Recoverable() {
		_ = session.ReturnToNegotiation()
		r.noteStateBoth(&n, session, domain.StateNegotiating, "exchange_"+string(apperrors.GetCode(execErr)))
		log.Printf("level=warn msg=\"trade verification failed\" session_id=%s side=%s error=%q",
			sessionID, executor.FailureSide(execErr), execErr)
		return execErr
	}

	_ = session.FinishExecution(false)
	r.teardownLocked(session)
	side := executor.FailureSide(execErr)
	r.metrics.TradeFailed(ctx, side.String())
	r.noteStateBoth(&n, session, domain.StateFailed, "exchange_"+string(apperrors.GetCode(execErr)))
	log.Printf("level=error msg=\"trade failed\" session_id=%s side=%s error=%q",
		sessionID, side, execErr)
	return execErr
}

// teardownLocked removes a finished session from every table. Callers
// hold r.mu.
func (r *Registry) teardownLocked(session *domain.Session) {
	delete(r.sessions, session.ID())
	delete(r.active, session.Initiator())
	delete(r.active, session.Target())
	if r.surfaces[session.Initiator()] == session.ID() {
		delete(r.surfaces, session.Initiator())
	}
	if r.surfaces[session.Target()] == session.ID() {
		delete(r.surfaces, session.Target())
	}
}

// CancelTrade cancels the caller's active session, or withdraws their
// pending request when they have no active session. A trade that is
// already executing can no longer be cancelled.
func (r *Registry) CancelTrade(ctx context.Context, p domain.ParticipantID) error {
	ctx, span := r.tracer.Start(ctx, "registry.cancel_trade",
		trace.WithAttributes(attribute.String("trade.participant", string(p))))
	defer span.End()

	r.mu.Lock()
	var n notes
	defer func() {
		r.mu.Unlock()
		n.dispatch()
	}()
	return r.cancelLocked(ctx, p, "cancelled", &n)
}

func (r *Registry) cancelLocked(ctx context.Context, p domain.ParticipantID, reason string, n *notes) error {
	if session, err := r.activeSessionLocked(p); err == nil {
		if session.State() == domain.StateExecuting {
			return domain.ErrWrongState
		}
		if err := session.Cancel(); err != nil {
			return err
		}
		r.teardownLocked(session)
		r.metrics.TradeCancelled(ctx)
		r.noteStateBoth(n, session, domain.StateCancelled, reason)
		log.Printf("level=info msg=\"trade cancelled\" session_id=%s participant=%s reason=%s",
			session.ID(), p, reason)
		return nil
	}

	// No active session: withdraw a pending request involving p.
	if session, ok := r.pending[p]; ok {
		delete(r.pending, p)
		delete(r.sessions, session.ID())
		_ = session.Cancel()
		r.noteStateBoth(n, session, domain.StateCancelled, reason)
		return nil
	}
	for target, session := range r.pending {
		if session.Initiator() != p {
			continue
		}
		delete(r.pending, target)
		delete(r.sessions, session.ID())
		_ = session.Cancel()
		r.noteStateBoth(n, session, domain.StateCancelled, reason)
		return nil
	}
	return ErrNoActiveSession
}

// OnInventoryChanged reacts to an out-of-band change to the
// participant's inventory. An accepted trade is knocked back to
// negotiation so nobody commits to items that may have moved.
func (r *Registry) OnInventoryChanged(p domain.ParticipantID) {
	r.mu.Lock()
	var n notes
	defer func() {
		r.mu.Unlock()
		n.dispatch()
	}()

	session, err := r.activeSessionLocked(p)
	if err != nil {
		return
	}
	switch session.State() {
	case domain.StateOneAccepted, domain.StateCountdown:
		state := session.RevokeAll()
		r.noteStateBoth(&n, session, state, "inventory_changed")
		log.Printf("level=info msg=\"acceptances revoked on inventory change\" session_id=%s participant=%s",
			session.ID(), p)
	}
}

// OnParticipantDisconnect tears down everything involving a departed
// participant: their sink, their open surface, their active session,
// and any pending request they sent or received. It is idempotent.
func (r *Registry) OnParticipantDisconnect(p domain.ParticipantID) {
	r.mu.Lock()
	var n notes
	defer func() {
		r.mu.Unlock()
		n.dispatch()
	}()

	delete(r.sinks, p)
	delete(r.surfaces, p)

	if session, err := r.activeSessionLocked(p); err == nil {
		// An executing exchange resolves on its own; the executor sees
		// the missing inventory handle and fails the trade.
		if session.State() != domain.StateExecuting {
			_ = session.Cancel()
			r.teardownLocked(session)
			r.metrics.TradeCancelled(context.Background())
			r.noteStateBoth(&n, session, domain.StateCancelled, "participant_disconnected")
			log.Printf("level=info msg=\"trade cancelled on disconnect\" session_id=%s participant=%s",
				session.ID(), p)
		}
	}

	if session, ok := r.pending[p]; ok {
		delete(r.pending, p)
		delete(r.sessions, session.ID())
		_ = session.Cancel()
		r.noteStateBoth(&n, session, domain.StateCancelled, "participant_disconnected")
	}
	for target, session := range r.pending {
		if session.Initiator() != p {
			continue
		}
		delete(r.pending, target)
		delete(r.sessions, session.ID())
		_ = session.Cancel()
		r.noteStateBoth(&n, session, domain.StateCancelled, "participant_disconnected")
	}
}

// OpenSurface records that the participant opened their trade surface
// for the active session.
func (r *Registry) OpenSurface(p domain.ParticipantID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, err := r.activeSessionLocked(p)
	if err != nil {
		return err
	}
	r.surfaces[p] = session.ID()
	return nil
}

// CloseSurface records that the participant closed their trade
// surface. Closing the surface mid-trade cancels the trade; closing
// with no trade open is a no-op.
func (r *Registry) CloseSurface(ctx context.Context, p domain.ParticipantID) {
	r.mu.Lock()
	var n notes
	defer func() {
		r.mu.Unlock()
		n.dispatch()
	}()

	sessionID, ok := r.surfaces[p]
	if !ok {
		return
	}
	delete(r.surfaces, p)

	session, err := r.activeSessionLocked(p)
	if err != nil || session.ID() != sessionID {
		return
	}
	if session.State() == domain.StateExecuting || session.State().Terminal() {
		return
	}
	_ = r.cancelLocked(ctx, p, "surface_closed", &n)
}

// SessionFor returns a snapshot of the participant's active session.
func (r *Registry) SessionFor(p domain.ParticipantID) (domain.Snapshot, bool) {
	r.mu.RLock()
	session, err := r.activeSessionLocked(p)
	r.mu.RUnlock()
	if err != nil {
		return domain.Snapshot{}, false
	}
	return session.Snapshot(), true
}

// PendingRequestFor returns the initiator of the request waiting for
// target, if any.
func (r *Registry) PendingRequestFor(target domain.ParticipantID) (domain.ParticipantID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.pending[target]
	if !ok {
		return "", false
	}
	return session.Initiator(), true
}

// Stats is a point-in-time view of registry load.
type Stats struct {
	ActiveSessions  int
	PendingRequests int
}

// Status reports current registry load.
func (r *Registry) Status() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{
		ActiveSessions:  len(r.sessions) - len(r.pending),
		PendingRequests: len(r.pending),
	}
}

// Shutdown cancels every live session and pending request, stops all
// timers, and closes the registry to new work.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	var n notes
	defer func() {
		r.mu.Unlock()
		n.dispatch()
	}()

	if r.closed {
		return nil
	}
	r.closed = true
	r.scheduler.Stop()

	for _, session := range r.sessions {
		if session.State().Terminal() {
			continue
		}
		_ = session.Cancel()
		r.noteStateBoth(&n, session, domain.StateCancelled, "shutdown")
	}
	r.sessions = make(map[string]*domain.Session)
	r.active = make(map[domain.ParticipantID]string)
	r.pending = make(map[domain.ParticipantID]*domain.Session)
	r.surfaces = make(map[domain.ParticipantID]string)
	log.Printf("level=info msg=\"trade registry shut down\"")
	return nil
}
