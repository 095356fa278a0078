// Package errors provides structured error handling with machine-readable codes.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Request/registry precondition errors
	CodeAlreadyInTrade       Code = "TRADE_ALREADY_IN_TRADE"
	CodeTargetAlreadyInTrade Code = "TRADE_TARGET_ALREADY_IN_TRADE"
	CodeNoPendingRequest     Code = "TRADE_NO_PENDING_REQUEST"
	CodeNoActiveSession      Code = "TRADE_NO_ACTIVE_SESSION"
	CodeSelfTrade            Code = "TRADE_SELF_TRADE"
	CodeRegistryClosed       Code = "TRADE_REGISTRY_CLOSED"

	// Session state errors
	CodeWrongState           Code = "SESSION_WRONG_STATE"
	CodeNotParticipant       Code = "SESSION_NOT_PARTICIPANT"
	CodeAlreadyAccepted      Code = "SESSION_ALREADY_ACCEPTED"
	CodeNotAccepted          Code = "SESSION_NOT_ACCEPTED"
	CodeCountdownNotComplete Code = "SESSION_COUNTDOWN_NOT_COMPLETE"

	// Offer errors
	CodeOfferLocked     Code = "OFFER_LOCKED"
	CodeIndexOutOfRange Code = "OFFER_INDEX_OUT_OF_RANGE"
	CodeInvalidQuantity Code = "OFFER_INVALID_QUANTITY"
	CodeInvalidItem     Code = "OFFER_INVALID_ITEM"

	// Exchange-time errors, attributable to one side
	CodeMissingItems      Code = "EXCHANGE_MISSING_ITEMS"
	CodeInsufficientSpace Code = "EXCHANGE_INSUFFICIENT_SPACE"

	// System-level errors, attributable to neither side
	CodeHandleUnavailable Code = "EXCHANGE_HANDLE_UNAVAILABLE"
	CodeExchangeInternal  Code = "EXCHANGE_INTERNAL"
)
