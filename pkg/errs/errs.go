// Package errs defines the failure taxonomy surfaced by settlement operations.
//
// Every rejected operation carries a human-readable reason (the string callers
// see) and a Code that stays stable even when two failures share a reason.
package errs

import (
	"errors"
	"fmt"
)

// Kind groups failures by how the caller should react to them
type Kind uint8

const (
	KindValidation    Kind = iota + 1 // bad input, nothing was mutated
	KindStateConflict                 // order cancelled or exhausted
	KindTransfer                      // ledger refused a movement, match reverted
	KindProgrammer                    // malformed call shape
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindStateConflict:
		return "state_conflict"
	case KindTransfer:
		return "transfer"
	case KindProgrammer:
		return "programmer"
	default:
		return "unknown"
	}
}

// Code identifies a specific failure
type Code string

const (
	CodeInvalidSignature   Code = "INVALID_SIGNATURE"
	CodeMakerNotSender     Code = "MAKER_NOT_SENDER"
	CodeOrderNotStarted    Code = "ORDER_NOT_STARTED"
	CodeOrderExpired       Code = "ORDER_EXPIRED"
	CodeAssetMismatch      Code = "ASSET_MISMATCH"
	CodeTakerMismatch      Code = "TAKER_MISMATCH"
	CodeUnableToFill       Code = "UNABLE_TO_FILL"
	CodeZeroFill           Code = "ZERO_FILL"
	CodeInvalidOrder       Code = "INVALID_ORDER"
	CodeUnknownDataType    Code = "UNKNOWN_DATA_TYPE"
	CodeUnsupportedAsset   Code = "UNSUPPORTED_ASSET"
	CodeFeesTooHigh        Code = "FEES_TOO_HIGH"
	CodeOrderCancelled     Code = "ORDER_CANCELLED"
	CodeOrderFilled        Code = "ORDER_FILLED"
	CodeFillRollback       Code = "FILL_ROLLBACK"
	CodeNotMaker           Code = "NOT_MAKER"
	CodeZeroSalt           Code = "ZERO_SALT"
	CodeTransferFailed     Code = "TRANSFER_FAILED"
	CodeNativeValueTooLow  Code = "NATIVE_VALUE_TOO_LOW"
	CodeLengthMismatch     Code = "LENGTH_MISMATCH"
	CodeStorage            Code = "STORAGE"
)

// Error is a settlement failure
type Error struct {
	Kind   Kind
	Code   Code
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code so callers can compare against the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Wrap returns a copy of e carrying cause.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Reason: e.Reason, Err: cause}
}

// New creates an error
func New(kind Kind, code Code, reason string) *Error {
	return &Error{Kind: kind, Code: code, Reason: reason}
}

// KindOf reports the Kind of err, or zero when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Reason returns the caller-facing reason string of err.
func Reason(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// Cancellation and exhaustion share one reason; the codes keep them apart.
const reasonCancelled = "Order has been cancelled"

var (
	ErrInvalidSignature = New(KindValidation, CodeInvalidSignature, "order signature verification error")
	ErrMakerNotSender   = New(KindValidation, CodeMakerNotSender, "maker is not tx sender")
	ErrOrderNotStarted  = New(KindValidation, CodeOrderNotStarted, "Order start validation failed")
	ErrOrderExpired     = New(KindValidation, CodeOrderExpired, "Order end validation failed")
	ErrAssetMismatch    = New(KindValidation, CodeAssetMismatch, "assets don't match")
	ErrLeftTaker        = New(KindValidation, CodeTakerMismatch, "leftOrder.taker verification failed")
	ErrRightTaker       = New(KindValidation, CodeTakerMismatch, "rightOrder.taker verification failed")
	ErrFillLeft         = New(KindValidation, CodeUnableToFill, "fillLeft: unable to fill")
	ErrFillRight        = New(KindValidation, CodeUnableToFill, "fillRight: unable to fill")
	ErrZeroFill         = New(KindValidation, CodeZeroFill, "nothing to fill")
	ErrInvalidOrder     = New(KindValidation, CodeInvalidOrder, "invalid order")
	ErrUnknownDataType  = New(KindValidation, CodeUnknownDataType, "unknown order data type")
	ErrUnsupportedAsset = New(KindValidation, CodeUnsupportedAsset, "unsupported asset class")
	ErrMalformedAsset   = New(KindValidation, CodeUnsupportedAsset, "malformed asset data")
	ErrRoyaltiesTooHigh = New(KindValidation, CodeFeesTooHigh, "Royalties are too high (>50%)")
	ErrFeesExceedAmount = New(KindValidation, CodeFeesTooHigh, "fees exceed amount")

	ErrOrderCancelled = New(KindStateConflict, CodeOrderCancelled, reasonCancelled)
	ErrOrderFilled    = New(KindStateConflict, CodeOrderFilled, reasonCancelled)
	ErrFillRollback   = New(KindStateConflict, CodeFillRollback, "fill amount cannot decrease")
	ErrNotMaker       = New(KindValidation, CodeNotMaker, "not a maker")
	ErrZeroSalt       = New(KindValidation, CodeZeroSalt, "0 salt can't be used")

	ErrTransferFailed    = New(KindTransfer, CodeTransferFailed, "asset transfer failed")
	ErrNativeValueTooLow = New(KindTransfer, CodeNativeValueTooLow, "not enough native value attached")

	ErrLengthMismatch = New(KindProgrammer, CodeLengthMismatch, "order and signature counts differ")
	ErrStorage        = New(KindTransfer, CodeStorage, "storage failure")
)
