// Package errors defines the pool's coded error taxonomy. Every failure the
// core surfaces carries a stable numeric code alongside its message so a
// host can branch on the code without parsing text.
package errors

import "errors"

// Code is a stable, wire-visible failure code.
type Code uint32

const (
	CodeAlreadyInitialized Code = 1
	CodeNegativeAmount     Code = 2
	CodeUnauthorized       Code = 3
	CodeInvalidPoolStatus  Code = 4
	CodeInvalidHf          Code = 5
	CodeInvalidUtilRate    Code = 6
	CodeMaxPositionsExceed Code = 7
	CodeBadRequest         Code = 8

	CodeAuctionInProgress Code = 100
	CodeInvalidLiquidation Code = 101
	CodeInvalidBid        Code = 102
	CodeInterestTooSmall  Code = 103

	CodeNotPool           Code = 200
	CodeNotExpired        Code = 201
	CodeNotEnoughIdleFunds Code = 202
)

// Error is a coded pool failure. It wraps an optional cause so
// errors.Is/errors.As keep working against both the sentinel and the
// underlying reason.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Is allows errors.Is(err, ErrInvalidHf) to match any *Error sharing the
// same code, not just the exact sentinel instance.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == other.Code
}

func newErr(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// WithCause returns a copy of the sentinel carrying the supplied cause.
func (e *Error) WithCause(cause error) *Error {
	return &Error{Code: e.Code, Message: e.Message, cause: cause}
}

var (
	ErrAlreadyInitialized  = newErr(CodeAlreadyInitialized, "already initialized")
	ErrNegativeAmount      = newErr(CodeNegativeAmount, "amount must be non-negative")
	ErrUnauthorized        = newErr(CodeUnauthorized, "unauthorized")
	ErrInvalidPoolStatus   = newErr(CodeInvalidPoolStatus, "invalid pool status for this request")
	ErrInvalidHf           = newErr(CodeInvalidHf, "health factor below minimum")
	ErrInvalidUtilRate     = newErr(CodeInvalidUtilRate, "utilization exceeds reserve cap")
	ErrMaxPositionsExceed  = newErr(CodeMaxPositionsExceed, "max positions exceeded")
	ErrBadRequest          = newErr(CodeBadRequest, "malformed request")

	ErrAuctionInProgress  = newErr(CodeAuctionInProgress, "auction already in progress")
	ErrInvalidLiquidation = newErr(CodeInvalidLiquidation, "liquidation not permitted")
	ErrInvalidBid         = newErr(CodeInvalidBid, "invalid bid or lot")
	ErrInterestTooSmall   = newErr(CodeInterestTooSmall, "accumulated interest below auction threshold")

	ErrNotPool            = newErr(CodeNotPool, "caller is not the pool")
	ErrNotExpired         = newErr(CodeNotExpired, "queued withdrawal not yet expired")
	ErrNotEnoughIdleFunds = newErr(CodeNotEnoughIdleFunds, "not enough idle backstop funds")
)

// Is reports whether err is (or wraps) a pool *Error with the given code.
func Is(err error, sentinel *Error) bool {
	return errors.Is(err, sentinel)
}

// CodeOf extracts the Code from err if it is, or wraps, a pool *Error.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}
