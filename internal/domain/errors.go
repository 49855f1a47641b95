package domain

import "errors"

// Every failure the engine reports is one of these sentinels. A failed
// operation leaves the ledger exactly as it was; none of them is fatal to
// persistent state. Retries are a caller concern.
var (
	ErrAlreadyInitialized   = errors.New("contract already initialized")
	ErrNotInitialized       = errors.New("contract not initialized")
	ErrAdminTokenConflict   = errors.New("admin and payment token must differ")
	ErrCarNotFound          = errors.New("car not found")
	ErrCarAlreadyExists     = errors.New("car already exists for owner")
	ErrCarAlreadyRented     = errors.New("car already rented")
	ErrRentalNotFound       = errors.New("rental not found")
	ErrInvalidAmount        = errors.New("amount must be positive")
	ErrInvalidDuration      = errors.New("rental duration cannot be zero")
	ErrSelfRentalNotAllowed = errors.New("self rental not allowed")
	ErrInsufficientBalance  = errors.New("insufficient claimable balance")
	ErrCustodyShortfall     = errors.New("custody balance below requested amount")
	ErrOutstandingBalance   = errors.New("car has an outstanding claimable balance")
	ErrArithmeticOverflow   = errors.New("arithmetic overflow")
	ErrNotAuthorized        = errors.New("caller identity not authorized")
)
