package service

import (
	"context"

	"rentacar-escrow-backend/internal/domain"
)

// EscrowService is the public surface of the rental escrow engine. Caller
// identity is proven through the context (see security.WithCallerAccount);
// every mutating operation is all-or-nothing: on error no ledger state and
// no funds have moved.
type EscrowService interface {
	// Initialize sets the administrator and payment token identities.
	// Callable exactly once.
	Initialize(ctx context.Context, admin, token string) error

	// AddCar registers a rentable car for owner. Administrator only.
	AddCar(ctx context.Context, owner string, pricePerDay int64) error

	// GetCarStatus reports whether owner's car is available or rented.
	GetCarStatus(ctx context.Context, owner string) (domain.CarStatus, error)

	// Rental reserves owner's car for the renter, moving the agreed amount
	// plus the current commission into custody.
	Rental(ctx context.Context, renter, owner string, totalDaysToRent int32, amount int64) error

	// RemoveCar deletes owner's car record. Administrator only; fails while
	// the owner still has a claimable balance.
	RemoveCar(ctx context.Context, owner string) error

	// PayoutOwner releases part of owner's claimable balance from custody.
	PayoutOwner(ctx context.Context, owner string, amount int64) error

	// SetAdminCommission sets the flat per-rental surcharge. Administrator
	// only; applies to future reservations, never recorded ones.
	SetAdminCommission(ctx context.Context, rate int64) error

	// WithdrawAdminCommission releases accrued commission from custody to
	// the administrator.
	WithdrawAdminCommission(ctx context.Context, amount int64) error
}
