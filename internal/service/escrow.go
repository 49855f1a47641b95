package service

import (
	"context"
	"sync"

	"rentacar-escrow-backend/internal/domain"
	"rentacar-escrow-backend/internal/events"
	"rentacar-escrow-backend/internal/kv"
	"rentacar-escrow-backend/internal/ledger"
	"rentacar-escrow-backend/internal/logger"
	"rentacar-escrow-backend/internal/security"
	"rentacar-escrow-backend/internal/treasury"
	"rentacar-escrow-backend/internal/utils"
)

type escrowEngine struct {
	// One mutex serializes all mutating operations. Expected volume is low
	// and the read-modify-write sequences over shared singletons must not
	// interleave.
	mu sync.Mutex

	store    kv.Store
	auth     security.Authorizer
	treasury treasury.Transferor
	notifier events.Notifier

	// custodyAccount holds escrowed funds on the transfer backend; it is
	// the engine's own identity there.
	custodyAccount string
}

func NewEscrowEngine(
	store kv.Store,
	auth security.Authorizer,
	transferor treasury.Transferor,
	notifier events.Notifier,
	custodyAccount string,
) EscrowService {
	return &escrowEngine{
		store:          store,
		auth:           auth,
		treasury:       transferor,
		notifier:       notifier,
		custodyAccount: custodyAccount,
	}
}

func (e *escrowEngine) Initialize(ctx context.Context, admin, token string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if admin == token {
		return domain.ErrAdminTokenConflict
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	led := ledger.NewStore(tx)
	initialized, err := led.HasAdmin(ctx)
	if err != nil {
		return err
	}
	if initialized {
		return domain.ErrAlreadyInitialized
	}

	if err := led.WriteAdmin(ctx, admin); err != nil {
		return err
	}
	if err := led.WritePaymentToken(ctx, token); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	e.notifier.ContractInitialized(ctx, admin, token)
	return nil
}

func (e *escrowEngine) AddCar(ctx context.Context, owner string, pricePerDay int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	led := ledger.NewStore(tx)
	if err := e.requireAdmin(ctx, led); err != nil {
		return err
	}
	if pricePerDay <= 0 {
		return domain.ErrInvalidAmount
	}
	exists, err := led.HasCar(ctx, owner)
	if err != nil {
		return err
	}
	if exists {
		return domain.ErrCarAlreadyExists
	}

	car := &domain.Car{
		PricePerDay:         pricePerDay,
		Status:              domain.CarStatusAvailable,
		AvailableToWithdraw: 0,
	}
	if err := led.WriteCar(ctx, owner, car); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	e.notifier.CarAdded(ctx, owner, pricePerDay)
	return nil
}

func (e *escrowEngine) GetCarStatus(ctx context.Context, owner string) (domain.CarStatus, error) {
	car, err := ledger.NewStore(e.store).Car(ctx, owner)
	if err != nil {
		return "", err
	}
	return car.Status, nil
}

func (e *escrowEngine) Rental(ctx context.Context, renter, owner string, totalDaysToRent int32, amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.auth.RequireIdentity(ctx, renter); err != nil {
		return err
	}
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	if totalDaysToRent <= 0 {
		return domain.ErrInvalidDuration
	}
	if renter == owner {
		return domain.ErrSelfRentalNotAllowed
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	led := ledger.NewStore(tx)
	token, err := led.PaymentToken(ctx)
	if err != nil {
		return err
	}

	car, err := led.Car(ctx, owner)
	if err != nil {
		return err
	}
	if car.Status != domain.CarStatusAvailable {
		return domain.ErrCarAlreadyRented
	}

	// The rate in effect now is captured by this reservation; later rate
	// changes never touch it. Commission is an additive surcharge paid by
	// the renter, not a cut of the owner's amount.
	rate, err := led.CommissionRate(ctx)
	if err != nil {
		return err
	}
	total, err := utils.CheckedAdd(amount, rate)
	if err != nil {
		return err
	}

	car.Status = domain.CarStatusRented
	car.AvailableToWithdraw, err = utils.CheckedAdd(car.AvailableToWithdraw, amount)
	if err != nil {
		return err
	}

	commissionBalance, err := led.CommissionBalance(ctx)
	if err != nil {
		return err
	}
	commissionBalance, err = utils.CheckedAdd(commissionBalance, rate)
	if err != nil {
		return err
	}

	custody, err := led.CustodyTotal(ctx)
	if err != nil {
		return err
	}
	custody, err = utils.CheckedAdd(custody, total)
	if err != nil {
		return err
	}

	if err := led.WriteCar(ctx, owner, car); err != nil {
		return err
	}
	rental := &domain.Rental{TotalDaysToRent: totalDaysToRent, Amount: amount}
	if err := led.WriteRental(ctx, renter, owner, rental); err != nil {
		return err
	}
	if err := led.WriteCommissionBalance(ctx, commissionBalance); err != nil {
		return err
	}
	if err := led.WriteCustodyTotal(ctx, custody); err != nil {
		return err
	}

	if err := e.treasury.Transfer(ctx, token, renter, e.custodyAccount, total); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		e.compensate(ctx, token, e.custodyAccount, renter, total)
		return err
	}

	e.notifier.Rented(ctx, renter, owner, totalDaysToRent, amount)
	return nil
}

func (e *escrowEngine) RemoveCar(ctx context.Context, owner string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	led := ledger.NewStore(tx)
	if err := e.requireAdmin(ctx, led); err != nil {
		return err
	}
	car, err := led.Car(ctx, owner)
	if err != nil {
		return err
	}
	// Deleting a car with a claimable balance would strand funds in
	// custody; the owner has to be paid out first.
	if car.AvailableToWithdraw > 0 {
		return domain.ErrOutstandingBalance
	}

	if err := led.DeleteCar(ctx, owner); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	e.notifier.CarRemoved(ctx, owner)
	return nil
}

func (e *escrowEngine) PayoutOwner(ctx context.Context, owner string, amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.auth.RequireIdentity(ctx, owner); err != nil {
		return err
	}
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	led := ledger.NewStore(tx)
	token, err := led.PaymentToken(ctx)
	if err != nil {
		return err
	}
	car, err := led.Car(ctx, owner)
	if err != nil {
		return err
	}
	if amount > car.AvailableToWithdraw {
		return domain.ErrInsufficientBalance
	}

	custody, err := led.CustodyTotal(ctx)
	if err != nil {
		return err
	}
	// Unreachable while the accounting identity holds; enforced anyway.
	if amount > custody {
		return domain.ErrCustodyShortfall
	}

	car.AvailableToWithdraw, err = utils.CheckedSub(car.AvailableToWithdraw, amount)
	if err != nil {
		return err
	}
	custody, err = utils.CheckedSub(custody, amount)
	if err != nil {
		return err
	}

	if err := led.WriteCar(ctx, owner, car); err != nil {
		return err
	}
	if err := led.WriteCustodyTotal(ctx, custody); err != nil {
		return err
	}

	if err := e.treasury.Transfer(ctx, token, e.custodyAccount, owner, amount); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		e.compensate(ctx, token, owner, e.custodyAccount, amount)
		return err
	}

	e.notifier.OwnerPaidOut(ctx, owner, amount)
	return nil
}

func (e *escrowEngine) SetAdminCommission(ctx context.Context, rate int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	led := ledger.NewStore(tx)
	if err := e.requireAdmin(ctx, led); err != nil {
		return err
	}
	if rate < 0 {
		return domain.ErrInvalidAmount
	}

	if err := led.WriteCommissionRate(ctx, rate); err != nil {
		return err
	}
	return tx.Commit()
}

func (e *escrowEngine) WithdrawAdminCommission(ctx context.Context, amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	led := ledger.NewStore(tx)
	admin, err := led.Admin(ctx)
	if err != nil {
		return err
	}
	if err := e.auth.RequireIdentity(ctx, admin); err != nil {
		return err
	}
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}

	token, err := led.PaymentToken(ctx)
	if err != nil {
		return err
	}
	balance, err := led.CommissionBalance(ctx)
	if err != nil {
		return err
	}
	if amount > balance {
		return domain.ErrInsufficientBalance
	}
	custody, err := led.CustodyTotal(ctx)
	if err != nil {
		return err
	}
	if amount > custody {
		return domain.ErrCustodyShortfall
	}

	balance, err = utils.CheckedSub(balance, amount)
	if err != nil {
		return err
	}
	custody, err = utils.CheckedSub(custody, amount)
	if err != nil {
		return err
	}

	if err := led.WriteCommissionBalance(ctx, balance); err != nil {
		return err
	}
	if err := led.WriteCustodyTotal(ctx, custody); err != nil {
		return err
	}

	if err := e.treasury.Transfer(ctx, token, e.custodyAccount, admin, amount); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		e.compensate(ctx, token, admin, e.custodyAccount, amount)
		return err
	}
	return nil
}

// requireAdmin resolves the administrator identity (failing with
// ErrNotInitialized before setup) and demands the caller prove it.
func (e *escrowEngine) requireAdmin(ctx context.Context, led *ledger.Store) error {
	admin, err := led.Admin(ctx)
	if err != nil {
		return err
	}
	return e.auth.RequireIdentity(ctx, admin)
}

// compensate reverses an already-executed transfer after a commit failure.
// Best effort: if the reversal also fails the discrepancy is logged for
// manual settlement.
func (e *escrowEngine) compensate(ctx context.Context, token, from, to string, amount int64) {
	if err := e.treasury.Transfer(ctx, token, from, to, amount); err != nil {
		logger.ErrorContext(ctx, "compensating transfer failed, manual settlement required",
			"token", token, "from", from, "to", to, "amount", amount, "error", err)
	}
}
