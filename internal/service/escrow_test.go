package service

import (
	"context"
	"errors"
	"math"
	"testing"

	"rentacar-escrow-backend/internal/domain"
	"rentacar-escrow-backend/internal/events"
	"rentacar-escrow-backend/internal/kv"
	"rentacar-escrow-backend/internal/ledger"
	"rentacar-escrow-backend/internal/security"
	"rentacar-escrow-backend/internal/treasury"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	adminAcct   = "GADMIN"
	tokenAsset  = "GTOKEN"
	custodyAcct = "GCUSTODY"
	ownerAcct   = "GOWNER"
	renterAcct  = "GRENTER"
)

type testEnv struct {
	store  *kv.MemoryStore
	vault  *treasury.Vault
	engine EscrowService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := kv.NewMemoryStore()
	vault := treasury.NewVault()
	engine := NewEscrowEngine(store, security.NewContextAuthorizer(), vault, events.NopNotifier{}, custodyAcct)
	return &testEnv{store: store, vault: vault, engine: engine}
}

// as returns a context whose caller identity is proven to be account.
func as(account string) context.Context {
	return security.WithCallerAccount(context.Background(), account)
}

func (env *testEnv) initialize(t *testing.T) {
	t.Helper()
	require.NoError(t, env.engine.Initialize(context.Background(), adminAcct, tokenAsset))
}

func (env *testEnv) addCar(t *testing.T, owner string, pricePerDay int64) {
	t.Helper()
	require.NoError(t, env.engine.AddCar(as(adminAcct), owner, pricePerDay))
}

func (env *testEnv) ledger() *ledger.Store {
	return ledger.NewStore(env.store)
}

// checkAccountingIdentity asserts the custody invariant: custody total
// equals the sum of all car balances plus the commission balance.
func (env *testEnv) checkAccountingIdentity(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	led := env.ledger()

	custody, err := led.CustodyTotal(ctx)
	require.NoError(t, err)
	commission, err := led.CommissionBalance(ctx)
	require.NoError(t, err)

	owners, err := led.CarOwners(ctx)
	require.NoError(t, err)
	var carsTotal int64
	for _, owner := range owners {
		car, err := led.Car(ctx, owner)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, car.AvailableToWithdraw, int64(0))
		carsTotal += car.AvailableToWithdraw
	}

	assert.GreaterOrEqual(t, commission, int64(0))
	assert.Equal(t, custody, carsTotal+commission, "custody total must equal car balances plus commission balance")
}

// snapshot captures the raw kv state so tests can assert failed operations
// changed nothing.
func (env *testEnv) snapshot(t *testing.T) map[string]string {
	t.Helper()
	ctx := context.Background()
	keys, err := env.store.Scan(ctx, "")
	require.NoError(t, err)
	state := make(map[string]string, len(keys))
	for _, key := range keys {
		value, err := env.store.Get(ctx, key)
		require.NoError(t, err)
		state[key] = string(value)
	}
	return state
}

func TestInitialize(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		env := newTestEnv(t)
		env.initialize(t)

		admin, err := env.ledger().Admin(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, adminAcct, admin)

		token, err := env.ledger().PaymentToken(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, tokenAsset, token)
	})

	t.Run("Twice", func(t *testing.T) {
		env := newTestEnv(t)
		env.initialize(t)
		err := env.engine.Initialize(context.Background(), "GOTHER", tokenAsset)
		assert.ErrorIs(t, err, domain.ErrAlreadyInitialized)

		admin, _ := env.ledger().Admin(context.Background())
		assert.Equal(t, adminAcct, admin, "failed re-initialization must not overwrite the admin")
	})

	t.Run("Admin equals token", func(t *testing.T) {
		env := newTestEnv(t)
		err := env.engine.Initialize(context.Background(), adminAcct, adminAcct)
		assert.ErrorIs(t, err, domain.ErrAdminTokenConflict)
	})
}

func TestAddCar(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		env := newTestEnv(t)
		env.initialize(t)
		env.addCar(t, ownerAcct, 1500)

		car, err := env.ledger().Car(context.Background(), ownerAcct)
		require.NoError(t, err)
		assert.Equal(t, domain.CarStatusAvailable, car.Status)
		assert.Equal(t, int64(1500), car.PricePerDay)
		assert.Zero(t, car.AvailableToWithdraw)
	})

	t.Run("Before initialization", func(t *testing.T) {
		env := newTestEnv(t)
		err := env.engine.AddCar(as(adminAcct), ownerAcct, 1500)
		assert.ErrorIs(t, err, domain.ErrNotInitialized)
	})

	t.Run("Not the administrator", func(t *testing.T) {
		env := newTestEnv(t)
		env.initialize(t)
		err := env.engine.AddCar(as(ownerAcct), ownerAcct, 1500)
		assert.ErrorIs(t, err, domain.ErrNotAuthorized)
	})

	t.Run("Non-positive price", func(t *testing.T) {
		env := newTestEnv(t)
		env.initialize(t)
		assert.ErrorIs(t, env.engine.AddCar(as(adminAcct), ownerAcct, 0), domain.ErrInvalidAmount)
		assert.ErrorIs(t, env.engine.AddCar(as(adminAcct), ownerAcct, -10), domain.ErrInvalidAmount)
	})

	t.Run("Duplicate owner", func(t *testing.T) {
		env := newTestEnv(t)
		env.initialize(t)
		env.addCar(t, ownerAcct, 1500)
		err := env.engine.AddCar(as(adminAcct), ownerAcct, 2000)
		assert.ErrorIs(t, err, domain.ErrCarAlreadyExists)
	})
}

func TestGetCarStatus(t *testing.T) {
	env := newTestEnv(t)
	env.initialize(t)
	ctx := context.Background()

	_, err := env.engine.GetCarStatus(ctx, ownerAcct)
	assert.ErrorIs(t, err, domain.ErrCarNotFound)

	env.addCar(t, ownerAcct, 1500)
	status, err := env.engine.GetCarStatus(ctx, ownerAcct)
	assert.NoError(t, err)
	assert.Equal(t, domain.CarStatusAvailable, status)

	env.vault.Mint(tokenAsset, renterAcct, 10_000)
	require.NoError(t, env.engine.Rental(as(renterAcct), renterAcct, ownerAcct, 3, 4500))

	status, err = env.engine.GetCarStatus(ctx, ownerAcct)
	assert.NoError(t, err)
	assert.Equal(t, domain.CarStatusRented, status)
}

func TestRental(t *testing.T) {
	t.Run("Zero commission", func(t *testing.T) {
		env := newTestEnv(t)
		env.initialize(t)
		env.addCar(t, ownerAcct, 1500)
		env.vault.Mint(tokenAsset, renterAcct, 10_000)

		require.NoError(t, env.engine.Rental(as(renterAcct), renterAcct, ownerAcct, 3, 4500))

		ctx := context.Background()
		led := env.ledger()

		custody, _ := led.CustodyTotal(ctx)
		assert.Equal(t, int64(4500), custody)

		car, err := led.Car(ctx, ownerAcct)
		require.NoError(t, err)
		assert.Equal(t, domain.CarStatusRented, car.Status)
		assert.Equal(t, int64(4500), car.AvailableToWithdraw)

		rental, err := led.Rental(ctx, renterAcct, ownerAcct)
		require.NoError(t, err)
		assert.Equal(t, int32(3), rental.TotalDaysToRent)
		assert.Equal(t, int64(4500), rental.Amount)

		assert.Equal(t, int64(5500), env.vault.Balance(tokenAsset, renterAcct))
		assert.Equal(t, int64(4500), env.vault.Balance(tokenAsset, custodyAcct))
		env.checkAccountingIdentity(t)
	})

	t.Run("With commission", func(t *testing.T) {
		env := newTestEnv(t)
		env.initialize(t)
		env.addCar(t, ownerAcct, 1500)
		env.vault.Mint(tokenAsset, renterAcct, 10_000)
		require.NoError(t, env.engine.SetAdminCommission(as(adminAcct), 500))

		require.NoError(t, env.engine.Rental(as(renterAcct), renterAcct, ownerAcct, 3, 4500))

		ctx := context.Background()
		led := env.ledger()

		custody, _ := led.CustodyTotal(ctx)
		assert.Equal(t, int64(5000), custody)

		// Commission is additive: the owner's share is untouched by it.
		car, _ := led.Car(ctx, ownerAcct)
		assert.Equal(t, int64(4500), car.AvailableToWithdraw)

		commission, _ := led.CommissionBalance(ctx)
		assert.Equal(t, int64(500), commission)

		assert.Equal(t, int64(5000), env.vault.Balance(tokenAsset, renterAcct))
		env.checkAccountingIdentity(t)
	})

	t.Run("Commission may exceed the amount", func(t *testing.T) {
		env := newTestEnv(t)
		env.initialize(t)
		env.addCar(t, ownerAcct, 1500)
		env.vault.Mint(tokenAsset, renterAcct, 10_000)
		require.NoError(t, env.engine.SetAdminCommission(as(adminAcct), 9000))

		require.NoError(t, env.engine.Rental(as(renterAcct), renterAcct, ownerAcct, 1, 100))

		commission, _ := env.ledger().CommissionBalance(context.Background())
		assert.Equal(t, int64(9000), commission)
		env.checkAccountingIdentity(t)
	})

	t.Run("Already rented", func(t *testing.T) {
		env := newTestEnv(t)
		env.initialize(t)
		env.addCar(t, ownerAcct, 1500)
		env.vault.Mint(tokenAsset, renterAcct, 10_000)
		env.vault.Mint(tokenAsset, "GRENTER2", 10_000)
		require.NoError(t, env.engine.Rental(as(renterAcct), renterAcct, ownerAcct, 3, 4500))

		before := env.snapshot(t)
		err := env.engine.Rental(as("GRENTER2"), "GRENTER2", ownerAcct, 2, 3000)
		assert.ErrorIs(t, err, domain.ErrCarAlreadyRented)
		assert.Equal(t, before, env.snapshot(t), "failed rental must not change ledger state")
		assert.Equal(t, int64(10_000), env.vault.Balance(tokenAsset, "GRENTER2"))
	})

	t.Run("Validation failures", func(t *testing.T) {
		env := newTestEnv(t)
		env.initialize(t)
		env.addCar(t, ownerAcct, 1500)

		assert.ErrorIs(t, env.engine.Rental(as(renterAcct), renterAcct, ownerAcct, 3, 0), domain.ErrInvalidAmount)
		assert.ErrorIs(t, env.engine.Rental(as(renterAcct), renterAcct, ownerAcct, 0, 4500), domain.ErrInvalidDuration)
		assert.ErrorIs(t, env.engine.Rental(as(ownerAcct), ownerAcct, ownerAcct, 3, 4500), domain.ErrSelfRentalNotAllowed)
		assert.ErrorIs(t, env.engine.Rental(as(renterAcct), renterAcct, "GNOBODY", 3, 4500), domain.ErrCarNotFound)
	})

	t.Run("Caller is not the renter", func(t *testing.T) {
		env := newTestEnv(t)
		env.initialize(t)
		env.addCar(t, ownerAcct, 1500)

		err := env.engine.Rental(as("GMALLORY"), renterAcct, ownerAcct, 3, 4500)
		assert.ErrorIs(t, err, domain.ErrNotAuthorized)
	})

	t.Run("Commission overflow", func(t *testing.T) {
		env := newTestEnv(t)
		env.initialize(t)
		env.addCar(t, ownerAcct, 1500)
		require.NoError(t, env.engine.SetAdminCommission(as(adminAcct), math.MaxInt64))

		before := env.snapshot(t)
		err := env.engine.Rental(as(renterAcct), renterAcct, ownerAcct, 3, 4500)
		assert.ErrorIs(t, err, domain.ErrArithmeticOverflow)
		assert.Equal(t, before, env.snapshot(t))
	})

	t.Run("Insufficient renter funds roll everything back", func(t *testing.T) {
		env := newTestEnv(t)
		env.initialize(t)
		env.addCar(t, ownerAcct, 1500)
		env.vault.Mint(tokenAsset, renterAcct, 100)

		before := env.snapshot(t)
		err := env.engine.Rental(as(renterAcct), renterAcct, ownerAcct, 3, 4500)
		assert.ErrorIs(t, err, treasury.ErrInsufficientSpendable)
		assert.Equal(t, before, env.snapshot(t), "transfer failure must leave no partial ledger writes")

		status, err := env.engine.GetCarStatus(context.Background(), ownerAcct)
		assert.NoError(t, err)
		assert.Equal(t, domain.CarStatusAvailable, status)
	})

	t.Run("Second rental for the same pair overwrites", func(t *testing.T) {
		env := newTestEnv(t)
		env.initialize(t)
		env.addCar(t, ownerAcct, 1500)
		env.addCar(t, "GOWNER2", 2000)
		env.vault.Mint(tokenAsset, renterAcct, 20_000)

		require.NoError(t, env.engine.Rental(as(renterAcct), renterAcct, ownerAcct, 3, 4500))
		require.NoError(t, env.engine.Rental(as(renterAcct), renterAcct, "GOWNER2", 7, 9000))

		rental, err := env.ledger().Rental(context.Background(), renterAcct, "GOWNER2")
		require.NoError(t, err)
		assert.Equal(t, int32(7), rental.TotalDaysToRent)
		env.checkAccountingIdentity(t)
	})

	t.Run("Rate change is not retroactive", func(t *testing.T) {
		env := newTestEnv(t)
		env.initialize(t)
		env.addCar(t, ownerAcct, 1500)
		env.vault.Mint(tokenAsset, renterAcct, 10_000)
		require.NoError(t, env.engine.SetAdminCommission(as(adminAcct), 500))
		require.NoError(t, env.engine.Rental(as(renterAcct), renterAcct, ownerAcct, 3, 4500))

		require.NoError(t, env.engine.SetAdminCommission(as(adminAcct), 9999))

		ctx := context.Background()
		commission, _ := env.ledger().CommissionBalance(ctx)
		assert.Equal(t, int64(500), commission)
		rental, _ := env.ledger().Rental(ctx, renterAcct, ownerAcct)
		assert.Equal(t, int64(4500), rental.Amount)
	})
}

func TestRemoveCar(t *testing.T) {
	t.Run("Round trip restores the key", func(t *testing.T) {
		env := newTestEnv(t)
		env.initialize(t)
		before := env.snapshot(t)

		env.addCar(t, ownerAcct, 1500)
		require.NoError(t, env.engine.RemoveCar(as(adminAcct), ownerAcct))

		assert.Equal(t, before, env.snapshot(t))
		_, err := env.engine.GetCarStatus(context.Background(), ownerAcct)
		assert.ErrorIs(t, err, domain.ErrCarNotFound)
	})

	t.Run("Missing car", func(t *testing.T) {
		env := newTestEnv(t)
		env.initialize(t)
		assert.ErrorIs(t, env.engine.RemoveCar(as(adminAcct), ownerAcct), domain.ErrCarNotFound)
	})

	t.Run("Not the administrator", func(t *testing.T) {
		env := newTestEnv(t)
		env.initialize(t)
		env.addCar(t, ownerAcct, 1500)
		assert.ErrorIs(t, env.engine.RemoveCar(as(ownerAcct), ownerAcct), domain.ErrNotAuthorized)
	})

	t.Run("Outstanding balance blocks removal", func(t *testing.T) {
		env := newTestEnv(t)
		env.initialize(t)
		env.addCar(t, ownerAcct, 1500)
		env.vault.Mint(tokenAsset, renterAcct, 10_000)
		require.NoError(t, env.engine.Rental(as(renterAcct), renterAcct, ownerAcct, 3, 4500))

		err := env.engine.RemoveCar(as(adminAcct), ownerAcct)
		assert.ErrorIs(t, err, domain.ErrOutstandingBalance)

		// Paying the owner out clears the way.
		require.NoError(t, env.engine.PayoutOwner(as(ownerAcct), ownerAcct, 4500))
		assert.NoError(t, env.engine.RemoveCar(as(adminAcct), ownerAcct))
		env.checkAccountingIdentity(t)
	})
}

func TestPayoutOwner(t *testing.T) {
	rented := func(t *testing.T, commission int64) *testEnv {
		env := newTestEnv(t)
		env.initialize(t)
		env.addCar(t, ownerAcct, 1500)
		env.vault.Mint(tokenAsset, renterAcct, 10_000)
		if commission > 0 {
			require.NoError(t, env.engine.SetAdminCommission(as(adminAcct), commission))
		}
		require.NoError(t, env.engine.Rental(as(renterAcct), renterAcct, ownerAcct, 3, 4500))
		return env
	}

	t.Run("Success", func(t *testing.T) {
		env := rented(t, 500)
		require.NoError(t, env.engine.PayoutOwner(as(ownerAcct), ownerAcct, 3000))

		ctx := context.Background()
		car, _ := env.ledger().Car(ctx, ownerAcct)
		assert.Equal(t, int64(1500), car.AvailableToWithdraw)

		custody, _ := env.ledger().CustodyTotal(ctx)
		assert.Equal(t, int64(2000), custody)

		assert.Equal(t, int64(3000), env.vault.Balance(tokenAsset, ownerAcct))
		env.checkAccountingIdentity(t)
	})

	t.Run("More than claimable", func(t *testing.T) {
		env := rented(t, 0)
		before := env.snapshot(t)

		err := env.engine.PayoutOwner(as(ownerAcct), ownerAcct, 6000)
		assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
		assert.Equal(t, before, env.snapshot(t))
		assert.Zero(t, env.vault.Balance(tokenAsset, ownerAcct))
	})

	t.Run("Not the owner", func(t *testing.T) {
		env := rented(t, 0)
		err := env.engine.PayoutOwner(as(renterAcct), ownerAcct, 1000)
		assert.ErrorIs(t, err, domain.ErrNotAuthorized)
	})

	t.Run("Non-positive amount", func(t *testing.T) {
		env := rented(t, 0)
		assert.ErrorIs(t, env.engine.PayoutOwner(as(ownerAcct), ownerAcct, 0), domain.ErrInvalidAmount)
	})

	t.Run("No car", func(t *testing.T) {
		env := newTestEnv(t)
		env.initialize(t)
		err := env.engine.PayoutOwner(as(ownerAcct), ownerAcct, 1000)
		assert.ErrorIs(t, err, domain.ErrCarNotFound)
	})
}

func TestCustodyShortfall(t *testing.T) {
	// Seed claimable balances larger than the custody total, a state no
	// engine operation can produce, and verify the withdrawal paths refuse
	// to overdraw custody rather than trust the recorded claims.
	corrupted := func(t *testing.T) *testEnv {
		env := newTestEnv(t)
		env.initialize(t)
		ctx := context.Background()
		led := env.ledger()
		require.NoError(t, led.WriteCar(ctx, ownerAcct, &domain.Car{
			PricePerDay:         1500,
			Status:              domain.CarStatusRented,
			AvailableToWithdraw: 5000,
		}))
		require.NoError(t, led.WriteCommissionBalance(ctx, 5000))
		require.NoError(t, led.WriteCustodyTotal(ctx, 1000))
		return env
	}

	t.Run("Owner payout", func(t *testing.T) {
		env := corrupted(t)
		before := env.snapshot(t)

		err := env.engine.PayoutOwner(as(ownerAcct), ownerAcct, 2000)
		assert.ErrorIs(t, err, domain.ErrCustodyShortfall)
		assert.Equal(t, before, env.snapshot(t))
		assert.Zero(t, env.vault.Balance(tokenAsset, ownerAcct))
	})

	t.Run("Commission withdrawal", func(t *testing.T) {
		env := corrupted(t)
		before := env.snapshot(t)

		err := env.engine.WithdrawAdminCommission(as(adminAcct), 2000)
		assert.ErrorIs(t, err, domain.ErrCustodyShortfall)
		assert.Equal(t, before, env.snapshot(t))
		assert.Zero(t, env.vault.Balance(tokenAsset, adminAcct))
	})

	t.Run("Within custody still succeeds", func(t *testing.T) {
		env := corrupted(t)
		env.vault.Mint(tokenAsset, custodyAcct, 1000)

		require.NoError(t, env.engine.PayoutOwner(as(ownerAcct), ownerAcct, 1000))
		assert.Equal(t, int64(1000), env.vault.Balance(tokenAsset, ownerAcct))
	})
}

func TestAdminCommission(t *testing.T) {
	t.Run("Negative rate", func(t *testing.T) {
		env := newTestEnv(t)
		env.initialize(t)
		assert.ErrorIs(t, env.engine.SetAdminCommission(as(adminAcct), -1), domain.ErrInvalidAmount)
	})

	t.Run("Zero rate is allowed", func(t *testing.T) {
		env := newTestEnv(t)
		env.initialize(t)
		assert.NoError(t, env.engine.SetAdminCommission(as(adminAcct), 0))
	})

	t.Run("Not the administrator", func(t *testing.T) {
		env := newTestEnv(t)
		env.initialize(t)
		assert.ErrorIs(t, env.engine.SetAdminCommission(as(renterAcct), 500), domain.ErrNotAuthorized)
		assert.ErrorIs(t, env.engine.WithdrawAdminCommission(as(renterAcct), 500), domain.ErrNotAuthorized)
	})

	t.Run("Two rentals accrue, partial withdrawal settles", func(t *testing.T) {
		env := newTestEnv(t)
		env.initialize(t)
		env.addCar(t, "GOWNER1", 1500)
		env.addCar(t, "GOWNER2", 2000)
		env.vault.Mint(tokenAsset, "GRENTER1", 10_000)
		env.vault.Mint(tokenAsset, "GRENTER2", 10_000)
		require.NoError(t, env.engine.SetAdminCommission(as(adminAcct), 500))

		require.NoError(t, env.engine.Rental(as("GRENTER1"), "GRENTER1", "GOWNER1", 3, 4500))
		require.NoError(t, env.engine.Rental(as("GRENTER2"), "GRENTER2", "GOWNER2", 2, 4000))

		ctx := context.Background()
		commission, _ := env.ledger().CommissionBalance(ctx)
		assert.Equal(t, int64(1000), commission)
		custody, _ := env.ledger().CustodyTotal(ctx)
		assert.Equal(t, int64(9500), custody)

		require.NoError(t, env.engine.WithdrawAdminCommission(as(adminAcct), 750))

		commission, _ = env.ledger().CommissionBalance(ctx)
		assert.Equal(t, int64(250), commission)
		custody, _ = env.ledger().CustodyTotal(ctx)
		assert.Equal(t, int64(8750), custody)
		assert.Equal(t, int64(750), env.vault.Balance(tokenAsset, adminAcct))
		env.checkAccountingIdentity(t)
	})

	t.Run("Withdraw more than accrued", func(t *testing.T) {
		env := newTestEnv(t)
		env.initialize(t)
		before := env.snapshot(t)

		err := env.engine.WithdrawAdminCommission(as(adminAcct), 100)
		assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
		assert.Equal(t, before, env.snapshot(t))
	})
}

// flakyTransferor fails every transfer with a backend error, regardless of
// balances, to exercise the rollback path distinct from insufficient funds.
type flakyTransferor struct{ err error }

func (f *flakyTransferor) Transfer(context.Context, string, string, string, int64) error {
	return f.err
}

func TestRental_TransferBackendFailure(t *testing.T) {
	store := kv.NewMemoryStore()
	backendErr := errors.New("transfer backend unavailable")
	engine := NewEscrowEngine(store, security.NewContextAuthorizer(), &flakyTransferor{err: backendErr}, events.NopNotifier{}, custodyAcct)

	require.NoError(t, engine.Initialize(context.Background(), adminAcct, tokenAsset))
	require.NoError(t, engine.AddCar(as(adminAcct), ownerAcct, 1500))

	err := engine.Rental(as(renterAcct), renterAcct, ownerAcct, 3, 4500)
	assert.ErrorIs(t, err, backendErr)

	status, err := engine.GetCarStatus(context.Background(), ownerAcct)
	assert.NoError(t, err)
	assert.Equal(t, domain.CarStatusAvailable, status)

	custody, err := ledger.NewStore(store).CustodyTotal(context.Background())
	assert.NoError(t, err)
	assert.Zero(t, custody)
}
