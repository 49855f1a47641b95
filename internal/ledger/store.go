// Package ledger provides typed accessors over the key-value substrate for
// the engine's record families: administrator identity, payment token,
// commission rate and balance, custody total, cars and rentals.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"rentacar-escrow-backend/internal/domain"
	"rentacar-escrow-backend/internal/kv"
)

// Store reads and writes ledger records through a kv.ReadWriter, which is
// either the backing store directly or an open transaction. It holds no
// state of its own; every operation re-reads current values.
type Store struct {
	kv kv.ReadWriter
}

func NewStore(rw kv.ReadWriter) *Store {
	return &Store{kv: rw}
}

func (s *Store) HasAdmin(ctx context.Context) (bool, error) {
	return s.kv.Has(ctx, keyAdmin)
}

func (s *Store) Admin(ctx context.Context) (string, error) {
	return s.readIdentity(ctx, keyAdmin)
}

func (s *Store) WriteAdmin(ctx context.Context, admin string) error {
	return s.kv.Put(ctx, keyAdmin, []byte(admin))
}

func (s *Store) PaymentToken(ctx context.Context) (string, error) {
	return s.readIdentity(ctx, keyPaymentToken)
}

func (s *Store) WritePaymentToken(ctx context.Context, token string) error {
	return s.kv.Put(ctx, keyPaymentToken, []byte(token))
}

func (s *Store) readIdentity(ctx context.Context, key string) (string, error) {
	value, err := s.kv.Get(ctx, key)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return "", domain.ErrNotInitialized
	}
	if err != nil {
		return "", err
	}
	return string(value), nil
}

// CommissionRate returns the flat per-rental surcharge, zero if never set.
func (s *Store) CommissionRate(ctx context.Context) (int64, error) {
	return s.readAmount(ctx, keyCommissionRate)
}

func (s *Store) WriteCommissionRate(ctx context.Context, rate int64) error {
	return s.writeAmount(ctx, keyCommissionRate, rate)
}

// CommissionBalance returns the administrator's accumulated, unwithdrawn
// commission, zero if never credited.
func (s *Store) CommissionBalance(ctx context.Context) (int64, error) {
	return s.readAmount(ctx, keyCommissionBalance)
}

func (s *Store) WriteCommissionBalance(ctx context.Context, balance int64) error {
	return s.writeAmount(ctx, keyCommissionBalance, balance)
}

// CustodyTotal returns the sum of all funds currently held in escrow.
func (s *Store) CustodyTotal(ctx context.Context) (int64, error) {
	return s.readAmount(ctx, keyCustodyTotal)
}

func (s *Store) WriteCustodyTotal(ctx context.Context, total int64) error {
	return s.writeAmount(ctx, keyCustodyTotal, total)
}

func (s *Store) readAmount(ctx context.Context, key string) (int64, error) {
	value, err := s.kv.Get(ctx, key)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(string(value), 10, 64)
}

func (s *Store) writeAmount(ctx context.Context, key string, amount int64) error {
	return s.kv.Put(ctx, key, []byte(strconv.FormatInt(amount, 10)))
}

func (s *Store) HasCar(ctx context.Context, owner string) (bool, error) {
	return s.kv.Has(ctx, carKey(owner))
}

func (s *Store) Car(ctx context.Context, owner string) (*domain.Car, error) {
	value, err := s.kv.Get(ctx, carKey(owner))
	if errors.Is(err, kv.ErrKeyNotFound) {
		return nil, domain.ErrCarNotFound
	}
	if err != nil {
		return nil, err
	}
	var car domain.Car
	if err := json.Unmarshal(value, &car); err != nil {
		return nil, err
	}
	return &car, nil
}

func (s *Store) WriteCar(ctx context.Context, owner string, car *domain.Car) error {
	value, err := json.Marshal(car)
	if err != nil {
		return err
	}
	return s.kv.Put(ctx, carKey(owner), value)
}

func (s *Store) DeleteCar(ctx context.Context, owner string) error {
	return s.kv.Delete(ctx, carKey(owner))
}

// CarOwners lists every owner with a registered car. Used by the custody
// audit and the invariant checks in tests.
func (s *Store) CarOwners(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Scan(ctx, carKeyPrefix)
	if err != nil {
		return nil, err
	}
	owners := make([]string, 0, len(keys))
	for _, key := range keys {
		owners = append(owners, strings.TrimPrefix(key, carKeyPrefix))
	}
	return owners, nil
}

func (s *Store) Rental(ctx context.Context, renter, owner string) (*domain.Rental, error) {
	value, err := s.kv.Get(ctx, rentalKey(renter, owner))
	if errors.Is(err, kv.ErrKeyNotFound) {
		return nil, domain.ErrRentalNotFound
	}
	if err != nil {
		return nil, err
	}
	var rental domain.Rental
	if err := json.Unmarshal(value, &rental); err != nil {
		return nil, err
	}
	return &rental, nil
}

func (s *Store) WriteRental(ctx context.Context, renter, owner string, rental *domain.Rental) error {
	value, err := json.Marshal(rental)
	if err != nil {
		return err
	}
	return s.kv.Put(ctx, rentalKey(renter, owner), value)
}
